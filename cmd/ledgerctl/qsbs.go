package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/app"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/qsbs"
)

func (c *cli) qsbsCmd() *cobra.Command {
	qsbsCmd := &cobra.Command{
		Use:   "qsbs",
		Short: "Qualified small business stock tracking",
	}

	var asOf string
	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show qualified and pending QSBS holdings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := c.dateOr(asOf)
			if err != nil {
				return err
			}
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				summary, err := s.QSBS.GetSummary(ctx, date)
				if err != nil {
					return err
				}
				printSummary(cmd, summary)
				return nil
			})
		},
	}
	summaryCmd.Flags().StringVar(&asOf, "as-of", "", "report date YYYY-MM-DD (default today)")

	var issuer string
	var eligible bool
	markCmd := &cobra.Command{
		Use:   "mark <security>",
		Short: "Set a security's QSBS eligibility and issuer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				sec, err := resolveSecurity(ctx, s, args[0])
				if err != nil {
					return err
				}
				updated, err := s.QSBS.SetEligibility(ctx, sec.ID, eligible, issuer)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s eligible=%t issuer=%q\n",
					updated.Symbol, updated.IsQSBSEligible, updated.IssuerName())
				return nil
			})
		},
	}
	markCmd.Flags().StringVar(&issuer, "issuer", "", "issuing company")
	markCmd.Flags().BoolVar(&eligible, "eligible", true, "QSBS eligibility")

	qsbsCmd.AddCommand(summaryCmd, markCmd)
	return qsbsCmd
}

func printSummary(cmd *cobra.Command, summary *qsbs.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "QSBS as of %s (%s)\n", summary.AsOf.Format(domain.DateFormat), summary.Currency)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tSYMBOL\tISSUER\tACQUIRED\tQUALIFIES\tQUANTITY\tBASIS")
	rows := func(status string, holdings []qsbs.Holding) {
		for _, h := range holdings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", status, h.Symbol, h.Issuer,
				h.AcquisitionDate.Format(domain.DateFormat), h.QualificationDate.Format(domain.DateFormat),
				h.Quantity, h.CostBasis.Display())
		}
	}
	rows("qualified", summary.Qualified)
	rows("pending", summary.Pending)
	_ = w.Flush()

	fmt.Fprintf(out, "qualified basis %s, pending basis %s, potential exclusion %s\n",
		summary.TotalQualifiedBasis.Display(), summary.TotalPendingBasis.Display(),
		summary.TotalPotentialExclusion.Display())
}
