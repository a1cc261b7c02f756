package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/app"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/corpaction"
)

// parseRatio reads "N:D" or a single decimal N (meaning N:1)
func parseRatio(value string) (decimal.Decimal, decimal.Decimal, error) {
	num, den, found := strings.Cut(value, ":")
	if !found {
		den = "1"
	}
	n, err := decimal.NewFromString(strings.TrimSpace(num))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: ratio %q", domain.ErrInvalidCorporateAction, value)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(den))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: ratio %q", domain.ErrInvalidCorporateAction, value)
	}
	return n, d, nil
}

func parseDecimal(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a number", domain.ErrInvalidCorporateAction, name, value)
	}
	return d, nil
}

func printAction(cmd *cobra.Command, kind string, result *corpaction.Result) {
	out := cmd.OutOrStdout()
	if result.AlreadyApplied {
		fmt.Fprintf(out, "%s %s already applied\n", kind, result.ActionID)
		return
	}
	fmt.Fprintf(out, "%s %s applied: %d lots adjusted, %d lots created\n",
		kind, result.ActionID, result.LotsAffected, result.LotsCreated)
	if result.CashInLieu.IsPositive() {
		fmt.Fprintf(out, "cash in lieu %s\n", result.CashInLieu.Display())
	}
}

func (c *cli) splitCmd() *cobra.Command {
	var ratio, actionID, date string
	cmd := &cobra.Command{
		Use:   "split <security>",
		Short: "Apply a stock split, e.g. --ratio 2:1 or --ratio 1:10",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			num, den, err := parseRatio(ratio)
			if err != nil {
				return err
			}
			effective, err := c.dateOr(date)
			if err != nil {
				return err
			}
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				sec, err := resolveSecurity(ctx, s, args[0])
				if err != nil {
					return err
				}
				result, err := s.CorporateActions.ApplySplit(ctx, corpaction.SplitInput{
					ActionID:      actionID,
					SecurityID:    sec.ID,
					Numerator:     num,
					Denominator:   den,
					EffectiveDate: effective,
				})
				if err != nil {
					return err
				}
				printAction(cmd, "split", result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ratio, "ratio", "", "new:old shares")
	cmd.Flags().StringVar(&actionID, "action-id", "", "idempotency key (generated when empty)")
	cmd.Flags().StringVar(&date, "date", "", "effective date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("ratio")
	return cmd
}

func (c *cli) spinoffCmd() *cobra.Command {
	var parent, child, allocation, shareRatio, actionID, date string
	cmd := &cobra.Command{
		Use:   "spinoff",
		Short: "Distribute child shares and move a fraction of parent basis to them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			alloc, err := parseDecimal("allocation", allocation)
			if err != nil {
				return err
			}
			shares, err := parseDecimal("share ratio", shareRatio)
			if err != nil {
				return err
			}
			effective, err := c.dateOr(date)
			if err != nil {
				return err
			}
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				parentSec, err := resolveSecurity(ctx, s, parent)
				if err != nil {
					return err
				}
				childSec, err := resolveSecurity(ctx, s, child)
				if err != nil {
					return err
				}
				result, err := s.CorporateActions.ApplySpinoff(ctx, corpaction.SpinoffInput{
					ActionID:         actionID,
					ParentSecurityID: parentSec.ID,
					ChildSecurityID:  childSec.ID,
					AllocationRatio:  alloc,
					ShareRatio:       shares,
					EffectiveDate:    effective,
				})
				if err != nil {
					return err
				}
				printAction(cmd, "spinoff", result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent security id or symbol")
	cmd.Flags().StringVar(&child, "child", "", "child security id or symbol")
	cmd.Flags().StringVar(&allocation, "allocation", "", "fraction of parent basis moved to the child")
	cmd.Flags().StringVar(&shareRatio, "share-ratio", "1", "child shares per parent share")
	cmd.Flags().StringVar(&actionID, "action-id", "", "idempotency key (generated when empty)")
	cmd.Flags().StringVar(&date, "date", "", "effective date YYYY-MM-DD (default today)")
	for _, f := range []string{"parent", "child", "allocation"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (c *cli) mergerCmd() *cobra.Command {
	var oldRef, newRef, ratio, cashInLieu, currency, actionID, date string
	cmd := &cobra.Command{
		Use:   "merger",
		Short: "Exchange lots of one security into another",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exchange, err := parseDecimal("exchange ratio", ratio)
			if err != nil {
				return err
			}
			in := corpaction.MergerInput{ActionID: actionID, ExchangeRatio: exchange}
			if cashInLieu != "" {
				cil, err := domain.NewMoneyFromString(cashInLieu, currency)
				if err != nil {
					return err
				}
				in.CashInLieuPerShare = &cil
			}
			if in.EffectiveDate, err = c.dateOr(date); err != nil {
				return err
			}
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				oldSec, err := resolveSecurity(ctx, s, oldRef)
				if err != nil {
					return err
				}
				newSec, err := resolveSecurity(ctx, s, newRef)
				if err != nil {
					return err
				}
				in.OldSecurityID, in.NewSecurityID = oldSec.ID, newSec.ID
				result, err := s.CorporateActions.ApplyMerger(ctx, in)
				if err != nil {
					return err
				}
				printAction(cmd, "merger", result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&oldRef, "old", "", "acquired security id or symbol")
	cmd.Flags().StringVar(&newRef, "new", "", "acquirer security id or symbol")
	cmd.Flags().StringVar(&ratio, "ratio", "", "new shares per old share")
	cmd.Flags().StringVar(&cashInLieu, "cash-in-lieu", "", "cash paid per old share")
	cmd.Flags().StringVar(&currency, "currency", "USD", "cash in lieu currency")
	cmd.Flags().StringVar(&actionID, "action-id", "", "idempotency key (generated when empty)")
	cmd.Flags().StringVar(&date, "date", "", "effective date YYYY-MM-DD (default today)")
	for _, f := range []string{"old", "new", "ratio"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (c *cli) renameCmd() *cobra.Command {
	var symbol, name, actionID, date string
	cmd := &cobra.Command{
		Use:   "rename <security>",
		Short: "Change a security's symbol and optionally its name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			effective, err := c.dateOr(date)
			if err != nil {
				return err
			}
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				sec, err := resolveSecurity(ctx, s, args[0])
				if err != nil {
					return err
				}
				result, err := s.CorporateActions.ApplySymbolChange(ctx, corpaction.SymbolChangeInput{
					ActionID:      actionID,
					SecurityID:    sec.ID,
					NewSymbol:     symbol,
					NewName:       name,
					EffectiveDate: effective,
				})
				if err != nil {
					return err
				}
				printAction(cmd, "symbol change", result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "new symbol")
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&actionID, "action-id", "", "idempotency key (generated when empty)")
	cmd.Flags().StringVar(&date, "date", "", "effective date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}
