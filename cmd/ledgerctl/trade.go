package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/app"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/lotmatch"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/trading"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/washsale"
)

func (c *cli) buyCmd() *cobra.Command {
	var account, cash, security, quantity, price, currency, date, acquisitionType, memo, reference string
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Record a purchase as a new tax lot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				sec, err := resolveSecurity(ctx, s, security)
				if err != nil {
					return err
				}
				in := trading.PurchaseInput{
					SecurityID:      sec.ID,
					AcquisitionType: domain.AcquisitionType(strings.ToUpper(acquisitionType)),
					Memo:            memo,
					Reference:       reference,
				}
				if in.InvestmentAccountID, err = parseID("account", account); err != nil {
					return err
				}
				if cash != "" {
					if in.CashAccountID, err = parseID("cash account", cash); err != nil {
						return err
					}
				}
				if in.Quantity, err = domain.NewQuantityFromString(quantity); err != nil {
					return err
				}
				if in.CostPerShare, err = domain.NewMoneyFromString(price, currency); err != nil {
					return err
				}
				if in.TradeDate, err = c.dateOr(date); err != nil {
					return err
				}

				result, err := s.Trading.RecordPurchase(ctx, in)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "bought %s %s at %s, lot %s\n",
					result.Lot.OriginalQuantity, sec.Symbol, result.Lot.CostPerShare.Display(), result.Lot.ID)
				if result.Transaction != nil {
					fmt.Fprintf(out, "posted transaction %s\n", result.Transaction.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "investment account id")
	cmd.Flags().StringVar(&cash, "cash", "", "cash account to credit (optional)")
	cmd.Flags().StringVar(&security, "security", "", "security id or symbol")
	cmd.Flags().StringVar(&quantity, "quantity", "", "shares bought")
	cmd.Flags().StringVar(&price, "price", "", "cost per share")
	cmd.Flags().StringVar(&currency, "currency", "USD", "price currency")
	cmd.Flags().StringVar(&date, "date", "", "trade date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&acquisitionType, "type", string(domain.AcquisitionTypePurchase), "acquisition type")
	cmd.Flags().StringVar(&memo, "memo", "", "transaction memo")
	cmd.Flags().StringVar(&reference, "reference", "", "external reference")
	for _, f := range []string{"account", "security", "quantity", "price"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (c *cli) sellCmd() *cobra.Command {
	var account, cash, gain, security, quantity, proceeds, currency, method, price, date, memo, reference string
	var lots []string
	var washSale bool
	cmd := &cobra.Command{
		Use:   "sell",
		Short: "Record a sale, matching lots and realizing the gain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				sec, err := resolveSecurity(ctx, s, security)
				if err != nil {
					return err
				}
				in := trading.SaleInput{
					SecurityID:    sec.ID,
					ApplyWashSale: washSale,
					Memo:          memo,
					Reference:     reference,
				}
				if in.InvestmentAccountID, err = parseID("account", account); err != nil {
					return err
				}
				if in.CashAccountID, err = parseID("cash account", cash); err != nil {
					return err
				}
				if in.GainAccountID, err = parseID("gain account", gain); err != nil {
					return err
				}
				if in.Quantity, err = domain.NewQuantityFromString(quantity); err != nil {
					return err
				}
				if in.Proceeds, err = domain.NewMoneyFromString(proceeds, currency); err != nil {
					return err
				}
				if in.Method, err = lotmatch.ParseMethod(method); err != nil {
					return err
				}
				if in.LotIDs, err = parseIDs("lot", lots); err != nil {
					return err
				}
				if price != "" {
					current, err := domain.NewMoneyFromString(price, currency)
					if err != nil {
						return err
					}
					in.CurrentPrice = &current
				}
				if in.TradeDate, err = c.dateOr(date); err != nil {
					return err
				}

				result, err := s.Trading.RecordSale(ctx, in)
				if err != nil {
					return err
				}
				printSale(cmd, sec.Symbol, result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "investment account id")
	cmd.Flags().StringVar(&cash, "cash", "", "cash account to debit with the proceeds")
	cmd.Flags().StringVar(&gain, "gain", "", "realized gain account")
	cmd.Flags().StringVar(&security, "security", "", "security id or symbol")
	cmd.Flags().StringVar(&quantity, "quantity", "", "shares sold")
	cmd.Flags().StringVar(&proceeds, "proceeds", "", "total sale proceeds")
	cmd.Flags().StringVar(&currency, "currency", "USD", "proceeds currency")
	cmd.Flags().StringVar(&method, "method", string(lotmatch.FIFO), "lot selection method")
	cmd.Flags().StringSliceVar(&lots, "lots", nil, "lot ids for SPECIFIC_ID, in order")
	cmd.Flags().StringVar(&price, "price", "", "current price for MINIMIZE_GAIN/MAXIMIZE_GAIN")
	cmd.Flags().StringVar(&date, "date", "", "trade date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&washSale, "wash-sale", true, "defer a loss to replacement purchases")
	cmd.Flags().StringVar(&memo, "memo", "", "transaction memo")
	cmd.Flags().StringVar(&reference, "reference", "", "external reference")
	for _, f := range []string{"account", "cash", "gain", "security", "quantity", "proceeds"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func printSale(cmd *cobra.Command, symbol string, result *trading.SaleResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOT\tACQUIRED\tQUANTITY\tBASIS\tPROCEEDS\tGAIN")
	for _, d := range result.Dispositions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", d.LotID, d.AcquisitionDate.Format(domain.DateFormat),
			d.QuantitySold, d.CostBasis.Display(), d.Proceeds.Display(), d.RealizedGain().Display())
	}
	_ = w.Flush()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sold %s %s, realized %s (short %s, long %s)\n", result.Totals.Quantity, symbol,
		result.RealizedGain.Display(), result.Totals.ShortTermGain.Display(), result.Totals.LongTermGain.Display())
	if result.WashSale != nil {
		printWashSale(cmd, result.WashSale)
	}
	if result.Transaction != nil {
		fmt.Fprintf(out, "posted transaction %s\n", result.Transaction.ID)
	}
}

func printWashSale(cmd *cobra.Command, result *washsale.Result) {
	out := cmd.OutOrStdout()
	if result.Disallowed.IsPositive() {
		fmt.Fprintf(out, "wash sale: %s disallowed across %d lots\n",
			result.Disallowed.Display(), len(result.Adjustments))
	}
	if result.Unreplaced.IsPositive() {
		fmt.Fprintf(out, "wash sale: %s shares unreplaced, %s loss still allowed\n",
			result.Unreplaced, result.UnreplacedLoss.Display())
	}
}

// washSaleCmd defers the unreplaced part of an earlier loss sale into replacement
// lots bought after it
func (c *cli) washSaleCmd() *cobra.Command {
	var account, security, date, loss, quantity, currency string
	var exclude []string
	cmd := &cobra.Command{
		Use:   "wash-sale",
		Short: "Apply a loss sale's wash-sale rule to replacements bought since",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseID("account", account)
			if err != nil {
				return err
			}
			saleDate, err := domain.ParseDate(date)
			if err != nil {
				return err
			}
			lossAmount, err := domain.NewMoneyFromString(loss, currency)
			if err != nil {
				return err
			}
			sold, err := domain.NewQuantityFromString(quantity)
			if err != nil {
				return err
			}
			excluded, err := parseIDs("lot", exclude)
			if err != nil {
				return err
			}
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				sec, err := resolveSecurity(ctx, s, security)
				if err != nil {
					return err
				}
				position, err := s.Repos.Positions.GetByAccountAndSecurity(ctx, accountID, sec.ID)
				if err != nil {
					return err
				}
				result, err := s.WashSales.ApplyWashSale(ctx, position.ID, saleDate, lossAmount, sold, excluded)
				if err != nil {
					return err
				}
				if len(result.Adjustments) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no replacement lots")
				}
				printWashSale(cmd, result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "investment account id of the sale")
	cmd.Flags().StringVar(&security, "security", "", "security id or symbol")
	cmd.Flags().StringVar(&date, "date", "", "sale date YYYY-MM-DD")
	cmd.Flags().StringVar(&loss, "loss", "", "loss still allowed on the unreplaced shares")
	cmd.Flags().StringVar(&quantity, "quantity", "", "sold shares not yet replaced")
	cmd.Flags().StringVar(&currency, "currency", "USD", "loss currency")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "lot ids that cannot be replacements")
	for _, f := range []string{"account", "security", "date", "loss", "quantity"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (c *cli) balanceCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := parseID("account", args[0])
			if err != nil {
				return err
			}
			var date *time.Time
			if asOf != "" {
				d, err := domain.ParseDate(asOf)
				if err != nil {
					return err
				}
				date = &d
			}
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				balance, err := s.Ledger.GetAccountBalance(ctx, accountID, date)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", balance.Amount().StringFixed(balance.Currency().Fraction()), balance.Currency())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "balance as of YYYY-MM-DD")
	return cmd
}

func (c *cli) reverseCmd() *cobra.Command {
	var date, memo string
	cmd := &cobra.Command{
		Use:   "reverse <transaction-id>",
		Short: "Post the compensating reversal of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txID, err := parseID("transaction", args[0])
			if err != nil {
				return err
			}
			reversalDate, err := c.dateOr(date)
			if err != nil {
				return err
			}
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				reversal, err := s.Ledger.ReverseTransaction(ctx, txID, reversalDate, memo)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reversed %s with %s\n", txID, reversal.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "reversal date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&memo, "memo", "", "reversal memo")
	return cmd
}
