package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/repository/sqlstore"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/app"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Run database schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.memory {
				return errors.New("migrate needs a database; drop --memory")
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			out := cmd.OutOrStdout()
			switch direction {
			case "up":
				err = sqlstore.MigrateUp(cfg.Database.Driver, cfg.Database.DSN)
			case "down":
				err = sqlstore.MigrateDown(cfg.Database.Driver, cfg.Database.DSN)
			}
			if err != nil {
				return err
			}
			version, dirty, err := sqlstore.MigrationVersion(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func (c *cli) accountCmd() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage ledger accounts",
	}

	var name, accountType, currency, entity string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				cur, err := domain.ParseCurrency(currency)
				if err != nil {
					return err
				}
				account := &domain.Account{
					ID:       uuid.New(),
					Name:     name,
					Type:     domain.AccountType(strings.ToUpper(accountType)),
					Currency: cur,
					IsActive: true,
				}
				if entity != "" {
					if account.EntityID, err = parseID("entity", entity); err != nil {
						return err
					}
				}
				if err := account.Validate(); err != nil {
					return err
				}
				if err := s.Repos.Accounts.Create(ctx, account); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created account %q %s\n", account.Name, account.ID)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "account name")
	addCmd.Flags().StringVar(&accountType, "type", string(domain.AccountTypeAsset), "ASSET, LIABILITY, EQUITY, INCOME or EXPENSE")
	addCmd.Flags().StringVar(&currency, "currency", "USD", "account currency")
	addCmd.Flags().StringVar(&entity, "entity", "", "owning entity id")
	_ = addCmd.MarkFlagRequired("name")

	var listEntity string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				var entityID *uuid.UUID
				if listEntity != "" {
					id, err := parseID("entity", listEntity)
					if err != nil {
						return err
					}
					entityID = &id
				}
				accounts, err := s.Repos.Accounts.List(ctx, entityID)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tTYPE\tCURRENCY")
				for _, a := range accounts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Type, a.Currency)
				}
				return w.Flush()
			})
		},
	}
	listCmd.Flags().StringVar(&listEntity, "entity", "", "only accounts of this entity")

	accountCmd.AddCommand(addCmd, listCmd)
	return accountCmd
}

func (c *cli) securityCmd() *cobra.Command {
	securityCmd := &cobra.Command{
		Use:   "security",
		Short: "Manage securities",
	}

	var symbol, name, issuer, assetClass string
	var qsbsEligible bool
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a security",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd, func(ctx context.Context, s *app.Services) error {
				security := &domain.Security{
					ID:             uuid.New(),
					Symbol:         strings.ToUpper(strings.TrimSpace(symbol)),
					Name:           name,
					Issuer:         issuer,
					AssetClass:     domain.AssetClass(strings.ToUpper(assetClass)),
					IsQSBSEligible: qsbsEligible,
					IsActive:       true,
				}
				if err := security.Validate(); err != nil {
					return err
				}
				if err := s.Repos.Securities.Create(ctx, security); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created security %s %s\n", security.Symbol, security.ID)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&symbol, "symbol", "", "ticker symbol")
	addCmd.Flags().StringVar(&name, "name", "", "security name")
	addCmd.Flags().StringVar(&issuer, "issuer", "", "issuing company, defaults to the name")
	addCmd.Flags().StringVar(&assetClass, "asset-class", string(domain.AssetClassEquity), "asset class")
	addCmd.Flags().BoolVar(&qsbsEligible, "qsbs", false, "mark as QSBS eligible")
	_ = addCmd.MarkFlagRequired("symbol")
	_ = addCmd.MarkFlagRequired("name")

	securityCmd.AddCommand(addCmd)
	return securityCmd
}
