package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/repository/cache"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/repository/memory"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/repository/sqlstore"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/app"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/config"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
)

// cli carries the global flags and the backend opener shared by every command
type cli struct {
	configPath string
	memory     bool
	logLevel   string

	// open returns the services and a release func; tests replace it
	open func(ctx context.Context) (*app.Services, func() error, error)
	// today is the default trade and report date
	today func() time.Time
}

func newCLI() *cli {
	c := &cli{today: time.Now}
	c.open = c.openBackend
	return c
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Family office ledger and tax lot administration",
		Long: `ledgerctl operates the double-entry ledger and its tax lots directly.

It provides commands for:
  - Running schema migrations
  - Creating accounts and securities
  - Recording purchases and sales with lot selection and wash-sale handling
  - Reversing posted transactions and reading balances
  - Applying splits, spinoffs, mergers and symbol changes
  - Reporting QSBS qualification`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to the YAML config file")
	root.PersistentFlags().BoolVar(&c.memory, "memory", false, "use a throwaway in-memory store")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		c.migrateCmd(),
		c.accountCmd(),
		c.securityCmd(),
		c.buyCmd(),
		c.sellCmd(),
		c.washSaleCmd(),
		c.balanceCmd(),
		c.reverseCmd(),
		c.splitCmd(),
		c.spinoffCmd(),
		c.mergerCmd(),
		c.renameCmd(),
		c.qsbsCmd(),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openBackend builds the services over the configured database, or over a
// fresh in-memory store with --memory
func (c *cli) openBackend(ctx context.Context) (*app.Services, func() error, error) {
	logger := logging.New(logging.Options{Level: c.logLevel, Writer: os.Stderr})
	if c.memory {
		return app.New(memory.NewRepositories(), domain.USD, logger), func() error { return nil }, nil
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	repos := sqlstore.NewRepositories(db)
	repos.Securities = cache.NewSecurityRepository(repos.Securities,
		cfg.Cache.SecurityTTL, cfg.Cache.CleanupInterval, sqlstore.InTransaction)
	return app.New(repos, domain.Currency(cfg.Ledger.BaseCurrency), logger), db.Close, nil
}

// withServices opens the backend for the duration of fn
func (c *cli) withServices(cmd *cobra.Command, fn func(ctx context.Context, s *app.Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	services, release, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, services)
}

func (c *cli) dateOr(value string) (time.Time, error) {
	if value == "" {
		return domain.DateOf(c.today()), nil
	}
	return domain.ParseDate(value)
}

// resolveSecurity accepts a security id or a symbol
func resolveSecurity(ctx context.Context, s *app.Services, ref string) (*domain.Security, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.Repos.Securities.GetByID(ctx, id)
	}
	return s.Repos.Securities.GetBySymbol(ctx, ref)
}

func parseID(kind, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", kind, value)
	}
	return id, nil
}

func parseIDs(kind string, values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := parseID(kind, strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
