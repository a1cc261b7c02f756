package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcadapter "github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/grpc"
	httpadapter "github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/http"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/repository/cache"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/repository/sqlstore"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/app"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/config"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 1. Setup Database
	if err := sqlstore.MigrateUp(cfg.Database.Driver, cfg.Database.DSN); err != nil {
		return err
	}
	db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database ready", "driver", cfg.Database.Driver)

	// 2. Initialize Repositories, securities behind the read-through cache
	repos := sqlstore.NewRepositories(db)
	repos.Securities = cache.NewSecurityRepository(repos.Securities,
		cfg.Cache.SecurityTTL, cfg.Cache.CleanupInterval, sqlstore.InTransaction)

	// 3. Initialize Services (Use Cases)
	services := app.New(repos, domain.Currency(cfg.Ledger.BaseCurrency), logger)

	// 4. Start gRPC and HTTP servers
	grpcServer, healthServer := grpcadapter.NewGRPCServer(grpcadapter.NewServer(services), cfg.Server.APIToken, logger)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	var httpServer *http.Server
	if cfg.Server.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           httpadapter.NewRouter(services.Ledger, services.QSBS, cfg.Server.APIToken, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	if httpServer != nil {
		g.Go(func() error {
			logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		healthServer.SetServingStatus(grpcadapter.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

		var shutdownErr error
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			shutdownErr = httpServer.Shutdown(shutdownCtx)
		}
		grpcServer.GracefulStop()
		return shutdownErr
	})

	return g.Wait()
}
