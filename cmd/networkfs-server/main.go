// networkfs-server serves the directory service the networkfs client mounts.
//
// Features:
// - Per-credential namespaces of files and directories
// - Fixed and XDR response encodings, negotiated per request
// - Memory, Badger and PostgreSQL stores
// - Prometheus metrics and structured logging (zap)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/api"
	"github.com/fruitsalade/networkfs/internal/config"
	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/internal/metrics"
	"github.com/fruitsalade/networkfs/internal/store"
	"github.com/fruitsalade/networkfs/internal/store/badger"
	"github.com/fruitsalade/networkfs/internal/store/memory"
	"github.com/fruitsalade/networkfs/internal/store/postgres"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "networkfs-server",
		Short:         "networkfs directory service",
		Version:       api.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logging.Sync()
			return serve(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultPath()+")")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logging.Sync()
			if cfg.Server.Store != "postgres" {
				return fmt.Errorf("store %q has no migrations", cfg.Server.Store)
			}
			st, err := openStore(cmd.Context(), cfg.Server)
			if err != nil {
				return err
			}
			return st.Close()
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.Logging.Logger()); err != nil {
		return nil, fmt.Errorf("logging init: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured store. PostgreSQL is migrated on open.
func openStore(ctx context.Context, cfg config.ServerConfig) (store.Store, error) {
	switch cfg.Store {
	case "badger":
		logging.Info("opening badger store", zap.String("path", cfg.BadgerPath))
		return badger.Open(cfg.BadgerPath)
	case "postgres":
		logging.Info("connecting to PostgreSQL...")
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return pg, nil
	default:
		logging.Warn("using in-memory store; entries are lost on exit")
		return memory.New(), nil
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logging.Info("networkfs server starting...",
		zap.String("version", api.Version),
		zap.String("listen", cfg.Server.ListenAddr),
		zap.String("metrics", cfg.Server.MetricsAddr),
		zap.String("store", cfg.Server.Store))

	st, err := openStore(ctx, cfg.Server)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := api.NewServer(st,
		api.WithLogger(logging.Named("api")),
		api.WithXDRListingLimit(cfg.Server.XDRListingLimit),
	)

	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsServer = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metrics.Handler()}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.Server.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: srv.Handler()}
	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening", zap.String("addr", cfg.Server.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logging.Info("server stopped")
	return nil
}
