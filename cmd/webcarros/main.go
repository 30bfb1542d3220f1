package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/app"
	"github.com/vindennt/webcarros/internal/backend/sqlite"
	"github.com/vindennt/webcarros/internal/backend/sqlite/migrations"
	"github.com/vindennt/webcarros/internal/config"
	"github.com/vindennt/webcarros/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger. The caller must call
// logger.Sync when done.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Logs.Style, cfg.Logs.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return cfg, logger, nil
}

var rootCmd = &cobra.Command{
	Use:          "webcarros",
	Short:        "Used-car marketplace service",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations to the local document store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		db, err := sqlite.OpenConnection(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()

		statusOnly, _ := cmd.Flags().GetBool("status")
		if !statusOnly {
			if err := migrations.Up(db); err != nil {
				return err
			}
		}

		st, err := migrations.CurrentStatus(db)
		if err != nil {
			return err
		}
		fmt.Printf("Database: %s\n", cfg.SQLitePath)
		fmt.Printf("Version:  %d of %d\n", st.Version, st.Latest)
		if st.Dirty {
			fmt.Println("State:    dirty (a previous migration failed)")
		} else if st.Pending() {
			fmt.Println("State:    pending migrations")
		} else {
			fmt.Println("State:    up to date")
		}
		return nil
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := run(cmd.Context(), cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}

// run serves HTTP until the listener fails or the process is signalled.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing backend", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info("server listening",
		zap.String("addr", l.Addr().String()),
		zap.String("backend", cfg.Backend),
		zap.String("blob_store", cfg.Blobs.Store),
	)

	s := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to serve", zap.Error(err))
		}
	case sig := <-sigs:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	// Forces close after 10 seconds
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}

func init() {
	migrateCmd.Flags().Bool("status", false, "Only report the schema version")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
