package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sealpost/sealpost/internal/api"
	"github.com/sealpost/sealpost/internal/config"
	"github.com/sealpost/sealpost/internal/contentstore"
	"github.com/sealpost/sealpost/internal/ledger"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(flags *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger and blob store daemon",
		Long: `Run the ledger and blob store over HTTP.

State lives in two bbolt files under Server.DataDir: ledger.db holds the
accepted messages and key records and is replayed on start; blobs.db holds
content-addressed envelopes and key bundles. Prometheus metrics are served
at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config file '%v': %v", flags.ConfigFile, err)
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, nil)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides Server.Listen)")
	return cmd
}

// runServer serves until ctx is done. ready, if non-nil, receives the
// bound address once the listener is up.
func runServer(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	logger := cfg.Logger(os.Stderr)

	if err := os.MkdirAll(cfg.Server.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ledgerStore, err := ledger.OpenBoltStore(filepath.Join(cfg.Server.DataDir, "ledger.db"))
	if err != nil {
		return err
	}
	defer ledgerStore.Close()

	blobs, err := contentstore.OpenBoltStore(filepath.Join(cfg.Server.DataDir, "blobs.db"))
	if err != nil {
		return err
	}
	defer blobs.Close()

	reg := prometheus.NewRegistry()
	metrics, err := ledger.NewMetrics(reg)
	if err != nil {
		return err
	}

	l, err := ledger.New(
		ledger.WithStore(ledgerStore),
		ledger.WithMinInterval(cfg.Server.MinInterval),
		ledger.WithMetrics(metrics),
		ledger.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer l.Close()

	srv, err := api.NewServer(l, blobs,
		api.WithServerAPIKey(cfg.Server.APIKey),
		api.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		api.WithMaxBlobSize(cfg.Server.MaxBlobSize),
		api.WithRegistry(reg),
		api.WithServerLogger(logger),
	)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return err
	}
	logger.Info("sealpost daemon listening", "addr", ln.Addr().String(), "data_dir", cfg.Server.DataDir)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
