package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/serroba/online-docs/internal/api"
	"github.com/serroba/online-docs/internal/config"
	"github.com/serroba/online-docs/internal/relay"
	"github.com/serroba/online-docs/internal/storage"
	"github.com/serroba/online-docs/internal/ws"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var configPath string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the collaboration relay",
		Long:  `Serve the websocket relay and the document HTTP API until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			return serve(cmd.Context(), cfg)
		},
	}

	serve.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	return serve
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	hub := ws.NewHub()

	registry, err := relay.NewRegistry(relay.RegistryConfig{
		Hub:         hub,
		Audit:       storage.NewMemoryStore(),
		Engine:      cfg.Engine,
		HistorySize: cfg.Relay.HistorySize,
		Capacity:    cfg.Relay.Capacity,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(api.ServerConfig{
		Registry: registry,
		Hub:      hub,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", "addr", cfg.Server.Addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		return registry.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
