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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nebulalabs/nebula-pair/internal/config"
	"github.com/nebulalabs/nebula-pair/internal/creds"
	"github.com/nebulalabs/nebula-pair/internal/httpapi"
	"github.com/nebulalabs/nebula-pair/internal/pairing"
	"github.com/nebulalabs/nebula-pair/internal/wa"
	"github.com/nebulalabs/nebula-pair/internal/workspace"
)

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pairing gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "nebula-pair.yaml", "path to config file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	spaces, err := workspace.NewStore(cfg.WorkDir)
	if err != nil {
		return err
	}
	spaces.Sweep()

	codec := creds.NewCodec(cfg.TokenMarker)
	deliverer := pairing.NewDeliverer(cfg.BotName)
	timeouts := pairing.Timeouts{
		QRWait:    cfg.Timeouts.QRWait.Std(),
		Settle:    cfg.Timeouts.Settle.Std(),
		Teardown:  cfg.Timeouts.Teardown.Std(),
		Retention: cfg.Timeouts.Retention.Std(),
	}
	registry := pairing.NewRegistry(wa.NewAdapter(), spaces, codec, deliverer, timeouts)
	defer registry.Close()

	handler := httpapi.NewServer(registry, cfg.BotName, Version, cfg.Rate.RPM, cfg.Rate.Burst)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("pairing gateway listening", "addr", cfg.Listen, "bot", cfg.BotName, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
