package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/firewatch-service/internal/config"
	httphandler "github.com/kjstillabower/firewatch-service/internal/http"
	"github.com/kjstillabower/firewatch-service/internal/lifecycle"
	"github.com/kjstillabower/firewatch-service/internal/observability"
	"github.com/kjstillabower/firewatch-service/internal/service"
)

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "firewatch",
		Short: "Wildfire watch dashboard data service",
		Long: `firewatch keeps fire detections, wind and air quality for a watched location
fresh from NASA FIRMS and the National Weather Service, falling back to fixed
values whenever an upstream is unavailable.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding {ENV_NAME}.yaml and secrets.yaml (default ./config)")

	loadConfig := func() (*config.Config, error) {
		if configDir != "" {
			return config.LoadDir(configDir)
		}
		return config.Load()
	}

	rootCmd.AddCommand(newServeCmd(loadConfig), newSnapshotCmd(loadConfig))
	return rootCmd
}

func newServeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with a background refresh schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := observability.NewLogger()
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := loadConfig()
			if err != nil {
				logger.Error("config", zap.Error(err))
				return err
			}
			return serve(cfg, logger)
		},
	}
}

func newSnapshotCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Run one refresh pass and print the dashboard snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := observability.NewLogger()
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RefreshTimeout)
			defer cancel()
			return writeSnapshot(ctx, cmd.OutOrStdout(), a.pipeline, pretty)
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	return cmd
}

// writeSnapshot refreshes the pipeline once and encodes the snapshot to w.
func writeSnapshot(ctx context.Context, w io.Writer, p *service.Pipeline, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(p.Refresh(ctx)); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	healthConfig := &httphandler.HealthConfig{
		Rates:       a.tracker,
		Sources:     []string{service.SourceDetections, service.SourceWind, service.SourceAirQuality},
		Window:      cfg.HealthWindow,
		DegradedPct: cfg.HealthDegradedPct,
		LastRefresh: a.warmer.LastRun,
	}
	if a.memcached != nil {
		healthConfig.CachePing = a.memcached.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(httphandler.NewHandler(a.pipeline, healthConfig, logger), httphandler.RouterConfig{
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The first pass runs before readiness so /health reports starting until data exists.
	go func() {
		if err := a.warmer.Start(ctx, cfg.RefreshInterval); err != nil {
			logger.Error("refresh scheduler", zap.Error(err))
			return
		}
		lifecycle.SetReady(true)
		logger.Info("initial refresh complete, ready")
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("server", zap.Error(err))
		return err
	}
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	a.warmer.Stop()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
