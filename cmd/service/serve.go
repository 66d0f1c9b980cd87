package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/agri-weather-service/internal/alerts"
	"github.com/kjstillabower/agri-weather-service/internal/cache"
	httphandler "github.com/kjstillabower/agri-weather-service/internal/http"
	"github.com/kjstillabower/agri-weather-service/internal/lifecycle"
	"github.com/kjstillabower/agri-weather-service/internal/observability"
	"github.com/kjstillabower/agri-weather-service/internal/service"
)

const (
	initialWarmTimeout   = 30 * time.Second
	inFlightPollInterval = 50 * time.Millisecond
)

func newServeCommand(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, cache warmer and alert scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), env)
		},
	}
}

func serve(ctx context.Context, env *cliEnv) error {
	cfg, logger := env.cfg, env.logger

	shutdownTracing := observability.InitTracing(cfg.TracingSampleRatio)
	defer func() {
		if err := observability.FlushTelemetry(context.Background(), logger, shutdownTracing); err != nil {
			logger.Error("telemetry flush", zap.Error(err))
		}
	}()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := withTimeout(ctx, cfg.WeatherAPITimeout, a.provider.ValidateAPIKey); err != nil {
		// Keep serving: requests degrade to cached or fallback forecasts.
		logger.Error("weather provider API key check failed", zap.String("provider", cfg.WeatherProvider), zap.Error(err))
	}

	observability.RegisterTrafficGauges(cfg.HealthWindow)
	warmKeys := make([]string, len(cfg.WarmLocations))
	for i, loc := range cfg.WarmLocations {
		warmKeys[i] = service.LocationKey(loc.Latitude, loc.Longitude)
	}
	observability.SetTrackedLocations(warmKeys)

	bgCtx, cancelBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBackground()
	if len(cfg.WarmLocations) > 0 {
		warmer := cache.NewCacheWarmer(a.forecasts, logger)
		if err := withTimeout(ctx, initialWarmTimeout, func(ctx context.Context) error {
			return warmer.Warm(ctx, cfg.WarmLocations)
		}); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(bgCtx, cfg.WarmLocations, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	var scheduler *alerts.Scheduler
	if cfg.AlertsScheduleEnabled {
		scheduler, err = alerts.NewScheduler(a.alerts, a.users, logger, alerts.SchedulerConfig{
			Schedule:    cfg.AlertsSchedule,
			Timezone:    cfg.AlertsTimezone,
			JobTimeout:  cfg.AlertsJobTimeout,
			Concurrency: cfg.AlertsConcurrency,
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		logger.Info("alert scheduler started",
			zap.String("schedule", cfg.AlertsSchedule),
			zap.String("timezone", cfg.AlertsTimezone))
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(a.forecasts, a.alerts, &httphandler.HealthConfig{
		Window:               cfg.HealthWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedFallbackPct:  cfg.DegradedFallbackPct,
		ProviderState:        a.breaker.State,
		Checks:               a.checks,
		Version:              version,
	}, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		JWTSecret:      []byte(cfg.JWTSecret),
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		lifecycle.MarkStarted(time.Now())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightPollInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	cancelBackground()
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("alert scheduler stop", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	return nil
}
