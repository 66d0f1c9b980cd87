package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/agri-weather-service/internal/models"
	"github.com/kjstillabower/agri-weather-service/internal/observability"
)

// ForecastFetcher is implemented by the service layer to fetch (and thereby cache) a forecast.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type ForecastFetcher interface {
	GetForecast(ctx context.Context, coords models.Coordinates) (models.ForecastResult, error)
}

// defaultWarmConcurrency bounds simultaneous provider calls during a warm pass.
const defaultWarmConcurrency = 4

// CacheWarmer warms the cache by prefetching forecasts for tracked locations.
type CacheWarmer struct {
	fetcher     ForecastFetcher
	logger      *zap.Logger
	concurrency int
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher ForecastFetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, logger: logger, concurrency: defaultWarmConcurrency}
}

// Warm fetches forecasts for each location concurrently. A location that could only be served
// degraded (stale or fallback) counts as a failure. Returns the joined failures.
func (w *CacheWarmer) Warm(ctx context.Context, locations []models.Coordinates) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("locations", len(locations)))
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(w.concurrency)
	for _, loc := range locations {
		loc := loc
		g.Go(func() error {
			res, err := w.fetcher.GetForecast(ctx, loc)
			if err == nil && (res.IsFallback || res.IsStale) {
				err = fmt.Errorf("served %s data", res.Origin)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %.4f,%.4f: %w", loc.Latitude, loc.Longitude, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("locations", len(locations)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, locations []models.Coordinates, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
