package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kjstillabower/agri-weather-service/internal/advisory"
	"github.com/kjstillabower/agri-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/agri-weather-service/internal/client"
	"github.com/kjstillabower/agri-weather-service/internal/models"
	"github.com/kjstillabower/agri-weather-service/internal/observability"
	"github.com/kjstillabower/agri-weather-service/internal/timeout"
	"github.com/kjstillabower/agri-weather-service/internal/traffic"
	"github.com/kjstillabower/agri-weather-service/internal/validation"
)

// ErrInvalidCoordinates is the only error GetForecast returns.
var ErrInvalidCoordinates = validation.ErrInvalidCoordinates

// ForecastCache is the cache surface the service needs. Implementations absorb backend
// failures: a failed read is a miss and a failed write is skipped.
type ForecastCache interface {
	Get(ctx context.Context, key string) (models.ForecastResult, bool)
	Set(ctx context.Context, key string, value models.ForecastResult)
	Invalidate(ctx context.Context, key string)
}

// Defaults for Config.
const (
	DefaultCacheDuration = 30 * time.Minute
	DefaultDurableTTL    = 6 * time.Hour
	DefaultFetchTimeout  = 10 * time.Second
)

// degradedReadTimeout bounds the cache lookup made while serving a degraded forecast.
const degradedReadTimeout = 2 * time.Second

// Config tunes ForecastService.
type Config struct {
	// CacheDuration is the freshness window. An entry whose age reaches it is stale.
	CacheDuration time.Duration
	// DurableTTL sets ExpiresAt on stored results, bounding how long stale data stays servable.
	DurableTTL time.Duration
	// FetchTimeout bounds one provider call.
	FetchTimeout time.Duration
	// Coalesce shares one provider call between concurrent misses for a key.
	Coalesce bool
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// ForecastService resolves forecasts through the cache, the guarded provider and, when both
// fail, stale or static fallback data. It never fails for a valid location.
type ForecastService struct {
	provider        client.WeatherProvider
	cache           ForecastCache
	breaker         *circuitbreaker.CircuitBreaker
	cfg             Config
	logger          *zap.Logger
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // nil when coalescing is off
}

// NewForecastService wires the orchestrator. A nil breaker gets a default one.
func NewForecastService(provider client.WeatherProvider, cache ForecastCache, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger, cfg Config) *ForecastService {
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = DefaultCacheDuration
	}
	if cfg.DurableTTL <= 0 {
		cfg.DurableTTL = DefaultDurableTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.Config{Now: cfg.Now})
	}
	var coalescer *requestCoalescer
	if cfg.Coalesce {
		coalescer = &requestCoalescer{}
	}
	return &ForecastService{
		provider:        provider,
		cache:           cache,
		breaker:         breaker,
		cfg:             cfg,
		logger:          logger,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// LocationKey rounds both coordinates to 4 decimal places (about 11 m) so nearby requests
// share a cache entry. Negative zero is normalised so -0.00001 and 0.00001 agree.
func LocationKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f_%.4f", round4(lat), round4(lon))
}

func round4(v float64) float64 {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		return 0
	}
	return r
}

// GetForecast returns the best available forecast for coords. Only invalid coordinates
// produce an error; every other failure degrades to stale or fallback data.
func (s *ForecastService) GetForecast(ctx context.Context, coords models.Coordinates) (models.ForecastResult, error) {
	if err := validation.ValidateCoordinates(coords.Latitude, coords.Longitude); err != nil {
		return models.ForecastResult{}, err
	}

	key := LocationKey(coords.Latitude, coords.Longitude)
	start := time.Now()
	logger := observability.LoggerFrom(ctx, s.logger)
	observability.RecordForecastQuery(key)

	ctx, span := observability.Tracer().Start(ctx, "forecast.get")
	defer span.End()
	span.SetAttributes(attribute.String("location.key", key))

	if cached, ok := s.cache.Get(ctx, key); ok && s.isFresh(cached) {
		cached.Origin = models.OriginCache
		s.served(ctx, cached)
		logger.Debug("forecast served", zap.String("location_key", key), zap.String("source", cached.Origin), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}

	concurrent := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.RecordHit(key)
	if concurrent > 1 {
		loc := observability.MetricLocationLabel(key)
		observability.CacheStampedeDetectedTotal.WithLabelValues(loc).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(loc).Observe(float64(concurrent))
		logger.Debug("concurrent cache miss", zap.String("location_key", key), zap.Int("concurrent", concurrent))
	}

	resolve := func(ctx context.Context) (models.ForecastResult, error) {
		return circuitbreaker.Execute(ctx, s.breaker,
			func(ctx context.Context) (models.ForecastResult, error) {
				return s.fetchLive(ctx, key, coords)
			},
			func(ctx context.Context, cause error) (models.ForecastResult, error) {
				return s.resolveDegraded(ctx, key, coords, cause), nil
			},
		)
	}

	var (
		result models.ForecastResult
		err    error
	)
	if s.coalescer != nil {
		var shared bool
		result, shared, err = s.coalescer.Do(ctx, key, resolve)
		if shared {
			observability.RequestCoalescingHitsTotal.WithLabelValues(observability.MetricLocationLabel(key)).Inc()
		}
	} else {
		result, err = resolve(ctx)
	}
	if err != nil {
		// Only reachable when the caller's context ends while waiting on a shared call.
		result = s.resolveDegraded(ctx, key, coords, err)
	}

	s.served(ctx, result)
	logger.Debug("forecast served",
		zap.String("location_key", key),
		zap.String("source", result.Origin),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// InvalidateCache drops the entry for coords from both tiers. Best effort; invalid
// coordinates are ignored.
func (s *ForecastService) InvalidateCache(ctx context.Context, coords models.Coordinates) {
	if err := validation.ValidateCoordinates(coords.Latitude, coords.Longitude); err != nil {
		return
	}
	key := LocationKey(coords.Latitude, coords.Longitude)
	s.cache.Invalidate(ctx, key)
	observability.LoggerFrom(ctx, s.logger).Info("forecast cache invalidated", zap.String("location_key", key))
}

func (s *ForecastService) isFresh(r models.ForecastResult) bool {
	return s.cfg.Now().Sub(r.CachedAt) < s.cfg.CacheDuration
}

// fetchLive calls the provider under the fetch timeout, derives advisories and stores the result.
func (s *ForecastService) fetchLive(ctx context.Context, key string, coords models.Coordinates) (models.ForecastResult, error) {
	raw, err := timeout.Run(ctx, s.cfg.FetchTimeout, "weather provider timed out", func(ctx context.Context) (models.ProviderForecast, error) {
		ctx, span := observability.Tracer().Start(ctx, "provider.fetch_forecast")
		defer span.End()
		pf, err := s.provider.FetchForecast(ctx, coords.Latitude, coords.Longitude)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(client.CategorizeError(err)))
		}
		return pf, err
	})
	if err != nil {
		return models.ForecastResult{}, err
	}

	result := s.buildResult(key, coords, raw)
	s.cache.Set(ctx, key, result)
	return result, nil
}

func (s *ForecastService) buildResult(key string, coords models.Coordinates, raw models.ProviderForecast) models.ForecastResult {
	now := s.cfg.Now()
	sorted := advisory.SortForecast(raw.Forecast)
	derived := advisory.Derive(raw.Current, sorted, now)
	return models.ForecastResult{
		LocationKey:            key,
		Latitude:               coords.Latitude,
		Longitude:              coords.Longitude,
		Current:                raw.Current,
		Forecast:               sorted,
		FarmingRecommendations: derived.FarmingRecommendations,
		AgriculturalAdvisory:   derived.AgriculturalAdvisory,
		CropPlanning:           derived.CropPlanning,
		CachedAt:               now,
		ExpiresAt:              now.Add(s.cfg.DurableTTL),
		Origin:                 models.OriginLive,
	}
}

// resolveDegraded serves the last known entry for key, or static data when there is none.
func (s *ForecastService) resolveDegraded(ctx context.Context, key string, coords models.Coordinates, cause error) models.ForecastResult {
	logger := observability.LoggerFrom(ctx, s.logger)
	category := client.CategorizeError(cause)
	switch {
	case errors.Is(cause, circuitbreaker.ErrOpen):
		category = client.ErrorCategoryCircuitOpen
	case ctx.Err() != nil:
		// Caller went away; the provider may be fine.
	default:
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(category)).Inc()
	}

	fields := []zap.Field{
		zap.String("location_key", key),
		zap.String("category", string(category)),
		zap.Error(cause),
	}
	switch {
	case errors.Is(cause, client.ErrRateLimited):
		logger.Warn("weather provider rate limit reached; serving degraded forecast", fields...)
	case client.IsOperatorError(cause):
		logger.Error("weather provider needs operator attention; serving degraded forecast", fields...)
	default:
		logger.Warn("weather provider unavailable; serving degraded forecast", fields...)
	}

	// Read again: a concurrent request may have refreshed the entry meanwhile. The read
	// outlives a cancelled caller so a stale entry still beats static data.
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), degradedReadTimeout)
	defer cancel()
	if cached, ok := s.cache.Get(readCtx, key); ok {
		if s.isFresh(cached) {
			cached.Origin = models.OriginCache
			return cached
		}
		cached.Origin = models.OriginStale
		cached.IsStale = true
		cached.DegradedReason = string(category)
		cached.Warnings = append(append([]string(nil), cached.Warnings...),
			fmt.Sprintf("Live weather data is unavailable; showing forecast from %s", cached.CachedAt.UTC().Format(time.RFC3339)))
		return cached
	}

	fb := FallbackForecast(coords, s.cfg.Now())
	fb.LocationKey = key
	fb.DegradedReason = string(category)
	return fb
}

func (s *ForecastService) served(ctx context.Context, r models.ForecastResult) {
	observability.ForecastsServedTotal.WithLabelValues(r.Origin).Inc()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("forecast.source", r.Origin))
	switch r.Origin {
	case models.OriginStale, models.OriginFallback:
		traffic.RecordDegraded()
	default:
		traffic.RecordLive()
	}
}
