package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/kjstillabower/agri-weather-service/internal/alerts"
	"github.com/kjstillabower/agri-weather-service/internal/cache"
	"github.com/kjstillabower/agri-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/agri-weather-service/internal/client"
	"github.com/kjstillabower/agri-weather-service/internal/config"
	"github.com/kjstillabower/agri-weather-service/internal/observability"
	"github.com/kjstillabower/agri-weather-service/internal/service"
	"github.com/kjstillabower/agri-weather-service/internal/store"
)

// app is the wired dependency graph shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	provider  client.WeatherProvider
	breaker   *circuitbreaker.CircuitBreaker
	forecasts *service.ForecastService
	users     store.UserStore
	alerts    *alerts.Generator // nil without a user/alert store
	checks    map[string]func(ctx context.Context) error
	closers   []func(ctx context.Context) error
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, checks: map[string]func(context.Context) error{}}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	a.provider = provider

	a.breaker = circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), int(to))
			logger.Warn("weather provider circuit transition",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	observability.CircuitBreakerState.WithLabelValues("weather_api").Set(float64(circuitbreaker.StateClosed))

	fast, err := a.buildFastTier(ctx)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	var db *mongo.Database
	if cfg.DurableBackend == config.BackendMongo {
		mc, d, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("durable store: %w", err)
		}
		db = d
		a.closers = append(a.closers, mc.Disconnect)
		a.checks["durableStore"] = func(ctx context.Context) error { return mc.Ping(ctx, nil) }
		logger.Info("durable backend: mongo", zap.String("database", cfg.MongoDatabase))
	}

	durable, err := a.buildDurableTier(ctx, db)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	tiers := cache.NewTwoTier(fast, durable, logger,
		cache.WithFastTTL(cfg.FastTTL),
		cache.WithDurableTTL(cfg.DurableTTL),
	)
	a.forecasts = service.NewForecastService(provider, tiers, a.breaker, logger, service.Config{
		CacheDuration: cfg.ForecastCacheDuration,
		DurableTTL:    cfg.DurableTTL,
		FetchTimeout:  cfg.WeatherAPITimeout,
		Coalesce:      cfg.ForecastCoalesce,
	})

	if err := a.buildAlerts(ctx, db); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func buildProvider(cfg *config.Config) (client.WeatherProvider, error) {
	if cfg.WeatherProvider == config.ProviderMock {
		return client.MockProvider{}, nil
	}
	c, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}
	return c, nil
}

func (a *app) buildFastTier(ctx context.Context) (cache.Cache, error) {
	cfg := a.cfg
	switch cfg.CacheBackend {
	case config.BackendRedis:
		rc := cache.NewRedisCache(cache.RedisOptions{
			Addr:         cfg.RedisAddr,
			Username:     cfg.RedisUsername,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  cfg.RedisTimeout,
			ReadTimeout:  cfg.RedisTimeout,
			WriteTimeout: cfg.RedisTimeout,
		})
		if err := rc.Ping(ctx); err != nil {
			// An unreachable fast tier is tolerated; reads fall through to the durable tier.
			a.logger.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
		a.checks["fastCache"] = rc.Ping
		a.logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
		return rc, nil
	case config.BackendMemcached:
		mc := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		a.closers = append(a.closers, func(context.Context) error { return mc.Close() })
		a.checks["fastCache"] = mc.Ping
		a.logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, nil
	case config.BackendNone:
		a.logger.Info("cache backend: none")
		return nil, nil
	default:
		a.logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(), nil
	}
}

func (a *app) buildDurableTier(ctx context.Context, db *mongo.Database) (cache.DurableStore, error) {
	switch a.cfg.DurableBackend {
	case config.BackendMongo:
		fs := store.NewMongoForecastStore(db, store.DefaultGuardConfig())
		if err := fs.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("forecast indexes: %w", err)
		}
		a.checks["durableGuard"] = func(context.Context) error {
			if fs.State() == gobreaker.StateOpen {
				return gobreaker.ErrOpenState
			}
			return nil
		}
		return fs, nil
	case config.BackendInMemory:
		a.logger.Info("durable backend: in_memory")
		return store.NewMemoryForecastStore(nil), nil
	default:
		a.logger.Info("durable backend: none")
		return nil, nil
	}
}

func (a *app) buildAlerts(ctx context.Context, db *mongo.Database) error {
	var alertStore store.AlertStore
	switch a.cfg.DurableBackend {
	case config.BackendMongo:
		guard := store.DefaultGuardConfig()
		ms := store.NewMongoAlertStore(db, guard)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("alert indexes: %w", err)
		}
		a.users = store.NewMongoUserStore(db, guard)
		alertStore = ms
	default:
		a.users = store.NewMemoryUserStore()
		alertStore = store.NewMemoryAlertStore()
	}
	a.alerts = alerts.NewGenerator(a.forecasts, a.users, alertStore, a.logger)
	return nil
}

// close releases backends in reverse order of creation.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Error("close backend", zap.Error(err))
		}
	}
	a.closers = nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
