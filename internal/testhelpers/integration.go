//go:build integration
// +build integration

// Package testhelpers assembles live backends for integration tests.
package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/agri-weather-service/internal/cache"
	"github.com/kjstillabower/agri-weather-service/internal/client"
	"github.com/kjstillabower/agri-weather-service/internal/service"
	"github.com/kjstillabower/agri-weather-service/internal/store"
)

// IntegrationConfig holds live backend locations read from the environment.
type IntegrationConfig struct {
	APIKey    string
	APIURL    string
	RedisAddr string
	MongoURI  string
}

// GetIntegrationConfig loads integration settings. Skips the test when WEATHER_API_KEY is unset.
func GetIntegrationConfig(t *testing.T) IntegrationConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationConfig{
		APIKey:    apiKey,
		APIURL:    envOr("WEATHER_API_URL", "https://api.openweathermap.org/data/2.5"),
		RedisAddr: envOr("REDIS_ADDR", "localhost:6379"),
		MongoURI:  envOr("MONGO_URI", "mongodb://localhost:27017"),
	}
}

// SetupForecastService wires the live provider with Redis and Mongo tiers. An unreachable
// backend is logged and left out, so the test still covers whatever is running.
func SetupForecastService(t *testing.T, cfg IntegrationConfig) *service.ForecastService {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	provider, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	var fast cache.Cache
	rc := cache.NewRedisCache(cache.RedisOptions{Addr: cfg.RedisAddr, DialTimeout: 500 * time.Millisecond})
	if err := rc.Ping(ctx); err != nil {
		t.Logf("redis not reachable (%v), using in-memory fast tier", err)
		_ = rc.Close()
		fast = cache.NewInMemoryCache()
	} else {
		t.Cleanup(func() { _ = rc.Close() })
		fast = rc
	}

	var durable cache.DurableStore
	mc, db, err := store.Connect(ctx, cfg.MongoURI, "agri_weather_it_"+uuid.NewString()[:8], 2*time.Second)
	if err != nil {
		t.Logf("mongo not reachable (%v), running without durable tier", err)
	} else {
		t.Cleanup(func() {
			_ = db.Drop(context.Background())
			_ = mc.Disconnect(context.Background())
		})
		fs := store.NewMongoForecastStore(db, store.DefaultGuardConfig())
		if err := fs.EnsureIndexes(ctx); err != nil {
			t.Fatalf("EnsureIndexes() error = %v", err)
		}
		durable = fs
	}

	return service.NewForecastService(provider, cache.NewTwoTier(fast, durable, logger), nil, logger, service.Config{})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
