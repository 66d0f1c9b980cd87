package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/agri-weather-service/internal/models"
	"github.com/kjstillabower/agri-weather-service/internal/validation"
)

// Weather provider names.
const (
	ProviderOpenWeather = "openweather"
	ProviderMock        = "mock"
)

// Cache and durable tier backend names. "none" disables a tier.
const (
	BackendInMemory  = "in_memory"
	BackendRedis     = "redis"
	BackendMemcached = "memcached"
	BackendMongo     = "mongo"
	BackendNone      = "none"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	WeatherProvider   string
	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerRecoveryTimeout  time.Duration

	ForecastCacheDuration time.Duration
	ForecastCoalesce      bool

	CacheBackend string
	FastTTL      time.Duration
	DurableTTL   time.Duration

	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	DurableBackend string
	MongoURI       string
	MongoDatabase  string
	MongoTimeout   time.Duration

	JWTSecret string

	RateLimitRPS   int
	RateLimitBurst int

	HealthWindow         time.Duration
	OverloadThresholdPct int
	DegradedFallbackPct  int

	AlertsScheduleEnabled bool
	AlertsSchedule        string
	AlertsTimezone        string
	AlertsJobTimeout      time.Duration
	AlertsConcurrency     int

	WarmLocations []models.Coordinates
	WarmInterval  time.Duration

	TracingSampleRatio float64
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		Provider string `yaml:"provider"`
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Forecast struct {
		CacheDuration string `yaml:"cache_duration"`
		Coalesce      bool   `yaml:"coalesce"`
	} `yaml:"forecast"`

	Cache struct {
		Backend string `yaml:"backend"`
		TTL     string `yaml:"ttl"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Username string `yaml:"username"`
			DB       int    `yaml:"db"`
			Timeout  string `yaml:"timeout"`
		} `yaml:"redis"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Durable struct {
		Backend  string `yaml:"backend"`
		TTL      string `yaml:"ttl"`
		Database string `yaml:"database"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"durable"`

	Reliability struct {
		RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
		RetryBaseDelay          string `yaml:"retry_base_delay"`
		RetryMaxDelay           string `yaml:"retry_max_delay"`
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
		BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerSuccessThreshold int    `yaml:"breaker_success_threshold"`
		BreakerRecoveryTimeout  string `yaml:"breaker_recovery_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window               string `yaml:"window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedFallbackPct  int    `yaml:"degraded_fallback_pct"`
	} `yaml:"health"`

	Alerts struct {
		Enabled     *bool  `yaml:"enabled"`
		Schedule    string `yaml:"schedule"`
		Timezone    string `yaml:"timezone"`
		JobTimeout  string `yaml:"job_timeout"`
		Concurrency int    `yaml:"concurrency"`
	} `yaml:"alerts"`

	Warming struct {
		Interval  string               `yaml:"interval"`
		Locations []models.Coordinates `yaml:"locations"`
	} `yaml:"warming"`

	Tracing struct {
		SampleRatio *float64 `yaml:"sample_ratio"`
	} `yaml:"tracing"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	JWTSecret     string `yaml:"jwt_secret"`
	RedisPassword string `yaml:"redis_password"`
	MongoURI      string `yaml:"mongo_uri"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml
// under the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(filepath.Join(cwd, "config"))
}

// LoadFrom reads {ENV_NAME}.yaml and secrets.yaml from dir. Secrets come from env first,
// then the secrets file.
func LoadFrom(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherProvider = firstNonEmpty(lowerEnv("WEATHER_PROVIDER"), strings.ToLower(strings.TrimSpace(fc.WeatherAPI.Provider)), ProviderOpenWeather)
	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherProvider == ProviderOpenWeather && cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 3
	}
	cfg.BreakerSuccessThreshold = fc.Reliability.BreakerSuccessThreshold
	if cfg.BreakerSuccessThreshold <= 0 {
		cfg.BreakerSuccessThreshold = 1
	}
	cfg.BreakerRecoveryTimeout = parseDuration(fc.Reliability.BreakerRecoveryTimeout, 60*time.Second)

	cfg.ForecastCacheDuration = parseDuration(fc.Forecast.CacheDuration, 30*time.Minute)
	cfg.ForecastCoalesce = fc.Forecast.Coalesce

	cfg.CacheBackend = firstNonEmpty(lowerEnv("CACHE_BACKEND"), strings.ToLower(strings.TrimSpace(fc.Cache.Backend)), BackendInMemory)
	cfg.FastTTL = parseDuration(fc.Cache.TTL, time.Hour)
	cfg.RedisAddr = firstNonEmpty(strings.TrimSpace(os.Getenv("REDIS_ADDR")), strings.TrimSpace(fc.Cache.Redis.Addr), "localhost:6379")
	cfg.RedisUsername = fc.Cache.Redis.Username
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), sec.RedisPassword)
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)
	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.DurableBackend = firstNonEmpty(lowerEnv("DURABLE_BACKEND"), strings.ToLower(strings.TrimSpace(fc.Durable.Backend)), BackendInMemory)
	cfg.DurableTTL = parseDuration(fc.Durable.TTL, 6*time.Hour)
	cfg.MongoURI = firstNonEmpty(strings.TrimSpace(os.Getenv("MONGO_URI")), sec.MongoURI, "mongodb://localhost:27017")
	cfg.MongoDatabase = firstNonEmpty(strings.TrimSpace(fc.Durable.Database), "agri_weather")
	cfg.MongoTimeout = parseDuration(fc.Durable.Timeout, 2*time.Second)

	cfg.JWTSecret = firstNonEmpty(os.Getenv("JWT_SECRET"), sec.JWTSecret)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedFallbackPct = fc.Health.DegradedFallbackPct
	if cfg.DegradedFallbackPct <= 0 {
		cfg.DegradedFallbackPct = 50
	}

	cfg.AlertsScheduleEnabled = true
	if fc.Alerts.Enabled != nil {
		cfg.AlertsScheduleEnabled = *fc.Alerts.Enabled
	}
	cfg.AlertsSchedule = firstNonEmpty(strings.TrimSpace(fc.Alerts.Schedule), "0 5 * * *")
	cfg.AlertsTimezone = firstNonEmpty(strings.TrimSpace(fc.Alerts.Timezone), "UTC")
	cfg.AlertsJobTimeout = parseDuration(fc.Alerts.JobTimeout, 5*time.Minute)
	cfg.AlertsConcurrency = fc.Alerts.Concurrency
	if cfg.AlertsConcurrency <= 0 {
		cfg.AlertsConcurrency = 4
	}

	cfg.WarmLocations = fc.Warming.Locations
	cfg.WarmInterval = parseDurationOrZero(fc.Warming.Interval, 0)

	cfg.TracingSampleRatio = 0.1
	if fc.Tracing.SampleRatio != nil {
		cfg.TracingSampleRatio = *fc.Tracing.SampleRatio
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func lowerEnv(key string) string {
	return strings.ToLower(strings.TrimSpace(os.Getenv(key)))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks backend names, timeouts and coordinates. RequestTimeout is raised above
// WeatherAPITimeout so a provider timeout can still be turned into a degraded response.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.WeatherProvider {
	case ProviderOpenWeather, ProviderMock:
	default:
		return fmt.Errorf("weather_api.provider must be openweather or mock, got %q", cfg.WeatherProvider)
	}
	switch cfg.CacheBackend {
	case BackendInMemory, BackendRedis, BackendMemcached, BackendNone:
	default:
		return fmt.Errorf("cache.backend must be in_memory, redis, memcached or none, got %q", cfg.CacheBackend)
	}
	switch cfg.DurableBackend {
	case BackendInMemory, BackendMongo, BackendNone:
	default:
		return fmt.Errorf("durable.backend must be in_memory, mongo or none, got %q", cfg.DurableBackend)
	}
	if math.IsNaN(cfg.TracingSampleRatio) || cfg.TracingSampleRatio < 0 || cfg.TracingSampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", cfg.TracingSampleRatio)
	}
	for i, loc := range cfg.WarmLocations {
		if err := validation.ValidateCoordinates(loc.Latitude, loc.Longitude); err != nil {
			return fmt.Errorf("warming.locations[%d]: %w", i, err)
		}
	}
	return nil
}
