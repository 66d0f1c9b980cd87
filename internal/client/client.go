package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kjstillabower/agri-weather-service/internal/models"
	"github.com/kjstillabower/agri-weather-service/internal/observability"
)

// WeatherProvider fetches raw current conditions and a short daily forecast.
type WeatherProvider interface {
	FetchForecast(ctx context.Context, lat, lon float64) (models.ProviderForecast, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrLocationNotFound   = errors.New("location not found")
	ErrUpstreamFailure    = errors.New("upstream failure")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("weather service unavailable")
)

// ForecastDays is the number of future days kept from the provider forecast.
const ForecastDays = 3

// OpenWeatherClient talks to the OpenWeather 2.5 API (/weather and /forecast).
type OpenWeatherClient struct {
	http           *resty.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	now            func() time.Time
}

// NewOpenWeatherClient builds a client that makes a single attempt per call.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, apiURL, timeout, 1, 100*time.Millisecond, 2*time.Second)
}

// NewOpenWeatherClientWithRetry builds a client that retries transient failures with
// jittered exponential backoff. Auth and rate-limit failures are never retried.
func NewOpenWeatherClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	rc := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetQueryParam("appid", apiKey).
		SetQueryParam("units", "metric")

	return &OpenWeatherClient{
		http:           rc,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		now:            time.Now,
	}, nil
}

type owMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Humidity  int     `json:"humidity"`
	Pressure  int     `json:"pressure"`
}

type owWeather struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type owWind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
}

type owCurrentResponse struct {
	Main       owMain      `json:"main"`
	Weather    []owWeather `json:"weather"`
	Wind       owWind      `json:"wind"`
	Visibility float64     `json:"visibility"`
	Timezone   int         `json:"timezone"`
}

type owForecastItem struct {
	Dt         int64              `json:"dt"`
	Main       owMain             `json:"main"`
	Weather    []owWeather        `json:"weather"`
	Wind       owWind             `json:"wind"`
	Visibility float64            `json:"visibility"`
	Pop        float64            `json:"pop"`
	Rain       map[string]float64 `json:"rain"`
	Snow       map[string]float64 `json:"snow"`
}

type owForecastResponse struct {
	List []owForecastItem `json:"list"`
	City struct {
		Timezone int `json:"timezone"`
	} `json:"city"`
}

// FetchForecast returns current conditions plus up to ForecastDays daily entries, ordered by date.
func (c *OpenWeatherClient) FetchForecast(ctx context.Context, lat, lon float64) (models.ProviderForecast, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.ProviderForecast{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.fetchOnce(ctx, lat, lon)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return models.ProviderForecast{}, err
		}
	}

	if c.retryAttempts == 1 {
		return models.ProviderForecast{}, lastErr
	}
	return models.ProviderForecast{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) fetchOnce(ctx context.Context, lat, lon float64) (models.ProviderForecast, error) {
	var current owCurrentResponse
	if err := c.get(ctx, "/weather", lat, lon, &current); err != nil {
		return models.ProviderForecast{}, err
	}
	var forecast owForecastResponse
	if err := c.get(ctx, "/forecast", lat, lon, &forecast); err != nil {
		return models.ProviderForecast{}, err
	}

	return models.ProviderForecast{
		Current:  mapCurrent(current),
		Forecast: aggregateDaily(forecast, c.now(), ForecastDays),
	}, nil
}

func (c *OpenWeatherClient) get(ctx context.Context, path string, lat, lon float64, out interface{}) error {
	start := time.Now()

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("lat", strconv.FormatFloat(lat, 'f', 4, 64)).
		SetQueryParam("lon", strconv.FormatFloat(lon, 'f', 4, 64))
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.SetHeader(observability.CorrelationIDHeader, corrID)
	}

	resp, err := req.Get(path)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if isTimeout(err) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode())
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := errorForStatus(resp.StatusCode()); err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}

func (c *OpenWeatherClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidAPIKey) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrLocationNotFound) {
		return false
	}
	if errors.Is(err, ErrUpstreamFailure) || errors.Is(err, ErrServiceUnavailable) {
		return true
	}
	return isTimeout(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func errorForStatus(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: provider rejected credentials", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return ErrLocationNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}

	if code < 200 || code >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
	return nil
}

func describe(w []owWeather) string {
	if len(w) == 0 {
		return ""
	}
	if w[0].Description != "" {
		return w[0].Description
	}
	return w[0].Main
}

func mapCurrent(r owCurrentResponse) models.CurrentConditions {
	return models.CurrentConditions{
		Temperature:   r.Main.Temp,
		FeelsLike:     r.Main.FeelsLike,
		Humidity:      r.Main.Humidity,
		Pressure:      r.Main.Pressure,
		WindSpeed:     r.Wind.Speed,
		WindDirection: r.Wind.Deg,
		Description:   describe(r.Weather),
		Visibility:    r.Visibility / 1000,
	}
}

// aggregateDaily folds 3-hourly slots into per-day entries in the location's local calendar.
// Slots on the current local day are skipped so the first entry is tomorrow.
func aggregateDaily(r owForecastResponse, now time.Time, maxDays int) []models.ForecastEntry {
	zone := time.FixedZone("local", r.City.Timezone)
	today := dayStart(now.In(zone))

	type bucket struct {
		entry    models.ForecastEntry
		midday   owForecastItem
		distance time.Duration
		seen     bool
	}
	buckets := map[time.Time]*bucket{}

	for _, item := range r.List {
		local := time.Unix(item.Dt, 0).In(zone)
		day := dayStart(local)
		if !day.After(today) {
			continue
		}

		b, ok := buckets[day]
		if !ok {
			b = &bucket{entry: models.ForecastEntry{
				Date:           day.UTC(),
				MinTemperature: item.Main.TempMin,
				MaxTemperature: item.Main.TempMax,
			}}
			buckets[day] = b
		}

		b.entry.MinTemperature = math.Min(b.entry.MinTemperature, item.Main.TempMin)
		b.entry.MaxTemperature = math.Max(b.entry.MaxTemperature, item.Main.TempMax)
		if pop := int(math.Round(item.Pop * 100)); pop > b.entry.PrecipitationProbability {
			b.entry.PrecipitationProbability = pop
		}
		b.entry.PrecipitationAmount += item.Rain["3h"] + item.Snow["3h"]

		dist := local.Sub(day.Add(12 * time.Hour)).Abs()
		if !b.seen || dist < b.distance {
			b.midday, b.distance, b.seen = item, dist, true
		}
	}

	days := make([]time.Time, 0, len(buckets))
	for d := range buckets {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	if len(days) > maxDays {
		days = days[:maxDays]
	}

	out := make([]models.ForecastEntry, 0, len(days))
	for _, d := range days {
		b := buckets[d]
		m := b.midday
		b.entry.Weather = models.CurrentConditions{
			Temperature:   m.Main.Temp,
			FeelsLike:     m.Main.FeelsLike,
			Humidity:      m.Main.Humidity,
			Pressure:      m.Main.Pressure,
			WindSpeed:     m.Wind.Speed,
			WindDirection: m.Wind.Deg,
			Description:   describe(m.Weather),
			Visibility:    m.Visibility / 1000,
		}
		b.entry.PrecipitationAmount = math.Round(b.entry.PrecipitationAmount*10) / 10
		out = append(out, b.entry)
	}
	return out
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey makes one current-conditions call and reports whether the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("lat", "0").
		SetQueryParam("lon", "0").
		Get("/weather")
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode())
	}

	return nil
}
