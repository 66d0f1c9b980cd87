package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/agri-weather-service/internal/alerts"
	"github.com/kjstillabower/agri-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/agri-weather-service/internal/lifecycle"
	"github.com/kjstillabower/agri-weather-service/internal/models"
	"github.com/kjstillabower/agri-weather-service/internal/store"
	"github.com/kjstillabower/agri-weather-service/internal/traffic"
)

var testSecret = []byte("test-secret")

type fakeForecasts struct {
	mu          sync.Mutex
	result      models.ForecastResult
	err         error
	invalidated []models.Coordinates
}

func (f *fakeForecasts) GetForecast(_ context.Context, coords models.Coordinates) (models.ForecastResult, error) {
	if f.err != nil {
		return models.ForecastResult{}, f.err
	}
	r := f.result
	r.Latitude, r.Longitude = coords.Latitude, coords.Longitude
	return r, nil
}

func (f *fakeForecasts) InvalidateCache(_ context.Context, coords models.Coordinates) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, coords)
}

type fakeAlerts struct {
	generated []models.FarmingAlert
	err       error
	lastUser  string
	lastLimit int
}

func (f *fakeAlerts) GenerateFarmingAlerts(_ context.Context, userID string) ([]models.FarmingAlert, error) {
	f.lastUser = userID
	return f.generated, f.err
}

func (f *fakeAlerts) ListAlerts(_ context.Context, userID string, limit int) ([]models.FarmingAlert, error) {
	f.lastUser, f.lastLimit = userID, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.generated, nil
}

func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(exp)}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, w)
	env, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "missing error envelope in %v", body)
	return env["code"].(string)
}

func TestHandler_GetForecast_Success(t *testing.T) {
	fc := &fakeForecasts{result: models.ForecastResult{LocationKey: "19.0760_72.8777", Origin: models.OriginLive}}
	h := NewHandler(fc, nil, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/weather/forecast?lat=19.076&lon=72.8777", nil)
	w := httptest.NewRecorder()
	h.GetForecast(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OriginLive, w.Header().Get(ForecastSourceHeader))
	body := decodeBody(t, w)
	assert.Equal(t, "19.0760_72.8777", body["locationKey"])
	assert.Equal(t, "live", body["source"])
}

func TestHandler_GetForecast_DegradedStillOK(t *testing.T) {
	fc := &fakeForecasts{result: models.ForecastResult{Origin: models.OriginFallback, IsFallback: true}}
	h := NewHandler(fc, nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.GetForecast(w, httptest.NewRequest(http.MethodGet, "/weather/forecast?lat=1&lon=2", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OriginFallback, w.Header().Get(ForecastSourceHeader))
}

func TestHandler_GetForecast_InvalidCoordinates(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing both", ""},
		{"missing lon", "lat=10"},
		{"not a number", "lat=abc&lon=10"},
		{"latitude out of range", "lat=91&lon=10"},
		{"longitude out of range", "lat=10&lon=-181"},
		{"nan", "lat=NaN&lon=10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeForecasts{}
			h := NewHandler(fc, nil, nil, zap.NewNop())
			w := httptest.NewRecorder()
			h.GetForecast(w, httptest.NewRequest(http.MethodGet, "/weather/forecast?"+tt.query, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_COORDINATES", errorCode(t, w))
		})
	}
}

func TestHandler_GetForecast_ServiceError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := NewHandler(&fakeForecasts{err: errors.New("boom")}, nil, nil, zap.New(core))

	w := httptest.NewRecorder()
	h.GetForecast(w, httptest.NewRequest(http.MethodGet, "/weather/forecast?lat=1&lon=2", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL", errorCode(t, w))
	assert.Equal(t, 1, logs.FilterMessage("forecast failed").Len())
}

func TestHandler_InvalidateForecastCache(t *testing.T) {
	fc := &fakeForecasts{}
	h := NewHandler(fc, nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.InvalidateForecastCache(w, httptest.NewRequest(http.MethodDelete, "/weather/forecast/cache?lat=19.076&lon=72.8777", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "19.0760_72.8777", body["locationKey"])
	assert.Equal(t, true, body["invalidated"])
	require.Len(t, fc.invalidated, 1)
	assert.Equal(t, models.Coordinates{Latitude: 19.076, Longitude: 72.8777}, fc.invalidated[0])
}

func TestHandler_InvalidateForecastCache_InvalidCoordinates(t *testing.T) {
	fc := &fakeForecasts{}
	h := NewHandler(fc, nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.InvalidateForecastCache(w, httptest.NewRequest(http.MethodDelete, "/weather/forecast/cache?lat=100&lon=0", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fc.invalidated)
}

func alertRouter(al *fakeAlerts) http.Handler {
	h := NewHandler(&fakeForecasts{}, al, nil, zap.NewNop())
	return NewRouter(h, RouterConfig{JWTSecret: testSecret}, zap.NewNop())
}

func TestHandler_GenerateAlerts(t *testing.T) {
	al := &fakeAlerts{generated: []models.FarmingAlert{
		{ID: "a1", Type: models.AlertHeatStress, Severity: models.SeverityHigh},
	}}
	router := alertRouter(al)

	req := httptest.NewRequest(http.MethodPost, "/alerts/generate", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "farmer-1", time.Now().Add(time.Hour)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "farmer-1", al.lastUser)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["count"])
}

func TestHandler_GenerateAlerts_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"unknown user", fmt.Errorf("load user: %w", store.ErrNotFound), http.StatusNotFound, "USER_NOT_FOUND"},
		{"no location", alerts.ErrNoLocation, http.StatusUnprocessableEntity, "LOCATION_REQUIRED"},
		{"store down", fmt.Errorf("save alerts: %w", errors.New("connection refused")), http.StatusServiceUnavailable, "ALERTS_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := alertRouter(&fakeAlerts{err: tt.err})
			req := httptest.NewRequest(http.MethodPost, "/alerts/generate", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, "farmer-1", time.Now().Add(time.Hour)))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, w))
		})
	}
}

func TestHandler_ListAlerts_Limit(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
	}{
		{"default", "", http.StatusOK, defaultAlertLimit},
		{"explicit", "?limit=5", http.StatusOK, 5},
		{"capped", "?limit=5000", http.StatusOK, maxAlertLimit},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
		{"garbage", "?limit=ten", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			al := &fakeAlerts{}
			router := alertRouter(al)
			req := httptest.NewRequest(http.MethodGet, "/alerts"+tt.query, nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, "farmer-2", time.Now().Add(time.Hour)))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantLimit, al.lastLimit)
		})
	}
}

func TestHandler_GetHealth_Healthy(t *testing.T) {
	traffic.Reset()
	h := NewHandler(&fakeForecasts{}, nil, &HealthConfig{
		Window:        time.Minute,
		ProviderState: func() circuitbreaker.State { return circuitbreaker.StateClosed },
		Checks:        map[string]func(context.Context) error{"cache": func(context.Context) error { return nil }},
		Version:       "1.2.3",
	}, zap.NewNop())

	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "closed", checks["weatherApi"])
	assert.Equal(t, "healthy", checks["cache"])
}

func TestHandler_GetHealth_ShuttingDown(t *testing.T) {
	lifecycle.SetShuttingDown(true)
	defer lifecycle.SetShuttingDown(false)

	h := NewHandler(&fakeForecasts{}, nil, nil, zap.NewNop())
	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "shutting-down", decodeBody(t, w)["status"])
}

// threshold = 2 rps * 1s * 40% = 0.8, so a single request overloads.
func TestHandler_GetHealth_Overloaded(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	traffic.RecordLive()

	h := NewHandler(&fakeForecasts{}, nil, &HealthConfig{
		Window:               time.Second,
		OverloadThresholdPct: 40,
		RateLimitRPS:         2,
		ProviderState:        func() circuitbreaker.State { return circuitbreaker.StateOpen },
	}, zap.NewNop())

	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "overloaded", decodeBody(t, w)["status"], "overload outranks degraded")
}

func TestHandler_GetHealth_Degraded(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *HealthConfig
		record     func()
		wantReason string
	}{
		{
			name: "provider circuit open",
			cfg: &HealthConfig{
				Window:        time.Minute,
				ProviderState: func() circuitbreaker.State { return circuitbreaker.StateOpen },
			},
			wantReason: "circuit_open",
		},
		{
			name: "dependency check failing",
			cfg: &HealthConfig{
				Window: time.Minute,
				Checks: map[string]func(context.Context) error{
					"durableStore": func(context.Context) error { return errors.New("no primary") },
				},
			},
			wantReason: "durableStore_unhealthy",
		},
		{
			name: "degraded responses above threshold",
			cfg: &HealthConfig{
				Window:              time.Minute,
				DegradedFallbackPct: 50,
			},
			record: func() {
				traffic.RecordDegraded()
				traffic.RecordDegraded()
				traffic.RecordLive()
			},
			wantReason: "degraded_rate_breach",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traffic.Reset()
			defer traffic.Reset()
			if tt.record != nil {
				tt.record()
			}
			h := NewHandler(&fakeForecasts{}, nil, tt.cfg, zap.NewNop())
			w := httptest.NewRecorder()
			h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, http.StatusOK, w.Code, "degraded still serves traffic")
			body := decodeBody(t, w)
			assert.Equal(t, "degraded", body["status"])
			assert.Equal(t, tt.wantReason, body["reason"])
		})
	}
}

func TestHandler_GetHealth_DegradedRateBelowThreshold(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	traffic.RecordDegraded()
	traffic.RecordLive()
	traffic.RecordLive()

	h := NewHandler(&fakeForecasts{}, nil, &HealthConfig{Window: time.Minute, DegradedFallbackPct: 50}, zap.NewNop())
	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
}

func TestHandler_GetHealth_LogsTransitions(t *testing.T) {
	traffic.Reset()
	core, logs := observer.New(zapcore.InfoLevel)
	open := false
	h := NewHandler(&fakeForecasts{}, nil, &HealthConfig{
		Window: time.Minute,
		ProviderState: func() circuitbreaker.State {
			if open {
				return circuitbreaker.StateOpen
			}
			return circuitbreaker.StateClosed
		},
	}, zap.New(core))

	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	open = true
	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	transitions := logs.FilterMessage("health status transition").All()
	require.Len(t, transitions, 1)
	fields := transitions[0].ContextMap()
	assert.Equal(t, "healthy", fields["previous_status"])
	assert.Equal(t, "degraded", fields["current_status"])
}
