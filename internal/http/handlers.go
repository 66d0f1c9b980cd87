package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/agri-weather-service/internal/alerts"
	"github.com/kjstillabower/agri-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/agri-weather-service/internal/lifecycle"
	"github.com/kjstillabower/agri-weather-service/internal/models"
	"github.com/kjstillabower/agri-weather-service/internal/observability"
	"github.com/kjstillabower/agri-weather-service/internal/service"
	"github.com/kjstillabower/agri-weather-service/internal/store"
	"github.com/kjstillabower/agri-weather-service/internal/traffic"
	"github.com/kjstillabower/agri-weather-service/internal/validation"
)

// ForecastSourceHeader tells clients where the forecast came from: live, cache, stale or fallback.
const ForecastSourceHeader = "X-Forecast-Source"

const (
	defaultAlertLimit  = 50
	maxAlertLimit      = 200
	healthCheckTimeout = 2 * time.Second
)

// ForecastService is the forecast surface the handlers need.
type ForecastService interface {
	GetForecast(ctx context.Context, coords models.Coordinates) (models.ForecastResult, error)
	InvalidateCache(ctx context.Context, coords models.Coordinates)
}

// AlertService is the alert surface the handlers need.
type AlertService interface {
	GenerateFarmingAlerts(ctx context.Context, userID string) ([]models.FarmingAlert, error)
	ListAlerts(ctx context.Context, userID string, limit int) ([]models.FarmingAlert, error)
}

// HealthConfig holds health thresholds and dependency checks.
type HealthConfig struct {
	// Window is the sliding window for overload and fallback-rate evaluation.
	Window               time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int // 0 disables the overload check
	DegradedFallbackPct  int // 0 disables the fallback-rate check
	// ProviderState reports the weather provider breaker; an open circuit is degraded.
	ProviderState func() circuitbreaker.State
	// Checks are named dependency checks (cache tiers, database). A failing check is degraded.
	Checks  map[string]func(ctx context.Context) error
	Version string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecasts        ForecastService
	alerts           AlertService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. alerts may be nil when alert endpoints are not served.
func NewHandler(forecasts ForecastService, alerts AlertService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		forecasts:    forecasts,
		alerts:       alerts,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetForecast handles GET /weather/forecast?lat=..&lon=.. . Degraded forecasts are still 200;
// the X-Forecast-Source header and body markers say how fresh they are.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	coords, err := validation.ParseCoordinates(r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	result, err := h.forecasts.GetForecast(r.Context(), coords)
	if err != nil {
		if errors.Is(err, validation.ErrInvalidCoordinates) {
			writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
			return
		}
		observability.LoggerFrom(r.Context(), h.logger).Error("forecast failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Unable to build forecast")
		return
	}
	w.Header().Set(ForecastSourceHeader, result.Origin)
	writeJSON(w, http.StatusOK, result)
}

// InvalidateForecastCache handles DELETE /weather/forecast/cache?lat=..&lon=.. .
func (h *Handler) InvalidateForecastCache(w http.ResponseWriter, r *http.Request) {
	coords, err := validation.ParseCoordinates(r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}
	h.forecasts.InvalidateCache(r.Context(), coords)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invalidated": true,
		"locationKey": service.LocationKey(coords.Latitude, coords.Longitude),
	})
}

// GenerateAlerts handles POST /alerts/generate for the authenticated user.
func (h *Handler) GenerateAlerts(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFrom(r.Context())
	generated, err := h.alerts.GenerateFarmingAlerts(r.Context(), userID)
	if err != nil {
		h.writeAlertError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": generated,
		"count":  len(generated),
	})
}

// ListAlerts handles GET /alerts?limit=N for the authenticated user.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = min(n, maxAlertLimit)
	}
	list, err := h.alerts.ListAlerts(r.Context(), UserIDFrom(r.Context()), limit)
	if err != nil {
		h.writeAlertError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": list,
		"count":  len(list),
	})
}

func (h *Handler) writeAlertError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, alerts.ErrNoLocation):
		writeError(w, r, http.StatusUnprocessableEntity, "LOCATION_REQUIRED", "Set a farm location before generating alerts")
	case errors.Is(err, validation.ErrInvalidCoordinates):
		writeError(w, r, http.StatusUnprocessableEntity, "INVALID_COORDINATES", "Stored farm location is invalid")
	default:
		observability.LoggerFrom(r.Context(), h.logger).Error("alert request failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "ALERTS_UNAVAILABLE", "Alerts are temporarily unavailable")
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   version,
		"checks":    result.checks,
		"uptime":    int64(lifecycle.Uptime(time.Now()).Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy. Degraded stays 200 because forecasts are
// still served, only with reduced freshness.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := h.runChecks(ctx)

	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}
	cfg := h.healthConfig

	if cfg.RateLimitRPS > 0 && cfg.Window > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.Window.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(cfg.Window)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold", checks}
		}
	}

	if checks["weatherApi"] == circuitbreaker.StateOpen.String() {
		return healthResult{"degraded", http.StatusOK, "circuit_open", checks}
	}
	for name, state := range checks {
		if name != "weatherApi" && state != "healthy" {
			return healthResult{"degraded", http.StatusOK, name + "_unhealthy", checks}
		}
	}
	if cfg.DegradedFallbackPct > 0 && cfg.Window > 0 {
		degraded, total := traffic.DegradedRate(cfg.Window)
		if total > 0 && float64(degraded)*100/float64(total) >= float64(cfg.DegradedFallbackPct) {
			return healthResult{"degraded", http.StatusOK, "degraded_rate_breach", checks}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

func (h *Handler) runChecks(ctx context.Context) map[string]string {
	checks := map[string]string{}
	if h.healthConfig == nil {
		return checks
	}
	if h.healthConfig.ProviderState != nil {
		checks["weatherApi"] = h.healthConfig.ProviderState().String()
	}
	for name, ping := range h.healthConfig.Checks {
		pctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := ping(pctx)
		cancel()
		if err != nil {
			checks[name] = "unhealthy"
			observability.LoggerFrom(ctx, h.logger).Debug("health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		checks[name] = "healthy"
	}
	return checks
}
