package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/agri-weather-service/internal/observability"
)

// RouterConfig controls per-route middleware.
type RouterConfig struct {
	RequestTimeout time.Duration
	Limiter        *rate.Limiter // nil disables rate limiting
	// JWTSecret enables the /alerts routes. Without it they are not registered.
	JWTSecret []byte
}

// NewRouter wires handlers and middleware. /health and /metrics skip rate limiting and auth.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(TracingMiddleware)
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	weatherRouter := router.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		weatherRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	weatherRouter.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)
	weatherRouter.HandleFunc("/forecast/cache", h.InvalidateForecastCache).Methods(http.MethodDelete)

	if len(cfg.JWTSecret) > 0 && h.alerts != nil {
		alertRouter := router.PathPrefix("/alerts").Subrouter()
		alertRouter.Use(AuthMiddleware(cfg.JWTSecret))
		alertRouter.Use(RateLimitMiddleware(cfg.Limiter))
		alertRouter.HandleFunc("/generate", h.GenerateAlerts).Methods(http.MethodPost)
		alertRouter.HandleFunc("", h.ListAlerts).Methods(http.MethodGet)
	} else {
		logger.Info("alert endpoints disabled; set auth.jwt_secret and an alert store to enable")
	}
	return router
}
