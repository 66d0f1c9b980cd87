// Package alerts turns forecasts into persisted, user-scoped farming alerts.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/agri-weather-service/internal/models"
	"github.com/kjstillabower/agri-weather-service/internal/observability"
	"github.com/kjstillabower/agri-weather-service/internal/store"
)

// ErrNoLocation is returned when the user has no stored farm location.
var ErrNoLocation = errors.New("user has no stored location")

// ForecastSource is satisfied by the forecast service.
type ForecastSource interface {
	GetForecast(ctx context.Context, coords models.Coordinates) (models.ForecastResult, error)
}

// Generator derives alerts for a user from the forecast at their stored location.
type Generator struct {
	forecasts ForecastSource
	users     store.UserStore
	alerts    store.AlertStore
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewGenerator wires a Generator.
func NewGenerator(forecasts ForecastSource, users store.UserStore, alerts store.AlertStore, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		forecasts: forecasts,
		users:     users,
		alerts:    alerts,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// GenerateFarmingAlerts loads the user's location, derives alerts from its forecast and
// persists them. A fallback forecast yields no alerts: synthetic data must not raise alarms.
// Returns store.ErrNotFound (wrapped) for unknown users and ErrNoLocation when none is stored.
func (g *Generator) GenerateFarmingAlerts(ctx context.Context, userID string) ([]models.FarmingAlert, error) {
	logger := observability.LoggerFrom(ctx, g.logger).With(zap.String("user_id", userID))

	user, err := g.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Location == nil {
		return nil, ErrNoLocation
	}

	fc, err := g.forecasts.GetForecast(ctx, *user.Location)
	if err != nil {
		return nil, fmt.Errorf("forecast for user location: %w", err)
	}
	if fc.IsFallback {
		logger.Info("skipping alert generation; only fallback forecast available",
			zap.String("location_key", fc.LocationKey),
			zap.String("degraded_reason", fc.DegradedReason),
		)
		return []models.FarmingAlert{}, nil
	}

	alerts := DeriveAlerts(fc, g.now())
	if len(alerts) == 0 {
		return []models.FarmingAlert{}, nil
	}
	for i := range alerts {
		alerts[i].ID = g.newID()
		alerts[i].UserID = userID
	}

	if err := g.alerts.SaveAlerts(ctx, alerts); err != nil {
		return nil, fmt.Errorf("save alerts: %w", err)
	}
	for _, a := range alerts {
		observability.FarmingAlertsGeneratedTotal.WithLabelValues(string(a.Type)).Inc()
	}
	logger.Info("farming alerts generated",
		zap.String("location_key", fc.LocationKey),
		zap.Int("count", len(alerts)),
		zap.Bool("stale_forecast", fc.IsStale),
	)
	return alerts, nil
}

// ListAlerts returns the user's alerts, newest first.
func (g *Generator) ListAlerts(ctx context.Context, userID string, limit int) ([]models.FarmingAlert, error) {
	alerts, err := g.alerts.ListAlerts(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	if alerts == nil {
		alerts = []models.FarmingAlert{}
	}
	return alerts, nil
}
