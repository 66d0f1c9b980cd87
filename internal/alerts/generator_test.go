package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kjstillabower/agri-weather-service/internal/models"
	"github.com/kjstillabower/agri-weather-service/internal/store"
)

type fakeForecasts struct {
	mu     sync.Mutex
	result models.ForecastResult
	err    error
	calls  []models.Coordinates
}

func (f *fakeForecasts) GetForecast(_ context.Context, c models.Coordinates) (models.ForecastResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.result, f.err
}

type failingAlertStore struct{}

func (failingAlertStore) SaveAlerts(context.Context, []models.FarmingAlert) error {
	return errors.New("connection refused")
}

func (failingAlertStore) ListAlerts(context.Context, string, int) ([]models.FarmingAlert, error) {
	return nil, errors.New("connection refused")
}

var farm = &models.Coordinates{Latitude: 28.6139, Longitude: 77.209}

func hotForecast() models.ForecastResult {
	return models.ForecastResult{
		LocationKey: "28.6139_77.2090",
		Current:     models.CurrentConditions{Temperature: 41, Humidity: 85, WindSpeed: 4},
		Forecast:    []models.ForecastEntry{day(1, 28, 43, 30, 0)},
		Origin:      models.OriginLive,
	}
}

func newTestGenerator(fc ForecastSource, users store.UserStore, alerts store.AlertStore) *Generator {
	g := NewGenerator(fc, users, alerts, zap.NewNop())
	g.now = func() time.Time { return now }
	n := 0
	g.newID = func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
	return g
}

func TestGenerateFarmingAlerts_PersistsAlerts(t *testing.T) {
	fc := &fakeForecasts{result: hotForecast()}
	users := store.NewMemoryUserStore(models.UserProfile{ID: "u1", Location: farm, AlertsEnabled: true})
	saved := store.NewMemoryAlertStore()
	g := newTestGenerator(fc, users, saved)

	alerts, err := g.GenerateFarmingAlerts(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, []models.Coordinates{*farm}, fc.calls)
	for i, a := range alerts {
		assert.Equal(t, "u1", a.UserID)
		assert.Equal(t, fmt.Sprintf("alert-%d", i+1), a.ID)
	}

	listed, err := g.ListAlerts(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestGenerateFarmingAlerts_FallbackYieldsNothing(t *testing.T) {
	fb := hotForecast()
	fb.IsFallback = true
	fb.Origin = models.OriginFallback
	users := store.NewMemoryUserStore(models.UserProfile{ID: "u1", Location: farm})
	saved := store.NewMemoryAlertStore()
	g := newTestGenerator(&fakeForecasts{result: fb}, users, saved)

	alerts, err := g.GenerateFarmingAlerts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.NotNil(t, alerts)

	listed, err := g.ListAlerts(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestGenerateFarmingAlerts_StaleForecastStillAlerts(t *testing.T) {
	stale := hotForecast()
	stale.IsStale = true
	users := store.NewMemoryUserStore(models.UserProfile{ID: "u1", Location: farm})
	g := newTestGenerator(&fakeForecasts{result: stale}, users, store.NewMemoryAlertStore())

	alerts, err := g.GenerateFarmingAlerts(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, alerts)
}

func TestGenerateFarmingAlerts_Errors(t *testing.T) {
	tests := []struct {
		name    string
		users   store.UserStore
		fc      *fakeForecasts
		alerts  store.AlertStore
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown user",
			users:   store.NewMemoryUserStore(),
			fc:      &fakeForecasts{result: hotForecast()},
			alerts:  store.NewMemoryAlertStore(),
			wantErr: store.ErrNotFound,
		},
		{
			name:    "no location",
			users:   store.NewMemoryUserStore(models.UserProfile{ID: "u1"}),
			fc:      &fakeForecasts{result: hotForecast()},
			alerts:  store.NewMemoryAlertStore(),
			wantErr: ErrNoLocation,
		},
		{
			name:    "invalid stored coordinates",
			users:   store.NewMemoryUserStore(models.UserProfile{ID: "u1", Location: farm}),
			fc:      &fakeForecasts{err: errors.New("invalid coordinates")},
			alerts:  store.NewMemoryAlertStore(),
			wantMsg: "forecast for user location",
		},
		{
			name:    "store down",
			users:   store.NewMemoryUserStore(models.UserProfile{ID: "u1", Location: farm}),
			fc:      &fakeForecasts{result: hotForecast()},
			alerts:  failingAlertStore{},
			wantMsg: "save alerts",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(tt.fc, tt.users, tt.alerts)
			_, err := g.GenerateFarmingAlerts(context.Background(), "u1")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestListAlerts_StoreError(t *testing.T) {
	g := newTestGenerator(&fakeForecasts{}, store.NewMemoryUserStore(), failingAlertStore{})
	_, err := g.ListAlerts(context.Background(), "u1", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list alerts")
}
