package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

var now = time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC)

func day(n int, minT, maxT float64, pop int, mm float64) models.ForecastEntry {
	return models.ForecastEntry{
		Date:                     time.Date(2026, 5, 10+n, 0, 0, 0, 0, time.UTC),
		MinTemperature:           minT,
		MaxTemperature:           maxT,
		PrecipitationProbability: pop,
		PrecipitationAmount:      mm,
	}
}

func byType(alerts []models.FarmingAlert) map[models.AlertType]models.FarmingAlert {
	out := make(map[models.AlertType]models.FarmingAlert, len(alerts))
	for _, a := range alerts {
		out[a.Type] = a
	}
	return out
}

func TestDeriveAlerts(t *testing.T) {
	tests := []struct {
		name    string
		current models.CurrentConditions
		days    []models.ForecastEntry
		want    map[models.AlertType]models.Severity
	}{
		{
			name:    "calm mild weather",
			current: models.CurrentConditions{Temperature: 24, Humidity: 55, WindSpeed: 4},
			days:    []models.ForecastEntry{day(1, 18, 28, 30, 1), day(2, 18, 28, 40, 0)},
			want:    map[models.AlertType]models.Severity{},
		},
		{
			name:    "heat from forecast max",
			current: models.CurrentConditions{Temperature: 30, Humidity: 55, WindSpeed: 4},
			days:    []models.ForecastEntry{day(1, 25, 37, 30, 0)},
			want:    map[models.AlertType]models.Severity{models.AlertHeatStress: models.SeverityMedium},
		},
		{
			name:    "extreme heat",
			current: models.CurrentConditions{Temperature: 42, Humidity: 55, WindSpeed: 4},
			days:    []models.ForecastEntry{day(1, 25, 33, 30, 0)},
			want:    map[models.AlertType]models.Severity{models.AlertHeatStress: models.SeverityHigh},
		},
		{
			name:    "frost and hard frost",
			current: models.CurrentConditions{Temperature: 12, Humidity: 55, WindSpeed: 4},
			days:    []models.ForecastEntry{day(1, 1, 14, 30, 0)},
			want:    map[models.AlertType]models.Severity{models.AlertFrost: models.SeverityHigh},
		},
		{
			name:    "heavy rain",
			current: models.CurrentConditions{Temperature: 24, Humidity: 70, WindSpeed: 4},
			days:    []models.ForecastEntry{day(1, 20, 28, 60, 12)},
			want:    map[models.AlertType]models.Severity{models.AlertHeavyRain: models.SeverityMedium},
		},
		{
			name:    "heavy rain likely is high",
			current: models.CurrentConditions{Temperature: 24, Humidity: 70, WindSpeed: 4},
			days:    []models.ForecastEntry{day(1, 20, 28, 90, 12)},
			want:    map[models.AlertType]models.Severity{models.AlertHeavyRain: models.SeverityHigh},
		},
		{
			name:    "strong wind and fungal risk",
			current: models.CurrentConditions{Temperature: 24, Humidity: 85, WindSpeed: 16},
			days:    []models.ForecastEntry{day(1, 20, 28, 40, 0)},
			want: map[models.AlertType]models.Severity{
				models.AlertStrongWind: models.SeverityHigh,
				models.AlertFungalRisk: models.SeverityMedium,
			},
		},
		{
			name:    "dry spell",
			current: models.CurrentConditions{Temperature: 24, Humidity: 50, WindSpeed: 4},
			days:    []models.ForecastEntry{day(3, 18, 28, 5, 0), day(1, 18, 28, 10, 0), day(2, 18, 28, 15, 0)},
			want:    map[models.AlertType]models.Severity{models.AlertDrySpell: models.SeverityLow},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := models.ForecastResult{LocationKey: "28.6139_77.2090", Current: tt.current, Forecast: tt.days}
			got := byType(DeriveAlerts(fc, now))
			require.Len(t, got, len(tt.want))
			for typ, sev := range tt.want {
				a, ok := got[typ]
				require.Truef(t, ok, "missing %s alert", typ)
				assert.Equal(t, sev, a.Severity, "severity of %s", typ)
				assert.Equal(t, "28.6139_77.2090", a.LocationKey)
				assert.Equal(t, now, a.ValidFrom)
				assert.True(t, a.ValidUntil.After(now), "ValidUntil must be after now")
				assert.NotEmpty(t, a.Title)
				assert.NotEmpty(t, a.Message)
			}
		})
	}
}

func TestDeriveAlerts_DrySpellValidUntilEndOfWindow(t *testing.T) {
	fc := models.ForecastResult{
		Current:  models.CurrentConditions{Temperature: 24, Humidity: 50, WindSpeed: 4},
		Forecast: []models.ForecastEntry{day(1, 18, 28, 5, 0), day(2, 18, 28, 5, 0), day(3, 18, 28, 5, 0)},
	}
	got := byType(DeriveAlerts(fc, now))
	a, ok := got[models.AlertDrySpell]
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC), a.ValidUntil)
}

func TestDeriveAlerts_HeavyRainValidForThatDay(t *testing.T) {
	fc := models.ForecastResult{
		Current:  models.CurrentConditions{Temperature: 24, Humidity: 60, WindSpeed: 4},
		Forecast: []models.ForecastEntry{day(1, 18, 28, 40, 2), day(2, 18, 28, 60, 18)},
	}
	a, ok := byType(DeriveAlerts(fc, now))[models.AlertHeavyRain]
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC), a.ValidUntil)
	assert.Contains(t, a.Message, "18.0 mm")
}
