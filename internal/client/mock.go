package client

import (
	"context"
	"math"
	"time"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// MockProvider returns deterministic, coordinate-derived weather without network access.
// Used for local development (weather_api.provider: mock).
type MockProvider struct {
	Now func() time.Time
}

// FetchForecast derives plausible values from latitude (warmer near the equator) and longitude.
func (m MockProvider) FetchForecast(ctx context.Context, lat, lon float64) (models.ProviderForecast, error) {
	if err := ctx.Err(); err != nil {
		return models.ProviderForecast{}, err
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}

	temp := math.Round((32-math.Abs(lat)/3)*10) / 10
	humidity := 40 + int(math.Abs(lon))%40
	current := models.CurrentConditions{
		Temperature:   temp,
		FeelsLike:     temp + 1,
		Humidity:      humidity,
		Pressure:      1012,
		WindSpeed:     3.5,
		WindDirection: 180,
		Description:   "clear sky",
		Visibility:    10,
	}

	today := dayStart(now().UTC())
	forecast := make([]models.ForecastEntry, ForecastDays)
	for i := range forecast {
		day := current
		day.Temperature = temp + float64(i)
		forecast[i] = models.ForecastEntry{
			Date:                     today.AddDate(0, 0, i+1),
			Weather:                  day,
			PrecipitationProbability: (humidity + 15*i) % 100,
			MinTemperature:           day.Temperature - 6,
			MaxTemperature:           day.Temperature + 4,
		}
	}
	return models.ProviderForecast{Current: current, Forecast: forecast}, nil
}

// ValidateAPIKey always succeeds.
func (MockProvider) ValidateAPIKey(context.Context) error {
	return nil
}
