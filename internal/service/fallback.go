package service

import (
	"time"

	"github.com/kjstillabower/agri-weather-service/internal/advisory"
	"github.com/kjstillabower/agri-weather-service/internal/client"
	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// Fallback values: a mild, dry day. Nothing here depends on live data.
const (
	fallbackTemperature = 25
	fallbackHumidity    = 60
	fallbackPrecipProb  = 20
)

// FallbackForecast builds the static forecast served when neither the provider nor the cache
// can answer. It is marked IsFallback and carries generic guidance only.
func FallbackForecast(coords models.Coordinates, now time.Time) models.ForecastResult {
	current := models.CurrentConditions{
		Temperature:   fallbackTemperature,
		FeelsLike:     fallbackTemperature + 2,
		Humidity:      fallbackHumidity,
		Pressure:      1013,
		WindSpeed:     3,
		WindDirection: 0,
		Description:   "Weather data temporarily unavailable",
		Visibility:    10,
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	forecast := make([]models.ForecastEntry, client.ForecastDays)
	for i := range forecast {
		forecast[i] = models.ForecastEntry{
			Date:                     today.AddDate(0, 0, i+1),
			Weather:                  current,
			PrecipitationProbability: fallbackPrecipProb,
			MinTemperature:           fallbackTemperature - 5,
			MaxTemperature:           fallbackTemperature + 5,
		}
	}

	return models.ForecastResult{
		LocationKey: LocationKey(coords.Latitude, coords.Longitude),
		Latitude:    coords.Latitude,
		Longitude:   coords.Longitude,
		Current:     current,
		Forecast:    forecast,
		FarmingRecommendations: []string{
			"Live weather data is temporarily unavailable; check local conditions before field work",
			"Continue your regular irrigation schedule until updated forecasts are available",
			"Inspect crops for signs of pest or disease pressure",
			advisory.SeasonalNote(now.Month()),
		},
		AgriculturalAdvisory: models.AgriculturalAdvisory{
			Irrigation:     "Maintain the regular irrigation schedule",
			PestControl:    "Continue routine field scouting",
			Harvesting:     "Plan harvests using local observations",
			Planting:       "Defer major planting decisions until live forecasts return",
			General:        "Forecast service is degraded; values shown are typical conditions, not observations",
			SoilConditions: "Check soil moisture by hand before irrigating",
			CropProtection: "Keep protective covers ready in case of sudden weather changes",
		},
		CropPlanning: []models.CropPlanningSuggestion{},
		CachedAt:     now,
		ExpiresAt:    now,
		Origin:       models.OriginFallback,
		IsFallback:   true,
		Warnings:     []string{"Live weather data is unavailable; showing typical conditions"},
	}
}
