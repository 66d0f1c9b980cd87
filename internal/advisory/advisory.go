// Package advisory derives farming guidance from raw weather numbers using fixed thresholds.
// Everything here is pure: same inputs, same outputs, no I/O.
package advisory

import (
	"slices"
	"time"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// Thresholds. Temperatures in °C, humidity and precipitation probability in percent,
// wind in m/s, precipitation amount in mm.
const (
	HeatStressTemp      = 35.0
	FrostTemp           = 10.0
	OptimalTempLow      = 25.0
	OptimalTempHigh     = 30.0
	FungalHumidity      = 80
	DroughtHumidity     = 30
	RainPostponeProb    = 70
	HeavyRainAmount     = 10.0
	DrySpellProb        = 20
	StrongWind          = 10.0
	CalmWind            = 5.0
	HighUV              = 7.0
	drySpellWindowDays  = 3
	rainChanceThreshold = 50
)

// Derived bundles the three derivations written into a forecast result.
type Derived struct {
	FarmingRecommendations []string
	AgriculturalAdvisory   models.AgriculturalAdvisory
	CropPlanning           []models.CropPlanningSuggestion
}

// Derive sorts the forecast by date and runs every derivation. now selects the seasonal note.
func Derive(current models.CurrentConditions, forecast []models.ForecastEntry, now time.Time) Derived {
	sorted := SortForecast(forecast)
	return Derived{
		FarmingRecommendations: FarmingRecommendations(current, sorted, now.Month()),
		AgriculturalAdvisory:   AgriculturalAdvisory(current, sorted),
		CropPlanning:           CropPlanning(current, sorted),
	}
}

// SortForecast returns a copy of entries ordered ascending by date. "Tomorrow" rules read index 0.
func SortForecast(entries []models.ForecastEntry) []models.ForecastEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b models.ForecastEntry) int {
		return a.Date.Compare(b.Date)
	})
	return out
}

// FarmingRecommendations returns free-text guidance. forecast must already be sorted.
func FarmingRecommendations(current models.CurrentConditions, forecast []models.ForecastEntry, month time.Month) []string {
	var recs []string
	temp := current.Temperature

	switch {
	case temp > HeatStressTemp:
		recs = append(recs,
			"High temperature alert: increase irrigation frequency and irrigate in early morning or evening to reduce heat stress",
			"Provide shade for sensitive crops and nursery seedlings")
	case temp < FrostTemp:
		recs = append(recs,
			"Frost risk: cover sensitive crops overnight and irrigate lightly in the evening to protect against cold damage")
	case temp >= OptimalTempLow && temp <= OptimalTempHigh:
		recs = append(recs, "Optimal temperature for most crop growth and field operations")
	}

	switch {
	case current.Humidity > FungalHumidity:
		recs = append(recs, "High humidity increases fungal disease risk: monitor crops and ensure good air circulation")
	case current.Humidity < DroughtHumidity:
		recs = append(recs, "Low humidity: risk of drought stress, apply mulching to conserve soil moisture")
	}

	if len(forecast) > 0 {
		tomorrow := forecast[0]
		if tomorrow.PrecipitationProbability > RainPostponeProb {
			recs = append(recs, "Heavy rain expected: postpone irrigation and pesticide or fertilizer application")
		}
		if tomorrow.PrecipitationAmount > HeavyRainAmount {
			recs = append(recs, "Significant rainfall forecast: harvest mature crops before the rain and check field drainage")
		}
	}
	if IsDrySpell(forecast) {
		recs = append(recs, "Dry spell ahead: plan supplementary irrigation for the coming days")
	}

	switch {
	case current.WindSpeed > StrongWind:
		recs = append(recs, "Strong winds: avoid spraying and secure structures, trellises and young plants")
	case current.WindSpeed < CalmWind && !rainLikely(forecast):
		recs = append(recs, "Calm winds and no rain expected: good window for pesticide application")
	}

	recs = append(recs, SeasonalNote(month))
	return recs
}

// SeasonalNote returns the cropping-season note for month.
func SeasonalNote(month time.Month) string {
	switch month {
	case time.December, time.January, time.February:
		return "Rabi season: suitable for wheat, mustard, peas and gram"
	case time.March, time.April, time.May:
		return "Zaid season: suitable for watermelon, cucumber and fodder crops"
	case time.June, time.July, time.August, time.September:
		return "Kharif season: suitable for rice, cotton, sugarcane and maize"
	default:
		return "Post-monsoon period: prepare fields for rabi sowing"
	}
}

// AgriculturalAdvisory fills every advisory category. forecast must already be sorted.
func AgriculturalAdvisory(current models.CurrentConditions, forecast []models.ForecastEntry) models.AgriculturalAdvisory {
	a := models.AgriculturalAdvisory{
		Irrigation:     "Maintain regular irrigation schedule",
		PestControl:    "Routine monitoring for pests is sufficient",
		Harvesting:     "Normal harvesting conditions",
		Planting:       "Conditions are suitable for planting",
		General:        "Weather conditions are stable",
		SoilConditions: "Soil moisture expected to be adequate",
		CropProtection: "No special crop protection measures needed",
	}

	temp := current.Temperature
	switch {
	case temp > HeatStressTemp:
		a.Irrigation = "Increase irrigation frequency; water in early morning or late evening"
		a.CropProtection = "Use shade nets or mulch to protect crops from heat stress"
		a.Planting = "Delay transplanting until temperatures ease"
		a.General = "Heat wave conditions: limit field work during midday"
	case temp < FrostTemp:
		a.Irrigation = "Reduce irrigation; light evening watering helps prevent frost damage"
		a.CropProtection = "Cover sensitive crops to protect against frost"
		a.Planting = "Too cold for most sowing; wait for warmer days"
		a.General = "Cold conditions: protect livestock and seedlings"
	}

	switch {
	case current.Humidity > FungalHumidity:
		a.PestControl = "High humidity favours fungal disease; apply preventive fungicide if symptoms appear"
		a.SoilConditions = "Soil likely moist; avoid waterlogging"
	case current.Humidity < DroughtHumidity:
		a.SoilConditions = "Dry soil conditions; apply mulch to retain moisture"
	}

	if len(forecast) > 0 {
		tomorrow := forecast[0]
		if tomorrow.PrecipitationProbability > RainPostponeProb {
			a.Irrigation = "Postpone irrigation; rain expected tomorrow"
			a.PestControl = "Postpone spraying until after the rain"
		}
		if tomorrow.PrecipitationAmount > HeavyRainAmount {
			a.Harvesting = "Harvest mature crops before heavy rain"
			a.SoilConditions = "Heavy rain expected; clear drainage channels to prevent waterlogging"
		}
	}
	if IsDrySpell(forecast) && temp <= HeatStressTemp {
		a.Irrigation = "Dry spell ahead; schedule supplementary irrigation"
	}

	switch {
	case current.WindSpeed > StrongWind:
		a.PestControl = "Avoid spraying in strong winds"
		a.CropProtection = "Stake tall crops and secure structures against wind damage"
	case current.WindSpeed < CalmWind && !rainLikely(forecast) && current.Humidity <= FungalHumidity:
		a.PestControl = "Good conditions for pesticide application"
	}

	return a
}

// CropPlanning emits a suggestion for each crop whose predicate holds. forecast must already be sorted.
func CropPlanning(current models.CurrentConditions, forecast []models.ForecastEntry) []models.CropPlanningSuggestion {
	var out []models.CropPlanningSuggestion
	temp := current.Temperature
	humidity := current.Humidity

	rainProb := 0
	if len(forecast) > 0 {
		rainProb = forecast[0].PrecipitationProbability
	}

	if (rainProb > 60 || humidity > 70) && temp >= 20 && temp <= 35 {
		out = append(out, models.CropPlanningSuggestion{
			CropType:       "rice",
			Recommendation: "Good conditions for rice transplanting",
			Timing:         "Next 2-3 days",
			Priority:       models.PriorityHigh,
			WeatherFactor:  "adequate moisture and warm temperatures",
		})
	}
	if temp >= 10 && temp <= 25 {
		out = append(out, models.CropPlanningSuggestion{
			CropType:       "wheat",
			Recommendation: "Favourable temperatures for wheat sowing and growth",
			Timing:         "This week",
			Priority:       models.PriorityMedium,
			WeatherFactor:  "cool temperatures",
		})
	}
	if temp > 30 || (current.UVIndex != nil && *current.UVIndex > HighUV) {
		out = append(out, models.CropPlanningSuggestion{
			CropType:       "tomato",
			Recommendation: "Protect tomato plants from heat stress with shade and mulch",
			Timing:         "Immediate",
			Priority:       models.PriorityHigh,
			WeatherFactor:  "high temperature or UV",
		})
	}
	if temp >= 21 && temp <= 35 && humidity < 70 {
		out = append(out, models.CropPlanningSuggestion{
			CropType:       "cotton",
			Recommendation: "Suitable conditions for cotton growth",
			Timing:         "Ongoing",
			Priority:       models.PriorityMedium,
			WeatherFactor:  "warm and moderately dry",
		})
	}
	if temp > 25 && humidity > 50 {
		out = append(out, models.CropPlanningSuggestion{
			CropType:       "sugarcane",
			Recommendation: "Favourable growth conditions for sugarcane; maintain soil moisture",
			Timing:         "Ongoing",
			Priority:       models.PriorityLow,
			WeatherFactor:  "warm and humid",
		})
	}
	switch {
	case temp >= 15 && temp <= 25:
		out = append(out, models.CropPlanningSuggestion{
			CropType:       "leafy vegetables",
			Recommendation: "Ideal for sowing spinach, lettuce and other leafy greens",
			Timing:         "This week",
			Priority:       models.PriorityMedium,
			WeatherFactor:  "mild temperatures",
		})
	case temp > 30:
		out = append(out, models.CropPlanningSuggestion{
			CropType:       "leafy vegetables",
			Recommendation: "Provide shade for leafy vegetables to prevent bolting",
			Timing:         "Immediate",
			Priority:       models.PriorityMedium,
			WeatherFactor:  "high temperature",
		})
	}
	return out
}

// IsDrySpell reports whether every day in the look-ahead window has a low rain chance.
func IsDrySpell(forecast []models.ForecastEntry) bool {
	if len(forecast) == 0 {
		return false
	}
	n := min(len(forecast), drySpellWindowDays)
	for _, day := range forecast[:n] {
		if day.PrecipitationProbability >= DrySpellProb {
			return false
		}
	}
	return true
}

func rainLikely(forecast []models.ForecastEntry) bool {
	return len(forecast) > 0 && forecast[0].PrecipitationProbability >= rainChanceThreshold
}
