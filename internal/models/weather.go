package models

import "time"

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// CurrentConditions is a point-in-time weather snapshot. A new fetch produces a new value;
// values are never mutated after construction.
type CurrentConditions struct {
	Temperature   float64  `json:"temperature" bson:"temperature"`
	FeelsLike     float64  `json:"feelsLike" bson:"feelsLike"`
	Humidity      int      `json:"humidity" bson:"humidity"`
	Pressure      int      `json:"pressure" bson:"pressure"`
	WindSpeed     float64  `json:"windSpeed" bson:"windSpeed"`         // m/s
	WindDirection int      `json:"windDirection" bson:"windDirection"` // degrees
	Description   string   `json:"description" bson:"description"`
	Visibility    float64  `json:"visibility" bson:"visibility"` // km
	UVIndex       *float64 `json:"uvIndex,omitempty" bson:"uvIndex,omitempty"`
}

// ForecastEntry is one future day of forecast data.
type ForecastEntry struct {
	Date                     time.Time         `json:"date" bson:"date"`
	Weather                  CurrentConditions `json:"weather" bson:"weather"`
	PrecipitationProbability int               `json:"precipitationProbability" bson:"precipitationProbability"` // percent
	PrecipitationAmount      float64           `json:"precipitationAmount" bson:"precipitationAmount"`           // mm
	MinTemperature           float64           `json:"minTemperature" bson:"minTemperature"`
	MaxTemperature           float64           `json:"maxTemperature" bson:"maxTemperature"`
}

// ProviderForecast is the raw payload returned by a weather provider before any advisory derivation.
type ProviderForecast struct {
	Current  CurrentConditions `json:"current"`
	Forecast []ForecastEntry   `json:"forecast"`
}

// Priority ranks crop planning suggestions.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// AgriculturalAdvisory holds the fixed set of advisory categories.
type AgriculturalAdvisory struct {
	Irrigation     string `json:"irrigation" bson:"irrigation"`
	PestControl    string `json:"pestControl" bson:"pestControl"`
	Harvesting     string `json:"harvesting" bson:"harvesting"`
	Planting       string `json:"planting" bson:"planting"`
	General        string `json:"general" bson:"general"`
	SoilConditions string `json:"soilConditions" bson:"soilConditions"`
	CropProtection string `json:"cropProtection" bson:"cropProtection"`
}

// CropPlanningSuggestion is crop-specific advice emitted when its weather predicate holds.
type CropPlanningSuggestion struct {
	CropType       string   `json:"cropType" bson:"cropType"`
	Recommendation string   `json:"recommendation" bson:"recommendation"`
	Timing         string   `json:"timing" bson:"timing"`
	Priority       Priority `json:"priority" bson:"priority"`
	WeatherFactor  string   `json:"weatherFactor" bson:"weatherFactor"`
}

// ForecastResult is the composite response served to callers and stored in both cache tiers.
type ForecastResult struct {
	LocationKey            string                   `json:"locationKey" bson:"_id"`
	Latitude               float64                  `json:"latitude" bson:"latitude"`
	Longitude              float64                  `json:"longitude" bson:"longitude"`
	Current                CurrentConditions        `json:"current" bson:"current"`
	Forecast               []ForecastEntry          `json:"forecast" bson:"forecast"`
	FarmingRecommendations []string                 `json:"farmingRecommendations" bson:"farmingRecommendations"`
	AgriculturalAdvisory   AgriculturalAdvisory     `json:"agriculturalAdvisory" bson:"agriculturalAdvisory"`
	CropPlanning           []CropPlanningSuggestion `json:"cropPlanning" bson:"cropPlanning"`
	CachedAt               time.Time                `json:"cachedAt" bson:"cachedAt"`
	ExpiresAt              time.Time                `json:"expiresAt" bson:"expiresAt"`

	// Delivery markers; never persisted.
	Origin         string   `json:"source" bson:"-"`
	IsFallback     bool     `json:"isFallback" bson:"-"`
	IsStale        bool     `json:"isStale,omitempty" bson:"-"`
	DegradedReason string   `json:"degradedReason,omitempty" bson:"-"`
	Warnings       []string `json:"warnings,omitempty" bson:"-"`
}

// Origin values for ForecastResult.Origin.
const (
	OriginLive     = "live"
	OriginCache    = "cache"
	OriginStale    = "stale"
	OriginFallback = "fallback"
)
