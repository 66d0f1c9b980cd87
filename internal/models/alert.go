package models

import "time"

// AlertType classifies a farming alert.
type AlertType string

const (
	AlertHeatStress AlertType = "heat_stress"
	AlertFrost      AlertType = "frost"
	AlertHeavyRain  AlertType = "heavy_rain"
	AlertStrongWind AlertType = "strong_wind"
	AlertFungalRisk AlertType = "fungal_risk"
	AlertDrySpell   AlertType = "dry_spell"
)

// Severity of a farming alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FarmingAlert is a persisted, user-scoped alert derived from a forecast.
type FarmingAlert struct {
	ID          string    `json:"id" bson:"_id"`
	UserID      string    `json:"userId" bson:"userId"`
	Type        AlertType `json:"type" bson:"type"`
	Severity    Severity  `json:"severity" bson:"severity"`
	Title       string    `json:"title" bson:"title"`
	Message     string    `json:"message" bson:"message"`
	LocationKey string    `json:"locationKey" bson:"locationKey"`
	ValidFrom   time.Time `json:"validFrom" bson:"validFrom"`
	ValidUntil  time.Time `json:"validUntil" bson:"validUntil"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// UserProfile is the subset of a user record the alert pipeline needs.
type UserProfile struct {
	ID            string       `json:"id" bson:"_id"`
	Location      *Coordinates `json:"location,omitempty" bson:"location,omitempty"`
	AlertsEnabled bool         `json:"alertsEnabled" bson:"alertsEnabled"`
}
