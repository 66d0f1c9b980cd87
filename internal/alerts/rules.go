package alerts

import (
	"fmt"
	"time"

	"github.com/kjstillabower/agri-weather-service/internal/advisory"
	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// Severity escalation points beyond the advisory thresholds.
const (
	extremeHeatTemp   = 40.0
	hardFrostTemp     = 2.0
	extremeRainAmount = 25.0
	galeWind          = 15.0
)

// defaultValidity applies to alerts driven by current conditions.
const defaultValidity = 24 * time.Hour

// DeriveAlerts turns a forecast into alerts. UserID and ID are left for the caller to fill.
// Each alert type fires at most once per forecast, on its most severe trigger.
func DeriveAlerts(fc models.ForecastResult, now time.Time) []models.FarmingAlert {
	forecast := advisory.SortForecast(fc.Forecast)
	current := fc.Current
	var out []models.FarmingAlert

	add := func(t models.AlertType, sev models.Severity, title, msg string, until time.Time) {
		out = append(out, models.FarmingAlert{
			Type:        t,
			Severity:    sev,
			Title:       title,
			Message:     msg,
			LocationKey: fc.LocationKey,
			ValidFrom:   now,
			ValidUntil:  until,
			CreatedAt:   now,
		})
	}

	if peak, until := hottest(current, forecast, now); peak > advisory.HeatStressTemp {
		sev := models.SeverityMedium
		if peak > extremeHeatTemp {
			sev = models.SeverityHigh
		}
		add(models.AlertHeatStress, sev, "Heat stress risk",
			fmt.Sprintf("Temperatures up to %.1f°C expected. Irrigate early morning or evening and shade sensitive crops.", peak), until)
	}

	if low, until := coldest(current, forecast, now); low < advisory.FrostTemp {
		sev := models.SeverityMedium
		if low < hardFrostTemp {
			sev = models.SeverityHigh
		}
		add(models.AlertFrost, sev, "Frost risk",
			fmt.Sprintf("Temperatures down to %.1f°C expected. Cover seedlings and irrigate lightly before nightfall.", low), until)
	}

	if day, ok := wettest(forecast); ok && day.PrecipitationAmount > advisory.HeavyRainAmount {
		sev := models.SeverityMedium
		if day.PrecipitationAmount > extremeRainAmount || day.PrecipitationProbability > advisory.RainPostponeProb {
			sev = models.SeverityHigh
		}
		add(models.AlertHeavyRain, sev, "Heavy rain expected",
			fmt.Sprintf("%.1f mm of rain expected on %s. Harvest mature crops and clear field drainage.", day.PrecipitationAmount, day.Date.Format("2 Jan")),
			day.Date.Add(24*time.Hour))
	}

	if current.WindSpeed > advisory.StrongWind {
		sev := models.SeverityMedium
		if current.WindSpeed > galeWind {
			sev = models.SeverityHigh
		}
		add(models.AlertStrongWind, sev, "Strong winds",
			fmt.Sprintf("Wind speeds of %.1f m/s. Avoid spraying and secure support structures.", current.WindSpeed),
			now.Add(defaultValidity))
	}

	if current.Humidity > advisory.FungalHumidity {
		add(models.AlertFungalRisk, models.SeverityMedium, "Fungal disease risk",
			fmt.Sprintf("Humidity at %d%%. Inspect crops for fungal infection and improve air circulation.", current.Humidity),
			now.Add(defaultValidity))
	}

	if advisory.IsDrySpell(forecast) {
		last := forecast[min(len(forecast), 3)-1]
		add(models.AlertDrySpell, models.SeverityLow, "Dry spell ahead",
			"Little rain expected over the coming days. Plan irrigation and apply mulch to retain soil moisture.",
			last.Date.Add(24*time.Hour))
	}

	return out
}

func hottest(current models.CurrentConditions, forecast []models.ForecastEntry, now time.Time) (peak float64, until time.Time) {
	peak, until = current.Temperature, now.Add(defaultValidity)
	for _, d := range forecast {
		if d.MaxTemperature > peak {
			peak, until = d.MaxTemperature, d.Date.Add(24*time.Hour)
		}
	}
	return peak, until
}

func coldest(current models.CurrentConditions, forecast []models.ForecastEntry, now time.Time) (low float64, until time.Time) {
	low, until = current.Temperature, now.Add(defaultValidity)
	for _, d := range forecast {
		if d.MinTemperature < low {
			low, until = d.MinTemperature, d.Date.Add(24*time.Hour)
		}
	}
	return low, until
}

func wettest(forecast []models.ForecastEntry) (models.ForecastEntry, bool) {
	if len(forecast) == 0 {
		return models.ForecastEntry{}, false
	}
	best := forecast[0]
	for _, d := range forecast[1:] {
		if d.PrecipitationAmount > best.PrecipitationAmount {
			best = d
		}
	}
	return best, true
}
