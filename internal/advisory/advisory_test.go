package advisory

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

var day0 = time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

func days(probs ...int) []models.ForecastEntry {
	out := make([]models.ForecastEntry, len(probs))
	for i, p := range probs {
		out[i] = models.ForecastEntry{Date: day0.AddDate(0, 0, i+1), PrecipitationProbability: p}
	}
	return out
}

func containsAny(list []string, substr string) bool {
	for _, s := range list {
		if strings.Contains(strings.ToLower(s), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

func TestFarmingRecommendations_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		current models.CurrentConditions
		fc      []models.ForecastEntry
		want    []string
		notWant []string
	}{
		{
			name:    "heat stress",
			current: models.CurrentConditions{Temperature: 42, Humidity: 40, WindSpeed: 6},
			fc:      days(30, 30, 30),
			want:    []string{"increase irrigation frequency", "shade"},
			notWant: []string{"frost", "optimal"},
		},
		{
			name:    "exactly 35 is not heat stress",
			current: models.CurrentConditions{Temperature: 35, Humidity: 40, WindSpeed: 6},
			fc:      days(30),
			notWant: []string{"high temperature alert"},
		},
		{
			name:    "frost",
			current: models.CurrentConditions{Temperature: 4, Humidity: 50, WindSpeed: 6},
			fc:      days(30),
			want:    []string{"frost"},
		},
		{
			name:    "optimal band",
			current: models.CurrentConditions{Temperature: 27, Humidity: 50, WindSpeed: 6},
			fc:      days(30),
			want:    []string{"optimal"},
		},
		{
			name:    "fungal risk",
			current: models.CurrentConditions{Temperature: 22, Humidity: 85, WindSpeed: 6},
			fc:      days(30),
			want:    []string{"fungal"},
		},
		{
			name:    "drought mulching",
			current: models.CurrentConditions{Temperature: 22, Humidity: 20, WindSpeed: 6},
			fc:      days(30),
			want:    []string{"mulching"},
		},
		{
			name:    "rain postpone and heavy rain harvest",
			current: models.CurrentConditions{Temperature: 22, Humidity: 60, WindSpeed: 6},
			fc:      []models.ForecastEntry{{Date: day0.AddDate(0, 0, 1), PrecipitationProbability: 90, PrecipitationAmount: 25}},
			want:    []string{"postpone irrigation", "harvest mature crops"},
		},
		{
			name:    "dry spell",
			current: models.CurrentConditions{Temperature: 22, Humidity: 60, WindSpeed: 6},
			fc:      days(5, 10, 15),
			want:    []string{"dry spell"},
		},
		{
			name:    "one rainy day breaks dry spell",
			current: models.CurrentConditions{Temperature: 22, Humidity: 60, WindSpeed: 6},
			fc:      days(5, 40, 15),
			notWant: []string{"dry spell"},
		},
		{
			name:    "strong wind",
			current: models.CurrentConditions{Temperature: 22, Humidity: 60, WindSpeed: 14},
			fc:      days(30),
			want:    []string{"avoid spraying"},
		},
		{
			name:    "calm and dry spraying window",
			current: models.CurrentConditions{Temperature: 22, Humidity: 60, WindSpeed: 2},
			fc:      days(10),
			want:    []string{"good window for pesticide"},
		},
		{
			name:    "calm but rain likely",
			current: models.CurrentConditions{Temperature: 22, Humidity: 60, WindSpeed: 2},
			fc:      days(60),
			notWant: []string{"good window for pesticide"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := FarmingRecommendations(tt.current, tt.fc, time.May)
			for _, w := range tt.want {
				assert.Truef(t, containsAny(recs, w), "want recommendation containing %q, got %v", w, recs)
			}
			for _, nw := range tt.notWant {
				assert.Falsef(t, containsAny(recs, nw), "unexpected recommendation containing %q, got %v", nw, recs)
			}
		})
	}
}

func TestSeasonalNote(t *testing.T) {
	tests := []struct {
		month time.Month
		want  string
	}{
		{time.January, "Rabi"},
		{time.December, "Rabi"},
		{time.April, "Zaid"},
		{time.July, "Kharif"},
		{time.September, "Kharif"},
		{time.October, "Post-monsoon"},
		{time.November, "Post-monsoon"},
	}
	for _, tt := range tests {
		assert.Contains(t, SeasonalNote(tt.month), tt.want, "month %s", tt.month)
	}
}

func TestFarmingRecommendations_AlwaysIncludesSeasonalNote(t *testing.T) {
	recs := FarmingRecommendations(models.CurrentConditions{Temperature: 20, Humidity: 50, WindSpeed: 7}, nil, time.July)
	require.NotEmpty(t, recs)
	assert.Contains(t, recs[len(recs)-1], "Kharif")
}

func TestAgriculturalAdvisory_HeatIncreasesIrrigation(t *testing.T) {
	a := AgriculturalAdvisory(models.CurrentConditions{Temperature: 42, Humidity: 40, WindSpeed: 6}, days(30, 30, 30))
	assert.Contains(t, strings.ToLower(a.Irrigation), "increase")
	assert.Contains(t, strings.ToLower(a.Irrigation), "frequency")
	assert.NotEmpty(t, a.PestControl)
	assert.NotEmpty(t, a.Harvesting)
	assert.NotEmpty(t, a.Planting)
	assert.NotEmpty(t, a.General)
	assert.NotEmpty(t, a.SoilConditions)
	assert.NotEmpty(t, a.CropProtection)
}

func TestAgriculturalAdvisory_RainPostpones(t *testing.T) {
	fc := []models.ForecastEntry{{Date: day0, PrecipitationProbability: 80, PrecipitationAmount: 15}}
	a := AgriculturalAdvisory(models.CurrentConditions{Temperature: 22, Humidity: 60, WindSpeed: 6}, fc)
	assert.Contains(t, a.Irrigation, "Postpone")
	assert.Contains(t, a.Harvesting, "before heavy rain")
}

func cropTypes(s []models.CropPlanningSuggestion) []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.CropType
	}
	return out
}

func TestCropPlanning_Predicates(t *testing.T) {
	uv := 9.0
	tests := []struct {
		name    string
		current models.CurrentConditions
		fc      []models.ForecastEntry
		want    []string
	}{
		{
			name:    "hot and humid",
			current: models.CurrentConditions{Temperature: 32, Humidity: 75},
			fc:      days(30),
			want:    []string{"rice", "tomato", "sugarcane", "leafy vegetables"},
		},
		{
			name:    "cool",
			current: models.CurrentConditions{Temperature: 18, Humidity: 40},
			fc:      days(10),
			want:    []string{"wheat", "leafy vegetables"},
		},
		{
			name:    "warm and dry",
			current: models.CurrentConditions{Temperature: 28, Humidity: 45},
			fc:      days(10),
			want:    []string{"cotton"},
		},
		{
			name:    "high uv triggers tomato alone",
			current: models.CurrentConditions{Temperature: 9, Humidity: 40, UVIndex: &uv},
			fc:      days(10),
			want:    []string{"tomato"},
		},
		{
			name:    "rain driven rice",
			current: models.CurrentConditions{Temperature: 24, Humidity: 40},
			fc:      days(75),
			want:    []string{"rice", "wheat", "cotton", "leafy vegetables"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, cropTypes(CropPlanning(tt.current, tt.fc)))
		})
	}
}

func TestCropPlanning_TomatoPriorityHigh(t *testing.T) {
	for _, s := range CropPlanning(models.CurrentConditions{Temperature: 33, Humidity: 40}, nil) {
		if s.CropType == "tomato" {
			assert.Equal(t, models.PriorityHigh, s.Priority)
			return
		}
	}
	t.Fatal("tomato suggestion missing")
}

func TestSortForecast_OrdersByDateWithoutMutatingInput(t *testing.T) {
	in := []models.ForecastEntry{
		{Date: day0.AddDate(0, 0, 3), PrecipitationProbability: 3},
		{Date: day0.AddDate(0, 0, 1), PrecipitationProbability: 1},
		{Date: day0.AddDate(0, 0, 2), PrecipitationProbability: 2},
	}
	out := SortForecast(in)
	require.Len(t, out, 3)
	assert.Equal(t, 1, out[0].PrecipitationProbability)
	assert.Equal(t, 2, out[1].PrecipitationProbability)
	assert.Equal(t, 3, out[2].PrecipitationProbability)
	assert.Equal(t, 3, in[0].PrecipitationProbability, "input must not be reordered")
}

// TestDerive_UsesEarliestDayAsTomorrow verifies unsorted provider data still drives "tomorrow" rules from the earliest day.
func TestDerive_UsesEarliestDayAsTomorrow(t *testing.T) {
	fc := []models.ForecastEntry{
		{Date: day0.AddDate(0, 0, 2), PrecipitationProbability: 10},
		{Date: day0.AddDate(0, 0, 1), PrecipitationProbability: 90},
	}
	d := Derive(models.CurrentConditions{Temperature: 22, Humidity: 60, WindSpeed: 6}, fc, day0)
	assert.True(t, containsAny(d.FarmingRecommendations, "postpone irrigation"))
	assert.Contains(t, d.AgriculturalAdvisory.Irrigation, "Postpone")
}
