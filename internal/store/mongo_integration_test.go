//go:build integration
// +build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

func mongoURI() string {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017"
}

// TestMongoStores_Integration exercises the forecast, user and alert stores against a live MongoDB.
func TestMongoStores_Integration(t *testing.T) {
	ctx := context.Background()
	client, db, err := Connect(ctx, mongoURI(), "agri_weather_test_"+uuid.NewString()[:8], 2*time.Second)
	if err != nil {
		t.Skipf("mongo not reachable: %v", err)
	}
	defer func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	}()

	forecasts := NewMongoForecastStore(db, DefaultGuardConfig())
	if err := forecasts.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	exp := time.Now().Add(6 * time.Hour).UTC().Truncate(time.Millisecond)
	in := models.ForecastResult{Latitude: 28.6139, Longitude: 77.209, Origin: models.OriginLive}
	if err := forecasts.Upsert(ctx, "28.6139_77.2090", in, exp); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, ok, err := forecasts.Find(ctx, "28.6139_77.2090")
	if err != nil || !ok {
		t.Fatalf("Find() = %v, %v", ok, err)
	}
	if !got.ExpiresAt.Equal(exp) || got.Origin != "" {
		t.Errorf("Find() = %+v; want expiry %v and no persisted origin", got, exp)
	}
	if err := forecasts.Upsert(ctx, "28.6139_77.2091", in, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, ok, err := forecasts.Find(ctx, "28.6139_77.2091"); err != nil || ok {
		t.Errorf("Find() on expired document = %v, %v; want miss", ok, err)
	}
	if err := forecasts.Delete(ctx, "28.6139_77.2090"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := forecasts.Find(ctx, "28.6139_77.2090"); ok {
		t.Error("Find() after Delete ok = true")
	}

	users := NewMongoUserStore(db, DefaultGuardConfig())
	loc := &models.Coordinates{Latitude: 28.6139, Longitude: 77.209}
	if err := users.UpsertUser(ctx, models.UserProfile{ID: "u1", Location: loc, AlertsEnabled: true}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	list, err := users.ListAlertUsers(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListAlertUsers() = %v, %v", list, err)
	}

	alerts := NewMongoAlertStore(db, DefaultGuardConfig())
	if err := alerts.EnsureIndexes(ctx); err != nil {
		t.Fatalf("alerts EnsureIndexes() error = %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := alerts.SaveAlerts(ctx, []models.FarmingAlert{
		{ID: uuid.NewString(), UserID: "u1", Type: models.AlertHeatStress, CreatedAt: now, ValidUntil: now.Add(24 * time.Hour)},
	}); err != nil {
		t.Fatalf("SaveAlerts() error = %v", err)
	}
	saved, err := alerts.ListAlerts(ctx, "u1", 10)
	if err != nil || len(saved) != 1 || saved[0].Type != models.AlertHeatStress {
		t.Errorf("ListAlerts() = %+v, %v", saved, err)
	}
}
