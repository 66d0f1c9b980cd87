package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// AlertStore persists and lists farming alerts.
type AlertStore interface {
	SaveAlerts(ctx context.Context, alerts []models.FarmingAlert) error
	ListAlerts(ctx context.Context, userID string, limit int) ([]models.FarmingAlert, error)
}

// alertRetention is how long alerts are kept after they stop being valid.
const alertRetention = 7 * 24 * time.Hour

// MongoAlertStore implements AlertStore on the alerts collection.
type MongoAlertStore struct {
	coll *mongo.Collection
	cb   *gobreaker.CircuitBreaker
}

// NewMongoAlertStore wraps the alerts collection of db.
func NewMongoAlertStore(db *mongo.Database, guard GuardConfig) *MongoAlertStore {
	return &MongoAlertStore{
		coll: db.Collection(AlertsCollection),
		cb:   newGuard("mongo_alerts", guard),
	}
}

// EnsureIndexes creates the per-user listing index and the retention TTL index.
func (s *MongoAlertStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("userId_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "validUntil", Value: 1}},
			Options: options.Index().SetName("validUntil_ttl").SetExpireAfterSeconds(int32(alertRetention.Seconds())),
		},
	})
	if err != nil {
		return fmt.Errorf("create alerts indexes: %w", err)
	}
	return nil
}

// SaveAlerts inserts alerts. An empty slice is a no-op.
func (s *MongoAlertStore) SaveAlerts(ctx context.Context, alerts []models.FarmingAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	docs := make([]interface{}, len(alerts))
	for i := range alerts {
		docs[i] = alerts[i]
	}
	_, err := guarded(s.cb, func() (*mongo.InsertManyResult, error) {
		return s.coll.InsertMany(ctx, docs)
	})
	if err != nil {
		return fmt.Errorf("save alerts: %w", err)
	}
	return nil
}

// ListAlerts returns the user's most recent alerts, newest first.
func (s *MongoAlertStore) ListAlerts(ctx context.Context, userID string, limit int) ([]models.FarmingAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	alerts, err := guarded(s.cb, func() ([]models.FarmingAlert, error) {
		opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
		cur, err := s.coll.Find(ctx, bson.M{"userId": userID}, opts)
		if err != nil {
			return nil, err
		}
		var out []models.FarmingAlert
		if err := cur.All(ctx, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list alerts for %s: %w", userID, err)
	}
	return alerts, nil
}
