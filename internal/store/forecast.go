package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// MongoForecastStore is the durable forecast tier. Documents are keyed by location key and
// removed by a TTL index once expiresAt passes.
type MongoForecastStore struct {
	coll *mongo.Collection
	cb   *gobreaker.CircuitBreaker
	now  func() time.Time
}

// NewMongoForecastStore wraps the forecasts collection of db.
func NewMongoForecastStore(db *mongo.Database, guard GuardConfig) *MongoForecastStore {
	return &MongoForecastStore{
		coll: db.Collection(ForecastsCollection),
		cb:   newGuard("mongo_forecasts", guard),
		now:  time.Now,
	}
}

// EnsureIndexes creates the TTL index on expiresAt. Safe to call repeatedly.
func (s *MongoForecastStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetName("expiresAt_ttl").SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("create forecasts ttl index: %w", err)
	}
	return nil
}

// Find returns the stored forecast for key. Expired documents the TTL monitor has not yet
// removed are treated as missing.
func (s *MongoForecastStore) Find(ctx context.Context, key string) (models.ForecastResult, bool, error) {
	doc, err := guarded(s.cb, func() (models.ForecastResult, error) {
		var out models.ForecastResult
		err := s.coll.FindOne(ctx, liveForecastFilter(key, s.now())).Decode(&out)
		return out, err
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ForecastResult{}, false, nil
	}
	if err != nil {
		return models.ForecastResult{}, false, fmt.Errorf("find forecast %s: %w", key, err)
	}
	return doc, true, nil
}

// liveForecastFilter matches the document for key only while it has not expired.
func liveForecastFilter(key string, now time.Time) bson.M {
	return bson.M{"_id": key, "expiresAt": bson.M{"$gt": now}}
}

// Upsert replaces the document for key, setting its expiry.
func (s *MongoForecastStore) Upsert(ctx context.Context, key string, value models.ForecastResult, expiresAt time.Time) error {
	value.LocationKey = key
	value.ExpiresAt = expiresAt
	_, err := guarded(s.cb, func() (*mongo.UpdateResult, error) {
		return s.coll.ReplaceOne(ctx, bson.M{"_id": key}, value, options.Replace().SetUpsert(true))
	})
	if err != nil {
		return fmt.Errorf("upsert forecast %s: %w", key, err)
	}
	return nil
}

// Delete removes the document for key.
func (s *MongoForecastStore) Delete(ctx context.Context, key string) error {
	_, err := guarded(s.cb, func() (*mongo.DeleteResult, error) {
		return s.coll.DeleteOne(ctx, bson.M{"_id": key})
	})
	if err != nil {
		return fmt.Errorf("delete forecast %s: %w", key, err)
	}
	return nil
}

// State reports the collection breaker state (for health checks).
func (s *MongoForecastStore) State() gobreaker.State {
	return s.cb.State()
}
