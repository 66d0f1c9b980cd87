package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// UserStore reads the user fields the alert pipeline needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (models.UserProfile, error)
	ListAlertUsers(ctx context.Context) ([]models.UserProfile, error)
	UpsertUser(ctx context.Context, u models.UserProfile) error
}

// MongoUserStore implements UserStore on the users collection.
type MongoUserStore struct {
	coll *mongo.Collection
	cb   *gobreaker.CircuitBreaker
}

// NewMongoUserStore wraps the users collection of db.
func NewMongoUserStore(db *mongo.Database, guard GuardConfig) *MongoUserStore {
	return &MongoUserStore{
		coll: db.Collection(UsersCollection),
		cb:   newGuard("mongo_users", guard),
	}
}

// GetUser returns ErrNotFound when no user has id.
func (s *MongoUserStore) GetUser(ctx context.Context, id string) (models.UserProfile, error) {
	u, err := guarded(s.cb, func() (models.UserProfile, error) {
		var out models.UserProfile
		err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&out)
		return out, err
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.UserProfile{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// ListAlertUsers returns users with alerts enabled and a stored location.
func (s *MongoUserStore) ListAlertUsers(ctx context.Context) ([]models.UserProfile, error) {
	users, err := guarded(s.cb, func() ([]models.UserProfile, error) {
		cur, err := s.coll.Find(ctx, bson.M{
			"alertsEnabled": true,
			"location":      bson.M{"$exists": true},
		})
		if err != nil {
			return nil, err
		}
		var out []models.UserProfile
		if err := cur.All(ctx, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list alert users: %w", err)
	}
	return users, nil
}

// UpsertUser creates or replaces the profile.
func (s *MongoUserStore) UpsertUser(ctx context.Context, u models.UserProfile) error {
	_, err := guarded(s.cb, func() (*mongo.UpdateResult, error) {
		return s.coll.ReplaceOne(ctx, bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	})
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}
