package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// MemoryForecastStore is an in-process durable tier. Expired documents are dropped on read.
type MemoryForecastStore struct {
	mu   sync.Mutex
	docs map[string]models.ForecastResult
	now  func() time.Time
}

// NewMemoryForecastStore returns an empty store; now defaults to time.Now.
func NewMemoryForecastStore(now func() time.Time) *MemoryForecastStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryForecastStore{docs: map[string]models.ForecastResult{}, now: now}
}

// Find returns the document for key unless it has expired.
func (s *MemoryForecastStore) Find(_ context.Context, key string) (models.ForecastResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		return models.ForecastResult{}, false, nil
	}
	if !doc.ExpiresAt.IsZero() && !s.now().Before(doc.ExpiresAt) {
		delete(s.docs, key)
		return models.ForecastResult{}, false, nil
	}
	return doc, true, nil
}

// Upsert stores value under key with the given expiry.
func (s *MemoryForecastStore) Upsert(_ context.Context, key string, value models.ForecastResult, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	value.LocationKey = key
	value.ExpiresAt = expiresAt
	s.docs[key] = value
	return nil
}

// Delete removes key.
func (s *MemoryForecastStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil
}

// MemoryUserStore implements UserStore in memory.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]models.UserProfile
}

// NewMemoryUserStore seeds the store with users.
func NewMemoryUserStore(users ...models.UserProfile) *MemoryUserStore {
	s := &MemoryUserStore{users: map[string]models.UserProfile{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *MemoryUserStore) GetUser(_ context.Context, id string) (models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.UserProfile{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *MemoryUserStore) ListAlertUsers(_ context.Context) ([]models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UserProfile
	for _, u := range s.users {
		if u.AlertsEnabled && u.Location != nil {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryUserStore) UpsertUser(_ context.Context, u models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// MemoryAlertStore implements AlertStore in memory.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts []models.FarmingAlert
}

// NewMemoryAlertStore returns an empty store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{}
}

func (s *MemoryAlertStore) SaveAlerts(_ context.Context, alerts []models.FarmingAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alerts...)
	return nil
}

func (s *MemoryAlertStore) ListAlerts(_ context.Context, userID string, limit int) ([]models.FarmingAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FarmingAlert
	for _, a := range s.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
