package cache

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/agri-weather-service/internal/models"
	"github.com/kjstillabower/agri-weather-service/internal/observability"
)

// DurableStore is the document-store tier. Entries carry their own expiry; the backend
// removes them passively once it passes.
type DurableStore interface {
	Find(ctx context.Context, key string) (models.ForecastResult, bool, error)
	Upsert(ctx context.Context, key string, value models.ForecastResult, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
}

// Tier labels used in metrics and logs.
const (
	TierFast    = "fast"
	TierDurable = "durable"
)

// Defaults for tier lifetimes.
const (
	DefaultFastTTL    = time.Hour
	DefaultDurableTTL = 6 * time.Hour
)

// TwoTier reads the fast tier first and falls back to the durable tier, repopulating the fast
// tier on a durable hit. Backend failures are logged and counted, never returned: a failed
// read is a miss and a failed write is skipped.
type TwoTier struct {
	fast       Cache
	durable    DurableStore
	fastTTL    time.Duration
	durableTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// TwoTierOption configures a TwoTier.
type TwoTierOption func(*TwoTier)

// WithFastTTL sets the fast-tier TTL (default 1h).
func WithFastTTL(d time.Duration) TwoTierOption {
	return func(t *TwoTier) {
		if d > 0 {
			t.fastTTL = d
		}
	}
}

// WithDurableTTL sets the expiry used when an entry carries none (default 6h).
func WithDurableTTL(d time.Duration) TwoTierOption {
	return func(t *TwoTier) {
		if d > 0 {
			t.durableTTL = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TwoTierOption {
	return func(t *TwoTier) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTwoTier builds the two-tier cache. Either tier may be nil, in which case it is skipped.
func NewTwoTier(fast Cache, durable DurableStore, logger *zap.Logger, opts ...TwoTierOption) *TwoTier {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &TwoTier{
		fast:       fast,
		durable:    durable,
		fastTTL:    DefaultFastTTL,
		durableTTL: DefaultDurableTTL,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get returns the cached result for key from whichever tier has it.
func (t *TwoTier) Get(ctx context.Context, key string) (models.ForecastResult, bool) {
	if t.fast != nil {
		start := time.Now()
		v, ok, err := t.fast.Get(ctx, key)
		t.observe(TierFast, "get", start, err)
		switch {
		case err != nil:
			t.recordError(ctx, TierFast, "get", key, err)
		case ok:
			observability.CacheHitsTotal.WithLabelValues(TierFast).Inc()
			return v, true
		default:
			observability.CacheMissesTotal.WithLabelValues(TierFast).Inc()
		}
	}

	if t.durable == nil {
		return models.ForecastResult{}, false
	}

	start := time.Now()
	v, ok, err := t.durable.Find(ctx, key)
	t.observe(TierDurable, "get", start, err)
	if err != nil {
		t.recordError(ctx, TierDurable, "get", key, err)
		return models.ForecastResult{}, false
	}
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(TierDurable).Inc()
		return models.ForecastResult{}, false
	}
	observability.CacheHitsTotal.WithLabelValues(TierDurable).Inc()

	if t.fast != nil {
		start := time.Now()
		err := t.fast.Set(ctx, key, v, t.fastTTL)
		t.observe(TierFast, "set", start, err)
		if err != nil {
			t.recordError(ctx, TierFast, "set", key, err)
		}
	}
	return v, true
}

// Set writes value to both tiers. The durable tier expires the entry at value.ExpiresAt,
// or after the default durable TTL when that is unset.
func (t *TwoTier) Set(ctx context.Context, key string, value models.ForecastResult) {
	if t.fast != nil {
		start := time.Now()
		err := t.fast.Set(ctx, key, value, t.fastTTL)
		t.observe(TierFast, "set", start, err)
		if err != nil {
			t.recordError(ctx, TierFast, "set", key, err)
		}
	}

	if t.durable != nil {
		expiresAt := value.ExpiresAt
		if expiresAt.IsZero() {
			expiresAt = t.now().Add(t.durableTTL)
		}
		start := time.Now()
		err := t.durable.Upsert(ctx, key, value, expiresAt)
		t.observe(TierDurable, "set", start, err)
		if err != nil {
			t.recordError(ctx, TierDurable, "set", key, err)
		}
	}
}

// Invalidate removes key from both tiers.
func (t *TwoTier) Invalidate(ctx context.Context, key string) {
	if t.fast != nil {
		start := time.Now()
		err := t.fast.Delete(ctx, key)
		t.observe(TierFast, "delete", start, err)
		if err != nil {
			t.recordError(ctx, TierFast, "delete", key, err)
		}
	}
	if t.durable != nil {
		start := time.Now()
		err := t.durable.Delete(ctx, key)
		t.observe(TierDurable, "delete", start, err)
		if err != nil {
			t.recordError(ctx, TierDurable, "delete", key, err)
		}
	}
}

func (t *TwoTier) observe(tier, op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	observability.CacheOperationDurationSeconds.WithLabelValues(tier, op, result).Observe(time.Since(start).Seconds())
}

func (t *TwoTier) recordError(ctx context.Context, tier, op, key string, err error) {
	category := categorizeCacheError(err)
	observability.CacheErrorsTotal.WithLabelValues(tier, op, category).Inc()
	observability.LoggerFrom(ctx, t.logger).Warn("cache tier unavailable, continuing without it",
		zap.String("tier", tier),
		zap.String("operation", op),
		zap.String("location_key", key),
		zap.String("category", category),
		zap.Error(err),
	)
}

func categorizeCacheError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "connection"
	}
	return "other"
}
