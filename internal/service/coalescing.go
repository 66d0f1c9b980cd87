package service

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// requestCoalescer lets concurrent misses for one key share a single resolution.
// The shared call runs detached from the first caller's cancellation so a departing caller
// does not fail the others; each caller still stops waiting when its own ctx ends.
type requestCoalescer struct {
	group singleflight.Group
}

// Do runs fn once per key among concurrent callers. shared reports whether the result was
// delivered to more than one caller.
func (rc *requestCoalescer) Do(ctx context.Context, key string, fn func(ctx context.Context) (models.ForecastResult, error)) (result models.ForecastResult, shared bool, err error) {
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.ForecastResult{}, res.Shared, res.Err
		}
		return res.Val.(models.ForecastResult), res.Shared, nil
	case <-ctx.Done():
		return models.ForecastResult{}, false, ctx.Err()
	}
}
