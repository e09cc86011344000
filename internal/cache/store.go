package cache

import (
	"context"
	"time"
)

// Counter tracks fixed-window counters shared between application instances.
type Counter interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
