package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a non-authoritative key/value store. Callers must treat any
// error as a miss.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

func OrderTotalKey(orderID int64) string {
	return fmt.Sprintf("order:%d:total", orderID)
}
