// Package cache provides the catalog product cache used by the
// reconciliation engines. The in-memory store covers a single pass; the
// redis store shares resolved products across passes and processes.
package cache

import (
	"context"
	"time"

	"github.com/marketsync/backend/internal/domain/ledger"
)

// ProductCache stores resolved catalog products under derived keys. Cache
// misses and cache errors look the same to callers: the product is looked up
// again at the backend.
type ProductCache interface {
	// Get returns the cached product and true, or nil and false on a miss
	Get(ctx context.Context, key string) (*ledger.ProductRef, bool)

	// Set stores the product under key for ttl
	Set(ctx context.Context, key string, ref *ledger.ProductRef, ttl time.Duration)

	// Close releases the store's resources
	Close() error
}
