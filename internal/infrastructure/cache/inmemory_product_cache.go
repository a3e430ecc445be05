package cache

import (
	"context"
	"sync"
	"time"

	"github.com/marketsync/backend/internal/domain/ledger"
)

// productEntry is a cached product with expiration
type productEntry struct {
	ref       *ledger.ProductRef
	expiresAt time.Time
}

// InMemoryProductCache implements ProductCache with a plain map. Suitable
// for single-process runs; a fresh cache per pass is the expected use.
type InMemoryProductCache struct {
	mu        sync.RWMutex
	entries   map[string]productEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryProductCache creates an in-memory product cache with a
// background janitor for expired entries.
func NewInMemoryProductCache() *InMemoryProductCache {
	c := &InMemoryProductCache{
		entries:  make(map[string]productEntry),
		stopChan: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	return c
}

// Get returns the cached product and true, or nil and false on a miss
func (c *InMemoryProductCache) Get(_ context.Context, key string) (*ledger.ProductRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.ref, true
}

// Set stores the product under key for ttl
func (c *InMemoryProductCache) Set(_ context.Context, key string, ref *ledger.ProductRef, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = productEntry{ref: ref, expiresAt: time.Now().Add(ttl)}
}

// Close stops the janitor
func (c *InMemoryProductCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
	return nil
}

// cleanupLoop periodically removes expired entries
func (c *InMemoryProductCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *InMemoryProductCache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Ensure InMemoryProductCache implements ProductCache
var _ ProductCache = (*InMemoryProductCache)(nil)
