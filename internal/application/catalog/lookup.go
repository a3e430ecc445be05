// Package catalog provides cached, throttled catalog product resolution for
// the reconciliation engines. Product lookups dominate the ledger API
// traffic of a pass; the cache collapses repeats within a run (and across
// runs when backed by redis) and the throttle keeps bulk lookups from
// bursting into the backend's rate limit.
package catalog

import (
	"context"
	"time"

	"github.com/marketsync/backend/internal/domain/ledger"
	"github.com/marketsync/backend/internal/infrastructure/cache"
)

// Lookup resolves catalog products by article or canonical reference.
type Lookup struct {
	backend  ledger.Backend
	cache    cache.ProductCache
	throttle time.Duration
	ttl      time.Duration
}

// NewLookup creates a catalog lookup. throttle is the fixed delay inserted
// after every backend call during bulk resolution; ttl bounds cache entries.
func NewLookup(backend ledger.Backend, productCache cache.ProductCache, throttle, ttl time.Duration) *Lookup {
	return &Lookup{
		backend:  backend,
		cache:    productCache,
		throttle: throttle,
		ttl:      ttl,
	}
}

// ByArticle resolves a product by seller SKU code. Returns nil, nil when the
// catalog has no match; a missing product is a data-quality condition the
// caller counts, not an error.
func (l *Lookup) ByArticle(ctx context.Context, article string) (*ledger.ProductRef, error) {
	if article == "" {
		return nil, nil
	}
	if ref, ok := l.cache.Get(ctx, articleKey(article)); ok {
		return ref, nil
	}

	ref, err := l.backend.FindProductByArticle(ctx, article)
	if err != nil {
		return nil, err
	}
	l.pause(ctx)
	if ref == nil {
		return nil, nil
	}

	l.cache.Set(ctx, articleKey(article), ref, l.ttl)
	return ref, nil
}

// ByHref fetches a product entity by its canonical ledger reference
func (l *Lookup) ByHref(ctx context.Context, href string) (*ledger.ProductRef, error) {
	if href == "" {
		return nil, nil
	}
	if ref, ok := l.cache.Get(ctx, hrefKey(href)); ok {
		return ref, nil
	}

	ref, err := l.backend.ProductByHref(ctx, href)
	if err != nil {
		return nil, err
	}
	l.pause(ctx)
	if ref == nil {
		return nil, nil
	}

	l.cache.Set(ctx, hrefKey(href), ref, l.ttl)
	return ref, nil
}

// pause applies the inter-call throttle unless the context is done
func (l *Lookup) pause(ctx context.Context) {
	if l.throttle <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(l.throttle):
	}
}

func articleKey(article string) string { return "product:article:" + article }
func hrefKey(href string) string       { return "product:href:" + href }
