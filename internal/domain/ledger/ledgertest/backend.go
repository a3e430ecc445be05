// Package ledgertest provides an in-memory ledger.Backend for engine tests.
// Documents live in creation order so the "first match wins" lookups behave
// deterministically, and the fake enforces the same nil-on-miss conventions
// as the HTTP adapter.
package ledgertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/marketsync/backend/internal/domain/ledger"
)

// Backend is an in-memory ledger.Backend. The zero value is not usable;
// construct with NewBackend.
type Backend struct {
	mu   sync.Mutex
	seq  int
	docs []*ledger.Document

	// Products resolves FindProductByArticle, keyed by article
	Products map[string]*ledger.ProductRef
	// ProductsByHref resolves ProductByHref, keyed by href
	ProductsByHref map[string]*ledger.ProductRef
	// Stock resolves StockByStore, keyed by store id
	Stock map[string][]ledger.StockRow

	// ApplyErr, when set for a document's external code, is returned by
	// SetApplicable
	ApplyErr map[string]error

	// Call counters for idempotency assertions
	CreateCalls      int
	UpdateStateCalls int
	ApplyCalls       int
	ProductLookups   int
}

// NewBackend creates an empty in-memory backend
func NewBackend() *Backend {
	return &Backend{
		Products:       make(map[string]*ledger.ProductRef),
		ProductsByHref: make(map[string]*ledger.ProductRef),
		Stock:          make(map[string][]ledger.StockRow),
		ApplyErr:       make(map[string]error),
	}
}

var _ ledger.Backend = (*Backend)(nil)

// Seed inserts a document as pre-existing state, assigning an id when the
// document carries none.
func (b *Backend) Seed(doc *ledger.Document) *ledger.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	if doc.ID == "" {
		b.seq++
		doc.ID = fmt.Sprintf("%s-%d", strings.ToLower(doc.Kind.String()), b.seq)
	}
	b.docs = append(b.docs, doc)
	return doc
}

// Document returns the stored document of the kind with the external code,
// or nil when none exists.
func (b *Backend) Document(kind ledger.DocumentKind, externalCode string) *ledger.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, doc := range b.docs {
		if doc.Kind == kind && doc.ExternalCode == externalCode {
			return doc
		}
	}
	return nil
}

// DocumentsOfKind returns every stored document of the kind in creation order
func (b *Backend) DocumentsOfKind(kind ledger.DocumentKind) []*ledger.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*ledger.Document
	for _, doc := range b.docs {
		if doc.Kind == kind {
			out = append(out, doc)
		}
	}
	return out
}

// FindByExternalCode implements ledger.Backend
func (b *Backend) FindByExternalCode(ctx context.Context, kind ledger.DocumentKind, code string) ([]*ledger.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*ledger.Document
	for _, doc := range b.docs {
		if doc.Kind == kind && doc.ExternalCode == code {
			out = append(out, doc)
		}
	}
	return out, nil
}

// FindByName implements ledger.Backend
func (b *Backend) FindByName(ctx context.Context, kind ledger.DocumentKind, name string) ([]*ledger.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*ledger.Document
	for _, doc := range b.docs {
		if doc.Kind == kind && doc.Name == name {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Create implements ledger.Backend
func (b *Backend) Create(ctx context.Context, doc *ledger.Document) (*ledger.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CreateCalls++
	b.seq++
	stored := *doc
	stored.ID = fmt.Sprintf("%s-%d", strings.ToLower(doc.Kind.String()), b.seq)
	b.docs = append(b.docs, &stored)
	return &stored, nil
}

// UpdateState implements ledger.Backend
func (b *Backend) UpdateState(ctx context.Context, kind ledger.DocumentKind, id, stateID string) (*ledger.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.UpdateStateCalls++
	doc := b.byID(kind, id)
	if doc == nil {
		return nil, fmt.Errorf("%w: %s %q", ledger.ErrRequestFailed, kind, id)
	}
	doc.StateID = stateID
	return doc, nil
}

// UpdatePlannedMoment implements ledger.Backend
func (b *Backend) UpdatePlannedMoment(ctx context.Context, kind ledger.DocumentKind, id, moment string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc := b.byID(kind, id)
	if doc == nil {
		return fmt.Errorf("%w: %s %q", ledger.ErrRequestFailed, kind, id)
	}
	doc.PlannedMoment = moment
	return nil
}

// Positions implements ledger.Backend
func (b *Backend) Positions(ctx context.Context, kind ledger.DocumentKind, id string) ([]ledger.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc := b.byID(kind, id)
	if doc == nil {
		return nil, fmt.Errorf("%w: %s %q", ledger.ErrRequestFailed, kind, id)
	}
	return doc.Positions, nil
}

// SetApplicable implements ledger.Backend
func (b *Backend) SetApplicable(ctx context.Context, kind ledger.DocumentKind, id string, applicable bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ApplyCalls++
	doc := b.byID(kind, id)
	if doc == nil {
		return fmt.Errorf("%w: %s %q", ledger.ErrRequestFailed, kind, id)
	}
	if err := b.ApplyErr[doc.ExternalCode]; err != nil {
		return err
	}
	doc.Applicable = applicable
	return nil
}

// FindProductByArticle implements ledger.Backend
func (b *Backend) FindProductByArticle(ctx context.Context, article string) (*ledger.ProductRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ProductLookups++
	return b.Products[article], nil
}

// ProductByHref implements ledger.Backend
func (b *Backend) ProductByHref(ctx context.Context, href string) (*ledger.ProductRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ProductLookups++
	return b.ProductsByHref[href], nil
}

// StockByStore implements ledger.Backend
func (b *Backend) StockByStore(ctx context.Context, storeID string) ([]ledger.StockRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Stock[storeID], nil
}

// byID must be called with the mutex held
func (b *Backend) byID(kind ledger.DocumentKind, id string) *ledger.Document {
	for _, doc := range b.docs {
		if doc.Kind == kind && doc.ID == id {
			return doc
		}
	}
	return nil
}
