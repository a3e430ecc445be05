package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrSkipDocument tells Ensure that the builder declined to produce a
// document (for example, no line item resolved to a catalog product). The
// skip is reported to the caller as-is; it is counted, not retried.
var ErrSkipDocument = errors.New("ledger: document creation skipped")

// DocumentResolver provides idempotent find-or-create over the ledger
// backend. For a given key and kind at most one document is ever created:
// every Ensure performs the external-code lookup and the display-name
// fallback before creating. When a lookup is ambiguous the first candidate
// wins; the backend returns candidates in stable order.
type DocumentResolver struct {
	backend Backend
}

// NewDocumentResolver creates a resolver over the given backend
func NewDocumentResolver(backend Backend) *DocumentResolver {
	return &DocumentResolver{backend: backend}
}

// Find returns the existing document for the key, or nil when none exists.
// The external-code lookup runs first; when it yields no single candidate the
// display-name fallback is tried.
func (r *DocumentResolver) Find(ctx context.Context, kind DocumentKind, key string) (*Document, error) {
	if !kind.IsValid() {
		return nil, ErrInvalidKind
	}

	byCode, err := r.backend.FindByExternalCode(ctx, kind, key)
	if err != nil {
		return nil, fmt.Errorf("find %s by external code %q: %w", kind, key, err)
	}
	if len(byCode) == 1 {
		return byCode[0], nil
	}

	byName, err := r.backend.FindByName(ctx, kind, key)
	if err != nil {
		return nil, fmt.Errorf("find %s by name %q: %w", kind, key, err)
	}

	switch {
	case len(byName) > 0:
		return byName[0], nil
	case len(byCode) > 0:
		return byCode[0], nil
	default:
		return nil, nil
	}
}

// Ensure returns the document for the key, creating it via build only when
// both lookups miss. The returned bool is true when a document was created
// this call. build runs only on a miss; returning ErrSkipDocument (possibly
// wrapped) aborts creation without an error outcome for the entity.
func (r *DocumentResolver) Ensure(ctx context.Context, kind DocumentKind, key string, build func(ctx context.Context) (*Document, error)) (*Document, bool, error) {
	existing, err := r.Find(ctx, kind, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	doc, err := build(ctx)
	if err != nil {
		return nil, false, err
	}
	doc.Kind = kind
	doc.ExternalCode = key
	if doc.Name == "" {
		doc.Name = key
	}

	created, err := r.backend.Create(ctx, doc)
	if err != nil {
		return nil, false, fmt.Errorf("create %s %q: %w", kind, key, err)
	}
	return created, true, nil
}

// Apply commits the document against inventory. The recognized shortage
// condition is a non-fatal outcome: the document stays valid and unapplied,
// and Apply reports applied=false with a nil error. Every other error
// propagates.
func (r *DocumentResolver) Apply(ctx context.Context, doc *Document) (bool, error) {
	err := r.backend.SetApplicable(ctx, doc.Kind, doc.ID, true)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return false, nil
		}
		return false, fmt.Errorf("apply %s %q: %w", doc.Kind, doc.ID, err)
	}
	doc.Applicable = true
	return true, nil
}
