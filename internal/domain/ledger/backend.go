package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientStock is the recoverable apply failure: the document is
	// valid but cannot take effect because inventory is short. It is counted
	// as a left-pending outcome, never raised to abort a pass.
	ErrInsufficientStock = errors.New("ledger: insufficient stock to apply document")
	// ErrBackendUnavailable indicates the ledger API could not be reached at all
	ErrBackendUnavailable = errors.New("ledger: backend unavailable")
	// ErrRequestFailed indicates a non-recoverable ledger API error
	ErrRequestFailed = errors.New("ledger: request failed")
	// ErrInvalidResponse indicates the ledger returned an unparseable payload
	ErrInvalidResponse = errors.New("ledger: invalid response")
	// ErrInvalidKind indicates a document kind outside the three variants
	ErrInvalidKind = errors.New("ledger: invalid document kind")
)

// StockRow is one row of the ledger stock-by-store report.
type StockRow struct {
	// Article is the inline SKU code, when the report carries it
	Article string
	// AssortmentHref points at the product entity when Article is absent
	AssortmentHref string
	// Stock is the physical quantity on hand
	Stock decimal.Decimal
	// Reserve is the quantity reserved by open orders
	Reserve decimal.Decimal
}

// Available returns the publishable quantity: stock minus reserve, floored
// at zero.
func (r StockRow) Available() decimal.Decimal {
	avail := r.Stock.Sub(r.Reserve)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Backend is the port to the inventory/accounting ledger. All mutations are
// safe to retry: a repeated create after a partial failure is caught by the
// kind-scoped lookups that precede it.
type Backend interface {
	// FindByExternalCode returns documents of the kind carrying the exact
	// external code, in stable backend order. Empty slice when none exist.
	FindByExternalCode(ctx context.Context, kind DocumentKind, code string) ([]*Document, error)

	// FindByName returns documents of the kind carrying the exact display
	// name, in stable backend order. Used as the fallback lookup.
	FindByName(ctx context.Context, kind DocumentKind, name string) ([]*Document, error)

	// Create persists a new document and returns it with the assigned ID
	Create(ctx context.Context, doc *Document) (*Document, error)

	// UpdateState moves a document to the target business state
	UpdateState(ctx context.Context, kind DocumentKind, id, stateID string) (*Document, error)

	// UpdatePlannedMoment changes an order's planned acceptance date
	UpdatePlannedMoment(ctx context.Context, kind DocumentKind, id, moment string) error

	// Positions returns the lines of an existing document
	Positions(ctx context.Context, kind DocumentKind, id string) ([]Position, error)

	// SetApplicable commits or uncommits a document against inventory.
	// Returns ErrInsufficientStock (possibly wrapped) for the recognized
	// recoverable shortage condition.
	SetApplicable(ctx context.Context, kind DocumentKind, id string, applicable bool) error

	// FindProductByArticle resolves a catalog product by seller SKU code.
	// Returns nil, nil when no product matches.
	FindProductByArticle(ctx context.Context, article string) (*ProductRef, error)

	// ProductByHref fetches a catalog product entity by its canonical reference
	ProductByHref(ctx context.Context, href string) (*ProductRef, error)

	// StockByStore returns the full stock report for one warehouse
	StockByStore(ctx context.Context, storeID string) ([]StockRow, error)
}
