package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory Backend for resolver tests.
type fakeBackend struct {
	docs        []*Document
	createCalls int
	applyErr    error
	nextID      int
}

func (f *fakeBackend) FindByExternalCode(_ context.Context, kind DocumentKind, code string) ([]*Document, error) {
	var out []*Document
	for _, d := range f.docs {
		if d.Kind == kind && d.ExternalCode == code {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeBackend) FindByName(_ context.Context, kind DocumentKind, name string) ([]*Document, error) {
	var out []*Document
	for _, d := range f.docs {
		if d.Kind == kind && d.Name == name {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeBackend) Create(_ context.Context, doc *Document) (*Document, error) {
	f.createCalls++
	f.nextID++
	created := *doc
	created.ID = fmt.Sprintf("doc-%d", f.nextID)
	f.docs = append(f.docs, &created)
	return &created, nil
}

func (f *fakeBackend) UpdateState(_ context.Context, kind DocumentKind, id, stateID string) (*Document, error) {
	for _, d := range f.docs {
		if d.Kind == kind && d.ID == id {
			d.StateID = stateID
			return d, nil
		}
	}
	return nil, ErrRequestFailed
}

func (f *fakeBackend) UpdatePlannedMoment(_ context.Context, _ DocumentKind, _, _ string) error {
	return nil
}

func (f *fakeBackend) Positions(_ context.Context, kind DocumentKind, id string) ([]Position, error) {
	for _, d := range f.docs {
		if d.Kind == kind && d.ID == id {
			return d.Positions, nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) SetApplicable(_ context.Context, _ DocumentKind, _ string, _ bool) error {
	return f.applyErr
}

func (f *fakeBackend) FindProductByArticle(_ context.Context, _ string) (*ProductRef, error) {
	return nil, nil
}

func (f *fakeBackend) ProductByHref(_ context.Context, _ string) (*ProductRef, error) {
	return nil, nil
}

func (f *fakeBackend) StockByStore(_ context.Context, _ string) ([]StockRow, error) {
	return nil, nil
}

func buildOrder(_ context.Context) (*Document, error) {
	return &Document{
		Positions: []Position{{
			Product:  ProductRef{ID: "prod-1", Article: "ART-1"},
			Quantity: decimal.NewFromInt(1),
		}},
	}, nil
}

func TestDocumentResolver_Ensure(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates on first call, finds on second", func(t *testing.T) {
		backend := &fakeBackend{}
		resolver := NewDocumentResolver(backend)

		first, created, err := resolver.Ensure(ctx, KindOrder, "1001", buildOrder)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "1001", first.ExternalCode)
		assert.Equal(t, "1001", first.Name)

		second, created, err := resolver.Ensure(ctx, KindOrder, "1001", buildOrder)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, backend.createCalls)
	})

	t.Run("Falls back to display-name lookup", func(t *testing.T) {
		backend := &fakeBackend{docs: []*Document{
			{Kind: KindOrder, ID: "doc-9", Name: "1002", ExternalCode: "legacy"},
		}}
		resolver := NewDocumentResolver(backend)

		doc, created, err := resolver.Ensure(ctx, KindOrder, "1002", buildOrder)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "doc-9", doc.ID)
		assert.Zero(t, backend.createCalls)
	})

	t.Run("Ambiguous lookup takes the first candidate", func(t *testing.T) {
		backend := &fakeBackend{docs: []*Document{
			{Kind: KindOrder, ID: "doc-1", ExternalCode: "1003"},
			{Kind: KindOrder, ID: "doc-2", ExternalCode: "1003"},
		}}
		resolver := NewDocumentResolver(backend)

		doc, created, err := resolver.Ensure(ctx, KindOrder, "1003", buildOrder)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "doc-1", doc.ID)
		assert.Zero(t, backend.createCalls)
	})

	t.Run("Lookups are kind-scoped", func(t *testing.T) {
		backend := &fakeBackend{docs: []*Document{
			{Kind: KindOrder, ID: "doc-1", ExternalCode: "1004"},
		}}
		resolver := NewDocumentResolver(backend)

		doc, created, err := resolver.Ensure(ctx, KindShipment, "1004", buildOrder)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, KindShipment, doc.Kind)
	})

	t.Run("Builder skip propagates without creating", func(t *testing.T) {
		backend := &fakeBackend{}
		resolver := NewDocumentResolver(backend)

		_, _, err := resolver.Ensure(ctx, KindOrder, "1005", func(context.Context) (*Document, error) {
			return nil, fmt.Errorf("%w: no resolvable positions", ErrSkipDocument)
		})
		assert.ErrorIs(t, err, ErrSkipDocument)
		assert.Zero(t, backend.createCalls)
	})

	t.Run("Invalid kind is rejected", func(t *testing.T) {
		resolver := NewDocumentResolver(&fakeBackend{})
		_, _, err := resolver.Ensure(ctx, DocumentKind("RECEIPT"), "1006", buildOrder)
		assert.ErrorIs(t, err, ErrInvalidKind)
	})
}

func TestDocumentResolver_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("Successful apply marks the document", func(t *testing.T) {
		resolver := NewDocumentResolver(&fakeBackend{})
		doc := &Document{Kind: KindShipment, ID: "doc-1"}

		applied, err := resolver.Apply(ctx, doc)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.True(t, doc.Applicable)
	})

	t.Run("Insufficient stock is a non-fatal left-pending outcome", func(t *testing.T) {
		backend := &fakeBackend{applyErr: fmt.Errorf("put applicable: %w", ErrInsufficientStock)}
		resolver := NewDocumentResolver(backend)
		doc := &Document{Kind: KindShipment, ID: "doc-1"}

		applied, err := resolver.Apply(ctx, doc)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.False(t, doc.Applicable)
	})

	t.Run("Other apply errors propagate", func(t *testing.T) {
		backend := &fakeBackend{applyErr: errors.New("boom")}
		resolver := NewDocumentResolver(backend)

		_, err := resolver.Apply(ctx, &Document{Kind: KindShipment, ID: "doc-1"})
		assert.Error(t, err)
	})
}

func TestIdempotencyKeys(t *testing.T) {
	t.Run("Supply keys fan out under one number", func(t *testing.T) {
		assert.Equal(t, "supply-77", SupplyOrderKey("77"))
		assert.Equal(t, "supply-77:transfer", SupplyTransferKey("77"))
		assert.Equal(t, "supply-77:shipment", SupplyShipmentKey("77"))
	})

	t.Run("Order and shipment share the external id across kinds", func(t *testing.T) {
		assert.Equal(t, OrderKey("42"), ShipmentKey("42"))
	})

	t.Run("Stock availability never goes negative", func(t *testing.T) {
		row := StockRow{Stock: decimal.NewFromInt(2), Reserve: decimal.NewFromInt(5)}
		assert.True(t, row.Available().IsZero())

		row = StockRow{Stock: decimal.NewFromInt(7), Reserve: decimal.NewFromInt(5)}
		assert.True(t, row.Available().Equal(decimal.NewFromInt(2)))
	})
}
