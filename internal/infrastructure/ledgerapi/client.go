// Package ledgerapi implements the ledger.Backend port against the ledger's
// JSON API: kind-scoped document lookups, document creation, state and
// planned-date updates, the apply toggle, catalog product search and the
// stock-by-store report.
package ledgerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/marketsync/backend/internal/domain/ledger"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/transport"
	"go.uber.org/zap"
)

const (
	// insufficientStockCode is the ledger error code for an apply rejected
	// because inventory is short
	insufficientStockCode = 3007
	// reportPageSize is the stock report page size
	reportPageSize = 1000
)

// Client implements ledger.Backend over HTTP.
type Client struct {
	baseURL string
	token   string
	cfg     *config.LedgerConfig
	http    *transport.Client
	logger  *zap.Logger
}

// NewClient creates a ledger API client
func NewClient(cfg *config.LedgerConfig, httpClient *transport.Client, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		cfg:     cfg,
		http:    httpClient,
		logger:  logger,
	}
}

// entityPath maps a document kind to its collection path
func entityPath(kind ledger.DocumentKind) (string, error) {
	switch kind {
	case ledger.KindOrder:
		return "/entity/order", nil
	case ledger.KindTransfer:
		return "/entity/transfer", nil
	case ledger.KindShipment:
		return "/entity/shipment", nil
	default:
		return "", fmt.Errorf("%w: %q", ledger.ErrInvalidKind, kind)
	}
}

// FindByExternalCode returns documents of the kind carrying the exact
// external code, in stable backend order.
func (c *Client) FindByExternalCode(ctx context.Context, kind ledger.DocumentKind, code string) ([]*ledger.Document, error) {
	return c.findBy(ctx, kind, "externalCode", code)
}

// FindByName returns documents of the kind carrying the exact display name.
func (c *Client) FindByName(ctx context.Context, kind ledger.DocumentKind, name string) ([]*ledger.Document, error) {
	return c.findBy(ctx, kind, "name", name)
}

func (c *Client) findBy(ctx context.Context, kind ledger.DocumentKind, field, value string) ([]*ledger.Document, error) {
	path, err := entityPath(kind)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("filter", field+"="+value)

	body, err := c.send(ctx, http.MethodGet, path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var payload rowsPayload[documentPayload]
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidResponse, err)
	}

	docs := make([]*ledger.Document, len(payload.Rows))
	for i := range payload.Rows {
		docs[i] = toDocument(kind, &payload.Rows[i])
	}
	return docs, nil
}

// Create persists a new document and returns it with the assigned ID
func (c *Client) Create(ctx context.Context, doc *ledger.Document) (*ledger.Document, error) {
	path, err := entityPath(doc.Kind)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(c.buildPayload(doc))
	if err != nil {
		return nil, fmt.Errorf("ledgerapi: failed to encode document: %w", err)
	}

	body, err := c.send(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	var created documentPayload
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidResponse, err)
	}
	return toDocument(doc.Kind, &created), nil
}

// UpdateState moves a document to the target business state
func (c *Client) UpdateState(ctx context.Context, kind ledger.DocumentKind, id, stateID string) (*ledger.Document, error) {
	path, err := entityPath(kind)
	if err != nil {
		return nil, err
	}

	update := documentPayload{
		State: c.stateRef(path, stateID),
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("ledgerapi: failed to encode state update: %w", err)
	}

	body, err := c.send(ctx, http.MethodPut, path+"/"+id, payload)
	if err != nil {
		return nil, err
	}

	var updated documentPayload
	if err := json.Unmarshal(body, &updated); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidResponse, err)
	}
	return toDocument(kind, &updated), nil
}

// UpdatePlannedMoment changes a document's planned acceptance date
func (c *Client) UpdatePlannedMoment(ctx context.Context, kind ledger.DocumentKind, id, moment string) error {
	path, err := entityPath(kind)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(documentPayload{DeliveryPlannedMoment: moment})
	if err != nil {
		return fmt.Errorf("ledgerapi: failed to encode planned moment update: %w", err)
	}

	_, err = c.send(ctx, http.MethodPut, path+"/"+id, payload)
	return err
}

// Positions returns the lines of an existing document
func (c *Client) Positions(ctx context.Context, kind ledger.DocumentKind, id string) ([]ledger.Position, error) {
	path, err := entityPath(kind)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(reportPageSize))

	body, err := c.send(ctx, http.MethodGet, path+"/"+id+"/positions?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var payload rowsPayload[positionRow]
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidResponse, err)
	}

	positions := make([]ledger.Position, 0, len(payload.Rows))
	for _, row := range payload.Rows {
		if row.Assortment == nil || row.Assortment.Meta.Href == "" {
			continue
		}
		positions = append(positions, ledger.Position{
			Product:  ledger.ProductRef{Href: row.Assortment.Meta.Href},
			Quantity: row.Quantity,
			Reserve:  row.Reserve,
			Price:    row.Price,
		})
	}
	return positions, nil
}

// SetApplicable commits or uncommits a document against inventory. A 412
// carrying the insufficient-stock code maps to ledger.ErrInsufficientStock.
func (c *Client) SetApplicable(ctx context.Context, kind ledger.DocumentKind, id string, applicable bool) error {
	path, err := entityPath(kind)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(documentPayload{Applicable: &applicable})
	if err != nil {
		return fmt.Errorf("ledgerapi: failed to encode apply update: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, c.baseURL+path+"/"+id, payload)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusPreconditionFailed {
		var apiErr apiErrorResponse
		if jsonErr := json.Unmarshal(resp.Body, &apiErr); jsonErr == nil && apiErr.hasCode(insufficientStockCode) {
			return fmt.Errorf("%w: document %s", ledger.ErrInsufficientStock, id)
		}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d", ledger.ErrRequestFailed, resp.StatusCode)
	}
	return nil
}

// FindProductByArticle resolves a catalog product by seller SKU code.
// Returns nil, nil when no product matches.
func (c *Client) FindProductByArticle(ctx context.Context, article string) (*ledger.ProductRef, error) {
	query := url.Values{}
	query.Set("filter", "article="+article)

	body, err := c.send(ctx, http.MethodGet, "/entity/product?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var payload rowsPayload[productPayload]
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidResponse, err)
	}
	if len(payload.Rows) == 0 {
		return nil, nil
	}
	if len(payload.Rows) > 1 {
		c.logger.Warn("multiple products share an article, using the first",
			zap.String("article", article),
			zap.Int("count", len(payload.Rows)))
	}
	return toProductRef(&payload.Rows[0]), nil
}

// ProductByHref fetches a catalog product entity by its canonical reference
func (c *Client) ProductByHref(ctx context.Context, href string) (*ledger.ProductRef, error) {
	target := href
	if !strings.HasPrefix(target, "http") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}

	resp, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", ledger.ErrRequestFailed, resp.StatusCode)
	}

	var payload productPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidResponse, err)
	}
	return toProductRef(&payload), nil
}

// StockByStore returns the full stock report for one warehouse, paged
func (c *Client) StockByStore(ctx context.Context, storeID string) ([]ledger.StockRow, error) {
	storeHref := c.baseURL + "/entity/store/" + storeID

	var rows []ledger.StockRow
	offset := 0
	for {
		query := url.Values{}
		query.Set("store", storeHref)
		query.Set("limit", strconv.Itoa(reportPageSize))
		query.Set("offset", strconv.Itoa(offset))

		body, err := c.send(ctx, http.MethodGet, "/report/stock/bystore?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var payload rowsPayload[stockReportRow]
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidResponse, err)
		}

		for _, row := range payload.Rows {
			stockRow := ledger.StockRow{
				Article: row.inlineSKU(),
				Stock:   row.Stock,
				Reserve: row.Reserve,
			}
			if row.Assortment != nil {
				stockRow.AssortmentHref = row.Assortment.Meta.Href
			}
			rows = append(rows, stockRow)
		}

		if len(payload.Rows) < reportPageSize {
			break
		}
		offset += reportPageSize
	}

	return rows, nil
}

// ---------------------------------------------------------------------------
// Payload construction
// ---------------------------------------------------------------------------

// buildPayload converts a domain document to its wire form, filling in the
// fixed organization/agent references every created document carries.
func (c *Client) buildPayload(doc *ledger.Document) *documentPayload {
	path, _ := entityPath(doc.Kind)

	payload := &documentPayload{
		Name:                  doc.Name,
		ExternalCode:          doc.ExternalCode,
		Comment:               doc.Comment,
		DeliveryPlannedMoment: doc.PlannedMoment,
		Organization:          c.entityRef("organization", c.cfg.OrgID),
	}

	if doc.StateID != "" {
		payload.State = c.stateRef(path, doc.StateID)
	}

	switch doc.Kind {
	case ledger.KindOrder:
		payload.Agent = c.entityRef("counterparty", c.cfg.AgentID)
		payload.Store = c.entityRef("store", c.cfg.StoreID)
		payload.SalesChannel = c.entityRef("saleschannel", c.defaultOr(doc.SalesChannelID, c.cfg.SalesChannelID))
	case ledger.KindShipment:
		payload.Agent = c.entityRef("counterparty", c.cfg.AgentID)
		payload.Store = c.entityRef("store", c.defaultOr(doc.StoreID, c.cfg.StoreID))
		if doc.LinkedOrderID != "" {
			payload.Order = c.entityRef("order", doc.LinkedOrderID)
		}
	case ledger.KindTransfer:
		payload.SourceStore = c.entityRef("store", doc.SourceStoreID)
		payload.TargetStore = c.entityRef("store", doc.TargetStoreID)
	}

	for _, pos := range doc.Positions {
		payload.Positions = append(payload.Positions, positionBody{
			Quantity:   pos.Quantity,
			Reserve:    pos.Reserve,
			Price:      pos.Price,
			Assortment: metaRef{Meta: entityMeta{Href: pos.Product.Href}},
		})
	}

	return payload
}

// defaultOr returns override when set, fallback otherwise
func (c *Client) defaultOr(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// entityRef builds a reference block to a fixed entity
func (c *Client) entityRef(entityType, id string) *metaRef {
	if id == "" {
		return nil
	}
	return &metaRef{Meta: entityMeta{
		Href: c.baseURL + "/entity/" + entityType + "/" + id,
		Type: entityType,
	}}
}

// stateRef builds a reference block to a document state
func (c *Client) stateRef(entityPath, stateID string) *metaRef {
	return &metaRef{Meta: entityMeta{
		Href: c.baseURL + entityPath + "/metadata/states/" + stateID,
		Type: "state",
	}}
}

// toDocument converts a wire document to its domain form
func toDocument(kind ledger.DocumentKind, payload *documentPayload) *ledger.Document {
	doc := &ledger.Document{
		Kind:          kind,
		ID:            payload.ID,
		Name:          payload.Name,
		ExternalCode:  payload.ExternalCode,
		Comment:       payload.Comment,
		PlannedMoment: payload.DeliveryPlannedMoment,
	}
	if payload.State != nil {
		doc.StateID = idFromHref(payload.State.Meta.Href)
	}
	if payload.Applicable != nil {
		doc.Applicable = *payload.Applicable
	}
	if payload.Order != nil {
		doc.LinkedOrderID = idFromHref(payload.Order.Meta.Href)
	}
	return doc
}

// toProductRef converts a wire product to its domain form
func toProductRef(payload *productPayload) *ledger.ProductRef {
	ref := &ledger.ProductRef{
		ID:        payload.ID,
		Article:   payload.sku(),
		SalePrice: payload.defaultSalePrice(),
	}
	if payload.Meta != nil {
		ref.Href = payload.Meta.Href
	}
	return ref
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// send performs one request and maps every non-2xx status to a domain error
func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	resp, err := c.do(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", ledger.ErrRequestFailed, resp.StatusCode)
	}
	return resp.Body, nil
}

// do performs one authorized request, leaving status interpretation to the
// caller
func (c *Client) do(ctx context.Context, method, target string, payload []byte) (*transport.Response, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	header.Set("Accept", "application/json")
	if payload != nil {
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(ctx, method, target, header, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrBackendUnavailable, err)
	}
	return resp, nil
}

// Ensure Client implements the ledger backend port
var _ ledger.Backend = (*Client)(nil)
