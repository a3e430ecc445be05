package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/transport"
	"go.uber.org/zap"
)

// SuppliesClient implements integration.SupplySource against the supplies
// API, which lives on its own host with its own token.
type SuppliesClient struct {
	baseURL string
	token   string
	http    *transport.Client
	logger  *zap.Logger
}

// NewSuppliesClient creates a supplies API client
func NewSuppliesClient(baseURL, token string, httpClient *transport.Client, logger *zap.Logger) *SuppliesClient {
	return &SuppliesClient{
		baseURL: baseURL,
		token:   token,
		http:    httpClient,
		logger:  logger,
	}
}

// ListSupplies returns all supplies updated within the window starting at
// from. Entries without a supply id are dropped.
func (c *SuppliesClient) ListSupplies(ctx context.Context, from time.Time) ([]integration.Supply, error) {
	payload, err := json.Marshal(suppliesRequest{
		DateFrom: from.UTC().Format(time.RFC3339),
		Limit:    pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to encode supplies request: %w", err)
	}

	body, err := c.send(ctx, http.MethodPost, "/api/v1/supplies", payload)
	if err != nil {
		return nil, err
	}

	var resp suppliesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrMarketplaceInvalidResponse, err)
	}

	supplies := make([]integration.Supply, 0, len(resp.Supplies))
	for _, entry := range resp.Supplies {
		id := entry.SupplyID.String()
		if id == "" {
			continue
		}

		createdAt, err := parseTimestamp(entry.CreateDate)
		if err != nil {
			c.logger.Warn("supply without usable creation date",
				zap.String("supply_id", id),
				zap.String("create_date", entry.CreateDate))
		}

		plannedAt := entry.SupplyDate
		if plannedAt == "" {
			plannedAt = entry.PlanDate
		}

		supplies = append(supplies, integration.Supply{
			ExternalID:           id,
			Number:               id,
			StatusCode:           integration.SupplyStatusCode(entry.StatusID),
			CreatedAt:            createdAt,
			PlannedAt:            plannedAt,
			DestinationWarehouse: entry.WarehouseName,
		})
	}

	return supplies, nil
}

// GetGoods returns the line items of one supply. Items without an article
// or with a non-positive quantity are dropped here; the caller only ever
// sees usable lines.
func (c *SuppliesClient) GetGoods(ctx context.Context, supplyID string) ([]integration.LineItem, error) {
	body, err := c.send(ctx, http.MethodGet, "/api/v1/supplies/"+supplyID+"/goods", nil)
	if err != nil {
		return nil, err
	}

	var resp goodsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrMarketplaceInvalidResponse, err)
	}

	items := make([]integration.LineItem, 0, len(resp.Goods))
	for _, good := range resp.Goods {
		article := good.article()
		quantity := good.quantity()
		if article == "" || !quantity.IsPositive() {
			continue
		}
		items = append(items, integration.LineItem{Article: article, Quantity: quantity})
	}

	return items, nil
}

// send performs one authorized request and maps failures to domain errors
func (c *SuppliesClient) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	header := http.Header{}
	header.Set("Authorization", c.token)
	header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, method, c.baseURL+path, header, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrMarketplaceUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrMarketplaceRequestFailed, resp.StatusCode)
	}
	return resp.Body, nil
}

// Ensure SuppliesClient implements the supply source port
var _ integration.SupplySource = (*SuppliesClient)(nil)
