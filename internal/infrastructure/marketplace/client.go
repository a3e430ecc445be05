// Package marketplace implements the marketplace API adapters: the order
// source, the supply source and the stock publisher.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/transport"
	"go.uber.org/zap"
)

const (
	// pageSize is the order/supply page size requested per call
	pageSize = 1000
	// maxPages caps the order listing loop against a broken next cursor
	maxPages = 50
	// statusBatchSize is the maximum ids per batch status request
	statusBatchSize = 1000
)

// Client implements integration.OrderSource and integration.StockPublisher
// against the marketplace seller API.
type Client struct {
	baseURL string
	token   string
	http    *transport.Client
	logger  *zap.Logger
}

// NewClient creates a marketplace API client
func NewClient(baseURL, token string, httpClient *transport.Client, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    httpClient,
		logger:  logger,
	}
}

// ListOrders returns all orders created at or after since, fully paged.
// Entries with a missing or unparseable creation timestamp are dropped.
func (c *Client) ListOrders(ctx context.Context, since time.Time) ([]integration.MarketplaceOrder, error) {
	var orders []integration.MarketplaceOrder
	next := int64(0)

	for page := 0; page < maxPages; page++ {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("next", strconv.FormatInt(next, 10))
		query.Set("dateFrom", strconv.FormatInt(since.UTC().Unix(), 10))

		body, err := c.get(ctx, "/api/v3/orders?"+query.Encode())
		if err != nil {
			return nil, err
		}

		var resp orderListResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrMarketplaceInvalidResponse, err)
		}
		if len(resp.Orders) == 0 {
			break
		}

		for _, entry := range resp.Orders {
			createdAt, err := parseTimestamp(entry.CreatedAt)
			if err != nil {
				c.logger.Warn("dropping order with bad creation timestamp",
					zap.Int64("order_id", entry.ID),
					zap.String("created_at", entry.CreatedAt))
				continue
			}
			if createdAt.Before(since) {
				continue
			}
			orders = append(orders, integration.MarketplaceOrder{
				ExternalID: strconv.FormatInt(entry.ID, 10),
				Items:      orderItems(entry),
				CreatedAt:  createdAt,
			})
		}

		next = resp.Next
	}

	return orders, nil
}

// orderItems builds the line items of one listed order. The listing carries
// a single article per order; quantity is always one.
func orderItems(entry orderEntry) []integration.LineItem {
	if entry.Article == "" {
		return nil
	}
	return []integration.LineItem{{Article: entry.Article, Quantity: oneQuantity}}
}

// GetStatuses returns the current status pair per order id. Unknown ids are
// absent from the result.
func (c *Client) GetStatuses(ctx context.Context, ids []string) (map[string]integration.StatusPair, error) {
	numeric := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			c.logger.Warn("skipping non-numeric order id in status request", zap.String("order_id", id))
			continue
		}
		numeric = append(numeric, n)
	}

	statuses := make(map[string]integration.StatusPair, len(numeric))
	for start := 0; start < len(numeric); start += statusBatchSize {
		end := start + statusBatchSize
		if end > len(numeric) {
			end = len(numeric)
		}

		payload, err := json.Marshal(statusRequest{Orders: numeric[start:end]})
		if err != nil {
			return nil, fmt.Errorf("marketplace: failed to encode status request: %w", err)
		}

		body, err := c.send(ctx, http.MethodPost, "/api/v3/orders/status", payload)
		if err != nil {
			return nil, err
		}

		var resp statusResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrMarketplaceInvalidResponse, err)
		}
		for _, entry := range resp.Orders {
			statuses[strconv.FormatInt(entry.ID, 10)] = integration.StatusPair{
				Fulfillment: integration.FulfillmentStatus(entry.FulfillmentStatus),
				Logistics:   integration.LogisticsStatus(entry.LogisticsStatus),
			}
		}
	}

	return statuses, nil
}

// PublishStocks publishes one batch of stock levels to the given warehouse
func (c *Client) PublishStocks(ctx context.Context, warehouseID int64, stocks []integration.StockUpdate) error {
	entries := make([]stockEntry, len(stocks))
	for i, s := range stocks {
		entries[i] = stockEntry{SKU: s.SKU, Amount: s.Amount}
	}

	payload, err := json.Marshal(stocksRequest{Stocks: entries})
	if err != nil {
		return fmt.Errorf("marketplace: failed to encode stocks request: %w", err)
	}

	path := fmt.Sprintf("/api/v3/stocks/%d", warehouseID)
	_, err = c.send(ctx, http.MethodPut, path, payload)
	return err
}

// get performs a GET request against the seller API
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.send(ctx, http.MethodGet, path, nil)
}

// send performs one authorized request and maps failures to domain errors
func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	header := http.Header{}
	header.Set("Authorization", c.token)
	if payload != nil {
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(ctx, method, c.baseURL+path, header, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrMarketplaceUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrMarketplaceRequestFailed, resp.StatusCode)
	}
	return resp.Body, nil
}

// parseTimestamp parses the marketplace timestamp format: RFC3339 with a
// trailing Z or an explicit offset. Offset-less values are read as UTC.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Ensure Client implements the marketplace ports
var (
	_ integration.OrderSource    = (*Client)(nil)
	_ integration.StockPublisher = (*Client)(nil)
)
