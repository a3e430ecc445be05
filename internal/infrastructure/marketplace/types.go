package marketplace

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// oneQuantity is the fixed quantity of a listed order line item; the
// marketplace reports one unit per order.
var oneQuantity = decimal.NewFromInt(1)

// orderListResponse is one page of the order listing endpoint.
type orderListResponse struct {
	Orders []orderEntry `json:"orders"`
	Next   int64        `json:"next"`
}

// orderEntry is one order as listed by the marketplace.
type orderEntry struct {
	ID        int64  `json:"id"`
	Article   string `json:"article"`
	CreatedAt string `json:"createdAt"`
}

// statusRequest is the body of the batch status endpoint.
type statusRequest struct {
	Orders []int64 `json:"orders"`
}

// statusResponse is the batch status endpoint payload.
type statusResponse struct {
	Orders []statusEntry `json:"orders"`
}

// statusEntry is one order's current status pair.
type statusEntry struct {
	ID                int64  `json:"id"`
	FulfillmentStatus string `json:"supplierStatus"`
	LogisticsStatus   string `json:"logisticsStatus"`
}

// stocksRequest is the body of the stock publication endpoint.
type stocksRequest struct {
	Stocks []stockEntry `json:"stocks"`
}

// stockEntry is one published stock level.
type stockEntry struct {
	SKU    string `json:"sku"`
	Amount int64  `json:"amount"`
}

// suppliesRequest is the body of the supply listing endpoint.
type suppliesRequest struct {
	DateFrom string `json:"dateFrom"`
	Limit    int    `json:"limit"`
}

// suppliesResponse tolerates both shapes the supplies endpoint is known to
// return: a bare array and an object wrapping it.
type suppliesResponse struct {
	Supplies []supplyEntry
}

// UnmarshalJSON accepts either a JSON array or {"supplies": [...]}.
func (r *suppliesResponse) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(data, &r.Supplies)
	}
	var wrapped struct {
		Supplies []supplyEntry `json:"supplies"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	r.Supplies = wrapped.Supplies
	return nil
}

// supplyEntry is one supply as listed by the marketplace.
type supplyEntry struct {
	SupplyID      json.Number `json:"supplyID"`
	CreateDate    string      `json:"createDate"`
	StatusID      int         `json:"statusID"`
	SupplyDate    string      `json:"supplyDate"`
	PlanDate      string      `json:"planDate"`
	WarehouseName string      `json:"warehouseName"`
}

// goodsResponse is the supply line-items payload.
type goodsResponse struct {
	Goods []goodEntry `json:"goods"`
}

// goodEntry is one supply line item. Older payloads carry the article under
// vendorCode or supplierArticle and the quantity under qty.
type goodEntry struct {
	Article         string          `json:"article"`
	VendorCode      string          `json:"vendorCode"`
	SupplierArticle string          `json:"supplierArticle"`
	Quantity        decimal.Decimal `json:"quantity"`
	Qty             decimal.Decimal `json:"qty"`
}

// article returns the first non-empty article field
func (g *goodEntry) article() string {
	for _, v := range []string{g.Article, g.VendorCode, g.SupplierArticle} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// quantity returns the first positive quantity field
func (g *goodEntry) quantity() decimal.Decimal {
	if g.Quantity.IsPositive() {
		return g.Quantity
	}
	return g.Qty
}
