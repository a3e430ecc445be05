package ledgerapi

import (
	"strings"

	"github.com/shopspring/decimal"
)

// entityMeta is the ledger's canonical reference block
type entityMeta struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// metaRef wraps an entityMeta the way the API nests references
type metaRef struct {
	Meta entityMeta `json:"meta"`
}

// rowsPayload is the generic collection envelope
type rowsPayload[T any] struct {
	Rows []T `json:"rows"`
}

// documentPayload is a ledger document on the wire, for both reads and
// writes. Optional blocks are pointers so absent fields stay absent.
type documentPayload struct {
	ID                    string         `json:"id,omitempty"`
	Meta                  *entityMeta    `json:"meta,omitempty"`
	Name                  string         `json:"name,omitempty"`
	ExternalCode          string         `json:"externalCode,omitempty"`
	Organization          *metaRef       `json:"organization,omitempty"`
	Agent                 *metaRef       `json:"agent,omitempty"`
	Store                 *metaRef       `json:"store,omitempty"`
	SourceStore           *metaRef       `json:"sourceStore,omitempty"`
	TargetStore           *metaRef       `json:"targetStore,omitempty"`
	SalesChannel          *metaRef       `json:"salesChannel,omitempty"`
	State                 *metaRef       `json:"state,omitempty"`
	Order                 *metaRef       `json:"order,omitempty"`
	Applicable            *bool          `json:"applicable,omitempty"`
	Comment               string         `json:"comment,omitempty"`
	DeliveryPlannedMoment string         `json:"deliveryPlannedMoment,omitempty"`
	Positions             []positionBody `json:"positions,omitempty"`
}

// positionBody is one document line on the wire
type positionBody struct {
	Quantity   decimal.Decimal `json:"quantity"`
	Reserve    decimal.Decimal `json:"reserve,omitempty"`
	Price      decimal.Decimal `json:"price,omitempty"`
	Assortment metaRef         `json:"assortment"`
}

// positionRow is one line of the positions collection endpoint
type positionRow struct {
	Quantity   decimal.Decimal `json:"quantity"`
	Reserve    decimal.Decimal `json:"reserve"`
	Price      decimal.Decimal `json:"price"`
	Assortment *metaRef        `json:"assortment"`
}

// productPayload is a catalog product entity
type productPayload struct {
	ID           string      `json:"id"`
	Meta         *entityMeta `json:"meta"`
	Article      string      `json:"article"`
	Code         string      `json:"code"`
	ExternalCode string      `json:"externalCode"`
	SalePrices   []salePrice `json:"salePrices"`
}

// salePrice is one price entry of a product
type salePrice struct {
	Value decimal.Decimal `json:"value"`
}

// sku returns the first usable SKU code of the product
func (p *productPayload) sku() string {
	for _, v := range []string{p.Article, p.Code, p.ExternalCode} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// defaultSalePrice returns the first sale price, zero when none is set
func (p *productPayload) defaultSalePrice() decimal.Decimal {
	if len(p.SalePrices) == 0 {
		return decimal.Zero
	}
	return p.SalePrices[0].Value
}

// stockReportRow is one row of the stock-by-store report
type stockReportRow struct {
	Article      string          `json:"article"`
	Code         string          `json:"code"`
	ExternalCode string          `json:"externalCode"`
	Stock        decimal.Decimal `json:"stock"`
	Reserve      decimal.Decimal `json:"reserve"`
	Assortment   *metaRef        `json:"assortment"`
}

// inlineSKU returns the SKU carried directly on the report row
func (r *stockReportRow) inlineSKU() string {
	for _, v := range []string{r.Article, r.Code, r.ExternalCode} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// apiError is one entry of the ledger error envelope
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// apiErrorResponse is the ledger error envelope
type apiErrorResponse struct {
	Errors []apiError `json:"errors"`
}

// hasCode reports whether any error entry carries the given code
func (r *apiErrorResponse) hasCode(code int) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// idFromHref extracts the trailing id segment of a state href
func idFromHref(href string) string {
	href = strings.TrimRight(href, "/")
	if href == "" {
		return ""
	}
	idx := strings.LastIndex(href, "/")
	if idx < 0 {
		return href
	}
	return href[idx+1:]
}
