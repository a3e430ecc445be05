package ledgerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marketsync/backend/internal/domain/ledger"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/transport"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLedgerClient(serverURL string) *Client {
	return NewClient(&config.LedgerConfig{
		BaseURL:        serverURL,
		Token:          "ledger-token",
		OrgID:          "org-1",
		AgentID:        "agent-1",
		StoreID:        "store-1",
		SalesChannelID: "channel-1",
	}, transport.NewClient(5*time.Second, transport.WithRetryWindow(time.Millisecond, 100*time.Millisecond)), zap.NewNop())
}

func TestClient_FindByExternalCode(t *testing.T) {
	ctx := context.Background()

	t.Run("returns matching documents", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/entity/order", r.URL.Path)
			assert.Equal(t, "externalCode=12345", r.URL.Query().Get("filter"))
			assert.Equal(t, "Bearer ledger-token", r.Header.Get("Authorization"))

			fmt.Fprint(w, `{"rows":[{
				"id":"doc-1","name":"12345","externalCode":"12345","applicable":true,
				"state":{"meta":{"href":"https://x/entity/order/metadata/states/state-new"}}
			}]}`)
		}))
		defer server.Close()

		docs, err := newTestLedgerClient(server.URL).FindByExternalCode(ctx, ledger.KindOrder, "12345")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "doc-1", docs[0].ID)
		assert.Equal(t, ledger.KindOrder, docs[0].Kind)
		assert.Equal(t, "state-new", docs[0].StateID)
		assert.True(t, docs[0].Applicable)
	})

	t.Run("empty result is an empty slice", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"rows":[]}`)
		}))
		defer server.Close()

		docs, err := newTestLedgerClient(server.URL).FindByExternalCode(ctx, ledger.KindShipment, "12345")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("rejects an invalid kind", func(t *testing.T) {
		_, err := newTestLedgerClient("http://unused").FindByExternalCode(ctx, ledger.DocumentKind("WRONG"), "x")
		assert.ErrorIs(t, err, ledger.ErrInvalidKind)
	})
}

func TestClient_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("posts an order with fixed references", func(t *testing.T) {
		var got documentPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/entity/order", r.URL.Path)

			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &got))
			fmt.Fprint(w, `{"id":"created-1","name":"12345","externalCode":"12345"}`)
		}))
		defer server.Close()

		client := newTestLedgerClient(server.URL)
		doc, err := client.Create(ctx, &ledger.Document{
			Kind:         ledger.KindOrder,
			Name:         "12345",
			ExternalCode: "12345",
			StateID:      "state-new",
			Positions: []ledger.Position{{
				Product:  ledger.ProductRef{Href: server.URL + "/entity/product/p-1"},
				Quantity: decimal.NewFromInt(1),
				Reserve:  decimal.NewFromInt(1),
				Price:    decimal.NewFromInt(99900),
			}},
		})
		require.NoError(t, err)
		assert.Equal(t, "created-1", doc.ID)

		require.NotNil(t, got.Organization)
		assert.Equal(t, server.URL+"/entity/organization/org-1", got.Organization.Meta.Href)
		require.NotNil(t, got.Agent)
		assert.Equal(t, server.URL+"/entity/counterparty/agent-1", got.Agent.Meta.Href)
		require.NotNil(t, got.Store)
		assert.Equal(t, server.URL+"/entity/store/store-1", got.Store.Meta.Href)
		require.NotNil(t, got.SalesChannel)
		assert.Equal(t, server.URL+"/entity/saleschannel/channel-1", got.SalesChannel.Meta.Href)
		require.NotNil(t, got.State)
		assert.Equal(t, server.URL+"/entity/order/metadata/states/state-new", got.State.Meta.Href)
		require.Len(t, got.Positions, 1)
		assert.Equal(t, server.URL+"/entity/product/p-1", got.Positions[0].Assortment.Meta.Href)
	})

	t.Run("posts a transfer with source and target stores", func(t *testing.T) {
		var got documentPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/entity/transfer", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &got))
			fmt.Fprint(w, `{"id":"t-1"}`)
		}))
		defer server.Close()

		_, err := newTestLedgerClient(server.URL).Create(ctx, &ledger.Document{
			Kind:          ledger.KindTransfer,
			Name:          "supply-9",
			ExternalCode:  "supply-9:transfer",
			SourceStoreID: "src-store",
			TargetStoreID: "dst-store",
		})
		require.NoError(t, err)
		require.NotNil(t, got.SourceStore)
		assert.Equal(t, server.URL+"/entity/store/src-store", got.SourceStore.Meta.Href)
		require.NotNil(t, got.TargetStore)
		assert.Equal(t, server.URL+"/entity/store/dst-store", got.TargetStore.Meta.Href)
		assert.Nil(t, got.Agent)
	})

	t.Run("posts a shipment linked to its order", func(t *testing.T) {
		var got documentPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/entity/shipment", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &got))
			fmt.Fprint(w, `{"id":"s-1","order":{"meta":{"href":"https://x/entity/order/o-7"}}}`)
		}))
		defer server.Close()

		doc, err := newTestLedgerClient(server.URL).Create(ctx, &ledger.Document{
			Kind:          ledger.KindShipment,
			Name:          "12345",
			ExternalCode:  "12345",
			LinkedOrderID: "o-7",
		})
		require.NoError(t, err)
		require.NotNil(t, got.Order)
		assert.Equal(t, server.URL+"/entity/order/o-7", got.Order.Meta.Href)
		assert.Equal(t, "o-7", doc.LinkedOrderID)
	})
}

func TestClient_SetApplicable(t *testing.T) {
	ctx := context.Background()

	t.Run("maps 412 with shortage code to ErrInsufficientStock", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPreconditionFailed)
			fmt.Fprint(w, `{"errors":[{"code":3007,"error":"not enough stock"}]}`)
		}))
		defer server.Close()

		err := newTestLedgerClient(server.URL).SetApplicable(ctx, ledger.KindShipment, "s-1", true)
		assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	})

	t.Run("other 412 is a plain request failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPreconditionFailed)
			fmt.Fprint(w, `{"errors":[{"code":1000,"error":"other"}]}`)
		}))
		defer server.Close()

		err := newTestLedgerClient(server.URL).SetApplicable(ctx, ledger.KindShipment, "s-1", true)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ledger.ErrInsufficientStock)
		assert.ErrorIs(t, err, ledger.ErrRequestFailed)
	})

	t.Run("sends the applicable flag", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/entity/shipment/s-1", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"applicable":true}`, string(body))
			fmt.Fprint(w, `{}`)
		}))
		defer server.Close()

		err := newTestLedgerClient(server.URL).SetApplicable(ctx, ledger.KindShipment, "s-1", true)
		assert.NoError(t, err)
	})
}

func TestClient_FindProductByArticle(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the first product with its sale price", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/entity/product", r.URL.Path)
			assert.Equal(t, "article=ART-1", r.URL.Query().Get("filter"))
			fmt.Fprint(w, `{"rows":[
				{"id":"p-1","meta":{"href":"https://x/entity/product/p-1"},"article":"ART-1","salePrices":[{"value":149900}]},
				{"id":"p-2","article":"ART-1"}
			]}`)
		}))
		defer server.Close()

		ref, err := newTestLedgerClient(server.URL).FindProductByArticle(ctx, "ART-1")
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, "p-1", ref.ID)
		assert.Equal(t, "https://x/entity/product/p-1", ref.Href)
		assert.Equal(t, "149900", ref.SalePrice.String())
	})

	t.Run("no match returns nil without error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"rows":[]}`)
		}))
		defer server.Close()

		ref, err := newTestLedgerClient(server.URL).FindProductByArticle(ctx, "MISSING")
		require.NoError(t, err)
		assert.Nil(t, ref)
	})
}

func TestClient_ProductByHref(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back through code and externalCode for the SKU", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/entity/variant/v-1", r.URL.Path)
			fmt.Fprint(w, `{"id":"v-1","code":"CODE-9","salePrices":[]}`)
		}))
		defer server.Close()

		client := newTestLedgerClient(server.URL)
		ref, err := client.ProductByHref(ctx, server.URL+"/entity/variant/v-1")
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, "CODE-9", ref.Article)
		assert.True(t, ref.SalePrice.IsZero())
	})

	t.Run("404 returns nil without error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		ref, err := newTestLedgerClient(server.URL).ProductByHref(ctx, server.URL+"/entity/product/gone")
		require.NoError(t, err)
		assert.Nil(t, ref)
	})
}

func TestClient_StockByStore(t *testing.T) {
	ctx := context.Background()

	t.Run("pages through the report", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/report/stock/bystore", r.URL.Path)
			assert.Contains(t, r.URL.Query().Get("store"), "/entity/store/store-1")

			if r.URL.Query().Get("offset") == "0" {
				// full page forces a second request
				fmt.Fprint(w, `{"rows":[`)
				for i := 0; i < reportPageSize; i++ {
					if i > 0 {
						fmt.Fprint(w, ",")
					}
					fmt.Fprintf(w, `{"article":"ART-%d","stock":5,"reserve":2}`, i)
				}
				fmt.Fprint(w, `]}`)
				return
			}
			fmt.Fprint(w, `{"rows":[{"stock":1,"reserve":0,"assortment":{"meta":{"href":"https://x/entity/product/p-9"}}}]}`)
		}))
		defer server.Close()

		rows, err := newTestLedgerClient(server.URL).StockByStore(ctx, "store-1")
		require.NoError(t, err)
		require.Len(t, rows, reportPageSize+1)
		assert.Equal(t, "ART-0", rows[0].Article)
		assert.Equal(t, "3", rows[0].Available().String())
		last := rows[len(rows)-1]
		assert.Empty(t, last.Article)
		assert.Equal(t, "https://x/entity/product/p-9", last.AssortmentHref)
	})
}

func TestClient_UpdateState(t *testing.T) {
	ctx := context.Background()

	t.Run("puts the state reference and returns the new state", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/entity/order/doc-1", r.URL.Path)

			body, _ := io.ReadAll(r.Body)
			var got documentPayload
			require.NoError(t, json.Unmarshal(body, &got))
			require.NotNil(t, got.State)
			assert.Contains(t, got.State.Meta.Href, "/entity/order/metadata/states/state-picked")

			fmt.Fprint(w, `{"id":"doc-1","state":{"meta":{"href":"https://x/entity/order/metadata/states/state-picked"}}}`)
		}))
		defer server.Close()

		doc, err := newTestLedgerClient(server.URL).UpdateState(ctx, ledger.KindOrder, "doc-1", "state-picked")
		require.NoError(t, err)
		assert.Equal(t, "state-picked", doc.StateID)
	})
}

func TestClient_Positions(t *testing.T) {
	ctx := context.Background()

	t.Run("returns lines with assortment references", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/entity/order/doc-1/positions", r.URL.Path)
			fmt.Fprint(w, `{"rows":[
				{"quantity":2,"reserve":2,"price":99900,"assortment":{"meta":{"href":"https://x/entity/product/p-1"}}},
				{"quantity":1}
			]}`)
		}))
		defer server.Close()

		positions, err := newTestLedgerClient(server.URL).Positions(ctx, ledger.KindOrder, "doc-1")
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Equal(t, "https://x/entity/product/p-1", positions[0].Product.Href)
		assert.Equal(t, "2", positions[0].Quantity.String())
		assert.Equal(t, "99900", positions[0].Price.String())
	})
}
