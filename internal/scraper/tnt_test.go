package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"grocery-price/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTNTItem(t *testing.T) {
	item := map[string]any{
		"id":   float64(101),
		"sku":  "2877001",
		"name": "Fuji Apples 3lb",
		"price": map[string]any{
			"regularPrice": map[string]any{"amount": map[string]any{"value": 4.99}},
		},
		"price_range": map[string]any{
			"minimum_price": map[string]any{"final_price": map[string]any{"value": 3.99}},
		},
		"small_image":  map[string]any{"url": "https://img.example.com/fuji.jpg"},
		"stock_status": "IN_STOCK",
		"url_key":      "fuji-apples",
		"url_suffix":   ".html",
	}

	p, ok := parseTNTItem(item, "https://www.tntsupermarket.com", "2877:Fruits")
	require.True(t, ok)
	assert.Equal(t, "2877001", p.StoreProductID)
	assert.Equal(t, "3", p.Size)
	assert.Equal(t, "lb", p.Unit)
	assert.True(t, p.OnSale)
	assert.Equal(t, "4.99", p.RegularPrice.Decimal.String())
	assert.Equal(t, "3.99", p.EffectivePrice.Decimal.String())
	assert.True(t, p.InStock)
	assert.Equal(t, "https://www.tntsupermarket.com/fuji-apples.html", p.SourceURL)
	assert.Equal(t, "https://img.example.com/fuji.jpg", p.ImageURL)
}

func TestParseTNTItemWasPriceAndStock(t *testing.T) {
	item := map[string]any{
		"sku":          "1",
		"name":         "Pork Belly",
		"weight_uom":   "lb",
		"was_price":    "8.99",
		"price_range":  map[string]any{"minimum_price": map[string]any{"final_price": map[string]any{"value": 6.49}}},
		"stock_status": "OUT_OF_STOCK",
	}

	p, ok := parseTNTItem(item, "https://t", "")
	require.True(t, ok)
	assert.Equal(t, "lb", p.Unit)
	assert.Equal(t, "8.99", p.RegularPrice.Decimal.String())
	assert.Equal(t, "6.49", p.EffectivePrice.Decimal.String())
	assert.False(t, p.InStock)

	_, ok = parseTNTItem(map[string]any{"sku": "2"}, "https://t", "")
	assert.False(t, ok)
}

func TestTNTScrapeAllPaginates(t *testing.T) {
	var pages []float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/graphql", r.URL.Path)

		var req struct {
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		page := req.Variables["currentPage"].(float64)
		pages = append(pages, page)

		name := "Bok Choy 1 lb"
		if page == 2 {
			name = "Napa Cabbage 2 kg"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"products": map[string]any{
					"items": []any{map[string]any{
						"sku":  name,
						"name": name,
						"price": map[string]any{"regularPrice": map[string]any{"amount": map[string]any{"value": 2.5}}},
					}},
					"page_info": map[string]any{"total_pages": 2, "current_page": page},
				},
			},
		})
	}))
	defer srv.Close()

	s := NewTNTStrategy(NewClient("test", 0, nil), nil)
	store := &model.Store{Code: "TNT", BaseURL: srv.URL + "/", ScraperConfig: map[string]any{"categoryIds": []any{"2878"}}}

	products, err := s.ScrapeAll(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, []float64{1, 2}, pages)
	assert.Equal(t, "2878:Vegetables", products[0].Category)
	assert.False(t, products[0].OnSale)
	assert.Equal(t, "2.5", products[1].EffectivePrice.Decimal.String())
}

func TestTNTScrapeAllGraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"category not found"}]}`))
	}))
	defer srv.Close()

	s := NewTNTStrategy(NewClient("test", 0, nil), nil)
	store := &model.Store{Code: "TNT", BaseURL: srv.URL, ScraperConfig: map[string]any{"categoryIds": []any{"1"}}}

	_, err := s.ScrapeAll(context.Background(), store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category not found")
}
