package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"grocery-price/internal/model"

	"github.com/shopspring/decimal"
)

const (
	tntStoreCode = "TNT"
	tntPageSize  = 35
)

var tntCategoryNames = map[string]string{
	"2876": "Bakery",
	"2877": "Fruits",
	"2878": "Vegetables",
	"2879": "Meat",
	"2880": "Seafood",
	"2881": "Dairy & Eggs",
}

var tntDefaultCategories = []entryPoint{
	{ID: "2876", Name: "Bakery"},
	{ID: "2877", Name: "Fruits"},
	{ID: "2878", Name: "Vegetables"},
	{ID: "2879", Name: "Meat"},
	{ID: "2880", Name: "Seafood"},
	{ID: "2881", Name: "Dairy & Eggs"},
}

const tntProductsQuery = `query GetCategories($id:Int!$pageSize:Int!$currentPage:Int!$filters:ProductAttributeFilterInput!$sort:ProductAttributeSortInput){
  category(id:$id){ id name }
  products(pageSize:$pageSize currentPage:$currentPage filter:$filters sort:$sort){
    items{
      id sku name
      price{ regularPrice{ amount{ currency value } } }
      price_range{ minimum_price{ final_price{ currency value } } }
      was_price weight_uom
      small_image{ url }
      stock_status url_key url_suffix
    }
    page_info{ total_pages current_page }
    total_count
  }
}`

// TNTStrategy reads T&T Supermarket through its GraphQL catalogue API
type TNTStrategy struct {
	client *Client
	logger *slog.Logger
}

// NewTNTStrategy creates the T&T strategy
func NewTNTStrategy(client *Client, logger *slog.Logger) *TNTStrategy {
	return &TNTStrategy{
		client: client,
		logger: loggerOrDefault(logger).With("component", "scraper", "store", tntStoreCode),
	}
}

func (s *TNTStrategy) StoreCode() string { return tntStoreCode }

// ScrapeAll walks every configured category
func (s *TNTStrategy) ScrapeAll(ctx context.Context, store *model.Store) ([]model.ScrapedProduct, error) {
	entries := configuredIDs(store, "categoryIds", tntDefaultCategories, tntCategoryNames)
	maxPages := store.ConfigInt("maxPages", 20)
	baseURL := strings.TrimRight(store.BaseURL, "/")

	return scrapeEntryPoints(ctx, s.logger, entries, func(ctx context.Context, e entryPoint) ([]model.ScrapedProduct, error) {
		return s.scrapeCategory(ctx, baseURL, e, maxPages)
	})
}

type tntResponse struct {
	Data *struct {
		Products *struct {
			Items    []map[string]any `json:"items"`
			PageInfo struct {
				TotalPages  int `json:"total_pages"`
				CurrentPage int `json:"current_page"`
			} `json:"page_info"`
		} `json:"products"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (s *TNTStrategy) scrapeCategory(ctx context.Context, baseURL string, e entryPoint, maxPages int) ([]model.ScrapedProduct, error) {
	id, err := strconv.Atoi(e.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid category id %q: %w", e.ID, err)
	}

	var products []model.ScrapedProduct
	totalPages := 1

	for page := 1; page <= totalPages && page <= maxPages; page++ {
		req := map[string]any{
			"operationName": "GetCategories",
			"query":         tntProductsQuery,
			"variables": map[string]any{
				"id":          id,
				"pageSize":    tntPageSize,
				"currentPage": page,
				"filters":     map[string]any{"category_id": map[string]any{"eq": e.ID}},
				"sort":        map[string]any{"position": "DESC"},
			},
		}

		var resp tntResponse
		if err := s.client.PostJSON(ctx, baseURL+"/graphql", nil, req, &resp); err != nil {
			return products, fmt.Errorf("page %d: %w", page, err)
		}
		if resp.Data == nil || resp.Data.Products == nil {
			if len(resp.Errors) > 0 {
				return products, fmt.Errorf("page %d: graphql: %s", page, resp.Errors[0].Message)
			}
			s.logger.Warn("no products in response", "category", e.ID, "page", page)
			break
		}

		if tp := resp.Data.Products.PageInfo.TotalPages; tp > 0 {
			totalPages = tp
		}

		for _, item := range resp.Data.Products.Items {
			if p, ok := parseTNTItem(item, baseURL, e.category()); ok {
				products = append(products, p)
			}
		}

		s.logger.Debug("fetched page", "category", e.ID, "page", page, "total_pages", totalPages,
			"items", len(resp.Data.Products.Items))
	}

	return products, nil
}

// parseTNTItem maps one GraphQL product item
func parseTNTItem(item map[string]any, baseURL, category string) (model.ScrapedProduct, bool) {
	name := asString(item["name"])
	if name == "" {
		return model.ScrapedProduct{}, false
	}

	id := asString(item["sku"])
	if id == "" {
		id = asString(item["id"])
	}

	regular := asPrice(dig(item, "price", "regularPrice", "amount", "value"))
	sale := asPrice(dig(item, "price_range", "minimum_price", "final_price", "value"))

	if was := asPrice(item["was_price"]); positive(was) {
		regular = was
	}
	if !regular.Valid && sale.Valid {
		regular, sale = sale, decimal.NullDecimal{}
	}
	onSale := less(sale, regular)

	effective := regular
	if onSale {
		effective = sale
	}

	unit := asString(item["weight_uom"])
	if unit == "" {
		unit = ExtractUnit(name)
	}

	sourceURL := ""
	if key := asString(item["url_key"]); key != "" {
		sourceURL = baseURL + "/" + key + asString(item["url_suffix"])
	}

	return model.ScrapedProduct{
		StoreProductID: id,
		Name:           name,
		Size:           ExtractSize(name),
		Unit:           unit,
		Category:       category,
		ImageURL:       asString(dig(item, "small_image", "url")),
		RegularPrice:   regular,
		EffectivePrice: effective,
		OnSale:         onSale,
		InStock:        asString(item["stock_status"]) != "OUT_OF_STOCK",
		SourceURL:      sourceURL,
	}, true
}
