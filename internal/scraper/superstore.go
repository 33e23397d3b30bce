package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"grocery-price/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	superstoreStoreCode  = "RCSS"
	superstorePageSize   = 48
	superstoreAPIBaseURL = "https://api.pcexpress.ca/pcx-bff/api/v2/listingPage/"
	superstoreSiteURL    = "https://www.realcanadiansuperstore.ca"
)

var superstoreCategoryNames = map[string]string{
	"28000": "Fruits & Vegetables",
	"28003": "Dairy & Eggs",
	"28006": "Meat & Seafood",
	"28002": "Bakery",
	"28012": "Pantry",
}

var superstoreDefaultCategories = []entryPoint{
	{ID: "28000", Name: "Fruits & Vegetables"},
	{ID: "28003", Name: "Dairy & Eggs"},
	{ID: "28006", Name: "Meat & Seafood"},
	{ID: "28002", Name: "Bakery"},
	{ID: "28012", Name: "Pantry"},
}

var unitPricePattern = regexp.MustCompile(`\$([0-9.]+)/`)

// SuperstoreStrategy reads Real Canadian Superstore through the PC Express listing API
type SuperstoreStrategy struct {
	client *Client
	apiKey string
	logger *slog.Logger
	now    func() time.Time
}

// NewSuperstoreStrategy creates the RCSS strategy
func NewSuperstoreStrategy(client *Client, apiKey string, logger *slog.Logger) *SuperstoreStrategy {
	return &SuperstoreStrategy{
		client: client,
		apiKey: apiKey,
		logger: loggerOrDefault(logger).With("component", "scraper", "store", superstoreStoreCode),
		now:    time.Now,
	}
}

func (s *SuperstoreStrategy) StoreCode() string { return superstoreStoreCode }

// ScrapeAll walks every configured category
func (s *SuperstoreStrategy) ScrapeAll(ctx context.Context, store *model.Store) ([]model.ScrapedProduct, error) {
	entries := configuredIDs(store, "categoryIds", superstoreDefaultCategories, superstoreCategoryNames)
	apiBase := store.ConfigString("apiBaseUrl", superstoreAPIBaseURL)
	storeID := store.ConfigString("storeId", "1518")
	maxPages := store.ConfigInt("maxPages", 20)

	return scrapeEntryPoints(ctx, s.logger, entries, func(ctx context.Context, e entryPoint) ([]model.ScrapedProduct, error) {
		return s.scrapeCategory(ctx, apiBase+e.ID, storeID, e, maxPages)
	})
}

func (s *SuperstoreStrategy) headers() map[string]string {
	return map[string]string{
		"Accept-Language":    "en",
		"x-apikey":           s.apiKey,
		"x-application-type": "web",
		"x-loblaw-tenant-id": "ONLINE_GROCERIES",
	}
}

func (s *SuperstoreStrategy) requestBody(page int, storeID string) map[string]any {
	from := 1
	if page > 0 {
		from = page * superstorePageSize
	}
	return map[string]any{
		"cart":     map[string]any{"cartId": uuid.NewString()},
		"userData": map[string]any{"domainUserId": uuid.NewString(), "sessionId": uuid.NewString()},
		"fulfillmentInfo": map[string]any{
			"offerType":  "OG",
			"storeId":    storeID,
			"pickupType": "STORE",
			"date":       s.now().Format("02012006"),
			"timeSlot":   nil,
		},
		"banner": "superstore",
		"listingInfo": map[string]any{
			"filters":                  map[string]any{},
			"sort":                     map[string]any{},
			"pagination":               map[string]any{"from": from},
			"includeFiltersInResponse": true,
		},
	}
}

func (s *SuperstoreStrategy) scrapeCategory(ctx context.Context, url, storeID string, e entryPoint, maxPages int) ([]model.ScrapedProduct, error) {
	var products []model.ScrapedProduct
	totalPages := 1

	for page := 0; page < totalPages && page < maxPages; page++ {
		var resp map[string]any
		if err := s.client.PostJSON(ctx, url, s.headers(), s.requestBody(page, storeID), &resp); err != nil {
			return products, fmt.Errorf("page %d: %w", page+1, err)
		}

		if tp, ok := dig(resp, "pagination", "totalPages").(float64); ok && tp >= 1 {
			totalPages = int(tp)
		}

		tiles := superstoreTiles(resp)
		for _, tile := range tiles {
			item, ok := tile.(map[string]any)
			if !ok {
				continue
			}
			if p, ok := parseSuperstoreTile(item, e.category()); ok {
				products = append(products, p)
			}
		}

		s.logger.Debug("fetched page", "category", e.ID, "page", page+1, "total_pages", totalPages, "items", len(tiles))
	}

	return products, nil
}

// superstoreTiles collects productTiles of every product carousel in the main content
func superstoreTiles(resp map[string]any) []any {
	var tiles []any
	for _, c := range asSlice(dig(resp, "layout", "sections", "mainContentCollection", "components")) {
		if asString(dig(c, "componentId")) != "productCarouselComponent" {
			continue
		}
		found := asSlice(dig(c, "productTiles"))
		if found == nil {
			found = asSlice(dig(c, "data", "productTiles"))
		}
		tiles = append(tiles, found...)
	}
	return tiles
}

// parseSuperstoreTile maps one product tile
func parseSuperstoreTile(item map[string]any, category string) (model.ScrapedProduct, bool) {
	name := asString(item["title"])
	if name == "" {
		return model.ScrapedProduct{}, false
	}

	imageURL := digString(item, []string{"productImage", "0", "smallUrl"}, []string{"productImage", "0", "mediumUrl"})

	regular := asPrice(dig(item, "pricing", "price"))
	var sale decimal.NullDecimal
	if was := asPrice(dig(item, "pricing", "wasPrice")); positive(was) {
		sale = regular
		regular = was
	}

	deal, hasDeal := item["deal"]
	hasDeal = hasDeal && deal != nil
	onSale := hasDeal || less(sale, regular)

	inStock := true
	if ind, ok := item["inventoryIndicator"].(map[string]any); ok {
		inStock = !strings.EqualFold(asString(ind["indicatorId"]), "OUT")
	}
	if strings.Contains(strings.ToLower(asString(item["textBadge"])), "out-of-stock") {
		inStock = false
	}

	packageSizing := asString(item["packageSizing"])
	sizeSource := name
	if packageSizing != "" {
		sizeSource = packageSizing
	}
	unit := ExtractUnit(sizeSource)
	if unit == "" {
		unit = asString(dig(item, "pricingUnits", "unit"))
	}

	var unitPrice decimal.NullDecimal
	if m := unitPricePattern.FindStringSubmatch(packageSizing); m != nil {
		unitPrice = ParsePrice(m[1])
	}

	promo := ""
	if hasDeal {
		promo = asString(dig(deal, "text"))
		if promo == "" {
			promo = asString(deal)
		}
	}

	sourceURL := ""
	if link := asString(item["link"]); link != "" {
		sourceURL = superstoreSiteURL + link
	}

	effective := regular
	if onSale && sale.Valid {
		effective = sale
	}

	return model.ScrapedProduct{
		StoreProductID: asString(item["productId"]),
		Name:           name,
		Brand:          asString(item["brand"]),
		Size:           ExtractSize(sizeSource),
		Unit:           unit,
		Category:       category,
		ImageURL:       imageURL,
		RegularPrice:   regular,
		EffectivePrice: effective,
		UnitPrice:      unitPrice,
		OnSale:         onSale,
		PromoText:      promo,
		InStock:        inStock,
		SourceURL:      sourceURL,
	}, true
}
