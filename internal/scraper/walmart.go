package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"grocery-price/internal/model"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/shopspring/decimal"
)

const (
	walmartStoreCode = "WALMART"
	walmartPageSize  = 40
)

var (
	walmartCategoryID   = regexp.MustCompile(`_(\d{13})(?:\?|$)`)
	walmartCents        = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*¢`)
	walmartWasPrice     = regexp.MustCompile(`(?i)Was\s*\$?([\d,]+\.?\d*)`)
	walmartNowPrice     = regexp.MustCompile(`(?i)Now\s*\$?([\d,]+\.?\d*)`)
	walmartCurrentPrice = regexp.MustCompile(`(?i)current price\s*`)
	walmartItemPaths    = [][]string{
		{"initialData", "searchResult", "itemStacks", "0", "items"},
		{"initialData", "items"},
		{"products"},
		{"searchResult", "items"},
		{"itemStacks", "0", "items"},
	}
)

var walmartCategoryNames = map[string]string{
	"6000194327411": "Fresh Fruits",
	"6000194327412": "Fresh Vegetables",
	"6000194327409": "Fresh Chicken & Turkey",
	"6000194327394": "Fresh Beef",
	"6000194327395": "Fresh Pork",
	"6000194327410": "Fresh Fish & Seafood",
	"6000194327399": "Milk",
	"6000194327390": "Yogurt",
	"6000194327387": "Butter & Margarine",
	"6000194327389": "Eggs & Egg Substitutes",
	"6000194327413": "Frozen Meals & Sides",
	"6000194327403": "Frozen Vegetables",
	"6000194328506": "Cereal & Breakfast",
	"6000194328515": "Canned Food",
	"6000194327386": "Sliced Bread",
}

var walmartDefaultPaths = []string{
	"/en/browse/grocery/fruits-vegetables/fresh-fruits/10019_6000194327370_6000194327411",
	"/en/browse/grocery/fruits-vegetables/fresh-vegetables/10019_6000194327370_6000194327412",
	"/en/browse/grocery/meat-seafood-alternatives/fresh-chicken-turkey/10019_6000194327357_6000194327409",
	"/en/browse/grocery/meat-seafood-alternatives/fresh-beef/10019_6000194327357_6000194327394",
	"/en/browse/grocery/meat-seafood-alternatives/fresh-pork/10019_6000194327357_6000194327395",
	"/en/browse/grocery/meat-seafood-alternatives/fresh-fish-seafood/10019_6000194327357_6000194327410",
	"/en/browse/grocery/dairy-eggs/dairy-milk/10019_6000194327369_6000194327399",
	"/en/browse/grocery/dairy-eggs/yogurt/10019_6000194327369_6000194327390",
	"/en/browse/grocery/dairy-eggs/butter-margarine/10019_6000194327369_6000194327387",
	"/en/browse/grocery/dairy-eggs/eggs-egg-substitutes/10019_6000194327369_6000194327389",
	"/en/browse/grocery/frozen-food/frozen-meals-sides/10019_6000194326337_6000194327413",
	"/en/browse/grocery/frozen-food/frozen-vegetables/10019_6000194326337_6000194327403",
	"/en/browse/grocery/pantry-food/cereal-breakfast/10019_6000194326346_6000194328506",
	"/en/browse/grocery/pantry-food/canned-food/10019_6000194326346_6000194328515",
	"/en/browse/grocery/bread-bakery/sliced-bread/10019_6000194327359_6000194327386",
}

// WalmartStrategy crawls Walmart Canada category pages with colly
type WalmartStrategy struct {
	client    *Client
	timeout   time.Duration
	pageDelay time.Duration
	logger    *slog.Logger
}

// NewWalmartStrategy creates the Walmart strategy. Page fetches share the
// client's user agent and limiter.
func NewWalmartStrategy(client *Client, timeout time.Duration, logger *slog.Logger) *WalmartStrategy {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WalmartStrategy{
		client:    client,
		timeout:   timeout,
		pageDelay: 3 * time.Second,
		logger:    loggerOrDefault(logger).With("component", "scraper", "store", walmartStoreCode),
	}
}

func (s *WalmartStrategy) StoreCode() string { return walmartStoreCode }

// ScrapeAll walks every configured category URL
func (s *WalmartStrategy) ScrapeAll(ctx context.Context, store *model.Store) ([]model.ScrapedProduct, error) {
	maxPages := store.ConfigInt("maxPages", 10)

	urls := store.ConfigStrings("categoryUrls")
	if len(urls) == 0 {
		base := strings.TrimRight(store.BaseURL, "/")
		for _, p := range walmartDefaultPaths {
			urls = append(urls, base+p)
		}
	}

	entries := make([]entryPoint, 0, len(urls))
	for _, u := range urls {
		e := entryPoint{URL: u}
		if m := walmartCategoryID.FindStringSubmatch(u); m != nil {
			e.ID = m[1]
			e.Name = walmartCategoryNames[m[1]]
			if e.Name == "" {
				e.Name = m[1]
			}
		}
		entries = append(entries, e)
	}

	return scrapeEntryPoints(ctx, s.logger, entries, func(ctx context.Context, e entryPoint) ([]model.ScrapedProduct, error) {
		return s.scrapeCategory(ctx, e, maxPages)
	})
}

func (s *WalmartStrategy) newCollector(ctx context.Context, acquireErr *error) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(s.client.UserAgent()),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.timeout)
	if s.pageDelay > 0 {
		c.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Delay:       s.pageDelay,
			RandomDelay: s.pageDelay,
		})
	}

	c.OnRequest(func(r *colly.Request) {
		if err := s.client.Acquire(ctx); err != nil {
			*acquireErr = err
			r.Abort()
			return
		}
		r.Headers.Set("Accept-Language", "en-CA,en;q=0.9")
	})
	return c
}

func (s *WalmartStrategy) scrapeCategory(ctx context.Context, e entryPoint, maxPages int) ([]model.ScrapedProduct, error) {
	var acquireErr error
	c := s.newCollector(ctx, &acquireErr)

	var page walmartPage
	var parsed bool
	category := e.category()
	c.OnHTML("html", func(h *colly.HTMLElement) {
		page = parseWalmartPage(h.DOM, h.Request.URL.String(), category)
		parsed = true
	})

	var products []model.ScrapedProduct
	for n := 1; n <= maxPages; n++ {
		if err := ctx.Err(); err != nil {
			return products, err
		}

		page, parsed = walmartPage{}, false
		pageURL := walmartPageURL(e.URL, n)
		err := c.Visit(pageURL)
		if acquireErr != nil {
			return products, acquireErr
		}
		if err != nil {
			return products, fmt.Errorf("page %d: %w", n, err)
		}
		if !parsed || len(page.products) == 0 {
			s.logger.Debug("no products on page, stopping", "url", pageURL)
			break
		}

		products = append(products, page.products...)
		s.logger.Debug("fetched page", "url", pageURL, "items", len(page.products), "from_json", page.fromJSON)

		if page.fromJSON && len(page.products) < walmartPageSize {
			break
		}
		if !page.fromJSON && !page.hasNext {
			break
		}
	}
	return products, nil
}

func walmartPageURL(categoryURL string, page int) string {
	if page <= 1 {
		return categoryURL
	}
	if strings.Contains(categoryURL, "?") {
		return fmt.Sprintf("%s&page=%d", categoryURL, page)
	}
	return fmt.Sprintf("%s?page=%d", categoryURL, page)
}

type walmartPage struct {
	products []model.ScrapedProduct
	fromJSON bool
	hasNext  bool
}

// parseWalmartPage tries __NEXT_DATA__, then JSON-LD, then product cards
func parseWalmartPage(doc *goquery.Selection, sourceURL, category string) walmartPage {
	if raw := doc.Find("script#__NEXT_DATA__").First().Text(); raw != "" {
		if products := parseWalmartNextData(raw, sourceURL, category); len(products) > 0 {
			return walmartPage{products: products, fromJSON: true}
		}
	}

	var ld []model.ScrapedProduct
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		ld = append(ld, parseWalmartJSONLD(sel.Text(), sourceURL, category)...)
	})
	if len(ld) > 0 {
		return walmartPage{products: ld, fromJSON: true}
	}

	return walmartPage{
		products: parseWalmartCards(doc, sourceURL, category),
		hasNext:  doc.Find(`[data-testid="pagination-next"]:not([disabled]), .paginator-btn-next:not(.disabled), a[rel="next"]`).Length() > 0,
	}
}

func parseWalmartNextData(raw, sourceURL, category string) []model.ScrapedProduct {
	var root map[string]any
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil
	}
	props := dig(root, "props", "pageProps")

	var items []any
	for _, path := range walmartItemPaths {
		if found := asSlice(dig(props, path...)); len(found) > 0 {
			items = found
			break
		}
	}

	products := make([]model.ScrapedProduct, 0, len(items))
	for _, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := parseWalmartItem(item, sourceURL, category); ok {
			products = append(products, p)
		}
	}
	return products
}

// parseWalmartPrice understands "$5.44", "5.44" and "40¢"
func parseWalmartPrice(text string) decimal.NullDecimal {
	if m := walmartCents.FindStringSubmatch(text); m != nil {
		if d, err := decimal.NewFromString(m[1]); err == nil {
			return decimal.NewNullDecimal(d.Shift(-2))
		}
	}
	return ParsePrice(text)
}

func parseWalmartItem(item map[string]any, sourceURL, category string) (model.ScrapedProduct, bool) {
	name := digString(item, []string{"name"}, []string{"title"}, []string{"productName"})
	if name == "" {
		return model.ScrapedProduct{}, false
	}

	var regular, sale, unitPrice decimal.NullDecimal
	if info, ok := item["priceInfo"].(map[string]any); ok {
		line := parseWalmartPrice(digString(info, []string{"linePrice"}, []string{"linePriceDisplay"}))
		was := parseWalmartPrice(asString(info["wasPrice"]))
		unitPrice = parseWalmartPrice(asString(info["unitPrice"]))

		if less(line, was) {
			regular, sale = was, line
		} else if line.Valid {
			regular = line
		}
	}
	if !regular.Valid {
		if p, ok := item["price"].(float64); ok && p > 0 {
			regular = decimal.NewNullDecimal(decimal.NewFromFloat(p))
		}
	}
	if !regular.Valid && sale.Valid {
		regular, sale = sale, decimal.NullDecimal{}
	}
	onSale := less(sale, regular)

	inStock := !asBool(item["isOutOfStock"])
	if v2, ok := item["availabilityStatusV2"].(map[string]any); ok {
		if status := digString(v2, []string{"value"}, []string{"display"}); status != "" {
			inStock = walmartAvailable(status)
		}
	} else if status := asString(item["availabilityStatus"]); status != "" {
		inStock = walmartAvailable(status)
	}

	effective := regular
	if onSale {
		effective = sale
	}

	return model.ScrapedProduct{
		StoreProductID: digString(item, []string{"usItemId"}, []string{"id"}, []string{"productId"}, []string{"sku"}),
		Name:           name,
		Brand:          digString(item, []string{"brand"}, []string{"brandName"}),
		Size:           ExtractSize(name),
		Unit:           ExtractUnit(name),
		Category:       category,
		ImageURL:       walmartImage(item),
		RegularPrice:   regular,
		EffectivePrice: effective,
		UnitPrice:      unitPrice,
		OnSale:         onSale,
		PromoText:      digString(item, []string{"promoDescription"}, []string{"badge"}, []string{"flag"}),
		InStock:        inStock,
		SourceURL:      sourceURL,
	}, true
}

func walmartAvailable(status string) bool {
	upper := strings.ToUpper(status)
	return !strings.Contains(upper, "OUT") && !strings.Contains(upper, "UNAVAILABLE")
}

func walmartImage(item map[string]any) string {
	for _, key := range []string{"image", "imageUrl", "thumbnailUrl"} {
		switch v := item[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			if len(v) > 0 {
				return asString(v[0])
			}
		case map[string]any:
			if src := digString(v, []string{"src"}, []string{"url"}); src != "" {
				return src
			}
		}
	}
	return ""
}

func parseWalmartJSONLD(raw, sourceURL, category string) []model.ScrapedProduct {
	var root any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &root); err != nil {
		return nil
	}

	var nodes []any
	if list, ok := root.([]any); ok {
		nodes = list
	} else {
		nodes = []any{root}
	}

	var products []model.ScrapedProduct
	for _, n := range nodes {
		switch strings.ToLower(asString(dig(n, "@type"))) {
		case "product":
			if p, ok := parseJSONLDProduct(n, sourceURL, category); ok {
				products = append(products, p)
			}
		case "itemlist":
			for _, el := range asSlice(dig(n, "itemListElement")) {
				node := el
				if inner := dig(el, "item"); inner != nil {
					node = inner
				}
				if p, ok := parseJSONLDProduct(node, sourceURL, category); ok {
					products = append(products, p)
				}
			}
		}
	}
	return products
}

func parseJSONLDProduct(node any, sourceURL, category string) (model.ScrapedProduct, bool) {
	name := asString(dig(node, "name"))
	if name == "" {
		return model.ScrapedProduct{}, false
	}

	brand := asString(dig(node, "brand"))
	if brand == "" {
		brand = asString(dig(node, "brand", "name"))
	}

	image := asString(dig(node, "image"))
	if image == "" {
		image = asString(dig(node, "image", "0"))
	}

	offer := dig(node, "offers")
	if list, ok := offer.([]any); ok && len(list) > 0 {
		offer = list[0]
	}
	regular := asPrice(dig(offer, "price"))
	if !regular.Valid {
		regular = asPrice(dig(offer, "highPrice"))
	}
	sale := asPrice(dig(offer, "lowPrice"))
	if !regular.Valid && sale.Valid {
		regular, sale = sale, decimal.NullDecimal{}
	}
	onSale := less(sale, regular)

	effective := regular
	if onSale {
		effective = sale
	}

	return model.ScrapedProduct{
		StoreProductID: digString(node, []string{"sku"}, []string{"productID"}, []string{"identifier"}),
		Name:           name,
		Brand:          brand,
		Size:           ExtractSize(name),
		Unit:           ExtractUnit(name),
		Category:       category,
		ImageURL:       image,
		RegularPrice:   regular,
		EffectivePrice: effective,
		OnSale:         onSale,
		InStock:        true,
		SourceURL:      sourceURL,
	}, true
}

func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if text := strings.TrimSpace(sel.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func parseWalmartCards(doc *goquery.Selection, sourceURL, category string) []model.ScrapedProduct {
	var products []model.ScrapedProduct
	doc.Find(`[data-testid="product-card"], .product-card, .search-result-gridview-item, [data-item-id], .product-tile`).Each(func(_ int, el *goquery.Selection) {
		if p, err := parseWalmartCard(el, sourceURL, category); err == nil {
			products = append(products, p)
		}
	})
	return products
}

var errNoName = errors.New("product card has no name")

func parseWalmartCard(el *goquery.Selection, sourceURL, category string) (model.ScrapedProduct, error) {
	name := firstText(el, `[data-automation-id="product-title"]`, `[data-testid="product-title"]`, ".product-title", ".product-name")
	if name == "" {
		return model.ScrapedProduct{}, errNoName
	}

	id, _ := el.Attr("data-item-id")
	if id == "" {
		id, _ = el.Attr("data-product-id")
	}

	var regular, sale, unitPrice decimal.NullDecimal
	if box := el.Find(`[data-automation-id="product-price"]`).First(); box.Length() > 0 {
		box.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
			text := strings.TrimSpace(span.Text())
			if !strings.Contains(strings.ToLower(text), "current price") {
				return true
			}
			was := walmartWasPrice.FindStringSubmatch(text)
			now := walmartNowPrice.FindStringSubmatch(text)
			if was != nil && now != nil {
				sale = parseWalmartPrice(now[1])
				regular = parseWalmartPrice(was[1])
			} else {
				regular = parseWalmartPrice(walmartCurrentPrice.ReplaceAllString(text, ""))
			}
			return false
		})
		if !regular.Valid {
			regular = parseWalmartPrice(strings.TrimSpace(box.Find(".b.black").First().Text()))
		}
		unitPrice = ParsePrice(strings.TrimSpace(box.Find(`[data-testid="product-price-per-unit"]`).First().Text()))
	}
	if !regular.Valid {
		regular = parseWalmartPrice(firstText(el, `[data-testid="price"]`, ".price-main", ".price"))
	}
	if !unitPrice.Valid {
		unitPrice = ParsePrice(firstText(el, `[data-testid="unit-price"]`, ".unit-price"))
	}

	image := ""
	if img := el.Find(`[data-testid="productTileImage"], img[data-testid="product-image"], .product-image img, img`).First(); img.Length() > 0 {
		image, _ = img.Attr("src")
		if image == "" {
			image, _ = img.Attr("data-src")
		}
	}

	onSale := less(sale, regular)
	effective := regular
	if onSale {
		effective = sale
	}

	return model.ScrapedProduct{
		StoreProductID: id,
		Name:           name,
		Brand:          firstText(el, `[data-automation-id="product-brand"]`, `[data-testid="product-brand"]`, ".product-brand"),
		Size:           ExtractSize(name),
		Unit:           ExtractUnit(name),
		Category:       category,
		ImageURL:       image,
		RegularPrice:   regular,
		EffectivePrice: effective,
		UnitPrice:      unitPrice,
		OnSale:         onSale,
		PromoText:      firstText(el, `[data-testid="tag-leading-badge"]`, `[data-testid="promo-badge"]`, ".promo-flag"),
		InStock:        !el.HasClass("out-of-stock") && el.Find(`.out-of-stock-badge, [data-testid="oos-badge"]`).Length() == 0,
		SourceURL:      sourceURL,
	}, nil
}
