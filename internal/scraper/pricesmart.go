package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"grocery-price/internal/model"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/shopspring/decimal"
)

const (
	priceSmartStoreCode   = "PRICESMART"
	priceSmartScrollPass  = 3
	priceSmartScrollPause = 2 * time.Second
)

var (
	priceSmartCategoryID = regexp.MustCompile(`id-(\d+)`)
	priceSmartSave       = regexp.MustCompile(`(?i)save\s*\$?(\d+\.?\d*)`)
	priceSmartPercentOff = regexp.MustCompile(`(?i)(\d+)\s*%\s*off`)
)

var priceSmartCategoryNames = map[string]string{
	"30682": "Fresh Fruit",
	"30694": "Fresh Vegetables",
	"30717": "Salad Kits & Greens",
	"30723": "Fresh Juice & Smoothies",
	"30724": "Fresh Noodle, Tofu & Soy Products",
	"30850": "Breads",
	"30873": "Rolls & Buns",
	"30847": "Bagels & English Muffins",
	"30930": "Milk & Creams",
	"30919": "Eggs & Substitutes",
	"30910": "Cheese",
	"30907": "Butter & Margarine",
	"30945": "Yogurt",
	"30798": "Chicken & Turkey",
	"30792": "Beef & Veal",
	"30807": "Pork & Ham",
	"30827": "Fish",
	"30817": "Bacon",
	"31002": "Frozen Vegetables",
	"30971": "Frozen Fruit",
	"30976": "Frozen Meals & Sides",
	"31008": "Ice Cream & Desserts",
	"30481": "Breakfast",
	"30527": "Canned & Packaged",
	"30385": "Beverages",
	"30511": "Snacks",
}

var priceSmartDefaultPaths = []string{
	"/sm/pickup/rsid/2274/categories/fruits-vegetables/fresh-fruit-id-30682",
	"/sm/pickup/rsid/2274/categories/fruits-vegetables/fresh-vegetables-id-30694",
	"/sm/pickup/rsid/2274/categories/fruits-vegetables/salad-kits-greens-essentials-id-30717",
	"/sm/pickup/rsid/2274/categories/bakery/breads-id-30850",
	"/sm/pickup/rsid/2274/categories/bakery/rolls-buns-id-30873",
	"/sm/pickup/rsid/2274/categories/dairy-eggs/milk-creams-id-30930",
	"/sm/pickup/rsid/2274/categories/dairy-eggs/eggs-substitutes-id-30919",
	"/sm/pickup/rsid/2274/categories/dairy-eggs/cheese-id-30910",
	"/sm/pickup/rsid/2274/categories/dairy-eggs/yogurt-id-30945",
	"/sm/pickup/rsid/2274/categories/meat-seafood/chicken-turkey-id-30798",
	"/sm/pickup/rsid/2274/categories/meat-seafood/beef-veal-id-30792",
	"/sm/pickup/rsid/2274/categories/meat-seafood/pork-ham-id-30807",
	"/sm/pickup/rsid/2274/categories/meat-seafood/fish-id-30827",
	"/sm/pickup/rsid/2274/categories/frozen/frozen-vegetables-id-31002",
	"/sm/pickup/rsid/2274/categories/frozen/frozen-meals-sides-id-30976",
	"/sm/pickup/rsid/2274/categories/pantry/breakfast-id-30481",
	"/sm/pickup/rsid/2274/categories/pantry/canned-packaged-id-30527",
	"/sm/pickup/rsid/2274/categories/pantry/snacks-id-30511",
}

// renderer returns the HTML of a page after client-side rendering
type renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// PriceSmartStrategy renders PriceSmart Foods category pages in headless Chrome
type PriceSmartStrategy struct {
	client   *Client
	renderer renderer
	logger   *slog.Logger
}

// NewPriceSmartStrategy creates the PriceSmart strategy. Chrome is launched
// on first use; browserBin may be empty to let rod find or download one.
func NewPriceSmartStrategy(client *Client, browserBin string, timeout time.Duration, logger *slog.Logger) *PriceSmartStrategy {
	logger = loggerOrDefault(logger).With("component", "scraper", "store", priceSmartStoreCode)
	return &PriceSmartStrategy{
		client:   client,
		renderer: &rodRenderer{bin: browserBin, timeout: timeout, logger: logger},
		logger:   logger,
	}
}

func (s *PriceSmartStrategy) StoreCode() string { return priceSmartStoreCode }

// Close shuts down the browser if it was started
func (s *PriceSmartStrategy) Close() error {
	return s.renderer.Close()
}

// ScrapeAll renders every configured category URL once
func (s *PriceSmartStrategy) ScrapeAll(ctx context.Context, store *model.Store) ([]model.ScrapedProduct, error) {
	urls := store.ConfigStrings("categoryUrls")
	if len(urls) == 0 {
		base := strings.TrimRight(store.BaseURL, "/")
		for _, p := range priceSmartDefaultPaths {
			urls = append(urls, base+p)
		}
	}

	entries := make([]entryPoint, 0, len(urls))
	for _, u := range urls {
		entries = append(entries, entryPoint{URL: u})
	}

	return scrapeEntryPoints(ctx, s.logger, entries, func(ctx context.Context, e entryPoint) ([]model.ScrapedProduct, error) {
		if err := s.client.Acquire(ctx); err != nil {
			return nil, err
		}
		html, err := s.renderer.Render(ctx, e.URL)
		if err != nil {
			return nil, err
		}
		return parsePriceSmartCards(html, e.URL)
	})
}

// parsePriceSmartCards reads every product card of a rendered category page
func parsePriceSmartCards(html, sourceURL string) ([]model.ScrapedProduct, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	category := ""
	if m := priceSmartCategoryID.FindStringSubmatch(sourceURL); m != nil {
		name := priceSmartCategoryNames[m[1]]
		if name == "" {
			name = m[1]
		}
		category = CategoryValue(m[1], name)
	}

	var products []model.ScrapedProduct
	doc.Find(`article[class*="ProductCardWrapper"]`).Each(func(_ int, el *goquery.Selection) {
		if p, ok := parsePriceSmartCard(el, sourceURL, category); ok {
			products = append(products, p)
		}
	})
	return products, nil
}

func parsePriceSmartCard(el *goquery.Selection, sourceURL, category string) (model.ScrapedProduct, bool) {
	testID, _ := el.Attr("data-testid")
	id := strings.TrimSpace(strings.ReplaceAll(testID, "ProductCardWrapper-", ""))
	if id == "" {
		return model.ScrapedProduct{}, false
	}

	name := strings.TrimSpace(strings.ReplaceAll(el.Find(`[class*="ProductCardTitle"]`).First().Text(), "Open product description", ""))
	if name == "" {
		return model.ScrapedProduct{}, false
	}

	regular := ParsePrice(el.Find(`[class*="ProductCardPrice--"]`).First().Text())
	unitPrice := ParsePrice(el.Find(`[class*="ProductCardPriceInfo"]`).First().Text())

	var sale decimal.NullDecimal
	onSale := false
	promo := ""

	el.Find(`[class*="Badge"]`).EachWithBreak(func(_ int, badge *goquery.Selection) bool {
		text := strings.TrimSpace(badge.Text())
		if text == "" {
			return true
		}
		promo = text

		if m := priceSmartSave.FindStringSubmatch(text); m != nil && regular.Valid {
			if savings := ParsePrice(m[1]); positive(savings) {
				sale = regular
				regular = decimal.NewNullDecimal(regular.Decimal.Add(savings.Decimal))
				onSale = true
			}
		}
		if !onSale && regular.Valid {
			if m := priceSmartPercentOff.FindStringSubmatch(text); m != nil {
				if pct, _ := strconv.Atoi(m[1]); pct > 0 && pct < 100 {
					original := regular.Decimal.Mul(decimal.NewFromInt(100)).
						DivRound(decimal.NewFromInt(int64(100-pct)), 2)
					sale = regular
					regular = decimal.NewNullDecimal(original)
					onSale = true
				}
			}
		}
		return !onSale
	})

	if !onSale {
		if deal := el.Find(`[class*="ViewDeal"]`).First(); deal.Length() > 0 {
			onSale = true
			if promo == "" {
				promo = strings.TrimSpace(deal.Text())
			}
		}
	}

	// A second, higher price element is the struck-through original
	if !onSale || !sale.Valid {
		prices := el.Find(`[class*="ProductCardPrice"]`)
		if prices.Length() > 1 && regular.Valid {
			prices.EachWithBreak(func(_ int, pe *goquery.Selection) bool {
				other := ParsePrice(pe.Text())
				if less(regular, other) {
					sale = regular
					regular = other
					onSale = true
					return false
				}
				return true
			})
		}
	}

	link := sourceURL
	if href, ok := el.Find(`a[class*="ProductCardHiddenLink"]`).First().Attr("href"); ok && href != "" {
		link = href
	}

	effective := regular
	if onSale && sale.Valid {
		effective = sale
	}

	return model.ScrapedProduct{
		StoreProductID: id,
		Name:           name,
		Brand:          strings.TrimSpace(el.Find(`[class*="ProductAQABrand"]`).First().Text()),
		Size:           ExtractSize(name),
		Unit:           ExtractUnit(name),
		Category:       category,
		ImageURL:       priceSmartImage(el),
		RegularPrice:   regular,
		EffectivePrice: effective,
		UnitPrice:      unitPrice,
		OnSale:         onSale,
		PromoText:      promo,
		InStock:        el.Find(`[class*="outOfStock"], [class*="OutOfStock"]`).Length() == 0,
		SourceURL:      link,
	}, true
}

func firstSrcset(srcset string) string {
	fields := strings.FieldsFunc(srcset, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func priceSmartImage(el *goquery.Selection) string {
	if box := el.Find(`[class*="ProductCardImage"]`).First(); box.Length() > 0 {
		img := box
		if goquery.NodeName(box) != "img" {
			img = box.Find("img").First()
		}
		if img.Length() > 0 {
			src := img.AttrOr("src", "")
			if src == "" {
				src = img.AttrOr("data-src", "")
			}
			if src == "" {
				src = firstSrcset(img.AttrOr("srcset", ""))
			}
			if src != "" && !strings.HasPrefix(src, "blob:") && !strings.HasPrefix(src, "data:") {
				return src
			}
		}
	}

	found := ""
	el.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if src := img.AttrOr("src", ""); strings.HasPrefix(src, "http") && !strings.Contains(src, "placeholder") {
			found = src
			return false
		}
		if c := firstSrcset(img.AttrOr("srcset", "")); strings.HasPrefix(c, "http") {
			found = c
			return false
		}
		return true
	})
	return found
}

// rodRenderer drives one lazily launched headless Chrome
type rodRenderer struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

func (r *rodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().Headless(true)
	if r.bin != "" {
		l = l.Bin(r.bin)
	}
	// Anti-detection flags
	l = l.Set("disable-blink-features", "AutomationControlled")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	r.logger.Info("browser: launched local chrome", "url", u)
	r.browser = b
	r.lnch = l
	return b, nil
}

// Render navigates a fresh stealth tab, scrolls to trigger lazy loading and returns the DOM
func (r *rodRenderer) Render(ctx context.Context, url string) (string, error) {
	b, err := r.connect()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return "", fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	timeout := r.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		r.logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	if _, err := p.Timeout(10*time.Second).Element(`article[class*="ProductCardWrapper"]`); err != nil {
		r.logger.Warn("browser: no product cards rendered", "url", url, "error", err)
	}

	for i := 0; i < priceSmartScrollPass; i++ {
		if _, err := p.Eval(`() => window.scrollBy(0, window.innerHeight)`); err != nil {
			break
		}
		select {
		case <-time.After(priceSmartScrollPause):
		case <-navCtx.Done():
			return "", navCtx.Err()
		}
	}

	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return html, nil
}

// Close shuts Chrome down
func (r *rodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	if r.lnch != nil {
		r.lnch.Kill()
	}
	r.browser, r.lnch = nil, nil
	return err
}
