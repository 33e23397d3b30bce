package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"grocery-price/internal/model"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const walmartNextDataPage = `<html><head>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"initialData":{"searchResult":{"itemStacks":[{"items":[
  {"usItemId":"6000200","name":"Bananas, 1 lb","brand":"Fresh",
   "priceInfo":{"linePrice":"$1.50","wasPrice":"$2.00","unitPrice":"33.1¢/100g"},
   "image":"https://i5.walmartimages.ca/bananas.jpg",
   "availabilityStatusV2":{"value":"IN_STOCK"}},
  {"usItemId":"6000201","name":"Lemons 2 lb bag","priceInfo":{"linePrice":"$3.97"},
   "availabilityStatus":"OUT_OF_STOCK"},
  {"usItemId":"6000202"}
]}]}}}}}
</script></head><body></body></html>`

const walmartJSONLDPage = `<html><head>
<script type="application/ld+json">
{"@type":"ItemList","itemListElement":[
  {"@type":"ListItem","position":1,"item":{"@type":"Product","name":"Navel Oranges 3 lb","sku":"777",
   "brand":{"@type":"Brand","name":"Sunkist"},"image":["https://img/oranges.jpg"],
   "offers":{"@type":"Offer","price":"4.97"}}}
]}
</script></head><body></body></html>`

const walmartCardPage = `<html><body>
<div data-item-id="555">
  <span data-automation-id="product-title">Great Value Milk 4L</span>
  <span data-automation-id="product-brand">Great Value</span>
  <div data-automation-id="product-price"><span>current price Now $5.47, Was $6.29</span></div>
  <img src="https://img/milk.jpg">
</div>
<div data-item-id="556">
  <span data-automation-id="product-title">Large Eggs 12 ct</span>
  <div data-automation-id="product-price"><span>current price $3.99</span></div>
</div>
<a rel="next" href="?page=2">Next</a>
</body></html>`

func parseWalmartHTML(t *testing.T, html string) walmartPage {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return parseWalmartPage(doc.Selection, "https://www.walmart.ca/browse/x", "6000194327411:Fresh Fruits")
}

func TestParseWalmartNextData(t *testing.T) {
	page := parseWalmartHTML(t, walmartNextDataPage)
	require.True(t, page.fromJSON)
	require.Len(t, page.products, 2)

	bananas := page.products[0]
	assert.Equal(t, "6000200", bananas.StoreProductID)
	assert.Equal(t, "Fresh", bananas.Brand)
	assert.True(t, bananas.OnSale)
	assert.Equal(t, "2", bananas.RegularPrice.Decimal.String())
	assert.Equal(t, "1.5", bananas.EffectivePrice.Decimal.String())
	assert.Equal(t, "0.331", bananas.UnitPrice.Decimal.String())
	assert.True(t, bananas.InStock)
	assert.Equal(t, "6000194327411:Fresh Fruits", bananas.Category)

	lemons := page.products[1]
	assert.False(t, lemons.OnSale)
	assert.Equal(t, "3.97", lemons.EffectivePrice.Decimal.String())
	assert.False(t, lemons.InStock)
}

func TestParseWalmartJSONLD(t *testing.T) {
	page := parseWalmartHTML(t, walmartJSONLDPage)
	require.True(t, page.fromJSON)
	require.Len(t, page.products, 1)

	p := page.products[0]
	assert.Equal(t, "777", p.StoreProductID)
	assert.Equal(t, "Sunkist", p.Brand)
	assert.Equal(t, "https://img/oranges.jpg", p.ImageURL)
	assert.Equal(t, "4.97", p.EffectivePrice.Decimal.String())
	assert.Equal(t, "3", p.Size)
}

func TestParseWalmartCards(t *testing.T) {
	page := parseWalmartHTML(t, walmartCardPage)
	require.False(t, page.fromJSON)
	assert.True(t, page.hasNext)
	require.Len(t, page.products, 2)

	milk := page.products[0]
	assert.Equal(t, "555", milk.StoreProductID)
	assert.Equal(t, "Great Value", milk.Brand)
	assert.True(t, milk.OnSale)
	assert.Equal(t, "6.29", milk.RegularPrice.Decimal.String())
	assert.Equal(t, "5.47", milk.EffectivePrice.Decimal.String())
	assert.Equal(t, "https://img/milk.jpg", milk.ImageURL)

	eggs := page.products[1]
	assert.False(t, eggs.OnSale)
	assert.Equal(t, "3.99", eggs.EffectivePrice.Decimal.String())
	assert.Equal(t, "12", eggs.Size)
	assert.Equal(t, "ct", eggs.Unit)
}

func TestParseWalmartPrice(t *testing.T) {
	assert.Equal(t, "0.4", parseWalmartPrice("40¢").Decimal.String())
	assert.Equal(t, "5.44", parseWalmartPrice("$5.44").Decimal.String())
	assert.False(t, parseWalmartPrice("").Valid)
}

func TestWalmartPageURL(t *testing.T) {
	assert.Equal(t, "https://w/c", walmartPageURL("https://w/c", 1))
	assert.Equal(t, "https://w/c?page=2", walmartPageURL("https://w/c", 2))
	assert.Equal(t, "https://w/c?x=1&page=3", walmartPageURL("https://w/c?x=1", 3))
}

func TestWalmartScrapeAllFollowsPagination(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.RequestURI())
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Query().Get("page") == "2" {
			w.Write([]byte(strings.Replace(walmartCardPage, `<a rel="next" href="?page=2">Next</a>`, "", 1)))
			return
		}
		w.Write([]byte(walmartCardPage))
	}))
	defer srv.Close()

	s := NewWalmartStrategy(NewClient("test-agent", 0, nil), 0, nil)
	s.pageDelay = 0

	store := &model.Store{Code: "WALMART", ScraperConfig: map[string]any{
		"categoryUrls": []any{srv.URL + "/browse/fresh-fruits/10019_6000194327370_6000194327411"},
	}}

	products, err := s.ScrapeAll(context.Background(), store)
	require.NoError(t, err)
	assert.Len(t, products, 4)
	assert.Equal(t, []string{
		"/browse/fresh-fruits/10019_6000194327370_6000194327411",
		"/browse/fresh-fruits/10019_6000194327370_6000194327411?page=2",
	}, requested)
	assert.Equal(t, "6000194327411:Fresh Fruits", products[0].Category)
}
