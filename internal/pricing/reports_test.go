package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"grocery-price/internal/model"
	"grocery-price/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareProductPrices(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.SaveStore(context.Background(), &model.Store{ID: "s2", Code: "WALMART", Active: true}))
	f.product(t, "p1", "Soy Milk")

	f.record(t, "s1", "p1", "4.99", "", fixedNow.Add(-48*time.Hour))
	f.record(t, "s1", "p1", "4.99", "3.49", fixedNow.Add(-time.Hour))
	f.record(t, "s2", "p1", "3.97", "", fixedNow.Add(-time.Hour))

	cmp, err := f.analyzer.CompareProductPrices(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, cmp.StorePrices, 2)
	assert.Equal(t, "3.49", cmp.StorePrices["TNT"].Price.String())
	assert.True(t, cmp.StorePrices["TNT"].OnSale)
	assert.Equal(t, "TNT", cmp.LowestPriceStore)
	assert.Equal(t, "3.49", cmp.LowestPrice.Decimal.String())

	_, err = f.analyzer.CompareProductPrices(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestProductPriceHistoryCollapsesRepeats(t *testing.T) {
	f := newFixture(t)
	f.product(t, "p1", "Rice 8kg")

	f.record(t, "s1", "p1", "20", "", fixedNow.Add(-5*24*time.Hour))
	f.record(t, "s1", "p1", "20", "", fixedNow.Add(-4*24*time.Hour))
	f.record(t, "s1", "p1", "20", "16", fixedNow.Add(-3*24*time.Hour))
	f.record(t, "s2", "p1", "1", "", fixedNow.Add(-3*24*time.Hour))
	f.record(t, "s1", "p1", "20", "", fixedNow.Add(-2*24*time.Hour))
	f.record(t, "s1", "p1", "18", "", fixedNow.Add(-40*24*time.Hour))

	h, err := f.analyzer.ProductPriceHistory(context.Background(), "p1", "s1", 0)
	require.NoError(t, err)
	require.Len(t, h.PricePoints, 3)
	assert.Equal(t, "20", h.PricePoints[0].Price.Decimal.String())
	assert.Equal(t, "16", h.PricePoints[1].Price.Decimal.String())
	assert.True(t, h.PricePoints[1].OnSale)
	assert.Equal(t, "20", h.PricePoints[2].Price.Decimal.String())
	assert.Equal(t, "TNT", h.Store.Code)
}

func TestCurrentSalesForStore(t *testing.T) {
	f := newFixture(t)
	f.record(t, "s1", "half", "10", "5", fixedNow.Add(-time.Hour))
	f.record(t, "s1", "tenth", "10", "9", fixedNow.Add(-time.Hour))
	f.record(t, "s1", "regular", "10", "", fixedNow.Add(-time.Hour))
	f.record(t, "s1", "old", "10", "1", fixedNow.Add(-48*time.Hour))

	items, err := f.analyzer.CurrentSalesForStore(context.Background(), "TNT", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "half", items[0].Product.ID)
	assert.Equal(t, 50.0, items[0].DiscountPercentage)
	assert.Equal(t, "5", items[0].DiscountAmount.String())
	assert.Equal(t, "tenth", items[1].Product.ID)

	_, err = f.analyzer.CurrentSalesForStore(context.Background(), "NOPE", 10)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestDiscountedItemsUsesLatestRecordPerPair(t *testing.T) {
	f := newFixture(t)
	f.record(t, "s1", "ended", "10", "5", fixedNow.Add(-3*24*time.Hour))
	f.record(t, "s1", "ended", "10", "", fixedNow.Add(-24*time.Hour))
	f.record(t, "s1", "deal", "8", "6", fixedNow.Add(-24*time.Hour))
	f.record(t, "s1", "tiny", "100", "99", fixedNow.Add(-24*time.Hour))

	items, err := f.analyzer.DiscountedItems(context.Background(), 10, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "deal", items[0].Product.ID)
	assert.Equal(t, 25.0, items[0].DiscountPercentage)
	assert.Equal(t, "TNT", items[0].Store.Code)
}
