package scraper

import (
	"context"
	"errors"
	"testing"

	"grocery-price/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct{ code string }

func (s stubStrategy) StoreCode() string { return s.code }

func (s stubStrategy) ScrapeAll(context.Context, *model.Store) ([]model.ScrapedProduct, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubStrategy{"WALMART"}, stubStrategy{"TNT"})
	r.Register(stubStrategy{"RCSS"})

	s, ok := r.Get("TNT")
	require.True(t, ok)
	assert.Equal(t, "TNT", s.StoreCode())

	_, ok = r.Get("COSTCO")
	assert.False(t, ok)

	assert.Equal(t, []string{"RCSS", "TNT", "WALMART"}, r.Codes())
}

func TestScrapeEntryPoints(t *testing.T) {
	entries := []entryPoint{{ID: "1", Name: "Fruit"}, {ID: "2", Name: "Dairy"}}

	t.Run("partial failure keeps products", func(t *testing.T) {
		products, err := scrapeEntryPoints(context.Background(), loggerOrDefault(nil), entries,
			func(_ context.Context, e entryPoint) ([]model.ScrapedProduct, error) {
				if e.ID == "2" {
					return nil, errors.New("boom")
				}
				return []model.ScrapedProduct{{Name: "Apple", Category: e.category()}}, nil
			})
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "1:Fruit", products[0].Category)
	})

	t.Run("every category failing is an error", func(t *testing.T) {
		_, err := scrapeEntryPoints(context.Background(), loggerOrDefault(nil), entries,
			func(context.Context, entryPoint) ([]model.ScrapedProduct, error) {
				return nil, errors.New("boom")
			})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "all 2 categories failed")
	})

	t.Run("cancelled context stops the walk", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := scrapeEntryPoints(ctx, loggerOrDefault(nil), entries,
			func(context.Context, entryPoint) ([]model.ScrapedProduct, error) {
				t.Fatal("scrape must not run")
				return nil, nil
			})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestConfiguredIDs(t *testing.T) {
	store := &model.Store{ScraperConfig: map[string]any{"categoryIds": []any{"2876", "9999"}}}
	entries := configuredIDs(store, "categoryIds", tntDefaultCategories, tntCategoryNames)
	require.Len(t, entries, 2)
	assert.Equal(t, "2876:Bakery", entries[0].category())
	assert.Equal(t, "9999:9999", entries[1].category())

	assert.Equal(t, tntDefaultCategories, configuredIDs(&model.Store{}, "categoryIds", tntDefaultCategories, tntCategoryNames))
}
