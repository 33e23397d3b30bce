package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"grocery-price/internal/model"
)

// entryPoint is one category listing a strategy walks
type entryPoint struct {
	ID   string
	Name string
	URL  string
}

func (e entryPoint) category() string {
	return CategoryValue(e.ID, e.Name)
}

func (e entryPoint) label() string {
	if e.URL != "" {
		return e.URL
	}
	return e.ID
}

// scrapeEntryPoints runs scrape for every entry point. A failing category is
// logged and skipped; the call only fails when every category failed or ctx ended.
func scrapeEntryPoints(
	ctx context.Context,
	logger *slog.Logger,
	entries []entryPoint,
	scrape func(ctx context.Context, e entryPoint) ([]model.ScrapedProduct, error),
) ([]model.ScrapedProduct, error) {
	var all []model.ScrapedProduct
	var lastErr error
	failed := 0

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		products, err := scrape(ctx, e)
		all = append(all, products...)
		if err != nil {
			failed++
			lastErr = err
			logger.Error("category scrape failed", "category", e.label(), "scraped", len(products), "error", err)
			continue
		}
		logger.Info("category scraped", "category", e.label(), "products", len(products))
	}

	if len(entries) > 0 && failed == len(entries) && len(all) == 0 {
		return nil, fmt.Errorf("all %d categories failed: %w", failed, lastErr)
	}
	return all, nil
}

// configuredIDs returns the scraperConfig list under key, or defaults
func configuredIDs(store *model.Store, key string, defaults []entryPoint, names map[string]string) []entryPoint {
	ids := store.ConfigStrings(key)
	if len(ids) == 0 {
		return defaults
	}
	entries := make([]entryPoint, 0, len(ids))
	for _, id := range ids {
		name := names[id]
		if name == "" {
			name = id
		}
		entries = append(entries, entryPoint{ID: id, Name: name})
	}
	return entries
}
