// Package pricing records price observations and analyses them.
package pricing

import (
	"context"
	"fmt"
	"time"

	"grocery-price/internal/model"
	"grocery-price/internal/scraper"
	"grocery-price/internal/store"

	"github.com/google/uuid"
)

// Recorder appends one immutable PriceRecord per observed listing
type Recorder struct {
	repo store.PriceRecordRepository
	now  func() time.Time
}

// NewRecorder creates a recorder
func NewRecorder(repo store.PriceRecordRepository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

// Record stores the listing's prices for a product at a store
func (r *Recorder) Record(ctx context.Context, productID string, st *model.Store, scraped model.ScrapedProduct) (*model.PriceRecord, error) {
	rec := &model.PriceRecord{
		ID:           uuid.NewString(),
		ProductID:    productID,
		StoreID:      st.ID,
		RegularPrice: scraped.RegularPrice,
		SalePrice:    scraped.EffectivePrice,
		UnitPrice:    scraped.UnitPrice,
		OnSale:       scraped.OnSale,
		PromoText:    scraper.CleanText(scraped.PromoText),
		CapturedAt:   r.now(),
		InStock:      scraped.InStock,
		SourceURL:    scraped.SourceURL,
	}

	if err := r.repo.AppendPriceRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("append price record: %w", err)
	}
	return rec, nil
}
