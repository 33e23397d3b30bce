package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"grocery-price/internal/model"
	"grocery-price/internal/store"
)

const (
	defaultHistoryDays  = 30
	defaultLookbackDays = 7
)

// CompareProductPrices lines up the latest effective price of a product at
// every active store
func (a *Analyzer) CompareProductPrices(ctx context.Context, productID string) (*model.PriceComparison, error) {
	product, err := a.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	stores, err := a.repo.ListActiveStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}

	cmp := &model.PriceComparison{
		Product:     product,
		StorePrices: make(map[string]*model.StorePrice),
	}
	for _, st := range stores {
		rec, err := a.repo.LatestPriceRecord(ctx, productID, st.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest record at %s: %w", st.Code, err)
		}
		price := rec.EffectivePrice()
		if !price.Valid {
			continue
		}

		cmp.StorePrices[st.Code] = &model.StorePrice{
			Store:       st,
			Price:       price.Decimal,
			OnSale:      rec.OnSale,
			PromoText:   rec.PromoText,
			LastUpdated: rec.CapturedAt,
			SourceURL:   rec.SourceURL,
		}
		if !cmp.LowestPrice.Valid || price.Decimal.LessThan(cmp.LowestPrice.Decimal) {
			cmp.LowestPrice = price
			cmp.LowestPriceStore = st.Code
		}
	}
	return cmp, nil
}

// ProductPriceHistory returns the price series of a product at one store over
// the last days, with consecutive equal prices collapsed
func (a *Analyzer) ProductPriceHistory(ctx context.Context, productID, storeID string, days int) (*model.PriceHistory, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	product, err := a.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	st, err := a.repo.GetStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("get store %s: %w", storeID, err)
	}

	now := a.now()
	records, err := a.repo.ListProductPriceRecords(ctx, productID, now.AddDate(0, 0, -days), now.Add(time.Second))
	if err != nil {
		return nil, fmt.Errorf("list product records: %w", err)
	}

	history := &model.PriceHistory{Product: product, Store: st, PricePoints: []model.PricePoint{}}
	for _, r := range records {
		if r.StoreID != storeID {
			continue
		}
		price := r.EffectivePrice()
		if n := len(history.PricePoints); n > 0 {
			last := history.PricePoints[n-1].Price
			if last.Valid == price.Valid && (!price.Valid || last.Decimal.Equal(price.Decimal)) {
				continue
			}
		}
		history.PricePoints = append(history.PricePoints, model.PricePoint{
			Price:     price,
			OnSale:    r.OnSale,
			Timestamp: r.CapturedAt,
		})
	}
	return history, nil
}

// CurrentSalesForStore lists the store's on-sale products seen in the last
// day, largest discount first
func (a *Analyzer) CurrentSalesForStore(ctx context.Context, storeCode string, limit int) ([]model.DiscountedItem, error) {
	st, err := a.repo.GetStoreByCode(ctx, storeCode)
	if err != nil {
		return nil, fmt.Errorf("get store %s: %w", storeCode, err)
	}
	records, err := a.repo.ListPriceRecordsSince(ctx, st.ID, a.now().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	products := newProductCache(a.repo, a.logger)
	var items []model.DiscountedItem
	for _, r := range latestPerProduct(records) {
		if item, ok := discounted(r); ok {
			item.Product = products.get(ctx, r.ProductID)
			item.Store = st
			items = append(items, item)
		}
	}
	return sortAndLimit(items, limit), nil
}

// DiscountedItems lists products whose latest record in the lookback is on
// sale with at least minDiscount percent off, across active stores
func (a *Analyzer) DiscountedItems(ctx context.Context, minDiscount float64, limit, lookbackDays int) ([]model.DiscountedItem, error) {
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}
	stores, err := a.repo.ListActiveStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	byID := make(map[string]*model.Store, len(stores))
	for _, st := range stores {
		byID[st.ID] = st
	}

	records, err := a.repo.ListPriceRecordsAfter(ctx, a.now().AddDate(0, 0, -lookbackDays))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	type pair struct{ product, store string }
	latest := make(map[pair]*model.PriceRecord)
	for _, r := range records {
		k := pair{r.ProductID, r.StoreID}
		if cur, ok := latest[k]; !ok || r.CapturedAt.After(cur.CapturedAt) {
			latest[k] = r
		}
	}

	products := newProductCache(a.repo, a.logger)
	var items []model.DiscountedItem
	for k, r := range latest {
		st, ok := byID[k.store]
		if !ok {
			continue
		}
		item, ok := discounted(r)
		if !ok || item.DiscountPercentage < minDiscount {
			continue
		}
		item.Product = products.get(ctx, r.ProductID)
		item.Store = st
		items = append(items, item)
	}
	return sortAndLimit(items, limit), nil
}

// discounted builds an item from an on-sale record priced below regular
func discounted(r *model.PriceRecord) (model.DiscountedItem, bool) {
	if !r.OnSale || !r.RegularPrice.Valid || !r.SalePrice.Valid {
		return model.DiscountedItem{}, false
	}
	if !r.SalePrice.Decimal.LessThan(r.RegularPrice.Decimal) {
		return model.DiscountedItem{}, false
	}
	return model.DiscountedItem{
		RegularPrice:       r.RegularPrice.Decimal,
		SalePrice:          r.SalePrice.Decimal,
		DiscountAmount:     r.RegularPrice.Decimal.Sub(r.SalePrice.Decimal),
		DiscountPercentage: r.DiscountPercentage(),
		PromoText:          r.PromoText,
		CapturedAt:         r.CapturedAt,
	}, true
}

func sortAndLimit(items []model.DiscountedItem, limit int) []model.DiscountedItem {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].DiscountPercentage != items[j].DiscountPercentage {
			return items[i].DiscountPercentage > items[j].DiscountPercentage
		}
		return items[i].CapturedAt.After(items[j].CapturedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
