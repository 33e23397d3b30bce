package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"grocery-price/internal/model"
	"grocery-price/internal/store"

	"github.com/shopspring/decimal"
)

const (
	// currentWindow is how far back a record still counts as the current price
	currentWindow = time.Hour
	hundred       = 100
)

// Repository is the slice of persistence the analyzer reads
type Repository interface {
	store.StoreRepository
	store.ProductRepository
	store.PriceRecordRepository
}

// Analyzer compares price observations over time
type Analyzer struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(repo Repository, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		repo:   repo,
		logger: logger.With("component", "analyzer"),
		now:    time.Now,
	}
}

// DetectDrops compares a store's records of the last hour against the lowest
// effective price each product had in previous. Drops are sorted by
// percentage, largest first.
func (a *Analyzer) DetectDrops(ctx context.Context, st *model.Store, previous []*model.PriceRecord) ([]model.PriceDrop, error) {
	baseline := make(map[string]decimal.Decimal)
	for _, r := range previous {
		p := r.EffectivePrice()
		if !p.Valid {
			continue
		}
		if cur, ok := baseline[r.ProductID]; !ok || p.Decimal.LessThan(cur) {
			baseline[r.ProductID] = p.Decimal
		}
	}
	if len(baseline) == 0 {
		return nil, nil
	}

	now := a.now()
	current, err := a.repo.ListPriceRecordsSince(ctx, st.ID, now.Add(-currentWindow))
	if err != nil {
		return nil, fmt.Errorf("list current records: %w", err)
	}

	products := newProductCache(a.repo, a.logger)
	var drops []model.PriceDrop
	for _, r := range latestPerProduct(current) {
		base, ok := baseline[r.ProductID]
		if !ok || !base.IsPositive() {
			continue
		}
		price := r.EffectivePrice()
		if !price.Valid || !price.Decimal.LessThan(base) {
			continue
		}

		amount := base.Sub(price.Decimal)
		drops = append(drops, model.PriceDrop{
			Product:        products.get(ctx, r.ProductID),
			Store:          st,
			PreviousPrice:  base,
			CurrentPrice:   price.Decimal,
			DropAmount:     amount,
			DropPercentage: percentOf(amount, base),
			DetectedAt:     now,
		})
	}

	sortDrops(drops)
	return drops, nil
}

// RecentPriceDrops checks every active store against its records captured
// one to two days ago and returns drops of at least minDropPercentage
func (a *Analyzer) RecentPriceDrops(ctx context.Context, minDropPercentage float64, limit int) ([]model.PriceDrop, error) {
	stores, err := a.repo.ListActiveStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}

	now := a.now()
	var all []model.PriceDrop
	for _, st := range stores {
		previous, err := a.repo.ListPriceRecordsBetween(ctx, st.ID, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("list previous records for %s: %w", st.Code, err)
		}
		drops, err := a.DetectDrops(ctx, st, previous)
		if err != nil {
			return nil, err
		}
		for _, d := range drops {
			if d.DropPercentage >= minDropPercentage {
				all = append(all, d)
			}
		}
	}

	sortDrops(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// percentOf is part/whole rounded half-up to 4 places, times 100
func percentOf(part, whole decimal.Decimal) float64 {
	return part.DivRound(whole, 4).Mul(decimal.NewFromInt(hundred)).InexactFloat64()
}

func sortDrops(drops []model.PriceDrop) {
	sort.SliceStable(drops, func(i, j int) bool {
		return drops[i].DropPercentage > drops[j].DropPercentage
	})
}

// latestPerProduct keeps the most recent record of each product, in first-seen order
func latestPerProduct(records []*model.PriceRecord) []*model.PriceRecord {
	index := make(map[string]int)
	var out []*model.PriceRecord
	for _, r := range records {
		if i, ok := index[r.ProductID]; ok {
			if r.CapturedAt.After(out[i].CapturedAt) {
				out[i] = r
			}
			continue
		}
		index[r.ProductID] = len(out)
		out = append(out, r)
	}
	return out
}

// productCache memoizes product lookups within one analysis
type productCache struct {
	repo   store.ProductRepository
	logger *slog.Logger
	cache  map[string]*model.Product
}

func newProductCache(repo store.ProductRepository, logger *slog.Logger) *productCache {
	return &productCache{repo: repo, logger: logger, cache: make(map[string]*model.Product)}
}

// get returns the product, or a stub carrying only the id if it vanished
func (c *productCache) get(ctx context.Context, id string) *model.Product {
	if p, ok := c.cache[id]; ok {
		return p
	}
	p, err := c.repo.GetProduct(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("product lookup failed", "product", id, "error", err)
		}
		p = &model.Product{ID: id}
	}
	c.cache[id] = p
	return p
}
