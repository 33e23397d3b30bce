// Package matcher maps store listings onto canonical products.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"grocery-price/internal/model"
	"grocery-price/internal/store"

	"github.com/google/uuid"
)

// Repository is the slice of persistence the matcher needs
type Repository interface {
	store.ProductRepository
	store.CategoryRepository
}

// Matcher resolves scraped listings to products, creating them on first sighting
type Matcher struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// New creates a matcher
func New(repo Repository, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		repo:   repo,
		logger: logger.With("component", "matcher"),
		now:    time.Now,
	}
}

// Resolve returns the canonical product for a listing. The lookup order is the
// store's own id, then the normalized name, then a new product.
func (m *Matcher) Resolve(ctx context.Context, scraped model.ScrapedProduct, st *model.Store) (*model.Product, error) {
	if strings.TrimSpace(scraped.Name) == "" {
		return nil, errors.New("listing has no name")
	}

	if scraped.StoreProductID != "" {
		p, err := m.repo.FindProductByStoreID(ctx, st.Code, scraped.StoreProductID)
		switch {
		case err == nil:
			return m.merge(ctx, p, scraped, st)
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("lookup by store id: %w", err)
		}
	}

	normalized := model.NormalizeName(scraped.Name)
	candidates, err := m.repo.FindProductsByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("lookup by name: %w", err)
	}
	if p := pickCandidate(candidates, scraped); p != nil {
		m.logger.Debug("matched by name", "product", p.ID, "store", st.Code, "name", normalized)
		return m.merge(ctx, p, scraped, st)
	}

	return m.create(ctx, scraped, normalized, st)
}

// pickCandidate prefers an exact size and unit match, then a candidate with
// no size recorded. A sized listing matching neither returns nil so that a
// different package size becomes its own product. Listings without a size
// take the oldest candidate.
func pickCandidate(candidates []*model.Product, scraped model.ScrapedProduct) *model.Product {
	if len(candidates) == 0 {
		return nil
	}
	if scraped.Size == "" || scraped.Unit == "" {
		return candidates[0]
	}
	for _, c := range candidates {
		if c.Size == scraped.Size && c.Unit == scraped.Unit {
			return c
		}
	}
	for _, c := range candidates {
		if c.Size == "" {
			return c
		}
	}
	return nil
}

func (m *Matcher) create(ctx context.Context, scraped model.ScrapedProduct, normalized string, st *model.Store) (*model.Product, error) {
	categoryID, err := m.resolveCategory(ctx, scraped.Category, st)
	if err != nil {
		return nil, err
	}

	now := m.now()
	p := &model.Product{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(scraped.Name),
		NormalizedName:  normalized,
		Brand:           scraped.Brand,
		Size:            scraped.Size,
		Unit:            scraped.Unit,
		CategoryID:      categoryID,
		ImageURL:        scraped.ImageURL,
		StoreProductIDs: model.StoreProductIDs{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	p.StoreProductIDs.Add(st.Code, scraped.StoreProductID)

	if err := m.repo.SaveProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	m.logger.Debug("created product", "product", p.ID, "store", st.Code, "name", p.Name)
	return p, nil
}

// merge enriches p from the listing and persists it only when something changed.
// Blank image, brand and category are filled; size and unit follow the latest
// non-empty value; the store mapping is added if missing.
func (m *Matcher) merge(ctx context.Context, p *model.Product, scraped model.ScrapedProduct, st *model.Store) (*model.Product, error) {
	changed := false

	if p.StoreProductIDs == nil {
		p.StoreProductIDs = model.StoreProductIDs{}
	}
	if p.StoreProductIDs.Add(st.Code, scraped.StoreProductID) {
		changed = true
	}

	if p.ImageURL == "" && scraped.ImageURL != "" {
		p.ImageURL = scraped.ImageURL
		changed = true
	}
	if p.Brand == "" && scraped.Brand != "" {
		p.Brand = scraped.Brand
		changed = true
	}
	if p.CategoryID == "" && scraped.Category != "" {
		id, err := m.resolveCategory(ctx, scraped.Category, st)
		if err != nil {
			return nil, err
		}
		if id != "" {
			p.CategoryID = id
			changed = true
		}
	}
	if scraped.Size != "" && scraped.Size != p.Size {
		p.Size = scraped.Size
		changed = true
	}
	if scraped.Unit != "" && scraped.Unit != p.Unit {
		p.Unit = scraped.Unit
		changed = true
	}

	if !changed {
		return p, nil
	}

	p.UpdatedAt = m.now()
	if err := m.repo.SaveProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}
