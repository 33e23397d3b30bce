package scraper

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"grocery-price/internal/model"
)

// Strategy scrapes every listing of one store
type Strategy interface {
	StoreCode() string
	ScrapeAll(ctx context.Context, store *model.Store) ([]model.ScrapedProduct, error)
}

// Registry selects a strategy by store code
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a registry holding the given strategies
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the strategy for its store code
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.StoreCode()] = s
}

// Get returns the strategy for a store code
func (r *Registry) Get(code string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[code]
	return s, ok
}

// Codes lists registered store codes in order
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.strategies))
	for code := range r.strategies {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
