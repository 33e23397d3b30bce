package model

import (
	"regexp"
	"strings"
	"time"
)

// Product is the canonical catalog entry shared by every store that sells it
type Product struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	NormalizedName  string          `json:"normalized_name" db:"normalized_name"`
	Brand           string          `json:"brand,omitempty" db:"brand"`
	Size            string          `json:"size,omitempty" db:"size"`
	Unit            string          `json:"unit,omitempty" db:"unit"`
	CategoryID      string          `json:"category_id,omitempty" db:"category_id"`
	ImageURL        string          `json:"image_url,omitempty" db:"image_url"`
	StoreProductIDs StoreProductIDs `json:"store_product_ids" db:"store_product_ids"` // store code -> store-local id

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	cp.StoreProductIDs = p.StoreProductIDs.Clone()
	return &cp
}

// StoreProductIDs maps a store code to the id that store uses for a product.
// Entries are add-only: once a code is mapped its value never changes.
type StoreProductIDs map[string]string

// Add maps code to id unless the code is already mapped or either value is empty.
// It reports whether the map changed.
func (m StoreProductIDs) Add(code, id string) bool {
	if m == nil || code == "" || id == "" {
		return false
	}
	if _, exists := m[code]; exists {
		return false
	}
	m[code] = id
	return true
}

// Get returns the store-local id for a store code
func (m StoreProductIDs) Get(code string) (string, bool) {
	id, ok := m[code]
	return id, ok
}

// Clone returns a copy of the map (never nil)
func (m StoreProductIDs) Clone() StoreProductIDs {
	cp := make(StoreProductIDs, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// MergeOnto layers m over stored: stored entries win, entries only present in m are added.
func (m StoreProductIDs) MergeOnto(stored StoreProductIDs) StoreProductIDs {
	merged := stored.Clone()
	for code, id := range m {
		merged.Add(code, id)
	}
	return merged
}

var (
	nonAlnumSpace = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// NormalizeName lowercases, strips everything but ASCII letters, digits and
// whitespace, then collapses whitespace. It is used as the fuzzy matching key.
func NormalizeName(name string) string {
	s := strings.ToLower(name)
	s = nonAlnumSpace.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Category groups products, optionally scoped to the store that defined it
type Category struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Code     string `json:"code" db:"code"`
	ParentID string `json:"parent_id,omitempty" db:"parent_id"`
	StoreID  string `json:"store_id,omitempty" db:"store_id"`
}

// Store is a retailer the scrapers know how to read
type Store struct {
	ID            string         `json:"id" db:"id" yaml:"id"`
	Code          string         `json:"code" db:"code" yaml:"code"`
	Name          string         `json:"name" db:"name" yaml:"name"`
	BaseURL       string         `json:"base_url" db:"base_url" yaml:"base_url"`
	Active        bool           `json:"active" db:"active" yaml:"active"`
	ScraperConfig map[string]any `json:"scraper_config,omitempty" db:"scraper_config" yaml:"scraper_config"`
}

// ConfigStrings reads a list of strings from the scraper config.
// Scalars and mixed lists are stringified; a missing key returns nil.
func (s *Store) ConfigStrings(key string) []string {
	if s == nil || s.ScraperConfig == nil {
		return nil
	}
	raw, ok := s.ScraperConfig[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, toString(item))
		}
		return out
	default:
		return []string{toString(v)}
	}
}

// ConfigString reads a single string value from the scraper config
func (s *Store) ConfigString(key, defaultValue string) string {
	if s == nil || s.ScraperConfig == nil {
		return defaultValue
	}
	if v, ok := s.ScraperConfig[key]; ok {
		if str := toString(v); str != "" {
			return str
		}
	}
	return defaultValue
}

// ConfigInt reads an integer value from the scraper config
func (s *Store) ConfigInt(key string, defaultValue int) int {
	if s == nil || s.ScraperConfig == nil {
		return defaultValue
	}
	switch v := s.ScraperConfig[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultValue
}
