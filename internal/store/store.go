package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"grocery-price/internal/model"

	"github.com/google/uuid"
)

// Store keeps everything in memory and persists to JSON files on Save.
// An empty dataDir gives a purely in-memory store.
type Store struct {
	mu            sync.RWMutex
	stores        map[string]*model.Store
	products      map[string]*model.Product
	categories    map[string]*model.Category
	records       map[string][]*model.PriceRecord // storeID -> records in append order
	jobs          map[string]*model.ScrapeJob
	subscriptions map[string]*model.Subscription

	byStoreID map[string]map[string]string // store code -> store-local id -> product id
	byName    map[string][]string          // normalized name -> product ids, creation order

	dataDir string
}

var _ Repository = (*Store)(nil)

// New creates a Store and loads any JSON files found in dataDir
func New(dataDir string) (*Store, error) {
	s := &Store{
		stores:        make(map[string]*model.Store),
		products:      make(map[string]*model.Product),
		categories:    make(map[string]*model.Category),
		records:       make(map[string][]*model.PriceRecord),
		jobs:          make(map[string]*model.ScrapeJob),
		subscriptions: make(map[string]*model.Subscription),
		byStoreID:     make(map[string]map[string]string),
		byName:        make(map[string][]string),
		dataDir:       dataDir,
	}

	if dataDir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Don't fail on first run, just log
	if err := s.Load(); err != nil {
		slog.Warn("json store: failed to load data", "dir", dataDir, "error", err)
	}

	return s, nil
}

// NewMemory creates a Store that never touches disk
func NewMemory() *Store {
	s, _ := New("")
	return s
}

// Data is the full content of a store, as written to the JSON files
type Data struct {
	Stores        []*model.Store        `json:"stores"`
	Products      []*model.Product      `json:"products"`
	Categories    []*model.Category     `json:"categories"`
	PriceRecords  []*model.PriceRecord  `json:"price_records"`
	Jobs          []*model.ScrapeJob    `json:"jobs"`
	Subscriptions []*model.Subscription `json:"subscriptions"`
}

var dataFiles = []string{
	"stores.json", "products.json", "categories.json",
	"price_records.json", "jobs.json", "subscriptions.json",
}

// Load reads data from the JSON files in the data directory
func (s *Store) Load() error {
	if s.dataDir == "" {
		return nil
	}
	snap, err := ReadSnapshot(s.dataDir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range snap.Stores {
		s.stores[st.ID] = st
	}
	for _, p := range snap.Products {
		if p.StoreProductIDs == nil {
			p.StoreProductIDs = model.StoreProductIDs{}
		}
		s.products[p.ID] = p
		s.indexProductLocked(p)
	}
	for _, c := range snap.Categories {
		s.categories[c.ID] = c
	}
	for _, r := range snap.PriceRecords {
		s.records[r.StoreID] = append(s.records[r.StoreID], r)
	}
	for _, j := range snap.Jobs {
		s.jobs[j.ID] = j
	}
	for _, sub := range snap.Subscriptions {
		s.subscriptions[sub.ID] = sub
	}
	return nil
}

// ReadSnapshot reads whatever JSON data files exist in dir
func ReadSnapshot(dir string) (*Data, error) {
	snap := &Data{}
	targets := []any{
		&snap.Stores, &snap.Products, &snap.Categories,
		&snap.PriceRecords, &snap.Jobs, &snap.Subscriptions,
	}
	for i, name := range dataFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := json.Unmarshal(data, targets[i]); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", name, err)
		}
	}
	return snap, nil
}

// Export returns copies of all entities
func (s *Store) Export() *Data {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Data{}
	for _, st := range s.stores {
		snap.Stores = append(snap.Stores, cloneStore(st))
	}
	for _, p := range s.products {
		snap.Products = append(snap.Products, p.Clone())
	}
	for _, c := range s.categories {
		cp := *c
		snap.Categories = append(snap.Categories, &cp)
	}
	for _, recs := range s.records {
		for _, r := range recs {
			cp := *r
			snap.PriceRecords = append(snap.PriceRecords, &cp)
		}
	}
	for _, j := range s.jobs {
		snap.Jobs = append(snap.Jobs, j.Clone())
	}
	for _, sub := range s.subscriptions {
		snap.Subscriptions = append(snap.Subscriptions, cloneSubscription(sub))
	}
	sort.Slice(snap.PriceRecords, func(i, j int) bool {
		return snap.PriceRecords[i].CapturedAt.Before(snap.PriceRecords[j].CapturedAt)
	})
	return snap
}

// Save writes all data to JSON files (temp file + rename)
func (s *Store) Save() error {
	if s.dataDir == "" {
		return nil
	}
	snap := s.Export()

	values := []any{
		snap.Stores, snap.Products, snap.Categories,
		snap.PriceRecords, snap.Jobs, snap.Subscriptions,
	}
	for i, name := range dataFiles {
		data, err := json.MarshalIndent(values[i], "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", name, err)
		}
		path := filepath.Join(s.dataDir, name)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("failed to rename %s: %w", name, err)
		}
	}
	return nil
}

// Close flushes to disk
func (s *Store) Close() error {
	return s.Save()
}

// SaveStore upserts a store
func (s *Store) SaveStore(ctx context.Context, st *model.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		if existing := s.storeByCodeLocked(st.Code); existing != nil {
			st.ID = existing.ID
		} else {
			st.ID = uuid.NewString()
		}
	}
	s.stores[st.ID] = cloneStore(st)
	return nil
}

// GetStore returns a store by id
func (s *Store) GetStore(ctx context.Context, id string) (*model.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneStore(st), nil
}

// GetStoreByCode returns a store by code
func (s *Store) GetStoreByCode(ctx context.Context, code string) (*model.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.storeByCodeLocked(code)
	if st == nil {
		return nil, ErrNotFound
	}
	return cloneStore(st), nil
}

func (s *Store) storeByCodeLocked(code string) *model.Store {
	for _, st := range s.stores {
		if st.Code == code {
			return st
		}
	}
	return nil
}

// ListStores returns all stores ordered by code
func (s *Store) ListStores(ctx context.Context) ([]*model.Store, error) {
	return s.listStores(false), nil
}

// ListActiveStores returns active stores ordered by code
func (s *Store) ListActiveStores(ctx context.Context) ([]*model.Store, error) {
	return s.listStores(true), nil
}

func (s *Store) listStores(activeOnly bool) []*model.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]*model.Store, 0, len(s.stores))
	for _, st := range s.stores {
		if activeOnly && !st.Active {
			continue
		}
		stores = append(stores, cloneStore(st))
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].Code < stores[j].Code })
	return stores
}

// GetProduct returns a product by id
func (s *Store) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// FindProductByStoreID returns the product a store knows under storeProductID
func (s *Store) FindProductByStoreID(ctx context.Context, storeCode, storeProductID string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byStoreID[storeCode][storeProductID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.products[id].Clone(), nil
}

// FindProductsByNormalizedName returns products sharing a normalized name, oldest first
func (s *Store) FindProductsByNormalizedName(ctx context.Context, normalizedName string) ([]*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byName[normalizedName]
	products := make([]*model.Product, 0, len(ids))
	for _, id := range ids {
		products = append(products, s.products[id].Clone())
	}
	return products, nil
}

// SaveProduct upserts a product, keeping persisted store id mappings
func (s *Store) SaveProduct(ctx context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if existing, ok := s.products[p.ID]; ok {
		p.StoreProductIDs = p.StoreProductIDs.MergeOnto(existing.StoreProductIDs)
		s.unindexProductLocked(existing)
	} else if p.StoreProductIDs == nil {
		p.StoreProductIDs = model.StoreProductIDs{}
	}

	stored := p.Clone()
	s.products[p.ID] = stored
	s.indexProductLocked(stored)
	return nil
}

func (s *Store) indexProductLocked(p *model.Product) {
	for code, localID := range p.StoreProductIDs {
		if s.byStoreID[code] == nil {
			s.byStoreID[code] = make(map[string]string)
		}
		if _, taken := s.byStoreID[code][localID]; !taken {
			s.byStoreID[code][localID] = p.ID
		}
	}
	if p.NormalizedName != "" {
		s.byName[p.NormalizedName] = append(s.byName[p.NormalizedName], p.ID)
	}
}

func (s *Store) unindexProductLocked(p *model.Product) {
	for code, localID := range p.StoreProductIDs {
		if s.byStoreID[code][localID] == p.ID {
			delete(s.byStoreID[code], localID)
		}
	}
	ids := s.byName[p.NormalizedName]
	for i, id := range ids {
		if id == p.ID {
			s.byName[p.NormalizedName] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byName[p.NormalizedName]) == 0 {
		delete(s.byName, p.NormalizedName)
	}
}

// FindCategory returns a category by store scope and code
func (s *Store) FindCategory(ctx context.Context, storeID, code string) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if c.StoreID == storeID && c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// SaveCategory upserts a category
func (s *Store) SaveCategory(ctx context.Context, c *model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

// AppendPriceRecord stores a new observation. Existing ids are rejected.
func (s *Store) AppendPriceRecord(ctx context.Context, r *model.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	} else {
		for _, existing := range s.records[r.StoreID] {
			if existing.ID == r.ID {
				return fmt.Errorf("price record %s already exists", r.ID)
			}
		}
	}
	cp := *r
	s.records[r.StoreID] = append(s.records[r.StoreID], &cp)
	return nil
}

// ListPriceRecordsSince returns a store's records captured at or after since
func (s *Store) ListPriceRecordsSince(ctx context.Context, storeID string, since time.Time) ([]*model.PriceRecord, error) {
	return s.filterRecords(s.storeRecords(storeID), func(r *model.PriceRecord) bool {
		return !r.CapturedAt.Before(since)
	}), nil
}

// ListPriceRecordsBetween returns a store's records captured in [from, to)
func (s *Store) ListPriceRecordsBetween(ctx context.Context, storeID string, from, to time.Time) ([]*model.PriceRecord, error) {
	return s.filterRecords(s.storeRecords(storeID), func(r *model.PriceRecord) bool {
		return !r.CapturedAt.Before(from) && r.CapturedAt.Before(to)
	}), nil
}

// ListPriceRecordsAfter returns all records captured at or after since
func (s *Store) ListPriceRecordsAfter(ctx context.Context, since time.Time) ([]*model.PriceRecord, error) {
	s.mu.RLock()
	var all []*model.PriceRecord
	for _, recs := range s.records {
		all = append(all, recs...)
	}
	s.mu.RUnlock()

	return s.filterRecords(all, func(r *model.PriceRecord) bool {
		return !r.CapturedAt.Before(since)
	}), nil
}

// LatestPriceRecord returns the most recent record for a product at a store
func (s *Store) LatestPriceRecord(ctx context.Context, productID, storeID string) (*model.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.PriceRecord
	for _, r := range s.records[storeID] {
		if r.ProductID != productID {
			continue
		}
		if latest == nil || !r.CapturedAt.Before(latest.CapturedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// ListProductPriceRecords returns a product's records across stores in [from, to)
func (s *Store) ListProductPriceRecords(ctx context.Context, productID string, from, to time.Time) ([]*model.PriceRecord, error) {
	s.mu.RLock()
	var all []*model.PriceRecord
	for _, recs := range s.records {
		all = append(all, recs...)
	}
	s.mu.RUnlock()

	return s.filterRecords(all, func(r *model.PriceRecord) bool {
		return r.ProductID == productID && !r.CapturedAt.Before(from) && r.CapturedAt.Before(to)
	}), nil
}

func (s *Store) storeRecords(storeID string) []*model.PriceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*model.PriceRecord(nil), s.records[storeID]...)
}

// filterRecords copies matching records, oldest first
func (s *Store) filterRecords(recs []*model.PriceRecord, keep func(*model.PriceRecord) bool) []*model.PriceRecord {
	out := make([]*model.PriceRecord, 0)
	for _, r := range recs {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out
}

// SaveJob upserts a job
func (s *Store) SaveJob(ctx context.Context, j *model.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

// GetJob returns a job by id
func (s *Store) GetJob(ctx context.Context, id string) (*model.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// LatestJob returns the most recently created job for a store
func (s *Store) LatestJob(ctx context.Context, storeID string) (*model.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.ScrapeJob
	for _, j := range s.jobs {
		if j.StoreID != storeID {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

// HasRunningJob reports whether any job of the store is RUNNING
func (s *Store) HasRunningJob(ctx context.Context, storeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, j := range s.jobs {
		if j.StoreID == storeID && j.Status == model.JobRunning {
			return true, nil
		}
	}
	return false, nil
}

// RecoverStaleJobs fails jobs left PENDING or RUNNING by a previous process
func (s *Store) RecoverStaleJobs(ctx context.Context, reason string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, j := range s.jobs {
		if j.Status.Terminal() {
			continue
		}
		j.Status = model.JobFailed
		completed := at
		j.CompletedAt = &completed
		j.ErrorMessages = append(j.ErrorMessages, reason)
		count++
	}
	return count, nil
}

// SaveSubscription upserts a subscription
func (s *Store) SaveSubscription(ctx context.Context, sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	s.subscriptions[sub.ID] = cloneSubscription(sub)
	return nil
}

// DeleteSubscription removes a subscription
func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[id]; !ok {
		return ErrNotFound
	}
	delete(s.subscriptions, id)
	return nil
}

// ListSubscriptions returns all subscriptions, oldest first
func (s *Store) ListSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	return s.listSubscriptions(false), nil
}

// ListActiveSubscriptions returns active subscriptions, oldest first
func (s *Store) ListActiveSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	return s.listSubscriptions(true), nil
}

func (s *Store) listSubscriptions(activeOnly bool) []*model.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]*model.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		if activeOnly && !sub.Active {
			continue
		}
		subs = append(subs, cloneSubscription(sub))
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs
}

func cloneStore(st *model.Store) *model.Store {
	cp := *st
	if st.ScraperConfig != nil {
		cp.ScraperConfig = make(map[string]any, len(st.ScraperConfig))
		for k, v := range st.ScraperConfig {
			cp.ScraperConfig[k] = v
		}
	}
	return &cp
}

func cloneSubscription(sub *model.Subscription) *model.Subscription {
	cp := *sub
	cp.StoreFilters = append([]string(nil), sub.StoreFilters...)
	cp.CategoryFilters = append([]string(nil), sub.CategoryFilters...)
	return &cp
}
