package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"grocery-price/internal/model"

	"github.com/google/uuid"
)

// dialect captures the few differences between SQLite and Postgres
type dialect struct {
	name        string
	numeric     string // column type for prices
	float       string // column type for percentages
	dollarBinds bool   // rewrite ? placeholders as $1, $2, ...
	forUpdate   string // row lock suffix for read-modify-write
}

var (
	sqliteDialect   = dialect{name: "sqlite", numeric: "TEXT", float: "REAL"}
	postgresDialect = dialect{name: "postgres", numeric: "NUMERIC(14,4)", float: "DOUBLE PRECISION", dollarBinds: true, forUpdate: " FOR UPDATE"}
)

// rebind converts ? placeholders for dialects that number their parameters
func (d dialect) rebind(query string) string {
	if !d.dollarBinds {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements Repository on database/sql.
// NewSQLite and NewPostgres construct it for their drivers.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	mu      sync.RWMutex
}

var _ Repository = (*SQLStore)(nil)

func (s *SQLStore) q(query string) string {
	return s.dialect.rebind(query)
}

// migrate creates tables and indexes
func (s *SQLStore) migrate() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		base_url TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		scraper_config TEXT
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		brand TEXT,
		size TEXT,
		unit TEXT,
		category_id TEXT,
		image_url TEXT,
		store_product_ids TEXT NOT NULL DEFAULT '{}',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS product_store_ids (
		store_code TEXT NOT NULL,
		store_product_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		PRIMARY KEY (store_code, store_product_id)
	);

	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		parent_id TEXT,
		store_id TEXT NOT NULL DEFAULT '',
		UNIQUE (store_id, code)
	);

	CREATE TABLE IF NOT EXISTS price_records (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		regular_price %[1]s,
		sale_price %[1]s,
		unit_price %[1]s,
		on_sale BOOLEAN NOT NULL DEFAULT FALSE,
		promo_text TEXT,
		captured_at BIGINT NOT NULL,
		in_stock BOOLEAN NOT NULL DEFAULT TRUE,
		source_url TEXT
	);

	CREATE TABLE IF NOT EXISTS scrape_jobs (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		store_code TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		started_at BIGINT,
		completed_at BIGINT,
		total_products INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		error_messages TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		target TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		min_drop_percentage %[2]s NOT NULL DEFAULT 0,
		store_filters TEXT NOT NULL DEFAULT '[]',
		category_filters TEXT NOT NULL DEFAULT '[]',
		created_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_normalized_name ON products(normalized_name);
	CREATE INDEX IF NOT EXISTS idx_price_records_store_captured ON price_records(store_id, captured_at);
	CREATE INDEX IF NOT EXISTS idx_price_records_product_store ON price_records(product_id, store_id, captured_at);
	CREATE INDEX IF NOT EXISTS idx_price_records_captured ON price_records(captured_at);
	CREATE INDEX IF NOT EXISTS idx_scrape_jobs_store_status ON scrape_jobs(store_id, status);
	CREATE INDEX IF NOT EXISTS idx_scrape_jobs_store_created ON scrape_jobs(store_id, created_at);
	`, s.dialect.numeric, s.dialect.float)

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Columns added after the first release; errors mean the column already exists
	s.db.Exec(`ALTER TABLE products ADD COLUMN image_url TEXT`)
	s.db.Exec(`ALTER TABLE price_records ADD COLUMN source_url TEXT`)

	return nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tooling such as cmd/migrate
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// ---- stores ----

const storeColumns = `id, code, name, base_url, active, scraper_config`

func scanStore(row rowScanner) (*model.Store, error) {
	st := &model.Store{}
	var cfg sql.NullString
	if err := row.Scan(&st.ID, &st.Code, &st.Name, &st.BaseURL, &st.Active, &cfg); err != nil {
		return nil, err
	}
	if cfg.Valid && cfg.String != "" {
		if err := json.Unmarshal([]byte(cfg.String), &st.ScraperConfig); err != nil {
			return nil, fmt.Errorf("decode scraper_config for %s: %w", st.Code, err)
		}
	}
	return st, nil
}

// SaveStore upserts a store keyed on its code
func (s *SQLStore) SaveStore(ctx context.Context, st *model.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		var existing string
		err := s.db.QueryRowContext(ctx, s.q(`SELECT id FROM stores WHERE code = ?`), st.Code).Scan(&existing)
		switch {
		case err == nil:
			st.ID = existing
		case errors.Is(err, sql.ErrNoRows):
			st.ID = uuid.NewString()
		default:
			return fmt.Errorf("lookup store %s: %w", st.Code, err)
		}
	}

	var cfg sql.NullString
	if st.ScraperConfig != nil {
		cfg = sql.NullString{String: mustJSON(st.ScraperConfig), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO stores (id, code, name, base_url, active, scraper_config)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			base_url = excluded.base_url,
			active = excluded.active,
			scraper_config = excluded.scraper_config
	`), st.ID, st.Code, st.Name, st.BaseURL, st.Active, cfg)
	if err != nil {
		return fmt.Errorf("save store %s: %w", st.Code, err)
	}
	return nil
}

// GetStore returns a store by id
func (s *SQLStore) GetStore(ctx context.Context, id string) (*model.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := scanStore(s.db.QueryRowContext(ctx, s.q(`SELECT `+storeColumns+` FROM stores WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

// GetStoreByCode returns a store by code
func (s *SQLStore) GetStoreByCode(ctx context.Context, code string) (*model.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := scanStore(s.db.QueryRowContext(ctx, s.q(`SELECT `+storeColumns+` FROM stores WHERE code = ?`), code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

// ListStores returns all stores ordered by code
func (s *SQLStore) ListStores(ctx context.Context) ([]*model.Store, error) {
	return s.queryStores(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY code`)
}

// ListActiveStores returns active stores ordered by code
func (s *SQLStore) ListActiveStores(ctx context.Context) ([]*model.Store, error) {
	return s.queryStores(ctx, `SELECT `+storeColumns+` FROM stores WHERE active = ? ORDER BY code`, true)
}

func (s *SQLStore) queryStores(ctx context.Context, query string, args ...any) ([]*model.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	stores := make([]*model.Store, 0)
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

// ---- products ----

const productColumns = `p.id, p.name, p.normalized_name, p.brand, p.size, p.unit,
	p.category_id, p.image_url, p.store_product_ids, p.created_at, p.updated_at`

func scanProduct(row rowScanner) (*model.Product, error) {
	p := &model.Product{}
	var brand, size, unit, categoryID, imageURL sql.NullString
	var ids string
	var created, updated int64

	err := row.Scan(&p.ID, &p.Name, &p.NormalizedName, &brand, &size, &unit,
		&categoryID, &imageURL, &ids, &created, &updated)
	if err != nil {
		return nil, err
	}

	p.Brand = brand.String
	p.Size = size.String
	p.Unit = unit.String
	p.CategoryID = categoryID.String
	p.ImageURL = imageURL.String
	p.StoreProductIDs = model.StoreProductIDs{}
	if ids != "" {
		if err := json.Unmarshal([]byte(ids), &p.StoreProductIDs); err != nil {
			return nil, fmt.Errorf("decode store_product_ids for %s: %w", p.ID, err)
		}
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

// GetProduct returns a product by id
func (s *SQLStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanProduct(s.db.QueryRowContext(ctx, s.q(`SELECT `+productColumns+` FROM products p WHERE p.id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// FindProductByStoreID returns the product a store knows under storeProductID
func (s *SQLStore) FindProductByStoreID(ctx context.Context, storeCode, storeProductID string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanProduct(s.db.QueryRowContext(ctx, s.q(`
		SELECT `+productColumns+`
		FROM products p
		JOIN product_store_ids m ON m.product_id = p.id
		WHERE m.store_code = ? AND m.store_product_id = ?
	`), storeCode, storeProductID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// FindProductsByNormalizedName returns products sharing a normalized name, oldest first
func (s *SQLStore) FindProductsByNormalizedName(ctx context.Context, normalizedName string) ([]*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+productColumns+`
		FROM products p
		WHERE p.normalized_name = ?
		ORDER BY p.created_at, p.id
	`), normalizedName)
	if err != nil {
		return nil, fmt.Errorf("find products by name: %w", err)
	}
	defer rows.Close()

	products := make([]*model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// SaveProduct upserts a product. The persisted store id map is read in the
// same transaction and its entries win over incoming ones.
func (s *SQLStore) SaveProduct(ctx context.Context, p *model.Product) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var stored string
	err = tx.QueryRowContext(ctx, s.q(`SELECT store_product_ids FROM products WHERE id = ?`+s.dialect.forUpdate), p.ID).Scan(&stored)
	switch {
	case err == nil:
		existing := model.StoreProductIDs{}
		if stored != "" {
			if err := json.Unmarshal([]byte(stored), &existing); err != nil {
				return fmt.Errorf("decode store_product_ids for %s: %w", p.ID, err)
			}
		}
		p.StoreProductIDs = p.StoreProductIDs.MergeOnto(existing)
	case errors.Is(err, sql.ErrNoRows):
		if p.StoreProductIDs == nil {
			p.StoreProductIDs = model.StoreProductIDs{}
		}
	default:
		return fmt.Errorf("load product %s: %w", p.ID, err)
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO products (
			id, name, normalized_name, brand, size, unit, category_id, image_url,
			store_product_ids, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			normalized_name = excluded.normalized_name,
			brand = excluded.brand,
			size = excluded.size,
			unit = excluded.unit,
			category_id = excluded.category_id,
			image_url = excluded.image_url,
			store_product_ids = excluded.store_product_ids,
			updated_at = excluded.updated_at
	`), p.ID, p.Name, p.NormalizedName, nullString(p.Brand), nullString(p.Size), nullString(p.Unit),
		nullString(p.CategoryID), nullString(p.ImageURL), mustJSON(p.StoreProductIDs),
		millis(p.CreatedAt), millis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save product %s: %w", p.ID, err)
	}

	for code, localID := range p.StoreProductIDs {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO product_store_ids (store_code, store_product_id, product_id)
			VALUES (?, ?, ?)
			ON CONFLICT(store_code, store_product_id) DO NOTHING
		`), code, localID, p.ID)
		if err != nil {
			return fmt.Errorf("save store mapping %s/%s: %w", code, localID, err)
		}
	}

	return tx.Commit()
}

// ---- categories ----

// FindCategory returns a category by store scope and code
func (s *SQLStore) FindCategory(ctx context.Context, storeID, code string) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &model.Category{}
	var parent sql.NullString
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, name, code, parent_id, store_id FROM categories WHERE store_id = ? AND code = ?
	`), storeID, code).Scan(&c.ID, &c.Name, &c.Code, &parent, &c.StoreID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ParentID = parent.String
	return c, nil
}

// SaveCategory upserts a category
func (s *SQLStore) SaveCategory(ctx context.Context, c *model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO categories (id, name, code, parent_id, store_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			parent_id = excluded.parent_id,
			store_id = excluded.store_id
	`), c.ID, c.Name, c.Code, nullString(c.ParentID), c.StoreID)
	if err != nil {
		return fmt.Errorf("save category %s: %w", c.Code, err)
	}
	return nil
}

// ---- price records ----

const recordColumns = `id, product_id, store_id, regular_price, sale_price, unit_price,
	on_sale, promo_text, captured_at, in_stock, source_url`

func scanRecord(row rowScanner) (*model.PriceRecord, error) {
	r := &model.PriceRecord{}
	var promo, source sql.NullString
	var captured int64

	err := row.Scan(&r.ID, &r.ProductID, &r.StoreID, &r.RegularPrice, &r.SalePrice, &r.UnitPrice,
		&r.OnSale, &promo, &captured, &r.InStock, &source)
	if err != nil {
		return nil, err
	}
	r.PromoText = promo.String
	r.SourceURL = source.String
	r.CapturedAt = fromMillis(captured)
	return r, nil
}

// AppendPriceRecord inserts a new observation; records are never updated
func (s *SQLStore) AppendPriceRecord(ctx context.Context, r *model.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO price_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), r.ID, r.ProductID, r.StoreID, r.RegularPrice, r.SalePrice, r.UnitPrice,
		r.OnSale, nullString(r.PromoText), millis(r.CapturedAt), r.InStock, nullString(r.SourceURL))
	if err != nil {
		return fmt.Errorf("append price record: %w", err)
	}
	return nil
}

func (s *SQLStore) queryRecords(ctx context.Context, query string, args ...any) ([]*model.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query price records: %w", err)
	}
	defer rows.Close()

	records := make([]*model.PriceRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListPriceRecordsSince returns a store's records captured at or after since
func (s *SQLStore) ListPriceRecordsSince(ctx context.Context, storeID string, since time.Time) ([]*model.PriceRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM price_records
		WHERE store_id = ? AND captured_at >= ? ORDER BY captured_at`, storeID, millis(since))
}

// ListPriceRecordsBetween returns a store's records captured in [from, to)
func (s *SQLStore) ListPriceRecordsBetween(ctx context.Context, storeID string, from, to time.Time) ([]*model.PriceRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM price_records
		WHERE store_id = ? AND captured_at >= ? AND captured_at < ? ORDER BY captured_at`,
		storeID, millis(from), millis(to))
}

// ListPriceRecordsAfter returns all records captured at or after since
func (s *SQLStore) ListPriceRecordsAfter(ctx context.Context, since time.Time) ([]*model.PriceRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM price_records
		WHERE captured_at >= ? ORDER BY captured_at`, millis(since))
}

// LatestPriceRecord returns the most recent record for a product at a store
func (s *SQLStore) LatestPriceRecord(ctx context.Context, productID, storeID string) (*model.PriceRecord, error) {
	recs, err := s.queryRecords(ctx, `SELECT `+recordColumns+` FROM price_records
		WHERE product_id = ? AND store_id = ? ORDER BY captured_at DESC LIMIT 1`, productID, storeID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// ListProductPriceRecords returns a product's records across stores in [from, to)
func (s *SQLStore) ListProductPriceRecords(ctx context.Context, productID string, from, to time.Time) ([]*model.PriceRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM price_records
		WHERE product_id = ? AND captured_at >= ? AND captured_at < ? ORDER BY captured_at`,
		productID, millis(from), millis(to))
}

// ---- jobs ----

const jobColumns = `id, store_id, store_code, status, created_at, started_at, completed_at,
	total_products, success_count, error_count, error_messages`

func scanJob(row rowScanner) (*model.ScrapeJob, error) {
	j := &model.ScrapeJob{}
	var status, messages string
	var created int64
	var started, completed sql.NullInt64

	err := row.Scan(&j.ID, &j.StoreID, &j.StoreCode, &status, &created, &started, &completed,
		&j.TotalProducts, &j.SuccessCount, &j.ErrorCount, &messages)
	if err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	j.CreatedAt = fromMillis(created)
	j.StartedAt = timeFromNull(started)
	j.CompletedAt = timeFromNull(completed)
	j.ErrorMessages = []string{}
	if messages != "" {
		if err := json.Unmarshal([]byte(messages), &j.ErrorMessages); err != nil {
			return nil, fmt.Errorf("decode error_messages for job %s: %w", j.ID, err)
		}
	}
	return j, nil
}

// SaveJob upserts a job
func (s *SQLStore) SaveJob(ctx context.Context, j *model.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	messages := j.ErrorMessages
	if messages == nil {
		messages = []string{}
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO scrape_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			total_products = excluded.total_products,
			success_count = excluded.success_count,
			error_count = excluded.error_count,
			error_messages = excluded.error_messages
	`), j.ID, j.StoreID, j.StoreCode, string(j.Status), millis(j.CreatedAt),
		nullMillis(j.StartedAt), nullMillis(j.CompletedAt),
		j.TotalProducts, j.SuccessCount, j.ErrorCount, mustJSON(messages))
	if err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

// GetJob returns a job by id
func (s *SQLStore) GetJob(ctx context.Context, id string) (*model.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, err := scanJob(s.db.QueryRowContext(ctx, s.q(`SELECT `+jobColumns+` FROM scrape_jobs WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// LatestJob returns the most recently created job for a store
func (s *SQLStore) LatestJob(ctx context.Context, storeID string) (*model.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, err := scanJob(s.db.QueryRowContext(ctx, s.q(`SELECT `+jobColumns+` FROM scrape_jobs
		WHERE store_id = ? ORDER BY created_at DESC LIMIT 1`), storeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// HasRunningJob reports whether any job of the store is RUNNING
func (s *SQLStore) HasRunningJob(ctx context.Context, storeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM scrape_jobs WHERE store_id = ? AND status = ?`),
		storeID, string(model.JobRunning)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check running job: %w", err)
	}
	return count > 0, nil
}

// RecoverStaleJobs fails jobs left PENDING or RUNNING by a previous process
func (s *SQLStore) RecoverStaleJobs(ctx context.Context, reason string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+jobColumns+` FROM scrape_jobs WHERE status IN (?, ?)`),
		string(model.JobPending), string(model.JobRunning))
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}
	var stale []*model.ScrapeJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		stale = append(stale, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, j := range stale {
		_, err := s.db.ExecContext(ctx, s.q(`UPDATE scrape_jobs SET status = ?, completed_at = ?, error_messages = ? WHERE id = ?`),
			string(model.JobFailed), millis(at), mustJSON(append(j.ErrorMessages, reason)), j.ID)
		if err != nil {
			return 0, fmt.Errorf("fail stale job %s: %w", j.ID, err)
		}
	}
	return len(stale), nil
}

// ---- subscriptions ----

const subscriptionColumns = `id, channel, target, active, min_drop_percentage,
	store_filters, category_filters, created_at`

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	sub := &model.Subscription{}
	var channel, stores, categories string
	var created int64

	err := row.Scan(&sub.ID, &channel, &sub.Target, &sub.Active, &sub.MinDropPercentage,
		&stores, &categories, &created)
	if err != nil {
		return nil, err
	}
	sub.Channel = model.Channel(channel)
	sub.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(stores), &sub.StoreFilters); err != nil {
		return nil, fmt.Errorf("decode store_filters for %s: %w", sub.ID, err)
	}
	if err := json.Unmarshal([]byte(categories), &sub.CategoryFilters); err != nil {
		return nil, fmt.Errorf("decode category_filters for %s: %w", sub.ID, err)
	}
	return sub, nil
}

// SaveSubscription upserts a subscription
func (s *SQLStore) SaveSubscription(ctx context.Context, sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	stores := sub.StoreFilters
	if stores == nil {
		stores = []string{}
	}
	categories := sub.CategoryFilters
	if categories == nil {
		categories = []string{}
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel = excluded.channel,
			target = excluded.target,
			active = excluded.active,
			min_drop_percentage = excluded.min_drop_percentage,
			store_filters = excluded.store_filters,
			category_filters = excluded.category_filters
	`), sub.ID, string(sub.Channel), sub.Target, sub.Active, sub.MinDropPercentage,
		mustJSON(stores), mustJSON(categories), millis(sub.CreatedAt))
	if err != nil {
		return fmt.Errorf("save subscription %s: %w", sub.ID, err)
	}
	return nil
}

// DeleteSubscription removes a subscription
func (s *SQLStore) DeleteSubscription(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM subscriptions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete subscription %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSubscriptions returns all subscriptions, oldest first
func (s *SQLStore) ListSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at`)
}

// ListActiveSubscriptions returns active subscriptions, oldest first
func (s *SQLStore) ListActiveSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE active = ? ORDER BY created_at`, true)
}

func (s *SQLStore) querySubscriptions(ctx context.Context, query string, args ...any) ([]*model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]*model.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
