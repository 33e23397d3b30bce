package store

import (
	"context"
	"errors"
	"time"

	"grocery-price/internal/model"
)

// ErrNotFound is returned by point lookups that match nothing
var ErrNotFound = errors.New("not found")

// Repository is the complete persistence boundary.
// The JSON Store and the SQL store (SQLite or Postgres) both implement it.
type Repository interface {
	StoreRepository
	ProductRepository
	CategoryRepository
	PriceRecordRepository
	JobRepository
	SubscriptionRepository

	Close() error
}

// StoreRepository holds the retailer catalogue
type StoreRepository interface {
	SaveStore(ctx context.Context, s *model.Store) error
	GetStore(ctx context.Context, id string) (*model.Store, error)
	GetStoreByCode(ctx context.Context, code string) (*model.Store, error)
	ListStores(ctx context.Context) ([]*model.Store, error)
	ListActiveStores(ctx context.Context) ([]*model.Store, error)
}

// ProductRepository holds canonical products
type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	FindProductByStoreID(ctx context.Context, storeCode, storeProductID string) (*model.Product, error)
	FindProductsByNormalizedName(ctx context.Context, normalizedName string) ([]*model.Product, error)
	// SaveProduct upserts a product. Store id mappings already persisted are kept
	// over incoming values for the same store code.
	SaveProduct(ctx context.Context, p *model.Product) error
}

// CategoryRepository holds categories
type CategoryRepository interface {
	FindCategory(ctx context.Context, storeID, code string) (*model.Category, error)
	SaveCategory(ctx context.Context, c *model.Category) error
}

// PriceRecordRepository is append-only
type PriceRecordRepository interface {
	AppendPriceRecord(ctx context.Context, r *model.PriceRecord) error
	// ListPriceRecordsSince returns a store's records captured at or after since
	ListPriceRecordsSince(ctx context.Context, storeID string, since time.Time) ([]*model.PriceRecord, error)
	// ListPriceRecordsBetween returns a store's records captured in [from, to)
	ListPriceRecordsBetween(ctx context.Context, storeID string, from, to time.Time) ([]*model.PriceRecord, error)
	// ListPriceRecordsAfter returns every store's records captured at or after since
	ListPriceRecordsAfter(ctx context.Context, since time.Time) ([]*model.PriceRecord, error)
	LatestPriceRecord(ctx context.Context, productID, storeID string) (*model.PriceRecord, error)
	// ListProductPriceRecords returns a product's records in [from, to), oldest first
	ListProductPriceRecords(ctx context.Context, productID string, from, to time.Time) ([]*model.PriceRecord, error)
}

// JobRepository tracks scrape jobs
type JobRepository interface {
	SaveJob(ctx context.Context, j *model.ScrapeJob) error
	GetJob(ctx context.Context, id string) (*model.ScrapeJob, error)
	LatestJob(ctx context.Context, storeID string) (*model.ScrapeJob, error)
	HasRunningJob(ctx context.Context, storeID string) (bool, error)
	// RecoverStaleJobs fails every PENDING or RUNNING job and returns how many changed
	RecoverStaleJobs(ctx context.Context, reason string, at time.Time) (int, error)
}

// SubscriptionRepository holds notification subscriptions
type SubscriptionRepository interface {
	SaveSubscription(ctx context.Context, s *model.Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	ListSubscriptions(ctx context.Context) ([]*model.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]*model.Subscription, error)
}
