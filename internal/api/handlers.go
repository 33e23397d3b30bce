package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"grocery-price/internal/model"
	"grocery-price/internal/notify"
	"grocery-price/internal/scrape"
	"grocery-price/internal/scraper"
	"grocery-price/internal/store"

	"github.com/gin-gonic/gin"
)

// Repository is the slice of persistence the handlers read and write directly
type Repository interface {
	store.StoreRepository
	store.SubscriptionRepository
}

// JobService starts scrapes and reports their jobs
type JobService interface {
	TriggerScrape(ctx context.Context, storeCode string) (*model.ScrapeJob, error)
	TriggerScrapeAll(ctx context.Context) []*model.ScrapeJob
	GetJob(ctx context.Context, id string) (*model.ScrapeJob, error)
	LatestJob(ctx context.Context, storeCode string) (*model.ScrapeJob, error)
	RunnerStats() scrape.RunnerStats
}

// Reports answers the read-side price questions
type Reports interface {
	RecentPriceDrops(ctx context.Context, minDropPercentage float64, limit int) ([]model.PriceDrop, error)
	CompareProductPrices(ctx context.Context, productID string) (*model.PriceComparison, error)
	ProductPriceHistory(ctx context.Context, productID, storeID string, days int) (*model.PriceHistory, error)
	CurrentSalesForStore(ctx context.Context, storeCode string, limit int) ([]model.DiscountedItem, error)
	DiscountedItems(ctx context.Context, minDiscount float64, limit, lookbackDays int) ([]model.DiscountedItem, error)
}

// SchedulerInterface reports the periodic scrape state
type SchedulerInterface interface {
	Status() scraper.ScheduleStatus
}

// NotifierStats reports delivery counters
type NotifierStats interface {
	Stats() notify.DispatchStats
}

// Deps are the collaborators behind the HTTP surface. Scheduler and Notifier may be nil.
type Deps struct {
	Repo      Repository
	Jobs      JobService
	Reports   Reports
	Scheduler SchedulerInterface
	Notifier  NotifierStats
	Logger    *slog.Logger
}

// Handlers contains all API handlers
type Handlers struct {
	repo      Repository
	jobs      JobService
	reports   Reports
	scheduler SchedulerInterface
	notifier  NotifierStats
	logger    *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		repo:      d.Repo,
		jobs:      d.Jobs,
		reports:   d.Reports,
		scheduler: d.Scheduler,
		notifier:  d.Notifier,
		logger:    logger.With("component", "api"),
	}
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"runner":    h.jobs.RunnerStats(),
	}
	if h.scheduler != nil {
		resp["scheduler"] = h.scheduler.Status()
	}
	if h.notifier != nil {
		resp["notifications"] = h.notifier.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

// GetStores returns every configured store
func (h *Handlers) GetStores(c *gin.Context) {
	stores, err := h.repo.ListStores(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(stores),
		"stores": stores,
	})
}

// TriggerScrape starts a scrape for one store
func (h *Handlers) TriggerScrape(c *gin.Context) {
	job, err := h.jobs.TriggerScrape(c.Request.Context(), c.Param("storeCode"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// TriggerScrapeAll starts a scrape for every active store
func (h *Handlers) TriggerScrapeAll(c *gin.Context) {
	jobs := h.jobs.TriggerScrapeAll(c.Request.Context())
	c.JSON(http.StatusAccepted, gin.H{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

// GetJob returns a scrape job by id
func (h *Handlers) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetLatestJob returns the most recent job of a store
func (h *Handlers) GetLatestJob(c *gin.Context) {
	job, err := h.jobs.LatestJob(c.Request.Context(), c.Param("storeCode"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// writeError maps domain errors to status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scrape.ErrStoreNotFound), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, scrape.ErrStoreInactive):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, scrape.ErrJobRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, notify.ErrInvalidSubscription):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// queryInt parses a positive integer query parameter, capped at max
func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// queryFloat parses a non-negative float query parameter
func queryFloat(c *gin.Context, key string, def float64) float64 {
	v, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}
