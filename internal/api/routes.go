package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, d Deps) {
	handlers := NewHandlers(d)

	v1 := r.Group("/api")
	{
		// Health check (handle both GET and HEAD)
		v1.GET("/health", handlers.HealthCheck)
		v1.HEAD("/health", handlers.HealthCheck)

		// Stores and scrape jobs
		v1.GET("/stores", handlers.GetStores)
		v1.GET("/stores/:storeCode/jobs/latest", handlers.GetLatestJob)
		v1.GET("/stores/:storeCode/sales", handlers.GetStoreSales)
		v1.GET("/jobs/:id", handlers.GetJob)

		// Admin operations (WARNING: No authentication - add auth middleware before production)
		v1.POST("/scrape", handlers.TriggerScrapeAll)
		v1.POST("/scrape/:storeCode", handlers.TriggerScrape)

		// Prices
		v1.GET("/price-drops", handlers.GetPriceDrops)
		v1.GET("/deals", handlers.GetDeals)
		v1.GET("/products/:id/compare", handlers.CompareProduct)
		v1.GET("/products/:id/history", handlers.GetProductHistory)

		// Subscriptions
		v1.GET("/subscriptions", handlers.GetSubscriptions)
		v1.POST("/subscriptions", handlers.CreateSubscription)
		v1.DELETE("/subscriptions/:id", handlers.DeleteSubscription)
	}
}

// CORS allows the configured comma separated origins
func CORS(origins string) gin.HandlerFunc {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
