package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// GetPriceDrops returns drops seen across active stores over the last day
func (h *Handlers) GetPriceDrops(c *gin.Context) {
	minDrop := queryFloat(c, "min", 0)
	limit := queryInt(c, "limit", defaultListLimit, maxListLimit)

	drops, err := h.reports.RecentPriceDrops(c.Request.Context(), minDrop, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(drops),
		"drops": drops,
	})
}

// CompareProduct returns a product's latest price at every active store
func (h *Handlers) CompareProduct(c *gin.Context) {
	cmp, err := h.reports.CompareProductPrices(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// GetProductHistory returns the price series of a product
func (h *Handlers) GetProductHistory(c *gin.Context) {
	storeID := c.Query("store")
	if code := c.Query("store_code"); code != "" && storeID == "" {
		st, err := h.repo.GetStoreByCode(c.Request.Context(), code)
		if err != nil {
			h.writeError(c, err)
			return
		}
		storeID = st.ID
	}

	history, err := h.reports.ProductPriceHistory(c.Request.Context(), c.Param("id"), storeID, queryInt(c, "days", 0, 365))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// GetStoreSales returns a store's current on-sale items
func (h *Handlers) GetStoreSales(c *gin.Context) {
	items, err := h.reports.CurrentSalesForStore(c.Request.Context(), c.Param("storeCode"),
		queryInt(c, "limit", defaultListLimit, maxListLimit))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(items),
		"items": items,
	})
}

// GetDeals returns discounted items across active stores
func (h *Handlers) GetDeals(c *gin.Context) {
	items, err := h.reports.DiscountedItems(c.Request.Context(),
		queryFloat(c, "min", 0),
		queryInt(c, "limit", defaultListLimit, maxListLimit),
		queryInt(c, "days", 0, 90))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(items),
		"items": items,
	})
}
