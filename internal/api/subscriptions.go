package api

import (
	"net/http"
	"time"

	"grocery-price/internal/model"
	"grocery-price/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type saver interface {
	Save() error
}

type subscriptionRequest struct {
	Channel           model.Channel `json:"channel" binding:"required"`
	Target            string        `json:"target" binding:"required"`
	MinDropPercentage float64       `json:"min_drop_percentage"`
	StoreFilters      []string      `json:"store_filters"`
	CategoryFilters   []string      `json:"category_filters"`
}

// CreateSubscription creates a new subscription
func (h *Handlers) CreateSubscription(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := &model.Subscription{
		ID:                uuid.NewString(),
		Channel:           req.Channel,
		Target:            req.Target,
		Active:            true,
		MinDropPercentage: req.MinDropPercentage,
		StoreFilters:      req.StoreFilters,
		CategoryFilters:   req.CategoryFilters,
		CreatedAt:         time.Now(),
	}
	if err := notify.ValidateSubscription(sub); err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.repo.SaveSubscription(c.Request.Context(), sub); err != nil {
		h.writeError(c, err)
		return
	}
	h.persist()

	c.JSON(http.StatusCreated, masked(sub))
}

// DeleteSubscription deletes a subscription
func (h *Handlers) DeleteSubscription(c *gin.Context) {
	if err := h.repo.DeleteSubscription(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	h.persist()

	c.JSON(http.StatusOK, gin.H{"message": "subscription deleted"})
}

// GetSubscriptions returns all subscriptions with masked targets
func (h *Handlers) GetSubscriptions(c *gin.Context) {
	subs, err := h.repo.ListSubscriptions(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]*model.Subscription, 0, len(subs))
	for _, s := range subs {
		out = append(out, masked(s))
	}
	c.JSON(http.StatusOK, gin.H{
		"count":         len(out),
		"subscriptions": out,
	})
}

// persist flushes file-backed repositories; SQL writes are already durable
func (h *Handlers) persist() {
	if s, ok := h.repo.(saver); ok {
		if err := s.Save(); err != nil {
			h.logger.Error("failed to persist data", "error", err)
		}
	}
}

func masked(sub *model.Subscription) *model.Subscription {
	cp := *sub
	cp.Target = maskTarget(sub.Target)
	return &cp
}

// maskTarget masks a delivery target for display (shows first 4 and last 4 chars)
func maskTarget(target string) string {
	if target == "" {
		return ""
	}
	if len(target) <= 8 {
		return "****"
	}
	return target[:4] + "****" + target[len(target)-4:]
}
