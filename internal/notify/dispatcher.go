// Package notify delivers price drop alerts to subscribers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"grocery-price/internal/model"
	"grocery-price/internal/store"
)

// maxDropsPerMessage keeps one alert readable
const maxDropsPerMessage = 10

// Sender delivers one message to one target on a channel
type Sender interface {
	Send(ctx context.Context, target, title, body string) error
}

// DispatchStats counts delivery outcomes since start
type DispatchStats struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

// Dispatcher fans price drops out to every matching active subscription
type Dispatcher struct {
	subs   store.SubscriptionRepository
	logger *slog.Logger

	mu      sync.RWMutex
	senders map[model.Channel]Sender

	sent   atomic.Int64
	failed atomic.Int64
}

// NewDispatcher creates a dispatcher without senders
func NewDispatcher(subs store.SubscriptionRepository, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		subs:    subs,
		logger:  logger.With("component", "notify"),
		senders: make(map[model.Channel]Sender),
	}
}

// Register sets the sender for a channel
func (d *Dispatcher) Register(channel model.Channel, s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[channel] = s
}

func (d *Dispatcher) sender(channel model.Channel) Sender {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.senders[channel]
}

// Dispatch sends each active subscription the drops it asked for, one
// goroutine per subscription. Every failed delivery is logged; the joined
// errors are returned for the caller to log.
func (d *Dispatcher) Dispatch(ctx context.Context, drops []model.PriceDrop) error {
	if len(drops) == 0 {
		return nil
	}

	subscriptions, err := d.subs.ListActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subscriptions) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(subscriptions))

	for _, sub := range subscriptions {
		matched := FilterDrops(drops, sub)
		if len(matched) == 0 {
			continue
		}

		wg.Add(1)
		go func(s *model.Subscription, matched []model.PriceDrop) {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					d.logger.Error("notification sender panicked", "subscription", s.ID, "channel", s.Channel, "panic", v)
					errChan <- fmt.Errorf("subscription %s: panic: %v", s.ID, v)
				}
			}()

			sender := d.sender(s.Channel)
			if sender == nil {
				errChan <- fmt.Errorf("subscription %s: no sender for channel %q", s.ID, s.Channel)
				return
			}

			if err := sender.Send(ctx, s.Target, AlertTitle, FormatDrops(matched)); err != nil {
				d.logger.Error("notification failed", "subscription", s.ID, "channel", s.Channel, "error", err)
				errChan <- fmt.Errorf("subscription %s: %w", s.ID, err)
				return
			}
			d.logger.Info("notification sent", "subscription", s.ID, "channel", s.Channel, "drops", len(matched))
			d.sent.Add(1)
		}(sub, matched)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		d.failed.Add(int64(len(errs)))
		d.logger.Warn("notification dispatch completed with errors", "errors", len(errs))
	}
	return errors.Join(errs...)
}

// Stats returns delivery counters
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{Sent: d.sent.Load(), Failed: d.failed.Load()}
}

// FilterDrops keeps drops meeting the subscription's minimum percentage,
// store codes and category fragments, capped for one message
func FilterDrops(drops []model.PriceDrop, sub *model.Subscription) []model.PriceDrop {
	var out []model.PriceDrop
	for _, drop := range drops {
		if drop.DropPercentage < sub.MinDropPercentage {
			continue
		}
		if len(sub.StoreFilters) > 0 && !matchesStore(drop.Store, sub.StoreFilters) {
			continue
		}
		if len(sub.CategoryFilters) > 0 && !matchesCategory(drop.Product, sub.CategoryFilters) {
			continue
		}
		out = append(out, drop)
		if len(out) == maxDropsPerMessage {
			break
		}
	}
	return out
}

func matchesStore(st *model.Store, codes []string) bool {
	if st == nil {
		return false
	}
	for _, code := range codes {
		if strings.EqualFold(code, st.Code) {
			return true
		}
	}
	return false
}

func matchesCategory(p *model.Product, fragments []string) bool {
	if p == nil || p.CategoryID == "" {
		return false
	}
	for _, f := range fragments {
		if f != "" && strings.Contains(p.CategoryID, f) {
			return true
		}
	}
	return false
}
