package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBarkServer = "https://api.day.app"

// BarkService handles Bark push notifications
type BarkService struct {
	client    *http.Client
	server    string
	isEnabled bool
}

// NewBarkService creates a new Bark notification service
func NewBarkService(server string) *BarkService {
	if server == "" {
		server = defaultBarkServer
	}
	return &BarkService{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		server:    strings.TrimRight(server, "/"),
		isEnabled: true,
	}
}

// Disable disables the Bark service
func (b *BarkService) Disable() {
	b.isEnabled = false
}

// Send pushes a notification to a device key
func (b *BarkService) Send(ctx context.Context, key, title, body string) error {
	if !b.isEnabled {
		return nil
	}

	if key == "" {
		return fmt.Errorf("bark key is empty")
	}

	// Build URL: {server}/{key}/{title}/{body}
	barkURL := fmt.Sprintf("%s/%s/%s/%s?group=%s", b.server, url.PathEscape(key),
		url.PathEscape(title), url.PathEscape(body), url.QueryEscape("grocery-price"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, barkURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// ValidateBarkKey validates a Bark device key
func ValidateBarkKey(key string) bool {
	if key == "" {
		return false
	}

	// Bark keys are alphanumeric and vary in length, but never contain spaces or slashes
	return !strings.ContainsAny(key, " /")
}
