package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramService sends messages through the Telegram Bot API
type TelegramService struct {
	client    *http.Client
	apiURL    string
	token     string
	isEnabled bool
}

// NewTelegramService creates a Telegram sender. An empty token disables it.
func NewTelegramService(apiURL, token string) *TelegramService {
	if apiURL == "" {
		apiURL = defaultTelegramAPI
	}
	return &TelegramService{
		client:    &http.Client{Timeout: 10 * time.Second},
		apiURL:    strings.TrimRight(apiURL, "/"),
		token:     token,
		isEnabled: token != "",
	}
}

// IsEnabled returns whether a bot token is configured
func (t *TelegramService) IsEnabled() bool {
	return t.isEnabled
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts text to a chat. The title is already the first line of body.
func (t *TelegramService) Send(ctx context.Context, chatID, _, body string) error {
	if !t.isEnabled {
		return nil
	}
	if chatID == "" {
		return fmt.Errorf("telegram chat id is empty")
	}

	payload, err := json.Marshal(map[string]any{
		"chat_id":                  chatID,
		"text":                     body,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var result telegramResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if !result.OK {
		return fmt.Errorf("telegram: %s (status %d)", result.Description, resp.StatusCode)
	}
	return nil
}
