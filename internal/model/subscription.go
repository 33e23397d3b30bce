package model

import "time"

// Channel is a notification transport
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelBark     Channel = "bark"
	ChannelEmail    Channel = "email"
)

// Valid reports whether the channel is one the dispatcher can deliver to
func (c Channel) Valid() bool {
	switch c {
	case ChannelTelegram, ChannelBark, ChannelEmail:
		return true
	}
	return false
}

// Subscription receives price drop alerts on one channel
type Subscription struct {
	ID                string    `json:"id"`
	Channel           Channel   `json:"channel"`
	Target            string    `json:"target"` // chat id, bark key or email address
	Active            bool      `json:"active"`
	MinDropPercentage float64   `json:"min_drop_percentage"`
	StoreFilters      []string  `json:"store_filters,omitempty"`    // store codes, empty = all
	CategoryFilters   []string  `json:"category_filters,omitempty"` // category id fragments, empty = all
	CreatedAt         time.Time `json:"created_at"`
}
