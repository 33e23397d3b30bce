package notify

import (
	"errors"
	"fmt"
	"regexp"

	"grocery-price/internal/model"
)

// ErrInvalidSubscription marks a subscription that cannot be delivered to
var ErrInvalidSubscription = errors.New("invalid subscription")

var telegramChat = regexp.MustCompile(`^(-?\d+|@[A-Za-z0-9_]{5,})$`)

// ValidateSubscription checks the channel, its target format and the filters
func ValidateSubscription(sub *model.Subscription) error {
	if !sub.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidSubscription, sub.Channel)
	}
	if sub.MinDropPercentage < 0 || sub.MinDropPercentage > 100 {
		return fmt.Errorf("%w: min_drop_percentage must be between 0 and 100", ErrInvalidSubscription)
	}

	switch sub.Channel {
	case model.ChannelTelegram:
		if !telegramChat.MatchString(sub.Target) {
			return fmt.Errorf("%w: telegram target must be a chat id or @channel", ErrInvalidSubscription)
		}
	case model.ChannelBark:
		if !ValidateBarkKey(sub.Target) {
			return fmt.Errorf("%w: invalid bark key", ErrInvalidSubscription)
		}
	case model.ChannelEmail:
		if !ValidateEmail(sub.Target) {
			return fmt.Errorf("%w: invalid email address", ErrInvalidSubscription)
		}
	}
	return nil
}
