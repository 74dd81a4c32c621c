package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrKind classifies chat API failures for callers that only branch on
// the category, not the message.
type ErrKind int

const (
	KindUnknown ErrKind = iota
	KindNotFound
	KindForbidden
	KindRateLimited
)

// ChatError is the typed failure surface of the chat client.
type ChatError struct {
	Kind       ErrKind
	RetryAfter time.Duration
	msg        string
}

func (e *ChatError) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("chat: not found: %s", e.msg)
	case KindForbidden:
		return fmt.Sprintf("chat: forbidden: %s", e.msg)
	case KindRateLimited:
		return fmt.Sprintf("chat: rate limited for %s: %s", e.RetryAfter, e.msg)
	default:
		return fmt.Sprintf("chat: %s", e.msg)
	}
}

// classify maps a Bot API error onto the ChatError taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return &ChatError{Kind: KindUnknown, msg: err.Error()}
	}
	switch {
	case apiErr.Code == 429:
		return &ChatError{
			Kind:       KindRateLimited,
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			msg:        apiErr.Message,
		}
	case apiErr.Code == 403:
		return &ChatError{Kind: KindForbidden, msg: apiErr.Message}
	case apiErr.Code == 400 && strings.Contains(strings.ToLower(apiErr.Message), "not found"):
		return &ChatError{Kind: KindNotFound, msg: apiErr.Message}
	default:
		return &ChatError{Kind: KindUnknown, msg: apiErr.Message}
	}
}

// KindOf extracts the ErrKind from an error chain, KindUnknown otherwise.
func KindOf(err error) ErrKind {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}
