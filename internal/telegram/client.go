package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// At renders a channel username in "@name" form regardless of how the
// caller stored it.
func At(channel string) string {
	return "@" + strings.TrimPrefix(channel, "@")
}

// Membership is a user's standing in a channel.
type Membership string

const (
	MemberStatusCreator       Membership = "creator"
	MemberStatusAdministrator Membership = "administrator"
	MemberStatusMember        Membership = "member"
	MemberStatusRestricted    Membership = "restricted"
	MemberStatusLeft          Membership = "left"
	MemberStatusKicked        Membership = "kicked"
)

// Subscribed reports whether this standing counts as being subscribed.
func (m Membership) Subscribed() bool {
	switch m {
	case MemberStatusCreator, MemberStatusAdministrator, MemberStatusMember, MemberStatusRestricted:
		return true
	}
	return false
}

// Button is an inline button. Set either CallbackData or URL.
type Button struct {
	Text         string
	CallbackData string
	URL          string
}

// Client is the chat transport the core depends on. Implementations own
// their rate-limit handling; callers treat any returned error as a
// best-effort failure per the voting protocol's semantics.
type Client interface {
	// SendCard posts a card with one inline button to a channel and
	// returns the message id for later button edits.
	SendCard(ctx context.Context, channel, body string, btn Button) (int, error)
	// EditButton swaps the inline button on a previously sent card.
	EditButton(ctx context.Context, channel string, messageID int, btn Button) error
	// GetMembership resolves a user's standing in a channel.
	GetMembership(ctx context.Context, channel string, userID int64) (Membership, error)
	// SendMessage delivers a plain text message to a private chat.
	SendMessage(ctx context.Context, chatID int64, text string) error
	// SendToChannel delivers a plain text message to a channel by username.
	SendToChannel(ctx context.Context, channel string, text string) error
	// AnswerCallback acknowledges a callback press, optionally with an
	// alert popup.
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// maxRateLimitWait bounds how long a single call will sleep on a 429
// before giving up and surfacing the error.
const maxRateLimitWait = 30 * time.Second

// Bot wraps the Bot API client with typed errors and a single
// wait-and-retry on rate limits.
type Bot struct {
	api *tgbotapi.BotAPI
	log *zap.Logger
}

func NewBot(api *tgbotapi.BotAPI, log *zap.Logger) *Bot {
	return &Bot{api: api, log: log}
}

func (b *Bot) Username() string { return b.api.Self.UserName }

func (b *Bot) SendCard(ctx context.Context, channel, body string, btn Button) (int, error) {
	msg := tgbotapi.NewMessageToChannel(channel, body)
	msg.ReplyMarkup = keyboard(btn)
	sent, err := b.sendRetry(ctx, msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *Bot) EditButton(ctx context.Context, channel string, messageID int, btn Button) error {
	edit := tgbotapi.EditMessageReplyMarkupConfig{
		BaseEdit: tgbotapi.BaseEdit{
			ChannelUsername: channel,
			MessageID:       messageID,
			ReplyMarkup:     keyboardPtr(btn),
		},
	}
	_, err := b.sendRetry(ctx, edit)
	return err
}

func (b *Bot) GetMembership(ctx context.Context, channel string, userID int64) (Membership, error) {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: At(channel),
			UserID:             userID,
		},
	})
	if err != nil {
		return "", classify(err)
	}
	return Membership(member.Status), nil
}

func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := b.sendRetry(ctx, tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) SendToChannel(ctx context.Context, channel string, text string) error {
	_, err := b.sendRetry(ctx, tgbotapi.NewMessageToChannel(channel, text))
	return err
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	if _, err := b.api.Request(cb); err != nil {
		return classify(err)
	}
	return nil
}

// sendRetry performs one send, and on a rate limit waits out the
// advertised delay once before retrying. Anything else is classified
// and returned as-is.
func (b *Bot) sendRetry(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	sent, err := b.api.Send(c)
	if err == nil {
		return sent, nil
	}
	cerr := classify(err)
	ce, ok := cerr.(*ChatError)
	if !ok || ce.Kind != KindRateLimited || ce.RetryAfter <= 0 || ce.RetryAfter > maxRateLimitWait {
		return tgbotapi.Message{}, cerr
	}

	b.log.Warn("rate limited, waiting before retry",
		zap.Duration("retry_after", ce.RetryAfter))
	select {
	case <-ctx.Done():
		return tgbotapi.Message{}, ctx.Err()
	case <-time.After(ce.RetryAfter):
	}
	sent, err = b.api.Send(c)
	if err != nil {
		return tgbotapi.Message{}, classify(err)
	}
	return sent, nil
}

func keyboard(btn Button) tgbotapi.InlineKeyboardMarkup {
	var b tgbotapi.InlineKeyboardButton
	if btn.URL != "" {
		b = tgbotapi.NewInlineKeyboardButtonURL(btn.Text, btn.URL)
	} else {
		b = tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.CallbackData)
	}
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(b))
}

func keyboardPtr(btn Button) *tgbotapi.InlineKeyboardMarkup {
	kb := keyboard(btn)
	return &kb
}
