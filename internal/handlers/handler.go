package handlers

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/broadcast"
	"github.com/nottyvote/votebot/internal/cache"
	"github.com/nottyvote/votebot/internal/config"
	"github.com/nottyvote/votebot/internal/models"
	"github.com/nottyvote/votebot/internal/telegram"
	"github.com/nottyvote/votebot/internal/votes"
)

// pending tracks what a private chat's next free-form message means.
type pendingState int

const (
	pendingNone pendingState = iota
	pendingChannel
	pendingBroadcastUsers
	pendingBroadcastChannels
)

// Handler routes bot updates to the voting, publishing and admin flows.
type Handler struct {
	store *cache.PollStore
	votes *votes.Service
	pub   *votes.Publisher
	bcast *broadcast.Broadcaster
	chat  telegram.Client
	cfg   config.Config
	log   *zap.Logger

	mu      sync.Mutex
	pending map[int64]pendingState
}

func New(store *cache.PollStore, svc *votes.Service, pub *votes.Publisher,
	bcast *broadcast.Broadcaster, chat telegram.Client, cfg config.Config, log *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		votes:   svc,
		pub:     pub,
		bcast:   bcast,
		chat:    chat,
		cfg:     cfg,
		log:     log,
		pending: make(map[int64]pendingState),
	}
}

// HandleUpdate processes one update. Safe for concurrent use; the
// dispatch loop runs each update in its own goroutine.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		h.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.Chat != nil && upd.Message.Chat.IsPrivate():
		h.handleMessage(ctx, upd.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	h.rememberUser(ctx, msg.From)

	if msg.IsCommand() {
		h.setPending(msg.Chat.ID, pendingNone)
		switch msg.Command() {
		case "start":
			h.handleStart(ctx, msg)
		case "help":
			h.reply(ctx, msg.Chat.ID, helpText)
		case "vote":
			h.handleVote(ctx, msg)
		case "track":
			h.handleTrack(ctx, msg)
		case "stats":
			h.handleStats(ctx, msg)
		case "delvote":
			h.handleDelVote(ctx, msg)
		case "unvote":
			h.handleUnvote(ctx, msg)
		case "broadcast":
			h.handleBroadcast(ctx, msg)
		default:
			h.reply(ctx, msg.Chat.ID, "Unknown command. Try /help.")
		}
		return
	}

	switch state := h.takePending(msg.Chat.ID); state {
	case pendingChannel:
		h.createPoll(ctx, msg)
	case pendingBroadcastUsers, pendingBroadcastChannels:
		h.runBroadcast(ctx, msg, state)
	}
}

func (h *Handler) rememberUser(ctx context.Context, from *tgbotapi.User) {
	err := h.store.SaveUser(ctx, &models.User{
		UserID:    from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	})
	if err != nil {
		h.log.Warn("user upsert failed", zap.Int64("user_id", from.ID), zap.Error(err))
	}
}

func (h *Handler) isOwner(userID int64) bool {
	return h.cfg.OwnerID != 0 && userID == h.cfg.OwnerID
}

func (h *Handler) setPending(chatID int64, s pendingState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s == pendingNone {
		delete(h.pending, chatID)
		return
	}
	h.pending[chatID] = s
}

func (h *Handler) takePending(chatID int64) pendingState {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.pending[chatID]
	delete(h.pending, chatID)
	return s
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.chat.SendMessage(ctx, chatID, text); err != nil {
		h.log.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// notifyLog posts to the owner's log channel, if one is configured.
func (h *Handler) notifyLog(ctx context.Context, text string) {
	if h.cfg.LogChannelID == 0 {
		return
	}
	if err := h.chat.SendMessage(ctx, h.cfg.LogChannelID, text); err != nil {
		h.log.Debug("log channel post failed", zap.Error(err))
	}
}
