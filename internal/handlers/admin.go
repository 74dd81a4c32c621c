package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/broadcast"
	"github.com/nottyvote/votebot/internal/storage"
	"github.com/nottyvote/votebot/internal/telegram"
)

func (h *Handler) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isOwner(msg.From.ID) {
		return
	}
	st, err := h.store.Stats(ctx)
	if err != nil {
		h.log.Error("stats query failed", zap.Error(err))
		h.reply(ctx, msg.Chat.ID, "Stats are unavailable right now.")
		return
	}
	text := fmt.Sprintf(
		"📊 Bot stats\n\n"+
			"Active polls: %d\n"+
			"Total polls: %d\n"+
			"Participation posts: %d\n"+
			"Ballots: %d\n"+
			"Unique participants: %d\n"+
			"Users: %d\n"+
			"Channels: %d",
		st.ActivePolls, st.TotalPolls, st.TotalPosts, st.TotalBallots,
		st.UniqueParticipants, st.TotalUsers, st.TotalChannels)
	if st.MostActiveChannel != "" {
		text += fmt.Sprintf("\nMost active: %s (%d posts)",
			telegram.At(st.MostActiveChannel), st.MostActiveChannelN)
	}
	h.reply(ctx, msg.Chat.ID, text)
}

// handleDelVote removes a channel's active poll together with all of
// its posts and ballots.
func (h *Handler) handleDelVote(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isOwner(msg.From.ID) {
		return
	}
	channel, ok := parseChannelName(msg.CommandArguments())
	if !ok {
		h.reply(ctx, msg.Chat.ID, "Usage: /delvote @channel")
		return
	}

	posts, err := h.store.DeleteActivePoll(ctx, channel)
	if errors.Is(err, storage.ErrNotFound) {
		h.reply(ctx, msg.Chat.ID,
			fmt.Sprintf("No active poll for %s.", telegram.At(channel)))
		return
	}
	if err != nil {
		h.log.Error("poll deletion failed", zap.String("channel", channel), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, "Could not delete the poll. Please try again.")
		return
	}
	h.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"🗑 Poll for %s deleted along with %d participation posts.",
		telegram.At(channel), posts))
	h.notifyLog(ctx, fmt.Sprintf("🗑 Poll in %s deleted by owner", telegram.At(channel)))
}

// handleBroadcast targets all users by default; "/broadcast channels"
// targets every channel the bot has polled in.
func (h *Handler) handleBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isOwner(msg.From.ID) {
		return
	}
	if strings.TrimSpace(msg.CommandArguments()) == "channels" {
		h.setPending(msg.Chat.ID, pendingBroadcastChannels)
		h.reply(ctx, msg.Chat.ID, "Send the message to broadcast to all channels.")
		return
	}
	h.setPending(msg.Chat.ID, pendingBroadcastUsers)
	h.reply(ctx, msg.Chat.ID, "Send the message to broadcast to all users.")
}

// runBroadcast consumes the broadcast text and fans it out. Only one
// broadcast may run at a time.
func (h *Handler) runBroadcast(ctx context.Context, msg *tgbotapi.Message, state pendingState) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		h.reply(ctx, msg.Chat.ID, "Broadcast cancelled: empty message.")
		return
	}

	h.reply(ctx, msg.Chat.ID, "Broadcast started…")
	var (
		res *broadcast.Result
		err error
	)
	if state == pendingBroadcastChannels {
		res, err = h.bcast.SendToChannels(ctx, msg.From.ID, text)
	} else {
		res, err = h.bcast.SendToUsers(ctx, msg.From.ID, text)
	}
	if errors.Is(err, broadcast.ErrBusy) {
		h.reply(ctx, msg.Chat.ID, "Another broadcast is still running. Try later.")
		return
	}
	if err != nil {
		h.log.Error("broadcast failed", zap.Error(err))
		h.reply(ctx, msg.Chat.ID, "Broadcast failed partway. Check the logs.")
		return
	}
	h.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"📣 Broadcast done: %d sent, %d failed out of %d.",
		res.Succeeded, res.Failed, res.Total))
}
