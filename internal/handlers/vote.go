package handlers

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/models"
	"github.com/nottyvote/votebot/internal/telegram"
)

// channelNameRe matches a public channel username, with or without the
// leading @ or a t.me link prefix already stripped.
var channelNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)

// handleVote starts the poll-creation dialog by asking which channel
// the poll is for.
func (h *Handler) handleVote(ctx context.Context, msg *tgbotapi.Message) {
	h.setPending(msg.Chat.ID, pendingChannel)
	h.reply(ctx, msg.Chat.ID,
		"Send me your channel username (like @mychannel).\n\n"+
			"The bot must be an admin there so it can post vote cards.")
}

// createPoll consumes the channel name the user was asked for and
// starts a new poll, replacing any previous active poll for the channel.
func (h *Handler) createPoll(ctx context.Context, msg *tgbotapi.Message) {
	channel, ok := parseChannelName(msg.Text)
	if !ok {
		h.reply(ctx, msg.Chat.ID,
			"That does not look like a channel username. Run /vote and try again.")
		return
	}

	poll := &models.VotePoll{
		ID:              uuid.NewString(),
		ChannelUsername: channel,
		CreatorID:       msg.From.ID,
		Emoji:           h.cfg.VoteEmojis[rand.Intn(len(h.cfg.VoteEmojis))],
		CreatedAt:       time.Now().UTC(),
		Active:          true,
	}
	poll.ParticipationLink = fmt.Sprintf("https://t.me/%s?start=%s", h.cfg.BotUsername, channel)

	if err := h.store.CreateVotePoll(ctx, poll); err != nil {
		h.log.Error("poll creation failed", zap.String("channel", channel), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, "Could not create the poll. Please try again.")
		return
	}
	if err := h.store.SaveChannel(ctx, &models.Channel{
		Username: channel,
		AddedBy:  msg.From.ID,
	}); err != nil {
		h.log.Warn("channel upsert failed", zap.String("channel", channel), zap.Error(err))
	}
	h.announcePoll(ctx, msg.Chat.ID, poll)

	h.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"✅ Poll created for %s %s\n\n"+
			"Participation link:\n%s\n\n"+
			"Share it with your audience. Each participant gets a vote card in the channel.",
		telegram.At(channel), poll.Emoji, poll.ParticipationLink))
	h.notifyLog(ctx, fmt.Sprintf("🗳 New poll in %s by %d", telegram.At(channel), msg.From.ID))
	h.log.Info("poll created",
		zap.String("poll_id", poll.ID),
		zap.String("channel", channel),
		zap.Int64("creator_id", msg.From.ID))
}

// announcePoll posts the voting-started card into the channel. Failure
// usually means the bot is not an admin there; the poll still exists,
// so the creator only gets a warning.
func (h *Handler) announcePoll(ctx context.Context, creatorChatID int64, poll *models.VotePoll) {
	text := fmt.Sprintf("%s Voting is open!", poll.Emoji)
	msgID, err := h.chat.SendCard(ctx, telegram.At(poll.ChannelUsername), text, telegram.Button{
		Text: "🙋 Participate",
		URL:  poll.ParticipationLink,
	})
	if err != nil {
		h.log.Warn("poll announcement failed",
			zap.String("channel", poll.ChannelUsername), zap.Error(err))
		h.reply(ctx, creatorChatID,
			"⚠️ I could not post in the channel. Make me an admin there, "+
				"or participants will only find the poll through the link.")
		return
	}
	poll.MessageID = msgID
	if err := h.store.SetPollMessageID(ctx, poll.ID, msgID); err != nil {
		h.log.Warn("poll message id not recorded", zap.String("poll_id", poll.ID), zap.Error(err))
	}
}

// parseChannelName extracts a bare channel username from free-form user
// input: "@name", "name", or a t.me/name link.
func parseChannelName(input string) (string, bool) {
	s := strings.TrimSpace(input)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = rest
			break
		}
	}
	s = strings.TrimPrefix(s, "@")
	if !channelNameRe.MatchString(s) {
		return "", false
	}
	return s, true
}
