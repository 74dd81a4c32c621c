package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/telegram"
	"github.com/nottyvote/votebot/internal/votes"
)

const helpText = `🗳 Vote bot commands:

/vote - create a voting poll for your channel
/start - join a poll via its participation link
/track - look up vote details for a participant or post
/help - this message

Participants join through the poll's link and get a vote card posted in
the channel. Voting requires being subscribed to the listed channels.`

// handleStart greets a new user, or, when the deep-link payload names a
// channel, enrolls the user into that channel's active poll.
func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	payload := strings.TrimSpace(msg.CommandArguments())
	if payload == "" {
		h.reply(ctx, msg.Chat.ID, fmt.Sprintf(
			"👋 Hi %s!\n\n%s", msg.From.FirstName, helpText))
		return
	}

	channel := strings.TrimPrefix(payload, "@")
	user := votes.Participant{
		ID:        msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
	}

	post, err := h.pub.Publish(ctx, user, channel)
	var notSub *votes.NotSubscribedError
	switch {
	case errors.As(err, &notSub):
		h.reply(ctx, msg.Chat.ID, joinPrompt(notSub.Missing))
	case errors.Is(err, votes.ErrNoActivePoll):
		h.reply(ctx, msg.Chat.ID,
			fmt.Sprintf("There is no active poll for %s right now.", telegram.At(channel)))
	case errors.Is(err, votes.ErrChannelTooLong):
		h.reply(ctx, msg.Chat.ID,
			"This channel's name is too long for vote buttons. "+
				"Ask the poll creator to use a shorter channel username.")
	case err != nil:
		h.log.Warn("participation failed", zap.String("channel", channel), zap.Error(err))
		h.reply(ctx, msg.Chat.ID,
			"Could not publish your card right now. Please try again in a minute.")
	default:
		h.reply(ctx, msg.Chat.ID, fmt.Sprintf(
			"🎉 You are in! Your card is live in %s.\nShare it and collect votes.",
			telegram.At(post.ChannelUsername)))
		h.notifyLog(ctx, fmt.Sprintf("➕ %s (%d) joined the poll in %s",
			user.FirstName, user.ID, telegram.At(channel)))
	}
}

func joinPrompt(missing []string) string {
	var b strings.Builder
	b.WriteString("To continue, join these channels first:\n")
	for _, ch := range missing {
		b.WriteString("  • ")
		b.WriteString(telegram.At(ch))
		b.WriteString("\n")
	}
	b.WriteString("\nThen press the link or button again.")
	return b.String()
}
