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

// handleCallback answers a vote-button press. Every outcome produces a
// callback answer so the client's spinner always resolves.
func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || !votes.IsVotePayload(cb.Data) {
		h.answer(ctx, cb.ID, "", false)
		return
	}

	res, err := h.votes.Vote(ctx, cb.From.ID, cb.Data)
	var notSub *votes.NotSubscribedError
	switch {
	case err == nil:
		h.answer(ctx, cb.ID, fmt.Sprintf("✅ Vote counted! Total: %d", res.Count), false)
	case errors.Is(err, votes.ErrAlreadyVoted):
		h.answer(ctx, cb.ID, "You already voted for this participant.", false)
	case errors.As(err, &notSub):
		h.answer(ctx, cb.ID, "❗ Join first: "+atList(notSub.Missing), true)
	case errors.Is(err, votes.ErrPostNotFound), errors.Is(err, votes.ErrBadPayload):
		h.answer(ctx, cb.ID, "This voting has ended.", true)
	default:
		h.log.Error("vote failed", zap.Int64("voter_id", cb.From.ID), zap.Error(err))
		h.answer(ctx, cb.ID, "Something went wrong. Try again.", false)
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := h.chat.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		h.log.Debug("callback answer failed", zap.Error(err))
	}
}

func atList(channels []string) string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = telegram.At(ch)
	}
	return strings.Join(out, ", ")
}
