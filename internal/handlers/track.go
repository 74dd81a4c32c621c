package handlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/models"
	"github.com/nottyvote/votebot/internal/storage"
	"github.com/nottyvote/votebot/internal/telegram"
	"github.com/nottyvote/votebot/internal/votes"
)

const trackUsage = `📊 Track vote details

Usage:
/track <user_id> - every post by that participant
/track <post_uid> - one post (the id_timestamp from its button)
/track <t.me link containing the participant's id>`

// voter lines per reply, so a popular post does not overflow the
// message limit.
const maxVoterLines = 20

var (
	postUIDRe = regexp.MustCompile(`^\d+_\d+$`)
	linkIDRe  = regexp.MustCompile(`\d{6,15}`)
)

// trackTarget is the parsed argument of /track: exactly one of the
// fields is set.
type trackTarget struct {
	postUID string
	userID  int64
}

// parseTrackTarget classifies free-form input as a post uid, a numeric
// user id, or a link containing one.
func parseTrackTarget(input string) (trackTarget, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return trackTarget{}, false
	}
	if postUIDRe.MatchString(s) {
		return trackTarget{postUID: s}, true
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
		return trackTarget{userID: id}, true
	}
	if strings.Contains(s, "t.me/") {
		if m := linkIDRe.FindString(s); m != "" {
			id, err := strconv.ParseInt(m, 10, 64)
			if err == nil {
				return trackTarget{userID: id}, true
			}
		}
	}
	return trackTarget{}, false
}

// handleTrack answers a vote-details lookup for a participant or a
// single participation post. Read-only.
func (h *Handler) handleTrack(ctx context.Context, msg *tgbotapi.Message) {
	target, ok := parseTrackTarget(msg.CommandArguments())
	if !ok {
		h.reply(ctx, msg.Chat.ID, trackUsage)
		return
	}

	if target.postUID != "" {
		h.trackPost(ctx, msg.Chat.ID, target.postUID)
		return
	}
	h.trackParticipant(ctx, msg.Chat.ID, target.userID)
}

func (h *Handler) trackPost(ctx context.Context, chatID int64, postUID string) {
	post, err := h.store.PostByUID(ctx, postUID)
	if errors.Is(err, storage.ErrNotFound) {
		h.reply(ctx, chatID, "No participation post with that id.")
		return
	}
	if err != nil {
		h.log.Error("track lookup failed", zap.String("post_uid", postUID), zap.Error(err))
		h.reply(ctx, chatID, "Tracking is unavailable right now.")
		return
	}
	ballots, err := h.store.BallotsByPost(ctx, postUID)
	if err != nil {
		h.log.Error("track ballots lookup failed", zap.String("post_uid", postUID), zap.Error(err))
		h.reply(ctx, chatID, "Tracking is unavailable right now.")
		return
	}
	h.reply(ctx, chatID, formatPostDetails(post, ballots))
}

func (h *Handler) trackParticipant(ctx context.Context, chatID int64, userID int64) {
	posts, err := h.store.PostsByParticipant(ctx, userID)
	if err != nil {
		h.log.Error("track participant lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		h.reply(ctx, chatID, "Tracking is unavailable right now.")
		return
	}
	if len(posts) == 0 {
		h.reply(ctx, chatID, fmt.Sprintf("No participation found for user %d.", userID))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Participant %d: %d post(s)\n", userID, len(posts))
	total := 0
	for i, p := range posts {
		total += p.VoteCount
		fmt.Fprintf(&b, "\n%d. %s in %s — %d vote(s)\n   uid: %s",
			i+1, displayLabel(&p), telegram.At(p.ChannelUsername), p.VoteCount, p.PostUID)
	}
	fmt.Fprintf(&b, "\n\nTotal votes: %d\nUse /track <uid> for voter details.", total)
	h.reply(ctx, chatID, b.String())
}

func formatPostDetails(post *models.ParticipationPost, ballots []models.Ballot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Post %s\n", post.PostUID)
	fmt.Fprintf(&b, "Participant: %s (%d)\n", displayLabel(post), post.UserID)
	fmt.Fprintf(&b, "Channel: %s\n", telegram.At(post.ChannelUsername))
	fmt.Fprintf(&b, "Votes: %d\n", len(ballots))

	if len(ballots) == 0 {
		return b.String()
	}
	b.WriteString("\nVoters:")
	for i, bl := range ballots {
		if i == maxVoterLines {
			fmt.Fprintf(&b, "\n… and %d more", len(ballots)-maxVoterLines)
			break
		}
		fmt.Fprintf(&b, "\n%d. %d at %s", i+1, bl.VoterID,
			bl.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func displayLabel(post *models.ParticipationPost) string {
	if post.FirstName != "" {
		return post.FirstName
	}
	if post.Username != "" {
		return "@" + post.Username
	}
	return fmt.Sprintf("user %d", post.UserID)
}

// handleUnvote removes one voter's ballot from one post. Owner-only;
// this is the manual counterpart of the reconciliation sweep.
func (h *Handler) handleUnvote(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isOwner(msg.From.ID) {
		return
	}
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) != 2 {
		h.reply(ctx, msg.Chat.ID, "Usage: /unvote <voter_id> <post_uid>")
		return
	}
	voterID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || voterID <= 0 {
		h.reply(ctx, msg.Chat.ID, "Usage: /unvote <voter_id> <post_uid>")
		return
	}

	res, err := h.votes.Retract(ctx, voterID, fields[1])
	switch {
	case errors.Is(err, votes.ErrBallotNotFound):
		h.reply(ctx, msg.Chat.ID, "No ballot from that voter on that post.")
	case errors.Is(err, votes.ErrPostNotFound):
		h.reply(ctx, msg.Chat.ID, "No participation post with that id.")
	case err != nil:
		h.log.Error("ballot retraction failed",
			zap.Int64("voter_id", voterID), zap.String("post_uid", fields[1]), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, "Could not remove the ballot. Please try again.")
	default:
		h.reply(ctx, msg.Chat.ID, fmt.Sprintf(
			"🗑 Ballot removed. Post %s now has %d vote(s).", fields[1], res.Count))
	}
}
