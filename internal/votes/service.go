package votes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/models"
	"github.com/nottyvote/votebot/internal/storage"
	"github.com/nottyvote/votebot/internal/subscription"
	"github.com/nottyvote/votebot/internal/telegram"
)

var (
	// ErrPostNotFound is returned when a vote targets a participation
	// post that no longer exists, usually after /delvote.
	ErrPostNotFound = errors.New("votes: participation post not found")

	// ErrAlreadyVoted is returned when the voter already holds a ballot
	// on the post.
	ErrAlreadyVoted = errors.New("votes: already voted")

	// ErrNoActivePoll is returned when a channel has no running poll.
	ErrNoActivePoll = errors.New("votes: no active poll for channel")

	// ErrBallotNotFound is returned when a retraction targets a ballot
	// that does not exist. Retraction is idempotent; this is an outcome,
	// not a failure.
	ErrBallotNotFound = errors.New("votes: ballot not found")

	// ErrChannelTooLong is returned when a channel name pushes the vote
	// button's callback payload past the platform limit.
	ErrChannelTooLong = errors.New("votes: channel name too long for vote button payload")
)

// NotSubscribedError rejects a voter or participant who has not joined
// every required channel. Missing lists the channels still to join.
type NotSubscribedError struct {
	Missing []string
}

func (e *NotSubscribedError) Error() string {
	return "votes: not subscribed to " + strings.Join(e.Missing, ", ")
}

// Store is the slice of storage the voting flows depend on.
type Store interface {
	ActivePollByChannel(ctx context.Context, channel string) (*models.VotePoll, error)
	PollByID(ctx context.Context, id string) (*models.VotePoll, error)
	CreateParticipationPost(ctx context.Context, p *models.ParticipationPost) error
	PostByUID(ctx context.Context, uid string) (*models.ParticipationPost, error)
	SetPostMessageID(ctx context.Context, uid string, messageID int) error
	CastBallot(ctx context.Context, b *models.Ballot) error
	FindBallot(ctx context.Context, voterID int64, uid string) (*models.Ballot, error)
	RetractBallot(ctx context.Context, voterID int64, uid string) (bool, error)
	CountBallots(ctx context.Context, uid string) (int, error)
	SetCachedCount(ctx context.Context, uid string, count int) (bool, error)
}

// Oracle gates users on channel membership.
type Oracle interface {
	AllSubscribed(ctx context.Context, userID int64, channels []string) subscription.CheckResult
}

// Service runs the voting protocol: one callback press either becomes a
// ballot or a typed rejection.
type Service struct {
	store    Store
	oracle   Oracle
	chat     telegram.Client
	required func(channel string) []string
	log      *zap.Logger
}

func NewService(store Store, oracle Oracle, chat telegram.Client, required func(string) []string, log *zap.Logger) *Service {
	return &Service{store: store, oracle: oracle, chat: chat, required: required, log: log}
}

// VoteResult reports an accepted ballot back to the handler.
type VoteResult struct {
	Post  *models.ParticipationPost
	Count int
}

// Vote processes one vote-button press.
//
// The ballot insert is the only admission point: its uniqueness is
// enforced by the store, so two concurrent presses by the same voter
// resolve to exactly one ballot. The count shown afterwards is always
// recomputed from ballots, never incremented.
func (s *Service) Vote(ctx context.Context, voterID int64, payload string) (*VoteResult, error) {
	_, postUID, err := ParsePayload(payload)
	if err != nil {
		return nil, err
	}

	post, err := s.store.PostByUID(ctx, postUID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}

	// The post row is the authority on which channel gates this vote,
	// not the payload.
	gate := s.oracle.AllSubscribed(ctx, voterID, s.required(post.ChannelUsername))
	if !gate.AllSubscribed {
		return nil, &NotSubscribedError{Missing: gate.Missing}
	}

	err = s.store.CastBallot(ctx, &models.Ballot{
		VoterID:         voterID,
		PostUID:         post.PostUID,
		ParticipantID:   post.UserID,
		ChannelUsername: post.ChannelUsername,
		CreatedAt:       time.Now().UTC(),
	})
	if errors.Is(err, storage.ErrDuplicateBallot) {
		return nil, ErrAlreadyVoted
	}
	if err != nil {
		return nil, fmt.Errorf("cast ballot: %w", err)
	}

	count, err := s.store.CountBallots(ctx, post.PostUID)
	if err != nil {
		return nil, fmt.Errorf("count ballots: %w", err)
	}
	if _, err := s.store.SetCachedCount(ctx, post.PostUID, count); err != nil {
		s.log.Warn("cached count update failed",
			zap.String("post_uid", post.PostUID), zap.Error(err))
	}
	s.refreshButton(ctx, post, count)

	return &VoteResult{Post: post, Count: count}, nil
}

// Retract removes one voter's ballot from a post by administrative
// request, then restores the cached count and button. Retracting an
// absent ballot is a no-op reported as ErrBallotNotFound.
func (s *Service) Retract(ctx context.Context, voterID int64, postUID string) (*VoteResult, error) {
	if _, err := s.store.FindBallot(ctx, voterID, postUID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBallotNotFound
		}
		return nil, fmt.Errorf("find ballot: %w", err)
	}

	removed, err := s.store.RetractBallot(ctx, voterID, postUID)
	if err != nil {
		return nil, fmt.Errorf("retract ballot: %w", err)
	}
	if !removed {
		// Raced with another retraction; same outcome.
		return nil, ErrBallotNotFound
	}

	post, err := s.store.PostByUID(ctx, postUID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}

	count, err := s.store.CountBallots(ctx, postUID)
	if err != nil {
		return nil, fmt.Errorf("count ballots: %w", err)
	}
	if _, err := s.store.SetCachedCount(ctx, postUID, count); err != nil {
		s.log.Warn("cached count update failed",
			zap.String("post_uid", postUID), zap.Error(err))
	}
	s.refreshButton(ctx, post, count)

	return &VoteResult{Post: post, Count: count}, nil
}

// refreshButton rewrites the post's vote button with the fresh count.
// The ballot is already durable, so edit failures are logged and
// swallowed.
func (s *Service) refreshButton(ctx context.Context, post *models.ParticipationPost, count int) {
	if post.MessageID == 0 {
		return
	}
	emoji := s.pollEmoji(ctx, post.PollID)
	btn := voteButton(emoji, count, post.ChannelUsername, post.PostUID)
	if err := s.chat.EditButton(ctx, telegram.At(post.ChannelUsername), post.MessageID, btn); err != nil {
		s.log.Warn("vote button refresh failed",
			zap.String("post_uid", post.PostUID),
			zap.String("channel", post.ChannelUsername),
			zap.Error(err))
	}
}

func (s *Service) pollEmoji(ctx context.Context, pollID string) string {
	poll, err := s.store.PollByID(ctx, pollID)
	if err != nil || poll.Emoji == "" {
		return "⚡"
	}
	return poll.Emoji
}

func voteButton(emoji string, count int, channel, postUID string) telegram.Button {
	return telegram.Button{
		Text:         fmt.Sprintf("%s %d", emoji, count),
		CallbackData: BuildPayload(channel, postUID),
	}
}
