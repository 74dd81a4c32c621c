package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/models"
	"github.com/nottyvote/votebot/internal/subscription"
	"github.com/nottyvote/votebot/internal/telegram"
	"github.com/nottyvote/votebot/internal/votes"
)

// Store is the slice of storage the background jobs depend on.
type Store interface {
	ListActivePolls(ctx context.Context) ([]models.VotePoll, error)
	BallotsByChannel(ctx context.Context, channel string) ([]models.Ballot, error)
	DeleteVoterBallots(ctx context.Context, voterID int64, channel string) (int64, error)
	PostByUID(ctx context.Context, uid string) (*models.ParticipationPost, error)
	CountBallots(ctx context.Context, uid string) (int, error)
	SetCachedCount(ctx context.Context, uid string, count int) (bool, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// Oracle gates voters on channel membership.
type Oracle interface {
	AllSubscribed(ctx context.Context, userID int64, channels []string) subscription.CheckResult
}

// ReconcileArgs triggers one reconciliation sweep across all active
// polls. Carries no payload; the sweep always scans everything.
type ReconcileArgs struct{}

func (ReconcileArgs) Kind() string { return "reconcile_ballots" }

// ReconcileWorker revokes ballots whose voters have since left a
// required channel, then restores the cached counts and buttons.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileArgs]
	store        Store
	oracle       Oracle
	chat         telegram.Client
	required     func(channel string) []string
	logChannelID int64
	log          *zap.Logger
}

func NewReconcileWorker(store Store, oracle Oracle, chat telegram.Client, required func(string) []string, logChannelID int64, log *zap.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		store:        store,
		oracle:       oracle,
		chat:         chat,
		required:     required,
		logChannelID: logChannelID,
		log:          log,
	}
}

func (w *ReconcileWorker) Work(ctx context.Context, job *river.Job[ReconcileArgs]) error {
	polls, err := w.store.ListActivePolls(ctx)
	if err != nil {
		return fmt.Errorf("list active polls: %w", err)
	}

	var revoked int64
	for _, poll := range polls {
		// The store filters malformed channel references too, but a bad
		// row must never take down the sweep.
		if len(poll.ChannelUsername) < 2 {
			w.log.Warn("skipping poll with malformed channel",
				zap.String("poll_id", poll.ID))
			continue
		}
		n, err := w.sweepPoll(ctx, &poll)
		if err != nil {
			// One broken poll must not starve the rest of the sweep.
			w.log.Warn("poll sweep failed",
				zap.String("poll_id", poll.ID),
				zap.String("channel", poll.ChannelUsername),
				zap.Error(err))
			continue
		}
		revoked += n
	}
	if revoked > 0 {
		w.log.Info("reconciliation sweep revoked ballots",
			zap.Int64("revoked", revoked), zap.Int("polls", len(polls)))
		if w.logChannelID != 0 {
			text := fmt.Sprintf("🧹 Sweep revoked %d ballots across %d active polls",
				revoked, len(polls))
			if err := w.chat.SendMessage(ctx, w.logChannelID, text); err != nil {
				w.log.Debug("sweep report post failed", zap.Error(err))
			}
		}
	}
	return nil
}

// sweepPoll checks every voter in one channel and revokes the ballots
// of those no longer subscribed. Returns how many ballots were removed.
func (w *ReconcileWorker) sweepPoll(ctx context.Context, poll *models.VotePoll) (int64, error) {
	ballots, err := w.store.BallotsByChannel(ctx, poll.ChannelUsername)
	if err != nil {
		return 0, fmt.Errorf("load ballots: %w", err)
	}

	byVoter := make(map[int64][]models.Ballot)
	for _, b := range ballots {
		byVoter[b.VoterID] = append(byVoter[b.VoterID], b)
	}

	required := w.required(poll.ChannelUsername)
	var revoked int64
	for voterID, voterBallots := range byVoter {
		gate := w.oracle.AllSubscribed(ctx, voterID, required)
		if gate.AllSubscribed {
			continue
		}
		n, err := w.store.DeleteVoterBallots(ctx, voterID, poll.ChannelUsername)
		if err != nil {
			w.log.Warn("ballot revocation failed",
				zap.Int64("voter_id", voterID),
				zap.String("channel", poll.ChannelUsername),
				zap.Error(err))
			continue
		}
		revoked += n
		for _, b := range voterBallots {
			w.restorePost(ctx, poll, b.PostUID)
		}
	}
	return revoked, nil
}

// restorePost recomputes one post's count after revocation and repaints
// its button. Both steps are best effort; the ballots table already
// holds the truth.
func (w *ReconcileWorker) restorePost(ctx context.Context, poll *models.VotePoll, postUID string) {
	count, err := w.store.CountBallots(ctx, postUID)
	if err != nil {
		w.log.Warn("post recount failed", zap.String("post_uid", postUID), zap.Error(err))
		return
	}
	if _, err := w.store.SetCachedCount(ctx, postUID, count); err != nil {
		w.log.Warn("cached count update failed", zap.String("post_uid", postUID), zap.Error(err))
	}

	post, err := w.store.PostByUID(ctx, postUID)
	if err != nil || post.MessageID == 0 {
		return
	}
	btn := telegram.Button{
		Text:         fmt.Sprintf("%s %d", poll.Emoji, count),
		CallbackData: votes.BuildPayload(poll.ChannelUsername, postUID),
	}
	if err := w.chat.EditButton(ctx, telegram.At(poll.ChannelUsername), post.MessageID, btn); err != nil {
		w.log.Warn("vote button repaint failed",
			zap.String("post_uid", postUID), zap.Error(err))
	}
}
