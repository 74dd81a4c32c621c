package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nottyvote/votebot/internal/models"
	"github.com/nottyvote/votebot/internal/storage"
	"github.com/nottyvote/votebot/internal/subscription"
	"github.com/nottyvote/votebot/internal/telegram"
)

type fakeStore struct {
	mu      sync.Mutex
	polls   []models.VotePoll
	posts   map[string]*models.ParticipationPost
	ballots map[string][]models.Ballot // channel -> ballots

	ballotsErr map[string]error
	queried    []string
	stats      *models.Stats
}

func newJobStore() *fakeStore {
	return &fakeStore{
		posts:      make(map[string]*models.ParticipationPost),
		ballots:    make(map[string][]models.Ballot),
		ballotsErr: make(map[string]error),
	}
}

func (f *fakeStore) ListActivePolls(ctx context.Context) ([]models.VotePoll, error) {
	return f.polls, nil
}

func (f *fakeStore) BallotsByChannel(ctx context.Context, channel string) ([]models.Ballot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, channel)
	if err := f.ballotsErr[channel]; err != nil {
		return nil, err
	}
	return f.ballots[channel], nil
}

func (f *fakeStore) DeleteVoterBallots(ctx context.Context, voterID int64, channel string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []models.Ballot
	var n int64
	for _, b := range f.ballots[channel] {
		if b.VoterID == voterID {
			n++
			continue
		}
		kept = append(kept, b)
	}
	f.ballots[channel] = kept
	return n, nil
}

func (f *fakeStore) PostByUID(ctx context.Context, uid string) (*models.ParticipationPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[uid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) CountBallots(ctx context.Context, uid string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, ballots := range f.ballots {
		for _, b := range ballots {
			if b.PostUID == uid {
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeStore) SetCachedCount(ctx context.Context, uid string, count int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[uid]
	if !ok {
		return false, nil
	}
	p.VoteCount = count
	return true, nil
}

func (f *fakeStore) Stats(ctx context.Context) (*models.Stats, error) {
	if f.stats == nil {
		return nil, errors.New("no stats")
	}
	return f.stats, nil
}

type fakeOracle struct {
	left map[int64]bool // voters no longer subscribed anywhere
}

func (f *fakeOracle) AllSubscribed(ctx context.Context, userID int64, channels []string) subscription.CheckResult {
	if f.left[userID] {
		return subscription.CheckResult{Missing: channels}
	}
	return subscription.CheckResult{AllSubscribed: true}
}

type editCall struct {
	Channel   string
	MessageID int
	Btn       telegram.Button
}

type fakeChat struct {
	mu    sync.Mutex
	edits []editCall
	msgs  map[int64][]string
}

func newFakeChat() *fakeChat {
	return &fakeChat{msgs: make(map[int64][]string)}
}

func (f *fakeChat) SendCard(ctx context.Context, channel, body string, btn telegram.Button) (int, error) {
	return 0, nil
}

func (f *fakeChat) EditButton(ctx context.Context, channel string, messageID int, btn telegram.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editCall{Channel: channel, MessageID: messageID, Btn: btn})
	return nil
}

func (f *fakeChat) GetMembership(ctx context.Context, channel string, userID int64) (telegram.Membership, error) {
	return telegram.MemberStatusMember, nil
}

func (f *fakeChat) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[chatID] = append(f.msgs[chatID], text)
	return nil
}

func (f *fakeChat) SendToChannel(ctx context.Context, channel string, text string) error { return nil }

func (f *fakeChat) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return nil
}

func requiredFor(channel string) []string {
	return []string{"support", channel}
}

func ballot(voterID int64, postUID, channel string) models.Ballot {
	return models.Ballot{VoterID: voterID, PostUID: postUID, ChannelUsername: channel}
}

func TestReconcileRevokesUnsubscribedVoter(t *testing.T) {
	store := newJobStore()
	store.polls = []models.VotePoll{
		{ID: "poll-1", ChannelUsername: "chan1", Emoji: "🔥", Active: true},
	}
	store.posts["a_1"] = &models.ParticipationPost{PostUID: "a_1", MessageID: 11, VoteCount: 2}
	store.posts["b_2"] = &models.ParticipationPost{PostUID: "b_2", MessageID: 22, VoteCount: 1}
	store.ballots["chan1"] = []models.Ballot{
		ballot(42, "a_1", "chan1"),
		ballot(42, "b_2", "chan1"),
		ballot(43, "a_1", "chan1"),
	}
	oracle := &fakeOracle{left: map[int64]bool{42: true}}
	chat := newFakeChat()

	w := NewReconcileWorker(store, oracle, chat, requiredFor, 0, zaptest.NewLogger(t))
	err := w.Work(context.Background(), &river.Job[ReconcileArgs]{Args: ReconcileArgs{}})
	require.NoError(t, err)

	// Voter 42's ballots are gone, voter 43's remain.
	remaining := store.ballots["chan1"]
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(43), remaining[0].VoterID)

	// Counts were recomputed from what is left, not decremented.
	assert.Equal(t, 1, store.posts["a_1"].VoteCount)
	assert.Equal(t, 0, store.posts["b_2"].VoteCount)

	// Both affected posts had their buttons repainted.
	require.Len(t, chat.edits, 2)
	for _, e := range chat.edits {
		assert.Equal(t, "@chan1", e.Channel)
	}
}

func TestReconcileLeavesSubscribedVotersAlone(t *testing.T) {
	store := newJobStore()
	store.polls = []models.VotePoll{
		{ID: "poll-1", ChannelUsername: "chan1", Emoji: "🔥", Active: true},
	}
	store.posts["a_1"] = &models.ParticipationPost{PostUID: "a_1", MessageID: 11, VoteCount: 1}
	store.ballots["chan1"] = []models.Ballot{ballot(43, "a_1", "chan1")}
	oracle := &fakeOracle{}
	chat := newFakeChat()

	w := NewReconcileWorker(store, oracle, chat, requiredFor, 0, zaptest.NewLogger(t))
	err := w.Work(context.Background(), &river.Job[ReconcileArgs]{Args: ReconcileArgs{}})
	require.NoError(t, err)

	assert.Len(t, store.ballots["chan1"], 1)
	assert.Empty(t, chat.edits)
}

func TestReconcileIsolatesBrokenPolls(t *testing.T) {
	store := newJobStore()
	store.polls = []models.VotePoll{
		{ID: "poll-1", ChannelUsername: "broken", Active: true},
		{ID: "poll-2", ChannelUsername: "chan2", Emoji: "⭐", Active: true},
	}
	store.ballotsErr["broken"] = errors.New("connection reset")
	store.posts["c_3"] = &models.ParticipationPost{PostUID: "c_3", MessageID: 33, VoteCount: 1}
	store.ballots["chan2"] = []models.Ballot{ballot(42, "c_3", "chan2")}
	oracle := &fakeOracle{left: map[int64]bool{42: true}}
	chat := newFakeChat()

	w := NewReconcileWorker(store, oracle, chat, requiredFor, 0, zaptest.NewLogger(t))
	err := w.Work(context.Background(), &river.Job[ReconcileArgs]{Args: ReconcileArgs{}})
	require.NoError(t, err, "one broken channel must not fail the sweep")

	assert.Empty(t, store.ballots["chan2"], "the healthy poll was still swept")
}

func TestReconcileSkipsMalformedChannels(t *testing.T) {
	store := newJobStore()
	store.polls = []models.VotePoll{
		{ID: "poll-1", ChannelUsername: "", Active: true},
		{ID: "poll-2", ChannelUsername: "x", Active: true},
		{ID: "poll-3", ChannelUsername: "chan3", Emoji: "⭐", Active: true},
	}
	store.ballots["chan3"] = []models.Ballot{ballot(43, "a_1", "chan3")}
	oracle := &fakeOracle{}
	chat := newFakeChat()

	w := NewReconcileWorker(store, oracle, chat, requiredFor, 0, zaptest.NewLogger(t))
	err := w.Work(context.Background(), &river.Job[ReconcileArgs]{Args: ReconcileArgs{}})
	require.NoError(t, err)

	// Only the well-formed channel was swept.
	assert.Equal(t, []string{"chan3"}, store.queried)
}

func TestReconcileReportsToLogChannel(t *testing.T) {
	store := newJobStore()
	store.polls = []models.VotePoll{
		{ID: "poll-1", ChannelUsername: "chan1", Emoji: "🔥", Active: true},
	}
	store.posts["a_1"] = &models.ParticipationPost{PostUID: "a_1", MessageID: 11, VoteCount: 1}
	store.ballots["chan1"] = []models.Ballot{ballot(42, "a_1", "chan1")}
	oracle := &fakeOracle{left: map[int64]bool{42: true}}
	chat := newFakeChat()

	w := NewReconcileWorker(store, oracle, chat, requiredFor, 777, zaptest.NewLogger(t))
	err := w.Work(context.Background(), &river.Job[ReconcileArgs]{Args: ReconcileArgs{}})
	require.NoError(t, err)

	require.Len(t, chat.msgs[777], 1)
	assert.Contains(t, chat.msgs[777][0], "revoked 1 ballots")
}

func TestDailyReportPostsToLogChannel(t *testing.T) {
	store := newJobStore()
	store.stats = &models.Stats{
		ActivePolls: 2, TotalPolls: 5, TotalPosts: 7, TotalBallots: 31,
		UniqueParticipants: 6, TotalUsers: 40, TotalChannels: 3,
		MostActiveChannel: "chan1", MostActiveChannelN: 4,
	}
	chat := newFakeChat()

	w := NewDailyReportWorker(store, chat, 777, zaptest.NewLogger(t))
	err := w.Work(context.Background(), &river.Job[DailyReportArgs]{Args: DailyReportArgs{}})
	require.NoError(t, err)

	require.Len(t, chat.msgs[777], 1)
	report := chat.msgs[777][0]
	assert.Contains(t, report, "Ballots: 31")
	assert.Contains(t, report, "@chan1")
}

func TestDailyReportSkipsWithoutLogChannel(t *testing.T) {
	store := newJobStore()
	chat := newFakeChat()

	w := NewDailyReportWorker(store, chat, 0, zaptest.NewLogger(t))
	err := w.Work(context.Background(), &river.Job[DailyReportArgs]{Args: DailyReportArgs{}})
	require.NoError(t, err)
	assert.Empty(t, chat.msgs)
}
