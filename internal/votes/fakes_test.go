package votes

import (
	"context"
	"sync"

	"github.com/nottyvote/votebot/internal/models"
	"github.com/nottyvote/votebot/internal/storage"
	"github.com/nottyvote/votebot/internal/subscription"
	"github.com/nottyvote/votebot/internal/telegram"
)

// fakeStore is an in-memory Store for protocol tests. The ballot map
// mirrors the database's composite key so duplicate casts fail the same
// way.
type fakeStore struct {
	mu      sync.Mutex
	polls   map[string]*models.VotePoll           // by id
	active  map[string]*models.VotePoll           // by channel
	posts   map[string]*models.ParticipationPost  // by uid
	ballots map[string]map[int64]models.Ballot    // post uid -> voter id

	createPostErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		polls:   make(map[string]*models.VotePoll),
		active:  make(map[string]*models.VotePoll),
		posts:   make(map[string]*models.ParticipationPost),
		ballots: make(map[string]map[int64]models.Ballot),
	}
}

func (f *fakeStore) addPoll(p *models.VotePoll) {
	f.polls[p.ID] = p
	if p.Active {
		f.active[p.ChannelUsername] = p
	}
}

func (f *fakeStore) addPost(p *models.ParticipationPost) {
	f.posts[p.PostUID] = p
}

func (f *fakeStore) ActivePollByChannel(ctx context.Context, channel string) (*models.VotePoll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.active[channel]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) PollByID(ctx context.Context, id string) (*models.VotePoll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.polls[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) CreateParticipationPost(ctx context.Context, p *models.ParticipationPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createPostErr != nil {
		return f.createPostErr
	}
	cp := *p
	f.posts[p.PostUID] = &cp
	return nil
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

func (f *fakeStore) SetPostMessageID(ctx context.Context, uid string, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.posts[uid]; ok {
		p.MessageID = messageID
	}
	return nil
}

func (f *fakeStore) CastBallot(ctx context.Context, b *models.Ballot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	voters, ok := f.ballots[b.PostUID]
	if !ok {
		voters = make(map[int64]models.Ballot)
		f.ballots[b.PostUID] = voters
	}
	if _, dup := voters[b.VoterID]; dup {
		return storage.ErrDuplicateBallot
	}
	voters[b.VoterID] = *b
	return nil
}

func (f *fakeStore) FindBallot(ctx context.Context, voterID int64, uid string) (*models.Ballot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.ballots[uid][voterID]; ok {
		return &b, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) RetractBallot(ctx context.Context, voterID int64, uid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ballots[uid][voterID]; !ok {
		return false, nil
	}
	delete(f.ballots[uid], voterID)
	return true, nil
}

func (f *fakeStore) CountBallots(ctx context.Context, uid string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ballots[uid]), nil
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

// fakeOracle marks specific (user, channel) pairs as unsubscribed;
// everything else passes.
type fakeOracle struct {
	unsubscribed map[int64]map[string]bool
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{unsubscribed: make(map[int64]map[string]bool)}
}

func (f *fakeOracle) leave(userID int64, channel string) {
	if f.unsubscribed[userID] == nil {
		f.unsubscribed[userID] = make(map[string]bool)
	}
	f.unsubscribed[userID][channel] = true
}

func (f *fakeOracle) AllSubscribed(ctx context.Context, userID int64, channels []string) subscription.CheckResult {
	var missing []string
	for _, ch := range channels {
		if f.unsubscribed[userID][ch] {
			missing = append(missing, ch)
		}
	}
	return subscription.CheckResult{AllSubscribed: len(missing) == 0, Missing: missing}
}

type cardCall struct {
	Channel string
	Body    string
	Btn     telegram.Button
}

type editCall struct {
	Channel   string
	MessageID int
	Btn       telegram.Button
}

// fakeChat records outbound calls and fails on demand.
type fakeChat struct {
	mu    sync.Mutex
	cards []cardCall
	edits []editCall

	nextMessageID int
	sendErr       error
	editErr       error
}

func newFakeChat() *fakeChat {
	return &fakeChat{nextMessageID: 100}
}

func (f *fakeChat) SendCard(ctx context.Context, channel, body string, btn telegram.Button) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.cards = append(f.cards, cardCall{Channel: channel, Body: body, Btn: btn})
	f.nextMessageID++
	return f.nextMessageID, nil
}

func (f *fakeChat) EditButton(ctx context.Context, channel string, messageID int, btn telegram.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, editCall{Channel: channel, MessageID: messageID, Btn: btn})
	return nil
}

func (f *fakeChat) GetMembership(ctx context.Context, channel string, userID int64) (telegram.Membership, error) {
	return telegram.MemberStatusMember, nil
}

func (f *fakeChat) SendMessage(ctx context.Context, chatID int64, text string) error { return nil }

func (f *fakeChat) SendToChannel(ctx context.Context, channel string, text string) error { return nil }

func (f *fakeChat) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return nil
}
