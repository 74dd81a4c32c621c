package cache

import (
	"context"

	"github.com/nottyvote/votebot/internal/models"
	"github.com/nottyvote/votebot/internal/storage"
)

// PollStore layers the poll cache over the database store. Only the
// active-poll lookup is cached; every write goes straight through and
// invalidates the channel's entry.
type PollStore struct {
	*storage.Store
	cache *Cache
}

func NewPollStore(store *storage.Store, c *Cache) *PollStore {
	return &PollStore{Store: store, cache: c}
}

func (ps *PollStore) ActivePollByChannel(ctx context.Context, channel string) (*models.VotePoll, error) {
	if poll := ps.cache.ActivePoll(ctx, channel); poll != nil {
		return poll, nil
	}
	poll, err := ps.Store.ActivePollByChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	ps.cache.SetActivePoll(ctx, poll)
	return poll, nil
}

func (ps *PollStore) CreateVotePoll(ctx context.Context, p *models.VotePoll) error {
	if err := ps.Store.CreateVotePoll(ctx, p); err != nil {
		return err
	}
	ps.cache.InvalidatePoll(ctx, p.ChannelUsername)
	return nil
}

// DeleteActivePoll removes a channel's active poll along with its posts
// and ballots, and drops the cache entry.
func (ps *PollStore) DeleteActivePoll(ctx context.Context, channel string) (posts int64, err error) {
	poll, err := ps.Store.ActivePollByChannel(ctx, channel)
	if err != nil {
		return 0, err
	}
	posts, err = ps.Store.DeletePollPosts(ctx, poll.ID)
	if err != nil {
		return 0, err
	}
	if _, err := ps.Store.DeletePoll(ctx, poll.ID); err != nil {
		return posts, err
	}
	ps.cache.InvalidatePoll(ctx, channel)
	return posts, nil
}
