package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/models"
)

// pollTTL bounds staleness of cached active-poll lookups. Poll creation
// and deletion invalidate eagerly, so the TTL only covers missed
// invalidations.
const pollTTL = 10 * time.Minute

// Cache is a read-through cache for active-poll lookups. A nil redis
// client turns every method into a no-op, so the bot runs unchanged
// without a REDIS_URL.
type Cache struct {
	rdb *redis.Client
	log *zap.Logger
}

// New connects to redis at the given URL. An empty URL yields a
// disabled cache rather than an error.
func New(ctx context.Context, url string, log *zap.Logger) (*Cache, error) {
	if url == "" {
		log.Info("redis not configured, poll cache disabled")
		return &Cache{log: log}, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{rdb: rdb, log: log}, nil
}

func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func pollKey(channel string) string {
	return "votebot:poll:" + channel
}

// ActivePoll returns the cached active poll for a channel, or nil on a
// miss. Cache errors are logged and reported as misses.
func (c *Cache) ActivePoll(ctx context.Context, channel string) *models.VotePoll {
	if c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, pollKey(channel)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("poll cache read failed", zap.String("channel", channel), zap.Error(err))
		}
		return nil
	}
	var poll models.VotePoll
	if err := json.Unmarshal(raw, &poll); err != nil {
		c.log.Warn("poll cache entry corrupt", zap.String("channel", channel), zap.Error(err))
		return nil
	}
	return &poll
}

// SetActivePoll stores the active poll for its channel.
func (c *Cache) SetActivePoll(ctx context.Context, poll *models.VotePoll) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(poll)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, pollKey(poll.ChannelUsername), raw, pollTTL).Err(); err != nil {
		c.log.Warn("poll cache write failed",
			zap.String("channel", poll.ChannelUsername), zap.Error(err))
	}
}

// InvalidatePoll drops the cached poll for a channel. Called whenever a
// poll is created or deleted for that channel.
func (c *Cache) InvalidatePoll(ctx context.Context, channel string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, pollKey(channel)).Err(); err != nil {
		c.log.Warn("poll cache invalidation failed", zap.String("channel", channel), zap.Error(err))
	}
}
