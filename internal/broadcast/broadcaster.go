package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/models"
	"github.com/nottyvote/votebot/internal/telegram"
)

// ErrBusy is returned when a broadcast is already in flight. Only one
// broadcast may run at a time.
var ErrBusy = errors.New("broadcast: another broadcast is running")

// sendPause spaces deliveries out so a large audience does not trip
// the API flood limits on every message.
const sendPause = 50 * time.Millisecond

type Store interface {
	AllUserIDs(ctx context.Context) ([]int64, error)
	AllChannelUsernames(ctx context.Context) ([]string, error)
	LogBroadcast(ctx context.Context, l *models.BroadcastLog) error
}

// Broadcaster fans one message out to every known user. Admission is a
// mutex, not a flag: TryLock makes the single-broadcast rule explicit
// and race free.
type Broadcaster struct {
	mu    sync.Mutex
	store Store
	chat  telegram.Client
	log   *zap.Logger
}

func New(store Store, chat telegram.Client, log *zap.Logger) *Broadcaster {
	return &Broadcaster{store: store, chat: chat, log: log}
}

// Result summarizes one finished broadcast.
type Result struct {
	ID        string
	Total     int
	Succeeded int
	Failed    int
}

// SendToUsers delivers text to every registered user, one at a time.
// Per-user failures (blocked bot, deleted account) are counted, not
// fatal. A second call while one is running returns ErrBusy.
func (b *Broadcaster) SendToUsers(ctx context.Context, sentBy int64, text string) (*Result, error) {
	ids, err := b.store.AllUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, "users", sentBy, text, len(ids), func(i int) error {
		return b.chat.SendMessage(ctx, ids[i], text)
	})
}

// SendToChannels delivers text to every channel the bot has run a poll
// in. Shares the single-admission lock with SendToUsers.
func (b *Broadcaster) SendToChannels(ctx context.Context, sentBy int64, text string) (*Result, error) {
	channels, err := b.store.AllChannelUsernames(ctx)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, "channels", sentBy, text, len(channels), func(i int) error {
		return b.chat.SendToChannel(ctx, telegram.At(channels[i]), text)
	})
}

func (b *Broadcaster) run(ctx context.Context, kind string, sentBy int64, text string, total int, send func(i int) error) (*Result, error) {
	if !b.mu.TryLock() {
		return nil, ErrBusy
	}
	defer b.mu.Unlock()

	res := &Result{ID: uuid.NewString(), Total: total}
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := send(i); err != nil {
			res.Failed++
			b.log.Debug("broadcast delivery failed",
				zap.String("kind", kind), zap.Int("target", i), zap.Error(err))
		} else {
			res.Succeeded++
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(sendPause):
		}
	}

	if err := b.store.LogBroadcast(ctx, &models.BroadcastLog{
		ID:        res.ID,
		Kind:      kind,
		SentBy:    sentBy,
		Total:     res.Total,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		SentAt:    time.Now().UTC(),
	}); err != nil {
		b.log.Warn("broadcast log not recorded", zap.String("broadcast_id", res.ID), zap.Error(err))
	}

	b.log.Info("broadcast finished",
		zap.String("broadcast_id", res.ID),
		zap.String("kind", kind),
		zap.Int("total", res.Total),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed))
	return res, nil
}
