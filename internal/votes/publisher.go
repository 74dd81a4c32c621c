package votes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/models"
	"github.com/nottyvote/votebot/internal/storage"
	"github.com/nottyvote/votebot/internal/telegram"
)

// Participant identifies the user joining a poll.
type Participant struct {
	ID        int64
	Username  string
	FirstName string
}

func (p Participant) displayName() string {
	if p.FirstName != "" {
		return p.FirstName
	}
	if p.Username != "" {
		return "@" + p.Username
	}
	return fmt.Sprintf("user %d", p.ID)
}

// Publisher enrolls a participant into a channel's active poll and
// publishes their card into the channel.
type Publisher struct {
	store    Store
	oracle   Oracle
	chat     telegram.Client
	required func(channel string) []string
	log      *zap.Logger
}

func NewPublisher(store Store, oracle Oracle, chat telegram.Client, required func(string) []string, log *zap.Logger) *Publisher {
	return &Publisher{store: store, oracle: oracle, chat: chat, required: required, log: log}
}

// Publish records the participation and posts the vote card.
//
// The post record is written before the card goes out, and publish
// failures do not roll it back. A post whose card never landed keeps a
// zero message id and simply collects no votes until republished.
func (p *Publisher) Publish(ctx context.Context, user Participant, channel string) (*models.ParticipationPost, error) {
	poll, err := p.store.ActivePollByChannel(ctx, channel)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoActivePoll
	}
	if err != nil {
		return nil, fmt.Errorf("load poll: %w", err)
	}

	gate := p.oracle.AllSubscribed(ctx, user.ID, p.required(channel))
	if !gate.AllSubscribed {
		return nil, &NotSubscribedError{Missing: gate.Missing}
	}

	uid := NewPostUID(user.ID)
	if len(BuildPayload(poll.ChannelUsername, uid)) > maxCallbackData {
		return nil, ErrChannelTooLong
	}

	post := &models.ParticipationPost{
		PostUID:         uid,
		PollID:          poll.ID,
		UserID:          user.ID,
		Username:        user.Username,
		FirstName:       user.FirstName,
		ChannelUsername: poll.ChannelUsername,
		CreatedAt:       time.Now().UTC(),
	}
	if err := p.store.CreateParticipationPost(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	body := fmt.Sprintf("👤 %s\n\nVote for this participant in %s %s",
		user.displayName(), telegram.At(poll.ChannelUsername), poll.Emoji)
	btn := voteButton(poll.Emoji, 0, poll.ChannelUsername, post.PostUID)

	msgID, err := p.chat.SendCard(ctx, telegram.At(poll.ChannelUsername), body, btn)
	if err != nil {
		p.log.Warn("participation card publish failed",
			zap.String("post_uid", post.PostUID),
			zap.String("channel", poll.ChannelUsername),
			zap.Error(err))
		return post, fmt.Errorf("publish card: %w", err)
	}
	post.MessageID = msgID
	if err := p.store.SetPostMessageID(ctx, post.PostUID, msgID); err != nil {
		p.log.Warn("post message id not recorded",
			zap.String("post_uid", post.PostUID), zap.Error(err))
	}
	return post, nil
}
