package subscription

import (
	"context"

	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/telegram"
)

// CheckResult is the outcome of gating a user against a channel set.
type CheckResult struct {
	AllSubscribed bool
	Missing       []string
}

// Oracle answers whether a user currently belongs to a channel. It is the
// sole source of truth for subscription gating and never returns an error:
// provider failures resolve to a boolean under the policy below.
type Oracle struct {
	client telegram.Client
	log    *zap.Logger
}

func New(client telegram.Client, log *zap.Logger) *Oracle {
	return &Oracle{client: client, log: log}
}

// IsSubscribed reports whether the user belongs to the channel.
//
// Policy: a Forbidden answer means the bot lacks privilege to check the
// channel, and resolves to true so verification gaps never block real
// subscribers. A missing user or unreachable channel resolves to false.
func (o *Oracle) IsSubscribed(ctx context.Context, userID int64, channel string) bool {
	status, err := o.client.GetMembership(ctx, channel, userID)
	if err == nil {
		return status.Subscribed()
	}
	switch telegram.KindOf(err) {
	case telegram.KindForbidden:
		o.log.Debug("membership check lacks privilege, failing open",
			zap.String("channel", channel), zap.Int64("user_id", userID))
		return true
	case telegram.KindNotFound:
		return false
	default:
		o.log.Debug("membership check failed",
			zap.String("channel", channel), zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
}

// AllSubscribed checks the user against every channel in the set and
// names the ones still missing.
func (o *Oracle) AllSubscribed(ctx context.Context, userID int64, channels []string) CheckResult {
	var missing []string
	for _, ch := range channels {
		if !o.IsSubscribed(ctx, userID, ch) {
			missing = append(missing, ch)
		}
	}
	return CheckResult{AllSubscribed: len(missing) == 0, Missing: missing}
}
