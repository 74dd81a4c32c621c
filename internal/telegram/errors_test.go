package telegram

import (
	"errors"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		in   error
		kind ErrKind
	}{
		{"rate limit", rateLimitErr(7), KindRateLimited},
		{"forbidden", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was kicked"}, KindForbidden},
		{"chat not found", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}, KindNotFound},
		{"user not found", &tgbotapi.Error{Code: 400, Message: "Bad Request: user not found"}, KindNotFound},
		{"other 400", &tgbotapi.Error{Code: 400, Message: "Bad Request: message is too long"}, KindUnknown},
		{"wrapped", fmt.Errorf("send: %w", &tgbotapi.Error{Code: 403, Message: "Forbidden"}), KindForbidden},
		{"plain error", errors.New("dial tcp: timeout"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(classify(tc.in)))
		})
	}
}

func rateLimitErr(seconds int) *tgbotapi.Error {
	return &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: seconds},
	}
}

func TestClassifyRetryAfter(t *testing.T) {
	err := classify(rateLimitErr(7))
	var ce *ChatError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 7*time.Second, ce.RetryAfter)
}

func TestMembershipSubscribed(t *testing.T) {
	assert.True(t, MemberStatusCreator.Subscribed())
	assert.True(t, MemberStatusRestricted.Subscribed())
	assert.False(t, MemberStatusLeft.Subscribed())
	assert.False(t, MemberStatusKicked.Subscribed())
	assert.False(t, Membership("unknown").Subscribed())
}

func TestAt(t *testing.T) {
	assert.Equal(t, "@chan", At("chan"))
	assert.Equal(t, "@chan", At("@chan"))
}
