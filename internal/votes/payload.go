package votes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// payloadPrefix marks vote callbacks so the dispatcher can route them
// without parsing the rest.
const payloadPrefix = "channel_vote_"

// maxCallbackData is the platform's limit on callback button payloads.
// Payloads past it are rejected with BUTTON_DATA_INVALID at send time,
// so the publisher checks before creating anything.
const maxCallbackData = 64

// ErrBadPayload is returned for callback data this bot never produced.
var ErrBadPayload = errors.New("votes: malformed callback payload")

// lastUID holds the microsecond stamp of the most recently minted post
// id, so two participations landing in the same microsecond still get
// distinct ids.
var lastUID atomic.Int64

// NewPostUID mints a participation post id from its owner and a
// strictly increasing microsecond timestamp.
func NewPostUID(userID int64) string {
	now := time.Now().UnixMicro()
	for {
		last := lastUID.Load()
		if now <= last {
			now = last + 1
		}
		if lastUID.CompareAndSwap(last, now) {
			return fmt.Sprintf("%d_%d", userID, now)
		}
	}
}

// BuildPayload encodes a vote button's callback data.
func BuildPayload(channel, postUID string) string {
	return payloadPrefix + channel + "_" + postUID
}

// IsVotePayload reports whether callback data belongs to a vote button.
func IsVotePayload(data string) bool {
	return strings.HasPrefix(data, payloadPrefix)
}

// ParsePayload splits callback data back into channel and post uid.
//
// The channel name may itself contain underscores, so the payload is
// scanned from the right: the post uid is always the trailing two
// numeric segments, and everything before them is the channel.
func ParsePayload(data string) (channel, postUID string, err error) {
	rest, ok := strings.CutPrefix(data, payloadPrefix)
	if !ok {
		return "", "", ErrBadPayload
	}
	parts := strings.Split(rest, "_")
	if len(parts) < 3 {
		return "", "", ErrBadPayload
	}
	userPart := parts[len(parts)-2]
	timePart := parts[len(parts)-1]
	if !numeric(userPart) || !numeric(timePart) {
		return "", "", ErrBadPayload
	}
	channel = strings.Join(parts[:len(parts)-2], "_")
	if channel == "" {
		return "", "", ErrBadPayload
	}
	return channel, userPart + "_" + timePart, nil
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
