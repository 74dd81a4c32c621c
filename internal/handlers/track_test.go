package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nottyvote/votebot/internal/models"
)

func TestParseTrackTarget(t *testing.T) {
	cases := []struct {
		in       string
		wantUID  string
		wantUser int64
		ok       bool
	}{
		{"9_1756380000000001", "9_1756380000000001", 0, true},
		{"  9_1756380000000001  ", "9_1756380000000001", 0, true},
		{"123456789", "", 123456789, true},
		{"https://t.me/c/123456789/42", "", 123456789, true},
		{"t.me/somechannel/987654321", "", 987654321, true},
		{"", "", 0, false},
		{"-5", "", 0, false},
		{"0", "", 0, false},
		{"not a number", "", 0, false},
		{"https://example.com/123456789", "", 0, false}, // only t.me links
	}
	for _, tc := range cases {
		got, ok := parseTrackTarget(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.wantUID, got.postUID, "input %q", tc.in)
		assert.Equal(t, tc.wantUser, got.userID, "input %q", tc.in)
	}
}

func TestFormatPostDetails(t *testing.T) {
	post := &models.ParticipationPost{
		PostUID:         "9_1756380000000001",
		UserID:          9,
		FirstName:       "Ann",
		ChannelUsername: "mychannel",
	}
	cast := time.Date(2026, 8, 28, 12, 30, 0, 0, time.UTC)
	ballots := []models.Ballot{
		{VoterID: 42, PostUID: post.PostUID, CreatedAt: cast},
		{VoterID: 43, PostUID: post.PostUID, CreatedAt: cast.Add(time.Minute)},
	}

	out := formatPostDetails(post, ballots)
	assert.Contains(t, out, "Ann (9)")
	assert.Contains(t, out, "@mychannel")
	assert.Contains(t, out, "Votes: 2")
	assert.Contains(t, out, "42 at 2026-08-28 12:30:00")
	assert.Contains(t, out, "43 at 2026-08-28 12:31:00")
}

func TestFormatPostDetailsTruncatesVoterList(t *testing.T) {
	post := &models.ParticipationPost{PostUID: "9_1", UserID: 9, ChannelUsername: "mychannel"}
	var ballots []models.Ballot
	for i := 0; i < maxVoterLines+5; i++ {
		ballots = append(ballots, models.Ballot{VoterID: int64(100 + i), PostUID: post.PostUID})
	}

	out := formatPostDetails(post, ballots)
	assert.Contains(t, out, "… and 5 more")
	assert.NotContains(t, out, "124 at", "voters past the cap are not listed")
}
