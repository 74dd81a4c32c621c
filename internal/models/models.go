package models

import "time"

// VotePoll is the top level entity: voting is open for one channel.
type VotePoll struct {
	ID                string
	ChannelUsername   string
	ChannelID         int64
	CreatorID         int64
	MessageID         int
	Emoji             string
	ParticipationLink string
	CreatedAt         time.Time
	Active            bool
}

// ParticipationPost is one published card voters vote on. PostUID is minted
// per participation event, so the same user participating twice gets two
// independent posts with independent counts.
type ParticipationPost struct {
	PostUID         string
	PollID          string
	UserID          int64
	Username        string
	FirstName       string
	ChannelUsername string
	MessageID       int
	// VoteCount caches the ballot count for display. The ballots table is
	// the source of truth; this field is recomputed, never incremented.
	VoteCount int
	CreatedAt time.Time
}

// Ballot is a single voter's vote on a single participation post.
// (VoterID, PostUID) is unique, enforced by the store.
type Ballot struct {
	VoterID         int64
	PostUID         string
	ParticipantID   int64
	ChannelUsername string
	CreatedAt       time.Time
}

// User is a bot user recorded on /start, used for broadcast and stats.
type User struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	FirstSeen time.Time
	LastSeen  time.Time
}

// Channel is a channel a poll was created for, kept for broadcast and stats.
type Channel struct {
	Username     string
	ChannelID    int64
	Title        string
	AddedBy      int64
	AddedAt      time.Time
	LastPollAt   time.Time
	PollsCreated int
}

// Stats is the aggregate view behind the owner /stats command.
type Stats struct {
	ActivePolls        int
	TotalPolls         int
	TotalPosts         int
	TotalBallots       int
	UniqueParticipants int
	TotalUsers         int
	TotalChannels      int
	MostActiveChannel  string
	MostActiveChannelN int
}

// BroadcastLog records one owner broadcast run.
type BroadcastLog struct {
	ID        string
	Kind      string
	SentBy    int64
	Total     int
	Succeeded int
	Failed    int
	SentAt    time.Time
}
