package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nottyvote/votebot/internal/models"
)

// ErrNotFound is returned when a poll, post or ballot does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicateBallot is returned by CastBallot when the (voter, post)
// pair already holds a ballot. The primary key on ballots enforces this;
// callers never need a prior read.
var ErrDuplicateBallot = errors.New("storage: duplicate ballot")

// Store owns the vote_polls, participation_posts and ballots collections,
// plus the user/channel registry used by broadcast and stats.
type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() { s.Pool.Close() }

// WaitReady pings the database until it answers or the deadline passes.
func (s *Store) WaitReady(ctx context.Context) error {
	deadline := time.Now().Add(2 * time.Minute)
	for {
		if err := s.Pool.Ping(ctx); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not ready after timeout")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vote_polls (
			id TEXT PRIMARY KEY,
			channel_username TEXT NOT NULL,
			channel_id BIGINT NOT NULL DEFAULT 0,
			creator_id BIGINT NOT NULL,
			message_id INT NOT NULL DEFAULT 0,
			emoji TEXT NOT NULL DEFAULT '⚡',
			participation_link TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS vote_polls_channel_active
			ON vote_polls (channel_username) WHERE active`,
		`CREATE TABLE IF NOT EXISTS participation_posts (
			post_uid TEXT PRIMARY KEY,
			poll_id TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			channel_username TEXT NOT NULL,
			message_id INT NOT NULL DEFAULT 0,
			vote_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS participation_posts_poll
			ON participation_posts (poll_id)`,
		`CREATE TABLE IF NOT EXISTS ballots (
			voter_id BIGINT NOT NULL,
			post_uid TEXT NOT NULL,
			participant_id BIGINT NOT NULL,
			channel_username TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (voter_id, post_uid)
		)`,
		`CREATE INDEX IF NOT EXISTS ballots_channel ON ballots (channel_username)`,
		`CREATE INDEX IF NOT EXISTS ballots_post ON ballots (post_uid)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			first_seen TIMESTAMPTZ NOT NULL,
			last_seen TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS channels (
			channel_username TEXT PRIMARY KEY,
			channel_id BIGINT NOT NULL DEFAULT 0,
			title TEXT NOT NULL DEFAULT '',
			added_by BIGINT NOT NULL,
			added_at TIMESTAMPTZ NOT NULL,
			last_poll_at TIMESTAMPTZ NOT NULL,
			polls_created INT NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS broadcast_logs (
			broadcast_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			sent_by BIGINT NOT NULL,
			total INT NOT NULL,
			succeeded INT NOT NULL,
			failed INT NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL
		)`,
		// One-time normalization of the legacy "channel" column shape. A
		// table old enough to carry "channel" may predate "channel_username"
		// entirely, so the target column is added before the backfill.
		`DO $$ BEGIN
			IF EXISTS (SELECT 1 FROM information_schema.columns
				WHERE table_name = 'vote_polls' AND column_name = 'channel') THEN
				ALTER TABLE vote_polls
					ADD COLUMN IF NOT EXISTS channel_username TEXT NOT NULL DEFAULT '';
				UPDATE vote_polls SET channel_username = channel
					WHERE channel_username = '' OR channel_username IS NULL;
				ALTER TABLE vote_polls DROP COLUMN channel;
			END IF;
		END $$`,
	}
	for _, st := range stmts {
		if _, err := s.Pool.Exec(ctx, st); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// --- Vote polls ---

// CreateVotePoll inserts a poll and deactivates any prior active poll for
// the same channel in the same transaction, keeping at most one active
// poll per channel.
func (s *Store) CreateVotePoll(ctx context.Context, p *models.VotePoll) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE vote_polls SET active = FALSE WHERE channel_username = $1 AND active`,
		p.ChannelUsername)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO vote_polls (
		id, channel_username, channel_id, creator_id, message_id, emoji,
		participation_link, created_at, active
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE)`,
		p.ID, p.ChannelUsername, p.ChannelID, p.CreatorID, p.MessageID,
		p.Emoji, p.ParticipationLink, p.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ActivePollByChannel(ctx context.Context, channel string) (*models.VotePoll, error) {
	row := s.Pool.QueryRow(ctx, `SELECT id, channel_username, channel_id, creator_id,
		message_id, emoji, participation_link, created_at, active
		FROM vote_polls WHERE channel_username = $1 AND active`, channel)
	return scanPoll(row)
}

func (s *Store) PollByID(ctx context.Context, id string) (*models.VotePoll, error) {
	row := s.Pool.QueryRow(ctx, `SELECT id, channel_username, channel_id, creator_id,
		message_id, emoji, participation_link, created_at, active
		FROM vote_polls WHERE id = $1`, id)
	return scanPoll(row)
}

func scanPoll(row pgx.Row) (*models.VotePoll, error) {
	var p models.VotePoll
	err := row.Scan(&p.ID, &p.ChannelUsername, &p.ChannelID, &p.CreatorID,
		&p.MessageID, &p.Emoji, &p.ParticipationLink, &p.CreatedAt, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SetPollMessageID(ctx context.Context, id string, messageID int) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE vote_polls SET message_id = $2 WHERE id = $1`, id, messageID)
	return err
}

func (s *Store) DeletePoll(ctx context.Context, id string) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM vote_polls WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeletePollPosts removes every participation post owned by the poll,
// together with their ballots, and reports how many posts were deleted.
func (s *Store) DeletePollPosts(ctx context.Context, pollID string) (int64, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `DELETE FROM ballots WHERE post_uid IN
		(SELECT post_uid FROM participation_posts WHERE poll_id = $1)`, pollID)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM participation_posts WHERE poll_id = $1`, pollID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), tx.Commit(ctx)
}

// ListActivePolls returns active polls with a usable channel reference.
// Rows with an empty or malformed channel are filtered here so the sweep
// never trips over them.
func (s *Store) ListActivePolls(ctx context.Context) ([]models.VotePoll, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, channel_username, channel_id, creator_id,
		message_id, emoji, participation_link, created_at, active
		FROM vote_polls WHERE active AND length(channel_username) >= 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var polls []models.VotePoll
	for rows.Next() {
		var p models.VotePoll
		if err := rows.Scan(&p.ID, &p.ChannelUsername, &p.ChannelID, &p.CreatorID,
			&p.MessageID, &p.Emoji, &p.ParticipationLink, &p.CreatedAt, &p.Active); err != nil {
			return nil, err
		}
		polls = append(polls, p)
	}
	return polls, rows.Err()
}

// --- Participation posts ---

func (s *Store) CreateParticipationPost(ctx context.Context, p *models.ParticipationPost) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO participation_posts (
		post_uid, poll_id, user_id, username, first_name, channel_username,
		message_id, vote_count, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.PostUID, p.PollID, p.UserID, p.Username, p.FirstName,
		p.ChannelUsername, p.MessageID, p.VoteCount, p.CreatedAt)
	return err
}

func (s *Store) PostByUID(ctx context.Context, uid string) (*models.ParticipationPost, error) {
	var p models.ParticipationPost
	err := s.Pool.QueryRow(ctx, `SELECT post_uid, poll_id, user_id, username,
		first_name, channel_username, message_id, vote_count, created_at
		FROM participation_posts WHERE post_uid = $1`, uid).
		Scan(&p.PostUID, &p.PollID, &p.UserID, &p.Username, &p.FirstName,
			&p.ChannelUsername, &p.MessageID, &p.VoteCount, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PostsByParticipant returns every participation post a user has
// created, newest first. Backs the vote-tracking lookup.
func (s *Store) PostsByParticipant(ctx context.Context, userID int64) ([]models.ParticipationPost, error) {
	rows, err := s.Pool.Query(ctx, `SELECT post_uid, poll_id, user_id, username,
		first_name, channel_username, message_id, vote_count, created_at
		FROM participation_posts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.ParticipationPost
	for rows.Next() {
		var p models.ParticipationPost
		if err := rows.Scan(&p.PostUID, &p.PollID, &p.UserID, &p.Username, &p.FirstName,
			&p.ChannelUsername, &p.MessageID, &p.VoteCount, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) SetPostMessageID(ctx context.Context, uid string, messageID int) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE participation_posts SET message_id = $2 WHERE post_uid = $1`,
		uid, messageID)
	return err
}

// --- Ballots ---

// CastBallot inserts a ballot. The composite primary key turns a second
// vote by the same voter on the same post into ErrDuplicateBallot without
// any prior read, so concurrent duplicate clicks cannot race.
func (s *Store) CastBallot(ctx context.Context, b *models.Ballot) error {
	tag, err := s.Pool.Exec(ctx, `INSERT INTO ballots (
		voter_id, post_uid, participant_id, channel_username, created_at
	) VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (voter_id, post_uid) DO NOTHING`,
		b.VoterID, b.PostUID, b.ParticipantID, b.ChannelUsername, b.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateBallot
	}
	return nil
}

func (s *Store) FindBallot(ctx context.Context, voterID int64, uid string) (*models.Ballot, error) {
	var b models.Ballot
	err := s.Pool.QueryRow(ctx, `SELECT voter_id, post_uid, participant_id,
		channel_username, created_at FROM ballots
		WHERE voter_id = $1 AND post_uid = $2`, voterID, uid).
		Scan(&b.VoterID, &b.PostUID, &b.ParticipantID, &b.ChannelUsername, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// RetractBallot deletes one ballot. Retracting an absent ballot is a
// no-op reported as false.
func (s *Store) RetractBallot(ctx context.Context, voterID int64, uid string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM ballots WHERE voter_id = $1 AND post_uid = $2`, voterID, uid)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountBallots recomputes the authoritative count from the ballots table.
func (s *Store) CountBallots(ctx context.Context, uid string) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ballots WHERE post_uid = $1`, uid).Scan(&n)
	return n, err
}

func (s *Store) SetCachedCount(ctx context.Context, uid string, count int) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE participation_posts SET vote_count = $2 WHERE post_uid = $1`,
		uid, count)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// BallotsByPost returns every ballot on one participation post, oldest
// first.
func (s *Store) BallotsByPost(ctx context.Context, uid string) ([]models.Ballot, error) {
	rows, err := s.Pool.Query(ctx, `SELECT voter_id, post_uid, participant_id,
		channel_username, created_at FROM ballots WHERE post_uid = $1
		ORDER BY created_at`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ballots []models.Ballot
	for rows.Next() {
		var b models.Ballot
		if err := rows.Scan(&b.VoterID, &b.PostUID, &b.ParticipantID,
			&b.ChannelUsername, &b.CreatedAt); err != nil {
			return nil, err
		}
		ballots = append(ballots, b)
	}
	return ballots, rows.Err()
}

// BallotsByChannel returns every ballot cast in a channel, across all of
// its participation posts. The sweep groups these by voter.
func (s *Store) BallotsByChannel(ctx context.Context, channel string) ([]models.Ballot, error) {
	rows, err := s.Pool.Query(ctx, `SELECT voter_id, post_uid, participant_id,
		channel_username, created_at FROM ballots WHERE channel_username = $1
		ORDER BY voter_id`, channel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ballots []models.Ballot
	for rows.Next() {
		var b models.Ballot
		if err := rows.Scan(&b.VoterID, &b.PostUID, &b.ParticipantID,
			&b.ChannelUsername, &b.CreatedAt); err != nil {
			return nil, err
		}
		ballots = append(ballots, b)
	}
	return ballots, rows.Err()
}

// DeleteVoterBallots bulk-deletes all of one voter's ballots in a channel.
func (s *Store) DeleteVoterBallots(ctx context.Context, voterID int64, channel string) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM ballots WHERE voter_id = $1 AND channel_username = $2`,
		voterID, channel)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
