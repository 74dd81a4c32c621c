package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nottyvote/votebot/internal/models"
)

// SaveUser upserts a bot user. Called on every /start.
func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	_, err := s.Pool.Exec(ctx, `INSERT INTO users (
		user_id, username, first_name, last_name, first_seen, last_seen
	) VALUES ($1,$2,$3,$4,$5,$5)
	ON CONFLICT (user_id) DO UPDATE SET
		username = EXCLUDED.username,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		last_seen = EXCLUDED.last_seen`,
		u.UserID, u.Username, u.FirstName, u.LastName, now)
	return err
}

// SaveChannel upserts a channel record, bumping its poll counter.
func (s *Store) SaveChannel(ctx context.Context, c *models.Channel) error {
	now := time.Now().UTC()
	_, err := s.Pool.Exec(ctx, `INSERT INTO channels (
		channel_username, channel_id, title, added_by, added_at, last_poll_at, polls_created
	) VALUES ($1,$2,$3,$4,$5,$5,1)
	ON CONFLICT (channel_username) DO UPDATE SET
		channel_id = EXCLUDED.channel_id,
		title = EXCLUDED.title,
		last_poll_at = EXCLUDED.last_poll_at,
		polls_created = channels.polls_created + 1`,
		c.Username, c.ChannelID, c.Title, c.AddedBy, now)
	return err
}

// AllUserIDs returns every known user id, most recently seen first.
func (s *Store) AllUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT user_id FROM users ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllChannelUsernames returns every known channel username.
func (s *Store) AllChannelUsernames(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT channel_username FROM channels ORDER BY last_poll_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) LogBroadcast(ctx context.Context, l *models.BroadcastLog) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO broadcast_logs (
		broadcast_id, kind, sent_by, total, succeeded, failed, sent_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (broadcast_id) DO NOTHING`,
		l.ID, l.Kind, l.SentBy, l.Total, l.Succeeded, l.Failed, l.SentAt)
	return err
}

// Stats aggregates the read-only numbers behind the owner /stats command.
func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	var st models.Stats
	err := s.Pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM vote_polls WHERE active),
		(SELECT COUNT(*) FROM vote_polls),
		(SELECT COUNT(*) FROM participation_posts),
		(SELECT COUNT(*) FROM ballots),
		(SELECT COUNT(DISTINCT user_id) FROM participation_posts),
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM channels)`).
		Scan(&st.ActivePolls, &st.TotalPolls, &st.TotalPosts, &st.TotalBallots,
			&st.UniqueParticipants, &st.TotalUsers, &st.TotalChannels)
	if err != nil {
		return nil, err
	}

	// Most active channel by participation posts; absent rows leave the
	// zero values in place.
	row := s.Pool.QueryRow(ctx, `SELECT channel_username, COUNT(*) AS n
		FROM participation_posts GROUP BY channel_username
		ORDER BY n DESC LIMIT 1`)
	if err := row.Scan(&st.MostActiveChannel, &st.MostActiveChannelN); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return &st, nil
}
