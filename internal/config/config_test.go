package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresTokenAndDSN(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("POSTGRES_DSN", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("BOT_TOKEN", "123:abc")
	_, err = Load()
	require.Error(t, err, "still missing the DSN")

	t.Setenv("POSTGRES_DSN", "postgres://localhost/votebot")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.BotToken)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.NotEmpty(t, cfg.VoteEmojis)
}

func TestLoadSweepInterval(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/votebot")
	t.Setenv("SWEEP_INTERVAL", "15")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
}

func TestRequiredChannels(t *testing.T) {
	cfg := Config{SupportChannel: "@support", UpdateChannel: "updates"}

	got := cfg.RequiredChannels("@mychannel")
	assert.Equal(t, []string{"support", "updates", "mychannel"}, got)

	// The target channel may coincide with a required one.
	got = cfg.RequiredChannels("support")
	assert.Equal(t, []string{"support", "updates"}, got)

	// Blanks are dropped rather than passed to membership checks.
	cfg = Config{SupportChannel: "@support"}
	got = cfg.RequiredChannels("mychannel")
	assert.Equal(t, []string{"support", "mychannel"}, got)
}
