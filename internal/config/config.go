package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment configuration.
type Config struct {
	BotToken    string
	BotUsername string
	DatabaseDSN string
	RedisURL    string
	LogLevel    string

	// OwnerID is the only account allowed to run admin and broadcast commands.
	OwnerID int64

	// SupportChannel and UpdateChannel are required subscriptions for every
	// voter and participant, on top of the poll's own target channel.
	SupportChannel string
	UpdateChannel  string

	// LogChannelID receives participation and sweep reports when non-zero.
	LogChannelID int64

	// SweepInterval is how often the reconciliation sweep revalidates voters.
	SweepInterval time.Duration

	// VoteEmojis is the pool a new poll picks its display emoji from.
	VoteEmojis []string
}

// Load reads configuration from .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BotToken:       os.Getenv("BOT_TOKEN"),
		BotUsername:    getenv("BOT_USERNAME", ""),
		DatabaseDSN:    os.Getenv("POSTGRES_DSN"),
		RedisURL:       os.Getenv("REDIS_URL"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		OwnerID:        getenvInt64("OWNER_ID", 0),
		SupportChannel: getenv("SUPPORT_CHANNEL", "@vote_support"),
		UpdateChannel:  getenv("UPDATE_CHANNEL", "@vote_updates"),
		LogChannelID:   getenvInt64("LOG_CHANNEL_ID", 0),
		SweepInterval:  time.Duration(getenvInt64("SWEEP_INTERVAL", 5)) * time.Minute,
		VoteEmojis:     []string{"⚡", "🔥", "💎", "🎯", "🚀", "⭐", "💫", "🌟", "✨", "🎭"},
	}

	if cfg.BotToken == "" {
		return cfg, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.DatabaseDSN == "" {
		return cfg, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.SweepInterval <= 0 {
		return cfg, fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return cfg, nil
}

// RequiredChannels returns the gating set for a poll targeting channel:
// the support and update channels plus the target itself, normalized to
// bare usernames with duplicates and blanks dropped.
func (c Config) RequiredChannels(channel string) []string {
	seen := make(map[string]bool, 3)
	var out []string
	for _, ch := range []string{c.SupportChannel, c.UpdateChannel, channel} {
		ch = strings.TrimPrefix(ch, "@")
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
