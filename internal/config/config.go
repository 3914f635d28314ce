package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrMissingToken       = errors.New("DISCORD_TOKEN is required")
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
)

type Config struct {
	DiscordToken      string
	DatabaseURL       string
	RedisURL          string
	Port              string
	SweepInterval     time.Duration
	Location          *time.Location
	LogLevel          string
	LogWebhookURL     string
	SendRatePerSecond float64
}

// Load reads the configuration from the environment. The Discord token and
// the database URL are required; everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		DiscordToken:  GetEnv("DISCORD_TOKEN", ""),
		DatabaseURL:   GetEnv("DATABASE_URL", ""),
		RedisURL:      GetEnv("REDIS_URL", ""),
		Port:          GetEnv("PORT", "8080"),
		LogLevel:      GetEnv("LOG_LEVEL", "info"),
		LogWebhookURL: GetEnv("LOG_DISCORD_WEBHOOK", ""),
	}

	if cfg.DiscordToken == "" {
		return nil, ErrMissingToken
	}
	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}

	interval, err := time.ParseDuration(GetEnv("SWEEP_INTERVAL", "1m"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid SWEEP_INTERVAL")
	}
	if interval < time.Second {
		return nil, errors.Errorf("SWEEP_INTERVAL must be at least 1s, got %s", interval)
	}
	cfg.SweepInterval = interval

	cfg.Location = time.Local
	if tz := GetEnv("TIMEZONE", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, errors.Wrap(err, "invalid TIMEZONE")
		}
		cfg.Location = loc
	}

	sendRate, err := strconv.ParseFloat(GetEnv("SEND_RATE_PER_SECOND", "5"), 64)
	if err != nil || sendRate <= 0 {
		return nil, errors.Errorf("invalid SEND_RATE_PER_SECOND %q", os.Getenv("SEND_RATE_PER_SECOND"))
	}
	cfg.SendRatePerSecond = sendRate

	return cfg, nil
}

// GetEnv retrieves values from environment files based on the key it matches,
// returns a string (value) if not empty
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
