package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the service.
type Config struct {
	DatabaseURL        string
	JWTSecretKey       string
	TokenEncryptionKey string
	ServerPort         int
	PublicURL          string
	FrontendURL        string
	CORSAllowedOrigins []string

	DiscordClientID     string
	DiscordClientSecret string
	DiscordServerID     string
	DiscordWebhookURL   string
	AdminDiscordIDs     []string
	WebhookSecret       string

	Concept2ClientID     string
	Concept2ClientSecret string
	Concept2BaseURL      string
	Concept2PageDelay    time.Duration

	LeaderboardCacheTTL      time.Duration
	LeaderboardConcurrency   int
	LeaderboardMemberTimeout time.Duration
	LeaderboardTimezone      string
	WeeklySummaryCron        string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	SecretsARN string
}

// Location returns the leaderboard time zone. Validated by Load.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.LeaderboardTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// R2Enabled reports whether every avatar storage setting is present.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("PUBLIC_URL", "http://localhost:8080")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("CONCEPT2_BASE_URL", "https://log.concept2.com")
	v.SetDefault("CONCEPT2_PAGE_DELAY", "100ms")
	v.SetDefault("LEADERBOARD_CACHE_TTL", "300s")
	v.SetDefault("LEADERBOARD_CONCURRENCY", 10)
	v.SetDefault("LEADERBOARD_MEMBER_TIMEOUT", "10s")
	v.SetDefault("LEADERBOARD_TIMEZONE", "UTC")
	v.SetDefault("WEEKLY_SUMMARY_CRON", "0 0 9 * * 1")
	return v
}

func load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL:        v.GetString("DATABASE_URL"),
		JWTSecretKey:       v.GetString("JWT_SECRET_KEY"),
		TokenEncryptionKey: v.GetString("TOKEN_ENCRYPTION_KEY"),
		ServerPort:         v.GetInt("SERVER_PORT"),
		PublicURL:          strings.TrimRight(v.GetString("PUBLIC_URL"), "/"),
		FrontendURL:        strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),

		DiscordClientID:     v.GetString("DISCORD_CLIENT_ID"),
		DiscordClientSecret: v.GetString("DISCORD_CLIENT_SECRET"),
		DiscordServerID:     v.GetString("DISCORD_SERVER_ID"),
		DiscordWebhookURL:   v.GetString("DISCORD_WEBHOOK_URL"),
		AdminDiscordIDs:     splitList(v.GetString("ADMIN_DISCORD_IDS")),
		WebhookSecret:       v.GetString("WEBHOOK_SECRET"),

		Concept2ClientID:     v.GetString("CONCEPT2_CLIENT_ID"),
		Concept2ClientSecret: v.GetString("CONCEPT2_CLIENT_SECRET"),
		Concept2BaseURL:      v.GetString("CONCEPT2_BASE_URL"),
		Concept2PageDelay:    v.GetDuration("CONCEPT2_PAGE_DELAY"),

		LeaderboardCacheTTL:      v.GetDuration("LEADERBOARD_CACHE_TTL"),
		LeaderboardConcurrency:   v.GetInt("LEADERBOARD_CONCURRENCY"),
		LeaderboardMemberTimeout: v.GetDuration("LEADERBOARD_MEMBER_TIMEOUT"),
		LeaderboardTimezone:      v.GetString("LEADERBOARD_TIMEZONE"),
		WeeklySummaryCron:        v.GetString("WEEKLY_SUMMARY_CRON"),

		R2AccountID:       v.GetString("R2_ACCOUNT_ID"),
		R2AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: v.GetString("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      v.GetString("R2_BUCKET_NAME"),
		R2PublicBaseURL:   v.GetString("R2_PUBLIC_BASE_URL"),

		SecretsARN: v.GetString("SECRETS_ARN"),
	}

	cfg.CORSAllowedOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{cfg.FrontendURL}
	}

	if err := cfg.validate(cfg.SecretsARN != ""); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	return c.validate(false)
}

// validate skips missing secret-bearing keys while a secrets ARN is still
// to be applied.
func (c *Config) validate(secretsPending bool) error {
	required := []struct {
		key, value string
	}{
		{"DATABASE_URL", c.DatabaseURL},
		{"JWT_SECRET_KEY", c.JWTSecretKey},
		{"TOKEN_ENCRYPTION_KEY", c.TokenEncryptionKey},
		{"DISCORD_CLIENT_ID", c.DiscordClientID},
		{"DISCORD_CLIENT_SECRET", c.DiscordClientSecret},
		{"DISCORD_SERVER_ID", c.DiscordServerID},
		{"CONCEPT2_CLIENT_ID", c.Concept2ClientID},
		{"CONCEPT2_CLIENT_SECRET", c.Concept2ClientSecret},
	}
	for _, r := range required {
		if r.value == "" {
			if secretsPending && isSecretKey(r.key) {
				continue
			}
			return fmt.Errorf("%s environment variable is not set", r.key)
		}
	}

	if c.DiscordWebhookURL != "" && c.WebhookSecret == "" && !secretsPending {
		return fmt.Errorf("WEBHOOK_SECRET must be set when DISCORD_WEBHOOK_URL is set")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	if c.LeaderboardConcurrency <= 0 {
		return fmt.Errorf("LEADERBOARD_CONCURRENCY must be positive, got %d", c.LeaderboardConcurrency)
	}
	if c.LeaderboardCacheTTL <= 0 {
		return fmt.Errorf("LEADERBOARD_CACHE_TTL must be positive, got %s", c.LeaderboardCacheTTL)
	}
	if c.LeaderboardMemberTimeout <= 0 {
		return fmt.Errorf("LEADERBOARD_MEMBER_TIMEOUT must be positive, got %s", c.LeaderboardMemberTimeout)
	}
	if c.Concept2PageDelay < 0 {
		return fmt.Errorf("CONCEPT2_PAGE_DELAY must not be negative, got %s", c.Concept2PageDelay)
	}
	if _, err := time.LoadLocation(c.LeaderboardTimezone); err != nil {
		return fmt.Errorf("invalid LEADERBOARD_TIMEZONE %q: %w", c.LeaderboardTimezone, err)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
