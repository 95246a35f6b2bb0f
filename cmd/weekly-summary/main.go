// Command weekly-summary is the Lambda entrypoint for EventBridge schedules
// that post last week's top rowers to Discord.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Dosada05/erg-leaderboard/concept2"
	"github.com/Dosada05/erg-leaderboard/config"
	"github.com/Dosada05/erg-leaderboard/db"
	"github.com/Dosada05/erg-leaderboard/discord"
	"github.com/Dosada05/erg-leaderboard/repositories"
	"github.com/Dosada05/erg-leaderboard/services"
	"github.com/Dosada05/erg-leaderboard/utils"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

// Reused across warm invocations.
var (
	summaryService services.SummaryService
	logger         = slog.New(slog.NewJSONHandler(os.Stdout, nil))
)

func handler(ctx context.Context, event events.CloudWatchEvent) (*services.SummaryResult, error) {
	logger.InfoContext(ctx, "Weekly summary invoked", slog.Time("event_time", event.Time), slog.String("event_id", event.ID))

	if summaryService == nil {
		if err := initialize(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize: %w", err)
		}
	}

	result, err := summaryService.SendWeeklySummary(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Weekly summary failed", slog.Any("error", err))
		return nil, err
	}
	logger.InfoContext(ctx, "Weekly summary finished", slog.Bool("sent", result.Sent), slog.String("message", result.Message))
	return result, nil
}

func initialize(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.ApplySecrets(ctx, cfg); err != nil {
		return err
	}
	if cfg.DiscordWebhookURL == "" {
		return services.ErrSummaryDisabled
	}

	conn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return err
	}
	// Lambda runs one invocation at a time per container.
	conn.SetMaxOpenConns(cfg.LeaderboardConcurrency + 1)
	conn.SetMaxIdleConns(2)

	cipher, err := utils.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		conn.Close()
		return fmt.Errorf("invalid TOKEN_ENCRYPTION_KEY: %w", err)
	}

	memberRepo := repositories.NewPostgresMemberRepository(conn)
	credRepo := repositories.NewPostgresCredentialRepository(conn, cipher)
	oauth := concept2.NewOAuthClient(concept2.OAuthConfig{
		BaseURL:      cfg.Concept2BaseURL,
		ClientID:     cfg.Concept2ClientID,
		ClientSecret: cfg.Concept2ClientSecret,
	})
	results := concept2.NewClient(concept2.ClientConfig{
		BaseURL:   cfg.Concept2BaseURL,
		PageDelay: cfg.Concept2PageDelay,
	})

	tokens := services.NewTokenService(credRepo, oauth, logger)
	aggregator := services.NewAggregator(memberRepo, tokens, results, nil, logger, services.AggregatorConfig{
		Concurrency:   cfg.LeaderboardConcurrency,
		MemberTimeout: cfg.LeaderboardMemberTimeout,
	})
	webhook := discord.NewWebhookClient(cfg.DiscordWebhookURL, nil)

	summaryService = services.NewSummaryService(aggregator, webhook, cfg.FrontendURL, cfg.Location(), logger)
	logger.InfoContext(ctx, "Weekly summary dependencies initialized")
	return nil
}

func main() {
	lambda.Start(handler)
}
