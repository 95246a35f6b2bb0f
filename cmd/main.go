package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Dosada05/erg-leaderboard/cache"
	"github.com/Dosada05/erg-leaderboard/concept2"
	"github.com/Dosada05/erg-leaderboard/config"
	"github.com/Dosada05/erg-leaderboard/db"
	"github.com/Dosada05/erg-leaderboard/discord"
	"github.com/Dosada05/erg-leaderboard/handlers"
	"github.com/Dosada05/erg-leaderboard/repositories"
	"github.com/Dosada05/erg-leaderboard/routes"
	"github.com/Dosada05/erg-leaderboard/scheduler"
	"github.com/Dosada05/erg-leaderboard/services"
	"github.com/Dosada05/erg-leaderboard/storage"
	"github.com/Dosada05/erg-leaderboard/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := config.ApplySecrets(context.Background(), cfg); err != nil {
		logger.Error("failed to apply secrets", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.EnsureSchema(schemaCtx, dbConn)
	cancelSchema()
	if err != nil {
		logger.Error("failed to apply database schema", slog.Any("error", err))
		os.Exit(1)
	}

	cipher, err := utils.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		logger.Error("invalid TOKEN_ENCRYPTION_KEY", slog.Any("error", err))
		os.Exit(1)
	}

	// Avatar uploads stay disabled unless every R2 setting is present.
	var uploader storage.FileUploader
	if cfg.R2Enabled() {
		uploader, err = storage.NewCloudflareR2Uploader(context.Background(), storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 storage not configured, avatar uploads disabled")
	}

	memberRepo := repositories.NewPostgresMemberRepository(dbConn)
	credRepo := repositories.NewPostgresCredentialRepository(dbConn, cipher)

	discordClient := discord.NewClient(discord.Config{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURI:  cfg.PublicURL + "/auth/discord/callback",
	})
	concept2OAuth := concept2.NewOAuthClient(concept2.OAuthConfig{
		BaseURL:      cfg.Concept2BaseURL,
		ClientID:     cfg.Concept2ClientID,
		ClientSecret: cfg.Concept2ClientSecret,
		RedirectURI:  cfg.PublicURL + "/auth/concept2/callback",
	})
	concept2Client := concept2.NewClient(concept2.ClientConfig{
		BaseURL:   cfg.Concept2BaseURL,
		PageDelay: cfg.Concept2PageDelay,
	})

	// A typed nil *WebhookClient would not compare equal to nil inside the
	// summary service.
	var webhook services.WebhookSender
	if cfg.DiscordWebhookURL != "" {
		webhook = discord.NewWebhookClient(cfg.DiscordWebhookURL, nil)
	}

	tokenService := services.NewTokenService(credRepo, concept2OAuth, logger)
	aggregator := services.NewAggregator(memberRepo, tokenService, concept2Client, uploader, logger, services.AggregatorConfig{
		Concurrency:   cfg.LeaderboardConcurrency,
		MemberTimeout: cfg.LeaderboardMemberTimeout,
	})
	leaderboardService := services.NewLeaderboardService(aggregator, cache.NewLeaderboardCache(), logger, services.LeaderboardServiceConfig{
		CacheTTL: cfg.LeaderboardCacheTTL,
		Location: cfg.Location(),
	})
	authService := services.NewAuthService(discordClient, memberRepo, uploader, logger, services.AuthConfig{
		GuildID:         cfg.DiscordServerID,
		JWTSecret:       cfg.JWTSecretKey,
		AdminDiscordIDs: cfg.AdminDiscordIDs,
	})
	linkService := services.NewLinkService(concept2OAuth, concept2Client, credRepo, memberRepo, logger)
	profileService := services.NewProfileService(memberRepo, uploader, logger)
	summaryService := services.NewSummaryService(aggregator, webhook, cfg.FrontendURL, cfg.Location(), logger)
	logger.Info("Services initialized")

	var summaryScheduler *scheduler.WeeklySummaryScheduler
	if webhook != nil {
		summaryScheduler = scheduler.NewWeeklySummaryScheduler(summaryService, cfg.WeeklySummaryCron, cfg.Location(), logger)
		if err := summaryScheduler.Start(); err != nil {
			logger.Error("failed to start weekly summary scheduler", slog.Any("error", err))
			os.Exit(1)
		}
	}

	cookies := handlers.CookieConfig{
		FrontendURL: cfg.FrontendURL,
		Secure:      strings.HasPrefix(cfg.PublicURL, "https://"),
	}
	router := routes.SetupRoutes(routes.Handlers{
		Leaderboard: handlers.NewLeaderboardHandler(leaderboardService),
		Auth:        handlers.NewAuthHandler(authService, cookies, logger),
		Link:        handlers.NewLinkHandler(linkService, cookies, logger),
		Profile:     handlers.NewProfileHandler(profileService),
		Summary:     handlers.NewSummaryHandler(summaryService, cfg.WebhookSecret, logger),
		Health:      handlers.NewHealthHandler(dbConn),
	}, routes.Config{
		JWTSecret:      cfg.JWTSecretKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)
	logger.Info("Routes configured")

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// A cold leaderboard build fans out to the Logbook API for every member.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	err = serve(server, quit, logger)
	// os.Exit skips deferred calls, so the cron jobs are stopped here.
	summaryScheduler.Stop()
	if err != nil {
		os.Exit(1)
	}
	logger.Info("application exited")
}

// serve runs the server until it fails or a signal arrives on quit, then
// shuts it down gracefully. It returns instead of exiting so the caller can
// release what it started.
func serve(server *http.Server, quit <-chan os.Signal, logger *slog.Logger) error {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			return err
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return err
		}
		logger.Info("server shutdown complete")
	}
	return nil
}
