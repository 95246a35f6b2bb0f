package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/erg-leaderboard/docs"
	"github.com/Dosada05/erg-leaderboard/handlers"
	"github.com/Dosada05/erg-leaderboard/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Handlers struct {
	Leaderboard *handlers.LeaderboardHandler
	Auth        *handlers.AuthHandler
	Link        *handlers.LinkHandler
	Profile     *handlers.ProfileHandler
	Summary     *handlers.SummaryHandler
	Health      *handlers.HealthHandler
}

type Config struct {
	JWTSecret      string
	AllowedOrigins []string
}

func SetupRoutes(h Handlers, cfg Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(cfg.JWTSecret, logger)

	r.Get("/healthz", h.Health.Health)

	r.Get(docs.SpecPath, docs.SpecHandler)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docs.SpecPath)))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/discord/login", h.Auth.DiscordLogin)
		r.Get("/discord/callback", h.Auth.DiscordCallback)
		r.Post("/logout", h.Auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/concept2/link", h.Link.Link)
			r.Get("/concept2/callback", h.Link.Callback)
		})
	})

	r.Route("/api", func(r chi.Router) {
		// Authorized by WEBHOOK_SECRET, not by a session.
		r.With(chiMiddleware.Timeout(2*time.Minute)).Get("/discord/weekly-summary", h.Summary.WeeklySummary)
		r.With(chiMiddleware.Timeout(2*time.Minute)).Post("/discord/weekly-summary", h.Summary.WeeklySummary)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/me", h.Auth.Me)

			r.Get("/leaderboard", h.Leaderboard.GetLeaderboard)
			r.With(middleware.RequireAdmin).Post("/leaderboard/cache/clear", h.Leaderboard.ClearCache)

			r.Get("/profile", h.Profile.GetProfile)
			r.Patch("/profile", h.Profile.UpdateProfile)
			r.Put("/profile/avatar", h.Profile.UploadAvatar)
			r.Post("/profile/unlink-concept2", h.Link.Unlink)
		})
	})

	return r
}
