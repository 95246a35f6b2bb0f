package handlers

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Dosada05/erg-leaderboard/middleware"
	"github.com/Dosada05/erg-leaderboard/services"
	"github.com/google/uuid"
)

const (
	discordStateCookie = "discord_oauth_state"
	oauthStateTTL      = 10 * time.Minute
)

// CookieConfig controls cookies and redirects shared by the OAuth handlers.
type CookieConfig struct {
	FrontendURL string
	Secure      bool
	SessionTTL  time.Duration
}

type AuthHandler struct {
	authService services.AuthService
	cookies     CookieConfig
	logger      *slog.Logger
}

func NewAuthHandler(authService services.AuthService, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	if cookies.SessionTTL <= 0 {
		cookies.SessionTTL = services.DefaultSessionTTL
	}
	return &AuthHandler{authService: authService, cookies: cookies, logger: logger}
}

// DiscordLogin serves GET /auth/discord/login.
func (h *AuthHandler) DiscordLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	setStateCookie(w, discordStateCookie, state, h.cookies.Secure)
	http.Redirect(w, r, h.authService.DiscordLoginURL(state), http.StatusFound)
}

// DiscordCallback serves GET /auth/discord/callback.
func (h *AuthHandler) DiscordCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.InfoContext(r.Context(), "Discord sign-in cancelled", slog.String("error", providerErr))
		redirectWithError(w, r, h.cookies.FrontendURL, "/auth/error", "AccessDenied")
		return
	}

	code := q.Get("code")
	if code == "" || !consumeState(w, r, discordStateCookie, q.Get("state"), h.cookies.Secure) {
		redirectWithError(w, r, h.cookies.FrontendURL, "/auth/error", "InvalidState")
		return
	}

	member, tokenString, err := h.authService.CompleteDiscordLogin(r.Context(), code)
	if err != nil {
		if errors.Is(err, services.ErrNotInGuild) {
			redirectWithError(w, r, h.cookies.FrontendURL, "/auth/error", "NotInServer")
			return
		}
		h.logger.ErrorContext(r.Context(), "Discord sign-in failed", slog.Any("error", err))
		redirectWithError(w, r, h.cookies.FrontendURL, "/auth/error", "Callback")
		return
	}

	// Lax so the cookie survives the redirect back from Discord.
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    tokenString,
		Path:     "/",
		MaxAge:   int(h.cookies.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.DebugContext(r.Context(), "Session issued", slog.String("member_id", member.ID.String()))
	http.Redirect(w, r, h.cookies.FrontendURL+"/", http.StatusFound)
}

// Logout serves POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, middleware.SessionCookieName, h.cookies.Secure)
	w.WriteHeader(http.StatusNoContent)
}

// Me serves GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	memberID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	user, err := h.authService.CurrentUser(r.Context(), memberID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, user, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func setStateCookie(w http.ResponseWriter, name, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    state,
		Path:     "/",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// consumeState compares the state parameter with its cookie and clears the
// cookie either way.
func consumeState(w http.ResponseWriter, r *http.Request, cookieName, state string, secure bool) bool {
	cookie, err := r.Cookie(cookieName)
	clearCookie(w, cookieName, secure)
	if err != nil || cookie.Value == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}

func redirectWithError(w http.ResponseWriter, r *http.Request, base, path, code string) {
	http.Redirect(w, r, base+path+"?error="+url.QueryEscape(code), http.StatusFound)
}
