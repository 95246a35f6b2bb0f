package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/erg-leaderboard/middleware"
	"github.com/Dosada05/erg-leaderboard/services"
	"github.com/google/uuid"
)

const concept2StateCookie = "concept2_oauth_state"

type LinkHandler struct {
	linkService services.LinkService
	cookies     CookieConfig
	logger      *slog.Logger
}

func NewLinkHandler(linkService services.LinkService, cookies CookieConfig, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{linkService: linkService, cookies: cookies, logger: logger}
}

// Link serves GET /auth/concept2/link.
func (h *LinkHandler) Link(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	setStateCookie(w, concept2StateCookie, state, h.cookies.Secure)
	http.Redirect(w, r, h.linkService.AuthorizeURL(state), http.StatusFound)
}

// Callback serves GET /auth/concept2/callback.
func (h *LinkHandler) Callback(w http.ResponseWriter, r *http.Request) {
	memberID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	q := r.URL.Query()
	// The provider's own error code (e.g. access_denied) is passed through
	// to the onboarding page as is.
	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.InfoContext(r.Context(), "Concept2 authorization refused",
			slog.String("member_id", memberID.String()),
			slog.String("error", providerErr))
		redirectWithError(w, r, h.cookies.FrontendURL, "/onboarding", providerErr)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		clearCookie(w, concept2StateCookie, h.cookies.Secure)
		redirectWithError(w, r, h.cookies.FrontendURL, "/onboarding", "missing_parameters")
		return
	}
	if !consumeState(w, r, concept2StateCookie, state, h.cookies.Secure) {
		redirectWithError(w, r, h.cookies.FrontendURL, "/onboarding", "invalid_state")
		return
	}

	if err := h.linkService.CompleteLink(r.Context(), memberID, code); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to link Concept2 account",
			slog.String("member_id", memberID.String()),
			slog.Any("error", err))
		redirectWithError(w, r, h.cookies.FrontendURL, "/onboarding", "token_exchange_failed")
		return
	}

	http.Redirect(w, r, h.cookies.FrontendURL+"/?linked=true", http.StatusFound)
}

// Unlink serves POST /api/profile/unlink-concept2.
func (h *LinkHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	memberID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	if err := h.linkService.Unlink(r.Context(), memberID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"success": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
