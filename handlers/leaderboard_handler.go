package handlers

import (
	"net/http"
	"strings"

	"github.com/Dosada05/erg-leaderboard/middleware"
	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/Dosada05/erg-leaderboard/services"
)

type LeaderboardHandler struct {
	leaderboardService services.LeaderboardService
}

func NewLeaderboardHandler(leaderboardService services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: leaderboardService}
}

// GetLeaderboard serves GET /api/leaderboard.
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := services.LeaderboardQuery{
		Period:       q.Get("period"),
		From:         q.Get("from"),
		To:           q.Get("to"),
		Gender:       q.Get("gender"),
		ForceRefresh: isTruthy(q.Get("refresh")),
	}
	// Skipped members name people whose link is broken; keep that to admins.
	if isTruthy(q.Get("diagnostics")) {
		role, err := middleware.GetUserRoleFromContext(r.Context())
		if err != nil || role != models.RoleAdmin {
			forbiddenResponse(w, r, "diagnostics are available to admins only")
			return
		}
		query.Diagnostics = true
	}

	view, err := h.leaderboardService.GetLeaderboard(r.Context(), query)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ClearCache serves POST /api/leaderboard/cache/clear. Admin only.
func (h *LeaderboardHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.leaderboardService.ClearCache(r.Context())

	response := jsonResponse{"success": true, "message": "Cache cleared"}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// isTruthy treats any non-empty value other than "false" or "0" as true.
func isTruthy(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v != "" && v != "false" && v != "0"
}
