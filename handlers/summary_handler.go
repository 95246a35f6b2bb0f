package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Dosada05/erg-leaderboard/services"
)

type SummaryHandler struct {
	summaryService services.SummaryService
	webhookSecret  string
	logger         *slog.Logger
}

func NewSummaryHandler(summaryService services.SummaryService, webhookSecret string, logger *slog.Logger) *SummaryHandler {
	return &SummaryHandler{summaryService: summaryService, webhookSecret: webhookSecret, logger: logger}
}

// WeeklySummary serves GET and POST /api/discord/weekly-summary for
// external schedulers. The caller presents WEBHOOK_SECRET as a bearer token
// or a token query parameter.
func (h *SummaryHandler) WeeklySummary(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		unauthorizedResponse(w, r, "invalid webhook token")
		return
	}

	result, err := h.summaryService.SendWeeklySummary(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Weekly summary triggered over HTTP", slog.Bool("sent", result.Sent))
	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SummaryHandler) authorized(r *http.Request) bool {
	if h.webhookSecret == "" {
		return false
	}
	presented := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		if scheme, value, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			presented = strings.TrimSpace(value)
		}
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.webhookSecret)) == 1
}
