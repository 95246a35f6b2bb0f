package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/erg-leaderboard/discord"
	"github.com/Dosada05/erg-leaderboard/models"
)

const (
	summaryTitle  = "🏆 Top Rowers Last Week"
	summaryFooter = "Keep up the great work! 💪"
	summaryColor  = 0x5865F2
	summaryTopN   = 3

	MessageNoWeeklyData = "No workout data available this week"
	MessageSummarySent  = "Weekly summary sent to Discord"
)

var medals = []string{"🥇", "🥈", "🥉"}

// WebhookSender is satisfied by *discord.WebhookClient.
type WebhookSender interface {
	Send(ctx context.Context, msg discord.WebhookMessage) error
}

type SummaryService interface {
	SendWeeklySummary(ctx context.Context) (*SummaryResult, error)
}

type SummaryLeader struct {
	Name   string  `json:"name"`
	Meters float64 `json:"meters"`
}

type SummaryResult struct {
	Sent     bool            `json:"sent"`
	Message  string          `json:"message"`
	TopMen   []SummaryLeader `json:"top_men,omitempty"`
	TopWomen []SummaryLeader `json:"top_women,omitempty"`
}

type summaryService struct {
	builder     LeaderboardBuilder
	webhook     WebhookSender
	frontendURL string
	location    *time.Location
	logger      *slog.Logger
	now         func() time.Time
}

// NewSummaryService wires the weekly post. webhook may be nil, in which case
// SendWeeklySummary fails with ErrSummaryDisabled.
func NewSummaryService(builder LeaderboardBuilder, webhook WebhookSender, frontendURL string, loc *time.Location, logger *slog.Logger) SummaryService {
	if loc == nil {
		loc = time.UTC
	}
	return &summaryService{
		builder:     builder,
		webhook:     webhook,
		frontendURL: frontendURL,
		location:    loc,
		logger:      logger,
		now:         time.Now,
	}
}

// SendWeeklySummary posts last week's top three men and women. It reads
// through the aggregator, never the cache.
func (s *summaryService) SendWeeklySummary(ctx context.Context) (*SummaryResult, error) {
	if s.webhook == nil {
		return nil, ErrSummaryDisabled
	}

	now := s.now()
	dr := PreviousWeek(now, s.location)
	lb, err := s.builder.BuildLeaderboard(ctx, models.PeriodWeek, dr)
	if err != nil {
		return nil, fmt.Errorf("failed to build weekly leaderboard: %w", err)
	}
	if len(lb.Entries) == 0 {
		return &SummaryResult{Sent: false, Message: MessageNoWeeklyData}, nil
	}

	var men, women []models.LeaderboardEntry
	for _, e := range lb.Entries {
		switch NormalizeGender(derefString(e.Gender)) {
		case GenderMale:
			men = append(men, e)
		case GenderFemale:
			women = append(women, e)
		}
	}
	topMen, topWomen := topLeaders(men), topLeaders(women)
	if len(topMen) == 0 && len(topWomen) == 0 {
		return &SummaryResult{Sent: false, Message: MessageNoWeeklyData}, nil
	}

	msg := discord.WebhookMessage{Embeds: []discord.Embed{{
		Title:       summaryTitle,
		Description: s.describe(topMen, topWomen),
		Color:       summaryColor,
		Footer:      &discord.EmbedFooter{Text: summaryFooter},
		Timestamp:   now.UTC().Format(time.RFC3339),
	}}}
	if err := s.webhook.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send weekly summary: %w", err)
	}

	s.logger.InfoContext(ctx, "Weekly summary sent",
		slog.Time("from", dr.From),
		slog.Time("to", dr.To),
		slog.Int("men", len(topMen)),
		slog.Int("women", len(topWomen)))
	return &SummaryResult{
		Sent:     true,
		Message:  MessageSummarySent,
		TopMen:   toLeaders(topMen),
		TopWomen: toLeaders(topWomen),
	}, nil
}

// topLeaders takes the first three and only then drops zero-meter rows, so a
// zero row in the top three is not backfilled from below.
func topLeaders(entries []models.LeaderboardEntry) []models.LeaderboardEntry {
	if len(entries) > summaryTopN {
		entries = entries[:summaryTopN]
	}
	out := make([]models.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		if e.TotalMeters > 0 {
			out = append(out, e)
		}
	}
	return out
}

func (s *summaryService) describe(men, women []models.LeaderboardEntry) string {
	var sections []string
	if len(men) > 0 {
		sections = append(sections, "**👨 Men**\n\n"+formatLeaders(men))
	}
	if len(women) > 0 {
		sections = append(sections, "**👩 Women**\n\n"+formatLeaders(women))
	}
	return strings.Join(sections, "\n\n") + fmt.Sprintf("\n\n[📊 View Full Leaderboard](%s)", s.frontendURL)
}

func formatLeaders(entries []models.LeaderboardEntry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%s **%s**\n   • %sm | %d workouts", medals[i], e.Name, formatMeters(e.TotalMeters), e.WorkoutCount)
	}
	return strings.Join(lines, "\n\n")
}

func toLeaders(entries []models.LeaderboardEntry) []SummaryLeader {
	out := make([]SummaryLeader, len(entries))
	for i, e := range entries {
		out[i] = SummaryLeader{Name: e.Name, Meters: e.TotalMeters}
	}
	return out
}

// formatMeters renders whole meters with comma thousands separators.
func formatMeters(m float64) string {
	digits := strconv.FormatInt(int64(math.Round(m)), 10)
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
