package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/erg-leaderboard/services"
	"github.com/robfig/cron/v3"
)

// DefaultSpec runs every Monday at 09:00 (cron with seconds).
const DefaultSpec = "0 0 9 * * 1"

const runTimeout = 2 * time.Minute

// WeeklySummaryScheduler posts the weekly summary in-process on a cron
// schedule.
type WeeklySummaryScheduler struct {
	cron    *cron.Cron
	summary services.SummaryService
	spec    string
	logger  *slog.Logger
}

func NewWeeklySummaryScheduler(summary services.SummaryService, spec string, loc *time.Location, logger *slog.Logger) *WeeklySummaryScheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.UTC
	}
	return &WeeklySummaryScheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		summary: summary,
		spec:    spec,
		logger:  logger,
	}
}

func (s *WeeklySummaryScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		return fmt.Errorf("invalid weekly summary schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("Weekly summary scheduler started", slog.String("spec", s.spec))
	return nil
}

// Stop waits for a running job to finish. It is a no-op on a nil scheduler.
func (s *WeeklySummaryScheduler) Stop() {
	if s == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Weekly summary scheduler stopped")
}

func (s *WeeklySummaryScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := s.summary.SendWeeklySummary(ctx)
	switch {
	case errors.Is(err, services.ErrSummaryDisabled):
		s.logger.Info("Weekly summary skipped: webhook not configured")
	case err != nil:
		s.logger.Error("Weekly summary failed", slog.Any("error", err))
	default:
		s.logger.Info("Weekly summary job finished", slog.Bool("sent", result.Sent), slog.String("message", result.Message))
	}
}
