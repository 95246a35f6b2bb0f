package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/erg-leaderboard/models"
	"golang.org/x/sync/singleflight"
)

const (
	GenderFilterAll = "all"

	NoDataMessage = "no data available for this period"

	// buildTimeout caps a shared build that no longer belongs to any one
	// request.
	buildTimeout = 2 * time.Minute
)

// LeaderboardBuilder computes a fresh leaderboard. *Aggregator implements it.
type LeaderboardBuilder interface {
	BuildLeaderboard(ctx context.Context, period models.Period, dr models.DateRange) (models.Leaderboard, error)
}

// LeaderboardCache is satisfied by *cache.LeaderboardCache.
type LeaderboardCache interface {
	Get(key string) (models.Leaderboard, bool)
	Set(key string, value models.Leaderboard, ttl time.Duration)
	Clear()
}

type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, q LeaderboardQuery) (*LeaderboardView, error)
	ClearCache(ctx context.Context)
}

type LeaderboardQuery struct {
	Period       string
	From         string
	To           string
	Gender       string
	ForceRefresh bool
	// Diagnostics includes skipped members. Callers gate it to admins.
	Diagnostics bool
}

type LeaderboardView struct {
	Period      models.Period             `json:"period"`
	From        time.Time                 `json:"from"`
	To          time.Time                 `json:"to"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Entries     []models.LeaderboardEntry `json:"leaderboard"`
	Stats       models.LeaderboardStats   `json:"stats"`
	Message     string                    `json:"message,omitempty"`
	Skipped     []models.SkippedMember    `json:"skipped,omitempty"`
}

type LeaderboardServiceConfig struct {
	CacheTTL time.Duration
	Location *time.Location
}

type leaderboardService struct {
	builder  LeaderboardBuilder
	cache    LeaderboardCache
	logger   *slog.Logger
	cfg      LeaderboardServiceConfig
	now      func() time.Time
	inflight singleflight.Group
}

func NewLeaderboardService(builder LeaderboardBuilder, cache LeaderboardCache, logger *slog.Logger, cfg LeaderboardServiceConfig) LeaderboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 300 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &leaderboardService{
		builder: builder,
		cache:   cache,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (s *leaderboardService) GetLeaderboard(ctx context.Context, q LeaderboardQuery) (*LeaderboardView, error) {
	period, err := ParsePeriod(q.Period)
	if err != nil {
		return nil, err
	}
	gender, err := parseGenderFilter(q.Gender)
	if err != nil {
		return nil, err
	}

	var from, to *time.Time
	if period == models.PeriodCustom {
		if from, to, err = ParseRangeBounds(q.From, q.To, s.cfg.Location); err != nil {
			return nil, err
		}
	}
	dr, err := ResolveDateRange(period, from, to, s.now(), s.cfg.Location)
	if err != nil {
		return nil, err
	}

	key := cacheKey(period, dr)
	lb, err := s.load(ctx, key, period, dr, q.ForceRefresh)
	if err != nil {
		return nil, err
	}
	return buildView(lb, gender, q.Diagnostics), nil
}

func (s *leaderboardService) load(ctx context.Context, key string, period models.Period, dr models.DateRange, force bool) (models.Leaderboard, error) {
	if force {
		lb, err := s.builder.BuildLeaderboard(ctx, period, dr)
		if err != nil {
			return models.Leaderboard{}, err
		}
		s.cache.Set(key, lb, s.cfg.CacheTTL)
		return lb, nil
	}

	if lb, ok := s.cache.Get(key); ok {
		return lb, nil
	}

	// Callers joining a miss share one build. It runs detached from the
	// caller that started it, so that caller going away does not fail the
	// others; each caller still stops waiting when its own context ends.
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		if lb, ok := s.cache.Get(key); ok {
			return lb, nil
		}
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()

		lb, err := s.builder.BuildLeaderboard(bctx, period, dr)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, lb, s.cfg.CacheTTL)
		return lb, nil
	})
	select {
	case <-ctx.Done():
		return models.Leaderboard{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.logger.ErrorContext(ctx, "Failed to build leaderboard", slog.String("key", key), slog.Any("error", res.Err))
			return models.Leaderboard{}, res.Err
		}
		return res.Val.(models.Leaderboard), nil
	}
}

func (s *leaderboardService) ClearCache(ctx context.Context) {
	s.cache.Clear()
	s.logger.InfoContext(ctx, "Leaderboard cache cleared")
}

// cacheKey includes explicit bounds only for custom ranges. The fixed periods
// are keyed by name and start date, so crossing into a new week, month or
// year misses instead of serving the previous window until the TTL runs out.
func cacheKey(period models.Period, dr models.DateRange) string {
	if period != models.PeriodCustom {
		return fmt.Sprintf("leaderboard:%s:%s:", period, dr.From.Format("2006-01-02"))
	}
	return fmt.Sprintf("leaderboard:%s:%s:%s", period, dr.From.Format(time.RFC3339Nano), dr.To.Format(time.RFC3339Nano))
}

func parseGenderFilter(raw string) (string, error) {
	switch g := strings.ToLower(strings.TrimSpace(raw)); g {
	case "", GenderFilterAll:
		return GenderFilterAll, nil
	case GenderMale, GenderFemale:
		return g, nil
	default:
		return "", newValidationError("gender", "must be one of all, male, female")
	}
}

// buildView never mutates lb, which is shared with the cache.
func buildView(lb models.Leaderboard, gender string, diagnostics bool) *LeaderboardView {
	entries := make([]models.LeaderboardEntry, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		if gender != GenderFilterAll && NormalizeGender(derefString(e.Gender)) != gender {
			continue
		}
		entries = append(entries, e)
	}
	rankEntries(entries)

	view := &LeaderboardView{
		Period:      lb.Period,
		From:        lb.Range.From,
		To:          lb.Range.To,
		GeneratedAt: lb.GeneratedAt,
		Entries:     entries,
		Stats:       computeStats(entries),
	}
	if len(entries) == 0 {
		view.Message = NoDataMessage
	}
	if diagnostics {
		view.Skipped = append([]models.SkippedMember{}, lb.Skipped...)
	}
	return view
}

func computeStats(entries []models.LeaderboardEntry) models.LeaderboardStats {
	var stats models.LeaderboardStats
	for _, e := range entries {
		stats.TotalMeters += e.TotalMeters
		stats.TotalWorkouts += e.WorkoutCount
		stats.TotalHours += e.TotalHours
		if e.WorkoutCount > 0 {
			stats.ActiveMembers++
		}
	}
	if len(entries) > 0 {
		name := entries[0].Name
		stats.TopPerformer = &name
	}
	return stats
}
