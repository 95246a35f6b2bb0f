package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/Dosada05/erg-leaderboard/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency   = 10
	DefaultMemberTimeout = 10 * time.Second
)

// MemberDirectory lists the members eligible for the leaderboard.
type MemberDirectory interface {
	ListVisibleWithExternalLink(ctx context.Context, provider string) ([]models.Member, error)
}

// ResultsFetcher returns every workout a token's owner logged inside a range.
type ResultsFetcher interface {
	FetchAllResults(ctx context.Context, accessToken string, dr models.DateRange) ([]models.WorkoutResult, error)
}

type AggregatorConfig struct {
	Concurrency   int
	MemberTimeout time.Duration
}

// Aggregator fetches every eligible member's results in parallel and ranks
// them by total meters. A member whose token or fetch fails is skipped; only
// a member directory or token store failure fails the whole build.
type Aggregator struct {
	members  MemberDirectory
	tokens   TokenService
	results  ResultsFetcher
	uploader storage.FileUploader
	logger   *slog.Logger
	cfg      AggregatorConfig
	now      func() time.Time
}

func NewAggregator(
	members MemberDirectory,
	tokens TokenService,
	results ResultsFetcher,
	uploader storage.FileUploader,
	logger *slog.Logger,
	cfg AggregatorConfig,
) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MemberTimeout <= 0 {
		cfg.MemberTimeout = DefaultMemberTimeout
	}
	return &Aggregator{
		members:  members,
		tokens:   tokens,
		results:  results,
		uploader: uploader,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

type memberOutcome struct {
	entry  *models.LeaderboardEntry
	reason models.SkipReason
}

func (a *Aggregator) BuildLeaderboard(ctx context.Context, period models.Period, dr models.DateRange) (models.Leaderboard, error) {
	members, err := a.members.ListVisibleWithExternalLink(ctx, models.ProviderConcept2)
	if err != nil {
		return models.Leaderboard{}, &SystemicError{Op: "list leaderboard members", Err: err}
	}

	// One slot per member keeps the pre-sort order independent of which
	// fetch finishes first.
	outcomes := make([]memberOutcome, len(members))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i := range members {
		i, member := i, &members[i]
		g.Go(func() error {
			outcome, err := a.buildEntry(gctx, member, dr)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Leaderboard{}, err
	}
	// A cancelled caller would otherwise look like every member timed out.
	if err := ctx.Err(); err != nil {
		return models.Leaderboard{}, err
	}

	lb := models.Leaderboard{
		Period:      period,
		Range:       dr,
		Entries:     make([]models.LeaderboardEntry, 0, len(members)),
		Skipped:     make([]models.SkippedMember, 0),
		GeneratedAt: a.now().UTC(),
	}
	for i, o := range outcomes {
		if o.entry != nil {
			lb.Entries = append(lb.Entries, *o.entry)
			continue
		}
		lb.Skipped = append(lb.Skipped, models.SkippedMember{
			MemberID: members[i].ID,
			Name:     members[i].Name(),
			Reason:   o.reason,
		})
	}

	// Stable so members with equal meters keep directory order across rebuilds.
	sort.SliceStable(lb.Entries, func(x, y int) bool {
		return lb.Entries[x].TotalMeters > lb.Entries[y].TotalMeters
	})
	rankEntries(lb.Entries)

	a.logger.InfoContext(ctx, "Leaderboard built",
		slog.String("period", string(period)),
		slog.Int("members", len(members)),
		slog.Int("entries", len(lb.Entries)),
		slog.Int("skipped", len(lb.Skipped)))
	return lb, nil
}

// buildEntry returns an error only for systemic failures. Everything else
// becomes a skip reason.
func (a *Aggregator) buildEntry(ctx context.Context, member *models.Member, dr models.DateRange) (memberOutcome, error) {
	mctx, cancel := context.WithTimeout(ctx, a.cfg.MemberTimeout)
	defer cancel()

	token, err := a.tokens.GetValidAccessToken(mctx, member.ID)
	if err != nil {
		var systemic *SystemicError
		switch {
		case errors.As(err, &systemic):
			return memberOutcome{}, err
		case mctx.Err() != nil:
			return a.skip(ctx, member.ID, models.SkipTimeout, err), nil
		case errors.Is(err, ErrNotLinked):
			return a.skip(ctx, member.ID, models.SkipNoToken, err), nil
		case errors.Is(err, ErrCredentialUnreadable):
			return a.skip(ctx, member.ID, models.SkipCredentialUnreadable, err), nil
		default:
			return a.skip(ctx, member.ID, models.SkipTokenRefreshFailed, err), nil
		}
	}

	results, err := a.results.FetchAllResults(mctx, token, dr)
	if err != nil {
		if mctx.Err() != nil {
			return a.skip(ctx, member.ID, models.SkipTimeout, err), nil
		}
		return a.skip(ctx, member.ID, models.SkipFetchFailed, err), nil
	}

	stats := AggregateResults(results)
	gender := NormalizeGender(derefString(member.Gender))
	return memberOutcome{entry: &models.LeaderboardEntry{
		MemberID:      member.ID,
		DiscordID:     member.DiscordID,
		Name:          member.Name(),
		AvatarURL:     memberAvatarURL(member, a.uploader),
		Gender:        &gender,
		TotalMeters:   stats.TotalMeters,
		WorkoutCount:  stats.WorkoutCount,
		TotalHours:    stats.TotalHours,
		TotalCalories: stats.TotalCalories,
		LastWorkout:   stats.LastWorkout,
	}}, nil
}

func (a *Aggregator) skip(ctx context.Context, memberID uuid.UUID, reason models.SkipReason, err error) memberOutcome {
	a.logger.WarnContext(ctx, "Skipping member on leaderboard",
		slog.String("member_id", memberID.String()),
		slog.String("reason", string(reason)),
		slog.Any("error", err))
	return memberOutcome{reason: reason}
}

func rankEntries(entries []models.LeaderboardEntry) {
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
