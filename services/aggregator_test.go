package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dosada05/erg-leaderboard/concept2"
	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/Dosada05/erg-leaderboard/utils"
	"github.com/google/uuid"
)

var testRange = models.DateRange{
	From: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC),
}

func workouts(meters ...float64) []models.WorkoutResult {
	out := make([]models.WorkoutResult, len(meters))
	for i, m := range meters {
		out[i] = models.WorkoutResult{ID: uuid.NewString(), Distance: m, Time: m * 2.4, Date: "2024-03-05 07:00:00"}
	}
	return out
}

func newTestAggregator(dir MemberDirectory, tokens TokenService, results ResultsFetcher, cfg AggregatorConfig) *Aggregator {
	return NewAggregator(dir, tokens, results, nil, discardLogger(), cfg)
}

func assertRanked(t *testing.T, entries []models.LeaderboardEntry) {
	t.Helper()
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Fatalf("entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && entries[i-1].TotalMeters < e.TotalMeters {
			t.Fatalf("entries not sorted descending at %d", i)
		}
	}
}

func TestBuildLeaderboardRanksByMeters(t *testing.T) {
	alice, bob, carol := linkedMember("alice", "F"), linkedMember("bob", "M"), linkedMember("carol", "")
	dir := &fakeMemberDirectory{members: []models.Member{alice, bob, carol}}
	tokens := &stubTokens{tokens: map[uuid.UUID]string{alice.ID: "ta", bob.ID: "tb", carol.ID: "tc"}}
	results := &stubResults{byToken: map[string][]models.WorkoutResult{
		"ta": workouts(5000, 2000),
		"tb": workouts(12000),
		"tc": {},
	}}

	lb, err := newTestAggregator(dir, tokens, results, AggregatorConfig{}).BuildLeaderboard(context.Background(), models.PeriodWeek, testRange)
	if err != nil {
		t.Fatalf("BuildLeaderboard: %v", err)
	}
	if len(lb.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(lb.Entries))
	}
	assertRanked(t, lb.Entries)

	want := []string{"bob", "alice", "carol"}
	for i, name := range want {
		if lb.Entries[i].Name != name {
			t.Fatalf("entries[%d] = %s, want %s", i, lb.Entries[i].Name, name)
		}
	}
	if lb.Entries[2].TotalMeters != 0 || lb.Entries[2].WorkoutCount != 0 {
		t.Fatal("member with an empty fetch must appear with zero stats")
	}
	if g := lb.Entries[0].Gender; g == nil || *g != GenderMale {
		t.Fatalf("gender not normalized: %v", g)
	}
	if lb.Period != models.PeriodWeek || !lb.Range.From.Equal(testRange.From) {
		t.Fatalf("unexpected period/range %s %v", lb.Period, lb.Range)
	}
}

func TestBuildLeaderboardExcludesHiddenAndUnlinked(t *testing.T) {
	visible := linkedMember("visible", "")
	hidden := linkedMember("hidden", "")
	hidden.ShowOnLeaderboard = false
	unlinked := linkedMember("unlinked", "")
	unlinked.HasConcept2Linked = false

	dir := &fakeMemberDirectory{members: []models.Member{visible, hidden, unlinked}}
	tokens := &stubTokens{tokens: map[uuid.UUID]string{visible.ID: "tv", hidden.ID: "th", unlinked.ID: "tu"}}
	results := &stubResults{byToken: map[string][]models.WorkoutResult{
		"tv": workouts(100), "th": workouts(99999), "tu": workouts(99999),
	}}

	lb, err := newTestAggregator(dir, tokens, results, AggregatorConfig{}).BuildLeaderboard(context.Background(), models.PeriodMonth, testRange)
	if err != nil {
		t.Fatalf("BuildLeaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].MemberID != visible.ID {
		t.Fatalf("unexpected entries %+v", lb.Entries)
	}
	if len(lb.Skipped) != 0 {
		t.Fatalf("hidden or unlinked members must not be reported as skipped: %+v", lb.Skipped)
	}
}

func TestBuildLeaderboardIsolatesMemberFailures(t *testing.T) {
	ok := linkedMember("ok", "")
	refreshFail := linkedMember("refresh", "")
	fetchFail := linkedMember("fetch", "")
	schemaFail := linkedMember("schema", "")
	noToken := linkedMember("notoken", "")

	dir := &fakeMemberDirectory{members: []models.Member{refreshFail, ok, fetchFail, schemaFail, noToken}}
	tokens := &stubTokens{
		tokens: map[uuid.UUID]string{ok.ID: "t-ok", fetchFail.ID: "t-fetch", schemaFail.ID: "t-schema"},
		errs: map[uuid.UUID]error{
			refreshFail.ID: &TokenRefreshError{MemberID: refreshFail.ID, Err: errors.New("invalid_grant")},
		},
	}
	results := &stubResults{
		byToken: map[string][]models.WorkoutResult{"t-ok": workouts(4000)},
		errs: map[string]error{
			"t-fetch":  &concept2.APIError{StatusCode: 500, Body: "boom"},
			"t-schema": &concept2.SchemaError{Payload: "results", Field: "data"},
		},
	}

	lb, err := newTestAggregator(dir, tokens, results, AggregatorConfig{}).BuildLeaderboard(context.Background(), models.PeriodWeek, testRange)
	if err != nil {
		t.Fatalf("member failures must not fail the build: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].MemberID != ok.ID || lb.Entries[0].Rank != 1 {
		t.Fatalf("unexpected entries %+v", lb.Entries)
	}

	reasons := map[uuid.UUID]models.SkipReason{}
	for _, s := range lb.Skipped {
		reasons[s.MemberID] = s.Reason
	}
	want := map[uuid.UUID]models.SkipReason{
		refreshFail.ID: models.SkipTokenRefreshFailed,
		fetchFail.ID:   models.SkipFetchFailed,
		schemaFail.ID:  models.SkipFetchFailed,
		noToken.ID:     models.SkipNoToken,
	}
	for id, reason := range want {
		if reasons[id] != reason {
			t.Errorf("member %s: reason %q, want %q", id, reasons[id], reason)
		}
	}
}

func TestBuildLeaderboardSkipsUnreadableCredential(t *testing.T) {
	alice, bob := linkedMember("alice", "F"), linkedMember("bob", "M")
	repo := newFakeCredentialRepo()
	repo.creds[alice.ID] = models.ExternalCredential{
		MemberID:     alice.ID,
		Provider:     models.ProviderConcept2,
		AccessToken:  "alice-access",
		RefreshToken: "alice-refresh",
		ExpiresAt:    tokenNow.Unix() + 3600,
	}
	repo.getErrs = map[uuid.UUID]error{
		bob.ID: fmt.Errorf("access token for member %s: %w", bob.ID, utils.ErrTokenCiphertext),
	}
	tokens := newTestTokenService(repo, &fakeRefresher{})
	results := &stubResults{byToken: map[string][]models.WorkoutResult{"alice-access": workouts(6000)}}
	dir := &fakeMemberDirectory{members: []models.Member{bob, alice}}

	lb, err := newTestAggregator(dir, tokens, results, AggregatorConfig{}).BuildLeaderboard(context.Background(), models.PeriodWeek, testRange)
	if err != nil {
		t.Fatalf("unreadable credential must not fail the build: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].MemberID != alice.ID || lb.Entries[0].TotalMeters != 6000 {
		t.Fatalf("unexpected entries %+v", lb.Entries)
	}
	if len(lb.Skipped) != 1 || lb.Skipped[0].MemberID != bob.ID || lb.Skipped[0].Reason != models.SkipCredentialUnreadable {
		t.Fatalf("unexpected skipped %+v", lb.Skipped)
	}
	if repo.deletes != 0 {
		t.Fatal("unreadable credential must not be deleted")
	}
}

func TestBuildLeaderboardAllSkippedIsEmptyNotError(t *testing.T) {
	m := linkedMember("m", "")
	dir := &fakeMemberDirectory{members: []models.Member{m}}
	tokens := &stubTokens{errs: map[uuid.UUID]error{m.ID: &TokenRefreshError{MemberID: m.ID, Err: errors.New("x")}}}

	lb, err := newTestAggregator(dir, tokens, &stubResults{}, AggregatorConfig{}).BuildLeaderboard(context.Background(), models.PeriodWeek, testRange)
	if err != nil {
		t.Fatalf("BuildLeaderboard: %v", err)
	}
	if lb.Entries == nil || len(lb.Entries) != 0 {
		t.Fatalf("expected empty non-nil entries, got %#v", lb.Entries)
	}
}

func TestBuildLeaderboardSystemicFailures(t *testing.T) {
	t.Run("member directory", func(t *testing.T) {
		dir := &fakeMemberDirectory{err: errors.New("db down")}
		_, err := newTestAggregator(dir, &stubTokens{}, &stubResults{}, AggregatorConfig{}).BuildLeaderboard(context.Background(), models.PeriodWeek, testRange)
		if !errors.Is(err, ErrSystemic) {
			t.Fatalf("expected systemic error, got %v", err)
		}
	})

	t.Run("token store", func(t *testing.T) {
		m := linkedMember("m", "")
		dir := &fakeMemberDirectory{members: []models.Member{m, linkedMember("n", "")}}
		tokens := &stubTokens{errs: map[uuid.UUID]error{m.ID: &SystemicError{Op: "load credential", Err: errors.New("db down")}}}
		_, err := newTestAggregator(dir, tokens, &stubResults{}, AggregatorConfig{}).BuildLeaderboard(context.Background(), models.PeriodWeek, testRange)
		if !errors.Is(err, ErrSystemic) {
			t.Fatalf("expected systemic error, got %v", err)
		}
	})
}

func TestBuildLeaderboardMemberTimeoutSkips(t *testing.T) {
	slow, fast := linkedMember("slow", ""), linkedMember("fast", "")
	dir := &fakeMemberDirectory{members: []models.Member{slow, fast}}
	tokens := &stubTokens{
		tokens: map[uuid.UUID]string{fast.ID: "tf"},
		block:  map[uuid.UUID]bool{slow.ID: true},
	}
	results := &stubResults{byToken: map[string][]models.WorkoutResult{"tf": workouts(1000)}}

	agg := newTestAggregator(dir, tokens, results, AggregatorConfig{MemberTimeout: 20 * time.Millisecond})
	lb, err := agg.BuildLeaderboard(context.Background(), models.PeriodWeek, testRange)
	if err != nil {
		t.Fatalf("BuildLeaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].MemberID != fast.ID {
		t.Fatalf("unexpected entries %+v", lb.Entries)
	}
	if len(lb.Skipped) != 1 || lb.Skipped[0].Reason != models.SkipTimeout {
		t.Fatalf("expected one timeout skip, got %+v", lb.Skipped)
	}
}

type gaugeResults struct {
	inflight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
}

func (g *gaugeResults) FetchAllResults(ctx context.Context, accessToken string, dr models.DateRange) ([]models.WorkoutResult, error) {
	n := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	g.mu.Lock()
	if n > g.peak.Load() {
		g.peak.Store(n)
	}
	g.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return workouts(100), nil
}

func TestBuildLeaderboardBoundsConcurrency(t *testing.T) {
	members := make([]models.Member, 20)
	tokens := &stubTokens{tokens: map[uuid.UUID]string{}}
	for i := range members {
		members[i] = linkedMember(uuid.NewString(), "")
		tokens.tokens[members[i].ID] = "tok"
	}
	results := &gaugeResults{}

	lb, err := newTestAggregator(&fakeMemberDirectory{members: members}, tokens, results, AggregatorConfig{Concurrency: 3}).
		BuildLeaderboard(context.Background(), models.PeriodWeek, testRange)
	if err != nil {
		t.Fatalf("BuildLeaderboard: %v", err)
	}
	if len(lb.Entries) != 20 {
		t.Fatalf("got %d entries, want 20", len(lb.Entries))
	}
	if peak := results.peak.Load(); peak > 3 {
		t.Fatalf("peak concurrency %d exceeds limit 3", peak)
	}
}

func TestBuildLeaderboardDeterministicTies(t *testing.T) {
	members := []models.Member{linkedMember("a", ""), linkedMember("b", ""), linkedMember("c", "")}
	tokens := &stubTokens{tokens: map[uuid.UUID]string{}}
	for _, m := range members {
		tokens.tokens[m.ID] = "same"
	}
	results := &stubResults{byToken: map[string][]models.WorkoutResult{"same": workouts(1000)}}
	agg := newTestAggregator(&fakeMemberDirectory{members: members}, tokens, results, AggregatorConfig{})

	for run := 0; run < 5; run++ {
		lb, err := agg.BuildLeaderboard(context.Background(), models.PeriodWeek, testRange)
		if err != nil {
			t.Fatalf("BuildLeaderboard: %v", err)
		}
		for i, m := range members {
			if lb.Entries[i].MemberID != m.ID {
				t.Fatalf("run %d: tie order changed at %d", run, i)
			}
		}
	}
}
