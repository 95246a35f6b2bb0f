package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/erg-leaderboard/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestGetMissOnEmptyCache(t *testing.T) {
	c := NewLeaderboardCache()
	if _, ok := c.Get("leaderboard:week"); ok {
		t.Fatal("expected miss on a fresh cache")
	}
}

func TestSetThenGetWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLeaderboardCacheWithClock(clock.Now)

	lb := models.Leaderboard{Period: models.PeriodWeek, Entries: []models.LeaderboardEntry{{Rank: 1, TotalMeters: 5000}}}
	c.Set("leaderboard:week", lb, 300*time.Second)

	clock.Advance(299 * time.Second)
	got, ok := c.Get("leaderboard:week")
	if !ok {
		t.Fatal("expected hit before TTL elapsed")
	}
	if len(got.Entries) != 1 || got.Entries[0].TotalMeters != 5000 {
		t.Fatalf("unexpected cached value %+v", got)
	}
}

func TestEntryExpiresAtTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLeaderboardCacheWithClock(clock.Now)

	c.Set("leaderboard:month", models.Leaderboard{Period: models.PeriodMonth}, 300*time.Second)
	clock.Advance(300 * time.Second)

	if _, ok := c.Get("leaderboard:month"); ok {
		t.Fatal("expected miss once TTL elapsed")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not evicted, len=%d", c.Len())
	}
}

func TestNonPositiveTTLUsesDefault(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLeaderboardCacheWithClock(clock.Now)

	c.Set("k", models.Leaderboard{}, 0)
	clock.Advance(DefaultTTL - time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected default TTL to apply")
	}
}

func TestClearDropsEverything(t *testing.T) {
	c := NewLeaderboardCache()
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), models.Leaderboard{}, time.Minute)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len after Clear = %d", c.Len())
	}
	if _, ok := c.Get("k0"); ok {
		t.Fatal("expected miss after Clear")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewLeaderboardCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			c.Set(key, models.Leaderboard{}, time.Minute)
			c.Get(key)
			if i%10 == 0 {
				c.Clear()
			}
		}(i)
	}
	wg.Wait()
}
