package cache

import (
	"sync"
	"time"

	"github.com/Dosada05/erg-leaderboard/models"
)

const DefaultTTL = 300 * time.Second

type entry struct {
	value     models.Leaderboard
	expiresAt time.Time
}

// LeaderboardCache is a process-local TTL map. It starts empty, is safe for
// concurrent use and is discarded with the process. Concurrent writes to the
// same key resolve as last write wins.
type LeaderboardCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func NewLeaderboardCache() *LeaderboardCache {
	return NewLeaderboardCacheWithClock(time.Now)
}

func NewLeaderboardCacheWithClock(now func() time.Time) *LeaderboardCache {
	return &LeaderboardCache{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Get returns the cached leaderboard for key. Expired entries are reported as
// a miss and evicted.
func (c *LeaderboardCache) Get(key string) (models.Leaderboard, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return models.Leaderboard{}, false
	}

	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return models.Leaderboard{}, false
	}
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl falls back to DefaultTTL.
func (c *LeaderboardCache) Set(key string, value models.Leaderboard, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

func (c *LeaderboardCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

func (c *LeaderboardCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
