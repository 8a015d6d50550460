// Package cache memoizes monthly summaries between ledger writes.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"bottega/internal/core"
)

// ComputeFunc produces a fresh summary for one month.
type ComputeFunc func(ctx context.Context) (core.Summary, error)

// Summaries caches one summary per (year, month). Every key carries a
// generation; a computation started before an invalidation is returned to
// its caller but never stored.
type Summaries struct {
	lru   *LRU[core.Summary]
	group singleflight.Group

	// mu orders stores against invalidations: the generation check and the
	// LRU write happen under it, as do the bump and the delete.
	mu          sync.Mutex
	generations map[string]uint64
	epoch       uint64
}

func NewSummaries(size int, ttl time.Duration) *Summaries {
	return &Summaries{
		lru:         NewLRU[core.Summary](size, ttl),
		generations: make(map[string]uint64),
	}
}

func key(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func (c *Summaries) version(k string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versionLocked(k)
}

func (c *Summaries) versionLocked(k string) uint64 {
	return c.epoch<<32 | c.generations[k]
}

// store caches s unless the month was invalidated since started.
func (c *Summaries) store(k string, started uint64, s core.Summary) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versionLocked(k) != started {
		return false
	}
	c.lru.Set(k, s)
	return true
}

// Summary returns the cached summary for the month or computes it.
// Concurrent callers for the same month share one computation.
func (c *Summaries) Summary(ctx context.Context, year, month int, compute ComputeFunc) (core.Summary, error) {
	k := key(year, month)
	if s, ok := c.lru.Get(k); ok {
		return s, nil
	}

	started := c.version(k)
	v, err, shared := c.group.Do(fmt.Sprintf("%s#%d", k, started), func() (any, error) {
		s, err := compute(ctx)
		if err != nil {
			return core.Summary{}, err
		}
		if !c.store(k, started, s) {
			slog.DebugContext(ctx, "Stale summary not cached", "month", k)
		}
		return s, nil
	})
	if err != nil {
		return core.Summary{}, err
	}
	if shared {
		slog.DebugContext(ctx, "Summary computation shared", "month", k)
	}
	return v.(core.Summary), nil
}

// InvalidateMonth drops the month's entry and bumps its generation.
func (c *Summaries) InvalidateMonth(year, month int) {
	k := key(year, month)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[k]++
	c.lru.Delete(k)
}

// Purge drops every month. Used when a user, category or supplier changes,
// since names and rates appear in every summary.
func (c *Summaries) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.lru.Purge()
}

// CleanExpired lets Janitor sweep the summary cache.
func (c *Summaries) CleanExpired() int {
	return c.lru.CleanExpired()
}

// Cleaner is anything with expiring entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically sweeps registered caches until the context ends.
func Janitor(ctx context.Context, interval time.Duration, caches ...Cleaner) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, c := range caches {
				total += c.CleanExpired()
			}
			if total > 0 {
				slog.Debug("Expired cache entries removed", "count", total)
			}
		}
	}
}
