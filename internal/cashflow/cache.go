package cashflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CachedRepository keeps recently read runs in memory in front of another
// repository, so repeated exports of the same run skip decoding the stored
// grid. Entries expire after ttl; writes go straight through.
type CachedRepository struct {
	Repository

	ttl      time.Duration
	mu       sync.RWMutex
	data     map[uuid.UUID]*cacheEntry
	cleanup  *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time

	statsMu sync.Mutex
	hits    int64
	misses  int64
}

type cacheEntry struct {
	run        *ProjectionRun
	expiration time.Time
}

// CacheStats reports cache effectiveness
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewCachedRepository wraps repo with a run cache. Call Stop to release the
// cleanup goroutine.
func NewCachedRepository(repo Repository, ttl time.Duration) *CachedRepository {
	c := &CachedRepository{
		Repository: repo,
		ttl:        ttl,
		data:       make(map[uuid.UUID]*cacheEntry),
		cleanup:    time.NewTicker(time.Minute),
		done:       make(chan struct{}),
		now:        time.Now,
	}

	go c.cleanupLoop()

	return c
}

func (c *CachedRepository) CreateRun(ctx context.Context, run *ProjectionRun) error {
	if err := c.Repository.CreateRun(ctx, run); err != nil {
		return err
	}
	c.set(run)
	return nil
}

func (c *CachedRepository) GetRun(ctx context.Context, id uuid.UUID) (*ProjectionRun, error) {
	if run, ok := c.get(id); ok {
		return run, nil
	}

	run, err := c.Repository.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(run)
	return run, nil
}

func (c *CachedRepository) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	c.delete(id)
	return c.Repository.SetArchiveKey(ctx, id, key)
}

func (c *CachedRepository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) ([]*ProjectionRun, error) {
	deleted, err := c.Repository.DeleteRunsBefore(ctx, cutoff)
	for _, run := range deleted {
		c.delete(run.ID)
	}
	return deleted, err
}

func (c *CachedRepository) get(id uuid.UUID) (*ProjectionRun, bool) {
	c.mu.RLock()
	entry, ok := c.data[id]
	c.mu.RUnlock()

	hit := ok && c.now().Before(entry.expiration)

	c.statsMu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.statsMu.Unlock()

	if !hit {
		return nil, false
	}
	copied := *entry.run
	return &copied, true
}

func (c *CachedRepository) set(run *ProjectionRun) {
	stored := *run

	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[run.ID] = &cacheEntry{
		run:        &stored,
		expiration: c.now().Add(c.ttl),
	}
}

func (c *CachedRepository) delete(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, id)
}

// cleanupLoop periodically removes expired entries
func (c *CachedRepository) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *CachedRepository) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, id)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (c *CachedRepository) Stop() {
	c.stopOnce.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}

// Stats returns cache statistics
func (c *CachedRepository) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.data)
	c.mu.RUnlock()

	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Size:    size,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}
