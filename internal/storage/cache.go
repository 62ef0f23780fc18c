package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ComputeFunc produces one day's entry from its inputs. It must be pure;
// caching and deduplication happen here, never inside the computation.
type ComputeFunc func(ctx context.Context, coords Coordinates, date time.Time, params CalculationParameters) (*PrayerTimesEntry, error)

// flight is the shared pending-result handle for one in-flight CacheKey.
// Waiters block on done and then read entry/err.
type flight struct {
	done  chan struct{}
	entry *PrayerTimesEntry
	err   error
}

// CacheConfig configures the two-tier cache.
type CacheConfig struct {
	MemoryCapacity int
	PrefetchDays   int
	Logger         zerolog.Logger
}

// PrayerCache is the two-tier prayer-time store: a bounded LRU memory tier
// over the persistent Store, with single-flight deduplication and a
// best-effort prefetch driver.
type PrayerCache struct {
	memory  *MemoryTier
	store   Store
	compute ComputeFunc
	logger  zerolog.Logger

	prefetchDays int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	inflight     map[CacheKey]*flight
	lastPrefetch string // bucket|fingerprint|date of the last prefetch trigger
}

// NewPrayerCache wires the memory tier, the persistent store and the
// computation together.
func NewPrayerCache(store Store, compute ComputeFunc, cfg CacheConfig) *PrayerCache {
	days := cfg.PrefetchDays
	if days <= 0 {
		days = 7
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PrayerCache{
		memory:       NewMemoryTier(cfg.MemoryCapacity),
		store:        store,
		compute:      compute,
		logger:       cfg.Logger,
		prefetchDays: days,
		ctx:          ctx,
		cancel:       cancel,
		inflight:     make(map[CacheKey]*flight),
	}
}

// Get resolves the entry for (date, coords, params): memory tier first, then
// the persistent tier, then a single-flight computation. A successful direct
// get also warms the following days in the background.
func (c *PrayerCache) Get(ctx context.Context, date time.Time, coords Coordinates, params CalculationParameters) (*PrayerTimesEntry, error) {
	entry, err := c.get(ctx, date, coords, params)
	if err != nil {
		return nil, err
	}
	c.triggerPrefetch(date, coords, params)
	return entry, nil
}

// Prefetch warms the cache for a batch of dates through the same
// single-flight path as Get, so concurrent direct requests coalesce.
// Failures are logged, never surfaced; cancellation stops the batch.
func (c *PrayerCache) Prefetch(ctx context.Context, dates []time.Time, coords Coordinates, params CalculationParameters) {
	for _, date := range dates {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.get(ctx, date, coords, params); err != nil {
			c.logger.Warn().Err(err).Str("date", DateKey(date)).Msg("prefetch failed")
		}
	}
}

// Invalidate drops entries matching the predicate from both tiers. It never
// recomputes; the next Get misses and recomputes.
func (c *PrayerCache) Invalidate(match func(*PrayerTimesEntry) bool) {
	dropped := c.memory.DeleteFunc(match)

	ctx := context.Background()
	entries, err := c.store.Entries(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("invalidate: could not list persisted entries")
		return
	}
	for _, entry := range entries {
		if !match(entry) {
			continue
		}
		if err := c.store.DeleteEntry(ctx, entry.Key); err != nil {
			c.logger.Warn().Err(err).Str("key", string(entry.Key)).Msg("invalidate: delete failed")
			continue
		}
		dropped++
	}
	c.logger.Info().Int("dropped", dropped).Msg("cache invalidated")
}

// OnMovement handles the resolver's significant-movement signal. Only the
// memory tier drops the old bucket: gets now target the new bucket anyway,
// and the persistent copies age out through retention, so an explicit
// request with the old coordinates can still hit.
func (c *PrayerCache) OnMovement(oldBucket string) {
	dropped := c.memory.DeleteFunc(func(e *PrayerTimesEntry) bool {
		return e.Bucket == oldBucket
	})
	c.logger.Info().Str("bucket", oldBucket).Int("dropped", dropped).Msg("movement invalidation")
}

// OnParametersChanged drops every entry computed under a different
// fingerprint from both tiers.
func (c *PrayerCache) OnParametersChanged(params CalculationParameters) {
	fingerprint := params.Fingerprint()
	c.Invalidate(func(e *PrayerTimesEntry) bool {
		return e.Fingerprint != fingerprint
	})
}

// Memory exposes the memory tier (the resolver shares its last-fix slot).
func (c *PrayerCache) Memory() *MemoryTier {
	return c.memory
}

// Close stops the background prefetch goroutines and waits for them to
// drain, so nothing writes to the store after shutdown. Gets stay usable;
// they just no longer warm following days.
func (c *PrayerCache) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *PrayerCache) get(ctx context.Context, date time.Time, coords Coordinates, params CalculationParameters) (*PrayerTimesEntry, error) {
	key := NewCacheKey(DateKey(date), coords.Bucket(), params.Fingerprint())

	// Memory hits never suspend and never touch the persistent tier.
	if entry, ok := c.memory.Get(key); ok {
		return entry, nil
	}

	c.mu.Lock()
	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.entry, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.inflight[key] = f
	c.mu.Unlock()

	// The flight runs on its own context: once started it completes and
	// every current waiter gets its result, even if the triggering caller
	// has gone away.
	f.entry, f.err = c.fetch(context.Background(), key, date, coords, params)

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(f.done)

	return f.entry, f.err
}

// fetch is the miss path: persistent tier, then computation + write-through.
func (c *PrayerCache) fetch(ctx context.Context, key CacheKey, date time.Time, coords Coordinates, params CalculationParameters) (*PrayerTimesEntry, error) {
	stored, err := c.store.GetEntry(ctx, key)
	if err != nil {
		// Read failures degrade to a miss.
		c.logger.Warn().Err(err).Str("key", string(key)).Msg("persistent tier read failed, recomputing")
	}
	if stored != nil {
		c.memory.Put(stored)
		return stored, nil
	}

	entry, err := c.compute(ctx, coords, date, params)
	if err != nil {
		return nil, err
	}

	c.memory.Put(entry)
	if err := c.store.PutEntry(ctx, entry); err != nil {
		// The caller still gets the computed value from memory.
		c.logger.Warn().Err(err).Str("key", string(key)).Msg("persistent tier write failed")
	}
	return entry, nil
}

// triggerPrefetch warms the prefetchDays days following a direct get, once
// per (bucket, fingerprint, date) so repeated reads don't fan out. The
// goroutine joins the cache's WaitGroup so Close can drain it.
func (c *PrayerCache) triggerPrefetch(date time.Time, coords Coordinates, params CalculationParameters) {
	if c.ctx.Err() != nil {
		return
	}
	sig := coords.Bucket() + "|" + params.Fingerprint() + "|" + DateKey(date)

	c.mu.Lock()
	if c.lastPrefetch == sig {
		c.mu.Unlock()
		return
	}
	c.lastPrefetch = sig
	c.mu.Unlock()

	dates := make([]time.Time, 0, c.prefetchDays)
	for i := 1; i <= c.prefetchDays; i++ {
		dates = append(dates, date.AddDate(0, 0, i))
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Prefetch(c.ctx, dates, coords, params)
	}()
}
