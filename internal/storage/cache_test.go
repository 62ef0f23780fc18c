package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store so cache tests run without Redis.
type fakeStore struct {
	mu       sync.Mutex
	entries  map[CacheKey]*PrayerTimesEntry
	lastFix  *Coordinates
	failGets bool
	failPuts bool
	puts     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[CacheKey]*PrayerTimesEntry)}
}

func (fs *fakeStore) GetEntry(_ context.Context, key CacheKey) (*PrayerTimesEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.failGets {
		return nil, fmt.Errorf("%w: injected read failure", ErrStorage)
	}
	return fs.entries[key], nil
}

func (fs *fakeStore) PutEntry(_ context.Context, entry *PrayerTimesEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.puts++
	if fs.failPuts {
		return fmt.Errorf("%w: injected write failure", ErrStorage)
	}
	fs.entries[entry.Key] = entry
	return nil
}

func (fs *fakeStore) DeleteEntry(_ context.Context, key CacheKey) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.entries, key)
	return nil
}

func (fs *fakeStore) Entries(context.Context) ([]*PrayerTimesEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]*PrayerTimesEntry, 0, len(fs.entries))
	for _, e := range fs.entries {
		out = append(out, e)
	}
	return out, nil
}

func (fs *fakeStore) GetLastFix(context.Context) (*Coordinates, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lastFix, nil
}

func (fs *fakeStore) SetLastFix(_ context.Context, fix Coordinates) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.lastFix = &fix
	return nil
}

func (fs *fakeStore) Close() error { return nil }

func (fs *fakeStore) putCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.puts
}

// countingCompute counts computations per CacheKey and can hold them open
// until released.
type countingCompute struct {
	mu     sync.Mutex
	counts map[CacheKey]int
	block  chan struct{} // when set, computations wait on it
}

func newCountingCompute() *countingCompute {
	return &countingCompute{counts: make(map[CacheKey]int)}
}

func (cc *countingCompute) fn(_ context.Context, coords Coordinates, date time.Time, params CalculationParameters) (*PrayerTimesEntry, error) {
	key := NewCacheKey(DateKey(date), coords.Bucket(), params.Fingerprint())
	cc.mu.Lock()
	cc.counts[key]++
	block := cc.block
	cc.mu.Unlock()
	if block != nil {
		<-block
	}

	var times [NumPrayers]time.Time
	base := date.UTC().Truncate(24 * time.Hour)
	for i, p := range AllPrayers {
		times[p] = base.Add(time.Duration(5+3*i) * time.Hour)
	}
	return &PrayerTimesEntry{
		Key:         key,
		Date:        DateKey(date),
		Bucket:      coords.Bucket(),
		Fingerprint: params.Fingerprint(),
		Times:       times,
		ComputedAt:  time.Now().UTC(),
	}, nil
}

func (cc *countingCompute) count(key CacheKey) int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.counts[key]
}

var (
	mecca  = Coordinates{Latitude: 21.4225, Longitude: 39.8262}
	riyadh = Coordinates{Latitude: 24.7136, Longitude: 46.6753}
	params = CalculationParameters{Method: "MuslimWorldLeague"}
)

func testDate() time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func newTestCache(store Store, compute ComputeFunc) *PrayerCache {
	return NewPrayerCache(store, compute, CacheConfig{
		PrefetchDays: 2,
		Logger:       zerolog.Nop(),
	})
}

func TestGetSingleFlight(t *testing.T) {
	cc := newCountingCompute()
	cc.block = make(chan struct{})
	cache := newTestCache(newFakeStore(), cc.fn)

	const callers = 20
	results := make([]*PrayerTimesEntry, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Get(context.Background(), testDate(), mecca, params)
		}(i)
	}

	// Let the callers pile up on the in-flight computation, then release.
	time.Sleep(50 * time.Millisecond)
	close(cc.block)
	wg.Wait()

	key := NewCacheKey(DateKey(testDate()), mecca.Bucket(), params.Fingerprint())
	assert.Equal(t, 1, cc.count(key), "concurrent gets must coalesce into one computation")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i], "all waiters must observe the same result")
	}
}

func TestGetMemoryHit(t *testing.T) {
	cc := newCountingCompute()
	cache := newTestCache(newFakeStore(), cc.fn)

	first, err := cache.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err)

	key := NewCacheKey(DateKey(testDate()), mecca.Bucket(), params.Fingerprint())
	assert.Equal(t, 1, cc.count(key), "second get must be a memory-tier hit")
	assert.Same(t, first, second)
}

func TestPersistentTierHitRepopulatesMemory(t *testing.T) {
	cc := newCountingCompute()
	store := newFakeStore()

	warm := newTestCache(store, cc.fn)
	_, err := warm.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err)

	// A fresh cache over the same store simulates a restart: the entry
	// comes back from the persistent tier without recomputation.
	cold := newTestCache(store, cc.fn)
	entry, err := cold.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err)

	key := NewCacheKey(DateKey(testDate()), mecca.Bucket(), params.Fingerprint())
	assert.Equal(t, 1, cc.count(key))
	assert.Equal(t, key, entry.Key)

	// And now it's in the cold cache's memory tier.
	_, ok := cold.Memory().Get(key)
	assert.True(t, ok)
}

func TestStorageReadFailureDegradesToMiss(t *testing.T) {
	cc := newCountingCompute()
	store := newFakeStore()
	store.failGets = true
	cache := newTestCache(store, cc.fn)

	entry, err := cache.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err, "read failures must fall through to computation")
	assert.NotNil(t, entry)
}

func TestStorageWriteFailureStillReturnsEntry(t *testing.T) {
	cc := newCountingCompute()
	store := newFakeStore()
	store.failPuts = true
	cache := newTestCache(store, cc.fn)

	entry, err := cache.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err, "write failures are swallowed, the value comes from memory")
	require.NotNil(t, entry)

	// Memory tier still serves it.
	again, err := cache.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err)
	assert.Same(t, entry, again)
}

func TestMovementInvalidation(t *testing.T) {
	cc := newCountingCompute()
	store := newFakeStore()
	cache := newTestCache(store, cc.fn)

	_, err := cache.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err)

	cache.OnMovement(mecca.Bucket())

	// The new bucket always misses and computes fresh.
	_, err = cache.Get(context.Background(), testDate(), riyadh, params)
	require.NoError(t, err)
	newKey := NewCacheKey(DateKey(testDate()), riyadh.Bucket(), params.Fingerprint())
	assert.Equal(t, 1, cc.count(newKey))

	// The old bucket was only dropped from memory; the persistent copy
	// still serves an explicit request without recomputation.
	oldKey := NewCacheKey(DateKey(testDate()), mecca.Bucket(), params.Fingerprint())
	_, ok := cache.Memory().Get(oldKey)
	assert.False(t, ok, "old bucket must leave the memory tier")

	_, err = cache.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err)
	assert.Equal(t, 1, cc.count(oldKey), "old bucket must come back from the persistent tier")
}

func TestParameterChangeInvalidation(t *testing.T) {
	cc := newCountingCompute()
	store := newFakeStore()
	cache := newTestCache(store, cc.fn)

	_, err := cache.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err)

	changed := params
	changed.Offsets[Asr] = 10
	cache.OnParametersChanged(changed)

	// Entries under the old fingerprint are gone from both tiers.
	oldKey := NewCacheKey(DateKey(testDate()), mecca.Bucket(), params.Fingerprint())
	_, ok := cache.Memory().Get(oldKey)
	assert.False(t, ok)
	stored, err := store.GetEntry(context.Background(), oldKey)
	require.NoError(t, err)
	assert.Nil(t, stored)

	// The next get under the new fingerprint computes fresh.
	_, err = cache.Get(context.Background(), testDate(), mecca, changed)
	require.NoError(t, err)
	newKey := NewCacheKey(DateKey(testDate()), mecca.Bucket(), changed.Fingerprint())
	assert.Equal(t, 1, cc.count(newKey))
}

func TestCloseDrainsBackgroundPrefetch(t *testing.T) {
	cc := newCountingCompute()
	store := newFakeStore()
	cache := newTestCache(store, cc.fn)

	_, err := cache.Get(context.Background(), testDate(), mecca, params)
	require.NoError(t, err)

	// Close waits for the background prefetch of the following days; once
	// it returns, nothing keeps writing to the store.
	cache.Close()
	settled := store.putCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, store.putCount())

	// Direct gets still work after Close, they just stop warming ahead.
	_, err = cache.Get(context.Background(), testDate().AddDate(0, 0, 7), mecca, params)
	require.NoError(t, err)
}

func TestPrefetchWarmsFollowingDays(t *testing.T) {
	cc := newCountingCompute()
	cache := newTestCache(newFakeStore(), cc.fn)

	dates := []time.Time{testDate(), testDate().AddDate(0, 0, 1), testDate().AddDate(0, 0, 2)}
	cache.Prefetch(context.Background(), dates, mecca, params)

	for _, date := range dates {
		key := NewCacheKey(DateKey(date), mecca.Bucket(), params.Fingerprint())
		assert.Equal(t, 1, cc.count(key))
		_, ok := cache.Memory().Get(key)
		assert.True(t, ok, "prefetched %s must be in the memory tier", DateKey(date))
	}

	// A direct get for a prefetched date is a hit, not a second computation.
	_, err := cache.Get(context.Background(), dates[1], mecca, params)
	require.NoError(t, err)
	key := NewCacheKey(DateKey(dates[1]), mecca.Bucket(), params.Fingerprint())
	assert.Equal(t, 1, cc.count(key))
}
