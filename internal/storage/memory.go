package storage

import (
	"sync"
	"time"
)

type memoryEntry struct {
	entry          *PrayerTimesEntry
	lastAccessedAt time.Time
}

// MemoryTier is the bounded in-memory cache tier. Lookups never block on
// I/O; eviction is least-recently-used.
type MemoryTier struct {
	mu       sync.RWMutex
	entries  map[CacheKey]*memoryEntry
	capacity int
	lastFix  *Coordinates
}

// NewMemoryTier creates an in-memory tier bounded to capacity entries.
func NewMemoryTier(capacity int) *MemoryTier {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryTier{
		entries:  make(map[CacheKey]*memoryEntry),
		capacity: capacity,
	}
}

// Get returns the entry for key, marking it recently used.
func (mt *MemoryTier) Get(key CacheKey) (*PrayerTimesEntry, bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	me, ok := mt.entries[key]
	if !ok {
		return nil, false
	}
	me.lastAccessedAt = time.Now()
	return me.entry, true
}

// Put stores an entry, evicting the least-recently-used one when the tier is
// full.
func (mt *MemoryTier) Put(entry *PrayerTimesEntry) {
	if entry == nil {
		return
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if _, exists := mt.entries[entry.Key]; !exists && len(mt.entries) >= mt.capacity {
		mt.evictOldestLocked()
	}
	mt.entries[entry.Key] = &memoryEntry{entry: entry, lastAccessedAt: time.Now()}
}

// Delete removes the entry for key if present.
func (mt *MemoryTier) Delete(key CacheKey) {
	mt.mu.Lock()
	delete(mt.entries, key)
	mt.mu.Unlock()
}

// DeleteFunc removes every entry the predicate matches and returns how many
// were dropped.
func (mt *MemoryTier) DeleteFunc(match func(*PrayerTimesEntry) bool) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	dropped := 0
	for key, me := range mt.entries {
		if match(me.entry) {
			delete(mt.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len reports how many entries the tier currently holds.
func (mt *MemoryTier) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.entries)
}

// LastFix returns the most recent fix observed this session, if any.
func (mt *MemoryTier) LastFix() *Coordinates {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.lastFix
}

// SetLastFix records the most recent fix for fallback use.
func (mt *MemoryTier) SetLastFix(fix Coordinates) {
	mt.mu.Lock()
	mt.lastFix = &fix
	mt.mu.Unlock()
}

func (mt *MemoryTier) evictOldestLocked() {
	var oldestKey CacheKey
	var oldest time.Time
	first := true
	for key, me := range mt.entries {
		if first || me.lastAccessedAt.Before(oldest) {
			oldestKey = key
			oldest = me.lastAccessedAt
			first = false
		}
	}
	if !first {
		delete(mt.entries, oldestKey)
	}
}
