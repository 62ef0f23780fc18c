package storage

import (
	"context"
	"errors"
	"time"
)

// ErrStorage marks persistent-tier failures. Reads that fail with it are
// treated as misses by the cache; writes are logged and swallowed.
var ErrStorage = errors.New("storage error")

// Store is the persistent tier. Entries are written whole per CacheKey,
// never partially mutated; only the PrayerCache writes prayer entries.
type Store interface {
	// GetEntry returns the stored entry or (nil, nil) on a miss.
	GetEntry(ctx context.Context, key CacheKey) (*PrayerTimesEntry, error)
	PutEntry(ctx context.Context, entry *PrayerTimesEntry) error
	DeleteEntry(ctx context.Context, key CacheKey) error
	// Entries returns every stored entry; used for predicate invalidation
	// and retention pruning.
	Entries(ctx context.Context) ([]*PrayerTimesEntry, error)

	// Last known fix from a previous session. GetLastFix returns (nil, nil)
	// when none was ever persisted.
	GetLastFix(ctx context.Context) (*Coordinates, error)
	SetLastFix(ctx context.Context, fix Coordinates) error

	Close() error
}

// StoreOptions configures the persistent tier.
type StoreOptions struct {
	Retention time.Duration
}

// DefaultStoreOptions returns the stock retention horizon.
func DefaultStoreOptions() *StoreOptions {
	return &StoreOptions{
		Retention: DefaultRetention,
	}
}
