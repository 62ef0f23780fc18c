package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the Store interface using Redis.
type RedisStore struct {
	client *redis.Client
	opts   *StoreOptions
}

// NewRedisStore creates a new Redis-backed store. addr is a URL of the form
// tcp://[:password@]host:port[/db].
func NewRedisStore(addr string, options ...RedisOption) (*RedisStore, error) {
	opts := DefaultStoreOptions()

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("can't parse url for redis: %w", err)
	}
	var passwd string
	if u.User != nil {
		passwd, _ = u.User.Password()
	}
	db := 0
	if 1 < len(u.Path) {
		db, err = strconv.Atoi(u.Path[1:])
		if err != nil {
			return nil, fmt.Errorf("can't parse redis db from %q: %w", addr, err)
		}
	}

	client := redis.NewClient(&redis.Options{
		Network:  u.Scheme,
		Addr:     u.Host,
		Password: passwd,
		DB:       db,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &RedisStore{
		client: client,
		opts:   opts,
	}

	for _, option := range options {
		option(store)
	}

	return store, nil
}

// RedisOption is a function that configures the Redis store.
type RedisOption func(*RedisStore)

// WithStoreOptions sets store options.
func WithStoreOptions(opts *StoreOptions) RedisOption {
	return func(rs *RedisStore) {
		rs.opts = opts
	}
}

func (rs *RedisStore) GetEntry(ctx context.Context, key CacheKey) (*PrayerTimesEntry, error) {
	data, err := rs.client.Get(ctx, entryKeyPrefix+string(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // miss
		}
		return nil, fmt.Errorf("%w: get entry %s: %v", ErrStorage, key, err)
	}

	var entry PrayerTimesEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: unmarshal entry %s: %v", ErrStorage, key, err)
	}
	return &entry, nil
}

func (rs *RedisStore) PutEntry(ctx context.Context, entry *PrayerTimesEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrStorage)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: marshal entry %s: %v", ErrStorage, entry.Key, err)
	}
	if err := rs.client.Set(ctx, entryKeyPrefix+string(entry.Key), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: put entry %s: %v", ErrStorage, entry.Key, err)
	}

	// Retention is enforced lazily so writes stay the only path that pays
	// for it.
	rs.pruneExpired(ctx)
	return nil
}

func (rs *RedisStore) DeleteEntry(ctx context.Context, key CacheKey) error {
	if err := rs.client.Del(ctx, entryKeyPrefix+string(key)).Err(); err != nil {
		return fmt.Errorf("%w: delete entry %s: %v", ErrStorage, key, err)
	}
	return nil
}

func (rs *RedisStore) Entries(ctx context.Context) ([]*PrayerTimesEntry, error) {
	keys, err := rs.scanEntryKeys(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]*PrayerTimesEntry, 0, len(keys))
	for _, k := range keys {
		data, err := rs.client.Get(ctx, k).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // pruned between scan and get
			}
			return nil, fmt.Errorf("%w: get entry %s: %v", ErrStorage, k, err)
		}
		var entry PrayerTimesEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("%w: unmarshal entry %s: %v", ErrStorage, k, err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (rs *RedisStore) GetLastFix(ctx context.Context) (*Coordinates, error) {
	data, err := rs.client.Get(ctx, lastFixKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // never persisted
		}
		return nil, fmt.Errorf("%w: get last fix: %v", ErrStorage, err)
	}

	var fix Coordinates
	if err := json.Unmarshal(data, &fix); err != nil {
		return nil, fmt.Errorf("%w: unmarshal last fix: %v", ErrStorage, err)
	}
	return &fix, nil
}

func (rs *RedisStore) SetLastFix(ctx context.Context, fix Coordinates) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("%w: marshal last fix: %v", ErrStorage, err)
	}
	if err := rs.client.Set(ctx, lastFixKey, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: set last fix: %v", ErrStorage, err)
	}
	return nil
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

// pruneExpired deletes entries dated before the retention horizon. The date
// is the first cache-key component, so keys alone are enough to decide.
func (rs *RedisStore) pruneExpired(ctx context.Context) {
	keys, err := rs.scanEntryKeys(ctx)
	if err != nil {
		return // best effort; next write retries
	}

	cutoff := DateKey(time.Now().UTC().Add(-rs.opts.Retention))
	for _, k := range keys {
		date, _, found := strings.Cut(strings.TrimPrefix(k, entryKeyPrefix), "|")
		if !found {
			continue
		}
		if date < cutoff {
			rs.client.Del(ctx, k)
		}
	}
}

func (rs *RedisStore) scanEntryKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := rs.client.Scan(ctx, cursor, entryKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan entries: %v", ErrStorage, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
