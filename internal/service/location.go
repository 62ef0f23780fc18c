package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/athanhub/athan-service/internal/storage"
)

// LocationProvider is the raw location sensor. RequestFix honors ctx
// cancellation; the resolver bounds every call with a stage timeout.
type LocationProvider interface {
	RequestFix(ctx context.Context) (storage.Coordinates, error)
}

// StaticLocationProvider always reports the same position. Servers and
// fixed installations use it in place of a GPS sensor.
type StaticLocationProvider struct {
	Fix storage.Coordinates
}

func (s StaticLocationProvider) RequestFix(context.Context) (storage.Coordinates, error) {
	fix := s.Fix
	fix.AcquiredAt = time.Now().UTC()
	return fix, nil
}

// FixSource identifies which fallback stage produced a resolved location.
type FixSource int

const (
	SourceSensor FixSource = iota
	SourceMemory
	SourceStore
	SourceManual
)

func (s FixSource) String() string {
	switch s {
	case SourceSensor:
		return "sensor"
	case SourceMemory:
		return "memory"
	case SourceStore:
		return "store"
	case SourceManual:
		return "manual"
	}
	return "unknown"
}

// ResolvedLocation is a fix plus the stage that produced it, so callers can
// flag fixes of unknown age as possibly stale.
type ResolvedLocation struct {
	storage.Coordinates
	Source FixSource
}

// ResolverConfig tunes the fallback ladder.
type ResolverConfig struct {
	FixTimeout        time.Duration    // live sensor stage
	StoreTimeout      time.Duration    // persisted-fix stage
	FixFreshness      time.Duration    // validity window of the in-memory fix
	AccuracyThreshold float64          // meters, 0 = accept any
	MovementThreshold float64          // meters
	Now               func() time.Time // time source, defaults to time.Now
	Logger            zerolog.Logger
}

// Resolver obtains the user's position through an ordered fallback ladder:
// live sensor fix, recent in-memory fix, persisted fix from a previous
// session, manual override. Each stage is bounded by a timeout; the first
// success wins.
type Resolver struct {
	provider LocationProvider
	memory   *storage.MemoryTier
	store    storage.Store
	cfg      ResolverConfig

	// manual reads the current manual-location override from settings.
	manual func() *storage.Coordinates
	// onMovement receives the old bucket when a new fix lands beyond the
	// significant-movement threshold.
	onMovement func(oldBucket string)

	mu       sync.Mutex
	lastUsed *storage.Coordinates // fix the currently cached entries were keyed on
}

// NewResolver wires the ladder. provider and store may be nil; their stages
// are skipped.
func NewResolver(provider LocationProvider, memory *storage.MemoryTier, store storage.Store,
	manual func() *storage.Coordinates, onMovement func(string), cfg ResolverConfig) *Resolver {
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{
		provider:   provider,
		memory:     memory,
		store:      store,
		cfg:        cfg,
		manual:     manual,
		onMovement: onMovement,
	}
}

// Resolve walks the fallback ladder and returns the first usable fix.
func (r *Resolver) Resolve(ctx context.Context) (ResolvedLocation, error) {
	// Stage 1: live sensor fix, gated on accuracy.
	if r.provider != nil {
		fixCtx, cancel := context.WithTimeout(ctx, r.cfg.FixTimeout)
		fix, err := r.provider.RequestFix(fixCtx)
		cancel()
		switch {
		case err != nil:
			r.cfg.Logger.Debug().Err(err).Msg("sensor fix unavailable, falling back")
		case fix.Validate() != nil:
			r.cfg.Logger.Warn().Float64("lat", fix.Latitude).Float64("lon", fix.Longitude).Msg("sensor fix out of range, falling back")
		case r.cfg.AccuracyThreshold > 0 && fix.Accuracy > r.cfg.AccuracyThreshold:
			r.cfg.Logger.Debug().Float64("accuracy", fix.Accuracy).Msg("sensor fix too coarse, falling back")
		default:
			if fix.AcquiredAt.IsZero() {
				fix.AcquiredAt = r.cfg.Now().UTC()
			}
			r.remember(ctx, fix)
			r.NoteFix(fix)
			return ResolvedLocation{Coordinates: fix, Source: SourceSensor}, nil
		}
	}

	// Stage 2: last fix seen this session, inside the freshness window.
	if mem := r.memory.LastFix(); mem != nil && r.cfg.Now().Sub(mem.AcquiredAt) < r.cfg.FixFreshness {
		r.NoteFix(*mem)
		return ResolvedLocation{Coordinates: *mem, Source: SourceMemory}, nil
	}

	// Stage 3: fix persisted by a previous session. Age unknown.
	if r.store != nil {
		storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
		persisted, err := r.store.GetLastFix(storeCtx)
		cancel()
		if err != nil {
			r.cfg.Logger.Warn().Err(err).Msg("could not load persisted fix")
		} else if persisted != nil {
			r.memory.SetLastFix(*persisted)
			r.NoteFix(*persisted)
			return ResolvedLocation{Coordinates: *persisted, Source: SourceStore}, nil
		}
	}

	// Stage 4: user-configured manual location.
	if manual := r.manual(); manual != nil {
		r.NoteFix(*manual)
		return ResolvedLocation{Coordinates: *manual, Source: SourceManual}, nil
	}

	return ResolvedLocation{}, fmt.Errorf("%w: all fallback stages exhausted", ErrLocationUnavailable)
}

// NoteFix runs movement detection against the fix the cached entries were
// keyed on and fires the invalidation hook when the new fix crossed the
// significant-movement threshold into a different bucket.
func (r *Resolver) NoteFix(fix storage.Coordinates) {
	r.mu.Lock()
	prev := r.lastUsed
	r.lastUsed = &fix
	r.mu.Unlock()

	if prev == nil || r.onMovement == nil {
		return
	}
	if prev.Bucket() == fix.Bucket() {
		return
	}
	if dist := prev.DistanceMeters(fix); dist > r.cfg.MovementThreshold {
		r.cfg.Logger.Info().
			Float64("distance_m", dist).
			Str("from", prev.Bucket()).
			Str("to", fix.Bucket()).
			Msg("significant movement detected")
		r.onMovement(prev.Bucket())
	}
}

// LastUsed returns the fix the currently cached entries were keyed on.
func (r *Resolver) LastUsed() *storage.Coordinates {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUsed
}

// remember refreshes the in-memory and persisted last-known fix so later
// sessions can fall back to it. Persist failures are logged and swallowed.
func (r *Resolver) remember(ctx context.Context, fix storage.Coordinates) {
	r.memory.SetLastFix(fix)
	if r.store == nil {
		return
	}
	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	if err := r.store.SetLastFix(storeCtx, fix); err != nil {
		r.cfg.Logger.Warn().Err(err).Msg("could not persist last fix")
	}
}
