package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/athanhub/athan-service/internal/storage"
)

// AthanService is the self-managing orchestrator: it composes the resolver,
// calculator, cache and reminder scheduler behind the engine's public API
// and keeps the upcoming days warm in the background.
type AthanService struct {
	store     storage.Store
	cache     *storage.PrayerCache
	resolver  *Resolver
	reminders *ReminderScheduler

	opts   *ServiceOptions
	logger zerolog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	reconcileCh chan struct{}

	mu          sync.RWMutex
	settings    storage.Settings
	initialized bool
}

// NewAthanService creates a new self-managing athan service
func NewAthanService(options ...ServiceOption) (*AthanService, error) {
	opts := DefaultServiceOptions()
	for _, option := range options {
		option(opts)
	}

	logger := zerolog.Nop()
	if opts.EnableLogging {
		logger = zlog.With().Str("component", "athan-service").Logger()
	}

	store := opts.Store
	if store == nil {
		redisStore, err := storage.NewRedisStore(opts.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis store: %w", err)
		}
		store = redisStore
	}

	cache := storage.NewPrayerCache(store, Calculator{}.ComputeFunc(), storage.CacheConfig{
		MemoryCapacity: opts.MemoryCapacity,
		PrefetchDays:   opts.PrefetchDays,
		Logger:         logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	service := &AthanService{
		store:       store,
		cache:       cache,
		reminders:   NewReminderScheduler(opts.Notifier, logger),
		opts:        opts,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		reconcileCh: make(chan struct{}, 1),
		settings:    opts.Settings,
	}

	service.resolver = NewResolver(
		opts.LocationProvider,
		cache.Memory(),
		store,
		service.manualLocation,
		cache.OnMovement,
		ResolverConfig{
			FixTimeout:        opts.FixTimeout,
			FixFreshness:      opts.FixFreshness,
			AccuracyThreshold: opts.AccuracyThreshold,
			MovementThreshold: opts.MovementThreshold,
			Now:               opts.Now,
			Logger:            logger,
		},
	)

	return service, nil
}

// Initialize starts the service: it recovers the persisted fix, starts the
// background schedulers and fires a best-effort prefetch of the upcoming
// week. Prefetch failure never blocks initialization.
func (s *AthanService) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	s.logger.Info().Msg("initializing athan service")

	if fix, err := s.store.GetLastFix(s.ctx); err != nil {
		s.logger.Warn().Err(err).Msg("could not recover persisted fix")
	} else if fix != nil {
		s.cache.Memory().SetLastFix(*fix)
	}

	s.startSchedulers()
	s.initialized = true

	go func() {
		s.warmUpcoming()
		s.requestReconcile()
	}()

	s.logger.Info().Msg("athan service initialized")
	return nil
}

// GetPrayerTimes resolves coordinates and returns the entry for the given
// date. When resolution fails but a previously used fix exists, the result
// is served against that fix with Stale set instead of failing outright.
func (s *AthanService) GetPrayerTimes(ctx context.Context, date time.Time) (*PrayerTimesResult, error) {
	if !s.isInitialized() {
		return nil, ErrNotInitialized
	}

	coords, stale, err := s.resolveForRead(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := s.cache.Get(ctx, date, coords, s.currentSettings().Parameters())
	if err != nil {
		return nil, err
	}

	s.requestReconcile()
	return &PrayerTimesResult{Entry: entry, Stale: stale}, nil
}

// GetNextPrayer scans today's instants in chronological order for the first
// one after now; when none remain it rolls over to tomorrow's first prayer.
// It never returns an elapsed prayer after midnight.
func (s *AthanService) GetNextPrayer(ctx context.Context) (*NextPrayerResult, error) {
	now := s.opts.Now()

	today, err := s.GetPrayerTimes(ctx, now)
	if err != nil {
		return nil, err
	}
	if p, at, ok := today.Entry.NextAfter(now); ok {
		return &NextPrayerResult{Prayer: p, Name: p.String(), Time: at, Stale: today.Stale}, nil
	}

	tomorrow, err := s.GetPrayerTimes(ctx, now.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	p, at, ok := tomorrow.Entry.NextAfter(now)
	if !ok {
		return nil, fmt.Errorf("%w: no upcoming prayer found", ErrCalculation)
	}
	return &NextPrayerResult{Prayer: p, Name: p.String(), Time: at, Stale: tomorrow.Stale}, nil
}

// OnSettingsChanged swaps in a new settings snapshot, invalidates entries
// computed under the old parameter fingerprint and queues a reminder
// reconcile. This is one of the two mutation entry points into the engine.
func (s *AthanService) OnSettingsChanged(settings storage.Settings) error {
	if settings.ManualLocation != nil {
		if err := settings.ManualLocation.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	previous := s.settings
	s.settings = settings
	s.mu.Unlock()

	if previous.Parameters().Fingerprint() != settings.Parameters().Fingerprint() {
		s.cache.OnParametersChanged(settings.Parameters())
	}
	s.requestReconcile()
	s.logger.Info().Str("method", settings.Method).Msg("settings updated")
	return nil
}

// OnLocationChanged feeds an externally observed fix into the engine. The
// resolver's movement detection decides whether cached entries for the old
// bucket must go. This is the other mutation entry point.
func (s *AthanService) OnLocationChanged(coords storage.Coordinates) error {
	if err := coords.Validate(); err != nil {
		return err
	}
	if coords.AcquiredAt.IsZero() {
		coords.AcquiredAt = s.opts.Now().UTC()
	}

	s.cache.Memory().SetLastFix(coords)
	if err := s.store.SetLastFix(s.ctx, coords); err != nil {
		s.logger.Warn().Err(err).Msg("could not persist fix")
	}
	s.resolver.NoteFix(coords)
	s.requestReconcile()
	return nil
}

// Stop gracefully shuts down the service
func (s *AthanService) Stop() {
	s.logger.Info().Msg("stopping athan service")
	s.cancel()
	s.wg.Wait()
	s.cache.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("store close failed")
	}
	s.logger.Info().Msg("athan service stopped")
}

// startSchedulers starts the background goroutines that keep the cache warm
// and the reminder schedule healed across day boundaries.
func (s *AthanService) startSchedulers() {
	s.wg.Add(2)
	go s.prefetchScheduler()
	go s.reconcileScheduler()
}

func (s *AthanService) prefetchScheduler() {
	defer s.wg.Done()

	interval := addJitter(s.opts.PrefetchInterval, 0.1)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("prefetch scheduler started")
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info().Msg("prefetch scheduler stopped")
			return
		case <-ticker.C:
			s.warmUpcoming()
		}
	}
}

func (s *AthanService) reconcileScheduler() {
	defer s.wg.Done()

	interval := addJitter(s.opts.ReconcileInterval, 0.1)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("reconcile scheduler started")
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info().Msg("reconcile scheduler stopped")
			return
		case <-ticker.C:
			s.reconcile()
		case <-s.reconcileCh:
			s.reconcile()
		}
	}
}

// warmUpcoming prefetches today plus the configured number of upcoming days
// at the current position. Best effort: without a resolvable position it
// just logs and waits for the next trigger.
func (s *AthanService) warmUpcoming() {
	loc, err := s.resolver.Resolve(s.ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("prefetch skipped, no position")
		return
	}
	now := s.opts.Now()
	dates := append([]time.Time{now}, upcomingDates(now, s.opts.PrefetchDays)...)
	s.cache.Prefetch(s.ctx, dates, loc.Coordinates, s.currentSettings().Parameters())
}

// reconcile recomputes the desired reminder set for today and tomorrow and
// applies the minimal diff. Runs whenever the cache produced new entries,
// settings changed, or the periodic tick crossed a day boundary.
func (s *AthanService) reconcile() {
	coords := s.resolver.LastUsed()
	if coords == nil {
		loc, err := s.resolver.Resolve(s.ctx)
		if err != nil {
			s.logger.Debug().Err(err).Msg("reconcile skipped, no position")
			return
		}
		coords = &loc.Coordinates
	}

	settings := s.currentSettings()
	now := s.opts.Now()

	var entries []*storage.PrayerTimesEntry
	for _, date := range []time.Time{now, now.AddDate(0, 0, 1)} {
		entry, err := s.cache.Get(s.ctx, date, *coords, settings.Parameters())
		if err != nil {
			s.logger.Warn().Err(err).Str("date", storage.DateKey(date)).Msg("reconcile: entry unavailable")
			continue
		}
		entries = append(entries, entry)
	}

	diff := s.reminders.Reconcile(entries, settings, now)
	s.reminders.Apply(diff)
}

// requestReconcile queues a reconcile without blocking; a pending request
// already covers the caller.
func (s *AthanService) requestReconcile() {
	select {
	case s.reconcileCh <- struct{}{}:
	default:
	}
}

func (s *AthanService) resolveForRead(ctx context.Context) (storage.Coordinates, bool, error) {
	loc, err := s.resolver.Resolve(ctx)
	if err == nil {
		// A fix persisted by an earlier session has unknown age; surface
		// that to the caller rather than hiding it.
		return loc.Coordinates, loc.Source == SourceStore, nil
	}

	if last := s.resolver.LastUsed(); last != nil {
		s.logger.Warn().Err(err).Msg("location unavailable, serving last used position")
		return *last, true, nil
	}
	return storage.Coordinates{}, false, err
}

func (s *AthanService) currentSettings() storage.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *AthanService) manualLocation() *storage.Coordinates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.ManualLocation
}

func (s *AthanService) isInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}
