package service

import (
	"time"

	"github.com/athanhub/athan-service/internal/storage"
)

// ServiceOptions provides configuration for the athan service
type ServiceOptions struct {
	RedisAddr         string
	Store             storage.Store // overrides RedisAddr when set
	LocationProvider  LocationProvider
	Notifier          Notifier
	Settings          storage.Settings
	MemoryCapacity    int
	PrefetchDays      int
	PrefetchInterval  time.Duration
	ReconcileInterval time.Duration
	FixTimeout        time.Duration
	FixFreshness      time.Duration
	AccuracyThreshold float64 // meters, 0 = accept any
	MovementThreshold float64 // meters
	EnableLogging     bool
	Now               func() time.Time
}

// DefaultServiceOptions returns sensible default options
func DefaultServiceOptions() *ServiceOptions {
	return &ServiceOptions{
		RedisAddr: "tcp://localhost:6379",
		Settings: storage.Settings{
			Method: MethodMuslimWorldLeague,
			Notify: [storage.NumPrayers]bool{true, false, true, true, true, true},
		},
		PrefetchDays:      7,
		PrefetchInterval:  6 * time.Hour,
		ReconcileInterval: 30 * time.Minute,
		FixTimeout:        5 * time.Second,
		FixFreshness:      10 * time.Minute,
		AccuracyThreshold: 500,
		MovementThreshold: 5000,
		EnableLogging:     true,
		Now:               time.Now,
	}
}

// ServiceOption is a function that configures service options
type ServiceOption func(*ServiceOptions)

// WithRedisConfig sets the Redis address for the persistent tier.
func WithRedisConfig(addr string) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.RedisAddr = addr
	}
}

// WithStore injects a persistent tier directly, bypassing Redis. Used by
// tests and by hosts that bring their own key-value store.
func WithStore(store storage.Store) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Store = store
	}
}

// WithLocationProvider sets the location sensor implementation.
func WithLocationProvider(provider LocationProvider) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.LocationProvider = provider
	}
}

// WithNotifier sets the notification delivery primitive.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Notifier = notifier
	}
}

// WithSettings sets the initial settings snapshot.
func WithSettings(settings storage.Settings) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Settings = settings
	}
}

// WithPrefetchDays sets how many upcoming days are kept warm.
func WithPrefetchDays(days int) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.PrefetchDays = days
	}
}

func WithPrefetchInterval(interval time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.PrefetchInterval = interval
	}
}

func WithReconcileInterval(interval time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.ReconcileInterval = interval
	}
}

// WithFixTimeout bounds the live-sensor stage of the fallback ladder.
func WithFixTimeout(timeout time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.FixTimeout = timeout
	}
}

// WithFixFreshness sets the validity window of the in-memory last fix.
func WithFixFreshness(window time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.FixFreshness = window
	}
}

// WithMovementThreshold sets the significant-movement distance in meters.
func WithMovementThreshold(meters float64) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.MovementThreshold = meters
	}
}

// WithMemoryCapacity bounds the memory cache tier.
func WithMemoryCapacity(capacity int) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.MemoryCapacity = capacity
	}
}

// WithLogging enables/disables logging
func WithLogging(enabled bool) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.EnableLogging = enabled
	}
}

// WithClock injects the time source. Tests use it to cross day boundaries.
func WithClock(now func() time.Time) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Now = now
	}
}
