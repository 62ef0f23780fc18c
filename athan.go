// Package athan provides a self-managing prayer-time engine: location
// resolution with fallback, a two-tier cache with prefetch and single-flight
// deduplication, and a reminder scheduler that keeps device notifications in
// sync with recomputed times and changing settings.
package athan

import (
	"context"
	"time"

	"github.com/athanhub/athan-service/internal/service"
)

// Client provides a clean public API for the athan service
type Client struct {
	service *service.AthanService
}

// NewClient creates a new athan service client
func NewClient(options ...ServiceOption) (*Client, error) {
	svc, err := service.NewAthanService(options...)
	if err != nil {
		return nil, err
	}

	return &Client{
		service: svc,
	}, nil
}

// Initialize starts the athan service
func (c *Client) Initialize() error {
	return c.service.Initialize()
}

// GetPrayerTimes returns the prayer times for the given date at the user's
// resolved position.
func (c *Client) GetPrayerTimes(ctx context.Context, date time.Time) (*PrayerTimesResult, error) {
	return c.service.GetPrayerTimes(ctx, date)
}

// GetNextPrayer returns the next upcoming prayer, rolling over to tomorrow
// after the last prayer of the day.
func (c *Client) GetNextPrayer(ctx context.Context) (*NextPrayerResult, error) {
	return c.service.GetNextPrayer(ctx)
}

// OnSettingsChanged feeds a new settings snapshot into the engine.
func (c *Client) OnSettingsChanged(settings Settings) error {
	return c.service.OnSettingsChanged(settings)
}

// OnLocationChanged feeds an externally observed fix into the engine.
func (c *Client) OnLocationChanged(coords Coordinates) error {
	return c.service.OnLocationChanged(coords)
}

// Stop gracefully shuts down the service
func (c *Client) Stop() error {
	c.service.Stop()
	return nil
}

// Service options (re-exported for convenience)
type ServiceOption = service.ServiceOption

// Re-export service options for clean API
var (
	WithRedisConfig       = service.WithRedisConfig
	WithStore             = service.WithStore
	WithLocationProvider  = service.WithLocationProvider
	WithNotifier          = service.WithNotifier
	WithSettings          = service.WithSettings
	WithPrefetchDays      = service.WithPrefetchDays
	WithPrefetchInterval  = service.WithPrefetchInterval
	WithReconcileInterval = service.WithReconcileInterval
	WithFixTimeout        = service.WithFixTimeout
	WithFixFreshness      = service.WithFixFreshness
	WithMovementThreshold = service.WithMovementThreshold
	WithMemoryCapacity    = service.WithMemoryCapacity
	WithLogging           = service.WithLogging
	WithClock             = service.WithClock
)

// Re-export common types for convenience
type (
	Prayer                 = service.Prayer
	Coordinates            = service.Coordinates
	CalculationParameters  = service.CalculationParameters
	PrayerTimesEntry       = service.PrayerTimesEntry
	PrayerTimesResult      = service.PrayerTimesResult
	NextPrayerResult       = service.NextPrayerResult
	Settings               = service.Settings
	ScheduledReminder      = service.ScheduledReminder
	LocationProvider       = service.LocationProvider
	StaticLocationProvider = service.StaticLocationProvider
	Notifier               = service.Notifier
)

// Prayers in chronological order
const (
	Fajr    = service.Fajr
	Sunrise = service.Sunrise
	Dhuhr   = service.Dhuhr
	Asr     = service.Asr
	Maghrib = service.Maghrib
	Isha    = service.Isha
)

// Calculation method names
const (
	MethodMuslimWorldLeague     = service.MethodMuslimWorldLeague
	MethodEgyptian              = service.MethodEgyptian
	MethodKarachi               = service.MethodKarachi
	MethodUmmAlQura             = service.MethodUmmAlQura
	MethodDubai                 = service.MethodDubai
	MethodMoonSightingCommittee = service.MethodMoonSightingCommittee
	MethodNorthAmerica          = service.MethodNorthAmerica
	MethodKuwait                = service.MethodKuwait
	MethodQatar                 = service.MethodQatar
	MethodSingapore             = service.MethodSingapore
)
