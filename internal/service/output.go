package service

import (
	"time"

	"github.com/athanhub/athan-service/internal/storage"
)

// PrayerTimesResult is the orchestrator's return shape for a day's times.
// Stale is set when location resolution had to fall back to a fix of
// unknown age, so the UI can label the result as possibly stale instead of
// the engine hiding the degradation.
type PrayerTimesResult struct {
	Entry *storage.PrayerTimesEntry
	Stale bool
}

// NextPrayerResult names the next upcoming prayer and its instant.
type NextPrayerResult struct {
	Prayer storage.Prayer
	Name   string
	Time   time.Time
	Stale  bool
}
