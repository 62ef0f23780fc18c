package storage

import (
	"crypto/sha256"
	"fmt"
	"math"
	"time"
)

// Prayer is the closed set of daily events the engine computes. Values are
// array indices so per-prayer tables stay fixed-size and iteration over
// AllPrayers is exhaustive by construction.
type Prayer int

const (
	Fajr Prayer = iota
	Sunrise
	Dhuhr
	Asr
	Maghrib
	Isha

	NumPrayers = 6
)

var prayerNames = [NumPrayers]string{"fajr", "sunrise", "dhuhr", "asr", "maghrib", "isha"}

// AllPrayers lists every prayer in chronological order.
var AllPrayers = [NumPrayers]Prayer{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

func (p Prayer) String() string {
	if p < 0 || p >= NumPrayers {
		return "unknown"
	}
	return prayerNames[p]
}

// ParsePrayer maps a lowercase prayer name back to its enum value.
func ParsePrayer(name string) (Prayer, bool) {
	for _, p := range AllPrayers {
		if prayerNames[p] == name {
			return p, true
		}
	}
	return 0, false
}

// Coordinates is a geographic fix with the accuracy and acquisition time
// reported by whatever produced it.
type Coordinates struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"` // meters, 0 = unknown
	AcquiredAt time.Time `json:"acquired_at"`
}

// Validate checks the coordinate ranges.
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", c.Longitude)
	}
	return nil
}

// Bucket rounds the fix to a ~1km grid cell. Two fixes in the same bucket
// are interchangeable for caching: GPS jitter stays inside one cell, real
// travel crosses into another.
func (c Coordinates) Bucket() string {
	return fmt.Sprintf("%.2f,%.2f", c.Latitude, c.Longitude)
}

const earthRadiusMeters = 6371000

// DistanceMeters returns the great-circle (haversine) distance to other.
func (c Coordinates) DistanceMeters(other Coordinates) float64 {
	lat1 := c.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - c.Latitude) * math.Pi / 180
	dLon := (other.Longitude - c.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// CalculationParameters selects the astronomical convention and the signed
// per-prayer minute adjustments applied on top of it.
type CalculationParameters struct {
	Method  string          `json:"method"`
	Offsets [NumPrayers]int `json:"offsets"` // minutes, indexed by Prayer
}

// Fingerprint derives a stable identity for the parameter set. Two sets with
// the same fingerprint are cache-interchangeable.
func (p CalculationParameters) Fingerprint() string {
	raw := p.Method
	for _, prayer := range AllPrayers {
		raw += fmt.Sprintf("|%d", p.Offsets[prayer])
	}
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum[:8])
}

// CacheKey uniquely identifies one day's result for one coordinate bucket
// and one parameter fingerprint.
type CacheKey string

// NewCacheKey builds the key for (date, bucket, fingerprint).
func NewCacheKey(date, bucket, fingerprint string) CacheKey {
	return CacheKey(date + "|" + bucket + "|" + fingerprint)
}

// DateKey renders a calendar date the way cache keys and entries carry it.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// PrayerTimesEntry holds one day's computed instants. Entries are immutable
// once stored; a changed key produces a new entry, never a mutation.
type PrayerTimesEntry struct {
	Key         CacheKey              `json:"key"`
	Date        string                `json:"date"` // YYYY-MM-DD
	Bucket      string                `json:"bucket"`
	Fingerprint string                `json:"fingerprint"`
	Times       [NumPrayers]time.Time `json:"times"` // indexed by Prayer
	ComputedAt  time.Time             `json:"computed_at"`
}

// TimeFor returns the instant for a prayer.
func (e *PrayerTimesEntry) TimeFor(p Prayer) time.Time {
	return e.Times[p]
}

// NextAfter returns the first prayer of the entry's day strictly after now,
// scanning in chronological order. ok is false when every instant has
// passed.
func (e *PrayerTimesEntry) NextAfter(now time.Time) (Prayer, time.Time, bool) {
	for _, p := range AllPrayers {
		if e.Times[p].After(now) {
			return p, e.Times[p], true
		}
	}
	return 0, time.Time{}, false
}

// Settings is the read-only snapshot the application layer hands the engine.
// The engine never mutates it; changes arrive as whole new snapshots.
type Settings struct {
	Method         string           `json:"method"`
	Offsets        [NumPrayers]int  `json:"offsets"`
	Notify         [NumPrayers]bool `json:"notify"`
	ManualLocation *Coordinates     `json:"manualLocation,omitempty"`
}

// Parameters extracts the calculation parameters from the snapshot.
func (s Settings) Parameters() CalculationParameters {
	return CalculationParameters{Method: s.Method, Offsets: s.Offsets}
}

// ScheduledReminder is one notification trigger. The ID is deterministic in
// (prayer, date) so rescheduling the same logical reminder is idempotent.
type ScheduledReminder struct {
	ID     string    `json:"id"`
	Prayer Prayer    `json:"prayer"`
	Date   string    `json:"date"` // YYYY-MM-DD
	FireAt time.Time `json:"fireAt"`
}

// ReminderID derives the stable identifier for a (prayer, date) pair.
func ReminderID(p Prayer, date string) string {
	return p.String() + ":" + date
}
