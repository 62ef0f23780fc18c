package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mnadev/adhango/pkg/calc"
	"github.com/mnadev/adhango/pkg/data"
	"github.com/mnadev/adhango/pkg/util"

	"github.com/athanhub/athan-service/internal/storage"
)

var methodTable = map[string]calc.CalculationMethod{
	MethodMuslimWorldLeague:     calc.MUSLIM_WORLD_LEAGUE,
	MethodEgyptian:              calc.EGYPTIAN,
	MethodKarachi:               calc.KARACHI,
	MethodUmmAlQura:             calc.UMM_AL_QURA,
	MethodDubai:                 calc.DUBAI,
	MethodMoonSightingCommittee: calc.MOON_SIGHTING_COMMITTEE,
	MethodNorthAmerica:          calc.NORTH_AMERICA,
	MethodKuwait:                calc.KUWAIT,
	MethodQatar:                 calc.QATAR,
	MethodSingapore:             calc.SINGAPORE,
}

// Calculator adapts the astronomical library. Compute is a pure function of
// its inputs; caching and deduplication are the cache's job.
type Calculator struct{}

// Compute obtains the day's raw instants and applies the signed per-prayer
// minute offsets in prayer order. Offsets are applied as-is: an extreme
// offset can invert chronology with a neighboring prayer, and that is
// deliberately not auto-corrected.
//
// The entry's day is the calendar date of the requested instant in its own
// location, never re-normalized to UTC: the cache keys entries by the same
// rendering of the same value, and a caller east of UTC asking for their
// June 1st must not be served May 31st.
func (Calculator) Compute(_ context.Context, coords storage.Coordinates, date time.Time, params storage.CalculationParameters) (*storage.PrayerTimesEntry, error) {
	if err := coords.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalculation, err)
	}
	method, ok := methodTable[params.Method]
	if !ok {
		return nil, fmt.Errorf("%w: unknown calculation method %q", ErrCalculation, params.Method)
	}

	loc, err := util.NewCoordinates(coords.Latitude, coords.Longitude)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalculation, err)
	}

	dateKey := storage.DateKey(date)
	times, err := calc.NewPrayerTimes(loc, data.NewDateComponents(date), calc.GetMethodParameters(method))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalculation, err)
	}
	if err := times.SetTimeZone("UTC"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalculation, err)
	}

	var instants [storage.NumPrayers]time.Time
	instants[storage.Fajr] = times.Fajr
	instants[storage.Sunrise] = times.Sunrise
	instants[storage.Dhuhr] = times.Dhuhr
	instants[storage.Asr] = times.Asr
	instants[storage.Maghrib] = times.Maghrib
	instants[storage.Isha] = times.Isha

	for _, p := range storage.AllPrayers {
		if instants[p].IsZero() {
			return nil, fmt.Errorf("%w: no %s time for %s at %.4f,%.4f", ErrCalculation,
				p, dateKey, coords.Latitude, coords.Longitude)
		}
		instants[p] = instants[p].Add(time.Duration(params.Offsets[p]) * time.Minute)
	}

	return &storage.PrayerTimesEntry{
		Key:         storage.NewCacheKey(dateKey, coords.Bucket(), params.Fingerprint()),
		Date:        dateKey,
		Bucket:      coords.Bucket(),
		Fingerprint: params.Fingerprint(),
		Times:       instants,
		ComputedAt:  time.Now().UTC(),
	}, nil
}

// ComputeFunc exposes Compute in the shape the cache wires in.
func (c Calculator) ComputeFunc() storage.ComputeFunc {
	return c.Compute
}
