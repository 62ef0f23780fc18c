package service

import (
	"github.com/athanhub/athan-service/internal/storage"
)

// Calculation method names accepted in settings. They map onto the method
// table of the underlying astronomical library.
const (
	MethodMuslimWorldLeague     = "MuslimWorldLeague"
	MethodEgyptian              = "Egyptian"
	MethodKarachi               = "Karachi"
	MethodUmmAlQura             = "UmmAlQura"
	MethodDubai                 = "Dubai"
	MethodMoonSightingCommittee = "MoonSightingCommittee"
	MethodNorthAmerica          = "NorthAmerica"
	MethodKuwait                = "Kuwait"
	MethodQatar                 = "Qatar"
	MethodSingapore             = "Singapore"
)

// Use types from the storage package for consistency
type (
	Prayer                = storage.Prayer
	Coordinates           = storage.Coordinates
	CalculationParameters = storage.CalculationParameters
	PrayerTimesEntry      = storage.PrayerTimesEntry
	Settings              = storage.Settings
	ScheduledReminder     = storage.ScheduledReminder
)

const (
	Fajr    = storage.Fajr
	Sunrise = storage.Sunrise
	Dhuhr   = storage.Dhuhr
	Asr     = storage.Asr
	Maghrib = storage.Maghrib
	Isha    = storage.Isha
)
