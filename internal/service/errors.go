package service

import "errors"

var (
	// ErrNotInitialized is returned when a read arrives before Initialize().
	ErrNotInitialized = errors.New("service not initialized - call Initialize() first")

	// ErrLocationUnavailable means every fallback stage was exhausted.
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrCalculation means the astronomical library could not produce a
	// result (e.g. polar latitudes where a sun event is undefined).
	ErrCalculation = errors.New("calculation error")

	// ErrScheduling means the notification primitive rejected a schedule or
	// cancel call. Always handled per-reminder, best effort.
	ErrScheduling = errors.New("scheduling error")
)
