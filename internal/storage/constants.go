package storage

import "time"

const (
	entryKeyPrefix = "athan:entry:"
	lastFixKey     = "athan:last_fix"
)

// DefaultRetention keeps past-date entries around this long before the lazy
// prune on the next write removes them.
const DefaultRetention = 3 * 24 * time.Hour

// DefaultMemoryCapacity bounds the memory tier (two weeks of days plus slack
// for a second bucket or parameter set).
const DefaultMemoryCapacity = 32
