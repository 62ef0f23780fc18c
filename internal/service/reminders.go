package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/athanhub/athan-service/internal/storage"
)

// Notifier is the on-device notification delivery primitive. The reminder
// scheduler's diff is its only caller.
type Notifier interface {
	Schedule(id string, fireAt time.Time, payload string) error
	Cancel(id string) error
}

type nopNotifier struct{}

func (nopNotifier) Schedule(string, time.Time, string) error { return nil }
func (nopNotifier) Cancel(string) error                      { return nil }

// Diff is the minimal set of operations that brings the device in line with
// the candidate reminder set.
type Diff struct {
	ToCancel   []storage.ScheduledReminder
	ToSchedule []storage.ScheduledReminder
}

// Empty reports whether the diff requires no operations.
func (d Diff) Empty() bool {
	return len(d.ToCancel) == 0 && len(d.ToSchedule) == 0
}

// ReminderScheduler owns the tracked-reminder set: what we believe is
// currently scheduled on the device. No other component mutates it.
type ReminderScheduler struct {
	notifier Notifier
	logger   zerolog.Logger

	mu      sync.Mutex
	tracked map[string]storage.ScheduledReminder
}

// NewReminderScheduler creates a scheduler over the given notifier. A nil
// notifier degrades to a no-op sink.
func NewReminderScheduler(notifier Notifier, logger zerolog.Logger) *ReminderScheduler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ReminderScheduler{
		notifier: notifier,
		logger:   logger,
		tracked:  make(map[string]storage.ScheduledReminder),
	}
}

// Reconcile derives candidate reminders from the entries and the notify
// flags, then diffs them against the tracked set. Identical IDs with
// unchanged fire instants produce no operations, so reconciling twice in a
// row yields an empty diff. Past-due candidates are dropped silently, and
// tracked reminders that have already fired roll off without a cancel.
func (rs *ReminderScheduler) Reconcile(entries []*storage.PrayerTimesEntry, settings storage.Settings, now time.Time) Diff {
	candidates := make(map[string]storage.ScheduledReminder)
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		for _, p := range storage.AllPrayers {
			if !settings.Notify[p] {
				continue
			}
			fireAt := entry.TimeFor(p)
			if !fireAt.After(now) {
				continue // already elapsed, never scheduled
			}
			id := storage.ReminderID(p, entry.Date)
			candidates[id] = storage.ScheduledReminder{
				ID:     id,
				Prayer: p,
				Date:   entry.Date,
				FireAt: fireAt,
			}
		}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	var diff Diff
	for id, current := range rs.tracked {
		if !current.FireAt.After(now) {
			// Fired; the slot is reusable for the next day.
			delete(rs.tracked, id)
			continue
		}
		candidate, wanted := candidates[id]
		switch {
		case !wanted:
			diff.ToCancel = append(diff.ToCancel, current)
		case !candidate.FireAt.Equal(current.FireAt):
			// Offset or method change moved the instant.
			diff.ToCancel = append(diff.ToCancel, current)
			diff.ToSchedule = append(diff.ToSchedule, candidate)
		}
	}
	for id, candidate := range candidates {
		if _, exists := rs.tracked[id]; !exists {
			diff.ToSchedule = append(diff.ToSchedule, candidate)
		}
	}
	return diff
}

// Apply issues the diff against the notifier. A rejected operation is
// logged and skipped; the remaining reminders still go through. Tracked
// state only changes on success, so failed cancels are retried on the next
// reconcile.
func (rs *ReminderScheduler) Apply(diff Diff) {
	for _, reminder := range diff.ToCancel {
		if err := rs.notifier.Cancel(reminder.ID); err != nil {
			rs.logger.Warn().
				Err(fmt.Errorf("%w: %v", ErrScheduling, err)).
				Str("id", reminder.ID).
				Msg("cancel rejected")
			continue
		}
		rs.mu.Lock()
		delete(rs.tracked, reminder.ID)
		rs.mu.Unlock()
	}

	for _, reminder := range diff.ToSchedule {
		if err := rs.notifier.Schedule(reminder.ID, reminder.FireAt, reminder.Prayer.String()); err != nil {
			rs.logger.Warn().
				Err(fmt.Errorf("%w: %v", ErrScheduling, err)).
				Str("id", reminder.ID).
				Msg("schedule rejected")
			continue
		}
		rs.mu.Lock()
		rs.tracked[reminder.ID] = reminder
		rs.mu.Unlock()
	}

	if !diff.Empty() {
		rs.logger.Info().
			Int("cancelled", len(diff.ToCancel)).
			Int("scheduled", len(diff.ToSchedule)).
			Msg("reminders reconciled")
	}
}

// Tracked returns a snapshot of the reminders believed scheduled.
func (rs *ReminderScheduler) Tracked() []storage.ScheduledReminder {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]storage.ScheduledReminder, 0, len(rs.tracked))
	for _, r := range rs.tracked {
		out = append(out, r)
	}
	return out
}
