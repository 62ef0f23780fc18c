package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athanhub/athan-service/internal/storage"
)

// recordingNotifier captures schedule/cancel calls and can reject them.
type recordingNotifier struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	cancelled []string
	failIDs   map[string]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		scheduled: make(map[string]time.Time),
		failIDs:   make(map[string]bool),
	}
}

func (rn *recordingNotifier) Schedule(id string, fireAt time.Time, _ string) error {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.failIDs[id] {
		return errors.New("delivery primitive rejected schedule")
	}
	rn.scheduled[id] = fireAt
	return nil
}

func (rn *recordingNotifier) Cancel(id string) error {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.failIDs[id] {
		return errors.New("delivery primitive rejected cancel")
	}
	delete(rn.scheduled, id)
	rn.cancelled = append(rn.cancelled, id)
	return nil
}

func reminderTestEntry(date string, base time.Time) *storage.PrayerTimesEntry {
	var times [storage.NumPrayers]time.Time
	for i, p := range storage.AllPrayers {
		times[p] = base.Add(time.Duration(i) * 3 * time.Hour)
	}
	return &storage.PrayerTimesEntry{
		Key:   storage.NewCacheKey(date, "21.42,39.83", "fp"),
		Date:  date,
		Times: times,
	}
}

func notifyAll() storage.Settings {
	return storage.Settings{
		Method: MethodMuslimWorldLeague,
		Notify: [storage.NumPrayers]bool{true, false, true, true, true, true},
	}
}

func TestReconcileSchedulesUpcoming(t *testing.T) {
	notifier := newRecordingNotifier()
	rs := NewReminderScheduler(notifier, zerolog.Nop())

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []*storage.PrayerTimesEntry{reminderTestEntry("2024-06-01", now.Add(5*time.Hour))}

	diff := rs.Reconcile(entries, notifyAll(), now)
	assert.Empty(t, diff.ToCancel)
	assert.Len(t, diff.ToSchedule, 5, "five notify-enabled prayers, sunrise excluded")

	rs.Apply(diff)
	assert.Len(t, notifier.scheduled, 5)
	assert.Contains(t, notifier.scheduled, "fajr:2024-06-01")
	assert.NotContains(t, notifier.scheduled, "sunrise:2024-06-01")
}

func TestReconcileIdempotent(t *testing.T) {
	notifier := newRecordingNotifier()
	rs := NewReminderScheduler(notifier, zerolog.Nop())

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []*storage.PrayerTimesEntry{reminderTestEntry("2024-06-01", now.Add(5*time.Hour))}
	settings := notifyAll()

	rs.Apply(rs.Reconcile(entries, settings, now))

	again := rs.Reconcile(entries, settings, now)
	assert.True(t, again.Empty(), "unchanged inputs must produce an empty diff")
}

func TestReconcileDisabledPrayerCancelled(t *testing.T) {
	notifier := newRecordingNotifier()
	rs := NewReminderScheduler(notifier, zerolog.Nop())

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []*storage.PrayerTimesEntry{reminderTestEntry("2024-06-01", now.Add(5*time.Hour))}
	settings := notifyAll()
	rs.Apply(rs.Reconcile(entries, settings, now))

	settings.Notify[Isha] = false
	diff := rs.Reconcile(entries, settings, now)

	require.Len(t, diff.ToCancel, 1)
	assert.Equal(t, "isha:2024-06-01", diff.ToCancel[0].ID)
	assert.Empty(t, diff.ToSchedule, "other prayers must be untouched")

	rs.Apply(diff)
	assert.NotContains(t, notifier.scheduled, "isha:2024-06-01")
	assert.Contains(t, notifier.scheduled, "maghrib:2024-06-01")
}

func TestReconcileChangedInstantReschedules(t *testing.T) {
	notifier := newRecordingNotifier()
	rs := NewReminderScheduler(notifier, zerolog.Nop())

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entry := reminderTestEntry("2024-06-01", now.Add(5*time.Hour))
	settings := notifyAll()
	rs.Apply(rs.Reconcile([]*storage.PrayerTimesEntry{entry}, settings, now))

	// An offset change recomputed the entry and moved Asr by ten minutes.
	moved := *entry
	moved.Times[Asr] = entry.Times[Asr].Add(10 * time.Minute)
	diff := rs.Reconcile([]*storage.PrayerTimesEntry{&moved}, settings, now)

	require.Len(t, diff.ToCancel, 1)
	require.Len(t, diff.ToSchedule, 1)
	assert.Equal(t, "asr:2024-06-01", diff.ToCancel[0].ID)
	assert.Equal(t, "asr:2024-06-01", diff.ToSchedule[0].ID)
	assert.Equal(t, moved.Times[Asr], diff.ToSchedule[0].FireAt)
}

func TestReconcileDropsPastDue(t *testing.T) {
	notifier := newRecordingNotifier()
	rs := NewReminderScheduler(notifier, zerolog.Nop())

	base := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	entries := []*storage.PrayerTimesEntry{reminderTestEntry("2024-06-01", base)}

	// Fajr (base) and Dhuhr (base+6h) have elapsed by now.
	now := base.Add(7 * time.Hour)
	diff := rs.Reconcile(entries, notifyAll(), now)

	ids := make([]string, 0, len(diff.ToSchedule))
	for _, r := range diff.ToSchedule {
		ids = append(ids, r.ID)
	}
	assert.NotContains(t, ids, "fajr:2024-06-01")
	assert.NotContains(t, ids, "dhuhr:2024-06-01")
	assert.Contains(t, ids, "asr:2024-06-01")
}

func TestReconcileFiredRemindersRollOff(t *testing.T) {
	notifier := newRecordingNotifier()
	rs := NewReminderScheduler(notifier, zerolog.Nop())

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []*storage.PrayerTimesEntry{reminderTestEntry("2024-06-01", now.Add(time.Hour))}
	settings := notifyAll()
	rs.Apply(rs.Reconcile(entries, settings, now))
	require.NotEmpty(t, rs.Tracked())

	// Next day: everything tracked has fired; nothing gets cancelled, the
	// slots just roll off.
	nextDay := now.AddDate(0, 0, 1)
	diff := rs.Reconcile(nil, settings, nextDay)
	assert.Empty(t, diff.ToCancel, "fired reminders roll off without cancels")
	rs.Apply(diff)
	assert.Empty(t, rs.Tracked())
}

func TestApplyContinuesPastFailures(t *testing.T) {
	notifier := newRecordingNotifier()
	notifier.failIDs["dhuhr:2024-06-01"] = true
	rs := NewReminderScheduler(notifier, zerolog.Nop())

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []*storage.PrayerTimesEntry{reminderTestEntry("2024-06-01", now.Add(5*time.Hour))}

	rs.Apply(rs.Reconcile(entries, notifyAll(), now))

	assert.NotContains(t, notifier.scheduled, "dhuhr:2024-06-01")
	assert.Contains(t, notifier.scheduled, "fajr:2024-06-01", "failure of one reminder must not abort the rest")
	assert.Contains(t, notifier.scheduled, "isha:2024-06-01")
	assert.Len(t, notifier.scheduled, 4)
}
