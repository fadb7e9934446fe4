// Package tracking keeps in-process usage statistics for the dashboard and
// stats endpoints: online users, daily/weekly uniques, hourly activity, and
// per-action counters.
package tracking

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/AtividadeNgk/MaryCall/internal/models"
)

// OnlineWindow is how long a user counts as online after their last activity.
const OnlineWindow = 5 * time.Minute

// Tracker accumulates activity statistics. All methods are safe for
// concurrent use.
type Tracker struct {
	mu sync.Mutex

	lastActivity      map[int64]time.Time
	dailyUsers        map[int64]struct{}
	weeklyUsers       map[int64]struct{}
	interactionsToday int
	interactionsWeek  int
	hourly            map[int]int
	actions           map[string]int

	lastResetDay  time.Time
	lastResetWeek int

	clock clockwork.Clock
}

// NewTracker creates an empty Tracker.
func NewTracker(clock clockwork.Clock) *Tracker {
	now := clock.Now()
	_, week := now.ISOWeek()
	return &Tracker{
		lastActivity:  make(map[int64]time.Time),
		dailyUsers:    make(map[int64]struct{}),
		weeklyUsers:   make(map[int64]struct{}),
		hourly:        make(map[int]int),
		actions:       make(map[string]int),
		lastResetDay:  now.Truncate(24 * time.Hour),
		lastResetWeek: week,
		clock:         clock,
	}
}

// Track records one user interaction of the given action kind, rolling the
// daily and weekly windows over when their boundary has passed.
func (t *Tracker) Track(userID int64, action string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	day := now.Truncate(24 * time.Hour)
	_, week := now.ISOWeek()

	if !day.Equal(t.lastResetDay) {
		t.dailyUsers = make(map[int64]struct{})
		t.interactionsToday = 0
		t.hourly = make(map[int]int)
		t.lastResetDay = day
		slog.Info("Tracker daily statistics reset")
	}
	if week != t.lastResetWeek {
		t.weeklyUsers = make(map[int64]struct{})
		t.interactionsWeek = 0
		t.lastResetWeek = week
		slog.Info("Tracker weekly statistics reset")
	}

	t.lastActivity[userID] = now
	t.dailyUsers[userID] = struct{}{}
	t.weeklyUsers[userID] = struct{}{}
	t.interactionsToday++
	t.interactionsWeek++
	t.hourly[now.Hour()]++
	t.actions[action]++
}

// CleanupOnline drops users whose last activity is outside the online window.
func (t *Tracker) CleanupOnline() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock.Now().Add(-OnlineWindow)
	removed := 0
	for userID, last := range t.lastActivity {
		if last.Before(cutoff) {
			delete(t.lastActivity, userID)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Tracker removed inactive users", "count", removed)
	}
}

// TrackedUsers returns how many users currently count as online.
func (t *Tracker) TrackedUsers() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock.Now().Add(-OnlineWindow)
	n := 0
	for _, last := range t.lastActivity {
		if !last.Before(cutoff) {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the current statistics.
func (t *Tracker) Snapshot() models.ActivityStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock.Now().Add(-OnlineWindow)
	online := 0
	for _, last := range t.lastActivity {
		if !last.Before(cutoff) {
			online++
		}
	}

	hourly := make(map[int]int, len(t.hourly))
	for h, c := range t.hourly {
		hourly[h] = c
	}
	actions := make(map[string]int, len(t.actions))
	for a, c := range t.actions {
		actions[a] = c
	}

	return models.ActivityStats{
		OnlineNow:         online,
		DailyUsers:        len(t.dailyUsers),
		WeeklyUsers:       len(t.weeklyUsers),
		InteractionsToday: t.interactionsToday,
		InteractionsWeek:  t.interactionsWeek,
		HourlyStats:       hourly,
		ActionCounts:      actions,
		LastUpdate:        t.clock.Now(),
	}
}
