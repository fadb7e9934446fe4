package tracking

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestTrackerCountsInteractions(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock())

	tr.Track(1, "start_command")
	tr.Track(1, "message")
	tr.Track(2, "message")

	stats := tr.Snapshot()
	if stats.OnlineNow != 2 {
		t.Errorf("OnlineNow = %d, want 2", stats.OnlineNow)
	}
	if stats.DailyUsers != 2 {
		t.Errorf("DailyUsers = %d, want 2", stats.DailyUsers)
	}
	if stats.InteractionsToday != 3 {
		t.Errorf("InteractionsToday = %d, want 3", stats.InteractionsToday)
	}
	if stats.ActionCounts["message"] != 2 {
		t.Errorf("ActionCounts[message] = %d, want 2", stats.ActionCounts["message"])
	}
}

func TestTrackerOnlineWindowExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)

	tr.Track(1, "message")
	clock.Advance(OnlineWindow + time.Second)

	if n := tr.TrackedUsers(); n != 0 {
		t.Errorf("TrackedUsers() = %d after window, want 0", n)
	}

	tr.CleanupOnline()
	tr.mu.Lock()
	remaining := len(tr.lastActivity)
	tr.mu.Unlock()
	if remaining != 0 {
		t.Errorf("lastActivity entries after cleanup = %d, want 0", remaining)
	}
}

func TestTrackerDailyRollover(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock)

	tr.Track(1, "message")
	clock.Advance(25 * time.Hour)
	tr.Track(2, "message")

	stats := tr.Snapshot()
	if stats.DailyUsers != 1 {
		t.Errorf("DailyUsers after rollover = %d, want 1", stats.DailyUsers)
	}
	if stats.InteractionsToday != 1 {
		t.Errorf("InteractionsToday after rollover = %d, want 1", stats.InteractionsToday)
	}
}
