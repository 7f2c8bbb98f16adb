package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/gdg-garage/streak-ledger/internal/streak"
)

// CheckReminder shows a one-shot "keep your streak" reminder when the last
// completion is more than 12 and less than 24 hours old. Each completion is
// reminded about at most once per session. It reports whether a reminder was
// shown.
func (t *Tracker) CheckReminder(ctx context.Context) bool {
	snap := t.Snapshot()
	now := t.now()
	if !streak.ReminderDue(snap, now) {
		return false
	}
	if !t.session.claimReminder(*snap.LastCompletedAt) {
		return false
	}

	left := snap.LastCompletedAt.Add(streak.BreakAfter).Sub(now).Round(time.Minute)
	t.notify(ctx, Notification{
		Title: "Keep your streak",
		Body:  fmt.Sprintf("Complete a module within %s to keep your %d-day streak.", left, snap.CurrentStreak),
	})
	return true
}
