package offline

import (
	"context"
	"fmt"
	"log"

	"github.com/gdg-garage/streak-ledger/internal/streak"
)

// grantMilestones requests every badge whose milestone snap has reached and
// that the user does not own yet. Ownership is checked against the session
// first and the ledger second. Failures are logged and retried on the next
// successful sync.
func (t *Tracker) grantMilestones(ctx context.Context, snap streak.Snapshot) []string {
	var due []streak.Milestone
	for _, m := range streak.Reached(t.milestones, snap.CurrentStreak) {
		if !t.session.Granted(m.Badge) {
			due = append(due, m)
		}
	}
	if len(due) == 0 {
		return nil
	}

	owned, err := t.ledger.Badges(ctx)
	if err != nil {
		log.Printf("sync: session %s list badges: %v", t.session.ID, err)
		return nil
	}
	for _, name := range owned {
		t.session.MarkGranted(name)
	}

	var granted []string
	for _, m := range due {
		if t.session.Granted(m.Badge) {
			continue
		}
		if err := t.ledger.GrantBadge(ctx, m.Badge); err != nil {
			log.Printf("sync: session %s grant %s: %v", t.session.ID, m.Badge, err)
			continue
		}
		t.session.MarkGranted(m.Badge)
		granted = append(granted, m.Badge)
		log.Printf("sync: session %s granted %s at %d days", t.session.ID, m.Badge, snap.CurrentStreak)

		t.notify(ctx, Notification{
			Title: "Badge unlocked",
			Body:  fmt.Sprintf("%s: %d-day streak, +%d XP", m.Badge, m.Days, m.XP),
		})
	}
	return granted
}

func (t *Tracker) notify(ctx context.Context, n Notification) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Notify(ctx, n); err != nil {
		log.Printf("notify: %v", err)
	}
}
