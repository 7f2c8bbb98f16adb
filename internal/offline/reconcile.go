package offline

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/gdg-garage/streak-ledger/internal/streak"
)

// SyncResult describes one ProcessQueue attempt.
type SyncResult struct {
	// Skipped is set when another attempt was already in flight.
	Skipped   bool
	Submitted int
	Granted   []string
	Snapshot  streak.Snapshot
}

// ProcessQueue replays the pending queue against the ledger. Events are
// collapsed to one per UTC day and submitted oldest first; after every
// submission succeeds the canonical snapshot replaces the local cache and the
// submitted entries leave the queue. Any failure leaves the queue untouched.
//
// Only one attempt runs at a time; overlapping calls return Skipped.
func (t *Tracker) ProcessQueue(ctx context.Context) (SyncResult, error) {
	if !t.syncing.CompareAndSwap(false, true) {
		return SyncResult{Skipped: true, Snapshot: t.Snapshot()}, nil
	}
	defer t.syncing.Store(false)

	// Early returns report the cached snapshot, not an unloaded zero value.
	t.mu.Lock()
	t.loadCachedLocked(ctx)
	t.mu.Unlock()

	pending, err := t.store.GetPendingEvents(ctx)
	if err != nil {
		return SyncResult{Snapshot: t.Snapshot()}, fmt.Errorf("read queue: %w", err)
	}
	if len(pending) == 0 {
		return SyncResult{Snapshot: t.Snapshot()}, nil
	}

	if _, err := t.ledger.Snapshot(ctx); err != nil {
		return SyncResult{Snapshot: t.Snapshot()}, fmt.Errorf("fetch snapshot: %w", err)
	}

	batch := dedupe(pending)
	for i, ev := range batch {
		if err := t.ledger.Submit(ctx, ev); err != nil {
			return SyncResult{Submitted: i, Snapshot: t.Snapshot()}, fmt.Errorf("submit %s: %w", streak.Day(ev.CompletedAt), err)
		}
	}
	log.Printf("sync: session %s submitted %d of %d queued events", t.session.ID, len(batch), len(pending))

	canonical, err := t.ledger.Snapshot(ctx)
	if err != nil {
		// Submissions are idempotent on the ledger, so the next attempt may resend them.
		return SyncResult{Submitted: len(batch), Snapshot: t.Snapshot()}, fmt.Errorf("refetch snapshot: %w", err)
	}

	snap := t.adopt(ctx, canonical, len(pending))
	t.changed(snap)

	res := SyncResult{Submitted: len(batch), Snapshot: snap}
	res.Granted = t.grantMilestones(ctx, canonical)
	t.CheckReminder(ctx)
	return res, nil
}

// adopt installs canonical as the local snapshot and removes the first n
// queue entries. Entries enqueued after the queue was read are applied on
// top of canonical so their optimistic effect survives.
func (t *Tracker) adopt(ctx context.Context, canonical streak.Snapshot, n int) streak.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := canonical
	if err := t.store.DropPendingEvents(ctx, n); err != nil {
		log.Printf("localstore: drop %d synced events: %v", n, err)
	}
	rest, err := t.store.GetPendingEvents(ctx)
	if err != nil {
		log.Printf("localstore: read remaining queue: %v", err)
	}
	now := t.now()
	for _, ev := range rest {
		snap = streak.Apply(ev, snap, now)
	}

	t.snapshot = snap
	t.loaded = true
	if err := t.store.PutSnapshot(ctx, snap); err != nil {
		log.Printf("localstore: persist canonical snapshot: %v", err)
	}
	return snap
}

// dedupe orders events by completion time and keeps the first of each UTC day.
func dedupe(events []streak.Event) []streak.Event {
	sorted := make([]streak.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CompletedAt.Before(sorted[j].CompletedAt)
	})

	out := make([]streak.Event, 0, len(sorted))
	seen := make(map[string]bool, len(sorted))
	for _, ev := range sorted {
		day := streak.Day(ev.CompletedAt)
		if seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, ev)
	}
	return out
}
