// Package offline is the client half of the streak protocol. Completions are
// applied optimistically and queued locally; the reconciler later replays
// the queue against the ledger and adopts its canonical snapshot.
package offline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdg-garage/streak-ledger/internal/streak"
)

// Store is the durable local cache.
type Store interface {
	GetSnapshot(ctx context.Context) (*streak.Snapshot, error)
	PutSnapshot(ctx context.Context, s streak.Snapshot) error
	GetPendingEvents(ctx context.Context) ([]streak.Event, error)
	AddPendingEvent(ctx context.Context, ev streak.Event) error
	ClearPendingEvents(ctx context.Context) error
	DropPendingEvents(ctx context.Context, n int) error
}

// Ledger is the remote authoritative store.
type Ledger interface {
	Snapshot(ctx context.Context) (streak.Snapshot, error)
	Submit(ctx context.Context, ev streak.Event) error
	Badges(ctx context.Context) ([]string, error)
	GrantBadge(ctx context.Context, badge string) error
}

// Notification is a local, ephemeral message for the user.
type Notification struct {
	Title string
	Body  string
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Options struct {
	// Now defaults to time.Now.
	Now        func() time.Time
	Milestones []streak.Milestone
	Notifier   Notifier
	// OnChange is called with every snapshot the tracker adopts.
	OnChange func(streak.Snapshot)
}

type Tracker struct {
	store      Store
	ledger     Ledger
	session    *Session
	now        func() time.Time
	milestones []streak.Milestone
	notifier   Notifier
	onChange   func(streak.Snapshot)

	mu       sync.Mutex
	snapshot streak.Snapshot
	loaded   bool

	syncing atomic.Bool
}

func NewTracker(store Store, ledger Ledger, session *Session, opts Options) *Tracker {
	t := &Tracker{
		store:      store,
		ledger:     ledger,
		session:    session,
		now:        opts.Now,
		milestones: opts.Milestones,
		notifier:   opts.Notifier,
		onChange:   opts.OnChange,
	}
	if t.session == nil {
		t.session = NewSession()
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.milestones == nil {
		t.milestones = streak.DefaultMilestones
	}
	return t
}

func (t *Tracker) Session() *Session { return t.session }

// Load initializes the snapshot from the local cache, else the ledger, else
// the zero default. Failures on either source fall through to the next.
func (t *Tracker) Load(ctx context.Context) streak.Snapshot {
	t.mu.Lock()
	snap, fromCache := t.loadCachedLocked(ctx)
	t.mu.Unlock()

	if !fromCache {
		server, err := t.ledger.Snapshot(ctx)
		if err != nil {
			log.Printf("sync: session %s has no server snapshot, using default: %v", t.session.ID, err)
		}
		t.mu.Lock()
		// A completion may have landed while the ledger was being queried.
		switch {
		case t.loaded:
		case err != nil:
			// The default is not cached so the next load asks the ledger again.
			t.snapshot = snap
		default:
			t.snapshot = server
			t.loaded = true
			if err := t.store.PutSnapshot(ctx, server); err != nil {
				log.Printf("localstore: cache snapshot: %v", err)
			}
		}
		snap = t.snapshot
		t.mu.Unlock()
	}

	t.changed(snap)
	t.CheckReminder(ctx)
	return snap
}

// loadCachedLocked makes sure t.snapshot is set without touching the
// network. It reports whether a usable snapshot existed.
func (t *Tracker) loadCachedLocked(ctx context.Context) (streak.Snapshot, bool) {
	if t.loaded {
		return t.snapshot, true
	}
	cached, err := t.store.GetSnapshot(ctx)
	if err != nil {
		log.Printf("localstore: read snapshot, treating as miss: %v", err)
	}
	if err != nil || cached == nil {
		return streak.NewSnapshot(t.now()), false
	}
	t.snapshot = *cached
	t.loaded = true
	return t.snapshot, true
}

// Snapshot returns the current local snapshot.
func (t *Tracker) Snapshot() streak.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// View is the display form of the snapshot: streakDays trimmed to the
// current week.
func (t *Tracker) View() streak.Snapshot {
	snap := t.Snapshot()
	snap.StreakDays = streak.WeekWindow(snap.StreakDays, t.now())
	return snap
}

// CompleteModule records a completion: it applies the event to the local
// snapshot, persists it and appends the event to the pending queue. It never
// waits on the network, and sequential calls observe each other. Store
// failures are logged; the in-memory snapshot still advances.
func (t *Tracker) CompleteModule(ctx context.Context, moduleID string) streak.Snapshot {
	now := t.now()
	ev := streak.Event{CompletedAt: now, ModuleID: moduleID}

	t.mu.Lock()
	if snap, ok := t.loadCachedLocked(ctx); !ok {
		t.snapshot = snap
		t.loaded = true
	}
	next := streak.Apply(ev, t.snapshot, now)
	t.snapshot = next

	if err := t.store.PutSnapshot(ctx, next); err != nil {
		log.Printf("localstore: persist snapshot: %v", err)
	}
	if err := t.store.AddPendingEvent(ctx, ev); err != nil {
		log.Printf("localstore: enqueue %s: %v", moduleID, err)
	}
	t.mu.Unlock()

	t.changed(next)
	return next
}

func (t *Tracker) changed(snap streak.Snapshot) {
	if t.onChange != nil {
		t.onChange(snap)
	}
}
