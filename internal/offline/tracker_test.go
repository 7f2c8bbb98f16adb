package offline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gdg-garage/streak-ledger/internal/database"
	"github.com/gdg-garage/streak-ledger/internal/localstore"
	"github.com/gdg-garage/streak-ledger/internal/streak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOffline = errors.New("offline")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// fakeLedger applies submissions with the same rules as the server ledger.
type fakeLedger struct {
	mu        sync.Mutex
	now       func() time.Time
	snap      streak.Snapshot
	submitted []streak.Event
	badges    []string
	grants    []string
	fetches   int

	snapshotErr func(call int) error
	submitErr   error

	// When block is set, Submit closes started once and waits on block.
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func newFakeLedger(now func() time.Time) *fakeLedger {
	return &fakeLedger{now: now, snap: streak.NewSnapshot(now())}
}

func (f *fakeLedger) Snapshot(ctx context.Context) (streak.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.snapshotErr != nil {
		if err := f.snapshotErr(f.fetches); err != nil {
			return streak.Snapshot{}, err
		}
	}
	return f.snap, nil
}

func (f *fakeLedger) Submit(ctx context.Context, ev streak.Event) error {
	if f.block != nil {
		f.once.Do(func() { close(f.started) })
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, ev)
	if f.submitErr != nil {
		return f.submitErr
	}
	if streak.After(streak.Day(ev.CompletedAt), f.snap.LastDay()) {
		f.snap = streak.Apply(ev, f.snap, f.now())
	}
	return nil
}

func (f *fakeLedger) Badges(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.badges...), nil
}

func (f *fakeLedger) GrantBadge(ctx context.Context, badge string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants = append(f.grants, badge)
	for _, b := range f.badges {
		if b == badge {
			return nil
		}
	}
	f.badges = append(f.badges, badge)
	return nil
}

func (f *fakeLedger) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches + len(f.submitted) + len(f.grants)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// brokenStore fails every read and write.
type brokenStore struct{}

func (brokenStore) GetSnapshot(context.Context) (*streak.Snapshot, error) { return nil, errOffline }
func (brokenStore) PutSnapshot(context.Context, streak.Snapshot) error { return errOffline }
func (brokenStore) GetPendingEvents(context.Context) ([]streak.Event, error) {
	return nil, errOffline
}
func (brokenStore) AddPendingEvent(context.Context, streak.Event) error { return errOffline }
func (brokenStore) ClearPendingEvents(context.Context) error { return errOffline }
func (brokenStore) DropPendingEvents(context.Context, int) error { return errOffline }

type fixture struct {
	tracker  *Tracker
	store    *localstore.Store
	ledger   *fakeLedger
	clock    *clock
	notifier *recordingNotifier
}

func noon(day int) time.Time {
	return time.Date(2025, 1, day, 12, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	store, err := localstore.New(db, "test")
	require.NoError(t, err)

	c := &clock{t: noon(1)}
	l := newFakeLedger(c.Now)
	n := &recordingNotifier{}
	tr := NewTracker(store, l, NewSession(), Options{Now: c.Now, Notifier: n})
	return &fixture{tracker: tr, store: store, ledger: l, clock: c, notifier: n}
}

func (f *fixture) queue(t *testing.T) []streak.Event {
	t.Helper()
	q, err := f.store.GetPendingEvents(context.Background())
	require.NoError(t, err)
	return q
}

func TestCompleteModuleConsecutiveDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap := f.tracker.CompleteModule(ctx, "stem-1")
	assert.Equal(t, 1, snap.CurrentStreak)

	f.clock.Set(noon(2))
	snap = f.tracker.CompleteModule(ctx, "stem-1")
	assert.Equal(t, 2, snap.CurrentStreak)
	assert.Equal(t, []string{"2025-01-01", "2025-01-02"}, snap.StreakDays)

	assert.Len(t, f.queue(t), 2)
	assert.Zero(t, f.ledger.calls(), "completion must not touch the network")

	cached, err := f.store.GetSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 2, cached.CurrentStreak)
}

func TestCompleteModuleSameDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.tracker.CompleteModule(ctx, "stem-1")
	f.clock.Set(noon(1).Add(3 * time.Hour))
	second := f.tracker.CompleteModule(ctx, "stem-2")

	assert.Equal(t, 1, first.CurrentStreak)
	assert.Equal(t, 1, second.CurrentStreak)
	assert.True(t, second.LastCompletedAt.Equal(noon(1)), "second completion on the same day is a no-op")
	assert.Len(t, f.queue(t), 2)
}

func TestCompleteModuleSurvivesBrokenStore(t *testing.T) {
	c := &clock{t: noon(1)}
	tr := NewTracker(brokenStore{}, newFakeLedger(c.Now), nil, Options{Now: c.Now})

	snap := tr.CompleteModule(context.Background(), "stem-1")
	assert.Equal(t, 1, snap.CurrentStreak)
	assert.Equal(t, 1, tr.Snapshot().CurrentStreak)
}

func TestProcessQueueFiveDayMilestone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var changes []int
	f.tracker.onChange = func(s streak.Snapshot) { changes = append(changes, s.CurrentStreak) }

	for day := 1; day <= 5; day++ {
		f.clock.Set(noon(day))
		f.tracker.CompleteModule(ctx, "stem-1")
	}

	res, err := f.tracker.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 5, res.Submitted)
	assert.Equal(t, 5, res.Snapshot.CurrentStreak)
	assert.Equal(t, []string{"Daily-Challenge"}, res.Granted)
	assert.Equal(t, []string{"Daily-Challenge"}, f.ledger.grants)
	assert.Empty(t, f.queue(t))
	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, 5, changes[len(changes)-1])

	// Another completion and sync keeps the streak going without a second grant.
	f.clock.Set(noon(6))
	f.tracker.CompleteModule(ctx, "stem-1")
	res, err = f.tracker.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Snapshot.CurrentStreak)
	assert.Empty(t, res.Granted)
	assert.Len(t, f.ledger.grants, 1)
}

func TestProcessQueueEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.tracker.Snapshot()

	res, err := f.tracker.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Submitted)
	assert.Zero(t, f.ledger.calls())
	assert.Equal(t, before, f.tracker.Snapshot())
}

func TestProcessQueueDedupesByDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Out of order, with a second completion on day 3.
	for _, at := range []time.Time{noon(3), noon(1), noon(5), noon(3).Add(2 * time.Hour), noon(2), noon(4)} {
		require.NoError(t, f.store.AddPendingEvent(ctx, streak.Event{CompletedAt: at, ModuleID: "m"}))
	}

	res, err := f.tracker.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Submitted)

	require.Len(t, f.ledger.submitted, 5)
	for i, ev := range f.ledger.submitted {
		assert.True(t, ev.CompletedAt.Equal(noon(i+1)), "submission %d out of order: %s", i, ev.CompletedAt)
	}
	assert.Equal(t, 5, res.Snapshot.CurrentStreak)
}

func TestDedupeKeepsFirstOfDay(t *testing.T) {
	events := []streak.Event{
		{CompletedAt: noon(2).Add(time.Hour), ModuleID: "late"},
		{CompletedAt: noon(2), ModuleID: "early"},
		{CompletedAt: noon(1), ModuleID: "first"},
	}
	out := dedupe(events)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].ModuleID)
	assert.Equal(t, "early", out[1].ModuleID)
	assert.Equal(t, "late", events[0].ModuleID, "input is not reordered")
}

func TestProcessQueueFailureKeepsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for day := 1; day <= 3; day++ {
		f.clock.Set(noon(day))
		f.tracker.CompleteModule(ctx, "stem-1")
	}

	f.ledger.submitErr = errOffline
	_, err := f.tracker.ProcessQueue(ctx)
	require.Error(t, err)
	assert.Len(t, f.queue(t), 3)
	assert.Equal(t, 3, f.tracker.Snapshot().CurrentStreak, "optimistic state is kept")

	f.ledger.submitErr = nil
	res, err := f.tracker.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Snapshot.CurrentStreak)
	assert.Empty(t, f.queue(t))
}

func TestProcessQueueFetchFailure(t *testing.T) {
	t.Run("Initial", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.tracker.CompleteModule(ctx, "stem-1")

		f.ledger.snapshotErr = func(int) error { return errOffline }
		_, err := f.tracker.ProcessQueue(ctx)
		require.Error(t, err)
		assert.Empty(t, f.ledger.submitted)
		assert.Len(t, f.queue(t), 1)
	})

	t.Run("Refetch", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.tracker.CompleteModule(ctx, "stem-1")

		f.ledger.snapshotErr = func(call int) error {
			if call == 2 {
				return errOffline
			}
			return nil
		}
		_, err := f.tracker.ProcessQueue(ctx)
		require.Error(t, err)
		assert.Len(t, f.queue(t), 1)
		assert.Equal(t, 1, f.tracker.Snapshot().CurrentStreak, "last good cache is kept")

		res, err := f.tracker.ProcessQueue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Snapshot.CurrentStreak)
		assert.Empty(t, f.queue(t))
	})
}

func TestProcessQueueSuppressesOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tracker.CompleteModule(ctx, "stem-1")

	f.ledger.block = make(chan struct{})
	f.ledger.started = make(chan struct{})

	done := make(chan SyncResult)
	go func() {
		res, err := f.tracker.ProcessQueue(ctx)
		assert.NoError(t, err)
		done <- res
	}()
	<-f.ledger.started

	res, err := f.tracker.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(f.ledger.block)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Len(t, f.ledger.submitted, 1)
}

func TestProcessQueueKeepsEventsAddedDuringSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tracker.CompleteModule(ctx, "stem-1")

	f.ledger.block = make(chan struct{})
	f.ledger.started = make(chan struct{})

	done := make(chan SyncResult)
	go func() {
		res, err := f.tracker.ProcessQueue(ctx)
		assert.NoError(t, err)
		done <- res
	}()
	<-f.ledger.started

	f.clock.Set(noon(2))
	local := f.tracker.CompleteModule(ctx, "stem-2")
	assert.Equal(t, 2, local.CurrentStreak)

	close(f.ledger.block)
	res := <-done

	assert.Equal(t, 2, res.Snapshot.CurrentStreak, "late event re-applied on canonical state")
	q := f.queue(t)
	require.Len(t, q, 1)
	assert.Equal(t, "stem-2", q[0].ModuleID)

	f.ledger.block = nil
	res, err := f.tracker.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Snapshot.CurrentStreak)
	assert.Empty(t, f.queue(t))
}

func TestProcessQueueSkipsOwnedBadge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.badges = []string{"Daily-Challenge"}

	for day := 1; day <= 5; day++ {
		f.clock.Set(noon(day))
		f.tracker.CompleteModule(ctx, "stem-1")
	}
	res, err := f.tracker.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Granted)
	assert.Empty(t, f.ledger.grants)
	assert.True(t, f.tracker.Session().Granted("Daily-Challenge"))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("Cache", func(t *testing.T) {
		f := newFixture(t)
		last := noon(1)
		require.NoError(t, f.store.PutSnapshot(ctx, streak.Snapshot{CurrentStreak: 4, LongestStreak: 4, LastCompletedAt: &last, StreakDays: []string{"2025-01-01"}}))

		snap := f.tracker.Load(ctx)
		assert.Equal(t, 4, snap.CurrentStreak)
		assert.Zero(t, f.ledger.calls())
	})

	t.Run("Server", func(t *testing.T) {
		f := newFixture(t)
		last := noon(1)
		f.ledger.snap = streak.Snapshot{CurrentStreak: 7, LongestStreak: 9, LastCompletedAt: &last, StreakDays: []string{"2025-01-01"}}

		snap := f.tracker.Load(ctx)
		assert.Equal(t, 7, snap.CurrentStreak)

		cached, err := f.store.GetSnapshot(ctx)
		require.NoError(t, err)
		require.NotNil(t, cached)
		assert.Equal(t, 9, cached.LongestStreak)
	})

	t.Run("Default", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.snapshotErr = func(int) error { return errOffline }

		snap := f.tracker.Load(ctx)
		assert.Zero(t, snap.CurrentStreak)
		assert.Nil(t, snap.LastCompletedAt)
		assert.NotNil(t, snap.StreakDays)
	})

	t.Run("BrokenStore", func(t *testing.T) {
		c := &clock{t: noon(1)}
		l := newFakeLedger(c.Now)
		l.snap.CurrentStreak = 3
		tr := NewTracker(brokenStore{}, l, nil, Options{Now: c.Now})

		snap := tr.Load(ctx)
		assert.Equal(t, 3, snap.CurrentStreak)
	})
}

func TestView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 2025-01-05 is a Sunday.
	for day := 3; day <= 7; day++ {
		f.clock.Set(noon(day))
		f.tracker.CompleteModule(ctx, "stem-1")
	}
	view := f.tracker.View()
	assert.Equal(t, []string{"2025-01-05", "2025-01-06", "2025-01-07"}, view.StreakDays)
	assert.Len(t, f.tracker.Snapshot().StreakDays, 5, "history is not trimmed")
}

func TestCheckReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tracker.CompleteModule(ctx, "stem-1")

	f.clock.Set(noon(1).Add(11 * time.Hour))
	assert.False(t, f.tracker.CheckReminder(ctx), "too soon")

	f.clock.Set(noon(1).Add(13 * time.Hour))
	assert.True(t, f.tracker.CheckReminder(ctx))
	assert.False(t, f.tracker.CheckReminder(ctx), "once per completion")
	assert.Equal(t, 1, f.notifier.count())

	f.clock.Set(noon(1).Add(25 * time.Hour))
	assert.False(t, f.tracker.CheckReminder(ctx), "streak already broken")

	// A fresh session reminds again.
	other := NewTracker(f.store, f.ledger, NewSession(), Options{Now: f.clock.Now, Notifier: f.notifier})
	f.clock.Set(noon(1).Add(20 * time.Hour))
	other.Load(ctx)
	assert.Equal(t, 2, f.notifier.count())
}
