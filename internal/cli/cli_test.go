package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdg-garage/streak-ledger/internal/auth"
	"github.com/gdg-garage/streak-ledger/internal/config"
	"github.com/gdg-garage/streak-ledger/internal/database"
	"github.com/gdg-garage/streak-ledger/internal/handlers"
	"github.com/gdg-garage/streak-ledger/internal/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "cli-secret"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// startLedger serves the real ledger API and points the client config at it.
func startLedger(t *testing.T) (*ledger.Ledger, *httptest.Server) {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	l := ledger.New(db)
	authHandler := auth.NewAuthHandler(&config.Config{JWTSecret: secret})
	r := chi.NewRouter()
	handlers.RegisterRoutes(r, nil, nil, authHandler, handlers.NewStreakHandler(l), handlers.NewBadgeHandler(l, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	token, err := authHandler.GenerateToken(1)
	require.NoError(t, err)

	t.Setenv("JWT_SECRET", secret)
	t.Setenv("LEDGER_URL", srv.URL)
	t.Setenv("LEDGER_TOKEN", token)
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("LOCAL_STORE_PATH", filepath.Join(t.TempDir(), "local.db"))
	return l, srv
}

func run(t *testing.T, clock *testClock, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&RootOptions{Now: clock.Now})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func noon(day int) time.Time {
	return time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC)
}

func TestCompleteThenSync(t *testing.T) {
	l, _ := startLedger(t)
	clock := &testClock{}

	for day := 1; day <= 5; day++ {
		clock.Set(noon(day))
		out, err := run(t, clock, "complete", "stem-1")
		require.NoError(t, err)
		assert.Contains(t, out, fmt.Sprintf("streak: %d", day))
	}

	out, err := run(t, clock, "status", "--json")
	require.NoError(t, err)
	var st struct {
		CurrentStreak int    `json:"currentStreak"`
		Status        string `json:"status"`
		Pending       int    `json:"pending"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 5, st.CurrentStreak)
	assert.Equal(t, "active", st.Status)
	assert.Equal(t, 5, st.Pending)

	out, err = run(t, clock, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced: streak 5")
	assert.Contains(t, out, "Badge unlocked")

	snap, err := l.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.CurrentStreak)
	badges, err := l.Badges(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Daily-Challenge"}, badges)

	out, err = run(t, clock, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending: 0")
}

func TestCompleteWhileOffline(t *testing.T) {
	_, srv := startLedger(t)
	srv.Close()
	clock := &testClock{t: noon(10)}

	out, err := run(t, clock, "complete", "--sync", "stem-1")
	require.NoError(t, err, "an unreachable ledger does not fail the completion")
	assert.Contains(t, out, "streak: 1")
	assert.Contains(t, out, "sync deferred")

	_, err = run(t, clock, "sync")
	assert.Error(t, err)

	out, err = run(t, clock, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending: 1")
}

func TestToken(t *testing.T) {
	startLedger(t)
	out, err := run(t, &testClock{t: noon(1)}, "token", "--user-id", "7")
	require.NoError(t, err)

	id, err := auth.NewAuthHandler(&config.Config{JWTSecret: secret}).ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
}

func TestSyncWithEmptyQueueReportsCachedStreak(t *testing.T) {
	startLedger(t)
	clock := &testClock{}

	for day := 1; day <= 3; day++ {
		clock.Set(noon(day))
		out, err := run(t, clock, "complete", "--sync", "stem-1")
		require.NoError(t, err)
		assert.Contains(t, out, fmt.Sprintf("synced: streak %d", day))
	}

	out, err := run(t, clock, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced: streak 3 (longest 3)")

	out, err = run(t, clock, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "streak:  3 (longest 3)")
}
