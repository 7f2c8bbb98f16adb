// Package ledgerclient talks to the streak ledger over HTTP.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gdg-garage/streak-ledger/internal/streak"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// ErrMalformed marks a 2xx response whose body could not be decoded.
var ErrMalformed = errors.New("malformed ledger response")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for baseURL. A non-empty token is sent as a bearer
// credential on every request.
func New(baseURL, token string, timeout time.Duration) *Client {
	hc := &http.Client{}
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		hc = oauth2.NewClient(context.Background(), src)
	}
	hc.Timeout = timeout
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// snapshotBody mirrors streak.Snapshot with the required fields as pointers
// so a null or partial body can be told apart from a zero streak.
type snapshotBody struct {
	CurrentStreak   *int       `json:"currentStreak"`
	LongestStreak   *int       `json:"longestStreak"`
	LastCompletedAt *time.Time `json:"lastCompletedAt"`
	ServerDateUTC   time.Time  `json:"serverDateUTC"`
	StreakDays      *[]string  `json:"streakDays"`
}

// Snapshot fetches the canonical snapshot. A body without currentStreak or
// streakDays is ErrMalformed.
func (c *Client) Snapshot(ctx context.Context) (streak.Snapshot, error) {
	var body *snapshotBody
	if err := c.do(ctx, http.MethodGet, "/streak", nil, &body); err != nil {
		return streak.Snapshot{}, err
	}
	if body == nil || body.CurrentStreak == nil || body.StreakDays == nil {
		return streak.Snapshot{}, errors.Wrap(ErrMalformed, "GET /streak: missing snapshot fields")
	}

	snap := streak.Snapshot{
		CurrentStreak:   *body.CurrentStreak,
		LastCompletedAt: body.LastCompletedAt,
		ServerDateUTC:   body.ServerDateUTC,
		StreakDays:      *body.StreakDays,
	}
	if body.LongestStreak != nil {
		snap.LongestStreak = *body.LongestStreak
	}
	if snap.StreakDays == nil {
		snap.StreakDays = []string{}
	}
	return snap, nil
}

// Submit sends one completion. The response body is not used.
func (c *Client) Submit(ctx context.Context, ev streak.Event) error {
	body := map[string]string{
		"completedAt": ev.CompletedAt.UTC().Format(time.RFC3339Nano),
		"moduleId":    ev.ModuleID,
	}
	return c.do(ctx, http.MethodPost, "/streak", body, nil)
}

// Badges lists the names of badges the principal owns.
func (c *Client) Badges(ctx context.Context) ([]string, error) {
	var out struct {
		Badges []string `json:"badges"`
	}
	if err := c.do(ctx, http.MethodGet, "/badges", nil, &out); err != nil {
		return nil, err
	}
	return out.Badges, nil
}

// GrantBadge requests an idempotent grant of badge.
func (c *Client) GrantBadge(ctx context.Context, badge string) error {
	return c.do(ctx, http.MethodPost, "/badge", map[string]string{"badge": badge}, nil)
}

// Ping checks that the ledger is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "encode %s %s", method, path)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrMalformed, "%s %s: %v", method, path, err)
	}
	return nil
}
