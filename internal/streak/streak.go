// Package streak holds the transition rules shared by the offline client and
// the server ledger. Both sides call Apply so a completion produces the same
// snapshot wherever it is evaluated.
package streak

import (
	"sort"
	"time"
)

// DisplayCap is the maximum value CurrentStreak may hold. LongestStreak is not capped.
const DisplayCap = 30

// DayLayout is the UTC calendar-day key format used in StreakDays.
const DayLayout = "2006-01-02"

// Event is a single qualifying completion.
type Event struct {
	CompletedAt time.Time `json:"completedAt"`
	ModuleID    string    `json:"moduleId"`
}

// Snapshot is the serializable streak state.
type Snapshot struct {
	CurrentStreak   int        `json:"currentStreak"`
	LongestStreak   int        `json:"longestStreak"`
	LastCompletedAt *time.Time `json:"lastCompletedAt"`
	ServerDateUTC   time.Time  `json:"serverDateUTC"`
	StreakDays      []string   `json:"streakDays"`
}

// NewSnapshot returns the zero-value default used when neither cache nor server has state.
func NewSnapshot(now time.Time) Snapshot {
	return Snapshot{
		ServerDateUTC: now.UTC(),
		StreakDays:    []string{},
	}
}

// Day returns the UTC calendar day of t.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay parses a day key into UTC midnight.
func ParseDay(day string) (time.Time, error) {
	return time.Parse(DayLayout, day)
}

// AddDays shifts a day key by n calendar days. Invalid keys yield "".
func AddDays(day string, n int) string {
	t, err := ParseDay(day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, n).Format(DayLayout)
}

// After reports whether day comes strictly after last. Every day is after "".
func After(day, last string) bool {
	return last == "" || day > last
}

// LastDay is the UTC day of LastCompletedAt, or "" when there is no history.
func (s Snapshot) LastDay() string {
	if s.LastCompletedAt == nil {
		return ""
	}
	return Day(*s.LastCompletedAt)
}

// Apply evaluates ev against s and returns the resulting snapshot. A second
// completion on the same UTC day returns s unchanged. s is never modified.
func Apply(ev Event, s Snapshot, now time.Time) Snapshot {
	eventDay := Day(ev.CompletedAt)
	lastDay := s.LastDay()
	if eventDay == lastDay {
		return s
	}

	current := 1
	if lastDay != "" && AddDays(lastDay, 1) == eventDay {
		run := s.CurrentStreak
		if run >= DisplayCap {
			// The stored value is clamped; recover the real run from history.
			if r := trailingRun(s.StreakDays, lastDay); r > run {
				run = r
			}
		}
		current = run + 1
	}

	longest := s.LongestStreak
	if current > longest {
		longest = current
	}
	if current > DisplayCap {
		current = DisplayCap
	}

	completedAt := ev.CompletedAt
	return Snapshot{
		CurrentStreak:   current,
		LongestStreak:   longest,
		LastCompletedAt: &completedAt,
		ServerDateUTC:   now.UTC(),
		StreakDays:      MergeDays(s.StreakDays, eventDay),
	}
}

// MergeDays returns the sorted, duplicate-free union of days and extra.
func MergeDays(days []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(days)+len(extra))
	out := make([]string, 0, len(days)+len(extra))
	for _, list := range [][]string{days, extra} {
		for _, d := range list {
			if d == "" {
				continue
			}
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// trailingRun counts consecutive days in days ending at last.
func trailingRun(days []string, last string) int {
	set := make(map[string]struct{}, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	n := 0
	for d := last; d != ""; d = AddDays(d, -1) {
		if _, ok := set[d]; !ok {
			break
		}
		n++
	}
	return n
}

// WeekWindow keeps the days that fall between the most recent Sunday and
// today (UTC), inclusive. It is a display helper; history is never trimmed
// in storage.
func WeekWindow(days []string, now time.Time) []string {
	today := Day(now)
	start := AddDays(today, -int(now.UTC().Weekday()))
	out := make([]string, 0, 7)
	for _, d := range MergeDays(days) {
		if d >= start && d <= today {
			out = append(out, d)
		}
	}
	return out
}
