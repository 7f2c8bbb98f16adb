package streak

import "time"

// Status is the derived lifecycle of a streak. It is computed, never stored.
type Status string

const (
	StatusNew    Status = "new"
	StatusActive Status = "active"
	StatusAtRisk Status = "at_risk"
	StatusBroken Status = "broken"
)

const (
	// RiskAfter is the gap after which a streak is at risk.
	RiskAfter = 12 * time.Hour
	// BreakAfter is the gap after which the next completion resets the streak.
	BreakAfter = 24 * time.Hour
)

// StatusAt derives the lifecycle of s at now from the time since the last completion.
func StatusAt(s Snapshot, now time.Time) Status {
	if s.LastCompletedAt == nil {
		return StatusNew
	}
	elapsed := now.Sub(*s.LastCompletedAt)
	switch {
	case elapsed >= BreakAfter:
		return StatusBroken
	case elapsed > RiskAfter:
		return StatusAtRisk
	default:
		return StatusActive
	}
}

// ReminderDue reports whether the gap since the last completion lies strictly
// between RiskAfter and BreakAfter.
func ReminderDue(s Snapshot, now time.Time) bool {
	return StatusAt(s, now) == StatusAtRisk
}
