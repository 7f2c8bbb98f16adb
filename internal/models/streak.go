package models

import (
	"time"

	"github.com/gdg-garage/streak-ledger/internal/streak"
)

// StreakLedger is the authoritative per-user streak row.
type StreakLedger struct {
	UserID          uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CurrentStreak   int        `json:"current_streak"`
	LongestStreak   int        `json:"longest_streak"`
	LastCompletedAt *time.Time `json:"last_completed_at"`
	ServerDateUTC   time.Time  `json:"server_date_utc"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// StreakDay records one qualifying UTC day. Full history is kept.
type StreakDay struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex:idx_user_day;not null" json:"user_id"`
	Day         string    `gorm:"uniqueIndex:idx_user_day;size:10;not null" json:"day"`
	ModuleID    string    `json:"module_id"`
	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (l StreakLedger) Snapshot(days []string) streak.Snapshot {
	if days == nil {
		days = []string{}
	}
	return streak.Snapshot{
		CurrentStreak:   l.CurrentStreak,
		LongestStreak:   l.LongestStreak,
		LastCompletedAt: l.LastCompletedAt,
		ServerDateUTC:   l.ServerDateUTC,
		StreakDays:      days,
	}
}
