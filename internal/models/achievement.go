package models

import (
	"time"
)

type Badge struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type BadgeGrant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_user_badge;not null" json:"user_id"`
	BadgeID   string    `gorm:"uniqueIndex:idx_user_badge;type:text;not null" json:"badge_id"`
	Badge     Badge     `json:"badge"`
	XPAwarded int       `json:"xp_awarded"`
	CreatedAt time.Time `json:"created_at"`
}
