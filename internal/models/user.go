package models

import (
	"gorm.io/gorm"
)

// User is the authenticated principal. Identity is issued elsewhere; the
// ledger only keeps the XP balance earned through streak milestones.
type User struct {
	gorm.Model
	XP int `json:"xp"`
}
