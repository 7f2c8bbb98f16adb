package models

import (
	"time"
)

// LocalRecord is a keyed JSON document in the client's durable store.
type LocalRecord struct {
	Namespace string    `gorm:"primaryKey;size:64"`
	Key       string    `gorm:"primaryKey;column:record_key;size:64"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time
}
