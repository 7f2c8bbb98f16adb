// Package localstore is the client's durable cache: one streak snapshot and
// one FIFO queue of unconfirmed completions, kept as two keyed JSON records
// in a namespace of a local SQLite file.
package localstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gdg-garage/streak-ledger/internal/database"
	"github.com/gdg-garage/streak-ledger/internal/models"
	"github.com/gdg-garage/streak-ledger/internal/streak"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SnapshotKey = "streak-snapshot"
	PendingKey  = "pending-events"
)

// Store is single-writer: every operation is serialized, last write wins.
type Store struct {
	db        *gorm.DB
	namespace string
	mu        sync.Mutex
}

// Open opens (creating if needed) the SQLite file at path.
func Open(path, namespace string) (*Store, error) {
	db, err := database.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open local store")
	}
	return New(db, namespace)
}

// New uses an existing connection and migrates the record table.
func New(db *gorm.DB, namespace string) (*Store, error) {
	if err := db.AutoMigrate(&models.LocalRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate local store")
	}
	return &Store{db: db, namespace: namespace}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetSnapshot returns the cached snapshot, or nil when none was stored.
func (s *Store) GetSnapshot(ctx context.Context) (*streak.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap streak.Snapshot
	found, err := s.get(s.db.WithContext(ctx), SnapshotKey, &snap)
	if err != nil || !found {
		return nil, err
	}
	if snap.StreakDays == nil {
		snap.StreakDays = []string{}
	}
	return &snap, nil
}

func (s *Store) PutSnapshot(ctx context.Context, snap streak.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(s.db.WithContext(ctx), SnapshotKey, snap)
}

// GetPendingEvents returns the queue in insertion order; empty if none.
func (s *Store) GetPendingEvents(ctx context.Context) ([]streak.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending(s.db.WithContext(ctx))
}

func (s *Store) AddPendingEvent(ctx context.Context, ev streak.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		queue, err := s.pending(tx)
		if err != nil {
			return err
		}
		return s.put(tx, PendingKey, append(queue, ev))
	})
}

func (s *Store) ClearPendingEvents(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).
		Where("namespace = ? AND record_key = ?", s.namespace, PendingKey).
		Delete(&models.LocalRecord{}).Error
	return errors.Wrap(err, "clear pending events")
}

// DropPendingEvents removes the n oldest queue entries, keeping anything
// appended after they were read.
func (s *Store) DropPendingEvents(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		queue, err := s.pending(tx)
		if err != nil {
			return err
		}
		if n >= len(queue) {
			return errors.Wrap(tx.Where("namespace = ? AND record_key = ?", s.namespace, PendingKey).
				Delete(&models.LocalRecord{}).Error, "drop pending events")
		}
		return s.put(tx, PendingKey, queue[n:])
	})
}

func (s *Store) pending(db *gorm.DB) ([]streak.Event, error) {
	var queue []streak.Event
	if _, err := s.get(db, PendingKey, &queue); err != nil {
		return nil, err
	}
	if queue == nil {
		queue = []streak.Event{}
	}
	return queue, nil
}

func (s *Store) get(db *gorm.DB, key string, dst any) (bool, error) {
	var rec models.LocalRecord
	res := db.Where("namespace = ? AND record_key = ?", s.namespace, key).Limit(1).Find(&rec)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "read %s", key)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := json.Unmarshal([]byte(rec.Value), dst); err != nil {
		return false, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

func (s *Store) put(db *gorm.DB, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	rec := models.LocalRecord{Namespace: s.namespace, Key: key, Value: string(raw)}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	return errors.Wrapf(err, "write %s", key)
}
