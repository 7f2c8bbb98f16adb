// Package ledger is the authoritative server-side streak store. Every write
// for a user runs under that user's lock and inside a transaction that
// re-reads the persisted row, so concurrent devices serialize instead of
// overwriting each other.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gdg-garage/streak-ledger/internal/models"
	"github.com/gdg-garage/streak-ledger/internal/streak"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Ledger struct {
	db         *gorm.DB
	now        func() time.Time
	milestones []streak.Milestone
	metrics    *Metrics
	locks      *userLocks
}

type Option func(*Ledger)

// WithClock overrides the wall clock used for ServerDateUTC.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithMilestones sets the milestone table used to price badge grants.
func WithMilestones(ms []streak.Milestone) Option {
	return func(l *Ledger) { l.milestones = ms }
}

func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func New(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:         db,
		now:        time.Now,
		milestones: streak.DefaultMilestones,
		locks:      newUserLocks(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Outcome is the result of recording one completion.
type Outcome struct {
	Applied  bool
	Snapshot streak.Snapshot
}

// Grant is the result of a badge grant request.
type Grant struct {
	Badge     models.Badge
	Granted   bool
	XPAwarded int
}

// Snapshot returns the canonical snapshot for userID, including full day history.
func (l *Ledger) Snapshot(ctx context.Context, userID uint) (streak.Snapshot, error) {
	db := l.db.WithContext(ctx)
	row, _, err := findLedger(db, userID)
	if err != nil {
		return streak.Snapshot{}, err
	}
	days, err := loadDays(db, userID)
	if err != nil {
		return streak.Snapshot{}, err
	}
	snap := row.Snapshot(days)
	if snap.ServerDateUTC.IsZero() {
		snap.ServerDateUTC = l.now().UTC()
	}
	return snap, nil
}

// Record applies ev to the user's persisted streak. Events whose UTC day is
// not after the recorded day are ignored, which keeps retries and duplicate
// submissions idempotent.
func (l *Ledger) Record(ctx context.Context, userID uint, ev streak.Event) (Outcome, error) {
	unlock := l.locks.lock(userID)
	defer unlock()

	var out Outcome
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, exists, err := findLedger(tx.Clauses(clause.Locking{Strength: "UPDATE"}), userID)
		if err != nil {
			return err
		}
		days, err := loadDays(tx, userID)
		if err != nil {
			return err
		}
		current := row.Snapshot(days)

		day := streak.Day(ev.CompletedAt)
		if !streak.After(day, current.LastDay()) {
			out = Outcome{Applied: false, Snapshot: current}
			return nil
		}

		next := streak.Apply(ev, current, l.now())
		row.UserID = userID
		row.CurrentStreak = next.CurrentStreak
		row.LongestStreak = next.LongestStreak
		row.LastCompletedAt = next.LastCompletedAt
		row.ServerDateUTC = next.ServerDateUTC

		if exists {
			err = tx.Save(&row).Error
		} else {
			err = tx.Create(&row).Error
		}
		if err != nil {
			return fmt.Errorf("save ledger row: %w", err)
		}

		entry := models.StreakDay{
			UserID:      userID,
			Day:         day,
			ModuleID:    ev.ModuleID,
			CompletedAt: ev.CompletedAt.UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
			return fmt.Errorf("record streak day: %w", err)
		}

		out = Outcome{Applied: true, Snapshot: next}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	l.metrics.observeEvent(out.Applied)
	if out.Applied {
		log.Printf("ledger: user %d completed %s on %s, streak %d", userID, ev.ModuleID, streak.Day(ev.CompletedAt), out.Snapshot.CurrentStreak)
	}
	return out, nil
}

// Badges lists the names of badges owned by userID.
func (l *Ledger) Badges(ctx context.Context, userID uint) ([]string, error) {
	var names []string
	err := l.db.WithContext(ctx).
		Model(&models.BadgeGrant{}).
		Joins("JOIN badges ON badges.id = badge_grants.badge_id").
		Where("badge_grants.user_id = ?", userID).
		Order("badges.name").
		Pluck("badges.name", &names).Error
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// GrantBadge grants the named badge to userID at most once. Milestone badges
// credit their XP bonus in the same transaction as the grant.
func (l *Ledger) GrantBadge(ctx context.Context, userID uint, name string) (Grant, error) {
	badge, err := l.findOrCreateBadge(ctx, name)
	if err != nil {
		return Grant{}, err
	}

	unlock := l.locks.lock(userID)
	defer unlock()

	out := Grant{Badge: badge}
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.FirstOrCreate(&user, models.User{Model: gorm.Model{ID: userID}}).Error; err != nil {
			return fmt.Errorf("load user: %w", err)
		}

		var existing models.BadgeGrant
		res := tx.Where("user_id = ? AND badge_id = ?", userID, badge.ID).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		xp := 0
		if m, ok := streak.ForBadge(l.milestones, name); ok {
			xp = m.XP
		}
		inserted, err := insertGrant(tx, models.BadgeGrant{UserID: userID, BadgeID: badge.ID, XPAwarded: xp})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		if xp > 0 {
			if err := tx.Model(&user).Update("xp", gorm.Expr("xp + ?", xp)).Error; err != nil {
				return fmt.Errorf("credit xp: %w", err)
			}
		}
		out.Granted = true
		out.XPAwarded = xp
		return nil
	})
	if err != nil {
		return Grant{}, err
	}

	l.metrics.observeGrant(out.Granted)
	if out.Granted {
		log.Printf("ledger: granted badge %q to user %d (+%d xp)", name, userID, out.XPAwarded)
	}
	return out, nil
}

// findOrCreateBadge looks a badge up by name and creates it when missing. A
// concurrent creator losing the unique-index race re-queries instead of failing.
func (l *Ledger) findOrCreateBadge(ctx context.Context, name string) (models.Badge, error) {
	db := l.db.WithContext(ctx)

	badge, found, err := findBadge(db, name)
	if err != nil || found {
		return badge, err
	}

	badge = models.Badge{ID: uuid.NewString(), Name: name}
	createErr := db.Create(&badge).Error
	if createErr == nil {
		return badge, nil
	}

	if !errors.Is(createErr, gorm.ErrDuplicatedKey) {
		log.Printf("ledger: create badge %q: %v, re-querying", name, createErr)
	}
	badge, found, err = findBadge(db, name)
	if err != nil {
		return models.Badge{}, err
	}
	if !found {
		return models.Badge{}, fmt.Errorf("create or find badge %q: %w", name, createErr)
	}
	return badge, nil
}

// insertGrant records grant unless the user already owns the badge. A row
// written by another server between the ownership check and the insert
// counts as owned.
func insertGrant(tx *gorm.DB, grant models.BadgeGrant) (bool, error) {
	res := tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
			DoNothing: true,
		}).
		Create(&grant)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("record grant: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func findBadge(db *gorm.DB, name string) (models.Badge, bool, error) {
	var badge models.Badge
	res := db.Where("name = ?", name).Limit(1).Find(&badge)
	if res.Error != nil {
		return models.Badge{}, false, res.Error
	}
	return badge, res.RowsAffected > 0, nil
}

func findLedger(db *gorm.DB, userID uint) (models.StreakLedger, bool, error) {
	var row models.StreakLedger
	res := db.Where("user_id = ?", userID).Limit(1).Find(&row)
	if res.Error != nil {
		return models.StreakLedger{}, false, res.Error
	}
	return row, res.RowsAffected > 0, nil
}

func loadDays(db *gorm.DB, userID uint) ([]string, error) {
	var days []string
	err := db.Model(&models.StreakDay{}).
		Where("user_id = ?", userID).
		Order("day").
		Pluck("day", &days).Error
	return days, err
}
