// Package repo implements the data persistence layer for the register,
// backed by GORM. This file provides repository functions for the
// RegisterEntry model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an entry is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - UpsertEntry(ctx, db, entry) -> created, error
//     Inserts the entry or replaces every column but created_at of the row
//     with the same timestamp id.
//
//   - GetEntry(ctx, db, id) -> *domain.RegisterEntry, error
//
//   - ListEntriesPage(ctx, db, filter, offset, limit) -> []domain.RegisterEntry, error
//     Newest first (id descending).
//
//   - CountEntries(ctx, db, filter) -> int64, error
//
//   - DeleteEntry(ctx, db, id) -> error
//     Returns ErrNotFound when nothing was deleted.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-travel-register/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// upsertColumns are overwritten when an entry with the same id already exists.
var upsertColumns = []string{"latitude", "longitude", "temperature", "weather", "message", "source", "updated_at"}

// UpsertEntry stores e keyed by its timestamp id. created reports whether a
// new row was inserted (false means an existing row was replaced).
func UpsertEntry(ctx context.Context, db *gorm.DB, e *domain.RegisterEntry) (created bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.RegisterEntry{}).Where("id = ?", e.ID).Count(&n).Error; err != nil {
			return err
		}
		created = n == 0
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(e).Error
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// GetEntry fetches a single entry by id, or ErrNotFound.
func GetEntry(ctx context.Context, db *gorm.DB, id string) (*domain.RegisterEntry, error) {
	var e domain.RegisterEntry
	if err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntriesPage returns a slice of entries matching f, newest first. Use
// CountEntries to obtain the total for pagination metadata.
func ListEntriesPage(ctx context.Context, db *gorm.DB, f domain.EntryFilter, offset, limit int) ([]domain.RegisterEntry, error) {
	var out []domain.RegisterEntry
	q := applyEntryFilter(db.WithContext(ctx).Model(&domain.RegisterEntry{}), f).
		Order("id DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountEntries returns the number of entries matching f.
func CountEntries(ctx context.Context, db *gorm.DB, f domain.EntryFilter) (int64, error) {
	var total int64
	err := applyEntryFilter(db.WithContext(ctx).Model(&domain.RegisterEntry{}), f).
		Count(&total).Error
	return total, err
}

// DeleteEntry removes the entry with the given id. If no row is affected it
// returns ErrNotFound.
func DeleteEntry(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.RegisterEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// applyEntryFilter narrows q by f. From is a lower bound on the id; To is an
// inclusive upper bound on the id prefix of the same length, so "2024-05"
// includes the whole month.
func applyEntryFilter(q *gorm.DB, f domain.EntryFilter) *gorm.DB {
	if from := strings.TrimSpace(f.From); from != "" {
		q = q.Where("id >= ?", from)
	}
	if to := strings.TrimSpace(f.To); to != "" {
		q = q.Where("SUBSTR(id, 1, ?) <= ?", len(to), to)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		q = q.Where(`message LIKE ? ESCAPE '\'`, "%"+escapeLike(s)+"%")
	}
	return q
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
