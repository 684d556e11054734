// Package repo implements the data persistence layer for the register,
// backed by GORM. This file provides small aggregate queries used by the read
// views (pagination metadata, last update of the register).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-travel-register/internal/domain"
)

// EntriesStats returns the total number of register entries and the greatest
// UpdatedAt among them. When the register is empty, the returned count is 0
// and maxUpdatedAt is nil.
func EntriesStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.RegisterEntry{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.RegisterEntry{}).
		Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
