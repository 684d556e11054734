// Package repo implements the data persistence layer for the register,
// backed by GORM. This file provides repository functions for the tagged
// response cache (CacheRecord + CacheTag).
//
// A cache record is written once and never updated; it is either read,
// created, or deleted. Creation is race-safe: the insert is a no-op when the
// key already exists, and the stored row is re-read so every concurrent
// creator observes the same LastModified.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-travel-register/internal/domain"
)

// FindCacheRecord returns the record stored under key with its tags, or
// ErrNotFound.
func FindCacheRecord(ctx context.Context, db *gorm.DB, key string) (*domain.CacheRecord, error) {
	var rec domain.CacheRecord
	err := db.WithContext(ctx).
		Preload("Tags").
		Where("key = ?", key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateCacheRecordIfAbsent inserts a record for key stamped with at and
// tagged with tags, unless one already exists. It returns the stored record,
// which is the pre-existing one when another writer won the race.
func CreateCacheRecordIfAbsent(ctx context.Context, db *gorm.DB, key string, at time.Time, tags []string) (*domain.CacheRecord, error) {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := &domain.CacheRecord{Key: key, LastModified: at.UTC()}
		res := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || len(tags) == 0 {
			return nil
		}
		rows := make([]domain.CacheTag, 0, len(tags))
		for _, t := range tags {
			rows = append(rows, domain.CacheTag{CacheKey: key, Tag: t})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return FindCacheRecord(ctx, db, key)
}

// DeleteCacheByTags removes every record carrying at least one of tags and
// returns how many records were deleted. An empty tag list deletes nothing.
func DeleteCacheByTags(ctx context.Context, db *gorm.DB, tags []string) (int64, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var keys []string
		if err := tx.Model(&domain.CacheTag{}).
			Where("tag IN ?", tags).
			Distinct().
			Pluck("cache_key", &keys).Error; err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		if err := tx.Where("cache_key IN ?", keys).Delete(&domain.CacheTag{}).Error; err != nil {
			return err
		}
		res := tx.Where("key IN ?", keys).Delete(&domain.CacheRecord{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// LatestCacheMarker returns the greatest LastModified among records carrying
// at least one of tags, or the zero time when there is none.
func LatestCacheMarker(ctx context.Context, db *gorm.DB, tags []string) (time.Time, error) {
	if len(tags) == 0 {
		return time.Time{}, nil
	}
	// Order+Limit instead of MAX(): SQLite returns MAX() of a datetime as TEXT.
	var row struct {
		LastModified time.Time
	}
	err := db.WithContext(ctx).Model(&domain.CacheRecord{}).
		Select("cache_records.last_modified").
		Joins("JOIN cache_tags ON cache_tags.cache_key = cache_records.key").
		Where("cache_tags.tag IN ?", tags).
		Order("cache_records.last_modified DESC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return time.Time{}, err
	}
	return row.LastModified.UTC(), nil
}

// DeleteCacheRecord removes the record stored under key and its tags.
// Deleting a missing key is not an error.
func DeleteCacheRecord(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cache_key = ?", key).Delete(&domain.CacheTag{}).Error; err != nil {
			return err
		}
		return tx.Where("key = ?", key).Delete(&domain.CacheRecord{}).Error
	})
}
