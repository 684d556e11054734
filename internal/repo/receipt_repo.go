// Package repo implements the data persistence layer for the register,
// backed by GORM. This file provides repository helpers for the Receipt
// model used to acknowledge webhook retries without ingesting a message twice.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-travel-register/internal/domain"
)

// ErrDuplicate indicates that a receipt already exists for the given
// (channel, key) pair.
var ErrDuplicate = errors.New("duplicate")

// GetReceipt returns a non-expired receipt or ErrNotFound.
func GetReceipt(ctx context.Context, db *gorm.DB, channel, key string, now time.Time) (*domain.Receipt, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Receipt
	err := db.WithContext(ctx).
		Where("channel = ? AND key = ? AND expires_at > ?", channel, key, now.UTC()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateReceipt inserts a receipt valid for ttl from now and returns
// ErrDuplicate on unique violation.
func CreateReceipt(ctx context.Context, db *gorm.DB, channel, key, entryID string, status int, now time.Time, ttl time.Duration) (*domain.Receipt, error) {
	now = now.UTC()
	rec := &domain.Receipt{
		ID:        uuid.NewString(),
		Channel:   channel,
		Key:       key,
		EntryID:   entryID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeReceipts deletes receipts that expired at or before now.
func PurgeReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&domain.Receipt{})
	return res.RowsAffected, res.Error
}
