// Package repo implements the data persistence layer for the register,
// backed by GORM. This file provides the SQL-backed session store holding
// opaque per-channel values such as incomplete SMS fragment buffers.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-travel-register/internal/domain"
)

// SessionStore is a key-value store over the session_values table. It
// satisfies fragment.SessionStore.
type SessionStore struct {
	DB *gorm.DB
}

// NewSessionStore returns a SessionStore backed by db.
func NewSessionStore(db *gorm.DB) *SessionStore { return &SessionStore{DB: db} }

// Get returns the value stored under key; ok is false when absent.
func (s *SessionStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v domain.SessionValue
	err := s.DB.WithContext(ctx).Where("key = ?", key).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v.Value, true, nil
}

// Set stores value under key, stamped with at.
func (s *SessionStore) Set(ctx context.Context, key string, value []byte, at time.Time) error {
	v := &domain.SessionValue{Key: key, Value: value, UpdatedAt: at.UTC()}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(v).Error
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	return s.DB.WithContext(ctx).Where("key = ?", key).Delete(&domain.SessionValue{}).Error
}

// DeleteBefore removes every value whose key starts with prefix and whose
// stamp is older than cutoff.
func (s *SessionStore) DeleteBefore(ctx context.Context, prefix string, cutoff time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where(`key LIKE ? ESCAPE '\' AND updated_at < ?`, escapeLike(prefix)+"%", cutoff.UTC()).
		Delete(&domain.SessionValue{})
	return res.RowsAffected, res.Error
}
