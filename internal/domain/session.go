package domain

import "time"

// SessionValue is one opaque value of the ingest channel session store.
type SessionValue struct {
	Key       string    `gorm:"type:varchar(255);primaryKey"`
	Value     []byte    `gorm:"type:blob;not null"`
	UpdatedAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName returns the database table name for SessionValue.
func (SessionValue) TableName() string { return "session_values" }
