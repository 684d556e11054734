package domain

import "time"

// Receipt records that an inbound message, identified by a channel-provided
// key (e.g. an SMS provider's message SID), has already been processed. It
// lets webhook retries be acknowledged without ingesting the message twice.
type Receipt struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Channel   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_channel_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_channel_key,priority:2"`
	EntryID   string    `gorm:"type:TEXT NOT NULL;default:''"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Receipt) TableName() string { return "receipts" }

// Receipt statuses.
const (
	// ReceiptPartial marks a fragment that was buffered but not stored yet.
	ReceiptPartial = 1
	// ReceiptStored marks a message whose entry was stored.
	ReceiptStored = 2
)
