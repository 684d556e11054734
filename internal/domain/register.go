// Package domain defines the persistence models of the travel register
// backend. These types are mapped with GORM and shared across the codec,
// repository, and service layers.
package domain

import (
	"strings"
	"time"
)

// EntryIDLayout is the layout of RegisterEntry.ID: minute resolution, seconds
// always zero, expressed in the register time zone.
const EntryIDLayout = "2006-01-02 15:04:05"

// MaxMessageRunes caps RegisterEntry.Message.
const MaxMessageRunes = 500

// Entry sources.
const (
	SourceSMS   = "sms"
	SourceBatch = "batch"
)

// RegisterEntry is one observation of the travel register. The timestamp id
// doubles as the natural dedup key: posting the same minute twice updates the
// row instead of creating a second one.
//
// Fields:
//   - ID: "YYYY-MM-DD hh:mm:00" (see EntryIDLayout).
//   - Latitude / Longitude: decimal degrees, both set or both nil.
//   - Temperature: optional reading.
//   - Weather: optional short weather code.
//   - Message: free text, at most MaxMessageRunes runes.
//   - Source: "sms" or "batch".
type RegisterEntry struct {
	ID          string    `json:"id"                    gorm:"type:char(19);primaryKey"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Weather     *string   `json:"weather,omitempty"     gorm:"type:varchar(16)"`
	Message     string    `json:"message"               gorm:"type:varchar(2000);not null;default:''"`
	Source      string    `json:"source"                gorm:"type:varchar(8);not null;default:'sms'"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"            gorm:"index"`
}

// TableName returns the database table name for RegisterEntry.
func (RegisterEntry) TableName() string { return "register_entries" }

// HasCoordinates reports whether both coordinates are set.
func (e RegisterEntry) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// Time parses the entry id in loc.
func (e RegisterEntry) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(EntryIDLayout, e.ID, loc)
}

// EntryID formats t as a register entry id (minute resolution).
func EntryID(t time.Time) string {
	return t.Truncate(time.Minute).Format(EntryIDLayout)
}

// EntryFilter narrows register listings. From/To are inclusive bounds on the
// id and may be any prefix of EntryIDLayout ("2024-05", "2024-05-01 10").
// Query matches a substring of the message.
type EntryFilter struct {
	From  string `form:"from"`
	To    string `form:"to"`
	Query string `form:"q"`
}

// IsZero reports whether the filter has no constraint.
func (f EntryFilter) IsZero() bool {
	return strings.TrimSpace(f.From) == "" && strings.TrimSpace(f.To) == "" && strings.TrimSpace(f.Query) == ""
}
