package domain

import "time"

// CacheRecord marks a cacheable response. It is created once with the time of
// the first request and never updated: refreshing means deleting the record so
// the next request creates a new one with a later LastModified.
type CacheRecord struct {
	Key          string     `json:"key"           gorm:"type:varchar(255);primaryKey"`
	LastModified time.Time  `json:"last_modified" gorm:"not null"`
	Tags         []CacheTag `json:"tags"          gorm:"foreignKey:CacheKey;references:Key;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for CacheRecord.
func (CacheRecord) TableName() string { return "cache_records" }

// TagNames returns the plain tag labels of the record.
func (r CacheRecord) TagNames() []string {
	out := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		out = append(out, t.Tag)
	}
	return out
}

// CacheTag attaches one dependency label to a CacheRecord. A record is
// invalidated when any of its tags is dropped.
type CacheTag struct {
	CacheKey string `gorm:"type:varchar(255);primaryKey"`
	Tag      string `gorm:"type:varchar(64);primaryKey;index:idx_cache_tags_tag"`
}

// TableName returns the database table name for CacheTag.
func (CacheTag) TableName() string { return "cache_tags" }
