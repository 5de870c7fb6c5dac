package models

import "time"

// Upload is one anonymously stored object. Slug and DeleteToken are immutable after creation.
type Upload struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	Slug           string     `gorm:"size:64;not null;uniqueIndex:uni_uploads_slug" json:"slug"`
	DeleteToken    string     `gorm:"size:128;not null;uniqueIndex:uni_uploads_delete_token" json:"-"`
	MediaKind      string     `gorm:"size:32;not null" json:"media_kind"`
	Mime           string     `gorm:"size:64;not null" json:"mime"`
	Ext            string     `gorm:"size:16;not null" json:"ext"`
	OriginalName   string     `gorm:"size:255" json:"original_name"`
	StoredPath     string     `gorm:"size:1024;not null" json:"-"`                      // relative to the media root
	SizeBytes      int64      `gorm:"not null" json:"size_bytes"`
	OriginIP       string     `gorm:"size:45;index:idx_uploads_ip_created,priority:1" json:"-"` // abuse accounting only
	UserAgent      string     `gorm:"size:512" json:"-"`
	ViewCount      int64      `gorm:"not null;default:0" json:"views"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	CreatedAt      time.Time  `gorm:"index:idx_uploads_ip_created,priority:2" json:"created_at"`
	ExpiresAt      *time.Time `gorm:"index" json:"expires_at"` // nil keeps the object indefinitely
}

// TableName pins the table name used by the raw window and access queries.
func (Upload) TableName() string {
	return "uploads"
}

// VisibleAt reports whether the object is still reachable at now.
func (u *Upload) VisibleAt(now time.Time) bool {
	return u.ExpiresAt == nil || u.ExpiresAt.After(now)
}
