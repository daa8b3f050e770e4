package specification

import (
	"time"

	"gorm.io/gorm"
)

// ByUserID matches rows owned by a chat user.
type ByUserID struct {
	UserID int64
}

func (s ByUserID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}

type BannedUsers struct{}

func (s BannedUsers) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("banned = ?", true)
}

type NotBanned struct{}

func (s NotBanned) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("banned = ?", false)
}

type SeenSince struct {
	Since time.Time
}

func (s SeenSince) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("last_seen >= ?", s.Since)
}
