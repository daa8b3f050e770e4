// FILE: internal/model/user_model.go
package model

import "time"

type User struct {
	Id            int64     `gorm:"primaryKey;autoIncrement:false"`
	FirstSeen     time.Time `gorm:"not null"`
	LastSeen      time.Time `gorm:"not null;index"`
	TotalMessages int64     `gorm:"not null;default:0"`
	TextMessages  int64     `gorm:"not null;default:0"`
	ImageMessages int64     `gorm:"not null;default:0"`
	AudioMessages int64     `gorm:"not null;default:0"`
	VideoMessages int64     `gorm:"not null;default:0"`
	Banned        bool      `gorm:"not null;default:false"`
}

func (User) TableName() string {
	return "users"
}

type BannedUser struct {
	UserId   int64     `gorm:"primaryKey;autoIncrement:false"`
	BannedAt time.Time `gorm:"not null"`
}

func (BannedUser) TableName() string {
	return "banned_users"
}
