// FILE: internal/entity/user_entity.go
package entity

import "time"

// User is created on the first inbound message and never destroyed.
type User struct {
	ID            int64
	FirstSeen     time.Time
	LastSeen      time.Time
	TotalMessages int64
	TextMessages  int64
	ImageMessages int64
	AudioMessages int64
	VideoMessages int64
	Banned        bool
}

type BannedUser struct {
	UserID   int64
	BannedAt time.Time
}

type UserStats struct {
	TotalUsers       int64
	BannedUsers      int64
	ActiveLast24h    int64
	TotalMessages    int64
	GenerationsToday map[GenerationKind]int64
}

type UserDataType string

const (
	UserDataPreferences  UserDataType = "preferences"
	UserDataGlobalSystem UserDataType = "global_system"
)

// GlobalUserID keys gateway-wide rows in user_data.
const GlobalUserID int64 = 0
