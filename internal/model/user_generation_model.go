// FILE: internal/model/user_generation_model.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// UserGeneration rows are counted by the quota gate over a rolling 24h window.
type UserGeneration struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId       int64     `gorm:"not null;index:idx_user_generations_user_kind_time,priority:1"`
	Kind         string    `gorm:"type:varchar(32);not null;index:idx_user_generations_user_kind_time,priority:2"`
	Provider     string    `gorm:"type:varchar(64)"`
	JobId        string    `gorm:"type:varchar(32);not null;uniqueIndex"`
	PromptDigest string    `gorm:"type:varchar(64)"`
	CreatedAt    time.Time `gorm:"not null;index:idx_user_generations_user_kind_time,priority:3"`
}

func (UserGeneration) TableName() string {
	return "user_generations"
}
