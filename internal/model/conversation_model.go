// FILE: internal/model/conversation_model.go
package model

import "time"

type Conversation struct {
	Id         int64     `gorm:"primaryKey;autoIncrement"`
	UserId     int64     `gorm:"not null;index:idx_conversations_user_time,priority:1"`
	UserText   string    `gorm:"type:text;not null"`
	BotText    string    `gorm:"type:text;not null"`
	ModelClass string    `gorm:"type:varchar(16)"`
	AudioId    *string   `gorm:"type:varchar(128)"`
	Timestamp  time.Time `gorm:"not null;index:idx_conversations_user_time,priority:2"`
}

func (Conversation) TableName() string {
	return "conversations"
}
