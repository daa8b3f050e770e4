// FILE: internal/model/user_data_model.go
package model

import (
	"time"

	"gorm.io/datatypes"
)

type UserData struct {
	UserId    int64          `gorm:"primaryKey;autoIncrement:false"`
	DataType  string         `gorm:"type:varchar(64);primaryKey"`
	Json      datatypes.JSON `gorm:"column:json"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (UserData) TableName() string {
	return "user_data"
}
