// FILE: internal/model/usage_model.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type CommandUsage struct {
	Command string `gorm:"type:varchar(64);primaryKey"`
	Count   int64  `gorm:"not null;default:0"`
}

func (CommandUsage) TableName() string {
	return "command_usage"
}

type ModelUsage struct {
	Model string `gorm:"type:varchar(128);primaryKey"`
	Count int64  `gorm:"not null;default:0"`
}

func (ModelUsage) TableName() string {
	return "model_usage"
}

type ErrorCount struct {
	Kind  string `gorm:"type:varchar(64);primaryKey"`
	Count int64  `gorm:"not null;default:0"`
}

func (ErrorCount) TableName() string {
	return "errors"
}

type ResponseTime struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	FlushId     string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	WindowStart time.Time `gorm:"not null;index"`
	WindowEnd   time.Time `gorm:"not null"`
	Samples     int       `gorm:"not null"`
	Avg         float64   `gorm:"not null"`
	Min         float64   `gorm:"not null"`
	Max         float64   `gorm:"not null"`
}

func (ResponseTime) TableName() string {
	return "response_times"
}

// MetricFlush is the ledger that makes a replayed flush a no-op.
type MetricFlush struct {
	FlushId   string    `gorm:"type:varchar(64);primaryKey"`
	AppliedAt time.Time `gorm:"not null"`
}

func (MetricFlush) TableName() string {
	return "metric_flushes"
}
