package specification

import (
	"time"

	"ai-genbot-gateway/internal/entity"

	"gorm.io/gorm"
)

type ByKind struct {
	Kind entity.GenerationKind
}

func (s ByKind) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("kind = ?", string(s.Kind))
}

// CreatedSince bounds the rolling quota window.
type CreatedSince struct {
	Since time.Time
}

func (s CreatedSince) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("created_at >= ?", s.Since)
}

type ByJobID struct {
	JobID string
}

func (s ByJobID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("job_id = ?", s.JobID)
}
