package implementation

import (
	"context"
	"errors"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/mapper"
	"ai-genbot-gateway/internal/model"
	"ai-genbot-gateway/internal/repository/contract"
	"ai-genbot-gateway/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GenerationRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.GenerationMapper
}

func NewGenerationRepository(db *gorm.DB) contract.GenerationRepository {
	return &GenerationRepositoryImpl{db: db, mapper: mapper.NewGenerationMapper()}
}

func (r *GenerationRepositoryImpl) Record(ctx context.Context, record *entity.GenerationRecord) (bool, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	row := r.mapper.ToModel(record)
	row.CreatedAt = row.CreatedAt.UTC()

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoNothing: true,
	}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GenerationRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := specification.Apply(r.db.WithContext(ctx).Model(&model.UserGeneration{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GenerationRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.GenerationRecord, error) {
	var row model.UserGeneration
	query := specification.Apply(r.db.WithContext(ctx), specs...)
	if err := query.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&row), nil
}

func (r *GenerationRepositoryImpl) CountByKind(ctx context.Context, specs ...specification.Specification) (map[entity.GenerationKind]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	query := specification.Apply(r.db.WithContext(ctx).Model(&model.UserGeneration{}), specs...)
	if err := query.Select("kind, COUNT(*) AS total").Group("kind").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[entity.GenerationKind]int64, len(rows))
	for _, row := range rows {
		out[entity.GenerationKind(row.Kind)] = row.Total
	}
	return out, nil
}
