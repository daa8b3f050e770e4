package implementation

import (
	"context"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/mapper"
	"ai-genbot-gateway/internal/model"
	"ai-genbot-gateway/internal/repository/contract"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BanRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.UserMapper
}

func NewBanRepository(db *gorm.DB) contract.BanRepository {
	return &BanRepositoryImpl{db: db, mapper: mapper.NewUserMapper()}
}

func (r *BanRepositoryImpl) Ban(ctx context.Context, userID int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.BannedUser{UserId: userID, BannedAt: at.UTC()}).Error
}

func (r *BanRepositoryImpl) Unban(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.BannedUser{}).Error
}

func (r *BanRepositoryImpl) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.BannedUser{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (r *BanRepositoryImpl) List(ctx context.Context) ([]*entity.BannedUser, error) {
	var rows []*model.BannedUser
	if err := r.db.WithContext(ctx).Order("banned_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*entity.BannedUser, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.mapper.BannedToEntity(row))
	}
	return out, nil
}
