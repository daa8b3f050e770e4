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

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.UserMapper
}

func NewUserRepository(db *gorm.DB) contract.UserRepository {
	return &UserRepositoryImpl{
		db:     db,
		mapper: mapper.NewUserMapper(),
	}
}

func (r *UserRepositoryImpl) Touch(ctx context.Context, id int64, class entity.ModelClass, at time.Time) error {
	at = at.UTC()
	row := &model.User{Id: id, FirstSeen: at, LastSeen: at, TotalMessages: 1}
	updates := map[string]interface{}{
		"last_seen":      at,
		"total_messages": gorm.Expr("users.total_messages + 1"),
	}
	if col := r.mapper.ClassColumn(class); col != "" {
		switch class {
		case entity.ModelClassText:
			row.TextMessages = 1
		case entity.ModelClassImage:
			row.ImageMessages = 1
		case entity.ModelClassAudio:
			row.AudioMessages = 1
		case entity.ModelClassVideo:
			row.VideoMessages = 1
		}
		updates[col] = gorm.Expr("users." + col + " + 1")
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(row).Error
}

func (r *UserRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.User, error) {
	var modelUser model.User
	query := specification.Apply(r.db.WithContext(ctx), specs...)

	if err := query.First(&modelUser).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return r.mapper.ToEntity(&modelUser), nil
}

func (r *UserRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.User, error) {
	var modelUsers []*model.User
	query := specification.Apply(r.db.WithContext(ctx), specs...)

	if err := query.Find(&modelUsers).Error; err != nil {
		return nil, err
	}

	return r.mapper.ToEntities(modelUsers), nil
}

func (r *UserRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := specification.Apply(r.db.WithContext(ctx).Model(&model.User{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *UserRepositoryImpl) ListIDs(ctx context.Context, specs ...specification.Specification) ([]int64, error) {
	var ids []int64
	query := specification.Apply(r.db.WithContext(ctx).Model(&model.User{}), specs...)
	if err := query.Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *UserRepositoryImpl) SumMessages(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Select("COALESCE(SUM(total_messages), 0)").
		Scan(&total).Error
	return total, err
}

// SetBanned also creates the user row so a ban can precede the first message.
func (r *UserRepositoryImpl) SetBanned(ctx context.Context, id int64, banned bool) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"banned": banned}),
	}).Create(&model.User{Id: id, FirstSeen: now, LastSeen: now, Banned: banned}).Error
}
