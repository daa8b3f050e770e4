package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/model"
	"ai-genbot-gateway/internal/repository/contract"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserDataRepositoryImpl struct {
	db *gorm.DB
}

func NewUserDataRepository(db *gorm.DB) contract.UserDataRepository {
	return &UserDataRepositoryImpl{db: db}
}

func (r *UserDataRepositoryImpl) Put(ctx context.Context, userID int64, dataType entity.UserDataType, value json.RawMessage) error {
	now := time.Now().UTC()
	row := &model.UserData{
		UserId:    userID,
		DataType:  string(dataType),
		Json:      datatypes.JSON(value),
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "data_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"json", "updated_at"}),
	}).Create(row).Error
}

func (r *UserDataRepositoryImpl) Get(ctx context.Context, userID int64, dataType entity.UserDataType) (json.RawMessage, error) {
	var row model.UserData
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND data_type = ?", userID, string(dataType)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return json.RawMessage(row.Json), nil
}
