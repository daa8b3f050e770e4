package implementation

import (
	"context"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/mapper"
	"ai-genbot-gateway/internal/model"
	"ai-genbot-gateway/internal/repository/contract"
	"ai-genbot-gateway/internal/repository/specification"

	"gorm.io/gorm"
)

type ConversationRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConversationMapper
}

func NewConversationRepository(db *gorm.DB) contract.ConversationRepository {
	return &ConversationRepositoryImpl{db: db, mapper: mapper.NewConversationMapper()}
}

func (r *ConversationRepositoryImpl) Append(ctx context.Context, conversation *entity.Conversation) error {
	row := r.mapper.ToModel(conversation)
	row.Timestamp = row.Timestamp.UTC()
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	conversation.ID = row.Id
	return nil
}

func (r *ConversationRepositoryImpl) LastN(ctx context.Context, userID int64, n int) ([]*entity.Conversation, error) {
	var rows []*model.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return r.mapper.ToEntities(rows), nil
}

func (r *ConversationRepositoryImpl) DeleteByUser(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.Conversation{}).Error
}

func (r *ConversationRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := specification.Apply(r.db.WithContext(ctx).Model(&model.Conversation{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
