package mapper

import (
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/model"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

func (m *ConversationMapper) ToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}
	out := &entity.Conversation{
		ID:         c.Id,
		UserID:     c.UserId,
		UserText:   c.UserText,
		BotText:    c.BotText,
		ModelClass: entity.ModelClass(c.ModelClass),
		Timestamp:  c.Timestamp,
	}
	if c.AudioId != nil {
		out.AudioID = *c.AudioId
	}
	return out
}

func (m *ConversationMapper) ToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}
	out := &model.Conversation{
		Id:         c.ID,
		UserId:     c.UserID,
		UserText:   c.UserText,
		BotText:    c.BotText,
		ModelClass: string(c.ModelClass),
		Timestamp:  c.Timestamp,
	}
	if c.AudioID != "" {
		audio := c.AudioID
		out.AudioId = &audio
	}
	return out
}

func (m *ConversationMapper) ToEntities(rows []*model.Conversation) []*entity.Conversation {
	out := make([]*entity.Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, m.ToEntity(r))
	}
	return out
}
