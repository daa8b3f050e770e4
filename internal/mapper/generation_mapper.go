package mapper

import (
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/model"
)

type GenerationMapper struct{}

func NewGenerationMapper() *GenerationMapper {
	return &GenerationMapper{}
}

func (m *GenerationMapper) ToEntity(g *model.UserGeneration) *entity.GenerationRecord {
	if g == nil {
		return nil
	}
	return &entity.GenerationRecord{
		ID:           g.Id,
		UserID:       g.UserId,
		Kind:         entity.GenerationKind(g.Kind),
		Provider:     g.Provider,
		JobID:        g.JobId,
		PromptDigest: g.PromptDigest,
		CreatedAt:    g.CreatedAt,
	}
}

func (m *GenerationMapper) ToModel(g *entity.GenerationRecord) *model.UserGeneration {
	if g == nil {
		return nil
	}
	return &model.UserGeneration{
		Id:           g.ID,
		UserId:       g.UserID,
		Kind:         string(g.Kind),
		Provider:     g.Provider,
		JobId:        g.JobID,
		PromptDigest: g.PromptDigest,
		CreatedAt:    g.CreatedAt,
	}
}

func (m *GenerationMapper) ToEntities(rows []*model.UserGeneration) []*entity.GenerationRecord {
	out := make([]*entity.GenerationRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, m.ToEntity(r))
	}
	return out
}
