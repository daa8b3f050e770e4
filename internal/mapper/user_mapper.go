package mapper

import (
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/model"
)

type UserMapper struct{}

func NewUserMapper() *UserMapper {
	return &UserMapper{}
}

func (m *UserMapper) ToEntity(u *model.User) *entity.User {
	if u == nil {
		return nil
	}
	return &entity.User{
		ID:            u.Id,
		FirstSeen:     u.FirstSeen,
		LastSeen:      u.LastSeen,
		TotalMessages: u.TotalMessages,
		TextMessages:  u.TextMessages,
		ImageMessages: u.ImageMessages,
		AudioMessages: u.AudioMessages,
		VideoMessages: u.VideoMessages,
		Banned:        u.Banned,
	}
}

func (m *UserMapper) ToModel(u *entity.User) *model.User {
	if u == nil {
		return nil
	}
	return &model.User{
		Id:            u.ID,
		FirstSeen:     u.FirstSeen,
		LastSeen:      u.LastSeen,
		TotalMessages: u.TotalMessages,
		TextMessages:  u.TextMessages,
		ImageMessages: u.ImageMessages,
		AudioMessages: u.AudioMessages,
		VideoMessages: u.VideoMessages,
		Banned:        u.Banned,
	}
}

func (m *UserMapper) ToEntities(users []*model.User) []*entity.User {
	out := make([]*entity.User, 0, len(users))
	for _, u := range users {
		out = append(out, m.ToEntity(u))
	}
	return out
}

func (m *UserMapper) BannedToEntity(b *model.BannedUser) *entity.BannedUser {
	if b == nil {
		return nil
	}
	return &entity.BannedUser{UserID: b.UserId, BannedAt: b.BannedAt}
}

// ClassColumn names the per-class counter column on users.
func (m *UserMapper) ClassColumn(class entity.ModelClass) string {
	switch class {
	case entity.ModelClassText:
		return "text_messages"
	case entity.ModelClassImage:
		return "image_messages"
	case entity.ModelClassAudio:
		return "audio_messages"
	case entity.ModelClassVideo:
		return "video_messages"
	default:
		return ""
	}
}
