package dto

import (
	"time"

	"anoa.com/friendline/internal/entity"
	commonDto "anoa.com/friendline/pkg/dto"
	"github.com/google/uuid"
)

type UpdateProfileInput struct {
	Username    *string `form:"username" json:"username" binding:"omitempty,min=3,max=50"`
	DisplayName *string `form:"display_name" json:"display_name" binding:"omitempty,min=1,max=100"`
}

type ProfileResponse struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	AvatarURL    *string    `json:"avatar_url"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	Online       bool       `json:"online"`
	CreatedAt    time.Time  `json:"created_at"`
}

func NewProfileResponse(p *entity.Profile, online bool) *ProfileResponse {
	return &ProfileResponse{
		ID:           p.ID,
		Username:     p.Username,
		DisplayName:  p.DisplayName,
		AvatarURL:    p.AvatarURL,
		LastActiveAt: p.LastActiveAt,
		Online:       online,
		CreatedAt:    p.CreatedAt,
	}
}

// ToAuthor is the compact form embedded in notifications, comments and conversation summaries.
func ToAuthor(p *entity.Profile, online bool) commonDto.AuthorResponse {
	if p == nil {
		return commonDto.AuthorResponse{}
	}
	return commonDto.AuthorResponse{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Online:      online,
	}
}
