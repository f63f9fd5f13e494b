package dto

import (
	"time"

	"anoa.com/friendline/internal/entity"
	commonDto "anoa.com/friendline/pkg/dto"
	"github.com/google/uuid"
)

type FollowEdgeResponse struct {
	FollowerID  uuid.UUID           `json:"follower_id"`
	FollowingID uuid.UUID           `json:"following_id"`
	Status      entity.FollowStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
}

func NewFollowEdgeResponse(e *entity.FollowEdge) *FollowEdgeResponse {
	return &FollowEdgeResponse{
		FollowerID:  e.FollowerID,
		FollowingID: e.FollowingID,
		Status:      e.Status,
		CreatedAt:   e.CreatedAt,
	}
}

type FollowRequestResponse struct {
	From      commonDto.AuthorResponse `json:"from"`
	CreatedAt time.Time                `json:"created_at"`
}
