package dto

import (
	"time"

	"anoa.com/friendline/internal/entity"
	commonDto "anoa.com/friendline/pkg/dto"
	"github.com/google/uuid"
)

type NotificationResponse struct {
	ID             uuid.UUID                `json:"id"`
	Type           entity.NotificationType  `json:"type"`
	Actor          commonDto.AuthorResponse `json:"actor"`
	PostID         *uuid.UUID               `json:"post_id,omitempty"`
	ConversationID *uuid.UUID               `json:"conversation_id,omitempty"`
	Message        string                   `json:"message"`
	IsRead         bool                     `json:"is_read"`
	CreatedAt      time.Time                `json:"created_at"`
}

type NotificationListResponse struct {
	Data []NotificationResponse   `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

type MessageUnreadResponse struct {
	Total          int64               `json:"total"`
	ByConversation map[uuid.UUID]int64 `json:"by_conversation"`
}
