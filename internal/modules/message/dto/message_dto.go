package dto

import (
	"anoa.com/friendline/internal/entity"
)

type SendMessageRequest struct {
	ConversationID string  `json:"conversation_id" binding:"required"`
	Body           string  `json:"body" binding:"max=4000"`
	MediaURL       *string `json:"media_url" binding:"omitempty,url"`
}

// SendResult carries the stored message and the conversation it landed in,
// which differs from the request when a virtual conversation was resolved.
type SendResult struct {
	Conversation entity.ConversationRef `json:"conversation_id"`
	Message      entity.Message         `json:"message"`
	Created      bool                   `json:"conversation_created"`
}

type HistoryResponse struct {
	Conversation entity.ConversationRef `json:"conversation_id"`
	Messages     []entity.Message       `json:"messages"`
}

type MediaUploadResponse struct {
	URL string `json:"url"`
}
