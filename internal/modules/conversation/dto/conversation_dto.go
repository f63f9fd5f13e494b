package dto

import (
	"time"

	"anoa.com/friendline/internal/entity"
	commonDto "anoa.com/friendline/pkg/dto"
	"github.com/google/uuid"
)

// ConversationSummary is one row of a user's conversation list. ID is either
// a stored conversation or a virtual one keyed by the counterpart.
type ConversationSummary struct {
	ID            entity.ConversationRef   `json:"id"`
	Participants  [2]uuid.UUID             `json:"participants"`
	Counterpart   commonDto.AuthorResponse `json:"counterpart"`
	UnreadCount   int64                    `json:"unread_count"`
	LastMessageAt *time.Time               `json:"last_message_at"`
}

func (s *ConversationSummary) IsVirtual() bool {
	return s.ID.IsVirtual()
}
