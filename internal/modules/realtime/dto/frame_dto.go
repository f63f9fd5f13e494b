package dto

import (
	"anoa.com/friendline/internal/entity"
	convDto "anoa.com/friendline/internal/modules/conversation/dto"
)

// Client actions.
const (
	ActionOpen             = "open"
	ActionClose            = "close"
	ActionRead             = "read"
	ActionReadNotification = "read_notification"
	ActionSend             = "send"
	ActionRefresh          = "refresh"
)

// Server frames.
const (
	FrameBadge         = "badge"
	FrameConversations = "conversations"
	FrameMessages      = "messages"
	FrameMessage       = "message"
	FrameError         = "error"
)

// Action is one inbound client frame. Which fields matter depends on Type.
type Action struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversation_id,omitempty"`
	NotificationID string  `json:"notification_id,omitempty"`
	Body           string  `json:"body,omitempty"`
	MediaURL       *string `json:"media_url,omitempty"`
}

type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type BadgePayload struct {
	Count              int64            `json:"count"`
	MessageUnreadTotal int64            `json:"message_unread_total"`
	MessageUnread      map[string]int64 `json:"message_unread"`
}

type ConversationsPayload struct {
	Conversations []convDto.ConversationSummary `json:"conversations"`
}

type MessagesPayload struct {
	Conversation convDto.ConversationSummary `json:"conversation"`
	Messages     []entity.Message            `json:"messages"`
}

type MessagePayload struct {
	Message entity.Message `json:"message"`
}

// ErrorPayload reports a failed action. Draft echoes the unsent body so the
// client can keep it in the composer.
type ErrorPayload struct {
	Action  string `json:"action"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Draft   string `json:"draft,omitempty"`
}
