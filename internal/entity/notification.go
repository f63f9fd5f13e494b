package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationFollow  NotificationType = "follow"
	NotificationAccept  NotificationType = "accept"
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationMessage NotificationType = "message"
)

type Notification struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID    uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_recipient_read,priority:1" json:"recipient_id"`
	ActorID        uuid.UUID        `gorm:"type:uuid;not null" json:"actor_id"`
	Type           NotificationType `gorm:"size:20;not null;index" json:"type"`
	PostID         *uuid.UUID       `gorm:"type:uuid" json:"post_id,omitempty"`
	ConversationID *uuid.UUID       `gorm:"type:uuid;index" json:"conversation_id,omitempty"`
	Message        string           `gorm:"type:text" json:"message"`
	IsRead         bool             `gorm:"not null;default:false;index:idx_notifications_recipient_read,priority:2" json:"is_read"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`

	Actor *Profile `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
}

func (n *Notification) TableName() string {
	return TableNotifications
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}
