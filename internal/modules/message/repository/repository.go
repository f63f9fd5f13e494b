package repository

import (
	"context"

	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRepository interface {
	WithTx(tx *gorm.DB) MessageRepository
	Create(ctx context.Context, message *entity.Message) error
	// ListByConversation returns the full history, oldest first.
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]entity.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) WithTx(tx *gorm.DB) MessageRepository {
	return &messageRepository{db: tx}
}

func (r *messageRepository) Create(ctx context.Context, message *entity.Message) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(message).Error, "create message")
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]entity.Message, error) {
	var messages []entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc, id asc").
		Find(&messages).Error
	return messages, apperror.FromDB(err, "list messages")
}
