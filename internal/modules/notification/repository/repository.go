package repository

import (
	"context"
	"time"

	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]entity.Notification, int64, error)
	// CountUnreadBadge counts unread notifications of every type except message.
	CountUnreadBadge(ctx context.Context, recipientID uuid.UUID) (int64, error)
	// CountUnreadMessages groups unread message notifications by conversation.
	CountUnreadMessages(ctx context.Context, recipientID uuid.UUID) (map[uuid.UUID]int64, error)
	// MarkRead returns the number of rows that flipped from unread to read.
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	MarkConversationRead(ctx context.Context, recipientID, conversationID uuid.UUID) (int64, error)
	// DeleteReadBefore removes read notifications created before cutoff.
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(notification).Error, "create notification")
}

func (r *notificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error) {
	var n entity.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, apperror.FromDB(err, "find notification")
	}
	return &n, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]entity.Notification, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("recipient_id = ?", recipientID).
		Count(&total).Error; err != nil {
		return nil, 0, apperror.FromDB(err, "count notifications")
	}

	var notifications []entity.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at desc, id desc").
		Limit(limit).
		Offset(offset).
		Preload("Actor").
		Find(&notifications).Error
	if err != nil {
		return nil, 0, apperror.FromDB(err, "list notifications")
	}
	return notifications, total, nil
}

func (r *notificationRepository) CountUnreadBadge(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("recipient_id = ? AND is_read = ? AND type <> ?", recipientID, false, entity.NotificationMessage).
		Count(&count).Error
	return count, apperror.FromDB(err, "count unread notifications")
}

func (r *notificationRepository) CountUnreadMessages(ctx context.Context, recipientID uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []struct {
		ConversationID uuid.UUID
		Count          int64
	}
	err := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Select("conversation_id, COUNT(*) AS count").
		Where("recipient_id = ? AND is_read = ? AND type = ? AND conversation_id IS NOT NULL", recipientID, false, entity.NotificationMessage).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperror.FromDB(err, "count unread messages")
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.ConversationID] = row.Count
	}
	return counts, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, recipientID, false).
		Update("is_read", true)
	return res.RowsAffected, apperror.FromDB(res.Error, "mark notification read")
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("recipient_id = ? AND is_read = ? AND type <> ?", recipientID, false, entity.NotificationMessage).
		Update("is_read", true)
	return res.RowsAffected, apperror.FromDB(res.Error, "mark all notifications read")
}

func (r *notificationRepository) MarkConversationRead(ctx context.Context, recipientID, conversationID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("recipient_id = ? AND conversation_id = ? AND type = ? AND is_read = ?", recipientID, conversationID, entity.NotificationMessage, false).
		Update("is_read", true)
	return res.RowsAffected, apperror.FromDB(res.Error, "mark conversation read")
}

func (r *notificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&entity.Notification{})
	return res.RowsAffected, apperror.FromDB(res.Error, "prune notifications")
}
