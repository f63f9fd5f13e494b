package service

import (
	"context"

	"anoa.com/friendline/internal/entity"
	notifDto "anoa.com/friendline/internal/modules/notification/dto"
	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	presence "anoa.com/friendline/internal/modules/presence/service"
	profileDto "anoa.com/friendline/internal/modules/profile/dto"
	"anoa.com/friendline/pkg/changefeed"
	commonDto "anoa.com/friendline/pkg/dto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NotificationService interface {
	GetNotifications(ctx context.Context, userID uuid.UUID, q commonDto.PaginationQuery) (*notifDto.NotificationListResponse, error)
	BadgeCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MessageUnread(ctx context.Context, userID uuid.UUID) (*notifDto.MessageUnreadResponse, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
}

type notificationService struct {
	repo     notifRepo.NotificationRepository
	presence presence.PresenceService
	feed     changefeed.Feed
	log      *zap.Logger
}

func NewNotificationService(repo notifRepo.NotificationRepository, presenceService presence.PresenceService, feed changefeed.Feed, log *zap.Logger) NotificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &notificationService{
		repo:     repo,
		presence: presenceService,
		feed:     feed,
		log:      log.Named("notification"),
	}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID uuid.UUID, q commonDto.PaginationQuery) (*notifDto.NotificationListResponse, error) {
	offset := q.Normalize()

	notifications, total, err := s.repo.ListByRecipient(ctx, userID, q.Limit, offset)
	if err != nil {
		return nil, err
	}

	data := make([]notifDto.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		n := &notifications[i]
		var online bool
		if n.Actor != nil {
			online = s.presence.IsOnline(n.Actor.LastActiveAt)
		}
		data = append(data, notifDto.NotificationResponse{
			ID:             n.ID,
			Type:           n.Type,
			Actor:          profileDto.ToAuthor(n.Actor, online),
			PostID:         n.PostID,
			ConversationID: n.ConversationID,
			Message:        n.Message,
			IsRead:         n.IsRead,
			CreatedAt:      n.CreatedAt,
		})
	}

	return &notifDto.NotificationListResponse{
		Data: data,
		Meta: commonDto.NewPaginationMeta(q, total),
	}, nil
}

func (s *notificationService) BadgeCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnreadBadge(ctx, userID)
}

func (s *notificationService) MessageUnread(ctx context.Context, userID uuid.UUID) (*notifDto.MessageUnreadResponse, error) {
	counts, err := s.repo.CountUnreadMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return &notifDto.MessageUnreadResponse{Total: total, ByConversation: counts}, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	counter := NewCounter(s.repo, userID)
	if err := counter.MarkRead(ctx, id); err != nil {
		return err
	}
	EmitRead(ctx, s.feed, s.log, userID, nil, "")
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	affected, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return err
	}
	if affected > 0 {
		EmitRead(ctx, s.feed, s.log, userID, nil, "")
	}
	return nil
}

// ReadMarker is the row published when notifications flip to read. Sessions
// only look at recipient_id and re-derive their counters; Origin names the
// session that made the change so it can skip its own echo.
type ReadMarker struct {
	RecipientID    uuid.UUID  `json:"recipient_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	IsRead         bool       `json:"is_read"`
	Origin         string     `json:"origin,omitempty"`
}

// EmitRead tells every session of recipient that some notifications were read.
// origin is empty for changes made outside a realtime session.
func EmitRead(ctx context.Context, feed changefeed.Feed, log *zap.Logger, recipientID uuid.UUID, conversationID *uuid.UUID, origin string) {
	changefeed.Emit(ctx, feed, log, entity.TableNotifications, changefeed.OpUpdate, ReadMarker{
		RecipientID:    recipientID,
		ConversationID: conversationID,
		IsRead:         true,
		Origin:         origin,
	})
}
