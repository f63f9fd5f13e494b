package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"anoa.com/friendline/internal/entity"
	convRepo "anoa.com/friendline/internal/modules/conversation/repository"
	msgDto "anoa.com/friendline/internal/modules/message/dto"
	msgRepo "anoa.com/friendline/internal/modules/message/repository"
	notification "anoa.com/friendline/internal/modules/notification/service"
	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/changefeed"
	commonDto "anoa.com/friendline/pkg/dto"
	"anoa.com/friendline/pkg/moderation"
	"anoa.com/friendline/pkg/ratelimiter"
	"anoa.com/friendline/pkg/sanitize"
	"anoa.com/friendline/pkg/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const rateLimitAction = "message"

type MessageService interface {
	// LoadHistory returns the conversation oldest first. Virtual
	// conversations have no history yet.
	LoadHistory(ctx context.Context, userID uuid.UUID, ref entity.ConversationRef) ([]entity.Message, error)
	// Send appends body to the conversation. A virtual ref is resolved to the
	// pair's stored conversation (created on demand) in the same transaction
	// as the message insert.
	Send(ctx context.Context, ref entity.ConversationRef, senderID uuid.UUID, body string, mediaURL *string) (*msgDto.SendResult, error)
	// OpenTail starts a live, de-duplicated view of a stored conversation.
	OpenTail(ctx context.Context, userID uuid.UUID, ref entity.ConversationRef, h TailHandler) (*Tail, error)
	UploadMedia(ctx context.Context, userID uuid.UUID, file *commonDto.MediaFile) (string, error)
}

type messageService struct {
	db         *gorm.DB
	messages   msgRepo.MessageRepository
	convs      convRepo.ConversationRepository
	profiles   profileRepo.ProfileRepository
	fanout     notification.Fanout
	classifier moderation.Classifier
	storage    storage.MediaStorage
	rdb        *redis.Client
	rateLimit  time.Duration
	feed       changefeed.Feed
	log        *zap.Logger
}

type Deps struct {
	DB         *gorm.DB
	Messages   msgRepo.MessageRepository
	Convs      convRepo.ConversationRepository
	Profiles   profileRepo.ProfileRepository
	Fanout     notification.Fanout
	Classifier moderation.Classifier
	Storage    storage.MediaStorage
	Redis      *redis.Client
	RateLimit  time.Duration
	Feed       changefeed.Feed
	Log        *zap.Logger
}

func NewMessageService(d Deps) MessageService {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &messageService{
		db:         d.DB,
		messages:   d.Messages,
		convs:      d.Convs,
		profiles:   d.Profiles,
		fanout:     d.Fanout,
		classifier: d.Classifier,
		storage:    d.Storage,
		rdb:        d.Redis,
		rateLimit:  d.RateLimit,
		feed:       d.Feed,
		log:        log.Named("message"),
	}
}

// participantConversation loads a stored conversation the user belongs to.
func (s *messageService) participantConversation(ctx context.Context, convs convRepo.ConversationRepository, id, userID uuid.UUID) (*entity.Conversation, error) {
	conv, err := convs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "conversation not found")
		}
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperror.Wrap(apperror.ErrForbidden, "not a participant of this conversation")
	}
	return conv, nil
}

func (s *messageService) LoadHistory(ctx context.Context, userID uuid.UUID, ref entity.ConversationRef) ([]entity.Message, error) {
	if ref.IsZero() {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "conversation is required")
	}
	if ref.IsVirtual() {
		return []entity.Message{}, nil
	}

	conv, err := s.participantConversation(ctx, s.convs, ref.ConversationID(), userID)
	if err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, conv.ID)
}

func (s *messageService) Send(ctx context.Context, ref entity.ConversationRef, senderID uuid.UUID, body string, mediaURL *string) (*msgDto.SendResult, error) {
	if sanitize.IsBlank(body) {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "message cannot be empty")
	}
	if ref.IsZero() {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "conversation is required")
	}
	if ref.IsVirtual() && ref.CounterpartID() == senderID {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "you cannot message yourself")
	}
	if mediaURL != nil && *mediaURL == "" {
		mediaURL = nil
	}
	if mediaURL != nil && (s.storage == nil || !s.storage.Owns(*mediaURL, mediaFolder(senderID))) {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "media must be uploaded by the sender before it is sent")
	}
	body = sanitize.Text(body)

	if err := moderation.Gate(ctx, s.classifier, s.log, body); err != nil {
		return nil, err
	}

	if ref.IsVirtual() {
		// looked up outside the transaction; the row itself is never deleted
		if _, err := s.profiles.FindByID(ctx, ref.CounterpartID()); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, apperror.Wrap(apperror.ErrNotFound, "user not found")
			}
			return nil, err
		}
	}

	allowed, err := ratelimiter.CheckAndSetRateLimit(ctx, s.rdb, senderID, rateLimitAction, s.rateLimit)
	if err != nil {
		s.log.Warn("rate limit check failed, allowing send", zap.Error(err))
	} else if !allowed {
		ttl, _ := ratelimiter.GetRateLimitTTL(ctx, s.rdb, senderID, rateLimitAction)
		return nil, &ratelimiter.RateLimitError{
			Message:    fmt.Sprintf("you are sending messages too fast, wait %.0f seconds", ttl.Seconds()),
			RetryAfter: ttl,
		}
	}

	msg := &entity.Message{SenderID: senderID, Body: body, MediaURL: mediaURL}
	var (
		conv    *entity.Conversation
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		convs := s.convs.WithTx(tx)

		var err error
		if ref.IsVirtual() {
			conv, created, err = convs.ResolvePair(ctx, senderID, ref.CounterpartID())
		} else {
			conv, err = s.participantConversation(ctx, convs, ref.ConversationID(), senderID)
		}
		if err != nil {
			return err
		}

		msg.ConversationID = conv.ID
		if err := s.messages.WithTx(tx).Create(ctx, msg); err != nil {
			return err
		}
		return convs.TouchLastMessage(ctx, conv.ID, msg.CreatedAt)
	})
	if err != nil {
		// a failed send keeps the draft; let the user retry right away
		_ = ratelimiter.ClearRateLimit(ctx, s.rdb, senderID, rateLimitAction)
		return nil, err
	}

	at := msg.CreatedAt
	conv.LastMessageAt = &at
	if created {
		changefeed.Emit(ctx, s.feed, s.log, entity.TableConversations, changefeed.OpInsert, conv)
	} else {
		changefeed.Emit(ctx, s.feed, s.log, entity.TableConversations, changefeed.OpUpdate, conv)
	}
	changefeed.Emit(ctx, s.feed, s.log, entity.TableMessages, changefeed.OpInsert, msg)

	convID := conv.ID
	s.fanout.Dispatch(&entity.Notification{
		RecipientID:    conv.Counterpart(senderID),
		ActorID:        senderID,
		Type:           entity.NotificationMessage,
		ConversationID: &convID,
		Message:        preview(body),
	})

	return &msgDto.SendResult{
		Conversation: entity.RealConversation(conv.ID),
		Message:      *msg,
		Created:      created,
	}, nil
}

func (s *messageService) OpenTail(ctx context.Context, userID uuid.UUID, ref entity.ConversationRef, h TailHandler) (*Tail, error) {
	if ref.IsZero() || ref.IsVirtual() {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "only stored conversations can be tailed")
	}
	conv, err := s.participantConversation(ctx, s.convs, ref.ConversationID(), userID)
	if err != nil {
		return nil, err
	}

	load := func(ctx context.Context) ([]entity.Message, error) {
		return s.messages.ListByConversation(ctx, conv.ID)
	}
	return openTail(ctx, s.feed, conv.ID, load, h, s.log)
}

func (s *messageService) UploadMedia(ctx context.Context, userID uuid.UUID, file *commonDto.MediaFile) (string, error) {
	if s.storage == nil {
		return "", apperror.Wrap(apperror.ErrNetwork, "media storage is not configured")
	}
	if file == nil || file.Reader == nil {
		return "", apperror.Wrap(apperror.ErrInvalidInput, "file is required")
	}
	return s.storage.Upload(ctx, file.Reader, mediaFolder(userID), file.FileName)
}

// mediaFolder is where a user's message attachments live.
func mediaFolder(userID uuid.UUID) string {
	return "messages/" + userID.String()
}

func preview(body string) string {
	r := []rune(body)
	if len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return body
}
