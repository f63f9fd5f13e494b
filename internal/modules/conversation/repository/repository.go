package repository

import (
	"context"
	"time"

	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepository interface {
	// WithTx returns a repository bound to tx.
	WithTx(tx *gorm.DB) ConversationRepository
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Conversation, error)
	FindByPair(ctx context.Context, a, b uuid.UUID) (*entity.Conversation, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID) ([]entity.Conversation, error)
	// ResolvePair returns the row for the unordered pair, inserting it when
	// missing. Concurrent callers for the same pair converge on one row.
	ResolvePair(ctx context.Context, a, b uuid.UUID) (*entity.Conversation, bool, error)
	// TouchLastMessage moves last_message_at forward, never backward.
	TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) WithTx(tx *gorm.DB) ConversationRepository {
	return &conversationRepository{db: tx}
}

func (r *conversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, apperror.FromDB(err, "find conversation")
	}
	return &conv, nil
}

func (r *conversationRepository) FindByPair(ctx context.Context, a, b uuid.UUID) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := r.db.WithContext(ctx).Where("pair_key = ?", entity.PairKey(a, b)).First(&conv).Error; err != nil {
		return nil, apperror.FromDB(err, "find conversation by pair")
	}
	return &conv, nil
}

func (r *conversationRepository) ListByParticipant(ctx context.Context, userID uuid.UUID) ([]entity.Conversation, error) {
	var convs []entity.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("created_at asc").
		Find(&convs).Error
	return convs, apperror.FromDB(err, "list conversations")
}

func (r *conversationRepository) ResolvePair(ctx context.Context, a, b uuid.UUID) (*entity.Conversation, bool, error) {
	conv := &entity.Conversation{ParticipantA: a, ParticipantB: b}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "pair_key"}}, DoNothing: true}).
		Create(conv)
	if res.Error != nil {
		return nil, false, apperror.FromDB(res.Error, "create conversation")
	}
	if res.RowsAffected == 1 {
		return conv, true, nil
	}

	existing, err := r.FindByPair(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *conversationRepository) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&entity.Conversation{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", id, at).
		Update("last_message_at", at).Error
	return apperror.FromDB(err, "touch conversation")
}
