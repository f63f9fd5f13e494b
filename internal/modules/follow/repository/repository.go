package repository

import (
	"context"

	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FollowRepository interface {
	Find(ctx context.Context, followerID, followingID uuid.UUID) (*entity.FollowEdge, error)
	// Create returns ErrConflict when the ordered pair already has an edge.
	Create(ctx context.Context, edge *entity.FollowEdge) error
	// Accept flips the pending edge follower->accepter and upserts the accepted
	// reverse edge in one transaction. It returns the reverse edge.
	Accept(ctx context.Context, followerID, accepterID uuid.UUID) (*entity.FollowEdge, error)
	DeletePending(ctx context.Context, followerID, followingID uuid.UUID) (int64, error)
	// DeleteBoth removes the edges in both directions.
	DeleteBoth(ctx context.Context, a, b uuid.UUID) (int64, error)
	ListFollowing(ctx context.Context, followerID uuid.UUID, status entity.FollowStatus) ([]entity.FollowEdge, error)
	ListIncoming(ctx context.Context, followingID uuid.UUID) ([]entity.FollowEdge, error)
}

type followRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Find(ctx context.Context, followerID, followingID uuid.UUID) (*entity.FollowEdge, error) {
	var edge entity.FollowEdge
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		First(&edge).Error
	if err != nil {
		return nil, apperror.FromDB(err, "find follow edge")
	}
	return &edge, nil
}

func (r *followRepository) Create(ctx context.Context, edge *entity.FollowEdge) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(edge).Error, "create follow edge")
}

func (r *followRepository) Accept(ctx context.Context, followerID, accepterID uuid.UUID) (*entity.FollowEdge, error) {
	reverse := &entity.FollowEdge{
		FollowerID:  accepterID,
		FollowingID: followerID,
		Status:      entity.FollowAccepted,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.FollowEdge{}).
			Where("follower_id = ? AND following_id = ? AND status = ?", followerID, accepterID, entity.FollowPending).
			Update("status", entity.FollowAccepted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "follower_id"}, {Name: "following_id"}},
			DoUpdates: clause.Assignments(map[string]any{"status": entity.FollowAccepted}),
		}).Create(reverse).Error
	})
	if err != nil {
		return nil, apperror.FromDB(err, "accept follow")
	}
	return reverse, nil
}

func (r *followRepository) DeletePending(ctx context.Context, followerID, followingID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ? AND status = ?", followerID, followingID, entity.FollowPending).
		Delete(&entity.FollowEdge{})
	return res.RowsAffected, apperror.FromDB(res.Error, "delete pending follow")
}

func (r *followRepository) DeleteBoth(ctx context.Context, a, b uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(follower_id = ? AND following_id = ?) OR (follower_id = ? AND following_id = ?)", a, b, b, a).
		Delete(&entity.FollowEdge{})
	return res.RowsAffected, apperror.FromDB(res.Error, "delete follow edges")
}

// ListFollowing keeps insertion order; the conversation list relies on it for ties.
func (r *followRepository) ListFollowing(ctx context.Context, followerID uuid.UUID, status entity.FollowStatus) ([]entity.FollowEdge, error) {
	var edges []entity.FollowEdge
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND status = ?", followerID, status).
		Order("created_at asc, following_id asc").
		Preload("Following").
		Find(&edges).Error
	return edges, apperror.FromDB(err, "list following")
}

func (r *followRepository) ListIncoming(ctx context.Context, followingID uuid.UUID) ([]entity.FollowEdge, error) {
	var edges []entity.FollowEdge
	err := r.db.WithContext(ctx).
		Where("following_id = ? AND status = ?", followingID, entity.FollowPending).
		Order("created_at desc").
		Preload("Follower").
		Find(&edges).Error
	return edges, apperror.FromDB(err, "list incoming follows")
}
