package repository

import (
	"context"

	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostRepository interface {
	Create(ctx context.Context, post *entity.Post) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Post, error)
	// ToggleLike adds the like when absent and removes it when present.
	// It reports whether the post is liked afterwards.
	ToggleLike(ctx context.Context, postID, userID uuid.UUID) (bool, error)
	HasLiked(ctx context.Context, postID, userID uuid.UUID) (bool, error)
	CountLikes(ctx context.Context, postID uuid.UUID) (int64, error)
	CreateComment(ctx context.Context, comment *entity.Comment) error
	ListComments(ctx context.Context, postID uuid.UUID, limit, offset int) ([]entity.Comment, int64, error)
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *entity.Post) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(post).Error, "create post")
}

func (r *postRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Post, error) {
	var post entity.Post
	if err := r.db.WithContext(ctx).Preload("Author").Where("id = ?", id).First(&post).Error; err != nil {
		return nil, apperror.FromDB(err, "find post")
	}
	return &post, nil
}

func (r *postRepository) ToggleLike(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	var liked bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&entity.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		liked = true
		return tx.Create(&entity.Like{PostID: postID, UserID: userID}).Error
	})
	if err != nil {
		return false, apperror.FromDB(err, "toggle like")
	}
	return liked, nil
}

func (r *postRepository) HasLiked(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error
	return count > 0, apperror.FromDB(err, "check like")
}

func (r *postRepository) CountLikes(ctx context.Context, postID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Like{}).Where("post_id = ?", postID).Count(&count).Error
	return count, apperror.FromDB(err, "count likes")
}

func (r *postRepository) CreateComment(ctx context.Context, comment *entity.Comment) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(comment).Error, "create comment")
}

func (r *postRepository) ListComments(ctx context.Context, postID uuid.UUID, limit, offset int) ([]entity.Comment, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&entity.Comment{}).Where("post_id = ?", postID).Count(&total).Error; err != nil {
		return nil, 0, apperror.FromDB(err, "count comments")
	}

	var comments []entity.Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at asc, id asc").
		Limit(limit).
		Offset(offset).
		Preload("Author").
		Find(&comments).Error
	if err != nil {
		return nil, 0, apperror.FromDB(err, "list comments")
	}
	return comments, total, nil
}
