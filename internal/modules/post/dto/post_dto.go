package dto

import (
	"time"

	commonDto "anoa.com/friendline/pkg/dto"
	"github.com/google/uuid"
)

type CreatePostRequest struct {
	Body string `form:"body" json:"body" binding:"required,max=5000"`
}

type CreateCommentRequest struct {
	Body string `json:"body" binding:"required,max=2000"`
}

type PostResponse struct {
	ID         uuid.UUID                `json:"id"`
	Body       string                   `json:"body"`
	MediaURL   *string                  `json:"media_url"`
	Author     commonDto.AuthorResponse `json:"author"`
	LikesCount int64                    `json:"likes_count"`
	Liked      bool                     `json:"liked"`
	CreatedAt  time.Time                `json:"created_at"`
}

type LikeResponse struct {
	Liked      bool  `json:"liked"`
	LikesCount int64 `json:"likes_count"`
}

type CommentResponse struct {
	ID        uuid.UUID                `json:"id"`
	PostID    uuid.UUID                `json:"post_id"`
	Body      string                   `json:"body"`
	Author    commonDto.AuthorResponse `json:"author"`
	CreatedAt time.Time                `json:"created_at"`
}

type PaginatedCommentResponse struct {
	Data []CommentResponse        `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}
