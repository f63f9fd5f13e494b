package post

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"anoa.com/friendline/internal/entity"
	notification "anoa.com/friendline/internal/modules/notification/service"
	postDto "anoa.com/friendline/internal/modules/post/dto"
	postRepo "anoa.com/friendline/internal/modules/post/repository"
	presence "anoa.com/friendline/internal/modules/presence/service"
	profileDto "anoa.com/friendline/internal/modules/profile/dto"
	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/changefeed"
	commonDto "anoa.com/friendline/pkg/dto"
	"anoa.com/friendline/pkg/moderation"
	"anoa.com/friendline/pkg/sanitize"
	"anoa.com/friendline/pkg/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	likesField   = "likes"
	countsTTL    = 7 * 24 * time.Hour
	snippetLimit = 40
)

type PostService interface {
	CreatePost(ctx context.Context, authorID uuid.UUID, req postDto.CreatePostRequest, media *commonDto.MediaFile) (*postDto.PostResponse, error)
	GetPost(ctx context.Context, viewerID, postID uuid.UUID) (*postDto.PostResponse, error)
	ToggleLike(ctx context.Context, userID, postID uuid.UUID) (*postDto.LikeResponse, error)
	AddComment(ctx context.Context, userID, postID uuid.UUID, req postDto.CreateCommentRequest) (*postDto.CommentResponse, error)
	ListComments(ctx context.Context, postID uuid.UUID, q commonDto.PaginationQuery) (*postDto.PaginatedCommentResponse, error)
}

type postService struct {
	repo       postRepo.PostRepository
	profiles   profileRepo.ProfileRepository
	presence   presence.PresenceService
	fanout     notification.Fanout
	classifier moderation.Classifier
	storage    storage.MediaStorage
	rdb        *redis.Client
	feed       changefeed.Feed
	log        *zap.Logger
}

type Deps struct {
	Repo       postRepo.PostRepository
	Profiles   profileRepo.ProfileRepository
	Presence   presence.PresenceService
	Fanout     notification.Fanout
	Classifier moderation.Classifier
	Storage    storage.MediaStorage
	Redis      *redis.Client
	Feed       changefeed.Feed
	Log        *zap.Logger
}

func NewPostService(d Deps) PostService {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &postService{
		repo:       d.Repo,
		profiles:   d.Profiles,
		presence:   d.Presence,
		fanout:     d.Fanout,
		classifier: d.Classifier,
		storage:    d.Storage,
		rdb:        d.Redis,
		feed:       d.Feed,
		log:        log.Named("post"),
	}
}

func (s *postService) CreatePost(ctx context.Context, authorID uuid.UUID, req postDto.CreatePostRequest, media *commonDto.MediaFile) (*postDto.PostResponse, error) {
	body := sanitize.Text(req.Body)
	if body == "" && media == nil {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "post cannot be empty")
	}

	if err := moderation.Gate(ctx, s.classifier, s.log, body); err != nil {
		return nil, err
	}

	post := &entity.Post{AuthorID: authorID, Body: body}
	if media != nil && media.Reader != nil && s.storage != nil {
		url, err := s.storage.Upload(ctx, media.Reader, "posts", media.FileName)
		if err != nil {
			return nil, err
		}
		post.MediaURL = &url
	}

	if err := s.repo.Create(ctx, post); err != nil {
		return nil, err
	}
	changefeed.Emit(ctx, s.feed, s.log, entity.TablePosts, changefeed.OpInsert, post)

	return s.GetPost(ctx, authorID, post.ID)
}

func (s *postService) GetPost(ctx context.Context, viewerID, postID uuid.UUID) (*postDto.PostResponse, error) {
	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	count, err := s.likeCount(ctx, postID)
	if err != nil {
		return nil, err
	}
	liked, err := s.repo.HasLiked(ctx, postID, viewerID)
	if err != nil {
		return nil, err
	}

	var author commonDto.AuthorResponse
	if post.Author != nil {
		author = profileDto.ToAuthor(post.Author, s.presence.IsOnline(post.Author.LastActiveAt))
	}

	return &postDto.PostResponse{
		ID:         post.ID,
		Body:       post.Body,
		MediaURL:   post.MediaURL,
		Author:     author,
		LikesCount: count,
		Liked:      liked,
		CreatedAt:  post.CreatedAt,
	}, nil
}

// ToggleLike notifies the author only when a like is added by someone else.
func (s *postService) ToggleLike(ctx context.Context, userID, postID uuid.UUID) (*postDto.LikeResponse, error) {
	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	liked, err := s.repo.ToggleLike(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	delta := int64(-1)
	op := changefeed.OpDelete
	if liked {
		delta, op = 1, changefeed.OpInsert
	}
	s.bumpLikeCount(ctx, postID, delta)
	changefeed.Emit(ctx, s.feed, s.log, entity.TableLikes, op, &entity.Like{PostID: postID, UserID: userID})

	if liked && post.AuthorID != userID {
		s.fanout.Dispatch(&entity.Notification{
			RecipientID: post.AuthorID,
			ActorID:     userID,
			Type:        entity.NotificationLike,
			PostID:      &post.ID,
			Message:     fmt.Sprintf("%s liked your post: %s", s.actorName(ctx, userID), snippet(post.Body)),
		})
	}

	count, err := s.likeCount(ctx, postID)
	if err != nil {
		return nil, err
	}
	return &postDto.LikeResponse{Liked: liked, LikesCount: count}, nil
}

func (s *postService) AddComment(ctx context.Context, userID, postID uuid.UUID, req postDto.CreateCommentRequest) (*postDto.CommentResponse, error) {
	body := sanitize.Text(req.Body)
	if body == "" {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "comment cannot be empty")
	}

	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	if err := moderation.Gate(ctx, s.classifier, s.log, body); err != nil {
		return nil, err
	}

	comment := &entity.Comment{PostID: postID, AuthorID: userID, Body: body}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	changefeed.Emit(ctx, s.feed, s.log, entity.TableComments, changefeed.OpInsert, comment)

	s.fanout.Dispatch(&entity.Notification{
		RecipientID: post.AuthorID,
		ActorID:     userID,
		Type:        entity.NotificationComment,
		PostID:      &post.ID,
		Message:     fmt.Sprintf("%s commented: %s", s.actorName(ctx, userID), snippet(body)),
	})

	res := &postDto.CommentResponse{
		ID:        comment.ID,
		PostID:    comment.PostID,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}
	if author, err := s.profiles.FindByID(ctx, userID); err == nil {
		res.Author = profileDto.ToAuthor(author, s.presence.IsOnline(author.LastActiveAt))
	}
	return res, nil
}

func (s *postService) ListComments(ctx context.Context, postID uuid.UUID, q commonDto.PaginationQuery) (*postDto.PaginatedCommentResponse, error) {
	offset := q.Normalize()

	comments, total, err := s.repo.ListComments(ctx, postID, q.Limit, offset)
	if err != nil {
		return nil, err
	}

	data := make([]postDto.CommentResponse, 0, len(comments))
	for _, c := range comments {
		var author commonDto.AuthorResponse
		if c.Author != nil {
			author = profileDto.ToAuthor(c.Author, s.presence.IsOnline(c.Author.LastActiveAt))
		}
		data = append(data, postDto.CommentResponse{
			ID:        c.ID,
			PostID:    c.PostID,
			Body:      c.Body,
			Author:    author,
			CreatedAt: c.CreatedAt,
		})
	}

	return &postDto.PaginatedCommentResponse{
		Data: data,
		Meta: commonDto.NewPaginationMeta(q, total),
	}, nil
}

func (s *postService) actorName(ctx context.Context, id uuid.UUID) string {
	p, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return "Someone"
	}
	return p.DisplayName
}

func countsKey(postID uuid.UUID) string {
	return fmt.Sprintf("counts:post:%s", postID.String())
}

// likeCount reads the cached hash, rebuilding it from the database on a miss.
func (s *postService) likeCount(ctx context.Context, postID uuid.UUID) (int64, error) {
	if s.rdb != nil {
		val, err := s.rdb.HGet(ctx, countsKey(postID), likesField).Result()
		if err == nil {
			if n, perr := strconv.ParseInt(val, 10, 64); perr == nil && n >= 0 {
				return n, nil
			}
		} else if err != redis.Nil {
			s.log.Warn("like count cache read failed", zap.Error(err))
		}
	}

	count, err := s.repo.CountLikes(ctx, postID)
	if err != nil {
		return 0, err
	}

	if s.rdb != nil {
		pipe := s.rdb.Pipeline()
		pipe.HSet(ctx, countsKey(postID), likesField, count)
		pipe.Expire(ctx, countsKey(postID), countsTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			s.log.Warn("like count cache rebuild failed", zap.Error(err))
		}
	}
	return count, nil
}

// bumpLikeCount only adjusts an existing cache entry; a missing one is rebuilt on read.
func (s *postService) bumpLikeCount(ctx context.Context, postID uuid.UUID, delta int64) {
	if s.rdb == nil {
		return
	}
	key := countsKey(postID)
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return
	}
	if err := s.rdb.HIncrBy(ctx, key, likesField, delta).Err(); err != nil {
		s.log.Warn("like count cache update failed", zap.Error(err))
		_ = s.rdb.Del(ctx, key).Err()
	}
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetLimit {
		return s
	}
	return string(r[:snippetLimit]) + "..."
}
