package service

import (
	"context"
	"errors"
	"fmt"

	"anoa.com/friendline/internal/entity"
	followDto "anoa.com/friendline/internal/modules/follow/dto"
	followRepo "anoa.com/friendline/internal/modules/follow/repository"
	notification "anoa.com/friendline/internal/modules/notification/service"
	presence "anoa.com/friendline/internal/modules/presence/service"
	profileDto "anoa.com/friendline/internal/modules/profile/dto"
	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/changefeed"
	commonDto "anoa.com/friendline/pkg/dto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FollowService interface {
	Follow(ctx context.Context, followerID uuid.UUID, targetUsername string) (*followDto.FollowEdgeResponse, error)
	Accept(ctx context.Context, accepterID uuid.UUID, followerUsername string) (*followDto.FollowEdgeResponse, error)
	Reject(ctx context.Context, targetID uuid.UUID, followerUsername string) error
	Remove(ctx context.Context, userID uuid.UUID, otherUsername string) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]commonDto.AuthorResponse, error)
	ListIncoming(ctx context.Context, userID uuid.UUID) ([]followDto.FollowRequestResponse, error)
}

type followService struct {
	repo     followRepo.FollowRepository
	profiles profileRepo.ProfileRepository
	presence presence.PresenceService
	fanout   notification.Fanout
	feed     changefeed.Feed
	log      *zap.Logger
}

func NewFollowService(
	repo followRepo.FollowRepository,
	profiles profileRepo.ProfileRepository,
	presenceService presence.PresenceService,
	fanout notification.Fanout,
	feed changefeed.Feed,
	log *zap.Logger,
) FollowService {
	if log == nil {
		log = zap.NewNop()
	}
	return &followService{
		repo:     repo,
		profiles: profiles,
		presence: presenceService,
		fanout:   fanout,
		feed:     feed,
		log:      log.Named("follow"),
	}
}

func (s *followService) lookup(ctx context.Context, username string) (*entity.Profile, error) {
	p, err := s.profiles.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "user not found")
		}
		return nil, err
	}
	return p, nil
}

func (s *followService) actorName(ctx context.Context, id uuid.UUID) string {
	p, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return "Someone"
	}
	return p.DisplayName
}

// Follow is idempotent: a second request for the same pair returns the
// existing edge and sends no notification.
func (s *followService) Follow(ctx context.Context, followerID uuid.UUID, targetUsername string) (*followDto.FollowEdgeResponse, error) {
	target, err := s.lookup(ctx, targetUsername)
	if err != nil {
		return nil, err
	}
	if target.ID == followerID {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "you cannot follow yourself")
	}

	edge := &entity.FollowEdge{FollowerID: followerID, FollowingID: target.ID, Status: entity.FollowPending}
	if err := s.repo.Create(ctx, edge); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.log.Info("duplicate follow ignored",
			zap.String("follower_id", followerID.String()),
			zap.String("following_id", target.ID.String()),
		)
		existing, err := s.repo.Find(ctx, followerID, target.ID)
		if err != nil {
			return nil, err
		}
		return followDto.NewFollowEdgeResponse(existing), nil
	}

	changefeed.Emit(ctx, s.feed, s.log, entity.TableFollows, changefeed.OpInsert, edge)
	s.fanout.Dispatch(&entity.Notification{
		RecipientID: target.ID,
		ActorID:     followerID,
		Type:        entity.NotificationFollow,
		Message:     fmt.Sprintf("%s sent you a friend request", s.actorName(ctx, followerID)),
	})

	return followDto.NewFollowEdgeResponse(edge), nil
}

func (s *followService) Accept(ctx context.Context, accepterID uuid.UUID, followerUsername string) (*followDto.FollowEdgeResponse, error) {
	follower, err := s.lookup(ctx, followerUsername)
	if err != nil {
		return nil, err
	}

	reverse, err := s.repo.Accept(ctx, follower.ID, accepterID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "no pending request from this user")
		}
		return nil, err
	}

	changefeed.Emit(ctx, s.feed, s.log, entity.TableFollows, changefeed.OpUpdate, &entity.FollowEdge{
		FollowerID: follower.ID, FollowingID: accepterID, Status: entity.FollowAccepted,
	})
	changefeed.Emit(ctx, s.feed, s.log, entity.TableFollows, changefeed.OpInsert, reverse)
	s.fanout.Dispatch(&entity.Notification{
		RecipientID: follower.ID,
		ActorID:     accepterID,
		Type:        entity.NotificationAccept,
		Message:     fmt.Sprintf("%s accepted your friend request", s.actorName(ctx, accepterID)),
	})

	return followDto.NewFollowEdgeResponse(reverse), nil
}

func (s *followService) Reject(ctx context.Context, targetID uuid.UUID, followerUsername string) error {
	follower, err := s.lookup(ctx, followerUsername)
	if err != nil {
		return err
	}

	n, err := s.repo.DeletePending(ctx, follower.ID, targetID)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.Wrap(apperror.ErrNotFound, "no pending request from this user")
	}

	changefeed.Emit(ctx, s.feed, s.log, entity.TableFollows, changefeed.OpDelete, &entity.FollowEdge{
		FollowerID: follower.ID, FollowingID: targetID, Status: entity.FollowPending,
	})
	return nil
}

// Remove severs the relationship in both directions. Removing a stranger is a no-op.
func (s *followService) Remove(ctx context.Context, userID uuid.UUID, otherUsername string) error {
	other, err := s.lookup(ctx, otherUsername)
	if err != nil {
		return err
	}

	n, err := s.repo.DeleteBoth(ctx, userID, other.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		changefeed.Emit(ctx, s.feed, s.log, entity.TableFollows, changefeed.OpDelete, &entity.FollowEdge{FollowerID: userID, FollowingID: other.ID})
		changefeed.Emit(ctx, s.feed, s.log, entity.TableFollows, changefeed.OpDelete, &entity.FollowEdge{FollowerID: other.ID, FollowingID: userID})
	}
	return nil
}

func (s *followService) ListFriends(ctx context.Context, userID uuid.UUID) ([]commonDto.AuthorResponse, error) {
	edges, err := s.repo.ListFollowing(ctx, userID, entity.FollowAccepted)
	if err != nil {
		return nil, err
	}

	out := make([]commonDto.AuthorResponse, 0, len(edges))
	for _, e := range edges {
		if e.Following == nil {
			continue
		}
		out = append(out, profileDto.ToAuthor(e.Following, s.presence.IsOnline(e.Following.LastActiveAt)))
	}
	return out, nil
}

func (s *followService) ListIncoming(ctx context.Context, userID uuid.UUID) ([]followDto.FollowRequestResponse, error) {
	edges, err := s.repo.ListIncoming(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]followDto.FollowRequestResponse, 0, len(edges))
	for _, e := range edges {
		if e.Follower == nil {
			continue
		}
		out = append(out, followDto.FollowRequestResponse{
			From:      profileDto.ToAuthor(e.Follower, s.presence.IsOnline(e.Follower.LastActiveAt)),
			CreatedAt: e.CreatedAt,
		})
	}
	return out, nil
}
