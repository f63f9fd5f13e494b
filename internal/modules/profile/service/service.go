package service

import (
	"context"
	"errors"
	"strings"

	"anoa.com/friendline/internal/entity"
	presence "anoa.com/friendline/internal/modules/presence/service"
	profileDto "anoa.com/friendline/internal/modules/profile/dto"
	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	search "anoa.com/friendline/internal/modules/search/service"
	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/changefeed"
	commonDto "anoa.com/friendline/pkg/dto"
	"anoa.com/friendline/pkg/sanitize"
	"anoa.com/friendline/pkg/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProfileService interface {
	GetByUsername(ctx context.Context, username string) (*profileDto.ProfileResponse, error)
	GetCurrent(ctx context.Context, userID uuid.UUID) (*profileDto.ProfileResponse, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input profileDto.UpdateProfileInput, avatar *commonDto.MediaFile) (*profileDto.ProfileResponse, error)
}

type profileService struct {
	repo     profileRepo.ProfileRepository
	presence presence.PresenceService
	storage  storage.MediaStorage
	indexer  search.ProfileIndexer
	feed     changefeed.Feed
	log      *zap.Logger
}

// NewProfileService accepts nil storage, indexer and feed; the matching side effects are skipped.
func NewProfileService(
	repo profileRepo.ProfileRepository,
	presenceService presence.PresenceService,
	mediaStorage storage.MediaStorage,
	indexer search.ProfileIndexer,
	feed changefeed.Feed,
	log *zap.Logger,
) ProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &profileService{
		repo:     repo,
		presence: presenceService,
		storage:  mediaStorage,
		indexer:  indexer,
		feed:     feed,
		log:      log.Named("profile"),
	}
}

func (s *profileService) GetByUsername(ctx context.Context, username string) (*profileDto.ProfileResponse, error) {
	p, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "user not found")
		}
		return nil, err
	}
	return profileDto.NewProfileResponse(p, s.presence.IsOnline(p.LastActiveAt)), nil
}

func (s *profileService) GetCurrent(ctx context.Context, userID uuid.UUID) (*profileDto.ProfileResponse, error) {
	p, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profileDto.NewProfileResponse(p, s.presence.IsOnline(p.LastActiveAt)), nil
}

func (s *profileService) UpdateProfile(ctx context.Context, userID uuid.UUID, input profileDto.UpdateProfileInput, avatar *commonDto.MediaFile) (*profileDto.ProfileResponse, error) {
	p, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.Username != nil && *input.Username != "" && *input.Username != p.Username {
		username := strings.ReplaceAll(strings.TrimSpace(*input.Username), " ", "_")
		if len(username) < 3 || len(username) > 50 {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "username must be 3 to 50 characters")
		}
		if _, err := s.repo.FindByUsername(ctx, username); err == nil {
			return nil, apperror.Wrap(apperror.ErrConflict, "username already taken")
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		p.Username = username
	}

	if input.DisplayName != nil {
		name := sanitize.Text(*input.DisplayName)
		if name == "" {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "display name cannot be empty")
		}
		p.DisplayName = name
	}

	var oldAvatar string
	if avatar != nil && avatar.Reader != nil && s.storage != nil {
		url, err := s.storage.Upload(ctx, avatar.Reader, "avatars", avatar.FileName)
		if err != nil {
			return nil, err
		}
		if p.AvatarURL != nil {
			oldAvatar = *p.AvatarURL
		}
		p.AvatarURL = &url
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	if oldAvatar != "" {
		if err := s.storage.Delete(ctx, oldAvatar); err != nil {
			s.log.Warn("failed to delete previous avatar", zap.String("url", oldAvatar), zap.Error(err))
		}
	}

	if s.indexer != nil {
		if err := s.indexer.IndexProfile(p); err != nil {
			s.log.Warn("failed to index profile", zap.String("id", p.ID.String()), zap.Error(err))
		}
	}

	changefeed.Emit(ctx, s.feed, s.log, entity.TableProfiles, changefeed.OpUpdate, p)

	return profileDto.NewProfileResponse(p, s.presence.IsOnline(p.LastActiveAt)), nil
}
