package repository

import (
	"context"
	"time"

	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProfileRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Profile, error)
	FindByUsername(ctx context.Context, username string) (*entity.Profile, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.Profile, error)
	Update(ctx context.Context, profile *entity.Profile) error
	TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Profile, error) {
	var profile entity.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		return nil, apperror.FromDB(err, "find profile")
	}
	return &profile, nil
}

func (r *profileRepository) FindByUsername(ctx context.Context, username string) (*entity.Profile, error) {
	var profile entity.Profile
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&profile).Error; err != nil {
		return nil, apperror.FromDB(err, "find profile by username")
	}
	return &profile, nil
}

// FindByIDs returns the matching profiles in no particular order. Unknown ids are skipped.
func (r *profileRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var profiles []entity.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, apperror.FromDB(err, "find profiles")
	}
	return profiles, nil
}

func (r *profileRepository) Update(ctx context.Context, profile *entity.Profile) error {
	err := r.db.WithContext(ctx).Model(profile).Updates(map[string]any{
		"username":     profile.Username,
		"display_name": profile.DisplayName,
		"avatar_url":   profile.AvatarURL,
	}).Error
	return apperror.FromDB(err, "update profile")
}

// TouchLastActive only writes last_active_at so it never races a concurrent profile edit.
func (r *profileRepository) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&entity.Profile{}).Where("id = ?", id).Update("last_active_at", at)
	if res.Error != nil {
		return apperror.FromDB(res.Error, "touch last active")
	}
	if res.RowsAffected == 0 {
		return apperror.FromDB(gorm.ErrRecordNotFound, "touch last active")
	}
	return nil
}
