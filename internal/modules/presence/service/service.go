package service

import (
	"context"
	"time"

	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	"github.com/google/uuid"
)

// DefaultWindow is 1.5x the 60s heartbeat, so one late heartbeat does not flip a user offline.
const DefaultWindow = 90 * time.Second

type PresenceService interface {
	// Heartbeat records that userID is active now and returns the stored timestamp.
	Heartbeat(ctx context.Context, userID uuid.UUID) (time.Time, error)
	IsOnline(lastActive *time.Time) bool
	Window() time.Duration
}

type presenceService struct {
	repo   profileRepo.ProfileRepository
	window time.Duration
	now    func() time.Time
}

type Option func(*presenceService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *presenceService) { s.now = now }
}

func NewPresenceService(repo profileRepo.ProfileRepository, window time.Duration, opts ...Option) PresenceService {
	if window <= 0 {
		window = DefaultWindow
	}
	s := &presenceService{repo: repo, window: window, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *presenceService) Heartbeat(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	at := s.now().UTC()
	if err := s.repo.TouchLastActive(ctx, userID, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (s *presenceService) IsOnline(lastActive *time.Time) bool {
	return IsOnline(lastActive, s.now(), s.window)
}

func (s *presenceService) Window() time.Duration {
	return s.window
}

// IsOnline is the freshness predicate: now - lastActive < window.
func IsOnline(lastActive *time.Time, now time.Time, window time.Duration) bool {
	if lastActive == nil || lastActive.IsZero() {
		return false
	}
	return now.Sub(*lastActive) < window
}
