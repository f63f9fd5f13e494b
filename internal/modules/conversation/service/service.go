package service

import (
	"context"
	"errors"
	"sort"

	"anoa.com/friendline/internal/entity"
	convDto "anoa.com/friendline/internal/modules/conversation/dto"
	convRepo "anoa.com/friendline/internal/modules/conversation/repository"
	followRepo "anoa.com/friendline/internal/modules/follow/repository"
	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	notification "anoa.com/friendline/internal/modules/notification/service"
	presence "anoa.com/friendline/internal/modules/presence/service"
	profileDto "anoa.com/friendline/internal/modules/profile/dto"
	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/changefeed"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ConversationService interface {
	// LoadConversations joins friends, stored conversations and unread
	// message notifications into the user's ordered list.
	LoadConversations(ctx context.Context, userID uuid.UUID) ([]convDto.ConversationSummary, error)
	// ResolveByUsername opens a conversation with anyone, friend or not.
	ResolveByUsername(ctx context.Context, userID uuid.UUID, username string) (*convDto.ConversationSummary, error)
	// Resolve builds the summary for a ref the user already holds.
	Resolve(ctx context.Context, userID uuid.UUID, ref entity.ConversationRef) (*convDto.ConversationSummary, error)
	// MarkRead clears unread message notifications for a stored conversation
	// and zeroes summary.UnreadCount. Virtual summaries are left alone.
	MarkRead(ctx context.Context, summary *convDto.ConversationSummary, userID uuid.UUID) error
}

type conversationService struct {
	convs    convRepo.ConversationRepository
	follows  followRepo.FollowRepository
	notifs   notifRepo.NotificationRepository
	profiles profileRepo.ProfileRepository
	presence presence.PresenceService
	feed     changefeed.Feed
	log      *zap.Logger
}

func NewConversationService(
	convs convRepo.ConversationRepository,
	follows followRepo.FollowRepository,
	notifs notifRepo.NotificationRepository,
	profiles profileRepo.ProfileRepository,
	presenceService presence.PresenceService,
	feed changefeed.Feed,
	log *zap.Logger,
) ConversationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &conversationService{
		convs:    convs,
		follows:  follows,
		notifs:   notifs,
		profiles: profiles,
		presence: presenceService,
		feed:     feed,
		log:      log.Named("conversation"),
	}
}

func (s *conversationService) LoadConversations(ctx context.Context, userID uuid.UUID) ([]convDto.ConversationSummary, error) {
	var (
		friends []entity.FollowEdge
		convs   []entity.Conversation
		unread  map[uuid.UUID]int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		friends, err = s.follows.ListFollowing(gctx, userID, entity.FollowAccepted)
		return
	})
	g.Go(func() (err error) {
		convs, err = s.convs.ListByParticipant(gctx, userID)
		return
	})
	g.Go(func() (err error) {
		unread, err = s.notifs.CountUnreadMessages(gctx, userID)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byCounterpart := make(map[uuid.UUID]*entity.Conversation, len(convs))
	for i := range convs {
		c := &convs[i]
		other := c.Counterpart(userID)
		if prev, ok := byCounterpart[other]; !ok || laterActivity(c, prev) {
			byCounterpart[other] = c
		}
	}

	summaries := make([]convDto.ConversationSummary, 0, len(friends)+len(convs))
	seen := make(map[uuid.UUID]bool, len(friends))
	for _, edge := range friends {
		if edge.Following == nil || seen[edge.FollowingID] {
			continue
		}
		seen[edge.FollowingID] = true
		summaries = append(summaries, s.summarize(userID, edge.Following, byCounterpart[edge.FollowingID], unread))
	}

	// Conversations with people who are no longer (or not yet) friends still
	// carry history and unread messages, so they stay listed.
	var strangers []uuid.UUID
	for other := range byCounterpart {
		if !seen[other] {
			strangers = append(strangers, other)
		}
	}
	if len(strangers) > 0 {
		profiles, err := s.profiles.FindByIDs(ctx, strangers)
		if err != nil {
			return nil, err
		}
		for i := range profiles {
			p := &profiles[i]
			summaries = append(summaries, s.summarize(userID, p, byCounterpart[p.ID], unread))
		}
	}

	sortByActivity(summaries)
	return summaries, nil
}

func (s *conversationService) summarize(userID uuid.UUID, counterpart *entity.Profile, conv *entity.Conversation, unread map[uuid.UUID]int64) convDto.ConversationSummary {
	summary := convDto.ConversationSummary{
		Counterpart: profileDto.ToAuthor(counterpart, s.presence.IsOnline(counterpart.LastActiveAt)),
	}
	if conv == nil {
		summary.ID = entity.VirtualConversation(counterpart.ID)
		summary.Participants = [2]uuid.UUID{userID, counterpart.ID}
		return summary
	}
	summary.ID = entity.RealConversation(conv.ID)
	summary.Participants = conv.Participants()
	summary.UnreadCount = unread[conv.ID]
	summary.LastMessageAt = conv.LastMessageAt
	return summary
}

func (s *conversationService) ResolveByUsername(ctx context.Context, userID uuid.UUID, username string) (*convDto.ConversationSummary, error) {
	p, err := s.profiles.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "user not found")
		}
		return nil, err
	}
	if p.ID == userID {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "you cannot message yourself")
	}
	return s.forCounterpart(ctx, userID, p)
}

func (s *conversationService) Resolve(ctx context.Context, userID uuid.UUID, ref entity.ConversationRef) (*convDto.ConversationSummary, error) {
	if ref.IsZero() {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "conversation is required")
	}

	if ref.IsVirtual() {
		if ref.CounterpartID() == userID {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "you cannot message yourself")
		}
		p, err := s.profiles.FindByID(ctx, ref.CounterpartID())
		if err != nil {
			return nil, err
		}
		return s.forCounterpart(ctx, userID, p)
	}

	conv, err := s.convs.FindByID(ctx, ref.ConversationID())
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperror.Wrap(apperror.ErrForbidden, "not a participant of this conversation")
	}
	p, err := s.profiles.FindByID(ctx, conv.Counterpart(userID))
	if err != nil {
		return nil, err
	}
	unread, err := s.notifs.CountUnreadMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := s.summarize(userID, p, conv, unread)
	return &summary, nil
}

// forCounterpart reuses the stored row for the pair when one exists, so a
// direct link never hides existing history behind a virtual conversation.
func (s *conversationService) forCounterpart(ctx context.Context, userID uuid.UUID, p *entity.Profile) (*convDto.ConversationSummary, error) {
	conv, err := s.convs.FindByPair(ctx, userID, p.ID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	unread := map[uuid.UUID]int64{}
	if conv != nil {
		if unread, err = s.notifs.CountUnreadMessages(ctx, userID); err != nil {
			return nil, err
		}
	}
	summary := s.summarize(userID, p, conv, unread)
	return &summary, nil
}

func (s *conversationService) MarkRead(ctx context.Context, summary *convDto.ConversationSummary, userID uuid.UUID) error {
	if summary == nil || summary.IsVirtual() || summary.ID.IsZero() {
		return nil
	}

	convID := summary.ID.ConversationID()
	affected, err := s.notifs.MarkConversationRead(ctx, userID, convID)
	if err != nil {
		return err
	}
	summary.UnreadCount = 0

	if affected > 0 {
		notification.EmitRead(ctx, s.feed, s.log, userID, &convID, "")
	}
	return nil
}

func laterActivity(a, b *entity.Conversation) bool {
	switch {
	case a.LastMessageAt == nil:
		return false
	case b.LastMessageAt == nil:
		return true
	}
	return a.LastMessageAt.After(*b.LastMessageAt)
}

// sortByActivity puts the most recent conversation first. Rows without any
// message keep their incoming (friend-fetch) order after the active ones.
func sortByActivity(summaries []convDto.ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessageAt, summaries[j].LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}
