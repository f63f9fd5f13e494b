package service

import (
	"context"
	"errors"
	"sync/atomic"

	"anoa.com/friendline/internal/entity"
	convDto "anoa.com/friendline/internal/modules/conversation/dto"
	conversation "anoa.com/friendline/internal/modules/conversation/service"
	message "anoa.com/friendline/internal/modules/message/service"
	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	notification "anoa.com/friendline/internal/modules/notification/service"
	presence "anoa.com/friendline/internal/modules/presence/service"
	rtDto "anoa.com/friendline/internal/modules/realtime/dto"
	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/changefeed"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	inboxSize  = 32
	outboxSize = 64
)

type Deps struct {
	Conversations conversation.ConversationService
	Messages      message.MessageService
	Notifications notifRepo.NotificationRepository
	Presence      *presence.Worker
	Feed          changefeed.Feed
	Log           *zap.Logger
}

// Session is the server side of one connected tab or device. It holds the
// derived view (conversation list, open conversation log, counters) and
// pushes snapshots of it as frames. All state changes happen on the Run
// goroutine; client actions and feed callbacks are queued onto it.
type Session struct {
	id      string
	deps    Deps
	userID  uuid.UUID
	log     *zap.Logger
	counter *notification.Counter

	inbox chan func(context.Context)
	out   chan rtDto.Frame
	done  chan struct{}

	// set while a refresh sits in the inbox; bursts of feed events share it
	refreshQueued atomic.Bool

	// owned by the Run goroutine
	conversations []convDto.ConversationSummary
	active        *convDto.ConversationSummary
	tail          *message.Tail
}

func NewSession(deps Deps, userID uuid.UUID) *Session {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		id:      uuid.NewString(),
		deps:    deps,
		userID:  userID,
		log:     log.Named("realtime").With(zap.String("user_id", userID.String())),
		counter: notification.NewCounter(deps.Notifications, userID),
		inbox:   make(chan func(context.Context), inboxSize),
		out:     make(chan rtDto.Frame, outboxSize),
		done:    make(chan struct{}),
	}
}

// Frames is closed when Run returns.
func (s *Session) Frames() <-chan rtDto.Frame {
	return s.out
}

// Handle queues a client action. It is dropped once the session has ended.
func (s *Session) Handle(a rtDto.Action) {
	s.enqueue(func(ctx context.Context) { s.handle(ctx, a) })
}

func (s *Session) enqueue(fn func(context.Context)) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// Run loads the initial view, subscribes to every table the view is derived
// from and processes queued work until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.tail.Close()
		close(s.done)
		close(s.out)
	}()

	if s.deps.Presence != nil {
		go s.deps.Presence.Run(ctx, s.userID)
	}

	subs, err := s.subscribe(ctx)
	if err != nil {
		return err
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()

	if err := s.load(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.inbox:
			fn(ctx)
		}
	}
}

// subscribe binds the sources of the conversation list and counters: the
// user's notifications, their outgoing follow edges and conversations on
// either side of the pair.
func (s *Session) subscribe(ctx context.Context) ([]*changefeed.Subscription, error) {
	refresh := changefeed.Handler{
		OnEvent:  func(changefeed.Event) { s.queueRefresh() },
		OnResync: s.queueRefresh,
	}
	notifications := changefeed.Handler{
		OnEvent: func(e changefeed.Event) {
			if !s.ownEcho(e) {
				s.queueRefresh()
			}
		},
		OnResync: s.queueRefresh,
	}

	sources := []struct {
		table  string
		filter changefeed.Filter
		h      changefeed.Handler
	}{
		{entity.TableNotifications, changefeed.Eq("recipient_id", s.userID), notifications},
		{entity.TableFollows, changefeed.Eq("follower_id", s.userID), refresh},
		{entity.TableConversations, changefeed.Eq("participant_a", s.userID), refresh},
		{entity.TableConversations, changefeed.Eq("participant_b", s.userID), refresh},
	}

	subs := make([]*changefeed.Subscription, 0, len(sources))
	for _, src := range sources {
		sub, err := s.deps.Feed.Subscribe(ctx, src.table, src.filter, src.h)
		if err != nil {
			for _, prev := range subs {
				prev.Close()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// ownEcho reports whether e is a read marker this session published itself.
// Its counters were already adjusted in place.
func (s *Session) ownEcho(e changefeed.Event) bool {
	if e.Op != changefeed.OpUpdate {
		return false
	}
	var marker notification.ReadMarker
	if err := e.Decode(&marker); err != nil {
		return false
	}
	return marker.Origin == s.id
}

func (s *Session) queueRefresh() {
	if !s.refreshQueued.CompareAndSwap(false, true) {
		return
	}
	s.enqueue(func(ctx context.Context) {
		s.refreshQueued.Store(false)
		s.refresh(ctx)
	})
}

func (s *Session) handle(ctx context.Context, a rtDto.Action) {
	switch a.Type {
	case rtDto.ActionOpen:
		s.open(ctx, a)
	case rtDto.ActionClose:
		s.closeConversation()
	case rtDto.ActionRead:
		s.read(ctx, a)
	case rtDto.ActionReadNotification:
		s.readNotification(ctx, a)
	case rtDto.ActionSend:
		s.send(ctx, a)
	case rtDto.ActionRefresh:
		s.refresh(ctx)
	default:
		s.fail(ctx, a, apperror.Wrap(apperror.ErrInvalidInput, "unknown action"))
	}
}

// load re-derives counters and the list, then pushes both. Unread messages
// that landed in the open conversation are marked read before anything is
// pushed, so the badge never flashes them.
func (s *Session) load(ctx context.Context) error {
	if err := s.counter.Refresh(ctx); err != nil {
		return err
	}
	if s.active != nil && !s.active.IsVirtual() && s.counter.MessageUnread(s.active.ID.ConversationID()) > 0 {
		if err := s.markActiveRead(ctx); err != nil {
			s.log.Warn("mark open conversation read failed", zap.Error(err))
		}
	}

	list, err := s.deps.Conversations.LoadConversations(ctx, s.userID)
	if err != nil {
		return err
	}
	s.conversations = list
	s.pushBadge(ctx)
	s.pushConversations(ctx)
	return nil
}

func (s *Session) refresh(ctx context.Context) {
	if err := s.load(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("session refresh failed", zap.Error(err))
		s.fail(ctx, rtDto.Action{Type: rtDto.ActionRefresh}, err)
	}
}

func (s *Session) markActiveRead(ctx context.Context) error {
	if err := s.deps.Conversations.MarkRead(ctx, s.active, s.userID); err != nil {
		return err
	}
	if !s.active.IsVirtual() {
		s.counter.ClearConversation(s.active.ID.ConversationID())
	}
	return nil
}

func (s *Session) open(ctx context.Context, a rtDto.Action) {
	ref, err := entity.ParseConversationRef(a.ConversationID)
	if err != nil {
		s.fail(ctx, a, apperror.Wrap(apperror.ErrInvalidInput, "invalid conversation id"))
		return
	}
	summary, err := s.deps.Conversations.Resolve(ctx, s.userID, ref)
	if err != nil {
		s.fail(ctx, a, err)
		return
	}
	s.activate(ctx, summary)
}

// activate swaps the open conversation: the old tail is closed before the new
// one subscribes, then history and the refreshed counters are pushed.
func (s *Session) activate(ctx context.Context, summary *convDto.ConversationSummary) {
	s.closeConversation()
	s.active = summary

	if summary.IsVirtual() {
		s.push(ctx, rtDto.FrameMessages, rtDto.MessagesPayload{Conversation: *summary, Messages: []entity.Message{}})
		return
	}

	convID := summary.ID.ConversationID()
	tail, err := s.deps.Messages.OpenTail(ctx, s.userID, summary.ID, message.TailHandler{
		OnAppend: func(m entity.Message) {
			s.enqueue(func(ctx context.Context) {
				if s.tail != nil && s.tail.ConversationID() == m.ConversationID {
					s.push(ctx, rtDto.FrameMessage, rtDto.MessagePayload{Message: m})
				}
			})
		},
		OnReload: func(ms []entity.Message) {
			s.enqueue(func(ctx context.Context) {
				if s.tail != nil && s.tail.ConversationID() == convID && s.active != nil {
					s.push(ctx, rtDto.FrameMessages, rtDto.MessagesPayload{Conversation: *s.active, Messages: ms})
				}
			})
		},
	})
	if err != nil {
		s.active = nil
		s.fail(ctx, rtDto.Action{Type: rtDto.ActionOpen, ConversationID: summary.ID.String()}, err)
		return
	}
	s.tail = tail

	if err := s.markActiveRead(ctx); err != nil {
		s.log.Warn("mark conversation read on open failed", zap.Error(err))
	}
	s.push(ctx, rtDto.FrameMessages, rtDto.MessagesPayload{Conversation: *summary, Messages: tail.Log().Snapshot()})
	s.replaceSummary(*summary)
	s.pushBadge(ctx)
	s.pushConversations(ctx)
}

func (s *Session) closeConversation() {
	s.tail.Close()
	s.tail = nil
	s.active = nil
}

func (s *Session) read(ctx context.Context, a rtDto.Action) {
	ref, err := entity.ParseConversationRef(a.ConversationID)
	if err != nil {
		s.fail(ctx, a, apperror.Wrap(apperror.ErrInvalidInput, "invalid conversation id"))
		return
	}
	summary, err := s.deps.Conversations.Resolve(ctx, s.userID, ref)
	if err != nil {
		s.fail(ctx, a, err)
		return
	}
	if err := s.deps.Conversations.MarkRead(ctx, summary, s.userID); err != nil {
		s.fail(ctx, a, err)
		return
	}
	if !summary.IsVirtual() {
		s.counter.ClearConversation(summary.ID.ConversationID())
	}
	s.replaceSummary(*summary)
	s.pushBadge(ctx)
	s.pushConversations(ctx)
}

func (s *Session) readNotification(ctx context.Context, a rtDto.Action) {
	id, err := uuid.Parse(a.NotificationID)
	if err != nil {
		s.fail(ctx, a, apperror.Wrap(apperror.ErrInvalidInput, "invalid notification id"))
		return
	}
	if err := s.counter.MarkRead(ctx, id); err != nil {
		s.fail(ctx, a, err)
		return
	}
	notification.EmitRead(ctx, s.deps.Feed, s.log, s.userID, nil, s.id)
	s.pushBadge(ctx)
}

func (s *Session) send(ctx context.Context, a rtDto.Action) {
	ref, err := entity.ParseConversationRef(a.ConversationID)
	if err != nil {
		s.fail(ctx, a, apperror.Wrap(apperror.ErrInvalidInput, "invalid conversation id"))
		return
	}

	res, err := s.deps.Messages.Send(ctx, ref, s.userID, a.Body, a.MediaURL)
	if err != nil {
		s.fail(ctx, a, err)
		return
	}

	// the open virtual conversation just became real; follow it
	if s.active != nil && s.active.ID == ref && ref.IsVirtual() {
		summary, err := s.deps.Conversations.Resolve(ctx, s.userID, res.Conversation)
		if err != nil {
			s.log.Warn("resolve conversation after first send failed", zap.Error(err))
		} else {
			s.activate(ctx, summary)
		}
	}

	list, err := s.deps.Conversations.LoadConversations(ctx, s.userID)
	if err != nil {
		s.log.Warn("reload conversations after send failed", zap.Error(err))
		return
	}
	s.conversations = list
	s.pushConversations(ctx)
}

// replaceSummary patches one row of the cached list in place.
func (s *Session) replaceSummary(summary convDto.ConversationSummary) {
	for i := range s.conversations {
		if s.conversations[i].Counterpart.ID == summary.Counterpart.ID {
			s.conversations[i] = summary
			return
		}
	}
}

func (s *Session) pushBadge(ctx context.Context) {
	byConv := s.counter.MessageUnreadByConversation()
	unread := make(map[string]int64, len(byConv))
	for id, n := range byConv {
		unread[id.String()] = n
	}
	s.push(ctx, rtDto.FrameBadge, rtDto.BadgePayload{
		Count:              s.counter.Count(),
		MessageUnreadTotal: s.counter.MessageUnreadTotal(),
		MessageUnread:      unread,
	})
}

func (s *Session) pushConversations(ctx context.Context) {
	list := make([]convDto.ConversationSummary, len(s.conversations))
	copy(list, s.conversations)
	s.push(ctx, rtDto.FrameConversations, rtDto.ConversationsPayload{Conversations: list})
}

// fail pushes an error frame. A failed send echoes the body back as the draft.
func (s *Session) fail(ctx context.Context, a rtDto.Action, err error) {
	payload := rtDto.ErrorPayload{
		Action:  a.Type,
		Message: err.Error(),
		Status:  apperror.MapErrorToStatus(err),
	}
	if a.Type == rtDto.ActionSend {
		payload.Draft = a.Body
	}
	if payload.Status >= 500 && !errors.Is(err, context.Canceled) {
		s.log.Error("realtime action failed", zap.String("action", a.Type), zap.Error(err))
	}
	s.push(ctx, rtDto.FrameError, payload)
}

func (s *Session) push(ctx context.Context, frameType string, data any) {
	select {
	case s.out <- rtDto.Frame{Type: frameType, Data: data}:
	case <-ctx.Done():
	}
}
