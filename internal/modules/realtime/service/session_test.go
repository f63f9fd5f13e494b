package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"anoa.com/friendline/internal/entity"
	convRepo "anoa.com/friendline/internal/modules/conversation/repository"
	conversation "anoa.com/friendline/internal/modules/conversation/service"
	followRepo "anoa.com/friendline/internal/modules/follow/repository"
	follow "anoa.com/friendline/internal/modules/follow/service"
	msgRepo "anoa.com/friendline/internal/modules/message/repository"
	message "anoa.com/friendline/internal/modules/message/service"
	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	notification "anoa.com/friendline/internal/modules/notification/service"
	presence "anoa.com/friendline/internal/modules/presence/service"
	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	rtDto "anoa.com/friendline/internal/modules/realtime/dto"
	"anoa.com/friendline/internal/testutil"
	"anoa.com/friendline/pkg/changefeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const waitTimeout = 2 * time.Second

type fixture struct {
	db         *gorm.DB
	deps       Deps
	messages   message.MessageService
	follows    follow.FollowService
	notifs     notifRepo.NotificationRepository
	profiles   profileRepo.ProfileRepository
	alice, bob *entity.Profile
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	feed := changefeed.NewMemoryFeed(zap.NewNop())
	profiles := profileRepo.NewProfileRepository(db)
	notifs := notifRepo.NewNotificationRepository(db)
	convs := convRepo.NewConversationRepository(db)
	presenceSvc := presence.NewPresenceService(profiles, time.Minute)

	dispatcher := notification.NewDispatcher(notifs, feed, zap.NewNop(), 1, 16)
	t.Cleanup(dispatcher.Close)

	messages := message.NewMessageService(message.Deps{
		DB:       db,
		Messages: msgRepo.NewMessageRepository(db),
		Convs:    convs,
		Profiles: profiles,
		Fanout:   dispatcher,
		Feed:     feed,
	})

	followRepository := followRepo.NewFollowRepository(db)

	f := &fixture{
		db:       db,
		messages: messages,
		follows:  follow.NewFollowService(followRepository, profiles, presenceSvc, dispatcher, feed, nil),
		notifs:   notifs,
		profiles: profiles,
		alice:    testutil.CreateProfile(t, db, "alice"),
		bob:      testutil.CreateProfile(t, db, "bob"),
	}
	f.deps = Deps{
		Conversations: conversation.NewConversationService(convs, followRepository, notifs, profiles, presenceSvc, feed, nil),
		Messages:      messages,
		Notifications: notifs,
		Presence:      presence.NewWorker(presenceSvc, time.Hour, nil),
		Feed:          feed,
	}
	return f
}

// start runs a session for user until the test ends.
func (f *fixture) start(t *testing.T, user *entity.Profile) *Session {
	t.Helper()
	s := NewSession(f.deps, user.ID)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		assert.NoError(t, s.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		for range s.Frames() {
		}
		<-stopped
	})
	return s
}

// waitFor reads frames until one of the given type satisfies match.
func waitFor[T any](t *testing.T, s *Session, frameType string, match func(T) bool) T {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case frame, ok := <-s.Frames():
			require.True(t, ok, "session ended")
			if frame.Type != frameType {
				continue
			}
			data, ok := frame.Data.(T)
			require.True(t, ok, "unexpected payload %T", frame.Data)
			if match == nil || match(data) {
				return data
			}
		case <-deadline:
			t.Fatalf("no %s frame matched", frameType)
		}
	}
}

// expectQuiet fails if the session pushes any frame within d.
func expectQuiet(t *testing.T, s *Session, d time.Duration) {
	t.Helper()
	select {
	case frame, ok := <-s.Frames():
		if ok {
			t.Fatalf("unexpected %s frame", frame.Type)
		}
	case <-time.After(d):
	}
}

func TestSessionDeliversMessagesAndCounters(t *testing.T) {
	f := setup(t)
	testutil.Befriend(t, f.db, f.alice, f.bob)
	ctx := context.Background()

	s := f.start(t, f.bob)
	initial := waitFor[rtDto.ConversationsPayload](t, s, rtDto.FrameConversations, nil)
	require.Len(t, initial.Conversations, 1)
	assert.True(t, initial.Conversations[0].IsVirtual())

	require.Eventually(t, func() bool {
		p, err := f.profiles.FindByID(ctx, f.bob.ID)
		return err == nil && p.LastActiveAt != nil
	}, waitTimeout, 10*time.Millisecond, "session heartbeats on connect")

	sent, err := f.messages.Send(ctx, entity.VirtualConversation(f.bob.ID), f.alice.ID, "hi", nil)
	require.NoError(t, err)
	convID := sent.Conversation.ConversationID()

	badge := waitFor(t, s, rtDto.FrameBadge, func(b rtDto.BadgePayload) bool { return b.MessageUnreadTotal == 1 })
	assert.Equal(t, int64(1), badge.MessageUnread[convID.String()])
	assert.Zero(t, badge.Count)

	list := waitFor(t, s, rtDto.FrameConversations, func(p rtDto.ConversationsPayload) bool {
		return len(p.Conversations) == 1 && !p.Conversations[0].IsVirtual()
	})
	assert.Equal(t, int64(1), list.Conversations[0].UnreadCount)

	s.Handle(rtDto.Action{Type: rtDto.ActionOpen, ConversationID: sent.Conversation.String()})
	opened := waitFor[rtDto.MessagesPayload](t, s, rtDto.FrameMessages, nil)
	require.Len(t, opened.Messages, 1)
	assert.Equal(t, "hi", opened.Messages[0].Body)
	assert.Zero(t, opened.Conversation.UnreadCount)
	waitFor(t, s, rtDto.FrameBadge, func(b rtDto.BadgePayload) bool { return b.MessageUnreadTotal == 0 })

	reply, err := f.messages.Send(ctx, sent.Conversation, f.alice.ID, "still there?", nil)
	require.NoError(t, err)
	live := waitFor[rtDto.MessagePayload](t, s, rtDto.FrameMessage, nil)
	assert.Equal(t, reply.Message.ID, live.Message.ID)

	// the open conversation swallows its own unread notifications
	require.Eventually(t, func() bool {
		counts, err := f.notifs.CountUnreadMessages(ctx, f.bob.ID)
		return err == nil && counts[convID] == 0 && len(testutil.Notifications(t, f.db, f.bob.ID)) == 2
	}, waitTimeout, 10*time.Millisecond)
}

func TestSessionSendFromVirtualConversation(t *testing.T) {
	f := setup(t)
	s := f.start(t, f.bob)
	waitFor[rtDto.ConversationsPayload](t, s, rtDto.FrameConversations, nil)

	virtual := entity.VirtualConversation(f.alice.ID).String()
	s.Handle(rtDto.Action{Type: rtDto.ActionOpen, ConversationID: virtual})
	empty := waitFor[rtDto.MessagesPayload](t, s, rtDto.FrameMessages, nil)
	assert.True(t, empty.Conversation.IsVirtual())
	assert.Empty(t, empty.Messages)

	s.Handle(rtDto.Action{Type: rtDto.ActionSend, ConversationID: virtual, Body: "hello alice"})
	stored := waitFor[rtDto.MessagesPayload](t, s, rtDto.FrameMessages, nil)
	assert.False(t, stored.Conversation.IsVirtual())
	require.Len(t, stored.Messages, 1)
	assert.Equal(t, "hello alice", stored.Messages[0].Body)

	// the new conversation shows up for a non-friend too
	waitFor(t, s, rtDto.FrameConversations, func(p rtDto.ConversationsPayload) bool {
		return len(p.Conversations) == 1 && p.Conversations[0].ID == stored.Conversation.ID
	})
}

func TestSessionReportsFailures(t *testing.T) {
	f := setup(t)
	testutil.Befriend(t, f.db, f.alice, f.bob)
	s := f.start(t, f.bob)
	waitFor[rtDto.ConversationsPayload](t, s, rtDto.FrameConversations, nil)

	virtual := entity.VirtualConversation(f.alice.ID).String()
	s.Handle(rtDto.Action{Type: rtDto.ActionSend, ConversationID: virtual, Body: "   "})
	blank := waitFor[rtDto.ErrorPayload](t, s, rtDto.FrameError, nil)
	assert.Equal(t, rtDto.ActionSend, blank.Action)
	assert.Equal(t, http.StatusBadRequest, blank.Status)
	assert.Equal(t, "   ", blank.Draft)

	s.Handle(rtDto.Action{Type: rtDto.ActionOpen, ConversationID: "nope"})
	bad := waitFor[rtDto.ErrorPayload](t, s, rtDto.FrameError, nil)
	assert.Equal(t, rtDto.ActionOpen, bad.Action)
	assert.Empty(t, bad.Draft)

	s.Handle(rtDto.Action{Type: "dance"})
	unknown := waitFor[rtDto.ErrorPayload](t, s, rtDto.FrameError, nil)
	assert.Equal(t, "dance", unknown.Action)
}

func TestSessionReadNotification(t *testing.T) {
	f := setup(t)
	n := &entity.Notification{RecipientID: f.bob.ID, ActorID: f.alice.ID, Type: entity.NotificationFollow}
	require.NoError(t, f.notifs.Create(context.Background(), n))

	s := f.start(t, f.bob)
	first := waitFor[rtDto.BadgePayload](t, s, rtDto.FrameBadge, nil)
	assert.Equal(t, int64(1), first.Count)

	s.Handle(rtDto.Action{Type: rtDto.ActionReadNotification, NotificationID: n.ID.String()})
	waitFor(t, s, rtDto.FrameBadge, func(b rtDto.BadgePayload) bool { return b.Count == 0 })

	s.Handle(rtDto.Action{Type: rtDto.ActionReadNotification, NotificationID: n.ID.String()})
	waitFor(t, s, rtDto.FrameBadge, func(b rtDto.BadgePayload) bool { return b.Count == 0 })
}

func TestSessionFollowsFriendGraphChanges(t *testing.T) {
	f := setup(t)
	testutil.Befriend(t, f.db, f.alice, f.bob)
	ctx := context.Background()

	s := f.start(t, f.alice)
	initial := waitFor[rtDto.ConversationsPayload](t, s, rtDto.FrameConversations, nil)
	require.Len(t, initial.Conversations, 1)

	require.NoError(t, f.follows.Remove(ctx, f.bob.ID, "alice"))
	waitFor(t, s, rtDto.FrameConversations, func(p rtDto.ConversationsPayload) bool {
		return len(p.Conversations) == 0
	})
}

func TestSessionSeesConversationWithoutNotification(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	s := f.start(t, f.alice)
	initial := waitFor[rtDto.ConversationsPayload](t, s, rtDto.FrameConversations, nil)
	require.Empty(t, initial.Conversations)

	// a row written without any fan-out, as when the notification queue is full
	conv, _, err := convRepo.NewConversationRepository(f.db).ResolvePair(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	changefeed.Emit(ctx, f.deps.Feed, zap.NewNop(), entity.TableConversations, changefeed.OpInsert, conv)

	waitFor(t, s, rtDto.FrameConversations, func(p rtDto.ConversationsPayload) bool {
		return len(p.Conversations) == 1 && p.Conversations[0].ID == entity.RealConversation(conv.ID)
	})
}

func TestSessionSkipsItsOwnReadEcho(t *testing.T) {
	f := setup(t)
	n := &entity.Notification{RecipientID: f.bob.ID, ActorID: f.alice.ID, Type: entity.NotificationLike}
	require.NoError(t, f.notifs.Create(context.Background(), n))

	tab := f.start(t, f.bob)
	waitFor(t, tab, rtDto.FrameBadge, func(b rtDto.BadgePayload) bool { return b.Count == 1 })
	waitFor[rtDto.ConversationsPayload](t, tab, rtDto.FrameConversations, nil)

	other := f.start(t, f.bob)
	waitFor(t, other, rtDto.FrameBadge, func(b rtDto.BadgePayload) bool { return b.Count == 1 })

	tab.Handle(rtDto.Action{Type: rtDto.ActionReadNotification, NotificationID: n.ID.String()})
	waitFor(t, tab, rtDto.FrameBadge, func(b rtDto.BadgePayload) bool { return b.Count == 0 })

	// the other tab reconciles from storage, the acting tab does not refetch
	waitFor(t, other, rtDto.FrameBadge, func(b rtDto.BadgePayload) bool { return b.Count == 0 })
	expectQuiet(t, tab, 200*time.Millisecond)
}
