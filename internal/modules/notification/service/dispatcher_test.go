package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"anoa.com/friendline/internal/entity"
	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	"anoa.com/friendline/internal/testutil"
	"anoa.com/friendline/pkg/changefeed"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcherWritesAndPublishes(t *testing.T) {
	db := testutil.NewDB(t)
	repo := notifRepo.NewNotificationRepository(db)
	feed := changefeed.NewMemoryFeed(zap.NewNop())
	alice := testutil.CreateProfile(t, db, "alice")
	bob := testutil.CreateProfile(t, db, "bob")

	events := make(chan changefeed.Event, 4)
	sub, err := feed.Subscribe(context.Background(), entity.TableNotifications, changefeed.Eq("recipient_id", alice.ID), changefeed.Handler{
		OnEvent: func(e changefeed.Event) { events <- e },
	})
	require.NoError(t, err)
	defer sub.Close()

	d := NewDispatcher(repo, feed, zap.NewNop(), 2, 8)
	assert.True(t, d.Dispatch(&entity.Notification{RecipientID: alice.ID, ActorID: bob.ID, Type: entity.NotificationFollow}))
	d.Close()

	stored := testutil.Notifications(t, db, alice.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, entity.NotificationFollow, stored[0].Type)

	select {
	case e := <-events:
		assert.Equal(t, changefeed.OpInsert, e.Op)
	case <-time.After(time.Second):
		t.Fatal("no feed event for the notification")
	}

	assert.False(t, d.Dispatch(&entity.Notification{RecipientID: alice.ID, ActorID: bob.ID, Type: entity.NotificationLike}), "closed dispatcher drops")
	d.Close()
}

type failingRepo struct {
	notifRepo.NotificationRepository
}

func (failingRepo) Create(context.Context, *entity.Notification) error {
	return errors.New("insert failed")
}

func TestDispatcherReportsFailuresToHandlerOnly(t *testing.T) {
	var mu sync.Mutex
	var failed []*entity.Notification

	d := NewDispatcher(failingRepo{}, nil, zap.NewNop(), 1, 4, WithErrorHandler(func(n *entity.Notification, err error) {
		mu.Lock()
		failed = append(failed, n)
		mu.Unlock()
	}))

	n := &entity.Notification{RecipientID: uuid.New(), ActorID: uuid.New(), Type: entity.NotificationLike}
	assert.True(t, d.Dispatch(n))
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1)
	assert.Same(t, n, failed[0])
}

type blockingRepo struct {
	notifRepo.NotificationRepository
	release chan struct{}
}

func (b blockingRepo) Create(context.Context, *entity.Notification) error {
	<-b.release
	return nil
}

func TestDispatchNeverBlocksWhenQueueIsFull(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(blockingRepo{release: release}, nil, zap.NewNop(), 1, 1)

	newNotif := func() *entity.Notification {
		return &entity.Notification{RecipientID: uuid.New(), ActorID: uuid.New(), Type: entity.NotificationComment}
	}

	accepted := 0
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			if d.Dispatch(newNotif()) {
				accepted++
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
	// one in the worker, one buffered; the rest are dropped
	assert.LessOrEqual(t, accepted, 2)
	assert.GreaterOrEqual(t, accepted, 1)

	close(release)
	d.Close()
}
