package service

import (
	"context"
	"testing"
	"time"

	"anoa.com/friendline/internal/entity"
	followRepo "anoa.com/friendline/internal/modules/follow/repository"
	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	notification "anoa.com/friendline/internal/modules/notification/service"
	presence "anoa.com/friendline/internal/modules/presence/service"
	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	"anoa.com/friendline/internal/testutil"
	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/changefeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db         *gorm.DB
	svc        FollowService
	dispatcher *notification.Dispatcher
	alice, bob *entity.Profile
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	feed := changefeed.NewMemoryFeed(zap.NewNop())
	profiles := profileRepo.NewProfileRepository(db)
	dispatcher := notification.NewDispatcher(notifRepo.NewNotificationRepository(db), feed, zap.NewNop(), 1, 16)
	t.Cleanup(dispatcher.Close)

	svc := NewFollowService(
		followRepo.NewFollowRepository(db),
		profiles,
		presence.NewPresenceService(profiles, time.Minute),
		dispatcher,
		feed,
		zap.NewNop(),
	)
	return &fixture{
		db:         db,
		svc:        svc,
		dispatcher: dispatcher,
		alice:      testutil.CreateProfile(t, db, "alice"),
		bob:        testutil.CreateProfile(t, db, "bob"),
	}
}

func TestFollowAndAccept(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	edge, err := f.svc.Follow(ctx, f.alice.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, entity.FollowPending, edge.Status)

	again, err := f.svc.Follow(ctx, f.alice.ID, "bob")
	require.NoError(t, err, "duplicate follow is a no-op")
	assert.Equal(t, edge.FollowingID, again.FollowingID)

	incoming, err := f.svc.ListIncoming(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, "alice", incoming[0].From.Username)

	reverse, err := f.svc.Accept(ctx, f.bob.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, entity.FollowAccepted, reverse.Status)

	_, err = f.svc.Accept(ctx, f.bob.ID, "alice")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	f.dispatcher.Close()

	bobInbox := testutil.Notifications(t, f.db, f.bob.ID)
	require.Len(t, bobInbox, 1, "exactly one follow notification despite the duplicate")
	assert.Equal(t, entity.NotificationFollow, bobInbox[0].Type)
	assert.Equal(t, f.alice.ID, bobInbox[0].ActorID)

	aliceInbox := testutil.Notifications(t, f.db, f.alice.ID)
	require.Len(t, aliceInbox, 1)
	assert.Equal(t, entity.NotificationAccept, aliceInbox[0].Type)
	assert.Equal(t, f.bob.ID, aliceInbox[0].ActorID)

	for _, id := range []*entity.Profile{f.alice, f.bob} {
		friends, err := f.svc.ListFriends(ctx, id.ID)
		require.NoError(t, err)
		assert.Len(t, friends, 1)
	}
}

func TestFollowErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Follow(ctx, f.alice.ID, "alice")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = f.svc.Follow(ctx, f.alice.ID, "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	assert.ErrorIs(t, f.svc.Reject(ctx, f.bob.ID, "alice"), apperror.ErrNotFound)
}

func TestRejectAndRemove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Follow(ctx, f.alice.ID, "bob")
	require.NoError(t, err)
	require.NoError(t, f.svc.Reject(ctx, f.bob.ID, "alice"))

	incoming, err := f.svc.ListIncoming(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)

	testutil.Befriend(t, f.db, f.alice, f.bob)
	require.NoError(t, f.svc.Remove(ctx, f.bob.ID, "alice"))
	require.NoError(t, f.svc.Remove(ctx, f.bob.ID, "alice"), "removing twice is harmless")

	var count int64
	require.NoError(t, f.db.Model(&entity.FollowEdge{}).Count(&count).Error)
	assert.Zero(t, count)
}
