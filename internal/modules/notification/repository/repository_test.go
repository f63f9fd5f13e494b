package repository

import (
	"context"
	"testing"

	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	alice := testutil.CreateProfile(t, db, "alice")
	bob := testutil.CreateProfile(t, db, "bob")
	convA, convB := uuid.New(), uuid.New()

	seed := []*entity.Notification{
		{RecipientID: alice.ID, ActorID: bob.ID, Type: entity.NotificationFollow},
		{RecipientID: alice.ID, ActorID: bob.ID, Type: entity.NotificationLike},
		{RecipientID: alice.ID, ActorID: bob.ID, Type: entity.NotificationMessage, ConversationID: &convA},
		{RecipientID: alice.ID, ActorID: bob.ID, Type: entity.NotificationMessage, ConversationID: &convA},
		{RecipientID: alice.ID, ActorID: bob.ID, Type: entity.NotificationMessage, ConversationID: &convB},
		{RecipientID: bob.ID, ActorID: alice.ID, Type: entity.NotificationAccept},
	}
	for _, n := range seed {
		require.NoError(t, repo.Create(ctx, n))
	}

	badge, err := repo.CountUnreadBadge(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, badge)

	messages, err := repo.CountUnreadMessages(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{convA: 2, convB: 1}, messages)

	list, total, err := repo.ListByRecipient(ctx, alice.ID, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].Actor)
	assert.Equal(t, "bob", list[0].Actor.Username)

	t.Run("mark read reports affected rows", func(t *testing.T) {
		n, err := repo.MarkRead(ctx, seed[0].ID, alice.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = repo.MarkRead(ctx, seed[0].ID, alice.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n, "already read")

		n, err = repo.MarkRead(ctx, seed[5].ID, alice.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n, "not the recipient")
	})

	t.Run("mark conversation read only touches that conversation", func(t *testing.T) {
		n, err := repo.MarkConversationRead(ctx, alice.ID, convA)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		messages, err := repo.CountUnreadMessages(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, map[uuid.UUID]int64{convB: 1}, messages)
	})

	t.Run("mark all read leaves message notifications", func(t *testing.T) {
		_, err := repo.MarkAllRead(ctx, alice.ID)
		require.NoError(t, err)

		badge, err := repo.CountUnreadBadge(ctx, alice.ID)
		require.NoError(t, err)
		assert.Zero(t, badge)

		messages, err := repo.CountUnreadMessages(ctx, alice.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, messages[convB])
	})
}
