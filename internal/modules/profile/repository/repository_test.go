package repository

import (
	"context"
	"testing"
	"time"

	"anoa.com/friendline/internal/testutil"
	"anoa.com/friendline/pkg/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	alice := testutil.CreateProfile(t, db, "alice")
	bob := testutil.CreateProfile(t, db, "bob")

	t.Run("find by username", func(t *testing.T) {
		p, err := repo.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, p.ID)

		_, err = repo.FindByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("find by ids skips unknown", func(t *testing.T) {
		ps, err := repo.FindByIDs(ctx, []uuid.UUID{alice.ID, bob.ID, uuid.New()})
		require.NoError(t, err)
		assert.Len(t, ps, 2)

		ps, err = repo.FindByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, ps)
	})

	t.Run("update rejects taken username", func(t *testing.T) {
		p, err := repo.FindByID(ctx, bob.ID)
		require.NoError(t, err)
		p.Username = "alice"
		assert.ErrorIs(t, repo.Update(ctx, p), apperror.ErrConflict)
	})

	t.Run("touch last active", func(t *testing.T) {
		at := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, repo.TouchLastActive(ctx, alice.ID, at))

		p, err := repo.FindByID(ctx, alice.ID)
		require.NoError(t, err)
		require.NotNil(t, p.LastActiveAt)
		assert.True(t, at.Equal(*p.LastActiveAt))

		assert.ErrorIs(t, repo.TouchLastActive(ctx, uuid.New(), at), apperror.ErrNotFound)
	})
}
