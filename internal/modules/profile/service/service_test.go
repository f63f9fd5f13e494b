package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"anoa.com/friendline/internal/entity"
	presence "anoa.com/friendline/internal/modules/presence/service"
	profileDto "anoa.com/friendline/internal/modules/profile/dto"
	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	"anoa.com/friendline/internal/testutil"
	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/changefeed"
	commonDto "anoa.com/friendline/pkg/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStorage struct {
	uploaded []string
	deleted  []string
	failDel  bool
}

func (f *fakeStorage) Upload(_ context.Context, r io.Reader, folder, fileName string) (string, error) {
	_, _ = io.ReadAll(r)
	url := "https://cdn.example/" + folder + "/" + fileName
	f.uploaded = append(f.uploaded, url)
	return url, nil
}

func (f *fakeStorage) Delete(_ context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	if f.failDel {
		return errors.New("cdn down")
	}
	return nil
}

func (f *fakeStorage) Owns(url, folder string) bool {
	return strings.HasPrefix(url, "https://cdn.example/"+folder+"/")
}

type fakeIndexer struct {
	indexed []string
}

func (f *fakeIndexer) IndexProfile(p *entity.Profile) error {
	f.indexed = append(f.indexed, p.Username)
	return nil
}

func strPtr(s string) *string { return &s }

func setup(t *testing.T) (ProfileService, *fakeStorage, *fakeIndexer, *entity.Profile) {
	t.Helper()
	db := testutil.NewDB(t)
	repo := profileRepo.NewProfileRepository(db)
	alice := testutil.CreateProfile(t, db, "alice")
	testutil.CreateProfile(t, db, "bob")

	st := &fakeStorage{failDel: true}
	idx := &fakeIndexer{}
	svc := NewProfileService(repo, presence.NewPresenceService(repo, time.Minute), st, idx, changefeed.NewMemoryFeed(zap.NewNop()), zap.NewNop())
	return svc, st, idx, alice
}

func TestGetByUsername(t *testing.T) {
	svc, _, _, alice := setup(t)

	res, err := svc.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, res.ID)
	assert.False(t, res.Online)

	_, err = svc.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	svc, st, idx, alice := setup(t)
	ctx := context.Background()

	t.Run("rejects taken username", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, alice.ID, profileDto.UpdateProfileInput{Username: strPtr("bob")}, nil)
		assert.ErrorIs(t, err, apperror.ErrConflict)
	})

	t.Run("rejects blank display name", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, alice.ID, profileDto.UpdateProfileInput{DisplayName: strPtr("<i></i>")}, nil)
		assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	})

	t.Run("replaces avatar and reindexes", func(t *testing.T) {
		avatar := &commonDto.MediaFile{Reader: strings.NewReader("png"), FileName: "a.png"}
		res, err := svc.UpdateProfile(ctx, alice.ID, profileDto.UpdateProfileInput{
			Username:    strPtr("alice liddell"),
			DisplayName: strPtr("<b>Alice</b>"),
		}, avatar)
		require.NoError(t, err)
		assert.Equal(t, "alice_liddell", res.Username)
		assert.Equal(t, "Alice", res.DisplayName)
		require.NotNil(t, res.AvatarURL)
		assert.Empty(t, st.deleted)

		avatar = &commonDto.MediaFile{Reader: strings.NewReader("png"), FileName: "b.png"}
		res, err = svc.UpdateProfile(ctx, alice.ID, profileDto.UpdateProfileInput{}, avatar)
		require.NoError(t, err, "a failed delete of the old avatar must not fail the update")
		assert.Equal(t, "https://cdn.example/avatars/b.png", *res.AvatarURL)
		assert.Equal(t, []string{"https://cdn.example/avatars/a.png"}, st.deleted)
		assert.Equal(t, []string{"alice_liddell", "alice_liddell"}, idx.indexed)
	})
}
