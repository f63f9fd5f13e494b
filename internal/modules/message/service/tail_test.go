package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/pkg/changefeed"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// capturingFeed keeps the last handler so a test can force a resync.
type capturingFeed struct {
	*changefeed.MemoryFeed
	mu sync.Mutex
	h  changefeed.Handler
}

func (f *capturingFeed) Subscribe(ctx context.Context, table string, filter changefeed.Filter, h changefeed.Handler) (*changefeed.Subscription, error) {
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
	return f.MemoryFeed.Subscribe(ctx, table, filter, h)
}

func (f *capturingFeed) resync() {
	f.mu.Lock()
	h := f.h
	f.mu.Unlock()
	h.OnResync()
}

type appended struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (a *appended) add(m entity.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, m.ID)
}

func (a *appended) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ids)
}

func publish(t *testing.T, feed changefeed.Feed, m entity.Message) {
	t.Helper()
	e, err := changefeed.NewEvent(entity.TableMessages, changefeed.OpInsert, m)
	require.NoError(t, err)
	require.NoError(t, feed.Publish(context.Background(), e))
}

func TestTailDeduplicatesRedelivery(t *testing.T) {
	feed := changefeed.NewMemoryFeed(zap.NewNop())
	convID := uuid.New()
	other := uuid.New()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	first := newMessage(t, base)
	first.ConversationID = convID
	load := func(context.Context) ([]entity.Message, error) { return []entity.Message{first}, nil }

	var got appended
	tail, err := openTail(context.Background(), feed, convID, load, TailHandler{OnAppend: got.add}, zap.NewNop())
	require.NoError(t, err)
	defer tail.Close()
	assert.Equal(t, 1, tail.Log().Len())

	second := newMessage(t, base.Add(time.Second))
	second.ConversationID = convID
	foreign := newMessage(t, base.Add(2*time.Second))
	foreign.ConversationID = other

	publish(t, feed, first)
	publish(t, feed, second)
	publish(t, feed, second)
	publish(t, feed, foreign)

	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, got.len(), "redelivered and foreign inserts are ignored")

	snap := tail.Log().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, first.ID, snap[0].ID)
	assert.Equal(t, second.ID, snap[1].ID)
	assert.Equal(t, convID, tail.ConversationID())
}

func TestTailReloadsOnResync(t *testing.T) {
	feed := &capturingFeed{MemoryFeed: changefeed.NewMemoryFeed(zap.NewNop())}
	convID := uuid.New()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	a := newMessage(t, base)
	missed := newMessage(t, base.Add(time.Second))
	history := []entity.Message{a}
	var mu sync.Mutex
	load := func(context.Context) ([]entity.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]entity.Message(nil), history...), nil
	}

	reloaded := make(chan []entity.Message, 1)
	tail, err := openTail(context.Background(), feed, convID, load, TailHandler{
		OnReload: func(ms []entity.Message) { reloaded <- ms },
	}, zap.NewNop())
	require.NoError(t, err)
	defer tail.Close()

	mu.Lock()
	history = append(history, missed)
	mu.Unlock()
	feed.resync()

	select {
	case ms := <-reloaded:
		require.Len(t, ms, 2)
		assert.Equal(t, missed.ID, ms[1].ID)
	default:
		t.Fatal("resync did not reload")
	}
	assert.Equal(t, 2, tail.Log().Len())
}

func TestOpenTailReleasesSubscriptionOnLoadFailure(t *testing.T) {
	feed := changefeed.NewMemoryFeed(zap.NewNop())
	load := func(context.Context) ([]entity.Message, error) { return nil, errors.New("db down") }

	_, err := openTail(context.Background(), feed, uuid.New(), load, TailHandler{}, zap.NewNop())
	require.Error(t, err)
	assert.Eventually(t, func() bool { return feed.Subscribers(entity.TableMessages) == 0 }, time.Second, 5*time.Millisecond)
}
