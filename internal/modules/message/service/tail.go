package service

import (
	"context"

	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/pkg/changefeed"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TailHandler receives changes to a tailed conversation. Callbacks run on the
// feed subscription goroutine, one at a time.
type TailHandler struct {
	// OnAppend fires once per message that was not in the log yet.
	OnAppend func(entity.Message)
	// OnReload fires after a resync merged fresh history into the log.
	OnReload func([]entity.Message)
}

// Tail binds one conversation's live inserts to a Log. Switching
// conversations means closing the tail and opening a new one.
type Tail struct {
	conversationID uuid.UUID
	log            *Log
	sub            *changefeed.Subscription
}

type historyLoader func(ctx context.Context) ([]entity.Message, error)

// openTail subscribes before loading history so nothing inserted in between is lost.
func openTail(ctx context.Context, feed changefeed.Feed, conversationID uuid.UUID, load historyLoader, h TailHandler, logger *zap.Logger) (*Tail, error) {
	t := &Tail{conversationID: conversationID, log: NewLog()}

	sub, err := feed.Subscribe(ctx, entity.TableMessages, changefeed.Eq("conversation_id", conversationID), changefeed.Handler{
		OnEvent: func(e changefeed.Event) {
			if e.Op != changefeed.OpInsert {
				return
			}
			var m entity.Message
			if err := e.Decode(&m); err != nil {
				logger.Warn("undecodable message event", zap.Error(err))
				return
			}
			if t.log.Append(m) && h.OnAppend != nil {
				h.OnAppend(m)
			}
		},
		OnResync: func() {
			history, err := load(ctx)
			if err != nil {
				logger.Warn("message reload after resync failed",
					zap.String("conversation_id", conversationID.String()),
					zap.Error(err),
				)
				return
			}
			t.log.Merge(history)
			if h.OnReload != nil {
				h.OnReload(t.log.Snapshot())
			}
		},
	})
	if err != nil {
		return nil, err
	}
	t.sub = sub

	history, err := load(ctx)
	if err != nil {
		sub.Close()
		return nil, err
	}
	t.log.Merge(history)
	return t, nil
}

func (t *Tail) ConversationID() uuid.UUID {
	return t.conversationID
}

func (t *Tail) Log() *Log {
	return t.log
}

// Close unsubscribes. Safe to call more than once.
func (t *Tail) Close() {
	if t == nil {
		return
	}
	t.sub.Close()
}
