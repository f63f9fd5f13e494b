// Package changefeed delivers row-level mutation events (insert, update,
// delete) to subscribers scoped by table and an optional filter.
//
// Delivery is at-least-once while connected and carries no ordering guarantee
// across tables. Events missed during a disconnect are not replayed; instead
// subscribers are told to resync and must re-run a reconciling pull. Treat
// every event as an invalidation signal, never as the source of truth.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Event struct {
	Table string          `json:"table"`
	Op    Op              `json:"op"`
	Row   json.RawMessage `json:"row"`
	At    time.Time       `json:"at"`
}

// NewEvent snapshots row as JSON. Pass the post-mutation row (or the deleted row for OpDelete).
func NewEvent(table string, op Op, row any) (Event, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s row: %w", table, err)
	}
	return Event{Table: table, Op: op, Row: raw, At: time.Now().UTC()}, nil
}

// Decode unmarshals the row into dst.
func (e Event) Decode(dst any) error {
	return json.Unmarshal(e.Row, dst)
}

// Handler receives events for one subscription. Both callbacks run on the
// subscription's own goroutine, one at a time.
type Handler struct {
	OnEvent func(Event)
	// OnResync fires after the subscription recovered from a gap.
	OnResync func()
}

func (h Handler) event(e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

func (h Handler) resync() {
	if h.OnResync != nil {
		h.OnResync()
	}
}

type Feed interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe binds a handler to table until the returned subscription is
	// closed or ctx ends. The filter is fixed at subscribe time.
	Subscribe(ctx context.Context, table string, filter Filter, h Handler) (*Subscription, error)
}

// Subscription is the handle returned by Feed.Subscribe.
type Subscription struct {
	table  string
	cancel context.CancelFunc
	done   chan struct{}
}

func newSubscription(table string, cancel context.CancelFunc) *Subscription {
	return &Subscription{table: table, cancel: cancel, done: make(chan struct{})}
}

func (s *Subscription) Table() string {
	return s.table
}

// Close stops delivery. It does not wait for an in-flight handler; use Done for that.
// Safe to call more than once and from inside a handler.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.cancel()
}

// Done is closed once the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
