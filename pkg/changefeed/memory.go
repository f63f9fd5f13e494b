package changefeed

import (
	"context"
	"sync"

	"anoa.com/friendline/pkg/metrics"
	"go.uber.org/zap"
)

const memoryBuffer = 128

// MemoryFeed is an in-process Feed for single-instance deployments without
// Redis. A subscriber that falls behind loses events and is told to resync,
// the same contract as a dropped Redis connection.
type MemoryFeed struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySub]struct{}
	log  *zap.Logger
}

type memorySub struct {
	events chan Event
	resync chan struct{}
}

func NewMemoryFeed(log *zap.Logger) *MemoryFeed {
	return &MemoryFeed{
		subs: make(map[string]map[*memorySub]struct{}),
		log:  log.Named("changefeed"),
	}
}

func (f *MemoryFeed) Publish(ctx context.Context, e Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for s := range f.subs[e.Table] {
		select {
		case s.events <- e:
		default:
			select {
			case s.resync <- struct{}{}:
			default:
			}
			f.log.Warn("subscriber lagging, event dropped", zap.String("table", e.Table))
		}
	}
	metrics.FeedEventsPublished.WithLabelValues(e.Table, string(e.Op)).Inc()
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, table string, filter Filter, h Handler) (*Subscription, error) {
	s := &memorySub{
		events: make(chan Event, memoryBuffer),
		resync: make(chan struct{}, 1),
	}

	f.mu.Lock()
	if f.subs[table] == nil {
		f.subs[table] = make(map[*memorySub]struct{})
	}
	f.subs[table][s] = struct{}{}
	f.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(table, cancel)

	go func() {
		defer close(sub.done)
		defer f.remove(table, s)

		for {
			select {
			case <-subCtx.Done():
				return
			case e := <-s.events:
				if subCtx.Err() != nil {
					return
				}
				if filter.Match(e) {
					metrics.FeedEventsDelivered.WithLabelValues(table).Inc()
					h.event(e)
				}
			case <-s.resync:
				h.resync()
			}
		}
	}()

	return sub, nil
}

func (f *MemoryFeed) remove(table string, s *memorySub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[table], s)
	if len(f.subs[table]) == 0 {
		delete(f.subs, table)
	}
}

// Subscribers reports how many live subscriptions exist for table.
func (f *MemoryFeed) Subscribers(table string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[table])
}
