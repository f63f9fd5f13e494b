package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultChannelPrefix = "changefeed:"

// RedisFeed carries events over Redis pub/sub, one channel per table.
type RedisFeed struct {
	rdb        *redis.Client
	log        *zap.Logger
	prefix     string
	minBackoff time.Duration
	maxBackoff time.Duration
}

type Option func(*RedisFeed)

func WithChannelPrefix(prefix string) Option {
	return func(f *RedisFeed) { f.prefix = prefix }
}

// WithBackoff bounds the reconnect delay.
func WithBackoff(min, max time.Duration) Option {
	return func(f *RedisFeed) {
		f.minBackoff = min
		f.maxBackoff = max
	}
}

func NewRedisFeed(rdb *redis.Client, log *zap.Logger, opts ...Option) *RedisFeed {
	f := &RedisFeed{
		rdb:        rdb,
		log:        log.Named("changefeed"),
		prefix:     defaultChannelPrefix,
		minBackoff: 200 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *RedisFeed) channel(table string) string {
	return f.prefix + table
}

func (f *RedisFeed) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := f.rdb.Publish(ctx, f.channel(e.Table), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Table, apperror.ErrNetwork)
	}
	metrics.FeedEventsPublished.WithLabelValues(e.Table, string(e.Op)).Inc()
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, table string, filter Filter, h Handler) (*Subscription, error) {
	ps, err := f.subscribeOnce(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", table, apperror.ErrNetwork)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(table, cancel)

	conn := &pubsubConn{ps: ps}
	go func() {
		<-subCtx.Done()
		conn.shutdown()
	}()
	go f.run(subCtx, sub, conn, filter, h)

	return sub, nil
}

func (f *RedisFeed) subscribeOnce(ctx context.Context, table string) (*redis.PubSub, error) {
	ps := f.rdb.Subscribe(ctx, f.channel(table))
	// Wait for confirmation that subscription is created
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}

func (f *RedisFeed) run(ctx context.Context, sub *Subscription, conn *pubsubConn, filter Filter, h Handler) {
	defer close(sub.done)
	log := f.log.With(zap.String("table", sub.table))

	for {
		msg, err := conn.get().ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("change feed connection lost, reconnecting", zap.Error(err))
			conn.closeCurrent()

			ps, err := f.reconnect(ctx, sub.table, log)
			if err != nil {
				return
			}
			if !conn.swap(ps) {
				return
			}
			metrics.FeedReconnects.WithLabelValues(sub.table).Inc()
			h.resync()
			continue
		}

		var e Event
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			log.Warn("dropping malformed change feed event", zap.Error(err))
			continue
		}
		if !filter.Match(e) {
			continue
		}
		metrics.FeedEventsDelivered.WithLabelValues(sub.table).Inc()
		h.event(e)
	}
}

func (f *RedisFeed) reconnect(ctx context.Context, table string, log *zap.Logger) (*redis.PubSub, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.minBackoff
	b.MaxInterval = f.maxBackoff
	b.MaxElapsedTime = 0

	var ps *redis.PubSub
	err := backoff.RetryNotify(func() error {
		p, err := f.subscribeOnce(ctx, table)
		if err != nil {
			return err
		}
		ps = p
		return nil
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.Debug("change feed resubscribe failed", zap.Duration("retry_in", next), zap.Error(err))
	})
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// pubsubConn lets the cancel watcher close whichever connection is current;
// ReceiveMessage does not observe context cancellation on its own.
type pubsubConn struct {
	mu     sync.Mutex
	ps     *redis.PubSub
	closed bool
}

func (c *pubsubConn) get() *redis.PubSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ps
}

// swap installs a fresh connection. It returns false, closing ps, if the
// subscription was cancelled meanwhile.
func (c *pubsubConn) swap(ps *redis.PubSub) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = ps.Close()
		return false
	}
	c.ps = ps
	return true
}

func (c *pubsubConn) closeCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ps != nil {
		_ = c.ps.Close()
	}
}

func (c *pubsubConn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.ps != nil {
		_ = c.ps.Close()
	}
}
