package service

import (
	"context"
	"sync"
	"time"

	"anoa.com/friendline/internal/entity"
	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	"anoa.com/friendline/pkg/changefeed"
	"anoa.com/friendline/pkg/metrics"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Fanout is what primary actions (follow, like, comment, message) depend on.
// Dispatch never blocks and never reports failure to the caller.
type Fanout interface {
	Dispatch(n *entity.Notification) bool
}

// Dispatcher writes notifications on a bounded worker pool after the primary
// write has committed. A lost notification degrades UX, not correctness.
type Dispatcher struct {
	repo    notifRepo.NotificationRepository
	feed    changefeed.Feed
	log     *zap.Logger
	onError func(*entity.Notification, error)

	workers  int
	jobQueue chan *entity.Notification
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type DispatcherOption func(*Dispatcher)

// WithErrorHandler observes failed inserts. It runs on a worker goroutine.
func WithErrorHandler(fn func(*entity.Notification, error)) DispatcherOption {
	return func(d *Dispatcher) { d.onError = fn }
}

func NewDispatcher(repo notifRepo.NotificationRepository, feed changefeed.Feed, log *zap.Logger, workers, queueSize int, opts ...DispatcherOption) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dispatcher{
		repo:     repo,
		feed:     feed,
		log:      log.Named("fanout"),
		workers:  workers,
		jobQueue: make(chan *entity.Notification, queueSize),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.startWorkers()
	return d
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.jobQueue {
		d.process(n)
	}
}

func (d *Dispatcher) process(n *entity.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := d.repo.Create(ctx, n); err != nil {
		metrics.FanoutTotal.WithLabelValues(string(n.Type), "failed").Inc()
		d.log.Warn("notification insert failed",
			zap.String("type", string(n.Type)),
			zap.String("recipient_id", n.RecipientID.String()),
			zap.Error(err),
		)
		if d.onError != nil {
			d.onError(n, err)
		}
		return
	}

	metrics.FanoutTotal.WithLabelValues(string(n.Type), "delivered").Inc()
	changefeed.Emit(ctx, d.feed, d.log, entity.TableNotifications, changefeed.OpInsert, n)
}

// Dispatch enqueues n and returns false when it was dropped because the queue
// was full or the dispatcher was closed.
func (d *Dispatcher) Dispatch(n *entity.Notification) bool {
	if n == nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.FanoutTotal.WithLabelValues(string(n.Type), "dropped").Inc()
		return false
	}

	select {
	case d.jobQueue <- n:
		return true
	default:
		metrics.FanoutTotal.WithLabelValues(string(n.Type), "dropped").Inc()
		d.log.Warn("notification queue full, dropping",
			zap.String("type", string(n.Type)),
			zap.String("recipient_id", n.RecipientID.String()),
		)
		return false
	}
}

// Close stops accepting work and waits for queued notifications to be written.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobQueue)
	d.mu.Unlock()

	d.wg.Wait()
}
