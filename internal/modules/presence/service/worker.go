package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Worker keeps one user's last_active_at fresh while a session is open.
type Worker struct {
	presence PresenceService
	interval time.Duration
	log      *zap.Logger
}

func NewWorker(presence PresenceService, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{presence: presence, interval: interval, log: log.Named("presence")}
}

// Run heartbeats immediately, then every interval until ctx ends. A failed
// heartbeat is logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context, userID uuid.UUID) {
	w.beat(ctx, userID)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.beat(ctx, userID)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) beat(ctx context.Context, userID uuid.UUID) {
	if _, err := w.presence.Heartbeat(ctx, userID); err != nil && ctx.Err() == nil {
		w.log.Warn("heartbeat failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
