package service

import (
	"context"
	"time"

	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	"go.uber.org/zap"
)

// Pruner deletes read notifications past their retention. Unread rows are
// kept whatever their age, since counters are derived from them.
type Pruner struct {
	repo      notifRepo.NotificationRepository
	retention time.Duration
	schedule  string
	now       func() time.Time
	log       *zap.Logger
}

func NewPruner(repo notifRepo.NotificationRepository, retention time.Duration, schedule string, log *zap.Logger) *Pruner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pruner{repo: repo, retention: retention, schedule: schedule, now: time.Now, log: log.Named("pruner")}
}

func (p *Pruner) Name() string {
	return "notification-pruner"
}

func (p *Pruner) Schedule() string {
	return p.schedule
}

func (p *Pruner) Run(ctx context.Context) error {
	cutoff := p.now().Add(-p.retention)
	n, err := p.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	p.log.Info("pruned read notifications", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return nil
}
