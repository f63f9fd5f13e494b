// Package moderation gates user-authored text behind an external classifier.
package moderation

import (
	"context"
	"strings"

	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/metrics"
	"go.uber.org/zap"
)

type Verdict struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Noop allows everything. Used when no classifier is configured.
type Noop struct{}

func (Noop) Classify(context.Context, string) (Verdict, error) {
	return Verdict{}, nil
}

// Gate returns ErrModerationBlocked only on an explicit block. A classifier
// failure is logged and the text is let through (fail-open).
func Gate(ctx context.Context, c Classifier, log *zap.Logger, text string) error {
	if c == nil || strings.TrimSpace(text) == "" {
		return nil
	}

	verdict, err := c.Classify(ctx, text)
	if err != nil {
		metrics.ModerationDecisions.WithLabelValues("error").Inc()
		if log != nil {
			log.Warn("moderation unavailable, allowing content", zap.Error(err))
		}
		return nil
	}

	if verdict.Blocked {
		metrics.ModerationDecisions.WithLabelValues("blocked").Inc()
		msg := "content violates community guidelines"
		if verdict.Reason != "" {
			msg += ": " + verdict.Reason
		}
		return apperror.Wrap(apperror.ErrModerationBlocked, msg)
	}

	metrics.ModerationDecisions.WithLabelValues("allowed").Inc()
	return nil
}
