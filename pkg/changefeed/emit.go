package changefeed

import (
	"context"

	"go.uber.org/zap"
)

// Emit publishes row on table after a committed write. Failures are logged and
// swallowed: the writer already succeeded and subscribers reconcile on resync.
func Emit(ctx context.Context, f Feed, log *zap.Logger, table string, op Op, row any) {
	if f == nil {
		return
	}

	e, err := NewEvent(table, op, row)
	if err == nil {
		err = f.Publish(ctx, e)
	}
	if err != nil && log != nil {
		log.Warn("change feed publish failed",
			zap.String("table", table),
			zap.String("op", string(op)),
			zap.Error(err),
		)
	}
}
