package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// Logging returns middleware that logs step start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, run *workflow.Run, step string, next Handler) error {
		logger.Debug("step started",
			slog.String("graph", run.Graph),
			slog.String("run_id", run.ID.String()),
			slog.String("step", step),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step failed",
				slog.String("graph", run.Graph),
				slog.String("run_id", run.ID.String()),
				slog.String("step", step),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step completed",
				slog.String("graph", run.Graph),
				slog.String("run_id", run.ID.String()),
				slog.String("step", step),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
