package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// Recover returns middleware that recovers from panics in the step chain.
// Panics are converted to errors and logged with a stack trace, so a
// panicking step fails its run instead of taking the process down.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, run *workflow.Run, step string, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("step panicked",
					slog.String("graph", run.Graph),
					slog.String("run_id", run.ID.String()),
					slog.String("step", step),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in step %s: %v", step, r)
			}
		}()
		return next(ctx)
	}
}
