package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// RunEmitter receives run lifecycle notifications. Implementations must be
// fast and must not block the run.
type RunEmitter interface {
	RunStarted(ctx context.Context, run *workflow.Run)
	StepCompleted(ctx context.Context, run *workflow.Run, step string, elapsed time.Duration)
	StepFailed(ctx context.Context, run *workflow.Run, step string, err error)
	RunSuspended(ctx context.Context, run *workflow.Run, gate string)
	RunResumed(ctx context.Context, run *workflow.Run, gate string, ap workflow.Approval)
	RunCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration)
	RunFailed(ctx context.Context, run *workflow.Run, err error)
	RunCancelled(ctx context.Context, run *workflow.Run)
}

// slogEmitter is the default emitter: structured logs for every lifecycle
// event.
type slogEmitter struct {
	logger *slog.Logger
}

var _ RunEmitter = (*slogEmitter)(nil)

func (s *slogEmitter) attrs(run *workflow.Run) []any {
	return []any{
		slog.String("run_id", run.ID.String()),
		slog.String("graph", run.Graph),
		slog.String("correlation_id", run.CorrelationID),
	}
}

func (s *slogEmitter) RunStarted(_ context.Context, run *workflow.Run) {
	s.logger.Info("run started", s.attrs(run)...)
}

func (s *slogEmitter) StepCompleted(_ context.Context, run *workflow.Run, step string, elapsed time.Duration) {
	s.logger.Debug("checkpoint saved", append(s.attrs(run),
		slog.String("step", step),
		slog.Duration("elapsed", elapsed))...)
}

func (s *slogEmitter) StepFailed(_ context.Context, run *workflow.Run, step string, err error) {
	s.logger.Error("step failed", append(s.attrs(run),
		slog.String("step", step),
		slog.String("error", err.Error()))...)
}

func (s *slogEmitter) RunSuspended(_ context.Context, run *workflow.Run, gate string) {
	s.logger.Info("run awaiting approval", append(s.attrs(run),
		slog.String("gate", gate))...)
}

func (s *slogEmitter) RunResumed(_ context.Context, run *workflow.Run, gate string, ap workflow.Approval) {
	s.logger.Info("run resumed", append(s.attrs(run),
		slog.String("gate", gate),
		slog.Bool("approved", ap.Approved),
		slog.String("approved_by", ap.ApprovedBy))...)
}

func (s *slogEmitter) RunCompleted(_ context.Context, run *workflow.Run, elapsed time.Duration) {
	s.logger.Info("run completed", append(s.attrs(run),
		slog.Duration("elapsed", elapsed),
		slog.Int("tolerated_errors", len(run.Errors)))...)
}

func (s *slogEmitter) RunFailed(_ context.Context, run *workflow.Run, err error) {
	s.logger.Error("run failed", append(s.attrs(run),
		slog.String("error", err.Error()))...)
}

func (s *slogEmitter) RunCancelled(_ context.Context, run *workflow.Run) {
	s.logger.Warn("run cancelled", s.attrs(run)...)
}

// NopEmitter discards all lifecycle notifications.
type NopEmitter struct{}

var _ RunEmitter = NopEmitter{}

func (NopEmitter) RunStarted(context.Context, *workflow.Run)                            {}
func (NopEmitter) StepCompleted(context.Context, *workflow.Run, string, time.Duration)  {}
func (NopEmitter) StepFailed(context.Context, *workflow.Run, string, error)             {}
func (NopEmitter) RunSuspended(context.Context, *workflow.Run, string)                  {}
func (NopEmitter) RunResumed(context.Context, *workflow.Run, string, workflow.Approval) {}
func (NopEmitter) RunCompleted(context.Context, *workflow.Run, time.Duration)           {}
func (NopEmitter) RunFailed(context.Context, *workflow.Run, error)                      {}
func (NopEmitter) RunCancelled(context.Context, *workflow.Run)                          {}
