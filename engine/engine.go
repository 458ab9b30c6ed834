// Package engine executes compiled workflow graphs with durable
// checkpoints. A run can complete in one pass, suspend at an approval gate
// until Resume delivers a decision, or be picked up after a crash by
// Recover from its latest checkpoint.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	flowops "github.com/Aparnap2/internal-flow-ops"
	"github.com/Aparnap2/internal-flow-ops/id"
	"github.com/Aparnap2/internal-flow-ops/middleware"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMiddleware replaces the default step middleware chain
// (Recover, Logging).
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) { e.chain = middleware.Chain(mws...) }
}

// WithEmitter sets the lifecycle emitter.
func WithEmitter(em RunEmitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// Engine executes graphs against a workflow store.
type Engine struct {
	registry *workflow.Registry
	store    workflow.Store
	chain    middleware.Middleware
	emitter  RunEmitter
	logger   *slog.Logger
}

// New creates an Engine. The registry is consulted on resume paths, where
// only the run record is known.
func New(registry *workflow.Registry, store workflow.Store, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		store:    store,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.chain == nil {
		e.chain = middleware.Chain(
			middleware.Recover(e.logger),
			middleware.Logging(e.logger),
		)
	}
	if e.emitter == nil {
		e.emitter = &slogEmitter{logger: e.logger}
	}
	return e
}

// RunOption customizes a run at start.
type RunOption func(*workflow.Run)

// WithCorrelationID stamps the run with the triggering event's correlation
// id.
func WithCorrelationID(cid string) RunOption {
	return func(r *workflow.Run) { r.CorrelationID = cid }
}

// Execute starts a new run of g with the given input state and drives it
// until it completes, fails, suspends at an approval gate, or is cancelled.
//
// Domain outcomes (step failure, configuration fault) are recorded on the
// returned run, not returned as errors; the error return is reserved for
// infrastructure faults and context cancellation.
func (e *Engine) Execute(ctx context.Context, g *workflow.Graph, input workflow.State, opts ...RunOption) (*workflow.Run, error) {
	run := &workflow.Run{
		ID:        id.NewRunID(),
		Graph:     g.Name(),
		Status:    workflow.RunStatusPending,
		StartedAt: time.Now().UTC(),
	}
	for _, o := range opts {
		o(run)
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("engine: create run: %w", err)
	}

	st, err := input.Clone()
	if err != nil {
		e.fail(ctx, run, st, fmt.Errorf("engine: input not serializable: %w", err))
		return run, nil
	}

	run.Status = workflow.RunStatusRunning
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("engine: update run: %w", err)
	}
	e.emitter.RunStarted(ctx, run)

	if err := e.checkpoint(ctx, run, workflow.StartMarker, g.Entry(), st); err != nil {
		e.fail(ctx, run, st, err)
		return run, nil
	}

	return e.loop(ctx, g, run, g.Entry(), st)
}

// Resume delivers an approval decision to a suspended run and continues it
// from the gate.
func (e *Engine) Resume(ctx context.Context, runID id.RunID, ap workflow.Approval) (*workflow.Run, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, flowops.ErrRunTerminal
	}
	if run.Status != workflow.RunStatusWaitingApproval || run.PendingStep == "" {
		return nil, flowops.ErrRunNotSuspended
	}

	g, ok := e.registry.Graph(run.Graph)
	if !ok {
		return nil, flowops.ErrGraphNotFound
	}

	cp, err := e.store.LatestCheckpoint(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("engine: resume %s: %w", runID, err)
	}
	st, err := cp.DecodeState()
	if err != nil {
		return nil, fmt.Errorf("engine: resume %s: %w", runID, err)
	}

	if ap.DecidedAt == "" {
		ap.DecidedAt = time.Now().UTC().Format(time.RFC3339)
	}
	gate := run.PendingStep
	st.SetApproval(gate, ap)

	run.Status = workflow.RunStatusRunning
	run.PendingStep = ""
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("engine: update run: %w", err)
	}

	// Checkpoint the injected decision so a crash between here and the
	// gate's own checkpoint does not lose it.
	if err := e.checkpoint(ctx, run, cp.Step, gate, st); err != nil {
		e.fail(ctx, run, st, err)
		return run, nil
	}

	e.emitter.RunResumed(ctx, run, gate, ap)
	return e.loop(ctx, g, run, gate, st)
}

// Recover continues a running run from its latest checkpoint after a crash.
// Suspended and terminal runs are returned unchanged.
func (e *Engine) Recover(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() || run.Status == workflow.RunStatusWaitingApproval {
		return run, nil
	}

	g, ok := e.registry.Graph(run.Graph)
	if !ok {
		return nil, flowops.ErrGraphNotFound
	}

	cp, err := e.store.LatestCheckpoint(ctx, runID)
	if err != nil {
		if errors.Is(err, flowops.ErrCheckpointNotFound) {
			// Checkpoints expired under a still-running record.
			e.fail(ctx, run, nil, fmt.Errorf("engine: recover %s: checkpoints expired", runID))
			return run, nil
		}
		return nil, fmt.Errorf("engine: recover %s: %w", runID, err)
	}
	st, err := cp.DecodeState()
	if err != nil {
		return nil, fmt.Errorf("engine: recover %s: %w", runID, err)
	}

	e.logger.Info("recovering run from checkpoint",
		slog.String("run_id", runID.String()),
		slog.String("graph", run.Graph),
		slog.Int64("seq", cp.Seq),
		slog.String("next", cp.Next),
	)
	return e.loop(ctx, g, run, cp.Next, st)
}

// RecoverAll continues every running run, typically at startup. It returns
// the number of runs picked up; individual recovery failures are logged and
// skipped.
func (e *Engine) RecoverAll(ctx context.Context) (int, error) {
	runs, err := e.store.ListRuns(ctx, workflow.ListOpts{Status: workflow.RunStatusRunning})
	if err != nil {
		return 0, fmt.Errorf("engine: list running: %w", err)
	}

	recovered := 0
	for _, run := range runs {
		if _, err := e.Recover(ctx, run.ID); err != nil {
			e.logger.Error("recover failed",
				slog.String("run_id", run.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		recovered++
	}
	return recovered, nil
}

// ReplayFrom starts a fresh run seeded from a stored checkpoint of an
// existing run and drives it to its own conclusion. The original run is
// untouched.
func (e *Engine) ReplayFrom(ctx context.Context, runID id.RunID, seq int64) (*workflow.Run, error) {
	orig, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	g, ok := e.registry.Graph(orig.Graph)
	if !ok {
		return nil, flowops.ErrGraphNotFound
	}
	cp, err := e.store.GetCheckpoint(ctx, runID, seq)
	if err != nil {
		return nil, err
	}
	st, err := cp.DecodeState()
	if err != nil {
		return nil, fmt.Errorf("engine: replay %s/%d: %w", runID, seq, err)
	}

	run := &workflow.Run{
		ID:            id.NewRunID(),
		Graph:         orig.Graph,
		Status:        workflow.RunStatusRunning,
		CorrelationID: orig.CorrelationID,
		StartedAt:     time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("engine: create replay run: %w", err)
	}
	e.emitter.RunStarted(ctx, run)

	if err := e.checkpoint(ctx, run, cp.Step, cp.Next, st); err != nil {
		e.fail(ctx, run, st, err)
		return run, nil
	}
	return e.loop(ctx, g, run, cp.Next, st)
}

// loop drives a run from current until a terminal marker, suspension,
// failure, or cancellation.
func (e *Engine) loop(ctx context.Context, g *workflow.Graph, run *workflow.Run, current string, st workflow.State) (*workflow.Run, error) {
	for current != workflow.End {
		if err := ctx.Err(); err != nil {
			e.cancel(ctx, run, st)
			return run, err
		}

		fn, ok := g.Step(current)
		if !ok {
			e.fail(ctx, run, st, &workflow.ConfigError{Graph: g.Name(), Step: current, Reason: "routed to undefined step"})
			return run, nil
		}

		if g.IsGate(current) {
			if _, ok := st.ApprovalFor(current); !ok {
				run.Status = workflow.RunStatusWaitingApproval
				run.PendingStep = current
				if err := e.store.UpdateRun(ctx, run); err != nil {
					return nil, fmt.Errorf("engine: update run: %w", err)
				}
				e.emitter.RunSuspended(ctx, run, current)
				return run, nil
			}
		}

		var out workflow.State
		stepStart := time.Now()
		err := e.chain(ctx, run, current, func(ctx context.Context) error {
			res, stepErr := fn(ctx, st)
			if stepErr != nil {
				return stepErr
			}
			out = res
			return nil
		})
		if err != nil {
			e.emitter.StepFailed(ctx, run, current, err)
			e.fail(ctx, run, st, fmt.Errorf("step %s: %w", current, err))
			return run, nil
		}
		if out == nil {
			out = st
		}

		st, err = out.Clone()
		if err != nil {
			e.fail(ctx, run, out, fmt.Errorf("step %s: state not serializable: %w", current, err))
			return run, nil
		}

		next, err := g.Next(current, st)
		if err != nil {
			e.fail(ctx, run, st, err)
			return run, nil
		}

		if err := e.checkpoint(ctx, run, current, next, st); err != nil {
			e.fail(ctx, run, st, err)
			return run, nil
		}
		e.emitter.StepCompleted(ctx, run, current, time.Since(stepStart))

		current = next
	}

	return e.complete(ctx, run, st)
}

func (e *Engine) checkpoint(ctx context.Context, run *workflow.Run, step, next string, st workflow.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("engine: encode state at %s: %w", step, err)
	}
	cp := &workflow.Checkpoint{
		RunID:     run.ID,
		Step:      step,
		Next:      next,
		State:     data,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("engine: checkpoint at %s: %w", step, err)
	}
	return nil
}

func (e *Engine) complete(ctx context.Context, run *workflow.Run, st workflow.State) (*workflow.Run, error) {
	now := time.Now().UTC()
	run.Status = workflow.RunStatusCompleted
	run.CompletedAt = &now
	run.Errors = st.Strings(workflow.ErrorsKey)
	if fr, ok := st[workflow.FinalResultKey]; ok {
		if data, err := json.Marshal(fr); err == nil {
			run.FinalResult = data
		}
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("engine: update run: %w", err)
	}
	e.emitter.RunCompleted(ctx, run, now.Sub(run.StartedAt))
	return run, nil
}

func (e *Engine) fail(ctx context.Context, run *workflow.Run, st workflow.State, cause error) {
	now := time.Now().UTC()
	run.Status = workflow.RunStatusFailed
	run.Error = cause.Error()
	run.CompletedAt = &now
	if st != nil {
		run.Errors = st.Strings(workflow.ErrorsKey)
	}

	var cfgErr *workflow.ConfigError
	if errors.As(cause, &cfgErr) {
		e.logger.Error("graph configuration error",
			slog.String("run_id", run.ID.String()),
			slog.String("graph", run.Graph),
			slog.String("error", cause.Error()))
	}

	if err := e.store.UpdateRun(ctx, run); err != nil {
		e.logger.Error("failed to persist run failure",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()))
	}
	e.emitter.RunFailed(ctx, run, cause)
}

func (e *Engine) cancel(ctx context.Context, run *workflow.Run, st workflow.State) {
	now := time.Now().UTC()
	run.Status = workflow.RunStatusCancelled
	run.CompletedAt = &now
	if st != nil {
		run.Errors = st.Strings(workflow.ErrorsKey)
	}

	// The caller's context is gone; persist with a detached one.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.UpdateRun(pctx, run); err != nil {
		e.logger.Error("failed to persist run cancellation",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()))
	}
	e.emitter.RunCancelled(pctx, run)
}
