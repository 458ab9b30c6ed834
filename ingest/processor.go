// Package ingest turns raw webhook deliveries into workflow runs. Each
// event is normalized, copied to the durable backlog, checked against the
// idempotency guard, enriched from the CRM, and handed to the engine. The
// backlog can be drained later to replay deliveries; the guard collapses
// replays of occurrences that already ran.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	flowops "github.com/Aparnap2/internal-flow-ops"
	"github.com/Aparnap2/internal-flow-ops/backlog"
	"github.com/Aparnap2/internal-flow-ops/connector"
	"github.com/Aparnap2/internal-flow-ops/engine"
	"github.com/Aparnap2/internal-flow-ops/envelope"
	"github.com/Aparnap2/internal-flow-ops/flows"
	"github.com/Aparnap2/internal-flow-ops/idem"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// Outcome statuses.
const (
	StatusTriggered = "triggered"
	StatusIgnored   = "ignored"
	StatusError     = "error"
)

// Outcome reports what happened to one event in a batch.
type Outcome struct {
	EventID       string `json:"event_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	RunID         string `json:"run_id,omitempty"`
	Workflow      string `json:"workflow,omitempty"`
}

// Option configures the Processor.
type Option func(*Processor)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithDrainConcurrency bounds the workers a Drain call spawns.
func WithDrainConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// Processor is the ingestion pipeline.
type Processor struct {
	guard       *idem.Guard
	registry    *workflow.Registry
	engine      *engine.Engine
	crm         connector.CRM
	backlog     *backlog.Queue
	logger      *slog.Logger
	concurrency int
}

// New creates a Processor.
func New(guard *idem.Guard, registry *workflow.Registry, eng *engine.Engine, crm connector.CRM, queue *backlog.Queue, opts ...Option) *Processor {
	p := &Processor{
		guard:       guard,
		registry:    registry,
		engine:      eng,
		crm:         crm,
		backlog:     queue,
		logger:      slog.Default(),
		concurrency: 4,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProcessBatch handles one webhook delivery. Events are isolated: a
// malformed or failing event yields an error outcome in its slot and the
// rest of the batch proceeds.
func (p *Processor) ProcessBatch(ctx context.Context, raws []envelope.RawEvent) []Outcome {
	outcomes := make([]Outcome, 0, len(raws))
	for _, raw := range raws {
		outcomes = append(outcomes, p.processRaw(ctx, raw))
	}
	return outcomes
}

func (p *Processor) processRaw(ctx context.Context, raw envelope.RawEvent) Outcome {
	env, err := envelope.Build(raw)
	if err != nil {
		p.logger.Warn("dropping malformed event", slog.String("error", err.Error()))
		return Outcome{
			EventID: raw.EventID.String(),
			Status:  StatusError,
			Reason:  err.Error(),
		}
	}

	// The backlog copy is made before any processing so a later drain can
	// replay the delivery even when this attempt fails.
	if _, err := p.backlog.Push(ctx, env); err != nil {
		p.logger.Warn("backlog push failed",
			slog.String("event_id", env.EventID),
			slog.String("error", err.Error()))
	}

	return p.Process(ctx, env)
}

// Process runs one normalized envelope through the guard, the registry,
// enrichment, and the engine.
func (p *Processor) Process(ctx context.Context, env *envelope.Envelope) Outcome {
	out := Outcome{EventID: env.EventID, CorrelationID: env.CorrelationID}

	rec, hit, err := p.guard.Check(ctx, env.DedupKey())
	if err != nil {
		out.Status = StatusError
		out.Reason = err.Error()
		return out
	}
	if hit {
		p.logger.Info("duplicate delivery collapsed",
			slog.String("event_id", env.EventID),
			slog.String("run_id", rec.RunID))
		out.Status = StatusIgnored
		out.Reason = "duplicate delivery"
		out.RunID = rec.RunID
		out.Workflow = rec.Workflow
		return out
	}

	g, ok := p.registry.Resolve(env.ObjectType, env.Action, env.PropertyName)
	if !ok {
		out.Status = StatusIgnored
		out.Reason = fmt.Sprintf("no workflow bound for %s.%s", env.ObjectType, env.Action)
		return out
	}
	out.Workflow = g.Name()

	state, err := p.buildState(ctx, env)
	if err != nil {
		out.Status = StatusError
		out.Reason = err.Error()
		return out
	}

	run, err := p.engine.Execute(ctx, g, state, engine.WithCorrelationID(env.CorrelationID))
	if err != nil {
		out.Status = StatusError
		out.Reason = err.Error()
		if run != nil {
			out.RunID = run.ID.String()
		}
		return out
	}
	out.RunID = run.ID.String()

	switch run.Status {
	case workflow.RunStatusCompleted, workflow.RunStatusWaitingApproval:
		// Suspended runs commit too, so a redelivery of the same occurrence
		// maps onto the run awaiting approval instead of starting another.
		if err := p.guard.Commit(ctx, env.DedupKey(), idem.Record{
			RunID:       run.ID.String(),
			Workflow:    run.Graph,
			Status:      string(run.Status),
			FinalResult: run.FinalResult,
		}); err != nil {
			p.logger.Warn("idempotency commit failed",
				slog.String("event_id", env.EventID),
				slog.String("error", err.Error()))
		}
		out.Status = StatusTriggered
	default:
		out.Status = StatusError
		out.Reason = run.Error
	}
	return out
}

// buildState seeds the run's working state: the event envelope plus CRM
// enrichment. Enrichment is best effort; a CRM outage is recorded on the
// errors list and the run proceeds with the event alone.
func (p *Processor) buildState(ctx context.Context, env *envelope.Envelope) (workflow.State, error) {
	state := workflow.State{}

	eventMap, err := toMap(env)
	if err != nil {
		return nil, fmt.Errorf("ingest: encode envelope %s: %w", env.EventID, err)
	}
	state[flows.EventKey] = eventMap

	details, err := p.fetchObject(ctx, env.ObjectType, env.ObjectID)
	if err != nil {
		p.logger.Warn("crm enrichment failed",
			slog.String("event_id", env.EventID),
			slog.String("object_type", env.ObjectType),
			slog.String("object_id", env.ObjectID),
			slog.String("error", err.Error()))
		state.AppendError(fmt.Sprintf("crm enrichment failed: %v", err))
		return state, nil
	}

	enriched := map[string]any{
		"details":      details,
		"associations": p.fetchAssociations(ctx, env, state),
	}
	enrichedMap, err := toMap(enriched)
	if err != nil {
		return nil, fmt.Errorf("ingest: encode enrichment %s: %w", env.EventID, err)
	}
	state[flows.EnrichedKey] = enrichedMap
	return state, nil
}

func (p *Processor) fetchObject(ctx context.Context, objectType, id string) (*connector.Object, error) {
	switch objectType {
	case envelope.ObjectCompany:
		return p.crm.Company(ctx, id)
	case envelope.ObjectContact:
		return p.crm.Contact(ctx, id)
	case envelope.ObjectDeal:
		return p.crm.Deal(ctx, id)
	default:
		return nil, fmt.Errorf("ingest: no enrichment for object type %q", objectType)
	}
}

// fetchAssociations resolves the object's associations into full objects.
// Partial failures are recorded and skipped.
func (p *Processor) fetchAssociations(ctx context.Context, env *envelope.Envelope, state workflow.State) map[string][]*connector.Object {
	assocs, err := p.crm.Associations(ctx, env.ObjectType, env.ObjectID)
	if err != nil {
		p.logger.Warn("association lookup failed",
			slog.String("event_id", env.EventID),
			slog.String("error", err.Error()))
		state.AppendError(fmt.Sprintf("association lookup failed: %v", err))
		return nil
	}

	kinds := map[string]string{
		"companies": envelope.ObjectCompany,
		"contacts":  envelope.ObjectContact,
		"deals":     envelope.ObjectDeal,
	}
	resolved := make(map[string][]*connector.Object, len(assocs))
	for kind, list := range assocs {
		objectType, known := kinds[kind]
		if !known {
			continue
		}
		for _, a := range list {
			obj, err := p.fetchObject(ctx, objectType, a.ID)
			if err != nil {
				state.AppendError(fmt.Sprintf("association %s/%s fetch failed: %v", kind, a.ID, err))
				continue
			}
			resolved[kind] = append(resolved[kind], obj)
		}
	}
	return resolved
}

// toMap round-trips a value through JSON so graph state only ever holds
// canonical JSON types.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Drain empties the backlog and returns how many envelopes it picked up.
// Processing happens in the background with bounded concurrency; the
// idempotency guard collapses envelopes whose occurrence already ran.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	var envs []*envelope.Envelope
	for {
		env, err := p.backlog.Pop(ctx)
		if errors.Is(err, flowops.ErrQueueEmpty) {
			break
		}
		if err != nil {
			return len(envs), fmt.Errorf("ingest: drain backlog: %w", err)
		}
		envs = append(envs, env)
	}
	if len(envs) == 0 {
		return 0, nil
	}

	// Detached from the request context: the HTTP response returns the
	// count while processing continues.
	bg := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, env := range envs {
		g.Go(func() error {
			out := p.Process(bg, env)
			if out.Status == StatusError {
				p.logger.Warn("drained event failed",
					slog.String("event_id", env.EventID),
					slog.String("reason", out.Reason))
			}
			return nil
		})
	}
	count := len(envs)
	go func() {
		_ = g.Wait()
		p.logger.Info("backlog drain finished", slog.Int("count", count))
	}()
	return count, nil
}
