// Package api exposes the HTTP surface: the webhook receiver, the backlog
// worker endpoint, and run inspection and approval routes.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/Aparnap2/internal-flow-ops/engine"
	"github.com/Aparnap2/internal-flow-ops/ingest"
	"github.com/Aparnap2/internal-flow-ops/kv"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// Option configures the API.
type Option func(*API)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithRateLimit caps webhook batches per window using the shared store.
// A zero limit disables limiting.
func WithRateLimit(store kv.Store, limit int64, window time.Duration) Option {
	return func(a *API) {
		a.limiter = store
		a.rateLimit = limit
		a.rateWindow = window
	}
}

// API wires the Forge-style HTTP handlers together.
type API struct {
	engine    *engine.Engine
	store     workflow.Store
	processor *ingest.Processor
	logger    *slog.Logger

	limiter    kv.Store
	rateLimit  int64
	rateWindow time.Duration

	router forge.Router
}

// New creates an API over the engine, the run store, and the ingestion
// processor.
func New(eng *engine.Engine, store workflow.Store, processor *ingest.Processor, opts ...Option) *API {
	a := &API{
		engine:    eng,
		store:     store,
		processor: processor,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	a.RegisterRoutes(a.router)
	return a.router.Handler()
}

// RegisterRoutes registers all routes into the given Forge router with full
// OpenAPI metadata.
func (a *API) RegisterRoutes(router forge.Router) {
	a.registerWebhookRoutes(router)
	a.registerWorkerRoutes(router)
	a.registerRunRoutes(router)
}

func (a *API) registerWebhookRoutes(router forge.Router) {
	g := router.Group("/webhooks", forge.WithGroupTags("webhooks"))

	_ = g.POST("/events", a.receiveEvents,
		forge.WithSummary("Receive CRM events"),
		forge.WithDescription("Accepts a batch of CRM webhook events and triggers the bound workflows. Events are processed independently; the batch always returns 200 with a per-event outcome."),
		forge.WithOperationID("receiveEvents"),
		forge.WithResponseSchema(http.StatusOK, "Per-event outcomes", WebhookResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerWorkerRoutes(router forge.Router) {
	g := router.Group("/worker", forge.WithGroupTags("worker"))

	_ = g.POST("/process-queue", a.processQueue,
		forge.WithSummary("Drain the event backlog"),
		forge.WithDescription("Pops every backlogged envelope and reprocesses it in the background. Occurrences that already ran are collapsed by the idempotency guard."),
		forge.WithOperationID("processQueue"),
		forge.WithResponseSchema(http.StatusOK, "Drain result", DrainResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerRunRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("runs"))

	_ = g.GET("/runs", a.listRuns,
		forge.WithSummary("List workflow runs"),
		forge.WithDescription("Returns workflow runs filtered by status."),
		forge.WithOperationID("listRuns"),
		forge.WithRequestSchema(ListRunsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Workflow runs", []*workflow.Run{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/runs/:runId", a.getRun,
		forge.WithSummary("Get workflow run"),
		forge.WithDescription("Returns details of a specific workflow run."),
		forge.WithOperationID("getRun"),
		forge.WithResponseSchema(http.StatusOK, "Workflow run details", &workflow.Run{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/runs/:runId/checkpoints", a.listCheckpoints,
		forge.WithSummary("List run checkpoints"),
		forge.WithDescription("Returns the checkpoint trail of a run in sequence order."),
		forge.WithOperationID("listRunCheckpoints"),
		forge.WithResponseSchema(http.StatusOK, "Checkpoints", []*workflow.Checkpoint{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/runs/:runId/approval", a.approveRun,
		forge.WithSummary("Decide a pending approval"),
		forge.WithDescription("Delivers an approval decision to a run suspended at an approval gate and resumes it."),
		forge.WithOperationID("decideRunApproval"),
		forge.WithRequestSchema(ApprovalRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Resumed run", &workflow.Run{}),
		forge.WithErrorResponses(),
	)
}
