package api

import (
	"log/slog"
	"net/http"

	"github.com/xraph/forge"

	"github.com/Aparnap2/internal-flow-ops/envelope"
	"github.com/Aparnap2/internal-flow-ops/ingest"
	"github.com/Aparnap2/internal-flow-ops/kv"
)

// WebhookResponse reports what happened to each event in a delivery.
type WebhookResponse struct {
	Received int              `json:"received"`
	Outcomes []ingest.Outcome `json:"outcomes"`
}

// DrainResponse reports how many envelopes a drain picked up.
type DrainResponse struct {
	Drained int `json:"drained"`
}

// ErrorResponse is the body of non-2xx responses written by handlers.
type ErrorResponse struct {
	Error string `json:"error"`
}

// receiveEvents accepts a webhook delivery. The response is 200 whenever
// the body parses, even if every event inside failed: the sender retries
// whole batches, and per-event problems are reported in the outcomes.
func (a *API) receiveEvents(ctx forge.Context) error {
	if a.rateLimit > 0 {
		allowed, err := kv.Allow(ctx.Context(), a.limiter, "webhook_events", a.rateLimit, a.rateWindow)
		if err != nil {
			a.logger.Warn("rate limit check failed", slog.String("error", err.Error()))
		} else if !allowed {
			return ctx.Status(http.StatusTooManyRequests).JSON(ErrorResponse{Error: "rate limit exceeded"})
		}
	}

	var raws []envelope.RawEvent
	if err := ctx.Bind(&raws); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	outcomes := a.processor.ProcessBatch(ctx.Context(), raws)
	return ctx.JSON(http.StatusOK, WebhookResponse{
		Received: len(raws),
		Outcomes: outcomes,
	})
}

func (a *API) processQueue(ctx forge.Context) error {
	count, err := a.processor.Drain(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, DrainResponse{Drained: count})
}
