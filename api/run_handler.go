package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	flowops "github.com/Aparnap2/internal-flow-ops"
	"github.com/Aparnap2/internal-flow-ops/id"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// ListRunsRequest filters the run listing.
type ListRunsRequest struct {
	Status string `query:"status" json:"status,omitempty"`
	Limit  int    `query:"limit" json:"limit,omitempty"`
}

// ApprovalRequest is the decision delivered to a suspended run.
type ApprovalRequest struct {
	Approved   bool   `json:"approved"`
	ApprovedBy string `json:"approved_by,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

func (a *API) listRuns(ctx forge.Context, req *ListRunsRequest) ([]*workflow.Run, error) {
	var status workflow.RunStatus
	if req.Status != "" {
		status = workflow.RunStatus(req.Status)
	}

	runs, err := a.store.ListRuns(ctx.Context(), workflow.ListOpts{
		Status: status,
		Limit:  defaultLimit(req.Limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return runs, ctx.JSON(http.StatusOK, runs)
}

func (a *API) getRun(ctx forge.Context) error {
	runID, err := id.ParseRunID(ctx.Param("runId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid run ID: %v", err))
	}

	run, err := a.store.GetRun(ctx.Context(), runID)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, run)
}

func (a *API) listCheckpoints(ctx forge.Context) error {
	runID, err := id.ParseRunID(ctx.Param("runId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid run ID: %v", err))
	}

	if _, err := a.store.GetRun(ctx.Context(), runID); err != nil {
		return mapStoreError(err)
	}
	cps, err := a.store.ListCheckpoints(ctx.Context(), runID)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, cps)
}

func (a *API) approveRun(ctx forge.Context, req *ApprovalRequest) (*workflow.Run, error) {
	runID, err := id.ParseRunID(ctx.Param("runId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid run ID: %v", err))
	}

	run, err := a.engine.Resume(ctx.Context(), runID, workflow.Approval{
		Approved:   req.Approved,
		ApprovedBy: req.ApprovedBy,
		Comment:    req.Comment,
		DecidedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	switch {
	case errors.Is(err, flowops.ErrRunNotSuspended), errors.Is(err, flowops.ErrRunTerminal):
		return nil, ctx.Status(http.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	case err != nil:
		return nil, mapStoreError(err)
	}

	return run, ctx.JSON(http.StatusOK, run)
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

// mapStoreError converts sentinel errors to forge HTTP errors.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, flowops.ErrRunNotFound) ||
		errors.Is(err, flowops.ErrCheckpointNotFound) ||
		errors.Is(err, flowops.ErrGraphNotFound) {
		return forge.NotFound(err.Error())
	}
	return err
}
