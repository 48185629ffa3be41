package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aiwf/engine/common/logger"
	"github.com/aiwf/engine/common/models"
	"github.com/aiwf/engine/common/queue"
	"github.com/aiwf/engine/common/ratelimit"
	"github.com/aiwf/engine/common/repository"
)

// RunService owns the run lifecycle at the API boundary: create and
// enqueue, read back status and logs, cancel.
type RunService struct {
	runs      *repository.RunRepository
	workflows *repository.WorkflowRepository
	logs      *repository.RunLogRepository
	queue     queue.Queue
	limiter   *ratelimit.Limiter
	logger    *logger.Logger
}

// NewRunService builds the run service. limiter may be nil, which
// disables run-start throttling.
func NewRunService(runs *repository.RunRepository, workflows *repository.WorkflowRepository, logs *repository.RunLogRepository, q queue.Queue, limiter *ratelimit.Limiter, log *logger.Logger) *RunService {
	return &RunService{
		runs:      runs,
		workflows: workflows,
		logs:      logs,
		queue:     q,
		limiter:   limiter,
		logger:    log,
	}
}

// Start creates a queued run for the workflow and publishes run_start.
func (s *RunService) Start(ctx context.Context, ownerID, workflowID string, inputs map[string]any) (*models.Run, error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if wf.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	if err := s.checkRateLimits(ctx, ownerID, wf); err != nil {
		return nil, err
	}

	if inputs == nil {
		inputs = map[string]any{}
	}
	run := &models.Run{
		RunID:      uuid.NewString(),
		WorkflowID: workflowID,
		OwnerID:    ownerID,
		Status:     models.StatusQueued,
		NodeStatus: map[string]models.NodeStatus{},
		Inputs:     inputs,
		Outputs:    map[string]map[string]any{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	body, err := queue.Encode(queue.ActorRunStart, queue.RunStartArgs{RunID: run.RunID})
	if err != nil {
		return nil, err
	}
	if err := s.queue.Publish(ctx, queue.QueueDefault, body); err != nil {
		return nil, fmt.Errorf("failed to enqueue run start: %w", err)
	}

	s.logger.Info("run enqueued", "run_id", run.RunID, "workflow_id", workflowID)
	return run, nil
}

// checkRateLimits enforces the service-wide budget, then the caller's
// budget for the workflow's tier. A Redis failure degrades open: the
// budget check should not block run starts.
func (s *RunService) checkRateLimits(ctx context.Context, ownerID string, wf *models.Workflow) error {
	if s.limiter == nil {
		return nil
	}

	global, err := s.limiter.CheckGlobal(ctx)
	if err != nil {
		s.logger.Error("global rate limit check failed, allowing run", "error", err)
	} else if !global.Allowed {
		return &RateLimitError{RetryAfterSeconds: global.RetryAfterSeconds}
	}

	tier := ratelimit.ClassifyWorkflow(wf.Nodes)
	res, err := s.limiter.CheckRunStart(ctx, ownerID, tier)
	if err != nil {
		s.logger.Error("rate limit check failed, allowing run", "error", err)
	} else if !res.Allowed {
		return &RateLimitError{RetryAfterSeconds: res.RetryAfterSeconds}
	}
	return nil
}

// Get returns a run owned by the caller.
func (s *RunService) Get(ctx context.Context, ownerID, runID string) (*models.Run, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if run.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return run, nil
}

// List returns the caller's runs with optional workflow and status
// filters.
func (s *RunService) List(ctx context.Context, ownerID, workflowID string, status models.RunStatus, skip, limit int) ([]*models.Run, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	return s.runs.List(ctx, ownerID, workflowID, status, skip, limit)
}

// Cancel moves a non-terminal run to cancelled. In-flight node tasks are
// not interrupted; their completion signals are absorbed by the
// coordinator once the run is terminal.
func (s *RunService) Cancel(ctx context.Context, ownerID, runID string) error {
	run, err := s.Get(ctx, ownerID, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: cannot cancel run with status %s", ErrConflict, run.Status)
	}

	reason := "cancelled by user"
	cancelled, err := s.runs.Finish(ctx, runID, models.StatusCancelled, &reason)
	if err != nil {
		return err
	}
	if !cancelled {
		// Lost the race against a concurrent terminal transition.
		return fmt.Errorf("%w: run already finished", ErrConflict)
	}

	if err := s.logs.Append(ctx, runID, nil, models.LogWarn, "run cancelled", nil); err != nil {
		s.logger.Error("failed to append cancellation log", "run_id", runID, "error", err)
	}
	s.logger.Info("run cancelled", "run_id", runID)
	return nil
}

// Logs returns run log entries after the given cursor.
func (s *RunService) Logs(ctx context.Context, ownerID, runID string, after int64, limit int) ([]*models.RunLog, error) {
	if _, err := s.Get(ctx, ownerID, runID); err != nil {
		return nil, err
	}
	return s.logs.ListAfter(ctx, runID, after, limit)
}
