// Package orchestrator turns a queued run into dispatched node tasks. It
// consumes run_start messages, builds and persists the execution plan, and
// enqueues the frontier.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aiwf/engine/cmd/worker/handlers"
	"github.com/aiwf/engine/cmd/worker/plan"
	"github.com/aiwf/engine/common/models"
	"github.com/aiwf/engine/common/queue"
)

// RunStore is the run persistence the orchestrator needs.
type RunStore interface {
	GetByID(ctx context.Context, runID string) (*models.Run, error)
	MarkRunning(ctx context.Context, runID string, p *models.ExecutionPlan, nodeStatus map[string]models.NodeStatus) (bool, error)
	ClaimNode(ctx context.Context, runID, nodeID string) (bool, error)
	Finish(ctx context.Context, runID string, status models.RunStatus, errMsg *string) (bool, error)
}

// WorkflowStore resolves workflow definitions.
type WorkflowStore interface {
	GetByID(ctx context.Context, workflowID string) (*models.Workflow, error)
}

// LogStore appends to the per-run log stream.
type LogStore interface {
	Append(ctx context.Context, runID string, nodeID *string, level, message string, payload map[string]any) error
}

// Logger is the logging interface the orchestrator uses.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Orchestrator handles run_start messages.
type Orchestrator struct {
	runs      RunStore
	workflows WorkflowStore
	logs      LogStore
	queue     queue.Queue
	logger    Logger
}

func New(runs RunStore, workflows WorkflowStore, logs LogStore, q queue.Queue, logger Logger) *Orchestrator {
	return &Orchestrator{
		runs:      runs,
		workflows: workflows,
		logs:      logs,
		queue:     q,
		logger:    logger,
	}
}

// HandleRunStart starts a queued run: build the plan, persist it, enqueue
// the frontier. Redeliveries are absorbed by the running transition, which
// succeeds at most once per run.
func (o *Orchestrator) HandleRunStart(ctx context.Context, d queue.Delivery) error {
	var env queue.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		o.logger.Error("failed to parse run_start envelope", "error", err)
		return nil
	}
	var args queue.RunStartArgs
	if err := env.DecodeArgs(&args); err != nil {
		o.logger.Error("failed to decode run_start args", "error", err)
		return nil
	}

	run, err := o.runs.GetByID(ctx, args.RunID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", args.RunID, err)
	}
	if run.Status != models.StatusQueued {
		o.logger.Info("run already started, skipping", "run_id", run.RunID, "status", run.Status)
		return nil
	}

	workflow, err := o.workflows.GetByID(ctx, run.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", run.WorkflowID, err)
	}

	// A workflow with no nodes succeeds immediately.
	if len(workflow.Nodes) == 0 {
		if _, err := o.runs.Finish(ctx, run.RunID, models.StatusSucceeded, nil); err != nil {
			return fmt.Errorf("failed to finish empty run %s: %w", run.RunID, err)
		}
		o.appendLog(ctx, run.RunID, models.LogInfo, "workflow has no nodes, run succeeded", nil)
		return nil
	}

	// Validate node types before planning so a bad definition fails the
	// run with a precise error.
	for _, node := range workflow.Nodes {
		if _, err := handlers.ParseKind(node.Type); err != nil {
			return o.failRun(ctx, run.RunID, fmt.Sprintf("node %s: %v", node.ID, err))
		}
	}

	execPlan, err := plan.Build(workflow.Nodes, workflow.Edges)
	if err != nil {
		return o.failRun(ctx, run.RunID, err.Error())
	}

	nodeStatus := make(map[string]models.NodeStatus, len(execPlan.Order))
	for _, id := range execPlan.Order {
		nodeStatus[id] = models.NodePending
	}

	started, err := o.runs.MarkRunning(ctx, run.RunID, execPlan, nodeStatus)
	if err != nil {
		return fmt.Errorf("failed to mark run %s running: %w", run.RunID, err)
	}
	if !started {
		o.logger.Info("run start lost the transition race, skipping", "run_id", run.RunID)
		return nil
	}

	o.appendLog(ctx, run.RunID, models.LogInfo, "run started", map[string]any{
		"nodes": len(execPlan.Order),
	})

	for _, nodeID := range execPlan.Frontier() {
		if err := o.dispatch(ctx, run, workflow, nodeID); err != nil {
			return err
		}
	}

	o.logger.Info("run dispatched",
		"run_id", run.RunID,
		"workflow_id", run.WorkflowID,
		"frontier", len(execPlan.Frontier()))
	return nil
}

// dispatch claims a frontier node and enqueues its task. Losing the claim
// means another delivery already dispatched it.
func (o *Orchestrator) dispatch(ctx context.Context, run *models.Run, workflow *models.Workflow, nodeID string) error {
	node := workflow.NodeByID(nodeID)
	if node == nil {
		return fmt.Errorf("plan references unknown node %s", nodeID)
	}
	kind, err := handlers.ParseKind(node.Type)
	if err != nil {
		return err
	}

	claimed, err := o.runs.ClaimNode(ctx, run.RunID, nodeID)
	if err != nil {
		return fmt.Errorf("failed to claim node %s: %w", nodeID, err)
	}
	if !claimed {
		return nil
	}

	body, err := queue.Encode(string(kind), queue.NodeTaskArgs{
		RunID:  run.RunID,
		NodeID: nodeID,
		Config: node.Config,
		Inputs: FilterInputs(run.Inputs, kind.ConsumedInputs()),
	})
	if err != nil {
		return err
	}
	if err := o.queue.Publish(ctx, kind.Queue(), body); err != nil {
		return fmt.Errorf("failed to enqueue node %s: %w", nodeID, err)
	}
	return nil
}

func (o *Orchestrator) failRun(ctx context.Context, runID, reason string) error {
	o.logger.Error("run failed before dispatch", "run_id", runID, "error", reason)
	o.appendLog(ctx, runID, models.LogError, reason, nil)
	if _, err := o.runs.Finish(ctx, runID, models.StatusFailed, &reason); err != nil {
		return fmt.Errorf("failed to fail run %s: %w", runID, err)
	}
	return nil
}

func (o *Orchestrator) appendLog(ctx context.Context, runID, level, message string, payload map[string]any) {
	if err := o.logs.Append(ctx, runID, nil, level, message, payload); err != nil {
		o.logger.Error("failed to append run log", "run_id", runID, "error", err)
	}
}

// FilterInputs restricts run-scoped inputs to the keys a node kind
// declares it consumes.
func FilterInputs(inputs map[string]any, keys []string) map[string]any {
	filtered := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := inputs[k]; ok {
			filtered[k] = v
		}
	}
	return filtered
}
