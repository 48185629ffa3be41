// Package coordinator drives DAG progression. It consumes node_completed
// messages, records outputs exactly once, and enqueues every dependent
// whose dependencies are all satisfied. When the last node completes it
// finishes the run.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aiwf/engine/cmd/worker/handlers"
	"github.com/aiwf/engine/cmd/worker/orchestrator"
	"github.com/aiwf/engine/common/models"
	"github.com/aiwf/engine/common/queue"
)

// RunStore is the run persistence the coordinator needs.
type RunStore interface {
	GetByID(ctx context.Context, runID string) (*models.Run, error)
	WriteOutputs(ctx context.Context, runID, nodeID string, outputs map[string]any) (bool, error)
	SetNodeStatus(ctx context.Context, runID, nodeID string, status models.NodeStatus) (bool, error)
	ClaimNode(ctx context.Context, runID, nodeID string) (bool, error)
	Finish(ctx context.Context, runID string, status models.RunStatus, errMsg *string) (bool, error)
}

// WorkflowStore resolves workflow definitions for node configs.
type WorkflowStore interface {
	GetByID(ctx context.Context, workflowID string) (*models.Workflow, error)
}

// LogStore appends to the per-run log stream.
type LogStore interface {
	Append(ctx context.Context, runID string, nodeID *string, level, message string, payload map[string]any) error
}

// Logger is the logging interface the coordinator uses.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Coordinator handles node_completed messages.
type Coordinator struct {
	runs      RunStore
	workflows WorkflowStore
	logs      LogStore
	queue     queue.Queue
	logger    Logger
}

func New(runs RunStore, workflows WorkflowStore, logs LogStore, q queue.Queue, logger Logger) *Coordinator {
	return &Coordinator{
		runs:      runs,
		workflows: workflows,
		logs:      logs,
		queue:     q,
		logger:    logger,
	}
}

// HandleNodeCompleted processes one completion signal. The whole flow is
// idempotent under redelivery: outputs are written once, node status only
// moves forward, fan-out claims each dependent at most once, and terminal
// run status is sticky.
func (c *Coordinator) HandleNodeCompleted(ctx context.Context, d queue.Delivery) error {
	var env queue.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		c.logger.Error("failed to parse node_completed envelope", "error", err)
		return nil
	}
	var args queue.CompletionArgs
	if err := env.DecodeArgs(&args); err != nil {
		c.logger.Error("failed to decode node_completed args", "error", err)
		return nil
	}

	run, err := c.runs.GetByID(ctx, args.RunID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", args.RunID, err)
	}

	// Completions arriving after the run reached a terminal state are
	// absorbed. This is how a cancelled run swallows stragglers.
	if run.Status.Terminal() {
		c.logger.Info("completion for terminal run ignored",
			"run_id", args.RunID,
			"node_id", args.NodeID,
			"run_status", run.Status)
		return nil
	}
	if run.Plan == nil {
		return fmt.Errorf("run %s has no execution plan", args.RunID)
	}

	if args.Status == string(models.NodeFailed) {
		return c.failRun(ctx, run, args)
	}

	firstWrite, err := c.runs.WriteOutputs(ctx, args.RunID, args.NodeID, args.Outputs)
	if err != nil {
		return fmt.Errorf("failed to write outputs for node %s: %w", args.NodeID, err)
	}
	if !firstWrite {
		c.logger.Info("duplicate completion, outputs already recorded",
			"run_id", args.RunID,
			"node_id", args.NodeID)
	}

	if _, err := c.runs.SetNodeStatus(ctx, args.RunID, args.NodeID, models.NodeCompleted); err != nil {
		return fmt.Errorf("failed to mark node %s completed: %w", args.NodeID, err)
	}

	// Reload for a view that includes this completion.
	run, err = c.runs.GetByID(ctx, args.RunID)
	if err != nil {
		return fmt.Errorf("failed to reload run %s: %w", args.RunID, err)
	}

	if allCompleted(run) {
		finished, err := c.runs.Finish(ctx, run.RunID, models.StatusSucceeded, nil)
		if err != nil {
			return fmt.Errorf("failed to finish run %s: %w", run.RunID, err)
		}
		if finished {
			c.appendLog(ctx, run.RunID, models.LogInfo, "run succeeded", nil)
			c.logger.Info("run succeeded", "run_id", run.RunID)
		}
		return nil
	}

	return c.fanOut(ctx, run, args.NodeID)
}

func (c *Coordinator) failRun(ctx context.Context, run *models.Run, args queue.CompletionArgs) error {
	errMsg := args.Error
	if errMsg == "" {
		errMsg = fmt.Sprintf("node %s failed", args.NodeID)
	}
	finished, err := c.runs.Finish(ctx, run.RunID, models.StatusFailed, &errMsg)
	if err != nil {
		return fmt.Errorf("failed to fail run %s: %w", run.RunID, err)
	}
	if finished {
		c.appendLog(ctx, run.RunID, models.LogError, fmt.Sprintf("run failed: %s", errMsg), map[string]any{
			"node_id": args.NodeID,
		})
		c.logger.Error("run failed",
			"run_id", run.RunID,
			"node_id", args.NodeID,
			"error", errMsg)
	}
	return nil
}

// fanOut enqueues every dependent of the completed node whose dependencies
// are all completed. The pending-to-running claim makes each dependent
// dispatch at most once even when two predecessors complete concurrently.
func (c *Coordinator) fanOut(ctx context.Context, run *models.Run, completedID string) error {
	workflow, err := c.workflows.GetByID(ctx, run.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", run.WorkflowID, err)
	}

	for _, depID := range run.Plan.Dependents[completedID] {
		if !ready(run, depID) {
			continue
		}
		node := workflow.NodeByID(depID)
		if node == nil {
			return fmt.Errorf("plan references unknown node %s", depID)
		}
		kind, err := handlers.ParseKind(node.Type)
		if err != nil {
			return err
		}

		claimed, err := c.runs.ClaimNode(ctx, run.RunID, depID)
		if err != nil {
			return fmt.Errorf("failed to claim node %s: %w", depID, err)
		}
		if !claimed {
			continue
		}

		body, err := queue.Encode(string(kind), queue.NodeTaskArgs{
			RunID:  run.RunID,
			NodeID: depID,
			Config: node.Config,
			Inputs: resolveInputs(run, workflow, depID, kind),
		})
		if err != nil {
			return err
		}
		if err := c.queue.Publish(ctx, kind.Queue(), body); err != nil {
			return fmt.Errorf("failed to enqueue node %s: %w", depID, err)
		}
	}
	return nil
}

// ready reports whether every dependency of the node is completed and the
// node itself has not been dispatched.
func ready(run *models.Run, nodeID string) bool {
	if run.NodeStatusOf(nodeID) != models.NodePending {
		return false
	}
	for _, dep := range run.Plan.Deps[nodeID] {
		if run.NodeStatusOf(dep) != models.NodeCompleted {
			return false
		}
	}
	return true
}

// resolveInputs builds a node's inputs from the run-scoped inputs plus its
// predecessors' outputs, merged in ascending predecessor id order so later
// ids win key collisions deterministically. Each predecessor's primary
// textual output is also surfaced under "content" so text flows between
// kinds whose output keys differ. The result is filtered to the keys the
// kind consumes.
func resolveInputs(run *models.Run, workflow *models.Workflow, nodeID string, kind handlers.NodeKind) map[string]any {
	merged := make(map[string]any, len(run.Inputs))
	for k, v := range run.Inputs {
		merged[k] = v
	}

	deps := append([]string(nil), run.Plan.Deps[nodeID]...)
	sort.Strings(deps)
	for _, dep := range deps {
		outputs := run.Outputs[dep]
		for k, v := range outputs {
			merged[k] = v
		}
		depNode := workflow.NodeByID(dep)
		if depNode == nil {
			continue
		}
		depKind, err := handlers.ParseKind(depNode.Type)
		if err != nil {
			continue
		}
		if key := depKind.ContentKey(); key != "" {
			if v, ok := outputs[key]; ok {
				merged["content"] = v
			}
		}
	}

	return orchestrator.FilterInputs(merged, kind.ConsumedInputs())
}

func allCompleted(run *models.Run) bool {
	for _, id := range run.Plan.Order {
		if run.NodeStatusOf(id) != models.NodeCompleted {
			return false
		}
	}
	return true
}

func (c *Coordinator) appendLog(ctx context.Context, runID, level, message string, payload map[string]any) {
	if err := c.logs.Append(ctx, runID, nil, level, message, payload); err != nil {
		c.logger.Error("failed to append run log", "run_id", runID, "error", err)
	}
}
