package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aiwf/engine/common/models"
	"github.com/aiwf/engine/common/queue"
)

// Error classes of the node handler taxonomy. Config and input errors are
// permanent: the broker must not retry them. Everything else is treated as
// transient and retried up to the broker's cap.
var (
	ErrConfig = errors.New("configuration error")
	ErrInput  = errors.New("input error")
)

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func inputErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}

// permanent reports whether the error should fail the node immediately
// instead of being retried.
func permanent(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrInput)
}

// Task is one node execution request.
type Task struct {
	RunID  string
	NodeID string
	Config map[string]any
	Inputs map[string]any
}

// Handler executes one node kind. Handlers are stateless between
// invocations; everything they observe comes from the task and everything
// they produce goes into the returned outputs, run logs, or documents.
type Handler interface {
	Kind() NodeKind
	Execute(ctx context.Context, task *Task) (map[string]any, error)
}

// Logger is the logging interface handlers use.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// RunStore is the slice of run persistence the framework needs.
type RunStore interface {
	GetByID(ctx context.Context, runID string) (*models.Run, error)
	SetNodeStatus(ctx context.Context, runID, nodeID string, status models.NodeStatus) (bool, error)
}

// LogStore appends to the per-run log stream.
type LogStore interface {
	Append(ctx context.Context, runID string, nodeID *string, level, message string, payload map[string]any) error
}

// DocumentStore persists and resolves ingested documents and uploaded
// file metadata.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
	GetUploadedFile(ctx context.Context, fileID string) (*models.UploadedFile, error)
}

// Runner owns the handler registry and drives the common execution shape
// of every node: starting log, execute, completed log, completion signal.
// Unrecoverable errors fail the node; transient errors are surfaced to the
// broker for redelivery.
type Runner struct {
	registry map[NodeKind]Handler
	runs     RunStore
	logs     LogStore
	queue    queue.Queue
	logger   Logger
}

// NewRunner creates a runner with the given handlers registered.
func NewRunner(runs RunStore, logs LogStore, q queue.Queue, logger Logger, handlers ...Handler) *Runner {
	registry := make(map[NodeKind]Handler, len(handlers))
	for _, h := range handlers {
		registry[h.Kind()] = h
	}
	return &Runner{
		registry: registry,
		runs:     runs,
		logs:     logs,
		queue:    q,
		logger:   logger,
	}
}

// HandleDelivery is the queue handler for the ingest, ai and actions
// queues. Returning an error leaves the message pending for redelivery.
func (r *Runner) HandleDelivery(ctx context.Context, d queue.Delivery) error {
	var env queue.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		r.logger.Error("failed to parse task envelope", "error", err)
		return nil // malformed, not retryable
	}

	kind, err := ParseKind(env.Actor)
	if err != nil {
		r.logger.Error("task for unknown actor", "actor", env.Actor)
		return nil
	}

	var args queue.NodeTaskArgs
	if err := env.DecodeArgs(&args); err != nil {
		r.logger.Error("failed to decode task args", "actor", env.Actor, "error", err)
		return nil
	}

	return r.runTask(ctx, kind, &Task{
		RunID:  args.RunID,
		NodeID: args.NodeID,
		Config: args.Config,
		Inputs: args.Inputs,
	}, d)
}

func (r *Runner) runTask(ctx context.Context, kind NodeKind, task *Task, d queue.Delivery) error {
	log := r.logger
	handler, ok := r.registry[kind]
	if !ok {
		log.Error("no handler registered", "kind", kind, "node_id", task.NodeID)
		return nil
	}

	// Cancellation is cooperative: a task for a terminal run is absorbed
	// without executing. Mid-flight tasks run to completion and their
	// signals are ignored by the coordinator.
	run, err := r.runs.GetByID(ctx, task.RunID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", task.RunID, err)
	}
	if run.Status.Terminal() {
		log.Info("run is terminal, skipping node",
			"run_id", task.RunID,
			"node_id", task.NodeID,
			"status", run.Status)
		return nil
	}

	r.appendLog(ctx, task, models.LogInfo, fmt.Sprintf("starting %s", kind), nil)

	outputs, err := r.execute(ctx, handler, task)
	if err != nil {
		if permanent(err) || d.Final() {
			return r.failNode(ctx, kind, task, err)
		}
		log.Warn("node execution failed, will retry",
			"run_id", task.RunID,
			"node_id", task.NodeID,
			"attempt", d.Attempts,
			"error", err)
		return err
	}

	r.appendLog(ctx, task, models.LogInfo, fmt.Sprintf("%s completed", kind), map[string]any{
		"output_keys": outputKeys(outputs),
	})

	return r.signalCompletion(ctx, task, queue.CompletionArgs{
		RunID:   task.RunID,
		NodeID:  task.NodeID,
		Status:  string(models.NodeCompleted),
		Outputs: outputs,
	})
}

// execute invokes the handler with panic containment: a panicking handler
// kills the node attempt, not the worker.
func (r *Runner) execute(ctx context.Context, handler Handler, task *Task) (outputs map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return handler.Execute(ctx, task)
}

// failNode marks the node failed and signals the coordinator, which fails
// the run. Node-local errors kill the node, never the worker.
func (r *Runner) failNode(ctx context.Context, kind NodeKind, task *Task, cause error) error {
	r.logger.Error("node failed",
		"run_id", task.RunID,
		"node_id", task.NodeID,
		"kind", kind,
		"error", cause)

	r.appendLog(ctx, task, models.LogError, fmt.Sprintf("%s failed: %v", kind, cause), nil)

	if _, err := r.runs.SetNodeStatus(ctx, task.RunID, task.NodeID, models.NodeFailed); err != nil {
		return fmt.Errorf("failed to mark node failed: %w", err)
	}

	return r.signalCompletion(ctx, task, queue.CompletionArgs{
		RunID:  task.RunID,
		NodeID: task.NodeID,
		Status: string(models.NodeFailed),
		Error:  cause.Error(),
	})
}

func (r *Runner) signalCompletion(ctx context.Context, task *Task, args queue.CompletionArgs) error {
	body, err := queue.Encode(queue.ActorNodeCompleted, args)
	if err != nil {
		return err
	}
	if err := r.queue.Publish(ctx, queue.QueueDefault, body); err != nil {
		return fmt.Errorf("failed to publish completion signal: %w", err)
	}
	return nil
}

func (r *Runner) appendLog(ctx context.Context, task *Task, level, message string, payload map[string]any) {
	if err := r.logs.Append(ctx, task.RunID, &task.NodeID, level, message, payload); err != nil {
		r.logger.Error("failed to append run log",
			"run_id", task.RunID,
			"node_id", task.NodeID,
			"error", err)
	}
}

func outputKeys(outputs map[string]any) []string {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	return keys
}

// Input helpers shared by handlers.

// stringInput returns the first non-empty string among the given input keys.
func stringInput(inputs map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := inputs[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// stringConfig returns a config value as a string, "" when absent.
func stringConfig(config map[string]any, key string) string {
	v, _ := config[key].(string)
	return v
}

// intConfig returns a config value as an int, falling back to def. JSON
// decoding produces float64 for numbers.
func intConfig(config map[string]any, key string, def int) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
