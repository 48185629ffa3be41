package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiwf/engine/cmd/worker/plan"
	"github.com/aiwf/engine/common/models"
	"github.com/aiwf/engine/common/queue"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}

// memRunStore mirrors the repository's compare-and-set semantics in
// memory: outputs written once, node status monotonic, terminal run
// status sticky.
type memRunStore struct {
	mu  sync.Mutex
	run *models.Run
}

func (s *memRunStore) GetByID(_ context.Context, runID string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run.RunID != runID {
		return nil, errors.New("run not found")
	}
	clone := *s.run
	return &clone, nil
}

func (s *memRunStore) WriteOutputs(_ context.Context, _, nodeID string, outputs map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.run.Outputs[nodeID]; exists {
		return false, nil
	}
	s.run.Outputs[nodeID] = outputs
	return true, nil
}

func (s *memRunStore) SetNodeStatus(_ context.Context, _, nodeID string, status models.NodeStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.run.NodeStatus[nodeID]
	if current == models.NodeCompleted || current == models.NodeFailed {
		return false, nil
	}
	s.run.NodeStatus[nodeID] = status
	return true, nil
}

func (s *memRunStore) ClaimNode(_ context.Context, _, nodeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run.Status != models.StatusRunning {
		return false, nil
	}
	if status, ok := s.run.NodeStatus[nodeID]; ok && status != models.NodePending {
		return false, nil
	}
	s.run.NodeStatus[nodeID] = models.NodeRunning
	return true, nil
}

func (s *memRunStore) Finish(_ context.Context, _ string, status models.RunStatus, errMsg *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run.Status.Terminal() {
		return false, nil
	}
	s.run.Status = status
	s.run.Error = errMsg
	return true, nil
}

type memWorkflowStore struct {
	wf *models.Workflow
}

func (s *memWorkflowStore) GetByID(context.Context, string) (*models.Workflow, error) {
	return s.wf, nil
}

type nopLogStore struct{}

func (nopLogStore) Append(context.Context, string, *string, string, string, map[string]any) error {
	return nil
}

type published struct {
	Queue string
	Args  queue.NodeTaskArgs
}

type captureQueue struct {
	mu    sync.Mutex
	tasks []published
}

func (q *captureQueue) Publish(_ context.Context, queueName string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	var env queue.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	var args queue.NodeTaskArgs
	if err := env.DecodeArgs(&args); err != nil {
		return err
	}
	q.tasks = append(q.tasks, published{queueName, args})
	return nil
}

func (q *captureQueue) Subscribe(context.Context, string, int, queue.Handler) error { return nil }
func (q *captureQueue) Close() error                                               { return nil }

func (q *captureQueue) taskFor(nodeID string) (published, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.tasks {
		if p.Args.NodeID == nodeID {
			return p, true
		}
	}
	return published{}, false
}

func (q *captureQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func buildFixture(t *testing.T, wf *models.Workflow, inputs map[string]any) (*Coordinator, *memRunStore, *captureQueue) {
	t.Helper()
	execPlan, err := plan.Build(wf.Nodes, wf.Edges)
	require.NoError(t, err)

	nodeStatus := make(map[string]models.NodeStatus)
	for _, id := range execPlan.Order {
		nodeStatus[id] = models.NodePending
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	runs := &memRunStore{run: &models.Run{
		RunID:      "r1",
		WorkflowID: wf.WorkflowID,
		Status:     models.StatusRunning,
		NodeStatus: nodeStatus,
		Inputs:     inputs,
		Outputs:    map[string]map[string]any{},
		Plan:       execPlan,
	}}
	q := &captureQueue{}
	coord := New(runs, &memWorkflowStore{wf: wf}, nopLogStore{}, q, nopLogger{})
	return coord, runs, q
}

func completion(t *testing.T, nodeID string, outputs map[string]any) queue.Delivery {
	t.Helper()
	body, err := queue.Encode(queue.ActorNodeCompleted, queue.CompletionArgs{
		RunID:   "r1",
		NodeID:  nodeID,
		Status:  string(models.NodeCompleted),
		Outputs: outputs,
	})
	require.NoError(t, err)
	return queue.Delivery{Body: body, Attempts: 1, MaxAttempts: 3}
}

func failure(t *testing.T, nodeID, errMsg string) queue.Delivery {
	t.Helper()
	body, err := queue.Encode(queue.ActorNodeCompleted, queue.CompletionArgs{
		RunID:  "r1",
		NodeID: nodeID,
		Status: string(models.NodeFailed),
		Error:  errMsg,
	})
	require.NoError(t, err)
	return queue.Delivery{Body: body, Attempts: 1, MaxAttempts: 3}
}

func chainWorkflow() *models.Workflow {
	return &models.Workflow{
		WorkflowID: "wf1",
		Nodes: []models.Node{
			{ID: "a", Type: "ingest.webhook", Config: map[string]any{}},
			{ID: "b", Type: "text.transform", Config: map[string]any{"operation": "uppercase"}},
			{ID: "c", Type: "act.slack", Config: map[string]any{"channel": "#t"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "c"},
		},
	}
}

func TestCompletion_EnqueuesReadyDependent(t *testing.T) {
	coord, runs, q := buildFixture(t, chainWorkflow(), nil)
	runs.run.NodeStatus["a"] = models.NodeRunning

	d := completion(t, "a", map[string]any{"document_id": "d1", "content": "hello"})
	require.NoError(t, coord.HandleNodeCompleted(context.Background(), d))

	assert.Equal(t, models.NodeCompleted, runs.run.NodeStatus["a"])
	assert.Equal(t, map[string]any{"document_id": "d1", "content": "hello"}, runs.run.Outputs["a"])

	task, ok := q.taskFor("b")
	require.True(t, ok)
	assert.Equal(t, queue.QueueAI, task.Queue)
	assert.Equal(t, "hello", task.Args.Inputs["content"])
	assert.Equal(t, models.NodeRunning, runs.run.NodeStatus["b"])
}

func TestCompletion_TransformOutputFlowsAsContent(t *testing.T) {
	coord, runs, q := buildFixture(t, chainWorkflow(), nil)
	runs.run.NodeStatus["a"] = models.NodeCompleted
	runs.run.Outputs["a"] = map[string]any{"content": "hello"}
	runs.run.NodeStatus["b"] = models.NodeRunning

	d := completion(t, "b", map[string]any{"transformed_text": "HELLO", "operation": "uppercase"})
	require.NoError(t, coord.HandleNodeCompleted(context.Background(), d))

	task, ok := q.taskFor("c")
	require.True(t, ok)
	assert.Equal(t, queue.QueueActions, task.Queue)
	assert.Equal(t, "HELLO", task.Args.Inputs["content"])
}

func TestCompletion_DuplicateDoesNotReEnqueue(t *testing.T) {
	coord, runs, q := buildFixture(t, chainWorkflow(), nil)
	runs.run.NodeStatus["a"] = models.NodeRunning

	d := completion(t, "a", map[string]any{"content": "hello"})
	require.NoError(t, coord.HandleNodeCompleted(context.Background(), d))
	require.NoError(t, coord.HandleNodeCompleted(context.Background(), d))

	assert.Equal(t, 1, q.count())
	// First write wins; a duplicate with different outputs is ignored.
	dup := completion(t, "a", map[string]any{"content": "other"})
	require.NoError(t, coord.HandleNodeCompleted(context.Background(), dup))
	assert.Equal(t, map[string]any{"content": "hello"}, runs.run.Outputs["a"])
}

func TestCompletion_LastNodeSucceedsRun(t *testing.T) {
	coord, runs, _ := buildFixture(t, chainWorkflow(), nil)
	runs.run.NodeStatus["a"] = models.NodeCompleted
	runs.run.NodeStatus["b"] = models.NodeCompleted
	runs.run.Outputs["a"] = map[string]any{"content": "x"}
	runs.run.Outputs["b"] = map[string]any{"transformed_text": "X"}
	runs.run.NodeStatus["c"] = models.NodeRunning

	d := completion(t, "c", map[string]any{"timestamp": "1", "channel": "#t", "message": "X"})
	require.NoError(t, coord.HandleNodeCompleted(context.Background(), d))

	assert.Equal(t, models.StatusSucceeded, runs.run.Status)
}

func TestCompletion_FailureFailsRun(t *testing.T) {
	coord, runs, q := buildFixture(t, chainWorkflow(), nil)
	runs.run.NodeStatus["a"] = models.NodeRunning

	d := failure(t, "a", "no webhook data provided")
	require.NoError(t, coord.HandleNodeCompleted(context.Background(), d))

	assert.Equal(t, models.StatusFailed, runs.run.Status)
	require.NotNil(t, runs.run.Error)
	assert.Equal(t, "no webhook data provided", *runs.run.Error)
	assert.Zero(t, q.count())
	// Dependents were never dispatched.
	assert.Equal(t, models.NodePending, runs.run.NodeStatus["b"])
}

func TestCompletion_TerminalRunAbsorbsStragglers(t *testing.T) {
	coord, runs, q := buildFixture(t, chainWorkflow(), nil)
	runs.run.Status = models.StatusCancelled
	runs.run.NodeStatus["a"] = models.NodeRunning

	d := completion(t, "a", map[string]any{"content": "late"})
	require.NoError(t, coord.HandleNodeCompleted(context.Background(), d))

	assert.Equal(t, models.StatusCancelled, runs.run.Status)
	assert.Empty(t, runs.run.Outputs)
	assert.Zero(t, q.count())
}

func diamondWorkflow() *models.Workflow {
	return &models.Workflow{
		WorkflowID: "wf2",
		Nodes: []models.Node{
			{ID: "a", Type: "ingest.webhook", Config: map[string]any{}},
			{ID: "b", Type: "text.transform", Config: map[string]any{"operation": "uppercase"}},
			{ID: "c", Type: "text.transform", Config: map[string]any{"operation": "lowercase"}},
			{ID: "d", Type: "act.email", Config: map[string]any{"to": "x@y", "subject": "s"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "c"},
			{ID: "e3", Source: "b", Target: "d"},
			{ID: "e4", Source: "c", Target: "d"},
		},
	}
}

func TestDiamond_JoinDispatchesOnceWithDeterministicInputs(t *testing.T) {
	coord, runs, q := buildFixture(t, diamondWorkflow(), nil)
	runs.run.NodeStatus["a"] = models.NodeCompleted
	runs.run.Outputs["a"] = map[string]any{"content": "Hi"}
	runs.run.NodeStatus["b"] = models.NodeRunning
	runs.run.NodeStatus["c"] = models.NodeRunning

	// b completes first: d is not ready yet.
	require.NoError(t, coord.HandleNodeCompleted(context.Background(),
		completion(t, "b", map[string]any{"transformed_text": "HI"})))
	_, dispatched := q.taskFor("d")
	assert.False(t, dispatched)

	// c completes: d becomes ready and dispatches exactly once.
	require.NoError(t, coord.HandleNodeCompleted(context.Background(),
		completion(t, "c", map[string]any{"transformed_text": "hi"})))

	task, ok := q.taskFor("d")
	require.True(t, ok)
	assert.Equal(t, 1, q.count())
	// Later predecessor id wins the content collision: c over b.
	assert.Equal(t, "hi", task.Args.Inputs["content"])

	// A redelivered completion for c does not dispatch d again.
	require.NoError(t, coord.HandleNodeCompleted(context.Background(),
		completion(t, "c", map[string]any{"transformed_text": "hi"})))
	assert.Equal(t, 1, q.count())
}
