package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiwf/engine/common/models"
	"github.com/aiwf/engine/common/queue"
)

// Test fakes shared by the handler package tests.

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

type fakeRunStore struct {
	mu         sync.Mutex
	runs       map[string]*models.Run
	nodeStatus map[string]models.NodeStatus // "runID/nodeID" -> status
}

func newFakeRunStore(runs ...*models.Run) *fakeRunStore {
	s := &fakeRunStore{
		runs:       make(map[string]*models.Run),
		nodeStatus: make(map[string]models.NodeStatus),
	}
	for _, r := range runs {
		s.runs[r.RunID] = r
	}
	return s
}

func (s *fakeRunStore) GetByID(_ context.Context, runID string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, errors.New("run not found")
	}
	return run, nil
}

func (s *fakeRunStore) SetNodeStatus(_ context.Context, runID, nodeID string, status models.NodeStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeStatus[runID+"/"+nodeID] = status
	return true, nil
}

func (s *fakeRunStore) statusOf(runID, nodeID string) models.NodeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeStatus[runID+"/"+nodeID]
}

type logEntry struct {
	RunID   string
	NodeID  *string
	Level   string
	Message string
	Payload map[string]any
}

type fakeLogStore struct {
	mu      sync.Mutex
	entries []logEntry
}

func (s *fakeLogStore) Append(_ context.Context, runID string, nodeID *string, level, message string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, logEntry{runID, nodeID, level, message, payload})
	return nil
}

func (s *fakeLogStore) byLevel(level string) []logEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []logEntry
	for _, e := range s.entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

type published struct {
	Queue string
	Body  []byte
}

type captureQueue struct {
	mu       sync.Mutex
	messages []published
}

func (q *captureQueue) Publish(_ context.Context, queueName string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, published{queueName, body})
	return nil
}

func (q *captureQueue) Subscribe(context.Context, string, int, queue.Handler) error { return nil }
func (q *captureQueue) Close() error                                               { return nil }

func (q *captureQueue) completions(t *testing.T) []queue.CompletionArgs {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []queue.CompletionArgs
	for _, m := range q.messages {
		if m.Queue != queue.QueueDefault {
			continue
		}
		var env queue.Envelope
		require.NoError(t, json.Unmarshal(m.Body, &env))
		require.Equal(t, queue.ActorNodeCompleted, env.Actor)
		var args queue.CompletionArgs
		require.NoError(t, env.DecodeArgs(&args))
		out = append(out, args)
	}
	return out
}

type fakeDocStore struct {
	mu    sync.Mutex
	docs  map[string]*models.Document
	files map[string]*models.UploadedFile
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		docs:  make(map[string]*models.Document),
		files: make(map[string]*models.UploadedFile),
	}
}

// CreateDocument mirrors the repository contract: the caller supplies the
// primary key, and inserting a duplicate or empty id is an error.
func (s *fakeDocStore) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.DocumentID == "" {
		return errors.New("document id must not be empty")
	}
	if _, exists := s.docs[doc.DocumentID]; exists {
		return fmt.Errorf("duplicate document id %s", doc.DocumentID)
	}
	s.docs[doc.DocumentID] = doc
	return nil
}

func (s *fakeDocStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, errors.New("document not found")
	}
	return doc, nil
}

func (s *fakeDocStore) GetUploadedFile(_ context.Context, id string) (*models.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, errors.New("file not found")
	}
	return f, nil
}

func runningRun(id string) *models.Run {
	return &models.Run{RunID: id, Status: models.StatusRunning}
}

func taskDelivery(t *testing.T, kind NodeKind, args queue.NodeTaskArgs, attempts, maxAttempts int) queue.Delivery {
	t.Helper()
	body, err := queue.Encode(string(kind), args)
	require.NoError(t, err)
	return queue.Delivery{Body: body, Attempts: attempts, MaxAttempts: maxAttempts}
}

func TestRunner_SuccessPublishesCompletion(t *testing.T) {
	runs := newFakeRunStore(runningRun("r1"))
	logs := &fakeLogStore{}
	q := &captureQueue{}
	runner := NewRunner(runs, logs, q, nopLogger{}, NewTransformHandler())

	d := taskDelivery(t, KindTransform, queue.NodeTaskArgs{
		RunID:  "r1",
		NodeID: "n1",
		Config: map[string]any{"operation": "uppercase"},
		Inputs: map[string]any{"content": "hello"},
	}, 1, 3)

	require.NoError(t, runner.HandleDelivery(context.Background(), d))

	completions := q.completions(t)
	require.Len(t, completions, 1)
	assert.Equal(t, "r1", completions[0].RunID)
	assert.Equal(t, "n1", completions[0].NodeID)
	assert.Equal(t, string(models.NodeCompleted), completions[0].Status)
	assert.Equal(t, "HELLO", completions[0].Outputs["transformed_text"])

	infos := logs.byLevel(models.LogInfo)
	require.Len(t, infos, 2) // starting + completed
}

func TestRunner_ConfigErrorFailsNode(t *testing.T) {
	runs := newFakeRunStore(runningRun("r1"))
	logs := &fakeLogStore{}
	q := &captureQueue{}
	runner := NewRunner(runs, logs, q, nopLogger{}, NewTransformHandler())

	d := taskDelivery(t, KindTransform, queue.NodeTaskArgs{
		RunID:  "r1",
		NodeID: "n1",
		Config: map[string]any{"operation": "rot13"},
		Inputs: map[string]any{"content": "hello"},
	}, 1, 3)

	// Permanent errors are not retried: handler acks by returning nil.
	require.NoError(t, runner.HandleDelivery(context.Background(), d))

	assert.Equal(t, models.NodeFailed, runs.statusOf("r1", "n1"))

	completions := q.completions(t)
	require.Len(t, completions, 1)
	assert.Equal(t, string(models.NodeFailed), completions[0].Status)
	assert.Contains(t, completions[0].Error, "unknown operation")

	require.NotEmpty(t, logs.byLevel(models.LogError))
}

type flakyHandler struct {
	calls int
}

func (h *flakyHandler) Kind() NodeKind { return KindIngestURL }
func (h *flakyHandler) Execute(context.Context, *Task) (map[string]any, error) {
	h.calls++
	return nil, errors.New("connection reset")
}

func TestRunner_TransientErrorSurfacesForRetry(t *testing.T) {
	runs := newFakeRunStore(runningRun("r1"))
	q := &captureQueue{}
	runner := NewRunner(runs, &fakeLogStore{}, q, nopLogger{}, &flakyHandler{})

	d := taskDelivery(t, KindIngestURL, queue.NodeTaskArgs{RunID: "r1", NodeID: "n1"}, 1, 3)

	err := runner.HandleDelivery(context.Background(), d)
	require.Error(t, err)
	assert.Empty(t, q.completions(t))
	assert.Empty(t, runs.statusOf("r1", "n1"))
}

func TestRunner_TransientErrorOnFinalAttemptFailsNode(t *testing.T) {
	runs := newFakeRunStore(runningRun("r1"))
	q := &captureQueue{}
	runner := NewRunner(runs, &fakeLogStore{}, q, nopLogger{}, &flakyHandler{})

	d := taskDelivery(t, KindIngestURL, queue.NodeTaskArgs{RunID: "r1", NodeID: "n1"}, 3, 3)

	require.NoError(t, runner.HandleDelivery(context.Background(), d))
	assert.Equal(t, models.NodeFailed, runs.statusOf("r1", "n1"))

	completions := q.completions(t)
	require.Len(t, completions, 1)
	assert.Equal(t, string(models.NodeFailed), completions[0].Status)
}

func TestRunner_TerminalRunSkipsExecution(t *testing.T) {
	runs := newFakeRunStore(&models.Run{RunID: "r1", Status: models.StatusCancelled})
	q := &captureQueue{}
	handler := &flakyHandler{}
	runner := NewRunner(runs, &fakeLogStore{}, q, nopLogger{}, handler)

	d := taskDelivery(t, KindIngestURL, queue.NodeTaskArgs{RunID: "r1", NodeID: "n1"}, 1, 3)

	require.NoError(t, runner.HandleDelivery(context.Background(), d))
	assert.Zero(t, handler.calls)
	assert.Empty(t, q.completions(t))
}

type panickyHandler struct{}

func (panickyHandler) Kind() NodeKind { return KindIngestURL }
func (panickyHandler) Execute(context.Context, *Task) (map[string]any, error) {
	panic("boom")
}

func TestRunner_PanicIsContained(t *testing.T) {
	runs := newFakeRunStore(runningRun("r1"))
	q := &captureQueue{}
	runner := NewRunner(runs, &fakeLogStore{}, q, nopLogger{}, panickyHandler{})

	d := taskDelivery(t, KindIngestURL, queue.NodeTaskArgs{RunID: "r1", NodeID: "n1"}, 3, 3)

	require.NoError(t, runner.HandleDelivery(context.Background(), d))
	assert.Equal(t, models.NodeFailed, runs.statusOf("r1", "n1"))
}

func TestRunner_MalformedEnvelopeDropped(t *testing.T) {
	runs := newFakeRunStore(runningRun("r1"))
	q := &captureQueue{}
	runner := NewRunner(runs, &fakeLogStore{}, q, nopLogger{}, NewTransformHandler())

	d := queue.Delivery{Body: []byte("not json"), Attempts: 1, MaxAttempts: 3}
	require.NoError(t, runner.HandleDelivery(context.Background(), d))
	assert.Empty(t, q.completions(t))
}
