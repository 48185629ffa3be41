package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Work queue names. The orchestrator and coordinator share the default
// queue; node tasks go to the queue for their category.
const (
	QueueDefault = "default"
	QueueIngest  = "ingest"
	QueueAI      = "ai"
	QueueActions = "actions"
)

// Actor names for control messages on the default queue. Node task actors
// are the node type strings themselves (e.g. "ingest.url").
const (
	ActorRunStart      = "run_start"
	ActorNodeCompleted = "node_completed"
)

// Envelope is the wire shape of every queued message: a tagged record
// identifying the handler plus its JSON-encoded arguments.
type Envelope struct {
	Actor      string          `json:"actor_name"`
	Args       json.RawMessage `json:"args"`
	EnqueuedAt int64           `json:"enqueued_at"` // unix milliseconds
}

// RunStartArgs starts a queued run.
type RunStartArgs struct {
	RunID string `json:"run_id"`
}

// NodeTaskArgs executes one node of a run.
type NodeTaskArgs struct {
	RunID  string         `json:"run_id"`
	NodeID string         `json:"node_id"`
	Config map[string]any `json:"config"`
	Inputs map[string]any `json:"inputs"`
}

// CompletionArgs signals that a node finished. Status is "completed" or
// "failed"; Outputs is only set on success.
type CompletionArgs struct {
	RunID   string         `json:"run_id"`
	NodeID  string         `json:"node_id"`
	Status  string         `json:"status"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Encode builds the wire form of a message.
func Encode(actor string, args any) ([]byte, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args for actor %s: %w", actor, err)
	}
	env := Envelope{
		Actor:      actor,
		Args:       argsJSON,
		EnqueuedAt: time.Now().UnixMilli(),
	}
	return json.Marshal(env)
}

// PeekActor extracts the actor name from an encoded message without
// decoding its arguments. Returns "" for malformed bodies.
func PeekActor(body []byte) string {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Actor
}

// DecodeArgs unmarshals the envelope's arguments into v.
func (e *Envelope) DecodeArgs(v any) error {
	if err := json.Unmarshal(e.Args, v); err != nil {
		return fmt.Errorf("decode args for actor %s: %w", e.Actor, err)
	}
	return nil
}

// Age returns how long ago the message was enqueued.
func (e *Envelope) Age() time.Duration {
	return time.Since(time.UnixMilli(e.EnqueuedAt))
}

// Delivery carries one message together with its redelivery metadata, so
// handlers can implement bounded-retry policies.
type Delivery struct {
	Body []byte
	// Attempts is 1 on first delivery and grows on each redelivery.
	Attempts int
	// MaxAttempts is the broker's configured redelivery cap.
	MaxAttempts int
}

// Final reports whether this is the last delivery the broker will make.
func (d Delivery) Final() bool {
	return d.Attempts >= d.MaxAttempts
}

// Handler processes one delivery. Returning an error leaves the message
// unacknowledged so the broker redelivers it, up to the retry cap.
type Handler func(ctx context.Context, d Delivery) error

// Queue is the message broker interface: named work queues with
// at-least-once delivery.
type Queue interface {
	Publish(ctx context.Context, queueName string, body []byte) error
	Subscribe(ctx context.Context, queueName string, concurrency int, h Handler) error
	Close() error
}
