package models

import "time"

// RunStatus represents the status of a workflow run.
// Transitions are monotonic: queued -> running -> {succeeded, failed, cancelled}.
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// NodeStatus represents per-node execution state within a run.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
)

// ExecutionPlan is the dependency structure of a workflow, built once by the
// orchestrator at run start and persisted on the run. The coordinator
// consults the persisted plan instead of re-deriving topology on every
// completion, so a workflow edit cannot change an in-flight run.
type ExecutionPlan struct {
	// Deps maps node id -> ids of nodes it depends on.
	Deps map[string][]string `json:"deps"`
	// Dependents maps node id -> ids of nodes depending on it.
	Dependents map[string][]string `json:"dependents"`
	// Order is a topological order over all nodes.
	Order []string `json:"order"`
}

// Frontier returns the nodes with no dependencies.
func (p *ExecutionPlan) Frontier() []string {
	var frontier []string
	for _, id := range p.Order {
		if len(p.Deps[id]) == 0 {
			frontier = append(frontier, id)
		}
	}
	return frontier
}

// Run is one execution of a workflow.
// Maps to: runs table (node_status, inputs, outputs, plan stored as JSONB).
type Run struct {
	RunID      string                    `db:"run_id" json:"run_id"`
	WorkflowID string                    `db:"workflow_id" json:"workflow_id"`
	OwnerID    string                    `db:"owner_id" json:"owner_id"`
	Status     RunStatus                 `db:"status" json:"status"`
	NodeStatus map[string]NodeStatus     `db:"node_status" json:"node_status"`
	Inputs     map[string]any            `db:"inputs" json:"inputs"`
	Outputs    map[string]map[string]any `db:"outputs" json:"outputs"`
	Plan       *ExecutionPlan            `db:"plan" json:"plan,omitempty"`
	Error      *string                   `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time                 `db:"created_at" json:"created_at"`
	StartedAt  *time.Time                `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time               `db:"completed_at" json:"completed_at,omitempty"`
}

// NodeStatusOf returns the recorded status of a node, defaulting to pending.
func (r *Run) NodeStatusOf(nodeID string) NodeStatus {
	if s, ok := r.NodeStatus[nodeID]; ok {
		return s
	}
	return NodePending
}
