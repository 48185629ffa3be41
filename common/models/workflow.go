package models

import "time"

// Node is one unit of work inside a workflow. Type is one of the closed
// set of node kinds the engine dispatches on (see cmd/worker/handlers).
// Config is an opaque mapping whose keys are constrained per type.
type Node struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// Edge declares that Target depends on Source. Multiple edges into one
// target are conjunctive.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Workflow is a user-defined DAG of typed nodes.
// Maps to: workflows table (nodes and edges stored as JSONB).
type Workflow struct {
	WorkflowID string    `db:"workflow_id" json:"workflow_id"`
	Name       string    `db:"name" json:"name"`
	Version    int       `db:"version" json:"version"`
	OwnerID    string    `db:"owner_id" json:"owner_id"`
	Active     bool      `db:"active" json:"active"`
	Nodes      []Node    `db:"nodes" json:"nodes"`
	Edges      []Edge    `db:"edges" json:"edges"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}
