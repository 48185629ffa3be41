package plan

import (
	"fmt"
	"sort"

	"github.com/aiwf/engine/common/models"
)

// Build validates a workflow's graph and constructs its execution plan:
// dependency and dependent adjacency maps plus a topological order. It
// rejects duplicate node ids, edges referencing unknown nodes, self-loops,
// and cycles. A rejected workflow fails its run before any node is
// enqueued.
func Build(nodes []models.Node, edges []models.Edge) (*models.ExecutionPlan, error) {
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node with empty id")
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("duplicate node id: %s", n.ID)
		}
		seen[n.ID] = true
	}

	deps := make(map[string][]string, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		deps[n.ID] = nil
		dependents[n.ID] = nil
	}

	edgeSeen := make(map[[2]string]bool, len(edges))
	for _, e := range edges {
		if !seen[e.Source] {
			return nil, fmt.Errorf("edge %s references unknown source node: %s", e.ID, e.Source)
		}
		if !seen[e.Target] {
			return nil, fmt.Errorf("edge %s references unknown target node: %s", e.ID, e.Target)
		}
		if e.Source == e.Target {
			return nil, fmt.Errorf("cycle detected: self-loop on node %s", e.Source)
		}
		// Dependencies are sets; a repeated edge is a no-op.
		key := [2]string{e.Source, e.Target}
		if edgeSeen[key] {
			continue
		}
		edgeSeen[key] = true
		deps[e.Target] = append(deps[e.Target], e.Source)
		dependents[e.Source] = append(dependents[e.Source], e.Target)
	}

	for id := range deps {
		sort.Strings(deps[id])
		sort.Strings(dependents[id])
	}

	order, err := topoSort(deps, dependents)
	if err != nil {
		return nil, err
	}

	return &models.ExecutionPlan{
		Deps:       deps,
		Dependents: dependents,
		Order:      order,
	}, nil
}

// topoSort runs Kahn's algorithm. If the sort does not consume every node
// the leftover nodes form at least one cycle.
func topoSort(deps, dependents map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(deps))
	var frontier []string
	for id, d := range deps {
		indegree[id] = len(d)
		if len(d) == 0 {
			frontier = append(frontier, id)
		}
	}
	// Deterministic order so plans are stable across rebuilds.
	sort.Strings(frontier)

	order := make([]string, 0, len(deps))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		var ready []string
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
		frontier = append(frontier, ready...)
	}

	if len(order) != len(deps) {
		var stuck []string
		for id, n := range indegree {
			if n > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("cycle detected involving nodes %v", stuck)
	}

	return order, nil
}
