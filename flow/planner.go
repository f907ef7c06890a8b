package flow

import "sort"

// Wave is one topological level of the plan: nodes whose dependencies
// are all satisfied by earlier waves.
type Wave struct {
	Number  int      `json:"number"`
	NodeIDs []string `json:"nodeIds"`
}

// ExecutionPlan is the scheduled form of a workflow: the dependency-
// ordered waves plus a node lookup table.
type ExecutionPlan struct {
	WorkflowID string           `json:"workflowId"`
	TotalNodes int              `json:"totalNodes"`
	Waves      []Wave           `json:"waves"`
	Nodes      map[string]*Node `json:"-"`
	Deps       map[string][]string
}

// Node returns the plan node with the given ID.
func (p *ExecutionPlan) Node(id string) (*Node, bool) {
	n, ok := p.Nodes[id]
	return n, ok
}

// BuildPlan derives execution waves from the workflow's dependency graph
// using repeated zero-in-degree extraction. Nodes within a wave are
// sorted by ID for deterministic scheduling. A graph where extraction
// stalls before covering every node contains a cycle.
func BuildPlan(ast *WorkflowAST) (*ExecutionPlan, error) {
	deps := Dependencies(ast)

	nodes := make(map[string]*Node, len(ast.Nodes))
	for _, n := range ast.Nodes {
		nodes[n.ID] = n
	}

	indeg := make(map[string]int, len(deps))
	for id, ds := range deps {
		indeg[id] = len(ds)
	}

	placed := make(map[string]bool, len(nodes))
	var waves []Wave
	for len(placed) < len(nodes) {
		var ready []string
		for id, d := range indeg {
			if d == 0 && !placed[id] {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			var remaining []string
			for id := range nodes {
				if !placed[id] {
					remaining = append(remaining, id)
				}
			}
			sort.Strings(remaining)
			return nil, &CycleError{Remaining: remaining}
		}
		sort.Strings(ready)
		waves = append(waves, Wave{Number: len(waves), NodeIDs: ready})
		for _, id := range ready {
			placed[id] = true
		}
		// Satisfy edges out of this wave.
		for id, ds := range deps {
			if placed[id] {
				continue
			}
			n := 0
			for _, d := range ds {
				if !placed[d] {
					n++
				}
			}
			indeg[id] = n
		}
	}

	return &ExecutionPlan{
		WorkflowID: ast.Metadata.Name,
		TotalNodes: len(nodes),
		Waves:      waves,
		Deps:       deps,
		Nodes:      nodes,
	}, nil
}
