// Package workflow implements the orchestration core: the stage DAG,
// the batched execution loop, the consensus arbiter and the preset
// factory.
package workflow

import (
	"fmt"
	"sort"

	"github.com/remitstream/remitcore/contracts"
)

// dagNode is one stage in the dependency graph.
type dagNode struct {
	id      contracts.StageID
	deps    []contracts.StageID
	next    []contracts.StageID
	pending int
	started bool
	done    bool
}

// dag is the stage dependency graph for one preset. A dag instance is
// consumed by a single run and is not shared.
type dag struct {
	nodes map[contracts.StageID]*dagNode
	order []contracts.StageID
}

// buildDAG constructs the graph from the executors' declared
// prerequisites and validates it for missing edges and cycles.
func buildDAG(executors []contracts.StageExecutor) (*dag, error) {
	d := &dag{nodes: make(map[contracts.StageID]*dagNode, len(executors))}

	for _, ex := range executors {
		id := ex.StageID()
		if _, dup := d.nodes[id]; dup {
			return nil, fmt.Errorf("duplicate stage %s: %w", id, contracts.ErrInternal)
		}
		deps := ex.Requires()
		d.nodes[id] = &dagNode{id: id, deps: deps, pending: len(deps)}
		d.order = append(d.order, id)
	}

	for _, n := range d.nodes {
		for _, dep := range n.deps {
			depNode, ok := d.nodes[dep]
			if !ok {
				return nil, fmt.Errorf("stage %s requires %s which is not in the pipeline: %w",
					n.id, dep, contracts.ErrMissingDependency)
			}
			depNode.next = append(depNode.next, n.id)
		}
	}

	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// validate detects cycles with DFS color marking: white unvisited,
// gray visiting, black visited.
func (d *dag) validate() error {
	const (
		white = iota
		gray
		black
	)
	colors := make(map[contracts.StageID]int, len(d.nodes))

	var visit func(id contracts.StageID) bool
	visit = func(id contracts.StageID) bool {
		colors[id] = gray
		for _, next := range d.nodes[id].next {
			switch colors[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, id := range d.order {
		if colors[id] == white && visit(id) {
			return fmt.Errorf("stage graph has a cycle: %w", contracts.ErrInternal)
		}
	}
	return nil
}

// ready returns the unstarted stages with no outstanding prerequisites,
// sorted by stage id for deterministic scheduling.
func (d *dag) ready() []contracts.StageID {
	var out []contracts.StageID
	for _, n := range d.nodes {
		if !n.started && n.pending == 0 {
			out = append(out, n.id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// markStarted records that a stage has been dispatched.
func (d *dag) markStarted(id contracts.StageID) {
	d.nodes[id].started = true
}

// markComplete records a terminal stage outcome and unblocks dependents.
func (d *dag) markComplete(id contracts.StageID) {
	n := d.nodes[id]
	if n.done {
		return
	}
	n.done = true
	for _, next := range n.next {
		d.nodes[next].pending--
	}
}

// allDone reports whether every started stage has completed and no
// stage remains dispatchable.
func (d *dag) allDone() bool {
	for _, n := range d.nodes {
		if !n.done {
			return false
		}
	}
	return true
}
