package transform

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"
)

// LineageEntry is one node of a plan with its direct parents.
type LineageEntry struct {
	ID      int      `json:"id"`
	Kind    NodeKind `json:"kind"`
	Parents []int    `json:"parents"`
}

func (c *Context) lineageGraph() (graph.Graph[int, int], error) {
	g := graph.New(graph.IntHash, graph.Directed(), graph.PreventCycles())
	for _, n := range c.nodes {
		if err := g.AddVertex(n.ID()); err != nil {
			return nil, fmt.Errorf("lineage: node %d: %w", n.ID(), err)
		}
	}
	for _, n := range c.nodes {
		for _, p := range n.Parents() {
			err := g.AddEdge(p, n.ID())
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("%w: lineage edge %d -> %d: %w", ErrValidation, p, n.ID(), err)
			}
		}
	}
	return g, nil
}

// Lineage orders the plan so that every node follows its parents, breaking
// ties by id.
func (c *Context) Lineage() ([]LineageEntry, error) {
	c.live()
	g, err := c.lineageGraph()
	if err != nil {
		return nil, err
	}
	order, err := graph.StableTopologicalSort(g, func(a, b int) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("lineage: %w", err)
	}

	entries := make([]LineageEntry, 0, len(order))
	for _, id := range order {
		n, _ := c.Node(id)
		parents := n.Parents()
		if parents == nil {
			parents = []int{}
		}
		entries = append(entries, LineageEntry{ID: id, Kind: n.Kind(), Parents: parents})
	}
	return entries, nil
}

// Ancestors returns the ids of every node id transitively derives from,
// sorted.
func (c *Context) Ancestors(id int) ([]int, error) {
	c.live()
	if _, ok := c.byID[id]; !ok {
		return nil, fmt.Errorf("%w: unknown node %d", ErrValidation, id)
	}
	g, err := c.lineageGraph()
	if err != nil {
		return nil, err
	}
	preds, err := g.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("lineage: %w", err)
	}

	seen := make(map[int]bool)
	queue := []int{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for p := range preds[cur] {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out, nil
}

// LineageOf restores a finalized body and returns its lineage.
func LineageOf(body string) ([]LineageEntry, error) {
	c, err := Restore(body)
	if err != nil {
		return nil, err
	}
	return c.Lineage()
}
