package transform

import (
	"encoding/json"
	"fmt"
)

type snapshot struct {
	NextID int            `json:"next_id"`
	Nodes  []snapshotNode `json:"nodes"`
}

type snapshotNode struct {
	Kind NodeKind        `json:"kind"`
	ID   int             `json:"id"`
	Node json.RawMessage `json:"node"`
}

// MarshalJSON encodes the id counter and every node in construction order.
// Finalize stores this encoding as the transformation body.
func (c *Context) MarshalJSON() ([]byte, error) {
	c.live()
	s := snapshot{NextID: c.nextID, Nodes: make([]snapshotNode, 0, len(c.nodes))}
	for _, n := range c.nodes {
		raw, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("encode node %d: %w", n.ID(), err)
		}
		s.Nodes = append(s.Nodes, snapshotNode{Kind: n.Kind(), ID: n.ID(), Node: raw})
	}
	return json.Marshal(s)
}

// Restore rebuilds a context from a finalized transformation body. Node ids
// must be strictly increasing in list order. Nodes keep their ids and the
// counter resumes where it stopped. Computed columns
// come back without evaluators; the in-progress transformation starts
// fresh.
func Restore(body string, opts ...Option) (*Context, error) {
	var s snapshot
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %w", ErrValidation, err)
	}

	c := NewContext(opts...)
	prev := -1
	for i, sn := range s.Nodes {
		if sn.ID < 0 || sn.ID >= s.NextID {
			return nil, fmt.Errorf("%w: node %d: id %d outside [0, %d)", ErrValidation, i, sn.ID, s.NextID)
		}
		if sn.ID <= prev {
			return nil, fmt.Errorf("%w: node %d: id %d does not follow id %d", ErrValidation, i, sn.ID, prev)
		}
		prev = sn.ID
		n, err := decodeNode(Handle{id: sn.ID, ctx: c}, sn)
		if err != nil {
			return nil, err
		}
		for _, p := range n.Parents() {
			if _, ok := c.byID[p]; !ok {
				return nil, fmt.Errorf("%w: node %d refers to unknown parent %d", ErrValidation, sn.ID, p)
			}
		}
		c.byID[sn.ID] = len(c.nodes)
		c.nodes = append(c.nodes, n)
	}
	c.nextID = s.NextID
	return c, nil
}

func decodeNode(h Handle, sn snapshotNode) (Node, error) {
	decode := func(v any) error {
		if err := json.Unmarshal(sn.Node, v); err != nil {
			return fmt.Errorf("%w: decode %s node %d: %w", ErrValidation, sn.Kind, sn.ID, err)
		}
		return nil
	}

	switch sn.Kind {
	case KindSingleGraph:
		n := &SingleGraph{}
		if err := decode(n); err != nil {
			return nil, err
		}
		n.Handle = h
		n.Schema = n.Schema.normalized()
		return n, nil
	case KindVertexSelection:
		n := &VertexSelection{}
		if err := decode(n); err != nil {
			return nil, err
		}
		n.Handle = h
		n.Schema = n.Schema.normalized()
		return n, nil
	case KindEdgeSelection:
		n := &EdgeSelection{}
		if err := decode(n); err != nil {
			return nil, err
		}
		n.Handle = h
		n.Schema = n.Schema.normalized()
		return n, nil
	case KindQueryResultGraph:
		n := &QueryResultGraph{}
		if err := decode(n); err != nil {
			return nil, err
		}
		n.Handle = h
		n.Schema = n.Schema.normalized()
		return n, nil
	case KindDataFrame:
		n := &DataFrame{}
		if err := decode(n); err != nil {
			return nil, err
		}
		n.Handle = h
		if err := n.reindex(); err != nil {
			return nil, err
		}
		return n, nil
	case KindQueryResultDataFrame:
		n := &QueryResultDataFrame{}
		if err := decode(n); err != nil {
			return nil, err
		}
		n.Handle = h
		if err := n.reindex(); err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: node %d has unknown kind %q", ErrValidation, sn.ID, sn.Kind)
	}
}
