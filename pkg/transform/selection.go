package transform

import (
	"fmt"

	"github.com/google/cel-go/common/types"

	"github.com/rmax-ai/gfs/pkg/feature"
)

// VertexSelection is a set of vertices picked out of a parent graph node.
type VertexSelection struct {
	graphBase
	ParentIDs []int    `json:"parents"`
	Selector  Selector `json:"selector"`
	// Heterogeneous is set when the selection spans more than one type.
	Heterogeneous bool         `json:"heterogeneous,omitempty"`
	Aggregation   *Aggregation `json:"aggregation,omitempty"`
}

func (s *VertexSelection) Kind() NodeKind { return KindVertexSelection }
func (s *VertexSelection) Parents() []int { return append([]int(nil), s.ParentIDs...) }

// Filter keeps the vertices for which expr holds. expr is compiled against
// the vertex attributes and must be boolean.
func (s *VertexSelection) Filter(expr string) (*VertexSelection, error) {
	s.mustLive()
	if err := checkPredicate(s.Schema, s.Schema.Vertices, expr); err != nil {
		return nil, err
	}
	sel := &VertexSelection{
		graphBase:     graphBase{Handle: s.derive(), Schema: s.Schema.clone()},
		ParentIDs:     []int{s.ID()},
		Selector:      Expression(expr),
		Heterogeneous: s.Heterogeneous,
	}
	sel.registerSelf(sel)
	return sel, nil
}

// Project narrows every vertex frame to the named attributes.
func (s *VertexSelection) Project(fields ...string) (*VertexSelection, error) {
	s.mustLive()
	frames, derived, err := project(s.Schema.Vertices, s.Schema.Derived, fields)
	if err != nil {
		return nil, err
	}
	schema := s.Schema.clone()
	schema.Vertices = frames
	schema.Derived = derived
	sel := &VertexSelection{
		graphBase:     graphBase{Handle: s.derive(), Schema: schema},
		ParentIDs:     []int{s.ID()},
		Selector:      s.Selector,
		Heterogeneous: s.Heterogeneous,
	}
	sel.registerSelf(sel)
	return sel, nil
}

// EdgeSelection is a set of edges picked out of a parent graph node.
type EdgeSelection struct {
	graphBase
	ParentIDs     []int    `json:"parents"`
	Selector      Selector `json:"selector"`
	Heterogeneous bool     `json:"heterogeneous,omitempty"`
}

func (s *EdgeSelection) Kind() NodeKind { return KindEdgeSelection }
func (s *EdgeSelection) Parents() []int { return append([]int(nil), s.ParentIDs...) }

// Filter keeps the edges for which expr holds.
func (s *EdgeSelection) Filter(expr string) (*EdgeSelection, error) {
	s.mustLive()
	if err := checkPredicate(graphSchema{}, s.Schema.Edges, expr); err != nil {
		return nil, err
	}
	sel := &EdgeSelection{
		graphBase:     graphBase{Handle: s.derive(), Schema: s.Schema.clone()},
		ParentIDs:     []int{s.ID()},
		Selector:      Expression(expr),
		Heterogeneous: s.Heterogeneous,
	}
	sel.registerSelf(sel)
	return sel, nil
}

// Project narrows every edge frame to the named attributes.
func (s *EdgeSelection) Project(fields ...string) (*EdgeSelection, error) {
	s.mustLive()
	frames, _, err := project(s.Schema.Edges, nil, fields)
	if err != nil {
		return nil, err
	}
	narrowed := s.Schema.clone()
	narrowed.Edges = frames
	sel := &EdgeSelection{
		graphBase:     graphBase{Handle: s.derive(), Schema: narrowed},
		ParentIDs:     []int{s.ID()},
		Selector:      s.Selector,
		Heterogeneous: s.Heterogeneous,
	}
	sel.registerSelf(sel)
	return sel, nil
}

// UnionVertices selects the vertices of either a or b. Both must belong to
// the same context.
func UnionVertices(a, b *VertexSelection) (*VertexSelection, error) {
	if a.context() != b.context() {
		return nil, fmt.Errorf("%w: union across contexts", ErrValidation)
	}
	schema := a.Schema.clone()
	schema.Vertices = mergeFrames(a.Schema.Vertices, b.Schema.Vertices)
	schema.Derived = mergeColumns(a.Schema.Derived, b.Schema.Derived)
	sel := &VertexSelection{
		graphBase:     graphBase{Handle: a.derive(), Schema: schema},
		ParentIDs:     []int{a.ID(), b.ID()},
		Selector:      Union(a.Selector, b.Selector),
		Heterogeneous: len(schema.Vertices) > 1,
	}
	sel.registerSelf(sel)
	return sel, nil
}

// UnionEdges selects the edges of either a or b.
func UnionEdges(a, b *EdgeSelection) (*EdgeSelection, error) {
	if a.context() != b.context() {
		return nil, fmt.Errorf("%w: union across contexts", ErrValidation)
	}
	schema := a.Schema.clone()
	schema.Edges = mergeFrames(a.Schema.Edges, b.Schema.Edges)
	sel := &EdgeSelection{
		graphBase:     graphBase{Handle: a.derive(), Schema: schema},
		ParentIDs:     []int{a.ID(), b.ID()},
		Selector:      Union(a.Selector, b.Selector),
		Heterogeneous: len(schema.Edges) > 1,
	}
	sel.registerSelf(sel)
	return sel, nil
}

// checkPredicate compiles expr over the attributes of frames and the
// derived columns of schema. The result must be boolean, or dynamic when
// it depends on attributes whose type differs between frames.
func checkPredicate(schema graphSchema, frames map[string]Frame, expr string) error {
	env, err := newEnv(schema.variables(frames))
	if err != nil {
		return err
	}
	ast, err := compile(env, expr)
	if err != nil {
		return err
	}
	switch ast.OutputType().Kind() {
	case types.BoolKind, types.DynKind:
		return nil
	default:
		return fmt.Errorf("%w: filter %q is %s, not bool", ErrValidation, expr, ast.OutputType())
	}
}

// project keeps the named attributes of every frame and of derived.
// Frames left with no fields stay, so the selection keeps its types. Every
// name must exist somewhere.
func project(frames map[string]Frame, derived []*Column, names []string) (map[string]Frame, []*Column, error) {
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("%w: empty projection", ErrValidation)
	}
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		if !hasField(frames, n) && !hasColumn(derived, n) {
			return nil, nil, fmt.Errorf("%w: unknown attribute %q", ErrValidation, n)
		}
		keep[n] = true
	}

	narrowed := make(map[string]Frame, len(frames))
	for t, f := range frames {
		nf := Frame{ViewName: f.ViewName, EntityID: f.EntityID, Fields: []feature.Field{}}
		for _, field := range f.Fields {
			if keep[field.Name] {
				nf.Fields = append(nf.Fields, field)
			}
		}
		narrowed[t] = nf
	}
	var cols []*Column
	for _, c := range derived {
		if keep[c.Name] {
			cols = append(cols, c)
		}
	}
	return narrowed, cols, nil
}

// mergeFrames unions two type buckets. For a type in both, field lists are
// merged by resource id, keeping a's view name.
func mergeFrames(a, b map[string]Frame) map[string]Frame {
	out := make(map[string]Frame, len(a)+len(b))
	for t, f := range a {
		out[t] = f.clone()
	}
	for t, f := range b {
		prev, ok := out[t]
		if !ok {
			out[t] = f.clone()
			continue
		}
		seen := make(map[feature.ResourceID]bool, len(prev.Fields))
		for _, field := range prev.Fields {
			seen[field.ResourceID()] = true
		}
		for _, field := range f.Fields {
			if !seen[field.ResourceID()] {
				prev.Fields = append(prev.Fields, field)
			}
		}
		out[t] = prev
	}
	return out
}

func mergeColumns(a, b []*Column) []*Column {
	out := append([]*Column(nil), a...)
	for _, c := range b {
		if !hasColumn(out, c.Name) {
			out = append(out, c)
		}
	}
	return out
}

func hasColumn(cols []*Column, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}
