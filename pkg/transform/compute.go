package transform

import (
	"fmt"

	"github.com/rmax-ai/gfs/pkg/feature"
)

// Aggregator combines neighbor attributes.
type Aggregator string

const (
	AggMean   Aggregator = "mean"
	AggSum    Aggregator = "sum"
	AggMin    Aggregator = "min"
	AggMax    Aggregator = "max"
	AggConcat Aggregator = "concat"
)

func (a Aggregator) Valid() bool {
	switch a {
	case AggMean, AggSum, AggMin, AggMax, AggConcat:
		return true
	}
	return false
}

// Hop is the resolved parameter set of one traversal step. An empty
// EdgeType means any edge type.
type Hop struct {
	EdgeType    string     `json:"edge_type,omitempty"`
	Fanout      int        `json:"fanout,omitempty"`
	Aggregator  Aggregator `json:"aggregator,omitempty"`
	RestartProb float64    `json:"restart_prob,omitempty"`
}

// Aggregation records a neighbor aggregation on a vertex selection.
type Aggregation struct {
	Hops   []Hop  `json:"hops"`
	Output string `json:"output"`
}

// RandomWalkPath is the length of a walk and the edge types per step.
type RandomWalkPath struct {
	Length    int      `json:"length"`
	EdgeTypes []string `json:"edge_types,omitempty"`
}

// perHop expands vals to one value per hop. A single value applies to every
// hop; otherwise there must be exactly k. An empty list yields zero values
// when allowEmpty is set.
func perHop[T any](param string, k int, vals []T, allowEmpty bool) ([]T, error) {
	out := make([]T, k)
	switch {
	case len(vals) == 0 && allowEmpty:
	case len(vals) == 1:
		for i := range out {
			out[i] = vals[0]
		}
	case len(vals) == k:
		copy(out, vals)
	default:
		return nil, fmt.Errorf("%w: %s: got %d values for %d hops, want 1 or %d", ErrConfiguration, param, len(vals), k, k)
	}
	return out, nil
}

func checkHops(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: hop count %d, want at least 1", ErrConfiguration, k)
	}
	return nil
}

// checkEdgeTypes rejects edge types unknown to g. Graphs whose edge types
// are not known ahead of time accept any type.
func checkEdgeTypes(g *graphBase, types []string) error {
	if len(g.Schema.Edges) == 0 {
		return nil
	}
	for _, t := range types {
		if t == "" {
			continue
		}
		if _, ok := g.Schema.Edges[t]; !ok {
			return fmt.Errorf("%w: unknown edge type %q", ErrValidation, t)
		}
	}
	return nil
}

// AggregateNeighbors adds outputColumn to every vertex, aggregating the
// attributes of its direct neighbors across edgeType ("" for any type).
func AggregateNeighbors(g GraphNode, edgeType string, agg Aggregator, outputColumn string) (*VertexSelection, error) {
	var types []string
	if edgeType != "" {
		types = []string{edgeType}
	}
	return AggregateKHopNeighbors(g, 1, types, []Aggregator{agg}, outputColumn)
}

// AggregateKHopNeighbors is AggregateNeighbors over k hops. edgeTypes and
// aggregators hold one value for every hop or exactly k; no edge types
// means any type at every hop.
func AggregateKHopNeighbors(g GraphNode, k int, edgeTypes []string, aggregators []Aggregator, outputColumn string) (*VertexSelection, error) {
	base := g.graph()
	base.mustLive()
	if err := checkHops(k); err != nil {
		return nil, err
	}
	types, err := perHop("edge types", k, edgeTypes, true)
	if err != nil {
		return nil, err
	}
	aggs, err := perHop("aggregators", k, aggregators, false)
	if err != nil {
		return nil, err
	}
	for _, a := range aggs {
		if !a.Valid() {
			return nil, fmt.Errorf("%w: unknown aggregator %q", ErrConfiguration, a)
		}
	}
	if err := checkEdgeTypes(base, types); err != nil {
		return nil, err
	}
	if outputColumn == "" {
		return nil, fmt.Errorf("%w: empty output column", ErrValidation)
	}
	if hasField(base.Schema.Vertices, outputColumn) || hasColumn(base.Schema.Derived, outputColumn) {
		return nil, fmt.Errorf("%w: output column %q already exists", ErrValidation, outputColumn)
	}

	hops := make([]Hop, k)
	for i := range hops {
		hops[i] = Hop{EdgeType: types[i], Aggregator: aggs[i]}
	}

	h := base.derive()
	schema := base.Schema.clone()
	schema.Derived = append(schema.Derived, &Column{
		Name:      outputColumn,
		Origin:    h.id,
		ValueType: feature.ArrayOf(feature.FloatType),
		EntityID:  vertexEntity(schema),
	})
	sel := &VertexSelection{
		graphBase:     graphBase{Handle: h, Schema: schema},
		ParentIDs:     []int{g.ID()},
		Selector:      DirectAccess(""),
		Heterogeneous: len(schema.Vertices) > 1,
		Aggregation:   &Aggregation{Hops: hops, Output: outputColumn},
	}
	sel.registerSelf(sel)
	return sel, nil
}

// vertexEntity is the entity of the only vertex type, or "".
func vertexEntity(s graphSchema) feature.ResourceID {
	if len(s.Vertices) != 1 {
		return ""
	}
	for _, f := range s.Vertices {
		return f.EntityID
	}
	return ""
}

// SampleNeighbors samples up to fanout neighbors of every vertex across
// edgeType ("" for any type) and returns the sampled edges.
func SampleNeighbors(g GraphNode, fanout int, edgeType string, replace bool) (*EdgeSelection, error) {
	var types []string
	if edgeType != "" {
		types = []string{edgeType}
	}
	return SampleKHopNeighbors(g, 1, []int{fanout}, types, replace)
}

// SampleKHopNeighbors samples a k-hop neighborhood. fanouts and edgeTypes
// follow the same per-hop rule as AggregateKHopNeighbors.
func SampleKHopNeighbors(g GraphNode, k int, fanouts []int, edgeTypes []string, replace bool) (*EdgeSelection, error) {
	base := g.graph()
	base.mustLive()
	if err := checkHops(k); err != nil {
		return nil, err
	}
	fs, err := perHop("fanouts", k, fanouts, false)
	if err != nil {
		return nil, err
	}
	for i, f := range fs {
		if f < 1 {
			return nil, fmt.Errorf("%w: hop %d fanout %d, want at least 1", ErrConfiguration, i, f)
		}
	}
	types, err := perHop("edge types", k, edgeTypes, true)
	if err != nil {
		return nil, err
	}
	if err := checkEdgeTypes(base, types); err != nil {
		return nil, err
	}

	hops := make([]Hop, k)
	for i := range hops {
		hops[i] = Hop{EdgeType: types[i], Fanout: fs[i]}
	}
	sel := &EdgeSelection{
		graphBase:     graphBase{Handle: base.derive(), Schema: base.Schema.clone()},
		ParentIDs:     []int{g.ID()},
		Selector:      SamplingOf(SamplingSpec{Method: NeighborSampling, Hops: hops, Replace: replace}),
		Heterogeneous: len(base.Schema.Edges) > 1,
	}
	sel.registerSelf(sel)
	return sel, nil
}

func walkSpec(base *graphBase, path RandomWalkPath, probabilityColumn string, restartProb []float64) (SamplingSpec, error) {
	if path.Length < 1 {
		return SamplingSpec{}, fmt.Errorf("%w: walk length %d, want at least 1", ErrConfiguration, path.Length)
	}
	types, err := perHop("edge types", path.Length, path.EdgeTypes, true)
	if err != nil {
		return SamplingSpec{}, err
	}
	restarts, err := perHop("restart probabilities", path.Length, restartProb, true)
	if err != nil {
		return SamplingSpec{}, err
	}
	for i, p := range restarts {
		if p < 0 || p > 1 {
			return SamplingSpec{}, fmt.Errorf("%w: hop %d restart probability %v outside [0, 1]", ErrConfiguration, i, p)
		}
	}
	if len(restartProb) == path.Length && restartProb[0] != 0 {
		return SamplingSpec{}, fmt.Errorf("%w: hop 0 restart probability %v, walks never restart before the first hop", ErrConfiguration, restartProb[0])
	}
	restarts[0] = 0
	if err := checkEdgeTypes(base, types); err != nil {
		return SamplingSpec{}, err
	}
	if probabilityColumn != "" && len(base.Schema.Edges) > 0 && !hasField(base.Schema.Edges, probabilityColumn) {
		return SamplingSpec{}, fmt.Errorf("%w: unknown probability column %q", ErrValidation, probabilityColumn)
	}

	hops := make([]Hop, path.Length)
	for i := range hops {
		hops[i] = Hop{EdgeType: types[i], RestartProb: restarts[i]}
	}
	return SamplingSpec{Method: RandomWalkMethod, Hops: hops, ProbabilityColumn: probabilityColumn}, nil
}

// RandomWalk selects the vertices visited by walks over g. Transitions are
// weighted by the edge attribute probabilityColumn, uniform when empty.
// restartProb is the chance of ending a trace before each step; the first
// step never restarts, so a per-hop list must start with 0.
func RandomWalk(g GraphNode, path RandomWalkPath, probabilityColumn string, restartProb []float64) (*VertexSelection, error) {
	base := g.graph()
	base.mustLive()
	spec, err := walkSpec(base, path, probabilityColumn, restartProb)
	if err != nil {
		return nil, err
	}
	sel := &VertexSelection{
		graphBase:     graphBase{Handle: base.derive(), Schema: base.Schema.clone()},
		ParentIDs:     []int{g.ID()},
		Selector:      SamplingOf(spec),
		Heterogeneous: len(base.Schema.Vertices) > 1,
	}
	sel.registerSelf(sel)
	return sel, nil
}

// RandomWalkEdges is RandomWalk returning the traversed edges.
func RandomWalkEdges(g GraphNode, path RandomWalkPath, probabilityColumn string, restartProb []float64) (*EdgeSelection, error) {
	base := g.graph()
	base.mustLive()
	spec, err := walkSpec(base, path, probabilityColumn, restartProb)
	if err != nil {
		return nil, err
	}
	sel := &EdgeSelection{
		graphBase:     graphBase{Handle: base.derive(), Schema: base.Schema.clone()},
		ParentIDs:     []int{g.ID()},
		Selector:      SamplingOf(spec),
		Heterogeneous: len(base.Schema.Edges) > 1,
	}
	sel.registerSelf(sel)
	return sel, nil
}
