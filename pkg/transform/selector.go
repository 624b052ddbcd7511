package transform

// SelectorKind tags a Selector variant.
type SelectorKind string

const (
	SelectorDirectAccess SelectorKind = "DirectAccess"
	SelectorExpression   SelectorKind = "Expression"
	SelectorSampling     SelectorKind = "Sampling"
	SelectorUnion        SelectorKind = "Union"
)

// Selector describes how a selection node picks its vertices or edges. It
// is plain data; evaluating it is up to an execution engine.
type Selector struct {
	Kind SelectorKind `json:"kind"`
	// Type restricts DirectAccess to one type label; empty means all types.
	Type string `json:"type,omitempty"`
	// Expr is the boolean filter of an Expression selector.
	Expr     string        `json:"expr,omitempty"`
	Sampling *SamplingSpec `json:"sampling,omitempty"`
	Left     *Selector     `json:"left,omitempty"`
	Right    *Selector     `json:"right,omitempty"`
}

func DirectAccess(typ string) Selector {
	return Selector{Kind: SelectorDirectAccess, Type: typ}
}

func Expression(expr string) Selector {
	return Selector{Kind: SelectorExpression, Expr: expr}
}

func SamplingOf(spec SamplingSpec) Selector {
	return Selector{Kind: SelectorSampling, Sampling: &spec}
}

func Union(left, right Selector) Selector {
	return Selector{Kind: SelectorUnion, Left: &left, Right: &right}
}

// SamplingMethod names the traversal a Sampling selector describes.
type SamplingMethod string

const (
	NeighborSampling SamplingMethod = "neighbor"
	RandomWalkMethod SamplingMethod = "random_walk"
)

// SamplingSpec is the resolved plan of a sampling or walk operation, with
// exactly one Hop per step.
type SamplingSpec struct {
	Method            SamplingMethod `json:"method"`
	Hops              []Hop          `json:"hops"`
	Replace           bool           `json:"replace,omitempty"`
	ProbabilityColumn string         `json:"probability_column,omitempty"`
}
