package transform

import "github.com/rmax-ai/gfs/pkg/feature"

// NodeKind enumerates the closed set of node variants.
type NodeKind string

const (
	KindSingleGraph          NodeKind = "SingleGraph"
	KindVertexSelection      NodeKind = "VertexSelection"
	KindEdgeSelection        NodeKind = "EdgeSelection"
	KindQueryResultGraph     NodeKind = "QueryResultGraph"
	KindDataFrame            NodeKind = "DataFrame"
	KindQueryResultDataFrame NodeKind = "QueryResultDataFrame"
)

// Node is one unit of a transformation plan. The set of implementations is
// closed to this package.
type Node interface {
	ID() int
	Kind() NodeKind
	// Parents lists the ids of the nodes this one was derived from.
	Parents() []int

	handle() Handle
}

// GraphNode is implemented by every graph-shaped node.
type GraphNode interface {
	Node

	// Vertices selects all vertices regardless of type.
	Vertices() *VertexSelection
	// Edges selects all edges regardless of type.
	Edges() *EdgeSelection
	// VerticesByType selects one vertex type; ok is false if the type is
	// unknown to this node.
	VerticesByType(t string) (sel *VertexSelection, ok bool)
	// EdgesByType selects one edge type; ok is false if the type is unknown.
	EdgesByType(t string) (sel *EdgeSelection, ok bool)
	// ExportTopology describes this node's connectivity as a Topology and
	// records the export. Persisting it is left to finalize. A name that
	// does not form a valid id fails with ErrValidation.
	ExportTopology(name string) (feature.Topology, error)

	graph() *graphBase
}

// TabularNode is implemented by dataframe-shaped nodes.
type TabularNode interface {
	Node

	Columns() []*Column
	Col(name string) (*Column, bool)
	Select(exprs ...string) (*DataFrame, error)
	WithColumn(name string, col *Column) (*DataFrame, error)
	Export() ([]feature.Field, error)
}

var (
	_ GraphNode   = (*SingleGraph)(nil)
	_ GraphNode   = (*VertexSelection)(nil)
	_ GraphNode   = (*EdgeSelection)(nil)
	_ GraphNode   = (*QueryResultGraph)(nil)
	_ TabularNode = (*DataFrame)(nil)
	_ TabularNode = (*QueryResultDataFrame)(nil)
)
