package transform

import (
	"fmt"
	"strings"

	"github.com/rmax-ai/gfs/pkg/feature"
)

// QueryResultGraph is the graph returned by a graph query run against the
// data of its parent node. Its types are unknown until the query runs.
type QueryResultGraph struct {
	graphBase
	Parent int    `json:"parent"`
	Query  string `json:"query"`
}

func (g *QueryResultGraph) Kind() NodeKind { return KindQueryResultGraph }
func (g *QueryResultGraph) Parents() []int { return []int{g.Parent} }

// QueryToGraph derives a graph node from a query over n. The query is kept
// verbatim.
func QueryToGraph(n Node, query string) (*QueryResultGraph, error) {
	n.handle().mustLive()
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrValidation)
	}
	schema := newGraphSchema()
	shape := feature.AdjacencyList
	schema.TopologyType = &shape

	g := &QueryResultGraph{
		graphBase: graphBase{Handle: n.handle().derive(), Schema: schema},
		Parent:    n.ID(),
		Query:     query,
	}
	g.registerSelf(g)
	return g, nil
}

// ColumnDef declares one column of a query result.
type ColumnDef struct {
	Name      string            `json:"name"`
	ValueType feature.ValueType `json:"value_type"`
}

// QuerySchema is the caller-declared shape of a tabular query result.
// EntityID, when set, attributes every column to that entity.
type QuerySchema struct {
	Columns  []ColumnDef        `json:"columns"`
	EntityID feature.ResourceID `json:"entity_id,omitempty"`
}

// Validate checks column names are unique and non-empty, types are known,
// and EntityID, if set, names an entity.
func (s QuerySchema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: query schema has no columns", ErrValidation)
	}
	seen := make(map[string]bool, len(s.Columns))
	for i, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: query column %d has no name", ErrValidation, i)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate query column %q", ErrValidation, c.Name)
		}
		seen[c.Name] = true
		if err := c.ValueType.Validate(); err != nil {
			return fmt.Errorf("%w: query column %q: %w", ErrValidation, c.Name, err)
		}
	}
	if s.EntityID != "" {
		if p, err := feature.ParseID(s.EntityID); err != nil || p.Kind != feature.KindEntity {
			return fmt.Errorf("%w: query schema entity %q is not an entity id", ErrValidation, s.EntityID)
		}
	}
	return nil
}

// QueryResultDataFrame is the table returned by a tabular query run
// against the data of its parent node.
type QueryResultDataFrame struct {
	frame
	Parent int    `json:"parent"`
	Query  string `json:"query"`
}

func (d *QueryResultDataFrame) Kind() NodeKind { return KindQueryResultDataFrame }
func (d *QueryResultDataFrame) Parents() []int { return []int{d.Parent} }

// QueryToDataFrame derives a tabular node from a query over n whose result
// has the declared schema.
func QueryToDataFrame(n Node, query string, schema QuerySchema) (*QueryResultDataFrame, error) {
	n.handle().mustLive()
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrValidation)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	h := n.handle().derive()
	cols := make([]*Column, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		cols = append(cols, &Column{
			Name:      c.Name,
			Origin:    h.id,
			ValueType: c.ValueType,
			EntityID:  schema.EntityID,
		})
	}
	body, err := newFrame(h, "", cols)
	if err != nil {
		return nil, err
	}
	body.EntityID = schema.EntityID

	df := &QueryResultDataFrame{frame: body, Parent: n.ID(), Query: query}
	df.registerSelf(df)
	return df, nil
}
