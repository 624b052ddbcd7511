package transform

import (
	"sort"

	"github.com/rmax-ai/gfs/pkg/feature"
)

// Frame is the attribute source of one vertex or edge type.
type Frame struct {
	ViewName string             `json:"view_name"`
	EntityID feature.ResourceID `json:"entity_id"`
	Fields   []feature.Field    `json:"fields"`
}

func (f Frame) clone() Frame {
	f.Fields = append([]feature.Field(nil), f.Fields...)
	return f
}

// graphSchema buckets frames by type label.
type graphSchema struct {
	Vertices     map[string]Frame       `json:"vertices"`
	Edges        map[string]Frame       `json:"edges"`
	TopologyType *feature.TopologyShape `json:"topology_type,omitempty"`
	// Derived holds vertex attributes computed by earlier operations, such
	// as neighbor aggregations.
	Derived []*Column `json:"derived,omitempty"`
}

func newGraphSchema() graphSchema {
	return graphSchema{
		Vertices: make(map[string]Frame),
		Edges:    make(map[string]Frame),
	}
}

// normalized replaces missing buckets with empty ones.
func (s graphSchema) normalized() graphSchema {
	if s.Vertices == nil {
		s.Vertices = make(map[string]Frame)
	}
	if s.Edges == nil {
		s.Edges = make(map[string]Frame)
	}
	return s
}

func (s graphSchema) clone() graphSchema {
	c := newGraphSchema()
	for t, f := range s.Vertices {
		c.Vertices[t] = f.clone()
	}
	for t, f := range s.Edges {
		c.Edges[t] = f.clone()
	}
	if s.TopologyType != nil {
		shape := *s.TopologyType
		c.TopologyType = &shape
	}
	c.Derived = append([]*Column(nil), s.Derived...)
	return c
}

// edgeEntityIDs returns the defining entity of every edge type, sorted.
func (s graphSchema) edgeEntityIDs() []feature.ResourceID {
	ids := make([]feature.ResourceID, 0, len(s.Edges))
	for _, f := range s.Edges {
		ids = append(ids, f.EntityID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedTypes(frames map[string]Frame) []string {
	types := make([]string, 0, len(frames))
	for t := range frames {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// variables lists every attribute an expression over frames may reference.
func (s graphSchema) variables(frames map[string]Frame) []variable {
	var vars []variable
	for _, t := range sortedTypes(frames) {
		for _, f := range frames[t].Fields {
			vars = append(vars, variable{name: f.Name, typ: f.ValueType})
		}
	}
	for _, c := range s.Derived {
		vars = append(vars, variable{name: c.Name, typ: c.ValueType})
	}
	return vars
}

// hasField reports whether any frame carries a field called name.
func hasField(frames map[string]Frame, name string) bool {
	for _, f := range frames {
		for _, field := range f.Fields {
			if field.Name == name {
				return true
			}
		}
	}
	return false
}
