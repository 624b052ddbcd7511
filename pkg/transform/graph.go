package transform

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/iter"

	"github.com/rmax-ai/gfs/pkg/feature"
)

// AllFieldsSuffix names the synthetic view of a graph built from a
// registered Graph: "{entity}_ALL_FIELDS".
const AllFieldsSuffix = "_ALL_FIELDS"

// Resolver reads registered resources. *registry.Registry implements it.
type Resolver interface {
	GetEntity(ctx context.Context, id feature.ResourceID) (feature.Entity, error)
	GetField(ctx context.Context, id feature.ResourceID) (feature.Field, error)
	GetFieldsOf(ctx context.Context, entityName string) ([]feature.Field, error)
	GetTableFeatureView(ctx context.Context, id feature.ResourceID) (feature.TableFeatureView, error)
	GetGraph(ctx context.Context, id feature.ResourceID) (feature.Graph, error)
}

// graphBase carries what every graph-shaped node shares: its handle and its
// per-type frames.
type graphBase struct {
	Handle `json:"-"`
	Schema graphSchema `json:"schema"`
}

func (g *graphBase) graph() *graphBase {
	return g
}

func (g *graphBase) Vertices() *VertexSelection {
	sel := &VertexSelection{
		graphBase:     graphBase{Handle: g.derive(), Schema: g.Schema.clone()},
		ParentIDs:     []int{g.ID()},
		Selector:      DirectAccess(""),
		Heterogeneous: len(g.Schema.Vertices) > 1,
	}
	sel.registerSelf(sel)
	return sel
}

func (g *graphBase) Edges() *EdgeSelection {
	sel := &EdgeSelection{
		graphBase:     graphBase{Handle: g.derive(), Schema: g.Schema.clone()},
		ParentIDs:     []int{g.ID()},
		Selector:      DirectAccess(""),
		Heterogeneous: len(g.Schema.Edges) > 1,
	}
	sel.registerSelf(sel)
	return sel
}

func (g *graphBase) VerticesByType(t string) (*VertexSelection, bool) {
	frame, ok := g.Schema.Vertices[t]
	if !ok {
		return nil, false
	}
	schema := g.Schema.clone()
	schema.Vertices = map[string]Frame{t: frame.clone()}

	sel := &VertexSelection{
		graphBase: graphBase{Handle: g.derive(), Schema: schema},
		ParentIDs: []int{g.ID()},
		Selector:  DirectAccess(t),
	}
	sel.registerSelf(sel)
	return sel, true
}

func (g *graphBase) EdgesByType(t string) (*EdgeSelection, bool) {
	frame, ok := g.Schema.Edges[t]
	if !ok {
		return nil, false
	}
	schema := g.Schema.clone()
	schema.Edges = map[string]Frame{t: frame.clone()}

	sel := &EdgeSelection{
		graphBase: graphBase{Handle: g.derive(), Schema: schema},
		ParentIDs: []int{g.ID()},
		Selector:  DirectAccess(t),
	}
	sel.registerSelf(sel)
	return sel, true
}

func (g *graphBase) ExportTopology(name string) (feature.Topology, error) {
	g.mustLive()
	topo := feature.Topology{
		Name:             name,
		TransformationID: g.owningTransformationID(),
		EdgeEntityIDs:    g.Schema.edgeEntityIDs(),
	}
	if g.Schema.TopologyType != nil {
		shape := *g.Schema.TopologyType
		topo.TopologyType = &shape
	}
	if _, err := feature.ParseID(topo.ResourceID()); err != nil {
		return feature.Topology{}, fmt.Errorf("%w: export topology: %w", ErrValidation, err)
	}
	g.recordExport(g.ID(), topo.ResourceID())
	return topo, nil
}

// SingleGraph is a full graph assembled from registered views.
type SingleGraph struct {
	graphBase
	Name string `json:"name"`
	// Source is the registered Graph this node was built from, if any.
	Source feature.ResourceID `json:"source,omitempty"`
}

func (g *SingleGraph) Kind() NodeKind { return KindSingleGraph }
func (g *SingleGraph) Parents() []int { return nil }

// NewSingleGraph builds a graph from a single-graph dataset. Table views are
// bucketed by their entity's kind and type label; a later view for the same
// label replaces an earlier one. The last topology view sets the shape.
func NewSingleGraph(ctx context.Context, tc *Context, dataset feature.GraphDataset, res Resolver) (*SingleGraph, error) {
	if dataset.Kind == feature.MultipleGraphsDataset {
		return nil, fmt.Errorf("%w: dataset %q: multiple-graph datasets are not supported", ErrValidation, dataset.Name)
	}

	schema := newGraphSchema()
	var sources []feature.Field
	for i, view := range dataset.FeatureViews {
		if err := view.Validate(); err != nil {
			return nil, fmt.Errorf("%w: dataset %q view %d: %w", ErrValidation, dataset.Name, i, err)
		}
		if view.Topology != nil {
			shape := view.Topology.TopologyType
			schema.TopologyType = &shape
			continue
		}

		tv := view.Table
		entity, err := res.GetEntity(ctx, tv.EntityID)
		if err != nil {
			return nil, fmt.Errorf("resolve entity of view %s: %w", tv.ResourceID(), err)
		}
		fields := make([]feature.Field, 0, len(tv.FieldIDs))
		for _, fid := range tv.FieldIDs {
			f, err := res.GetField(ctx, fid)
			if err != nil {
				return nil, fmt.Errorf("resolve field of view %s: %w", tv.ResourceID(), err)
			}
			if f.EntityID != entity.ResourceID() {
				return nil, fmt.Errorf("%w: view %s: field %s belongs to %s", ErrValidation, tv.ResourceID(), fid, f.EntityID)
			}
			fields = append(fields, f)
		}

		frame := Frame{ViewName: tv.Name, EntityID: entity.ResourceID(), Fields: fields}
		if entity.IsEdge() {
			schema.Edges[entity.EntityType.TLabel] = frame
		} else {
			schema.Vertices[entity.EntityType.TLabel] = frame
		}
		sources = append(sources, fields...)
	}

	g := &SingleGraph{
		graphBase: graphBase{Handle: Handle{id: tc.NextID(), ctx: tc}, Schema: schema},
		Name:      dataset.Name,
	}
	tc.addSourceFields(sources...)
	tc.AddNode(g)
	return g, nil
}

type resolvedEntity struct {
	entity feature.Entity
	fields []feature.Field
}

// FromGraph builds a graph from a registered Graph, resolving its entities
// concurrently. Every registered version of every field of each entity is
// pulled in, not one pinned version.
func FromGraph(ctx context.Context, tc *Context, graph feature.Graph, res Resolver) (*SingleGraph, error) {
	resolved, err := iter.MapErr(graph.EntityIDs, func(id *feature.ResourceID) (resolvedEntity, error) {
		e, err := res.GetEntity(ctx, *id)
		if err != nil {
			return resolvedEntity{}, fmt.Errorf("resolve entity %s of graph %s: %w", *id, graph.ResourceID(), err)
		}
		all, err := res.GetFieldsOf(ctx, e.Name)
		if err != nil {
			return resolvedEntity{}, fmt.Errorf("resolve fields of %s: %w", *id, err)
		}
		fields := make([]feature.Field, 0, len(all))
		for _, f := range all {
			if f.EntityID == e.ResourceID() {
				fields = append(fields, f)
			}
		}
		return resolvedEntity{entity: e, fields: fields}, nil
	})
	if err != nil {
		return nil, err
	}

	schema := newGraphSchema()
	var sources []feature.Field
	for _, r := range resolved {
		frame := Frame{
			ViewName: r.entity.Name + AllFieldsSuffix,
			EntityID: r.entity.ResourceID(),
			Fields:   r.fields,
		}
		if r.entity.IsEdge() {
			schema.Edges[r.entity.EntityType.TLabel] = frame
		} else {
			schema.Vertices[r.entity.EntityType.TLabel] = frame
		}
		sources = append(sources, r.fields...)
	}

	g := &SingleGraph{
		graphBase: graphBase{Handle: Handle{id: tc.NextID(), ctx: tc}, Schema: schema},
		Name:      graph.Name,
		Source:    graph.ResourceID(),
	}
	tc.addSourceFields(sources...)
	tc.AddNode(g)
	return g, nil
}

// FromGraphID fetches the Graph registered under id and calls FromGraph.
func FromGraphID(ctx context.Context, tc *Context, id feature.ResourceID, res Resolver) (*SingleGraph, error) {
	graph, err := res.GetGraph(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve graph %s: %w", id, err)
	}
	return FromGraph(ctx, tc, graph, res)
}
