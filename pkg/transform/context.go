// Package transform builds lazy transformation plans: a DAG of graph and
// dataframe nodes owned by a Context, finalized into a Transformation
// record whose body is a snapshot of the plan.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/rmax-ai/gfs/pkg/feature"
	"github.com/rmax-ai/gfs/pkg/logging"
)

const (
	// TransformationPrefix starts the default name of an in-progress
	// transformation; the creation time in unix seconds follows.
	TransformationPrefix = "TRANSFORMATION_"

	// BodyDigestTag holds the xxhash64 of the finalized body, in hex.
	BodyDigestTag = "gfs.body_digest"
)

// Context owns every node of one transformation session. It is not safe
// for concurrent use; a session lives on one goroutine.
type Context struct {
	nextID         int
	nodes          []Node
	byID           map[int]int
	sourceFields   map[feature.ResourceID]bool
	transformation *feature.Transformation
	presetName     string
	presetVariant  string
	discarded      bool
	now            func() time.Time
	log            *zap.Logger
}

// Option configures a Context.
type Option func(*Context)

// WithClock overrides the clock used to name the in-progress transformation.
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		c.now = now
	}
}

// WithLogger sets the context's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		c.log = logging.OrNop(l)
	}
}

// WithTransformationName fixes the name and variant of the transformation
// instead of the timestamped default.
func WithTransformationName(name, variant string) Option {
	return func(c *Context) {
		c.presetName = name
		c.presetVariant = variant
	}
}

// NewContext returns an empty context whose id counter starts at 0.
func NewContext(opts ...Option) *Context {
	c := &Context{
		byID:         make(map[int]int),
		sourceFields: make(map[feature.ResourceID]bool),
		now:          time.Now,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) live() *Context {
	if c == nil || c.discarded {
		panic(discardedPanic)
	}
	return c
}

// NextID returns the next node id and advances the counter. Ids are never
// reused.
func (c *Context) NextID() int {
	c.live()
	id := c.nextID
	c.nextID++
	return id
}

// AddNode appends n to the node list. Construction order is preserved.
func (c *Context) AddNode(n Node) {
	c.live()
	if _, dup := c.byID[n.ID()]; dup {
		panic(fmt.Sprintf("transform: node %d added twice", n.ID()))
	}
	c.byID[n.ID()] = len(c.nodes)
	c.nodes = append(c.nodes, n)
	NodesCreated.WithLabelValues(string(n.Kind())).Inc()
	c.log.Debug("node_added", zap.Int("node_id", n.ID()), zap.String("kind", string(n.Kind())), zap.Ints("parents", n.Parents()))
}

// Nodes returns the node list in construction order.
func (c *Context) Nodes() []Node {
	c.live()
	return append([]Node(nil), c.nodes...)
}

// Node looks up a node by id.
func (c *Context) Node(id int) (Node, bool) {
	c.live()
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return c.nodes[i], true
}

// Len returns the number of nodes.
func (c *Context) Len() int {
	c.live()
	return len(c.nodes)
}

// CurrentTransformation returns the in-progress transformation, creating
// it on first use. It stays mutable until Finalize.
func (c *Context) CurrentTransformation() *feature.Transformation {
	c.live()
	if c.transformation == nil {
		created := c.now().UTC()
		name := c.presetName
		if name == "" {
			name = fmt.Sprintf("%s%d", TransformationPrefix, created.Unix())
		}
		c.transformation = &feature.Transformation{
			Name:               name,
			Variant:            c.presetVariant,
			ExportResources:    []feature.Export{},
			SourceFieldIDs:     []feature.ResourceID{},
			DestType:           feature.BooleanType,
			TransformationType: feature.Cypher,
			CreatedAt:          &created,
		}
		c.log.Debug("transformation_started", zap.String("transformation_id", string(c.transformation.ResourceID())))
	}
	return c.transformation
}

// Exports returns a copy of the export list recorded so far.
func (c *Context) Exports() []feature.Export {
	return append([]feature.Export(nil), c.CurrentTransformation().ExportResources...)
}

func (c *Context) addSourceFields(fields ...feature.Field) {
	t := c.CurrentTransformation()
	for _, f := range fields {
		id := f.ResourceID()
		if c.sourceFields[id] {
			continue
		}
		c.sourceFields[id] = true
		t.SourceFieldIDs = append(t.SourceFieldIDs, id)
	}
}

// FinalizeOption overrides parts of the finalized transformation.
type FinalizeOption func(*feature.Transformation)

// WithName renames the transformation.
func WithName(name string) FinalizeOption {
	return func(t *feature.Transformation) {
		t.Name = name
	}
}

// WithVariant sets the transformation's variant.
func WithVariant(variant string) FinalizeOption {
	return func(t *feature.Transformation) {
		t.Variant = variant
	}
}

// WithDescription sets the transformation's description.
func WithDescription(desc string) FinalizeOption {
	return func(t *feature.Transformation) {
		t.Description = desc
	}
}

// Finalize snapshots the node list into the transformation body and returns
// a copy of the record. Nodes added later are not in the returned snapshot
// but are picked up by the next Finalize. Options that yield an invalid id
// leave the transformation untouched.
func (c *Context) Finalize(opts ...FinalizeOption) (feature.Transformation, error) {
	t := c.CurrentTransformation()
	candidate := t.Clone()
	for _, opt := range opts {
		opt(&candidate)
	}
	if _, err := feature.ParseID(candidate.ResourceID()); err != nil {
		return feature.Transformation{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	*t = candidate

	body, err := json.Marshal(c)
	if err != nil {
		return feature.Transformation{}, fmt.Errorf("snapshot transformation: %w", err)
	}
	t.Body = string(body)
	if t.Tags == nil {
		t.Tags = make(map[string]string)
	}
	t.Tags[BodyDigestTag] = fmt.Sprintf("%016x", xxhash.Sum64(body))

	Finalized.Inc()
	c.log.Info("transformation_finalized",
		zap.String("transformation_id", string(t.ResourceID())),
		zap.Int("nodes", len(c.nodes)),
		zap.Int("exports", len(t.ExportResources)),
	)
	return t.Clone(), nil
}

// Registrar persists resources in order, stopping at the first failure.
// *registry.Registry implements it.
type Registrar interface {
	RegisterMany(ctx context.Context, resources ...feature.Resource) error
}

// FinalizeAndRegister finalizes the transformation and registers it followed
// by fields and topologies. Derived resources still stamped with the
// pre-finalize transformation id are restamped with the final one. It is not
// atomic: see Registrar.
func (c *Context) FinalizeAndRegister(ctx context.Context, reg Registrar, fields []feature.Field, topologies []feature.Topology, opts ...FinalizeOption) (feature.Transformation, error) {
	before := c.CurrentTransformation().ResourceID()
	t, err := c.Finalize(opts...)
	if err != nil {
		return feature.Transformation{}, err
	}
	after := t.ResourceID()

	resources := make([]feature.Resource, 0, 1+len(fields)+len(topologies))
	resources = append(resources, t)
	for _, f := range fields {
		if f.TransformationID == before {
			f.TransformationID = after
		}
		resources = append(resources, f)
	}
	for _, topo := range topologies {
		if topo.TransformationID == before {
			topo.TransformationID = after
		}
		resources = append(resources, topo)
	}

	if err := reg.RegisterMany(ctx, resources...); err != nil {
		c.log.Error("transformation_register_failed", zap.String("transformation_id", string(after)), zap.Error(err))
		return t, err
	}
	return t, nil
}

// Discard ends the session. Any later use of the context, or of a handle
// pointing at it, panics.
func (c *Context) Discard() {
	c.live()
	c.discarded = true
	c.nodes = nil
	c.byID = nil
	c.log.Debug("context_discarded")
}

// Discarded reports whether Discard was called.
func (c *Context) Discarded() bool {
	return c.discarded
}
