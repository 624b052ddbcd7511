// Package registry persists feature resources in a store.Backend, keyed by
// their resource id.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rmax-ai/gfs/pkg/feature"
	"github.com/rmax-ai/gfs/pkg/logging"
	"github.com/rmax-ai/gfs/pkg/store"
)

var (
	// ErrNotFound is returned by getters for absent ids.
	ErrNotFound = store.ErrNotFound

	// ErrBackend wraps backend I/O failures.
	ErrBackend = store.ErrBackend

	// ErrDecode is returned when a stored value does not have the shape of
	// the requested kind.
	ErrDecode = errors.New("decode error")

	// ErrInvalidReference is returned by Register when reference checks are
	// enabled and a resource points at a missing or mismatched resource.
	ErrInvalidReference = errors.New("invalid reference")
)

// RegisterError reports which resource of a RegisterMany call failed.
// Resources before Index are committed; later ones were never attempted.
type RegisterError struct {
	Index      int
	ResourceID feature.ResourceID
	Err        error
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("register resource %d (%s): %v", e.Index, e.ResourceID, e.Err)
}

func (e *RegisterError) Unwrap() error {
	return e.Err
}

// Registry is the read/write facade over a backend. Writes are
// last-write-wins; there is no versioning or locking across callers.
type Registry struct {
	backend   store.Backend
	log       *zap.Logger
	checkRefs bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.log = logging.OrNop(l)
	}
}

// WithReferenceChecks makes Register verify that referenced entities,
// fields and topologies exist before writing.
func WithReferenceChecks() Option {
	return func(r *Registry) {
		r.checkRefs = true
	}
}

// New returns a registry over backend.
func New(backend store.Backend, opts ...Option) *Registry {
	r := &Registry{backend: backend, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend returns the underlying backend.
func (r *Registry) Backend() store.Backend {
	return r.backend
}

// Register serializes res and stores it under its id, overwriting any
// previous value.
func (r *Registry) Register(ctx context.Context, res feature.Resource) (err error) {
	defer func(start time.Time) { observe("register", start, err) }(time.Now())
	err = r.register(ctx, res)
	return err
}

func (r *Registry) register(ctx context.Context, res feature.Resource) error {
	id := res.ResourceID()
	if _, err := feature.ParseID(id); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if r.checkRefs {
		if err := r.checkReferences(ctx, res); err != nil {
			return err
		}
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	if err := r.backend.Put(ctx, string(id), data); err != nil {
		r.log.Error("register_failed", zap.String("resource_id", string(id)), zap.Error(err))
		return err
	}

	ResourcesRegistered.WithLabelValues(string(res.Kind())).Inc()
	r.log.Debug("resource_registered", zap.String("resource_id", string(id)))
	return nil
}

// RegisterMany registers resources in order. It is not transactional: on
// the first failure it returns a *RegisterError, leaving earlier writes in
// place and never attempting later ones.
func (r *Registry) RegisterMany(ctx context.Context, resources ...feature.Resource) error {
	for i, res := range resources {
		if err := r.Register(ctx, res); err != nil {
			return &RegisterError{Index: i, ResourceID: res.ResourceID(), Err: err}
		}
	}
	return nil
}

func getAs[T feature.Resource](ctx context.Context, r *Registry, op string, id feature.ResourceID) (v T, err error) {
	defer func(start time.Time) { observe(op, start, err) }(time.Now())

	data, err := r.backend.Get(ctx, string(id))
	if err != nil {
		return v, err
	}
	return decodeStrict[T](id, data)
}

func (r *Registry) GetEntity(ctx context.Context, id feature.ResourceID) (feature.Entity, error) {
	return getAs[feature.Entity](ctx, r, "get_entity", id)
}

func (r *Registry) GetField(ctx context.Context, id feature.ResourceID) (feature.Field, error) {
	return getAs[feature.Field](ctx, r, "get_field", id)
}

func (r *Registry) GetTableFeatureView(ctx context.Context, id feature.ResourceID) (feature.TableFeatureView, error) {
	return getAs[feature.TableFeatureView](ctx, r, "get_table_feature_view", id)
}

func (r *Registry) GetTopologyFeatureView(ctx context.Context, id feature.ResourceID) (feature.TopologyFeatureView, error) {
	return getAs[feature.TopologyFeatureView](ctx, r, "get_topology_feature_view", id)
}

func (r *Registry) GetTransformation(ctx context.Context, id feature.ResourceID) (feature.Transformation, error) {
	return getAs[feature.Transformation](ctx, r, "get_transformation", id)
}

func (r *Registry) GetGraph(ctx context.Context, id feature.ResourceID) (feature.Graph, error) {
	return getAs[feature.Graph](ctx, r, "get_graph", id)
}

func (r *Registry) GetTopology(ctx context.Context, id feature.ResourceID) (feature.Topology, error) {
	return getAs[feature.Topology](ctx, r, "get_topology", id)
}

// Get fetches any resource, dispatching on the kind segment of id.
func (r *Registry) Get(ctx context.Context, id feature.ResourceID) (feature.Resource, error) {
	switch feature.KindOf(id) {
	case feature.KindEntity:
		return r.GetEntity(ctx, id)
	case feature.KindField:
		return r.GetField(ctx, id)
	case feature.KindTableFeatureView:
		return r.GetTableFeatureView(ctx, id)
	case feature.KindTopologyFeatureView:
		return r.GetTopologyFeatureView(ctx, id)
	case feature.KindTransformation:
		return r.GetTransformation(ctx, id)
	case feature.KindGraph:
		return r.GetGraph(ctx, id)
	case feature.KindTopology:
		return r.GetTopology(ctx, id)
	default:
		return nil, fmt.Errorf("%s: unknown resource kind: %w", id, ErrNotFound)
	}
}

// GetFieldsOf returns every field bound to the entity named entityName, in
// id order. A single undecodable value fails the whole call.
func (r *Registry) GetFieldsOf(ctx context.Context, entityName string) (fields []feature.Field, err error) {
	defer func(start time.Time) { observe("get_fields_of", start, err) }(time.Now())

	entries, err := r.backend.ScanPrefix(ctx, feature.FieldPrefix(entityName))
	if err != nil {
		return nil, err
	}
	fields = make([]feature.Field, 0, len(entries))
	for _, e := range entries {
		f, err := decodeStrict[feature.Field](feature.ResourceID(e.Key), e.Value)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// ListEntities returns every registered entity, decoded.
func (r *Registry) ListEntities(ctx context.Context) (entities []feature.Entity, err error) {
	defer func(start time.Time) { observe("list_entities", start, err) }(time.Now())

	entries, err := r.backend.ScanPrefix(ctx, feature.KindEntity.Prefix())
	if err != nil {
		return nil, err
	}
	entities = make([]feature.Entity, 0, len(entries))
	for _, e := range entries {
		ent, err := decodeStrict[feature.Entity](feature.ResourceID(e.Key), e.Value)
		if err != nil {
			return nil, err
		}
		entities = append(entities, ent)
	}
	return entities, nil
}

// ListEntityRecords returns the raw stored entity values without decoding.
func (r *Registry) ListEntityRecords(ctx context.Context) (entries []store.Entry, err error) {
	defer func(start time.Time) { observe("list_entity_records", start, err) }(time.Now())
	return r.backend.ScanPrefix(ctx, feature.KindEntity.Prefix())
}

// ListIDs returns the ids of every resource of kind, in id order.
func (r *Registry) ListIDs(ctx context.Context, kind feature.Kind) ([]feature.ResourceID, error) {
	entries, err := r.backend.ScanPrefix(ctx, kind.Prefix())
	if err != nil {
		return nil, err
	}
	ids := make([]feature.ResourceID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, feature.ResourceID(e.Key))
	}
	return ids, nil
}
