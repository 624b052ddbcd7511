package registry

import (
	"context"
	"fmt"

	"github.com/rmax-ai/gfs/pkg/feature"
)

func (r *Registry) checkReferences(ctx context.Context, res feature.Resource) error {
	id := res.ResourceID()
	switch v := res.(type) {
	case feature.Entity:
		if !v.IsEdge() {
			return nil
		}
		src, dst, err := v.Endpoints()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidReference, err)
		}
		return r.requireEntities(ctx, id, false, src, dst)
	case feature.Field:
		return r.requireEntities(ctx, id, false, v.EntityID)
	case feature.Graph:
		return r.requireEntities(ctx, id, false, v.EntityIDs...)
	case feature.Topology:
		return r.requireEntities(ctx, id, true, v.EdgeEntityIDs...)
	case feature.TableFeatureView:
		if err := r.requireEntities(ctx, id, false, v.EntityID); err != nil {
			return err
		}
		return r.requireFields(ctx, id, v.EntityID, v.FieldIDs...)
	case feature.TopologyFeatureView:
		for _, ref := range v.TopologyIDs {
			if _, err := r.GetTopology(ctx, ref); err != nil {
				return fmt.Errorf("%w: %s references %s: %w", ErrInvalidReference, id, ref, err)
			}
		}
	case feature.Transformation:
		return r.requireFields(ctx, id, "", v.SourceFieldIDs...)
	}
	return nil
}

func (r *Registry) requireEntities(ctx context.Context, from feature.ResourceID, edge bool, refs ...feature.ResourceID) error {
	for _, ref := range refs {
		e, err := r.GetEntity(ctx, ref)
		if err != nil {
			return fmt.Errorf("%w: %s references %s: %w", ErrInvalidReference, from, ref, err)
		}
		if edge && !e.IsEdge() {
			return fmt.Errorf("%w: %s references %s, which is not an edge entity", ErrInvalidReference, from, ref)
		}
	}
	return nil
}

// requireFields checks that every ref is a registered field, bound to
// entity when entity is non-empty.
func (r *Registry) requireFields(ctx context.Context, from, entity feature.ResourceID, refs ...feature.ResourceID) error {
	for _, ref := range refs {
		f, err := r.GetField(ctx, ref)
		if err != nil {
			return fmt.Errorf("%w: %s references %s: %w", ErrInvalidReference, from, ref, err)
		}
		if entity != "" && f.EntityID != entity {
			return fmt.Errorf("%w: %s references %s, which belongs to %s", ErrInvalidReference, from, ref, f.EntityID)
		}
	}
	return nil
}
