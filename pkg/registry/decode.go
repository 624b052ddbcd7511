package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rmax-ai/gfs/pkg/feature"
)

// decodeStrict decodes data into T, rejecting unknown fields and trailing
// content, and checks that the decoded resource really lives at id.
func decodeStrict[T feature.Resource](id feature.ResourceID, data []byte) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %s: %w", ErrDecode, id, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return v, fmt.Errorf("%w: %s: trailing data after value", ErrDecode, id)
	}
	if got := v.ResourceID(); got != id {
		return v, fmt.Errorf("%w: %s: stored value identifies as %s", ErrDecode, id, got)
	}
	return v, nil
}

// DecodeResource strictly decodes data as a resource of the given kind.
// The resource's own id is not checked against a key.
func DecodeResource(kind feature.Kind, data []byte) (feature.Resource, error) {
	switch kind {
	case feature.KindEntity:
		return decodeAny[feature.Entity](data)
	case feature.KindField:
		return decodeAny[feature.Field](data)
	case feature.KindTableFeatureView:
		return decodeAny[feature.TableFeatureView](data)
	case feature.KindTopologyFeatureView:
		return decodeAny[feature.TopologyFeatureView](data)
	case feature.KindTransformation:
		return decodeAny[feature.Transformation](data)
	case feature.KindGraph:
		return decodeAny[feature.Graph](data)
	case feature.KindTopology:
		return decodeAny[feature.Topology](data)
	default:
		return nil, fmt.Errorf("%w: unknown resource kind %q", ErrDecode, kind)
	}
}

func decodeAny[T feature.Resource](data []byte) (feature.Resource, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if _, err := feature.ParseID(v.ResourceID()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return v, nil
}
