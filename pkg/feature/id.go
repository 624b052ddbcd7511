package feature

import (
	"fmt"
	"strings"
)

// ResourceID is the registry key of a resource. It is a '/'-joined string
// whose first segment names the resource kind.
type ResourceID string

// Kind identifies a family of registrable resources.
type Kind string

const (
	KindEntity              Kind = "Entity"
	KindField               Kind = "Field"
	KindTableFeatureView    Kind = "TableFeatureView"
	KindTopologyFeatureView Kind = "TopologyFeatureView"
	KindTransformation      Kind = "Transformation"
	KindGraph               Kind = "Graph"
	KindTopology            Kind = "Topology"
)

// Kinds lists every resource kind in registry key order.
var Kinds = []Kind{
	KindEntity,
	KindField,
	KindGraph,
	KindTableFeatureView,
	KindTopology,
	KindTopologyFeatureView,
	KindTransformation,
}

const sep = "/"

// Resource is anything the registry can persist under its own id.
type Resource interface {
	ResourceID() ResourceID
	Kind() Kind
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Prefix returns the key prefix shared by every resource of kind k.
func (k Kind) Prefix() string {
	return string(k) + sep
}

// FormatID builds the id of a three-segment resource: Kind/name/variant.
// Field ids carry the owning entity's name as well; use FormatFieldID.
func FormatID(kind Kind, name, variant string) ResourceID {
	return ResourceID(strings.Join([]string{string(kind), name, variant}, sep))
}

// FormatFieldID builds Field/entityName/name/variant.
func FormatFieldID(entityName, name, variant string) ResourceID {
	return ResourceID(strings.Join([]string{string(KindField), entityName, name, variant}, sep))
}

// FieldPrefix is the scan prefix covering every field bound to entityName.
func FieldPrefix(entityName string) string {
	return string(KindField) + sep + entityName + sep
}

// NameFromID extracts the name segment from id. For fields that is the
// second-to-last segment, after the entity name. Malformed ids yield "".
func NameFromID(id ResourceID) string {
	parsed, err := ParseID(id)
	if err != nil {
		return ""
	}
	return parsed.Name
}

// ParsedID is the decomposed form of a ResourceID.
type ParsedID struct {
	Kind       Kind
	EntityName string // only set for fields
	Name       string
	Variant    string
}

// ID reassembles the parsed segments.
func (p ParsedID) ID() ResourceID {
	if p.Kind == KindField {
		return FormatFieldID(p.EntityName, p.Name, p.Variant)
	}
	return FormatID(p.Kind, p.Name, p.Variant)
}

// ParseID splits id into its segments and checks them against its kind.
func ParseID(id ResourceID) (ParsedID, error) {
	segs := strings.Split(string(id), sep)
	kind := Kind(segs[0])
	if !kind.Valid() {
		return ParsedID{}, fmt.Errorf("resource id %q: unknown kind %q", id, segs[0])
	}

	want := 3
	if kind == KindField {
		want = 4
	}
	if len(segs) != want {
		return ParsedID{}, fmt.Errorf("resource id %q: expected %d segments for %s, got %d", id, want, kind, len(segs))
	}

	p := ParsedID{Kind: kind, Variant: segs[want-1]}
	if kind == KindField {
		p.EntityName = segs[1]
		p.Name = segs[2]
		if p.EntityName == "" {
			return ParsedID{}, fmt.Errorf("resource id %q: empty entity name", id)
		}
	} else {
		p.Name = segs[1]
	}
	if p.Name == "" {
		return ParsedID{}, fmt.Errorf("resource id %q: empty name", id)
	}
	return p, nil
}

// KindOf returns the kind named by the first segment of id, or "" if unknown.
func KindOf(id ResourceID) Kind {
	head, _, _ := strings.Cut(string(id), sep)
	if k := Kind(head); k.Valid() {
		return k
	}
	return ""
}
