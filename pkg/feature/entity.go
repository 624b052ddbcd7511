package feature

import (
	"fmt"
	"strings"
	"time"
)

// EntityKind distinguishes vertex types from edge types.
type EntityKind string

const (
	NodeEntity EntityKind = "node"
	EdgeEntity EntityKind = "edge"
)

// EntityType is the kind of an entity together with its graph type label.
type EntityType struct {
	Kind   EntityKind `json:"kind"`
	TLabel string     `json:"tlabel"`
}

// Entity describes a vertex type or an edge type.
type Entity struct {
	Name                 string            `json:"name"`
	Variant              string            `json:"variant,omitempty"`
	EntityType           EntityType        `json:"entity_type"`
	PrimaryKey           string            `json:"primary_key"`
	Description          string            `json:"description,omitempty"`
	CreatedTimestamp     *time.Time        `json:"created_timestamp,omitempty"`
	LastUpdatedTimestamp *time.Time        `json:"last_updated_timestamp,omitempty"`
	Tags                 map[string]string `json:"tags,omitempty"`
	Owners               []string          `json:"owners,omitempty"`
}

// edgeKeySep joins the endpoint entity ids of an edge entity's primary key.
const edgeKeySep = "|"

// NewNodeEntity returns a vertex entity keyed by primaryKey.
func NewNodeEntity(name, variant, tlabel, primaryKey string) Entity {
	return Entity{
		Name:       name,
		Variant:    variant,
		EntityType: EntityType{Kind: NodeEntity, TLabel: tlabel},
		PrimaryKey: primaryKey,
	}
}

// NewEdgeEntity returns an edge entity between src and dst. Its primary key
// is "{src}|{dst}".
func NewEdgeEntity(name, variant, tlabel string, src, dst ResourceID) Entity {
	return Entity{
		Name:       name,
		Variant:    variant,
		EntityType: EntityType{Kind: EdgeEntity, TLabel: tlabel},
		PrimaryKey: string(src) + edgeKeySep + string(dst),
	}
}

func (e Entity) ResourceID() ResourceID { return FormatID(KindEntity, e.Name, e.Variant) }
func (e Entity) Kind() Kind             { return KindEntity }

// IsEdge reports whether e describes an edge type.
func (e Entity) IsEdge() bool {
	return e.EntityType.Kind == EdgeEntity
}

// Endpoints splits an edge entity's primary key into its source and
// destination entity ids.
func (e Entity) Endpoints() (src, dst ResourceID, err error) {
	if !e.IsEdge() {
		return "", "", fmt.Errorf("entity %s is not an edge entity", e.ResourceID())
	}
	s, d, ok := strings.Cut(e.PrimaryKey, edgeKeySep)
	if !ok || s == "" || d == "" {
		return "", "", fmt.Errorf("entity %s: malformed edge key %q", e.ResourceID(), e.PrimaryKey)
	}
	return ResourceID(s), ResourceID(d), nil
}
