package feature

import "time"

// Graph is a named set of entities forming a schema subset.
type Graph struct {
	Name        string            `json:"name"`
	Variant     string            `json:"variant,omitempty"`
	Description string            `json:"description,omitempty"`
	EntityIDs   []ResourceID      `json:"entity_ids"`
	Tags        map[string]string `json:"tags,omitempty"`
	Owners      []string          `json:"owners,omitempty"`
}

// NewGraph returns a graph over the given entities.
func NewGraph(name, variant string, entities ...Entity) Graph {
	ids := make([]ResourceID, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ResourceID())
	}
	return Graph{Name: name, Variant: variant, EntityIDs: ids}
}

func (g Graph) ResourceID() ResourceID { return FormatID(KindGraph, g.Name, g.Variant) }
func (g Graph) Kind() Kind             { return KindGraph }

// Topology is connectivity data independent of attribute values.
// EdgeEntityIDs is empty for anonymous topologies, such as those
// produced by a query.
type Topology struct {
	Name             string            `json:"name"`
	Variant          string            `json:"variant,omitempty"`
	TransformationID ResourceID        `json:"transformation_id,omitempty"`
	TopologyType     *TopologyShape    `json:"topology_type,omitempty"`
	EdgeEntityIDs    []ResourceID      `json:"edge_entity_ids"`
	Description      string            `json:"description,omitempty"`
	CreatedAt        *time.Time        `json:"created_at,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
	Owners           []string          `json:"owners,omitempty"`
}

func (t Topology) ResourceID() ResourceID { return FormatID(KindTopology, t.Name, t.Variant) }
func (t Topology) Kind() Kind             { return KindTopology }
