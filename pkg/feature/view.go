package feature

import (
	"fmt"
	"time"
)

// TopologyShape is the physical layout a topology is served in.
type TopologyShape string

const (
	AdjacencyList       TopologyShape = "AdjacencyList"
	AdjacencyMatrix     TopologyShape = "AdjacencyMatrix"
	BipartiteGraphChain TopologyShape = "BipartiteGraphChain"
)

// TableFeatureView groups fields of one entity for serving.
type TableFeatureView struct {
	Name        string            `json:"name"`
	Variant     string            `json:"variant,omitempty"`
	EntityID    ResourceID        `json:"entity_id"`
	FieldIDs    []ResourceID      `json:"field_ids"`
	Online      bool              `json:"online"`
	Description string            `json:"description,omitempty"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Owner       string            `json:"owner,omitempty"`
}

func (v TableFeatureView) ResourceID() ResourceID {
	return FormatID(KindTableFeatureView, v.Name, v.Variant)
}

func (v TableFeatureView) Kind() Kind { return KindTableFeatureView }

// TopologyFeatureView groups topologies for serving.
type TopologyFeatureView struct {
	Name         string            `json:"name"`
	Variant      string            `json:"variant,omitempty"`
	TopologyType TopologyShape     `json:"topology_type"`
	TopologyIDs  []ResourceID      `json:"topology_ids"`
	Online       bool              `json:"online"`
	Description  string            `json:"description,omitempty"`
	CreatedAt    *time.Time        `json:"created_at,omitempty"`
	UpdatedAt    *time.Time        `json:"updated_at,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Owners       []string          `json:"owners,omitempty"`
}

func (v TopologyFeatureView) ResourceID() ResourceID {
	return FormatID(KindTopologyFeatureView, v.Name, v.Variant)
}

func (v TopologyFeatureView) Kind() Kind { return KindTopologyFeatureView }

// FeatureView holds exactly one of a table view or a topology view.
type FeatureView struct {
	Table    *TableFeatureView    `json:"table,omitempty"`
	Topology *TopologyFeatureView `json:"topology,omitempty"`
}

// TableView wraps v as a FeatureView.
func TableView(v TableFeatureView) FeatureView {
	return FeatureView{Table: &v}
}

// TopologyView wraps v as a FeatureView.
func TopologyView(v TopologyFeatureView) FeatureView {
	return FeatureView{Topology: &v}
}

// Validate checks that exactly one variant is set.
func (v FeatureView) Validate() error {
	if (v.Table == nil) == (v.Topology == nil) {
		return fmt.Errorf("feature view must hold exactly one of table or topology")
	}
	return nil
}

// DatasetKind tells a single-graph dataset from a multi-graph one.
type DatasetKind string

const (
	SingleGraphDataset    DatasetKind = "single"
	MultipleGraphsDataset DatasetKind = "multiple"
)

// GraphDataset describes the views a graph is assembled from.
type GraphDataset struct {
	Kind         DatasetKind   `json:"kind"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	FeatureViews []FeatureView `json:"feature_views"`
}
