package feature

import "time"

// TransformationKind tags how a transformation body is to be executed.
type TransformationKind string

const (
	Cypher         TransformationKind = "Cypher"
	CustomFunction TransformationKind = "CustomFunction"
)

// Export links a plan node to a resource it produced.
type Export struct {
	NodeID     int        `json:"node_id"`
	ResourceID ResourceID `json:"resource_id"`
}

// Transformation is the provenance record of a derivation plan. Body holds
// the serialized plan snapshot.
type Transformation struct {
	Name               string             `json:"name"`
	Variant            string             `json:"variant,omitempty"`
	ExportResources    []Export           `json:"export_resources"`
	SourceFieldIDs     []ResourceID       `json:"source_field_ids"`
	DestType           ValueType          `json:"dest_type"`
	TransformationType TransformationKind `json:"transformation_type"`
	Body               string             `json:"body"`
	Description        string             `json:"description,omitempty"`
	CreatedAt          *time.Time         `json:"created_at,omitempty"`
	Tags               map[string]string  `json:"tags,omitempty"`
	Owners             []string           `json:"owners,omitempty"`
}

func (t Transformation) ResourceID() ResourceID {
	return FormatID(KindTransformation, t.Name, t.Variant)
}

func (t Transformation) Kind() Kind { return KindTransformation }

// Clone returns a deep copy of t.
func (t Transformation) Clone() Transformation {
	c := t
	c.ExportResources = append([]Export(nil), t.ExportResources...)
	c.SourceFieldIDs = append([]ResourceID(nil), t.SourceFieldIDs...)
	c.Owners = append([]string(nil), t.Owners...)
	if t.Tags != nil {
		c.Tags = make(map[string]string, len(t.Tags))
		for k, v := range t.Tags {
			c.Tags[k] = v
		}
	}
	if t.CreatedAt != nil {
		ts := *t.CreatedAt
		c.CreatedAt = &ts
	}
	return c
}
