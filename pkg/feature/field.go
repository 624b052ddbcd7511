package feature

// Field is a typed attribute bound to exactly one entity. A non-empty
// TransformationID marks the field as derived by that transformation.
type Field struct {
	Name             string            `json:"name"`
	Variant          string            `json:"variant,omitempty"`
	ValueType        ValueType         `json:"value_type"`
	EntityID         ResourceID        `json:"entity_id"`
	TransformationID ResourceID        `json:"transformation_id,omitempty"`
	Description      string            `json:"description,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
	Owners           []string          `json:"owners,omitempty"`
}

func (f Field) ResourceID() ResourceID {
	return FormatFieldID(NameFromID(f.EntityID), f.Name, f.Variant)
}

func (f Field) Kind() Kind { return KindField }

// IsDerived reports whether the field was produced by a transformation.
func (f Field) IsDerived() bool {
	return f.TransformationID != ""
}

// FieldSpec names and types one raw field for NewFields.
type FieldSpec struct {
	Name      string
	ValueType ValueType
}

// NewFields builds raw fields for entity, all sharing variant.
func NewFields(entity Entity, variant string, specs ...FieldSpec) []Field {
	fields := make([]Field, 0, len(specs))
	for _, s := range specs {
		fields = append(fields, Field{
			Name:      s.Name,
			Variant:   variant,
			ValueType: s.ValueType,
			EntityID:  entity.ResourceID(),
		})
	}
	return fields
}
