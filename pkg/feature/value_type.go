package feature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ValueKind is the tag of a ValueType.
type ValueKind string

const (
	KindString        ValueKind = "String"
	KindInt           ValueKind = "Int"
	KindFloat         ValueKind = "Float"
	KindBoolean       ValueKind = "Boolean"
	KindDate          ValueKind = "Date"
	KindTime          ValueKind = "Time"
	KindDateTime      ValueKind = "DateTime"
	KindDuration      ValueKind = "Duration"
	KindTopologyValue ValueKind = "Topology"
	KindArray         ValueKind = "Array"
)

var scalarKinds = map[ValueKind]bool{
	KindString:        true,
	KindInt:           true,
	KindFloat:         true,
	KindBoolean:       true,
	KindDate:          true,
	KindTime:          true,
	KindDateTime:      true,
	KindDuration:      true,
	KindTopologyValue: true,
}

// ValueType is the type of a field value: one of the scalar kinds, or an
// Array whose Elem is itself a ValueType.
//
// On the wire scalars encode as their name ("Float") and arrays as
// {"Array": <elem>}.
type ValueType struct {
	Kind ValueKind
	Elem *ValueType
}

var (
	StringType   = ValueType{Kind: KindString}
	IntType      = ValueType{Kind: KindInt}
	FloatType    = ValueType{Kind: KindFloat}
	BooleanType  = ValueType{Kind: KindBoolean}
	DateType     = ValueType{Kind: KindDate}
	TimeType     = ValueType{Kind: KindTime}
	DateTimeType = ValueType{Kind: KindDateTime}
	DurationType = ValueType{Kind: KindDuration}
	TopologyType = ValueType{Kind: KindTopologyValue}
)

// ArrayOf returns Array(elem).
func ArrayOf(elem ValueType) ValueType {
	e := elem
	return ValueType{Kind: KindArray, Elem: &e}
}

// IsArray reports whether t is an Array type.
func (t ValueType) IsArray() bool {
	return t.Kind == KindArray
}

// Equal compares two types structurally.
func (t ValueType) Equal(o ValueType) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind != KindArray {
		return true
	}
	if t.Elem == nil || o.Elem == nil {
		return t.Elem == o.Elem
	}
	return t.Elem.Equal(*o.Elem)
}

// Validate checks that t belongs to the closed type set.
func (t ValueType) Validate() error {
	if t.Kind == KindArray {
		if t.Elem == nil {
			return fmt.Errorf("array type without element type")
		}
		return t.Elem.Validate()
	}
	if !scalarKinds[t.Kind] {
		return fmt.Errorf("unknown value type %q", t.Kind)
	}
	return nil
}

// String renders t as "Float" or "Array(Float)".
func (t ValueType) String() string {
	if t.Kind == KindArray {
		if t.Elem == nil {
			return "Array(?)"
		}
		return "Array(" + t.Elem.String() + ")"
	}
	return string(t.Kind)
}

// ParseValueType is the inverse of ValueType.String.
func ParseValueType(s string) (ValueType, error) {
	s = strings.TrimSpace(s)
	if inner, ok := strings.CutPrefix(s, "Array("); ok {
		inner, ok = strings.CutSuffix(inner, ")")
		if !ok {
			return ValueType{}, fmt.Errorf("unterminated array type %q", s)
		}
		elem, err := ParseValueType(inner)
		if err != nil {
			return ValueType{}, err
		}
		return ArrayOf(elem), nil
	}
	t := ValueType{Kind: ValueKind(s)}
	if err := t.Validate(); err != nil {
		return ValueType{}, err
	}
	return t, nil
}

// MarshalJSON implements json.Marshaler.
func (t ValueType) MarshalJSON() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Kind == KindArray {
		return json.Marshal(map[string]ValueType{string(KindArray): *t.Elem})
	}
	return json.Marshal(string(t.Kind))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ValueType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		v := ValueType{Kind: ValueKind(name)}
		if v.Kind == KindArray || !scalarKinds[v.Kind] {
			return fmt.Errorf("unknown value type %q", name)
		}
		*t = v
		return nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("value type: %w", err)
	}
	raw, ok := wrapped[string(KindArray)]
	if !ok || len(wrapped) != 1 {
		return fmt.Errorf("value type: expected a scalar name or {\"Array\": ...}, got %s", data)
	}
	var elem ValueType
	if err := elem.UnmarshalJSON(raw); err != nil {
		return err
	}
	*t = ArrayOf(elem)
	return nil
}
