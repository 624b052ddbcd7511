package feature

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValueTypeJSON(t *testing.T) {
	tests := []struct {
		typ  ValueType
		wire string
		str  string
	}{
		{FloatType, `"Float"`, "Float"},
		{DateTimeType, `"DateTime"`, "DateTime"},
		{TopologyType, `"Topology"`, "Topology"},
		{ArrayOf(FloatType), `{"Array":"Float"}`, "Array(Float)"},
		{ArrayOf(ArrayOf(IntType)), `{"Array":{"Array":"Int"}}`, "Array(Array(Int))"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			data, err := json.Marshal(tt.typ)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(data) != tt.wire {
				t.Errorf("Marshal = %s, want %s", data, tt.wire)
			}

			var got ValueType
			if err := json.Unmarshal([]byte(tt.wire), &got); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if !got.Equal(tt.typ) {
				t.Errorf("Unmarshal = %v, want %v", got, tt.typ)
			}

			if tt.typ.String() != tt.str {
				t.Errorf("String() = %q, want %q", tt.typ.String(), tt.str)
			}
			parsed, err := ParseValueType(tt.str)
			if err != nil {
				t.Fatalf("ParseValueType(%q) failed: %v", tt.str, err)
			}
			if diff := cmp.Diff(tt.typ, parsed); diff != "" {
				t.Errorf("ParseValueType(%q) mismatch (-want +got):\n%s", tt.str, diff)
			}
		})
	}
}

func TestValueTypeJSON_Rejects(t *testing.T) {
	inputs := []string{`"Decimal"`, `"Array"`, `{"List":"Float"}`, `{"Array":"Float","x":1}`, `{"Array":"Bogus"}`, `3`}
	for _, in := range inputs {
		var v ValueType
		if err := json.Unmarshal([]byte(in), &v); err == nil {
			t.Errorf("Unmarshal(%s) should fail, got %v", in, v)
		}
	}

	if _, err := json.Marshal(ValueType{Kind: KindArray}); err == nil {
		t.Error("marshaling an array without element type should fail")
	}
	if _, err := ParseValueType("Array(Float"); err == nil {
		t.Error("ParseValueType should reject an unterminated array")
	}
}

func TestValueTypeEqual(t *testing.T) {
	if !ArrayOf(FloatType).Equal(ArrayOf(FloatType)) {
		t.Error("identical array types should be equal")
	}
	if ArrayOf(FloatType).Equal(ArrayOf(IntType)) {
		t.Error("arrays of different element types should differ")
	}
	if FloatType.Equal(ArrayOf(FloatType)) {
		t.Error("scalar and array should differ")
	}
}

func TestTopologyValueKindIsDistinctFromResourceKind(t *testing.T) {
	if TopologyType.Kind != KindTopologyValue {
		t.Errorf("TopologyType.Kind = %q, want %q", TopologyType.Kind, KindTopologyValue)
	}
	if got := (Topology{Name: "pairs"}).Kind(); got != KindTopology {
		t.Errorf("Topology.Kind() = %q, want %q", got, KindTopology)
	}
	f := Field{Name: "shape", EntityID: "Entity/Reviewer/", ValueType: TopologyType}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back Field
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !back.ValueType.Equal(TopologyType) {
		t.Errorf("round-tripped value type = %v, want Topology", back.ValueType)
	}
}
