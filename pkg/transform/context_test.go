package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rmax-ai/gfs/pkg/feature"
	"github.com/rmax-ai/gfs/pkg/registry"
	"github.com/rmax-ai/gfs/pkg/store"
)

var fixedClock = func() time.Time { return time.Unix(1700000000, 0) }

func reviewerField() (feature.Entity, feature.Field) {
	reviewer := feature.NewNodeEntity("Reviewer", "", "Reviewer", "reviewerId")
	overall := feature.NewFields(reviewer, "", feature.FieldSpec{Name: "overall", ValueType: feature.FloatType})[0]
	return reviewer, overall
}

func TestNextIDMonotonic(t *testing.T) {
	tc := NewContext()
	prev := -1
	for i := 0; i < 100; i++ {
		id := tc.NextID()
		if id <= prev {
			t.Fatalf("NextID() = %d after %d", id, prev)
		}
		prev = id
	}
	if prev != 99 {
		t.Errorf("last id = %d, want 99", prev)
	}
}

func TestNodeListAppendOnly(t *testing.T) {
	tc := NewContext()
	_, overall := reviewerField()

	df, err := DataFrameFromField(tc, overall)
	if err != nil {
		t.Fatalf("DataFrameFromField: %v", err)
	}
	steps := []func() (Node, error){
		func() (Node, error) { return df.Select("overall") },
		func() (Node, error) { return df.Select("overall * 2.0") },
		func() (Node, error) { return df.WithColumn("copy", df.Cols[0]) },
		func() (Node, error) {
			return QueryToDataFrame(df, "MATCH (n) RETURN n.x AS x", QuerySchema{Columns: []ColumnDef{{Name: "x", ValueType: feature.IntType}}})
		},
		func() (Node, error) { return QueryToGraph(df, "MATCH p=()-[]->() RETURN p") },
	}

	want := []Node{df}
	for i, step := range steps {
		before := tc.Len()
		n, err := step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if tc.Len() != before+1 {
			t.Fatalf("step %d: Len() = %d, want %d", i, tc.Len(), before+1)
		}
		want = append(want, n)
	}

	got := tc.Nodes()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Nodes()[%d] = node %d, want node %d", i, got[i].ID(), want[i].ID())
		}
		if got[i].ID() != i {
			t.Errorf("Nodes()[%d].ID() = %d, want %d", i, got[i].ID(), i)
		}
	}
}

func TestFailedOperationAddsNoNode(t *testing.T) {
	tc := NewContext()
	_, overall := reviewerField()
	df, err := DataFrameFromField(tc, overall)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := df.Select("overall +"); !errors.Is(err, ErrValidation) {
		t.Fatalf("Select(malformed) error = %v, want ErrValidation", err)
	}
	if _, err := df.WithColumn("overall", df.Cols[0]); !errors.Is(err, ErrValidation) {
		t.Fatalf("WithColumn(duplicate) error = %v, want ErrValidation", err)
	}
	if tc.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tc.Len())
	}
	if id := tc.NextID(); id != 1 {
		t.Errorf("NextID() = %d, want 1", id)
	}
}

func TestCurrentTransformationDefaults(t *testing.T) {
	tc := NewContext(WithClock(fixedClock))
	tr := tc.CurrentTransformation()

	if tr.Name != "TRANSFORMATION_1700000000" {
		t.Errorf("Name = %q", tr.Name)
	}
	if tr.ResourceID() != "Transformation/TRANSFORMATION_1700000000/" {
		t.Errorf("ResourceID() = %q", tr.ResourceID())
	}
	if !tr.DestType.Equal(feature.BooleanType) {
		t.Errorf("DestType = %v, want Boolean", tr.DestType)
	}
	if tr.TransformationType != feature.Cypher {
		t.Errorf("TransformationType = %q", tr.TransformationType)
	}
	if tr.ExportResources == nil || tr.SourceFieldIDs == nil {
		t.Error("export and source lists should start empty, not nil")
	}
	if tc.CurrentTransformation() != tr {
		t.Error("CurrentTransformation() should return the same record until finalize")
	}

	named := NewContext(WithTransformationName("reviews", "v2"))
	if got := named.CurrentTransformation().ResourceID(); got != "Transformation/reviews/v2" {
		t.Errorf("named ResourceID() = %q", got)
	}
}

func TestFinalizeSnapshot(t *testing.T) {
	tc := NewContext(WithClock(fixedClock))
	_, overall := reviewerField()
	df, err := DataFrameFromField(tc, overall)
	if err != nil {
		t.Fatal(err)
	}

	finalizedBefore := testutil.ToFloat64(Finalized)
	first, err := tc.Finalize(WithDescription("overall scores"))
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got := testutil.ToFloat64(Finalized) - finalizedBefore; got != 1 {
		t.Errorf("Finalized delta = %v, want 1", got)
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(first.Body), &snap); err != nil {
		t.Fatalf("body is not a snapshot: %v", err)
	}
	if snap.NextID != 1 || len(snap.Nodes) != 1 || snap.Nodes[0].Kind != KindDataFrame {
		t.Errorf("snapshot = next_id %d, %d nodes", snap.NextID, len(snap.Nodes))
	}
	if got := first.Tags[BodyDigestTag]; got != hexDigest(first.Body) {
		t.Errorf("digest tag = %q, want %q", got, hexDigest(first.Body))
	}
	if first.Description != "overall scores" {
		t.Errorf("Description = %q", first.Description)
	}
	if diff := cmp.Diff([]feature.ResourceID{overall.ResourceID()}, first.SourceFieldIDs); diff != "" {
		t.Errorf("SourceFieldIDs mismatch (-want +got):\n%s", diff)
	}

	if _, err := df.Select("overall"); err != nil {
		t.Fatal(err)
	}
	second, err := tc.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Body) <= len(first.Body) {
		t.Error("second snapshot should include the node added after the first")
	}
	if first.Tags[BodyDigestTag] == second.Tags[BodyDigestTag] {
		t.Error("digest should change with the body")
	}
	if strings.Contains(first.Body, `"id":1`) {
		t.Error("first snapshot must not see later nodes")
	}
}

func TestFinalizeRejectsInvalidRename(t *testing.T) {
	tc := NewContext(WithClock(fixedClock), WithTransformationName("scores", "v1"))
	_, overall := reviewerField()
	df, err := DataFrameFromField(tc, overall)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts []FinalizeOption
	}{
		{"slash in name", []FinalizeOption{WithName("bad/name"), WithDescription("ignored")}},
		{"empty name", []FinalizeOption{WithName("")}},
		{"slash in variant", []FinalizeOption{WithVariant("v/2")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tc.Finalize(tt.opts...); !errors.Is(err, ErrValidation) {
				t.Fatalf("Finalize error = %v, want ErrValidation", err)
			}
			cur := tc.CurrentTransformation()
			if cur.ResourceID() != "Transformation/scores/v1" || cur.Description != "" {
				t.Errorf("transformation changed by a rejected finalize: %s %q", cur.ResourceID(), cur.Description)
			}
		})
	}

	fields, err := df.Export()
	if err != nil {
		t.Fatal(err)
	}
	if fields[0].TransformationID != "Transformation/scores/v1" {
		t.Errorf("export stamped with %q", fields[0].TransformationID)
	}
	tr, err := tc.Finalize()
	if err != nil {
		t.Fatalf("Finalize after rejected rename: %v", err)
	}
	if tr.ResourceID() != "Transformation/scores/v1" {
		t.Errorf("ResourceID() = %q", tr.ResourceID())
	}
}

func hexDigest(body string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(body))
}

func TestDiscardPanics(t *testing.T) {
	tc := NewContext()
	_, overall := reviewerField()
	df, err := DataFrameFromField(tc, overall)
	if err != nil {
		t.Fatal(err)
	}
	tc.Discard()
	if !tc.Discarded() {
		t.Fatal("Discarded() = false after Discard")
	}

	tests := []struct {
		name string
		fn   func()
	}{
		{"NextID", func() { tc.NextID() }},
		{"Nodes", func() { tc.Nodes() }},
		{"Finalize", func() { tc.Finalize() }},
		{"Select", func() { df.Select("overall") }},
		{"Export", func() { df.Export() }},
		{"HandleContext", func() { df.Context() }},
		{"QueryToGraph", func() { QueryToGraph(df, "MATCH (n) RETURN n") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r != discardedPanic {
					t.Errorf("recover() = %v, want %q", r, discardedPanic)
				}
			}()
			tt.fn()
		})
	}
}

func TestFinalizeAndRegister(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	defer mem.Close()
	reg := registry.New(mem)

	reviewer, overall := reviewerField()
	if err := reg.RegisterMany(ctx, reviewer, overall); err != nil {
		t.Fatal(err)
	}

	tc := NewContext(WithClock(fixedClock))
	df, err := DataFrameFromField(tc, overall)
	if err != nil {
		t.Fatal(err)
	}
	scaled, err := df.Select("overall * 2.0")
	if err != nil {
		t.Fatal(err)
	}
	fields, err := scaled.Export()
	if err != nil {
		t.Fatal(err)
	}

	tr, err := tc.FinalizeAndRegister(ctx, reg, fields, nil, WithName("scaled_overall"), WithVariant("v1"))
	if err != nil {
		t.Fatalf("FinalizeAndRegister: %v", err)
	}
	if tr.ResourceID() != "Transformation/scaled_overall/v1" {
		t.Fatalf("ResourceID() = %q", tr.ResourceID())
	}

	stored, err := reg.GetTransformation(ctx, tr.ResourceID())
	if err != nil {
		t.Fatalf("GetTransformation: %v", err)
	}
	if stored.Body != tr.Body {
		t.Error("stored body differs from finalized body")
	}

	derived, err := reg.GetField(ctx, fields[0].ResourceID())
	if err != nil {
		t.Fatalf("GetField(%s): %v", fields[0].ResourceID(), err)
	}
	if derived.TransformationID != tr.ResourceID() {
		t.Errorf("derived TransformationID = %q, want %q", derived.TransformationID, tr.ResourceID())
	}

	tc.Discard()
	if _, err := reg.GetTransformation(ctx, tr.ResourceID()); err != nil {
		t.Errorf("registered transformation should outlive the context: %v", err)
	}
}
