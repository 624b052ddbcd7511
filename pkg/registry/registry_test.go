package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rmax-ai/gfs/pkg/feature"
	"github.com/rmax-ai/gfs/pkg/store"
)

// flakyBackend fails Put for selected keys and records every attempt.
type flakyBackend struct {
	*store.Memory
	failOn   map[string]bool
	attempts []string
}

func (f *flakyBackend) Put(ctx context.Context, key string, value []byte) error {
	f.attempts = append(f.attempts, key)
	if f.failOn[key] {
		return fmt.Errorf("%w: put %s: simulated outage", store.ErrBackend, key)
	}
	return f.Memory.Put(ctx, key, value)
}

func setupRegistry(t *testing.T, opts ...Option) (*Registry, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })
	return New(mem, opts...), mem
}

func reviewSchema() (feature.Entity, feature.Entity, feature.Entity, []feature.Field) {
	reviewer := feature.NewNodeEntity("Reviewer", "", "Reviewer", "reviewerId")
	product := feature.NewNodeEntity("Product", "", "Product", "asin")
	rates := feature.NewEdgeEntity("rates", "", "rates", reviewer.ResourceID(), product.ResourceID())
	fields := feature.NewFields(reviewer, "",
		feature.FieldSpec{Name: "overall", ValueType: feature.FloatType},
		feature.FieldSpec{Name: "reviewerName", ValueType: feature.StringType},
	)
	return reviewer, product, rates, fields
}

func TestRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg, _ := setupRegistry(t)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	shape := feature.AdjacencyList
	reviewer, product, rates, fields := reviewSchema()
	reviewer.Description = "people writing reviews"
	reviewer.CreatedTimestamp = &ts
	reviewer.Tags = map[string]string{"team": "graph"}
	reviewer.Owners = []string{"ml-platform"}

	resources := []feature.Resource{
		reviewer,
		product,
		rates,
		fields[0],
		feature.Field{Name: "dims", ValueType: feature.ArrayOf(feature.FloatType), EntityID: reviewer.ResourceID(), TransformationID: "Transformation/t/"},
		feature.TableFeatureView{Name: "reviewer_view", EntityID: reviewer.ResourceID(), FieldIDs: []feature.ResourceID{fields[0].ResourceID()}, Online: true, CreatedAt: &ts},
		feature.TopologyFeatureView{Name: "upu_view", TopologyType: feature.AdjacencyList, TopologyIDs: []feature.ResourceID{"Topology/upu/"}},
		feature.Transformation{
			Name:               "TRANSFORMATION_1",
			ExportResources:    []feature.Export{{NodeID: 3, ResourceID: "Topology/upu/"}},
			SourceFieldIDs:     []feature.ResourceID{fields[0].ResourceID()},
			DestType:           feature.BooleanType,
			TransformationType: feature.Cypher,
			Body:               `{"next_id":4,"nodes":[]}`,
		},
		feature.NewGraph("amazon", "v1", reviewer, product, rates),
		feature.Topology{Name: "upu", TransformationID: "Transformation/TRANSFORMATION_1/", TopologyType: &shape, EdgeEntityIDs: []feature.ResourceID{}},
	}

	for _, res := range resources {
		t.Run(string(res.ResourceID()), func(t *testing.T) {
			if err := reg.Register(ctx, res); err != nil {
				t.Fatalf("Register failed: %v", err)
			}
			got, err := reg.Get(ctx, res.ResourceID())
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if diff := cmp.Diff(res, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTypedGetters(t *testing.T) {
	ctx := context.Background()
	reg, _ := setupRegistry(t)
	reviewer, _, _, fields := reviewSchema()

	if err := reg.RegisterMany(ctx, reviewer, fields[0]); err != nil {
		t.Fatalf("RegisterMany failed: %v", err)
	}

	e, err := reg.GetEntity(ctx, "Entity/Reviewer/")
	if err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	if e.PrimaryKey != "reviewerId" {
		t.Errorf("unexpected primary key %q", e.PrimaryKey)
	}

	f, err := reg.GetField(ctx, "Field/Reviewer/overall/")
	if err != nil {
		t.Fatalf("GetField failed: %v", err)
	}
	if !f.ValueType.Equal(feature.FloatType) {
		t.Errorf("unexpected value type %v", f.ValueType)
	}

	if _, err := reg.GetGraph(ctx, "Graph/none/"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// an entity value read back as a field has the wrong shape
	if _, err := reg.GetField(ctx, "Entity/Reviewer/"); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	ctx := context.Background()
	reg, mem := setupRegistry(t)

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"not json", "Entity/broken/", `{"name":`},
		{"unknown field", "Entity/extra/", `{"name":"extra","entity_type":{"kind":"node","tlabel":"x"},"primary_key":"id","color":"red"}`},
		{"wrong name", "Entity/alias/", `{"name":"other","entity_type":{"kind":"node","tlabel":"x"},"primary_key":"id"}`},
		{"trailing data", "Entity/twice/", `{"name":"twice","entity_type":{"kind":"node","tlabel":"x"},"primary_key":"id"} {}`},
		{"bad value type", "Entity/typed/", `{"name":"typed","entity_type":{"kind":"node","tlabel":"x"},"primary_key":{"Array":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := mem.Put(ctx, tt.key, []byte(tt.value)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			_, err := reg.GetEntity(ctx, feature.ResourceID(tt.key))
			if !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestGetFieldsOf(t *testing.T) {
	ctx := context.Background()
	reg, mem := setupRegistry(t)

	review := feature.NewNodeEntity("Review", "", "Review", "reviewId")
	reviewer, _, _, fields := reviewSchema()
	other := feature.NewFields(review, "", feature.FieldSpec{Name: "summary", ValueType: feature.StringType})

	if err := reg.RegisterMany(ctx, review, reviewer, fields[0], fields[1], other[0]); err != nil {
		t.Fatalf("RegisterMany failed: %v", err)
	}

	got, err := reg.GetFieldsOf(ctx, "Reviewer")
	if err != nil {
		t.Fatalf("GetFieldsOf failed: %v", err)
	}
	var ids []feature.ResourceID
	for _, f := range got {
		ids = append(ids, f.ResourceID())
	}
	want := []feature.ResourceID{"Field/Reviewer/overall/", "Field/Reviewer/reviewerName/"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("GetFieldsOf mismatch (-want +got):\n%s", diff)
	}

	none, err := reg.GetFieldsOf(ctx, "Nobody")
	if err != nil {
		t.Fatalf("GetFieldsOf failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no fields, got %v", none)
	}

	// one corrupt record fails the whole scan
	if err := mem.Put(ctx, "Field/Reviewer/zzz/", []byte(`not json`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := reg.GetFieldsOf(ctx, "Reviewer"); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestListEntities(t *testing.T) {
	ctx := context.Background()
	reg, _ := setupRegistry(t)
	reviewer, product, rates, fields := reviewSchema()

	if err := reg.RegisterMany(ctx, rates, product, reviewer, fields[0]); err != nil {
		t.Fatalf("RegisterMany failed: %v", err)
	}

	entities, err := reg.ListEntities(ctx)
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}
	if len(entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(entities))
	}
	if entities[0].Name != "Product" || entities[1].Name != "Reviewer" || entities[2].Name != "rates" {
		t.Errorf("entities not in id order: %v", entities)
	}

	records, err := reg.ListEntityRecords(ctx)
	if err != nil {
		t.Fatalf("ListEntityRecords failed: %v", err)
	}
	if len(records) != 3 || records[1].Key != "Entity/Reviewer/" {
		t.Errorf("unexpected raw records %v", records)
	}

	ids, err := reg.ListIDs(ctx, feature.KindField)
	if err != nil {
		t.Fatalf("ListIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "Field/Reviewer/overall/" {
		t.Errorf("unexpected field ids %v", ids)
	}
}

func TestRegisterMany_MidListFailure(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{
		Memory: store.NewMemory(),
		failOn: map[string]bool{"Entity/Product/": true},
	}
	reg := New(backend)
	reviewer, product, rates, _ := reviewSchema()

	err := reg.RegisterMany(ctx, reviewer, product, rates)
	if err == nil {
		t.Fatal("expected RegisterMany to fail")
	}

	var regErr *RegisterError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected *RegisterError, got %T: %v", err, err)
	}
	if regErr.Index != 1 || regErr.ResourceID != product.ResourceID() {
		t.Errorf("error identifies %d/%s, want 1/%s", regErr.Index, regErr.ResourceID, product.ResourceID())
	}
	if !errors.Is(err, ErrBackend) {
		t.Errorf("expected ErrBackend in chain, got %v", err)
	}

	if _, err := reg.GetEntity(ctx, reviewer.ResourceID()); err != nil {
		t.Errorf("first resource should be committed: %v", err)
	}
	if _, err := reg.GetEntity(ctx, rates.ResourceID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("third resource should not exist, got %v", err)
	}
	if diff := cmp.Diff([]string{"Entity/Reviewer/", "Entity/Product/"}, backend.attempts); diff != "" {
		t.Errorf("unexpected write attempts (-want +got):\n%s", diff)
	}
}

func TestRegister_Overwrites(t *testing.T) {
	ctx := context.Background()
	reg, _ := setupRegistry(t)
	reviewer, _, _, _ := reviewSchema()

	if err := reg.Register(ctx, reviewer); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	reviewer.Description = "updated"
	if err := reg.Register(ctx, reviewer); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	got, err := reg.GetEntity(ctx, reviewer.ResourceID())
	if err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	if got.Description != "updated" {
		t.Errorf("expected last write to win, got %q", got.Description)
	}
}

func TestRegister_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	reg, _ := setupRegistry(t)

	if err := reg.Register(ctx, feature.Graph{Name: ""}); err == nil {
		t.Error("expected an error for an empty name")
	}
	bad := feature.Field{Name: "x", EntityID: "Entity/Reviewer/", ValueType: feature.ValueType{Kind: "Decimal"}}
	if err := reg.Register(ctx, bad); err == nil {
		t.Error("expected an error for an unknown value type")
	}
}

func TestReferenceChecks(t *testing.T) {
	ctx := context.Background()
	reg, _ := setupRegistry(t, WithReferenceChecks())
	reviewer, product, rates, fields := reviewSchema()

	tests := []struct {
		name    string
		res     feature.Resource
		wantErr bool
	}{
		{"field before entity", fields[0], true},
		{"edge before endpoints", rates, true},
		{"reviewer", reviewer, false},
		{"product", product, false},
		{"edge", rates, false},
		{"field", fields[0], false},
		{"graph", feature.NewGraph("amazon", "", reviewer, rates), false},
		{"graph with missing entity", feature.Graph{Name: "bad", EntityIDs: []feature.ResourceID{"Entity/ghost/"}}, true},
		{"topology over node entity", feature.Topology{Name: "t", EdgeEntityIDs: []feature.ResourceID{reviewer.ResourceID()}}, true},
		{"topology over edge entity", feature.Topology{Name: "t", EdgeEntityIDs: []feature.ResourceID{rates.ResourceID()}}, false},
		{"table view with foreign field", feature.TableFeatureView{Name: "v", EntityID: product.ResourceID(), FieldIDs: []feature.ResourceID{fields[0].ResourceID()}}, true},
		{"table view", feature.TableFeatureView{Name: "v", EntityID: reviewer.ResourceID(), FieldIDs: []feature.ResourceID{fields[0].ResourceID()}}, false},
		{"topology view with missing topology", feature.TopologyFeatureView{Name: "tv", TopologyIDs: []feature.ResourceID{"Topology/ghost/"}}, true},
		{"transformation with missing source", feature.Transformation{Name: "x", DestType: feature.BooleanType, SourceFieldIDs: []feature.ResourceID{"Field/Reviewer/ghost/"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(ctx, tt.res)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidReference) {
					t.Fatalf("expected ErrInvalidReference, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg, _ := setupRegistry(t)

	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("get_graph", "not_found"))
	reg.GetGraph(ctx, "Graph/missing/")
	after := testutil.ToFloat64(OperationsTotal.WithLabelValues("get_graph", "not_found"))
	if after != before+1 {
		t.Errorf("expected not_found counter to grow by 1, got %v -> %v", before, after)
	}

	beforeReg := testutil.ToFloat64(ResourcesRegistered.WithLabelValues("Graph"))
	if err := reg.Register(ctx, feature.Graph{Name: "g"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if got := testutil.ToFloat64(ResourcesRegistered.WithLabelValues("Graph")); got != beforeReg+1 {
		t.Errorf("expected registered counter to grow by 1, got %v -> %v", beforeReg, got)
	}
}

func TestDecodeResource(t *testing.T) {
	res, err := DecodeResource(feature.KindGraph, []byte(`{"name":"amazon","entity_ids":["Entity/Reviewer/"]}`))
	if err != nil {
		t.Fatalf("DecodeResource failed: %v", err)
	}
	if res.ResourceID() != "Graph/amazon/" {
		t.Errorf("unexpected id %s", res.ResourceID())
	}

	if _, err := DecodeResource(feature.KindGraph, []byte(`{"name":"amazon","bogus":1}`)); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
	if _, err := DecodeResource("Widget", []byte(`{}`)); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for unknown kind, got %v", err)
	}
	if _, err := DecodeResource(feature.KindGraph, []byte(`{}`)); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for a nameless graph, got %v", err)
	}
}
