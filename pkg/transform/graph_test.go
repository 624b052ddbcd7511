package transform

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rmax-ai/gfs/pkg/feature"
	"github.com/rmax-ai/gfs/pkg/registry"
	"github.com/rmax-ai/gfs/pkg/store"
)

type reviewGraph struct {
	reg      *registry.Registry
	reviewer feature.Entity
	product  feature.Entity
	rates    feature.Entity
	overall  feature.Field
	price    feature.Field
	weight   feature.Field
	dataset  feature.GraphDataset
	graph    feature.Graph
}

func setupReviewGraph(t *testing.T) reviewGraph {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })

	rg := reviewGraph{reg: registry.New(mem)}
	rg.reviewer = feature.NewNodeEntity("Reviewer", "", "Reviewer", "reviewerId")
	rg.product = feature.NewNodeEntity("Product", "", "Product", "asin")
	rg.rates = feature.NewEdgeEntity("rates", "", "rates", rg.reviewer.ResourceID(), rg.product.ResourceID())
	rg.overall = feature.NewFields(rg.reviewer, "", feature.FieldSpec{Name: "overall", ValueType: feature.FloatType})[0]
	rg.price = feature.NewFields(rg.product, "", feature.FieldSpec{Name: "price", ValueType: feature.FloatType})[0]
	rg.weight = feature.NewFields(rg.rates, "", feature.FieldSpec{Name: "weight", ValueType: feature.FloatType})[0]

	views := []feature.TableFeatureView{
		{Name: "reviewer_view", EntityID: rg.reviewer.ResourceID(), FieldIDs: []feature.ResourceID{rg.overall.ResourceID()}},
		{Name: "product_view", EntityID: rg.product.ResourceID(), FieldIDs: []feature.ResourceID{rg.price.ResourceID()}},
		{Name: "rates_view", EntityID: rg.rates.ResourceID(), FieldIDs: []feature.ResourceID{rg.weight.ResourceID()}},
	}
	rg.dataset = feature.GraphDataset{Kind: feature.SingleGraphDataset, Name: "reviews"}
	for _, v := range views {
		rg.dataset.FeatureViews = append(rg.dataset.FeatureViews, feature.TableView(v))
	}
	rg.dataset.FeatureViews = append(rg.dataset.FeatureViews, feature.TopologyView(feature.TopologyFeatureView{
		Name: "rates_topology", TopologyType: feature.AdjacencyMatrix,
	}))
	rg.graph = feature.NewGraph("amazon", "", rg.reviewer, rg.product, rg.rates)

	if err := rg.reg.RegisterMany(ctx,
		rg.reviewer, rg.product, rg.rates,
		rg.overall, rg.price, rg.weight,
		views[0], views[1], views[2],
		rg.graph,
	); err != nil {
		t.Fatal(err)
	}
	return rg
}

func TestNewSingleGraph(t *testing.T) {
	rg := setupReviewGraph(t)
	tc := NewContext()

	g, err := NewSingleGraph(context.Background(), tc, rg.dataset, rg.reg)
	if err != nil {
		t.Fatalf("NewSingleGraph: %v", err)
	}
	if g.Kind() != KindSingleGraph || g.Parents() != nil || g.ID() != 0 {
		t.Errorf("node = %s id %d parents %v", g.Kind(), g.ID(), g.Parents())
	}
	if diff := cmp.Diff([]string{"Product", "Reviewer"}, sortedTypes(g.Schema.Vertices)); diff != "" {
		t.Errorf("vertex types mismatch (-want +got):\n%s", diff)
	}
	edge, ok := g.Schema.Edges["rates"]
	if !ok || edge.ViewName != "rates_view" || edge.EntityID != rg.rates.ResourceID() {
		t.Errorf("edge frame = %+v", edge)
	}
	if g.Schema.TopologyType == nil || *g.Schema.TopologyType != feature.AdjacencyMatrix {
		t.Errorf("TopologyType = %v", g.Schema.TopologyType)
	}
	if n := len(tc.CurrentTransformation().SourceFieldIDs); n != 3 {
		t.Errorf("SourceFieldIDs has %d entries, want 3", n)
	}
}

func TestNewSingleGraphErrors(t *testing.T) {
	rg := setupReviewGraph(t)
	ctx := context.Background()

	multi := rg.dataset
	multi.Kind = feature.MultipleGraphsDataset
	tc := NewContext()
	if _, err := NewSingleGraph(ctx, tc, multi, rg.reg); !errors.Is(err, ErrValidation) {
		t.Errorf("multiple-graph dataset error = %v, want ErrValidation", err)
	}

	broken := feature.GraphDataset{Kind: feature.SingleGraphDataset, Name: "broken", FeatureViews: []feature.FeatureView{{}}}
	if _, err := NewSingleGraph(ctx, tc, broken, rg.reg); !errors.Is(err, ErrValidation) {
		t.Errorf("empty view error = %v, want ErrValidation", err)
	}

	foreign := feature.GraphDataset{Kind: feature.SingleGraphDataset, Name: "foreign", FeatureViews: []feature.FeatureView{
		feature.TableView(feature.TableFeatureView{Name: "v", EntityID: rg.reviewer.ResourceID(), FieldIDs: []feature.ResourceID{rg.price.ResourceID()}}),
	}}
	if _, err := NewSingleGraph(ctx, tc, foreign, rg.reg); !errors.Is(err, ErrValidation) {
		t.Errorf("foreign field error = %v, want ErrValidation", err)
	}

	missing := feature.GraphDataset{Kind: feature.SingleGraphDataset, Name: "missing", FeatureViews: []feature.FeatureView{
		feature.TableView(feature.TableFeatureView{Name: "v", EntityID: "Entity/Nobody/"}),
	}}
	if _, err := NewSingleGraph(ctx, tc, missing, rg.reg); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing entity error = %v, want ErrNotFound", err)
	}
	if tc.Len() != 0 {
		t.Errorf("failed constructions added %d nodes", tc.Len())
	}
}

func TestFromGraph(t *testing.T) {
	rg := setupReviewGraph(t)
	ctx := context.Background()

	// A second version of overall is pulled in alongside the first.
	overallV2 := rg.overall
	overallV2.Variant = "v2"
	if err := rg.reg.Register(ctx, overallV2); err != nil {
		t.Fatal(err)
	}

	tc := NewContext()
	g, err := FromGraphID(ctx, tc, rg.graph.ResourceID(), rg.reg)
	if err != nil {
		t.Fatalf("FromGraphID: %v", err)
	}
	if g.Source != rg.graph.ResourceID() || g.Name != "amazon" {
		t.Errorf("graph = %q from %q", g.Name, g.Source)
	}

	reviewer := g.Schema.Vertices["Reviewer"]
	if reviewer.ViewName != "Reviewer_ALL_FIELDS" {
		t.Errorf("ViewName = %q", reviewer.ViewName)
	}
	var ids []feature.ResourceID
	for _, f := range reviewer.Fields {
		ids = append(ids, f.ResourceID())
	}
	if diff := cmp.Diff([]feature.ResourceID{"Field/Reviewer/overall/", "Field/Reviewer/overall/v2"}, ids); diff != "" {
		t.Errorf("Reviewer fields mismatch (-want +got):\n%s", diff)
	}
	if _, ok := g.Schema.Edges["rates"]; !ok {
		t.Error("rates edge type missing")
	}

	if _, err := FromGraphID(ctx, tc, "Graph/missing/", rg.reg); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing graph error = %v", err)
	}
}

func TestTypedAccessorsAbsent(t *testing.T) {
	rg := setupReviewGraph(t)
	tc := NewContext()
	g, err := NewSingleGraph(context.Background(), tc, rg.dataset, rg.reg)
	if err != nil {
		t.Fatal(err)
	}

	before := tc.Len()
	if sel, ok := g.VerticesByType("Seller"); ok || sel != nil {
		t.Errorf("VerticesByType(Seller) = %v, %v", sel, ok)
	}
	if sel, ok := g.EdgesByType("follows"); ok || sel != nil {
		t.Errorf("EdgesByType(follows) = %v, %v", sel, ok)
	}
	if tc.Len() != before {
		t.Error("absent type lookups must not add nodes")
	}

	sel, ok := g.VerticesByType("Reviewer")
	if !ok {
		t.Fatal("VerticesByType(Reviewer) absent")
	}
	if sel.Selector != DirectAccess("Reviewer") || sel.Heterogeneous {
		t.Errorf("selection = %+v", sel.Selector)
	}
	if diff := cmp.Diff([]string{"Reviewer"}, sortedTypes(sel.Schema.Vertices)); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{g.ID()}, sel.Parents()); diff != "" {
		t.Errorf("Parents() mismatch (-want +got):\n%s", diff)
	}

	all := g.Vertices()
	if !all.Heterogeneous || all.Selector.Type != "" {
		t.Errorf("Vertices() = %+v heterogeneous=%v", all.Selector, all.Heterogeneous)
	}
	if _, ok := all.EdgesByType("rates"); !ok {
		t.Error("a vertex selection still knows its graph's edge types")
	}
}

func TestExportTopology(t *testing.T) {
	rg := setupReviewGraph(t)
	tc := NewContext(WithClock(fixedClock))
	g, err := NewSingleGraph(context.Background(), tc, rg.dataset, rg.reg)
	if err != nil {
		t.Fatal(err)
	}

	edges := g.Edges()
	topo, err := edges.ExportTopology("rates_topology")
	if err != nil {
		t.Fatalf("ExportTopology: %v", err)
	}
	shape := feature.AdjacencyMatrix
	want := feature.Topology{
		Name:             "rates_topology",
		TransformationID: "Transformation/TRANSFORMATION_1700000000/",
		TopologyType:     &shape,
		EdgeEntityIDs:    []feature.ResourceID{rg.rates.ResourceID()},
	}
	if diff := cmp.Diff(want, topo); diff != "" {
		t.Errorf("ExportTopology() mismatch (-want +got):\n%s", diff)
	}
	wantExports := []feature.Export{{NodeID: edges.ID(), ResourceID: "Topology/rates_topology/"}}
	if diff := cmp.Diff(wantExports, tc.Exports()); diff != "" {
		t.Errorf("Exports() mismatch (-want +got):\n%s", diff)
	}

	q, err := QueryToGraph(g, "MATCH (a)-[:rates]->(b)<-[:rates]-(c) RETURN a, c")
	if err != nil {
		t.Fatal(err)
	}
	qt, err := q.ExportTopology("upu")
	if err != nil {
		t.Fatal(err)
	}
	if qt.EdgeEntityIDs == nil || len(qt.EdgeEntityIDs) != 0 {
		t.Errorf("query topology edges = %v, want empty", qt.EdgeEntityIDs)
	}
	if qt.TopologyType == nil || *qt.TopologyType != feature.AdjacencyList {
		t.Errorf("query topology shape = %v", qt.TopologyType)
	}
	if n := len(tc.Exports()); n != 2 {
		t.Errorf("Exports() has %d entries, want 2", n)
	}

	for _, name := range []string{"", "a/b"} {
		if _, err := edges.ExportTopology(name); !errors.Is(err, ErrValidation) {
			t.Errorf("ExportTopology(%q) error = %v, want ErrValidation", name, err)
		}
	}
	if n := len(tc.Exports()); n != 2 {
		t.Errorf("rejected exports were recorded: %v", tc.Exports())
	}
	if _, err := tc.Finalize(); err != nil {
		t.Errorf("Finalize after rejected exports: %v", err)
	}
}

func TestSelectionFilterProject(t *testing.T) {
	rg := setupReviewGraph(t)
	tc := NewContext()
	g, err := NewSingleGraph(context.Background(), tc, rg.dataset, rg.reg)
	if err != nil {
		t.Fatal(err)
	}
	reviewers, _ := g.VerticesByType("Reviewer")

	good, err := reviewers.Filter("overall >= 4.0")
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if good.Selector != Expression("overall >= 4.0") {
		t.Errorf("Selector = %+v", good.Selector)
	}

	filterTests := []struct {
		expr string
	}{
		{"overall"},
		{"overall >"},
		{"price > 1.0"},
		{""},
	}
	for _, tt := range filterTests {
		if _, err := reviewers.Filter(tt.expr); !errors.Is(err, ErrValidation) {
			t.Errorf("Filter(%q) error = %v, want ErrValidation", tt.expr, err)
		}
	}

	heavy, err := g.Edges().Filter("weight > 0.5")
	if err != nil {
		t.Fatalf("edge Filter: %v", err)
	}
	if heavy.Kind() != KindEdgeSelection {
		t.Errorf("Kind() = %s", heavy.Kind())
	}

	narrowed, err := g.Vertices().Project("price")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if n := len(narrowed.Schema.Vertices["Reviewer"].Fields); n != 0 {
		t.Errorf("Reviewer kept %d fields", n)
	}
	if n := len(narrowed.Schema.Vertices["Product"].Fields); n != 1 {
		t.Errorf("Product kept %d fields", n)
	}
	if _, err := g.Vertices().Project("rating"); !errors.Is(err, ErrValidation) {
		t.Errorf("Project(unknown) error = %v", err)
	}
	if _, err := g.Edges().Project(); !errors.Is(err, ErrValidation) {
		t.Errorf("Project() error = %v", err)
	}
}

func TestUnionVertices(t *testing.T) {
	rg := setupReviewGraph(t)
	tc := NewContext()
	g, err := NewSingleGraph(context.Background(), tc, rg.dataset, rg.reg)
	if err != nil {
		t.Fatal(err)
	}
	reviewers, _ := g.VerticesByType("Reviewer")
	products, _ := g.VerticesByType("Product")

	u, err := UnionVertices(reviewers, products)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Heterogeneous || u.Selector.Kind != SelectorUnion {
		t.Errorf("union = %+v", u.Selector)
	}
	if diff := cmp.Diff([]int{reviewers.ID(), products.ID()}, u.Parents()); diff != "" {
		t.Errorf("Parents() mismatch (-want +got):\n%s", diff)
	}

	other := NewContext()
	og, err := NewSingleGraph(context.Background(), other, rg.dataset, rg.reg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnionVertices(reviewers, og.Vertices()); !errors.Is(err, ErrValidation) {
		t.Errorf("cross-context union error = %v", err)
	}

	e1, _ := g.EdgesByType("rates")
	e2, err := g.Edges().Filter("weight > 0.1")
	if err != nil {
		t.Fatal(err)
	}
	eu, err := UnionEdges(e1, e2)
	if err != nil {
		t.Fatal(err)
	}
	if eu.Heterogeneous {
		t.Error("union of one edge type should be homogeneous")
	}
}
