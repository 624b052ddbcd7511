package transform

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/cel-go/cel"

	"github.com/rmax-ai/gfs/pkg/feature"
)

// Column is one named, typed column of a tabular node.
type Column struct {
	Name string `json:"name"`
	// Origin is the id of the node that introduced the column.
	Origin    int               `json:"origin"`
	Expr      string            `json:"expr,omitempty"`
	ValueType feature.ValueType `json:"value_type"`
	// SourceFieldID is set for columns read straight from a registered field.
	SourceFieldID feature.ResourceID `json:"source_field_id,omitempty"`
	EntityID      feature.ResourceID `json:"entity_id,omitempty"`

	program cel.Program
}

// Evaluate computes the column for one row, given as values by column name.
// A source column returns its own value. Computed columns restored from a
// snapshot carry no evaluator.
func (c *Column) Evaluate(row map[string]any) (any, error) {
	if c.program == nil {
		if c.Expr != "" {
			return nil, fmt.Errorf("%w: column %q has no compiled evaluator", ErrValidation, c.Name)
		}
		v, ok := row[c.Name]
		if !ok {
			return nil, fmt.Errorf("%w: row has no value for %q", ErrValidation, c.Name)
		}
		return v, nil
	}
	out, _, err := c.program.Eval(row)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", c.Expr, err)
	}
	return out.Value(), nil
}

// frame is the shared body of tabular nodes.
type frame struct {
	Handle `json:"-"`
	Name   string `json:"name"`
	// EntityID is set when every column belongs to the same entity.
	EntityID feature.ResourceID `json:"entity_id,omitempty"`
	Cols     []*Column          `json:"columns"`

	index map[string]int
}

func newFrame(h Handle, name string, cols []*Column) (frame, error) {
	f := frame{Handle: h, Name: name, Cols: cols}
	if err := f.reindex(); err != nil {
		return frame{}, err
	}
	f.EntityID = commonEntity(cols)
	return f, nil
}

func (f *frame) reindex() error {
	f.index = make(map[string]int, len(f.Cols))
	for i, c := range f.Cols {
		if _, dup := f.index[c.Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrValidation, c.Name)
		}
		f.index[c.Name] = i
	}
	return nil
}

// commonEntity returns the entity shared by every column, or "" if there
// is none.
func commonEntity(cols []*Column) feature.ResourceID {
	var id feature.ResourceID
	for i, c := range cols {
		if c.EntityID == "" {
			return ""
		}
		if i == 0 {
			id = c.EntityID
		} else if c.EntityID != id {
			return ""
		}
	}
	return id
}

func (f *frame) Columns() []*Column {
	return append([]*Column(nil), f.Cols...)
}

func (f *frame) Col(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.Cols[i], true
}

// Select derives a new dataframe with one column per expression. Each
// expression sees only the columns of f. A bare column name keeps that
// column as is; other results are named after their identifier or last
// selected field, or "col{i}" by position.
func (f *frame) Select(exprs ...string) (*DataFrame, error) {
	f.mustLive()
	if len(exprs) == 0 {
		return nil, fmt.Errorf("%w: empty select", ErrValidation)
	}
	vars := make([]variable, 0, len(f.Cols))
	for _, c := range f.Cols {
		vars = append(vars, variable{name: c.Name, typ: c.ValueType})
	}
	env, err := newEnv(vars)
	if err != nil {
		return nil, err
	}

	cols := make([]*Column, 0, len(exprs))
	var computed []*Column
	for i, expr := range exprs {
		ast, err := compile(env, expr)
		if err != nil {
			return nil, err
		}
		if name, ok := isIdent(ast); ok {
			if c, found := f.Col(name); found {
				cols = append(cols, c)
				continue
			}
		}
		vt, err := valueType(ast.OutputType())
		if err != nil {
			return nil, fmt.Errorf("select %q: %w", expr, err)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("%w: select %q: %w", ErrValidation, expr, err)
		}
		name := outputName(ast)
		if name == "" {
			name = fmt.Sprintf("col%d", i)
		}
		c := &Column{Name: name, Expr: expr, ValueType: vt, EntityID: f.EntityID, program: prg}
		cols = append(cols, c)
		computed = append(computed, c)
	}

	body, err := newFrame(Handle{id: -1, ctx: f.ctx}, f.Name, cols)
	if err != nil {
		return nil, err
	}
	body.Handle = f.derive()
	for _, c := range computed {
		c.Origin = body.id
	}
	df := &DataFrame{frame: body, ParentIDs: []int{f.ID()}}
	df.registerSelf(df)
	return df, nil
}

// WithColumn derives a new dataframe with col appended under name. The
// caller guarantees col is row-aligned with f. A column taken from another
// node makes that node a parent too, unless it is already an ancestor of f.
func (f *frame) WithColumn(name string, col *Column) (*DataFrame, error) {
	f.mustLive()
	if col == nil {
		return nil, fmt.Errorf("%w: nil column", ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty column name", ErrValidation)
	}
	if _, dup := f.index[name]; dup {
		return nil, fmt.Errorf("%w: duplicate column %q", ErrValidation, name)
	}
	parents := []int{f.ID()}
	if col.Origin != f.ID() {
		tc := f.context()
		if _, ok := tc.Node(col.Origin); !ok {
			return nil, fmt.Errorf("%w: column %q comes from node %d, which is not in this plan", ErrValidation, col.Name, col.Origin)
		}
		ancestors, err := tc.Ancestors(f.ID())
		if err != nil {
			return nil, err
		}
		if !slices.Contains(ancestors, col.Origin) {
			parents = append(parents, col.Origin)
		}
	}
	c := *col
	c.Name = name

	body, err := newFrame(f.derive(), f.Name, append(f.Columns(), &c))
	if err != nil {
		return nil, err
	}
	df := &DataFrame{frame: body, ParentIDs: parents}
	df.registerSelf(df)
	return df, nil
}

// Export turns every column into a derived Field of the owning
// transformation and records one export per field. It fails without
// recording anything when a column has no entity.
func (f *frame) Export() ([]feature.Field, error) {
	tid := f.owningTransformationID()
	fields := make([]feature.Field, 0, len(f.Cols))
	for _, c := range f.Cols {
		entity := c.EntityID
		if entity == "" {
			entity = f.EntityID
		}
		if entity == "" {
			return nil, fmt.Errorf("%w: column %q of node %d", ErrUnattributedEntity, c.Name, f.ID())
		}
		fields = append(fields, feature.Field{
			Name:             c.Name,
			ValueType:        c.ValueType,
			EntityID:         entity,
			TransformationID: tid,
		})
	}
	for _, field := range fields {
		f.recordExport(f.ID(), field.ResourceID())
	}
	return fields, nil
}

// DataFrame is a table of columns derived from registered fields or from
// other dataframes.
type DataFrame struct {
	frame
	ParentIDs []int `json:"parents,omitempty"`
}

func (d *DataFrame) Kind() NodeKind { return KindDataFrame }
func (d *DataFrame) Parents() []int { return append([]int(nil), d.ParentIDs...) }

// NewDataFrame builds a root dataframe with one column per field.
func NewDataFrame(tc *Context, name string, fields ...feature.Field) (*DataFrame, error) {
	h := Handle{id: -1, ctx: tc.live()}
	cols := make([]*Column, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, &Column{
			Name:          f.Name,
			ValueType:     f.ValueType,
			SourceFieldID: f.ResourceID(),
			EntityID:      f.EntityID,
		})
	}
	body, err := newFrame(h, name, cols)
	if err != nil {
		return nil, err
	}

	body.id = tc.NextID()
	for _, c := range cols {
		c.Origin = body.id
	}
	df := &DataFrame{frame: body}
	tc.addSourceFields(fields...)
	tc.AddNode(df)
	return df, nil
}

// DataFrameFromField builds a one-column dataframe named after field.
func DataFrameFromField(tc *Context, field feature.Field) (*DataFrame, error) {
	return NewDataFrame(tc, field.Name, field)
}

// DataFrameFromView builds a dataframe over the fields of a registered
// table view.
func DataFrameFromView(ctx context.Context, tc *Context, res Resolver, viewID feature.ResourceID) (*DataFrame, error) {
	view, err := res.GetTableFeatureView(ctx, viewID)
	if err != nil {
		return nil, fmt.Errorf("resolve view %s: %w", viewID, err)
	}
	fields := make([]feature.Field, 0, len(view.FieldIDs))
	for _, id := range view.FieldIDs {
		f, err := res.GetField(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve field of view %s: %w", viewID, err)
		}
		fields = append(fields, f)
	}
	return NewDataFrame(tc, view.Name, fields...)
}
