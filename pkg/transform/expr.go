package transform

import (
	"fmt"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/types"

	"github.com/rmax-ai/gfs/pkg/feature"
)

// celType maps a feature value type to the CEL type used when compiling
// expressions over it. Calendar types share the timestamp type.
func celType(t feature.ValueType) *cel.Type {
	switch t.Kind {
	case feature.KindString:
		return cel.StringType
	case feature.KindInt:
		return cel.IntType
	case feature.KindFloat:
		return cel.DoubleType
	case feature.KindBoolean:
		return cel.BoolType
	case feature.KindDate, feature.KindTime, feature.KindDateTime:
		return cel.TimestampType
	case feature.KindDuration:
		return cel.DurationType
	case feature.KindArray:
		if t.Elem == nil {
			return cel.ListType(cel.DynType)
		}
		return cel.ListType(celType(*t.Elem))
	default:
		return cel.DynType
	}
}

// valueType maps an inferred CEL output type back to a feature value type.
func valueType(t *cel.Type) (feature.ValueType, error) {
	switch t.Kind() {
	case types.BoolKind:
		return feature.BooleanType, nil
	case types.IntKind, types.UintKind:
		return feature.IntType, nil
	case types.DoubleKind:
		return feature.FloatType, nil
	case types.StringKind:
		return feature.StringType, nil
	case types.TimestampKind:
		return feature.DateTimeType, nil
	case types.DurationKind:
		return feature.DurationType, nil
	case types.ListKind:
		params := t.Parameters()
		if len(params) != 1 {
			return feature.ValueType{}, fmt.Errorf("%w: untyped list", ErrValidation)
		}
		elem, err := valueType(params[0])
		if err != nil {
			return feature.ValueType{}, err
		}
		return feature.ArrayOf(elem), nil
	default:
		return feature.ValueType{}, fmt.Errorf("%w: cannot infer a value type from %s", ErrValidation, t)
	}
}

// variable is one name visible to an expression.
type variable struct {
	name string
	typ  feature.ValueType
}

// newEnv declares vars in a CEL environment. A name declared twice with
// different types becomes dynamic.
func newEnv(vars []variable) (*cel.Env, error) {
	declared := make(map[string]*cel.Type, len(vars))
	order := make([]string, 0, len(vars))
	for _, v := range vars {
		t := celType(v.typ)
		prev, ok := declared[v.name]
		switch {
		case !ok:
			declared[v.name] = t
			order = append(order, v.name)
		case !prev.IsExactType(t):
			declared[v.name] = cel.DynType
		}
	}

	opts := make([]cel.EnvOption, 0, len(order))
	for _, name := range order {
		opts = append(opts, cel.Variable(name, declared[name]))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return env, nil
}

func compile(env *cel.Env, expr string) (*cel.Ast, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrValidation)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrValidation, expr, iss.Err())
	}
	return ast, nil
}

// outputName derives a column name from an expression: the identifier for
// a bare name, the last field of a selection path, else "".
func outputName(ast *cel.Ast) string {
	e := ast.NativeRep().Expr()
	switch e.Kind() {
	case celast.IdentKind:
		return e.AsIdent()
	case celast.SelectKind:
		return e.AsSelect().FieldName()
	default:
		return ""
	}
}

// isIdent reports whether ast is a bare identifier, returning it.
func isIdent(ast *cel.Ast) (string, bool) {
	e := ast.NativeRep().Expr()
	if e.Kind() != celast.IdentKind {
		return "", false
	}
	return e.AsIdent(), true
}
