// Package modeltest builds and compiles small models for tests of the
// runtime packages.
package modeltest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/ast"
	"github.com/vk/agentgrid/internal/compiler"
	"github.com/vk/agentgrid/internal/model"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

// Facets is shorthand for a facet map.
type Facets = map[string]*ast.Expr

// Node builds a description.
func Node(keyword, name string, f Facets, children ...*ast.Description) *ast.Description {
	return ast.New(keyword, name, f, children...)
}

func Int(i int64) *ast.Expr     { return ast.Lit(cty.NumberIntVal(i)) }
func Float(f float64) *ast.Expr { return ast.Lit(cty.NumberFloatVal(f)) }
func Str(s string) *ast.Expr    { return ast.Lit(cty.StringVal(s)) }
func Bool(b bool) *ast.Expr     { return ast.Lit(cty.BoolVal(b)) }

// Type names a type in a type facet.
func Type(name string) *ast.Expr { return &ast.Expr{Kind: ast.TypeLit, Name: name} }

// Var declares a typed variable with an initial value.
func Var(name, typ string, init *ast.Expr) *ast.Description {
	f := Facets{"type": Type(typ)}
	if init != nil {
		f["init"] = init
	}
	return Node("var", name, f)
}

// Set assigns value to name.
func Set(name string, value *ast.Expr) *ast.Description {
	return Node("set", name, Facets{"value": value})
}

// Compile compiles a model named "test" against reg, failing the test on
// any error diagnostic. A nil reg uses testutil.Registry.
func Compile(t *testing.T, reg *registry.Registry, children ...*ast.Description) *model.Model {
	t.Helper()
	if reg == nil {
		reg = testutil.Registry(nil)
	}
	ctx, _ := testutil.Context(t)
	m, diags, err := compiler.New(reg).Compile(ctx, Node("model", "test", nil, children...))
	require.NoError(t, err, "diagnostics: %v", diags)
	return m
}
