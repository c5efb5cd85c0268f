// Package ast defines the syntax-tree descriptions handed to the compiler by
// a front-end parser. A Description is a keyword with a name, facets and
// nested children; facet values are Expr trees. Every node keeps the source
// range it came from so diagnostics can point back at it.
package ast

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Description is one declaration or statement: `species prey`, `loop`,
// `reflex move`, ...
type Description struct {
	Keyword  string
	Name     string
	Facets   map[string]*Expr
	Children []*Description
	Range    hcl.Range
}

// Facet returns the named facet, or nil.
func (d *Description) Facet(name string) *Expr {
	if d.Facets == nil {
		return nil
	}
	return d.Facets[name]
}

// HasFacet reports whether the facet is present.
func (d *Description) HasFacet(name string) bool {
	return d.Facet(name) != nil
}

// ChildrenOf returns the children with the given keyword, in order.
func (d *Description) ChildrenOf(keyword string) []*Description {
	var out []*Description
	for _, c := range d.Children {
		if c.Keyword == keyword {
			out = append(out, c)
		}
	}
	return out
}

// ExprKind tags the shape of an Expr.
type ExprKind int

const (
	// Literal carries a constant Value.
	Literal ExprKind = iota
	// Ref names a variable, a species or a type.
	Ref
	// Call applies the operator or action Name to Args.
	Call
	// ListLit builds a list from Args.
	ListLit
	// TypeLit names a type, optionally parameterised by Args (list<int>).
	TypeLit
)

// Expr is an unresolved expression as produced by the parser.
type Expr struct {
	Kind  ExprKind
	Value cty.Value
	Name  string
	Args  []*Expr
	// Named holds keyword arguments of an action call.
	Named map[string]*Expr
	Range hcl.Range
}

// Text renders the expression back into source-like form. It is the
// serialization kept by compiled expressions, including folded constants.
func (e *Expr) Text() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case Literal:
		if e.Value.IsNull() {
			return "nil"
		}
		if e.Value.Type().Equals(cty.String) {
			return "'" + e.Value.AsString() + "'"
		}
		if e.Value.Type().Equals(cty.Number) {
			return e.Value.AsBigFloat().Text('g', -1)
		}
		if e.Value.Type().Equals(cty.Bool) {
			if e.Value.True() {
				return "true"
			}
			return "false"
		}
		return e.Value.GoString()
	case Ref:
		return e.Name
	case ListLit:
		return "[" + joinText(e.Args) + "]"
	case TypeLit:
		if len(e.Args) > 0 {
			return e.Name + "<" + joinText(e.Args) + ">"
		}
		return e.Name
	case Call:
		if len(e.Args) == 2 && isInfix(e.Name) {
			return "(" + e.Args[0].Text() + " " + e.Name + " " + e.Args[1].Text() + ")"
		}
		if len(e.Args) == 1 && e.Name == "-" {
			return "-" + e.Args[0].Text()
		}
		return e.Name + "(" + joinText(e.Args) + ")"
	}
	return ""
}

func joinText(args []*Expr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Text()
	}
	return strings.Join(parts, ", ")
}

func isInfix(op string) bool {
	switch op {
	case "+", "-", "*", "/", "<", ">", "<=", ">=", "=", "!=", "and", "or", "mod", "in":
		return true
	}
	return false
}

// Lit is a convenience constructor for literal expressions.
func Lit(v cty.Value) *Expr { return &Expr{Kind: Literal, Value: v} }

// Var is a convenience constructor for variable references.
func Var(name string) *Expr { return &Expr{Kind: Ref, Name: name} }

// Op is a convenience constructor for operator calls.
func Op(name string, args ...*Expr) *Expr { return &Expr{Kind: Call, Name: name, Args: args} }

// List is a convenience constructor for list literals.
func List(elems ...*Expr) *Expr { return &Expr{Kind: ListLit, Args: elems} }

// New is a convenience constructor for descriptions.
func New(keyword, name string, facets map[string]*Expr, children ...*Description) *Description {
	return &Description{Keyword: keyword, Name: name, Facets: facets, Children: children}
}
