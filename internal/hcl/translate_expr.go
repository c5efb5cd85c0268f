package hcl

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/vk/agentgrid/internal/ast"
	"github.com/zclconf/go-cty/cty"
)

var binaryOps = map[*hclsyntax.Operation]string{
	hclsyntax.OpLogicalOr:          "or",
	hclsyntax.OpLogicalAnd:         "and",
	hclsyntax.OpEqual:              "=",
	hclsyntax.OpNotEqual:           "!=",
	hclsyntax.OpGreaterThan:        ">",
	hclsyntax.OpGreaterThanOrEqual: ">=",
	hclsyntax.OpLessThan:           "<",
	hclsyntax.OpLessThanOrEqual:    "<=",
	hclsyntax.OpAdd:                "+",
	hclsyntax.OpSubtract:           "-",
	hclsyntax.OpMultiply:           "*",
	hclsyntax.OpDivide:             "/",
	hclsyntax.OpModulo:             "mod",
}

// expr translates an HCL expression into an unresolved ast expression.
// Operator names are mapped onto the registry's: % is mod, == is =, &&
// and || are and/or, ! is not.
func (t *translator) expr(e hclsyntax.Expression) *ast.Expr {
	rng := e.Range()
	switch v := e.(type) {
	case *hclsyntax.LiteralValueExpr:
		return &ast.Expr{Kind: ast.Literal, Value: v.Val, Range: rng}

	case *hclsyntax.TemplateExpr:
		return t.template(v)

	case *hclsyntax.TemplateWrapExpr:
		return t.call("string", rng, v.Wrapped)

	case *hclsyntax.ParenthesesExpr:
		return t.expr(v.Expression)

	case *hclsyntax.ScopeTraversalExpr:
		root := v.Traversal.RootName()
		var x *ast.Expr
		if root == "nil" {
			x = &ast.Expr{Kind: ast.Literal, Value: cty.NullVal(cty.DynamicPseudoType), Range: v.Traversal[0].SourceRange()}
		} else {
			x = &ast.Expr{Kind: ast.Ref, Name: root, Range: v.Traversal[0].SourceRange()}
		}
		return t.steps(x, v.Traversal[1:], v.Traversal)

	case *hclsyntax.RelativeTraversalExpr:
		src := t.expr(v.Source)
		if src == nil {
			return nil
		}
		return t.steps(src, v.Traversal, v.Traversal)

	case *hclsyntax.IndexExpr:
		return t.call("at", rng, v.Collection, v.Key)

	case *hclsyntax.BinaryOpExpr:
		name, ok := binaryOps[v.Op]
		if !ok {
			t.errorf(rng, "Unsupported operator", "This operator has no equivalent in models.")
			return nil
		}
		return t.call(name, rng, v.LHS, v.RHS)

	case *hclsyntax.UnaryOpExpr:
		if v.Op == hclsyntax.OpLogicalNot {
			return t.call("not", rng, v.Val)
		}
		operand := t.expr(v.Val)
		if operand == nil {
			return nil
		}
		if operand.Kind == ast.Literal && !operand.Value.IsNull() && operand.Value.Type().Equals(cty.Number) {
			f := operand.Value.AsBigFloat()
			return &ast.Expr{Kind: ast.Literal, Value: cty.NumberVal(f.Neg(f)), Range: rng}
		}
		return &ast.Expr{Kind: ast.Call, Name: "-", Args: []*ast.Expr{operand}, Range: rng}

	case *hclsyntax.TupleConsExpr:
		out := &ast.Expr{Kind: ast.ListLit, Range: rng}
		for _, el := range v.Exprs {
			x := t.expr(el)
			if x == nil {
				return nil
			}
			out.Args = append(out.Args, x)
		}
		return out

	case *hclsyntax.FunctionCallExpr:
		return t.functionCall(v)

	case *hclsyntax.ObjectConsExpr:
		t.errorf(rng, "Unsupported expression", "Object literals are only allowed as the last argument of an action call.")
		return nil
	}
	t.errorf(rng, "Unsupported expression", "This kind of expression cannot be used in a model.")
	return nil
}

// call translates operands and applies the named operator to them.
func (t *translator) call(name string, rng hcl.Range, operands ...hclsyntax.Expression) *ast.Expr {
	out := &ast.Expr{Kind: ast.Call, Name: name, Range: rng}
	for _, o := range operands {
		x := t.expr(o)
		if x == nil {
			return nil
		}
		out.Args = append(out.Args, x)
	}
	return out
}

// functionCall translates f(a, b). A trailing object literal carries the
// named arguments of an action call: move(2, { heading = 90 }).
func (t *translator) functionCall(v *hclsyntax.FunctionCallExpr) *ast.Expr {
	if v.ExpandFinal {
		t.errorf(v.Range(), "Unsupported expression", "Argument expansion with ... is not supported.")
		return nil
	}
	args := v.Args
	var named map[string]*ast.Expr
	if n := len(args); n > 0 {
		if obj, ok := args[n-1].(*hclsyntax.ObjectConsExpr); ok {
			named = t.namedArgs(obj)
			if named == nil {
				return nil
			}
			args = args[:n-1]
		}
	}
	out := t.call(v.Name, v.Range(), args...)
	if out != nil {
		out.Named = named
	}
	return out
}

func (t *translator) namedArgs(obj *hclsyntax.ObjectConsExpr) map[string]*ast.Expr {
	named := make(map[string]*ast.Expr, len(obj.Items))
	for _, item := range obj.Items {
		key := hcl.ExprAsKeyword(item.KeyExpr)
		if key == "" {
			t.errorf(item.KeyExpr.Range(), "Invalid argument name", "Named arguments must be bare identifiers.")
			return nil
		}
		x := t.expr(item.ValueExpr)
		if x == nil {
			return nil
		}
		named[key] = x
	}
	return named
}

// template joins the parts of an interpolated string with +, converting
// every non-literal part with string().
func (t *translator) template(v *hclsyntax.TemplateExpr) *ast.Expr {
	if v.IsStringLiteral() {
		val, diags := v.Value(nil)
		if diags.HasErrors() {
			t.diags = append(t.diags, diags...)
			return nil
		}
		return &ast.Expr{Kind: ast.Literal, Value: val, Range: v.Range()}
	}
	var out *ast.Expr
	for _, part := range v.Parts {
		x := t.expr(part)
		if x == nil {
			return nil
		}
		if x.Kind != ast.Literal || x.Value.IsNull() || !x.Value.Type().Equals(cty.String) {
			x = &ast.Expr{Kind: ast.Call, Name: "string", Args: []*ast.Expr{x}, Range: part.Range()}
		}
		if out == nil {
			out = x
			continue
		}
		out = &ast.Expr{Kind: ast.Call, Name: "+", Args: []*ast.Expr{out, x}, Range: v.Range()}
	}
	if out == nil {
		return &ast.Expr{Kind: ast.Literal, Value: cty.StringVal(""), Range: v.Range()}
	}
	return out
}

// steps applies index steps of a traversal; attribute steps are rejected
// because agents expose their attributes only through ask.
func (t *translator) steps(x *ast.Expr, steps, whole hcl.Traversal) *ast.Expr {
	for _, step := range steps {
		idx, ok := step.(hcl.TraverseIndex)
		if !ok {
			t.errorf(step.SourceRange(), "Unsupported traversal", "%s: attribute access is not supported, use ask to read another agent's attributes.", traversalKey(whole))
			return nil
		}
		key := &ast.Expr{Kind: ast.Literal, Value: idx.Key, Range: idx.SrcRange}
		x = &ast.Expr{Kind: ast.Call, Name: "at", Args: []*ast.Expr{x, key}, Range: hcl.RangeBetween(x.Range, idx.SrcRange)}
	}
	return x
}

// traversalKey renders a traversal back into source form, e.g. a.b[0].
func traversalKey(tr hcl.Traversal) string {
	return string(hclwrite.TokensForTraversal(tr).Bytes())
}
