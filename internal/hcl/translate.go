package hcl

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/agentgrid/internal/ast"
)

// translator accumulates diagnostics while walking one file.
type translator struct {
	diags hcl.Diagnostics
}

func (t *translator) errorf(rng hcl.Range, summary, format string, args ...any) {
	t.diags = append(t.diags, &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   fmt.Sprintf(format, args...),
		Subject:  rng.Ptr(),
	})
}

// block translates a block and everything nested in it.
func (t *translator) block(b *hclsyntax.Block) *ast.Description {
	d := &ast.Description{Keyword: b.Type, Range: b.DefRange()}
	if len(b.Labels) > 0 {
		d.Name = b.Labels[0]
	}
	if len(b.Body.Attributes) > 0 {
		d.Facets = make(map[string]*ast.Expr, len(b.Body.Attributes))
	}
	for _, attr := range sortedAttributes(b.Body.Attributes) {
		var x *ast.Expr
		if attr.Name == "type" {
			x = t.typeExpr(attr.Expr)
		} else {
			x = t.expr(attr.Expr)
		}
		if x != nil {
			d.Facets[attr.Name] = x
		}
	}

	switch {
	case len(b.Labels) == 2 && b.Type == "species":
		if d.HasFacet("parent") {
			t.errorf(b.LabelRanges[1], "Duplicate parent", "Species %q names its parent both as a label and as an attribute.", d.Name)
			break
		}
		if d.Facets == nil {
			d.Facets = make(map[string]*ast.Expr, 1)
		}
		d.Facets["parent"] = &ast.Expr{Kind: ast.Ref, Name: b.Labels[1], Range: b.LabelRanges[1]}
	case len(b.Labels) > 1:
		t.errorf(b.LabelRanges[1], "Too many labels", "A %s block takes at most one label.", b.Type)
	}

	for _, child := range b.Body.Blocks {
		d.Children = append(d.Children, t.block(child))
	}
	return d
}

// typeExpr translates the value of a type attribute: a bare name, a string
// or a parameterised type such as list(int).
func (t *translator) typeExpr(e hclsyntax.Expression) *ast.Expr {
	switch v := e.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) == 1 {
			return &ast.Expr{Kind: ast.TypeLit, Name: v.Traversal.RootName(), Range: v.Range()}
		}
	case *hclsyntax.TemplateExpr:
		if v.IsStringLiteral() {
			lit := t.expr(v)
			return &ast.Expr{Kind: ast.TypeLit, Name: lit.Value.AsString(), Range: v.Range()}
		}
	case *hclsyntax.FunctionCallExpr:
		out := &ast.Expr{Kind: ast.TypeLit, Name: v.Name, Range: v.Range()}
		for _, a := range v.Args {
			arg := t.typeExpr(a)
			if arg == nil {
				return nil
			}
			out.Args = append(out.Args, arg)
		}
		return out
	case *hclsyntax.ParenthesesExpr:
		return t.typeExpr(v.Expression)
	}
	t.errorf(e.Range(), "Invalid type", "Expected a type name such as int, list(float) or a species.")
	return nil
}

// findUniqueBlock returns the block of the given type, reporting every
// repeated occurrence. It returns nil if there is none.
func findUniqueBlock(blocks hclsyntax.Blocks, name string) (*hclsyntax.Block, hcl.Diagnostics) {
	var found *hclsyntax.Block
	var diags hcl.Diagnostics
	for _, block := range blocks {
		if block.Type != name {
			continue
		}
		if found != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate \"" + name + "\" block",
				Detail:   "Only one \"" + name + "\" block is allowed per file.",
				Subject:  block.DefRange().Ptr(),
			})
			continue
		}
		found = block
	}
	return found, diags
}

// sortedAttributes orders attributes by source position so diagnostics come
// out in a stable order.
func sortedAttributes(attrs hclsyntax.Attributes) []*hclsyntax.Attribute {
	out := make([]*hclsyntax.Attribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SrcRange.Start.Byte < out[j].SrcRange.Start.Byte
	})
	return out
}
