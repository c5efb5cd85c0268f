package compiler

import (
	"context"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// LossOfPrecision is the summary of the warning emitted for narrowing casts.
const LossOfPrecision = "Possible loss of precision"

// Resolver binds operator calls to registry overloads.
type Resolver struct {
	reg   *registry.Registry
	types *types.Manager
	fold  bool
}

// NewResolver creates a resolver. When fold is set, calls with constant
// arguments are evaluated at compile time.
func NewResolver(reg *registry.Registry, tm *types.Manager, fold bool) *Resolver {
	return &Resolver{reg: reg, types: tm, fold: fold}
}

func signatureOf(args []expr.Expression) types.Signature {
	sig := make(types.Signature, len(args))
	for i, a := range args {
		sig[i] = a.Type()
	}
	return sig
}

// pick selects the overload of name for the argument signature, or nil.
// With varargs set only overloads taking a single list are considered.
func (r *Resolver) pick(name string, sig types.Signature, varargs bool) *registry.OperatorProto {
	// the simplified key drops element types, so list<int> and list<string>
	// collide there.
	if p, ok := r.reg.Exact(name, sig.Simplified().Key()); ok && p.Signature.Accepts(sig) && (!varargs || p.Signature.IsVarArg()) {
		return p
	}
	var best *registry.OperatorProto
	bestDistance := types.NoDistance
	for _, p := range r.reg.Operators(name) {
		if varargs && !p.Signature.IsVarArg() {
			continue
		}
		if !p.Signature.Accepts(sig) {
			continue
		}
		// overloads are visited in declaration order, so a later overload
		// only wins when strictly closer.
		if d := sig.DistanceTo(p.Signature); best == nil || d < bestDistance {
			best, bestDistance = p, d
		}
	}
	return best
}

// packed wraps args into one list expression.
func (r *Resolver) packed(args []expr.Expression) expr.Expression {
	var content *types.Type
	for i, a := range args {
		switch {
		case i == 0:
			content = a.Type()
		case !content.Equal(a.Type()):
			content = types.Unknown
		}
	}
	return expr.NewList(args, r.types.ListOf(content))
}

// Resolve compiles the call of operator name on args. text is the source
// form of the call and rng its location.
func (r *Resolver) Resolve(ctx context.Context, name string, args []expr.Expression, text string, rng hcl.Range) (expr.Expression, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	if !r.reg.HasOperator(name) {
		return nil, diags.Append(errorf(rng, "Unknown operator", "no operator named '%s'", name))
	}

	sig := signatureOf(args)
	proto := r.pick(name, sig, false)
	if proto == nil && len(args) > 0 {
		list := r.packed(args)
		if proto = r.pick(name, types.Signature{list.Type()}, true); proto != nil {
			args = []expr.Expression{list}
		}
	}
	if proto == nil {
		known := make([]string, 0)
		for _, p := range r.reg.Operators(name) {
			known = append(known, p.String())
		}
		return nil, diags.Append(errorf(rng, "No matching operator",
			"'%s' cannot be applied to %s; known signatures: %s", name, sig, strings.Join(known, ", ")))
	}

	final := make([]expr.Expression, len(args))
	for i, a := range args {
		final[i] = a
		declared, actual := proto.Signature[i], a.Type()
		if !needsCast(declared, actual) {
			continue
		}
		final[i] = expr.NewCast(a, declared)
		if types.IsNarrowing(actual, declared) {
			diags = diags.Append(warnf(rng, LossOfPrecision,
				"argument '%s' of '%s' is converted from %s to %s", a.Text(), name, actual, declared))
		}
	}

	node := proto.Build(final, text)
	if !r.fold || proto.Volatile || !node.Type().CanCastToConst() {
		return node, diags
	}
	for _, a := range final {
		if !a.IsConst() {
			return node, diags
		}
	}
	v, err := node.Value(scope.New(ctx, scope.Options{Name: "constant folding"}))
	if err != nil {
		return nil, diags.Append(errorf(rng, "Invalid constant expression", "%s: %v", text, err))
	}
	return expr.NewConst(v, node.Type(), text), diags
}

// needsCast reports whether an argument of type actual must be coerced to
// be passed as declared. Unknown arguments are checked when evaluated.
func needsCast(declared, actual *types.Type) bool {
	switch {
	case declared == types.Unknown, actual == types.Unknown:
		return false
	case declared.Equal(actual), declared.IsSupertypeOf(actual):
		return false
	}
	return true
}

// Constant builds a literal node.
func Constant(v cty.Value, text string) expr.Expression {
	return expr.NewConst(v, types.TypeOf(v), text)
}
