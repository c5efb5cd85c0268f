package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Module is the interface that all operator modules implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// OperatorProto is one declared overload of an operator.
type OperatorProto struct {
	Name      string
	Signature types.Signature
	// ReturnType is the static result type. ReturnFunc, when set, computes
	// it from the argument types instead.
	ReturnType *types.Type
	ReturnFunc func(args types.Signature) *types.Type
	Fn         expr.Evaluator
	// Lazy receives unevaluated arguments; it is used instead of Fn when set.
	Lazy expr.LazyEvaluator
	// Volatile operators depend on state beyond their arguments and are never
	// folded into constants.
	Volatile bool
	Doc      string

	index int
}

// Index is the declaration order of the prototype within the registry.
func (p *OperatorProto) Index() int { return p.index }

// ResultType computes the result type for a call with the given argument
// types.
func (p *OperatorProto) ResultType(args types.Signature) *types.Type {
	if p.ReturnFunc != nil {
		if t := p.ReturnFunc(args); t != nil {
			return t
		}
	}
	if p.ReturnType == nil {
		return types.Unknown
	}
	return p.ReturnType
}

// Build produces the executable node applying the operator to args. text
// is the source form of the whole call.
func (p *OperatorProto) Build(args []expr.Expression, text string) expr.Expression {
	argTypes := make(types.Signature, len(args))
	for i, a := range args {
		argTypes[i] = a.Type()
	}
	return expr.NewCall(expr.CallSpec{
		Name:     p.Name,
		Type:     p.ResultType(argTypes),
		Fn:       p.Fn,
		Lazy:     p.Lazy,
		Foldable: !p.Volatile,
	}, args, text)
}

func (p *OperatorProto) String() string {
	return p.Name + p.Signature.String()
}

// PrimitiveArg is a formal argument of a primitive action.
type PrimitiveArg struct {
	Name     string
	Type     *types.Type
	Optional bool
}

// PrimitiveFunc executes a primitive action with evaluated arguments.
type PrimitiveFunc func(s *scope.Scope, args map[string]cty.Value) (cty.Value, error)

// Primitive is an action implemented in Go and callable like a user action.
type Primitive struct {
	Name       string
	Args       []PrimitiveArg
	ReturnType *types.Type
	Fn         PrimitiveFunc
}

// Registry holds every operator and primitive known to an application
// instance.
type Registry struct {
	operators  map[string][]*OperatorProto
	exact      map[string]map[string]*OperatorProto
	keys       map[string]map[string]struct{}
	primitives map[string]*Primitive
	count      int
	frozen     bool
}

// New creates an empty, unfrozen registry.
func New() *Registry {
	return &Registry{
		operators:  make(map[string][]*OperatorProto),
		exact:      make(map[string]map[string]*OperatorProto),
		keys:       make(map[string]map[string]struct{}),
		primitives: make(map[string]*Primitive),
	}
}

// Load creates a registry from modules and freezes it.
func Load(modules ...Module) *Registry {
	r := New()
	for _, m := range modules {
		m.Register(r)
	}
	r.Freeze()
	return r
}

func (r *Registry) mustBeOpen(what string) {
	if r.frozen {
		panic(fmt.Sprintf("registry: %s registered after freeze", what))
	}
}

// RegisterOperator adds an overload. Registering the same name and exact
// signature twice is a programming error and panics.
func (r *Registry) RegisterOperator(p *OperatorProto) {
	r.mustBeOpen("operator " + p.Name)
	key := p.Signature.Key()
	if _, exists := r.keys[p.Name][key]; exists {
		panic(fmt.Sprintf("operator '%s' with signature %s already registered", p.Name, p.Signature))
	}
	if r.keys[p.Name] == nil {
		r.keys[p.Name] = make(map[string]struct{})
		r.exact[p.Name] = make(map[string]*OperatorProto)
	}
	r.keys[p.Name][key] = struct{}{}

	p.index = r.count
	r.count++
	r.operators[p.Name] = append(r.operators[p.Name], p)

	simplified := p.Signature.Simplified().Key()
	if _, exists := r.exact[p.Name][simplified]; !exists {
		r.exact[p.Name][simplified] = p
	}
	slog.Debug("Registering operator.", "name", p.Name, "signature", key)
}

// RegisterPrimitive adds a primitive action.
func (r *Registry) RegisterPrimitive(p *Primitive) {
	r.mustBeOpen("primitive " + p.Name)
	if _, exists := r.primitives[p.Name]; exists {
		panic(fmt.Sprintf("primitive '%s' already registered", p.Name))
	}
	slog.Debug("Registering primitive.", "name", p.Name)
	r.primitives[p.Name] = p
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool { return r.frozen }

// Operators returns the overloads of name in declaration order.
func (r *Registry) Operators(name string) []*OperatorProto {
	return r.operators[name]
}

// HasOperator reports whether any overload of name exists.
func (r *Registry) HasOperator(name string) bool {
	return len(r.operators[name]) > 0
}

// Exact returns the first overload of name whose simplified signature key
// equals key.
func (r *Registry) Exact(name, key string) (*OperatorProto, bool) {
	p, ok := r.exact[name][key]
	return p, ok
}

// Primitive returns the primitive action called name.
func (r *Registry) Primitive(name string) (*Primitive, bool) {
	p, ok := r.primitives[name]
	return p, ok
}

// OperatorNames returns the sorted operator names.
func (r *Registry) OperatorNames() []string {
	names := make([]string, 0, len(r.operators))
	for n := range r.operators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PrimitiveNames returns the sorted primitive names.
func (r *Registry) PrimitiveNames() []string {
	names := make([]string, 0, len(r.primitives))
	for n := range r.primitives {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
