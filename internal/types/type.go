package types

import (
	"math"

	"github.com/zclconf/go-cty/cty"
)

// ID identifies a type. Built-in types use fixed ids; species types are
// allocated by a Manager starting at FirstSpeciesID.
type ID int

const (
	UnknownID ID = iota
	IntID
	FloatID
	BoolID
	StringID
	ContainerID
	ListID
	MapID
	AgentID
	TypeID
)

// FirstSpeciesID is the first id handed out to species types.
const FirstSpeciesID ID = 100

// NoDistance is returned by DistanceTo when a value of one type can never be
// passed where the other is expected.
const NoDistance = math.MaxInt32

// dynamicDistance is the cost of binding an argument whose static type is
// unknown. It is checked at runtime instead.
const dynamicDistance = 8

// Type is an immutable type descriptor.
type Type struct {
	id         ID
	name       string
	parent     *Type
	numeric    bool
	fractional bool
	container  bool
	// content is the element type of a parametric container (list<int>).
	content *Type
	// family is the canonical representative used when simplifying
	// signatures. Nil means the type is its own family.
	family *Type
	def    cty.Value
}

var (
	Unknown   = &Type{id: UnknownID, name: "unknown", def: cty.NullVal(cty.DynamicPseudoType)}
	Int       = &Type{id: IntID, name: "int", parent: Unknown, numeric: true, def: cty.NumberIntVal(0)}
	Float     = &Type{id: FloatID, name: "float", parent: Unknown, numeric: true, fractional: true, def: cty.NumberFloatVal(0)}
	Bool      = &Type{id: BoolID, name: "bool", parent: Unknown, def: cty.False}
	String    = &Type{id: StringID, name: "string", parent: Unknown, def: cty.StringVal("")}
	Container = &Type{id: ContainerID, name: "container", parent: Unknown, container: true, def: cty.EmptyTupleVal}
	List      = &Type{id: ListID, name: "list", parent: Container, container: true, def: cty.EmptyTupleVal}
	Map       = &Type{id: MapID, name: "map", parent: Container, container: true, def: cty.EmptyObjectVal}
	Agent     = &Type{id: AgentID, name: "agent", parent: Unknown, def: cty.NullVal(AgentCapsule)}
	TypeType  = &Type{id: TypeID, name: "type", parent: Unknown, def: cty.NullVal(cty.String)}
)

var builtins = []*Type{Unknown, Int, Float, Bool, String, Container, List, Map, Agent, TypeType}

// Builtins returns the built-in types in id order.
func Builtins() []*Type {
	out := make([]*Type, len(builtins))
	copy(out, builtins)
	return out
}

func (t *Type) ID() ID         { return t.id }
func (t *Type) Name() string   { return t.name }
func (t *Type) Parent() *Type  { return t.parent }
func (t *Type) Content() *Type { return t.content }

// IsNumeric reports whether values of the type are numbers.
func (t *Type) IsNumeric() bool { return t.numeric }

// IsFractional reports whether the numeric type carries a fractional part.
func (t *Type) IsFractional() bool { return t.fractional }

// IsContainer reports whether the type is container or one of its subtypes.
func (t *Type) IsContainer() bool { return t.container }

// IsAgent reports whether the type is agent or a species type.
func (t *Type) IsAgent() bool { return t == Agent || Agent.IsSupertypeOf(t) }

// Default is the value a variable of this type holds before assignment.
func (t *Type) Default() cty.Value { return t.def }

// CanCastToConst reports whether values of this type may be folded into
// constants at compile time. Agents are never constant.
func (t *Type) CanCastToConst() bool { return !t.IsAgent() && t != Unknown }

// Family returns the canonical representative of the type's family:
// list<int> collapses to list, every species type to agent.
func (t *Type) Family() *Type {
	if t.family != nil {
		return t.family
	}
	return t
}

func (t *Type) String() string {
	if t.content != nil {
		return t.Family().name + "<" + t.content.String() + ">"
	}
	return t.name
}

// Equal compares two types. Parametric types are equal when family and
// content are.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	if t.content != nil && o.content != nil {
		return t.Family() == o.Family() && t.content.Equal(o.content)
	}
	return false
}

// IsSupertypeOf reports whether o is a strict descendant of t.
func (t *Type) IsSupertypeOf(o *Type) bool {
	if o == nil {
		return false
	}
	for p := o.parent; p != nil; p = p.parent {
		if p.Equal(t) {
			return true
		}
	}
	return false
}

// depthBelow counts parent steps from t up to ancestor, or -1.
func (t *Type) depthBelow(ancestor *Type) int {
	d := 0
	for p := t; p != nil; p = p.parent {
		if p.Equal(ancestor) {
			return d
		}
		d++
	}
	return -1
}

// IsAssignableFrom reports whether a value of type arg may be passed where t
// is declared, either directly or through a defined coercion. Numeric types
// are mutually translatable, and an argument of unknown static type may be
// passed anywhere.
func (t *Type) IsAssignableFrom(arg *Type) bool {
	switch {
	case t.Equal(arg), t == Unknown, arg == Unknown, t.IsSupertypeOf(arg):
		return true
	case t.numeric && arg.numeric:
		return true
	case t.content != nil && arg.content != nil && t.Family() == arg.Family():
		return t.content.IsAssignableFrom(arg.content)
	case t.content != nil && arg.Equal(t.Family()):
		// a raw list is accepted where list<x> is declared; elements are cast.
		return true
	}
	return false
}

// DistanceTo measures how far a value of type t has to travel to be used
// as a param: 0 when equal, the number of hierarchy steps for a supertype,
// 1 for int to float and 2 for float to int. An unknown argument costs more
// than any static conversion.
func (t *Type) DistanceTo(param *Type) int {
	switch {
	case t.Equal(param):
		return 0
	case param.IsSupertypeOf(t):
		return t.depthBelow(param)
	case t == Unknown:
		return dynamicDistance
	case t.numeric && param.numeric:
		if t.fractional && !param.fractional {
			return 2
		}
		return 1
	case t.content != nil && param.content != nil && t.Family() == param.Family():
		d := t.content.DistanceTo(param.content)
		if d == NoDistance {
			return NoDistance
		}
		return d
	case param.content != nil && t.Equal(param.Family()):
		return 1
	}
	return NoDistance
}

// IsNarrowing reports whether converting from -> to drops a fractional part.
func IsNarrowing(from, to *Type) bool {
	return from.numeric && to.numeric && from.fractional && !to.fractional
}
