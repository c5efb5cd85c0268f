package types

import "strings"

// Signature is the ordered list of parameter (or argument) types of an
// operator.
type Signature []*Type

// Simplified collapses every type to its family representative so that
// list<int> and list, or two species, share a key.
func (s Signature) Simplified() Signature {
	out := make(Signature, len(s))
	for i, t := range s {
		out[i] = t.Family()
	}
	return out
}

// Key is a stable string form used for exact-match lookups.
func (s Signature) Key() string {
	names := make([]string, len(s))
	for i, t := range s {
		names[i] = t.String()
	}
	return strings.Join(names, ",")
}

func (s Signature) String() string { return "(" + s.Key() + ")" }

// Equal compares two signatures element-wise.
func (s Signature) Equal(o Signature) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Accepts reports whether a call with argument types args may bind to a
// declaration with this signature.
func (s Signature) Accepts(args Signature) bool {
	if len(s) != len(args) {
		return false
	}
	for i := range s {
		if !s[i].IsAssignableFrom(args[i]) {
			return false
		}
	}
	return true
}

// DistanceTo sums the per-argument distances from args to params. The
// result is NoDistance when any argument cannot be passed.
func (s Signature) DistanceTo(params Signature) int {
	if len(s) != len(params) {
		return NoDistance
	}
	total := 0
	for i := range s {
		d := s[i].DistanceTo(params[i])
		if d == NoDistance {
			return NoDistance
		}
		total += d
	}
	return total
}

// IsVarArg reports whether the signature is a single list parameter, the
// shape that accepts a call whose arguments were packed into one list.
func (s Signature) IsVarArg() bool {
	return len(s) == 1 && s[0].Family() == List
}
