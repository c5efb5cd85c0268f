// Package compiler turns ast descriptions into executable model objects.
//
// The Resolver binds an operator name and compiled argument expressions to
// one overload of the registry, in this order:
//
//  1. the overload whose simplified signature equals the simplified
//     argument signature;
//  2. the only overload accepting the arguments, or among several the one
//     closest to them, the first declared winning ties;
//  3. the same search once more with every argument packed into a single
//     list, for overloads taking a list.
//
// Arguments whose type differs from the declared parameter type are wrapped
// in a cast; a cast dropping the fractional part of a number is reported as
// a warning. A call to a non-volatile overload whose arguments are all
// constant is evaluated at once and replaced by a constant that keeps the
// source text.
//
// Compile walks a model description, declares every species, variable and
// action first and then compiles bodies, so declarations can be referenced
// before they appear. Every problem is collected as an hcl.Diagnostic
// pointing at the description that caused it.
package compiler
