// Package types implements the type system of the modelling language: the
// built-in type descriptors, the per-model type Manager, operator
// signatures with their matching and distance rules, and the runtime
// casting of cty values between types.
//
// Every runtime value is a cty.Value. The static type of an expression is a
// *Type; the two are related by TypeOf and Cast.
package types
