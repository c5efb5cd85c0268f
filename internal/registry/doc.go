// Package registry provides the catalogue of built-in operators and
// primitive actions.
//
// Modules register their operator prototypes into a Registry at startup;
// the registry is then frozen and shared read-only by the compiler. Several
// prototypes may share a name: they are kept in declaration order, which is
// the order overload resolution falls back on when two candidates are
// equally close to a call.
package registry
