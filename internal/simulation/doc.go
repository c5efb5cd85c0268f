// Package simulation implements the simulation unit: one running instance
// of a model with its own world agent, populations, clock and random
// generator.
//
// A unit is stepped by at most one worker at a time. Everything it owns is
// touched only from that worker while a step is in flight; between steps
// the owner of the unit (an experiment) may read and write its globals.
//
// Lifecycle:
//
//	Created -> Scheduled -> (Stepping -> Stepped)* -> Unscheduled | Disposed
package simulation
