// Package experiment runs the experiments of a compiled model.
//
// An Experiment is the top-level agent of a run. It owns its own variables,
// the values of the declared parameters, an ordered map of ad hoc
// parameters and a scheduler.Runner holding the simulation units it
// created. Units never point back at the experiment; it finds them by id
// through the runner, and Close disposes them before its own state.
//
// Globals read from the experiment resolve, in order, to: an experiment
// variable; the first live unit; when no unit is live, the model's initial
// value, unless keep_simulations is off and the global is mutable; a
// declared parameter; an ad hoc parameter. Final values of retired units
// are read from the store.
package experiment
