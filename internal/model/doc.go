// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model provides the compiled, immutable representation of a
// simulation model. It is produced once by the compiler and shared
// read-only by every simulation unit that runs it.
//
// # Core Concepts
//
// The model is built around a few key structures:
//
//   - Model: the root container. It owns the type manager, the global
//     species (whose single instance is the world agent) and every other
//     species in declaration order.
//
//   - Species: variables, reflexes, an init block and an action table
//     indexed by slot. A subspecies starts from a copy of its parent's
//     table; an overriding action replaces the entry in the same slot, so
//     calls never look actions up by name while a model runs.
//
//   - Agent: one instance of a species. Its attributes are the only mutable
//     state in this package and belong to the unit that created the agent.
//
//   - ExperimentPlan: the parameters, own variables and reflexes of an
//     experiment, plus the settings of the scheduler that runs it.
package model
