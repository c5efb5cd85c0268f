// Package inmemorystore keeps the per-unit outcome of a run in memory: the
// last lifecycle state, the final globals and the error that ended a unit.
//
// The scheduler writes an entry after every tick barrier, from the tick
// loop only; experiments and the batch API read entries while workers may
// still be stepping other units. sync.Map suits that pattern: every unit id
// is an independent key that is written often and read concurrently.
package inmemorystore
