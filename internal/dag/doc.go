// Package dag is a small directed acyclic graph keyed by string IDs. The
// compiler uses it to order species so that every parent is built before
// the species that extend it.
package dag
