// Package random provides the per-unit pseudo random generator. A generator
// is fully described by its seed and the number of 64-bit draws taken from
// it, which is what a unit exposes as its reproducibility state.
package random

import (
	"math/rand/v2"
	"sync/atomic"
)

// counting wraps a source and counts every 64-bit draw.
type counting struct {
	src   rand.Source
	draws *atomic.Uint64
}

func (c counting) Uint64() uint64 {
	c.draws.Add(1)
	return c.src.Uint64()
}

// Generator is owned by exactly one simulation unit. Draw methods must only
// be called from that unit's worker; Seed and Draws may be read from any
// goroutine.
type Generator struct {
	seed  uint64
	draws atomic.Uint64
	rng   *rand.Rand
}

// New returns a generator positioned at the start of the seed's stream.
func New(seed uint64) *Generator {
	g := &Generator{seed: seed}
	g.reset()
	return g
}

// Restore returns a generator in the state described by seed and draws.
func Restore(seed, draws uint64) *Generator {
	g := New(seed)
	for range draws {
		g.rng.Uint64()
	}
	return g
}

func (g *Generator) reset() {
	g.draws.Store(0)
	g.rng = rand.New(counting{src: rand.NewPCG(seed1(g.seed), seed2(g.seed)), draws: &g.draws})
}

func (g *Generator) Seed() uint64  { return g.seed }
func (g *Generator) Draws() uint64 { return g.draws.Load() }

// Float64 returns a number in [0,1).
func (g *Generator) Float64() float64 { return g.rng.Float64() }

// IntN returns a number in [0,n). n must be positive.
func (g *Generator) IntN(n int64) int64 { return g.rng.Int64N(n) }

// Between returns a float in [lo,hi).
func (g *Generator) Between(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// Flip returns true with probability p.
func (g *Generator) Flip(p float64) bool {
	switch {
	case p <= 0:
		return false
	case p >= 1:
		return true
	}
	return g.rng.Float64() < p
}

// Derive computes the seed of the n-th replication of a base seed.
func Derive(base uint64, n int) uint64 {
	return splitmix(base + uint64(n)*0x9e3779b97f4a7c15)
}

func seed1(s uint64) uint64 { return splitmix(s) }
func seed2(s uint64) uint64 { return splitmix(s ^ 0xda942042e4dd58b5) }

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
