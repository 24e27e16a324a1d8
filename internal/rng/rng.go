// Package rng derives reproducible random streams from a single base seed.
package rng

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"

	"scqc/ports"
)

// Source implements ports.RNGPort on top of PCG generators
type Source struct {
	seed int64
}

var _ ports.RNGPort = (*Source)(nil)

// New creates a source for the given base seed
func New(seed int64) *Source {
	return &Source{seed: seed}
}

// Seed returns the base seed
func (s *Source) Seed() int64 {
	return s.seed
}

// Stream returns the generator for (stage, index)
func (s *Source) Stream(stage string, index int) *rand.Rand {
	hi, lo := Derive(s.seed, stage, index)
	return rand.New(rand.NewPCG(hi, lo))
}

// PCG returns the raw PCG source for (stage, index), for libraries that take a rand.Source
func (s *Source) PCG(stage string, index int) *rand.PCG {
	hi, lo := Derive(s.seed, stage, index)
	return rand.NewPCG(hi, lo)
}

// Derive mixes the seed, stage name and index into two 64-bit PCG seeds.
func Derive(seed int64, stage string, index int) (uint64, uint64) {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(seed))
	h.Write(buf[:])
	h.Write([]byte(stage))
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(index)))
	h.Write(buf[:])
	hi := h.Sum64()
	return splitmix(hi), splitmix(hi ^ 0x9e3779b97f4a7c15)
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
