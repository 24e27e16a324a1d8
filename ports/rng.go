package ports

import "math/rand/v2"

// RNGPort provides seeded random streams for deterministic stages
type RNGPort interface {
	// Seed returns the base seed every stream is derived from
	Seed() int64

	// Stream returns an independent generator for one task of a stage.
	// Equal (stage, index) pairs always yield identical sequences.
	Stream(stage string, index int) *rand.Rand
}
