package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamReproducible(t *testing.T) {
	a := New(42).Stream("gap", 3)
	b := New(42).Stream("gap", 3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestStreamsIndependent(t *testing.T) {
	src := New(42)
	assert.NotEqual(t, src.Stream("gap", 1).Uint64(), src.Stream("gap", 2).Uint64())
	assert.NotEqual(t, src.Stream("gap", 1).Uint64(), src.Stream("kmeans", 1).Uint64())
	assert.NotEqual(t, New(1).Stream("gap", 1).Uint64(), New(2).Stream("gap", 1).Uint64())
	assert.Equal(t, int64(42), src.Seed())
}
