package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Short returns the first 12 hex characters, for logs
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// HashBools fingerprints a flag vector together with a label.
func HashBools(label string, flags []bool) Hash {
	buf := make([]byte, 0, len(label)+1+len(flags))
	buf = append(buf, label...)
	buf = append(buf, 0)
	for _, f := range flags {
		if f {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return NewHash(buf)
}

// HashInts fingerprints an integer vector together with a label.
func HashInts(label string, values []int) Hash {
	buf := make([]byte, 0, len(label)+1+8*len(values))
	buf = append(buf, label...)
	buf = append(buf, 0)
	var scratch [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(scratch[:], uint64(int64(v)))
		buf = append(buf, scratch[:]...)
	}
	return NewHash(buf)
}

// HashFloats fingerprints a float vector bit-exactly.
func HashFloats(label string, values []float64) Hash {
	buf := make([]byte, 0, len(label)+1+8*len(values))
	buf = append(buf, label...)
	buf = append(buf, 0)
	var scratch [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
		buf = append(buf, scratch[:]...)
	}
	return NewHash(buf)
}

// ComputeParamsHash hashes a parameter map independent of key order.
func ComputeParamsHash(params map[string]string) Hash {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteByte('=')
		data.WriteString(params[key])
		data.WriteByte(';')
	}
	return NewHash([]byte(data.String()))
}
