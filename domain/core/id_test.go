package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	if !ID("").IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}
	if ID("not-empty").IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

// TestParseRunID tests run ID parsing
func TestParseRunID(t *testing.T) {
	tests := []struct {
		input    string
		expected RunID
		hasError bool
	}{
		{"valid-id", RunID("valid-id"), false},
		{"", "", true},
		{"   ", "", true},
	}

	for _, tt := range tests {
		result, err := ParseRunID(tt.input)
		if tt.hasError {
			if err == nil {
				t.Errorf("ParseRunID(%q) expected error, got nil", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRunID(%q) unexpected error: %v", tt.input, err)
		}
		if result != tt.expected {
			t.Errorf("ParseRunID(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestHashDeterministic(t *testing.T) {
	a := HashBools("adaptive", []bool{true, false, true})
	b := HashBools("adaptive", []bool{true, false, true})
	c := HashBools("adaptive", []bool{true, true, true})
	if a != b {
		t.Errorf("identical inputs hashed differently: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different flag vectors produced the same hash")
	}
	if HashInts("louvain", []int{1, 2}) == HashInts("walktrap", []int{1, 2}) {
		t.Error("label should participate in hash")
	}
	if HashFloats("x", []float64{0}) == HashFloats("x", []float64{1}) {
		t.Error("float values should participate in hash")
	}
	p1 := ComputeParamsHash(map[string]string{"k": "10", "scheme": "rank"})
	p2 := ComputeParamsHash(map[string]string{"scheme": "rank", "k": "10"})
	if p1 != p2 {
		t.Error("params hash must not depend on map order")
	}
	if len(a.Short()) != 12 {
		t.Errorf("Short() length = %d", len(a.Short()))
	}
}
