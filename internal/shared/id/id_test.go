package id

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	id := gen.GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestSessionIDPrefix(t *testing.T) {
	id := NewSessionID()

	if !strings.HasPrefix(id.String(), "sess_") {
		t.Errorf("session ID should start with 'sess_', got: %s", id)
	}
	if !IsValid(id.String(), SessionPrefix) {
		t.Errorf("session ID should validate: %s", id)
	}
}

func TestConnIDPrefix(t *testing.T) {
	id := NewConnID()

	if !strings.HasPrefix(id.String(), "conn_") {
		t.Errorf("connection ID should start with 'conn_', got: %s", id)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		id     string
		prefix string
		want   bool
	}{
		{NewSessionID().String(), SessionPrefix, true},
		{"sess_not-a-ulid", SessionPrefix, false},
		{"bogus", SessionPrefix, false},
		{"", SessionPrefix, false},
	}

	for _, tt := range tests {
		if got := IsValid(tt.id, tt.prefix); got != tt.want {
			t.Errorf("IsValid(%q, %q) = %v, want %v", tt.id, tt.prefix, got, tt.want)
		}
	}
}

func TestConcurrentUniqueness(t *testing.T) {
	const n = 100
	gen := NewGenerator()

	var mu sync.Mutex
	seen := make(map[string]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.GenerateString()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("expected %d unique IDs, got %d", n, len(seen))
	}
}
