// Package uuid includes tests for the run ID generator.
package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique, valid and ordered.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	parsed, err := goUUID.Parse(id1)
	if err != nil {
		t.Fatalf("id1 not valid UUID: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
	if id2 < id1 {
		t.Fatalf("expected %s to sort after %s", id2, id1)
	}
}

func TestShort(t *testing.T) {
	t.Parallel()

	if got := Short("0190a6b2-7f1c-7c2e-9a55-1f7d1c4e3b21"); got != "0190a6b2" {
		t.Fatalf("Short() = %q", got)
	}
	if got := Short("abc"); got != "abc" {
		t.Fatalf("Short() = %q", got)
	}
}
