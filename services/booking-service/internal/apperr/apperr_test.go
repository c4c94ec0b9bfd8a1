package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Fatal("expected empty kind for nil")
	}
	wrapped := fmt.Errorf("create: %w", Conflict("slot taken"))
	if KindOf(wrapped) != KindConflict {
		t.Fatalf("expected conflict, got %s", KindOf(wrapped))
	}
	if KindOf(errors.New("boom")) != KindStorage {
		t.Fatal("unknown errors should be storage errors")
	}
	if !Is(NotFound("appointment %s", "a1"), KindNotFound) {
		t.Fatal("expected not found")
	}
}

func TestStorageUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Storage(cause, "insert appointment")
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if err.Error() != "StorageError: insert appointment: connection reset" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
