package engine

import (
	"errors"
	"testing"
)

func TestErrorFormattingAndUnwrap(t *testing.T) {
	wrapped := errors.New("boom")
	e := &Error{Op: "Test", Kind: InvalidArgument, Err: wrapped}
	if e.Unwrap() != wrapped {
		t.Fatalf("expected Unwrap to return the wrapped error")
	}
	if e.Error() == "" {
		t.Fatalf("expected non-empty message")
	}

	bare := newError("Test", Internal, "")
	if bare.Err != nil {
		t.Fatalf("expected nil Err for an empty message, got %v", bare.Err)
	}
}

func TestIsKindMatchesAndMisses(t *testing.T) {
	err := newError("Op", LockTimeout, "timed out")
	if !IsKind(err, LockTimeout) {
		t.Error("expected IsKind to match LockTimeout")
	}
	if IsKind(err, Cancelled) {
		t.Error("expected IsKind to not match a different Kind")
	}
	if IsKind(errors.New("plain"), LockTimeout) {
		t.Error("expected IsKind to report false for a non-engine error")
	}
}

func TestKindStringCoversEveryVariant(t *testing.T) {
	kinds := []Kind{InvalidArgument, NotFound, InvalidRange, LockTimeout, Cancelled, LoadException, Internal}
	seen := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		s := k.String()
		if s == "" || s == "unknown" {
			t.Errorf("Kind %d stringified to %q", int(k), s)
		}
		if seen[s] {
			t.Errorf("duplicate Kind string %q", s)
		}
		seen[s] = true
	}
}
