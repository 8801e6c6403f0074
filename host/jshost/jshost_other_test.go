//go:build !(js && wasm)

package jshost

import (
	"errors"
	"testing"
)

func TestNewUnavailable(t *testing.T) {
	rt, err := New()
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if rt != nil {
		t.Errorf("expected nil runtime")
	}

	var stub Runtime
	if stub.SupportsStreaming() {
		t.Error("stub should not report streaming support")
	}
	if _, err := stub.Fetch("https://example.com", nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Fetch: expected ErrUnavailable, got %v", err)
	}
}
