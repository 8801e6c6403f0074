package host

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingReleaser struct{ n atomic.Int32 }

func (c *countingReleaser) Release() { c.n.Add(1) }

func TestAwait(t *testing.T) {
	t.Run("resolved", func(t *testing.T) {
		v, err := Await(context.Background(), Resolved(42))
		if err != nil || v != 42 {
			t.Fatalf("got %v, %v", v, err)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		want := errors.New("boom")
		_, err := Await(context.Background(), Rejected[int](want))
		if !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
	})

	t.Run("settled wins over done context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		v, err := Await(ctx, Resolved("x"))
		if err != nil || v != "x" {
			t.Fatalf("got %q, %v", v, err)
		}
	})

	t.Run("context cancels pending", func(t *testing.T) {
		d := NewDeferred[int]()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := Await[int](ctx, d)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("resolves later", func(t *testing.T) {
		d := NewDeferred[int]()
		go func() {
			time.Sleep(5 * time.Millisecond)
			d.Resolve(7)
		}()
		v, err := Await[int](context.Background(), d)
		if err != nil || v != 7 {
			t.Fatalf("got %v, %v", v, err)
		}
	})
}

func TestDeferredFirstSettleWins(t *testing.T) {
	d := NewDeferred[int]()
	if !d.Resolve(1) {
		t.Fatal("first Resolve should settle")
	}
	if d.Resolve(2) {
		t.Error("second Resolve should not settle")
	}
	if d.Reject(errors.New("late")) {
		t.Error("Reject after Resolve should not settle")
	}
	v, err := d.Result()
	if v != 1 || err != nil {
		t.Errorf("got %v, %v", v, err)
	}
}

func TestDiscardReleasesLateValue(t *testing.T) {
	d := NewDeferred[Releaser]()
	r := &countingReleaser{}
	Discard[Releaser](d)
	d.Resolve(r)

	deadline := time.Now().Add(time.Second)
	for r.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := r.n.Load(); got != 1 {
		t.Fatalf("expected 1 release, got %d", got)
	}
}

func TestDiscardIgnoresRejection(t *testing.T) {
	d := NewDeferred[Releaser]()
	Discard[Releaser](d)
	d.Reject(errors.New("boom"))
}

func TestChunkRelease(t *testing.T) {
	Chunk{Done: true}.Release()
}

func TestIsAbort(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"abort name", NewAbortError(), true},
		{"abort message prefix", &Error{Message: "AbortError: signal is aborted without reason"}, true},
		{"wrapped", errors.Join(errors.New("outer"), NewAbortError()), true},
		{"type error", &Error{Name: "TypeError", Message: "Failed to fetch"}, false},
		{"plain", errors.New("AbortError"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAbort(tt.err); got != tt.want {
				t.Errorf("IsAbort() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Name: "TypeError", Message: "Failed to fetch"}, "TypeError: Failed to fetch"},
		{&Error{Name: "AbortError", Message: "AbortError: aborted"}, "AbortError: aborted"},
		{&Error{Message: "bare"}, "bare"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
