package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBulkhead_AcquireRelease(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 2})
	ctx := context.Background()

	r1, err := b.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := b.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Acquire(ctx); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("third Acquire = %v, want ErrBulkheadFull", err)
	}

	r1()
	r1()
	if b.InUse() != 1 {
		t.Errorf("InUse = %d after double release, want 1", b.InUse())
	}
	r2()
	if b.InUse() != 0 {
		t.Errorf("InUse = %d, want 0", b.InUse())
	}
}

func TestBulkhead_Wait(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: 20 * time.Millisecond})
	release, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.Acquire(context.Background()); !errors.Is(err, ErrBulkheadTimeout) {
		t.Errorf("Acquire = %v, want ErrBulkheadTimeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire on cancelled ctx = %v", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		release()
	}()
	err = b.Execute(context.Background(), func() error { return nil })
	if err != nil {
		t.Errorf("Execute after release = %v", err)
	}
	if b.InUse() != 0 {
		t.Errorf("InUse = %d", b.InUse())
	}
}
