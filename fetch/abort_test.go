package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kbukum/wasmfetch/host/testutil"
	"github.com/kbukum/wasmfetch/logger"
)

type recordingAborter struct {
	calls atomic.Int32
	mu    sync.Mutex
	cause error
}

func (a *recordingAborter) abort(cause error) {
	a.calls.Add(1)
	a.mu.Lock()
	a.cause = cause
	a.mu.Unlock()
}

func newTestSession(t *testing.T, ctx context.Context, rt *testutil.Runtime) *abortSession {
	t.Helper()
	s, err := newAbortSession(ctx, rt, logger.NewDefault("test"))
	if err != nil {
		t.Fatalf("newAbortSession: %v", err)
	}
	return s
}

func TestAbortSession_DisposeIsIdempotent(t *testing.T) {
	rt := testutil.New(nil)
	s := newTestSession(t, context.Background(), rt)
	if s.id == "" {
		t.Error("expected a session id")
	}

	s.dispose()
	s.dispose()

	assertReleased(t, rt, testutil.KindController, 1)
	if n := rt.Count("abort"); n != 0 {
		t.Errorf("dispose must not abort, got %d abort(s)", n)
	}
	if s.ctx.Err() == nil {
		t.Error("derived context should be released by dispose")
	}
	assertNoDoubleRelease(t, rt)
}

func TestAbortSession_FireAbortsOnce(t *testing.T) {
	rt := testutil.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestSession(t, ctx, rt)
	target := &recordingAborter{}
	s.attach(target)

	cancel()
	eventually(t, "controller release", func() bool {
		return rt.Released(testutil.KindController) == 1
	})

	if n := rt.Count("abort"); n != 1 {
		t.Errorf("expected 1 abort, got %d", n)
	}
	if n := target.calls.Load(); n != 1 {
		t.Errorf("expected target aborted once, got %d", n)
	}
	target.mu.Lock()
	cause := target.cause
	target.mu.Unlock()
	if !errors.Is(cause, context.Canceled) {
		t.Errorf("expected context.Canceled cause, got %v", cause)
	}

	s.dispose()
	s.dispose()
	assertReleased(t, rt, testutil.KindController, 1)
	if n := rt.Count("abort"); n != 1 {
		t.Errorf("dispose after fire must not abort again, got %d", n)
	}
	assertNoDoubleRelease(t, rt)
}

func TestAbortSession_AttachAfterFire(t *testing.T) {
	rt := testutil.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestSession(t, ctx, rt)
	eventually(t, "abort", func() bool { return rt.Count("abort") == 1 })

	target := &recordingAborter{}
	s.attach(target)
	if n := target.calls.Load(); n != 1 {
		t.Fatalf("expected immediate abort, got %d call(s)", n)
	}
	s.dispose()
	assertNoDoubleRelease(t, rt)
}

func TestAbortSession_DisposeBeforeCancel(t *testing.T) {
	rt := testutil.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestSession(t, ctx, rt)
	target := &recordingAborter{}
	s.attach(target)

	s.dispose()
	cancel()

	if n := rt.Count("abort"); n != 0 {
		t.Errorf("callback ran after dispose: %d abort(s)", n)
	}
	if n := target.calls.Load(); n != 0 {
		t.Errorf("target aborted after dispose: %d", n)
	}
	assertReleased(t, rt, testutil.KindController, 1)
}

func TestAbortSession_ConcurrentDispose(t *testing.T) {
	rt := testutil.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestSession(t, ctx, rt)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				cancel()
			}
			s.dispose()
		}()
	}
	wg.Wait()

	eventually(t, "controller release", func() bool {
		return rt.Released(testutil.KindController) == 1
	})
	if n := rt.Count("abort"); n > 1 {
		t.Errorf("abort invoked %d times", n)
	}
	assertNoDoubleRelease(t, rt)
}

func TestAbortSession_Abandon(t *testing.T) {
	tests := []struct {
		name      string
		before    func(s *abortSession, cancel context.CancelFunc)
		fired     bool
		wantAbort int
	}{
		{"live request", func(*abortSession, context.CancelFunc) {}, false, 1},
		{"after dispose", func(s *abortSession, _ context.CancelFunc) { s.dispose() }, false, 0},
		{"after cancel", func(_ *abortSession, cancel context.CancelFunc) { cancel() }, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := testutil.New(nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			s := newTestSession(t, ctx, rt)
			target := &recordingAborter{}
			s.attach(target)
			tt.before(s, cancel)
			if tt.fired {
				eventually(t, "callback", func() bool { return rt.Count("abort") == 1 })
			}

			s.abandon()
			s.abandon()
			cancel()
			s.dispose()

			if n := rt.Count("abort"); n != tt.wantAbort {
				t.Errorf("abort count = %d, want %d", n, tt.wantAbort)
			}
			if !tt.fired && target.calls.Load() != 0 {
				t.Error("abandon must not abort the body it was called for")
			}
			assertReleased(t, rt, testutil.KindController, 1)
			assertNoDoubleRelease(t, rt)
		})
	}
}
