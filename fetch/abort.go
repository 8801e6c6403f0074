package fetch

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/wasmfetch/host"
	"github.com/kbukum/wasmfetch/logger"
)

// aborter is a body reader the session tears down when it fires.
type aborter interface {
	abort(cause error)
}

// abortSession ties a request's context to a host abort controller.
type abortSession struct {
	id         string
	parent     context.Context
	ctx        context.Context
	cancel     context.CancelFunc
	stop       func() bool
	controller host.AbortController
	log        *logger.Logger

	mu       sync.Mutex
	fired    bool
	released bool
	target   aborter

	disposeOnce sync.Once
}

// newAbortSession creates the host controller, then derives a cancelable
// context from ctx and registers the abort callback on it. If ctx is
// already done the callback runs right away.
func newAbortSession(ctx context.Context, rt host.Runtime, log *logger.Logger) (*abortSession, error) {
	controller, err := rt.NewAbortController()
	if err != nil {
		return nil, err
	}
	s := &abortSession{
		id:         uuid.NewString(),
		parent:     ctx,
		controller: controller,
		log:        log,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.stop = context.AfterFunc(s.ctx, s.fire)
	return s, nil
}

// signal returns the host signal to attach to the outgoing fetch.
func (s *abortSession) signal() host.AbortSignal {
	return s.controller.Signal()
}

// fire runs when the derived context is done.
func (s *abortSession) fire() {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		return
	}
	s.fired = true
	if !s.released {
		s.controller.Abort()
	}
	target := s.target
	s.target = nil
	s.mu.Unlock()

	s.log.Debug("fetch aborted", logger.Fields("session", s.id))

	if target != nil {
		target.abort(s.cause())
	}
	s.releaseController()
}

func (s *abortSession) cause() error {
	if err := context.Cause(s.parent); err != nil {
		return err
	}
	return context.Cause(s.ctx)
}

// attach registers the streaming body to abort when the session fires. A
// session that already fired aborts t immediately.
func (s *abortSession) attach(t aborter) {
	s.mu.Lock()
	if !s.fired {
		s.target = t
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	t.abort(s.cause())
}

// abandon aborts the host request for a body closed before its end. It
// does nothing once the session fired or released the controller.
func (s *abortSession) abandon() {
	s.mu.Lock()
	if s.fired || s.released {
		s.mu.Unlock()
		return
	}
	s.fired = true
	s.target = nil
	s.controller.Abort()
	s.mu.Unlock()

	s.log.Debug("fetch abandoned", logger.Fields("session", s.id))
}

// dispose detaches the callback, releases the derived context and releases
// the controller. Safe to call repeatedly and after the callback ran. A
// caller context that finished before the callback was scheduled still
// aborts the host request.
func (s *abortSession) dispose() {
	s.disposeOnce.Do(func() {
		if s.stop() && s.parent.Err() != nil {
			s.fire()
		}
		s.cancel()
		s.releaseController()
	})
}

func (s *abortSession) releaseController() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.target = nil
	s.controller.Release()
}
