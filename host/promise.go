package host

import (
	"context"
	"sync"
)

// Promise is a host computation that settles exactly once.
type Promise[T any] interface {
	// Done is closed once the promise has settled.
	Done() <-chan struct{}
	// Result returns the settled value. It is only meaningful after Done
	// is closed.
	Result() (T, error)
}

// Await suspends until p settles or ctx is done. A promise that has already
// settled wins over a done context.
func Await[T any](ctx context.Context, p Promise[T]) (T, error) {
	select {
	case <-p.Done():
		return p.Result()
	default:
	}

	select {
	case <-p.Done():
		return p.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Discard gives up on p. If it later resolves to a Releaser, the value is
// released so a late completion cannot leak a handle.
func Discard[T any](p Promise[T]) {
	go func() {
		<-p.Done()
		v, err := p.Result()
		if err != nil {
			return
		}
		if r, ok := any(v).(Releaser); ok && r != nil {
			r.Release()
		}
	}()
}

// Settled is a Promise that is already resolved or rejected.
type Settled[T any] struct {
	value T
	err   error
}

var closed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Resolved returns a promise fulfilled with v.
func Resolved[T any](v T) *Settled[T] {
	return &Settled[T]{value: v}
}

// Rejected returns a promise rejected with err.
func Rejected[T any](err error) *Settled[T] {
	return &Settled[T]{err: err}
}

func (s *Settled[T]) Done() <-chan struct{} { return closed }

func (s *Settled[T]) Result() (T, error) { return s.value, s.err }

// Deferred is a Promise settled later by its owner.
type Deferred[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	value T
	err   error
}

// NewDeferred returns an unsettled promise.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolve fulfills the promise. Only the first Resolve or Reject counts.
func (d *Deferred[T]) Resolve(v T) bool {
	return d.settle(v, nil)
}

// Reject rejects the promise. Only the first Resolve or Reject counts.
func (d *Deferred[T]) Reject(err error) bool {
	var zero T
	return d.settle(zero, err)
}

func (d *Deferred[T]) settle(v T, err error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.done:
		return false
	default:
	}
	d.value, d.err = v, err
	close(d.done)
	return true
}

func (d *Deferred[T]) Done() <-chan struct{} { return d.done }

func (d *Deferred[T]) Result() (T, error) { return d.value, d.err }
