// Package testutil provides an in-memory host.Runtime for tests.
//
// The runtime records every fetch it receives, serves scripted responses,
// and counts every handle release so tests can assert that nothing leaks and
// nothing is released twice.
package testutil

import (
	"fmt"
	"sync"

	"github.com/kbukum/wasmfetch/host"
)

// Handle kinds reported by Runtime.Released.
const (
	KindResponse   = "response"
	KindController = "controller"
	KindHeaders    = "headers"
	KindIterator   = "iterator"
	KindEntry      = "entry"
	KindStream     = "stream"
	KindReader     = "reader"
	KindBuffer     = "buffer"
)

// Request is a fetch call as the host saw it.
type Request struct {
	URL      string
	Method   string
	Redirect string
	// RedirectSet reports whether the redirect mode was set at all.
	RedirectSet bool
	Body        any
	Header      [][2]string
	Extra       map[string]any
	Signal      *AbortSignal
}

// Handler produces the scripted response for a request.
type Handler func(req *Request) (*Response, error)

// Runtime is a scriptable host.Runtime.
type Runtime struct {
	// Handler serves requests. A nil Handler answers 200 with no body.
	Handler Handler
	// Streaming is returned by SupportsStreaming.
	Streaming bool
	// Hold, when non-nil, keeps every fetch pending until a value is
	// received from it or the request is aborted.
	Hold chan struct{}
	// IgnoreAbort makes held fetches wait for Hold even after an abort,
	// modelling a host that completes late.
	IgnoreAbort bool
	// RejectHeader, when non-nil, is consulted by Headers.Append.
	RejectHeader func(name string) error

	mu       sync.Mutex
	requests []*Request
	counts   map[string]int
	probes   int
}

var _ host.Runtime = (*Runtime)(nil)

// New returns a runtime serving requests with h.
func New(h Handler) *Runtime {
	return &Runtime{Handler: h, counts: make(map[string]int)}
}

// Fetch records the request and returns a promise for the scripted response.
func (rt *Runtime) Fetch(url string, opts *host.Options) (host.Promise[host.Response], error) {
	if opts == nil {
		opts = &host.Options{Method: "GET"}
	}
	req := &Request{
		URL:         url,
		Method:      opts.Method,
		Redirect:    opts.Redirect,
		RedirectSet: opts.Redirect != "",
		Body:        opts.Body,
		Extra:       opts.Extra,
	}
	if hs, ok := opts.Headers.(*Headers); ok && hs != nil {
		req.Header = append(req.Header, hs.entries...)
	}
	if sig, ok := opts.Signal.(*AbortSignal); ok {
		req.Signal = sig
	}

	rt.mu.Lock()
	rt.requests = append(rt.requests, req)
	rt.mu.Unlock()
	rt.count("fetch")

	d := host.NewDeferred[host.Response]()
	if rt.Hold == nil {
		rt.serve(req, d)
		return d, nil
	}
	go func() {
		if rt.IgnoreAbort {
			<-rt.Hold
			rt.deliver(req, d)
			return
		}
		select {
		case <-rt.Hold:
			rt.serve(req, d)
		case <-req.Signal.Done():
			d.Reject(host.NewAbortError())
		}
	}()
	return d, nil
}

func (rt *Runtime) serve(req *Request, d *host.Deferred[host.Response]) {
	if req.Signal.Aborted() {
		d.Reject(host.NewAbortError())
		return
	}
	rt.deliver(req, d)
}

func (rt *Runtime) deliver(req *Request, d *host.Deferred[host.Response]) {
	var resp *Response
	var err error
	if rt.Handler != nil {
		resp, err = rt.Handler(req)
	} else {
		resp = &Response{Status: 200, StatusText: "OK"}
	}
	if err != nil {
		d.Reject(err)
		return
	}
	d.Resolve(newResponseHandle(rt, resp, req.Signal))
}

// NewAbortController returns a controller with a fresh signal.
func (rt *Runtime) NewAbortController() (host.AbortController, error) {
	rt.count("controller.new")
	return &AbortController{
		handle: handle{rt: rt, kind: KindController},
		signal: newAbortSignal(),
	}, nil
}

// NewHeaders returns an empty request header collection.
func (rt *Runtime) NewHeaders() (host.Headers, error) {
	return &Headers{handle: handle{rt: rt, kind: KindHeaders}}, nil
}

// SupportsStreaming reports the Streaming field and counts the probe.
func (rt *Runtime) SupportsStreaming() bool {
	rt.mu.Lock()
	rt.probes++
	rt.mu.Unlock()
	return rt.Streaming
}

// Requests returns the recorded fetch calls.
func (rt *Runtime) Requests() []*Request {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]*Request, len(rt.requests))
	copy(out, rt.requests)
	return out
}

// LastRequest returns the most recent fetch call, or nil.
func (rt *Runtime) LastRequest() *Request {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.requests) == 0 {
		return nil
	}
	return rt.requests[len(rt.requests)-1]
}

// Probes returns how many times SupportsStreaming was called.
func (rt *Runtime) Probes() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.probes
}

// Count returns the counter recorded under name, e.g. "fetch", "read",
// "abort" or "entries".
func (rt *Runtime) Count(name string) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.counts[name]
}

// Released returns how many handles of kind were released.
func (rt *Runtime) Released(kind string) int {
	return rt.Count(kind)
}

// DoubleReleased returns how many handles of kind were released more than once.
func (rt *Runtime) DoubleReleased(kind string) int {
	return rt.Count(kind + ".double")
}

func (rt *Runtime) count(name string) {
	rt.mu.Lock()
	if rt.counts == nil {
		rt.counts = make(map[string]int)
	}
	rt.counts[name]++
	rt.mu.Unlock()
}

type handle struct {
	rt       *Runtime
	kind     string
	mu       sync.Mutex
	released bool
}

// Release marks the handle released. A second release is recorded as a
// double release.
func (h *handle) Release() {
	h.mu.Lock()
	again := h.released
	h.released = true
	h.mu.Unlock()
	if again {
		h.rt.count(h.kind + ".double")
		return
	}
	h.rt.count(h.kind)
}

// IsReleased reports whether Release was called.
func (h *handle) IsReleased() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

func (h *handle) usedAfterRelease(op string) error {
	if h.IsReleased() {
		h.rt.count(h.kind + ".use_after_release")
		return &host.Error{Name: "TypeError", Message: fmt.Sprintf("%s on released %s", op, h.kind)}
	}
	return nil
}

// AbortSignal is the fake host abort signal.
type AbortSignal struct {
	once sync.Once
	done chan struct{}
}

func newAbortSignal() *AbortSignal {
	return &AbortSignal{done: make(chan struct{})}
}

// Aborted reports whether the owning controller aborted.
func (s *AbortSignal) Aborted() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed on abort. A nil signal never fires.
func (s *AbortSignal) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}

// AbortController is the fake host abort controller.
type AbortController struct {
	handle
	signal *AbortSignal
}

// Signal returns the controller's signal.
func (c *AbortController) Signal() host.AbortSignal { return c.signal }

// Abort fires the signal and counts the call under "abort".
func (c *AbortController) Abort() {
	c.rt.count("abort")
	c.signal.once.Do(func() { close(c.signal.done) })
}

// Headers is the fake host header collection.
type Headers struct {
	handle
	mu      sync.Mutex
	entries [][2]string
}

// Append adds an entry unless the runtime rejects the name.
func (h *Headers) Append(name, value string) error {
	if err := h.usedAfterRelease("append"); err != nil {
		return err
	}
	if h.rt.RejectHeader != nil {
		if err := h.rt.RejectHeader(name); err != nil {
			return err
		}
	}
	h.mu.Lock()
	h.entries = append(h.entries, [2]string{name, value})
	h.mu.Unlock()
	return nil
}

// Entries returns an iterator over a snapshot of the entries.
func (h *Headers) Entries() (host.Iterator, error) {
	if err := h.usedAfterRelease("entries"); err != nil {
		return nil, err
	}
	h.rt.count("entries")
	h.mu.Lock()
	snapshot := append([][2]string(nil), h.entries...)
	h.mu.Unlock()
	return &Iterator{handle: handle{rt: h.rt, kind: KindIterator}, entries: snapshot}, nil
}

// Iterator is the fake header entries iterator.
type Iterator struct {
	handle
	entries [][2]string
	pos     int
	last    *iteratorResult
	// failAt makes Next fail once pos reaches it; zero disables.
	failAt int
}

// Next returns the next entry. A previous result that was not released is
// recorded under "entry.leaked".
func (it *Iterator) Next() (host.IteratorResult, error) {
	if err := it.usedAfterRelease("next"); err != nil {
		return nil, err
	}
	if it.last != nil && !it.last.IsReleased() {
		it.rt.count(KindEntry + ".leaked")
	}
	if it.failAt > 0 && it.pos == it.failAt {
		return nil, &host.Error{Name: "TypeError", Message: "iterator failed"}
	}
	res := &iteratorResult{handle: handle{rt: it.rt, kind: KindEntry}}
	if it.pos >= len(it.entries) {
		res.done = true
	} else {
		res.entry = it.entries[it.pos]
		it.pos++
	}
	it.last = res
	return res, nil
}

type iteratorResult struct {
	handle
	done  bool
	entry [2]string
}

func (r *iteratorResult) Done() bool { return r.done }

func (r *iteratorResult) Entry() (string, string, error) {
	if err := r.usedAfterRelease("entry"); err != nil {
		return "", "", err
	}
	return r.entry[0], r.entry[1], nil
}

// Buffer is the fake host byte buffer.
type Buffer struct {
	handle
	data []byte
}

func newBuffer(rt *Runtime, b []byte) *Buffer {
	return &Buffer{handle: handle{rt: rt, kind: KindBuffer}, data: b}
}

func (b *Buffer) Len() int { return len(b.data) }

func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}
