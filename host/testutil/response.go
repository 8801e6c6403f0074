package testutil

import (
	"bytes"
	"sync"

	"github.com/kbukum/wasmfetch/host"
)

// Response scripts a host response.
type Response struct {
	Status     int
	StatusText string
	// Type defaults to "basic".
	Type       string
	URL        string
	Redirected bool
	// Header entries in host order.
	Header [][2]string
	// NoHeaders makes Headers return nil.
	NoHeaders bool
	// HeaderFailAt makes the entries iterator fail at that position.
	HeaderFailAt int
	// Chunks is the body, as delivered by successive reads.
	Chunks [][]byte
	// NullBody makes Body return nil.
	NullBody bool
	// ChunkGate, when non-nil, holds every read and ArrayBuffer call until
	// a value is received from it or the request is aborted.
	ChunkGate chan struct{}
	// ReadErr rejects the read that follows the last chunk.
	ReadErr error
	// ArrayBufferErr rejects ArrayBuffer.
	ArrayBufferErr error
}

type responseHandle struct {
	handle
	script *Response
	signal *AbortSignal

	mu       sync.Mutex
	bodyUsed bool
	next     int
}

func newResponseHandle(rt *Runtime, script *Response, sig *AbortSignal) *responseHandle {
	return &responseHandle{
		handle: handle{rt: rt, kind: KindResponse},
		script: script,
		signal: sig,
	}
}

func (r *responseHandle) OK() bool { return r.script.Status >= 200 && r.script.Status < 300 }

func (r *responseHandle) Redirected() bool { return r.script.Redirected }

func (r *responseHandle) Status() int { return r.script.Status }

func (r *responseHandle) StatusText() string { return r.script.StatusText }

func (r *responseHandle) Type() string {
	if r.script.Type == "" {
		return "basic"
	}
	return r.script.Type
}

func (r *responseHandle) URL() string { return r.script.URL }

func (r *responseHandle) BodyUsed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodyUsed
}

func (r *responseHandle) Headers() host.Headers {
	if r.script.NoHeaders {
		return nil
	}
	return &responseHeaders{
		Headers: Headers{handle: handle{rt: r.rt, kind: KindHeaders}, entries: r.script.Header},
		failAt:  r.script.HeaderFailAt,
	}
}

func (r *responseHandle) Body() (host.Stream, error) {
	if err := r.usedAfterRelease("body"); err != nil {
		return nil, err
	}
	if r.script.NullBody {
		return nil, nil
	}
	return &stream{handle: handle{rt: r.rt, kind: KindStream}, resp: r}, nil
}

func (r *responseHandle) ArrayBuffer() (host.Promise[host.Buffer], error) {
	if err := r.usedAfterRelease("arrayBuffer"); err != nil {
		return nil, err
	}
	r.rt.count("arrayBuffer")
	r.mu.Lock()
	used := r.bodyUsed
	r.bodyUsed = true
	r.mu.Unlock()
	if used {
		return host.Rejected[host.Buffer](&host.Error{Name: "TypeError", Message: "body stream already read"}), nil
	}

	d := host.NewDeferred[host.Buffer]()
	produce := func() {
		if r.signal.Aborted() {
			d.Reject(host.NewAbortError())
			return
		}
		if r.script.ArrayBufferErr != nil {
			d.Reject(r.script.ArrayBufferErr)
			return
		}
		d.Resolve(newBuffer(r.rt, bytes.Join(r.script.Chunks, nil)))
	}
	r.gate(d.Reject, produce)
	return d, nil
}

// gate runs produce immediately, or once ChunkGate yields, rejecting on abort.
func (r *responseHandle) gate(reject func(error) bool, produce func()) {
	if r.script.ChunkGate == nil {
		produce()
		return
	}
	go func() {
		select {
		case <-r.script.ChunkGate:
			produce()
		case <-r.signal.Done():
			reject(host.NewAbortError())
		}
	}()
}

type responseHeaders struct {
	Headers
	failAt int
}

func (h *responseHeaders) Entries() (host.Iterator, error) {
	it, err := h.Headers.Entries()
	if err != nil {
		return nil, err
	}
	it.(*Iterator).failAt = h.failAt
	return it, nil
}

type stream struct {
	handle
	resp   *responseHandle
	locked bool
}

func (s *stream) GetReader() (host.Reader, error) {
	if err := s.usedAfterRelease("getReader"); err != nil {
		return nil, err
	}
	if s.locked {
		return nil, &host.Error{Name: "TypeError", Message: "stream is locked"}
	}
	s.locked = true
	s.resp.mu.Lock()
	s.resp.bodyUsed = true
	s.resp.mu.Unlock()
	return &reader{handle: handle{rt: s.rt, kind: KindReader}, resp: s.resp}, nil
}

type reader struct {
	handle
	resp *responseHandle
}

func (r *reader) Read() (host.Promise[host.Chunk], error) {
	if err := r.usedAfterRelease("read"); err != nil {
		return nil, err
	}
	r.rt.count("read")
	resp := r.resp
	d := host.NewDeferred[host.Chunk]()
	produce := func() {
		if resp.signal.Aborted() {
			d.Reject(host.NewAbortError())
			return
		}
		resp.mu.Lock()
		i := resp.next
		if i < len(resp.script.Chunks) {
			resp.next++
		}
		resp.mu.Unlock()
		switch {
		case i < len(resp.script.Chunks):
			d.Resolve(host.Chunk{Value: newBuffer(r.rt, resp.script.Chunks[i])})
		case resp.script.ReadErr != nil:
			d.Reject(resp.script.ReadErr)
		default:
			d.Resolve(host.Chunk{Done: true})
		}
	}
	resp.gate(d.Reject, produce)
	return d, nil
}
