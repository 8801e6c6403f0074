package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/kbukum/wasmfetch/host"
)

// body is one of the two delivery modes.
type body interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
	Close() error
	length() (int64, bool)
	all(ctx context.Context) ([]byte, error)
}

// Content is a response body together with its content headers
// (Content-Type, Content-Length, ...). It implements io.ReadCloser.
type Content struct {
	// Header holds the headers the response header set rejected.
	Header http.Header

	ctx       context.Context
	body      body
	streaming bool
}

// Streaming reports whether the body is delivered chunk by chunk.
func (c *Content) Streaming() bool { return c.streaming }

// Read reads from the body under the request's context.
func (c *Content) Read(p []byte) (int, error) {
	return c.body.ReadContext(c.ctx, p)
}

// ReadContext reads from the body; ctx bounds this call only.
func (c *Content) ReadContext(ctx context.Context, p []byte) (int, error) {
	return c.body.ReadContext(ctx, p)
}

// Close releases every host resource held by the body. It is idempotent.
func (c *Content) Close() error {
	return c.body.Close()
}

// Len returns the body length once it is known.
func (c *Content) Len() (int64, bool) {
	return c.body.length()
}

// Bytes returns the whole body. In buffered mode the bytes are cached and
// every call returns the same slice.
func (c *Content) Bytes(ctx context.Context) ([]byte, error) {
	return c.body.all(ctx)
}

// Text returns the body as a string.
func (c *Content) Text(ctx context.Context) (string, error) {
	b, err := c.Bytes(ctx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// JSON decodes the body into v.
func (c *Content) JSON(ctx context.Context, v any) error {
	b, err := c.Bytes(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// bufferedBody fetches the whole body with a single arrayBuffer call.
type bufferedBody struct {
	observe func(n int)

	loadMu sync.Mutex

	mu     sync.Mutex
	resp   *fetchResponse
	data   []byte
	loaded bool
	closed bool
	off    int
	// pending is an arrayBuffer call a timed-out caller left behind.
	pending host.Promise[host.Buffer]
}

func newBufferedBody(resp *fetchResponse, observe func(int)) *bufferedBody {
	return &bufferedBody{resp: resp, observe: observe}
}

// all returns the cached bytes, loading them on first use. The wrapper is
// disposed as soon as the bytes are copied out. A call abandoned by its
// context leaves the host call pending for the next one.
func (b *bufferedBody) all(ctx context.Context) ([]byte, error) {
	b.loadMu.Lock()
	defer b.loadMu.Unlock()

	b.mu.Lock()
	if b.loaded {
		data := b.data
		b.mu.Unlock()
		return data, nil
	}
	resp := b.resp
	p := b.pending
	b.pending = nil
	b.mu.Unlock()
	if resp == nil {
		return nil, ErrBodyClosed
	}

	if p == nil {
		var err error
		if p, err = resp.arrayBuffer(); err != nil {
			return nil, translate(err, ctx)
		}
	}
	buf, err := host.Await(ctx, p)
	if err != nil {
		if err == ctx.Err() {
			b.park(p)
		}
		return nil, translate(err, ctx)
	}
	data := buf.Bytes()
	buf.Release()

	b.mu.Lock()
	b.data = data
	b.loaded = true
	b.resp = nil
	b.mu.Unlock()

	resp.dispose()
	if b.observe != nil {
		b.observe(len(data))
	}
	return data, nil
}

// park keeps p for the next load, or discards it once the body is closed.
func (b *bufferedBody) park(p host.Promise[host.Buffer]) {
	b.mu.Lock()
	if !b.closed {
		b.pending = p
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	host.Discard(p)
}

func (b *bufferedBody) ReadContext(ctx context.Context, p []byte) (int, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return 0, ErrBodyClosed
	}

	data, err := b.all(ctx)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.off >= len(data) {
		return 0, io.EOF
	}
	n := copy(p, data[b.off:])
	b.off += n
	return n, nil
}

func (b *bufferedBody) Close() error {
	b.mu.Lock()
	b.closed = true
	resp := b.resp
	b.resp = nil
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	if pending != nil {
		host.Discard(pending)
	}
	if resp != nil {
		resp.dispose()
	}
	return nil
}

func (b *bufferedBody) length() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		return 0, false
	}
	return int64(len(b.data)), true
}

// await waits for p under ctx. A promise abandoned because ctx finished is
// discarded so a late result is still released.
func await[T any](ctx context.Context, p host.Promise[T]) (T, error) {
	v, err := host.Await(ctx, p)
	if err != nil && err == ctx.Err() {
		host.Discard(p)
	}
	return v, err
}
