// Package host defines the contract between the fetch transport and the
// environment that actually performs network I/O.
//
// A host exposes a promise-based fetch primitive in the style of the WHATWG
// Fetch API. Every object it hands out is a handle with manual lifetime:
// callers must Release it exactly once when they are done with it. The
// js/wasm binding lives in host/jshost; host/testutil provides an in-memory
// implementation for tests.
package host

// Releaser is implemented by every host object with manual lifetime.
type Releaser interface {
	Release()
}

// Runtime is the host environment.
type Runtime interface {
	// Fetch starts a request and returns a promise for its response.
	// A synchronous error means the call could not be issued at all.
	Fetch(url string, opts *Options) (Promise[Response], error)

	// NewAbortController creates an abort controller whose signal can be
	// attached to a fetch.
	NewAbortController() (AbortController, error)

	// NewHeaders creates an empty header collection.
	NewHeaders() (Headers, error)

	// SupportsStreaming reports whether response bodies can be read
	// incrementally through Response.Body.
	SupportsStreaming() bool
}

// Options is the options bag passed to Fetch.
type Options struct {
	// Method is the HTTP method.
	Method string
	// Redirect is the redirect mode ("follow" or "manual"). Empty leaves
	// the host default in place.
	Redirect string
	// Body is nil, a string, or a []byte shared with the host as a byte view.
	Body any
	// Headers are the request headers. The host does not take ownership.
	Headers Headers
	// Signal aborts the request when triggered.
	Signal AbortSignal
	// Extra holds raw host options. They are applied before the typed
	// fields above, which take precedence.
	Extra map[string]any
}

// AbortSignal is the host-side signal owned by an AbortController.
type AbortSignal interface {
	Aborted() bool
}

// AbortController cancels in-flight host operations.
type AbortController interface {
	Releaser
	Signal() AbortSignal
	Abort()
}

// Headers is an ordered host header collection.
type Headers interface {
	Releaser
	Append(name, value string) error
	Entries() (Iterator, error)
}

// Iterator walks header entries in host order.
type Iterator interface {
	Releaser
	Next() (IteratorResult, error)
}

// IteratorResult is one step of an Iterator. It must be released before the
// next call to Next.
type IteratorResult interface {
	Releaser
	Done() bool
	Entry() (name, value string, err error)
}

// Response is the host response handle.
type Response interface {
	Releaser
	OK() bool
	Redirected() bool
	Status() int
	StatusText() string
	// Type is the response type: "basic", "cors", "opaque",
	// "opaqueredirect", "error" or "default".
	Type() string
	URL() string
	BodyUsed() bool
	// Headers returns the response header collection, or nil.
	Headers() Headers
	// Body returns the body stream, or nil for a null body.
	Body() (Stream, error)
	// ArrayBuffer consumes the whole body.
	ArrayBuffer() (Promise[Buffer], error)
}

// Stream is a readable body stream.
type Stream interface {
	Releaser
	GetReader() (Reader, error)
}

// Reader pulls chunks from a Stream.
type Reader interface {
	Releaser
	Read() (Promise[Chunk], error)
}

// Chunk is the result of one Reader.Read.
type Chunk struct {
	Done  bool
	Value Buffer
}

// Release releases the chunk's buffer, if any.
func (c Chunk) Release() {
	if c.Value != nil {
		c.Value.Release()
	}
}

// Buffer is a host byte buffer.
type Buffer interface {
	Releaser
	Len() int
	// Bytes copies the buffer contents into Go memory.
	Bytes() []byte
}
