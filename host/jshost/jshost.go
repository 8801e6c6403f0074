//go:build js && wasm

package jshost

import (
	"fmt"
	"sync"
	"syscall/js"

	"github.com/kbukum/wasmfetch/host"
)

// supportsStreaming is evaluated once per process.
var supportsStreaming = sync.OnceValue(func() bool {
	g := js.Global()
	resp := g.Get("Response")
	if resp.Type() != js.TypeFunction {
		return false
	}
	if g.Get("ReadableStream").Type() != js.TypeFunction {
		return false
	}
	return g.Get("Reflect").Call("has", resp.Get("prototype"), "body").Bool()
})

// Runtime implements host.Runtime on top of globalThis.fetch.
type Runtime struct {
	global     js.Value
	fetch      js.Value
	object     js.Value
	uint8Array js.Value
}

var _ host.Runtime = (*Runtime)(nil)

// New binds to the fetch primitive of the current JS global scope.
func New() (*Runtime, error) {
	g := js.Global()
	f := g.Get("fetch")
	if f.Type() != js.TypeFunction {
		return nil, ErrUnavailable
	}
	return &Runtime{
		global:     g,
		fetch:      f,
		object:     g.Get("Object"),
		uint8Array: g.Get("Uint8Array"),
	}, nil
}

// Fetch invokes fetch(url, options).
func (rt *Runtime) Fetch(url string, opts *host.Options) (p host.Promise[host.Response], err error) {
	defer recoverJS(&err)

	o := rt.object.New()
	if opts != nil {
		for k, v := range opts.Extra {
			o.Set(k, js.ValueOf(v))
		}
		if opts.Method != "" {
			o.Set("method", opts.Method)
		}
		if opts.Redirect != "" {
			o.Set("redirect", opts.Redirect)
		}
		switch b := opts.Body.(type) {
		case nil:
		case string:
			o.Set("body", b)
		case []byte:
			view := rt.uint8Array.New(len(b))
			js.CopyBytesToJS(view, b)
			o.Set("body", view)
		default:
			return nil, fmt.Errorf("jshost: unsupported body type %T", opts.Body)
		}
		if h, ok := opts.Headers.(*headers); ok {
			o.Set("headers", h.v)
		}
		if s, ok := opts.Signal.(*abortSignal); ok {
			o.Set("signal", s.v)
		}
	}

	return fromJS(rt.fetch.Invoke(url, o), func(v js.Value) host.Response {
		return &response{object: object{v: v}, rt: rt}
	}), nil
}

// NewAbortController creates a new AbortController.
func (rt *Runtime) NewAbortController() (c host.AbortController, err error) {
	defer recoverJS(&err)
	return &abortController{object{v: rt.global.Get("AbortController").New()}}, nil
}

// NewHeaders creates an empty Headers object.
func (rt *Runtime) NewHeaders() (h host.Headers, err error) {
	defer recoverJS(&err)
	return &headers{object{v: rt.global.Get("Headers").New()}}, nil
}

// SupportsStreaming reports whether Response.body is a ReadableStream.
func (rt *Runtime) SupportsStreaming() bool { return supportsStreaming() }

// fromJS adapts a JS promise. The callbacks are released once it settles.
func fromJS[T any](p js.Value, conv func(js.Value) T) host.Promise[T] {
	d := host.NewDeferred[T]()
	onOK := js.FuncOf(func(_ js.Value, args []js.Value) any {
		d.Resolve(conv(arg(args)))
		return nil
	})
	onErr := js.FuncOf(func(_ js.Value, args []js.Value) any {
		d.Reject(toError(arg(args)))
		return nil
	})
	p.Call("then", onOK, onErr)
	go func() {
		<-d.Done()
		onOK.Release()
		onErr.Release()
	}()
	return d
}

func arg(args []js.Value) js.Value {
	if len(args) == 0 {
		return js.Undefined()
	}
	return args[0]
}

func toError(v js.Value) error {
	if v.Type() != js.TypeObject {
		return &host.Error{Message: v.String()}
	}
	e := &host.Error{Message: v.Get("message").String()}
	if name := v.Get("name"); name.Type() == js.TypeString {
		e.Name = name.String()
	}
	return e
}

// recoverJS converts a JS exception thrown through syscall/js into an error.
func recoverJS(err *error) {
	r := recover()
	if r == nil {
		return
	}
	switch x := r.(type) {
	case js.Error:
		*err = toError(x.Value)
	case error:
		*err = x
	default:
		*err = fmt.Errorf("jshost: %v", r)
	}
}

type object struct {
	v js.Value
}

// Release drops the reference so the JS object can be collected.
func (o *object) Release() { o.v = js.Null() }

type abortController struct{ object }

func (c *abortController) Signal() host.AbortSignal {
	return &abortSignal{object{v: c.v.Get("signal")}}
}

func (c *abortController) Abort() {
	if c.v.IsNull() {
		return
	}
	c.v.Call("abort")
}

type abortSignal struct{ object }

func (s *abortSignal) Aborted() bool { return s.v.Get("aborted").Bool() }

type headers struct{ object }

func (h *headers) Append(name, value string) (err error) {
	defer recoverJS(&err)
	h.v.Call("append", name, value)
	return nil
}

func (h *headers) Entries() (it host.Iterator, err error) {
	defer recoverJS(&err)
	return &iterator{object{v: h.v.Call("entries")}}, nil
}

type iterator struct{ object }

func (it *iterator) Next() (r host.IteratorResult, err error) {
	defer recoverJS(&err)
	return &iteratorResult{object{v: it.v.Call("next")}}, nil
}

type iteratorResult struct{ object }

func (r *iteratorResult) Done() bool { return r.v.Get("done").Bool() }

func (r *iteratorResult) Entry() (name, value string, err error) {
	defer recoverJS(&err)
	pair := r.v.Get("value")
	return pair.Index(0).String(), pair.Index(1).String(), nil
}

type response struct {
	object
	rt *Runtime
}

func (r *response) OK() bool           { return r.v.Get("ok").Bool() }
func (r *response) Redirected() bool   { return r.v.Get("redirected").Bool() }
func (r *response) Status() int        { return r.v.Get("status").Int() }
func (r *response) StatusText() string { return r.v.Get("statusText").String() }
func (r *response) Type() string       { return r.v.Get("type").String() }
func (r *response) URL() string        { return r.v.Get("url").String() }
func (r *response) BodyUsed() bool     { return r.v.Get("bodyUsed").Bool() }

func (r *response) Headers() host.Headers {
	h := r.v.Get("headers")
	if h.IsNull() || h.IsUndefined() {
		return nil
	}
	return &headers{object{v: h}}
}

func (r *response) Body() (s host.Stream, err error) {
	defer recoverJS(&err)
	b := r.v.Get("body")
	if b.IsNull() || b.IsUndefined() {
		return nil, nil
	}
	return &stream{object{v: b}}, nil
}

func (r *response) ArrayBuffer() (p host.Promise[host.Buffer], err error) {
	defer recoverJS(&err)
	u8 := r.rt.uint8Array
	return fromJS(r.v.Call("arrayBuffer"), func(ab js.Value) host.Buffer {
		return &buffer{object{v: u8.New(ab)}}
	}), nil
}

type stream struct{ object }

func (s *stream) GetReader() (rd host.Reader, err error) {
	defer recoverJS(&err)
	return &reader{object{v: s.v.Call("getReader")}}, nil
}

type reader struct{ object }

func (r *reader) Read() (p host.Promise[host.Chunk], err error) {
	defer recoverJS(&err)
	return fromJS(r.v.Call("read"), func(res js.Value) host.Chunk {
		if res.Get("done").Bool() {
			return host.Chunk{Done: true}
		}
		return host.Chunk{Value: &buffer{object{v: res.Get("value")}}}
	}), nil
}

type buffer struct{ object }

func (b *buffer) Len() int { return b.v.Get("byteLength").Int() }

func (b *buffer) Bytes() []byte {
	out := make([]byte, b.Len())
	js.CopyBytesToGo(out, b.v)
	return out
}
