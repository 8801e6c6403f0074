package fetch

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/kbukum/wasmfetch/host"
	"github.com/kbukum/wasmfetch/logger"
)

type streamState int

const (
	// stateStart: no reader acquired yet.
	stateStart streamState = iota
	// stateIdle: reader acquired, no unread chunk.
	stateIdle
	// stateDraining: serving the pending chunk.
	stateDraining
	// stateExhausted: the host reported done; terminal.
	stateExhausted
	// stateCancelled: the abort session fired; terminal.
	stateCancelled
	// stateFaulted: a host call failed; resources wait for Close.
	stateFaulted
	// stateClosed: closed by the caller; terminal.
	stateClosed
)

func (s streamState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateIdle:
		return "idle"
	case stateDraining:
		return "draining"
	case stateExhausted:
		return "exhausted"
	case stateCancelled:
		return "cancelled"
	case stateFaulted:
		return "faulted"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// streamBody pulls the body one chunk at a time and keeps at most one chunk
// in memory.
type streamBody struct {
	log     *logger.Logger
	observe func(n int)

	// readMu serializes readers; mu guards the fields below and is never
	// held while waiting on the host.
	readMu sync.Mutex

	mu      sync.Mutex
	state   streamState
	resp    *fetchResponse
	reader  host.Reader
	pending host.Promise[host.Chunk]
	chunk   []byte
	off     int
	err     error
	stop    chan struct{}
}

func newStreamBody(resp *fetchResponse, log *logger.Logger, observe func(int)) *streamBody {
	return &streamBody{
		log:     log,
		observe: observe,
		resp:    resp,
		stop:    make(chan struct{}),
	}
}

// ReadContext implements the pull contract: it returns 0, io.EOF at end of
// stream and never reaches the host again after that. If ctx ends while a
// pull is in flight, the pull is kept and the next call resumes it.
func (s *streamBody) ReadContext(ctx context.Context, p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		s.mu.Lock()
		switch s.state {
		case stateExhausted:
			s.mu.Unlock()
			return 0, io.EOF
		case stateCancelled, stateFaulted:
			err := s.err
			s.mu.Unlock()
			return 0, err
		case stateClosed:
			s.mu.Unlock()
			return 0, ErrBodyClosed
		case stateDraining:
			n := copy(p, s.chunk[s.off:])
			s.off += n
			if s.off == len(s.chunk) {
				s.chunk, s.off = nil, 0
				s.state = stateIdle
			}
			s.mu.Unlock()
			return n, nil
		}

		if len(p) == 0 {
			s.mu.Unlock()
			return 0, nil
		}

		if s.state == stateStart {
			if s.resp == nil {
				s.state = stateExhausted
				s.mu.Unlock()
				return 0, io.EOF
			}
			reader, err := s.resp.bodyReader()
			if err != nil {
				s.faultLocked(translate(err, ctx))
				s.mu.Unlock()
				continue
			}
			if reader == nil {
				s.finishLocked()
				continue
			}
			s.reader = reader
			s.state = stateIdle
		}

		pull := s.pending
		if pull == nil {
			if err := ctx.Err(); err != nil {
				s.mu.Unlock()
				return 0, translate(err, ctx)
			}
			var err error
			pull, err = s.reader.Read()
			if err != nil {
				s.faultLocked(translate(err, ctx))
				s.mu.Unlock()
				continue
			}
			s.pending = pull
		}
		stop := s.stop
		s.mu.Unlock()

		select {
		case <-pull.Done():
		case <-stop:
			continue
		case <-ctx.Done():
			return 0, translate(ctx.Err(), ctx)
		}

		chunk, err := pull.Result()

		s.mu.Lock()
		if s.pending != pull {
			// abort or Close took the pull over and releases its result.
			s.mu.Unlock()
			continue
		}
		s.pending = nil
		if err != nil {
			s.faultLocked(translate(err, ctx))
			s.mu.Unlock()
			continue
		}
		if chunk.Done {
			chunk.Release()
			s.finishLocked()
			continue
		}
		var data []byte
		if chunk.Value != nil {
			data = chunk.Value.Bytes()
		}
		chunk.Release()
		if len(data) > 0 {
			s.chunk, s.off = data, 0
			s.state = stateDraining
		}
		s.mu.Unlock()
		if s.observe != nil && len(data) > 0 {
			s.observe(len(data))
		}
	}
}

// faultLocked records a sticky failure. Host resources are released by
// Close or by the abort session.
func (s *streamBody) faultLocked(err error) {
	s.state = stateFaulted
	s.err = err
}

// finishLocked handles end of stream. It is entered with mu held and
// returns with mu released.
func (s *streamBody) finishLocked() {
	s.state = stateExhausted
	reader, resp, pending := s.detachLocked()
	s.mu.Unlock()
	release(reader, resp, pending)
	s.log.Debug("fetch stream exhausted")
}

// detachLocked hands the held host resources to the caller and wakes any
// reader blocked on the host.
func (s *streamBody) detachLocked() (host.Reader, *fetchResponse, host.Promise[host.Chunk]) {
	reader, resp, pending := s.reader, s.resp, s.pending
	s.reader, s.resp, s.pending = nil, nil, nil
	s.chunk, s.off = nil, 0
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return reader, resp, pending
}

func release(reader host.Reader, resp *fetchResponse, pending host.Promise[host.Chunk]) {
	if pending != nil {
		host.Discard(pending)
	}
	if reader != nil {
		reader.Release()
	}
	if resp != nil {
		resp.dispose()
	}
}

// abort is called by the abort session when the request's context ends.
func (s *streamBody) abort(cause error) {
	s.mu.Lock()
	switch s.state {
	case stateExhausted, stateCancelled, stateClosed:
		s.mu.Unlock()
		return
	case stateFaulted:
	default:
		s.state = stateCancelled
		s.err = newCanceledError(nil, cause)
	}
	reader, resp, pending := s.detachLocked()
	s.mu.Unlock()
	release(reader, resp, pending)
}

// Close releases the reader and the response. It is idempotent and may run
// concurrently with a blocked read, which then fails with ErrBodyClosed.
func (s *streamBody) Close() error {
	s.mu.Lock()
	switch s.state {
	case stateExhausted, stateCancelled, stateClosed:
		s.mu.Unlock()
		return nil
	}
	early := s.state != stateFaulted
	s.state = stateClosed
	s.err = nil
	reader, resp, pending := s.detachLocked()
	s.mu.Unlock()
	if early && resp != nil {
		resp.session.abandon()
	}
	release(reader, resp, pending)
	return nil
}

// length is never known up front for a stream.
func (s *streamBody) length() (int64, bool) { return 0, false }

// all drains the rest of the stream.
func (s *streamBody) all(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		n, err := s.ReadContext(ctx, chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
