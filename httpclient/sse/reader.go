// Package sse reads Server-Sent Events from a streamed response body.
package sse

import (
	"bufio"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"
)

// MaxLineSize bounds a single line of the stream.
const MaxLineSize = 1 << 20

// Event is a single server-sent event.
type Event struct {
	// Event is the event type. Empty for data-only events.
	Event string
	// Data is the payload. Multi-line data is joined with newlines.
	Data string
	// ID is the last event ID seen on the stream, including this event's.
	ID string
	// Retry is the reconnection delay the server asked for, if any.
	Retry time.Duration
}

// Reader reads server-sent events from a stream.
type Reader interface {
	// Next returns the next event, or io.EOF when the stream ends.
	Next() (*Event, error)
	// LastEventID returns the most recent id field seen.
	LastEventID() string
	// Close releases the underlying body.
	Close() error
}

type reader struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
	lastID  string
	started bool
}

// NewReader creates an SSE reader over body.
func NewReader(body io.ReadCloser) Reader {
	s := bufio.NewScanner(body)
	s.Buffer(make([]byte, 0, 4096), MaxLineSize)
	return &reader{scanner: s, body: body}
}

func (r *reader) Next() (*Event, error) {
	var event Event
	var data strings.Builder
	hasData := false

	for r.scanner.Scan() {
		line := r.scanner.Text()
		if !r.started {
			r.started = true
			line = strings.TrimPrefix(line, "\ufeff")
		}

		if line == "" {
			if hasData {
				event.Data = data.String()
				event.ID = r.lastID
				return &event, nil
			}
			event = Event{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := parseLine(line)
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			event.Event = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				r.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				event.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	// An unterminated final event is still delivered.
	if hasData {
		event.Data = data.String()
		event.ID = r.lastID
		return &event, nil
	}
	return nil, io.EOF
}

func (r *reader) LastEventID() string {
	return r.lastID
}

func (r *reader) Close() error {
	return r.body.Close()
}

// parseLine splits "field: value", dropping one space after the colon.
func parseLine(line string) (field, value string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}

// All yields every event of r until the stream ends. A read error is
// yielded once and ends the sequence.
func All(r Reader) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		for {
			ev, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}
