// Package sse decodes text/event-stream bodies received through httpclient.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/httpkit/httpclient"
)

// ContentType is the media type of an event stream.
const ContentType = "text/event-stream"

// Event is one dispatched server-sent event.
type Event struct {
	// Event is the type from the "event:" field. Empty for data-only events.
	Event string
	// Data joins every "data:" line of the event with newlines.
	Data string
	// ID is the last event ID seen so far in the stream.
	ID string
	// Retry is the reconnection delay from a "retry:" field, zero if absent.
	Retry time.Duration
}

// Reader reads events from a stream.
type Reader struct {
	scanner *bufio.Scanner
	lastID  string
}

// NewReader creates a reader over r. Lines longer than maxLine bytes fail
// with bufio.ErrTooLong; zero means 64 KiB.
func NewReader(r io.Reader, maxLine int) *Reader {
	s := bufio.NewScanner(r)
	if maxLine > 0 {
		s.Buffer(make([]byte, 0, min(maxLine, 4096)), maxLine)
	}
	return &Reader{scanner: s}
}

// Next returns the next event, or io.EOF when the stream ends. A trailing
// event without a terminating blank line is still returned.
func (r *Reader) Next() (*Event, error) {
	var (
		ev      Event
		hasData bool
		data    strings.Builder
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if hasData {
				ev.Data, ev.ID = data.String(), r.lastID
				return &ev, nil
			}
			ev = Event{}
			continue
		}
		if line[0] == ':' {
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
			ev.Event = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				r.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				ev.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if hasData {
		ev.Data, ev.ID = data.String(), r.lastID
		return &ev, nil
	}
	return nil, io.EOF
}

// LastEventID returns the most recent id field, for a Last-Event-ID header
// on reconnect.
func (r *Reader) LastEventID() string {
	return r.lastID
}

func parseLine(line string) (field, value string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}

// Events is a content handler that decodes a complete event stream. Non-2xx
// responses and other media types are decode errors.
func Events() httpclient.ContentHandler[[]Event] {
	return httpclient.ContentHandlerFunc[[]Event](func(info httpclient.ResponseInfo, body io.Reader) ([]Event, error) {
		if info.StatusCode < 200 || info.StatusCode > 299 {
			return nil, fmt.Errorf("sse: unexpected status %s", info.Status)
		}
		if mt := httpclient.MediaType(info.Headers.Get("Content-Type")); mt != ContentType {
			return nil, fmt.Errorf("sse: unexpected content type %q", mt)
		}
		r := NewReader(body, 0)
		var events []Event
		for {
			ev, err := r.Next()
			if err == io.EOF {
				return events, nil
			}
			if err != nil {
				return events, err
			}
			events = append(events, *ev)
		}
	})
}

// Accept sets the headers an event stream request needs, including
// Last-Event-ID when lastID is not empty.
func Accept(b *httpclient.RequestBuilder, lastID string) *httpclient.RequestBuilder {
	b.SetHeader("Accept", ContentType).SetHeader("Cache-Control", "no-cache")
	if lastID != "" {
		b.SetHeader("Last-Event-ID", lastID)
	}
	return b
}
