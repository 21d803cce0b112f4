// Package sse incrementally decodes server-sent-event framed bodies.
package sse

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Event is one decoded frame from the stream: an optional event-type label
// and the JSON payload of its data line.
type Event struct {
	Type string
	Data map[string]interface{}
}

// Decoder buffers raw byte chunks and yields complete events as they become
// available. Chunk boundaries are arbitrary: a frame, a line, or even a
// multi-byte UTF-8 sequence may be split across calls to Feed. State is
// per-stream; use a fresh Decoder for each response body.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder creates a decoder for one stream.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a chunk and returns all events completed by it.
// Frames are separated by a blank line. Frames without a data line, with the
// [DONE] sentinel, or with non-JSON data are silently discarded.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf.Write(chunk)

	data := d.buf.Bytes()
	var events []Event
	for {
		idx := bytes.Index(data, []byte("\n\n"))
		if idx < 0 {
			break
		}
		// Complete frames end on a line boundary, so converting to string
		// here can never split a multi-byte sequence.
		frame := string(data[:idx])
		data = data[idx+2:]

		if evt, ok := parseFrame(frame); ok {
			events = append(events, evt)
		}
	}

	// Keep the partial tail for the next chunk.
	rest := make([]byte, len(data))
	copy(rest, data)
	d.buf.Reset()
	d.buf.Write(rest)

	return events
}

// parseFrame splits one raw frame into its event label and data payload.
// The last data line wins when a frame carries several.
func parseFrame(frame string) (Event, bool) {
	var eventType, data string
	hasData := false

	for _, line := range strings.Split(frame, "\n") {
		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			hasData = true
		}
	}

	if !hasData || data == "" || data == "[DONE]" {
		return Event{}, false
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		// Non-JSON data is not fatal to the stream, just skip the frame.
		return Event{}, false
	}

	return Event{Type: eventType, Data: payload}, true
}
