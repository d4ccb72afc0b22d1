// Package sse decodes and encodes Server-Sent Events frames.
//
// DESIGN: The decoder is a line-buffering state machine. Frames are built
// from whole lines regardless of how the upstream body is chunked, and every
// frame keeps the exact bytes it was decoded from so a relay can forward it
// without re-serialising.
//
// Recognised fields:
//   - "event:" sets the pending event type
//   - "data:"  appends to the pending data (multiple lines are joined by "\n")
//   - ":"      comment, kept in Raw only
//
// Other fields (id, retry) are kept in Raw and otherwise ignored. Lines end
// with "\n" or "\r\n".
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// Frame is one decoded event.
type Frame struct {
	Event string
	Data  string
	// Raw holds the frame bytes exactly as read, including the terminating
	// blank line when there was one.
	Raw []byte

	hasData bool
}

// HasData reports whether the frame carried at least one data line.
func (f Frame) HasData() bool { return f.hasData }

// Terminated reports whether Raw ends with a blank line.
func (f Frame) Terminated() bool {
	return bytes.HasSuffix(f.Raw, []byte("\n\n")) || bytes.HasSuffix(f.Raw, []byte("\r\n\r\n")) ||
		bytes.HasSuffix(f.Raw, []byte("\n\r\n"))
}

// Decoder reads frames from an SSE byte stream.
type Decoder struct {
	r *bufio.Reader

	raw       []byte
	event     string
	data      []string
	hasData   bool
	lineCount int
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 32*1024)}
}

// Next returns the next complete frame. At end of input a non-empty trailing
// frame is returned first, then io.EOF. Any other read error is returned as is
// and the pending frame is discarded.
func (d *Decoder) Next() (Frame, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		if len(line) > 0 && (err == nil || errors.Is(err, io.EOF)) {
			if f, ok := d.Feed(line); ok {
				return f, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if f, ok := d.Flush(); ok {
					return f, nil
				}
				return Frame{}, io.EOF
			}
			d.reset()
			return Frame{}, err
		}
	}
}

// Feed consumes one line (with or without its line terminator) and returns
// a frame when the line completes one.
func (d *Decoder) Feed(line []byte) (Frame, bool) {
	content := bytes.TrimRight(line, "\r\n")
	if len(content) == 0 {
		if d.lineCount == 0 {
			// Stray blank line with nothing pending.
			return Frame{}, false
		}
		d.raw = append(d.raw, line...)
		return d.take(), true
	}

	d.raw = append(d.raw, line...)
	d.lineCount++

	if content[0] == ':' {
		return Frame{}, false
	}

	field, value := splitField(string(content))
	switch field {
	case "event":
		d.event = strings.TrimSpace(value)
	case "data":
		d.data = append(d.data, value)
		d.hasData = true
	}
	return Frame{}, false
}

// Flush returns the pending frame, if any, and resets the decoder.
func (d *Decoder) Flush() (Frame, bool) {
	if d.lineCount == 0 {
		d.reset()
		return Frame{}, false
	}
	return d.take(), true
}

func (d *Decoder) take() Frame {
	f := Frame{
		Event:   d.event,
		Data:    strings.Join(d.data, "\n"),
		Raw:     d.raw,
		hasData: d.hasData,
	}
	d.reset()
	return f
}

func (d *Decoder) reset() {
	d.raw = nil
	d.event = ""
	d.data = nil
	d.hasData = false
	d.lineCount = 0
}

// splitField splits "name: value" per the SSE rules: the value follows the
// first colon with a single leading space removed.
func splitField(line string) (string, string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	value := line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return line[:idx], value
}
