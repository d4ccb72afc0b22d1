package sse

import (
	"bytes"
	"io"
	"strings"
)

// WriteFrame writes a decoded frame exactly as it was received. A trailing
// frame cut off by end of input gets a terminator appended so the client
// can still dispatch it.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Raw) == 0 {
		return nil
	}
	if _, err := w.Write(f.Raw); err != nil {
		return err
	}
	if f.Terminated() {
		return nil
	}
	term := "\n"
	if !bytes.HasSuffix(f.Raw, []byte("\n")) {
		term = "\n\n"
	}
	_, err := io.WriteString(w, term)
	return err
}

// Encode builds a frame with an optional event name and a data payload.
// Multi-line payloads become one data line per line.
func Encode(event string, payload []byte) []byte {
	var b bytes.Buffer
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(strings.TrimRight(string(payload), "\r\n"), "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.Bytes()
}
