package utils

import (
	"bytes"
	"encoding/json"
)

// MarshalLine encodes v as a single JSON line terminated by '\n'. HTML
// characters are left as-is so prompts and model names keep their bytes.
func MarshalLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalNoEscape is MarshalLine without the trailing newline.
func MarshalNoEscape(v any) ([]byte, error) {
	line, err := MarshalLine(v)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(line, []byte{'\n'}), nil
}
