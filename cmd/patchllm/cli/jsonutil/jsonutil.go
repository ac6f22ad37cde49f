// Package jsonutil provides small JSON encoding helpers shared across the CLI.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalIndentWithNewline marshals v with indentation and a trailing newline,
// so persisted records diff cleanly and behave as regular text files.
func MarshalIndentWithNewline(v any, prefix, indent string) ([]byte, error) {
	data, err := json.MarshalIndent(v, prefix, indent)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	return append(data, '\n'), nil
}

// MarshalNoEscape marshals v without HTML escaping, keeping file content
// payloads (which routinely contain <, >, &) readable in exported documents.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	return buf.Bytes(), nil
}
