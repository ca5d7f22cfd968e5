// Package jsonutil provides JSON formatting helpers shared by the config and
// notes packages. Grounded on the teacher's cmd/entire/cli/jsonutil.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// MarshalIndentWithNewline is like json.MarshalIndent but appends a trailing
// newline, so written files end with a POSIX line ending.
func MarshalIndentWithNewline(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteAtomic writes data to path via a sibling temp file plus rename, so
// readers never observe a partially written config file.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("jsonutil: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("jsonutil: rename into place: %w", err)
	}
	return nil
}
