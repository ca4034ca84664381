// Package jsonutil is the single place JSON is encoded and decoded, on top
// of github.com/go-json-experiment/json.
//
// Field names match case-sensitively against struct tags, unknown members
// are ignored, and nil slices and maps encode as [] and {}.
package jsonutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Marshal returns the compact JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalIndent returns the JSON encoding of v indented by indent.
func MarshalIndent(v any, indent string) ([]byte, error) {
	return json.Marshal(v, jsontext.WithIndent(indent))
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// UnmarshalFold decodes data into v matching member names
// case-insensitively, for third-party APIs with loose casing.
func UnmarshalFold(data []byte, v any) error {
	return json.Unmarshal(data, v, json.MatchCaseInsensitiveNames(true))
}

// Decode reads one JSON value from r into v.
func Decode(r io.Reader, v any) error {
	return json.UnmarshalRead(r, v)
}

// Encode writes v to w as indented JSON followed by a newline.
func Encode(w io.Writer, v any) error {
	if err := json.MarshalWrite(w, v, jsontext.WithIndent("  ")); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return jsontext.Value(data).IsValid()
}

// WriteFile encodes v as indented JSON into path, creating parent
// directories. The file is written under a temporary name and renamed, so
// readers never see a partial document.
func WriteFile(path string, v any, perm os.FileMode) error {
	data, err := MarshalIndent(v, "  ")
	if err != nil {
		return fmt.Errorf("jsonutil: encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonutil: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("jsonutil: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonutil: write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonutil: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsonutil: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
