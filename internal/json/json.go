// Package json wraps the sonic codec behind the familiar encoding/json
// surface so call sites never import the codec directly.
package json

import (
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

// Marshal encodes v using the shared codec.
func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

// MarshalIndent encodes v with indentation for human-facing output.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v using the shared codec.
func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

// NewEncoder returns a streaming encoder writing to w.
func NewEncoder(w io.Writer) sonic.Encoder { return api.NewEncoder(w) }

// NewDecoder returns a streaming decoder reading from r.
func NewDecoder(r io.Reader) sonic.Decoder { return api.NewDecoder(r) }
