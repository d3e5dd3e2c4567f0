// Package pool provides pooled buffers and JSON encoding helpers for hot
// response paths.
package pool

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	json "github.com/goccy/go-json"
)

// maxRetainedBufferBytes caps buffers returned to the pool; anything larger
// is left for the collector instead of pinning memory.
const maxRetainedBufferBytes = 1 << 20

var buffers = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// AcquireBuffer returns an empty buffer from the pool.
func AcquireBuffer() *bytes.Buffer {
	buf := buffers.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// ReleaseBuffer returns a buffer to the pool.
func ReleaseBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxRetainedBufferBytes {
		return
	}
	buffers.Put(buf)
}

// EncodeJSON marshals the value to JSON bytes without HTML escaping.
func EncodeJSON(v any) ([]byte, error) {
	buf := AcquireBuffer()
	defer ReleaseBuffer(buf)
	if err := encode(buf, v); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// WriteJSON encodes and writes JSON directly to the writer without HTML escaping.
func WriteJSON(w io.Writer, v any) error {
	buf := AcquireBuffer()
	defer ReleaseBuffer(buf)
	if err := encode(buf, v); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write encoded json: %w", err)
	}
	return nil
}

func encode(buf *bytes.Buffer, v any) error {
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	if data := buf.Bytes(); len(data) > 0 && data[len(data)-1] == '\n' {
		buf.Truncate(len(data) - 1)
	}
	return nil
}
