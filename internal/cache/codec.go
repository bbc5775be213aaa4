package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Codec compresses serialized payloads before they are stored. The cache
// decides per entry whether to invoke it, based on the configured size
// threshold; the codec itself is stateless.
type Codec interface {
	// Name identifies the codec, e.g. in stats output.
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// GzipCodec compresses payloads with gzip at the default compression level.
type GzipCodec struct{}

// Name returns "gzip".
func (GzipCodec) Name() string { return "gzip" }

// Encode gzip-compresses the payload.
func (GzipCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("cache: gzip encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("cache: gzip encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decompresses a payload produced by Encode.
func (GzipCodec) Decode(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cache: gzip decode: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("cache: gzip decode: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ Codec = GzipCodec{}
