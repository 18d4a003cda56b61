// Package compress provides the Zstandard implementation of the vframe
// codec's Compressor interface (§4.3).
package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DefaultLevel is the Zstandard compression level the spec calls for (§4.2
// "zstd_compress(S, level=3)").
const DefaultLevel = 3

// Zstd implements vframe.Compressor over klauspost/compress/zstd. Encoders
// and decoders are expensive to construct, so a single Zstd value is meant
// to be reused across many frames; it is safe for concurrent use.
type Zstd struct {
	level zstd.EncoderLevel

	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
}

// New returns a Zstd compressor at the given level (1..22). A level of 0
// selects DefaultLevel.
func New(level int) *Zstd {
	if level == 0 {
		level = DefaultLevel
	}
	return &Zstd{level: zstd.EncoderLevelFromZstd(level)}
}

func (z *Zstd) encoder() (*zstd.Encoder, error) {
	z.encOnce.Do(func() {
		z.enc, z.encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(z.level))
	})
	return z.enc, z.encErr
}

func (z *Zstd) decoder() (*zstd.Decoder, error) {
	z.decOnce.Do(func() {
		z.dec, z.decErr = zstd.NewReader(nil)
	})
	return z.dec, z.decErr
}

// Compress implements vframe.Compressor.
func (z *Zstd) Compress(data []byte) ([]byte, error) {
	enc, err := z.encoder()
	if err != nil {
		return nil, fmt.Errorf("compress: build encoder: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// Decompress implements vframe.Compressor.
func (z *Zstd) Decompress(data []byte) ([]byte, error) {
	dec, err := z.decoder()
	if err != nil {
		return nil, fmt.Errorf("decompress: build decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}
