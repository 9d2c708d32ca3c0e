// Package compress wraps the streaming encoders used for on-the-fly
// response compression. Each Encoder lives for exactly one response.
package compress

import (
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"assetbridge/pkg/negotiate"
)

// Encoder is a streaming transform. Flush pushes buffered output to the
// underlying writer without ending the stream; Close writes any trailer.
// Close does not close the underlying writer.
type Encoder interface {
	io.Writer
	Flush() error
	Close() error
}

// Levels tunes each encoder. Zero values select the defaults below.
type Levels struct {
	Brotli  int
	Gzip    int
	Deflate int
	Zstd    int
}

const (
	DefaultBrotliQuality = 5
	DefaultGzipLevel     = 6
	DefaultDeflateLevel  = 6
	DefaultZstdLevel     = 3
)

// brotliTextWindow is the window size (log2) used for text-heavy bodies.
const brotliTextWindow = 22

func (l Levels) withDefaults() Levels {
	if l.Brotli <= 0 {
		l.Brotli = DefaultBrotliQuality
	}
	if l.Gzip == 0 {
		l.Gzip = DefaultGzipLevel
	}
	if l.Deflate == 0 {
		l.Deflate = DefaultDeflateLevel
	}
	if l.Zstd <= 0 {
		l.Zstd = DefaultZstdLevel
	}
	return l
}

// Codec builds encoders for the codings it supports.
type Codec struct {
	levels Levels
}

// NewCodec validates levels and returns a Codec.
func NewCodec(levels Levels) (*Codec, error) {
	l := levels.withDefaults()
	if l.Brotli > brotli.BestCompression {
		return nil, fmt.Errorf("brotli quality %d out of range", l.Brotli)
	}
	if l.Gzip < gzip.HuffmanOnly || l.Gzip > gzip.BestCompression {
		return nil, fmt.Errorf("gzip level %d out of range", l.Gzip)
	}
	if l.Deflate < zlib.HuffmanOnly || l.Deflate > zlib.BestCompression {
		return nil, fmt.Errorf("deflate level %d out of range", l.Deflate)
	}
	if l.Zstd > 22 {
		return nil, fmt.Errorf("zstd level %d out of range", l.Zstd)
	}
	return &Codec{levels: l}, nil
}

// Supports reports whether coding has a transform. identity is always
// supported.
func (c *Codec) Supports(coding string) bool {
	switch coding {
	case negotiate.Brotli, negotiate.Zstd, negotiate.Gzip, negotiate.Deflate, negotiate.Identity:
		return true
	}
	return false
}

// Select returns the first ranked coding this codec can produce. A wildcard,
// an empty ranking or a ranking with no supported coding yields identity.
func (c *Codec) Select(ranked []negotiate.Coding) string {
	for _, rc := range ranked {
		if rc.Name == negotiate.Any {
			return negotiate.Identity
		}
		if c.Supports(rc.Name) {
			return rc.Name
		}
	}
	return negotiate.Identity
}

// NewEncoder returns an encoder for coding writing into w. Unknown codings
// get the identity pass-through.
func (c *Codec) NewEncoder(coding string, w io.Writer) (Encoder, error) {
	switch coding {
	case negotiate.Brotli:
		return brotli.NewWriterOptions(w, brotli.WriterOptions{
			Quality: c.levels.Brotli,
			LGWin:   brotliTextWindow,
		}), nil
	case negotiate.Gzip:
		zw, err := gzip.NewWriterLevel(w, c.levels.Gzip)
		if err != nil {
			return nil, fmt.Errorf("gzip new writer level: %w", err)
		}
		return zw, nil
	case negotiate.Deflate:
		zw, err := zlib.NewWriterLevel(w, c.levels.Deflate)
		if err != nil {
			return nil, fmt.Errorf("zlib new writer level: %w", err)
		}
		return zw, nil
	case negotiate.Zstd:
		zw, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.levels.Zstd)),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("zstd new writer: %w", err)
		}
		return zw, nil
	default:
		return identity{w: w}, nil
	}
}

type identity struct {
	w io.Writer
}

func (i identity) Write(p []byte) (int, error) { return i.w.Write(p) }
func (identity) Flush() error                  { return nil }
func (identity) Close() error                  { return nil }
