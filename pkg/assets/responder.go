package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"assetbridge/pkg/httpx"
	"assetbridge/pkg/negotiate"
)

const (
	CacheImmutable = "public, max-age=31536000, immutable"
	CacheShort     = "public, max-age=21600"

	DefaultPublicPath = "/build/"
	DefaultChunkSize  = 64 * 1024
)

// openFile is swapped in tests to observe descriptor lifetimes.
var openFile = func(name string) (fileHandle, error) { return os.Open(name) }

type fileHandle interface {
	io.ReadCloser
	Stat() (fs.FileInfo, error)
}

// ResponderOptions configures a Responder. Zero values select defaults.
type ResponderOptions struct {
	// PublicPath prefixes fingerprinted build output that may be cached
	// forever. Default "/build/".
	PublicPath string
	Suffixes   Suffixes
	ChunkSize  int
	// Memo caches negotiation results; nil parses every header.
	Memo *negotiate.Memo
}

// Responder serves indexed files.
type Responder struct {
	idx  *Index
	opts ResponderOptions
}

// Result describes what Respond did.
type Result struct {
	// Served is false when the path is not static and the caller should
	// fall through to the application handler.
	Served bool
	// File is the public path of the variant that was sent.
	File    string
	Coding  string
	Bytes   int64
	Aborted bool
}

// NewResponder returns a Responder over idx.
func NewResponder(idx *Index, opts ResponderOptions) *Responder {
	if opts.PublicPath == "" {
		opts.PublicPath = DefaultPublicPath
	}
	if opts.Suffixes == nil {
		opts.Suffixes = DefaultSuffixes
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Responder{idx: idx, opts: opts}
}

// Resolve picks the file variant for path given the client's Accept-Encoding
// value. It returns the public path of the chosen file and its coding.
func (r *Responder) Resolve(path, acceptEncoding string) (string, string, error) {
	if _, ok := r.idx.Lookup(path); !ok {
		return "", "", ErrNotIndexed
	}
	ranked := []negotiate.Coding{{Name: negotiate.Any, Weight: 1}}
	if strings.TrimSpace(acceptEncoding) != "" {
		ranked = r.opts.Memo.Parse(acceptEncoding)
	}
	for _, c := range ranked {
		suffix, ok := r.opts.Suffixes[c.Name]
		if !ok {
			// no precompressed form for this coding; the base file is acceptable
			return path, negotiate.Identity, nil
		}
		if _, ok := r.idx.Lookup(path + suffix); ok {
			return path + suffix, c.Name, nil
		}
	}
	return path, negotiate.Identity, nil
}

// CacheControl returns the cache directive for a public path.
func (r *Responder) CacheControl(path string) string {
	if strings.HasPrefix(path, r.opts.PublicPath) {
		return CacheImmutable
	}
	return CacheShort
}

// Respond serves path if it is indexed and method is GET or HEAD. A client
// disconnect (ctx done) stops the read and is reported as Result.Aborted,
// not as an error.
func (r *Responder) Respond(ctx context.Context, w httpx.StreamWriter, method, path, acceptEncoding string) (Result, error) {
	if method != http.MethodGet && method != http.MethodHead {
		return Result{}, nil
	}
	file, coding, err := r.Resolve(path, acceptEncoding)
	if errors.Is(err, ErrNotIndexed) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}
	res := Result{Served: true, File: file, Coding: coding}

	abs, _ := r.idx.Lookup(file)
	f, err := openFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("%w: %s", ErrIndexDiverged, abs)
		}
		return res, fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", file, err)
	}
	if !fi.Mode().IsRegular() {
		return res, fmt.Errorf("%w: %s is no longer a regular file", ErrIndexDiverged, abs)
	}

	h := make(http.Header, 6)
	h.Set("Cache-Control", r.CacheControl(path))
	h.Set("Content-Type", ContentType(path))
	h.Set("Content-Encoding", coding)
	h.Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	h.Set("Last-Modified", fi.ModTime().UTC().Format(http.TimeFormat))
	h.Set("Vary", "Accept-Encoding")

	if method == http.MethodHead {
		return res, w.WriteHeader(http.StatusOK, h, true)
	}
	if err := w.WriteHeader(http.StatusOK, h, false); err != nil {
		if ctx.Err() != nil {
			res.Aborted = true
			return res, nil
		}
		return res, err
	}

	n, err := copyChunks(ctx, w, f, r.opts.ChunkSize)
	res.Bytes = n
	if err != nil {
		if isCancel(ctx, err) {
			res.Aborted = true
			return res, nil
		}
		return res, fmt.Errorf("stream %s: %w", file, err)
	}
	return res, w.Flush()
}

// copyChunks copies src to w one chunk at a time, checking ctx between
// chunks. Each Write blocks until the transport accepts the bytes.
func copyChunks(ctx context.Context, w io.Writer, src io.Reader, size int) (int64, error) {
	buf := make([]byte, size)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			total += int64(m)
			if werr != nil {
				return total, werr
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func isCancel(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.ErrClosedPipe)
}
