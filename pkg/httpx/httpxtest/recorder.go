// Package httpxtest provides an in-memory httpx.StreamWriter for tests.
package httpxtest

import (
	"bytes"
	"net/http"
	"sync"

	"assetbridge/pkg/httpx"
)

// Recorder records everything written to it.
type Recorder struct {
	mu sync.Mutex

	Status    int
	Header    http.Header
	Body      bytes.Buffer
	Ended     bool
	Wrote     bool
	Flushes   int
	BodyCalls int

	// OnWrite, when set, runs before each body write; a non-nil error is
	// returned to the caller instead of recording the bytes.
	OnWrite func(n int) error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

var _ httpx.StreamWriter = (*Recorder)(nil)

func (r *Recorder) WriteHeader(status int, header http.Header, endStream bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Wrote {
		return httpx.ErrHeadersWritten
	}
	r.Wrote = true
	r.Status = status
	r.Header = header.Clone()
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Ended = endStream
	return nil
}

func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Ended {
		return 0, httpx.ErrStreamEnded
	}
	if !r.Wrote {
		r.Wrote = true
		r.Status = http.StatusOK
		r.Header = http.Header{}
	}
	if r.OnWrite != nil {
		if err := r.OnWrite(len(p)); err != nil {
			return 0, err
		}
	}
	r.BodyCalls++
	return r.Body.Write(p)
}

func (r *Recorder) Flush() error {
	r.mu.Lock()
	r.Flushes++
	r.mu.Unlock()
	return nil
}

// Bytes returns a copy of the recorded body.
func (r *Recorder) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.Body.Bytes()...)
}
