package assets

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"assetbridge/pkg/httpx/httpxtest"
	"assetbridge/pkg/negotiate"
)

func newTestResponder(t *testing.T, opts ResponderOptions) *Responder {
	t.Helper()
	root := writeTree(t, map[string]string{
		"build/app.js":    "plain-js",
		"build/app.js.br": "br-js",
		"build/app.js.gz": "gz-js",
		"site.css":        "plain-css",
		"site.css.gz":     "gz-css",
		"logo.png":        "png",
		"README":          "readme",
	})
	idx, err := Build(context.Background(), root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return NewResponder(idx, opts)
}

func TestRespondSelectsVariant(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		accept   string
		suffixes Suffixes
		coding   string
		body     string
	}{
		{name: "gzip only", path: "/build/app.js", accept: "gzip", coding: "gzip", body: "gz-js"},
		{name: "weight beats preference", path: "/build/app.js", accept: "br;q=0.5, gzip;q=0.9", coding: "gzip", body: "gz-js"},
		{name: "preference breaks ties", path: "/build/app.js", accept: "gzip, br", coding: "br", body: "br-js"},
		{name: "no header", path: "/build/app.js", accept: "", coding: "identity", body: "plain-js"},
		{name: "wildcard", path: "/build/app.js", accept: "*", coding: "identity", body: "plain-js"},
		{name: "identity", path: "/build/app.js", accept: "identity", coding: "identity", body: "plain-js"},
		{name: "missing variant falls through", path: "/site.css", accept: "br, gzip;q=0.8", coding: "gzip", body: "gz-css"},
		{name: "no variants at all", path: "/logo.png", accept: "br, gzip", coding: "identity", body: "png"},
		{name: "everything rejected", path: "/build/app.js", accept: "br;q=0, gzip;q=0", coding: "identity", body: "plain-js"},
		{name: "deflate gets base file", path: "/build/app.js", accept: "deflate", coding: "identity", body: "plain-js"},
		{name: "legacy deflate table", path: "/build/app.js", accept: "deflate", suffixes: LegacySuffixes, coding: "deflate", body: "gz-js"},
		{name: "zstd without sibling", path: "/build/app.js", accept: "zstd, gzip;q=0.1", coding: "gzip", body: "gz-js"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestResponder(t, ResponderOptions{Suffixes: tc.suffixes, Memo: negotiate.NewMemo(8)})
			rec := httpxtest.NewRecorder()
			res, err := r.Respond(context.Background(), rec, http.MethodGet, tc.path, tc.accept)
			if err != nil {
				t.Fatalf("Respond: %v", err)
			}
			if !res.Served {
				t.Fatalf("expected static hit")
			}
			if rec.Status != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Status)
			}
			if got := rec.Header.Get("Content-Encoding"); got != tc.coding {
				t.Fatalf("content-encoding: want %q got %q", tc.coding, got)
			}
			if res.Coding != tc.coding {
				t.Fatalf("result coding: want %q got %q", tc.coding, res.Coding)
			}
			if got := rec.Body.String(); got != tc.body {
				t.Fatalf("body: want %q got %q", tc.body, got)
			}
			if got := rec.Header.Get("Content-Length"); got != strconv.Itoa(len(tc.body)) {
				t.Fatalf("content-length: want %d got %s", len(tc.body), got)
			}
			if rec.Header.Get("Vary") != "Accept-Encoding" {
				t.Fatalf("expected vary header, got %v", rec.Header)
			}
			if rec.Header.Get("Last-Modified") == "" {
				t.Fatalf("expected last-modified header")
			}
		})
	}
}

func TestRespondHeaders(t *testing.T) {
	r := newTestResponder(t, ResponderOptions{})

	cases := []struct {
		path  string
		cache string
		ctype string
	}{
		{"/build/app.js", CacheImmutable, "text/javascript; charset=utf-8"},
		{"/site.css", CacheShort, "text/css; charset=utf-8"},
		{"/logo.png", CacheShort, "image/png"},
		{"/README", CacheShort, "application/octet-stream"},
	}
	for _, tc := range cases {
		rec := httpxtest.NewRecorder()
		// variant content type follows the base path
		if _, err := r.Respond(context.Background(), rec, http.MethodGet, tc.path, "br, gzip"); err != nil {
			t.Fatalf("Respond %s: %v", tc.path, err)
		}
		if got := rec.Header.Get("Cache-Control"); got != tc.cache {
			t.Fatalf("%s cache-control: want %q got %q", tc.path, tc.cache, got)
		}
		if got := rec.Header.Get("Content-Type"); got != tc.ctype {
			t.Fatalf("%s content-type: want %q got %q", tc.path, tc.ctype, got)
		}
	}
}

func TestRespondCustomPublicPath(t *testing.T) {
	r := newTestResponder(t, ResponderOptions{PublicPath: "/site"})
	if got := r.CacheControl("/site.css"); got != CacheImmutable {
		t.Fatalf("expected immutable cache for custom public path, got %q", got)
	}
	if got := r.CacheControl("/build/app.js"); got != CacheShort {
		t.Fatalf("expected short cache outside public path, got %q", got)
	}
}

func TestRespondHead(t *testing.T) {
	r := newTestResponder(t, ResponderOptions{})
	rec := httpxtest.NewRecorder()
	res, err := r.Respond(context.Background(), rec, http.MethodHead, "/build/app.js", "gzip")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !res.Served || !rec.Ended {
		t.Fatalf("expected served HEAD with ended stream, got %+v ended=%v", res, rec.Ended)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("HEAD must not send a body")
	}
	if rec.Header.Get("Content-Length") != strconv.Itoa(len("gz-js")) {
		t.Fatalf("HEAD content-length mismatch: %v", rec.Header)
	}
}

func TestRespondFallsThrough(t *testing.T) {
	r := newTestResponder(t, ResponderOptions{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/time"},
		{http.MethodPost, "/build/app.js"},
		{http.MethodGet, "/build"},
	} {
		rec := httpxtest.NewRecorder()
		res, err := r.Respond(context.Background(), rec, tc.method, tc.path, "gzip")
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		if res.Served || rec.Wrote {
			t.Fatalf("%s %s: expected fall-through", tc.method, tc.path)
		}
	}
}

func TestRespondIndexDiverged(t *testing.T) {
	r := newTestResponder(t, ResponderOptions{})
	abs, _ := r.idx.Lookup("/site.css")
	if err := os.Remove(abs); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rec := httpxtest.NewRecorder()
	_, err := r.Respond(context.Background(), rec, http.MethodGet, "/site.css", "")
	if !errors.Is(err, ErrIndexDiverged) {
		t.Fatalf("expected ErrIndexDiverged, got %v", err)
	}
	if rec.Wrote {
		t.Fatalf("nothing should be written for a diverged entry")
	}
}

type trackedFile struct {
	*os.File
	closed *atomic.Bool
}

func (f trackedFile) Close() error {
	f.closed.Store(true)
	return f.File.Close()
}

func TestRespondClientDisconnect(t *testing.T) {
	root := t.TempDir()
	big := bytes.Repeat([]byte("0123456789abcdef"), 64*1024) // 1 MiB
	if err := os.WriteFile(filepath.Join(root, "big.bin"), big, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	idx, err := Build(context.Background(), root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r := NewResponder(idx, ResponderOptions{ChunkSize: 4096})

	var closed atomic.Bool
	orig := openFile
	openFile = func(name string) (fileHandle, error) {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		return trackedFile{File: f, closed: &closed}, nil
	}
	t.Cleanup(func() { openFile = orig })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := httpxtest.NewRecorder()
	writes := 0
	rec.OnWrite = func(int) error {
		writes++
		if writes == 3 {
			cancel()
		}
		return nil
	}

	res, err := r.Respond(ctx, rec, http.MethodGet, "/big.bin", "")
	if err != nil {
		t.Fatalf("disconnect must not surface an error, got %v", err)
	}
	if !res.Aborted {
		t.Fatalf("expected aborted result")
	}
	if res.Bytes >= int64(len(big)) {
		t.Fatalf("expected partial body, got %d bytes", res.Bytes)
	}
	if !closed.Load() {
		t.Fatalf("file handle leaked")
	}
}

func TestRespondWriteFailureIsFatal(t *testing.T) {
	r := newTestResponder(t, ResponderOptions{})
	rec := httpxtest.NewRecorder()
	boom := errors.New("boom")
	rec.OnWrite = func(int) error { return boom }
	_, err := r.Respond(context.Background(), rec, http.MethodGet, "/site.css", "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestContentTypeFallback(t *testing.T) {
	if got := ContentType("/x.unknownext"); got != "application/octet-stream" {
		t.Fatalf("unexpected %q", got)
	}
	if got := ContentType("/X.HTML"); got != "text/html; charset=utf-8" {
		t.Fatalf("unexpected %q", got)
	}
}
