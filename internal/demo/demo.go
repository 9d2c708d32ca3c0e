// Package demo is the application handler bundled with the assetbridge
// binary. It exists to exercise the bridge end to end: an HTML shell that
// references fingerprinted build output, a couple of JSON endpoints and two
// streaming routes.
package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"assetbridge/pkg/httpx"
	"assetbridge/pkg/logger"
	"assetbridge/pkg/router"
)

const (
	defaultTicks    = 5
	maxTicks        = 1000
	defaultInterval = time.Second
)

// Options tunes the demo routes.
type Options struct {
	// PublicPath is where the HTML shell expects build output. Default "/build/".
	PublicPath string
	// TickInterval spaces /api/stream chunks. Default one second.
	TickInterval time.Duration
	// Now is replaced in tests.
	Now func() time.Time
}

type app struct {
	opts Options
	page []byte
}

var shell = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>assetbridge</title>
<link rel="stylesheet" href="{{.}}app.css">
</head>
<body>
<div id="root"></div>
<script src="{{.}}app.js"></script>
</body>
</html>
`))

// New returns the demo handler.
func New(opts Options) (httpx.Handler, error) {
	if opts.PublicPath == "" {
		opts.PublicPath = "/build/"
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var sb strings.Builder
	if err := shell.Execute(&sb, opts.PublicPath); err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	a := &app{opts: opts, page: []byte(sb.String())}

	r := router.New()
	r.GET("/", a.index)
	r.GET("/api/time", a.time)
	r.GET("/api/hello/{name}", a.hello)
	r.POST("/api/echo", a.echo)
	r.GET("/api/stream", a.stream)
	r.NotFound(a.notFound)
	return r, nil
}

// Factory adapts New to httpx.HandlerFactory.
func Factory(opts Options) httpx.HandlerFactory {
	return func(ctx context.Context) (httpx.Handler, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return New(opts)
	}
}

func (a *app) index(req *httpx.Request) (*httpx.Response, error) {
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	return &httpx.Response{Status: http.StatusOK, Header: h, Body: bodyOf(a.page)}, nil
}

func (a *app) time(req *httpx.Request) (*httpx.Response, error) {
	return jsonResponse(http.StatusOK, map[string]string{"time": a.opts.Now().UTC().Format(time.RFC3339)})
}

func (a *app) hello(req *httpx.Request) (*httpx.Response, error) {
	return jsonResponse(http.StatusOK, map[string]string{"hello": router.Param(req, "name")})
}

// echo streams the request body straight back.
func (a *app) echo(req *httpx.Request) (*httpx.Response, error) {
	h := http.Header{}
	ct := req.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	if req.Body == nil {
		return &httpx.Response{Status: http.StatusOK, Header: h}, nil
	}
	return &httpx.Response{Status: http.StatusOK, Header: h, Body: req.Body}, nil
}

// stream writes ?n= ticks spaced by TickInterval and stops early when the
// client goes away.
func (a *app) stream(req *httpx.Request) (*httpx.Response, error) {
	n := defaultTicks
	if raw := req.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxTicks {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": "n must be between 1 and " + strconv.Itoa(maxTicks)})
		}
		n = v
	}
	ctx := req.Context()
	pr, pw := io.Pipe()
	go func() {
		t := time.NewTicker(a.opts.TickInterval)
		defer t.Stop()
		for i := 1; i <= n; i++ {
			if _, err := fmt.Fprintf(pw, "tick %d %s\n", i, a.opts.Now().UTC().Format(time.RFC3339Nano)); err != nil {
				return
			}
			if i == n {
				break
			}
			select {
			case <-ctx.Done():
				logger.Debug("demo_stream_cancelled", "tick", i)
				pw.CloseWithError(ctx.Err())
				return
			case <-t.C:
			}
		}
		pw.Close()
	}()
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return &httpx.Response{Status: http.StatusOK, Header: h, Body: pr}, nil
}

func (a *app) notFound(req *httpx.Request) (*httpx.Response, error) {
	return jsonResponse(http.StatusNotFound, map[string]string{"error": "not found", "path": req.URL.Path})
}

func jsonResponse(status int, v any) (*httpx.Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &httpx.Response{Status: status, Header: h, Body: bodyOf(b)}, nil
}

func bodyOf(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}
