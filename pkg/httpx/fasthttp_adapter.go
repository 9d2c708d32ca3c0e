package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
)

// FastHTTPAdapter adapts a StreamHandler into a fasthttp.RequestHandler.
//
// fasthttp writes the response only after the request handler returns, so
// the StreamHandler runs on its own goroutine. The request handler returns
// as soon as the header block is committed and fasthttp then drains the body
// from a pipe, which keeps back-pressure end to end. When fasthttp stops
// reading early (client gone, write error) the pipe is closed and the stream
// context is cancelled.
func FastHTTPAdapter(h StreamHandler, onErr ErrorFunc) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		// create a cancellable context for this request
		cctx, cancel := context.WithCancel(context.Background())

		// build headers
		hdr := make(http.Header)
		ctx.Request.Header.VisitAll(func(k, v []byte) {
			key := http.CanonicalHeaderKey(string(k))
			hdr[key] = append(hdr[key], string(v))
		})

		// the request buffers are recycled once this handler returns
		bodyBytes := append([]byte(nil), ctx.PostBody()...)

		s := &Stream{
			Ctx:        cctx,
			Method:     string(ctx.Method()),
			Scheme:     string(ctx.URI().Scheme()),
			Authority:  string(ctx.Host()),
			Path:       string(ctx.RequestURI()),
			Header:     hdr,
			Body:       io.NopCloser(bytes.NewReader(bodyBytes)),
			RemoteAddr: ctx.RemoteAddr().String(),
			Raw:        ctx,
		}

		pr, pw := io.Pipe()
		rw := &fastHTTPStreamWriter{
			ctx:    ctx,
			ready:  make(chan struct{}),
			pr:     pr,
			pw:     pw,
			cancel: cancel,
		}

		done := make(chan error, 1)
		go func() {
			var err error
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("stream handler panic: %v", p)
				}
				if err != nil {
					_ = pw.CloseWithError(err)
				} else {
					_ = pw.Close()
				}
				done <- err
			}()
			err = h(rw, s)
		}()

		select {
		case <-rw.ready:
			// header block committed; the body (if any) streams after return
			go func() {
				if err := <-done; err != nil && onErr != nil {
					onErr(s, err)
				}
				cancel()
			}()
		case err := <-done:
			defer cancel()
			if err != nil {
				if onErr != nil {
					onErr(s, err)
				}
				if !rw.wrote {
					ctx.ResetBody()
					ctx.Error(http.StatusText(http.StatusInternalServerError), fasthttp.StatusInternalServerError)
				}
			}
		}
	}
}

type fastHTTPStreamWriter struct {
	ctx    *fasthttp.RequestCtx
	ready  chan struct{}
	pr     *io.PipeReader
	pw     *io.PipeWriter
	cancel context.CancelFunc
	wrote  bool
	ended  bool
}

func (f *fastHTTPStreamWriter) WriteHeader(status int, header http.Header, endStream bool) error {
	if f.wrote {
		return ErrHeadersWritten
	}
	f.wrote = true
	f.ended = endStream

	// copy headers into fasthttp response header
	resp := &f.ctx.Response
	resp.Header.SetNoDefaultContentType(true)
	size := -1
	for k, vals := range header {
		if IsPseudoHeader(k) {
			continue
		}
		switch strings.ToLower(k) {
		case "content-length":
			if len(vals) > 0 {
				if n, err := strconv.Atoi(vals[0]); err == nil && n >= 0 {
					size = n
				}
			}
			continue
		case "transfer-encoding", "connection":
			continue
		}
		for _, v := range vals {
			resp.Header.Add(k, v)
		}
	}
	resp.SetStatusCode(status)
	if !endStream {
		resp.ImmediateHeaderFlush = true
		resp.SetBodyStream(&pipeBody{pr: f.pr, cancel: f.cancel}, size)
	}
	close(f.ready)
	return nil
}

func (f *fastHTTPStreamWriter) Write(b []byte) (int, error) {
	if f.ended {
		return 0, ErrStreamEnded
	}
	if !f.wrote {
		if err := f.WriteHeader(http.StatusOK, nil, false); err != nil {
			return 0, err
		}
	}
	return f.pw.Write(b)
}

// Flush is a no-op: every Write blocks until fasthttp has taken the bytes.
func (f *fastHTTPStreamWriter) Flush() error { return nil }

// pipeBody is the body stream handed to fasthttp. fasthttp closes it when
// the response is finished or abandoned.
type pipeBody struct {
	pr     *io.PipeReader
	cancel context.CancelFunc
}

func (p *pipeBody) Read(b []byte) (int, error) { return p.pr.Read(b) }

func (p *pipeBody) Close() error {
	p.cancel()
	return p.pr.CloseWithError(context.Canceled)
}
