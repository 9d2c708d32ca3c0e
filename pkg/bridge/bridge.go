// Package bridge connects transport streams to the static responder and the
// application handler. Static paths are answered from the asset index; every
// other request is turned into an httpx.Request, handed to the application
// and its response is streamed back through a negotiated encoder.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"assetbridge/pkg/assets"
	"assetbridge/pkg/compress"
	"assetbridge/pkg/httpx"
	"assetbridge/pkg/limiter"
	"assetbridge/pkg/logger"
	"assetbridge/pkg/negotiate"
	"assetbridge/pkg/telemetry"
)

// ErrNilResponse is returned when the application handler answers with
// neither a response nor an error.
var ErrNilResponse = errors.New("bridge: handler returned nil response")

// CachePolicy decides the Cache-Control of dynamic responses.
type CachePolicy string

const (
	// CachePassthrough keeps whatever the handler set.
	CachePassthrough CachePolicy = "passthrough"
	// CacheNoCache forces "no-cache".
	CacheNoCache CachePolicy = "no-cache"
)

const defaultChunkSize = 32 * 1024

// Options configures a Bridge. Handler is required.
type Options struct {
	// Static answers indexed paths first; nil sends everything to Handler.
	Static  *assets.Responder
	Handler httpx.Handler
	// Codec builds response encoders; nil uses default levels.
	Codec       *compress.Codec
	Memo        *negotiate.Memo
	Observer    telemetry.Observer
	CachePolicy CachePolicy
	// Limiter, when set, rejects dynamic requests over the per-client budget.
	Limiter   *limiter.Pool
	ChunkSize int
}

// Bridge serves streams. It is safe for concurrent use.
type Bridge struct {
	static   *assets.Responder
	handler  httpx.Handler
	codec    *compress.Codec
	memo     *negotiate.Memo
	observer telemetry.Observer
	policy   CachePolicy
	limiter  *limiter.Pool
	chunk    int
}

// New validates opts and returns a Bridge.
func New(opts Options) (*Bridge, error) {
	if opts.Handler == nil {
		return nil, errors.New("bridge: handler is required")
	}
	switch opts.CachePolicy {
	case "":
		opts.CachePolicy = CachePassthrough
	case CachePassthrough, CacheNoCache:
	default:
		return nil, fmt.Errorf("bridge: unknown cache policy %q", opts.CachePolicy)
	}
	if opts.Codec == nil {
		c, err := compress.NewCodec(compress.Levels{})
		if err != nil {
			return nil, err
		}
		opts.Codec = c
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	return &Bridge{
		static:   opts.Static,
		handler:  opts.Handler,
		codec:    opts.Codec,
		memo:     opts.Memo,
		observer: opts.Observer,
		policy:   opts.CachePolicy,
		limiter:  opts.Limiter,
		chunk:    opts.ChunkSize,
	}, nil
}

// ServeStream runs one exchange. It returns nil for completed and aborted
// exchanges and an error only when the exchange failed; the caller decides
// how to surface it on the transport.
func (b *Bridge) ServeStream(w httpx.StreamWriter, s *httpx.Stream) error {
	ctx := s.Context()
	ex := &exchange{
		id:    telemetry.NewID(),
		start: time.Now(),
		kind:  telemetry.KindDynamic,
		state: telemetry.StateReceived,
		w:     &trackedWriter{StreamWriter: w},
	}
	defer b.emit(ex)

	header := requestHeader(s.Header)
	u, err := requestURL(s)
	ex.req = httpx.RequestSnapshot{
		Method:     s.Method,
		URL:        s.Path,
		Header:     logger.RedactHeaders(header),
		RemoteAddr: s.RemoteAddr,
	}
	if err != nil {
		return ex.finish(ctx, ex.w.WriteHeader(http.StatusBadRequest, http.Header{"Content-Encoding": {negotiate.Identity}}, true))
	}
	ex.req.URL = u.String()
	accept := header.Get("Accept-Encoding")

	if b.static != nil {
		res, err := b.static.Respond(ctx, ex.w, s.Method, u.Path, accept)
		if res.Served {
			ex.kind = telemetry.KindStatic
			ex.encoding = res.Coding
			ex.to(telemetry.StateStreamingFile)
			if errors.Is(err, assets.ErrIndexDiverged) {
				logger.Error("static_index_diverged", "path", u.Path, "file", res.File, "error", err)
			}
			if res.Aborted {
				ex.to(telemetry.StateAborted)
			}
			return ex.finish(ctx, err)
		}
		if err != nil {
			return ex.finish(ctx, err)
		}
	}

	if b.limiter != nil && !b.limiter.Allow(clientKey(s.RemoteAddr)) {
		h := http.Header{}
		h.Set("Retry-After", "1")
		h.Set("Content-Encoding", negotiate.Identity)
		return ex.finish(ctx, ex.w.WriteHeader(http.StatusTooManyRequests, h, true))
	}

	req := &httpx.Request{
		Ctx:        ctx,
		Method:     s.Method,
		URL:        u,
		Header:     header,
		RemoteAddr: s.RemoteAddr,
	}
	// GET and HEAD bodies are never read or forwarded
	if s.Method != http.MethodGet && s.Method != http.MethodHead {
		req.Body = s.Body
	}

	ex.to(telemetry.StateAwaitingHandler)
	resp, err := b.invoke(req)
	if err != nil {
		return ex.finish(ctx, fmt.Errorf("application handler: %w", err))
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	coding := b.codec.Select(b.memo.Parse(accept))
	ex.encoding = coding
	out := b.responseHeader(resp.Header, coding)
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	if !hasBody(s.Method, status, resp.Body) {
		return ex.finish(ctx, ex.w.WriteHeader(status, out, true))
	}
	if err := ex.w.WriteHeader(status, out, false); err != nil {
		return ex.finish(ctx, err)
	}
	ex.to(telemetry.StateStreamingBody)
	return ex.finish(ctx, b.pipe(ctx, ex.w, coding, resp.Body))
}

// invoke calls the application handler, converting panics and nil
// responses into errors.
func (b *Bridge) invoke(req *httpx.Request) (resp *httpx.Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	resp, err = b.handler.Serve(req)
	if err == nil && resp == nil {
		err = ErrNilResponse
	}
	return resp, err
}

// pipe streams body through the encoder for coding, flushing after every
// chunk so bytes reach the client as soon as the handler yields them.
func (b *Bridge) pipe(ctx context.Context, w httpx.StreamWriter, coding string, body io.Reader) error {
	enc, err := b.codec.NewEncoder(coding, w)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			// release encoder state; the stream is already broken
			_ = enc.Close()
		}
	}()

	buf := make([]byte, b.chunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, err := enc.Write(buf[:n]); err != nil {
				return fmt.Errorf("encode body: %w", err)
			}
			if err := enc.Flush(); err != nil {
				return fmt.Errorf("flush encoder: %w", err)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("flush transport: %w", err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read response body: %w", rerr)
		}
	}
	closed = true
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}
	return w.Flush()
}

func (b *Bridge) responseHeader(h http.Header, coding string) http.Header {
	out := make(http.Header, len(h)+2)
	for k, v := range h {
		if httpx.IsPseudoHeader(k) {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	out.Set("Content-Encoding", coding)
	if coding != negotiate.Identity {
		out.Del("Content-Length")
	}
	addVary(out, "Accept-Encoding")
	if b.policy == CacheNoCache {
		out.Set("Cache-Control", "no-cache")
	}
	return out
}

func (b *Bridge) emit(ex *exchange) {
	if b.observer == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Error("observer_panic", "id", ex.id, "panic", p)
		}
	}()
	b.observer.Observe(ex.event())
}

// hasBody reports whether a response may carry a payload.
func hasBody(method string, status int, body io.ReadCloser) bool {
	if body == nil || method == http.MethodHead {
		return false
	}
	if status < 200 || status == http.StatusNoContent || status == http.StatusNotModified {
		return false
	}
	return true
}

func requestHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		if httpx.IsPseudoHeader(k) {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

func requestURL(s *httpx.Stream) (*url.URL, error) {
	target := s.Path
	if target == "" {
		target = "/"
	}
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, fmt.Errorf("parse request target: %w", err)
	}
	u.Scheme = s.Scheme
	u.Host = s.Authority
	return u, nil
}

func addVary(h http.Header, name string) {
	for _, v := range h.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "*" || strings.EqualFold(p, name) {
				return
			}
		}
	}
	h.Add("Vary", name)
}

func clientKey(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
