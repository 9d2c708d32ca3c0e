package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
)

var (
	// ErrHeadersWritten is returned when a header block is written twice.
	ErrHeadersWritten = errors.New("httpx: headers already written")
	// ErrStreamEnded is returned when writing after the stream was ended.
	ErrStreamEnded = errors.New("httpx: stream already ended")
)

// Request is the transport-agnostic request handed to application handlers.
// It is built fresh per exchange and must not be mutated after handoff.
// Ctx is done when the client disconnects.
type Request struct {
	Ctx        context.Context
	Method     string
	URL        *url.URL
	Header     http.Header
	// Body is nil for GET and HEAD.
	Body       io.ReadCloser
	RemoteAddr string
}

// Context returns the request context, never nil.
func (r *Request) Context() context.Context {
	if r.Ctx == nil {
		return context.Background()
	}
	return r.Ctx
}

// Response is produced by an application handler and read exactly once.
type Response struct {
	Status int
	Header http.Header
	// Body is nil when the response has no payload.
	Body io.ReadCloser
}

// Handler turns an abstract request into an abstract response. Ordinary
// application failures must be reported as a response with an error status;
// a returned error fails only the current exchange.
type Handler interface {
	Serve(req *Request) (*Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *Request) (*Response, error)

// Serve calls f(req).
func (f HandlerFunc) Serve(req *Request) (*Response, error) { return f(req) }

// HandlerFactory builds the application handler at startup.
type HandlerFactory func(ctx context.Context) (Handler, error)

// RequestSnapshot is the body-less request metadata recorded in events.
type RequestSnapshot struct {
	Method     string      `json:"method"`
	URL        string      `json:"url"`
	Header     http.Header `json:"header,omitempty"`
	RemoteAddr string      `json:"remote_addr,omitempty"`
}

// ResponseSnapshot is the status and header block that reached the client.
type ResponseSnapshot struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
}

// Stream is one exchange as delivered by a transport server: request
// metadata, a lazily readable body and a context that is cancelled when the
// client goes away.
type Stream struct {
	Ctx       context.Context
	Method    string
	Scheme    string
	Authority string
	// Path is the request target: path plus optional "?query".
	Path       string
	Header     http.Header
	Body       io.ReadCloser
	RemoteAddr string
	// Raw holds the underlying transport-specific request object
	// (e.g. *http.Request or *fasthttp.RequestCtx) for escape hatches.
	Raw interface{}
}

// Context returns the stream context, never nil.
func (s *Stream) Context() context.Context {
	if s.Ctx == nil {
		return context.Background()
	}
	return s.Ctx
}

// StreamWriter is the response sink of a Stream. WriteHeader must precede
// any Write; when endStream is true the exchange finishes with no body and
// further writes fail with ErrStreamEnded.
type StreamWriter interface {
	WriteHeader(status int, header http.Header, endStream bool) error
	Write(p []byte) (int, error)
	Flush() error
}

// StreamHandler serves one Stream. A returned error fails that exchange only.
type StreamHandler func(w StreamWriter, s *Stream) error

// IsPseudoHeader reports whether name is an HTTP/2 pseudo-header such as
// ":authority". Pseudo-headers belong to the transport and are never
// forwarded to application handlers.
func IsPseudoHeader(name string) bool {
	return len(name) > 0 && name[0] == ':'
}
