package httpx

import (
	"errors"
	"net/http"
)

// ErrorFunc receives exchange-level failures from an adapter.
type ErrorFunc func(s *Stream, err error)

// NetHTTPAdapter adapts a StreamHandler into a standard net/http handler.
// The request context is used as the stream context: net/http cancels it when
// the client connection closes or an HTTP/2 stream is reset.
func NetHTTPAdapter(h StreamHandler, onErr ErrorFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		s := &Stream{
			Ctx:        r.Context(),
			Method:     r.Method,
			Scheme:     scheme,
			Authority:  r.Host,
			Path:       r.URL.RequestURI(),
			Header:     r.Header,
			Body:       r.Body,
			RemoteAddr: r.RemoteAddr,
			Raw:        r,
		}

		rw := &netHTTPStreamWriter{w: w, rc: http.NewResponseController(w)}
		err := h(rw, s)
		if err != nil {
			if onErr != nil {
				onErr(s, err)
			}
			if !rw.wrote {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			} else {
				// headers are out; abort the response so the client does not
				// mistake a truncated body for a complete one
				panic(http.ErrAbortHandler)
			}
		}
		// ensure body is closed if handler did not close it
		if r.Body != nil {
			_ = r.Body.Close()
		}
	})
}

type netHTTPStreamWriter struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	wrote bool
	ended bool
}

func (n *netHTTPStreamWriter) WriteHeader(status int, header http.Header, endStream bool) error {
	if n.wrote {
		return ErrHeadersWritten
	}
	n.wrote = true
	n.ended = endStream
	dst := n.w.Header()
	for k, v := range header {
		if IsPseudoHeader(k) {
			continue
		}
		dst[k] = append([]string(nil), v...)
	}
	n.w.WriteHeader(status)
	if endStream {
		return nil
	}
	// push the header block out before the first body byte is ready
	if err := n.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (n *netHTTPStreamWriter) Write(b []byte) (int, error) {
	if n.ended {
		return 0, ErrStreamEnded
	}
	if !n.wrote {
		if err := n.WriteHeader(http.StatusOK, nil, false); err != nil {
			return 0, err
		}
	}
	return n.w.Write(b)
}

func (n *netHTTPStreamWriter) Flush() error {
	if n.ended {
		return nil
	}
	if err := n.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
