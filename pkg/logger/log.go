package logger

import (
	"net/http"
	"strings"
)

const redacted = "<redacted>"

var sensitive = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},
	"set-cookie":          {},
	"x-api-key":           {},
}

// RedactHeaders returns a copy of h with sensitive values replaced.
func RedactHeaders(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	out := make(http.Header, len(h))
	for k, v := range h {
		if _, ok := sensitive[strings.ToLower(k)]; ok {
			out[k] = []string{redacted}
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

// SafeHeaders returns a compact string representation of headers suitable for
// logging with sensitive values redacted. Only the first value is kept.
func SafeHeaders(h http.Header) string {
	parts := make([]string, 0, len(h))
	for k, v := range RedactHeaders(h) {
		if len(v) == 0 {
			continue
		}
		parts = append(parts, k+"="+v[0])
	}
	return strings.Join(parts, "; ")
}
