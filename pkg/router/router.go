// Package router is a small method + path router for httpx handlers. Paths
// may contain {name} segments whose values are read back with Param.
package router

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"assetbridge/pkg/httpx"
)

type paramsKey struct{}

// Router dispatches abstract requests by method and path.
type Router struct {
	routes   map[string][]route
	notFound httpx.Handler
}

type route struct {
	segments []segment
	handler  httpx.Handler
}

type segment struct {
	name    string
	isParam bool
}

// New constructs a new Router.
func New() *Router {
	return &Router{routes: make(map[string][]route)}
}

var _ httpx.Handler = (*Router)(nil)

// Serve dispatches req. A path registered only for other methods yields 405
// with an Allow header; an unknown path goes to the NotFound handler.
func (r *Router) Serve(req *httpx.Request) (*httpx.Response, error) {
	path := "/"
	if req.URL != nil && req.URL.Path != "" {
		path = req.URL.Path
	}
	if list, ok := r.routes[req.Method]; ok {
		for _, rt := range list {
			if values, ok := match(path, rt.segments); ok {
				if len(values) > 0 {
					req = withParams(req, values)
				}
				return rt.handler.Serve(req)
			}
		}
	}
	if allow := r.allowed(path); len(allow) > 0 {
		h := http.Header{}
		h.Set("Allow", strings.Join(allow, ", "))
		return &httpx.Response{Status: http.StatusMethodNotAllowed, Header: h}, nil
	}
	if r.notFound != nil {
		return r.notFound.Serve(req)
	}
	return &httpx.Response{Status: http.StatusNotFound, Header: http.Header{}}, nil
}

func (r *Router) allowed(path string) []string {
	var out []string
	for method, list := range r.routes {
		for _, rt := range list {
			if _, ok := match(path, rt.segments); ok {
				out = append(out, method)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// GET registers a GET handler.
func (r *Router) GET(path string, h httpx.HandlerFunc) {
	r.add(http.MethodGet, path, h)
}

// POST registers a POST handler.
func (r *Router) POST(path string, h httpx.HandlerFunc) {
	r.add(http.MethodPost, path, h)
}

// PUT registers a PUT handler.
func (r *Router) PUT(path string, h httpx.HandlerFunc) {
	r.add(http.MethodPut, path, h)
}

// DELETE registers a DELETE handler.
func (r *Router) DELETE(path string, h httpx.HandlerFunc) {
	r.add(http.MethodDelete, path, h)
}

// NotFound registers a handler for unmatched routes.
func (r *Router) NotFound(h httpx.HandlerFunc) {
	r.notFound = h
}

func (r *Router) add(method, path string, h httpx.Handler) {
	segments := parse(path)
	r.routes[method] = append(r.routes[method], route{segments: segments, handler: h})
}

// Param returns the value of a {name} segment matched for req.
func Param(req *httpx.Request, name string) string {
	m, _ := req.Context().Value(paramsKey{}).(map[string]string)
	return m[name]
}

func withParams(req *httpx.Request, values map[string]string) *httpx.Request {
	cp := *req
	cp.Ctx = context.WithValue(req.Context(), paramsKey{}, values)
	return &cp
}

func parse(path string) []segment {
	if path == "" {
		return nil
	}
	if path[0] == '/' {
		path = path[1:]
	}
	if path == "" {
		return []segment{{name: "", isParam: false}}
	}
	parts := strings.Split(path, "/")
	segs := make([]segment, len(parts))
	for i, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) > 2 {
			segs[i] = segment{name: part[1 : len(part)-1], isParam: true}
		} else {
			segs[i] = segment{name: part, isParam: false}
		}
	}
	return segs
}

func match(path string, segs []segment) (map[string]string, bool) {
	if len(segs) == 1 && !segs[0].isParam && segs[0].name == "" {
		if path == "/" || path == "" {
			return nil, true
		}
		return nil, false
	}
	path = strings.TrimPrefix(path, "/")
	var parts []string
	if path != "" {
		parts = strings.Split(path, "/")
	}
	if len(parts) != len(segs) {
		return nil, false
	}
	var values map[string]string
	for i, seg := range segs {
		if seg.isParam {
			if values == nil {
				values = make(map[string]string)
			}
			values[seg.name] = parts[i]
			continue
		}
		if seg.name != parts[i] {
			return nil, false
		}
	}
	return values, true
}
