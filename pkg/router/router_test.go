package router

import (
	"net/http"
	"net/url"
	"testing"

	"assetbridge/pkg/httpx"
)

func req(method, target string) *httpx.Request {
	u, _ := url.Parse(target)
	return &httpx.Request{Method: method, URL: u, Header: http.Header{}}
}

func status(code int) httpx.HandlerFunc {
	return func(*httpx.Request) (*httpx.Response, error) {
		return &httpx.Response{Status: code}, nil
	}
}

func TestRouterDispatch(t *testing.T) {
	r := New()
	r.GET("/", status(200))
	r.GET("/api/time", status(201))
	r.POST("/api/echo", status(202))
	var gotID string
	r.GET("/items/{id}", func(req *httpx.Request) (*httpx.Response, error) {
		gotID = Param(req, "id")
		return &httpx.Response{Status: 203}, nil
	})

	cases := []struct {
		method, target string
		want           int
	}{
		{"GET", "/", 200},
		{"GET", "/api/time?tz=utc", 201},
		{"POST", "/api/echo", 202},
		{"GET", "/items/42", 203},
		{"GET", "/items/42/extra", 404},
		{"GET", "/nope", 404},
		{"DELETE", "/api/echo", 405},
	}
	for _, tc := range cases {
		resp, err := r.Serve(req(tc.method, tc.target))
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.target, err)
		}
		if resp.Status != tc.want {
			t.Fatalf("%s %s: want %d got %d", tc.method, tc.target, tc.want, resp.Status)
		}
	}
	if gotID != "42" {
		t.Fatalf("expected id param 42, got %q", gotID)
	}
}

func TestRouterMethodNotAllowedHeader(t *testing.T) {
	r := New()
	r.GET("/x", status(200))
	r.PUT("/x", status(200))
	resp, _ := r.Serve(req("DELETE", "/x"))
	if resp.Status != http.StatusMethodNotAllowed || resp.Header.Get("Allow") != "GET, PUT" {
		t.Fatalf("unexpected response: %d %v", resp.Status, resp.Header)
	}
}

func TestRouterCustomNotFound(t *testing.T) {
	r := New()
	r.NotFound(status(418))
	resp, _ := r.Serve(req("GET", "/missing"))
	if resp.Status != 418 {
		t.Fatalf("expected custom not found handler, got %d", resp.Status)
	}
	if Param(req("GET", "/"), "id") != "" {
		t.Fatalf("expected empty param without match")
	}
}
