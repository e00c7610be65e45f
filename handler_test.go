package offsync

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProxyServesThroughInterceptor(t *testing.T) {
	net := newFakeNet(map[string]route{
		"/app.js":    {status: 200, body: "js"},
		"/api/tasks": {status: 201, body: "created"},
	})
	ic, _ := newTestInterceptor(t, net, nil)
	h, err := NewProxy(ic, testOrigin, nil)
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://localhost:8080/app.js", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "js" {
		t.Fatalf("GET: %d %q", rec.Code, rec.Body.String())
	}

	net.setOffline(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://localhost:8080/app.js", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "js" {
		t.Fatalf("offline GET: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://localhost:8080/api/tasks", strings.NewReader(`{"title":"x"}`)))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("offline POST status = %d", rec.Code)
	}
}

func TestNewProxyValidates(t *testing.T) {
	if _, err := NewProxy(nil, testOrigin, nil); err == nil {
		t.Fatalf("nil transport must fail")
	}
	if _, err := NewProxy(http.DefaultTransport, "not a url", nil); err == nil {
		t.Fatalf("bad origin must fail")
	}
}
