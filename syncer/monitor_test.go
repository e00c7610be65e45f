package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitorReportsTransitions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	var ups, downs atomic.Int32
	m, err := NewMonitor(MonitorOptions{
		CheckURL:  srv.URL + "/health",
		Interval:  time.Second,
		OnOnline:  func() { ups.Add(1) },
		OnOffline: func() { downs.Add(1) },
	})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	ctx := context.Background()

	if m.IsOnline() {
		t.Fatalf("online before first check")
	}
	if !m.Check(ctx) || !m.Check(ctx) {
		t.Fatalf("check against a live server failed")
	}
	if ups.Load() != 1 {
		t.Fatalf("OnOnline fired %d times", ups.Load())
	}

	srv.Close()
	if m.Check(ctx) {
		t.Fatalf("check against a closed server succeeded")
	}
	if downs.Load() != 1 || m.IsOnline() {
		t.Fatalf("downs=%d online=%v", downs.Load(), m.IsOnline())
	}
}

func TestMonitorDrivesCoordinator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	c := newTestCoordinator(t, openOutbox(t), newAPIServer(t), nil)
	c.Offline()

	m, err := NewMonitor(MonitorOptions{CheckURL: srv.URL, OnOnline: c.Online, OnOffline: c.Offline})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	m.Check(context.Background())
	if !c.IsOnline() {
		t.Fatalf("coordinator not told about connectivity")
	}
	if got := c.takePending(); len(got) != 2 {
		t.Fatalf("online transition must schedule a drain, got %v", got)
	}
}

func TestMonitorRequiresURL(t *testing.T) {
	if _, err := NewMonitor(MonitorOptions{}); err == nil {
		t.Fatalf("expected error")
	}
}
