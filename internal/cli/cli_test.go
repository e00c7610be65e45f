package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/unkn0wn-root/offsync"
	"github.com/unkn0wn-root/offsync/internal/config"
	"github.com/unkn0wn-root/offsync/internal/logging"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "offsync.yaml")
	body := "outbox:\n  path: " + filepath.Join(dir, "outbox.db") + "\nlog:\n  level: error\n" + extra
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEnqueueAndPending(t *testing.T) {
	cfg := writeConfig(t, "")

	id, err := run(t, "--config", cfg, "enqueue", "task", `{"title":"Buy milk"}`)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if strings.TrimSpace(id) == "" {
		t.Fatalf("enqueue printed no id")
	}
	if _, err := run(t, "--config", cfg, "enqueue", "habits", `{"name":"Read"}`); err != nil {
		t.Fatalf("enqueue habit: %v", err)
	}

	out, err := run(t, "--config", cfg, "pending")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if out != "tasks\t1\nhabits\t1\n" {
		t.Fatalf("pending output=%q", out)
	}

	out, err = run(t, "--config", cfg, "pending", "--list")
	if err != nil {
		t.Fatalf("pending --list: %v", err)
	}
	if !strings.Contains(out, strings.TrimSpace(id)) || !strings.Contains(out, `{"title":"Buy milk"}`) {
		t.Fatalf("list output=%q", out)
	}
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	cfg := writeConfig(t, "")
	if _, err := run(t, "--config", cfg, "enqueue", "note", `{}`); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	if _, err := run(t, "--config", cfg, "enqueue", "task", `[1,2]`); err == nil {
		t.Fatalf("expected payload error")
	}
	if _, err := run(t, "--config", cfg, "enqueue", "task"); err == nil {
		t.Fatalf("expected args error")
	}
}

func TestSyncDeliversQueue(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cfg := writeConfig(t, "origin: "+srv.URL+"\n")
	if _, err := run(t, "--config", cfg, "enqueue", "task", `{"title":"Buy milk"}`); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	out, err := run(t, "--config", cfg, "sync", "task")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if out != "tasks\tsynced=1\tfailed=0\n" {
		t.Fatalf("sync output=%q", out)
	}
	mu.Lock()
	got := strings.Join(paths, ",")
	mu.Unlock()
	if got != "POST /api/tasks" {
		t.Fatalf("server saw %q", got)
	}

	out, err = run(t, "--config", cfg, "pending")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if out != "tasks\t0\nhabits\t0\n" {
		t.Fatalf("queue not drained: %q", out)
	}
}

func TestSyncRequiresOrigin(t *testing.T) {
	cfg := writeConfig(t, "")
	if _, err := run(t, "--config", cfg, "sync"); err == nil {
		t.Fatalf("expected origin error")
	}
}

func TestServeValidatesConfig(t *testing.T) {
	cfg := writeConfig(t, "cache:\n  provider: memcached\norigin: https://app.example\n")
	if _, err := run(t, "--config", cfg, "serve"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNotifyURL(t *testing.T) {
	cases := map[string]string{
		":8787":          "ws://127.0.0.1:8787",
		"127.0.0.1:9000": "ws://127.0.0.1:9000",
		"worker:80":      "ws://worker:80",
	}
	for in, want := range cases {
		if got := notifyURL(in); got != want {
			t.Fatalf("notifyURL(%q)=%q want %q", in, got, want)
		}
	}
}

func TestHooksFollowConfig(t *testing.T) {
	out, err := logging.New(logging.Options{Backend: "slog", Writer: io.Discard})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	defer out.Close()

	cfg := &config.Config{}
	if h := hooks(cfg, out); h != nil {
		t.Fatalf("hooks enabled without log.hooks")
	}
	cfg.Log.Hooks = true
	cfg.Log.HookSample = 10
	h := hooks(cfg, out)
	if h == nil {
		t.Fatalf("log.hooks did not wire hooks")
	}
	h.DrainCompleted("task", 1, 0)
}

func TestSnapshotCodecLeavesHeadroom(t *testing.T) {
	cfg := &config.Config{Cache: config.CacheConfig{Codec: "json", MaxEntryBytes: 8}}
	codec, err := snapshotCodec(cfg)
	if err != nil {
		t.Fatalf("snapshotCodec: %v", err)
	}
	raw, err := codec.Encode(offsync.Snapshot{URL: "https://app.example/a.js", Status: 200, Body: []byte("12345678")})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := codec.Decode(raw); err != nil {
		t.Fatalf("a body at the cap must decode: %v", err)
	}
}
