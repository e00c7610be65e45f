package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unkn0wn-root/offsync"
)

func TestBackendsWriteJSON(t *testing.T) {
	for _, backend := range []string{"zap", "logrus", "slog"} {
		t.Run(backend, func(t *testing.T) {
			var buf bytes.Buffer
			out, err := New(Options{Backend: backend, Level: "info", Writer: &buf})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			out.Logger.Debug("hidden", nil)
			out.Logger.Info("drained", offsync.Fields{"category": "tasks", "synced": 2})
			if err := out.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(lines) != 1 {
				t.Fatalf("want 1 line, got %d: %q", len(lines), buf.String())
			}
			var rec map[string]any
			if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
				t.Fatalf("not json: %v: %s", err, lines[0])
			}
			if rec["msg"] != "drained" || rec["category"] != "tasks" {
				t.Fatalf("unexpected record: %v", rec)
			}
		})
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	out, err := New(Options{Backend: "zap", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out.Logger.Warn("offline", offsync.Fields{"err": errors.New("dial")})
	_ = out.Close()
	if !strings.Contains(buf.String(), "offline") || json.Valid(buf.Bytes()) {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "offsyncd.log")
	out, err := New(Options{Backend: "logrus", File: path, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out.Logger.Error("remove failed", offsync.Fields{"id": "1-abc"})
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "remove failed") {
		t.Fatalf("log file missing record: %q", b)
	}
}

func TestInvalidOptions(t *testing.T) {
	if _, err := New(Options{Backend: "log15"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	for _, backend := range []string{"zap", "logrus", "slog"} {
		if _, err := New(Options{Backend: backend, Level: "loud", Writer: &bytes.Buffer{}}); err == nil {
			t.Fatalf("%s: expected error for bad level", backend)
		}
	}
}

func TestHooksShareOutput(t *testing.T) {
	var buf bytes.Buffer
	out, err := New(Options{Backend: "logrus", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hooks := out.Hooks(1, 16)
	hooks.WarmFailed("https://app.example/app.js", errors.New("404"))
	hooks.DrainCompleted("task", 0, 3)
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	logged := buf.String()
	for _, want := range []string{"offsync.warm_failed", "offsync.drain_completed"} {
		if !strings.Contains(logged, want) {
			t.Fatalf("missing %s in %q", want, logged)
		}
	}
	if hooks.Dropped() != 0 {
		t.Fatalf("dropped = %d", hooks.Dropped())
	}
}
