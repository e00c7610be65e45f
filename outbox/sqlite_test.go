package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTest(t *testing.T, path string) *SQLite {
	t.Helper()
	s, err := Open(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnqueueListRemove(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, filepath.Join(t.TempDir(), "outbox.db"))

	e, err := s.Enqueue(ctx, KindTask, json.RawMessage(`{"title":"Buy milk"}`))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if e.ID == "" || e.Status != StatusPending || e.CreatedAt.IsZero() {
		t.Fatalf("entry = %+v", e)
	}

	pending, err := s.ListPending(ctx, KindTask)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != e.ID || string(pending[0].Payload) != `{"title":"Buy milk"}` {
		t.Fatalf("pending = %+v", pending)
	}
	if habits, _ := s.ListPending(ctx, KindHabit); len(habits) != 0 {
		t.Fatalf("kinds must not share a queue: %+v", habits)
	}

	if err := s.Remove(ctx, KindTask, e.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, KindTask, e.ID); err != nil {
		t.Fatalf("removing a missing id must not fail: %v", err)
	}
	if n, _ := s.Count(ctx, KindTask); n != 0 {
		t.Fatalf("count = %d", n)
	}
}

func TestEnqueueRejectsNonObjects(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, filepath.Join(t.TempDir(), "outbox.db"))

	for _, p := range []string{``, `null`, `[1,2]`, `"x"`, `{broken`} {
		if _, err := s.Enqueue(ctx, KindHabit, json.RawMessage(p)); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("payload %q: err = %v", p, err)
		}
	}
	if _, err := s.Enqueue(ctx, Kind("note"), json.RawMessage(`{}`)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("unknown kind: err = %v", err)
	}
}

func TestDurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "outbox.db")

	s, err := Open(ctx, path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := make([]string, 0, 3)
	for _, title := range []string{"a", "b", "c"} {
		e, err := s.Enqueue(ctx, KindTask, json.RawMessage(`{"title":"`+title+`"}`))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		want = append(want, e.ID)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := openTest(t, path)
	got, err := s2.ListPending(ctx, KindTask)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries after reopen, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("order after reopen: got %s at %d, want %s", got[i].ID, i, want[i])
		}
	}
}

func TestInsertionOrderWithEqualTimestamps(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := Open(ctx, filepath.Join(t.TempDir(), "outbox.db"), Options{Now: func() time.Time { return fixed }})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var ids []string
	for i := 0; i < 5; i++ {
		e, err := s.Enqueue(ctx, KindHabit, json.RawMessage(`{"n":1}`))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, e.ID)
	}
	got, _ := s.ListPending(ctx, KindHabit)
	for i := range ids {
		if got[i].ID != ids[i] {
			t.Fatalf("position %d: %s != %s", i, got[i].ID, ids[i])
		}
	}
}

func TestUpdateStatusHidesFromPending(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, filepath.Join(t.TempDir(), "outbox.db"))

	e, _ := s.Enqueue(ctx, KindTask, json.RawMessage(`{"title":"x"}`))
	if err := s.UpdateStatus(ctx, KindTask, e.ID, StatusSynced); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if n, _ := s.Count(ctx, KindTask); n != 0 {
		t.Fatalf("synced entry still counted as pending")
	}
	if err := s.UpdateStatus(ctx, KindTask, e.ID, Status("done")); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v", err)
	}
}

func TestTwoHandlesShareOneFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outbox.db")
	page := openTest(t, path)
	worker := openTest(t, path)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := page.Enqueue(ctx, KindTask, json.RawMessage(`{"from":"page"}`))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := worker.Enqueue(ctx, KindTask, json.RawMessage(`{"from":"worker"}`))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if n, _ := worker.Count(ctx, KindTask); n != 20 {
		t.Fatalf("count = %d", n)
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, filepath.Join(t.TempDir(), "outbox.db"))
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Initialize(ctx); err != nil {
				t.Errorf("Initialize: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestCustomTables(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outbox.db")
	if _, err := Open(ctx, path, Options{Tables: Tables{Tasks: "x; DROP TABLE y"}}); err == nil {
		t.Fatalf("invalid table name accepted")
	}
	if _, err := Open(ctx, path, Options{Tables: Tables{Tasks: "q", Habits: "q"}}); err == nil {
		t.Fatalf("shared table accepted")
	}
	s, err := Open(ctx, path, Options{Tables: Tables{Tasks: "queue_tasks", Habits: "queue_habits"}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := s.Enqueue(ctx, KindTask, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"task": KindTask, "tasks": KindTask, "habits": KindHabit} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("notes"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v", err)
	}
}
