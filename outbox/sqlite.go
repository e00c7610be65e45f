package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/unkn0wn-root/offsync"
)

// Tables names the table backing each kind.
type Tables struct {
	Tasks  string
	Habits string
}

func DefaultTables() Tables {
	return Tables{Tasks: "pending_tasks", Habits: "pending_habits"}
}

type Options struct {
	Tables Tables // zero fields => DefaultTables
	Logger offsync.Logger
	Now    func() time.Time
}

// SQLite is the Store used by both the worker and the page. Open it once per
// process; every process opening the same path sees the same queues.
type SQLite struct {
	db     *sql.DB
	path   string
	tables map[Kind]string
	log    offsync.Logger
	now    func() time.Time

	initOnce sync.Once
	initErr  error
}

var _ Store = (*SQLite)(nil)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open opens (creating if needed) the outbox database at path and initializes
// the queues. The connection runs in WAL mode with a busy timeout so a page
// process can enqueue while the worker drains.
func Open(ctx context.Context, path string, opts Options) (*SQLite, error) {
	def := DefaultTables()
	if opts.Tables.Tasks == "" {
		opts.Tables.Tasks = def.Tasks
	}
	if opts.Tables.Habits == "" {
		opts.Tables.Habits = def.Habits
	}
	for _, name := range []string{opts.Tables.Tasks, opts.Tables.Habits} {
		if !identRe.MatchString(name) {
			return nil, fmt.Errorf("outbox: invalid table name %q", name)
		}
	}
	if opts.Tables.Tasks == opts.Tables.Habits {
		return nil, fmt.Errorf("outbox: task and habit tables must differ (%q)", opts.Tables.Tasks)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("outbox: create directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(full)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("outbox: open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("outbox: ping %s: %w", path, err)
	}

	s := &SQLite{
		db:   db,
		path: path,
		tables: map[Kind]string{
			KindTask:  opts.Tables.Tasks,
			KindHabit: opts.Tables.Habits,
		},
		log: opts.Logger,
		now: opts.Now,
	}
	if s.log == nil {
		s.log = offsync.NopLogger{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if err := s.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path is the database file.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		for _, kind := range Kinds {
			t := s.tables[kind]
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS ` + t + ` (
					id         TEXT PRIMARY KEY,
					payload    TEXT NOT NULL,
					status     TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_` + t + `_status ON ` + t + ` (status, created_at)`,
			}
			for _, stmt := range stmts {
				if _, err := s.db.ExecContext(ctx, stmt); err != nil {
					s.initErr = fmt.Errorf("outbox: initialize %s: %w", t, err)
					return
				}
			}
		}
		s.log.Debug("outbox initialized", offsync.Fields{"path": s.path})
	})
	return s.initErr
}

func (s *SQLite) table(kind Kind) (string, error) {
	t, ok := s.tables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return t, nil
}

func (s *SQLite) Enqueue(ctx context.Context, kind Kind, payload json.RawMessage) (Entry, error) {
	t, err := s.table(kind)
	if err != nil {
		return Entry{}, err
	}
	if !validPayload(payload) {
		return Entry{}, ErrInvalidPayload
	}
	now := s.now().UTC()
	e := Entry{
		ID:        newID(now),
		Kind:      kind,
		Payload:   append(json.RawMessage(nil), payload...),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+t+` (id, payload, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.Payload), string(e.Status), now.UnixNano(), now.UnixNano())
	if err != nil {
		s.log.Error("outbox enqueue failed", offsync.Fields{"kind": string(kind), "err": err})
		return Entry{}, fmt.Errorf("outbox: enqueue %s: %w", kind, err)
	}
	return e, nil
}

func (s *SQLite) ListPending(ctx context.Context, kind Kind) ([]Entry, error) {
	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, status, created_at, updated_at FROM `+t+
			` WHERE status = ? ORDER BY created_at, rowid`, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("outbox: list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                Entry
			payload, status  string
			created, updated int64
		)
		if err := rows.Scan(&e.ID, &payload, &status, &created, &updated); err != nil {
			return nil, fmt.Errorf("outbox: scan %s: %w", kind, err)
		}
		e.Kind = kind
		e.Payload = json.RawMessage(payload)
		e.Status = Status(status)
		e.CreatedAt = time.Unix(0, created).UTC()
		e.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: list %s: %w", kind, err)
	}
	return out, nil
}

func (s *SQLite) Remove(ctx context.Context, kind Kind, id string) error {
	t, err := s.table(kind)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+t+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("outbox: remove %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLite) UpdateStatus(ctx context.Context, kind Kind, id string, status Status) error {
	t, err := s.table(kind)
	if err != nil {
		return err
	}
	if status != StatusPending && status != StatusSynced {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE `+t+` SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("outbox: update %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context, kind Kind) (int, error) {
	t, err := s.table(kind)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t+` WHERE status = ?`, string(StatusPending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("outbox: count %s: %w", kind, err)
	}
	return n, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
