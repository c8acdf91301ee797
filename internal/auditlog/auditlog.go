// Package auditlog records a durable, best-effort trail of chat turns and
// tool dispatches (SPEC_FULL §4.9) — separate from the Cache Engine's
// in-memory, explicitly non-persistent analytic snapshot. Storage is
// pluggable behind the Store interface with two backends drawn from the
// teacher's storage stack (internal/storage/factory's backend-registry
// pattern, repurposed from "the issue store" to "the audit store"):
// MySQL for production, Dolt (MySQL-wire-compatible) for a
// version-controlled trail in development/test.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"
)

// Kind discriminates the two event shapes the audit trail carries.
type Kind string

const (
	KindChatTurn     Kind = "chat_turn"
	KindToolDispatch Kind = "tool_dispatch"
)

// Entry is one audit record. Arguments/ToolName are populated for
// KindToolDispatch; Utterance/Response/Category for KindChatTurn.
type Entry struct {
	At           time.Time
	Kind         Kind
	Utterance    string
	Response     string
	Category     string
	ToolName     string
	Arguments    json.RawMessage
	Success      bool
	ErrorMessage string
	LatencyMS    int64
}

// Store appends audit entries. Append is called fire-and-forget by
// callers (`_ = store.Append(ctx, e)`, matching the teacher's
// `_ = audit.Append(e) // best effort` idiom) — a failing audit write must
// never fail the request that produced it.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}

// noopStore is used when AUDIT_DSN is empty: the audit log is disabled but
// every caller can still unconditionally call Append/Close.
type noopStore struct{}

func (noopStore) Append(context.Context, Entry) error { return nil }
func (noopStore) Close() error                        { return nil }

const createTableSQL = `CREATE TABLE IF NOT EXISTS audit_log (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	at DATETIME NOT NULL,
	kind VARCHAR(32) NOT NULL,
	utterance TEXT,
	response TEXT,
	category VARCHAR(64),
	tool_name VARCHAR(64),
	arguments JSON,
	success BOOLEAN NOT NULL,
	error_message TEXT,
	latency_ms BIGINT NOT NULL
)`

const insertSQL = `INSERT INTO audit_log
	(at, kind, utterance, response, category, tool_name, arguments, success, error_message, latency_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type sqlStore struct {
	db *sql.DB
}

// NewStore opens an audit Store against dsn. An empty dsn returns a
// no-op store (the audit log is an optional, disableable feature —
// SPEC_FULL §6's AUDIT_DSN is documented as "empty disables the audit log").
// The DSN's scheme selects the backend: "dolt://" opens
// github.com/dolthub/driver's "dolt" driver, anything else (including a
// bare MySQL DSN with no scheme) opens go-sql-driver/mysql.
func NewStore(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return noopStore{}, nil
	}

	driverName, source := driverFor(dsn)
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auditlog: ping %s: %w", driverName, err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auditlog: create table: %w", err)
	}
	return &sqlStore{db: db}, nil
}

// driverFor maps a DSN's scheme to a registered database/sql driver name
// and strips the scheme the driver itself doesn't expect.
func driverFor(dsn string) (driverName, source string) {
	if rest, ok := strings.CutPrefix(dsn, "dolt://"); ok {
		return "dolt", rest
	}
	if rest, ok := strings.CutPrefix(dsn, "mysql://"); ok {
		return "mysql", rest
	}
	return "mysql", dsn
}

func (s *sqlStore) Append(ctx context.Context, e Entry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	var args interface{}
	if len(e.Arguments) > 0 {
		args = string(e.Arguments)
	}
	_, err := s.db.ExecContext(ctx, insertSQL,
		at, string(e.Kind), nullIfEmpty(e.Utterance), nullIfEmpty(e.Response),
		nullIfEmpty(e.Category), nullIfEmpty(e.ToolName), args,
		e.Success, nullIfEmpty(e.ErrorMessage), e.LatencyMS)
	if err != nil {
		slog.Warn("auditlog: append failed", "kind", e.Kind, "tool", e.ToolName, "error", err)
	}
	return err
}

func (s *sqlStore) Close() error { return s.db.Close() }

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
