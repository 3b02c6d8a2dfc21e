package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect holds what differs between the supported SQL backends. Queries use
// $n placeholders, which both backends accept.
type dialect struct {
	name     string
	driver   string
	jsonType string
	timeType string
}

var (
	postgresDialect = dialect{name: "postgres", driver: "pgx", jsonType: "JSONB", timeType: "TIMESTAMPTZ"}
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite", jsonType: "TEXT", timeType: "DATETIME"}
)

// SQLStore implements Store on database/sql for Postgres (pgx) and SQLite
// (modernc).
type SQLStore struct {
	db *sql.DB
	d  dialect

	schemaOnce sync.Once
	schemaErr  error
}

// OpenPostgres connects through the pgx stdlib driver and verifies the
// connection.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open(postgresDialect.driver, strings.TrimSpace(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "open postgres")
	}
	return open(ctx, db, postgresDialect)
}

// OpenSQLite opens (or creates) a database file. Writes are serialized
// through a single connection.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalid)
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open(sqliteDialect.driver, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	return open(ctx, db, sqliteDialect)
}

func open(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "ping %s", d.name)
	}
	s := &SQLStore{db: db, d: d}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Dialect returns "postgres" or "sqlite".
func (s *SQLStore) Dialect() string { return s.d.name }

func (s *SQLStore) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		for _, stmt := range schemaStatements(s.d) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.schemaErr = eris.Wrapf(err, "apply %s schema", s.d.name)
				return
			}
		}
	})
	return s.schemaErr
}

func schemaStatements(d dialect) []string {
	j, ts := d.jsonType, d.timeType
	return []string{
		`CREATE TABLE IF NOT EXISTS raw_reports (
  id TEXT PRIMARY KEY,
  title TEXT,
  body TEXT NOT NULL,
  language TEXT NOT NULL DEFAULT 'de',
  source TEXT,
  created_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS incidents (
  id TEXT PRIMARY KEY,
  report_id TEXT NOT NULL REFERENCES raw_reports(id) ON DELETE CASCADE,
  incident_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'new',
  position INTEGER NOT NULL DEFAULT 0,
  created_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_report_id ON incidents (report_id)`,
		`CREATE TABLE IF NOT EXISTS structured_answers (
  id TEXT PRIMARY KEY,
  incident_id TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
  question_key TEXT NOT NULL,
  value_json ` + j + `,
  position INTEGER NOT NULL DEFAULT 0,
  created_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_structured_answers_incident_id ON structured_answers (incident_id)`,
		`CREATE TABLE IF NOT EXISTS final_reports (
  id TEXT PRIMARY KEY,
  incident_id TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
  body_md TEXT NOT NULL,
  model_name TEXT,
  created_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS llm_runs (
  id TEXT PRIMARY KEY,
  purpose TEXT NOT NULL,
  report_id TEXT REFERENCES raw_reports(id) ON DELETE SET NULL,
  incident_id TEXT REFERENCES incidents(id) ON DELETE SET NULL,
  model_name TEXT NOT NULL,
  request_json ` + j + ` NOT NULL,
  response_json ` + j + `,
  tokens_prompt INTEGER,
  tokens_completion INTEGER,
  latency_ms INTEGER,
  created_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_llm_runs_report_id ON llm_runs (report_id)`,
		`CREATE TABLE IF NOT EXISTS incident_types (
  code TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  prompt_ref TEXT,
  created_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS incident_questions (
  id TEXT PRIMARY KEY,
  incident_type TEXT NOT NULL,
  question_key TEXT NOT NULL,
  label TEXT NOT NULL,
  answer_type TEXT NOT NULL DEFAULT 'text',
  required BOOLEAN NOT NULL DEFAULT TRUE,
  order_index INTEGER NOT NULL DEFAULT 0,
  UNIQUE (incident_type, question_key)
)`,
		`CREATE TABLE IF NOT EXISTS prompts (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  purpose TEXT NOT NULL DEFAULT '',
  version_tag TEXT NOT NULL DEFAULT 'v1',
  content TEXT NOT NULL,
  created_at ` + ts + ` NOT NULL,
  UNIQUE (name, version_tag)
)`,
	}
}

// isUniqueViolation recognizes unique constraint errors of both drivers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func jsonParam(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

var _ Store = (*SQLStore)(nil)
