// Package archive persists completed HTTP exchanges in a SQLite database,
// so probe runs can be inspected and replayed later.
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/tickfetch/tickfetch/packages/wire"
)

// Exchange is one stored request/response pair. Failed requests are stored
// too, with Status 0 and the error message in Error.
type Exchange struct {
	ID           int64
	Timestamp    time.Time
	Method       string
	URL          string
	Status       int
	Headers      []wire.Header
	RequestBody  []byte
	ResponseBody []byte
	Elapsed      time.Duration
	Attempts     int
	Error        string
}

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	ts            TEXT    NOT NULL,
	method        TEXT    NOT NULL,
	url           TEXT    NOT NULL,
	status        INTEGER NOT NULL,
	headers       TEXT    NOT NULL DEFAULT '[]',
	request_body  BLOB,
	response_body BLOB,
	elapsed_us    INTEGER NOT NULL,
	attempts      INTEGER NOT NULL,
	error         TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_exchanges_ts ON exchanges(ts);
`

// Store is a SQLite-backed exchange archive. Safe for concurrent use; the
// database handle serializes access.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the archive database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores one exchange and fills in its assigned ID. A zero
// Timestamp is replaced with the current time.
func (s *Store) Insert(ex *Exchange) error {
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now()
	}
	headers, err := json.Marshal(ex.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}

	res, err := s.db.Exec(`INSERT INTO exchanges
		(ts, method, url, status, headers, request_body, response_body, elapsed_us, attempts, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.Timestamp.UTC().Format(time.RFC3339Nano),
		ex.Method, ex.URL, ex.Status, string(headers),
		ex.RequestBody, ex.ResponseBody,
		ex.Elapsed.Microseconds(), ex.Attempts, ex.Error)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	ex.ID, err = res.LastInsertId()
	return err
}

// List returns the most recent exchanges, newest first, up to limit.
// A non-positive limit returns everything.
func (s *Store) List(limit int) ([]*Exchange, error) {
	query := `SELECT id, ts, method, url, status, headers, request_body, response_body, elapsed_us, attempts, error
		FROM exchanges ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	defer rows.Close()

	var out []*Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Get returns one exchange by ID, or sql.ErrNoRows.
func (s *Store) Get(id int64) (*Exchange, error) {
	row := s.db.QueryRow(`SELECT id, ts, method, url, status, headers, request_body, response_body, elapsed_us, attempts, error
		FROM exchanges WHERE id = ?`, id)
	return scanExchange(row)
}

// Count returns the number of stored exchanges.
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exchanges`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExchange(row scanner) (*Exchange, error) {
	var (
		ex        Exchange
		ts        string
		headers   string
		elapsedUs int64
	)
	if err := row.Scan(&ex.ID, &ts, &ex.Method, &ex.URL, &ex.Status, &headers,
		&ex.RequestBody, &ex.ResponseBody, &elapsedUs, &ex.Attempts, &ex.Error); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse exchange timestamp %q: %w", ts, err)
	}
	ex.Timestamp = parsed
	ex.Elapsed = time.Duration(elapsedUs) * time.Microsecond
	if headers != "" {
		if err := json.Unmarshal([]byte(headers), &ex.Headers); err != nil {
			return nil, fmt.Errorf("decode exchange headers: %w", err)
		}
	}
	return &ex, nil
}
