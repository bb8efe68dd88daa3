package scheduler

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS wake_requests (
	key           TEXT PRIMARY KEY,
	token         TEXT NOT NULL UNIQUE,
	trigger_at_ms INTEGER NOT NULL,
	cron_expr     TEXT NOT NULL DEFAULT '',
	payload       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS wake_requests_trigger ON wake_requests(trigger_at_ms);
`

// ErrStoreClosed is returned by a SQLiteStore after Close.
var ErrStoreClosed = errors.New("wake store is closed")

// SQLiteStore keeps wake requests in a sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open wake store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init wake store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(req WakeRequest) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`
INSERT INTO wake_requests (key, token, trigger_at_ms, cron_expr, payload)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	token = excluded.token,
	trigger_at_ms = excluded.trigger_at_ms,
	cron_expr = excluded.cron_expr,
	payload = excluded.payload`,
		req.Key, string(req.Token), req.TriggerAt.UnixMilli(), req.CronExpr, req.Payload)
	if err != nil {
		return fmt.Errorf("store wake request %s: %w", req.Key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(token Token) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`DELETE FROM wake_requests WHERE token = ?`, string(token))
	return err
}

func (s *SQLiteStore) DeleteKey(key string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`DELETE FROM wake_requests WHERE key = ?`, key)
	return err
}

func (s *SQLiteStore) Pending() ([]WakeRequest, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(`SELECT key, token, trigger_at_ms, cron_expr, payload FROM wake_requests ORDER BY trigger_at_ms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WakeRequest
	for rows.Next() {
		var (
			r       WakeRequest
			token   string
			trigger int64
		)
		if err := rows.Scan(&r.Key, &token, &trigger, &r.CronExpr, &r.Payload); err != nil {
			return nil, err
		}
		r.Token = Token(token)
		r.TriggerAt = time.UnixMilli(trigger)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
