package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer keeps read-modify-write updates serialized.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichment_sessions (
	id             TEXT PRIMARY KEY,
	total_rows     INTEGER NOT NULL,
	processed_rows INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'pending',
	started_at     TEXT NOT NULL,
	CHECK (processed_rows <= total_rows)
);

CREATE TABLE IF NOT EXISTS enrichment_results (
	session_id TEXT NOT NULL REFERENCES enrichment_sessions(id) ON DELETE CASCADE,
	row_index  INTEGER NOT NULL,
	data       TEXT NOT NULL,
	PRIMARY KEY (session_id, row_index)
);

CREATE TABLE IF NOT EXISTS enrichment_metrics (
	session_id TEXT PRIMARY KEY REFERENCES enrichment_sessions(id) ON DELETE CASCADE,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, totalRows int) (*model.Session, error) {
	if totalRows < 0 {
		return nil, eris.Errorf("sqlite: negative total rows %d", totalRows)
	}
	sess := &model.Session{
		ID:        uuid.New().String(),
		TotalRows: totalRows,
		Status:    model.SessionPending,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_sessions (id, total_rows, processed_rows, status, started_at) VALUES (?, ?, 0, ?, ?)`,
		sess.ID, sess.TotalRows, string(sess.Status), sess.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}
	return sess, nil
}

func (s *SQLiteStore) IncrementProcessed(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`UPDATE enrichment_sessions SET processed_rows = processed_rows + 1 WHERE id = ? AND processed_rows < total_rows RETURNING processed_rows`,
		sessionID,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := s.GetSessionMetadata(ctx, sessionID); gerr != nil {
			return 0, gerr
		}
		return 0, eris.Wrapf(ErrRowsExhausted, "sqlite: session %s", sessionID)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: increment processed %s", sessionID)
	}
	return n, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM enrichment_sessions WHERE id = ?`, sessionID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: session %s", sessionID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read status %s", sessionID)
	}

	from := model.SessionStatus(current)
	if err := checkTransition(sessionID, from, status); err != nil {
		return err
	}
	if from == status {
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_sessions SET status = ? WHERE id = ? AND status = ?`,
		string(status), sessionID, current,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", sessionID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(model.ErrInvalidTransition, "sqlite: session %s changed concurrently", sessionID)
	}
	return nil
}

func (s *SQLiteStore) SaveRowResult(ctx context.Context, sessionID string, result model.RowResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_results (session_id, row_index, data) VALUES (?, ?, ?)
		 ON CONFLICT (session_id, row_index) DO UPDATE SET data = excluded.data`,
		sessionID, result.RowIndex, string(data),
	)
	return eris.Wrapf(err, "sqlite: save row %d for session %s", result.RowIndex, sessionID)
}

func (s *SQLiteStore) GetSessionMetadata(ctx context.Context, sessionID string) (*model.Session, error) {
	var sess model.Session
	var status, started string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, total_rows, processed_rows, status, started_at FROM enrichment_sessions WHERE id = ?`,
		sessionID,
	).Scan(&sess.ID, &sess.TotalRows, &sess.ProcessedRows, &status, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: session %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", sessionID)
	}
	sess.Status = model.SessionStatus(status)
	sess.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse started_at %q", started)
	}
	return &sess, nil
}

func (s *SQLiteStore) GetSessionResults(ctx context.Context, sessionID string, page Page) ([]model.RowResult, error) {
	query := `SELECT data FROM enrichment_results WHERE session_id = ? ORDER BY row_index`
	args := []any{sessionID}
	if page.Limit > 0 || page.Offset > 0 {
		limit := page.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, max(page.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query results %s", sessionID)
	}
	defer rows.Close()

	results := []model.RowResult{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		r, err := decodeResult([]byte(data))
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

func (s *SQLiteStore) SaveMetrics(ctx context.Context, sessionID string, m model.Metrics) error {
	data, err := encodeMetrics(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_metrics (session_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		sessionID, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return eris.Wrapf(err, "sqlite: save metrics %s", sessionID)
}

func (s *SQLiteStore) GetMetrics(ctx context.Context, sessionID string) (*model.Metrics, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM enrichment_metrics WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get metrics %s", sessionID)
	}
	return decodeMetrics([]byte(data))
}
