package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	upsertResultSQL = db.MustUpsertSQL(db.UpsertConfig{
		Table:        "enrichment_results",
		Columns:      []string{"session_id", "row_index", "data"},
		ConflictKeys: []string{"session_id", "row_index"},
	})
	upsertMetricsSQL = db.MustUpsertSQL(db.UpsertConfig{
		Table:        "enrichment_metrics",
		Columns:      []string{"session_id", "data", "updated_at"},
		ConflictKeys: []string{"session_id"},
	})
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS enrichment_sessions (
	id             TEXT PRIMARY KEY,
	total_rows     INTEGER NOT NULL,
	processed_rows INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'pending',
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (processed_rows <= total_rows)
);

CREATE TABLE IF NOT EXISTS enrichment_results (
	session_id TEXT NOT NULL REFERENCES enrichment_sessions(id) ON DELETE CASCADE,
	row_index  INTEGER NOT NULL,
	data       JSONB NOT NULL,
	PRIMARY KEY (session_id, row_index)
);

CREATE TABLE IF NOT EXISTS enrichment_metrics (
	session_id TEXT PRIMARY KEY REFERENCES enrichment_sessions(id) ON DELETE CASCADE,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_enrichment_sessions_status ON enrichment_sessions(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, totalRows int) (*model.Session, error) {
	if totalRows < 0 {
		return nil, eris.Errorf("postgres: negative total rows %d", totalRows)
	}
	sess := &model.Session{
		ID:        uuid.New().String(),
		TotalRows: totalRows,
		Status:    model.SessionPending,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_sessions (id, total_rows, processed_rows, status, started_at) VALUES ($1, $2, 0, $3, $4)`,
		sess.ID, sess.TotalRows, string(sess.Status), sess.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}
	return sess, nil
}

func (s *PostgresStore) IncrementProcessed(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`UPDATE enrichment_sessions SET processed_rows = processed_rows + 1 WHERE id = $1 AND processed_rows < total_rows RETURNING processed_rows`,
		sessionID,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := s.GetSessionMetadata(ctx, sessionID); gerr != nil {
			return 0, gerr
		}
		return 0, eris.Wrapf(ErrRowsExhausted, "postgres: session %s", sessionID)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: increment processed %s", sessionID)
	}
	return n, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM enrichment_sessions WHERE id = $1`, sessionID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: session %s", sessionID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read status %s", sessionID)
	}

	from := model.SessionStatus(current)
	if err := checkTransition(sessionID, from, status); err != nil {
		return err
	}
	if from == status {
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_sessions SET status = $1 WHERE id = $2 AND status = $3`,
		string(status), sessionID, current,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrInvalidTransition, "postgres: session %s changed concurrently", sessionID)
	}
	return nil
}

func (s *PostgresStore) SaveRowResult(ctx context.Context, sessionID string, result model.RowResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, upsertResultSQL, sessionID, result.RowIndex, data)
	return eris.Wrapf(err, "postgres: save row %d for session %s", result.RowIndex, sessionID)
}

func (s *PostgresStore) GetSessionMetadata(ctx context.Context, sessionID string) (*model.Session, error) {
	var sess model.Session
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, total_rows, processed_rows, status, started_at FROM enrichment_sessions WHERE id = $1`,
		sessionID,
	).Scan(&sess.ID, &sess.TotalRows, &sess.ProcessedRows, &status, &sess.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: session %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", sessionID)
	}
	sess.Status = model.SessionStatus(status)
	return &sess, nil
}

func (s *PostgresStore) GetSessionResults(ctx context.Context, sessionID string, page Page) ([]model.RowResult, error) {
	query := `SELECT data FROM enrichment_results WHERE session_id = $1 ORDER BY row_index`
	args := []any{sessionID}
	if page.Limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, page.Limit, max(page.Offset, 0))
	} else if page.Offset > 0 {
		query += ` OFFSET $2`
		args = append(args, page.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query results %s", sessionID)
	}
	defer rows.Close()

	results := []model.RowResult{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		r, err := decodeResult(data)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: iterate results")
}

func (s *PostgresStore) SaveMetrics(ctx context.Context, sessionID string, m model.Metrics) error {
	data, err := encodeMetrics(m)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, upsertMetricsSQL, sessionID, data, time.Now().UTC())
	return eris.Wrapf(err, "postgres: save metrics %s", sessionID)
}

func (s *PostgresStore) GetMetrics(ctx context.Context, sessionID string) (*model.Metrics, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM enrichment_metrics WHERE session_id = $1`, sessionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get metrics %s", sessionID)
	}
	return decodeMetrics(data)
}
