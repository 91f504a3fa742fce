package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// maxCASAttempts bounds optimistic retries of lightweight transactions.
const maxCASAttempts = 16

// cqlSession is the subset of a gocql session the store needs.
type cqlSession interface {
	Exec(ctx context.Context, stmt string, args ...any) error
	Scan(ctx context.Context, stmt string, args []any, dest ...any) error
	ScanCAS(ctx context.Context, stmt string, args []any, dest ...any) (bool, error)
	Iter(ctx context.Context, stmt string, args ...any) cqlIter
	Close()
}

type cqlIter interface {
	Scan(dest ...any) bool
	Close() error
}

// CassandraConfig configures the wide-column backend.
type CassandraConfig struct {
	Hosts       []string
	Keyspace    string
	Datacenter  string `yaml:"datacenter" mapstructure:"datacenter"`
	Consistency string `yaml:"consistency" mapstructure:"consistency"`
	Username    string
	Password    string
	Timeout     time.Duration
}

// ParseCassandraURL reads cassandra://[user:pass@]host1,host2[:port]/keyspace.
func ParseCassandraURL(raw string) (CassandraConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return CassandraConfig{}, eris.Wrap(err, "cassandra: parse url")
	}
	if u.Scheme != "cassandra" {
		return CassandraConfig{}, eris.Errorf("cassandra: unexpected scheme %q", u.Scheme)
	}
	cfg := CassandraConfig{Keyspace: strings.Trim(u.Path, "/")}
	if cfg.Keyspace == "" {
		cfg.Keyspace = "enrichment"
	}
	for _, h := range strings.Split(u.Host, ",") {
		if h = strings.TrimSpace(h); h != "" {
			cfg.Hosts = append(cfg.Hosts, h)
		}
	}
	if len(cfg.Hosts) == 0 {
		return CassandraConfig{}, eris.New("cassandra: no hosts in url")
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	return cfg, nil
}

// cqlStatements holds keyspace-qualified statements.
type cqlStatements struct {
	createKeyspace string
	schema         []string
	insertSession  string
	selectSession  string
	selectCounts   string
	casProcessed   string
	casStatus      string
	upsertResult   string
	selectResults  string
	upsertMetrics  string
	selectMetrics  string
}

func newCQLStatements(keyspace string) cqlStatements {
	ks := keyspace
	return cqlStatements{
		createKeyspace: fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, ks),
		schema: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.enrichment_sessions (id text PRIMARY KEY, total_rows int, processed_rows int, status text, started_at timestamp)`, ks),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.enrichment_results (session_id text, row_index int, data text, PRIMARY KEY (session_id, row_index)) WITH CLUSTERING ORDER BY (row_index ASC)`, ks),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.enrichment_metrics (session_id text PRIMARY KEY, data text, updated_at timestamp)`, ks),
		},
		insertSession: fmt.Sprintf(`INSERT INTO %s.enrichment_sessions (id, total_rows, processed_rows, status, started_at) VALUES (?, ?, 0, ?, ?) IF NOT EXISTS`, ks),
		selectSession: fmt.Sprintf(`SELECT id, total_rows, processed_rows, status, started_at FROM %s.enrichment_sessions WHERE id = ?`, ks),
		selectCounts:  fmt.Sprintf(`SELECT processed_rows, total_rows FROM %s.enrichment_sessions WHERE id = ?`, ks),
		casProcessed:  fmt.Sprintf(`UPDATE %s.enrichment_sessions SET processed_rows = ? WHERE id = ? IF processed_rows = ?`, ks),
		casStatus:     fmt.Sprintf(`UPDATE %s.enrichment_sessions SET status = ? WHERE id = ? IF status = ?`, ks),
		upsertResult:  fmt.Sprintf(`INSERT INTO %s.enrichment_results (session_id, row_index, data) VALUES (?, ?, ?)`, ks),
		selectResults: fmt.Sprintf(`SELECT row_index, data FROM %s.enrichment_results WHERE session_id = ?`, ks),
		upsertMetrics: fmt.Sprintf(`INSERT INTO %s.enrichment_metrics (session_id, data, updated_at) VALUES (?, ?, ?)`, ks),
		selectMetrics: fmt.Sprintf(`SELECT data FROM %s.enrichment_metrics WHERE session_id = ?`, ks),
	}
}

// CassandraStore implements Store on a wide-column cluster. Counter and
// status updates use lightweight transactions so concurrent writers cannot
// lose increments or move a session backward.
type CassandraStore struct {
	session cqlSession
	q       cqlStatements
}

// NewCassandra connects to the cluster described by cfg.
func NewCassandra(cfg CassandraConfig) (*CassandraStore, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.SerialConsistency = gocql.LocalSerial
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	} else {
		cluster.Timeout = 10 * time.Second
	}
	if cfg.Datacenter != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.DCAwareRoundRobinPolicy(cfg.Datacenter))
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, eris.Wrap(err, "cassandra: create session")
	}
	return newCassandraWithSession(&gocqlSession{s: sess}, cfg.Keyspace), nil
}

func newCassandraWithSession(s cqlSession, keyspace string) *CassandraStore {
	return &CassandraStore{session: s, q: newCQLStatements(keyspace)}
}

func parseConsistency(s string) gocql.Consistency {
	switch strings.ToLower(s) {
	case "one":
		return gocql.One
	case "local_one":
		return gocql.LocalOne
	case "local_quorum":
		return gocql.LocalQuorum
	case "all":
		return gocql.All
	default:
		return gocql.Quorum
	}
}

func (s *CassandraStore) Migrate(ctx context.Context) error {
	if err := s.session.Exec(ctx, s.q.createKeyspace); err != nil {
		return eris.Wrap(err, "cassandra: create keyspace")
	}
	for _, stmt := range s.q.schema {
		if err := s.session.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "cassandra: migrate")
		}
	}
	return nil
}

func (s *CassandraStore) Close() error {
	s.session.Close()
	return nil
}

func (s *CassandraStore) CreateSession(ctx context.Context, totalRows int) (*model.Session, error) {
	if totalRows < 0 {
		return nil, eris.Errorf("cassandra: negative total rows %d", totalRows)
	}
	sess := &model.Session{
		ID:        uuid.New().String(),
		TotalRows: totalRows,
		Status:    model.SessionPending,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	var id, status string
	var total, processed int
	var started time.Time
	applied, err := s.session.ScanCAS(ctx, s.q.insertSession,
		[]any{sess.ID, sess.TotalRows, string(sess.Status), sess.StartedAt},
		&id, &processed, &started, &status, &total,
	)
	if err != nil {
		return nil, eris.Wrap(err, "cassandra: insert session")
	}
	if !applied {
		return nil, eris.Errorf("cassandra: session id collision %s", sess.ID)
	}
	return sess, nil
}

func (s *CassandraStore) IncrementProcessed(ctx context.Context, sessionID string) (int, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		var processed, total int
		if err := s.scanOne(ctx, s.q.selectCounts, []any{sessionID}, &processed, &total); err != nil {
			return 0, err
		}
		if processed >= total {
			return 0, eris.Wrapf(ErrRowsExhausted, "cassandra: session %s", sessionID)
		}

		var current int
		applied, err := s.session.ScanCAS(ctx, s.q.casProcessed, []any{processed + 1, sessionID, processed}, &current)
		if err != nil {
			return 0, eris.Wrapf(err, "cassandra: increment processed %s", sessionID)
		}
		if applied {
			return processed + 1, nil
		}
	}
	return 0, eris.Errorf("cassandra: increment processed %s: too much contention", sessionID)
}

func (s *CassandraStore) UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		sess, err := s.GetSessionMetadata(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := checkTransition(sessionID, sess.Status, status); err != nil {
			return err
		}
		if sess.Status == status {
			return nil
		}

		var current string
		applied, err := s.session.ScanCAS(ctx, s.q.casStatus, []any{string(status), sessionID, string(sess.Status)}, &current)
		if err != nil {
			return eris.Wrapf(err, "cassandra: update status %s", sessionID)
		}
		if applied {
			return nil
		}
	}
	return eris.Errorf("cassandra: update status %s: too much contention", sessionID)
}

func (s *CassandraStore) SaveRowResult(ctx context.Context, sessionID string, result model.RowResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	err = s.session.Exec(ctx, s.q.upsertResult, sessionID, result.RowIndex, string(data))
	return eris.Wrapf(err, "cassandra: save row %d for session %s", result.RowIndex, sessionID)
}

func (s *CassandraStore) GetSessionMetadata(ctx context.Context, sessionID string) (*model.Session, error) {
	var sess model.Session
	var status string
	if err := s.scanOne(ctx, s.q.selectSession, []any{sessionID},
		&sess.ID, &sess.TotalRows, &sess.ProcessedRows, &status, &sess.StartedAt); err != nil {
		return nil, err
	}
	sess.Status = model.SessionStatus(status)
	sess.StartedAt = sess.StartedAt.UTC()
	return &sess, nil
}

// GetSessionResults relies on the row_index clustering order and skips the
// offset client-side.
func (s *CassandraStore) GetSessionResults(ctx context.Context, sessionID string, page Page) ([]model.RowResult, error) {
	stmt := s.q.selectResults
	args := []any{sessionID}
	if page.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, max(page.Offset, 0)+page.Limit)
	}

	iter := s.session.Iter(ctx, stmt, args...)
	results := []model.RowResult{}
	var idx int
	var data string
	for skipped := 0; iter.Scan(&idx, &data); {
		if skipped < page.Offset {
			skipped++
			continue
		}
		r, err := decodeResult([]byte(data))
		if err != nil {
			_ = iter.Close()
			return nil, err
		}
		results = append(results, r)
		if page.Limit > 0 && len(results) == page.Limit {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, eris.Wrapf(err, "cassandra: query results %s", sessionID)
	}
	return results, nil
}

func (s *CassandraStore) SaveMetrics(ctx context.Context, sessionID string, m model.Metrics) error {
	data, err := encodeMetrics(m)
	if err != nil {
		return err
	}
	err = s.session.Exec(ctx, s.q.upsertMetrics, sessionID, string(data), time.Now().UTC())
	return eris.Wrapf(err, "cassandra: save metrics %s", sessionID)
}

func (s *CassandraStore) GetMetrics(ctx context.Context, sessionID string) (*model.Metrics, error) {
	var data string
	err := s.scanOne(ctx, s.q.selectMetrics, []any{sessionID}, &data)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeMetrics([]byte(data))
}

func (s *CassandraStore) scanOne(ctx context.Context, stmt string, args []any, dest ...any) error {
	err := s.session.Scan(ctx, stmt, args, dest...)
	if errors.Is(err, gocql.ErrNotFound) {
		return eris.Wrapf(ErrNotFound, "cassandra: %v", args)
	}
	return eris.Wrap(err, "cassandra: scan")
}

// gocqlSession adapts *gocql.Session to cqlSession.
type gocqlSession struct {
	s *gocql.Session
}

func (g *gocqlSession) Exec(ctx context.Context, stmt string, args ...any) error {
	return g.s.Query(stmt, args...).WithContext(ctx).Exec()
}

func (g *gocqlSession) Scan(ctx context.Context, stmt string, args []any, dest ...any) error {
	return g.s.Query(stmt, args...).WithContext(ctx).Scan(dest...)
}

func (g *gocqlSession) ScanCAS(ctx context.Context, stmt string, args []any, dest ...any) (bool, error) {
	return g.s.Query(stmt, args...).WithContext(ctx).ScanCAS(dest...)
}

func (g *gocqlSession) Iter(ctx context.Context, stmt string, args ...any) cqlIter {
	return g.s.Query(stmt, args...).WithContext(ctx).Iter()
}

func (g *gocqlSession) Close() {
	g.s.Close()
}
