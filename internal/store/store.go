// Package store persists enrichment sessions, row results, and metrics.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Sentinel errors shared by every backend.
var (
	ErrNotFound      = eris.New("store: not found")
	ErrRowsExhausted = eris.New("store: processed rows already equal total rows")
)

// Page bounds a result listing. A non-positive Limit returns every row from
// Offset on.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// All is the unbounded page.
func All() Page { return Page{} }

// Store is the backend-agnostic session persistence contract.
type Store interface {
	// CreateSession starts a pending session with the given row count.
	CreateSession(ctx context.Context, totalRows int) (*model.Session, error)

	// IncrementProcessed atomically bumps the processed row count and returns
	// the new value. It never lets the count exceed total rows.
	IncrementProcessed(ctx context.Context, sessionID string) (int, error)

	// UpdateStatus moves the session forward. Backward transitions fail with
	// model.ErrInvalidTransition.
	UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus) error

	// SaveRowResult upserts the result keyed by (sessionID, RowIndex).
	SaveRowResult(ctx context.Context, sessionID string, result model.RowResult) error

	GetSessionMetadata(ctx context.Context, sessionID string) (*model.Session, error)

	// GetSessionResults returns results in row index order.
	GetSessionResults(ctx context.Context, sessionID string, page Page) ([]model.RowResult, error)

	SaveMetrics(ctx context.Context, sessionID string, m model.Metrics) error

	// GetMetrics returns nil without error when no metrics were saved.
	GetMetrics(ctx context.Context, sessionID string) (*model.Metrics, error)

	Migrate(ctx context.Context) error
	Close() error
}

func encodeResult(r model.RowResult) ([]byte, error) {
	b, err := json.Marshal(r)
	return b, eris.Wrap(err, "store: marshal row result")
}

func decodeResult(data []byte) (model.RowResult, error) {
	var r model.RowResult
	err := json.Unmarshal(data, &r)
	return r, eris.Wrap(err, "store: unmarshal row result")
}

func encodeMetrics(m model.Metrics) ([]byte, error) {
	b, err := json.Marshal(m)
	return b, eris.Wrap(err, "store: marshal metrics")
}

func decodeMetrics(data []byte) (*model.Metrics, error) {
	var m model.Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal metrics")
	}
	if m.MissingFields == nil {
		m.MissingFields = map[string]int{}
	}
	return &m, nil
}

// checkTransition validates a status change read from a backend.
func checkTransition(sessionID string, from, to model.SessionStatus) error {
	if err := model.ValidateTransition(from, to); err != nil {
		return eris.Wrapf(err, "store: session %s", sessionID)
	}
	return nil
}
