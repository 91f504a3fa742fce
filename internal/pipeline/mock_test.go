package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/enrich-cli/internal/extract"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/internal/store"
)

// mockExtractor is a testify mock for extract.Extractor.
type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, req extract.Request) (*extract.Extraction, error) {
	args := m.Called(ctx, req)
	e, _ := args.Get(0).(*extract.Extraction)
	return e, args.Error(1)
}

func forField(name string) any {
	return mock.MatchedBy(func(r extract.Request) bool { return r.Field == name })
}

// mockStore is a testify mock for store.Store.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateSession(ctx context.Context, totalRows int) (*model.Session, error) {
	args := m.Called(ctx, totalRows)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *mockStore) IncrementProcessed(ctx context.Context, sessionID string) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	return m.Called(ctx, sessionID, status).Error(0)
}

func (m *mockStore) SaveRowResult(ctx context.Context, sessionID string, result model.RowResult) error {
	return m.Called(ctx, sessionID, result).Error(0)
}

func (m *mockStore) GetSessionMetadata(ctx context.Context, sessionID string) (*model.Session, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *mockStore) GetSessionResults(ctx context.Context, sessionID string, page store.Page) ([]model.RowResult, error) {
	args := m.Called(ctx, sessionID, page)
	r, _ := args.Get(0).([]model.RowResult)
	return r, args.Error(1)
}

func (m *mockStore) SaveMetrics(ctx context.Context, sessionID string, metrics model.Metrics) error {
	return m.Called(ctx, sessionID, metrics).Error(0)
}

func (m *mockStore) GetMetrics(ctx context.Context, sessionID string) (*model.Metrics, error) {
	args := m.Called(ctx, sessionID)
	r, _ := args.Get(0).(*model.Metrics)
	return r, args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockStore) Close() error { return m.Called().Error(0) }

// testOptions returns options with no pacing and millisecond backoff.
func testOptions() Options {
	opts := DefaultOptions()
	opts.RowDelay = 0
	opts.CallTimeout = time.Second
	opts.Policy = resilience.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
	return opts
}

func answer(v any, conf float64) *extract.Extraction {
	return &extract.Extraction{Value: v, Confidence: model.Float(conf), Sources: []string{"https://example.test"}}
}

func leadRow(email, company string) model.Row {
	return model.NewRow([]string{"email", "company_name"}, []string{email, company})
}
