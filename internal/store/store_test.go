package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

var resultCmpOpts = []cmp.Option{
	cmp.AllowUnexported(model.Row{}),
	cmpopts.EquateEmpty(),
}

func sampleResult(idx int, status model.RowStatus) model.RowResult {
	return model.RowResult{
		RowIndex:     idx,
		OriginalData: model.NewRow([]string{"email", "company_name"}, []string{"a@acme.test", "Acme"}),
		Enrichments: map[string]model.CellResult{
			"industry": {
				Field:      "industry",
				Value:      "Manufacturing",
				Confidence: model.Float(0.82),
				Sources:    []string{"https://acme.test/about"},
				Attempts:   1,
			},
			"employees": {
				Field:         "employees",
				Value:         120.0,
				Confidence:    model.Float(0.4),
				LowConfidence: true,
				Attempts:      2,
			},
			"ceo": {
				Field:               "ceo",
				Confidence:          model.Float(0),
				MissingDependencies: []string{"linkedin"},
			},
		},
		Status: status,
	}
}

// testStoreContract exercises behavior every backend must share.
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, 2)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, model.SessionPending, sess.Status)

	got, err := s.GetSessionMetadata(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, 2, got.TotalRows)
	assert.Equal(t, 0, got.ProcessedRows)
	assert.Equal(t, model.SessionPending, got.Status)
	assert.False(t, got.StartedAt.IsZero())

	_, err = s.GetSessionMetadata(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	require.NoError(t, s.UpdateStatus(ctx, sess.ID, model.SessionRunning))
	require.NoError(t, s.UpdateStatus(ctx, sess.ID, model.SessionRunning), "same status is a no-op")

	n, err := s.IncrementProcessed(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.IncrementProcessed(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = s.IncrementProcessed(ctx, sess.ID)
	assert.True(t, errors.Is(err, ErrRowsExhausted), "got %v", err)
	_, err = s.IncrementProcessed(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	got, err = s.GetSessionMetadata(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ProcessedRows)

	r1 := sampleResult(1, model.RowStatusPartial)
	r0 := sampleResult(0, model.RowStatusSuccess)
	require.NoError(t, s.SaveRowResult(ctx, sess.ID, r1))
	require.NoError(t, s.SaveRowResult(ctx, sess.ID, r0))

	all, err := s.GetSessionResults(ctx, sess.ID, All())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 0, all[0].RowIndex)
	assert.Equal(t, 1, all[1].RowIndex)

	page, err := s.GetSessionResults(ctx, sess.ID, Page{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	if diff := cmp.Diff(r1, page[0], resultCmpOpts...); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"email", "company_name"}, page[0].OriginalData.Keys())

	page, err = s.GetSessionResults(ctx, sess.ID, Page{Offset: 0, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	if diff := cmp.Diff(r0, page[0], resultCmpOpts...); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	page, err = s.GetSessionResults(ctx, sess.ID, Page{Offset: 5, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page)

	updated := sampleResult(0, model.RowStatusError)
	updated.Error = "all fields failed"
	require.NoError(t, s.SaveRowResult(ctx, sess.ID, updated))
	all, err = s.GetSessionResults(ctx, sess.ID, All())
	require.NoError(t, err)
	require.Len(t, all, 2, "upsert must not duplicate rows")
	assert.Equal(t, model.RowStatusError, all[0].Status)

	none, err := s.GetSessionResults(ctx, "missing", All())
	require.NoError(t, err)
	assert.Empty(t, none)

	m, err := s.GetMetrics(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, m)

	want := model.Metrics{AverageConfidence: 0.61, MissingFields: map[string]int{"ceo": 2}, ErrorCount: 1, LowConfidenceCount: 2}
	require.NoError(t, s.SaveMetrics(ctx, sess.ID, want))
	want.ErrorCount = 0
	require.NoError(t, s.SaveMetrics(ctx, sess.ID, want))
	m, err = s.GetMetrics(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, want, *m)

	require.NoError(t, s.UpdateStatus(ctx, sess.ID, model.SessionCompleted))
	err = s.UpdateStatus(ctx, sess.ID, model.SessionRunning)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition), "got %v", err)

	err = s.UpdateStatus(ctx, "missing", model.SessionRunning)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}
