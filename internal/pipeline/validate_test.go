package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func fieldNames(fields []model.FieldDefinition) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func TestOrderFields_DependencyOrder(t *testing.T) {
	fields := []model.FieldDefinition{
		{Name: "ceo_linkedin", Dependencies: []string{"ceo"}},
		{Name: "ceo", Dependencies: []string{"domain"}},
		{Name: "industry", Dependencies: []string{"company_name"}},
		{Name: "domain"},
	}
	order, err := OrderFields(fields, []model.Row{leadRow("a", "Acme")}, Limits{})
	require.NoError(t, err)
	assert.Equal(t, []string{"industry", "domain", "ceo", "ceo_linkedin"}, fieldNames(order))
}

func TestOrderFields_DirectCycle(t *testing.T) {
	fields := []model.FieldDefinition{
		{Name: "a", Dependencies: []string{"b"}},
		{Name: "b", Dependencies: []string{"a"}},
	}
	_, err := OrderFields(fields, nil, Limits{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCyclicDependency))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"a", "b", "a"}, ve.Fields)
}

func TestOrderFields_TransitiveCycle(t *testing.T) {
	fields := []model.FieldDefinition{
		{Name: "a", Dependencies: []string{"b"}},
		{Name: "b", Dependencies: []string{"c"}},
		{Name: "c", Dependencies: []string{"a"}},
	}
	_, err := OrderFields(fields, nil, Limits{})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, errors.Is(err, ErrCyclicDependency))
	assert.Equal(t, []string{"a", "b", "c", "a"}, ve.Fields)
	assert.Equal(t, "pipeline: cyclic dependency: a, b, c, a", err.Error())
}

func TestOrderFields_SelfCycle(t *testing.T) {
	_, err := OrderFields([]model.FieldDefinition{{Name: "a", Dependencies: []string{"a"}}}, nil, Limits{})
	assert.True(t, errors.Is(err, ErrCyclicDependency))
}

func TestOrderFields_UnknownDependency(t *testing.T) {
	fields := []model.FieldDefinition{{Name: "industry", Dependencies: []string{"company"}}}
	_, err := OrderFields(fields, []model.Row{leadRow("a", "Acme")}, Limits{})
	assert.True(t, errors.Is(err, ErrUnknownDependency))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"industry -> company"}, ve.Fields)
}

func TestOrderFields_DependencyOnInputColumn(t *testing.T) {
	fields := []model.FieldDefinition{{Name: "industry", Dependencies: []string{"company_name"}}}
	order, err := OrderFields(fields, []model.Row{leadRow("a", "")}, Limits{})
	require.NoError(t, err)
	assert.Len(t, order, 1)
}

func TestOrderFields_InvalidBatches(t *testing.T) {
	tests := []struct {
		name   string
		fields []model.FieldDefinition
		rows   int
		limits Limits
		reason string
	}{
		{name: "empty", fields: nil, reason: "no fields requested"},
		{name: "duplicate", fields: []model.FieldDefinition{{Name: "a"}, {Name: "a"}}, reason: "duplicate field"},
		{name: "unnamed", fields: []model.FieldDefinition{{Name: " "}}, reason: "without a name"},
		{name: "too many fields", fields: []model.FieldDefinition{{Name: "a"}, {Name: "b"}}, limits: Limits{MaxFields: 1}, reason: "too many fields"},
		{name: "too many rows", fields: []model.FieldDefinition{{Name: "a"}}, rows: 3, limits: Limits{MaxRows: 2}, reason: "too many rows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]model.Row, tt.rows)
			_, err := OrderFields(tt.fields, rows, tt.limits)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidBatch))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}
