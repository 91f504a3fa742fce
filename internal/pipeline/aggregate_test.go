package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestAggregate(t *testing.T) {
	results := []model.RowResult{
		{
			RowIndex: 0,
			Status:   model.RowStatusSuccess,
			Enrichments: map[string]model.CellResult{
				"industry": {Value: "Retail", Confidence: model.Float(0.9)},
				"ceo":      {Value: nil, Confidence: model.Float(0), MissingDependencies: []string{"domain"}},
				"domain":   {Value: "x.test"},
			},
		},
		{
			RowIndex: 1,
			Status:   model.RowStatusError,
			Enrichments: map[string]model.CellResult{
				"industry": {Error: "down"},
				"ceo":      {Error: "down"},
				"domain":   {Value: "", Confidence: model.Float(0.2), LowConfidence: true, Error: "partial"},
			},
		},
	}

	m := Aggregate(results)
	assert.Equal(t, 1, m.ErrorCount)
	assert.Equal(t, map[string]int{"ceo": 2, "industry": 1, "domain": 1}, m.MissingFields)
	assert.Equal(t, 1, m.LowConfidenceCount)
	// 0.9 + 0 + 0.5 (unscored) + 0.2 over four cells.
	assert.InDelta(t, 0.4, m.AverageConfidence, 1e-9)
}

func TestAggregate_Empty(t *testing.T) {
	m := Aggregate(nil)
	assert.Equal(t, 0.0, m.AverageConfidence)
	assert.Equal(t, 0, m.ErrorCount)
	assert.NotNil(t, m.MissingFields)
	assert.Empty(t, m.MissingFields)
}

func TestAggregate_Idempotent(t *testing.T) {
	results := []model.RowResult{
		{Status: model.RowStatusPartial, Enrichments: map[string]model.CellResult{
			"a": {Value: "1", Confidence: model.Float(0.1)},
			"b": {Value: "2", Confidence: model.Float(0.2)},
			"c": {Value: "3", Confidence: model.Float(0.3)},
			"d": {Error: "x"},
		}},
	}
	first := Aggregate(results)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Aggregate(results))
	}
}
