package pipeline

import (
	"sort"

	"github.com/sells-group/enrich-cli/internal/model"
)

// defaultConfidence stands in for a cell that carried no confidence signal.
const defaultConfidence = 0.5

func effectiveConfidence(c model.CellResult) float64 {
	if c.Confidence == nil {
		return defaultConfidence
	}
	return *c.Confidence
}

// Aggregate computes the session rollup from row results. Cells are visited
// in row then field-name order so repeated calls produce identical sums.
func Aggregate(results []model.RowResult) model.Metrics {
	m := model.Metrics{MissingFields: map[string]int{}}

	var total float64
	var count int
	for _, r := range results {
		if r.Status == model.RowStatusError {
			m.ErrorCount++
		}

		names := make([]string, 0, len(r.Enrichments))
		for name := range r.Enrichments {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			c := r.Enrichments[name]
			if c.IsEmpty() {
				m.MissingFields[name]++
			}
			if c.LowConfidence {
				m.LowConfidenceCount++
			}
			if c.Confidence == nil && c.Failed() {
				continue
			}
			total += effectiveConfidence(c)
			count++
		}
	}

	if count > 0 {
		m.AverageConfidence = total / float64(count)
	}
	return m
}
