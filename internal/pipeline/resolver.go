package pipeline

import "github.com/sells-group/enrich-cli/internal/model"

// Resolution reports whether a field can be enriched now.
type Resolution struct {
	Ready   bool     `json:"ready"`
	Missing []string `json:"missing"`
}

// Resolve checks the field's declared dependencies against the row and the
// enrichments already computed for it. A field with no dependencies is
// always ready.
func Resolve(field model.FieldDefinition, row model.Row, existing map[string]model.CellResult) Resolution {
	missing := []string{}
	for _, dep := range field.Dependencies {
		if _, ok := DependencyValue(dep, row, existing); !ok {
			missing = append(missing, dep)
		}
	}
	return Resolution{Ready: len(missing) == 0, Missing: missing}
}

// DependencyValue returns the known value of dep for a row: the raw row value
// when it is non-empty, otherwise a prior enrichment result when present.
func DependencyValue(dep string, row model.Row, existing map[string]model.CellResult) (string, bool) {
	if v, ok := row.Get(dep); ok && v != "" {
		return v, true
	}
	if cell, ok := existing[dep]; ok && !cell.Failed() && model.IsPresent(cell.Value) {
		return model.FormatValue(cell.Value), true
	}
	return "", false
}
