package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RowStatus is the overall outcome of enriching one row.
type RowStatus string

// Row statuses.
const (
	RowStatusSuccess RowStatus = "success"
	RowStatusPartial RowStatus = "partial"
	RowStatusError   RowStatus = "error"
)

// CellResult is the outcome of enriching one (row, field) cell. Either Value
// (possibly nil) with Confidence, or Error, is meaningful.
type CellResult struct {
	Field      string   `json:"field"`
	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	Error      string   `json:"error,omitempty"`

	// LowConfidence marks an extracted value below the session threshold.
	// The value is kept; consumers decide how to treat it.
	LowConfidence bool `json:"lowConfidence,omitempty"`

	// MissingDependencies lists prerequisites that were absent, in which case
	// the cell was null-filled without an extraction call.
	MissingDependencies []string `json:"missingDependencies,omitempty"`

	Attempts int `json:"attempts,omitempty"`
}

// Failed reports whether the cell ended in an error.
func (c CellResult) Failed() bool { return c.Error != "" }

// IsEmpty reports whether the cell has no usable value.
func (c CellResult) IsEmpty() bool { return IsEmptyValue(c.Value) }

// RowResult wraps all cell results for one row plus its original input.
type RowResult struct {
	RowIndex     int                   `json:"rowIndex"`
	OriginalData Row                   `json:"originalData"`
	Enrichments  map[string]CellResult `json:"enrichments"`
	Status       RowStatus             `json:"status"`
	Error        string                `json:"error,omitempty"`
}

// RowEventType names the kind of streaming event.
type RowEventType string

// Streaming event types.
const (
	EventRowComplete     RowEventType = "row_complete"
	EventSessionComplete RowEventType = "session_complete"
)

// RowEvent is emitted once per completed row.
type RowEvent struct {
	Type        RowEventType          `json:"type"`
	RowIndex    int                   `json:"rowIndex"`
	Status      RowStatus             `json:"status"`
	CellResults map[string]CellResult `json:"cellResults"`
}

// IsEmptyValue reports whether v is nil or a blank string.
func IsEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// IsPresent reports whether a dependency value counts as known: non-nil and,
// for strings, non-empty.
func IsPresent(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// FormatValue renders an extracted value as plain text for directives and
// row attachment.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, FormatValue(item))
		}
		return strings.Join(parts, "; ")
	case []string:
		return strings.Join(t, "; ")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }
