package pipeline

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Sentinel causes carried by ValidationError.
var (
	ErrInvalidBatch      = eris.New("invalid enrichment batch")
	ErrCyclicDependency  = eris.New("cyclic field dependency")
	ErrUnknownDependency = eris.New("unknown field reference")
)

// ValidationError is a configuration error that rejects a batch before any
// extraction call is made. Fields names the offending fields; for a cycle it
// is the cycle path.
type ValidationError struct {
	Fields []string
	Reason string
	cause  error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "pipeline: " + e.Reason
	}
	return fmt.Sprintf("pipeline: %s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return e.cause }

func invalid(cause error, reason string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Reason: reason, cause: cause}
}

// Limits bounds the size of a batch. Zero means unlimited.
type Limits struct {
	MaxFields int
	MaxRows   int
}

// OrderFields validates the requested fields against the input rows and
// returns them in processing order: fields without dependencies on other
// requested fields first, then each field after everything it depends on.
// Ties keep the request order.
func OrderFields(fields []model.FieldDefinition, rows []model.Row, limits Limits) ([]model.FieldDefinition, error) {
	if len(fields) == 0 {
		return nil, invalid(ErrInvalidBatch, "no fields requested")
	}
	if limits.MaxFields > 0 && len(fields) > limits.MaxFields {
		return nil, invalid(ErrInvalidBatch, fmt.Sprintf("too many fields (%d > %d)", len(fields), limits.MaxFields))
	}
	if limits.MaxRows > 0 && len(rows) > limits.MaxRows {
		return nil, invalid(ErrInvalidBatch, fmt.Sprintf("too many rows (%d > %d)", len(rows), limits.MaxRows))
	}

	var unnamed int
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			unnamed++
		}
	}
	if unnamed > 0 {
		return nil, invalid(ErrInvalidBatch, fmt.Sprintf("%d field(s) without a name", unnamed))
	}

	set := model.NewFieldSet(fields)
	if dups := set.Duplicates(); len(dups) > 0 {
		return nil, invalid(ErrInvalidBatch, "duplicate field", dups...)
	}

	columns := make(map[string]struct{})
	for _, r := range rows {
		for _, k := range r.Keys() {
			columns[k] = struct{}{}
		}
	}

	var unknown []string
	for _, f := range fields {
		for _, dep := range f.Dependencies {
			if set.Has(dep) {
				continue
			}
			if _, ok := columns[dep]; ok {
				continue
			}
			unknown = append(unknown, f.Name+" -> "+dep)
		}
	}
	if len(unknown) > 0 {
		return nil, invalid(ErrUnknownDependency, "unknown dependency", unknown...)
	}

	if cycle := findCycle(fields, set); cycle != nil {
		return nil, invalid(ErrCyclicDependency, "cyclic dependency", cycle...)
	}

	return levelOrder(fields, set), nil
}

const (
	white = iota
	gray
	black
)

// findCycle runs a three-colour DFS over edges between requested fields and
// returns the first cycle found as a path that starts and ends on the same
// field, or nil.
func findCycle(fields []model.FieldDefinition, set *model.FieldSet) []string {
	color := make(map[string]int, len(fields))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)
		for _, dep := range set.ByName(name).Dependencies {
			if !set.Has(dep) {
				continue
			}
			switch color[dep] {
			case gray:
				for i, n := range stack {
					if n == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						break
					}
				}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, f := range fields {
		if color[f.Name] == white && visit(f.Name) {
			return cycle
		}
	}
	return nil
}

// levelOrder assigns each field a level one above its deepest requested
// dependency and sorts stably by level. Requires an acyclic graph.
func levelOrder(fields []model.FieldDefinition, set *model.FieldSet) []model.FieldDefinition {
	level := make(map[string]int, len(fields))
	var depth func(name string) int
	depth = func(name string) int {
		if l, ok := level[name]; ok {
			return l
		}
		l := 0
		for _, dep := range set.ByName(name).Dependencies {
			if set.Has(dep) {
				if d := depth(dep) + 1; d > l {
					l = d
				}
			}
		}
		level[name] = l
		return l
	}

	maxLevel := 0
	for _, f := range fields {
		if l := depth(f.Name); l > maxLevel {
			maxLevel = l
		}
	}

	ordered := make([]model.FieldDefinition, 0, len(fields))
	for l := 0; l <= maxLevel; l++ {
		for _, f := range fields {
			if level[f.Name] == l {
				ordered = append(ordered, f)
			}
		}
	}
	return ordered
}
