package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/enrich-cli/internal/model"
)

// maxContextFields caps the sibling fields rendered in the row context.
const maxContextFields = 12

const closingInstruction = "Use the provided context when forming your answer. If a dependency is missing, return null."

// PlanInput is everything needed to build one cell directive.
type PlanInput struct {
	Field    model.FieldDefinition
	Row      model.Row
	RowIndex int
	AllRows  []model.Row
	// FirstRow is the sheet index of AllRows[0] when AllRows is a slice of
	// a larger sheet.
	FirstRow int
	Existing map[string]model.CellResult
	Context  model.ContextConfig
}

// Plan is the assembled directive for one cell.
type Plan struct {
	Field               string   `json:"field"`
	RowIndex            int      `json:"rowIndex"`
	Directive           string   `json:"directive"`
	MissingDependencies []string `json:"missingDependencies"`
}

// BuildPlan assembles the directive for one cell. Sections always appear in
// the same order and state their own emptiness, so identical inputs yield
// byte-identical directives.
func BuildPlan(in PlanInput) Plan {
	deps, missing := dependencySection(in.Field, in.Row, in.Existing)
	sections := []string{
		fmt.Sprintf("You are enriching cell Row %d, Column %q (key: %s).", in.RowIndex+1, in.Field.Label(), in.Field.Name),
		instructionSection(in.Field, in.Context),
		rowContextSection(in.Field, in.Row, in.Context),
		deps,
		neighborSection(in.Field, in.RowIndex, in.FirstRow, in.AllRows),
		closingInstruction,
	}
	return Plan{
		Field:               in.Field.Name,
		RowIndex:            in.RowIndex,
		Directive:           strings.Join(sections, "\n\n"),
		MissingDependencies: missing,
	}
}

func instructionSection(f model.FieldDefinition, cfg model.ContextConfig) string {
	custom := f.Template()
	if custom == "" {
		custom = strings.TrimSpace(cfg.Instruction(f.Name))
	}
	if custom == "" {
		custom = "none provided"
	}
	global := strings.TrimSpace(cfg.GlobalInstructions)
	if global == "" {
		global = "none provided"
	}
	return fmt.Sprintf("Custom instructions for %s: %s\nGlobal instructions: %s", f.Label(), custom, global)
}

func rowContextSection(f model.FieldDefinition, row model.Row, cfg model.ContextConfig) string {
	var lines []string
	for _, key := range row.Keys() {
		if key == f.Name {
			continue
		}
		if len(lines) == maxContextFields {
			break
		}
		label := cfg.Label(key)
		if label == "" {
			label = HumanizeColumn(key)
		}
		val := row.Value(key)
		if val == "" {
			val = "unknown"
		}
		lines = append(lines, label+": "+val)
	}
	if len(lines) == 0 {
		return "Row context (other fields): No additional context available"
	}
	return "Row context (other fields):\n" + strings.Join(lines, "\n")
}

func dependencySection(f model.FieldDefinition, row model.Row, existing map[string]model.CellResult) (string, []string) {
	missing := []string{}
	if len(f.Dependencies) == 0 {
		return "Dependency map: none declared", missing
	}
	parts := make([]string, 0, len(f.Dependencies))
	for _, dep := range f.Dependencies {
		if v, ok := DependencyValue(dep, row, existing); ok {
			parts = append(parts, dep+": "+v)
		} else {
			missing = append(missing, dep)
			parts = append(parts, dep+": <missing>")
		}
	}
	return "Dependency map: " + strings.Join(parts, "; "), missing
}

func neighborSection(f model.FieldDefinition, rowIndex, firstRow int, all []model.Row) string {
	window := f.Window()
	var lines []string
	for offset := -window; offset <= window; offset++ {
		i := rowIndex + offset
		local := i - firstRow
		if offset == 0 || local < 0 || local >= len(all) {
			continue
		}
		label := fmt.Sprintf("Row %d", i+1)
		if v := all[local].Value(f.Name); v != "" {
			lines = append(lines, label+": "+v)
		} else {
			lines = append(lines, fmt.Sprintf("%s: (no value for %s)", label, f.Name))
		}
	}
	if len(lines) == 0 {
		return "Neighbor pattern map: No adjacent records available"
	}
	return fmt.Sprintf("Neighbor pattern map for %s:\n%s", f.Label(), strings.Join(lines, "\n"))
}

// HumanizeColumn turns a raw column name into a label: company_name and
// companyName both become "Company Name".
func HumanizeColumn(name string) string {
	var b strings.Builder
	prev := rune(0)
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(' ')
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			b.WriteRune(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	words := strings.Fields(b.String())
	return cases.Title(language.English, cases.NoLower).String(strings.Join(words, " "))
}
