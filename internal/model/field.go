package model

import "strings"

// FieldType is the expected shape of an extracted value.
type FieldType string

// Supported expected value types.
const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeArray   FieldType = "array"
)

// DefaultAdjacentWindow is the neighbor window used when a field does not set one.
const DefaultAdjacentWindow = 1

// FieldDefinition describes one enrichable column. It is immutable once a
// session starts.
type FieldDefinition struct {
	Name         string    `json:"name" yaml:"name" jsonschema:"unique field key"`
	DisplayName  string    `json:"displayName,omitempty" yaml:"display_name" jsonschema:"human readable column name"`
	Description  string    `json:"description,omitempty" yaml:"description" jsonschema:"what the field should contain"`
	Type         FieldType `json:"type,omitempty" yaml:"type" jsonschema:"expected value type: string, number, boolean or array"`
	Dependencies []string  `json:"dependencies,omitempty" yaml:"dependencies" jsonschema:"names of fields or columns that must be known first"`

	// PromptTemplate overrides the column instruction from the context config.
	PromptTemplate *string `json:"promptTemplate,omitempty" yaml:"prompt_template" jsonschema:"custom instruction text for this field"`

	// AdjacentWindow is how many rows before and after are shown as
	// same-column pattern hints. Nil means DefaultAdjacentWindow.
	AdjacentWindow *int `json:"adjacentWindow,omitempty" yaml:"adjacent_window" jsonschema:"neighbor rows to surface on each side (default 1)"`
}

// Label returns the display name, falling back to the key.
func (f FieldDefinition) Label() string {
	if strings.TrimSpace(f.DisplayName) != "" {
		return f.DisplayName
	}
	return f.Name
}

// Window returns the effective neighbor window.
func (f FieldDefinition) Window() int {
	if f.AdjacentWindow == nil {
		return DefaultAdjacentWindow
	}
	if *f.AdjacentWindow < 0 {
		return 0
	}
	return *f.AdjacentWindow
}

// ExpectedType returns the declared type, defaulting to string.
func (f FieldDefinition) ExpectedType() FieldType {
	if f.Type == "" {
		return FieldTypeString
	}
	return f.Type
}

// Template returns the field's own instruction, or "" when unset.
func (f FieldDefinition) Template() string {
	if f.PromptTemplate == nil {
		return ""
	}
	return strings.TrimSpace(*f.PromptTemplate)
}

// FieldSet is an indexed, ordered collection of field definitions.
type FieldSet struct {
	Fields []FieldDefinition
	byName map[string]int
}

// NewFieldSet indexes fields by name. Later duplicates shadow earlier ones in
// the index; callers that care should check Duplicates.
func NewFieldSet(fields []FieldDefinition) *FieldSet {
	s := &FieldSet{
		Fields: fields,
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		s.byName[f.Name] = i
	}
	return s
}

// ByName returns the field with the given key, or nil if not present.
func (s *FieldSet) ByName(name string) *FieldDefinition {
	i, ok := s.byName[name]
	if !ok {
		return nil
	}
	return &s.Fields[i]
}

// Has reports whether a field with the given key exists.
func (s *FieldSet) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Names returns field keys in declaration order.
func (s *FieldSet) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Duplicates returns the keys declared more than once, in first-seen order.
func (s *FieldSet) Duplicates() []string {
	seen := make(map[string]int, len(s.Fields))
	var dups []string
	for _, f := range s.Fields {
		seen[f.Name]++
		if seen[f.Name] == 2 {
			dups = append(dups, f.Name)
		}
	}
	return dups
}
