package model

// ContextConfig carries session-wide instructions for directive assembly.
type ContextConfig struct {
	// GlobalInstructions is included in every directive.
	GlobalInstructions string `json:"globalInstructions,omitempty" yaml:"global_instructions" mapstructure:"global_instructions"`

	// RowContextMappings maps raw column names to context labels.
	RowContextMappings map[string]string `json:"rowContextMappings,omitempty" yaml:"row_context_mappings" mapstructure:"row_context_mappings"`

	// ColumnInstructions holds per-field instruction overrides, used when the
	// field definition has no prompt template of its own.
	ColumnInstructions map[string]string `json:"columnInstructions,omitempty" yaml:"column_instructions" mapstructure:"column_instructions"`
}

// NameColumn is the synthetic column that carries a contact name.
const NameColumn = "_name"

// DefaultContextConfig returns the lead-enrichment defaults.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		GlobalInstructions: "Extract lead enrichment details using email as the primary identifier.",
		RowContextMappings: map[string]string{
			"email":    "Email",
			NameColumn: "Person Name",
		},
		ColumnInstructions: map[string]string{},
	}
}

// Label returns the mapped context label for a column, or "".
func (c ContextConfig) Label(column string) string {
	if c.RowContextMappings == nil {
		return ""
	}
	return c.RowContextMappings[column]
}

// Instruction returns the configured override for a field, or "".
func (c ContextConfig) Instruction(field string) string {
	if c.ColumnInstructions == nil {
		return ""
	}
	return c.ColumnInstructions[field]
}
