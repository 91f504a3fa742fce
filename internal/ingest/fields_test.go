package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestParseFieldsYAML_File(t *testing.T) {
	in := `
fields:
  - name: company
    display_name: Company
    description: Employer of the lead
  - name: industry
    type: string
    dependencies: [company]
    prompt_template: Use the NAICS sector name.
    adjacent_window: 2
context:
  global_instructions: Be precise.
  row_context_mappings:
    email: Email
  column_instructions:
    company: Prefer the legal name.
`
	ff, err := ParseFieldsYAML([]byte(in))
	require.NoError(t, err)
	require.Len(t, ff.Fields, 2)

	assert.Equal(t, "Company", ff.Fields[0].Label())
	assert.Equal(t, []string{"company"}, ff.Fields[1].Dependencies)
	assert.Equal(t, "Use the NAICS sector name.", ff.Fields[1].Template())
	assert.Equal(t, 2, ff.Fields[1].Window())
	assert.Equal(t, model.FieldTypeString, ff.Fields[1].ExpectedType())

	require.NotNil(t, ff.Context)
	assert.Equal(t, "Be precise.", ff.Context.GlobalInstructions)
	assert.Equal(t, "Email", ff.Context.Label("email"))
	assert.Equal(t, "Prefer the legal name.", ff.Context.Instruction("company"))
}

func TestParseFieldsYAML_List(t *testing.T) {
	ff, err := ParseFieldsYAML([]byte("- name: company\n- name: title\n"))
	require.NoError(t, err)
	assert.Len(t, ff.Fields, 2)
	assert.Nil(t, ff.Context)
}

func TestParseFieldsJSON(t *testing.T) {
	ff, err := ParseFieldsJSON([]byte(`{"fields":[{"name":"industry","displayName":"Industry","promptTemplate":"NAICS"}]}`))
	require.NoError(t, err)
	require.Len(t, ff.Fields, 1)
	assert.Equal(t, "Industry", ff.Fields[0].Label())
	assert.Equal(t, "NAICS", ff.Fields[0].Template())

	ff, err = ParseFieldsJSON([]byte(`[{"name":"a"},{"name":"b","dependencies":["a"]}]`))
	require.NoError(t, err)
	assert.Len(t, ff.Fields, 2)

	_, err = ParseFieldsJSON([]byte(`{"fields":[{"name":"a","bogus":1}]}`))
	assert.Error(t, err)
}

func TestParseFields_Invalid(t *testing.T) {
	_, err := ParseFieldsYAML([]byte(""))
	assert.ErrorContains(t, err, "empty")

	_, err = ParseFieldsYAML([]byte("fields: []\n"))
	assert.ErrorContains(t, err, "no field definitions")

	_, err = ParseFieldsYAML([]byte("- description: nameless\n"))
	assert.ErrorContains(t, err, "definition 1 has no name")

	_, err = ParseFieldsJSON([]byte("   "))
	assert.ErrorContains(t, err, "empty")
}

func TestLoadFields(t *testing.T) {
	ff, err := LoadFields(writeFile(t, "fields.yml", "- name: company\n"))
	require.NoError(t, err)
	assert.Equal(t, "company", ff.Fields[0].Name)

	ff, err = LoadFields(writeFile(t, "fields.json", `[{"name":"title"}]`))
	require.NoError(t, err)
	assert.Equal(t, "title", ff.Fields[0].Name)

	_, err = LoadFields(writeFile(t, "fields.txt", "name: x"))
	assert.ErrorContains(t, err, "unsupported file extension")
}
