package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/enrich-cli/internal/model"
)

// FieldFile is the on-disk shape of a field definition file. A bare list of
// fields is accepted too.
type FieldFile struct {
	Fields  []model.FieldDefinition `json:"fields" yaml:"fields"`
	Context *model.ContextConfig    `json:"context,omitempty" yaml:"context"`
}

// LoadFields reads field definitions from a YAML or JSON file.
func LoadFields(path string) (*FieldFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fields: read %s", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseFieldsJSON(data)
	case ".yaml", ".yml":
		return ParseFieldsYAML(data)
	default:
		return nil, eris.Errorf("fields: unsupported file extension %q", ext)
	}
}

// ParseFieldsYAML decodes YAML field definitions.
func ParseFieldsYAML(data []byte) (*FieldFile, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, eris.Wrap(err, "fields: parse yaml")
	}
	if len(node.Content) == 0 {
		return nil, eris.New("fields: file is empty")
	}

	var ff FieldFile
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		if err := root.Decode(&ff.Fields); err != nil {
			return nil, eris.Wrap(err, "fields: decode field list")
		}
	} else if err := root.Decode(&ff); err != nil {
		return nil, eris.Wrap(err, "fields: decode field file")
	}
	return checkFields(&ff)
}

// ParseFieldsJSON decodes JSON field definitions. JSON keys use the API
// spelling (displayName, promptTemplate).
func ParseFieldsJSON(data []byte) (*FieldFile, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, eris.New("fields: file is empty")
	}

	var ff FieldFile
	if trimmed[0] == '[' {
		if err := decodeJSON(trimmed, &ff.Fields); err != nil {
			return nil, eris.Wrap(err, "fields: decode field list")
		}
	} else if err := decodeJSON(trimmed, &ff); err != nil {
		return nil, eris.Wrap(err, "fields: decode field file")
	}
	return checkFields(&ff)
}

func checkFields(ff *FieldFile) (*FieldFile, error) {
	if len(ff.Fields) == 0 {
		return nil, eris.New("fields: no field definitions")
	}
	for i, f := range ff.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, eris.Errorf("fields: definition %d has no name", i+1)
		}
	}
	return ff, nil
}
