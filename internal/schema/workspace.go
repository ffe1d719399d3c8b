package schema

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// WorkspaceSchema is the parsed contents of one *.hl7v.toml file: a name
// and a list of segment overlays.
type WorkspaceSchema struct {
	Name     string           `toml:"name"`
	Segments []SegmentOverlay `toml:"segments"`
}

// SegmentOverlay adds or overrides one segment's description and a
// sparse set of its fields.
type SegmentOverlay struct {
	Name        string                  `toml:"name"`
	Description string                  `toml:"description"`
	Fields      map[string]FieldOverlay `toml:"fields"`
}

// FieldOverlay overrides one field. Pointer fields distinguish "not set"
// from a zero value; AllowedValues is a pointer to a slice so an
// explicit empty table ("allowed_values = []") can be told apart from an
// absent one.
type FieldOverlay struct {
	Description   *string      `toml:"description"`
	Required      *bool        `toml:"required"`
	Datatype      *string      `toml:"datatype"`
	AllowedValues *[][2]string `toml:"allowed_values"`
}

// ParseWorkspaceSchema decodes a *.hl7v.toml file's contents. Unknown
// keys produce a warning, not a parse failure - the rest of the document
// still takes effect, per the workspace schema file's documented
// lifecycle.
func ParseWorkspaceSchema(data []byte) (WorkspaceSchema, []string, error) {
	var warnings []string

	strict := toml.NewDecoder(bytes.NewReader(data))
	strict.DisallowUnknownFields()
	var probe WorkspaceSchema
	if err := strict.Decode(&probe); err != nil {
		warnings = append(warnings, err.Error())
	}

	var ws WorkspaceSchema
	if err := toml.Unmarshal(data, &ws); err != nil {
		return WorkspaceSchema{}, warnings, fmt.Errorf("schema: parse workspace schema: %w", err)
	}
	return ws, warnings, nil
}
