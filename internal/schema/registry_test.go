package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	std, err := Standard()
	require.NoError(t, err)
	return NewRegistry(std)
}

func TestLookupSegmentFromStandard(t *testing.T) {
	r := newTestRegistry(t)
	seg, ok := r.LookupSegment("PID")
	require.True(t, ok)
	assert.Equal(t, "Patient Identification", seg.Description)

	f, ok := seg.FieldAt(5)
	require.True(t, ok)
	assert.Equal(t, "XPN", f.Datatype)
	assert.True(t, f.Required)
}

func TestAllowedValuesFromStandardTable(t *testing.T) {
	r := newTestRegistry(t)
	values, isStandard, ok := r.AllowedValues("PV1", 2)
	require.True(t, ok)
	assert.True(t, isStandard)
	assert.NotEmpty(t, values)
}

func TestOverlayOverridesFieldAttributes(t *testing.T) {
	r := newTestRegistry(t)
	desc := "Inpatient/Outpatient override"
	required := true
	table := [][2]string{{"I", "Inpatient"}, {"O", "Outpatient"}}
	ws := WorkspaceSchema{
		Name: "test",
		Segments: []SegmentOverlay{{
			Name: "PV1",
			Fields: map[string]FieldOverlay{
				"2": {Description: &desc, Required: &required, AllowedValues: &table},
			},
		}},
	}

	affected := r.Apply("/ws/a.hl7v.toml", ws)
	assert.Equal(t, []string{"PV1"}, affected)

	f, ok := r.LookupField("PV1", 2)
	require.True(t, ok)
	assert.Equal(t, desc, f.Description)
	assert.True(t, f.Required)

	values, isStandard, ok := r.AllowedValues("PV1", 2)
	require.True(t, ok)
	assert.False(t, isStandard)
	assert.Equal(t, []TableValue{{Code: "I", Description: "Inpatient"}, {Code: "O", Description: "Outpatient"}}, values)

	// Unrelated fields of the same segment keep their standard info.
	f1, ok := r.LookupField("PV1", 1)
	require.True(t, ok)
	assert.Equal(t, "Set ID - PV1", f1.Description)
}

func TestOverlayEmptyAllowedValuesDisablesTable(t *testing.T) {
	r := newTestRegistry(t)
	empty := [][2]string{}
	ws := WorkspaceSchema{
		Segments: []SegmentOverlay{{
			Name:   "PV1",
			Fields: map[string]FieldOverlay{"2": {AllowedValues: &empty}},
		}},
	}
	r.Apply("/ws/b.hl7v.toml", ws)

	_, _, ok := r.AllowedValues("PV1", 2)
	assert.False(t, ok)
}

func TestRemoveOverlayRestoresStandard(t *testing.T) {
	r := newTestRegistry(t)
	desc := "Overridden"
	ws := WorkspaceSchema{
		Segments: []SegmentOverlay{{
			Name:   "PID",
			Fields: map[string]FieldOverlay{"1": {Description: &desc}},
		}},
	}
	r.Apply("/ws/c.hl7v.toml", ws)
	f, _ := r.LookupField("PID", 1)
	assert.Equal(t, desc, f.Description)

	affected := r.Remove("/ws/c.hl7v.toml")
	assert.Equal(t, []string{"PID"}, affected)

	f, _ = r.LookupField("PID", 1)
	assert.Equal(t, "Set ID - PID", f.Description)
}

func TestOverlayAddsUnknownSegment(t *testing.T) {
	r := newTestRegistry(t)
	ws := WorkspaceSchema{
		Segments: []SegmentOverlay{{Name: "ZPD", Description: "Local patient segment"}},
	}
	r.Apply("/ws/d.hl7v.toml", ws)

	seg, ok := r.LookupSegment("ZPD")
	require.True(t, ok)
	assert.Equal(t, "Local patient segment", seg.Description)
}

func TestRegistrySnapshotIsStableDuringConcurrentApply(t *testing.T) {
	r := newTestRegistry(t)
	before := r.Snapshot()

	desc := "changed"
	r.Apply("/ws/e.hl7v.toml", WorkspaceSchema{
		Segments: []SegmentOverlay{{Name: "PID", Fields: map[string]FieldOverlay{"1": {Description: &desc}}}},
	})

	// The snapshot captured before Apply must not observe the mutation.
	beforeField := before["PID"].Fields[1]
	assert.Equal(t, "Set ID - PID", beforeField.Description)
}

func TestParseWorkspaceSchemaRoundtrip(t *testing.T) {
	data := []byte(`
name = "local"

[[segments]]
name = "MSH"
description = "Message Header"

[segments.fields.1]
description = "Field Separator"
datatype = "ST"
`)
	ws, warnings, err := ParseWorkspaceSchema(data)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "local", ws.Name)
	require.Len(t, ws.Segments, 1)
	assert.Equal(t, "MSH", ws.Segments[0].Name)
}

func TestParseWorkspaceSchemaWarnsOnUnknownKey(t *testing.T) {
	data := []byte(`
name = "local"
disable_default = true
`)
	_, warnings, err := ParseWorkspaceSchema(data)
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
}
