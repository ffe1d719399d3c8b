// Package schema holds the standard HL7 segment/field/datatype/table
// catalogue merged with a mutable, copy-on-write workspace overlay.
package schema

// TableValue is one row of an HL7 table: a code and its human
// description.
type TableValue struct {
	Code        string
	Description string
}

// FieldInfo describes one 1-based field position within a segment.
type FieldInfo struct {
	Description      string
	Datatype         string
	Required         bool
	AllowedValues    []TableValue
	HasAllowedValues bool // distinguishes "no table" from an explicit empty table
	StandardTable    bool // true if the table came from the standard catalogue, not an overlay
}

// SegmentInfo describes one segment name.
type SegmentInfo struct {
	Name        string
	Description string
	Fields      map[int]FieldInfo
}

// FieldAt returns the field info for a 1-based index, if declared.
func (s SegmentInfo) FieldAt(index int) (FieldInfo, bool) {
	f, ok := s.Fields[index]
	return f, ok
}
