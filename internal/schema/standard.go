package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed standard.json
var standardJSON []byte

type rawFieldInfo struct {
	Description string `json:"description"`
	Datatype    string `json:"datatype"`
	Required    bool   `json:"required"`
	Table       string `json:"table"`
}

type rawSegmentInfo struct {
	Description string                  `json:"description"`
	Fields      map[string]rawFieldInfo `json:"fields"`
}

type rawCatalogue struct {
	Tables        map[string][][2]string    `json:"tables"`
	TriggerEvents map[string]string         `json:"triggerEvents"`
	Segments      map[string]rawSegmentInfo `json:"segments"`
}

var (
	standardOnce  sync.Once
	standard      map[string]SegmentInfo
	triggerEvents map[string]string
	standardErr   error
)

// Standard returns the baked-in HL7 segment/field/datatype/table
// catalogue, a representative subset of the full standard spanning the
// segments this server's features are demonstrated against. It is
// parsed once, from standard.json, and shared read-only thereafter.
func Standard() (map[string]SegmentInfo, error) {
	standardOnce.Do(func() {
		standard, triggerEvents, standardErr = parseCatalogue(standardJSON)
	})
	return standard, standardErr
}

// TriggerEvent returns the standard description of an HL7 trigger event
// code (the second component of MSH.9, e.g. "A01"), such as would be
// found in table 0003. It is kept separate from the per-field
// AllowedValues tables because a trigger event qualifies MSH.9's second
// component, not the field as a whole.
func TriggerEvent(code string) (string, bool) {
	if _, err := Standard(); err != nil {
		return "", false
	}
	desc, ok := triggerEvents[code]
	return desc, ok
}

func parseCatalogue(data []byte) (map[string]SegmentInfo, map[string]string, error) {
	var raw rawCatalogue
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("schema: parse standard catalogue: %w", err)
	}

	segments := make(map[string]SegmentInfo, len(raw.Segments))
	for name, rs := range raw.Segments {
		seg := SegmentInfo{Name: name, Description: rs.Description, Fields: make(map[int]FieldInfo, len(rs.Fields))}
		for idxStr, rf := range rs.Fields {
			var idx int
			if _, err := fmt.Sscanf(idxStr, "%d", &idx); err != nil {
				return nil, nil, fmt.Errorf("schema: segment %s has non-numeric field key %q", name, idxStr)
			}
			field := FieldInfo{
				Description: rf.Description,
				Datatype:    rf.Datatype,
				Required:    rf.Required,
			}
			if rf.Table != "" {
				rows, ok := raw.Tables[rf.Table]
				if !ok {
					return nil, nil, fmt.Errorf("schema: segment %s field %d references unknown table %q", name, idx, rf.Table)
				}
				field.HasAllowedValues = true
				field.StandardTable = true
				for _, row := range rows {
					field.AllowedValues = append(field.AllowedValues, TableValue{Code: row[0], Description: row[1]})
				}
			}
			seg.Fields[idx] = field
		}
		segments[name] = seg
	}
	return segments, raw.TriggerEvents, nil
}
