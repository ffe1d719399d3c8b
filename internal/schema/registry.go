package schema

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// Registry answers schema queries against the standard catalogue merged
// with the workspace overlay. Readers capture a shared-immutable
// snapshot at the start of an analysis; mutations publish a new
// snapshot rather than editing the current one in place, so a long-lived
// analysis is never disturbed by a concurrent overlay change.
type Registry struct {
	standard map[string]SegmentInfo

	mu       sync.Mutex // serializes Apply/Remove against each other
	overlays map[string]WorkspaceSchema
	snapshot atomic.Pointer[map[string]SegmentInfo]

	listenersMu sync.Mutex
	listeners   []func(affected []string)
}

// NewRegistry builds a Registry over the given standard catalogue with
// an empty overlay.
func NewRegistry(standard map[string]SegmentInfo) *Registry {
	r := &Registry{standard: standard, overlays: make(map[string]WorkspaceSchema)}
	merged := cloneStandard(standard)
	r.snapshot.Store(&merged)
	return r
}

func cloneStandard(standard map[string]SegmentInfo) map[string]SegmentInfo {
	out := make(map[string]SegmentInfo, len(standard))
	for name, seg := range standard {
		out[name] = seg
	}
	return out
}

// Snapshot returns the current merged view. The returned map must not be
// mutated; callers receive a reference, not a copy.
func (r *Registry) Snapshot() map[string]SegmentInfo {
	return *r.snapshot.Load()
}

// SegmentNames splits the current merged segment names into those
// present in the standard catalogue and those defined only by a
// workspace overlay, each sorted alphabetically. Used by completion to
// rank standard-first, workspace-defined second.
func (r *Registry) SegmentNames() (standardNames, workspaceNames []string) {
	for name := range r.Snapshot() {
		if _, ok := r.standard[name]; ok {
			standardNames = append(standardNames, name)
		} else {
			workspaceNames = append(workspaceNames, name)
		}
	}
	sort.Strings(standardNames)
	sort.Strings(workspaceNames)
	return standardNames, workspaceNames
}

// LookupSegment returns the merged segment info, overlay winning per
// attribute over the standard entry.
func (r *Registry) LookupSegment(name string) (SegmentInfo, bool) {
	seg, ok := r.Snapshot()[name]
	return seg, ok
}

// LookupField returns the merged field info for one segment/index pair.
func (r *Registry) LookupField(segment string, index int) (FieldInfo, bool) {
	seg, ok := r.LookupSegment(segment)
	if !ok {
		return FieldInfo{}, false
	}
	return seg.FieldAt(index)
}

// AllowedValues returns the effective table for one field, if any, and
// whether it came from the standard catalogue or a workspace overlay.
func (r *Registry) AllowedValues(segment string, index int) ([]TableValue, bool, bool) {
	f, ok := r.LookupField(segment, index)
	if !ok || !f.HasAllowedValues {
		return nil, false, false
	}
	return f.AllowedValues, f.StandardTable, true
}

// Subscribe registers a listener invoked after every Apply/Remove with
// the list of segment names whose merged info changed.
func (r *Registry) Subscribe(fn func(affected []string)) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) notify(affected []string) {
	if len(affected) == 0 {
		return
	}
	r.listenersMu.Lock()
	listeners := append([]func([]string){}, r.listeners...)
	r.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(affected)
	}
}

// Apply installs or replaces the overlay loaded from path, publishes a
// new merged snapshot, and returns the names of every segment that any
// loaded overlay touches (which includes every segment whose merged info
// changed).
func (r *Registry) Apply(path string, ws WorkspaceSchema) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.overlays[path] = ws
	merged, affected := r.rebuild()
	r.snapshot.Store(&merged)
	r.notify(affected)
	return affected
}

// Remove drops the overlay previously loaded from path, publishes a new
// merged snapshot, and returns the segment names whose merged info
// changed.
func (r *Registry) Remove(path string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed, ok := r.overlays[path]
	if !ok {
		return nil
	}
	delete(r.overlays, path)
	merged, _ := r.rebuild()
	seen := make(map[string]bool)
	var affected []string
	for _, so := range removed.Segments {
		if !seen[so.Name] {
			seen[so.Name] = true
			affected = append(affected, so.Name)
		}
	}
	r.snapshot.Store(&merged)
	r.notify(affected)
	return affected
}

// rebuild recomputes the full merged snapshot from the standard
// catalogue and every currently loaded overlay. Called with r.mu held.
func (r *Registry) rebuild() (map[string]SegmentInfo, []string) {
	merged := cloneStandard(r.standard)
	touched := make(map[string]bool)

	for _, ws := range r.overlays {
		for _, so := range ws.Segments {
			touched[so.Name] = true
			merged[so.Name] = mergeSegment(merged[so.Name], so)
		}
	}

	affected := make([]string, 0, len(touched))
	for name := range touched {
		affected = append(affected, name)
	}
	return merged, affected
}

func mergeSegment(base SegmentInfo, overlay SegmentOverlay) SegmentInfo {
	out := SegmentInfo{
		Name:        overlay.Name,
		Description: base.Description,
		Fields:      make(map[int]FieldInfo, len(base.Fields)+len(overlay.Fields)),
	}
	for idx, f := range base.Fields {
		out.Fields[idx] = f
	}
	if overlay.Description != "" {
		out.Description = overlay.Description
	}
	for idxStr, fo := range overlay.Fields {
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		out.Fields[idx] = mergeField(out.Fields[idx], fo)
	}
	return out
}

func mergeField(base FieldInfo, overlay FieldOverlay) FieldInfo {
	out := base
	if overlay.Description != nil {
		out.Description = *overlay.Description
	}
	if overlay.Required != nil {
		out.Required = *overlay.Required
	}
	if overlay.Datatype != nil {
		out.Datatype = *overlay.Datatype
	}
	if overlay.AllowedValues != nil {
		// Replaced wholesale, never unioned with the standard table. An
		// explicit empty list disables the table entirely.
		out.HasAllowedValues = len(*overlay.AllowedValues) > 0
		out.StandardTable = false
		out.AllowedValues = nil
		for _, row := range *overlay.AllowedValues {
			out.AllowedValues = append(out.AllowedValues, TableValue{Code: row[0], Description: row[1]})
		}
	}
	return out
}
