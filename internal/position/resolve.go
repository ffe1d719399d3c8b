package position

import (
	"sort"

	"github.com/cybersorcerer/hl7-ls/internal/hl7/ast"
)

// StructuralPath identifies one element of a parsed message: a segment,
// and optionally the field/repetition/component/subcomponent it
// contains. Absent deeper levels are -1. Repetition/Component/
// Subcomponent indices are 1-based, matching HL7 convention; FieldIndex
// is the field's own 1-based index (MSH.1/MSH.2 included).
type StructuralPath struct {
	SegmentIndex      int
	SegmentName       string
	FieldIndex        int
	RepetitionIndex   int
	ComponentIndex    int
	SubcomponentIndex int
}

func emptyPath() StructuralPath {
	return StructuralPath{FieldIndex: -1, RepetitionIndex: -1, ComponentIndex: -1, SubcomponentIndex: -1}
}

// qualifies implements the "cursor on a delimiter selects the following
// structural element" policy: a non-empty span qualifies when offset lies
// before its end; a zero-length span (an empty element sitting exactly at
// a delimiter boundary) qualifies when offset is at or before its
// position, so an offset on the delimiter just ahead of it selects it. Spans
// within one level are non-overlapping and increasing, so this predicate
// is monotonic in index for a fixed offset and single-pass/binary search
// both find the first qualifying element.
func qualifies(span ast.Span, offset int) bool {
	if span.Start == span.End {
		return offset <= span.Start
	}
	return offset < span.End
}

// locate returns the index of the first of n spans that qualifies for
// offset, or the last index if offset lies beyond every span, or -1 if
// n is zero.
func locate(n int, spanAt func(int) ast.Span, offset int) int {
	for i := 0; i < n; i++ {
		if qualifies(spanAt(i), offset) {
			return i
		}
	}
	if n == 0 {
		return -1
	}
	return n - 1
}

// Resolve converts a byte offset into a StructuralPath by binary
// searching the message's segments, then descending as far as the
// parsed structure goes.
func Resolve(msg *ast.Message, offset int) (StructuralPath, bool) {
	if len(msg.Segments) == 0 {
		return StructuralPath{}, false
	}

	segIdx := sort.Search(len(msg.Segments), func(i int) bool {
		return qualifies(msg.Segments[i].Span, offset)
	})
	if segIdx == len(msg.Segments) {
		segIdx = len(msg.Segments) - 1
	}
	seg := msg.Segments[segIdx]

	path := emptyPath()
	path.SegmentIndex = segIdx
	path.SegmentName = seg.Name

	if len(seg.Fields) == 0 {
		return path, true
	}
	fi := locate(len(seg.Fields), func(i int) ast.Span { return seg.Fields[i].Span }, offset)
	if fi < 0 {
		return path, true
	}
	field := seg.Fields[fi]
	path.FieldIndex = field.Index

	if len(field.Repetitions) == 0 {
		return path, true
	}
	ri := locate(len(field.Repetitions), func(i int) ast.Span { return field.Repetitions[i].Span }, offset)
	if ri < 0 {
		return path, true
	}
	rep := field.Repetitions[ri]
	path.RepetitionIndex = ri + 1

	if len(rep.Components) == 0 {
		return path, true
	}
	ci := locate(len(rep.Components), func(i int) ast.Span { return rep.Components[i].Span }, offset)
	if ci < 0 {
		return path, true
	}
	comp := rep.Components[ci]
	path.ComponentIndex = ci + 1

	if len(comp.Subcomponents) == 0 {
		return path, true
	}
	si := locate(len(comp.Subcomponents), func(i int) ast.Span { return comp.Subcomponents[i].Span }, offset)
	if si >= 0 {
		path.SubcomponentIndex = si + 1
	}
	return path, true
}

// SpanOf is the inverse of Resolve: it returns the byte span of the
// element a StructuralPath identifies, descending exactly as far as the
// path specifies.
func SpanOf(msg *ast.Message, path StructuralPath) (ast.Span, bool) {
	if path.SegmentIndex < 0 || path.SegmentIndex >= len(msg.Segments) {
		return ast.Span{}, false
	}
	seg := msg.Segments[path.SegmentIndex]
	if path.FieldIndex < 0 {
		return seg.Span, true
	}

	field, ok := seg.FieldAt(path.FieldIndex)
	if !ok {
		return ast.Span{}, false
	}
	if path.RepetitionIndex < 0 {
		return field.Span, true
	}
	if path.RepetitionIndex < 1 || path.RepetitionIndex > len(field.Repetitions) {
		return ast.Span{}, false
	}
	rep := field.Repetitions[path.RepetitionIndex-1]
	if path.ComponentIndex < 0 {
		return rep.Span, true
	}
	if path.ComponentIndex < 1 || path.ComponentIndex > len(rep.Components) {
		return ast.Span{}, false
	}
	comp := rep.Components[path.ComponentIndex-1]
	if path.SubcomponentIndex < 0 {
		return comp.Span, true
	}
	if path.SubcomponentIndex < 1 || path.SubcomponentIndex > len(comp.Subcomponents) {
		return ast.Span{}, false
	}
	return comp.Subcomponents[path.SubcomponentIndex-1].Span, true
}
