// Package ast describes the structural tree an HL7 v2 message is parsed
// into: a sequence of Segments, each holding Fields, each holding
// Repetitions, each holding Components, each holding Subcomponents.
package ast

// Span is a byte range [Start, End) into the document text that produced
// this node. Spans are non-overlapping within a level and monotonically
// increasing, per the parse tree invariant.
type Span struct {
	Start int
	End   int
}

// Contains reports whether offset falls within the span, including its
// start boundary and excluding its end boundary - except for a
// zero-length span, which contains exactly its own offset.
func (s Span) Contains(offset int) bool {
	if s.Start == s.End {
		return offset == s.Start
	}
	return offset >= s.Start && offset < s.End
}

// Delimiters is the 5-tuple of characters that separate HL7 structural
// levels, declared by MSH.1/MSH.2 of the first segment.
type Delimiters struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// Default returns the delimiter set used when a document is empty or its
// first segment does not declare one: "|^~\&".
func Default() Delimiters {
	return Delimiters{
		Field:        '|',
		Component:    '^',
		Repetition:   '~',
		Escape:       '\\',
		Subcomponent: '&',
	}
}

// Subcomponent is a leaf node: the smallest addressable unit of an HL7
// field.
type Subcomponent struct {
	Span Span
	Text string
}

// Component holds one or more subcomponents.
type Component struct {
	Span          Span
	Text          string
	Subcomponents []Subcomponent
}

// HasSubcomponents reports whether this component was split on more than
// one subcomponent.
func (c Component) HasSubcomponents() bool {
	return len(c.Subcomponents) > 1
}

// Repetition holds one or more components; a field with a single
// repetition is the common case.
type Repetition struct {
	Span       Span
	Text       string
	Components []Component
}

// HasComponents reports whether this repetition was split on more than
// one component.
func (r Repetition) HasComponents() bool {
	return len(r.Components) > 1
}

// IsEmpty reports whether the repetition carries no text.
func (r Repetition) IsEmpty() bool {
	return r.Text == ""
}

// Field holds one or more repetitions of a segment. Index is the 1-based
// field number within its segment (MSH.1 and MSH.2 included).
type Field struct {
	Span       Span
	Index      int
	Repetitions []Repetition
}

// Text returns the raw field text spanning every repetition.
func (f Field) Text(doc string) string {
	if f.Span.Start > len(doc) || f.Span.End > len(doc) || f.Span.Start > f.Span.End {
		return ""
	}
	return doc[f.Span.Start:f.Span.End]
}

// IsEmpty reports whether every repetition of the field is empty.
func (f Field) IsEmpty() bool {
	for _, r := range f.Repetitions {
		if !r.IsEmpty() {
			return false
		}
	}
	return true
}

// HasRepeats reports whether the field was split on more than one
// repetition separator.
func (f Field) HasRepeats() bool {
	return len(f.Repetitions) > 1
}

// Segment is one line of an HL7 message: a 3-character name followed by
// its fields. Occurrence is the 1-based count of segments with this name
// seen so far in the message (for disambiguating repeated segments like
// OBX).
type Segment struct {
	Span       Span
	NameSpan   Span
	Name       string
	Occurrence int
	Fields     []Field
	Malformed  bool
}

// FieldAt returns the field with the given 1-based index, if present.
func (s Segment) FieldAt(index int) (Field, bool) {
	for _, f := range s.Fields {
		if f.Index == index {
			return f, true
		}
	}
	return Field{}, false
}

// Message is the full parse tree for a document plus the delimiters used
// to produce it.
type Message struct {
	Segments   []Segment
	Delimiters Delimiters
	Text       string
}

// SegmentsNamed returns every segment with the given name, in document
// order.
func (m Message) SegmentsNamed(name string) []Segment {
	var out []Segment
	for _, seg := range m.Segments {
		if seg.Name == name {
			out = append(out, seg)
		}
	}
	return out
}

// First returns the first segment with the given name.
func (m Message) First(name string) (Segment, bool) {
	for _, seg := range m.Segments {
		if seg.Name == name {
			return seg, true
		}
	}
	return Segment{}, false
}
