// Package parser builds an ast.Message from raw HL7 v2 text. It is
// lenient: malformed segment lines produce a ParseError rather than
// aborting the whole parse, so the rest of the document still resolves.
package parser

import (
	"github.com/cybersorcerer/hl7-ls/internal/hl7/ast"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/lexer"
)

// ParseError describes one segment line the parser could not recognize.
type ParseError struct {
	Message string
	Span    ast.Span
}

func (e ParseError) Error() string { return e.Message }

// Parse tokenizes and structures text into a Message, tolerating
// malformed segment lines by recording a ParseError for each and still
// emitting a best-effort Segment node for it.
func Parse(text string) (*ast.Message, []ParseError) {
	lines := splitLines(text)
	delims := deriveDelimiters(text, lines)

	msg := &ast.Message{Delimiters: delims, Text: text}
	var errs []ParseError
	occurrences := make(map[string]int)

	for _, line := range lines {
		if line.Start == line.End {
			continue
		}
		seg, err := parseSegmentLine(text, line, delims, occurrences)
		if err != nil {
			errs = append(errs, *err)
		}
		msg.Segments = append(msg.Segments, seg)
	}

	return msg, errs
}

type lineSpan struct {
	Start, End int
}

// splitLines splits text into segment lines on \r\n, \r, or \n,
// tolerating any mixture within one document. Empty lines (consecutive
// terminators) are kept as zero-length spans and skipped by the caller.
func splitLines(text string) []lineSpan {
	var lines []lineSpan
	start := 0
	i := 0
	for i < len(text) {
		switch text[i] {
		case '\r':
			lines = append(lines, lineSpan{start, i})
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			i++
			start = i
		case '\n':
			lines = append(lines, lineSpan{start, i})
			i++
			start = i
		default:
			i++
		}
	}
	if start < len(text) {
		lines = append(lines, lineSpan{start, len(text)})
	}
	return lines
}

var segmentNamePattern = func(b []byte) bool {
	if len(b) != 3 {
		return false
	}
	if b[0] < 'A' || b[0] > 'Z' {
		return false
	}
	for _, c := range b[1:] {
		isUpper := c >= 'A' && c <= 'Z'
		isDigit := c >= '0' && c <= '9'
		if !isUpper && !isDigit {
			return false
		}
	}
	return true
}

// deriveDelimiters reads MSH.1/MSH.2 from the first non-empty segment
// line if it names MSH; otherwise it falls back to the HL7 default
// "|^~\&". Missing characters within a too-short MSH.2 fall back to
// their individual defaults.
func deriveDelimiters(text string, lines []lineSpan) ast.Delimiters {
	def := ast.Default()
	for _, line := range lines {
		if line.Start == line.End {
			continue
		}
		if line.End-line.Start < 4 || text[line.Start:line.Start+3] != "MSH" {
			return def
		}

		field := text[line.Start+3]
		delims := ast.Delimiters{Field: field, Component: def.Component, Repetition: def.Repetition, Escape: def.Escape, Subcomponent: def.Subcomponent}

		encStart := line.Start + 4
		encEnd := encStart
		for encEnd < line.End && text[encEnd] != field {
			encEnd++
		}
		enc := text[encStart:encEnd]
		if len(enc) > 0 {
			delims.Component = enc[0]
		}
		if len(enc) > 1 {
			delims.Repetition = enc[1]
		}
		if len(enc) > 2 {
			delims.Escape = enc[2]
		}
		if len(enc) > 3 {
			delims.Subcomponent = enc[3]
		}
		return delims
	}
	return def
}

func parseSegmentLine(text string, line lineSpan, delims ast.Delimiters, occurrences map[string]int) (ast.Segment, *ParseError) {
	if line.End-line.Start < 3 {
		return ast.Segment{Span: ast.Span{Start: line.Start, End: line.End}, Malformed: true},
			&ParseError{Message: "line is too short to be a segment", Span: ast.Span{Start: line.Start, End: line.End}}
	}

	name := text[line.Start : line.Start+3]
	nameSpan := ast.Span{Start: line.Start, End: line.Start + 3}
	if !segmentNamePattern([]byte(name)) {
		return ast.Segment{Span: ast.Span{Start: line.Start, End: line.End}, NameSpan: nameSpan, Name: name, Malformed: true},
			&ParseError{Message: "unrecognized segment name `" + name + "`", Span: ast.Span{Start: line.Start, End: line.End}}
	}

	occurrences[name]++
	seg := ast.Segment{
		Span:       ast.Span{Start: line.Start, End: line.End},
		NameSpan:   nameSpan,
		Name:       name,
		Occurrence: occurrences[name],
	}

	if name == "MSH" {
		seg.Fields = parseMSHFields(text, line, delims)
		return seg, nil
	}

	fieldsStart := line.Start + 3
	toks := lexer.New(text, fieldsStart, line.End, delims).Tokens()
	groups := splitGroups(toks, lexer.FieldSep, fieldsStart, line.End)
	for i, g := range groups {
		if i == 0 {
			continue // boundary before field 1, not a field itself
		}
		seg.Fields = append(seg.Fields, buildField(text, i, g, delims))
	}
	return seg, nil
}

// parseMSHFields builds MSH.1 (the field separator byte) and MSH.2 (the
// four encoding characters, kept atomic) before lexing MSH.3 onward
// normally.
func parseMSHFields(text string, line lineSpan, delims ast.Delimiters) []ast.Field {
	var fields []ast.Field

	f1Span := ast.Span{Start: line.Start + 3, End: line.Start + 4}
	if f1Span.End > line.End {
		f1Span.End = line.End
	}
	fields = append(fields, atomicField(1, f1Span, text))

	encStart := line.Start + 4
	if encStart > line.End {
		return fields
	}
	encEnd := encStart
	for encEnd < line.End && text[encEnd] != delims.Field {
		encEnd++
	}
	f2Span := ast.Span{Start: encStart, End: encEnd}
	fields = append(fields, atomicField(2, f2Span, text))

	if encEnd >= line.End {
		return fields
	}
	// encEnd is positioned on the field separator following MSH.2.
	rest := encEnd + 1
	toks := lexer.New(text, rest, line.End, delims).Tokens()
	groups := splitGroups(toks, lexer.FieldSep, rest, line.End)
	for i, g := range groups {
		// rest already points past the separator following MSH.2, so
		// groups[0] is MSH.3 itself, not a pre-field boundary.
		fields = append(fields, buildField(text, i+3, g, delims))
	}
	return fields
}

func atomicField(index int, span ast.Span, text string) ast.Field {
	leaf := leafOf(span, text)
	return ast.Field{
		Span:  span,
		Index: index,
		Repetitions: []ast.Repetition{{
			Span:       span,
			Text:       leaf,
			Components: []ast.Component{{Span: span, Text: leaf, Subcomponents: []ast.Subcomponent{{Span: span, Text: leaf}}}},
		}},
	}
}

func leafOf(span ast.Span, text string) string {
	if span.Start > len(text) || span.End > len(text) || span.Start > span.End {
		return ""
	}
	return text[span.Start:span.End]
}

type group struct {
	Span   ast.Span
	Tokens []lexer.Token
}

// splitGroups partitions tokens into groups separated by tokens of type
// sep, producing len(separatorCount)+1 groups including empty ones
// between adjacent separators. Tokens of other delimiter types remain in
// the group for a later, deeper split pass.
func splitGroups(tokens []lexer.Token, sep lexer.TokenType, runStart, runEnd int) []group {
	var groups []group
	groupStart := runStart
	var current []lexer.Token
	for _, tok := range tokens {
		if tok.Type == lexer.EOF {
			continue
		}
		if tok.Type == sep {
			groups = append(groups, group{Span: ast.Span{Start: groupStart, End: tok.Start}, Tokens: current})
			groupStart = tok.End
			current = nil
			continue
		}
		current = append(current, tok)
	}
	groups = append(groups, group{Span: ast.Span{Start: groupStart, End: runEnd}, Tokens: current})
	return groups
}

func buildField(text string, index int, g group, delims ast.Delimiters) ast.Field {
	field := ast.Field{Span: g.Span, Index: index}
	repGroups := splitGroups(g.Tokens, lexer.RepSep, g.Span.Start, g.Span.End)
	for _, rg := range repGroups {
		field.Repetitions = append(field.Repetitions, buildRepetition(text, rg, delims))
	}
	return field
}

func buildRepetition(text string, g group, delims ast.Delimiters) ast.Repetition {
	rep := ast.Repetition{Span: g.Span, Text: leafOf(g.Span, text)}
	compGroups := splitGroups(g.Tokens, lexer.CompSep, g.Span.Start, g.Span.End)
	for _, cg := range compGroups {
		rep.Components = append(rep.Components, buildComponent(text, cg))
	}
	return rep
}

func buildComponent(text string, g group) ast.Component {
	comp := ast.Component{Span: g.Span, Text: leafOf(g.Span, text)}
	subGroups := splitGroups(g.Tokens, lexer.SubSep, g.Span.Start, g.Span.End)
	for _, sg := range subGroups {
		comp.Subcomponents = append(comp.Subcomponents, ast.Subcomponent{Span: sg.Span, Text: leafOf(sg.Span, text)})
	}
	return comp
}
