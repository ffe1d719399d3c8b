// Package document holds the thread-safe store of open HL7 documents:
// their text, parsed tree, delimiters, and latest diagnostics (C2).
package document

import (
	"github.com/cybersorcerer/hl7-ls/internal/hl7/ast"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/parser"
)

// Severity mirrors the LSP DiagnosticSeverity values this server emits.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

// ByteRange is a [Start,End) byte offset range into a document's text.
type ByteRange struct {
	Start int
	End   int
}

// Diagnostic belongs to the Document it was produced from and is
// replaced wholesale on every re-analysis; it never mutates in place.
type Diagnostic struct {
	Range    ByteRange
	Severity Severity
	Code     string
	Message  string
}

// Source is the fixed diagnostic source string this server reports.
const Source = "hl7-ls"

// Edit is one content change to apply to a document's text, in byte
// offsets. A nil Range means "replace the whole document text", the
// byte-offset analogue of an LSP full-document sync event.
type Edit struct {
	Range *ByteRange
	Text  string
}

// Analysis is what an Analyzer produces for one version of a document's
// text: the parsed tree, any parse errors, and the diagnostics derived
// from it.
type Analysis struct {
	Tree        *ast.Message
	ParseErrors []parser.ParseError
	Diagnostics []Diagnostic
}

// Analyzer runs the Analysis Engine (C4) over document text. The
// Document Store depends only on this interface, not on the
// diagnostics package itself, so the dependency runs one way: C4
// imports C2's types, not the reverse.
type Analyzer interface {
	Analyze(text string) Analysis
}

// Document is an immutable snapshot of one open file at one version.
// The Store never mutates a Document in place; every edit builds and
// publishes a new one, so a snapshot taken before a mutation remains
// valid for as long as its holder keeps it.
type Document struct {
	URI         string
	Text        string
	Version     int
	Tree        *ast.Message
	Delimiters  ast.Delimiters
	ParseErrors []parser.ParseError
	Diagnostics []Diagnostic
}

func newDocument(uri, text string, version int, analysis Analysis) *Document {
	delims := ast.Default()
	if analysis.Tree != nil {
		delims = analysis.Tree.Delimiters
	}
	return &Document{
		URI:         uri,
		Text:        text,
		Version:     version,
		Tree:        analysis.Tree,
		Delimiters:  delims,
		ParseErrors: analysis.ParseErrors,
		Diagnostics: analysis.Diagnostics,
	}
}

func applyEdits(text string, edits []Edit) string {
	for _, e := range edits {
		if e.Range == nil {
			text = e.Text
			continue
		}
		start, end := e.Range.Start, e.Range.End
		if start < 0 {
			start = 0
		}
		if end > len(text) {
			end = len(text)
		}
		if start > end {
			start = end
		}
		text = text[:start] + e.Text + text[end:]
	}
	return text
}
