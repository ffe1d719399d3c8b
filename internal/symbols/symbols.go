// Package symbols implements the Document Symbols feature handler: a
// hierarchical outline with one symbol per segment occurrence, numbered
// when a segment name repeats, and one child symbol per field present in
// that occurrence.
package symbols

import (
	"fmt"

	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/ast"
	"github.com/cybersorcerer/hl7-ls/internal/position"
	"github.com/cybersorcerer/hl7-ls/internal/schema"
)

// Kind mirrors the subset of LSP SymbolKind this handler emits.
type Kind int

const (
	KindNamespace Kind = 3 // segment
	KindField     Kind = 8 // field
)

// Symbol is one node of the outline; Children is nil for leaves.
type Symbol struct {
	Name     string
	Detail   string
	Kind     Kind
	Span     ast.Span
	Children []Symbol
}

// Provider answers document symbol queries against the Schema Registry.
type Provider struct {
	registry *schema.Registry
}

// NewProvider builds a Provider over registry.
func NewProvider(registry *schema.Registry) *Provider {
	return &Provider{registry: registry}
}

// Symbols builds the outline for doc. Returns nil if doc has no parsed
// tree.
func (p *Provider) Symbols(doc *document.Document) []Symbol {
	if doc.Tree == nil {
		return nil
	}

	counts := make(map[string]int)
	out := make([]Symbol, 0, len(doc.Tree.Segments))
	for _, seg := range doc.Tree.Segments {
		counts[seg.Name]++
		out = append(out, p.segmentSymbol(seg, counts[seg.Name]))
	}
	return out
}

func (p *Provider) segmentSymbol(seg ast.Segment, occurrenceSeen int) Symbol {
	name := seg.Name
	if occurrenceSeen > 1 {
		name = fmt.Sprintf("%s %d", seg.Name, occurrenceSeen)
	}

	segInfo, hasSeg := p.registry.LookupSegment(seg.Name)
	detail := ""
	if hasSeg {
		detail = segInfo.Description
	}

	sym := Symbol{Name: name, Detail: detail, Kind: KindNamespace, Span: seg.Span}
	sym.Children = make([]Symbol, 0, len(seg.Fields))
	for _, f := range seg.Fields {
		sym.Children = append(sym.Children, p.fieldSymbol(seg.Name, f))
	}
	return sym
}

func (p *Provider) fieldSymbol(segName string, f ast.Field) Symbol {
	label := fmt.Sprintf("%s.%d", segName, f.Index)
	field, ok := p.registry.LookupField(segName, f.Index)
	detail := ""
	if ok {
		detail = field.Description
	}
	return Symbol{Name: label, Detail: detail, Kind: KindField, Span: f.Span}
}

// Range converts a Symbol's span to an LSP Range under encoding, for
// callers building the protocol-level DocumentSymbol tree.
func Range(text string, sym Symbol, encoding position.Encoding) position.Range {
	return position.ToRange(text, sym.Span, encoding)
}
