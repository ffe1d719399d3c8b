// Package selection implements the Selection Range feature handler: a
// chain from the innermost structural element under the cursor outward
// to the whole document, skipping any level the message does not
// parse down to.
package selection

import (
	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/ast"
	"github.com/cybersorcerer/hl7-ls/internal/position"
)

// Range is one link of a selection range chain: a span plus its parent,
// nil at the outermost link.
type Range struct {
	Span   ast.Span
	Parent *Range
}

// Provider answers selection range queries. It holds no state: selection
// ranges are computed purely from the parsed tree.
type Provider struct{}

// NewProvider builds a Provider.
func NewProvider() *Provider {
	return &Provider{}
}

// SelectionRange builds the innermost-to-outermost chain for offset in
// doc, or returns ok=false when offset resolves to nothing.
func (p *Provider) SelectionRange(doc *document.Document, offset int) (*Range, bool) {
	if doc.Tree == nil {
		return nil, false
	}
	path, ok := position.Resolve(doc.Tree, offset)
	if !ok {
		return nil, false
	}

	var chain []ast.Span
	if span, ok := spanAt(doc.Tree, path, 4); ok {
		chain = append(chain, span)
	}
	if span, ok := spanAt(doc.Tree, path, 3); ok {
		chain = appendIfNew(chain, span)
	}
	if span, ok := spanAt(doc.Tree, path, 2); ok {
		chain = appendIfNew(chain, span)
	}
	if span, ok := spanAt(doc.Tree, path, 1); ok {
		chain = appendIfNew(chain, span)
	}
	if span, ok := spanAt(doc.Tree, path, 0); ok {
		chain = appendIfNew(chain, span)
	}
	chain = appendIfNew(chain, documentSpan(doc.Tree))

	var head *Range
	for i := len(chain) - 1; i >= 0; i-- {
		head = &Range{Span: chain[i], Parent: head}
	}
	return head, true
}

// spanAt returns the span of path truncated to the given depth: 4 =
// subcomponent, 3 = component, 2 = repetition, 1 = field, 0 = segment.
func spanAt(msg *ast.Message, path position.StructuralPath, depth int) (ast.Span, bool) {
	truncated := path
	if depth < 4 {
		truncated.SubcomponentIndex = -1
	}
	if depth < 3 {
		truncated.ComponentIndex = -1
	}
	if depth < 2 {
		truncated.RepetitionIndex = -1
	}
	if depth < 1 {
		truncated.FieldIndex = -1
	}
	return position.SpanOf(msg, truncated)
}

func appendIfNew(chain []ast.Span, span ast.Span) []ast.Span {
	if len(chain) > 0 && chain[len(chain)-1] == span {
		return chain
	}
	return append(chain, span)
}

func documentSpan(msg *ast.Message) ast.Span {
	if len(msg.Segments) == 0 {
		return ast.Span{}
	}
	return ast.Span{Start: 0, End: len(msg.Text)}
}
