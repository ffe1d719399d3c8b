// Package completion implements the Completion feature handler (C5):
// segment names at the start of a line, allowed-value codes inside a
// field whose effective schema declares a table. No trigger characters
// are required; invocation is always explicit or by client heuristic.
package completion

import (
	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/position"
	"github.com/cybersorcerer/hl7-ls/internal/schema"
)

// Kind distinguishes the two shapes of completion this handler offers.
type Kind int

const (
	KindSegment Kind = iota
	KindValue
)

// Item is one completion candidate.
type Item struct {
	Label  string
	Detail string
	Kind   Kind
}

// Provider answers completion queries against the Schema Registry.
type Provider struct {
	registry *schema.Registry
}

// NewProvider builds a Provider over registry.
func NewProvider(registry *schema.Registry) *Provider {
	return &Provider{registry: registry}
}

// Complete returns completion items for the cursor at offset in doc.
func (p *Provider) Complete(doc *document.Document, offset int) []Item {
	if doc.Tree == nil || len(doc.Tree.Segments) == 0 {
		return p.segmentItems()
	}

	path, ok := position.Resolve(doc.Tree, offset)
	if !ok {
		return p.segmentItems()
	}
	seg := doc.Tree.Segments[path.SegmentIndex]
	if seg.NameSpan.Contains(offset) || offset == seg.NameSpan.Start {
		return p.segmentItems()
	}
	if path.FieldIndex < 0 {
		return p.segmentItems()
	}

	values, _, ok := p.registry.AllowedValues(seg.Name, path.FieldIndex)
	if !ok {
		return nil
	}
	items := make([]Item, 0, len(values))
	for _, v := range values {
		items = append(items, Item{Label: v.Code, Detail: v.Description, Kind: KindValue})
	}
	return items
}

// segmentItems ranks standard segment names first, then
// workspace-defined ones, each alphabetically.
func (p *Provider) segmentItems() []Item {
	standardNames, workspaceNames := p.registry.SegmentNames()

	items := make([]Item, 0, len(standardNames)+len(workspaceNames))
	for _, name := range standardNames {
		seg, _ := p.registry.LookupSegment(name)
		items = append(items, Item{Label: name, Detail: seg.Description, Kind: KindSegment})
	}
	for _, name := range workspaceNames {
		seg, _ := p.registry.LookupSegment(name)
		items = append(items, Item{Label: name, Detail: seg.Description, Kind: KindSegment})
	}
	return items
}
