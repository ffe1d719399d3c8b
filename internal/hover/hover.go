// Package hover implements the Hover feature handler (C5): given a
// document snapshot and a position, it resolves the structural path
// under the cursor and renders Markdown describing it.
package hover

import (
	"fmt"
	"strings"
	"time"

	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/ast"
	"github.com/cybersorcerer/hl7-ls/internal/position"
	"github.com/cybersorcerer/hl7-ls/internal/schema"
)

// Result is the feature's answer: Markdown content plus the byte span
// of the resolved element, which the caller converts to an LSP Range
// under the negotiated encoding.
type Result struct {
	Markdown string
	Span     ast.Span
}

// Provider answers hover queries against the Schema Registry.
type Provider struct {
	registry *schema.Registry
}

// NewProvider builds a Provider over registry.
func NewProvider(registry *schema.Registry) *Provider {
	return &Provider{registry: registry}
}

// Hover resolves offset within doc and renders its description, or
// returns ok=false when offset does not land on any structural element.
func (p *Provider) Hover(doc *document.Document, offset int) (Result, bool) {
	if doc.Tree == nil {
		return Result{}, false
	}
	path, ok := position.Resolve(doc.Tree, offset)
	if !ok {
		return Result{}, false
	}
	span, ok := position.SpanOf(doc.Tree, path)
	if !ok {
		return Result{}, false
	}

	var b strings.Builder
	p.renderHeader(&b, path)
	p.renderFieldInfo(&b, path)
	p.renderTableValue(&b, doc, path, span)
	p.renderTimestamp(&b, doc, path, span)
	p.renderDeepLink(&b, path)

	return Result{Markdown: b.String(), Span: span}, true
}

func (p *Provider) renderHeader(b *strings.Builder, path position.StructuralPath) {
	if path.FieldIndex < 0 {
		fmt.Fprintf(b, "**%s**\n\n", path.SegmentName)
		return
	}
	seg, ok := p.registry.LookupSegment(path.SegmentName)
	segDesc := ""
	if ok {
		segDesc = seg.Description
	}
	field, hasField := p.registry.LookupField(path.SegmentName, path.FieldIndex)
	desc := field.Description
	if !hasField {
		desc = segDesc
	}
	if desc == "" {
		fmt.Fprintf(b, "**%s.%d**\n\n", path.SegmentName, path.FieldIndex)
	} else {
		fmt.Fprintf(b, "**%s.%d** — %s\n\n", path.SegmentName, path.FieldIndex, desc)
	}
}

func (p *Provider) renderFieldInfo(b *strings.Builder, path position.StructuralPath) {
	if path.FieldIndex < 0 {
		return
	}
	field, ok := p.registry.LookupField(path.SegmentName, path.FieldIndex)
	if !ok {
		return
	}
	if field.Datatype != "" {
		fmt.Fprintf(b, "**Datatype:** `%s`\n\n", field.Datatype)
	}
	if field.Required {
		fmt.Fprintf(b, "**Required**\n\n")
	}
	if path.RepetitionIndex > 1 {
		fmt.Fprintf(b, "**Repetition:** %d\n\n", path.RepetitionIndex)
	}
	if path.ComponentIndex > 0 {
		fmt.Fprintf(b, "**Component:** %d\n\n", path.ComponentIndex)
	}
	if path.SubcomponentIndex > 0 {
		fmt.Fprintf(b, "**Subcomponent:** %d\n\n", path.SubcomponentIndex)
	}
}

// renderTableValue handles both the generic per-field allowed_values
// lookup (first component/repetition against the field's own table) and
// the MSH.9 second-component special case: the trigger event named by
// MSH.9.2 against the standard trigger event catalogue (table 0003),
// per SPEC_FULL.md's supplemented hover behaviour.
func (p *Provider) renderTableValue(b *strings.Builder, doc *document.Document, path position.StructuralPath, span ast.Span) {
	if path.SegmentName == "MSH" && path.FieldIndex == 9 && path.ComponentIndex == 2 {
		code := textAt(doc, span)
		if desc, ok := schema.TriggerEvent(code); ok {
			fmt.Fprintf(b, "**%s** — %s (trigger event)\n\n", code, desc)
		}
		return
	}

	if path.FieldIndex < 0 || (path.ComponentIndex > 1) {
		return
	}
	values, _, ok := p.registry.AllowedValues(path.SegmentName, path.FieldIndex)
	if !ok {
		return
	}
	code := textAt(doc, span)
	for _, v := range values {
		if v.Code == code {
			fmt.Fprintf(b, "**%s** — %s\n\n", v.Code, v.Description)
			return
		}
	}
}

var timestampDatatypes = map[string]bool{"TS": true, "DTM": true, "DT": true, "TM": true}

// renderTimestamp shows both UTC and local renderings of a hovered
// timestamp-family value, per SPEC_FULL.md's supplemented hover
// behaviour.
func (p *Provider) renderTimestamp(b *strings.Builder, doc *document.Document, path position.StructuralPath, span ast.Span) {
	if path.FieldIndex < 0 {
		return
	}
	field, ok := p.registry.LookupField(path.SegmentName, path.FieldIndex)
	if !ok || !timestampDatatypes[field.Datatype] {
		return
	}
	raw := textAt(doc, span)
	t, ok := parseHL7Timestamp(raw)
	if !ok {
		return
	}
	fmt.Fprintf(b, "**UTC:** %s\n\n**Local:** %s\n\n", t.UTC().Format(time.RFC3339), t.Local().Format(time.RFC3339))
}

// renderDeepLink appends a reference URL for the resolved field, for
// clients that render Markdown links.
func (p *Provider) renderDeepLink(b *strings.Builder, path position.StructuralPath) {
	if path.FieldIndex < 0 {
		return
	}
	fmt.Fprintf(b, "[HL7 definition](https://hl7-definition.caristix.com/v2/HL7v2.7.1/Fields/%s.%d)\n", path.SegmentName, path.FieldIndex)
}

func textAt(doc *document.Document, span ast.Span) string {
	if span.Start < 0 || span.End > len(doc.Text) || span.Start > span.End {
		return ""
	}
	return doc.Text[span.Start:span.End]
}

// parseHL7Timestamp parses an HL7 TS/DTM value
// (YYYY[MM[DD[HH[MM[SS[.SSSS]]]]]][+/-ZZZZ]) given at one of the
// precisions YYYY through YYYYMMDDHHMMSS; any other digit count fails.
// A fractional-second part is dropped, and a trailing timezone offset is
// ignored rather than honoured.
func parseHL7Timestamp(raw string) (time.Time, bool) {
	s := raw
	if len(s) > 8 {
		if idx := strings.IndexAny(s[8:], "+-"); idx >= 0 {
			s = s[:8+idx]
		}
	}
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		s = s[:idx]
	}
	layouts := []string{"20060102150405", "200601021504", "2006010215", "20060102", "200601", "2006"}
	for _, layout := range layouts {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
