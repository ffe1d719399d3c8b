// Package codeaction implements the Code Actions feature handler: it
// offers the available hl7.* commands for a given cursor position or
// selection, without executing any of them.
package codeaction

import (
	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/position"
	"github.com/cybersorcerer/hl7-ls/internal/schema"
)

// Action is one offered code action: a title and the command it runs.
type Action struct {
	Title     string
	Command   string
	Arguments []any
}

var timestampDatatypes = map[string]bool{"TS": true, "DTM": true, "DT": true, "TM": true}

// Provider answers code action queries against the Schema Registry.
type Provider struct {
	registry *schema.Registry
}

// NewProvider builds a Provider over registry.
func NewProvider(registry *schema.Registry) *Provider {
	return &Provider{registry: registry}
}

// Actions returns the code actions available for the range [start,end)
// in doc.
func (p *Provider) Actions(doc *document.Document, start, end int) []Action {
	if doc.Tree == nil {
		return nil
	}

	var actions []Action
	if a, ok := p.setTimestampToNow(doc, start); ok {
		actions = append(actions, a)
	}
	if a, ok := p.generateControlID(doc, start, end); ok {
		actions = append(actions, a)
	}
	if a, ok := p.sendMessage(doc); ok {
		actions = append(actions, a)
	}
	if end > start {
		actions = append(actions,
			Action{Title: "Encode HL7 escape sequences in selection", Command: "hl7.encodeSelection", Arguments: []any{doc.URI, start, end}},
			Action{Title: "Decode HL7 escape sequences in selection", Command: "hl7.decodeSelection", Arguments: []any{doc.URI, start, end}},
		)
	}
	return actions
}

func (p *Provider) setTimestampToNow(doc *document.Document, offset int) (Action, bool) {
	path, ok := position.Resolve(doc.Tree, offset)
	if !ok || path.FieldIndex < 0 {
		return Action{}, false
	}
	field, ok := p.registry.LookupField(path.SegmentName, path.FieldIndex)
	if !ok || !timestampDatatypes[field.Datatype] {
		return Action{}, false
	}
	span, ok := position.SpanOf(doc.Tree, path)
	if !ok {
		return Action{}, false
	}
	return Action{
		Title:     "Set timestamp to now",
		Command:   "hl7.setTimestampToNow",
		Arguments: []any{doc.URI, span.Start, span.End},
	}, true
}

// generateControlID is offered only when the requested range falls
// within MSH.10's span, tighter than "an MSH segment is present".
func (p *Provider) generateControlID(doc *document.Document, start, end int) (Action, bool) {
	msh, ok := doc.Tree.First("MSH")
	if !ok {
		return Action{}, false
	}
	field, ok := msh.FieldAt(10)
	if !ok {
		return Action{}, false
	}
	if start < field.Span.Start || end > field.Span.End {
		return Action{}, false
	}
	return Action{
		Title:     "Generate new control ID",
		Command:   "hl7.generateControlId",
		Arguments: []any{doc.URI},
	}, true
}

func (p *Provider) sendMessage(doc *document.Document) (Action, bool) {
	if _, ok := doc.Tree.First("MSH"); !ok {
		return Action{}, false
	}
	return Action{
		Title:     "Send message over MLLP",
		Command:   "hl7.sendMessage",
		Arguments: []any{doc.URI, "", 0},
	}, true
}
