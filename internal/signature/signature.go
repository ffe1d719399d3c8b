// Package signature implements the Signature Help feature handler: a
// field-level signature "SEG|f1|f2|..." with the field under the cursor
// highlighted as the active parameter, and a component-level signature
// when the cursor sits inside a component. The component-level signature
// is labelled with the field's description and lists no component
// parameters; its active parameter is the component's position.
package signature

import (
	"fmt"
	"strings"

	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/position"
	"github.com/cybersorcerer/hl7-ls/internal/schema"
)

// Parameter is one labelled slot of a signature.
type Parameter struct {
	Label string
	Doc   string
}

// Signature is a single callable-looking description with one active
// parameter highlighted.
type Signature struct {
	Label         string
	Parameters    []Parameter
	ActiveParam   int
}

// Provider answers signature help queries against the Schema Registry.
type Provider struct {
	registry *schema.Registry
}

// NewProvider builds a Provider over registry.
func NewProvider(registry *schema.Registry) *Provider {
	return &Provider{registry: registry}
}

// Help returns the signature(s) for the cursor at offset in doc. The
// first signature is always the field-level one for the enclosing
// segment; a second, component-level signature is appended when the
// cursor lies inside a component.
func (p *Provider) Help(doc *document.Document, offset int) ([]Signature, bool) {
	if doc.Tree == nil {
		return nil, false
	}
	path, ok := position.Resolve(doc.Tree, offset)
	if !ok || path.FieldIndex < 0 {
		return nil, false
	}

	seg := doc.Tree.Segments[path.SegmentIndex]
	fieldSig := p.fieldSignature(seg.Name, path.FieldIndex)

	sigs := []Signature{fieldSig}
	if path.ComponentIndex > 0 {
		if compSig, ok := p.componentSignature(seg.Name, path.FieldIndex, path.ComponentIndex); ok {
			sigs = append(sigs, compSig)
		}
	}
	return sigs, true
}

func (p *Provider) fieldSignature(segName string, activeField int) Signature {
	highestField := activeField
	segInfo, ok := p.registry.LookupSegment(segName)
	if ok {
		for idx := range segInfo.Fields {
			if idx > highestField {
				highestField = idx
			}
		}
	}

	params := make([]Parameter, 0, highestField)
	labels := make([]string, 0, highestField+1)
	labels = append(labels, segName)
	for i := 1; i <= highestField; i++ {
		field, ok := p.registry.LookupField(segName, i)
		doc := ""
		label := fmt.Sprintf("%d", i)
		if ok {
			doc = field.Description
			if field.Description != "" {
				label = field.Description
			}
		}
		params = append(params, Parameter{Label: label, Doc: doc})
		labels = append(labels, label)
	}

	return Signature{
		Label:       strings.Join(labels, "|"),
		Parameters:  params,
		ActiveParam: activeField - 1,
	}
}

func (p *Provider) componentSignature(segName string, fieldIndex, activeComponent int) (Signature, bool) {
	field, ok := p.registry.LookupField(segName, fieldIndex)
	if !ok {
		return Signature{}, false
	}
	label := field.Description
	if label == "" {
		label = fmt.Sprintf("%s.%d", segName, fieldIndex)
	}
	return Signature{
		Label:       label,
		Parameters:  nil,
		ActiveParam: activeComponent - 1,
	}, true
}
