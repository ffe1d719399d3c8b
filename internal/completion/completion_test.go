package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/parser"
	"github.com/cybersorcerer/hl7-ls/internal/schema"
)

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(text string) document.Analysis {
	tree, errs := parser.Parse(text)
	return document.Analysis{Tree: tree, ParseErrors: errs}
}

func newTestProvider(t *testing.T) (*Provider, *document.Store) {
	t.Helper()
	std, err := schema.Standard()
	require.NoError(t, err)
	registry := schema.NewRegistry(std)
	return NewProvider(registry), document.NewStore(fakeAnalyzer{})
}

func TestCompleteOffersSegmentNamesOnEmptyDocument(t *testing.T) {
	p, store := newTestProvider(t)
	doc := store.Open("file:///a.hl7", "", 1)

	items := p.Complete(doc, 0)
	require.NotEmpty(t, items)
	for _, it := range items {
		assert.Equal(t, KindSegment, it.Kind)
	}

	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = it.Label
	}
	assert.Contains(t, labels, "MSH")
	assert.Contains(t, labels, "PID")
}

func TestCompleteOffersSegmentNamesAtSegmentName(t *testing.T) {
	p, store := newTestProvider(t)
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT|1|P|2.7.1\rPI"
	doc := store.Open("file:///a.hl7", text, 1)

	items := p.Complete(doc, len(text))
	require.NotEmpty(t, items)
	assert.Equal(t, KindSegment, items[0].Kind)
}

func TestCompleteOffersAllowedValuesInsideTableField(t *testing.T) {
	p, store := newTestProvider(t)
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT|1|P|2.7.1\rPID|1||123^^^MRN||Doe^John||19800101|\r"
	doc := store.Open("file:///a.hl7", text, 1)

	offset := len(text) - 2 // just before the final pipe, inside PID.8
	items := p.Complete(doc, offset)
	require.NotEmpty(t, items)
	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = it.Label
		assert.Equal(t, KindValue, it.Kind)
	}
	assert.Contains(t, labels, "M")
	assert.Contains(t, labels, "F")
}

func TestCompleteReturnsNilWithoutTable(t *testing.T) {
	p, store := newTestProvider(t)
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT|1|P|2.7.1\rPID|1\r"
	doc := store.Open("file:///a.hl7", text, 1)

	offset := len(text) - 2 // inside PID.1, which has no table
	items := p.Complete(doc, offset)
	assert.Nil(t, items)
}
