package hover

import (
	"strings"
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

func TestHoverRendersFieldDescriptionAndDatatype(t *testing.T) {
	p, store := newTestProvider(t)
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT|1|P|2.7.1\rPID|1||123^^^MRN||Doe^John\r"
	doc := store.Open("file:///a.hl7", text, 1)

	offset := strings.Index(text, "Doe^John")
	result, ok := p.Hover(doc, offset)
	require.True(t, ok)
	assert.Contains(t, result.Markdown, "PID.5")
	assert.Contains(t, result.Markdown, "XPN")
}

func TestHoverRendersTableValueDescription(t *testing.T) {
	p, store := newTestProvider(t)
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT|1|P|2.7.1\rPID|1||123^^^MRN||Doe^John||19800101|M\r"
	doc := store.Open("file:///a.hl7", text, 1)

	offset := strings.LastIndex(text, "|M") + 1
	result, ok := p.Hover(doc, offset)
	require.True(t, ok)
	assert.Contains(t, result.Markdown, "Male")
}

func TestHoverRendersTriggerEventForMSH9SecondComponent(t *testing.T) {
	p, store := newTestProvider(t)
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.7.1\r"
	doc := store.Open("file:///a.hl7", text, 1)

	offset := strings.Index(text, "A01")
	result, ok := p.Hover(doc, offset)
	require.True(t, ok)
	assert.Contains(t, result.Markdown, "Admit")
}

func TestHoverRendersUTCAndLocalForTimestamp(t *testing.T) {
	p, store := newTestProvider(t)
	text := "MSH|^~\\&|A|B|C|D|20240101120000||ADT|1|P|2.7.1\r"
	doc := store.Open("file:///a.hl7", text, 1)

	offset := strings.Index(text, "20240101120000")
	result, ok := p.Hover(doc, offset)
	require.True(t, ok)
	assert.Contains(t, result.Markdown, "UTC")
	assert.Contains(t, result.Markdown, "Local")
}

func TestHoverRendersDeepLinkForField(t *testing.T) {
	p, store := newTestProvider(t)
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT|1|P|2.7.1\r"
	doc := store.Open("file:///a.hl7", text, 1)

	offset := strings.Index(text, "ADT")
	result, ok := p.Hover(doc, offset)
	require.True(t, ok)
	assert.Contains(t, result.Markdown, "hl7-definition.caristix.com")
	assert.Contains(t, result.Markdown, "MSH.9")
}

func TestHoverReturnsFalseOutsideAnyDocument(t *testing.T) {
	p, store := newTestProvider(t)
	doc := store.Open("file:///empty.hl7", "", 1)

	_, ok := p.Hover(doc, 0)
	assert.False(t, ok)
}
