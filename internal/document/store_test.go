package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersorcerer/hl7-ls/internal/hl7/ast"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/parser"
)

// fakeAnalyzer runs the real parser but skips diagnostics, exercising
// the Store in isolation from the Analysis Engine.
type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(text string) Analysis {
	tree, errs := parser.Parse(text)
	return Analysis{Tree: tree, ParseErrors: errs}
}

func TestOpenStoresInitialVersion(t *testing.T) {
	s := NewStore(fakeAnalyzer{})
	doc := s.Open("file:///a.hl7", "MSH|^~\\&|A\r", 1)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, byte('|'), doc.Delimiters.Field)

	snap, ok := s.Snapshot("file:///a.hl7")
	require.True(t, ok)
	assert.Same(t, doc, snap)
}

func TestChangeRejectsOutOfSequenceVersion(t *testing.T) {
	s := NewStore(fakeAnalyzer{})
	s.Open("file:///a.hl7", "MSH|^~\\&|A\r", 1)

	_, err := s.Change("file:///a.hl7", 3, []Edit{{Text: "MSH|^~\\&|B\r"}})
	assert.ErrorIs(t, err, ErrInvalidVersion)

	// The rejected edit must not have mutated the stored document.
	snap, ok := s.Snapshot("file:///a.hl7")
	require.True(t, ok)
	assert.Equal(t, 1, snap.Version)
}

func TestChangeAppliesIncrementalEditInOrder(t *testing.T) {
	s := NewStore(fakeAnalyzer{})
	text := "MSH|^~\\&|A|OLD|C\r"
	s.Open("file:///a.hl7", text, 1)

	oldStart := len("MSH|^~\\&|A|")
	oldEnd := oldStart + len("OLD")
	doc, err := s.Change("file:///a.hl7", 2, []Edit{{Range: &ByteRange{Start: oldStart, End: oldEnd}, Text: "NEW"}})
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "NEW")
	assert.NotContains(t, doc.Text, "OLD")
	assert.Equal(t, 2, doc.Version)
}

func TestChangeFullDocumentReplace(t *testing.T) {
	s := NewStore(fakeAnalyzer{})
	s.Open("file:///a.hl7", "MSH|^~\\&|A\r", 1)

	doc, err := s.Change("file:///a.hl7", 2, []Edit{{Text: "MSH|^~\\&|REPLACED\r"}})
	require.NoError(t, err)
	assert.Equal(t, "MSH|^~\\&|REPLACED\r", doc.Text)
}

func TestClosePreservesPriorSnapshot(t *testing.T) {
	s := NewStore(fakeAnalyzer{})
	doc := s.Open("file:///a.hl7", "MSH|^~\\&|A\r", 1)

	s.Close("file:///a.hl7")
	_, ok := s.Snapshot("file:///a.hl7")
	assert.False(t, ok)

	// The Document the caller already holds is untouched by Close.
	assert.Equal(t, "MSH|^~\\&|A\r", doc.Text)
	assert.Equal(t, ast.Default(), doc.Delimiters)
}

func TestSnapshotIndependentAcrossShards(t *testing.T) {
	s := NewStore(fakeAnalyzer{})
	s.Open("file:///a.hl7", "MSH|^~\\&|A\r", 1)
	s.Open("file:///b.hl7", "MSH|^~\\&|B\r", 1)

	a, _ := s.Snapshot("file:///a.hl7")
	b, _ := s.Snapshot("file:///b.hl7")
	assert.NotEqual(t, a.Text, b.Text)
}
