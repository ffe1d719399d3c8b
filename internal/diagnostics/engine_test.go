package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/schema"
)

func newTestEngine(t *testing.T, disableStdTableValidations, vscode bool) *Engine {
	t.Helper()
	std, err := schema.Standard()
	require.NoError(t, err)
	return NewEngine(schema.NewRegistry(std), disableStdTableValidations, vscode)
}

func codes(diags []document.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}

func TestAnalyzeFlagsMissingRequiredField(t *testing.T) {
	e := newTestEngine(t, false, false)
	analysis := e.Analyze("MSH|^~\\&|A|B|C|D|20240101||ADT^A01||P|2.7.1\r")
	assert.Contains(t, codes(analysis.Diagnostics), CodeRequiredFieldMissing)
}

func TestAnalyzeFlagsUnknownSegment(t *testing.T) {
	e := newTestEngine(t, false, false)
	analysis := e.Analyze("ZZZ|foo\r")
	assert.Contains(t, codes(analysis.Diagnostics), CodeUnknownSegment)
}

func TestAnalyzeFlagsUnknownTableValue(t *testing.T) {
	e := newTestEngine(t, false, false)
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.7.1\rPID|1||123^^^MRN||Doe^John||19800101|Q\r"
	analysis := e.Analyze(text)
	assert.Contains(t, codes(analysis.Diagnostics), CodeUnknownTableValue)
}

func TestDisableStdTableValidationsSuppressesStandardTable(t *testing.T) {
	e := newTestEngine(t, true, false)
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.7.1\rPID|1||123^^^MRN||Doe^John||19800101|Q\r"
	analysis := e.Analyze(text)
	assert.NotContains(t, codes(analysis.Diagnostics), CodeUnknownTableValue)
}

func TestVSCodeSuppressesInvalidDatatype(t *testing.T) {
	text := "MSH|^~\\&|A|B|C|D|notadate||ADT^A01|1|P|2.7.1\r"
	withDatatype := newTestEngine(t, false, false).Analyze(text)
	assert.Contains(t, codes(withDatatype.Diagnostics), CodeInvalidDatatype)

	suppressed := newTestEngine(t, false, true).Analyze(text)
	assert.NotContains(t, codes(suppressed.Diagnostics), CodeInvalidDatatype)
}

func TestAnalyzeFlagsEncodingCharacterAnomaly(t *testing.T) {
	e := newTestEngine(t, false, false)
	analysis := e.Analyze("MSH|^~\\\\|A\r")
	assert.Contains(t, codes(analysis.Diagnostics), CodeEncodingCharacterAnomaly)
}

func TestAnalyzeFlagsUnknownMSHVersion(t *testing.T) {
	e := newTestEngine(t, false, false)
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|9.9.9\r"
	analysis := e.Analyze(text)
	assert.Contains(t, codes(analysis.Diagnostics), CodeUnknownTableValue)
}

func TestAnalyzeCleanMessageHasNoDiagnostics(t *testing.T) {
	e := newTestEngine(t, false, false)
	// MSH.9 is bare "ADT" (table 0076 lists whole-field message type
	// codes, not the MSH.9.2 trigger event) so the table check passes.
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT|1|P|2.7.1\r"
	analysis := e.Analyze(text)
	assert.Empty(t, analysis.Diagnostics)
}
