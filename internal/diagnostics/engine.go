// Package diagnostics implements the Analysis Engine (C4): it runs
// after every successful parse and produces the publishable diagnostic
// set for a document, deterministically from (text, delimiters,
// effective schema) alone.
package diagnostics

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/ast"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/parser"
	"github.com/cybersorcerer/hl7-ls/internal/schema"
)

// Diagnostic codes. Analyze emits parse errors first, then the MSH.2
// encoding-character and MSH.12 version checks, then, segment by
// segment, either UnknownSegment or the field checks (required, table,
// datatype) in field-index order.
const (
	CodeParseError              = "ParseError"
	CodeUnknownSegment          = "UnknownSegment"
	CodeRequiredFieldMissing    = "RequiredFieldMissing"
	CodeUnknownTableValue       = "UnknownTableValue"
	CodeInvalidDatatype         = "InvalidDatatype"
	CodeEncodingCharacterAnomaly = "EncodingCharacterAnomaly"
)

var (
	numericPattern  = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	datePattern     = regexp.MustCompile(`^\d{4}(\d{2}(\d{2})?)?$`)
	timePattern     = regexp.MustCompile(`^\d{2}(\d{2}(\d{2}(\.\d{1,4})?)?)?([+-]\d{4})?$`)
	datetimePattern = regexp.MustCompile(`^\d{4}(\d{2}(\d{2}(\d{2}(\d{2}(\d{2}(\.\d{1,4})?)?)?)?)?)?([+-]\d{4})?$`)
)

// Engine runs the Analysis Engine against the current Schema Registry
// snapshot. DisableStdTableValidations suppresses UnknownTableValue for
// standard-only tables, per --disable-std-table-validations; overlay-
// declared tables are always enforced. Vscode suppresses InvalidDatatype,
// the one diagnostic class the spec marks "in progress": under a
// VS Code client this is left to the extension's own decorations rather
// than duplicated here, per --vscode's "relaxes certain diagnostics that
// VS Code renders itself".
type Engine struct {
	registry                   *schema.Registry
	disableStdTableValidations bool
	vscode                     bool
}

// NewEngine builds an Engine over registry.
func NewEngine(registry *schema.Registry, disableStdTableValidations, vscode bool) *Engine {
	return &Engine{registry: registry, disableStdTableValidations: disableStdTableValidations, vscode: vscode}
}

// Analyze implements document.Analyzer.
func (e *Engine) Analyze(text string) document.Analysis {
	tree, parseErrs := parser.Parse(text)

	var diags []document.Diagnostic
	for _, pe := range parseErrs {
		diags = append(diags, document.Diagnostic{
			Range:    spanToRange(pe.Span),
			Severity: document.SeverityError,
			Code:     CodeParseError,
			Message:  pe.Message,
		})
	}

	diags = append(diags, e.checkEncodingCharacters(tree, text)...)
	diags = append(diags, e.checkMSHVersion(tree, text)...)

	snap := e.registry.Snapshot()
	for _, seg := range tree.Segments {
		if seg.Malformed {
			continue
		}
		segInfo, ok := snap[seg.Name]
		if !ok {
			diags = append(diags, document.Diagnostic{
				Range:    spanToRange(seg.NameSpan),
				Severity: document.SeverityWarning,
				Code:     CodeUnknownSegment,
				Message:  fmt.Sprintf("unknown segment `%s`", seg.Name),
			})
			continue
		}
		diags = append(diags, e.checkFields(seg, segInfo)...)
	}

	return document.Analysis{Tree: tree, ParseErrors: parseErrs, Diagnostics: diags}
}

func sortedFieldIndices(fields map[int]schema.FieldInfo) []int {
	idx := make([]int, 0, len(fields))
	for i := range fields {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

func (e *Engine) checkFields(seg ast.Segment, segInfo schema.SegmentInfo) []document.Diagnostic {
	var diags []document.Diagnostic
	for _, idx := range sortedFieldIndices(segInfo.Fields) {
		fieldInfo := segInfo.Fields[idx]
		field, hasField := seg.FieldAt(idx)
		empty := !hasField || field.IsEmpty()

		if fieldInfo.Required && empty {
			rng := spanToRange(ast.Span{Start: seg.Span.End, End: seg.Span.End})
			if hasField {
				rng = spanToRange(field.Span)
			}
			diags = append(diags, document.Diagnostic{
				Range:    rng,
				Severity: document.SeverityWarning,
				Code:     CodeRequiredFieldMissing,
				Message:  fmt.Sprintf("%s.%d (%s) is required", seg.Name, idx, fieldInfo.Description),
			})
		}

		if !hasField || empty {
			continue
		}

		if fieldInfo.HasAllowedValues {
			suppressed := fieldInfo.StandardTable && e.disableStdTableValidations
			if !suppressed {
				diags = append(diags, e.checkAllowedValues(seg.Name, idx, field, fieldInfo)...)
			}
		}

		if !e.vscode {
			diags = append(diags, e.checkDatatype(seg.Name, idx, field, fieldInfo)...)
		}
	}
	return diags
}

func (e *Engine) checkAllowedValues(segName string, idx int, field ast.Field, fieldInfo schema.FieldInfo) []document.Diagnostic {
	var diags []document.Diagnostic
	for _, rep := range field.Repetitions {
		if rep.IsEmpty() {
			continue
		}
		code := rep.Text
		if len(rep.Components) > 0 {
			code = rep.Components[0].Text
		}
		if tableContains(fieldInfo.AllowedValues, code) {
			continue
		}
		diags = append(diags, document.Diagnostic{
			Range:    spanToRange(rep.Span),
			Severity: document.SeverityInformation,
			Code:     CodeUnknownTableValue,
			Message:  fmt.Sprintf("%q is not a known value for %s.%d", code, segName, idx),
		})
	}
	return diags
}

func tableContains(values []schema.TableValue, code string) bool {
	for _, v := range values {
		if v.Code == code {
			return true
		}
	}
	return false
}

func (e *Engine) checkDatatype(segName string, idx int, field ast.Field, fieldInfo schema.FieldInfo) []document.Diagnostic {
	pattern, ok := datatypePattern(fieldInfo.Datatype)
	if !ok {
		return nil
	}
	var diags []document.Diagnostic
	for _, rep := range field.Repetitions {
		if rep.IsEmpty() {
			continue
		}
		if pattern.MatchString(rep.Text) {
			continue
		}
		diags = append(diags, document.Diagnostic{
			Range:    spanToRange(rep.Span),
			Severity: document.SeverityInformation,
			Code:     CodeInvalidDatatype,
			Message:  fmt.Sprintf("%q does not look like a valid %s for %s.%d", rep.Text, fieldInfo.Datatype, segName, idx),
		})
	}
	return diags
}

func datatypePattern(datatype string) (*regexp.Regexp, bool) {
	switch datatype {
	case "NM", "SI":
		return numericPattern, true
	case "DT":
		return datePattern, true
	case "TM":
		return timePattern, true
	case "TS", "DTM":
		return datetimePattern, true
	default:
		return nil, false
	}
}

func (e *Engine) checkEncodingCharacters(tree *ast.Message, text string) []document.Diagnostic {
	msh, ok := tree.First("MSH")
	if !ok {
		return nil
	}
	field2, ok := msh.FieldAt(2)
	if !ok {
		return nil
	}
	enc := field2.Text(text)
	if len(enc) == 4 && distinctRunes(enc) {
		return nil
	}
	return []document.Diagnostic{{
		Range:    spanToRange(field2.Span),
		Severity: document.SeverityWarning,
		Code:     CodeEncodingCharacterAnomaly,
		Message:  fmt.Sprintf("MSH.2 should contain exactly four distinct characters, got %q", enc),
	}}
}

func distinctRunes(s string) bool {
	seen := make(map[rune]bool, len(s))
	for _, r := range s {
		if seen[r] {
			return false
		}
		seen[r] = true
	}
	return true
}

func (e *Engine) checkMSHVersion(tree *ast.Message, text string) []document.Diagnostic {
	msh, ok := tree.First("MSH")
	if !ok {
		return nil
	}
	field12, ok := msh.FieldAt(12)
	if !ok || field12.IsEmpty() {
		return nil
	}
	version := field12.Text(text)
	if schema.IsValidVersion(version) {
		return nil
	}
	return []document.Diagnostic{{
		Range:    spanToRange(field12.Span),
		Severity: document.SeverityWarning,
		Code:     CodeUnknownTableValue,
		Message:  fmt.Sprintf("unknown HL7 version %q", version),
	}}
}

func spanToRange(span ast.Span) document.ByteRange {
	return document.ByteRange{Start: span.Start, End: span.End}
}
