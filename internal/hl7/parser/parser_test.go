package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultDelimiters(t *testing.T) {
	text := "MSH|^~\\&|SENDER|FAC|RECEIVER|FAC|20240101120000||ADT^A01|MSG001|P|2.5\r"
	msg, errs := Parse(text)
	require.Empty(t, errs)
	assert.Equal(t, byte('|'), msg.Delimiters.Field)
	assert.Equal(t, byte('^'), msg.Delimiters.Component)
	assert.Equal(t, byte('~'), msg.Delimiters.Repetition)
	assert.Equal(t, byte('\\'), msg.Delimiters.Escape)
	assert.Equal(t, byte('&'), msg.Delimiters.Subcomponent)

	require.Len(t, msg.Segments, 1)
	msh := msg.Segments[0]
	assert.Equal(t, "MSH", msh.Name)
	assert.False(t, msh.Malformed)

	f1, ok := msh.FieldAt(1)
	require.True(t, ok)
	assert.Equal(t, "|", f1.Text(text))

	f2, ok := msh.FieldAt(2)
	require.True(t, ok)
	assert.Equal(t, "^~\\&", f2.Text(text))

	f9, ok := msh.FieldAt(9)
	require.True(t, ok)
	require.Len(t, f9.Repetitions, 1)
	require.Len(t, f9.Repetitions[0].Components, 2)
	assert.Equal(t, "ADT", f9.Repetitions[0].Components[0].Text)
	assert.Equal(t, "A01", f9.Repetitions[0].Components[1].Text)
}

func TestParseCustomDelimiters(t *testing.T) {
	text := "MSH#@$*!#SENDER#FAC\r"
	msg, errs := Parse(text)
	require.Empty(t, errs)
	assert.Equal(t, byte('#'), msg.Delimiters.Field)
	assert.Equal(t, byte('@'), msg.Delimiters.Component)
	assert.Equal(t, byte('$'), msg.Delimiters.Repetition)
	assert.Equal(t, byte('*'), msg.Delimiters.Escape)
	assert.Equal(t, byte('!'), msg.Delimiters.Subcomponent)
}

func TestParseRepetitionsAndSubcomponents(t *testing.T) {
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.5\r" +
		"PID|1||123^^^MRN~456^^^SSN||DOE&JOHN^JANE\r"
	msg, errs := Parse(text)
	require.Empty(t, errs)

	pid, ok := msg.First("PID")
	require.True(t, ok)
	assert.Equal(t, 1, pid.Occurrence)

	f3, ok := pid.FieldAt(3)
	require.True(t, ok)
	require.True(t, f3.HasRepeats())
	require.Len(t, f3.Repetitions, 2)
	assert.Equal(t, "123^^^MRN", f3.Repetitions[0].Text)
	assert.Equal(t, "456^^^SSN", f3.Repetitions[1].Text)

	f5, ok := pid.FieldAt(5)
	require.True(t, ok)
	require.Len(t, f5.Repetitions, 1)
	comp := f5.Repetitions[0].Components[0]
	require.True(t, comp.HasSubcomponents())
	assert.Equal(t, "DOE", comp.Subcomponents[0].Text)
	assert.Equal(t, "JOHN", comp.Subcomponents[1].Text)
}

func TestParseLenientNewlines(t *testing.T) {
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.5\r\n" +
		"PID|1\n" +
		"NK1|1\r" +
		"PV1|1"
	msg, errs := Parse(text)
	require.Empty(t, errs)
	require.Len(t, msg.Segments, 4)
	names := []string{msg.Segments[0].Name, msg.Segments[1].Name, msg.Segments[2].Name, msg.Segments[3].Name}
	assert.Equal(t, []string{"MSH", "PID", "NK1", "PV1"}, names)
}

func TestParseMalformedSegmentName(t *testing.T) {
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.5\r" +
		"xy|garbage\r" +
		"PID|1\r"
	msg, errs := Parse(text)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "unrecognized segment name")

	require.Len(t, msg.Segments, 3)
	assert.True(t, msg.Segments[1].Malformed)
	assert.False(t, msg.Segments[2].Malformed)
}

func TestParseMissingDelimitersFallsBackToDefault(t *testing.T) {
	text := "PID|1||123^^^MRN\r"
	msg, errs := Parse(text)
	require.Empty(t, errs)
	assert.Equal(t, byte('|'), msg.Delimiters.Field)
	assert.Equal(t, byte('^'), msg.Delimiters.Component)
}

func TestParseEmptyFieldsBetweenSeparators(t *testing.T) {
	text := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|1|P|2.5\r" +
		"PID|1||\r"
	msg, errs := Parse(text)
	require.Empty(t, errs)
	pid, ok := msg.First("PID")
	require.True(t, ok)

	f3, ok := pid.FieldAt(3)
	require.True(t, ok)
	assert.True(t, f3.IsEmpty())
}
