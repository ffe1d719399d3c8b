package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitEmitsStructuredJSONWhenColourNever(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Colour: ColourNever, Output: &buf})

	Info("hello %s", "world")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello world", entry["message"])
	assert.Equal(t, "hl7-ls", entry["component"])
}

func TestInitSuppressesColourWhenVSCode(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Colour: ColourAlways, VSCode: true, Output: &buf})

	Warn("careful")

	out := buf.String()
	assert.Contains(t, out, "careful")
	assert.NotContains(t, out, "\x1b[") // no ANSI escape codes despite --colour=always
}

func TestVerbosityRaisesGlobalLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Verbosity: 1, Colour: ColourNever, Output: &buf})

	Debug("debug detail")
	assert.Contains(t, buf.String(), "debug detail")
}

func TestDefaultVerbositySuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Colour: ColourNever, Output: &buf})

	Debug("should not appear")
	assert.Empty(t, buf.String())
}
