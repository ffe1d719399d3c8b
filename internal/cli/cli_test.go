package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cybersorcerer/hl7-ls/internal/logger"
)

func TestExecuteDefaultRunsWithStderrSink(t *testing.T) {
	var got Options
	code := Execute("0.0.0-test", []string{"-v", "--vscode"}, func(o Options) error {
		got = o
		return nil
	})
	assert.Equal(t, 0, code)
	assert.Equal(t, "", got.LogPath)
	assert.Equal(t, 1, got.Verbosity)
	assert.True(t, got.VSCode)
}

func TestExecuteLogToFilePassesPath(t *testing.T) {
	var got Options
	code := Execute("0.0.0-test", []string{"log-to-file", "/tmp/hl7-ls.log"}, func(o Options) error {
		got = o
		return nil
	})
	assert.Equal(t, 0, code)
	assert.Equal(t, "/tmp/hl7-ls.log", got.LogPath)
}

func TestExecuteLogToFileRequiresExactlyOneArg(t *testing.T) {
	code := Execute("0.0.0-test", []string{"log-to-file"}, func(o Options) error {
		return nil
	})
	assert.Equal(t, 2, code)
}

func TestExecuteUnknownFlagExitsTwo(t *testing.T) {
	code := Execute("0.0.0-test", []string{"--not-a-real-flag"}, func(o Options) error {
		return nil
	})
	assert.Equal(t, 2, code)
}

func TestExecuteRunErrorExitsOne(t *testing.T) {
	code := Execute("0.0.0-test", []string{}, func(o Options) error {
		return errors.New("transport closed")
	})
	assert.Equal(t, 1, code)
}

func TestExecuteColourFlagDefaultsToAuto(t *testing.T) {
	var got Options
	Execute("0.0.0-test", []string{}, func(o Options) error {
		got = o
		return nil
	})
	assert.Equal(t, logger.ColourAuto, got.Colour)
}
