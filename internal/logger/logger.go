// Package logger wraps zerolog with the level/colour/sink behaviour the
// CLI exposes: -v/-vv raise verbosity, --colour controls ANSI output,
// --vscode suppresses colour regardless of --colour, and the
// log-to-stderr/log-to-file subcommands pick the sink.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Colour is the negotiated --colour mode.
type Colour string

const (
	ColourAuto   Colour = "auto"
	ColourAlways Colour = "always"
	ColourNever  Colour = "never"
)

// Config configures the global logger. Verbosity is the repeat count of
// -v: 0 is info-and-above, 1 is debug, 2+ is trace.
type Config struct {
	Verbosity int
	Colour    Colour
	VSCode    bool
	Output    io.Writer // nil defaults to os.Stderr
}

var log zerolog.Logger

// Init installs the global logger per cfg. Every package in this server
// logs through the returned zerolog.Logger (or the package-level helpers
// below) rather than fmt.Println or the stdlib log package.
func Init(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.InfoLevel
	switch {
	case cfg.Verbosity >= 2:
		level = zerolog.TraceLevel
	case cfg.Verbosity == 1:
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if useConsoleWriter(cfg) {
		cw := zerolog.ConsoleWriter{Out: out, NoColor: cfg.VSCode || cfg.Colour == ColourNever}
		out = cw
	}

	log = zerolog.New(out).With().Timestamp().Str("component", "hl7-ls").Logger()
	return log
}

// useConsoleWriter decides whether to pretty-print (isatty-style auto
// mode) or emit structured JSON, matching --colour's three modes.
func useConsoleWriter(cfg Config) bool {
	switch cfg.Colour {
	case ColourAlways:
		return true
	case ColourNever:
		return !cfg.VSCode && isTTYOutput(cfg.Output)
	default: // auto
		return isTTYOutput(cfg.Output)
	}
}

func isTTYOutput(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		if w == nil {
			f = os.Stderr
		} else {
			return false
		}
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// L returns the global logger. Init must be called first; before that,
// L returns zerolog's disabled logger so early-startup logging is a
// silent no-op rather than a panic.
func L() *zerolog.Logger {
	return &log
}

// Info logs an info-level message with printf-style formatting.
func Info(format string, v ...interface{}) {
	log.Info().Msg(fmt.Sprintf(format, v...))
}

// Debug logs a debug-level message with printf-style formatting.
func Debug(format string, v ...interface{}) {
	log.Debug().Msg(fmt.Sprintf(format, v...))
}

// Warn logs a warning-level message with printf-style formatting.
func Warn(format string, v ...interface{}) {
	log.Warn().Msg(fmt.Sprintf(format, v...))
}

// Error logs an error-level message with printf-style formatting.
func Error(format string, v ...interface{}) {
	log.Error().Msg(fmt.Sprintf(format, v...))
}

// Fatal logs a fatal-level message and exits the process with status 1.
func Fatal(format string, v ...interface{}) {
	log.Fatal().Msg(fmt.Sprintf(format, v...))
}
