// Package cli defines the hl7-ls command tree: persistent flags shared
// by every invocation, and the log-to-stderr/log-to-file subcommands
// that pick the logger's sink before handing off to RunFunc.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cybersorcerer/hl7-ls/internal/logger"
)

// Options is the fully-resolved configuration RunFunc receives once
// flags have been parsed and the logger sink has been chosen.
type Options struct {
	Colour                     logger.Colour
	Verbosity                  int
	VSCode                     bool
	DisableStdTableValidations bool
	LogPath                    string // empty for log-to-stderr
}

// RunFunc starts the server given resolved Options and returns any
// transport error (exit code 1), nil on normal shutdown (exit code 0).
type RunFunc func(Options) error

// Execute builds the root command, runs it against args, and returns
// the process exit code per §6: 0 normal shutdown, 1 transport error, 2
// CLI parse error.
func Execute(version string, args []string, run RunFunc) int {
	var (
		colour     string
		verbosity  int
		vscode     bool
		disableStd bool
	)

	opts := func(logPath string) Options {
		return Options{
			Colour:                     logger.Colour(colour),
			Verbosity:                  verbosity,
			VSCode:                     vscode,
			DisableStdTableValidations: disableStd,
			LogPath:                    logPath,
		}
	}

	root := &cobra.Command{
		Use:           "hl7-ls",
		Short:         "Language server for HL7 v2 messages",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts(""))
		},
	}
	root.Flags().SortFlags = false
	root.PersistentFlags().StringVar(&colour, "colour", string(logger.ColourAuto), "colour mode: auto, always, never")
	root.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase logging verbosity (-v, -vv)")
	root.PersistentFlags().BoolVar(&vscode, "vscode", false, "enable VS Code client behaviour (suppress ANSI, relax client-rendered diagnostics)")
	root.PersistentFlags().BoolVar(&disableStd, "disable-std-table-validations", false, "suppress UnknownTableValue diagnostics for standard (non-workspace) tables")

	logToStderr := &cobra.Command{
		Use:   "log-to-stderr",
		Short: "Log to stderr (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts(""))
		},
	}

	logToFile := &cobra.Command{
		Use:   "log-to-file <path>",
		Short: "Log to the given file path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts(args[0]))
		},
	}

	root.AddCommand(logToStderr, logToFile)

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if isFlagOrArgError(err) {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// isFlagOrArgError distinguishes a CLI parse error (unknown flag, wrong
// arg count) from a RunE transport error. cobra does not tag these
// distinctly, so we classify by the one signal RunE never produces on
// its own: cobra.Command sets this via its pflag.ErrHelp and arg
// validators, which always report through a *pflag.FlagError or satisfy
// a recognisable usage-error shape. We fall back to ExactArgs's own
// message shape since pflag does not export a typed error for it.
func isFlagOrArgError(err error) bool {
	msg := err.Error()
	return len(msg) > 0 && (hasPrefix(msg, "unknown flag") ||
		hasPrefix(msg, "unknown shorthand flag") ||
		hasPrefix(msg, "invalid argument") ||
		hasPrefix(msg, "accepts ") ||
		hasPrefix(msg, "requires "))
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
