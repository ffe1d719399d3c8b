package main

import (
	"fmt"
	"os"

	"github.com/cybersorcerer/hl7-ls/internal/cli"
	"github.com/cybersorcerer/hl7-ls/internal/handler"
	"github.com/cybersorcerer/hl7-ls/internal/logger"
	"github.com/cybersorcerer/hl7-ls/pkg/lsp"
)

var version = "0.1.0"

func main() {
	os.Exit(cli.Execute(version, os.Args[1:], run))
}

func run(opts cli.Options) error {
	out, closeOut, err := logSink(opts.LogPath)
	if err != nil {
		return err
	}
	defer closeOut()

	logger.Init(logger.Config{
		Verbosity: opts.Verbosity,
		Colour:    opts.Colour,
		VSCode:    opts.VSCode,
		Output:    out,
	})

	logger.Info("hl7-ls version %s starting", version)

	h, err := handler.New(version, opts.VSCode, opts.DisableStdTableValidations)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	server := lsp.NewServer(os.Stdin, os.Stdout, h)
	h.SetServer(server)

	logger.Info("LSP server listening on stdio")
	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// logSink opens the file named by path, or returns os.Stderr when path
// is empty (the log-to-stderr default). The returned close function is
// always safe to defer.
func logSink(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
