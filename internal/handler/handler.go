// Package handler wires the feature providers (C1-C7) behind the
// pkg/lsp.Handler interface: it owns the Document Store and Schema
// Registry, translates between LSP wire types and the internal
// byte-offset/structural-path model, and dispatches workspace commands.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cybersorcerer/hl7-ls/internal/codeaction"
	"github.com/cybersorcerer/hl7-ls/internal/command"
	"github.com/cybersorcerer/hl7-ls/internal/completion"
	"github.com/cybersorcerer/hl7-ls/internal/diagnostics"
	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/ast"
	"github.com/cybersorcerer/hl7-ls/internal/hover"
	"github.com/cybersorcerer/hl7-ls/internal/logger"
	"github.com/cybersorcerer/hl7-ls/internal/metrics"
	"github.com/cybersorcerer/hl7-ls/internal/position"
	"github.com/cybersorcerer/hl7-ls/internal/schema"
	"github.com/cybersorcerer/hl7-ls/internal/selection"
	"github.com/cybersorcerer/hl7-ls/internal/signature"
	"github.com/cybersorcerer/hl7-ls/internal/symbols"
	"github.com/cybersorcerer/hl7-ls/internal/workspace"
	"github.com/cybersorcerer/hl7-ls/pkg/lsp"
)

// Handler implements lsp.Handler over the Document Store and Schema
// Registry.
type Handler struct {
	version string

	store    *document.Store
	registry *schema.Registry
	metrics  *metrics.Metrics

	hoverProvider      *hover.Provider
	completionProvider *completion.Provider
	symbolsProvider    *symbols.Provider
	selectionProvider  *selection.Provider
	signatureProvider  *signature.Provider
	codeActionProvider *codeaction.Provider

	encodingMu sync.RWMutex
	encoding   position.Encoding

	watcher *workspace.Watcher

	serverMu sync.RWMutex
	server   *lsp.Server
}

// New builds a Handler. vscode and disableStdTableValidations are the
// CLI-level diagnostic behaviour flags; they are baked into the
// Analysis Engine at construction time since neither can change for the
// lifetime of one server process.
func New(version string, vscode, disableStdTableValidations bool) (*Handler, error) {
	standard, err := schema.Standard()
	if err != nil {
		return nil, fmt.Errorf("handler: %w", err)
	}
	registry := schema.NewRegistry(standard)
	engine := diagnostics.NewEngine(registry, disableStdTableValidations, vscode)

	h := &Handler{
		version:            version,
		store:              document.NewStore(engine),
		registry:           registry,
		metrics:            metrics.New(),
		hoverProvider:      hover.NewProvider(registry),
		completionProvider: completion.NewProvider(registry),
		symbolsProvider:    symbols.NewProvider(registry),
		selectionProvider:  selection.NewProvider(),
		signatureProvider:  signature.NewProvider(registry),
		codeActionProvider: codeaction.NewProvider(registry),
		encoding:           position.UTF16,
	}
	registry.Subscribe(h.onSchemaChanged)
	return h, nil
}

// onSchemaChanged re-analyzes and republishes diagnostics for every open
// document after the Workspace Watcher applies or removes a schema
// overlay, so a newly-required field or table takes effect immediately
// rather than waiting for the next edit to the document itself.
func (h *Handler) onSchemaChanged(affected []string) {
	for _, uri := range h.store.URIs() {
		doc, ok := h.store.Reanalyze(uri)
		if !ok {
			continue
		}
		h.publishDiagnostics(doc)
	}
}

// SetServer gives the Handler a reference to the Server so it can
// publish diagnostics and issue server-initiated requests.
func (h *Handler) SetServer(server *lsp.Server) {
	h.serverMu.Lock()
	h.server = server
	h.serverMu.Unlock()
}

func (h *Handler) currentServer() *lsp.Server {
	h.serverMu.RLock()
	defer h.serverMu.RUnlock()
	return h.server
}

func (h *Handler) currentEncoding() position.Encoding {
	h.encodingMu.RLock()
	defer h.encodingMu.RUnlock()
	return h.encoding
}

// Initialize negotiates the position encoding and starts the Workspace
// Watcher over one root: the client's first workspace folder, or its
// rootUri when no folder is declared. Further folders are not watched.
func (h *Handler) Initialize(params lsp.InitializeParams) (*lsp.InitializeResult, error) {
	logger.Info("initializing")

	enc := negotiateEncoding(params.Capabilities)
	h.encodingMu.Lock()
	h.encoding = enc
	h.encodingMu.Unlock()

	root := rootFromParams(params)
	if root != "" {
		w, err := workspace.NewWatcher(root, h.registry)
		if err != nil {
			logger.Warn("failed to start workspace watcher: %v", err)
		} else {
			h.watcher = w
			if err := w.ScanAndLoad(); err != nil {
				logger.Warn("workspace scan failed: %v", err)
			}
			go w.Start()
		}
	}

	return &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			PositionEncoding:       lsp.PositionEncodingKind(enc),
			TextDocumentSync:       lsp.TextDocumentSyncFull,
			CompletionProvider:     &lsp.CompletionOptions{},
			HoverProvider:          true,
			DocumentSymbolProvider: true,
			SelectionRangeProvider: true,
			SignatureHelpProvider:  &lsp.SignatureHelpOptions{},
			CodeActionProvider:     true,
			ExecuteCommandProvider: &lsp.ExecuteCommandOptions{Commands: lsp.Commands},
		},
		ServerInfo: &lsp.ServerInfo{Name: "hl7-ls", Version: h.version},
	}, nil
}

// negotiateEncoding prefers the client's ranked preference when it
// includes one this server supports, falling back to LSP's own default
// of UTF-16 when the client declares no preference at all.
func negotiateEncoding(caps lsp.ClientCapabilities) position.Encoding {
	if caps.General == nil {
		return position.UTF16
	}
	for _, kind := range caps.General.PositionEncodings {
		switch position.Encoding(kind) {
		case position.UTF8, position.UTF16, position.UTF32:
			return position.Encoding(kind)
		}
	}
	return position.UTF16
}

func rootFromParams(params lsp.InitializeParams) string {
	if len(params.WorkspaceFolders) > 0 {
		return uriToPath(params.WorkspaceFolders[0].URI)
	}
	return uriToPath(params.RootURI)
}

func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// Initialized is a no-op: nothing in this server defers work to the
// initialized notification beyond what Initialize already started.
func (h *Handler) Initialized() {}

// Shutdown stops the Workspace Watcher.
func (h *Handler) Shutdown() {
	logger.Info("shutting down")
	if h.watcher != nil {
		h.watcher.Stop()
	}
}

// TextDocumentDidOpen opens the document and publishes its initial
// diagnostics.
func (h *Handler) TextDocumentDidOpen(params lsp.TextDocumentItem) error {
	doc := h.store.Open(params.URI, params.Text, params.Version)
	h.metrics.DocumentsOpen.Inc()
	h.publishDiagnostics(doc)
	return nil
}

// TextDocumentDidChange applies the incremental or full-document edits
// and republishes diagnostics for the new version.
func (h *Handler) TextDocumentDidChange(params lsp.VersionedTextDocumentIdentifier, changes []lsp.TextDocumentContentChangeEvent) error {
	prev, ok := h.store.Snapshot(params.URI)
	if !ok {
		return fmt.Errorf("handler: change on unopened document %s", params.URI)
	}
	enc := h.currentEncoding()

	edits := make([]document.Edit, 0, len(changes))
	for _, c := range changes {
		if c.Range == nil {
			edits = append(edits, document.Edit{Text: c.Text})
			continue
		}
		start := position.ToOffset(prev.Text, position.Position{Line: c.Range.Start.Line, Character: c.Range.Start.Character}, enc)
		end := position.ToOffset(prev.Text, position.Position{Line: c.Range.End.Line, Character: c.Range.End.Character}, enc)
		edits = append(edits, document.Edit{Range: &document.ByteRange{Start: start, End: end}, Text: c.Text})
	}

	doc, err := h.store.Change(params.URI, params.Version, edits)
	if err != nil {
		return err
	}
	h.publishDiagnostics(doc)
	return nil
}

// TextDocumentDidClose drops the document from the store.
func (h *Handler) TextDocumentDidClose(uri string) error {
	h.store.Close(uri)
	h.metrics.DocumentsOpen.Dec()
	return nil
}

func (h *Handler) publishDiagnostics(doc *document.Document) {
	server := h.currentServer()
	if server == nil {
		return
	}
	enc := h.currentEncoding()
	diags := make([]lsp.Diagnostic, 0, len(doc.Diagnostics))
	for _, d := range doc.Diagnostics {
		diags = append(diags, lsp.Diagnostic{
			Range:    toLSPRange(doc.Text, d.Range, enc),
			Severity: int(d.Severity),
			Code:     d.Code,
			Source:   document.Source,
			Message:  d.Message,
		})
	}
	params := lsp.PublishDiagnosticsParams{URI: doc.URI, Version: doc.Version, Diagnostics: diags}
	if err := server.SendNotification("textDocument/publishDiagnostics", params); err != nil {
		logger.Error("failed to publish diagnostics for %s: %v", doc.URI, err)
	}
}

func toLSPRange(text string, r document.ByteRange, enc position.Encoding) lsp.Range {
	pr := position.ToRange(text, ast.Span{Start: r.Start, End: r.End}, enc)
	return lsp.Range{
		Start: lsp.Position{Line: pr.Start.Line, Character: pr.Start.Character},
		End:   lsp.Position{Line: pr.End.Line, Character: pr.End.Character},
	}
}

func offsetFromParams(doc *document.Document, p lsp.Position, enc position.Encoding) int {
	return position.ToOffset(doc.Text, position.Position{Line: p.Line, Character: p.Character}, enc)
}

// TextDocumentHover resolves the structural path under the cursor and
// renders its description as Markdown.
func (h *Handler) TextDocumentHover(ctx context.Context, params lsp.TextDocumentPositionParams) (*lsp.Hover, error) {
	doc, ok := h.store.Snapshot(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	enc := h.currentEncoding()
	offset := offsetFromParams(doc, params.Position, enc)

	result, ok := h.hoverProvider.Hover(doc, offset)
	if !ok {
		return nil, nil
	}
	rng := toLSPRange(doc.Text, document.ByteRange{Start: result.Span.Start, End: result.Span.End}, enc)
	return &lsp.Hover{
		Contents: lsp.MarkupContent{Kind: lsp.MarkupKindMarkdown, Value: result.Markdown},
		Range:    &rng,
	}, nil
}

// TextDocumentCompletion offers segment names or allowed-value codes
// for the cursor position.
func (h *Handler) TextDocumentCompletion(ctx context.Context, params lsp.TextDocumentPositionParams) ([]lsp.CompletionItem, error) {
	doc, ok := h.store.Snapshot(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	offset := offsetFromParams(doc, params.Position, h.currentEncoding())

	items := h.completionProvider.Complete(doc, offset)
	out := make([]lsp.CompletionItem, 0, len(items))
	for _, it := range items {
		out = append(out, lsp.CompletionItem{Label: it.Label, Detail: it.Detail, Kind: completionItemKind(it.Kind)})
	}
	return out, nil
}

func completionItemKind(k completion.Kind) int {
	if k == completion.KindValue {
		return lsp.CompletionItemKindEnum
	}
	return lsp.CompletionItemKindKeyword
}

// TextDocumentDocumentSymbol builds the segment/field outline for the
// document.
func (h *Handler) TextDocumentDocumentSymbol(ctx context.Context, params lsp.DocumentSymbolParams) ([]lsp.DocumentSymbol, error) {
	doc, ok := h.store.Snapshot(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	enc := h.currentEncoding()
	syms := h.symbolsProvider.Symbols(doc)
	out := make([]lsp.DocumentSymbol, 0, len(syms))
	for _, s := range syms {
		out = append(out, toLSPSymbol(doc.Text, s, enc))
	}
	return out, nil
}

func toLSPSymbol(text string, s symbols.Symbol, enc position.Encoding) lsp.DocumentSymbol {
	rng := symbols.Range(text, s, enc)
	children := make([]lsp.DocumentSymbol, 0, len(s.Children))
	for _, c := range s.Children {
		children = append(children, toLSPSymbol(text, c, enc))
	}
	return lsp.DocumentSymbol{
		Name:           s.Name,
		Detail:         s.Detail,
		Kind:           lsp.SymbolKind(s.Kind),
		Range:          lsp.Range{Start: lsp.Position{Line: rng.Start.Line, Character: rng.Start.Character}, End: lsp.Position{Line: rng.End.Line, Character: rng.End.Character}},
		SelectionRange: lsp.Range{Start: lsp.Position{Line: rng.Start.Line, Character: rng.Start.Character}, End: lsp.Position{Line: rng.End.Line, Character: rng.End.Character}},
		Children:       children,
	}
}

// TextDocumentSelectionRange builds the innermost-to-outermost chain
// for each requested position.
func (h *Handler) TextDocumentSelectionRange(ctx context.Context, params lsp.SelectionRangeParams) ([]lsp.SelectionRange, error) {
	doc, ok := h.store.Snapshot(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	enc := h.currentEncoding()

	out := make([]lsp.SelectionRange, 0, len(params.Positions))
	for _, p := range params.Positions {
		offset := offsetFromParams(doc, p, enc)
		chain, ok := h.selectionProvider.SelectionRange(doc, offset)
		if !ok {
			out = append(out, lsp.SelectionRange{Range: toLSPRange(doc.Text, document.ByteRange{Start: offset, End: offset}, enc)})
			continue
		}
		out = append(out, toLSPSelectionRange(doc.Text, chain, enc))
	}
	return out, nil
}

func toLSPSelectionRange(text string, r *selection.Range, enc position.Encoding) lsp.SelectionRange {
	out := lsp.SelectionRange{Range: toLSPRange(text, document.ByteRange{Start: r.Span.Start, End: r.Span.End}, enc)}
	if r.Parent != nil {
		parent := toLSPSelectionRange(text, r.Parent, enc)
		out.Parent = &parent
	}
	return out
}

// TextDocumentSignatureHelp returns the field-level and, when
// applicable, component-level signature for the cursor position.
func (h *Handler) TextDocumentSignatureHelp(ctx context.Context, params lsp.SignatureHelpParams) (*lsp.SignatureHelp, error) {
	doc, ok := h.store.Snapshot(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	offset := offsetFromParams(doc, params.Position, h.currentEncoding())

	sigs, ok := h.signatureProvider.Help(doc, offset)
	if !ok {
		return nil, nil
	}
	out := make([]lsp.SignatureInformation, 0, len(sigs))
	activeParam := 0
	for i, s := range sigs {
		sigParams := make([]lsp.ParameterInformation, 0, len(s.Parameters))
		for _, p := range s.Parameters {
			sigParams = append(sigParams, lsp.ParameterInformation{Label: p.Label, Documentation: p.Doc})
		}
		out = append(out, lsp.SignatureInformation{Label: s.Label, Parameters: sigParams})
		if i == 0 {
			activeParam = s.ActiveParam
		}
	}
	return &lsp.SignatureHelp{Signatures: out, ActiveSignature: 0, ActiveParameter: activeParam}, nil
}

// TextDocumentCodeAction offers the hl7.* commands applicable at the
// requested range.
func (h *Handler) TextDocumentCodeAction(ctx context.Context, params lsp.CodeActionParams) ([]lsp.CodeAction, error) {
	doc, ok := h.store.Snapshot(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	enc := h.currentEncoding()
	start := offsetFromParams(doc, params.Range.Start, enc)
	end := offsetFromParams(doc, params.Range.End, enc)

	actions := h.codeActionProvider.Actions(doc, start, end)
	out := make([]lsp.CodeAction, 0, len(actions))
	for _, a := range actions {
		out = append(out, lsp.CodeAction{
			Title:   a.Title,
			Kind:    lsp.CodeActionKindSource,
			Command: lsp.Command{Title: a.Title, Command: a.Command, Arguments: a.Arguments},
		})
	}
	return out, nil
}

// WorkspaceExecuteCommand dispatches one of the registered hl7.*
// commands, applying the resulting WorkspaceEdit via the server's
// workspace/applyEdit request where the command mutates text.
func (h *Handler) WorkspaceExecuteCommand(ctx context.Context, params lsp.ExecuteCommandParams) (any, error) {
	outcome := "ok"
	defer func() { h.metrics.ObserveCommand(params.Command, outcome) }()

	switch params.Command {
	case "hl7.setTimestampToNow":
		return h.execSetTimestampToNow(ctx, params.Arguments)
	case "hl7.generateControlId":
		return h.execGenerateControlID(ctx, params.Arguments)
	case "hl7.sendMessage":
		result, err := h.execSendMessage(ctx, params.Arguments)
		if err != nil {
			outcome = commandErrorOutcome(err)
		}
		return result, err
	case "hl7.encodeText":
		return h.execEncodeText(params.Arguments)
	case "hl7.decodeText":
		return h.execDecodeText(params.Arguments)
	case "hl7.encodeSelection":
		return h.execEncodeSelection(ctx, params.Arguments)
	case "hl7.decodeSelection":
		return h.execDecodeSelection(ctx, params.Arguments)
	default:
		outcome = "unknown_command"
		return nil, fmt.Errorf("handler: unknown command %q", params.Command)
	}
}

func commandErrorOutcome(err error) string {
	var cmdErr *command.Error
	if e, ok := err.(*command.Error); ok {
		cmdErr = e
	}
	if cmdErr == nil {
		return "error"
	}
	return string(cmdErr.Outcome)
}

func argString(args []json.RawMessage, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("handler: missing argument %d", i)
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return "", fmt.Errorf("handler: argument %d is not a string: %w", i, err)
	}
	return s, nil
}

func argInt(args []json.RawMessage, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("handler: missing argument %d", i)
	}
	var n int
	if err := json.Unmarshal(args[i], &n); err != nil {
		return 0, fmt.Errorf("handler: argument %d is not a number: %w", i, err)
	}
	return n, nil
}

func (h *Handler) execSetTimestampToNow(ctx context.Context, args []json.RawMessage) (any, error) {
	uri, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	start, err := argInt(args, 1)
	if err != nil {
		return nil, err
	}
	end, err := argInt(args, 2)
	if err != nil {
		return nil, err
	}
	edit := command.SetTimestampToNow(uri, start, end)
	return h.applyWorkspaceEdit(ctx, edit)
}

func (h *Handler) execGenerateControlID(ctx context.Context, args []json.RawMessage) (any, error) {
	uri, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	doc, ok := h.store.Snapshot(uri)
	if !ok {
		return nil, fmt.Errorf("handler: document %s not open", uri)
	}
	edit, err := command.GenerateControlID(doc)
	if err != nil {
		return nil, err
	}
	return h.applyWorkspaceEdit(ctx, edit)
}

func (h *Handler) execSendMessage(ctx context.Context, args []json.RawMessage) (any, error) {
	uri, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	host, err := argString(args, 1)
	if err != nil {
		return nil, err
	}
	port, err := argInt(args, 2)
	if err != nil {
		return nil, err
	}
	timeoutMs := 0
	if len(args) > 3 {
		timeoutMs, _ = argInt(args, 3)
	}

	doc, ok := h.store.Snapshot(uri)
	if !ok {
		return nil, fmt.Errorf("handler: document %s not open", uri)
	}

	resp, err := command.SendMessage(ctx, doc, host, port, time.Duration(timeoutMs)*time.Millisecond)
	outcome := command.OutcomeOK
	if cmdErr, ok := err.(*command.Error); ok {
		outcome = cmdErr.Outcome
	}
	h.metrics.ObserveSendMessage(string(outcome))
	if err != nil {
		return nil, err
	}
	return map[string]string{"response": resp}, nil
}

// execEncodeText/execDecodeText operate on arbitrary pasted text with no
// backing document, so they use the default delimiter set rather than
// any document's declared one.
func (h *Handler) execEncodeText(args []json.RawMessage) (any, error) {
	text, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	return command.EncodeText(text, ast.Default()), nil
}

func (h *Handler) execDecodeText(args []json.RawMessage) (any, error) {
	text, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	return command.DecodeText(text, ast.Default()), nil
}

func (h *Handler) execEncodeSelection(ctx context.Context, args []json.RawMessage) (any, error) {
	uri, start, end, doc, err := h.selectionArgs(args)
	if err != nil {
		return nil, err
	}
	edit := command.EncodeSelection(doc, start, end)
	edit.URI = uri
	return h.applyWorkspaceEdit(ctx, edit)
}

func (h *Handler) execDecodeSelection(ctx context.Context, args []json.RawMessage) (any, error) {
	uri, start, end, doc, err := h.selectionArgs(args)
	if err != nil {
		return nil, err
	}
	edit := command.DecodeSelection(doc, start, end)
	edit.URI = uri
	return h.applyWorkspaceEdit(ctx, edit)
}

func (h *Handler) selectionArgs(args []json.RawMessage) (uri string, start, end int, doc *document.Document, err error) {
	uri, err = argString(args, 0)
	if err != nil {
		return "", 0, 0, nil, err
	}
	start, err = argInt(args, 1)
	if err != nil {
		return "", 0, 0, nil, err
	}
	end, err = argInt(args, 2)
	if err != nil {
		return "", 0, 0, nil, err
	}
	d, ok := h.store.Snapshot(uri)
	if !ok {
		return "", 0, 0, nil, fmt.Errorf("handler: document %s not open", uri)
	}
	return uri, start, end, d, nil
}

// applyWorkspaceEdit converts a byte-offset command.WorkspaceEdit into
// an LSP WorkspaceEdit and applies it via workspace/applyEdit.
func (h *Handler) applyWorkspaceEdit(ctx context.Context, edit command.WorkspaceEdit) (any, error) {
	server := h.currentServer()
	if server == nil {
		return nil, fmt.Errorf("handler: no server available to apply edit")
	}
	doc, ok := h.store.Snapshot(edit.URI)
	if !ok {
		return nil, fmt.Errorf("handler: document %s not open", edit.URI)
	}
	enc := h.currentEncoding()
	rng := toLSPRange(doc.Text, document.ByteRange{Start: edit.Start, End: edit.End}, enc)

	result, err := server.ApplyEdit(ctx, lsp.WorkspaceEdit{
		Changes: map[string][]lsp.TextEdit{
			edit.URI: {{Range: rng, NewText: edit.Text}},
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

