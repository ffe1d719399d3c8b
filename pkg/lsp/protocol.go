package lsp

import "encoding/json"

// LSP Protocol types and structures for the subset of LSP 3.17 this
// server implements: textDocumentSync, hover, completion, documentSymbol,
// selectionRange, signatureHelp, codeAction, executeCommand.

// Position represents a position in a text document, under the
// negotiated PositionEncodingKind.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range represents a range in a text document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location represents a location in a text document.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// Diagnostic represents a diagnostic (error, warning, etc.)
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"`
	Code     string `json:"code,omitempty"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

// DiagnosticSeverity levels
const (
	SeverityError       = 1
	SeverityWarning     = 2
	SeverityInformation = 3
	SeverityHint        = 4
)

// PublishDiagnosticsParams is the payload of a
// textDocument/publishDiagnostics notification. Version is included so a
// client that tracks it can discard diagnostics for a version it has
// since edited past.
type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     int          `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// TextDocumentIdentifier identifies a text document.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a versioned text document.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem represents a text document.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// TextDocumentContentChangeEvent describes a change to a text document.
// A nil Range means a full-document replacement.
type TextDocumentContentChangeEvent struct {
	Range       *Range `json:"range,omitempty"`
	RangeLength int    `json:"rangeLength,omitempty"`
	Text        string `json:"text"`
}

// TextDocumentPositionParams is the common shape of every
// position-addressed request this server answers.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// TextEdit represents a text edit.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// WorkspaceEdit carries the per-document text edits a command applies.
type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes,omitempty"`
}

// ApplyWorkspaceEditParams is sent as a workspace/applyEdit request.
type ApplyWorkspaceEditParams struct {
	Label string        `json:"label,omitempty"`
	Edit  WorkspaceEdit `json:"edit"`
}

// ApplyWorkspaceEditResult is the client's response to workspace/applyEdit.
type ApplyWorkspaceEditResult struct {
	Applied       bool   `json:"applied"`
	FailureReason string `json:"failureReason,omitempty"`
}

// CompletionItem represents a completion item.
type CompletionItem struct {
	Label    string `json:"label"`
	Kind     int    `json:"kind,omitempty"`
	Detail   string `json:"detail,omitempty"`
	SortText string `json:"sortText,omitempty"`
}

// CompletionItemKind values
const (
	CompletionItemKindText     = 1
	CompletionItemKindField    = 5
	CompletionItemKindEnum     = 13
	CompletionItemKindKeyword  = 14
	CompletionItemKindConstant = 21
)

// Hover represents hover information.
type Hover struct {
	Contents MarkupContent `json:"contents"`
	Range    *Range        `json:"range,omitempty"`
}

// MarkupContent represents marked up content.
type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// MarkupKind values
const (
	MarkupKindPlainText = "plaintext"
	MarkupKindMarkdown  = "markdown"
)

// PositionEncodingKind is the negotiated unit LSP `character` offsets
// are counted in within a line.
type PositionEncodingKind string

const (
	PositionEncodingUTF8  PositionEncodingKind = "utf-8"
	PositionEncodingUTF16 PositionEncodingKind = "utf-16"
	PositionEncodingUTF32 PositionEncodingKind = "utf-32"
)

// ServerCapabilities describes the capabilities of the server.
type ServerCapabilities struct {
	PositionEncoding       PositionEncodingKind    `json:"positionEncoding,omitempty"`
	TextDocumentSync       int                     `json:"textDocumentSync,omitempty"`
	CompletionProvider     *CompletionOptions      `json:"completionProvider,omitempty"`
	HoverProvider          bool                    `json:"hoverProvider,omitempty"`
	DocumentSymbolProvider bool                    `json:"documentSymbolProvider,omitempty"`
	SelectionRangeProvider bool                    `json:"selectionRangeProvider,omitempty"`
	SignatureHelpProvider  *SignatureHelpOptions   `json:"signatureHelpProvider,omitempty"`
	CodeActionProvider     bool                    `json:"codeActionProvider,omitempty"`
	ExecuteCommandProvider *ExecuteCommandOptions  `json:"executeCommandProvider,omitempty"`
}

// TextDocumentSyncKind values
const (
	TextDocumentSyncNone        = 0
	TextDocumentSyncFull        = 1
	TextDocumentSyncIncremental = 2
)

// CompletionOptions describes completion options. No trigger characters
// are declared: invocation is always explicit or by client heuristic.
type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

// SignatureHelpOptions describes signature help options.
type SignatureHelpOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

// ExecuteCommandOptions lists the workspace commands the server handles.
type ExecuteCommandOptions struct {
	Commands []string `json:"commands"`
}

// Commands is the fixed set of hl7.* commands this server registers
// with executeCommandProvider and accepts via workspace/executeCommand.
var Commands = []string{
	"hl7.setTimestampToNow",
	"hl7.generateControlId",
	"hl7.sendMessage",
	"hl7.encodeText",
	"hl7.decodeText",
	"hl7.encodeSelection",
	"hl7.decodeSelection",
}

// GeneralClientCapabilities is the subset of ClientCapabilities.general
// this server reads: the client's ranked position encoding preference.
type GeneralClientCapabilities struct {
	PositionEncodings []PositionEncodingKind `json:"positionEncodings,omitempty"`
}

// ClientCapabilities is the subset of the client's declared capabilities
// this server inspects during negotiation.
type ClientCapabilities struct {
	General *GeneralClientCapabilities `json:"general,omitempty"`
}

// WorkspaceFolder is one root the client asked the server to operate
// over.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// InitializeParams represents the initialize request parameters.
type InitializeParams struct {
	ProcessID        int                 `json:"processId"`
	RootURI          string              `json:"rootUri,omitempty"`
	Capabilities     ClientCapabilities  `json:"capabilities"`
	WorkspaceFolders []WorkspaceFolder   `json:"workspaceFolders,omitempty"`
}

// InitializeResult represents the initialize response.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerInfo contains server information.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// DocumentSymbolParams represents textDocument/documentSymbol request params.
type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DocumentSymbol represents a symbol in a document (hierarchical).
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolKind represents the kind of a symbol.
type SymbolKind int

// SymbolKind values this server emits (segment = Namespace, field = Field).
const (
	SymbolKindNamespace SymbolKind = 3
	SymbolKindField     SymbolKind = 8
)

// SelectionRangeParams represents textDocument/selectionRange request params.
type SelectionRangeParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Positions    []Position             `json:"positions"`
}

// SelectionRange is one link of a selection range chain, LSP-shaped: the
// parent is nested rather than a flat list.
type SelectionRange struct {
	Range  Range           `json:"range"`
	Parent *SelectionRange `json:"parent,omitempty"`
}

// SignatureHelpParams represents textDocument/signatureHelp request params.
type SignatureHelpParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// SignatureHelp is the result of a textDocument/signatureHelp request.
type SignatureHelp struct {
	Signatures      []SignatureInformation `json:"signatures"`
	ActiveSignature int                    `json:"activeSignature"`
	ActiveParameter int                    `json:"activeParameter"`
}

// SignatureInformation describes one callable-looking signature.
type SignatureInformation struct {
	Label      string                 `json:"label"`
	Parameters []ParameterInformation `json:"parameters,omitempty"`
}

// ParameterInformation describes one labelled parameter of a signature.
type ParameterInformation struct {
	Label         string `json:"label"`
	Documentation string `json:"documentation,omitempty"`
}

// CodeActionParams represents textDocument/codeAction request params.
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      CodeActionContext      `json:"context"`
}

// CodeActionContext carries the diagnostics visible at the requested range.
type CodeActionContext struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// CodeAction is one offered quick fix or refactor, always backed by a
// server Command rather than an inline edit.
type CodeAction struct {
	Title   string  `json:"title"`
	Kind    string  `json:"kind,omitempty"`
	Command Command `json:"command"`
}

// CodeActionKind values this server uses.
const CodeActionKindSource = "source"

// Command names a server-executed command with pre-filled arguments.
type Command struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// ExecuteCommandParams represents workspace/executeCommand request params.
type ExecuteCommandParams struct {
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// CancelParams represents $/cancelRequest notification params.
type CancelParams struct {
	ID interface{} `json:"id"`
}
