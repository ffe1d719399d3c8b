package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	initializeCalls  int
	initializedCalls int
	shutdownCalls    int
	hoverCalls       int
}

func (h *fakeHandler) Initialize(params InitializeParams) (*InitializeResult, error) {
	h.initializeCalls++
	return &InitializeResult{Capabilities: ServerCapabilities{}}, nil
}
func (h *fakeHandler) Initialized() { h.initializedCalls++ }
func (h *fakeHandler) Shutdown()    { h.shutdownCalls++ }

func (h *fakeHandler) TextDocumentDidOpen(params TextDocumentItem) error { return nil }
func (h *fakeHandler) TextDocumentDidChange(params VersionedTextDocumentIdentifier, changes []TextDocumentContentChangeEvent) error {
	return nil
}
func (h *fakeHandler) TextDocumentDidClose(uri string) error { return nil }

func (h *fakeHandler) TextDocumentHover(ctx context.Context, params TextDocumentPositionParams) (*Hover, error) {
	h.hoverCalls++
	return &Hover{Contents: MarkupContent{Kind: MarkupKindMarkdown, Value: "hi"}}, nil
}
func (h *fakeHandler) TextDocumentCompletion(ctx context.Context, params TextDocumentPositionParams) ([]CompletionItem, error) {
	return nil, nil
}
func (h *fakeHandler) TextDocumentDocumentSymbol(ctx context.Context, params DocumentSymbolParams) ([]DocumentSymbol, error) {
	return nil, nil
}
func (h *fakeHandler) TextDocumentSelectionRange(ctx context.Context, params SelectionRangeParams) ([]SelectionRange, error) {
	return nil, nil
}
func (h *fakeHandler) TextDocumentSignatureHelp(ctx context.Context, params SignatureHelpParams) (*SignatureHelp, error) {
	return nil, nil
}
func (h *fakeHandler) TextDocumentCodeAction(ctx context.Context, params CodeActionParams) ([]CodeAction, error) {
	return nil, nil
}
func (h *fakeHandler) WorkspaceExecuteCommand(ctx context.Context, params ExecuteCommandParams) (any, error) {
	return nil, nil
}

func encodeRequest(t *testing.T, id interface{}, method string, params interface{}) []byte {
	t.Helper()
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)
	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: paramsJSON}
	data, err := EncodeMessage(req)
	require.NoError(t, err)
	return data
}

func encodeNotification(t *testing.T, method string, params interface{}) []byte {
	t.Helper()
	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		paramsJSON = data
	}
	notif := Notification{JSONRPC: "2.0", Method: method, Params: paramsJSON}
	data, err := EncodeMessage(notif)
	require.NoError(t, err)
	return data
}

// readResponses decodes every Content-Length-framed message in buf,
// using the same header/body framing the Server itself writes and reads.
func readResponses(t *testing.T, buf *bytes.Buffer) []Response {
	t.Helper()
	r := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	var out []Response
	for {
		contentLength := -1
		for {
			line, err := r.ReadString('\n')
			if err == io.EOF && line == "" {
				return out
			}
			require.NoError(t, err)
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				break
			}
			parts := strings.SplitN(line, ": ", 2)
			if len(parts) == 2 && parts[0] == "Content-Length" {
				n, convErr := strconv.Atoi(parts[1])
				require.NoError(t, convErr)
				contentLength = n
			}
		}
		require.GreaterOrEqual(t, contentLength, 0)

		content := make([]byte, contentLength)
		_, err := io.ReadFull(r, content)
		require.NoError(t, err)

		var resp Response
		require.NoError(t, json.Unmarshal(content, &resp))
		out = append(out, resp)
	}
}

func TestServerRejectsRequestsBeforeInitialize(t *testing.T) {
	h := &fakeHandler{}
	var in bytes.Buffer
	in.Write(encodeRequest(t, float64(1), "textDocument/hover", TextDocumentPositionParams{}))

	var out bytes.Buffer
	srv := NewServer(&in, &out, h)
	require.NoError(t, srv.Start())

	resps := readResponses(t, &out)
	require.Len(t, resps, 1)
	require.NotNil(t, resps[0].Error)
	assert.Equal(t, ServerNotInitialized, resps[0].Error.Code)
	assert.Equal(t, 0, h.hoverCalls)
}

func TestServerInitializeThenHoverSucceeds(t *testing.T) {
	h := &fakeHandler{}
	var in bytes.Buffer
	in.Write(encodeRequest(t, float64(1), "initialize", InitializeParams{}))
	in.Write(encodeNotification(t, "initialized", nil))
	in.Write(encodeRequest(t, float64(2), "textDocument/hover", TextDocumentPositionParams{}))

	var out bytes.Buffer
	srv := NewServer(&in, &out, h)
	require.NoError(t, srv.Start())

	resps := readResponses(t, &out)
	require.Len(t, resps, 2)
	assert.Nil(t, resps[0].Error)
	assert.Nil(t, resps[1].Error)
	assert.Equal(t, 1, h.initializeCalls)
	assert.Equal(t, 1, h.initializedCalls)
	assert.Equal(t, 1, h.hoverCalls)
}

func TestServerShutdownThenExitStopsCleanly(t *testing.T) {
	h := &fakeHandler{}
	var in bytes.Buffer
	in.Write(encodeRequest(t, float64(1), "initialize", InitializeParams{}))
	in.Write(encodeRequest(t, float64(2), "shutdown", nil))
	in.Write(encodeNotification(t, "exit", nil))

	var out bytes.Buffer
	srv := NewServer(&in, &out, h)
	err := srv.Start()
	require.NoError(t, err)
	assert.Equal(t, 1, h.shutdownCalls)
}

func TestServerUnknownMethodReturnsMethodNotFound(t *testing.T) {
	h := &fakeHandler{}
	var in bytes.Buffer
	in.Write(encodeRequest(t, float64(1), "initialize", InitializeParams{}))
	in.Write(encodeRequest(t, float64(2), "textDocument/bogus", nil))

	var out bytes.Buffer
	srv := NewServer(&in, &out, h)
	require.NoError(t, srv.Start())

	resps := readResponses(t, &out)
	require.Len(t, resps, 2)
	require.NotNil(t, resps[1].Error)
	assert.Equal(t, MethodNotFound, resps[1].Error.Code)
}
