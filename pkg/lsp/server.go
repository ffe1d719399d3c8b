package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cybersorcerer/hl7-ls/internal/logger"
)

// state is the server's lifecycle state machine: Created -> Initialized
// -> ShuttingDown -> Exited. Outside Initialized, every request other
// than initialize fails with ServerNotInitialized; exit is a
// notification and is never gated.
type state int32

const (
	stateCreated state = iota
	stateInitialized
	stateShuttingDown
	stateExited
)

// Handler is implemented by the component that wires the Schema
// Registry, Document Store, and feature providers (C1-C7) behind the
// Server Loop (C8). Feature methods take a context so a queued call can
// observe $/cancelRequest.
type Handler interface {
	Initialize(params InitializeParams) (*InitializeResult, error)
	Initialized()
	Shutdown()

	TextDocumentDidOpen(params TextDocumentItem) error
	TextDocumentDidChange(params VersionedTextDocumentIdentifier, changes []TextDocumentContentChangeEvent) error
	TextDocumentDidClose(uri string) error

	TextDocumentHover(ctx context.Context, params TextDocumentPositionParams) (*Hover, error)
	TextDocumentCompletion(ctx context.Context, params TextDocumentPositionParams) ([]CompletionItem, error)
	TextDocumentDocumentSymbol(ctx context.Context, params DocumentSymbolParams) ([]DocumentSymbol, error)
	TextDocumentSelectionRange(ctx context.Context, params SelectionRangeParams) ([]SelectionRange, error)
	TextDocumentSignatureHelp(ctx context.Context, params SignatureHelpParams) (*SignatureHelp, error)
	TextDocumentCodeAction(ctx context.Context, params CodeActionParams) ([]CodeAction, error)
	WorkspaceExecuteCommand(ctx context.Context, params ExecuteCommandParams) (any, error)
}

// Server is the Server Loop (C8): a single reader thread pulling framed
// JSON-RPC messages from stdin, a bounded worker pool running feature
// request handlers, and a single writer serialising responses to
// stdout. Document-mutating notifications (didOpen/didChange/didClose)
// run synchronously on the reader thread so edits for one URI are
// totally ordered, per the concurrency model; read-only feature
// requests are dispatched to the worker pool.
type Server struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex

	handler Handler
	state   state

	sem chan struct{} // bounds concurrent feature-request workers

	pendingMu sync.Mutex
	pending   map[string]context.CancelFunc

	outMu      sync.Mutex
	outNextID  int64
	outPending map[string]chan *Response

	wg sync.WaitGroup
}

// NewServer creates a new LSP server.
func NewServer(reader io.Reader, writer io.Writer, handler Handler) *Server {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	return &Server{
		reader:     bufio.NewReader(reader),
		writer:     writer,
		handler:    handler,
		sem:        make(chan struct{}, workers),
		pending:    make(map[string]context.CancelFunc),
		outPending: make(map[string]chan *Response),
	}
}

// Start runs the read loop until the client disconnects or sends exit.
// It blocks the caller; Start returns nil on normal shutdown (exit code
// 0, per §6) or a transport error (exit code 1).
func (s *Server) Start() error {
	for {
		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				logger.Info("client disconnected")
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("transport: %w", err)
		}

		if err := s.handleMessage(msg); err != nil {
			if err == errExit {
				s.wg.Wait()
				return nil
			}
			logger.Error("error handling message: %v", err)
		}
	}
}

var errExit = fmt.Errorf("exit")

func (s *Server) readMessage() ([]byte, error) {
	headers := make(map[string]string)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) == 2 {
			headers[parts[0]] = parts[1]
		}
	}

	contentLengthStr, ok := headers["Content-Length"]
	if !ok {
		return nil, fmt.Errorf("missing Content-Length header")
	}
	contentLength, err := strconv.Atoi(contentLengthStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Content-Length: %w", err)
	}

	content := make([]byte, contentLength)
	if _, err := io.ReadFull(s.reader, content); err != nil {
		return nil, err
	}
	return content, nil
}

func (s *Server) handleMessage(msg []byte) error {
	var generic map[string]interface{}
	if err := json.Unmarshal(msg, &generic); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if _, hasID := generic["id"]; hasID {
		if _, hasMethod := generic["method"]; !hasMethod {
			var resp Response
			if err := json.Unmarshal(msg, &resp); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			return s.handleClientResponse(&resp)
		}
		var req Request
		if err := json.Unmarshal(msg, &req); err != nil {
			return fmt.Errorf("invalid request: %w", err)
		}
		return s.handleRequest(&req)
	}

	var notif Notification
	if err := json.Unmarshal(msg, &notif); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}
	return s.handleNotification(&notif)
}

func idKey(id interface{}) string {
	return fmt.Sprintf("%v", id)
}

// synchronous reports whether a request method must run on the reader
// thread (the initialize and shutdown lifecycle requests) rather than the
// worker pool. Document-mutating notifications never reach this check:
// handleNotification runs them on the reader thread directly.
func synchronous(method string) bool {
	switch method {
	case "initialize", "shutdown":
		return true
	default:
		return false
	}
}

func (s *Server) handleRequest(req *Request) error {
	if state(s.state) != stateInitialized && req.Method != "initialize" {
		return s.sendErrorResponse(req.ID, ServerNotInitialized, "server is not initialized")
	}

	if synchronous(req.Method) {
		return s.dispatchRequest(context.Background(), req)
	}

	ctx, cancel := context.WithCancel(context.Background())
	key := idKey(req.ID)
	s.pendingMu.Lock()
	s.pending[key] = cancel
	s.pendingMu.Unlock()

	s.sem <- struct{}{}
	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.sem
			s.pendingMu.Lock()
			delete(s.pending, key)
			s.pendingMu.Unlock()
			s.wg.Done()
		}()
		if err := s.dispatchRequest(ctx, req); err != nil {
			logger.Error("error handling request %s: %v", req.Method, err)
		}
	}()
	return nil
}

func (s *Server) dispatchRequest(ctx context.Context, req *Request) error {
	switch req.Method {
	case "initialize":
		var params InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.sendErrorResponse(req.ID, InvalidParams, "invalid params")
		}
		result, err := s.handler.Initialize(params)
		if err != nil {
			return s.sendErrorResponse(req.ID, InternalError, err.Error())
		}
		s.state = stateInitialized
		return s.sendResponse(req.ID, result)

	case "shutdown":
		s.state = stateShuttingDown
		s.handler.Shutdown()
		return s.sendResponse(req.ID, nil)

	case "textDocument/hover":
		var params TextDocumentPositionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.sendErrorResponse(req.ID, InvalidParams, "invalid params")
		}
		result, err := s.handler.TextDocumentHover(ctx, params)
		return s.respondOrCancel(req.ID, ctx, result, err)

	case "textDocument/completion":
		var params TextDocumentPositionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.sendErrorResponse(req.ID, InvalidParams, "invalid params")
		}
		result, err := s.handler.TextDocumentCompletion(ctx, params)
		return s.respondOrCancel(req.ID, ctx, result, err)

	case "textDocument/documentSymbol":
		var params DocumentSymbolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.sendErrorResponse(req.ID, InvalidParams, "invalid params")
		}
		result, err := s.handler.TextDocumentDocumentSymbol(ctx, params)
		return s.respondOrCancel(req.ID, ctx, result, err)

	case "textDocument/selectionRange":
		var params SelectionRangeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.sendErrorResponse(req.ID, InvalidParams, "invalid params")
		}
		result, err := s.handler.TextDocumentSelectionRange(ctx, params)
		return s.respondOrCancel(req.ID, ctx, result, err)

	case "textDocument/signatureHelp":
		var params SignatureHelpParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.sendErrorResponse(req.ID, InvalidParams, "invalid params")
		}
		result, err := s.handler.TextDocumentSignatureHelp(ctx, params)
		return s.respondOrCancel(req.ID, ctx, result, err)

	case "textDocument/codeAction":
		var params CodeActionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.sendErrorResponse(req.ID, InvalidParams, "invalid params")
		}
		result, err := s.handler.TextDocumentCodeAction(ctx, params)
		return s.respondOrCancel(req.ID, ctx, result, err)

	case "workspace/executeCommand":
		var params ExecuteCommandParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.sendErrorResponse(req.ID, InvalidParams, "invalid params")
		}
		result, err := s.handler.WorkspaceExecuteCommand(ctx, params)
		return s.respondOrCancel(req.ID, ctx, result, err)

	default:
		logger.Debug("unknown method: %s", req.Method)
		return s.sendErrorResponse(req.ID, MethodNotFound, "method not found")
	}
}

// respondOrCancel re-checks ctx before writing a response tied to
// positions: a request whose $/cancelRequest arrived while its handler
// ran is answered with RequestCancelled instead of its result. A newer
// edit to the document does not cancel a pending request.
func (s *Server) respondOrCancel(id interface{}, ctx context.Context, result any, err error) error {
	if ctx.Err() != nil {
		return s.sendErrorResponse(id, RequestCancelled, "request cancelled")
	}
	if err != nil {
		return s.sendErrorResponse(id, InternalError, err.Error())
	}
	return s.sendResponse(id, result)
}

func (s *Server) handleNotification(notif *Notification) error {
	switch notif.Method {
	case "initialized":
		s.handler.Initialized()
		return nil

	case "textDocument/didOpen":
		var params struct {
			TextDocument TextDocumentItem `json:"textDocument"`
		}
		if err := json.Unmarshal(notif.Params, &params); err != nil {
			return err
		}
		return s.handler.TextDocumentDidOpen(params.TextDocument)

	case "textDocument/didChange":
		var params struct {
			TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
			ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
		}
		if err := json.Unmarshal(notif.Params, &params); err != nil {
			return err
		}
		return s.handler.TextDocumentDidChange(params.TextDocument, params.ContentChanges)

	case "textDocument/didClose":
		var params struct {
			TextDocument TextDocumentIdentifier `json:"textDocument"`
		}
		if err := json.Unmarshal(notif.Params, &params); err != nil {
			return err
		}
		return s.handler.TextDocumentDidClose(params.TextDocument.URI)

	case "$/cancelRequest":
		var params CancelParams
		if err := json.Unmarshal(notif.Params, &params); err != nil {
			return err
		}
		s.pendingMu.Lock()
		cancel, ok := s.pending[idKey(params.ID)]
		s.pendingMu.Unlock()
		if ok {
			cancel()
		}
		return nil

	case "exit":
		logger.Info("received exit notification")
		return errExit

	default:
		logger.Debug("unhandled notification: %s", notif.Method)
		return nil
	}
}

// sendResponse sends a response to the client.
func (s *Server) sendResponse(id interface{}, result interface{}) error {
	return s.writeMessage(NewResponse(id, result))
}

// sendErrorResponse sends an error response to the client.
func (s *Server) sendErrorResponse(id interface{}, code int, message string) error {
	return s.writeMessage(NewErrorResponse(id, code, message))
}

// SendNotification sends a notification to the client.
func (s *Server) SendNotification(method string, params interface{}) error {
	return s.writeMessage(NewNotification(method, params))
}

// ApplyEdit sends a workspace/applyEdit request and blocks until the
// client answers or ctx is done. The one reader goroutine routes the
// matching response back to the waiting caller via handleClientResponse.
func (s *Server) ApplyEdit(ctx context.Context, edit WorkspaceEdit) (*ApplyWorkspaceEditResult, error) {
	correlationID := uuid.New().String()

	s.outMu.Lock()
	s.outNextID++
	id := fmt.Sprintf("srv-%d", s.outNextID)
	ch := make(chan *Response, 1)
	s.outPending[id] = ch
	s.outMu.Unlock()

	defer func() {
		s.outMu.Lock()
		delete(s.outPending, id)
		s.outMu.Unlock()
	}()

	uris := make([]string, 0, len(edit.Changes))
	for uri := range edit.Changes {
		uris = append(uris, uri)
	}
	logger.L().Debug().Str("correlation_id", correlationID).Str("uri", strings.Join(uris, ",")).Msg("sending workspace/applyEdit")

	req := &Request{JSONRPC: "2.0", ID: id, Method: "workspace/applyEdit"}
	paramsJSON, err := json.Marshal(ApplyWorkspaceEditParams{Edit: edit})
	if err != nil {
		return nil, err
	}
	req.Params = paramsJSON
	if err := s.writeMessage(req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			logger.L().Debug().Str("correlation_id", correlationID).Str("error", resp.Error.Message).Msg("workspace/applyEdit rejected")
			return nil, fmt.Errorf("workspace/applyEdit: %s", resp.Error.Message)
		}
		var result ApplyWorkspaceEditResult
		data, err := json.Marshal(resp.Result)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, err
		}
		return &result, nil
	}
}

func (s *Server) handleClientResponse(resp *Response) error {
	key := idKey(resp.ID)
	s.outMu.Lock()
	ch, ok := s.outPending[key]
	s.outMu.Unlock()
	if !ok {
		logger.Debug("response for unknown request id %v", resp.ID)
		return nil
	}
	ch <- resp
	return nil
}

func (s *Server) writeMessage(msg interface{}) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.writer.Write(data)
	return err
}
