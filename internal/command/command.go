// Package command implements the Command Executor (C6): the seven
// hl7.* commands offered by code actions and invoked via
// workspace/executeCommand.
package command

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cybersorcerer/hl7-ls/internal/document"
	"github.com/cybersorcerer/hl7-ls/internal/hl7/ast"
	"github.com/cybersorcerer/hl7-ls/internal/logger"
)

// WorkspaceEdit is a single replacement of a byte range within one
// document's text, the byte-offset analogue of an LSP WorkspaceEdit
// carrying one TextEdit.
type WorkspaceEdit struct {
	URI   string
	Start int
	End   int
	Text  string
}

// Outcome classifies how an hl7.sendMessage outcall ended, for the
// caller to report via metrics and translate into an InternalError.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeConnectError  Outcome = "connect_error"
	OutcomeProtocolError Outcome = "protocol_error"
)

// Error wraps a command failure with its outcome, so callers can
// translate it into the right LSP error without string matching.
type Error struct {
	Outcome Outcome
	Err     error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Outcome, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

const maxResponseBytes = 65535

// defaultTimeout is used when hl7.sendMessage's optional timeout
// argument is zero.
const defaultTimeout = 10 * time.Second

const controlIDCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const controlIDLength = 20

// SetTimestampToNow returns a WorkspaceEdit replacing [start,end) with
// the current local time formatted YYYYMMDDHHMMSS.
func SetTimestampToNow(uri string, start, end int) WorkspaceEdit {
	return WorkspaceEdit{URI: uri, Start: start, End: end, Text: time.Now().Format("20060102150405")}
}

// GenerateControlID returns a WorkspaceEdit replacing MSH.10's span with
// a new 20-character alphanumeric string drawn from crypto/rand.
func GenerateControlID(doc *document.Document) (WorkspaceEdit, error) {
	msh, ok := doc.Tree.First("MSH")
	if !ok {
		return WorkspaceEdit{}, fmt.Errorf("hl7.generateControlId: no MSH segment")
	}
	field, ok := msh.FieldAt(10)
	if !ok {
		return WorkspaceEdit{}, fmt.Errorf("hl7.generateControlId: MSH has no field 10")
	}
	id, err := randomControlID()
	if err != nil {
		return WorkspaceEdit{}, err
	}
	return WorkspaceEdit{URI: doc.URI, Start: field.Span.Start, End: field.Span.End, Text: id}, nil
}

func randomControlID() (string, error) {
	buf := make([]byte, controlIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("hl7.generateControlId: %w", err)
	}
	out := make([]byte, controlIDLength)
	for i, b := range buf {
		out[i] = controlIDCharset[int(b)%len(controlIDCharset)]
	}
	return string(out), nil
}

// SendMessage frames doc's text as MLLP and sends it to hostname:port
// over plain TCP, returning the decoded response text. A zero timeout
// uses defaultTimeout.
func SendMessage(ctx context.Context, doc *document.Document, hostname string, port int, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	addr := net.JoinHostPort(hostname, fmt.Sprintf("%d", port))

	correlationID := uuid.New().String()
	log := logger.L().With().Str("correlation_id", correlationID).Str("addr", addr).Logger()
	log.Debug().Msg("hl7.sendMessage: dialing MLLP peer")

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		log.Debug().Err(err).Msg("hl7.sendMessage: connect failed")
		return "", &Error{Outcome: OutcomeConnectError, Err: err}
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", &Error{Outcome: OutcomeConnectError, Err: err}
	}

	if _, err := conn.Write(mllpFrame(doc.Text)); err != nil {
		return "", classifyWriteErr(err)
	}

	resp, err := readMLLPResponse(conn)
	if err != nil {
		log.Debug().Err(err).Msg("hl7.sendMessage: read failed")
		return "", classifyReadErr(err)
	}
	log.Debug().Int("response_bytes", len(resp)).Msg("hl7.sendMessage: received MLLP response")
	return strings.ReplaceAll(string(resp), "\r", "\n"), nil
}

// mllpFrame wraps text in MLLP start/end sentinels, first normalising
// any CRLF or bare LF segment terminator to a bare \r, the HL7-over-MLLP
// convention.
func mllpFrame(text string) []byte {
	normalized := strings.ReplaceAll(text, "\r\n", "\r")
	normalized = strings.ReplaceAll(normalized, "\n", "\r")

	buf := make([]byte, 0, len(normalized)+3)
	buf = append(buf, 0x0B)
	buf = append(buf, normalized...)
	buf = append(buf, 0x1C, 0x0D)
	return buf
}

// readMLLPResponse reads from conn until the MLLP trailer (0x1C 0x0D) is
// seen, the connection closes, or maxResponseBytes is exceeded.
func readMLLPResponse(conn net.Conn) ([]byte, error) {
	r := bufio.NewReader(conn)

	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if b != 0x0B {
		return nil, fmt.Errorf("hl7.sendMessage: response missing MLLP start byte")
	}

	var out []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0x1C {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			if next == 0x0D {
				return out, nil
			}
			out = append(out, b, next)
			continue
		}
		out = append(out, b)
		if len(out) > maxResponseBytes {
			return nil, fmt.Errorf("hl7.sendMessage: response exceeded %d bytes", maxResponseBytes)
		}
	}
}

func classifyWriteErr(err error) error {
	if isTimeout(err) {
		return &Error{Outcome: OutcomeTimeout, Err: err}
	}
	return &Error{Outcome: OutcomeConnectError, Err: err}
}

func classifyReadErr(err error) error {
	if err == io.EOF {
		return &Error{Outcome: OutcomeProtocolError, Err: fmt.Errorf("connection closed before MLLP trailer")}
	}
	if isTimeout(err) {
		return &Error{Outcome: OutcomeTimeout, Err: err}
	}
	return &Error{Outcome: OutcomeProtocolError, Err: err}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// EncodeText applies HL7 escape rules to text under delims, one byte at
// a time so multi-byte UTF-8 sequences pass through untouched.
func EncodeText(text string, delims ast.Delimiters) string {
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case delims.Field:
			b.WriteString("\\F\\")
		case delims.Component:
			b.WriteString("\\S\\")
		case delims.Subcomponent:
			b.WriteString("\\T\\")
		case delims.Repetition:
			b.WriteString("\\R\\")
		case delims.Escape:
			b.WriteString("\\E\\")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var escapeCodeToDelim = map[byte]func(ast.Delimiters) byte{
	'F': func(d ast.Delimiters) byte { return d.Field },
	'S': func(d ast.Delimiters) byte { return d.Component },
	'T': func(d ast.Delimiters) byte { return d.Subcomponent },
	'R': func(d ast.Delimiters) byte { return d.Repetition },
	'E': func(d ast.Delimiters) byte { return d.Escape },
}

// DecodeText is the inverse of EncodeText. Unknown escape sequences are
// passed through unchanged rather than rejected.
func DecodeText(text string, delims ast.Delimiters) string {
	var b strings.Builder
	esc := delims.Escape
	i := 0
	for i < len(text) {
		if text[i] != esc {
			b.WriteByte(text[i])
			i++
			continue
		}
		end := strings.IndexByte(text[i+1:], esc)
		if end < 0 {
			b.WriteByte(text[i])
			i++
			continue
		}
		code := text[i+1 : i+1+end]
		if len(code) == 1 {
			if fn, ok := escapeCodeToDelim[code[0]]; ok {
				b.WriteByte(fn(delims))
				i += end + 2
				continue
			}
		}
		b.WriteString(text[i : i+end+2])
		i += end + 2
	}
	return b.String()
}

// EncodeSelection returns a WorkspaceEdit applying EncodeText to
// [start,end) of doc's text.
func EncodeSelection(doc *document.Document, start, end int) WorkspaceEdit {
	return WorkspaceEdit{URI: doc.URI, Start: start, End: end, Text: EncodeText(doc.Text[start:end], doc.Delimiters)}
}

// DecodeSelection returns a WorkspaceEdit applying DecodeText to
// [start,end) of doc's text.
func DecodeSelection(doc *document.Document, start, end int) WorkspaceEdit {
	return WorkspaceEdit{URI: doc.URI, Start: start, End: end, Text: DecodeText(doc.Text[start:end], doc.Delimiters)}
}
