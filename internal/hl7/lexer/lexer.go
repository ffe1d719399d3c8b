// Package lexer tokenizes a single HL7 segment line into a flat stream
// of TEXT and delimiter tokens, given the document's Delimiters. The
// parser package consumes this stream to build the structural tree.
package lexer

import "github.com/cybersorcerer/hl7-ls/internal/hl7/ast"

// Lexer scans one segment line, producing delimiter-aware tokens whose
// spans are offsets into the full document, not the line.
type Lexer struct {
	input  string // full document text
	delims ast.Delimiters
	pos    int // current offset into input
	end    int // exclusive end offset of this segment line
}

// New returns a Lexer positioned to scan input[start:end] using delims.
func New(input string, start, end int, delims ast.Delimiters) *Lexer {
	return &Lexer{input: input, delims: delims, pos: start, end: end}
}

// Tokens consumes the whole line and returns every token, including a
// trailing EOF token.
func (l *Lexer) Tokens() []Token {
	var tokens []Token
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

func (l *Lexer) delimiterType(b byte) TokenType {
	switch b {
	case l.delims.Field:
		return FieldSep
	case l.delims.Repetition:
		return RepSep
	case l.delims.Component:
		return CompSep
	case l.delims.Subcomponent:
		return SubSep
	default:
		return ILLEGAL
	}
}

// Next returns the next token: either a single delimiter byte, a run of
// text up to (but excluding) the next delimiter, or EOF.
func (l *Lexer) Next() Token {
	if l.pos >= l.end {
		return Token{Type: EOF, Start: l.end, End: l.end}
	}

	if tt := l.delimiterType(l.input[l.pos]); tt != ILLEGAL {
		start := l.pos
		l.pos++
		return Token{Type: tt, Literal: l.input[start:l.pos], Start: start, End: l.pos}
	}

	start := l.pos
	for l.pos < l.end && l.delimiterType(l.input[l.pos]) == ILLEGAL {
		l.pos++
	}
	return Token{Type: TEXT, Literal: l.input[start:l.pos], Start: start, End: l.pos}
}
