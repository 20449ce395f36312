package parser

import (
	"fmt"
)

// TokenType represents the type of a token
type TokenType int

const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF

	// Relation names
	TOKEN_IDENTIFIER

	// Operators
	TOKEN_CARET // ^ (all remaining levels)
	TOKEN_STAR  // * (all relations)

	// Delimiters
	TOKEN_LBRACKET
	TOKEN_RBRACKET
	TOKEN_DOT
	TOKEN_COMMA
)

var tokenNames = map[TokenType]string{
	TOKEN_ILLEGAL:    "ILLEGAL",
	TOKEN_EOF:        "EOF",
	TOKEN_IDENTIFIER: "IDENTIFIER",
	TOKEN_CARET:      "^",
	TOKEN_STAR:       "*",
	TOKEN_LBRACKET:   "[",
	TOKEN_RBRACKET:   "]",
	TOKEN_DOT:        ".",
	TOKEN_COMMA:      ",",
}

// Token represents a lexical token
type Token struct {
	Type     TokenType
	Value    string
	Position int // 0-based byte offset
}

// String returns a string representation of the token
func (t *Token) String() string {
	typeName := tokenNames[t.Type]
	if typeName == "" {
		typeName = fmt.Sprintf("UNKNOWN(%d)", t.Type)
	}
	return fmt.Sprintf("%s(%s) at %d", typeName, t.Value, t.Position)
}

// Lexer performs lexical analysis of eager expressions
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
}

// NewLexer creates a new Lexer
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// readChar reads the next character and advances position
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

// skipWhitespace skips whitespace characters
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readIdentifier reads a relation name
func (l *Lexer) readIdentifier() string {
	position := l.position
	for isIdentifierChar(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

// NextToken returns the next token.
// An illegal character yields a TOKEN_ILLEGAL token holding that character.
func (l *Lexer) NextToken() *Token {
	l.skipWhitespace()

	position := l.position
	single := func(t TokenType) *Token {
		tok := &Token{Type: t, Value: l.input[position : position+1], Position: position}
		l.readChar()
		return tok
	}

	switch l.ch {
	case '^':
		return single(TOKEN_CARET)
	case '*':
		return single(TOKEN_STAR)
	case '[':
		return single(TOKEN_LBRACKET)
	case ']':
		return single(TOKEN_RBRACKET)
	case '.':
		return single(TOKEN_DOT)
	case ',':
		return single(TOKEN_COMMA)
	case 0:
		if l.position < len(l.input) {
			return single(TOKEN_ILLEGAL)
		}
		return &Token{Type: TOKEN_EOF, Position: position}
	default:
		if isIdentifierChar(l.ch) {
			return &Token{Type: TOKEN_IDENTIFIER, Value: l.readIdentifier(), Position: position}
		}
		return single(TOKEN_ILLEGAL)
	}
}

// isIdentifierChar checks if a character may appear in a relation name
func isIdentifierChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' ||
		ch >= 'A' && ch <= 'Z' ||
		ch >= '0' && ch <= '9' ||
		ch == '_' || ch == '$'
}
