package parser

import (
	"fmt"

	"github.com/asakaida/relgraph/internal/entities"
)

// Parser parses eager expressions into an EagerNode tree
type Parser struct {
	input   string
	lexer   *Lexer
	current *Token
	peek    *Token
}

// NewParser creates a new Parser
func NewParser(input string) *Parser {
	p := &Parser{
		input: input,
		lexer: NewLexer(input),
	}

	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()

	return p
}

// Parse parses an eager expression.
// Example: Parse("[pets, movies.actors]")
func Parse(expression string) (*EagerNode, error) {
	return NewParser(expression).Parse()
}

// nextToken advances to the next token
func (p *Parser) nextToken() {
	p.current = p.peek
	p.peek = p.lexer.NextToken()
}

// currentTokenIs checks if the current token is of the given type
func (p *Parser) currentTokenIs(t TokenType) bool {
	return p.current != nil && p.current.Type == t
}

// errorAt builds a ParseError positioned at the current token
func (p *Parser) errorAt(format string, args ...any) error {
	return &entities.ParseError{
		Expression: p.input,
		Position:   p.current.Position,
		Reason:     fmt.Sprintf(format, args...),
	}
}

// unexpected reports the current token as out of place
func (p *Parser) unexpected(expected string) error {
	switch p.current.Type {
	case TOKEN_EOF:
		return p.errorAt("unexpected end of expression, expected %s", expected)
	case TOKEN_ILLEGAL:
		return p.errorAt("illegal character %q", p.current.Value)
	default:
		return p.errorAt("unexpected %q, expected %s", p.current.Value, expected)
	}
}

// Parse parses the whole expression
func (p *Parser) Parse() (*EagerNode, error) {
	root := &EagerNode{}

	if p.currentTokenIs(TOKEN_EOF) {
		return nil, p.errorAt("empty expression")
	}

	if err := p.parsePath(root); err != nil {
		return nil, err
	}

	if !p.currentTokenIs(TOKEN_EOF) {
		return nil, p.unexpected("end of expression")
	}

	return root, nil
}

// parsePath parses one dotted path and merges it below parent.
//
//	path := name ("." path)? | name "." "^" | "*" | "[" path ("," path)* "]"
func (p *Parser) parsePath(parent *EagerNode) error {
	switch p.current.Type {
	case TOKEN_IDENTIFIER:
		child := parent.addChild(p.current.Value)
		p.nextToken()

		if !p.currentTokenIs(TOKEN_DOT) {
			return nil
		}
		p.nextToken()

		if p.currentTokenIs(TOKEN_CARET) {
			child.AllRecursive = true
			p.nextToken()
			if p.currentTokenIs(TOKEN_DOT) {
				return p.errorAt("'^' must end its path")
			}
			return nil
		}
		return p.parsePath(child)

	case TOKEN_STAR:
		parent.AllRelations = true
		p.nextToken()
		if p.currentTokenIs(TOKEN_DOT) {
			return p.errorAt("'*' must end its path")
		}
		return nil

	case TOKEN_LBRACKET:
		p.nextToken()
		if err := p.parsePath(parent); err != nil {
			return err
		}
		for p.currentTokenIs(TOKEN_COMMA) {
			p.nextToken()
			if err := p.parsePath(parent); err != nil {
				return err
			}
		}
		if !p.currentTokenIs(TOKEN_RBRACKET) {
			return p.unexpected("',' or ']'")
		}
		p.nextToken()
		if p.currentTokenIs(TOKEN_DOT) {
			return p.errorAt("a bracketed list must end its path")
		}
		return nil

	case TOKEN_CARET:
		return p.errorAt("'^' must follow a relation name")

	default:
		return p.unexpected("relation name, '*' or '['")
	}
}
