package parser

import (
	"testing"
)

func TestLexer_Tokens(t *testing.T) {
	input := `[pets, movies.actors.^, $ref_2].* `

	expected := []struct {
		typ      TokenType
		value    string
		position int
	}{
		{TOKEN_LBRACKET, "[", 0},
		{TOKEN_IDENTIFIER, "pets", 1},
		{TOKEN_COMMA, ",", 5},
		{TOKEN_IDENTIFIER, "movies", 7},
		{TOKEN_DOT, ".", 13},
		{TOKEN_IDENTIFIER, "actors", 14},
		{TOKEN_DOT, ".", 20},
		{TOKEN_CARET, "^", 21},
		{TOKEN_COMMA, ",", 22},
		{TOKEN_IDENTIFIER, "$ref_2", 24},
		{TOKEN_RBRACKET, "]", 30},
		{TOKEN_DOT, ".", 31},
		{TOKEN_STAR, "*", 32},
		{TOKEN_EOF, "", 34},
	}

	lexer := NewLexer(input)
	for i, exp := range expected {
		tok := lexer.NextToken()
		if tok.Type != exp.typ {
			t.Fatalf("token %d: expected type %s, got %s", i, tokenNames[exp.typ], tok)
		}
		if tok.Value != exp.value {
			t.Errorf("token %d: expected value %q, got %q", i, exp.value, tok.Value)
		}
		if tok.Position != exp.position {
			t.Errorf("token %d: expected position %d, got %d", i, exp.position, tok.Position)
		}
	}
}

func TestLexer_Illegal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		value    string
		position int
	}{
		{name: "hyphen", input: "pets-owner", value: "-", position: 4},
		{name: "non ascii", input: "ペット", value: "\xe3", position: 0},
		{name: "nul byte", input: "a\x00", value: "\x00", position: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			var tok *Token
			for tok = lexer.NextToken(); tok.Type != TOKEN_EOF && tok.Type != TOKEN_ILLEGAL; tok = lexer.NextToken() {
			}
			if tok.Type != TOKEN_ILLEGAL {
				t.Fatalf("expected ILLEGAL token, got %s", tok)
			}
			if tok.Value != tt.value || tok.Position != tt.position {
				t.Errorf("expected %q at %d, got %q at %d", tt.value, tt.position, tok.Value, tok.Position)
			}
		})
	}
}

func TestLexer_Empty(t *testing.T) {
	tok := NewLexer("   ").NextToken()
	if tok.Type != TOKEN_EOF {
		t.Errorf("expected EOF, got %s", tok)
	}
}
