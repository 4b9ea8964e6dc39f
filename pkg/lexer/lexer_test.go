package lexer

import (
	"testing"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
)

func TestNextTokenBasics(t *testing.T) {
	input := `let five = 5
let pi = 3.14
fn add(a, b) { ret a + b }
`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{LET, "let"},
		{IDENT, "five"},
		{ASSIGN, "="},
		{INT, "5"},
		{NEWLINE, "\n"},
		{LET, "let"},
		{IDENT, "pi"},
		{ASSIGN, "="},
		{FLOAT, "3.14"},
		{NEWLINE, "\n"},
		{FN, "fn"},
		{IDENT, "add"},
		{LPAREN, "("},
		{IDENT, "a"},
		{COMMA, ","},
		{IDENT, "b"},
		{RPAREN, ")"},
		{LBRACE, "{"},
		{RET, "ret"},
		{IDENT, "a"},
		{PLUS, "+"},
		{IDENT, "b"},
		{RBRACE, "}"},
		{NEWLINE, "\n"},
		{EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - wrong token type. expected=%q, got=%q (%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - wrong literal. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestOperators(t *testing.T) {
	input := `== != <= >= => .. += -= *= /= % ** * and or not && || !`

	want := []TokenType{
		EQ, NOT_EQ, LE, GE, ARROW, DOTDOT,
		PLUS_ASSIGN, MINUS_ASSIGN, ASTERISK_ASSIGN, SLASH_ASSIGN, PERCENT,
		POW, ASTERISK,
		AND, OR, NOT, AND, OR, NOT, EOF,
	}

	l := New(input)
	for i, w := range want {
		tok := l.NextToken()
		if tok.Type != w {
			t.Fatalf("token[%d] = %q, want %q", i, tok.Type, w)
		}
	}
}

func TestKeywords(t *testing.T) {
	input := `if else while for in match class ext enum go load import break continue nil true false return`
	want := []TokenType{
		IF, ELSE, WHILE, FOR, IN, MATCH, CLASS, EXT, ENUM, GO, LOAD, IMPORT,
		BREAK, CONTINUE, NIL, TRUE, FALSE, RET, EOF,
	}
	l := New(input)
	for i, w := range want {
		if tok := l.NextToken(); tok.Type != w {
			t.Fatalf("token[%d] = %q, want %q", i, tok.Type, w)
		}
	}
}

func TestTokenSpans(t *testing.T) {
	input := "let x = 10 / 0"
	l := New(input)

	var zero Token
	for tok := l.NextToken(); tok.Type != EOF; tok = l.NextToken() {
		if tok.Type == INT && tok.Literal == "0" {
			zero = tok
		}
	}
	if zero.StartPos != 13 || zero.EndPos != 14 {
		t.Errorf("divisor span = [%d,%d), want [13,14)", zero.StartPos, zero.EndPos)
	}
	if zero.Line != 1 || zero.Column != 14 {
		t.Errorf("divisor position = %d:%d, want 1:14", zero.Line, zero.Column)
	}
}

func TestStringKeepsRawContent(t *testing.T) {
	l := New(`let s = "Hello, {name}!"`)
	var str Token
	for tok := l.NextToken(); tok.Type != EOF; tok = l.NextToken() {
		if tok.Type == STRING {
			str = tok
		}
	}
	if str.Literal != "Hello, {name}!" {
		t.Errorf("raw string content = %q", str.Literal)
	}
}

func TestStringNestedBraces(t *testing.T) {
	l := New(`"{ {"a": 1} }"`)
	tok := l.NextToken()
	if tok.Type != STRING {
		t.Fatalf("token type = %q, want STRING (%q)", tok.Type, tok.Literal)
	}
	if tok.Literal != `{ {"a": 1} }` {
		t.Errorf("content = %q", tok.Literal)
	}
	if next := l.NextToken(); next.Type != EOF {
		t.Errorf("expected EOF after string, got %q", next.Type)
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New(`"no closing quote`)
	tok := l.NextToken()
	if tok.Type != ILLEGAL {
		t.Fatalf("token type = %q, want ILLEGAL", tok.Type)
	}
	if tok.Code != diagnostics.UnterminatedString {
		t.Errorf("code = %s, want AXM_102", tok.Code)
	}
}

func TestRawString(t *testing.T) {
	l := New(`@"C:\path\{not} interpolated"`)
	tok := l.NextToken()
	if tok.Type != RAW_STRING {
		t.Fatalf("token type = %q, want RAWSTRING", tok.Type)
	}
	if tok.Literal != `C:\path\{not} interpolated` {
		t.Errorf("content = %q", tok.Literal)
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{"42", INT, "42"},
		{"1_000_000", INT, "1_000_000"},
		{"0xFF", INT, "0xFF"},
		{"0x_dead_beef", INT, "0x_dead_beef"},
		{"3.14", FLOAT, "3.14"},
		{"1e9", FLOAT, "1e9"},
		{"2.5e-3", FLOAT, "2.5e-3"},
	}
	for _, tt := range tests {
		tok := New(tt.input).NextToken()
		if tok.Type != tt.typ || tok.Literal != tt.lit {
			t.Errorf("lex(%q) = (%q, %q), want (%q, %q)",
				tt.input, tok.Type, tok.Literal, tt.typ, tt.lit)
		}
	}
}

func TestInvalidNumber(t *testing.T) {
	tok := New("1.2.3").NextToken()
	if tok.Type != ILLEGAL || tok.Code != diagnostics.InvalidNumber {
		t.Errorf("lex(1.2.3) = (%q, %s), want ILLEGAL AXM_103", tok.Type, tok.Code)
	}
	tok = New("0x").NextToken()
	if tok.Type != ILLEGAL || tok.Code != diagnostics.InvalidNumber {
		t.Errorf("lex(0x) = (%q, %s), want ILLEGAL AXM_103", tok.Type, tok.Code)
	}
}

func TestRangeLexesAsThreeTokens(t *testing.T) {
	l := New("0..10")
	want := []TokenType{INT, DOTDOT, INT, EOF}
	for i, w := range want {
		if tok := l.NextToken(); tok.Type != w {
			t.Fatalf("token[%d] = %q, want %q", i, tok.Type, w)
		}
	}
}

func TestCommentsSkipped(t *testing.T) {
	input := "# leading comment\nlet x = 1 # trailing\n# only comments below\n"
	l := New(input)
	want := []TokenType{LET, IDENT, ASSIGN, INT, NEWLINE, EOF}
	for i, w := range want {
		if tok := l.NextToken(); tok.Type != w {
			t.Fatalf("token[%d] = %q, want %q", i, tok.Type, w)
		}
	}
}

func TestNewlinesCollapse(t *testing.T) {
	l := New("a\n\n\nb")
	want := []TokenType{IDENT, NEWLINE, IDENT, EOF}
	for i, w := range want {
		if tok := l.NextToken(); tok.Type != w {
			t.Fatalf("token[%d] = %q, want %q", i, tok.Type, w)
		}
	}
}

func TestUnescape(t *testing.T) {
	got, ok, _ := Unescape(`line1\nline2\t\"quoted\" \{brace\}`)
	if !ok {
		t.Fatal("valid escapes reported invalid")
	}
	if got != "line1\nline2\t\"quoted\" {brace}" {
		t.Errorf("Unescape = %q", got)
	}

	_, ok, bad := Unescape(`oops\z`)
	if ok || bad != `\z` {
		t.Errorf("invalid escape not reported: ok=%v bad=%q", ok, bad)
	}
}

func TestNormalize(t *testing.T) {
	// e + combining acute composes to a single code point.
	composed := Normalize("e\u0301")
	if composed != "\u00e9" {
		t.Errorf("Normalize = %q, want %q", composed, "\u00e9")
	}
}
