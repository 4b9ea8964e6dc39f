package lexer

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
)

// TokenType represents the type of a token.
type TokenType string

// Token represents a lexical token.
type Token struct {
	Type     TokenType
	Literal  string           // The token text; for STRING the raw content between the quotes
	Line     int              // 1-based line number where the token starts
	Column   int              // 1-based column number where the token starts
	StartPos int              // 0-based byte offset where the token starts
	EndPos   int              // 0-based byte offset after the token ends
	Code     diagnostics.Code // Set on ILLEGAL tokens only
}

// Span returns the token's byte range in the source.
func (t Token) Span() diagnostics.Span {
	return diagnostics.Span{Start: t.StartPos, End: t.EndPos}
}

const (
	// Special
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"
	NEWLINE TokenType = "NEWLINE" // statement terminator, one per run of newlines

	// Identifiers + literals
	IDENT      TokenType = "IDENT"
	INT        TokenType = "INT"       // 123, 0xff
	FLOAT      TokenType = "FLOAT"     // 45.67
	STRING     TokenType = "STRING"    // "hello {name}", raw content kept for interpolation
	RAW_STRING TokenType = "RAWSTRING" // @"no escapes, no interpolation"

	// Operators
	ASSIGN   TokenType = "="
	PLUS     TokenType = "+"
	MINUS    TokenType = "-"
	ASTERISK TokenType = "*"
	POW      TokenType = "**"
	SLASH    TokenType = "/"
	PERCENT  TokenType = "%"
	EQ       TokenType = "=="
	NOT_EQ   TokenType = "!="
	LT       TokenType = "<"
	GT       TokenType = ">"
	LE       TokenType = "<="
	GE       TokenType = ">="
	DOT      TokenType = "."
	DOTDOT   TokenType = ".."
	ARROW    TokenType = "=>"

	// Compound assignment
	PLUS_ASSIGN     TokenType = "+="
	MINUS_ASSIGN    TokenType = "-="
	ASTERISK_ASSIGN TokenType = "*="
	SLASH_ASSIGN    TokenType = "/="

	// Logical operators; 'and'/'or'/'not' keywords and the symbol forms
	// lex to the same token types.
	AND TokenType = "AND"
	OR  TokenType = "OR"
	NOT TokenType = "NOT"

	// Delimiters
	COMMA     TokenType = ","
	SEMICOLON TokenType = ";"
	COLON     TokenType = ":"
	PIPE      TokenType = "|"
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"

	// Keywords
	LET      TokenType = "LET"
	FN       TokenType = "FN"
	RET      TokenType = "RET"
	NIL      TokenType = "NIL"
	TRUE     TokenType = "TRUE"
	FALSE    TokenType = "FALSE"
	IF       TokenType = "IF"
	ELSE     TokenType = "ELSE"
	WHILE    TokenType = "WHILE"
	FOR      TokenType = "FOR"
	IN       TokenType = "IN"
	MATCH    TokenType = "MATCH"
	CLASS    TokenType = "CLASS"
	EXT      TokenType = "EXT"
	ENUM     TokenType = "ENUM"
	GO       TokenType = "GO"
	LOAD     TokenType = "LOAD"
	IMPORT   TokenType = "IMPORT"
	BREAK    TokenType = "BREAK"
	CONTINUE TokenType = "CONTINUE"
)

var keywords = map[string]TokenType{
	"let":      LET,
	"fn":       FN,
	"ret":      RET,
	"return":   RET,
	"nil":      NIL,
	"true":     TRUE,
	"false":    FALSE,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"in":       IN,
	"match":    MATCH,
	"class":    CLASS,
	"ext":      EXT,
	"enum":     ENUM,
	"go":       GO,
	"load":     LOAD,
	"import":   IMPORT,
	"break":    BREAK,
	"continue": CONTINUE,
	"and":      AND,
	"or":       OR,
	"not":      NOT,
}

// LookupIdent checks the keywords table for an identifier.
func LookupIdent(ident string) TokenType {
	if tokType, ok := keywords[ident]; ok {
		return tokType
	}
	return IDENT
}

// Normalize applies Unicode NFC normalization to source text. Callers must
// normalize before constructing a SourceFile so byte offsets line up.
func Normalize(src string) string {
	return norm.NFC.String(src)
}

// Lexer holds the state of the scanner.
type Lexer struct {
	input        string
	position     int  // byte offset of the current char
	readPosition int  // byte offset after the current char
	ch           byte // current char under examination
	line         int  // current 1-based line number
	column       int  // current 1-based column number
}

// New creates a Lexer over already-normalized source text.
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 1}
	l.readChar()
	return l
}

// NewAt creates a Lexer that starts scanning mid-input, at the given byte
// offset and 1-based line/column. Used to parse expressions interpolated
// inside string literals with their true source positions.
func NewAt(input string, offset, line, column int) *Lexer {
	l := &Lexer{input: input, line: line, column: column - 1}
	l.readPosition = offset
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// skipWhitespace consumes spaces, tabs and carriage returns. Newlines are
// significant (statement terminators) and are left for NextToken.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
		l.readChar()
	}
}

// skipComment reads a '#' comment until the end of the line.
func (l *Lexer) skipComment() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

// NextToken scans the input and returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	for l.ch == '#' {
		l.skipComment()
		l.skipWhitespace()
	}

	startLine := l.line
	startCol := l.column
	startPos := l.position

	mk := func(t TokenType, lit string) Token {
		return Token{Type: t, Literal: lit, Line: startLine, Column: startCol, StartPos: startPos, EndPos: l.position}
	}
	single := func(t TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return mk(t, lit)
	}
	double := func(t TokenType) Token {
		l.readChar()
		l.readChar()
		return mk(t, l.input[startPos:l.position])
	}

	switch l.ch {
	case '\n':
		for l.ch == '\n' {
			l.readChar()
			l.skipWhitespace()
			for l.ch == '#' {
				l.skipComment()
			}
		}
		return Token{Type: NEWLINE, Literal: "\n", Line: startLine, Column: startCol, StartPos: startPos, EndPos: startPos + 1}
	case '=':
		if l.peekChar() == '=' {
			return double(EQ)
		}
		if l.peekChar() == '>' {
			return double(ARROW)
		}
		return single(ASSIGN)
	case '!':
		if l.peekChar() == '=' {
			return double(NOT_EQ)
		}
		return single(NOT)
	case '+':
		if l.peekChar() == '=' {
			return double(PLUS_ASSIGN)
		}
		return single(PLUS)
	case '-':
		if l.peekChar() == '=' {
			return double(MINUS_ASSIGN)
		}
		return single(MINUS)
	case '*':
		if l.peekChar() == '=' {
			return double(ASTERISK_ASSIGN)
		}
		if l.peekChar() == '*' {
			return double(POW)
		}
		return single(ASTERISK)
	case '/':
		if l.peekChar() == '=' {
			return double(SLASH_ASSIGN)
		}
		return single(SLASH)
	case '%':
		return single(PERCENT)
	case '<':
		if l.peekChar() == '=' {
			return double(LE)
		}
		return single(LT)
	case '>':
		if l.peekChar() == '=' {
			return double(GE)
		}
		return single(GT)
	case '&':
		if l.peekChar() == '&' {
			return double(AND)
		}
		tok := single(ILLEGAL)
		tok.Code = diagnostics.UnexpectedToken
		return tok
	case '|':
		if l.peekChar() == '|' {
			return double(OR)
		}
		return single(PIPE)
	case '.':
		if l.peekChar() == '.' {
			return double(DOTDOT)
		}
		return single(DOT)
	case ';':
		return single(SEMICOLON)
	case ':':
		return single(COLON)
	case ',':
		return single(COMMA)
	case '(':
		return single(LPAREN)
	case ')':
		return single(RPAREN)
	case '{':
		return single(LBRACE)
	case '}':
		return single(RBRACE)
	case '[':
		return single(LBRACKET)
	case ']':
		return single(RBRACKET)
	case '@':
		if l.peekChar() == '"' {
			l.readChar() // consume '@'
			raw, code := l.readRawString()
			tok := mk(RAW_STRING, raw)
			if code != 0 {
				tok.Type = ILLEGAL
				tok.Code = code
			}
			return tok
		}
		tok := single(ILLEGAL)
		tok.Code = diagnostics.UnexpectedToken
		return tok
	case '"':
		raw, code := l.readString()
		tok := mk(STRING, raw)
		if code != 0 {
			tok.Type = ILLEGAL
			tok.Code = code
		}
		return tok
	case 0:
		return Token{Type: EOF, Literal: "", Line: startLine, Column: startCol, StartPos: startPos, EndPos: startPos}
	default:
		if isLetter(l.ch) {
			lit := l.readIdentifier()
			return mk(LookupIdent(lit), lit)
		}
		if isDigit(l.ch) {
			return l.readNumber(startLine, startCol, startPos)
		}
		tok := single(ILLEGAL)
		tok.Code = diagnostics.UnexpectedToken
		return tok
	}
}

func (l *Lexer) readIdentifier() string {
	startPos := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[startPos:l.position]
}

// readNumber reads an integer or float literal. Supports 0x hex integers and
// '_' separators. A '..' after the integer part is left alone so range
// expressions like 0..10 lex as INT DOTDOT INT.
func (l *Lexer) readNumber(startLine, startCol, startPos int) Token {
	mk := func(t TokenType, code diagnostics.Code) Token {
		return Token{
			Type: t, Literal: l.input[startPos:l.position],
			Line: startLine, Column: startCol, StartPos: startPos, EndPos: l.position,
			Code: code,
		}
	}

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		digits := 0
		for isHexDigit(l.ch) || l.ch == '_' {
			if l.ch != '_' {
				digits++
			}
			l.readChar()
		}
		if digits == 0 {
			return mk(ILLEGAL, diagnostics.InvalidNumber)
		}
		return mk(INT, 0)
	}

	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}

	isFloat := false
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
		// A second decimal point is a malformed literal like 1.2.3.
		if l.ch == '.' && isDigit(l.peekChar()) {
			l.readChar()
			for isDigit(l.ch) {
				l.readChar()
			}
			return mk(ILLEGAL, diagnostics.InvalidNumber)
		}
	}

	if l.ch == 'e' || l.ch == 'E' {
		peek := l.peekChar()
		if isDigit(peek) || peek == '+' || peek == '-' {
			isFloat = true
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			if !isDigit(l.ch) {
				return mk(ILLEGAL, diagnostics.InvalidNumber)
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	if isFloat {
		return mk(FLOAT, 0)
	}
	return mk(INT, 0)
}

// readString reads a double-quoted string and returns the RAW content between
// the quotes, escapes intact. Interpolation and unescaping happen later so
// that `{expr}` segments keep their exact byte offsets. Braces inside the
// string are tracked so an interpolated expression may itself contain a
// nested brace pair.
func (l *Lexer) readString() (string, diagnostics.Code) {
	l.readChar() // consume opening quote
	startPos := l.position
	depth := 0

	for {
		switch l.ch {
		case 0:
			return l.input[startPos:l.position], diagnostics.UnterminatedString
		case '\n':
			return l.input[startPos:l.position], diagnostics.UnterminatedString
		case '\\':
			l.readChar()
			if l.ch == 0 {
				return l.input[startPos:l.position], diagnostics.UnterminatedString
			}
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case '"':
			if depth == 0 {
				raw := l.input[startPos:l.position]
				l.readChar() // consume closing quote
				return raw, 0
			}
		}
		l.readChar()
	}
}

// readRawString reads the "..." part of an @"..." literal. No escapes, no
// interpolation; the only special sequence is "" for a literal quote.
func (l *Lexer) readRawString() (string, diagnostics.Code) {
	l.readChar() // consume opening quote
	var b strings.Builder
	for {
		switch l.ch {
		case 0:
			return b.String(), diagnostics.UnterminatedString
		case '"':
			if l.peekChar() == '"' {
				b.WriteByte('"')
				l.readChar()
			} else {
				l.readChar() // consume closing quote
				return b.String(), 0
			}
		default:
			b.WriteByte(l.ch)
		}
		l.readChar()
	}
}

// Unescape resolves escape sequences in a raw string segment. The second
// return value is false on an invalid escape, with the offending sequence
// returned for the error message.
func Unescape(raw string) (string, bool, string) {
	if !strings.ContainsRune(raw, '\\') {
		return raw, true, ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(raw) {
			return b.String(), false, `\`
		}
		switch raw[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		case '{':
			b.WriteByte('{')
		case '}':
			b.WriteByte('}')
		case '0':
			b.WriteByte(0)
		default:
			return b.String(), false, `\` + string(raw[i])
		}
	}
	return b.String(), true, ""
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_' || ch >= 0x80
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return ('0' <= ch && ch <= '9') || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}
