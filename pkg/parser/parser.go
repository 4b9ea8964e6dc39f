package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/lexer"
	"github.com/pro-grammer-SD/axiom/pkg/source"
)

// Operator precedence levels, lowest to highest.
const (
	_ int = iota
	LOWEST
	LOGIC_OR    // or
	LOGIC_AND   // and
	EQUALS      // == !=
	LESSGREATER // < > <= >=
	RANGE       // ..
	SUM         // + -
	PRODUCT     // * / %
	PREFIX      // -x, not x
	EXPONENT    // **, binds tighter than unary minus
	CALL        // f(x), a[i], a.b
)

var precedences = map[lexer.TokenType]int{
	lexer.OR:       LOGIC_OR,
	lexer.AND:      LOGIC_AND,
	lexer.EQ:       EQUALS,
	lexer.NOT_EQ:   EQUALS,
	lexer.LT:       LESSGREATER,
	lexer.GT:       LESSGREATER,
	lexer.LE:       LESSGREATER,
	lexer.GE:       LESSGREATER,
	lexer.DOTDOT:   RANGE,
	lexer.PLUS:     SUM,
	lexer.MINUS:    SUM,
	lexer.ASTERISK: PRODUCT,
	lexer.SLASH:    PRODUCT,
	lexer.PERCENT:  PRODUCT,
	lexer.POW:      EXPONENT,
	lexer.LPAREN:   CALL,
	lexer.LBRACKET: CALL,
	lexer.DOT:      CALL,
}

type (
	prefixParseFn func() Expression
	infixParseFn  func(Expression) Expression
)

// Parser turns a token stream into an AST, collecting diagnostics as it goes.
type Parser struct {
	l    *lexer.Lexer
	file *source.SourceFile

	curToken  lexer.Token
	peekToken lexer.Token

	errors []*diagnostics.Diagnostic

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn
}

// New creates a parser for the given source file.
func New(file *source.SourceFile) *Parser {
	return newParser(lexer.New(file.Content), file)
}

func newParser(l *lexer.Lexer, file *source.SourceFile) *Parser {
	p := &Parser{l: l, file: file}

	p.prefixParseFns = map[lexer.TokenType]prefixParseFn{
		lexer.IDENT:      p.parseIdentifier,
		lexer.INT:        p.parseIntegerLiteral,
		lexer.FLOAT:      p.parseFloatLiteral,
		lexer.STRING:     p.parseStringLiteral,
		lexer.RAW_STRING: p.parseRawStringLiteral,
		lexer.TRUE:       p.parseBooleanLiteral,
		lexer.FALSE:      p.parseBooleanLiteral,
		lexer.NIL:        p.parseNilLiteral,
		lexer.NOT:        p.parsePrefixExpression,
		lexer.MINUS:      p.parsePrefixExpression,
		lexer.LPAREN:     p.parseGroupedExpression,
		lexer.LBRACKET:   p.parseListLiteral,
		lexer.LBRACE:     p.parseMapLiteral,
		lexer.FN:         p.parseFunctionLiteral,
		lexer.MATCH:      p.parseMatchExpression,
	}
	p.infixParseFns = map[lexer.TokenType]infixParseFn{
		lexer.PLUS:     p.parseInfixExpression,
		lexer.MINUS:    p.parseInfixExpression,
		lexer.ASTERISK: p.parseInfixExpression,
		lexer.SLASH:    p.parseInfixExpression,
		lexer.PERCENT:  p.parseInfixExpression,
		lexer.POW:      p.parseInfixExpression,
		lexer.EQ:       p.parseInfixExpression,
		lexer.NOT_EQ:   p.parseInfixExpression,
		lexer.LT:       p.parseInfixExpression,
		lexer.GT:       p.parseInfixExpression,
		lexer.LE:       p.parseInfixExpression,
		lexer.GE:       p.parseInfixExpression,
		lexer.AND:      p.parseInfixExpression,
		lexer.OR:       p.parseInfixExpression,
		lexer.DOTDOT:   p.parseRangeExpression,
		lexer.LPAREN:   p.parseCallExpression,
		lexer.LBRACKET: p.parseIndexExpression,
		lexer.DOT:      p.parseFieldExpression,
	}

	// Prime curToken and peekToken.
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns the diagnostics collected during parsing.
func (p *Parser) Errors() []*diagnostics.Diagnostic { return p.errors }

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
	if p.peekToken.Type == lexer.ILLEGAL {
		p.illegalToken(p.peekToken)
	}
}

func (p *Parser) illegalToken(tok lexer.Token) {
	code := tok.Code
	if code == 0 {
		code = diagnostics.UnexpectedToken
	}
	msg := ""
	if code == diagnostics.UnexpectedToken {
		msg = fmt.Sprintf("unexpected character %q", tok.Literal)
	}
	p.errors = append(p.errors, diagnostics.New(code, p.file, tok.Span(), msg))
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t lexer.TokenType) bool { return p.peekToken.Type == t }

func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t lexer.TokenType) {
	tok := p.peekToken
	if tok.Type == lexer.EOF {
		p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedEof, p.file, tok.Span(),
			fmt.Sprintf("expected %q, found end of file", string(t))))
		return
	}
	p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedToken, p.file, tok.Span(),
		fmt.Sprintf("expected %q, found %q", string(t), tok.Literal)))
}

// skipNewlines advances past insignificant newline tokens.
func (p *Parser) skipNewlines() {
	for p.curTokenIs(lexer.NEWLINE) {
		p.nextToken()
	}
}

func (p *Parser) skipPeekNewlines() {
	for p.peekTokenIs(lexer.NEWLINE) {
		p.nextToken()
	}
}

// ParseProgram parses the whole input.
func (p *Parser) ParseProgram() *Program {
	program := &Program{}
	p.skipNewlines()
	for !p.curTokenIs(lexer.EOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.endStatement()
		p.skipNewlines()
	}
	return program
}

// endStatement consumes the statement terminator: a newline, a semicolon,
// or nothing before '}' and EOF.
func (p *Parser) endStatement() {
	switch p.peekToken.Type {
	case lexer.NEWLINE, lexer.SEMICOLON:
		p.nextToken()
	case lexer.EOF, lexer.RBRACE:
		// block close or end of input terminates the statement
	default:
		p.peekError(lexer.NEWLINE)
		// Resynchronize at the next terminator to avoid error cascades.
		for !p.peekTokenIs(lexer.NEWLINE) && !p.peekTokenIs(lexer.SEMICOLON) &&
			!p.peekTokenIs(lexer.RBRACE) && !p.peekTokenIs(lexer.EOF) {
			p.nextToken()
		}
	}
	p.nextToken()
}

func (p *Parser) parseStatement() Statement {
	switch p.curToken.Type {
	case lexer.LET:
		return p.parseLetStatement()
	case lexer.RET:
		return p.parseReturnStatement()
	case lexer.FN:
		if p.peekTokenIs(lexer.IDENT) {
			return p.parseFunctionDeclaration()
		}
		return p.parseExpressionStatement()
	case lexer.IF:
		return p.parseIfStatement()
	case lexer.WHILE:
		return p.parseWhileStatement()
	case lexer.FOR:
		return p.parseForInStatement()
	case lexer.BREAK:
		return &BreakStatement{Token: p.curToken}
	case lexer.CONTINUE:
		return &ContinueStatement{Token: p.curToken}
	case lexer.CLASS:
		return p.parseClassDeclaration()
	case lexer.ENUM:
		return p.parseEnumDeclaration()
	case lexer.IMPORT, lexer.LOAD:
		return p.parseImportStatement()
	case lexer.GO:
		return p.parseGoStatement()
	case lexer.LBRACE:
		return p.parseBlockStatement()
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseLetStatement() Statement {
	stmt := &LetStatement{Token: p.curToken}
	if !p.expectPeek(lexer.IDENT) {
		return nil
	}
	stmt.Name = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	if !p.expectPeek(lexer.ASSIGN) {
		return nil
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil {
		return nil
	}
	if fl, ok := stmt.Value.(*FunctionLiteral); ok && fl.Name == "" {
		fl.Name = stmt.Name.Value
	}
	return stmt
}

func (p *Parser) parseReturnStatement() Statement {
	stmt := &ReturnStatement{Token: p.curToken}
	switch p.peekToken.Type {
	case lexer.NEWLINE, lexer.SEMICOLON, lexer.RBRACE, lexer.EOF:
		return stmt
	}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	return stmt
}

func (p *Parser) parseExpressionStatement() Statement {
	tok := p.curToken
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}
	switch p.peekToken.Type {
	case lexer.ASSIGN, lexer.PLUS_ASSIGN, lexer.MINUS_ASSIGN,
		lexer.ASTERISK_ASSIGN, lexer.SLASH_ASSIGN:
		return p.parseAssignStatement(expr)
	}
	return &ExpressionStatement{Token: tok, Expression: expr}
}

func (p *Parser) parseAssignStatement(target Expression) Statement {
	switch target.(type) {
	case *Identifier, *IndexExpression, *FieldExpression:
	default:
		p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedToken, p.file,
			target.Span(), "invalid assignment target"))
		return nil
	}
	p.nextToken() // the assignment operator
	stmt := &AssignStatement{Token: p.curToken, Target: target, Op: p.curToken.Type}
	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseFunctionDeclaration() Statement {
	decl := &FunctionDeclaration{Token: p.curToken}
	fn := &FunctionLiteral{Token: p.curToken}
	p.nextToken()
	decl.Name = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	fn.Name = decl.Name.Value
	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	fn.Params = p.parseFunctionParams()
	if fn.Params == nil {
		return nil
	}
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	fn.Body = p.parseBlockStatement()
	decl.Function = fn
	return decl
}

func (p *Parser) parseFunctionParams() []*Identifier {
	params := []*Identifier{}
	p.skipPeekNewlines()
	if p.peekTokenIs(lexer.RPAREN) {
		p.nextToken()
		return params
	}
	for {
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		params = append(params, &Identifier{Token: p.curToken, Value: p.curToken.Literal})
		p.skipPeekNewlines()
		if !p.peekTokenIs(lexer.COMMA) {
			break
		}
		p.nextToken()
		p.skipPeekNewlines()
	}
	if !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	return params
}

func (p *Parser) parseBlockStatement() *BlockStatement {
	block := &BlockStatement{Token: p.curToken}
	p.nextToken()
	p.skipNewlines()
	for !p.curTokenIs(lexer.RBRACE) && !p.curTokenIs(lexer.EOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.endStatement()
		p.skipNewlines()
	}
	if p.curTokenIs(lexer.EOF) {
		p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedEof, p.file,
			p.curToken.Span(), "unclosed block"))
	}
	block.EndPos = p.curToken.EndPos
	return block
}

func (p *Parser) parseIfStatement() Statement {
	stmt := &IfStatement{Token: p.curToken}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if stmt.Condition == nil {
		return nil
	}
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	stmt.Consequence = p.parseBlockStatement()
	if p.peekTokenIs(lexer.ELSE) {
		p.nextToken()
		if p.peekTokenIs(lexer.IF) {
			p.nextToken()
			stmt.Alternative = p.parseIfStatement()
		} else {
			if !p.expectPeek(lexer.LBRACE) {
				return nil
			}
			stmt.Alternative = p.parseBlockStatement()
		}
	}
	return stmt
}

func (p *Parser) parseWhileStatement() Statement {
	stmt := &WhileStatement{Token: p.curToken}
	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if stmt.Condition == nil {
		return nil
	}
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	return stmt
}

func (p *Parser) parseForInStatement() Statement {
	stmt := &ForInStatement{Token: p.curToken}
	if !p.expectPeek(lexer.IDENT) {
		return nil
	}
	stmt.Var = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	if p.peekTokenIs(lexer.COMMA) {
		p.nextToken()
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		stmt.Value = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	}
	if !p.expectPeek(lexer.IN) {
		return nil
	}
	p.nextToken()
	stmt.Iterable = p.parseExpression(LOWEST)
	if stmt.Iterable == nil {
		return nil
	}
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	return stmt
}

func (p *Parser) parseClassDeclaration() Statement {
	decl := &ClassDeclaration{Token: p.curToken}
	if !p.expectPeek(lexer.IDENT) {
		return nil
	}
	decl.Name = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	if p.peekTokenIs(lexer.EXT) {
		p.nextToken()
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		decl.Parent = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	}
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	p.nextToken()
	p.skipNewlines()
	for !p.curTokenIs(lexer.RBRACE) && !p.curTokenIs(lexer.EOF) {
		if !p.curTokenIs(lexer.FN) {
			p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedToken, p.file,
				p.curToken.Span(), "expected a method declaration"))
			return nil
		}
		method, _ := p.parseFunctionDeclaration().(*FunctionDeclaration)
		if method == nil {
			return nil
		}
		decl.Methods = append(decl.Methods, method)
		p.nextToken()
		p.skipNewlines()
	}
	if p.curTokenIs(lexer.EOF) {
		p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedEof, p.file,
			p.curToken.Span(), "unclosed class body"))
		return nil
	}
	decl.EndPos = p.curToken.EndPos
	return decl
}

func (p *Parser) parseEnumDeclaration() Statement {
	decl := &EnumDeclaration{Token: p.curToken}
	if !p.expectPeek(lexer.IDENT) {
		return nil
	}
	decl.Name = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	p.skipPeekNewlines()
	for !p.peekTokenIs(lexer.RBRACE) && !p.peekTokenIs(lexer.EOF) {
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		variant := &EnumVariant{Name: &Identifier{Token: p.curToken, Value: p.curToken.Literal}}
		if p.peekTokenIs(lexer.LPAREN) {
			p.nextToken()
			variant.Params = p.parseFunctionParams()
			if variant.Params == nil {
				return nil
			}
		}
		decl.Variants = append(decl.Variants, variant)
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
		}
		p.skipPeekNewlines()
	}
	if !p.expectPeek(lexer.RBRACE) {
		return nil
	}
	decl.EndPos = p.curToken.EndPos
	return decl
}

func (p *Parser) parseImportStatement() Statement {
	stmt := &ImportStatement{Token: p.curToken}
	if p.peekTokenIs(lexer.IDENT) || p.peekTokenIs(lexer.STRING) {
		p.nextToken()
		stmt.Name = p.curToken
		return stmt
	}
	p.peekError(lexer.IDENT)
	return nil
}

func (p *Parser) parseGoStatement() Statement {
	stmt := &GoStatement{Token: p.curToken}
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	call, ok := expr.(*CallExpression)
	if !ok {
		span := stmt.Token.Span()
		if expr != nil {
			span = expr.Span()
		}
		p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedToken, p.file,
			span, "'go' must be followed by a call"))
		return nil
	}
	stmt.Call = call
	return stmt
}

// --- Expressions ---

func (p *Parser) parseExpression(precedence int) Expression {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError()
		return nil
	}
	left := prefix()

	for left != nil && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}
	return left
}

func (p *Parser) noPrefixParseFnError() {
	tok := p.curToken
	if tok.Type == lexer.EOF {
		p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedEof, p.file,
			tok.Span(), "expected an expression, found end of file"))
		return
	}
	if tok.Type == lexer.ILLEGAL {
		return // already reported by the lexer pass
	}
	p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedToken, p.file,
		tok.Span(), fmt.Sprintf("expected an expression, found %q", tok.Literal)))
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) parseIdentifier() Expression {
	return &Identifier{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseIntegerLiteral() Expression {
	lit := &IntegerLiteral{Token: p.curToken}
	text := strings.ReplaceAll(p.curToken.Literal, "_", "")
	var value int64
	var err error
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		value, err = strconv.ParseInt(text[2:], 16, 64)
	} else {
		value, err = strconv.ParseInt(text, 10, 64)
	}
	if err != nil {
		p.errors = append(p.errors, diagnostics.New(diagnostics.InvalidNumber, p.file,
			p.curToken.Span(), fmt.Sprintf("integer literal %q out of range", p.curToken.Literal)))
		return nil
	}
	lit.Value = value
	return lit
}

func (p *Parser) parseFloatLiteral() Expression {
	lit := &FloatLiteral{Token: p.curToken}
	text := strings.ReplaceAll(p.curToken.Literal, "_", "")
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.errors = append(p.errors, diagnostics.New(diagnostics.InvalidNumber, p.file,
			p.curToken.Span(), fmt.Sprintf("malformed float literal %q", p.curToken.Literal)))
		return nil
	}
	lit.Value = value
	return lit
}

func (p *Parser) parseBooleanLiteral() Expression {
	return &BooleanLiteral{Token: p.curToken, Value: p.curTokenIs(lexer.TRUE)}
}

func (p *Parser) parseNilLiteral() Expression {
	return &NilLiteral{Token: p.curToken}
}

func (p *Parser) parseRawStringLiteral() Expression {
	return &StringLiteral{Token: p.curToken, Parts: []string{p.curToken.Literal}}
}

// parseStringLiteral splits the raw string content into text parts and
// interpolated `{expr}` segments, sub-parsing each expression at its real
// byte offset so diagnostics inside interpolations point at the right spot.
func (p *Parser) parseStringLiteral() Expression {
	tok := p.curToken
	raw := tok.Literal
	lit := &StringLiteral{Token: tok}

	contentStart := tok.StartPos + 1 // skip the opening quote
	segStart := 0
	i := 0
	for i < len(raw) {
		switch raw[i] {
		case '\\':
			i += 2
		case '{':
			p.addStringPart(lit, raw[segStart:i], tok, contentStart+segStart)
			exprStart := i + 1
			depth := 1
			j := exprStart
			for j < len(raw) && depth > 0 {
				switch raw[j] {
				case '\\':
					j++
				case '{':
					depth++
				case '}':
					depth--
				}
				j++
			}
			if depth > 0 {
				p.errors = append(p.errors, diagnostics.New(diagnostics.UnterminatedString, p.file,
					diagnostics.Span{Start: contentStart + i, End: contentStart + len(raw)},
					"unclosed '{' in string interpolation"))
				return nil
			}
			exprEnd := j - 1 // offset of the closing '}' within raw
			expr := p.parseInterpolatedExpr(contentStart+exprStart, contentStart+exprEnd)
			if expr == nil {
				return nil
			}
			lit.Exprs = append(lit.Exprs, expr)
			i = j
			segStart = i
		default:
			i++
		}
	}
	p.addStringPart(lit, raw[segStart:], tok, contentStart+segStart)
	if lit.Parts == nil {
		lit.Parts = []string{""}
	}
	return lit
}

func (p *Parser) addStringPart(lit *StringLiteral, raw string, tok lexer.Token, abs int) {
	text, ok, bad := lexer.Unescape(raw)
	if !ok {
		p.errors = append(p.errors, diagnostics.New(diagnostics.InvalidEscape, p.file,
			diagnostics.Span{Start: abs, End: abs + len(raw)},
			fmt.Sprintf("invalid escape sequence %q", bad)))
	}
	lit.Parts = append(lit.Parts, text)
}

// parseInterpolatedExpr parses one expression inside a string interpolation.
// The sub-lexer scans the original input starting at the expression's byte
// offset; the closing '}' naturally terminates the expression.
func (p *Parser) parseInterpolatedExpr(start, end int) Expression {
	if start >= end {
		p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedToken, p.file,
			diagnostics.Span{Start: start - 1, End: end + 1}, "empty interpolation"))
		return nil
	}
	line, col := p.file.LineCol(start)
	sub := newParser(lexer.NewAt(p.file.Content, start, line, col), p.file)
	expr := sub.parseExpression(LOWEST)
	p.errors = append(p.errors, sub.errors...)
	if expr == nil {
		return nil
	}
	if !sub.peekTokenIs(lexer.RBRACE) {
		sub.peekError(lexer.RBRACE)
		p.errors = append(p.errors, sub.errors[len(sub.errors)-1])
		return nil
	}
	return expr
}

func (p *Parser) parsePrefixExpression() Expression {
	expr := &PrefixExpression{Token: p.curToken, Operator: p.curToken.Literal}
	if expr.Operator == "!" {
		expr.Operator = "not"
	}
	p.nextToken()
	expr.Right = p.parseExpression(PREFIX)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseInfixExpression(left Expression) Expression {
	expr := &InfixExpression{Token: p.curToken, Left: left, Operator: p.curToken.Literal}
	switch p.curToken.Type {
	case lexer.AND:
		expr.Operator = "and"
	case lexer.OR:
		expr.Operator = "or"
	}
	precedence := p.curPrecedence()
	if p.curToken.Type == lexer.POW {
		// ** is right-associative: 2 ** 3 ** 2 is 2 ** (3 ** 2).
		precedence--
	}
	p.nextToken()
	p.skipNewlines()
	expr.Right = p.parseExpression(precedence)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseRangeExpression(left Expression) Expression {
	expr := &RangeExpression{Token: p.curToken, Start: left}
	p.nextToken()
	expr.End = p.parseExpression(RANGE)
	if expr.End == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseGroupedExpression() Expression {
	p.nextToken()
	p.skipNewlines()
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}
	p.skipPeekNewlines()
	if !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	return expr
}

func (p *Parser) parseFunctionLiteral() Expression {
	fn := &FunctionLiteral{Token: p.curToken}
	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	fn.Params = p.parseFunctionParams()
	if fn.Params == nil {
		return nil
	}
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	fn.Body = p.parseBlockStatement()
	return fn
}

func (p *Parser) parseCallExpression(callee Expression) Expression {
	call := &CallExpression{Token: p.curToken, Callee: callee}
	call.Arguments = p.parseExpressionList(lexer.RPAREN)
	if call.Arguments == nil {
		return nil
	}
	call.EndPos = p.curToken.EndPos
	return call
}

func (p *Parser) parseIndexExpression(object Expression) Expression {
	expr := &IndexExpression{Token: p.curToken, Object: object}
	p.nextToken()
	expr.Index = p.parseExpression(LOWEST)
	if expr.Index == nil {
		return nil
	}
	if !p.expectPeek(lexer.RBRACKET) {
		return nil
	}
	expr.EndPos = p.curToken.EndPos
	return expr
}

func (p *Parser) parseFieldExpression(object Expression) Expression {
	expr := &FieldExpression{Token: p.curToken, Object: object}
	if !p.expectPeek(lexer.IDENT) {
		return nil
	}
	expr.Field = &Identifier{Token: p.curToken, Value: p.curToken.Literal}
	return expr
}

func (p *Parser) parseListLiteral() Expression {
	list := &ListLiteral{Token: p.curToken}
	list.Elements = p.parseExpressionList(lexer.RBRACKET)
	if list.Elements == nil {
		return nil
	}
	list.EndPos = p.curToken.EndPos
	return list
}

// parseExpressionList parses a comma-separated list up to the given closing
// delimiter. Newlines around elements are insignificant.
func (p *Parser) parseExpressionList(end lexer.TokenType) []Expression {
	list := []Expression{}
	p.skipPeekNewlines()
	if p.peekTokenIs(end) {
		p.nextToken()
		return list
	}
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}
	list = append(list, expr)
	p.skipPeekNewlines()
	for p.peekTokenIs(lexer.COMMA) {
		p.nextToken()
		p.skipPeekNewlines()
		if p.peekTokenIs(end) { // trailing comma
			break
		}
		p.nextToken()
		expr = p.parseExpression(LOWEST)
		if expr == nil {
			return nil
		}
		list = append(list, expr)
		p.skipPeekNewlines()
	}
	if !p.expectPeek(end) {
		return nil
	}
	return list
}

func (p *Parser) parseMapLiteral() Expression {
	m := &MapLiteral{Token: p.curToken}
	p.skipPeekNewlines()
	for !p.peekTokenIs(lexer.RBRACE) {
		p.nextToken()
		key := p.parseExpression(LOWEST)
		if key == nil {
			return nil
		}
		if !p.expectPeek(lexer.COLON) {
			return nil
		}
		p.nextToken()
		p.skipNewlines()
		value := p.parseExpression(LOWEST)
		if value == nil {
			return nil
		}
		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, value)
		p.skipPeekNewlines()
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
			p.skipPeekNewlines()
		} else {
			break
		}
	}
	if !p.expectPeek(lexer.RBRACE) {
		return nil
	}
	m.EndPos = p.curToken.EndPos
	return m
}

// --- Match ---

func (p *Parser) parseMatchExpression() Expression {
	match := &MatchExpression{Token: p.curToken}
	p.nextToken()
	match.Subject = p.parseExpression(LOWEST)
	if match.Subject == nil {
		return nil
	}
	if !p.expectPeek(lexer.LBRACE) {
		return nil
	}
	p.skipPeekNewlines()
	for !p.peekTokenIs(lexer.RBRACE) && !p.peekTokenIs(lexer.EOF) {
		arm := p.parseMatchArm()
		if arm == nil {
			return nil
		}
		match.Arms = append(match.Arms, arm)
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
		}
		p.skipPeekNewlines()
	}
	if !p.expectPeek(lexer.RBRACE) {
		return nil
	}
	match.EndPos = p.curToken.EndPos
	return match
}

func (p *Parser) parseMatchArm() *MatchArm {
	arm := &MatchArm{}
	p.nextToken()
	arm.Pattern = p.parsePattern()
	if arm.Pattern == nil {
		return nil
	}
	if p.peekTokenIs(lexer.IF) {
		p.nextToken()
		p.nextToken()
		arm.Guard = p.parseExpression(LOWEST)
		if arm.Guard == nil {
			return nil
		}
	}
	if !p.expectPeek(lexer.ARROW) {
		return nil
	}
	if p.peekTokenIs(lexer.LBRACE) {
		p.nextToken()
		arm.Body = p.parseBlockStatement()
	} else {
		p.nextToken()
		expr := p.parseExpression(LOWEST)
		if expr == nil {
			return nil
		}
		arm.Body = &ExpressionStatement{Token: p.curToken, Expression: expr}
	}
	return arm
}

// parsePattern parses a match arm pattern. Capitalized identifiers denote
// enum variants; lowercase identifiers bind, and '_' or 'els' is the
// catchall.
func (p *Parser) parsePattern() Pattern {
	switch p.curToken.Type {
	case lexer.INT:
		if lit := p.parseIntegerLiteral(); lit != nil {
			return &LiteralPattern{Value: lit}
		}
		return nil
	case lexer.FLOAT:
		if lit := p.parseFloatLiteral(); lit != nil {
			return &LiteralPattern{Value: lit}
		}
		return nil
	case lexer.STRING, lexer.RAW_STRING:
		lit := p.parseStringLiteral()
		if lit == nil {
			return nil
		}
		if sl, ok := lit.(*StringLiteral); ok && sl.Interpolated() {
			p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedToken, p.file,
				sl.Span(), "interpolated strings cannot be used as patterns"))
			return nil
		}
		return &LiteralPattern{Value: lit}
	case lexer.TRUE, lexer.FALSE:
		return &LiteralPattern{Value: p.parseBooleanLiteral()}
	case lexer.NIL:
		return &LiteralPattern{Value: p.parseNilLiteral()}
	case lexer.MINUS:
		lit := p.parsePrefixExpression()
		if lit == nil {
			return nil
		}
		return &LiteralPattern{Value: lit}
	case lexer.IDENT:
		return p.parseIdentPattern()
	case lexer.DOT:
		// Implicit-enum variant: .Variant or .Variant(bindings).
		tok := p.curToken
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		vp := &VariantPattern{Token: tok,
			Variant: &Identifier{Token: p.curToken, Value: p.curToken.Literal},
			EndPos:  p.curToken.EndPos}
		return p.parseVariantBindings(vp)
	default:
		p.errors = append(p.errors, diagnostics.New(diagnostics.UnexpectedToken, p.file,
			p.curToken.Span(), fmt.Sprintf("expected a pattern, found %q", p.curToken.Literal)))
		return nil
	}
}

func (p *Parser) parseIdentPattern() Pattern {
	tok := p.curToken
	ident := &Identifier{Token: tok, Value: tok.Literal}

	if tok.Literal == "_" || tok.Literal == "els" {
		return &WildcardPattern{Token: tok}
	}

	// Qualified variant: Enum.Variant or Enum.Variant(bindings).
	if p.peekTokenIs(lexer.DOT) {
		p.nextToken()
		if !p.expectPeek(lexer.IDENT) {
			return nil
		}
		vp := &VariantPattern{Token: tok, Enum: ident,
			Variant: &Identifier{Token: p.curToken, Value: p.curToken.Literal}}
		vp.EndPos = p.curToken.EndPos
		return p.parseVariantBindings(vp)
	}

	// Bare variant with payload: Variant(bindings).
	if p.peekTokenIs(lexer.LPAREN) {
		vp := &VariantPattern{Token: tok, Variant: ident, EndPos: tok.EndPos}
		return p.parseVariantBindings(vp)
	}

	// A capitalized bare name is a unit variant, anything else binds.
	if r, _ := utf8.DecodeRuneInString(tok.Literal); unicode.IsUpper(r) {
		return &VariantPattern{Token: tok, Variant: ident, EndPos: tok.EndPos}
	}
	return &BindingPattern{Name: ident}
}

func (p *Parser) parseVariantBindings(vp *VariantPattern) Pattern {
	if !p.peekTokenIs(lexer.LPAREN) {
		return vp
	}
	p.nextToken()
	vp.Bindings = p.parseFunctionParams()
	if vp.Bindings == nil {
		return nil
	}
	vp.EndPos = p.curToken.EndPos
	return vp
}
