// Package format pretty-prints Axiom source with four-space indentation.
// Output is canonical: formatting already-formatted code is a no-op, and
// reparsing the output yields the same AST.
package format

import (
	"fmt"
	"strings"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/lexer"
	"github.com/pro-grammer-SD/axiom/pkg/parser"
	"github.com/pro-grammer-SD/axiom/pkg/source"
)

const indentUnit = "    "

// Source parses and formats a file. Parse errors abort formatting.
func Source(file *source.SourceFile) (string, []*diagnostics.Diagnostic) {
	p := parser.New(file)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) != 0 {
		return "", errs
	}
	return Program(prog), nil
}

// Program renders an AST as canonical source text.
func Program(prog *parser.Program) string {
	pr := &printer{}
	for _, stmt := range prog.Statements {
		pr.statement(stmt)
	}
	return pr.buf.String()
}

type printer struct {
	buf    strings.Builder
	indent int
}

func (pr *printer) line(s string) {
	for i := 0; i < pr.indent; i++ {
		pr.buf.WriteString(indentUnit)
	}
	pr.buf.WriteString(s)
	pr.buf.WriteString("\n")
}

// open writes a line ending in "{" and indents.
func (pr *printer) open(s string) {
	pr.line(s + " {")
	pr.indent++
}

func (pr *printer) close() {
	pr.indent--
	pr.line("}")
}

var assignOps = map[lexer.TokenType]string{
	lexer.ASSIGN:          "=",
	lexer.PLUS_ASSIGN:     "+=",
	lexer.MINUS_ASSIGN:    "-=",
	lexer.ASTERISK_ASSIGN: "*=",
	lexer.SLASH_ASSIGN:    "/=",
}

func (pr *printer) statement(stmt parser.Statement) {
	switch s := stmt.(type) {
	case *parser.LetStatement:
		pr.line("let " + s.Name.Value + " = " + pr.expr(s.Value, lowest))
	case *parser.AssignStatement:
		op := assignOps[s.Op]
		if op == "" {
			op = "="
		}
		pr.line(pr.expr(s.Target, lowest) + " " + op + " " + pr.expr(s.Value, lowest))
	case *parser.ReturnStatement:
		if s.Value == nil {
			pr.line("ret")
		} else {
			pr.line("ret " + pr.expr(s.Value, lowest))
		}
	case *parser.ExpressionStatement:
		pr.line(pr.expr(s.Expression, lowest))
	case *parser.BlockStatement:
		pr.open("")
		pr.block(s)
		pr.close()
	case *parser.IfStatement:
		pr.ifChain(s)
	case *parser.WhileStatement:
		pr.open("while " + pr.expr(s.Condition, lowest))
		pr.block(s.Body)
		pr.close()
	case *parser.ForInStatement:
		vars := s.Var.Value
		if s.Value != nil {
			vars += ", " + s.Value.Value
		}
		pr.open("for " + vars + " in " + pr.expr(s.Iterable, lowest))
		pr.block(s.Body)
		pr.close()
	case *parser.BreakStatement:
		pr.line("break")
	case *parser.ContinueStatement:
		pr.line("continue")
	case *parser.FunctionDeclaration:
		pr.open("fn " + s.Name.Value + "(" + params(s.Function.Params) + ")")
		pr.block(s.Function.Body)
		pr.close()
	case *parser.ClassDeclaration:
		head := "class " + s.Name.Value
		if s.Parent != nil {
			head += " ext " + s.Parent.Value
		}
		pr.open(head)
		for i, m := range s.Methods {
			if i > 0 {
				pr.buf.WriteString("\n")
			}
			pr.open("fn " + m.Name.Value + "(" + params(m.Function.Params) + ")")
			pr.block(m.Function.Body)
			pr.close()
		}
		pr.close()
	case *parser.EnumDeclaration:
		pr.open("enum " + s.Name.Value)
		for _, v := range s.Variants {
			if len(v.Params) == 0 {
				pr.line(v.Name.Value)
			} else {
				pr.line(v.Name.Value + "(" + params(v.Params) + ")")
			}
		}
		pr.close()
	case *parser.ImportStatement:
		if s.Name.Type == lexer.STRING {
			pr.line("load " + quote(s.Name.Literal))
		} else {
			pr.line("import " + s.Name.Literal)
		}
	case *parser.GoStatement:
		pr.line("go " + pr.expr(s.Call, lowest))
	}
}

func (pr *printer) block(b *parser.BlockStatement) {
	for _, stmt := range b.Statements {
		pr.statement(stmt)
	}
}

// ifChain keeps `else if` cascades flat instead of nesting each arm.
func (pr *printer) ifChain(s *parser.IfStatement) {
	pr.open("if " + pr.expr(s.Condition, lowest))
	pr.block(s.Consequence)
	for s.Alternative != nil {
		next, ok := s.Alternative.(*parser.IfStatement)
		if ok {
			pr.indent--
			pr.line("} else if " + pr.expr(next.Condition, lowest) + " {")
			pr.indent++
			pr.block(next.Consequence)
			s = next
			continue
		}
		pr.indent--
		pr.line("} else {")
		pr.indent++
		if blk, isBlock := s.Alternative.(*parser.BlockStatement); isBlock {
			pr.block(blk)
		} else {
			pr.statement(s.Alternative)
		}
		break
	}
	pr.close()
}

func params(ps []*parser.Identifier) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Value
	}
	return strings.Join(names, ", ")
}

// Expression precedence tiers, mirroring the parser's.
const (
	lowest = iota
	precOr
	precAnd
	precEquals
	precCompare
	precRange
	precSum
	precProduct
	precPrefix
	precPow
	precCall
)

var infixPrec = map[string]int{
	"or": precOr, "and": precAnd,
	"==": precEquals, "!=": precEquals,
	"<": precCompare, ">": precCompare, "<=": precCompare, ">=": precCompare,
	"+": precSum, "-": precSum,
	"*": precProduct, "/": precProduct, "%": precProduct,
	"**": precPow,
}

// expr renders an expression, parenthesizing when its precedence is
// below the context's.
func (pr *printer) expr(e parser.Expression, parent int) string {
	switch ex := e.(type) {
	case *parser.Identifier:
		return ex.Value
	case *parser.IntegerLiteral:
		return fmt.Sprintf("%d", ex.Value)
	case *parser.FloatLiteral:
		s := fmt.Sprintf("%g", ex.Value)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case *parser.BooleanLiteral:
		if ex.Value {
			return "true"
		}
		return "false"
	case *parser.NilLiteral:
		return "nil"
	case *parser.StringLiteral:
		return pr.stringLit(ex)
	case *parser.PrefixExpression:
		inner := pr.expr(ex.Right, precPrefix)
		out := ex.Operator + inner
		if ex.Operator == "not" {
			out = "not " + inner
		}
		return paren(out, precPrefix, parent)
	case *parser.InfixExpression:
		prec := infixPrec[ex.Operator]
		var out string
		if ex.Operator == "**" {
			// Right-associative: the left operand needs parens at equal
			// precedence, the right does not.
			out = pr.expr(ex.Left, prec+1) + " ** " + pr.expr(ex.Right, prec)
		} else {
			out = pr.expr(ex.Left, prec) + " " + ex.Operator + " " + pr.expr(ex.Right, prec+1)
		}
		return paren(out, prec, parent)
	case *parser.RangeExpression:
		out := pr.expr(ex.Start, precRange+1) + ".." + pr.expr(ex.End, precRange+1)
		return paren(out, precRange, parent)
	case *parser.CallExpression:
		args := make([]string, len(ex.Arguments))
		for i, a := range ex.Arguments {
			args[i] = pr.expr(a, lowest)
		}
		return pr.expr(ex.Callee, precCall) + "(" + strings.Join(args, ", ") + ")"
	case *parser.IndexExpression:
		return pr.expr(ex.Object, precCall) + "[" + pr.expr(ex.Index, lowest) + "]"
	case *parser.FieldExpression:
		return pr.expr(ex.Object, precCall) + "." + ex.Field.Value
	case *parser.ListLiteral:
		elems := make([]string, len(ex.Elements))
		for i, el := range ex.Elements {
			elems[i] = pr.expr(el, lowest)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	case *parser.MapLiteral:
		pairs := make([]string, len(ex.Keys))
		for i := range ex.Keys {
			pairs[i] = pr.expr(ex.Keys[i], lowest) + ": " + pr.expr(ex.Values[i], lowest)
		}
		return "{" + strings.Join(pairs, ", ") + "}"
	case *parser.FunctionLiteral:
		return pr.functionLit(ex)
	case *parser.MatchExpression:
		return pr.matchExpr(ex)
	}
	return e.String()
}

func paren(s string, prec, parent int) string {
	if prec < parent {
		return "(" + s + ")"
	}
	return s
}

// functionLit renders an anonymous function; the body is indented
// relative to the current statement.
func (pr *printer) functionLit(fl *parser.FunctionLiteral) string {
	sub := &printer{indent: pr.indent + 1}
	sub.block(fl.Body)
	body := sub.buf.String()
	closing := strings.Repeat(indentUnit, pr.indent) + "}"
	if body == "" {
		return "fn(" + params(fl.Params) + ") {}"
	}
	return "fn(" + params(fl.Params) + ") {\n" + body + closing
}

func (pr *printer) matchExpr(ex *parser.MatchExpression) string {
	var b strings.Builder
	b.WriteString("match " + pr.expr(ex.Subject, lowest) + " {\n")
	inner := strings.Repeat(indentUnit, pr.indent+1)
	for _, arm := range ex.Arms {
		b.WriteString(inner + pr.pattern(arm.Pattern))
		if arm.Guard != nil {
			b.WriteString(" if " + pr.expr(arm.Guard, lowest))
		}
		b.WriteString(" => ")
		b.WriteString(pr.armBody(arm.Body))
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat(indentUnit, pr.indent) + "}")
	return b.String()
}

func (pr *printer) pattern(p parser.Pattern) string {
	switch pt := p.(type) {
	case *parser.WildcardPattern:
		return pt.Token.Literal
	case *parser.LiteralPattern:
		return pr.expr(pt.Value, lowest)
	case *parser.BindingPattern:
		return pt.Name.Value
	case *parser.VariantPattern:
		out := pt.Variant.Value
		if pt.Enum != nil {
			out = pt.Enum.Value + "." + out
		}
		if len(pt.Bindings) > 0 {
			out += "(" + params(pt.Bindings) + ")"
		}
		return out
	}
	return p.String()
}

func (pr *printer) armBody(body parser.Statement) string {
	if es, ok := body.(*parser.ExpressionStatement); ok {
		sub := &printer{indent: pr.indent + 1}
		return sub.expr(es.Expression, lowest)
	}
	blk, ok := body.(*parser.BlockStatement)
	if !ok {
		blk = &parser.BlockStatement{Statements: []parser.Statement{body}}
	}
	sub := &printer{indent: pr.indent + 2}
	sub.block(blk)
	return "{\n" + sub.buf.String() + strings.Repeat(indentUnit, pr.indent+1) + "}"
}

func (pr *printer) stringLit(sl *parser.StringLiteral) string {
	var b strings.Builder
	b.WriteString("\"")
	for i, part := range sl.Parts {
		b.WriteString(escape(part))
		if i < len(sl.Exprs) {
			b.WriteString("{" + pr.expr(sl.Exprs[i], lowest) + "}")
		}
	}
	b.WriteString("\"")
	return b.String()
}

func quote(s string) string { return "\"" + escape(s) + "\"" }

func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '{':
			b.WriteString(`\{`)
		case '}':
			b.WriteString(`\}`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
