package parser

import (
	"bytes"
	"path"
	"strings"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/lexer"
)

// Node is the base interface for all AST nodes.
type Node interface {
	TokenLiteral() string // literal of the token that starts the node
	String() string       // source-like representation for debugging
	Span() diagnostics.Span
}

// Statement represents a statement node in the AST.
type Statement interface {
	Node
	statementNode()
}

// Expression represents an expression node in the AST.
type Expression interface {
	Node
	expressionNode()
}

// Program is the root node of the AST.
type Program struct {
	Statements []Statement
}

func (p *Program) TokenLiteral() string {
	if len(p.Statements) > 0 {
		return p.Statements[0].TokenLiteral()
	}
	return ""
}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, s := range p.Statements {
		out.WriteString(s.String())
		out.WriteString("\n")
	}
	return out.String()
}

func (p *Program) Span() diagnostics.Span {
	if len(p.Statements) == 0 {
		return diagnostics.Span{}
	}
	return p.Statements[0].Span().Merge(p.Statements[len(p.Statements)-1].Span())
}

// --- Statements ---

// LetStatement represents `let <Name> = <Value>`.
type LetStatement struct {
	Token lexer.Token // the LET token
	Name  *Identifier
	Value Expression
}

func (ls *LetStatement) statementNode()       {}
func (ls *LetStatement) TokenLiteral() string { return ls.Token.Literal }
func (ls *LetStatement) String() string {
	return "let " + ls.Name.String() + " = " + ls.Value.String()
}
func (ls *LetStatement) Span() diagnostics.Span {
	return ls.Token.Span().Merge(ls.Value.Span())
}

// AssignStatement represents `<Target> = <Value>` and the compound forms.
// Target is an identifier, an index expression or a field access.
type AssignStatement struct {
	Token  lexer.Token // the '=' (or '+=', ...) token
	Target Expression
	Op     lexer.TokenType // ASSIGN, PLUS_ASSIGN, ...
	Value  Expression
}

func (as *AssignStatement) statementNode()       {}
func (as *AssignStatement) TokenLiteral() string { return as.Token.Literal }
func (as *AssignStatement) String() string {
	return as.Target.String() + " " + string(as.Op) + " " + as.Value.String()
}
func (as *AssignStatement) Span() diagnostics.Span {
	return as.Target.Span().Merge(as.Value.Span())
}

// ReturnStatement represents `ret <Value>` (Value may be nil).
type ReturnStatement struct {
	Token lexer.Token // the RET token
	Value Expression
}

func (rs *ReturnStatement) statementNode()       {}
func (rs *ReturnStatement) TokenLiteral() string { return rs.Token.Literal }
func (rs *ReturnStatement) String() string {
	if rs.Value == nil {
		return "ret"
	}
	return "ret " + rs.Value.String()
}
func (rs *ReturnStatement) Span() diagnostics.Span {
	if rs.Value == nil {
		return rs.Token.Span()
	}
	return rs.Token.Span().Merge(rs.Value.Span())
}

// ExpressionStatement wraps an expression used as a statement.
type ExpressionStatement struct {
	Token      lexer.Token
	Expression Expression
}

func (es *ExpressionStatement) statementNode()         {}
func (es *ExpressionStatement) TokenLiteral() string   { return es.Token.Literal }
func (es *ExpressionStatement) String() string         { return es.Expression.String() }
func (es *ExpressionStatement) Span() diagnostics.Span { return es.Expression.Span() }

// BlockStatement represents `{ ... }`.
type BlockStatement struct {
	Token      lexer.Token // the '{' token
	Statements []Statement
	EndPos     int // byte offset after the closing '}'
}

func (bs *BlockStatement) statementNode()       {}
func (bs *BlockStatement) TokenLiteral() string { return bs.Token.Literal }
func (bs *BlockStatement) String() string {
	var out bytes.Buffer
	out.WriteString("{ ")
	for _, s := range bs.Statements {
		out.WriteString(s.String())
		out.WriteString("; ")
	}
	out.WriteString("}")
	return out.String()
}
func (bs *BlockStatement) Span() diagnostics.Span {
	return diagnostics.Span{Start: bs.Token.StartPos, End: bs.EndPos}
}

// IfStatement represents `if <Cond> { } else { }`. The else branch may be
// another IfStatement (else if) or a block.
type IfStatement struct {
	Token       lexer.Token // the IF token
	Condition   Expression
	Consequence *BlockStatement
	Alternative Statement // *BlockStatement, *IfStatement or nil
}

func (is *IfStatement) statementNode()       {}
func (is *IfStatement) TokenLiteral() string { return is.Token.Literal }
func (is *IfStatement) String() string {
	out := "if " + is.Condition.String() + " " + is.Consequence.String()
	if is.Alternative != nil {
		out += " else " + is.Alternative.String()
	}
	return out
}
func (is *IfStatement) Span() diagnostics.Span {
	span := is.Token.Span().Merge(is.Consequence.Span())
	if is.Alternative != nil {
		span = span.Merge(is.Alternative.Span())
	}
	return span
}

// WhileStatement represents `while <Cond> { }`.
type WhileStatement struct {
	Token     lexer.Token
	Condition Expression
	Body      *BlockStatement
}

func (ws *WhileStatement) statementNode()       {}
func (ws *WhileStatement) TokenLiteral() string { return ws.Token.Literal }
func (ws *WhileStatement) String() string {
	return "while " + ws.Condition.String() + " " + ws.Body.String()
}
func (ws *WhileStatement) Span() diagnostics.Span {
	return ws.Token.Span().Merge(ws.Body.Span())
}

// ForInStatement represents `for <Var> in <Iterable> { }` and the two-variable
// form `for k, v in m { }`.
type ForInStatement struct {
	Token    lexer.Token
	Var      *Identifier
	Value    *Identifier // second loop variable, nil for the single form
	Iterable Expression
	Body     *BlockStatement
}

func (fs *ForInStatement) statementNode()       {}
func (fs *ForInStatement) TokenLiteral() string { return fs.Token.Literal }
func (fs *ForInStatement) String() string {
	vars := fs.Var.String()
	if fs.Value != nil {
		vars += ", " + fs.Value.String()
	}
	return "for " + vars + " in " + fs.Iterable.String() + " " + fs.Body.String()
}
func (fs *ForInStatement) Span() diagnostics.Span {
	return fs.Token.Span().Merge(fs.Body.Span())
}

// BreakStatement represents `break`.
type BreakStatement struct {
	Token lexer.Token
}

func (bs *BreakStatement) statementNode()         {}
func (bs *BreakStatement) TokenLiteral() string   { return bs.Token.Literal }
func (bs *BreakStatement) String() string         { return "break" }
func (bs *BreakStatement) Span() diagnostics.Span { return bs.Token.Span() }

// ContinueStatement represents `continue`.
type ContinueStatement struct {
	Token lexer.Token
}

func (cs *ContinueStatement) statementNode()         {}
func (cs *ContinueStatement) TokenLiteral() string   { return cs.Token.Literal }
func (cs *ContinueStatement) String() string         { return "continue" }
func (cs *ContinueStatement) Span() diagnostics.Span { return cs.Token.Span() }

// FunctionDeclaration represents a named `fn name(params) { }` at statement
// position. Top-level declarations are hoisted before execution.
type FunctionDeclaration struct {
	Token    lexer.Token // the FN token
	Name     *Identifier
	Function *FunctionLiteral
}

func (fd *FunctionDeclaration) statementNode()       {}
func (fd *FunctionDeclaration) TokenLiteral() string { return fd.Token.Literal }
func (fd *FunctionDeclaration) String() string {
	return "fn " + fd.Name.String() + fd.Function.signature() + " " + fd.Function.Body.String()
}
func (fd *FunctionDeclaration) Span() diagnostics.Span {
	return fd.Token.Span().Merge(fd.Function.Body.Span())
}

// ClassDeclaration represents `class Name ext Parent { fn method() {} ... }`.
type ClassDeclaration struct {
	Token   lexer.Token
	Name    *Identifier
	Parent  *Identifier // nil when the class has no superclass
	Methods []*FunctionDeclaration
	EndPos  int
}

func (cd *ClassDeclaration) statementNode()       {}
func (cd *ClassDeclaration) TokenLiteral() string { return cd.Token.Literal }
func (cd *ClassDeclaration) String() string {
	var out bytes.Buffer
	out.WriteString("class " + cd.Name.String())
	if cd.Parent != nil {
		out.WriteString(" ext " + cd.Parent.String())
	}
	out.WriteString(" { ")
	for _, m := range cd.Methods {
		out.WriteString(m.String())
		out.WriteString(" ")
	}
	out.WriteString("}")
	return out.String()
}
func (cd *ClassDeclaration) Span() diagnostics.Span {
	return diagnostics.Span{Start: cd.Token.StartPos, End: cd.EndPos}
}

// EnumVariant is one case of an enum, optionally carrying payload fields.
type EnumVariant struct {
	Name   *Identifier
	Params []*Identifier // payload field names, empty for unit variants
}

// EnumDeclaration represents `enum Name { Variant, Variant(field) }`.
type EnumDeclaration struct {
	Token    lexer.Token
	Name     *Identifier
	Variants []*EnumVariant
	EndPos   int
}

func (ed *EnumDeclaration) statementNode()       {}
func (ed *EnumDeclaration) TokenLiteral() string { return ed.Token.Literal }
func (ed *EnumDeclaration) String() string {
	var out bytes.Buffer
	out.WriteString("enum " + ed.Name.String() + " { ")
	for i, v := range ed.Variants {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(v.Name.String())
		if len(v.Params) > 0 {
			names := make([]string, len(v.Params))
			for j, p := range v.Params {
				names[j] = p.String()
			}
			out.WriteString("(" + strings.Join(names, ", ") + ")")
		}
	}
	out.WriteString(" }")
	return out.String()
}
func (ed *EnumDeclaration) Span() diagnostics.Span {
	return diagnostics.Span{Start: ed.Token.StartPos, End: ed.EndPos}
}

// ImportStatement represents `import name` / `load name` for both package
// imports and source loads.
type ImportStatement struct {
	Token lexer.Token // IMPORT or LOAD
	Name  lexer.Token // module name token (IDENT or STRING)
}

func (is *ImportStatement) statementNode()       {}
func (is *ImportStatement) TokenLiteral() string { return is.Token.Literal }
func (is *ImportStatement) String() string {
	return is.Token.Literal + " " + is.Name.Literal
}
func (is *ImportStatement) Span() diagnostics.Span {
	return is.Token.Span().Merge(is.Name.Span())
}

// BindName is the identifier the statement binds in the current scope:
// the module name itself, or the base file name without its extension
// for `load "path"`.
func (is *ImportStatement) BindName() string {
	name := is.Name.Literal
	if is.Name.Type == lexer.STRING {
		name = strings.TrimSuffix(path.Base(name), ".ax")
	}
	return name
}

// GoStatement represents `go f(args)`.
type GoStatement struct {
	Token lexer.Token
	Call  *CallExpression
}

func (gs *GoStatement) statementNode()       {}
func (gs *GoStatement) TokenLiteral() string { return gs.Token.Literal }
func (gs *GoStatement) String() string       { return "go " + gs.Call.String() }
func (gs *GoStatement) Span() diagnostics.Span {
	return gs.Token.Span().Merge(gs.Call.Span())
}

// --- Expressions ---

// Identifier represents a name reference.
type Identifier struct {
	Token lexer.Token
	Value string
}

func (i *Identifier) expressionNode()        {}
func (i *Identifier) TokenLiteral() string   { return i.Token.Literal }
func (i *Identifier) String() string         { return i.Value }
func (i *Identifier) Span() diagnostics.Span { return i.Token.Span() }

// IntegerLiteral represents an integer constant.
type IntegerLiteral struct {
	Token lexer.Token
	Value int64
}

func (il *IntegerLiteral) expressionNode()        {}
func (il *IntegerLiteral) TokenLiteral() string   { return il.Token.Literal }
func (il *IntegerLiteral) String() string         { return il.Token.Literal }
func (il *IntegerLiteral) Span() diagnostics.Span { return il.Token.Span() }

// FloatLiteral represents a floating-point constant.
type FloatLiteral struct {
	Token lexer.Token
	Value float64
}

func (fl *FloatLiteral) expressionNode()        {}
func (fl *FloatLiteral) TokenLiteral() string   { return fl.Token.Literal }
func (fl *FloatLiteral) String() string         { return fl.Token.Literal }
func (fl *FloatLiteral) Span() diagnostics.Span { return fl.Token.Span() }

// BooleanLiteral represents `true` or `false`.
type BooleanLiteral struct {
	Token lexer.Token
	Value bool
}

func (bl *BooleanLiteral) expressionNode()        {}
func (bl *BooleanLiteral) TokenLiteral() string   { return bl.Token.Literal }
func (bl *BooleanLiteral) String() string         { return bl.Token.Literal }
func (bl *BooleanLiteral) Span() diagnostics.Span { return bl.Token.Span() }

// NilLiteral represents `nil`.
type NilLiteral struct {
	Token lexer.Token
}

func (nl *NilLiteral) expressionNode()        {}
func (nl *NilLiteral) TokenLiteral() string   { return nl.Token.Literal }
func (nl *NilLiteral) String() string         { return "nil" }
func (nl *NilLiteral) Span() diagnostics.Span { return nl.Token.Span() }

// StringLiteral represents a string, possibly with interpolated expressions.
// A plain string has a single text part and no expressions. Parts and Exprs
// interleave: Parts[0] Exprs[0] Parts[1] Exprs[1] ... Parts[n].
type StringLiteral struct {
	Token lexer.Token
	Parts []string
	Exprs []Expression
}

func (sl *StringLiteral) expressionNode()      {}
func (sl *StringLiteral) TokenLiteral() string { return sl.Token.Literal }
func (sl *StringLiteral) String() string {
	var out bytes.Buffer
	out.WriteString(`"`)
	for i, p := range sl.Parts {
		out.WriteString(p)
		if i < len(sl.Exprs) {
			out.WriteString("{" + sl.Exprs[i].String() + "}")
		}
	}
	out.WriteString(`"`)
	return out.String()
}
func (sl *StringLiteral) Span() diagnostics.Span { return sl.Token.Span() }

// Interpolated reports whether the literal contains embedded expressions.
func (sl *StringLiteral) Interpolated() bool { return len(sl.Exprs) > 0 }

// Text returns the literal's content; only valid for non-interpolated strings.
func (sl *StringLiteral) Text() string {
	if len(sl.Parts) == 0 {
		return ""
	}
	return sl.Parts[0]
}

// PrefixExpression represents `-x` or `not x`.
type PrefixExpression struct {
	Token    lexer.Token
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()      {}
func (pe *PrefixExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PrefixExpression) String() string {
	return "(" + pe.Operator + pe.Right.String() + ")"
}
func (pe *PrefixExpression) Span() diagnostics.Span {
	return pe.Token.Span().Merge(pe.Right.Span())
}

// InfixExpression represents `left <op> right`.
type InfixExpression struct {
	Token    lexer.Token // the operator token
	Left     Expression
	Operator string
	Right    Expression
}

func (ie *InfixExpression) expressionNode()      {}
func (ie *InfixExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *InfixExpression) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}
func (ie *InfixExpression) Span() diagnostics.Span {
	return ie.Left.Span().Merge(ie.Right.Span())
}

// RangeExpression represents `start..end` (end exclusive).
type RangeExpression struct {
	Token lexer.Token // the '..' token
	Start Expression
	End   Expression
}

func (re *RangeExpression) expressionNode()      {}
func (re *RangeExpression) TokenLiteral() string { return re.Token.Literal }
func (re *RangeExpression) String() string {
	return re.Start.String() + ".." + re.End.String()
}
func (re *RangeExpression) Span() diagnostics.Span {
	return re.Start.Span().Merge(re.End.Span())
}

// FunctionLiteral represents `fn(params) { }`.
type FunctionLiteral struct {
	Token  lexer.Token // the FN token
	Name   string      // set for named declarations, "" for lambdas
	Params []*Identifier
	Body   *BlockStatement
}

func (fl *FunctionLiteral) expressionNode()      {}
func (fl *FunctionLiteral) TokenLiteral() string { return fl.Token.Literal }
func (fl *FunctionLiteral) signature() string {
	names := make([]string, len(fl.Params))
	for i, p := range fl.Params {
		names[i] = p.String()
	}
	return "(" + strings.Join(names, ", ") + ")"
}
func (fl *FunctionLiteral) String() string {
	return "fn" + fl.signature() + " " + fl.Body.String()
}
func (fl *FunctionLiteral) Span() diagnostics.Span {
	return fl.Token.Span().Merge(fl.Body.Span())
}

// CallExpression represents `callee(args)`.
type CallExpression struct {
	Token     lexer.Token // the '(' token
	Callee    Expression
	Arguments []Expression
	EndPos    int // byte offset after the closing ')'
}

func (ce *CallExpression) expressionNode()      {}
func (ce *CallExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *CallExpression) String() string {
	args := make([]string, len(ce.Arguments))
	for i, a := range ce.Arguments {
		args[i] = a.String()
	}
	return ce.Callee.String() + "(" + strings.Join(args, ", ") + ")"
}
func (ce *CallExpression) Span() diagnostics.Span {
	return diagnostics.Span{Start: ce.Callee.Span().Start, End: ce.EndPos}
}

// IndexExpression represents `obj[index]`.
type IndexExpression struct {
	Token  lexer.Token // the '[' token
	Object Expression
	Index  Expression
	EndPos int
}

func (ie *IndexExpression) expressionNode()      {}
func (ie *IndexExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *IndexExpression) String() string {
	return "(" + ie.Object.String() + "[" + ie.Index.String() + "])"
}
func (ie *IndexExpression) Span() diagnostics.Span {
	return diagnostics.Span{Start: ie.Object.Span().Start, End: ie.EndPos}
}

// FieldExpression represents `obj.field`.
type FieldExpression struct {
	Token  lexer.Token // the '.' token
	Object Expression
	Field  *Identifier
}

func (fe *FieldExpression) expressionNode()      {}
func (fe *FieldExpression) TokenLiteral() string { return fe.Token.Literal }
func (fe *FieldExpression) String() string {
	return fe.Object.String() + "." + fe.Field.String()
}
func (fe *FieldExpression) Span() diagnostics.Span {
	return fe.Object.Span().Merge(fe.Field.Span())
}

// ListLiteral represents `[a, b, c]`.
type ListLiteral struct {
	Token    lexer.Token // the '[' token
	Elements []Expression
	EndPos   int
}

func (ll *ListLiteral) expressionNode()      {}
func (ll *ListLiteral) TokenLiteral() string { return ll.Token.Literal }
func (ll *ListLiteral) String() string {
	elems := make([]string, len(ll.Elements))
	for i, e := range ll.Elements {
		elems[i] = e.String()
	}
	return "[" + strings.Join(elems, ", ") + "]"
}
func (ll *ListLiteral) Span() diagnostics.Span {
	return diagnostics.Span{Start: ll.Token.StartPos, End: ll.EndPos}
}

// MapLiteral represents `{k: v, ...}`.
type MapLiteral struct {
	Token  lexer.Token // the '{' token
	Keys   []Expression
	Values []Expression
	EndPos int
}

func (ml *MapLiteral) expressionNode()      {}
func (ml *MapLiteral) TokenLiteral() string { return ml.Token.Literal }
func (ml *MapLiteral) String() string {
	pairs := make([]string, len(ml.Keys))
	for i := range ml.Keys {
		pairs[i] = ml.Keys[i].String() + ": " + ml.Values[i].String()
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}
func (ml *MapLiteral) Span() diagnostics.Span {
	return diagnostics.Span{Start: ml.Token.StartPos, End: ml.EndPos}
}

// --- Match ---

// Pattern is the interface for match arm patterns.
type Pattern interface {
	Node
	patternNode()
}

// WildcardPattern matches anything without binding: `_` or `els`.
type WildcardPattern struct {
	Token lexer.Token
}

func (wp *WildcardPattern) patternNode()           {}
func (wp *WildcardPattern) TokenLiteral() string   { return wp.Token.Literal }
func (wp *WildcardPattern) String() string         { return "_" }
func (wp *WildcardPattern) Span() diagnostics.Span { return wp.Token.Span() }

// LiteralPattern matches a constant value.
type LiteralPattern struct {
	Value Expression // IntegerLiteral, FloatLiteral, StringLiteral, BooleanLiteral or NilLiteral
}

func (lp *LiteralPattern) patternNode()           {}
func (lp *LiteralPattern) TokenLiteral() string   { return lp.Value.TokenLiteral() }
func (lp *LiteralPattern) String() string         { return lp.Value.String() }
func (lp *LiteralPattern) Span() diagnostics.Span { return lp.Value.Span() }

// BindingPattern matches anything and binds it to a name.
type BindingPattern struct {
	Name *Identifier
}

func (bp *BindingPattern) patternNode()           {}
func (bp *BindingPattern) TokenLiteral() string   { return bp.Name.TokenLiteral() }
func (bp *BindingPattern) String() string         { return bp.Name.String() }
func (bp *BindingPattern) Span() diagnostics.Span { return bp.Name.Span() }

// VariantPattern matches an enum variant, binding its payload fields:
// `Shape.Circle(r)` or bare `Circle(r)` when the enum is unambiguous.
type VariantPattern struct {
	Token    lexer.Token
	Enum     *Identifier // nil for the bare form
	Variant  *Identifier
	Bindings []*Identifier
	EndPos   int
}

func (vp *VariantPattern) patternNode()         {}
func (vp *VariantPattern) TokenLiteral() string { return vp.Token.Literal }
func (vp *VariantPattern) String() string {
	var out bytes.Buffer
	if vp.Enum != nil {
		out.WriteString(vp.Enum.String() + ".")
	}
	out.WriteString(vp.Variant.String())
	if len(vp.Bindings) > 0 {
		names := make([]string, len(vp.Bindings))
		for i, b := range vp.Bindings {
			names[i] = b.String()
		}
		out.WriteString("(" + strings.Join(names, ", ") + ")")
	}
	return out.String()
}
func (vp *VariantPattern) Span() diagnostics.Span {
	return diagnostics.Span{Start: vp.Token.StartPos, End: vp.EndPos}
}

// MatchArm is one `pattern => body` arm of a match expression.
type MatchArm struct {
	Pattern Pattern
	Guard   Expression // optional `if` guard, nil when absent
	Body    Statement  // *BlockStatement or *ExpressionStatement
}

// MatchExpression represents `match subject { arms }`. Arms are tried in
// order; a match with no matching arm evaluates to nil.
type MatchExpression struct {
	Token   lexer.Token
	Subject Expression
	Arms    []*MatchArm
	EndPos  int
}

func (me *MatchExpression) expressionNode()      {}
func (me *MatchExpression) TokenLiteral() string { return me.Token.Literal }
func (me *MatchExpression) String() string {
	var out bytes.Buffer
	out.WriteString("match " + me.Subject.String() + " { ")
	for _, arm := range me.Arms {
		out.WriteString(arm.Pattern.String())
		if arm.Guard != nil {
			out.WriteString(" if " + arm.Guard.String())
		}
		out.WriteString(" => " + arm.Body.String() + " ")
	}
	out.WriteString("}")
	return out.String()
}
func (me *MatchExpression) Span() diagnostics.Span {
	return diagnostics.Span{Start: me.Token.StartPos, End: me.EndPos}
}
