// Package checker performs the static pass behind `axiom chk`: name
// resolution, assignment targets, call arity where the callee is known,
// and structural rules like break placement. It never executes code.
package checker

import (
	"fmt"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/parser"
	"github.com/pro-grammer-SD/axiom/pkg/source"
)

// binding is what the checker knows about one name.
type binding struct {
	name    string
	isFunc  bool
	arity   int
	shadows bool // reassigned or rebound; arity no longer trusted
}

type scope struct {
	outer *scope
	names map[string]*binding
	order []string
}

func newScope(outer *scope) *scope {
	return &scope{outer: outer, names: make(map[string]*binding)}
}

func (s *scope) define(b *binding) {
	if _, exists := s.names[b.name]; !exists {
		s.order = append(s.order, b.name)
	}
	s.names[b.name] = b
}

func (s *scope) resolve(name string) (*binding, bool) {
	for t := s; t != nil; t = t.outer {
		if b, ok := t.names[name]; ok {
			return b, true
		}
	}
	return nil, false
}

func (s *scope) visibleNames() []string {
	var out []string
	for t := s; t != nil; t = t.outer {
		out = append(out, t.order...)
	}
	return out
}

// Checker walks a program and collects diagnostics.
type Checker struct {
	file      *source.SourceFile
	scope     *scope
	errs      []*diagnostics.Diagnostic
	loopDepth int
	inMethod  bool
}

// Check analyzes a program. predefined names (builtins, REPL globals)
// resolve without complaint.
func Check(file *source.SourceFile, program *parser.Program, predefined []string) []*diagnostics.Diagnostic {
	c := &Checker{file: file, scope: newScope(nil)}
	for _, name := range predefined {
		c.scope.define(&binding{name: name, shadows: true})
	}
	c.scope = newScope(c.scope)

	// Top-level declarations are hoisted; bodies may reference them in
	// any order.
	for _, stmt := range program.Statements {
		switch s := stmt.(type) {
		case *parser.LetStatement:
			c.scope.define(&binding{name: s.Name.Value, shadows: true})
		case *parser.FunctionDeclaration:
			c.scope.define(&binding{name: s.Name.Value, isFunc: true, arity: len(s.Function.Params)})
		case *parser.ClassDeclaration:
			c.scope.define(&binding{name: s.Name.Value, shadows: true})
		case *parser.EnumDeclaration:
			c.scope.define(&binding{name: s.Name.Value, shadows: true})
		}
	}
	for _, stmt := range program.Statements {
		c.statement(stmt)
	}
	return c.errs
}

func (c *Checker) errorAt(code diagnostics.Code, span diagnostics.Span, msg string) {
	c.errs = append(c.errs, diagnostics.New(code, c.file, span, msg))
}

func (c *Checker) undefined(ident *parser.Identifier) {
	d := diagnostics.New(diagnostics.UndefinedIdentifier, c.file, ident.Span(),
		fmt.Sprintf("undefined identifier '%s'", ident.Value))
	if hint := diagnostics.ClosestMatch(ident.Value, c.scope.visibleNames()); hint != "" {
		d = d.WithHelp(fmt.Sprintf("did you mean '%s'?", hint))
	}
	c.errs = append(c.errs, d)
}

func (c *Checker) push() { c.scope = newScope(c.scope) }
func (c *Checker) pop()  { c.scope = c.scope.outer }

func (c *Checker) statement(stmt parser.Statement) {
	switch s := stmt.(type) {
	case *parser.LetStatement:
		c.expression(s.Value)
		b := &binding{name: s.Name.Value, shadows: true}
		if fl, ok := s.Value.(*parser.FunctionLiteral); ok {
			b.isFunc, b.arity, b.shadows = true, len(fl.Params), false
		}
		c.scope.define(b)

	case *parser.AssignStatement:
		c.assignTarget(s.Target)
		c.expression(s.Value)

	case *parser.ReturnStatement:
		if s.Value != nil {
			c.expression(s.Value)
		}

	case *parser.ExpressionStatement:
		c.expression(s.Expression)

	case *parser.BlockStatement:
		c.push()
		for _, inner := range s.Statements {
			c.statement(inner)
		}
		c.pop()

	case *parser.IfStatement:
		c.expression(s.Condition)
		c.statement(s.Consequence)
		if s.Alternative != nil {
			c.statement(s.Alternative)
		}

	case *parser.WhileStatement:
		c.expression(s.Condition)
		c.loopDepth++
		c.statement(s.Body)
		c.loopDepth--

	case *parser.ForInStatement:
		c.expression(s.Iterable)
		c.push()
		c.scope.define(&binding{name: s.Var.Value, shadows: true})
		if s.Value != nil {
			c.scope.define(&binding{name: s.Value.Value, shadows: true})
		}
		c.loopDepth++
		c.statement(s.Body)
		c.loopDepth--
		c.pop()

	case *parser.BreakStatement:
		if c.loopDepth == 0 {
			c.errorAt(diagnostics.UnexpectedToken, s.Span(), "'break' outside of a loop")
		}

	case *parser.ContinueStatement:
		if c.loopDepth == 0 {
			c.errorAt(diagnostics.UnexpectedToken, s.Span(), "'continue' outside of a loop")
		}

	case *parser.FunctionDeclaration:
		// Hoisted at top level; elsewhere visible from here on,
		// including to its own body.
		c.scope.define(&binding{name: s.Name.Value, isFunc: true, arity: len(s.Function.Params)})
		c.function(s.Function, false)

	case *parser.ClassDeclaration:
		if s.Parent != nil {
			c.identifier(s.Parent)
		}
		c.scope.define(&binding{name: s.Name.Value, shadows: true})
		for _, m := range s.Methods {
			c.function(m.Function, true)
		}

	case *parser.EnumDeclaration:
		c.scope.define(&binding{name: s.Name.Value, shadows: true})

	case *parser.ImportStatement:
		c.scope.define(&binding{name: s.BindName(), shadows: true})

	case *parser.GoStatement:
		c.expression(s.Call)
	}
}

func (c *Checker) function(fl *parser.FunctionLiteral, isMethod bool) {
	c.push()
	wasMethod := c.inMethod
	savedDepth := c.loopDepth
	c.inMethod, c.loopDepth = isMethod, 0
	if isMethod {
		c.scope.define(&binding{name: "self", shadows: true})
	}
	for _, p := range fl.Params {
		c.scope.define(&binding{name: p.Value, shadows: true})
	}
	for _, stmt := range fl.Body.Statements {
		c.statement(stmt)
	}
	c.inMethod, c.loopDepth = wasMethod, savedDepth
	c.pop()
}

func (c *Checker) assignTarget(target parser.Expression) {
	switch t := target.(type) {
	case *parser.Identifier:
		b, ok := c.scope.resolve(t.Value)
		if !ok {
			c.errorAt(diagnostics.UndefinedVariable, t.Span(),
				fmt.Sprintf("assignment to undefined variable '%s'", t.Value))
			return
		}
		// A rebound function name loses its statically known arity.
		b.shadows = true
		b.isFunc = false
	case *parser.IndexExpression:
		c.expression(t.Object)
		c.expression(t.Index)
	case *parser.FieldExpression:
		c.expression(t.Object)
	default:
		c.errorAt(diagnostics.UnexpectedToken, target.Span(), "invalid assignment target")
	}
}

func (c *Checker) identifier(ident *parser.Identifier) {
	if ident.Value == "self" {
		if !c.inMethod {
			c.errorAt(diagnostics.UndefinedIdentifier, ident.Span(),
				"'self' outside of a method")
		}
		return
	}
	if _, ok := c.scope.resolve(ident.Value); !ok {
		c.undefined(ident)
	}
}

func (c *Checker) expression(e parser.Expression) {
	switch ex := e.(type) {
	case *parser.Identifier:
		c.identifier(ex)
	case *parser.PrefixExpression:
		c.expression(ex.Right)
	case *parser.InfixExpression:
		c.expression(ex.Left)
		c.expression(ex.Right)
	case *parser.RangeExpression:
		c.expression(ex.Start)
		c.expression(ex.End)
	case *parser.StringLiteral:
		for _, part := range ex.Exprs {
			c.expression(part)
		}
	case *parser.CallExpression:
		c.call(ex)
	case *parser.IndexExpression:
		c.expression(ex.Object)
		c.expression(ex.Index)
	case *parser.FieldExpression:
		c.expression(ex.Object)
	case *parser.ListLiteral:
		for _, el := range ex.Elements {
			c.expression(el)
		}
	case *parser.MapLiteral:
		for i := range ex.Keys {
			c.expression(ex.Keys[i])
			c.expression(ex.Values[i])
		}
	case *parser.FunctionLiteral:
		c.function(ex, false)
	case *parser.MatchExpression:
		c.match(ex)
	}
}

// call checks arity when the callee is an identifier bound to a function
// whose definition has not been shadowed.
func (c *Checker) call(ex *parser.CallExpression) {
	c.expression(ex.Callee)
	for _, arg := range ex.Arguments {
		c.expression(arg)
	}
	ident, ok := ex.Callee.(*parser.Identifier)
	if !ok {
		return
	}
	b, ok := c.scope.resolve(ident.Value)
	if !ok || !b.isFunc || b.shadows {
		return
	}
	if len(ex.Arguments) != b.arity {
		c.errorAt(diagnostics.ArityMismatch, ex.Span(),
			fmt.Sprintf("%s expects %d argument(s), got %d",
				ident.Value, b.arity, len(ex.Arguments)))
	}
}

func (c *Checker) match(ex *parser.MatchExpression) {
	c.expression(ex.Subject)
	for _, arm := range ex.Arms {
		c.push()
		switch p := arm.Pattern.(type) {
		case *parser.LiteralPattern:
			c.expression(p.Value)
		case *parser.BindingPattern:
			c.scope.define(&binding{name: p.Name.Value, shadows: true})
		case *parser.VariantPattern:
			if p.Enum != nil {
				c.identifier(p.Enum)
			}
			for _, b := range p.Bindings {
				c.scope.define(&binding{name: b.Value, shadows: true})
			}
		}
		if arm.Guard != nil {
			c.expression(arm.Guard)
		}
		c.statement(arm.Body)
		c.pop()
	}
}
