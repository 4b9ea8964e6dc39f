package compiler

import (
	"github.com/pro-grammer-SD/axiom/pkg/parser"
	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

// compileMatch lowers a match expression into a chain of tests. Each arm
// tests the subject, binds its pattern variables, and writes its body's
// value into a shared result register before jumping past the remaining
// arms. A subject no arm matches yields nil.
func (c *Compiler) compileMatch(ex *parser.MatchExpression) (Register, bool) {
	subj, subjTmp := c.compileExpr(ex.Subject)
	result := c.allocReg(ex.Span())

	var endJumps []int
	for _, arm := range ex.Arms {
		c.enterScope()
		var failJumps []int

		switch p := arm.Pattern.(type) {
		case *parser.WildcardPattern:
			// Always matches.

		case *parser.LiteralPattern:
			lit, litTmp := c.compileExpr(p.Value)
			cmp := c.allocReg(p.Span())
			c.emit(vm.MakeABC(vm.OpEq, uint8(cmp), uint8(subj), uint8(lit)), p.Span())
			c.freeTemp(lit, litTmp)
			failJumps = append(failJumps, c.emitJump(vm.OpJumpIfFalse, cmp, p.Span()))
			c.regAlloc.Free(cmp)

		case *parser.BindingPattern:
			reg := c.allocReg(p.Span())
			c.emit(vm.MakeABC(vm.OpMove, uint8(reg), uint8(subj), 0), p.Span())
			c.symbols.Define(p.Name.Value, reg)

		case *parser.VariantPattern:
			tag := p.Variant.Value
			if p.Enum != nil {
				tag = p.Enum.Value + "." + tag
			}
			kidx := c.addNameConst(tag, p.Span())
			// MatchTag skips the next instruction when the subject
			// carries the tag, so a plain jump chains to the next arm.
			c.emit(vm.MakeABC(vm.OpMatchTag, uint8(subj), 0, kidx), p.Span())
			failJumps = append(failJumps, c.emitJump(vm.OpJump, 0, p.Span()))
			if n := len(p.Bindings); n > 0 {
				base := c.allocContiguous(n, p.Span())
				c.emit(vm.MakeABC(vm.OpBindPayload, uint8(base), uint8(subj), uint8(n)), p.Span())
				for i, b := range p.Bindings {
					c.symbols.Define(b.Value, base+Register(i))
				}
			}
		}

		if arm.Guard != nil {
			g, gTmp := c.compileExpr(arm.Guard)
			failJumps = append(failJumps, c.emitJump(vm.OpJumpIfFalse, g, arm.Guard.Span()))
			c.freeTemp(g, gTmp)
		}

		c.compileArmBody(arm.Body, result)
		c.leaveScope(arm.Body.Span())
		endJumps = append(endJumps, c.emitJump(vm.OpJump, 0, arm.Body.Span()))

		for _, pos := range failJumps {
			c.patchJump(pos)
		}
	}

	c.emit(vm.MakeABC(vm.OpLoadNil, uint8(result), 0, 0), ex.Span())
	for _, pos := range endJumps {
		c.patchJump(pos)
	}
	c.freeTemp(subj, subjTmp)
	return result, true
}

// compileArmBody evaluates an arm body into the result register. A block
// body yields the value of its trailing expression statement, nil
// otherwise.
func (c *Compiler) compileArmBody(body parser.Statement, result Register) {
	switch b := body.(type) {
	case *parser.ExpressionStatement:
		c.compileInto(b.Expression, result)
	case *parser.BlockStatement:
		c.enterScope()
		yielded := false
		for i, stmt := range b.Statements {
			if es, ok := stmt.(*parser.ExpressionStatement); ok && i == len(b.Statements)-1 {
				c.compileInto(es.Expression, result)
				yielded = true
				break
			}
			c.compileStatement(stmt)
		}
		if !yielded {
			c.emit(vm.MakeABC(vm.OpLoadNil, uint8(result), 0, 0), b.Span())
		}
		c.leaveScope(b.Span())
	default:
		c.compileStatement(body)
		c.emit(vm.MakeABC(vm.OpLoadNil, uint8(result), 0, 0), body.Span())
	}
}
