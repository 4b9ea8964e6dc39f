package compiler

import (
	"fmt"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/parser"
	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

// compileExpr compiles an expression and returns the register holding the
// result. The bool reports ownership: true means the register is a
// temporary the caller must free, false means it belongs to a binding.
func (c *Compiler) compileExpr(e parser.Expression) (Register, bool) {
	switch ex := e.(type) {
	case *parser.Identifier:
		return c.compileIdentifier(ex)
	case *parser.IntegerLiteral:
		dst := c.allocReg(ex.Span())
		if ex.Value >= -vm.MaxJump && ex.Value <= vm.MaxJump {
			c.emit(vm.MakeAsBx(vm.OpLoadInt, uint8(dst), int(ex.Value)), ex.Span())
		} else {
			idx := c.addConst(vm.Int(ex.Value), ex.Span())
			c.emit(vm.MakeABx(vm.OpLoadConst, uint8(dst), uint16(idx)), ex.Span())
		}
		return dst, true
	case *parser.FloatLiteral:
		dst := c.allocReg(ex.Span())
		idx := c.addConst(vm.Float(ex.Value), ex.Span())
		c.emit(vm.MakeABx(vm.OpLoadConst, uint8(dst), uint16(idx)), ex.Span())
		return dst, true
	case *parser.BooleanLiteral:
		dst := c.allocReg(ex.Span())
		op := vm.OpLoadFalse
		if ex.Value {
			op = vm.OpLoadTrue
		}
		c.emit(vm.MakeABC(op, uint8(dst), 0, 0), ex.Span())
		return dst, true
	case *parser.NilLiteral:
		dst := c.allocReg(ex.Span())
		c.emit(vm.MakeABC(vm.OpLoadNil, uint8(dst), 0, 0), ex.Span())
		return dst, true
	case *parser.StringLiteral:
		return c.compileStringLiteral(ex)
	case *parser.PrefixExpression:
		return c.compilePrefix(ex)
	case *parser.InfixExpression:
		return c.compileInfix(ex)
	case *parser.RangeExpression:
		lo, loTmp := c.compileExpr(ex.Start)
		hi, hiTmp := c.compileExpr(ex.End)
		c.freeTemp(hi, hiTmp)
		c.freeTemp(lo, loTmp)
		dst := c.allocReg(ex.Span())
		c.emit(vm.MakeABC(vm.OpNewRange, uint8(dst), uint8(lo), uint8(hi)), ex.Span())
		return dst, true
	case *parser.CallExpression:
		return c.compileCall(ex)
	case *parser.IndexExpression:
		obj, objTmp := c.compileExpr(ex.Object)
		idx, idxTmp := c.compileExpr(ex.Index)
		c.freeTemp(idx, idxTmp)
		c.freeTemp(obj, objTmp)
		dst := c.allocReg(ex.Span())
		c.emit(vm.MakeABC(vm.OpGetIndex, uint8(dst), uint8(obj), uint8(idx)), ex.Span())
		return dst, true
	case *parser.FieldExpression:
		obj, objTmp := c.compileExpr(ex.Object)
		name := c.addNameConst(ex.Field.Value, ex.Field.Span())
		c.freeTemp(obj, objTmp)
		dst := c.allocReg(ex.Span())
		c.emit(vm.MakeABC(vm.OpGetField, uint8(dst), uint8(obj), name), ex.Span())
		return dst, true
	case *parser.ListLiteral:
		return c.compileListLiteral(ex)
	case *parser.MapLiteral:
		return c.compileMapLiteral(ex)
	case *parser.FunctionLiteral:
		name := ex.Name
		if name == "" {
			name = "<anon>"
		}
		return c.compileFunctionLiteral(ex, name, false), true
	case *parser.MatchExpression:
		return c.compileMatch(ex)
	default:
		c.errorAt(diagnostics.UnexpectedToken, e.Span(),
			fmt.Sprintf("cannot compile %T", e))
		dst := c.allocReg(e.Span())
		c.emit(vm.MakeABC(vm.OpLoadNil, uint8(dst), 0, 0), e.Span())
		return dst, true
	}
}

// compileInto compiles an expression directly into dst.
func (c *Compiler) compileInto(e parser.Expression, dst Register) {
	val, tmp := c.compileExpr(e)
	if val != dst {
		c.emit(vm.MakeABC(vm.OpMove, uint8(dst), uint8(val), 0), e.Span())
		c.freeTemp(val, tmp)
	}
}

func (c *Compiler) freeTemp(reg Register, tmp bool) {
	if tmp {
		c.regAlloc.Free(reg)
	}
}

func (c *Compiler) compileIdentifier(ex *parser.Identifier) (Register, bool) {
	if sym, ok := c.symbols.Resolve(ex.Value); ok && !sym.IsGlobal {
		return sym.Register, false
	}
	if idx, ok := c.resolveUpvalue(ex.Value); ok {
		dst := c.allocReg(ex.Span())
		c.emit(vm.MakeABC(vm.OpGetUpval, uint8(dst), uint8(idx), 0), ex.Span())
		return dst, true
	}
	if idx, ok := c.globalTable().Resolve(ex.Value); ok {
		dst := c.allocReg(ex.Span())
		c.emit(vm.MakeABx(vm.OpGetGlobal, uint8(dst), uint16(idx)), ex.Span())
		return dst, true
	}
	c.undefined(ex)
	dst := c.allocReg(ex.Span())
	c.emit(vm.MakeABC(vm.OpLoadNil, uint8(dst), 0, 0), ex.Span())
	return dst, true
}

func (c *Compiler) compileStringLiteral(ex *parser.StringLiteral) (Register, bool) {
	if !ex.Interpolated() {
		dst := c.allocReg(ex.Span())
		idx := c.addConst(vm.String(ex.Text()), ex.Span())
		c.emit(vm.MakeABx(vm.OpLoadConst, uint8(dst), uint16(idx)), ex.Span())
		return dst, true
	}
	// Lay text parts and expression results out back to back, skipping
	// empty text parts, then concatenate in one go.
	count := len(ex.Exprs)
	for _, p := range ex.Parts {
		if p != "" {
			count++
		}
	}
	base := c.allocContiguous(count, ex.Span())
	slot := base
	for i, p := range ex.Parts {
		if p != "" {
			idx := c.addConst(vm.String(p), ex.Span())
			c.emit(vm.MakeABx(vm.OpLoadConst, uint8(slot), uint16(idx)), ex.Span())
			slot++
		}
		if i < len(ex.Exprs) {
			c.compileInto(ex.Exprs[i], slot)
			slot++
		}
	}
	c.regAlloc.FreeN(base, count)
	dst := c.allocReg(ex.Span())
	c.emit(vm.MakeABC(vm.OpBuildString, uint8(dst), uint8(base), uint8(count)), ex.Span())
	return dst, true
}

func (c *Compiler) compilePrefix(ex *parser.PrefixExpression) (Register, bool) {
	val, tmp := c.compileExpr(ex.Right)
	c.freeTemp(val, tmp)
	dst := c.allocReg(ex.Span())
	switch ex.Operator {
	case "-":
		c.emit(vm.MakeABC(vm.OpNeg, uint8(dst), uint8(val), 0), ex.Span())
	case "not":
		c.emit(vm.MakeABC(vm.OpNot, uint8(dst), uint8(val), 0), ex.Span())
	default:
		c.errorAt(diagnostics.UnexpectedToken, ex.Span(),
			fmt.Sprintf("unknown prefix operator '%s'", ex.Operator))
	}
	return dst, true
}

func infixOp(operator string) (vm.OpCode, bool) {
	switch operator {
	case "+":
		return vm.OpAdd, true
	case "-":
		return vm.OpSub, true
	case "*":
		return vm.OpMul, true
	case "/":
		return vm.OpDiv, true
	case "%":
		return vm.OpMod, true
	case "**":
		return vm.OpPow, true
	case "==":
		return vm.OpEq, true
	case "!=":
		return vm.OpNe, true
	case "<":
		return vm.OpLt, true
	case "<=":
		return vm.OpLe, true
	case ">":
		return vm.OpGt, true
	case ">=":
		return vm.OpGe, true
	case "and":
		return vm.OpAnd, true
	case "or":
		return vm.OpOr, true
	}
	return vm.OpNop, false
}

func (c *Compiler) compileInfix(ex *parser.InfixExpression) (Register, bool) {
	op, ok := infixOp(ex.Operator)
	if !ok {
		c.errorAt(diagnostics.UnexpectedToken, ex.Span(),
			fmt.Sprintf("unknown operator '%s'", ex.Operator))
		dst := c.allocReg(ex.Span())
		c.emit(vm.MakeABC(vm.OpLoadNil, uint8(dst), 0, 0), ex.Span())
		return dst, true
	}
	left, leftTmp := c.compileExpr(ex.Left)
	right, rightTmp := c.compileExpr(ex.Right)
	c.freeTemp(right, rightTmp)
	c.freeTemp(left, leftTmp)
	dst := c.allocReg(ex.Span())
	c.emit(vm.MakeABC(op, uint8(dst), uint8(left), uint8(right)), ex.Span())
	return dst, true
}

func (c *Compiler) compileCall(ex *parser.CallExpression) (Register, bool) {
	argc := len(ex.Arguments)
	base := c.allocContiguous(1+argc, ex.Span())
	c.compileInto(ex.Callee, base)
	for i, arg := range ex.Arguments {
		c.compileInto(arg, base+1+Register(i))
	}
	c.emit(vm.MakeABC(vm.OpCall, uint8(base), uint8(base), uint8(argc)), ex.Span())
	// The result lands in base; the argument slots become free again.
	c.regAlloc.FreeN(base+1, argc)
	return base, true
}

func (c *Compiler) compileListLiteral(ex *parser.ListLiteral) (Register, bool) {
	n := len(ex.Elements)
	if n == 0 {
		dst := c.allocReg(ex.Span())
		c.emit(vm.MakeABC(vm.OpNewList, uint8(dst), 0, 0), ex.Span())
		return dst, true
	}
	base := c.allocContiguous(n, ex.Span())
	for i, el := range ex.Elements {
		c.compileInto(el, base+Register(i))
	}
	c.regAlloc.FreeN(base, n)
	dst := c.allocReg(ex.Span())
	c.emit(vm.MakeABC(vm.OpNewList, uint8(dst), uint8(base), uint8(n)), ex.Span())
	return dst, true
}

func (c *Compiler) compileMapLiteral(ex *parser.MapLiteral) (Register, bool) {
	n := len(ex.Keys)
	if n == 0 {
		dst := c.allocReg(ex.Span())
		c.emit(vm.MakeABC(vm.OpNewMap, uint8(dst), 0, 0), ex.Span())
		return dst, true
	}
	base := c.allocContiguous(2*n, ex.Span())
	for i := range ex.Keys {
		c.compileInto(ex.Keys[i], base+Register(2*i))
		c.compileInto(ex.Values[i], base+Register(2*i+1))
	}
	c.regAlloc.FreeN(base, 2*n)
	dst := c.allocReg(ex.Span())
	c.emit(vm.MakeABC(vm.OpNewMap, uint8(dst), uint8(base), uint8(n)), ex.Span())
	return dst, true
}
