package compiler

import (
	"fmt"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/lexer"
	"github.com/pro-grammer-SD/axiom/pkg/parser"
	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

func (c *Compiler) compileStatement(stmt parser.Statement) {
	switch s := stmt.(type) {
	case *parser.LetStatement:
		c.compileLet(s)
	case *parser.AssignStatement:
		c.compileAssign(s)
	case *parser.ReturnStatement:
		c.compileReturn(s)
	case *parser.ExpressionStatement:
		c.compileExpressionStatement(s)
	case *parser.BlockStatement:
		c.enterScope()
		for _, inner := range s.Statements {
			c.compileStatement(inner)
		}
		c.leaveScope(s.Span())
	case *parser.IfStatement:
		c.compileIf(s)
	case *parser.WhileStatement:
		c.compileWhile(s)
	case *parser.ForInStatement:
		c.compileForIn(s)
	case *parser.BreakStatement:
		c.compileBreak(s)
	case *parser.ContinueStatement:
		c.compileContinue(s)
	case *parser.FunctionDeclaration:
		c.compileFunctionDeclaration(s)
	case *parser.ClassDeclaration:
		c.compileClassDeclaration(s)
	case *parser.EnumDeclaration:
		c.compileEnumDeclaration(s)
	case *parser.ImportStatement:
		c.compileImport(s)
	case *parser.GoStatement:
		c.compileGo(s)
	default:
		c.errorAt(diagnostics.UnexpectedToken, stmt.Span(),
			fmt.Sprintf("cannot compile %T", stmt))
	}
}

func (c *Compiler) compileLet(s *parser.LetStatement) {
	if c.atTopLevel() {
		val, tmp := c.compileExpr(s.Value)
		idx := c.globalTable().Define(s.Name.Value)
		c.emit(vm.MakeABx(vm.OpSetGlobal, uint8(val), uint16(idx)), s.Span())
		c.freeTemp(val, tmp)
		return
	}
	val, tmp := c.compileExpr(s.Value)
	reg := val
	if !tmp {
		// The value lives in another binding's register; give this
		// binding its own.
		reg = c.allocReg(s.Span())
		c.emit(vm.MakeABC(vm.OpMove, uint8(reg), uint8(val), 0), s.Span())
	}
	c.symbols.Define(s.Name.Value, reg)
}

func compoundOp(t lexer.TokenType) (vm.OpCode, bool) {
	switch t {
	case lexer.PLUS_ASSIGN:
		return vm.OpAdd, true
	case lexer.MINUS_ASSIGN:
		return vm.OpSub, true
	case lexer.ASTERISK_ASSIGN:
		return vm.OpMul, true
	case lexer.SLASH_ASSIGN:
		return vm.OpDiv, true
	}
	return vm.OpNop, false
}

func (c *Compiler) compileAssign(s *parser.AssignStatement) {
	op, compound := compoundOp(s.Op)

	switch target := s.Target.(type) {
	case *parser.Identifier:
		c.compileAssignIdent(s, target, op, compound)

	case *parser.IndexExpression:
		obj, objTmp := c.compileExpr(target.Object)
		idx, idxTmp := c.compileExpr(target.Index)
		if compound {
			cur := c.allocReg(s.Span())
			c.emit(vm.MakeABC(vm.OpGetIndex, uint8(cur), uint8(obj), uint8(idx)), target.Span())
			val, valTmp := c.compileExpr(s.Value)
			c.emit(vm.MakeABC(op, uint8(cur), uint8(cur), uint8(val)), s.Span())
			c.emit(vm.MakeABC(vm.OpSetIndex, uint8(obj), uint8(idx), uint8(cur)), s.Span())
			c.freeTemp(val, valTmp)
			c.regAlloc.Free(cur)
		} else {
			val, valTmp := c.compileExpr(s.Value)
			c.emit(vm.MakeABC(vm.OpSetIndex, uint8(obj), uint8(idx), uint8(val)), s.Span())
			c.freeTemp(val, valTmp)
		}
		c.freeTemp(idx, idxTmp)
		c.freeTemp(obj, objTmp)

	case *parser.FieldExpression:
		obj, objTmp := c.compileExpr(target.Object)
		name := c.addNameConst(target.Field.Value, target.Field.Span())
		if compound {
			cur := c.allocReg(s.Span())
			c.emit(vm.MakeABC(vm.OpGetField, uint8(cur), uint8(obj), name), target.Span())
			val, valTmp := c.compileExpr(s.Value)
			c.emit(vm.MakeABC(op, uint8(cur), uint8(cur), uint8(val)), s.Span())
			c.emit(vm.MakeABC(vm.OpSetField, uint8(obj), uint8(cur), name), s.Span())
			c.freeTemp(val, valTmp)
			c.regAlloc.Free(cur)
		} else {
			val, valTmp := c.compileExpr(s.Value)
			c.emit(vm.MakeABC(vm.OpSetField, uint8(obj), uint8(val), name), s.Span())
			c.freeTemp(val, valTmp)
		}
		c.freeTemp(obj, objTmp)

	default:
		c.errorAt(diagnostics.UnexpectedToken, s.Target.Span(), "invalid assignment target")
	}
}

func (c *Compiler) compileAssignIdent(s *parser.AssignStatement, target *parser.Identifier, op vm.OpCode, compound bool) {
	if sym, ok := c.symbols.Resolve(target.Value); ok && !sym.IsGlobal {
		if compound {
			val, tmp := c.compileExpr(s.Value)
			c.emit(vm.MakeABC(op, uint8(sym.Register), uint8(sym.Register), uint8(val)), s.Span())
			c.freeTemp(val, tmp)
			return
		}
		c.compileInto(s.Value, sym.Register)
		return
	}
	if idx, ok := c.resolveUpvalue(target.Value); ok {
		cur := c.allocReg(s.Span())
		if compound {
			c.emit(vm.MakeABC(vm.OpGetUpval, uint8(cur), uint8(idx), 0), target.Span())
			val, tmp := c.compileExpr(s.Value)
			c.emit(vm.MakeABC(op, uint8(cur), uint8(cur), uint8(val)), s.Span())
			c.freeTemp(val, tmp)
		} else {
			c.compileInto(s.Value, cur)
		}
		c.emit(vm.MakeABC(vm.OpSetUpval, uint8(idx), uint8(cur), 0), s.Span())
		c.regAlloc.Free(cur)
		return
	}
	if idx, ok := c.globalTable().Resolve(target.Value); ok {
		cur := c.allocReg(s.Span())
		if compound {
			c.emit(vm.MakeABx(vm.OpGetGlobal, uint8(cur), uint16(idx)), target.Span())
			val, tmp := c.compileExpr(s.Value)
			c.emit(vm.MakeABC(op, uint8(cur), uint8(cur), uint8(val)), s.Span())
			c.freeTemp(val, tmp)
		} else {
			c.compileInto(s.Value, cur)
		}
		c.emit(vm.MakeABx(vm.OpSetGlobal, uint8(cur), uint16(idx)), s.Span())
		c.regAlloc.Free(cur)
		return
	}
	c.errs = append(c.errs, diagnostics.New(diagnostics.UndefinedVariable, c.file, target.Span(),
		fmt.Sprintf("assignment to undefined variable '%s'", target.Value)))
}

// compileReturn emits Return, compiling `ret f(args)` as a tail call so
// self-recursive functions run in constant frame space.
func (c *Compiler) compileReturn(s *parser.ReturnStatement) {
	if s.Value == nil {
		c.emit(vm.MakeABC(vm.OpReturnNil, 0, 0, 0), s.Span())
		return
	}
	if call, ok := s.Value.(*parser.CallExpression); ok {
		base := c.allocContiguous(1+len(call.Arguments), call.Span())
		c.compileInto(call.Callee, base)
		for i, arg := range call.Arguments {
			c.compileInto(arg, base+1+Register(i))
		}
		c.emit(vm.MakeABC(vm.OpTailCall, 0, uint8(base), uint8(len(call.Arguments))), call.Span())
		c.regAlloc.FreeN(base, 1+len(call.Arguments))
		return
	}
	val, tmp := c.compileExpr(s.Value)
	c.emit(vm.MakeABC(vm.OpReturn, uint8(val), 0, 0), s.Span())
	c.freeTemp(val, tmp)
}

func (c *Compiler) compileExpressionStatement(s *parser.ExpressionStatement) {
	val, tmp := c.compileExpr(s.Expression)
	if !c.atTopLevel() {
		c.freeTemp(val, tmp)
		return
	}
	// Keep the value live so the program can return it.
	if c.lastExprValid {
		c.regAlloc.Free(c.lastExprReg)
	}
	if !tmp {
		owned := c.allocReg(s.Span())
		c.emit(vm.MakeABC(vm.OpMove, uint8(owned), uint8(val), 0), s.Span())
		val = owned
	}
	c.lastExprReg = val
	c.lastExprValid = true
}

func (c *Compiler) compileIf(s *parser.IfStatement) {
	cond, tmp := c.compileExpr(s.Condition)
	elseJump := c.emitJump(vm.OpJumpIfFalse, cond, s.Condition.Span())
	c.freeTemp(cond, tmp)

	c.compileStatement(s.Consequence)
	if s.Alternative == nil {
		c.patchJump(elseJump)
		return
	}
	endJump := c.emitJump(vm.OpJump, 0, s.Span())
	c.patchJump(elseJump)
	c.compileStatement(s.Alternative)
	c.patchJump(endJump)
}

func (c *Compiler) compileWhile(s *parser.WhileStatement) {
	start := len(c.proto.Code)
	cond, tmp := c.compileExpr(s.Condition)
	exitJump := c.emitJump(vm.OpJumpIfFalse, cond, s.Condition.Span())
	c.freeTemp(cond, tmp)

	loop := &LoopContext{ContinueTarget: start}
	c.loops = append(c.loops, loop)
	c.compileStatement(s.Body)
	c.loops = c.loops[:len(c.loops)-1]

	c.emitLoop(start, s.Span())
	c.patchJump(exitJump)
	for _, pos := range loop.BreakPlaceholder {
		c.patchJump(pos)
	}
}

func (c *Compiler) compileForIn(s *parser.ForInStatement) {
	iterable, tmp := c.compileExpr(s.Iterable)
	iter := c.allocReg(s.Span())
	c.emit(vm.MakeABC(vm.OpIterNew, uint8(iter), uint8(iterable), 0), s.Iterable.Span())
	c.freeTemp(iterable, tmp)

	c.enterScope()
	nvars := 1
	if s.Value != nil {
		nvars = 2
	}
	varBase := c.allocContiguous(nvars, s.Span())
	varScope := c.symbols
	c.symbols.Define(s.Var.Value, varBase)
	if s.Value != nil {
		c.symbols.Define(s.Value.Value, varBase+1)
	}

	start := len(c.proto.Code)
	c.emit(vm.MakeABC(vm.OpIterNext, uint8(varBase), uint8(iter), uint8(nvars)), s.Span())
	exitJump := c.emitJump(vm.OpJump, 0, s.Span())

	loop := &LoopContext{ContinueTarget: start}
	c.loops = append(c.loops, loop)
	c.compileStatement(s.Body)
	c.loops = c.loops[:len(c.loops)-1]

	// A closure created in the body captures this iteration's variable,
	// not the next one's.
	for _, sym := range varScope.Locals() {
		if sym.Captured {
			c.emit(vm.MakeABC(vm.OpCloseUpvals, uint8(varBase), 0, 0), s.Span())
			break
		}
	}

	c.emitLoop(start, s.Span())
	c.patchJump(exitJump)
	for _, pos := range loop.BreakPlaceholder {
		c.patchJump(pos)
	}
	c.leaveScope(s.Span())
	c.regAlloc.Free(iter)
}

func (c *Compiler) compileBreak(s *parser.BreakStatement) {
	if len(c.loops) == 0 {
		c.errorAt(diagnostics.UnexpectedToken, s.Span(), "'break' outside of a loop")
		return
	}
	loop := c.loops[len(c.loops)-1]
	loop.BreakPlaceholder = append(loop.BreakPlaceholder, c.emitJump(vm.OpJump, 0, s.Span()))
}

func (c *Compiler) compileContinue(s *parser.ContinueStatement) {
	if len(c.loops) == 0 {
		c.errorAt(diagnostics.UnexpectedToken, s.Span(), "'continue' outside of a loop")
		return
	}
	c.emitLoop(c.loops[len(c.loops)-1].ContinueTarget, s.Span())
}

func (c *Compiler) compileFunctionDeclaration(s *parser.FunctionDeclaration) {
	if c.atTopLevel() {
		idx := c.globalTable().Define(s.Name.Value) // hoisted; Define is idempotent
		reg := c.compileFunctionLiteral(s.Function, s.Name.Value, false)
		c.emit(vm.MakeABx(vm.OpSetGlobal, uint8(reg), uint16(idx)), s.Span())
		c.regAlloc.Free(reg)
		return
	}
	// Bind the name before compiling the body so the function can
	// capture itself for recursion.
	dst := c.allocReg(s.Span())
	c.symbols.Define(s.Name.Value, dst)
	proto := c.compileFunctionProto(s.Function, s.Name.Value, false)
	idx := len(c.proto.Protos)
	c.proto.Protos = append(c.proto.Protos, proto)
	c.emit(vm.MakeABx(vm.OpClosure, uint8(dst), uint16(idx)), s.Span())
}

func (c *Compiler) compileClassDeclaration(s *parser.ClassDeclaration) {
	tmpl := &vm.ClassTemplate{Name: s.Name.Value}
	for _, m := range s.Methods {
		tmpl.MethodNames = append(tmpl.MethodNames, m.Name.Value)
		tmpl.Methods = append(tmpl.Methods,
			c.compileFunctionProto(m.Function, s.Name.Value+"."+m.Name.Value, true))
	}
	kidx := c.addConst(vm.Object(tmpl), s.Span())
	if kidx > 0xFF {
		c.errorAt(diagnostics.TooManyConstants, s.Span(), "")
		return
	}

	parentReg := noReg
	parentTmp := false
	if s.Parent != nil {
		parentReg, parentTmp = c.compileExpr(s.Parent)
	}

	dst := c.allocReg(s.Span())
	c.emit(vm.MakeABC(vm.OpMakeClass, uint8(dst), uint8(parentReg), uint8(kidx)), s.Span())
	if s.Parent != nil {
		c.freeTemp(parentReg, parentTmp)
	}
	c.bindDeclaration(s.Name.Value, dst, s.Span())
}

func (c *Compiler) compileEnumDeclaration(s *parser.EnumDeclaration) {
	tmpl := &vm.EnumTemplate{Name: s.Name.Value}
	for _, v := range s.Variants {
		tmpl.Variants = append(tmpl.Variants, v.Name.Value)
		var params []string
		for _, p := range v.Params {
			params = append(params, p.Value)
		}
		tmpl.Params = append(tmpl.Params, params)
	}
	kidx := c.addConst(vm.Object(tmpl), s.Span())

	dst := c.allocReg(s.Span())
	c.emit(vm.MakeABx(vm.OpMakeEnum, uint8(dst), uint16(kidx)), s.Span())
	c.bindDeclaration(s.Name.Value, dst, s.Span())
}

// bindDeclaration stores a freshly built declaration value under its
// name: a global slot at top level, the register itself elsewhere.
func (c *Compiler) bindDeclaration(name string, reg Register, span diagnostics.Span) {
	if c.atTopLevel() {
		idx := c.globalTable().Define(name)
		c.emit(vm.MakeABx(vm.OpSetGlobal, uint8(reg), uint16(idx)), span)
		c.regAlloc.Free(reg)
		return
	}
	c.symbols.Define(name, reg)
}

func (c *Compiler) compileImport(s *parser.ImportStatement) {
	kidx := c.addConst(vm.String(s.Name.Literal), s.Span())
	dst := c.allocReg(s.Span())
	c.emit(vm.MakeABx(vm.OpImport, uint8(dst), uint16(kidx)), s.Span())
	c.bindDeclaration(s.BindName(), dst, s.Span())
}

func (c *Compiler) compileGo(s *parser.GoStatement) {
	call := s.Call
	base := c.allocContiguous(1+len(call.Arguments), call.Span())
	c.compileInto(call.Callee, base)
	for i, arg := range call.Arguments {
		c.compileInto(arg, base+1+Register(i))
	}
	c.emit(vm.MakeABC(vm.OpGoCall, 0, uint8(base), uint8(len(call.Arguments))), s.Span())
	c.regAlloc.FreeN(base, 1+len(call.Arguments))
}
