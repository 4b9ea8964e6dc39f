package compiler

import (
	"fmt"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/parser"
	"github.com/pro-grammer-SD/axiom/pkg/source"
	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

// LoopContext tracks the jump targets of the innermost loop so break and
// continue can be patched after the loop body is emitted.
type LoopContext struct {
	ContinueTarget   int
	BreakPlaceholder []int
}

// Compiler transforms an AST into a register-machine Proto. Each function
// gets its own Compiler linked to the enclosing one, mirroring the
// closure nesting of the source.
type Compiler struct {
	file      *source.SourceFile
	proto     *vm.Proto
	regAlloc  *RegisterAllocator
	symbols   *SymbolTable
	enclosing *Compiler
	globals   *GlobalTable // shared; reach it through root()
	upvals    []vm.UpvalDesc
	loops     []*LoopContext
	errs      []*diagnostics.Diagnostic

	// Result register of the most recent top-level expression statement.
	// The REPL and `run` return it as the program value.
	lastExprReg   Register
	lastExprValid bool
}

// New creates a top-level compiler. The global table is shared with the
// caller so bindings survive across compilations in one session.
func New(file *source.SourceFile, globals *GlobalTable) *Compiler {
	if globals == nil {
		globals = NewGlobalTable()
	}
	return &Compiler{
		file:     file,
		proto:    &vm.Proto{File: file},
		regAlloc: NewRegisterAllocator(),
		symbols:  NewSymbolTable(),
		globals:  globals,
	}
}

func (c *Compiler) newFunctionCompiler(name string, arity int) *Compiler {
	return &Compiler{
		file:      c.file,
		proto:     &vm.Proto{Name: name, Arity: arity, File: c.file},
		regAlloc:  NewRegisterAllocator(),
		symbols:   NewSymbolTable(),
		enclosing: c,
		globals:   nil, // reached through root()
	}
}

func (c *Compiler) root() *Compiler {
	r := c
	for r.enclosing != nil {
		r = r.enclosing
	}
	return r
}

func (c *Compiler) globalTable() *GlobalTable { return c.root().globals }

// atTopLevel reports whether definitions land in the global table:
// statement position of the outermost compiler, outside any block.
func (c *Compiler) atTopLevel() bool {
	return c.enclosing == nil && c.symbols.Outer == nil
}

// Compile compiles a whole program into the main proto. On errors the
// proto is unusable and the diagnostics tell why.
func (c *Compiler) Compile(program *parser.Program) (*vm.Proto, []*diagnostics.Diagnostic) {
	c.hoistDeclarations(program)
	for _, stmt := range program.Statements {
		c.compileStatement(stmt)
	}
	if c.lastExprValid {
		c.emit(vm.MakeABC(vm.OpReturn, uint8(c.lastExprReg), 0, 0), program.Span())
	} else {
		c.emit(vm.MakeABC(vm.OpReturnNil, 0, 0, 0), program.Span())
	}
	c.proto.NumRegs = c.regAlloc.MaxUsed()
	return c.proto, c.errs
}

// hoistDeclarations assigns global slots to top-level declarations before
// any body compiles, so functions can reference each other regardless of
// order.
func (c *Compiler) hoistDeclarations(program *parser.Program) {
	for _, stmt := range program.Statements {
		switch s := stmt.(type) {
		case *parser.LetStatement:
			c.globalTable().Define(s.Name.Value)
		case *parser.FunctionDeclaration:
			c.globalTable().Define(s.Name.Value)
		case *parser.ClassDeclaration:
			c.globalTable().Define(s.Name.Value)
		case *parser.EnumDeclaration:
			c.globalTable().Define(s.Name.Value)
		}
	}
}

// --- Emission helpers ---

func (c *Compiler) emit(ins vm.Instr, span diagnostics.Span) int {
	return c.proto.Emit(ins, span)
}

// emitJump emits a forward jump with a placeholder offset and returns its
// position for patchJump.
func (c *Compiler) emitJump(op vm.OpCode, a Register, span diagnostics.Span) int {
	return c.emit(vm.MakeAsBx(op, uint8(a), 0), span)
}

// patchJump retargets a placeholder jump to the current end of code.
func (c *Compiler) patchJump(pos int) {
	off := len(c.proto.Code) - (pos + 1)
	if off > vm.MaxJump {
		c.errorAt(diagnostics.JumpTooFar, c.proto.Spans[pos], "")
		return
	}
	ins := c.proto.Code[pos]
	c.proto.Code[pos] = vm.MakeAsBx(ins.Op(), ins.A(), off)
}

// emitLoop emits a backward jump to target.
func (c *Compiler) emitLoop(target int, span diagnostics.Span) {
	off := target - (len(c.proto.Code) + 1)
	if -off > vm.MaxJump {
		c.errorAt(diagnostics.JumpTooFar, span, "")
		return
	}
	c.emit(vm.MakeAsBx(vm.OpJump, 0, off), span)
}

func (c *Compiler) addConst(v vm.Value, span diagnostics.Span) int {
	idx, ok := c.proto.AddConst(v)
	if !ok {
		c.errorAt(diagnostics.TooManyConstants, span, "")
		return 0
	}
	return idx
}

// addNameConst interns a name constant for an instruction whose constant
// operand is the 8-bit C field.
func (c *Compiler) addNameConst(name string, span diagnostics.Span) uint8 {
	idx := c.addConst(vm.String(name), span)
	if idx > 0xFF {
		c.errorAt(diagnostics.TooManyConstants, span,
			fmt.Sprintf("too many field names in one function (limit %d)", 0xFF+1))
		return 0
	}
	return uint8(idx)
}

func (c *Compiler) allocReg(span diagnostics.Span) Register {
	reg, ok := c.regAlloc.Alloc()
	if !ok {
		c.errorAt(diagnostics.TooManyRegisters, span, "")
		return 0
	}
	return reg
}

func (c *Compiler) allocContiguous(count int, span diagnostics.Span) Register {
	reg, ok := c.regAlloc.AllocContiguous(count)
	if !ok {
		c.errorAt(diagnostics.TooManyRegisters, span, "")
		return 0
	}
	return reg
}

// --- Errors ---

func (c *Compiler) errorAt(code diagnostics.Code, span diagnostics.Span, msg string) {
	c.errs = append(c.errs, diagnostics.New(code, c.file, span, msg))
}

func (c *Compiler) undefined(ident *parser.Identifier) {
	d := diagnostics.New(diagnostics.UndefinedIdentifier, c.file, ident.Span(),
		fmt.Sprintf("undefined identifier '%s'", ident.Value))
	if hint := diagnostics.ClosestMatch(ident.Value, c.visibleNames()); hint != "" {
		d = d.WithHelp(fmt.Sprintf("did you mean '%s'?", hint))
	}
	c.errs = append(c.errs, d)
}

// visibleNames collects every name resolvable at the current point:
// locals of this and enclosing functions plus globals.
func (c *Compiler) visibleNames() []string {
	var out []string
	for fc := c; fc != nil; fc = fc.enclosing {
		out = append(out, fc.symbols.VisibleNames()...)
	}
	out = append(out, c.globalTable().Names()...)
	return out
}

// --- Scopes ---

func (c *Compiler) enterScope() {
	c.symbols = NewEnclosedSymbolTable(c.symbols)
}

// leaveScope frees the scope's registers and closes captured upvalues.
func (c *Compiler) leaveScope(span diagnostics.Span) {
	closeFrom := -1
	for _, sym := range c.symbols.Locals() {
		if sym.IsGlobal {
			continue
		}
		if sym.Captured {
			if closeFrom < 0 || int(sym.Register) < closeFrom {
				closeFrom = int(sym.Register)
			}
		}
		c.regAlloc.Free(sym.Register)
	}
	if closeFrom >= 0 {
		c.emit(vm.MakeABC(vm.OpCloseUpvals, uint8(closeFrom), 0, 0), span)
	}
	c.symbols = c.symbols.Outer
}

// --- Name resolution ---

// resolveUpvalue captures a local of an enclosing function, returning the
// upvalue index in this function's closure.
func (c *Compiler) resolveUpvalue(name string) (int, bool) {
	if c.enclosing == nil {
		return 0, false
	}
	if sym, ok := c.enclosing.symbols.Resolve(name); ok && !sym.IsGlobal {
		sym.Captured = true
		c.enclosing.regAlloc.Pin(sym.Register)
		return c.addUpval(vm.UpvalDesc{InStack: true, Index: uint8(sym.Register), Name: name}), true
	}
	if idx, ok := c.enclosing.resolveUpvalue(name); ok {
		return c.addUpval(vm.UpvalDesc{InStack: false, Index: uint8(idx), Name: name}), true
	}
	return 0, false
}

func (c *Compiler) addUpval(desc vm.UpvalDesc) int {
	for i, u := range c.upvals {
		if u.InStack == desc.InStack && u.Index == desc.Index {
			return i
		}
	}
	c.upvals = append(c.upvals, desc)
	return len(c.upvals) - 1
}

// --- Functions ---

// compileFunctionLiteral compiles a nested function and emits the Closure
// instruction placing it in a fresh register. withSelf prepends the
// implicit receiver parameter for class methods.
func (c *Compiler) compileFunctionLiteral(fl *parser.FunctionLiteral, name string, withSelf bool) Register {
	proto := c.compileFunctionProto(fl, name, withSelf)
	idx := len(c.proto.Protos)
	c.proto.Protos = append(c.proto.Protos, proto)
	dst := c.allocReg(fl.Span())
	c.emit(vm.MakeABx(vm.OpClosure, uint8(dst), uint16(idx)), fl.Span())
	return dst
}

// compileFunctionProto compiles a function body into its own proto
// without emitting a Closure in the parent; class methods use this.
func (c *Compiler) compileFunctionProto(fl *parser.FunctionLiteral, name string, withSelf bool) *vm.Proto {
	arity := len(fl.Params)
	if withSelf {
		arity++
	}
	fc := c.newFunctionCompiler(name, arity)

	if withSelf {
		reg := fc.allocReg(fl.Span())
		fc.symbols.Define("self", reg)
	}
	for _, p := range fl.Params {
		reg := fc.allocReg(p.Span())
		fc.symbols.Define(p.Value, reg)
	}

	for _, stmt := range fl.Body.Statements {
		fc.compileStatement(stmt)
	}
	fc.emit(vm.MakeABC(vm.OpReturnNil, 0, 0, 0), fl.Body.Span())

	fc.proto.Upvals = fc.upvals
	fc.proto.NumRegs = fc.regAlloc.MaxUsed()
	c.errs = append(c.errs, fc.errs...)
	return fc.proto
}
