package vm

import (
	"fmt"
	"strings"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/source"
)

// OpCode defines the type for bytecode instructions.
type OpCode uint8

// Opcodes for the register machine. Every instruction is a fixed 32-bit
// word: op in bits 0-8, a in 8-16, b in 16-24, c in 24-32. bx is the
// unsigned 16-bit b|c field, sbx the same field biased by 32768.
const (
	OpNop OpCode = iota

	// Loads and moves
	OpMove      // A B: R[A] = R[B]
	OpLoadConst // A Bx: R[A] = Consts[Bx]
	OpLoadInt   // A sBx: R[A] = int(sBx), skipping the constant pool
	OpLoadNil   // A: R[A] = nil
	OpLoadTrue  // A: R[A] = true
	OpLoadFalse // A: R[A] = false

	// Arithmetic. Int op Int stays int (wrapping); mixed promotes to
	// float; Div always produces a float.
	OpAdd // A B C: R[A] = R[B] + R[C]
	OpSub // A B C: R[A] = R[B] - R[C]
	OpMul // A B C: R[A] = R[B] * R[C]
	OpDiv // A B C: R[A] = R[B] / R[C]
	OpMod // A B C: R[A] = R[B] % R[C]
	OpPow // A B C: R[A] = R[B] ** R[C], always a float
	OpNeg // A B: R[A] = -R[B]
	OpNot // A B: R[A] = not R[B]

	// Comparison, producing booleans
	OpEq // A B C: R[A] = R[B] == R[C]
	OpNe // A B C: R[A] = R[B] != R[C]
	OpLt // A B C: R[A] = R[B] < R[C]
	OpLe // A B C: R[A] = R[B] <= R[C]
	OpGt // A B C: R[A] = R[B] > R[C]
	OpGe // A B C: R[A] = R[B] >= R[C]

	// Logic, returning operand values: `a and b` is b when a is truthy,
	// else a. Both operands are evaluated before the op runs.
	OpAnd // A B C
	OpOr  // A B C

	// Control flow. Offsets are relative to the next instruction.
	OpJump        // sBx: ip += sBx
	OpJumpIfFalse // A sBx: if not truthy(R[A]) ip += sBx
	OpJumpIfTrue  // A sBx: if truthy(R[A]) ip += sBx

	// Calls. Args sit right after the callee register.
	OpCall      // A B C: R[A] = R[B](R[B+1] .. R[B+C])
	OpTailCall  // B C: reuse the current frame to call R[B] with C args
	OpReturn    // A: return R[A] to the caller
	OpReturnNil // return nil
	OpGoCall    // B C: spawn R[B](args) on its own interpreter

	// Closures and upvalues
	OpClosure     // A Bx: R[A] = closure of Protos[Bx], capturing per its descriptors
	OpGetUpval    // A B: R[A] = Upvalues[B]
	OpSetUpval    // A B: Upvalues[A] = R[B]
	OpCloseUpvals // A: close open upvalues at register >= A

	// Globals
	OpGetGlobal // A Bx: R[A] = Globals[Bx]
	OpSetGlobal // A Bx: Globals[Bx] = R[A]

	// Collections
	OpNewList  // A B C: R[A] = [R[B] .. R[B+C-1]]
	OpNewMap   // A B C: R[A] = map of C pairs starting at R[B]
	OpNewRange // A B C: R[A] = R[B]..R[C]
	OpGetIndex // A B C: R[A] = R[B][R[C]]
	OpSetIndex // A B C: R[A][R[B]] = R[C]

	// Fields, with per-site inline caches
	OpGetField // A B C: R[A] = R[B].name where name = Consts[C]
	OpSetField // A B C: R[A].name = R[B] where name = Consts[C]

	// Strings
	OpBuildString // A B C: R[A] = concat of C stringified values from R[B]

	// Classes and enums
	OpMakeClass // A B C: R[A] = class from template Consts[C]; parent R[B], B=0xFF for none
	OpMakeEnum  // A Bx: R[A] = enum from template Consts[Bx]

	// Pattern matching. Both are test-and-skip: on success the following
	// instruction (a Jump to the next arm) is skipped.
	OpMatchTag    // A C: if R[A] is the variant named by Consts[C], ip++
	OpBindPayload // A B C: R[A] .. R[A+C-1] = payload of variant R[B]

	// Iteration. IterNext is test-and-skip like MatchTag.
	OpIterNew  // A B: R[A] = iterator over R[B]
	OpIterNext // A B C: if iterator R[B] has next, bind C vars at R[A] and ip++

	// Modules
	OpImport // A Bx: R[A] = module named by Consts[Bx]

	// Superinstructions, emitted by the optimizer
	OpAddIntImm // A B C: R[A] = R[B] + int8(C)
	OpIncrLocal // A: R[A] = R[A] + 1 (int fast path)
	OpDecrLocal // A: R[A] = R[A] - 1
	OpCmpLtJmp  // A B C: if R[A] >= R[B], ip += C (fused guard for loops)

	// Quickened arithmetic, installed by the type profile after a site
	// runs 16 times with stable operand types. Each deopts back to its
	// generic form when the guard fails.
	OpAddInt
	OpSubInt
	OpMulInt
	OpAddFloat
	OpSubFloat
	OpMulFloat
	OpLtInt
	OpAddStr

	opCount // sentinel, keep last
)

var opNames = [...]string{
	OpNop: "Nop", OpMove: "Move", OpLoadConst: "LoadConst", OpLoadInt: "LoadInt",
	OpLoadNil: "LoadNil", OpLoadTrue: "LoadTrue", OpLoadFalse: "LoadFalse",
	OpAdd: "Add", OpSub: "Sub", OpMul: "Mul", OpDiv: "Div", OpMod: "Mod",
	OpPow: "Pow", OpNeg: "Neg", OpNot: "Not",
	OpEq: "Eq", OpNe: "Ne", OpLt: "Lt", OpLe: "Le", OpGt: "Gt", OpGe: "Ge",
	OpAnd: "And", OpOr: "Or",
	OpJump: "Jump", OpJumpIfFalse: "JumpIfFalse", OpJumpIfTrue: "JumpIfTrue",
	OpCall: "Call", OpTailCall: "TailCall", OpReturn: "Return", OpReturnNil: "ReturnNil",
	OpGoCall: "GoCall",
	OpClosure: "Closure", OpGetUpval: "GetUpval", OpSetUpval: "SetUpval",
	OpCloseUpvals: "CloseUpvals",
	OpGetGlobal: "GetGlobal", OpSetGlobal: "SetGlobal",
	OpNewList: "NewList", OpNewMap: "NewMap", OpNewRange: "NewRange",
	OpGetIndex: "GetIndex", OpSetIndex: "SetIndex",
	OpGetField: "GetField", OpSetField: "SetField",
	OpBuildString: "BuildString",
	OpMakeClass: "MakeClass", OpMakeEnum: "MakeEnum",
	OpMatchTag: "MatchTag", OpBindPayload: "BindPayload",
	OpIterNew: "IterNew", OpIterNext: "IterNext",
	OpImport: "Import",
	OpAddIntImm: "AddIntImm", OpIncrLocal: "IncrLocal", OpDecrLocal: "DecrLocal",
	OpCmpLtJmp: "CmpLtJmp",
	OpAddInt: "AddInt", OpSubInt: "SubInt", OpMulInt: "MulInt",
	OpAddFloat: "AddFloat", OpSubFloat: "SubFloat", OpMulFloat: "MulFloat",
	OpLtInt: "LtInt", OpAddStr: "AddStr",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// NumOpcodes is the size of per-opcode profiler tables.
const NumOpcodes = int(opCount)

// OpNames returns the mnemonic for every opcode, indexed by opcode value.
func OpNames() []string {
	out := make([]string, NumOpcodes)
	for i := range out {
		out[i] = OpCode(i).String()
	}
	return out
}

// Instr is one fixed-width instruction word.
type Instr uint32

// sBx bias: sbx = bx - 32768, giving a symmetric jump range.
const sbxBias = 32768

// MaxConsts and MaxRegisters bound what the 16-bit and 8-bit operand
// fields can address.
const (
	MaxConsts    = 1 << 16
	MaxRegisters = 256
	MaxJump      = sbxBias - 1
)

func MakeABC(op OpCode, a, b, c uint8) Instr {
	return Instr(uint32(op) | uint32(a)<<8 | uint32(b)<<16 | uint32(c)<<24)
}

func MakeABx(op OpCode, a uint8, bx uint16) Instr {
	return Instr(uint32(op) | uint32(a)<<8 | uint32(bx)<<16)
}

func MakeAsBx(op OpCode, a uint8, sbx int) Instr {
	return MakeABx(op, a, uint16(sbx+sbxBias))
}

func (i Instr) Op() OpCode { return OpCode(i & 0xFF) }
func (i Instr) A() uint8   { return uint8(i >> 8) }
func (i Instr) B() uint8   { return uint8(i >> 16) }
func (i Instr) C() uint8   { return uint8(i >> 24) }
func (i Instr) Bx() uint16 { return uint16(i >> 16) }
func (i Instr) SBx() int   { return int(i.Bx()) - sbxBias }

// UpvalDesc tells Closure where a captured variable lives: in the parent
// frame's registers (InStack) or in the parent closure's upvalue list.
type UpvalDesc struct {
	InStack bool
	Index   uint8
	Name    string
}

// ClassTemplate is the compile-time description of a class, stored in the
// constant pool and instantiated by MakeClass.
type ClassTemplate struct {
	Name        string
	MethodNames []string
	Methods     []*Proto
}

func (t *ClassTemplate) TypeName() string { return "classtemplate" }
func (t *ClassTemplate) Inspect() string  { return "<class template " + t.Name + ">" }

// EnumTemplate is the compile-time description of an enum.
type EnumTemplate struct {
	Name     string
	Variants []string
	Params   [][]string
}

func (t *EnumTemplate) TypeName() string { return "enumtemplate" }
func (t *EnumTemplate) Inspect() string  { return "<enum template " + t.Name + ">" }

// Proto is a compiled function prototype. Spans run parallel to Code so
// runtime errors can point at the exact source range of the faulting
// instruction.
type Proto struct {
	Name    string
	Arity   int
	NumRegs int
	Code    []Instr
	Spans   []diagnostics.Span
	Consts  []Value
	Protos  []*Proto
	Upvals  []UpvalDesc
	File    *source.SourceFile

	caches *siteCaches // lazily allocated per-ip inline caches
	id     uint64      // lazily assigned hot-loop site namespace
}

// FuncValue wraps a Proto in the constant pool.
type FuncValue struct {
	Proto *Proto
}

func (f *FuncValue) TypeName() string { return "Fun" }
func (f *FuncValue) Inspect() string  { return "<fn " + f.Proto.Name + ">" }

// AddConst appends a constant, reusing an existing equal scalar.
func (p *Proto) AddConst(v Value) (int, bool) {
	for i, c := range p.Consts {
		if c.Kind() == v.Kind() && c.Kind() != KindObject && c.Equals(v) {
			return i, true
		}
	}
	if len(p.Consts) >= MaxConsts {
		return 0, false
	}
	p.Consts = append(p.Consts, v)
	return len(p.Consts) - 1, true
}

// Emit appends one instruction with its source span and returns its index.
func (p *Proto) Emit(ins Instr, span diagnostics.Span) int {
	p.Code = append(p.Code, ins)
	p.Spans = append(p.Spans, span)
	return len(p.Code) - 1
}

// Disassemble renders the proto and its nested protos for debugging and
// the `chk --dump` path.
func (p *Proto) Disassemble() string {
	var b strings.Builder
	p.disassemble(&b, "")
	return b.String()
}

func (p *Proto) disassemble(b *strings.Builder, indent string) {
	name := p.Name
	if name == "" {
		name = "<main>"
	}
	fmt.Fprintf(b, "%s== %s (arity %d, regs %d) ==\n", indent, name, p.Arity, p.NumRegs)
	for ip, ins := range p.Code {
		fmt.Fprintf(b, "%s%04d  %-12s %s\n", indent, ip, ins.Op(), p.operands(ins))
	}
	for _, sub := range p.Protos {
		sub.disassemble(b, indent+"  ")
	}
}

func (p *Proto) operands(ins Instr) string {
	switch ins.Op() {
	case OpNop, OpReturnNil:
		return ""
	case OpLoadNil, OpLoadTrue, OpLoadFalse, OpReturn, OpCloseUpvals,
		OpIncrLocal, OpDecrLocal:
		return fmt.Sprintf("r%d", ins.A())
	case OpMove, OpNeg, OpNot, OpGetUpval, OpSetUpval, OpIterNew:
		return fmt.Sprintf("r%d r%d", ins.A(), ins.B())
	case OpLoadConst, OpMakeEnum:
		return fmt.Sprintf("r%d k%d (%s)", ins.A(), ins.Bx(), p.constText(int(ins.Bx())))
	case OpGetGlobal, OpSetGlobal, OpClosure, OpImport:
		return fmt.Sprintf("r%d #%d", ins.A(), ins.Bx())
	case OpLoadInt:
		return fmt.Sprintf("r%d %d", ins.A(), ins.SBx())
	case OpJump:
		return fmt.Sprintf("%+d", ins.SBx())
	case OpJumpIfFalse, OpJumpIfTrue:
		return fmt.Sprintf("r%d %+d", ins.A(), ins.SBx())
	case OpGetField, OpSetField, OpMatchTag:
		return fmt.Sprintf("r%d r%d k%d (%s)", ins.A(), ins.B(), ins.C(), p.constText(int(ins.C())))
	case OpMakeClass:
		return fmt.Sprintf("r%d r%d k%d", ins.A(), ins.B(), ins.C())
	case OpAddIntImm:
		return fmt.Sprintf("r%d r%d %d", ins.A(), ins.B(), int8(ins.C()))
	case OpCmpLtJmp:
		return fmt.Sprintf("r%d r%d %+d", ins.A(), ins.B(), ins.C())
	case OpTailCall, OpGoCall:
		return fmt.Sprintf("r%d %d", ins.B(), ins.C())
	default:
		return fmt.Sprintf("r%d r%d r%d", ins.A(), ins.B(), ins.C())
	}
}

func (p *Proto) constText(idx int) string {
	if idx < 0 || idx >= len(p.Consts) {
		return "?"
	}
	return p.Consts[idx].Inspect()
}
