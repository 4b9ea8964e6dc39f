package compiler

import (
	"testing"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

func runProto(t *testing.T, proto *vm.Proto) vm.Value {
	t.Helper()
	in := vm.New(vm.DefaultOptions(), vm.NewGlobals())
	res, d := in.Run(proto)
	if d != nil {
		t.Fatalf("runtime error: %s", d.Error())
	}
	return res
}

func countOps(p *vm.Proto, op vm.OpCode) int {
	n := 0
	for _, ins := range p.Code {
		if ins.Op() == op {
			n++
		}
	}
	return n
}

func TestConstantFoldingCollapsesArithmetic(t *testing.T) {
	proto, _ := compileProgram(t, "2 + 3 * 4")
	Optimize(proto, DefaultOptimizeOptions())

	if countOps(proto, vm.OpAdd) != 0 || countOps(proto, vm.OpMul) != 0 {
		t.Fatalf("arithmetic survived folding:\n%s", proto.Disassemble())
	}
	wantInt(t, runProto(t, proto), 14)
}

func TestFoldingKeepsIdentityTypeErrors(t *testing.T) {
	// x + 0 must stay a real Add: when x turns out non-numeric at
	// runtime the instruction raises AXM_406, and folding the identity
	// away would change the observable result.
	proto, gt := compileProgram(t, "let s = \"a\"\ns + 0")
	Optimize(proto, DefaultOptimizeOptions())

	if countOps(proto, vm.OpAdd) != 1 {
		t.Fatalf("identity add was folded away:\n%s", proto.Disassemble())
	}
	globals := vm.NewGlobals()
	for _, name := range gt.Names() {
		globals.Define(name)
	}
	in := vm.New(vm.DefaultOptions(), globals)
	if _, d := in.Run(proto); d == nil || d.Code != diagnostics.BadOperandType {
		t.Fatalf("string + 0 did not raise a type error")
	}
}

func TestConstantFoldingStopsAtJumpTargets(t *testing.T) {
	src := `
let x = 1
if true {
    x = 2
}
x + 1`
	proto, gt := compileProgram(t, src)
	Optimize(proto, DefaultOptimizeOptions())

	globals := vm.NewGlobals()
	for _, name := range gt.Names() {
		globals.Define(name)
	}
	in := vm.New(vm.DefaultOptions(), globals)
	res, d := in.Run(proto)
	if d != nil {
		t.Fatalf("runtime error: %s", d.Error())
	}
	wantInt(t, res, 3)
}

func TestJumpThreading(t *testing.T) {
	// Jump to a jump to a return path.
	proto := &vm.Proto{
		Name:    "threaded",
		NumRegs: 1,
		Code: []vm.Instr{
			vm.MakeAsBx(vm.OpJump, 0, 1),    // -> 2
			vm.MakeAsBx(vm.OpLoadInt, 0, 1), // dead
			vm.MakeAsBx(vm.OpJump, 0, 1),    // -> 4
			vm.MakeAsBx(vm.OpLoadInt, 0, 2), // dead
			vm.MakeAsBx(vm.OpLoadInt, 0, 7),
			vm.MakeABC(vm.OpReturn, 0, 0, 0),
		},
	}
	Optimize(proto, DefaultOptimizeOptions())

	if got := countOps(proto, vm.OpJump); got != 0 && got != 1 {
		t.Fatalf("jump chain not threaded:\n%s", proto.Disassemble())
	}
	wantInt(t, runProto(t, proto), 7)
}

func TestDeadCodeElimination(t *testing.T) {
	proto := &vm.Proto{
		Name:    "dead",
		NumRegs: 2,
		Code: []vm.Instr{
			vm.MakeAsBx(vm.OpLoadInt, 0, 5),
			vm.MakeABC(vm.OpReturn, 0, 0, 0),
			vm.MakeAsBx(vm.OpLoadInt, 1, 9), // unreachable
			vm.MakeABC(vm.OpReturn, 1, 0, 0),
		},
	}
	Optimize(proto, DefaultOptimizeOptions())

	if len(proto.Code) != 2 {
		t.Fatalf("unreachable tail kept:\n%s", proto.Disassemble())
	}
	wantInt(t, runProto(t, proto), 5)
}

func TestAddImmediateFusion(t *testing.T) {
	// r0 = 10; r1 = 3; r0 = r0 + r1; return r0. r1 is dead after the
	// add, so the pair fuses into one immediate add.
	proto := &vm.Proto{
		Name:    "fuse",
		NumRegs: 2,
		Code: []vm.Instr{
			vm.MakeAsBx(vm.OpLoadInt, 0, 10),
			vm.MakeAsBx(vm.OpLoadInt, 1, 3),
			vm.MakeABC(vm.OpAdd, 0, 0, 1),
			vm.MakeABC(vm.OpReturn, 0, 0, 0),
		},
	}
	Optimize(proto, OptimizeOptions{Superinstructions: true})

	if countOps(proto, vm.OpAddIntImm) != 1 {
		t.Fatalf("pair not fused:\n%s", proto.Disassemble())
	}
	if countOps(proto, vm.OpAdd) != 0 {
		t.Fatalf("generic add kept:\n%s", proto.Disassemble())
	}
	wantInt(t, runProto(t, proto), 13)
}

func TestIncrementFusion(t *testing.T) {
	proto := &vm.Proto{
		Name:    "incr",
		NumRegs: 2,
		Code: []vm.Instr{
			vm.MakeAsBx(vm.OpLoadInt, 0, 41),
			vm.MakeAsBx(vm.OpLoadInt, 1, 1),
			vm.MakeABC(vm.OpAdd, 0, 0, 1),
			vm.MakeABC(vm.OpReturn, 0, 0, 0),
		},
	}
	Optimize(proto, OptimizeOptions{Superinstructions: true})

	if countOps(proto, vm.OpIncrLocal) != 1 {
		t.Fatalf("increment not recognized:\n%s", proto.Disassemble())
	}
	wantInt(t, runProto(t, proto), 42)
}

func TestFusionSkippedWhenTempStaysLive(t *testing.T) {
	// r1 is returned later, so the LoadInt must survive.
	proto := &vm.Proto{
		Name:    "live",
		NumRegs: 3,
		Code: []vm.Instr{
			vm.MakeAsBx(vm.OpLoadInt, 0, 10),
			vm.MakeAsBx(vm.OpLoadInt, 1, 3),
			vm.MakeABC(vm.OpAdd, 2, 0, 1),
			vm.MakeABC(vm.OpReturn, 1, 0, 0),
		},
	}
	Optimize(proto, OptimizeOptions{Superinstructions: true})

	if countOps(proto, vm.OpAddIntImm) != 0 {
		t.Fatalf("fused despite live temp:\n%s", proto.Disassemble())
	}
	wantInt(t, runProto(t, proto), 3)
}

func TestCompareBranchFusion(t *testing.T) {
	// if r0 < r1 then return r0 else return r1.
	proto := &vm.Proto{
		Name:    "cmp",
		NumRegs: 3,
		Code: []vm.Instr{
			vm.MakeAsBx(vm.OpLoadInt, 0, 2),
			vm.MakeAsBx(vm.OpLoadInt, 1, 9),
			vm.MakeABC(vm.OpLt, 2, 0, 1),
			vm.MakeAsBx(vm.OpJumpIfFalse, 2, 1),
			vm.MakeABC(vm.OpReturn, 0, 0, 0),
			vm.MakeABC(vm.OpReturn, 1, 0, 0),
		},
	}
	Optimize(proto, OptimizeOptions{Superinstructions: true})

	if countOps(proto, vm.OpCmpLtJmp) != 1 {
		t.Fatalf("compare-branch not fused:\n%s", proto.Disassemble())
	}
	if countOps(proto, vm.OpLt) != 0 || countOps(proto, vm.OpJumpIfFalse) != 0 {
		t.Fatalf("original pair kept:\n%s", proto.Disassemble())
	}
	wantInt(t, runProto(t, proto), 2)
}

func TestOptimizedLoopStillComputes(t *testing.T) {
	src := `
let i = 0
let total = 0
while i < 100 {
    total = total + i
    i = i + 1
}
total`
	proto, gt := compileProgram(t, src)
	Optimize(proto, DefaultOptimizeOptions())

	globals := vm.NewGlobals()
	for _, name := range gt.Names() {
		globals.Define(name)
	}
	in := vm.New(vm.DefaultOptions(), globals)
	res, d := in.Run(proto)
	if d != nil {
		t.Fatalf("runtime error: %s", d.Error())
	}
	wantInt(t, res, 4950)
}

func TestOptimizeRecursesIntoNestedFunctions(t *testing.T) {
	src := `
fn f() {
    ret 2 + 3
}
f()`
	proto, gt := compileProgram(t, src)
	Optimize(proto, DefaultOptimizeOptions())

	inner := proto.Protos[0]
	if countOps(inner, vm.OpAdd) != 0 {
		t.Fatalf("nested proto not folded:\n%s", inner.Disassemble())
	}
	globals := vm.NewGlobals()
	for _, name := range gt.Names() {
		globals.Define(name)
	}
	in := vm.New(vm.DefaultOptions(), globals)
	res, d := in.Run(proto)
	if d != nil {
		t.Fatalf("runtime error: %s", d.Error())
	}
	wantInt(t, res, 5)
}
