package compiler

import (
	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

// OptimizeOptions gates the individual bytecode passes.
type OptimizeOptions struct {
	ConstantFolding   bool
	Peephole          bool
	JumpThreading     bool
	DeadCode          bool
	Superinstructions bool
}

func DefaultOptimizeOptions() OptimizeOptions {
	return OptimizeOptions{
		ConstantFolding:   true,
		Peephole:          true,
		JumpThreading:     true,
		DeadCode:          true,
		Superinstructions: true,
	}
}

// maxThreadHops bounds jump-chain following so a cycle of jumps cannot
// spin the pass forever.
const maxThreadHops = 8

// Optimize rewrites a proto's bytecode in place and recurses into nested
// functions and class method protos.
func Optimize(p *vm.Proto, opts OptimizeOptions) {
	if opts.ConstantFolding {
		foldConstants(p)
	}
	if opts.Peephole {
		peephole(p)
	}
	if opts.JumpThreading {
		threadJumps(p)
	}
	if opts.DeadCode {
		eliminateDead(p)
	}
	if opts.Superinstructions {
		fuseSuperinstructions(p)
	}
	compactNops(p)

	for _, nested := range p.Protos {
		Optimize(nested, opts)
	}
	for _, k := range p.Consts {
		if tmpl, ok := k.AsObjectOk().(*vm.ClassTemplate); ok {
			for _, m := range tmpl.Methods {
				Optimize(m, opts)
			}
		}
	}
}

// jumpTargets returns the set of instruction indices some jump lands on.
func jumpTargets(p *vm.Proto) map[int]bool {
	targets := make(map[int]bool)
	for i, ins := range p.Code {
		switch ins.Op() {
		case vm.OpJump, vm.OpJumpIfFalse, vm.OpJumpIfTrue:
			targets[i+1+ins.SBx()] = true
		case vm.OpCmpLtJmp:
			targets[i+1+int(ins.C())] = true
		}
	}
	return targets
}

// constVal is a compile-time-known register value tracked by folding.
type constVal struct {
	kind vm.ValueKind // KindInt, KindBool or KindNil
	i    int64
	b    bool
}

func (cv constVal) truthy() bool {
	switch cv.kind {
	case vm.KindInt:
		return cv.i != 0
	case vm.KindBool:
		return cv.b
	}
	return false
}

// foldConstants tracks registers holding compile-time-known scalars,
// replaces arithmetic on known operands with direct loads, propagates
// through Move, and resolves branches on known conditions. Knowledge is
// dropped at jump targets, where another path may have left a different
// value.
func foldConstants(p *vm.Proto) {
	targets := jumpTargets(p)
	known := make(map[uint8]constVal)

	for i, ins := range p.Code {
		if targets[i] {
			known = make(map[uint8]constVal)
		}
		op := ins.Op()

		switch op {
		case vm.OpLoadInt:
			known[ins.A()] = constVal{kind: vm.KindInt, i: int64(ins.SBx())}
			continue
		case vm.OpLoadTrue:
			known[ins.A()] = constVal{kind: vm.KindBool, b: true}
			continue
		case vm.OpLoadFalse:
			known[ins.A()] = constVal{kind: vm.KindBool}
			continue
		case vm.OpLoadNil:
			known[ins.A()] = constVal{kind: vm.KindNil}
			continue
		case vm.OpMove:
			if cv, ok := known[ins.B()]; ok {
				known[ins.A()] = cv
			} else {
				delete(known, ins.A())
			}
			continue
		case vm.OpClosure:
			// Captured registers can change through upvalues from here
			// on; forget everything.
			known = make(map[uint8]constVal)
			continue
		case vm.OpJumpIfFalse, vm.OpJumpIfTrue:
			if cv, ok := known[ins.A()]; ok {
				taken := cv.truthy() == (op == vm.OpJumpIfTrue)
				if taken {
					p.Code[i] = vm.MakeAsBx(vm.OpJump, 0, ins.SBx())
				} else {
					p.Code[i] = vm.MakeABC(vm.OpNop, 0, 0, 0)
				}
			}
			continue
		}

		if op == vm.OpAdd || op == vm.OpSub || op == vm.OpMul {
			lv, lok := intConst(known, ins.B())
			rv, rok := intConst(known, ins.C())
			// Identities like x+0 are NOT rewritten to Move: when x is
			// non-numeric the original instruction raises a type error,
			// and folding must never change the observable result.
			if lok && rok {
				var res int64
				switch op {
				case vm.OpAdd:
					res = lv + rv
				case vm.OpSub:
					res = lv - rv
				case vm.OpMul:
					res = lv * rv
				}
				if res >= -vm.MaxJump && res <= vm.MaxJump {
					p.Code[i] = vm.MakeAsBx(vm.OpLoadInt, ins.A(), int(res))
					known[ins.A()] = constVal{kind: vm.KindInt, i: res}
					continue
				}
			}
		}

		for _, w := range writtenRegs(ins) {
			delete(known, w)
		}
	}
}

func intConst(known map[uint8]constVal, r uint8) (int64, bool) {
	cv, ok := known[r]
	if !ok || cv.kind != vm.KindInt {
		return 0, false
	}
	return cv.i, true
}

// peephole rewrites adjacent instruction pairs: redundant moves, negated
// branches and nil returns.
func peephole(p *vm.Proto) {
	targets := jumpTargets(p)

	for i := 0; i+1 < len(p.Code); i++ {
		if targets[i+1] {
			continue
		}
		first, second := p.Code[i], p.Code[i+1]

		// Move a, b; Move b, a  ->  the second copy is a no-op.
		if first.Op() == vm.OpMove && second.Op() == vm.OpMove &&
			first.A() == second.B() && first.B() == second.A() {
			p.Code[i+1] = vm.MakeABC(vm.OpNop, 0, 0, 0)
			continue
		}

		// Not t, v; JumpIfFalse t  ->  JumpIfTrue v (and vice versa).
		if first.Op() == vm.OpNot &&
			(second.Op() == vm.OpJumpIfFalse || second.Op() == vm.OpJumpIfTrue) &&
			second.A() == first.A() && regDeadAt(p, i+2, first.A(), nil) &&
			regDeadAt(p, i+1+1+second.SBx(), first.A(), nil) {
			flipped := vm.OpJumpIfTrue
			if second.Op() == vm.OpJumpIfTrue {
				flipped = vm.OpJumpIfFalse
			}
			p.Code[i] = vm.MakeABC(vm.OpNop, 0, 0, 0)
			p.Code[i+1] = vm.MakeAsBx(flipped, first.B(), second.SBx())
			continue
		}

		// LoadNil r; Return r  ->  ReturnNil.
		if first.Op() == vm.OpLoadNil && second.Op() == vm.OpReturn &&
			second.A() == first.A() {
			p.Code[i] = vm.MakeABC(vm.OpNop, 0, 0, 0)
			p.Code[i+1] = vm.MakeABC(vm.OpReturnNil, 0, 0, 0)
		}
	}
}

// threadJumps retargets jumps whose destination is itself an
// unconditional jump.
func threadJumps(p *vm.Proto) {
	for i, ins := range p.Code {
		op := ins.Op()
		if op != vm.OpJump && op != vm.OpJumpIfFalse && op != vm.OpJumpIfTrue {
			continue
		}
		target := i + 1 + ins.SBx()
		hops := 0
		for hops < maxThreadHops && target >= 0 && target < len(p.Code) &&
			p.Code[target].Op() == vm.OpJump {
			target = target + 1 + p.Code[target].SBx()
			hops++
		}
		if hops == 0 {
			continue
		}
		off := target - (i + 1)
		if off > vm.MaxJump || -off > vm.MaxJump {
			continue
		}
		p.Code[i] = vm.MakeAsBx(op, ins.A(), off)
	}
}

// successors returns the instruction indices control can reach from i.
func successors(p *vm.Proto, i int) []int {
	ins := p.Code[i]
	switch ins.Op() {
	case vm.OpReturn, vm.OpReturnNil, vm.OpTailCall:
		return nil
	case vm.OpJump:
		return []int{i + 1 + ins.SBx()}
	case vm.OpJumpIfFalse, vm.OpJumpIfTrue:
		return []int{i + 1, i + 1 + ins.SBx()}
	case vm.OpCmpLtJmp:
		return []int{i + 1, i + 1 + int(ins.C())}
	case vm.OpMatchTag, vm.OpIterNext:
		// Test-and-skip: the following instruction or the one after.
		return []int{i + 1, i + 2}
	default:
		return []int{i + 1}
	}
}

// eliminateDead turns instructions no path reaches into Nops, which
// compactNops then drops.
func eliminateDead(p *vm.Proto) {
	if len(p.Code) == 0 {
		return
	}
	reachable := make([]bool, len(p.Code))
	work := []int{0}
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		if i < 0 || i >= len(p.Code) || reachable[i] {
			continue
		}
		reachable[i] = true
		work = append(work, successors(p, i)...)
	}
	for i := range p.Code {
		if !reachable[i] {
			p.Code[i] = vm.MakeABC(vm.OpNop, 0, 0, 0)
		}
	}
}

// fuseSuperinstructions rewrites common instruction pairs into single
// dispatches: constant increments and compare-and-branch loop heads.
func fuseSuperinstructions(p *vm.Proto) {
	targets := jumpTargets(p)

	for i := 0; i+1 < len(p.Code); i++ {
		if targets[i+1] {
			// The second instruction is reachable on its own; fusing
			// would change what that path executes.
			continue
		}
		first, second := p.Code[i], p.Code[i+1]

		// LoadInt r, k; Add d, s, r  ->  AddIntImm d, s, k
		// Not when a test-and-skip op precedes the pair: its skip must
		// keep landing on a real instruction.
		skipTarget := i > 0 &&
			(p.Code[i-1].Op() == vm.OpMatchTag || p.Code[i-1].Op() == vm.OpIterNext)
		if first.Op() == vm.OpLoadInt && !skipTarget {
			k := first.SBx()
			if k >= -128 && k <= 127 {
				r := first.A()
				var dst, src uint8
				imm := 0
				fusable := false
				switch second.Op() {
				case vm.OpAdd:
					if second.C() == r && second.B() != r {
						dst, src, imm, fusable = second.A(), second.B(), k, true
					} else if second.B() == r && second.C() != r {
						dst, src, imm, fusable = second.A(), second.C(), k, true
					}
				case vm.OpSub:
					if second.C() == r && second.B() != r && k != -128 {
						dst, src, imm, fusable = second.A(), second.B(), -k, true
					}
				}
				if fusable && regDeadAt(p, i+2, r, nil) {
					p.Code[i] = vm.MakeABC(vm.OpNop, 0, 0, 0)
					p.Code[i+1] = vm.MakeABC(vm.OpAddIntImm, dst, src, uint8(int8(imm)))
					continue
				}
			}
		}

		// Lt t, a, b; JumpIfFalse t, off  ->  CmpLtJmp a, b, off+1
		if first.Op() == vm.OpLt && second.Op() == vm.OpJumpIfFalse &&
			second.A() == first.A() {
			off := second.SBx()
			if off >= 0 && off+1 <= 0xFF && regDeadAt(p, i+2, first.A(), nil) &&
				regDeadAt(p, i+2+off, first.A(), nil) {
				p.Code[i] = vm.MakeABC(vm.OpCmpLtJmp, first.B(), first.C(), uint8(off+1))
				p.Code[i+1] = vm.MakeABC(vm.OpNop, 0, 0, 0)
			}
		}
	}

	// AddIntImm a, a, +-1  ->  Incr/DecrLocal a
	for i, ins := range p.Code {
		if ins.Op() != vm.OpAddIntImm || ins.A() != ins.B() {
			continue
		}
		switch int8(ins.C()) {
		case 1:
			p.Code[i] = vm.MakeABC(vm.OpIncrLocal, ins.A(), 0, 0)
		case -1:
			p.Code[i] = vm.MakeABC(vm.OpDecrLocal, ins.A(), 0, 0)
		}
	}
}

// regDeadAt reports whether register r is overwritten on every path from
// instruction i before being read. Revisited indices count as dead: a
// cycle that never reads r cannot make it live.
func regDeadAt(p *vm.Proto, i int, r uint8, visited map[int]bool) bool {
	if i >= len(p.Code) {
		return true // falls off the end, implicit nil return
	}
	if i < 0 {
		return false
	}
	if visited == nil {
		visited = make(map[int]bool)
	}
	if visited[i] {
		return true
	}
	visited[i] = true

	ins := p.Code[i]
	if readsReg(ins, r) {
		return false
	}
	if overwritesReg(ins, r) {
		return true
	}
	succ := successors(p, i)
	if len(succ) == 0 {
		return true
	}
	for _, s := range succ {
		if !regDeadAt(p, s, r, visited) {
			return false
		}
	}
	return true
}

// compactNops removes Nop instructions, repatching every jump offset to
// the surviving indices. Spans stay parallel to the compacted code.
func compactNops(p *vm.Proto) {
	hasNop := false
	for _, ins := range p.Code {
		if ins.Op() == vm.OpNop {
			hasNop = true
			break
		}
	}
	if !hasNop {
		return
	}

	// A Nop right after a test-and-skip instruction is that
	// instruction's skip target and must stay put.
	keep := make([]bool, len(p.Code))
	for i, ins := range p.Code {
		if ins.Op() != vm.OpNop {
			keep[i] = true
		} else if i > 0 &&
			(p.Code[i-1].Op() == vm.OpMatchTag || p.Code[i-1].Op() == vm.OpIterNext) {
			keep[i] = true
		}
	}

	// newIdx[old] is the compacted index; a dropped Nop maps to the next
	// surviving instruction so jumps into removed regions stay sane.
	newIdx := make([]int, len(p.Code)+1)
	n := 0
	for i := range p.Code {
		newIdx[i] = n
		if keep[i] {
			n++
		}
	}
	newIdx[len(p.Code)] = n

	newCode := make([]vm.Instr, 0, n)
	newSpans := p.Spans[:0:0]
	for i, ins := range p.Code {
		if !keep[i] {
			continue
		}
		switch ins.Op() {
		case vm.OpJump, vm.OpJumpIfFalse, vm.OpJumpIfTrue:
			target := i + 1 + ins.SBx()
			ins = vm.MakeAsBx(ins.Op(), ins.A(), newIdx[target]-(newIdx[i]+1))
		case vm.OpCmpLtJmp:
			target := i + 1 + int(ins.C())
			ins = vm.MakeABC(vm.OpCmpLtJmp, ins.A(), ins.B(), uint8(newIdx[target]-(newIdx[i]+1)))
		}
		newCode = append(newCode, ins)
		if i < len(p.Spans) {
			newSpans = append(newSpans, p.Spans[i])
		}
	}
	p.Code = newCode
	p.Spans = newSpans
}

// readsReg reports whether the instruction reads register r. Closure and
// CloseUpvals touch captured registers, so they count as reads.
func readsReg(ins vm.Instr, r uint8) bool {
	a, b, cc := ins.A(), ins.B(), ins.C()
	switch ins.Op() {
	case vm.OpMove, vm.OpNeg, vm.OpNot, vm.OpIterNew:
		return b == r
	case vm.OpAdd, vm.OpSub, vm.OpMul, vm.OpDiv, vm.OpMod, vm.OpPow,
		vm.OpEq, vm.OpNe, vm.OpLt, vm.OpLe, vm.OpGt, vm.OpGe,
		vm.OpAnd, vm.OpOr, vm.OpNewRange, vm.OpGetIndex,
		vm.OpAddInt, vm.OpSubInt, vm.OpMulInt,
		vm.OpAddFloat, vm.OpSubFloat, vm.OpMulFloat,
		vm.OpLtInt, vm.OpAddStr:
		return b == r || cc == r
	case vm.OpSetIndex:
		return a == r || b == r || cc == r
	case vm.OpGetField, vm.OpBindPayload, vm.OpIterNext, vm.OpAddIntImm,
		vm.OpSetUpval:
		return b == r
	case vm.OpSetField:
		return a == r || b == r
	case vm.OpIncrLocal, vm.OpDecrLocal:
		return a == r
	case vm.OpJumpIfFalse, vm.OpJumpIfTrue, vm.OpReturn, vm.OpMatchTag,
		vm.OpSetGlobal:
		return a == r
	case vm.OpCmpLtJmp:
		return a == r || b == r
	case vm.OpCall, vm.OpTailCall, vm.OpGoCall:
		return r >= b && int(r) <= int(b)+int(cc)
	case vm.OpNewList, vm.OpBuildString:
		return cc > 0 && r >= b && int(r) < int(b)+int(cc)
	case vm.OpNewMap:
		return cc > 0 && r >= b && int(r) < int(b)+2*int(cc)
	case vm.OpMakeClass:
		return b != 0xFF && b == r
	case vm.OpClosure:
		return true
	case vm.OpCloseUpvals:
		return r >= a
	}
	return false
}

// overwritesReg reports whether the instruction writes register r
// without reading it first.
func overwritesReg(ins vm.Instr, r uint8) bool {
	for _, w := range writtenRegs(ins) {
		if w == r {
			return !readsReg(ins, r)
		}
	}
	return false
}

// writtenRegs lists the registers an instruction writes.
func writtenRegs(ins vm.Instr) []uint8 {
	a, cc := ins.A(), ins.C()
	switch ins.Op() {
	case vm.OpMove, vm.OpLoadConst, vm.OpLoadInt, vm.OpLoadNil,
		vm.OpLoadTrue, vm.OpLoadFalse,
		vm.OpAdd, vm.OpSub, vm.OpMul, vm.OpDiv, vm.OpMod, vm.OpPow,
		vm.OpNeg, vm.OpNot,
		vm.OpEq, vm.OpNe, vm.OpLt, vm.OpLe, vm.OpGt, vm.OpGe,
		vm.OpAnd, vm.OpOr,
		vm.OpCall, vm.OpClosure, vm.OpGetUpval, vm.OpGetGlobal,
		vm.OpNewList, vm.OpNewMap, vm.OpNewRange, vm.OpGetIndex,
		vm.OpGetField, vm.OpBuildString, vm.OpMakeClass, vm.OpMakeEnum,
		vm.OpIterNew, vm.OpImport,
		vm.OpAddIntImm, vm.OpIncrLocal, vm.OpDecrLocal,
		vm.OpAddInt, vm.OpSubInt, vm.OpMulInt,
		vm.OpAddFloat, vm.OpSubFloat, vm.OpMulFloat,
		vm.OpLtInt, vm.OpAddStr:
		return []uint8{a}
	case vm.OpBindPayload:
		out := make([]uint8, cc)
		for i := range out {
			out[i] = a + uint8(i)
		}
		return out
	case vm.OpIterNext:
		if cc == 2 {
			return []uint8{a, a + 1}
		}
		return []uint8{a}
	}
	return nil
}
