package compiler

import (
	"sort"

	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

// Register is a virtual machine register index.
type Register uint8

// noReg marks "no register", used for the absent parent class operand.
const noReg Register = 0xFF

// RegisterAllocator manages registers within one function scope using
// stack-like allocation with a free list. Registers holding captured
// locals are pinned so they survive until the frame dies.
type RegisterAllocator struct {
	nextReg  Register
	maxUsed  int
	freeRegs []Register
	pinned   map[Register]bool
}

func NewRegisterAllocator() *RegisterAllocator {
	return &RegisterAllocator{
		freeRegs: make([]Register, 0, 16),
		pinned:   make(map[Register]bool),
	}
}

func (ra *RegisterAllocator) touch(reg Register) {
	if int(reg)+1 > ra.maxUsed {
		ra.maxUsed = int(reg) + 1
	}
}

// Alloc returns the next available register, reusing freed ones first.
// The second return is false when the function exhausted all 255 usable
// registers.
func (ra *RegisterAllocator) Alloc() (Register, bool) {
	if n := len(ra.freeRegs); n > 0 {
		reg := ra.freeRegs[n-1]
		ra.freeRegs = ra.freeRegs[:n-1]
		ra.touch(reg)
		return reg, true
	}
	if ra.nextReg >= noReg {
		return 0, false
	}
	reg := ra.nextReg
	ra.nextReg++
	ra.touch(reg)
	return reg, true
}

// AllocContiguous returns the first register of a block of count
// consecutive registers. Calls need the callee and its arguments laid
// out back to back, which scattered free-list reuse cannot guarantee.
func (ra *RegisterAllocator) AllocContiguous(count int) (Register, bool) {
	if count <= 0 {
		return 0, false
	}
	if count == 1 {
		return ra.Alloc()
	}
	if reg, ok := ra.takeFreeRun(count); ok {
		return reg, true
	}
	if int(ra.nextReg)+count > int(noReg) {
		return 0, false
	}
	reg := ra.nextReg
	ra.nextReg += Register(count)
	ra.touch(reg + Register(count) - 1)
	return reg, true
}

// takeFreeRun looks for count consecutive registers in the free list.
func (ra *RegisterAllocator) takeFreeRun(count int) (Register, bool) {
	if len(ra.freeRegs) < count {
		return 0, false
	}
	sorted := make([]Register, len(ra.freeRegs))
	copy(sorted, ra.freeRegs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	run := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1]+1 {
			run++
		} else {
			run = 1
		}
		if run == count {
			first := sorted[i] - Register(count) + 1
			ra.removeFromFree(first, count)
			ra.touch(first + Register(count) - 1)
			return first, true
		}
	}
	return 0, false
}

func (ra *RegisterAllocator) removeFromFree(first Register, count int) {
	kept := ra.freeRegs[:0]
	for _, r := range ra.freeRegs {
		if r < first || r >= first+Register(count) {
			kept = append(kept, r)
		}
	}
	ra.freeRegs = kept
}

// Free returns a register to the pool. Pinned registers are kept live.
func (ra *RegisterAllocator) Free(reg Register) {
	if ra.pinned[reg] {
		return
	}
	ra.freeRegs = append(ra.freeRegs, reg)
}

// FreeN frees a contiguous block allocated with AllocContiguous.
func (ra *RegisterAllocator) FreeN(first Register, count int) {
	for i := 0; i < count; i++ {
		ra.Free(first + Register(i))
	}
}

// Pin keeps a register allocated for the rest of the function. Used for
// locals captured by closures, whose upvalues read through the register.
func (ra *RegisterAllocator) Pin(reg Register) {
	ra.pinned[reg] = true
}

// MaxUsed is the register count the compiled function needs, feeding
// Proto.NumRegs.
func (ra *RegisterAllocator) MaxUsed() int {
	if ra.maxUsed > vm.MaxRegisters {
		return vm.MaxRegisters
	}
	return ra.maxUsed
}
