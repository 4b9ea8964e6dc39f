package vm

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/profiler"
)

var log = commonlog.GetLogger("axiom.vm")

// Options controls interpreter behavior. The zero value is not useful;
// use DefaultOptions as the base.
type Options struct {
	NanBoxing    bool
	ICEnabled    bool
	Quickening   bool
	MaxCallDepth int
	HotThreshold uint64
	Profiler     *profiler.Profiler
}

// DefaultOptions mirrors the default configuration store.
func DefaultOptions() Options {
	return Options{
		ICEnabled:    true,
		Quickening:   true,
		MaxCallDepth: 500,
		HotThreshold: 100,
	}
}

// Frame is one activation record. Frames live on a growable heap stack,
// so recursion depth is bounded by MaxCallDepth, not the Go stack.
type Frame struct {
	closure *ClosureObj
	ip      int
	regs    []Value
	boxed   []uint64 // used instead of regs under NaN-boxing
	boxer   *Boxer
	retReg  uint8        // caller register that receives our return value
	ctor    *InstanceObj // set on constructor frames; returned instead of the result
	openUps []*Upvalue   // open upvalues into this frame
}

func (fr *Frame) get(i int) Value {
	if fr.boxed != nil {
		return fr.boxer.Unbox(fr.boxed[i])
	}
	return fr.regs[i]
}

func (fr *Frame) set(i int, v Value) {
	if fr.boxed != nil {
		fr.boxed[i] = fr.boxer.Box(v)
		return
	}
	fr.regs[i] = v
}

// Interp executes compiled protos. One Interp runs one goroutine of Axiom
// code; go-statements spawn children sharing the global table.
type Interp struct {
	opts    Options
	globals *Globals
	frames  []*Frame
	boxer   *Boxer
	prof    *profiler.Profiler

	// importer resolves `import name` to a module value. Wired by the
	// driver; nil means imports fail with AXM_601.
	importer func(name string) (Value, *diagnostics.Diagnostic)

	wg *sync.WaitGroup
}

// Globals is the shared global table: values indexed by slot, with names
// kept for diagnostics.
type Globals struct {
	mu    sync.RWMutex
	vals  []Value
	names []string
}

func NewGlobals() *Globals { return &Globals{} }

// Define appends a slot and returns its index.
func (g *Globals) Define(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vals = append(g.vals, Nil())
	g.names = append(g.names, name)
	return len(g.vals) - 1
}

func (g *Globals) Get(idx int) Value {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.vals[idx]
}

func (g *Globals) Set(idx int, v Value) {
	g.mu.Lock()
	g.vals[idx] = v
	g.mu.Unlock()
}

func (g *Globals) Name(idx int) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.names[idx]
}

func (g *Globals) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.vals)
}

// New creates an interpreter over a shared global table.
func New(opts Options, globals *Globals) *Interp {
	in := &Interp{opts: opts, globals: globals, prof: opts.Profiler, wg: &sync.WaitGroup{}}
	if opts.NanBoxing {
		in.boxer = NewBoxer()
	}
	return in
}

// SetImporter wires the module loader callback.
func (in *Interp) SetImporter(fn func(name string) (Value, *diagnostics.Diagnostic)) {
	in.importer = fn
}

// Globals exposes the shared global table.
func (in *Interp) Globals() *Globals { return in.globals }

// Wait blocks until every go-statement goroutine has finished.
func (in *Interp) Wait() { in.wg.Wait() }

// Run executes a top-level proto and returns its result.
func (in *Interp) Run(proto *Proto) (Value, *diagnostics.Diagnostic) {
	closure := &ClosureObj{Proto: proto}
	in.pushFrame(closure, nil, 0, nil)
	return in.run(0)
}

// CallValue invokes a callable from host code (builtins calling back into
// Axiom, the REPL, goroutine bodies).
func (in *Interp) CallValue(callee Value, args []Value) (Value, *diagnostics.Diagnostic) {
	switch o := callableOf(callee).(type) {
	case *BuiltinObj:
		return in.callBuiltin(o, args, diagnostics.Span{}, nil)
	case *VariantCtor:
		if len(o.Params) > 0 {
			if len(args) != len(o.Params) {
				return Nil(), diagnostics.NoSource(diagnostics.ArityMismatch,
					fmt.Sprintf("%s.%s expects %d value(s), got %d",
						o.Enum.Name, o.Name, len(o.Params), len(args))).AtRuntime()
			}
			return Object(&VariantObj{Ctor: o, Payload: args}), nil
		}
	}
	closure, recv, inst, d := in.resolveCallable(callee, len(args), diagnostics.Span{}, nil)
	if d != nil {
		return Nil(), d
	}
	if closure == nil {
		// Unit variant or argument-free class: value is ready.
		return recv, nil
	}
	full := args
	if !recv.IsNil() || inst != nil {
		full = append([]Value{recv}, args...)
	}
	// Re-entry from host code consumes stack depth like any other call.
	if len(in.frames) >= in.opts.MaxCallDepth {
		return Nil(), diagnostics.NoSource(diagnostics.StackOverflow,
			fmt.Sprintf("call depth exceeded %d frames", in.opts.MaxCallDepth)).AtRuntime()
	}
	stop := len(in.frames)
	fr := in.pushFrame(closure, nil, 0, inst)
	for i, a := range full {
		fr.set(i, a)
	}
	return in.run(stop)
}

func (in *Interp) pushFrame(closure *ClosureObj, caller *Frame, retReg uint8, ctor *InstanceObj) *Frame {
	n := closure.Proto.NumRegs
	if n < closure.Proto.Arity {
		n = closure.Proto.Arity
	}
	fr := &Frame{closure: closure, retReg: retReg, ctor: ctor}
	if in.boxer != nil {
		fr.boxed = make([]uint64, n)
		fr.boxer = in.boxer
		nilWord := in.boxer.Box(Nil())
		for i := range fr.boxed {
			fr.boxed[i] = nilWord
		}
	} else {
		fr.regs = make([]Value, n)
		for i := range fr.regs {
			fr.regs[i] = Nil()
		}
	}
	in.frames = append(in.frames, fr)
	in.prof.EnterCall(protoName(closure.Proto))
	in.prof.TrackAlloc("frame", uint64(n)*16)
	return fr
}

func protoName(p *Proto) string {
	if p.Name == "" {
		return "<main>"
	}
	return p.Name
}

// err builds a runtime diagnostic pointing at the faulting instruction.
func (in *Interp) err(code diagnostics.Code, p *Proto, ip int, msg string) *diagnostics.Diagnostic {
	return diagnostics.New(code, p.File, spanAt(p, ip), msg).AtRuntime()
}

func spanAt(p *Proto, ip int) diagnostics.Span {
	if ip >= 0 && ip < len(p.Spans) {
		return p.Spans[ip]
	}
	return diagnostics.Span{}
}

var protoIDs atomic.Uint64

func loopSite(p *Proto, ip int) uint64 {
	if p.id == 0 {
		p.id = protoIDs.Add(1)
	}
	return p.id<<16 | uint64(ip)
}

// run is the flat dispatch loop. It returns when the frame stack shrinks
// back to stopDepth.
func (in *Interp) run(stopDepth int) (Value, *diagnostics.Diagnostic) {
frameLoop:
	for {
		fr := in.frames[len(in.frames)-1]
		proto := fr.closure.Proto
		code := proto.Code

		for {
			if fr.ip >= len(code) {
				// Fell off the end: implicit nil return.
				if v, done := in.doReturn(fr, Nil()); done || len(in.frames) == stopDepth {
					return v, nil
				}
				continue frameLoop
			}
			ip := fr.ip
			ins := code[ip]
			fr.ip++
			op := ins.Op()
			in.prof.CountOp(int(op))

			switch op {
			case OpNop:

			case OpMove:
				fr.set(int(ins.A()), fr.get(int(ins.B())))
			case OpLoadConst:
				fr.set(int(ins.A()), proto.Consts[ins.Bx()])
			case OpLoadInt:
				fr.set(int(ins.A()), Int(int64(ins.SBx())))
			case OpLoadNil:
				fr.set(int(ins.A()), Nil())
			case OpLoadTrue:
				fr.set(int(ins.A()), Bool(true))
			case OpLoadFalse:
				fr.set(int(ins.A()), Bool(false))

			case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				res, d := in.arith(op, lv, rv, proto, ip)
				if d != nil {
					return Nil(), d
				}
				fr.set(int(ins.A()), res)
				in.maybeQuicken(proto, ip, op, lv, rv)

			case OpAddInt:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if lv.IsInt() && rv.IsInt() {
					fr.set(int(ins.A()), Int(lv.AsInt()+rv.AsInt()))
				} else {
					in.deopt(proto, ip, OpAdd)
					fr.ip = ip
				}
			case OpSubInt:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if lv.IsInt() && rv.IsInt() {
					fr.set(int(ins.A()), Int(lv.AsInt()-rv.AsInt()))
				} else {
					in.deopt(proto, ip, OpSub)
					fr.ip = ip
				}
			case OpMulInt:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if lv.IsInt() && rv.IsInt() {
					fr.set(int(ins.A()), Int(lv.AsInt()*rv.AsInt()))
				} else {
					in.deopt(proto, ip, OpMul)
					fr.ip = ip
				}
			case OpAddFloat:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if lv.IsFloat() && rv.IsFloat() {
					fr.set(int(ins.A()), Float(lv.AsFloat()+rv.AsFloat()))
				} else {
					in.deopt(proto, ip, OpAdd)
					fr.ip = ip
				}
			case OpSubFloat:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if lv.IsFloat() && rv.IsFloat() {
					fr.set(int(ins.A()), Float(lv.AsFloat()-rv.AsFloat()))
				} else {
					in.deopt(proto, ip, OpSub)
					fr.ip = ip
				}
			case OpMulFloat:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if lv.IsFloat() && rv.IsFloat() {
					fr.set(int(ins.A()), Float(lv.AsFloat()*rv.AsFloat()))
				} else {
					in.deopt(proto, ip, OpMul)
					fr.ip = ip
				}
			case OpAddStr:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if lv.IsString() && rv.IsString() {
					fr.set(int(ins.A()), String(lv.AsString()+rv.AsString()))
				} else {
					in.deopt(proto, ip, OpAdd)
					fr.ip = ip
				}
			case OpLtInt:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if lv.IsInt() && rv.IsInt() {
					fr.set(int(ins.A()), Bool(lv.AsInt() < rv.AsInt()))
				} else {
					in.deopt(proto, ip, OpLt)
					fr.ip = ip
				}

			case OpNeg:
				v := fr.get(int(ins.B()))
				switch {
				case v.IsInt():
					fr.set(int(ins.A()), Int(-v.AsInt()))
				case v.IsFloat():
					fr.set(int(ins.A()), Float(-v.AsFloat()))
				default:
					return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
						fmt.Sprintf("cannot negate %s", v.TypeName()))
				}
			case OpNot:
				fr.set(int(ins.A()), Bool(!fr.get(int(ins.B())).Truthy()))

			case OpEq:
				fr.set(int(ins.A()), Bool(fr.get(int(ins.B())).Equals(fr.get(int(ins.C())))))
			case OpNe:
				fr.set(int(ins.A()), Bool(!fr.get(int(ins.B())).Equals(fr.get(int(ins.C())))))
			case OpLt, OpLe, OpGt, OpGe:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				res, ok := compare(op, lv, rv)
				if !ok {
					return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
						fmt.Sprintf("cannot compare %s with %s", lv.TypeName(), rv.TypeName()))
				}
				fr.set(int(ins.A()), Bool(res))
				if op == OpLt {
					in.maybeQuicken(proto, ip, op, lv, rv)
				}

			case OpAnd:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if lv.Truthy() {
					fr.set(int(ins.A()), rv)
				} else {
					fr.set(int(ins.A()), lv)
				}
			case OpOr:
				lv, rv := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if lv.Truthy() {
					fr.set(int(ins.A()), lv)
				} else {
					fr.set(int(ins.A()), rv)
				}

			case OpJump:
				off := ins.SBx()
				if off < 0 && in.prof.TickLoop(loopSite(proto, ip)) {
					log.Debugf("hot loop in %s at ip %d", protoName(proto), ip)
				}
				fr.ip += off
			case OpJumpIfFalse:
				if !fr.get(int(ins.A())).Truthy() {
					fr.ip += ins.SBx()
				}
			case OpJumpIfTrue:
				if fr.get(int(ins.A())).Truthy() {
					fr.ip += ins.SBx()
				}
			case OpCmpLtJmp:
				lv, rv := fr.get(int(ins.A())), fr.get(int(ins.B()))
				less, ok := compare(OpLt, lv, rv)
				if !ok {
					return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
						fmt.Sprintf("cannot compare %s with %s", lv.TypeName(), rv.TypeName()))
				}
				if !less {
					fr.ip += int(ins.C())
				}

			case OpAddIntImm:
				v := fr.get(int(ins.B()))
				imm := int64(int8(ins.C()))
				switch {
				case v.IsInt():
					fr.set(int(ins.A()), Int(v.AsInt()+imm))
				case v.IsFloat():
					fr.set(int(ins.A()), Float(v.AsFloat()+float64(imm)))
				default:
					return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
						fmt.Sprintf("unsupported operand type for +: %s", v.TypeName()))
				}
			case OpIncrLocal:
				a := int(ins.A())
				v := fr.get(a)
				switch {
				case v.IsInt():
					fr.set(a, Int(v.AsInt()+1))
				case v.IsFloat():
					fr.set(a, Float(v.AsFloat()+1))
				default:
					return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
						fmt.Sprintf("unsupported operand type for +: %s", v.TypeName()))
				}
			case OpDecrLocal:
				a := int(ins.A())
				v := fr.get(a)
				switch {
				case v.IsInt():
					fr.set(a, Int(v.AsInt()-1))
				case v.IsFloat():
					fr.set(a, Float(v.AsFloat()-1))
				default:
					return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
						fmt.Sprintf("unsupported operand type for -: %s", v.TypeName()))
				}

			case OpCall, OpTailCall:
				res, popped, d := in.doCall(fr, ins, proto, ip, op == OpTailCall)
				if d != nil {
					return Nil(), d
				}
				if popped && len(in.frames) == stopDepth {
					return res, nil
				}
				continue frameLoop
			case OpGoCall:
				if d := in.doGoCall(fr, ins, proto, ip); d != nil {
					return Nil(), d
				}

			case OpReturn:
				v, done := in.doReturn(fr, fr.get(int(ins.A())))
				if done || len(in.frames) == stopDepth {
					return v, nil
				}
				continue frameLoop
			case OpReturnNil:
				v, done := in.doReturn(fr, Nil())
				if done || len(in.frames) == stopDepth {
					return v, nil
				}
				continue frameLoop

			case OpClosure:
				sub := proto.Protos[ins.Bx()]
				fr.set(int(ins.A()), Object(in.makeClosure(fr, sub)))
				in.prof.TrackAlloc("closure", 32)
			case OpGetUpval:
				fr.set(int(ins.A()), fr.closure.Upvalues[ins.B()].Get())
			case OpSetUpval:
				fr.closure.Upvalues[ins.A()].Set(fr.get(int(ins.B())))
			case OpCloseUpvals:
				closeUpvalues(fr, int(ins.A()))

			case OpGetGlobal:
				fr.set(int(ins.A()), in.globals.Get(int(ins.Bx())))
			case OpSetGlobal:
				in.globals.Set(int(ins.Bx()), fr.get(int(ins.A())))

			case OpNewList:
				n := int(ins.C())
				elems := make([]Value, n)
				for i := 0; i < n; i++ {
					elems[i] = fr.get(int(ins.B()) + i)
				}
				fr.set(int(ins.A()), Object(NewList(elems)))
				in.prof.TrackAlloc("list", uint64(n)*16)
			case OpNewMap:
				m := NewMap()
				n := int(ins.C())
				for i := 0; i < n; i++ {
					k := fr.get(int(ins.B()) + 2*i)
					v := fr.get(int(ins.B()) + 2*i + 1)
					if !m.Set(k, v) {
						return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
							fmt.Sprintf("%s is not hashable", k.TypeName()))
					}
				}
				fr.set(int(ins.A()), Object(m))
				in.prof.TrackAlloc("map", uint64(n)*32)
			case OpNewRange:
				lo, hi := fr.get(int(ins.B())), fr.get(int(ins.C()))
				if !lo.IsInt() || !hi.IsInt() {
					return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
						"range bounds must be integers")
				}
				fr.set(int(ins.A()), Object(&RangeObj{Start: lo.AsInt(), End: hi.AsInt()}))

			case OpGetIndex:
				res, d := in.getIndex(fr.get(int(ins.B())), fr.get(int(ins.C())), proto, ip)
				if d != nil {
					return Nil(), d
				}
				fr.set(int(ins.A()), res)
			case OpSetIndex:
				if d := in.setIndex(fr.get(int(ins.A())), fr.get(int(ins.B())),
					fr.get(int(ins.C())), proto, ip); d != nil {
					return Nil(), d
				}

			case OpGetField:
				res, d := in.getField(fr.get(int(ins.B())),
					proto.Consts[ins.C()].AsString(), proto, ip)
				if d != nil {
					return Nil(), d
				}
				fr.set(int(ins.A()), res)
			case OpSetField:
				if d := in.setField(fr.get(int(ins.A())),
					proto.Consts[ins.C()].AsString(), fr.get(int(ins.B())), proto, ip); d != nil {
					return Nil(), d
				}

			case OpBuildString:
				var b []byte
				n := int(ins.C())
				for i := 0; i < n; i++ {
					b = append(b, fr.get(int(ins.B())+i).Display()...)
				}
				fr.set(int(ins.A()), String(string(b)))
				in.prof.TrackAlloc("string", uint64(len(b)))

			case OpMakeClass:
				if d := in.makeClass(fr, ins, proto, ip); d != nil {
					return Nil(), d
				}
			case OpMakeEnum:
				tmpl := proto.Consts[ins.Bx()].AsObject().(*EnumTemplate)
				enum := NewEnum(tmpl.Name)
				for i, name := range tmpl.Variants {
					enum.AddVariant(name, tmpl.Params[i])
				}
				fr.set(int(ins.A()), Object(enum))

			case OpMatchTag:
				if matchesVariant(fr.get(int(ins.A())), proto.Consts[ins.C()].AsString()) {
					fr.ip++
				}
			case OpBindPayload:
				v := fr.get(int(ins.B()))
				variant, ok := v.AsObjectOk().(*VariantObj)
				if !ok {
					return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
						fmt.Sprintf("%s has no payload to bind", v.TypeName()))
				}
				n := int(ins.C())
				if n != len(variant.Payload) {
					return Nil(), in.err(diagnostics.ArityMismatch, proto, ip,
						fmt.Sprintf("pattern binds %d value(s), variant %s carries %d",
							n, variant.Ctor.Name, len(variant.Payload)))
				}
				for i := 0; i < n; i++ {
					fr.set(int(ins.A())+i, variant.Payload[i])
				}

			case OpIterNew:
				v := fr.get(int(ins.B()))
				it := NewIterator(v)
				if it == nil {
					return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
						fmt.Sprintf("%s is not iterable", v.TypeName()))
				}
				fr.set(int(ins.A()), Object(it))
			case OpIterNext:
				it := fr.get(int(ins.B())).AsObject().(*IteratorObj)
				k, v, ok := it.Next()
				if ok {
					if int(ins.C()) == 2 {
						fr.set(int(ins.A()), k)
						fr.set(int(ins.A())+1, v)
					} else {
						fr.set(int(ins.A()), it.Primary(k, v))
					}
					fr.ip++
				}

			case OpImport:
				name := proto.Consts[ins.Bx()].AsString()
				if in.importer == nil {
					return Nil(), in.err(diagnostics.ModuleNotFound, proto, ip,
						fmt.Sprintf("module '%s' not found", name))
				}
				mod, d := in.importer(name)
				if d != nil {
					if d.File == nil {
						d.File = proto.File
						d.Span = proto.Spans[ip]
					}
					return Nil(), d
				}
				fr.set(int(ins.A()), mod)

			default:
				return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
					fmt.Sprintf("unknown opcode %s", op))
			}
		}
	}
}

func matchesVariant(v Value, name string) bool {
	variant, ok := v.AsObjectOk().(*VariantObj)
	if !ok {
		return false
	}
	if variant.Ctor.Name == name {
		return true
	}
	return variant.Ctor.Enum.Name+"."+variant.Ctor.Name == name
}

// arith implements the numeric tower: int op int stays int with wrapping,
// mixed operands promote to float, division always produces a float, and
// + concatenates strings.
func (in *Interp) arith(op OpCode, lv, rv Value, proto *Proto, ip int) (Value, *diagnostics.Diagnostic) {
	if op == OpAdd && lv.IsString() && rv.IsString() {
		return String(lv.AsString() + rv.AsString()), nil
	}
	if op == OpAdd {
		if ll, ok := lv.AsObjectOk().(*ListObj); ok {
			if rl, ok := rv.AsObjectOk().(*ListObj); ok {
				elems := make([]Value, 0, len(ll.Elems)+len(rl.Elems))
				elems = append(elems, ll.Elems...)
				elems = append(elems, rl.Elems...)
				return Object(NewList(elems)), nil
			}
		}
	}
	if !lv.IsNumber() || !rv.IsNumber() {
		return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
			fmt.Sprintf("unsupported operand types: %s %s %s", lv.TypeName(), opSymbol(op), rv.TypeName()))
	}

	if op == OpDiv {
		if rv.AsNumber() == 0 {
			return Nil(), in.err(diagnostics.DivisionByZero, proto, ip, "")
		}
		return Float(lv.AsNumber() / rv.AsNumber()), nil
	}
	if op == OpPow {
		return Float(math.Pow(lv.AsNumber(), rv.AsNumber())), nil
	}

	if lv.IsInt() && rv.IsInt() {
		a, b := lv.AsInt(), rv.AsInt()
		switch op {
		case OpAdd:
			return Int(a + b), nil
		case OpSub:
			return Int(a - b), nil
		case OpMul:
			return Int(a * b), nil
		case OpMod:
			if b == 0 {
				return Nil(), in.err(diagnostics.DivisionByZero, proto, ip, "Modulo by zero")
			}
			return Int(a % b), nil
		}
	}

	a, b := lv.AsNumber(), rv.AsNumber()
	switch op {
	case OpAdd:
		return Float(a + b), nil
	case OpSub:
		return Float(a - b), nil
	case OpMul:
		return Float(a * b), nil
	case OpMod:
		if b == 0 {
			return Nil(), in.err(diagnostics.DivisionByZero, proto, ip, "Modulo by zero")
		}
		return Float(math.Mod(a, b)), nil
	}
	return Nil(), in.err(diagnostics.BadOperandType, proto, ip, "unsupported operation")
}

func opSymbol(op OpCode) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpPow:
		return "**"
	case OpLt:
		return "<"
	}
	return "?"
}

func compare(op OpCode, lv, rv Value) (bool, bool) {
	if lv.IsNumber() && rv.IsNumber() {
		a, b := lv.AsNumber(), rv.AsNumber()
		switch op {
		case OpLt:
			return a < b, true
		case OpLe:
			return a <= b, true
		case OpGt:
			return a > b, true
		case OpGe:
			return a >= b, true
		}
	}
	if lv.IsString() && rv.IsString() {
		a, b := lv.AsString(), rv.AsString()
		switch op {
		case OpLt:
			return a < b, true
		case OpLe:
			return a <= b, true
		case OpGt:
			return a > b, true
		case OpGe:
			return a >= b, true
		}
	}
	return false, false
}

// maybeQuicken feeds the site's type profile and rewrites the instruction
// in place once it proves stable.
func (in *Interp) maybeQuicken(proto *Proto, ip int, op OpCode, lv, rv Value) {
	if !in.opts.Quickening || !in.opts.ICEnabled {
		return
	}
	prof := proto.binopProfile(ip)
	if !prof.Observe(lv.Kind(), rv.Kind()) {
		return
	}
	lk, rk := prof.Kinds()
	var quick OpCode
	switch {
	case lk == KindInt && rk == KindInt:
		switch op {
		case OpAdd:
			quick = OpAddInt
		case OpSub:
			quick = OpSubInt
		case OpMul:
			quick = OpMulInt
		case OpLt:
			quick = OpLtInt
		}
	case lk == KindFloat && rk == KindFloat:
		switch op {
		case OpAdd:
			quick = OpAddFloat
		case OpSub:
			quick = OpSubFloat
		case OpMul:
			quick = OpMulFloat
		}
	case lk == KindString && rk == KindString && op == OpAdd:
		quick = OpAddStr
	}
	if quick != OpNop {
		ins := proto.Code[ip]
		proto.Code[ip] = MakeABC(quick, ins.A(), ins.B(), ins.C())
		log.Debugf("quickened %s -> %s in %s at ip %d", op, quick, protoName(proto), ip)
	}
}

// deopt rewrites a quickened instruction back to its generic form after a
// type guard failure and retires the site's profile.
func (in *Interp) deopt(proto *Proto, ip int, generic OpCode) {
	ins := proto.Code[ip]
	proto.Code[ip] = MakeABC(generic, ins.A(), ins.B(), ins.C())
	proto.binopProfile(ip).Deopt()
	log.Debugf("deoptimized %s at ip %d back to %s", protoName(proto), ip, generic)
}

// makeClosure builds a closure for a nested proto, capturing per its
// upvalue descriptors. Open upvalues are shared: capturing the same
// parent register twice yields the same *Upvalue.
func (in *Interp) makeClosure(fr *Frame, sub *Proto) *ClosureObj {
	ups := make([]*Upvalue, len(sub.Upvals))
	for i, desc := range sub.Upvals {
		if desc.InStack {
			ups[i] = captureUpvalue(fr, int(desc.Index))
		} else {
			ups[i] = fr.closure.Upvalues[desc.Index]
		}
	}
	return &ClosureObj{Proto: sub, Upvalues: ups}
}

func captureUpvalue(fr *Frame, idx int) *Upvalue {
	for _, u := range fr.openUps {
		if u.idx == idx {
			return u
		}
	}
	u := &Upvalue{frame: fr, idx: idx}
	fr.openUps = append(fr.openUps, u)
	return u
}

func closeUpvalues(fr *Frame, from int) {
	kept := fr.openUps[:0]
	for _, u := range fr.openUps {
		if u.idx >= from {
			u.Close()
		} else {
			kept = append(kept, u)
		}
	}
	fr.openUps = kept
}

// doReturn pops the current frame, delivering the result to the caller.
// The second return is true when the popped frame was the outermost one.
func (in *Interp) doReturn(fr *Frame, result Value) (Value, bool) {
	closeUpvalues(fr, 0)
	if fr.ctor != nil {
		result = Object(fr.ctor)
	}
	in.prof.ExitCall()
	in.frames = in.frames[:len(in.frames)-1]
	if len(in.frames) == 0 {
		return result, true
	}
	caller := in.frames[len(in.frames)-1]
	caller.set(int(fr.retReg), result)
	return result, false
}

// resolveCallable normalizes a callee into a closure plus optional
// receiver. For class calls it allocates the instance.
func (in *Interp) resolveCallable(callee Value, argc int, span diagnostics.Span, proto *Proto) (*ClosureObj, Value, *InstanceObj, *diagnostics.Diagnostic) {
	mkErr := func(code diagnostics.Code, msg string) *diagnostics.Diagnostic {
		d := diagnostics.NoSource(code, msg).AtRuntime()
		if proto != nil {
			d.File = proto.File
			d.Span = span
		}
		return d
	}

	if callee.IsNil() {
		return nil, Nil(), nil, mkErr(diagnostics.NilCall, "")
	}
	if !callee.IsObject() {
		return nil, Nil(), nil, mkErr(diagnostics.NotCallable,
			fmt.Sprintf("%s is not callable", callee.TypeName()))
	}
	switch o := callee.AsObject().(type) {
	case *ClosureObj:
		if argc != o.Proto.Arity {
			return nil, Nil(), nil, mkErr(diagnostics.ArityMismatch,
				fmt.Sprintf("%s expects %d argument(s), got %d", protoName(o.Proto), o.Proto.Arity, argc))
		}
		return o, Nil(), nil, nil
	case *BoundMethodObj:
		if argc+1 != o.Method.Proto.Arity {
			return nil, Nil(), nil, mkErr(diagnostics.ArityMismatch,
				fmt.Sprintf("%s expects %d argument(s), got %d",
					o.Method.Proto.Name, o.Method.Proto.Arity-1, argc))
		}
		return o.Method, o.Receiver, nil, nil
	case *ClassObj:
		inst := NewInstance(o)
		in.prof.TrackAlloc("instance", 48)
		if init, ok := o.Lookup("init"); ok {
			if argc+1 != init.Proto.Arity {
				return nil, Nil(), nil, mkErr(diagnostics.ArityMismatch,
					fmt.Sprintf("%s.init expects %d argument(s), got %d",
						o.Name, init.Proto.Arity-1, argc))
			}
			return init, Object(inst), inst, nil
		}
		if argc != 0 {
			return nil, Nil(), nil, mkErr(diagnostics.ArityMismatch,
				fmt.Sprintf("%s takes no arguments", o.Name))
		}
		return nil, Object(inst), nil, nil
	case *VariantCtor:
		if len(o.Params) == 0 {
			return nil, Object(o.Unit()), nil, nil
		}
		if argc != len(o.Params) {
			return nil, Nil(), nil, mkErr(diagnostics.ArityMismatch,
				fmt.Sprintf("%s.%s expects %d value(s), got %d",
					o.Enum.Name, o.Name, len(o.Params), argc))
		}
		return nil, Nil(), nil, nil
	default:
		return nil, Nil(), nil, mkErr(diagnostics.NotCallable,
			fmt.Sprintf("%s is not callable", callee.TypeName()))
	}
}

func callableOf(v Value) Obj {
	if !v.IsObject() {
		return nil
	}
	return v.AsObject()
}

// doCall executes Call and TailCall. Tail calls reuse the current frame:
// same return register, fresh registers, ip reset to zero, so iterative
// recursion runs in constant frame space. The popped result reports a
// tail call that completed natively and returned through doReturn.
func (in *Interp) doCall(fr *Frame, ins Instr, proto *Proto, ip int, tail bool) (Value, bool, *diagnostics.Diagnostic) {
	base := int(ins.B())
	argc := int(ins.C())
	callee := fr.get(base)
	span := spanAt(proto, ip)

	args := make([]Value, argc)
	for i := 0; i < argc; i++ {
		args[i] = fr.get(base + 1 + i)
	}

	// Builtins and variant constructors complete synchronously.
	switch o := callableOf(callee).(type) {
	case *BuiltinObj:
		res, d := in.callBuiltin(o, args, span, proto)
		if d != nil {
			return Nil(), false, d
		}
		if tail {
			v, _ := in.doReturn(fr, res)
			return v, true, nil
		}
		fr.set(int(ins.A()), res)
		return Nil(), false, nil
	case *VariantCtor:
		if len(o.Params) > 0 {
			if argc != len(o.Params) {
				return Nil(), false, in.err(diagnostics.ArityMismatch, proto, ip,
					fmt.Sprintf("%s.%s expects %d value(s), got %d",
						o.Enum.Name, o.Name, len(o.Params), argc))
			}
			res := Object(&VariantObj{Ctor: o, Payload: args})
			in.prof.TrackAlloc("variant", uint64(argc)*16)
			if tail {
				v, _ := in.doReturn(fr, res)
				return v, true, nil
			}
			fr.set(int(ins.A()), res)
			return Nil(), false, nil
		}
	}

	closure, recv, inst, d := in.resolveCallable(callee, argc, span, proto)
	if d != nil {
		return Nil(), false, d
	}
	if closure == nil {
		// Argument-free class or unit variant: value is ready.
		if tail {
			v, _ := in.doReturn(fr, recv)
			return v, true, nil
		}
		fr.set(int(ins.A()), recv)
		return Nil(), false, nil
	}

	if in.opts.ICEnabled {
		proto.callCache(ip).Check(closure)
	}

	full := args
	if !recv.IsNil() || inst != nil {
		full = append([]Value{recv}, args...)
	}

	if tail {
		// Reuse this frame: close captures into the dying register file,
		// then restart with the callee's proto.
		closeUpvalues(fr, 0)
		in.prof.ExitCall()
		in.prof.EnterCall(protoName(closure.Proto))
		n := closure.Proto.NumRegs
		fr.closure = closure
		fr.ip = 0
		fr.ctor = inst
		if fr.boxed != nil {
			fr.boxed = make([]uint64, n)
			nilWord := fr.boxer.Box(Nil())
			for i := range fr.boxed {
				fr.boxed[i] = nilWord
			}
		} else {
			fr.regs = make([]Value, n)
			for i := range fr.regs {
				fr.regs[i] = Nil()
			}
		}
		for i, a := range full {
			fr.set(i, a)
		}
		return Nil(), false, nil
	}

	if len(in.frames) >= in.opts.MaxCallDepth {
		return Nil(), false, in.err(diagnostics.StackOverflow, proto, ip,
			fmt.Sprintf("call depth exceeded %d frames", in.opts.MaxCallDepth))
	}
	nf := in.pushFrame(closure, fr, ins.A(), inst)
	for i, a := range full {
		nf.set(i, a)
	}
	return Nil(), false, nil
}

func (in *Interp) callBuiltin(b *BuiltinObj, args []Value, span diagnostics.Span, proto *Proto) (Value, *diagnostics.Diagnostic) {
	if b.Arity >= 0 && len(args) != b.Arity {
		d := diagnostics.NoSource(diagnostics.ArityMismatch,
			fmt.Sprintf("%s expects %d argument(s), got %d", b.Name, b.Arity, len(args))).AtRuntime()
		if proto != nil {
			d.File = proto.File
			d.Span = span
		}
		return Nil(), d
	}
	res, err := b.Fn(in, args)
	if err != nil {
		if d, ok := err.(*diagnostics.Diagnostic); ok {
			if d.File == nil && proto != nil {
				d.File = proto.File
				d.Span = span
			}
			return Nil(), d
		}
		d := diagnostics.NoSource(diagnostics.BadOperandType, err.Error()).AtRuntime()
		if proto != nil {
			d.File = proto.File
			d.Span = span
		}
		return Nil(), d
	}
	return res, nil
}

// doGoCall spawns the callee on a fresh interpreter sharing the global
// table. Errors in the goroutine are logged, not propagated.
func (in *Interp) doGoCall(fr *Frame, ins Instr, proto *Proto, ip int) *diagnostics.Diagnostic {
	base := int(ins.B())
	argc := int(ins.C())
	callee := fr.get(base)
	args := make([]Value, argc)
	for i := 0; i < argc; i++ {
		args[i] = fr.get(base + 1 + i)
	}
	if callee.IsNil() {
		return in.err(diagnostics.NilCall, proto, ip, "")
	}

	child := New(in.opts, in.globals)
	child.importer = in.importer
	child.wg = in.wg

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		if _, d := child.CallValue(callee, args); d != nil {
			log.Errorf("goroutine failed: %s", d.Error())
		}
	}()
	return nil
}

func (in *Interp) makeClass(fr *Frame, ins Instr, proto *Proto, ip int) *diagnostics.Diagnostic {
	tmpl := proto.Consts[ins.C()].AsObject().(*ClassTemplate)

	var parent *ClassObj
	if ins.B() != 0xFF {
		pv := fr.get(int(ins.B()))
		p, ok := pv.AsObjectOk().(*ClassObj)
		if !ok {
			return in.err(diagnostics.TypeMismatch, proto, ip,
				fmt.Sprintf("cannot extend %s", pv.TypeName()))
		}
		parent = p
	}

	class := NewClass(tmpl.Name, parent)
	for i, name := range tmpl.MethodNames {
		class.Methods[name] = in.makeClosure(fr, tmpl.Methods[i])
	}
	fr.set(int(ins.A()), Object(class))
	in.prof.TrackAlloc("class", 64)
	return nil
}

// getIndex implements v[idx]. Negative list and string indices count from
// the end; a missing map key yields nil.
func (in *Interp) getIndex(v, idx Value, proto *Proto, ip int) (Value, *diagnostics.Diagnostic) {
	switch o := v.AsObjectOk().(type) {
	case *ListObj:
		i, d := in.normIndex(idx, int64(len(o.Elems)), proto, ip)
		if d != nil {
			return Nil(), d
		}
		return o.Elems[i], nil
	case *MapObj:
		res, _ := o.Get(idx)
		return res, nil
	}
	if v.IsString() {
		runes := []rune(v.AsString())
		i, d := in.normIndex(idx, int64(len(runes)), proto, ip)
		if d != nil {
			return Nil(), d
		}
		return String(string(runes[i])), nil
	}
	if v.IsNil() {
		return Nil(), in.err(diagnostics.NilAccess, proto, ip, "")
	}
	return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
		fmt.Sprintf("%s is not indexable", v.TypeName()))
}

func (in *Interp) normIndex(idx Value, length int64, proto *Proto, ip int) (int64, *diagnostics.Diagnostic) {
	if !idx.IsInt() {
		return 0, in.err(diagnostics.BadOperandType, proto, ip,
			fmt.Sprintf("index must be an integer, not %s", idx.TypeName()))
	}
	i := idx.AsInt()
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, in.err(diagnostics.IndexOutOfBounds, proto, ip,
			fmt.Sprintf("index %d out of bounds for length %d", idx.AsInt(), length))
	}
	return i, nil
}

func (in *Interp) setIndex(v, idx, val Value, proto *Proto, ip int) *diagnostics.Diagnostic {
	switch o := v.AsObjectOk().(type) {
	case *ListObj:
		i, d := in.normIndex(idx, int64(len(o.Elems)), proto, ip)
		if d != nil {
			return d
		}
		o.Elems[i] = val
		return nil
	case *MapObj:
		if !o.Set(idx, val) {
			return in.err(diagnostics.BadOperandType, proto, ip,
				fmt.Sprintf("%s is not hashable", idx.TypeName()))
		}
		return nil
	}
	if v.IsNil() {
		return in.err(diagnostics.NilAccess, proto, ip, "")
	}
	return in.err(diagnostics.BadOperandType, proto, ip,
		fmt.Sprintf("%s does not support index assignment", v.TypeName()))
}

// getField implements v.name with a shape-keyed inline cache for instance
// fields. Cache states advance monomorphic -> polymorphic -> megamorphic;
// megamorphic sites stay on the generic path.
func (in *Interp) getField(v Value, name string, proto *Proto, ip int) (Value, *diagnostics.Diagnostic) {
	if v.IsNil() {
		return Nil(), in.err(diagnostics.NilAccess, proto, ip,
			fmt.Sprintf("member access on nil (field '%s')", name))
	}
	switch o := v.AsObjectOk().(type) {
	case *InstanceObj:
		if in.opts.ICEnabled {
			cache := proto.propCache(ip)
			if off, isMethod, hit := cache.Lookup(o.Shape); hit {
				if !isMethod {
					return o.Fields[off], nil
				}
				if m, ok := o.Class.Lookup(name); ok {
					return Object(&BoundMethodObj{Receiver: v, Method: m}), nil
				}
			}
			if off, ok := o.Shape.Offset(name); ok {
				cache.Insert(o.Shape, off, false)
				return o.Fields[off], nil
			}
			if m, ok := o.Class.Lookup(name); ok {
				cache.Insert(o.Shape, 0, true)
				return Object(&BoundMethodObj{Receiver: v, Method: m}), nil
			}
		}
		if res, ok := o.GetField(name); ok {
			return res, nil
		}
		return Nil(), in.err(diagnostics.UndefinedIdentifier, proto, ip,
			fmt.Sprintf("%s has no field or method '%s'", o.Class.Name, name))
	case *EnumObj:
		ctor, ok := o.Variant(name)
		if !ok {
			return Nil(), in.err(diagnostics.UndefinedIdentifier, proto, ip,
				fmt.Sprintf("enum %s has no variant '%s'", o.Name, name))
		}
		if u := ctor.Unit(); u != nil {
			return Object(u), nil
		}
		return Object(ctor), nil
	case *ModuleObj:
		if res, ok := o.Exports[name]; ok {
			return res, nil
		}
		return Nil(), in.err(diagnostics.UndefinedIdentifier, proto, ip,
			fmt.Sprintf("module %s does not export '%s'", o.Name, name))
	case *MapObj:
		res, _ := o.Get(String(name))
		return res, nil
	case *VariantObj:
		for i, p := range o.Ctor.Params {
			if p == name {
				return o.Payload[i], nil
			}
		}
		return Nil(), in.err(diagnostics.UndefinedIdentifier, proto, ip,
			fmt.Sprintf("variant %s has no field '%s'", o.Ctor.Name, name))
	}
	return Nil(), in.err(diagnostics.BadOperandType, proto, ip,
		fmt.Sprintf("%s has no fields", v.TypeName()))
}

func (in *Interp) setField(v Value, name string, val Value, proto *Proto, ip int) *diagnostics.Diagnostic {
	if v.IsNil() {
		return in.err(diagnostics.NilAccess, proto, ip,
			fmt.Sprintf("member access on nil (field '%s')", name))
	}
	switch o := v.AsObjectOk().(type) {
	case *InstanceObj:
		o.SetField(name, val)
		return nil
	case *MapObj:
		o.Set(String(name), val)
		return nil
	}
	return in.err(diagnostics.BadOperandType, proto, ip,
		fmt.Sprintf("cannot assign field on %s", v.TypeName()))
}
