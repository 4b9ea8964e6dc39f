package vm

import "math"

// NaN-boxed value encoding. Every non-float value is hidden inside a quiet
// NaN: the qNaN mask occupies bits 62-50, the tag sits in bits 49-48 and
// the payload in the low 48 bits. Real NaN results are canonicalized so
// they never collide with the boxed patterns.
//
// This is an alternative register representation toggled by the nan_boxing
// config property; observable behavior is identical either way.
const (
	qnanMask    uint64 = 0x7FFC_0000_0000_0000
	canonNaN    uint64 = 0x7FF8_0000_0000_0000
	tagShift           = 48
	tagMask     uint64 = 0x3 << tagShift
	payloadMask uint64 = (1 << tagShift) - 1

	tagNil    uint64 = 0x0 << tagShift
	tagBool   uint64 = 0x1 << tagShift
	tagInt    uint64 = 0x2 << tagShift
	tagHandle uint64 = 0x3 << tagShift
)

// 48-bit signed integer range that fits in the payload directly.
const (
	inlineIntMin = -(1 << 47)
	inlineIntMax = (1 << 47) - 1
)

// Boxer encodes values into 64-bit words. Strings intern into a shared
// handle so equal strings box to equal words; other heap values and
// out-of-range ints get a fresh handle into the side table.
type Boxer struct {
	handles []Value
	strings map[string]int
}

func NewBoxer() *Boxer {
	return &Boxer{strings: make(map[string]int)}
}

// Box encodes a value.
func (bx *Boxer) Box(v Value) uint64 {
	switch v.Kind() {
	case KindNil:
		return qnanMask | tagNil
	case KindBool:
		if v.AsBool() {
			return qnanMask | tagBool | 1
		}
		return qnanMask | tagBool
	case KindInt:
		i := v.AsInt()
		if i >= inlineIntMin && i <= inlineIntMax {
			return qnanMask | tagInt | (uint64(i) & payloadMask)
		}
		return bx.handleFor(v)
	case KindFloat:
		f := v.AsFloat()
		if math.IsNaN(f) {
			return canonNaN
		}
		return math.Float64bits(f)
	case KindString:
		s := v.AsString()
		if h, ok := bx.strings[s]; ok {
			return qnanMask | tagHandle | uint64(h)
		}
		h := len(bx.handles)
		bx.handles = append(bx.handles, v)
		bx.strings[s] = h
		return qnanMask | tagHandle | uint64(h)
	default:
		return bx.handleFor(v)
	}
}

func (bx *Boxer) handleFor(v Value) uint64 {
	h := len(bx.handles)
	bx.handles = append(bx.handles, v)
	return qnanMask | tagHandle | uint64(h)
}

// Unbox decodes a word produced by Box.
func (bx *Boxer) Unbox(w uint64) Value {
	if w&qnanMask != qnanMask {
		return Float(math.Float64frombits(w))
	}
	payload := w & payloadMask
	switch w & tagMask {
	case tagNil:
		return Nil()
	case tagBool:
		return Bool(payload != 0)
	case tagInt:
		// Sign-extend the 48-bit payload.
		return Int(int64(payload<<16) >> 16)
	default:
		return bx.handles[payload]
	}
}

// Handles reports how many side-table slots are live, for the profiler's
// allocation report.
func (bx *Boxer) Handles() int { return len(bx.handles) }
