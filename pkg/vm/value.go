package vm

import (
	"math"
	"strconv"
	"strings"
	"sync"
)

// ValueKind discriminates the tagged union.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
)

// Value is the runtime representation of every Axiom value. Scalars live
// inline; strings and heap objects hang off obj. The alternative NaN-boxed
// encoding in nanbox.go round-trips through this form.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	obj  interface{}
}

// Constructors.

func Nil() Value { return Value{kind: KindNil} }

func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool}
}

func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Object(o Obj) Value    { return Value{kind: KindObject, obj: o} }

// String interns its content: equal strings share one heap entry, so ==
// on them is a pointer compare. The pool is shared across interpreters;
// go-statement children intern into the same table.
func String(s string) Value { return Value{kind: KindString, obj: intern(s)} }

var strPool = struct {
	mu      sync.RWMutex
	entries map[string]*string
}{entries: make(map[string]*string)}

func intern(s string) *string {
	strPool.mu.RLock()
	p, ok := strPool.entries[s]
	strPool.mu.RUnlock()
	if ok {
		return p
	}
	strPool.mu.Lock()
	defer strPool.mu.Unlock()
	if p, ok := strPool.entries[s]; ok {
		return p
	}
	p = new(string)
	*p = s
	strPool.entries[s] = p
	return p
}

// InternedStrings reports the pool size, for the allocation report.
func InternedStrings() int {
	strPool.mu.RLock()
	defer strPool.mu.RUnlock()
	return len(strPool.entries)
}

// Accessors. Callers check the kind first.

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNil() bool     { return v.kind == KindNil }
func (v Value) IsBool() bool    { return v.kind == KindBool }
func (v Value) IsInt() bool     { return v.kind == KindInt }
func (v Value) IsFloat() bool   { return v.kind == KindFloat }
func (v Value) IsString() bool  { return v.kind == KindString }
func (v Value) IsObject() bool  { return v.kind == KindObject }
func (v Value) IsNumber() bool  { return v.kind == KindInt || v.kind == KindFloat }

func (v Value) AsBool() bool     { return v.i != 0 }
func (v Value) AsInt() int64     { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsString() string { return *v.obj.(*string) }
func (v Value) AsObject() Obj    { return v.obj.(Obj) }

// AsObjectOk is the checked form of AsObject: it returns nil for any
// non-object value.
func (v Value) AsObjectOk() Obj {
	if v.kind != KindObject {
		return nil
	}
	return v.obj.(Obj)
}

// AsNumber widens either numeric kind to float64.
func (v Value) AsNumber() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Truthy implements the language truthiness rule: nil, false, zero
// numbers, the empty string, the empty list and the empty map are falsy;
// everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.i != 0
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.AsString() != ""
	case KindObject:
		switch o := v.obj.(type) {
		case *ListObj:
			return len(o.Elems) != 0
		case *MapObj:
			return len(o.entries) != 0
		}
	}
	return true
}

// TypeName returns the user-visible type name used in error messages.
// Integers and floats share the Num name; the int/float split is a
// representation detail, not part of the surface vocabulary.
func (v Value) TypeName() string {
	switch v.kind {
	case KindNil:
		return "Nil"
	case KindBool:
		return "Bol"
	case KindInt, KindFloat:
		return "Num"
	case KindString:
		return "Str"
	case KindObject:
		return v.AsObject().TypeName()
	}
	return "unknown"
}

// Equals implements ==. Ints and floats compare numerically across kinds;
// strings by content; objects by identity except lists, which compare
// element-wise.
func (v Value) Equals(other Value) bool {
	if v.IsNumber() && other.IsNumber() {
		if v.kind == KindInt && other.kind == KindInt {
			return v.i == other.i
		}
		return v.AsNumber() == other.AsNumber()
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.i == other.i
	case KindString:
		// Interning makes equal contents the same pool entry.
		return v.obj == other.obj
	case KindObject:
		a, b := v.AsObject(), other.AsObject()
		if la, ok := a.(*ListObj); ok {
			if lb, ok := b.(*ListObj); ok {
				return la.equals(lb)
			}
			return false
		}
		if va, ok := a.(*VariantObj); ok {
			if vb, ok := b.(*VariantObj); ok {
				return va.equals(vb)
			}
			return false
		}
		return a == b
	}
	return false
}

// Display renders a value the way print shows it: strings bare, whole floats
// without a trailing .0 so integer-valued float arithmetic reads as integers.
func (v Value) Display() string {
	if v.kind == KindString {
		return v.AsString()
	}
	return v.Inspect()
}

/// Inspect renders a value the way the REPL and collection elements show it:
// strings quoted, containers recursively.
func (v Value) Inspect() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.i != 0 {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return strconv.Quote(v.AsString())
	case KindObject:
		return v.AsObject().Inspect()
	}
	return "<?>"
}

// formatFloat drops the fractional part of whole floats: 5000050000.0
// prints as 5000050000. Non-finite values keep their usual names.
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// HashKey returns a map key for the value. Only nil, bools, numbers and
// strings are hashable; the second return reports hashability.
type HashKey struct {
	kind ValueKind
	i    int64
	s    string
}

func (v Value) HashKey() (HashKey, bool) {
	switch v.kind {
	case KindNil:
		return HashKey{kind: KindNil}, true
	case KindBool:
		return HashKey{kind: KindBool, i: v.i}, true
	case KindInt:
		return HashKey{kind: KindInt, i: v.i}, true
	case KindFloat:
		// Whole floats hash like the equal int, preserving 1 == 1.0.
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f <= math.MaxInt64 {
			return HashKey{kind: KindInt, i: int64(v.f)}, true
		}
		return HashKey{kind: KindFloat, i: int64(math.Float64bits(v.f))}, true
	case KindString:
		return HashKey{kind: KindString, s: v.AsString()}, true
	}
	return HashKey{}, false
}

func joinInspect(values []Value, sep string) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(v.Inspect())
	}
	return b.String()
}

func (v Value) String() string { return v.Inspect() }
