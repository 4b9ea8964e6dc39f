package vm

import (
	"fmt"
	"strings"
)

// Obj is implemented by every heap-allocated runtime object.
type Obj interface {
	TypeName() string
	Inspect() string
}

// --- List ---

// ListObj is a growable ordered collection.
type ListObj struct {
	Elems []Value
}

func NewList(elems []Value) *ListObj { return &ListObj{Elems: elems} }

func (l *ListObj) TypeName() string { return "Lst" }
func (l *ListObj) Inspect() string {
	return "[" + joinInspect(l.Elems, ", ") + "]"
}

func (l *ListObj) equals(other *ListObj) bool {
	if len(l.Elems) != len(other.Elems) {
		return false
	}
	for i := range l.Elems {
		if !l.Elems[i].Equals(other.Elems[i]) {
			return false
		}
	}
	return true
}

// --- Map ---

type mapEntry struct {
	key Value
	val Value
}

// MapObj is a hash map that preserves insertion order for iteration.
type MapObj struct {
	entries []mapEntry
	index   map[HashKey]int
}

func NewMap() *MapObj {
	return &MapObj{index: make(map[HashKey]int)}
}

func (m *MapObj) TypeName() string { return "Map" }
func (m *MapObj) Inspect() string {
	var b strings.Builder
	b.WriteString("{")
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.key.Inspect())
		b.WriteString(": ")
		b.WriteString(e.val.Inspect())
	}
	b.WriteString("}")
	return b.String()
}

func (m *MapObj) Len() int { return len(m.entries) }

func (m *MapObj) Get(key Value) (Value, bool) {
	hk, ok := key.HashKey()
	if !ok {
		return Nil(), false
	}
	idx, ok := m.index[hk]
	if !ok {
		return Nil(), false
	}
	return m.entries[idx].val, true
}

func (m *MapObj) Set(key, val Value) bool {
	hk, ok := key.HashKey()
	if !ok {
		return false
	}
	if idx, exists := m.index[hk]; exists {
		m.entries[idx].val = val
		return true
	}
	m.index[hk] = len(m.entries)
	m.entries = append(m.entries, mapEntry{key: key, val: val})
	return true
}

func (m *MapObj) Delete(key Value) bool {
	hk, ok := key.HashKey()
	if !ok {
		return false
	}
	idx, exists := m.index[hk]
	if !exists {
		return false
	}
	m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
	delete(m.index, hk)
	for i := idx; i < len(m.entries); i++ {
		k, _ := m.entries[i].key.HashKey()
		m.index[k] = i
	}
	return true
}

// Entries exposes the ordered key/value pairs for iteration.
func (m *MapObj) Entries() []mapEntry { return m.entries }

func (e mapEntry) Key() Value   { return e.key }
func (e mapEntry) Value() Value { return e.val }

// --- Set ---

// SetObj is a hash set preserving insertion order.
type SetObj struct {
	order []Value
	index map[HashKey]struct{}
}

func NewSet() *SetObj {
	return &SetObj{index: make(map[HashKey]struct{})}
}

func (s *SetObj) TypeName() string { return "Set" }
func (s *SetObj) Inspect() string {
	return "set{" + joinInspect(s.order, ", ") + "}"
}

func (s *SetObj) Len() int { return len(s.order) }

func (s *SetObj) Add(v Value) bool {
	hk, ok := v.HashKey()
	if !ok {
		return false
	}
	if _, exists := s.index[hk]; exists {
		return true
	}
	s.index[hk] = struct{}{}
	s.order = append(s.order, v)
	return true
}

func (s *SetObj) Has(v Value) bool {
	hk, ok := v.HashKey()
	if !ok {
		return false
	}
	_, exists := s.index[hk]
	return exists
}

// Remove drops a member, reporting whether it was present.
func (s *SetObj) Remove(v Value) bool {
	hk, ok := v.HashKey()
	if !ok {
		return false
	}
	if _, exists := s.index[hk]; !exists {
		return false
	}
	delete(s.index, hk)
	for i, e := range s.order {
		if ek, _ := e.HashKey(); ek == hk {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *SetObj) Values() []Value { return s.order }

// --- Range ---

// RangeObj is the value of `start..end`, end exclusive.
type RangeObj struct {
	Start int64
	End   int64
}

func (r *RangeObj) TypeName() string { return "Range" }
func (r *RangeObj) Inspect() string  { return fmt.Sprintf("%d..%d", r.Start, r.End) }
func (r *RangeObj) Len() int64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// --- Functions ---

// ClosureObj pairs a function prototype with its captured upvalues.
type ClosureObj struct {
	Proto    *Proto
	Upvalues []*Upvalue
}

func (c *ClosureObj) TypeName() string { return "Fun" }
func (c *ClosureObj) Inspect() string {
	name := c.Proto.Name
	if name == "" {
		name = "anonymous"
	}
	return "<fn " + name + ">"
}

// Upvalue is a captured variable. While the defining frame is live the
// upvalue reads through to its register; once closed it owns the value.
type Upvalue struct {
	frame  *Frame
	idx    int
	closed bool
	val    Value
}

func (u *Upvalue) Get() Value {
	if u.closed {
		return u.val
	}
	return u.frame.get(u.idx)
}

func (u *Upvalue) Set(v Value) {
	if u.closed {
		u.val = v
		return
	}
	u.frame.set(u.idx, v)
}

// Close detaches the upvalue from its frame, copying the current value.
func (u *Upvalue) Close() {
	if !u.closed {
		u.val = u.frame.get(u.idx)
		u.frame = nil
		u.closed = true
	}
}

// BuiltinFn is the host function signature. Builtins receive the interpreter
// so they can call back into Axiom code and allocate objects.
type BuiltinFn func(in *Interp, args []Value) (Value, error)

// BuiltinObj is a native function exposed to Axiom code.
type BuiltinObj struct {
	Name  string
	Arity int // -1 for variadic
	Fn    BuiltinFn
}

func (b *BuiltinObj) TypeName() string { return "Fun" }
func (b *BuiltinObj) Inspect() string  { return "<builtin " + b.Name + ">" }

// BoundMethodObj is a method plucked off an instance, carrying its receiver.
type BoundMethodObj struct {
	Receiver Value
	Method   *ClosureObj
}

func (b *BoundMethodObj) TypeName() string { return "Fun" }
func (b *BoundMethodObj) Inspect() string {
	return "<bound " + b.Method.Proto.Name + ">"
}

// --- Classes ---

// ClassObj is a runtime class: named methods plus the root shape its
// instances start from. Subclasses see parent methods through Lookup.
type ClassObj struct {
	Name    string
	Parent  *ClassObj
	Methods map[string]*ClosureObj
	Root    *Shape
}

func NewClass(name string, parent *ClassObj) *ClassObj {
	return &ClassObj{
		Name:    name,
		Parent:  parent,
		Methods: make(map[string]*ClosureObj),
		Root:    newRootShape(),
	}
}

func (c *ClassObj) TypeName() string { return "Class" }
func (c *ClassObj) Inspect() string  { return "<class " + c.Name + ">" }

// Lookup resolves a method through the inheritance chain.
func (c *ClassObj) Lookup(name string) (*ClosureObj, bool) {
	for cls := c; cls != nil; cls = cls.Parent {
		if m, ok := cls.Methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// InstanceObj is a class instance with shape-tracked fields.
type InstanceObj struct {
	Class  *ClassObj
	Shape  *Shape
	Fields []Value
}

func NewInstance(class *ClassObj) *InstanceObj {
	return &InstanceObj{Class: class, Shape: class.Root}
}

func (i *InstanceObj) TypeName() string { return "Instance" }
func (i *InstanceObj) Inspect() string {
	var b strings.Builder
	b.WriteString("<" + i.Class.Name)
	for name, off := range i.Shape.fields {
		b.WriteString(fmt.Sprintf(" %s=%s", name, i.Fields[off].Inspect()))
	}
	b.WriteString(">")
	return b.String()
}

// GetField reads a field by name, falling back to a bound method.
func (i *InstanceObj) GetField(name string) (Value, bool) {
	if off, ok := i.Shape.Offset(name); ok {
		return i.Fields[off], true
	}
	if m, ok := i.Class.Lookup(name); ok {
		return Object(&BoundMethodObj{Receiver: Object(i), Method: m}), true
	}
	return Nil(), false
}

// SetField writes a field, transitioning the instance's shape when the
// field is new.
func (i *InstanceObj) SetField(name string, v Value) {
	if off, ok := i.Shape.Offset(name); ok {
		i.Fields[off] = v
		return
	}
	i.Shape = i.Shape.Transition(name)
	i.Fields = append(i.Fields, v)
}

// --- Enums ---

// EnumObj is a runtime enum: an ordered set of variant constructors.
type EnumObj struct {
	Name     string
	Variants []*VariantCtor
	byName   map[string]*VariantCtor
}

func NewEnum(name string) *EnumObj {
	return &EnumObj{Name: name, byName: make(map[string]*VariantCtor)}
}

func (e *EnumObj) TypeName() string { return "Enum" }
func (e *EnumObj) Inspect() string  { return "<enum " + e.Name + ">" }

// AddVariant appends a variant; the tag is its declaration index.
func (e *EnumObj) AddVariant(name string, params []string) *VariantCtor {
	ctor := &VariantCtor{Enum: e, Name: name, Tag: len(e.Variants), Params: params}
	if len(params) == 0 {
		ctor.unit = &VariantObj{Ctor: ctor}
	}
	e.Variants = append(e.Variants, ctor)
	e.byName[name] = ctor
	return ctor
}

// Variant resolves a variant constructor by name.
func (e *EnumObj) Variant(name string) (*VariantCtor, bool) {
	c, ok := e.byName[name]
	return c, ok
}

// VariantCtor constructs values of one enum variant. Unit variants are
// singletons; payload variants are callable.
type VariantCtor struct {
	Enum   *EnumObj
	Name   string
	Tag    int
	Params []string
	unit   *VariantObj
}

func (c *VariantCtor) TypeName() string { return "Fun" }
func (c *VariantCtor) Inspect() string {
	return "<variant " + c.Enum.Name + "." + c.Name + ">"
}

// Unit returns the singleton for a payload-free variant.
func (c *VariantCtor) Unit() *VariantObj { return c.unit }

// VariantObj is a constructed enum value.
type VariantObj struct {
	Ctor    *VariantCtor
	Payload []Value
}

func (v *VariantObj) TypeName() string { return "EnumVariant" }
func (v *VariantObj) Inspect() string {
	s := v.Ctor.Enum.Name + "." + v.Ctor.Name
	if len(v.Payload) > 0 {
		s += "(" + joinInspect(v.Payload, ", ") + ")"
	}
	return s
}

func (v *VariantObj) equals(other *VariantObj) bool {
	if v.Ctor != other.Ctor || len(v.Payload) != len(other.Payload) {
		return false
	}
	for i := range v.Payload {
		if !v.Payload[i].Equals(other.Payload[i]) {
			return false
		}
	}
	return true
}

// --- Modules ---

// ModuleObj exposes a loaded module's exported names.
type ModuleObj struct {
	Name    string
	Exports map[string]Value
}

func (m *ModuleObj) TypeName() string { return "Module" }
func (m *ModuleObj) Inspect() string  { return "<module " + m.Name + ">" }

// --- Iterators ---

// IteratorObj drives for-in loops. It snapshots map keys at creation so
// mutation during iteration cannot skip or repeat entries.
type IteratorObj struct {
	keys        []Value
	vals        []Value
	lo          int64 // range iteration
	hi          int64
	isRange     bool
	primaryKeys bool // single-variable loops receive keys (maps) not values
	pos         int
}

func (it *IteratorObj) TypeName() string { return "Iterator" }
func (it *IteratorObj) Inspect() string  { return "<iterator>" }

// NewIterator builds an iterator for any iterable value, or nil if the
// value cannot be iterated.
func NewIterator(v Value) *IteratorObj {
	switch v.Kind() {
	case KindString:
		s := v.AsString()
		runes := []rune(s)
		vals := make([]Value, len(runes))
		keys := make([]Value, len(runes))
		for i, r := range runes {
			keys[i] = Int(int64(i))
			vals[i] = String(string(r))
		}
		return &IteratorObj{keys: keys, vals: vals}
	case KindObject:
		switch o := v.AsObject().(type) {
		case *ListObj:
			vals := make([]Value, len(o.Elems))
			keys := make([]Value, len(o.Elems))
			copy(vals, o.Elems)
			for i := range keys {
				keys[i] = Int(int64(i))
			}
			return &IteratorObj{keys: keys, vals: vals}
		case *MapObj:
			keys := make([]Value, len(o.entries))
			vals := make([]Value, len(o.entries))
			for i, e := range o.entries {
				keys[i] = e.key
				vals[i] = e.val
			}
			return &IteratorObj{keys: keys, vals: vals, primaryKeys: true}
		case *SetObj:
			vals := make([]Value, len(o.order))
			copy(vals, o.order)
			return &IteratorObj{keys: vals, vals: vals}
		case *RangeObj:
			return &IteratorObj{isRange: true, lo: o.Start, hi: o.End}
		}
	}
	return nil
}

// Primary is what a single-variable for-in binds: the key for maps, the
// element or value for everything else.
func (it *IteratorObj) Primary(key, val Value) Value {
	if it.primaryKeys {
		return key
	}
	return val
}

// Next returns (key, value, true) or (_, _, false) when exhausted.
func (it *IteratorObj) Next() (Value, Value, bool) {
	if it.isRange {
		if it.lo >= it.hi {
			return Nil(), Nil(), false
		}
		v := Int(it.lo)
		it.lo++
		return v, v, true
	}
	if it.pos >= len(it.vals) {
		return Nil(), Nil(), false
	}
	k, v := it.keys[it.pos], it.vals[it.pos]
	it.pos++
	return k, v, true
}
