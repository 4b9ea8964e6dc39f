package vm

import (
	"math"
	"testing"
)

func TestTruthiness(t *testing.T) {
	fullMap := NewMap()
	fullMap.Set(String("k"), Int(1))
	tests := []struct {
		val  Value
		want bool
	}{
		{Nil(), false},
		{Bool(false), false},
		{Bool(true), true},
		{Int(0), false},
		{Int(1), true},
		{Int(-1), true},
		{Float(0), false},
		{Float(0.5), true},
		{String(""), false},
		{String("x"), true},
		{Object(NewList(nil)), false},
		{Object(NewList([]Value{Int(0)})), true},
		{Object(NewMap()), false},
		{Object(fullMap), true},
		{Object(NewSet()), true},
		{Object(&ClosureObj{Proto: &Proto{}}), true},
	}
	for _, tt := range tests {
		if got := tt.val.Truthy(); got != tt.want {
			t.Errorf("Truthy(%s) = %v, want %v", tt.val.Inspect(), got, tt.want)
		}
	}
}

func TestTypeNames(t *testing.T) {
	enum := NewEnum("Shape")
	ctor := enum.AddVariant("Dot", nil)
	class := NewClass("Point", nil)
	tests := []struct {
		val  Value
		want string
	}{
		{Nil(), "Nil"},
		{Bool(true), "Bol"},
		{Int(3), "Num"},
		{Float(2.5), "Num"},
		{String("x"), "Str"},
		{Object(NewList(nil)), "Lst"},
		{Object(NewMap()), "Map"},
		{Object(NewSet()), "Set"},
		{Object(&ClosureObj{Proto: &Proto{}}), "Fun"},
		{Object(&BuiltinObj{Name: "f"}), "Fun"},
		{Object(class), "Class"},
		{Object(NewInstance(class)), "Instance"},
		{Object(ctor.Unit()), "EnumVariant"},
	}
	for _, tt := range tests {
		if got := tt.val.TypeName(); got != tt.want {
			t.Errorf("TypeName(%s) = %q, want %q", tt.val.Inspect(), got, tt.want)
		}
	}
}

func TestStringInterning(t *testing.T) {
	a := String("he" + "llo")
	b := String(string([]byte{'h', 'e', 'l', 'l', 'o'}))
	if a.obj != b.obj {
		t.Errorf("equal strings did not intern to the same entry")
	}
	if !a.Equals(b) {
		t.Errorf("interned strings compared unequal")
	}
	if String("hello").Equals(String("world")) {
		t.Errorf("different strings compared equal")
	}
}

func TestNumericEquality(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{Int(1), Int(1), true},
		{Int(1), Float(1.0), true},
		{Float(2.5), Float(2.5), true},
		{Int(1), Int(2), false},
		{Int(1), String("1"), false},
		{String("a"), String("a"), true},
		{Nil(), Nil(), true},
		{Nil(), Bool(false), false},
	}
	for _, tt := range tests {
		if got := tt.a.Equals(tt.b); got != tt.want {
			t.Errorf("%s == %s: got %v, want %v", tt.a.Inspect(), tt.b.Inspect(), got, tt.want)
		}
	}
}

func TestListEqualityIsStructural(t *testing.T) {
	a := Object(NewList([]Value{Int(1), String("x")}))
	b := Object(NewList([]Value{Int(1), String("x")}))
	c := Object(NewList([]Value{Int(1), String("y")}))
	if !a.Equals(b) {
		t.Errorf("equal lists compared unequal")
	}
	if a.Equals(c) {
		t.Errorf("different lists compared equal")
	}
}

func TestMapEqualityIsIdentity(t *testing.T) {
	a := NewMap()
	b := NewMap()
	if Object(a).Equals(Object(b)) {
		t.Errorf("distinct maps compared equal")
	}
	if !Object(a).Equals(Object(a)) {
		t.Errorf("map not equal to itself")
	}
}

func TestFloatDisplay(t *testing.T) {
	tests := []struct {
		f    float64
		want string
	}{
		{5000050000.0, "5000050000"},
		{2.5, "2.5"},
		{-3.0, "-3"},
		{0.1, "0.1"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}
	for _, tt := range tests {
		if got := Float(tt.f).Display(); got != tt.want {
			t.Errorf("Display(%v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestDisplayVersusInspect(t *testing.T) {
	s := String("hi")
	if got := s.Display(); got != "hi" {
		t.Errorf("Display = %q, want bare string", got)
	}
	if got := s.Inspect(); got != `"hi"` {
		t.Errorf("Inspect = %q, want quoted string", got)
	}
	l := Object(NewList([]Value{String("hi"), Int(1)}))
	if got := l.Display(); got != `["hi", 1]` {
		t.Errorf("list Display = %q", got)
	}
}

func TestWholeFloatHashesLikeInt(t *testing.T) {
	hi, ok := Int(1).HashKey()
	if !ok {
		t.Fatalf("int not hashable")
	}
	hf, ok := Float(1.0).HashKey()
	if !ok {
		t.Fatalf("float not hashable")
	}
	if hi != hf {
		t.Errorf("1 and 1.0 hash differently; map lookup would split them")
	}
}

func TestUnhashableKeys(t *testing.T) {
	if _, ok := Object(NewList(nil)).HashKey(); ok {
		t.Errorf("list reported hashable")
	}
	m := NewMap()
	if m.Set(Object(NewMap()), Int(1)) {
		t.Errorf("Set with unhashable key succeeded")
	}
}

func TestMapPreservesInsertionOrder(t *testing.T) {
	m := NewMap()
	m.Set(String("b"), Int(1))
	m.Set(String("a"), Int(2))
	m.Set(String("c"), Int(3))
	m.Set(String("a"), Int(4)) // update keeps position
	got := Object(m).Inspect()
	want := `{"b": 1, "a": 4, "c": 3}`
	if got != want {
		t.Errorf("Inspect = %s, want %s", got, want)
	}
	m.Delete(String("b"))
	if v, ok := m.Get(String("c")); !ok || !v.Equals(Int(3)) {
		t.Errorf("lookup after delete broke reindexing")
	}
}

func TestVariantEquality(t *testing.T) {
	e := NewEnum("Shape")
	circle := e.AddVariant("Circle", []string{"r"})
	dot := e.AddVariant("Dot", nil)

	a := Object(&VariantObj{Ctor: circle, Payload: []Value{Int(2)}})
	b := Object(&VariantObj{Ctor: circle, Payload: []Value{Int(2)}})
	c := Object(&VariantObj{Ctor: circle, Payload: []Value{Int(3)}})
	if !a.Equals(b) {
		t.Errorf("equal variants compared unequal")
	}
	if a.Equals(c) {
		t.Errorf("variants with different payloads compared equal")
	}
	if !Object(dot.Unit()).Equals(Object(dot.Unit())) {
		t.Errorf("unit variant singleton not equal to itself")
	}
}
