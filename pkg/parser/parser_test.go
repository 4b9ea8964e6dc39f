package parser

import (
	"testing"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/source"
)

func parse(t *testing.T, input string) *Program {
	t.Helper()
	p := New(source.NewEvalSource(input))
	program := p.ParseProgram()
	if len(p.Errors()) != 0 {
		for _, e := range p.Errors() {
			t.Errorf("parser error: %s", e.Error())
		}
		t.FailNow()
	}
	return program
}

func parseErrors(t *testing.T, input string) []*diagnostics.Diagnostic {
	t.Helper()
	p := New(source.NewEvalSource(input))
	p.ParseProgram()
	return p.Errors()
}

func TestLetStatements(t *testing.T) {
	program := parse(t, "let x = 5\nlet y = x")
	if len(program.Statements) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(program.Statements))
	}
	ls, ok := program.Statements[0].(*LetStatement)
	if !ok {
		t.Fatalf("statement 0 is %T, want *LetStatement", program.Statements[0])
	}
	if ls.Name.Value != "x" {
		t.Errorf("name = %q, want x", ls.Name.Value)
	}
	if lit, ok := ls.Value.(*IntegerLiteral); !ok || lit.Value != 5 {
		t.Errorf("value = %v", ls.Value)
	}
}

func TestOperatorPrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"-a * b", "((-a) * b)"},
		{"not a == b", "((not a) == b)"},
		{"a + b % c", "(a + (b % c))"},
		{"2 ** 3 * 4", "((2 ** 3) * 4)"},
		{"2 ** 3 ** 2", "(2 ** (3 ** 2))"},
		{"-2 ** 2", "(-(2 ** 2))"},
		{"a == b and c != d", "((a == b) and (c != d))"},
		{"a and b or c", "((a and b) or c)"},
		{"a or b and c", "(a or (b and c))"},
		{"a < b == b <= c", "((a < b) == (b <= c))"},
		{"a + b < c * d", "((a + b) < (c * d))"},
		{"x.y.z", "x.y.z"},
		{"a[0] + f(1)", "((a[0]) + f(1))"},
	}
	for _, tt := range tests {
		program := parse(t, tt.input)
		if len(program.Statements) != 1 {
			t.Fatalf("%q: expected 1 statement, got %d", tt.input, len(program.Statements))
		}
		es, ok := program.Statements[0].(*ExpressionStatement)
		if !ok {
			t.Fatalf("%q: statement is %T", tt.input, program.Statements[0])
		}
		if got := es.Expression.String(); got != tt.want {
			t.Errorf("%q: parsed as %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFunctionDeclaration(t *testing.T) {
	program := parse(t, "fn add(a, b) {\n  ret a + b\n}")
	fd, ok := program.Statements[0].(*FunctionDeclaration)
	if !ok {
		t.Fatalf("statement is %T, want *FunctionDeclaration", program.Statements[0])
	}
	if fd.Name.Value != "add" {
		t.Errorf("name = %q", fd.Name.Value)
	}
	if len(fd.Function.Params) != 2 {
		t.Fatalf("params = %d, want 2", len(fd.Function.Params))
	}
	ret, ok := fd.Function.Body.Statements[0].(*ReturnStatement)
	if !ok {
		t.Fatalf("body statement is %T", fd.Function.Body.Statements[0])
	}
	if ret.Value.String() != "(a + b)" {
		t.Errorf("return value = %q", ret.Value.String())
	}
}

func TestLambdaTakesLetName(t *testing.T) {
	program := parse(t, "let double = fn(x) { ret x * 2 }")
	ls := program.Statements[0].(*LetStatement)
	fl, ok := ls.Value.(*FunctionLiteral)
	if !ok {
		t.Fatalf("value is %T, want *FunctionLiteral", ls.Value)
	}
	if fl.Name != "double" {
		t.Errorf("lambda name = %q, want double", fl.Name)
	}
}

func TestNestedFunctions(t *testing.T) {
	program := parse(t, `
fn counter() {
  let n = 0
  fn bump() {
    n = n + 1
    ret n
  }
  ret bump
}`)
	outer := program.Statements[0].(*FunctionDeclaration)
	if len(outer.Function.Body.Statements) != 3 {
		t.Fatalf("outer body has %d statements", len(outer.Function.Body.Statements))
	}
	inner, ok := outer.Function.Body.Statements[1].(*FunctionDeclaration)
	if !ok {
		t.Fatalf("inner statement is %T", outer.Function.Body.Statements[1])
	}
	if inner.Name.Value != "bump" {
		t.Errorf("inner name = %q", inner.Name.Value)
	}
	if _, ok := inner.Function.Body.Statements[0].(*AssignStatement); !ok {
		t.Errorf("first inner statement is %T, want *AssignStatement",
			inner.Function.Body.Statements[0])
	}
}

func TestAssignTargets(t *testing.T) {
	program := parse(t, "x = 1\nxs[0] = 2\np.name = \"n\"\nx += 3")
	if len(program.Statements) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(program.Statements))
	}
	for i, stmt := range program.Statements {
		if _, ok := stmt.(*AssignStatement); !ok {
			t.Errorf("statement %d is %T, want *AssignStatement", i, stmt)
		}
	}
	if op := program.Statements[3].(*AssignStatement).Op; string(op) != "+=" {
		t.Errorf("compound op = %q", op)
	}
}

func TestInvalidAssignTarget(t *testing.T) {
	errs := parseErrors(t, "1 + 2 = 3")
	if len(errs) == 0 {
		t.Fatal("expected an error for invalid assignment target")
	}
}

func TestControlFlow(t *testing.T) {
	program := parse(t, `
if x < 10 {
  y = 1
} else if x < 20 {
  y = 2
} else {
  y = 3
}
while y > 0 {
  y = y - 1
  if y == 1 { break }
}
for item in xs {
  print(item)
}
for k, v in m {
  print(k, v)
}
for i in 0..10 {
  print(i)
}`)
	if len(program.Statements) != 5 {
		t.Fatalf("expected 5 statements, got %d", len(program.Statements))
	}
	ifStmt := program.Statements[0].(*IfStatement)
	elseIf, ok := ifStmt.Alternative.(*IfStatement)
	if !ok {
		t.Fatalf("alternative is %T, want *IfStatement", ifStmt.Alternative)
	}
	if _, ok := elseIf.Alternative.(*BlockStatement); !ok {
		t.Errorf("final else is %T", elseIf.Alternative)
	}
	forRange := program.Statements[4].(*ForInStatement)
	if _, ok := forRange.Iterable.(*RangeExpression); !ok {
		t.Errorf("iterable is %T, want *RangeExpression", forRange.Iterable)
	}
	forMap := program.Statements[3].(*ForInStatement)
	if forMap.Value == nil || forMap.Value.Value != "v" {
		t.Errorf("two-variable for-in not parsed: %v", forMap.Value)
	}
}

func TestCollectionLiterals(t *testing.T) {
	program := parse(t, `let xs = [1, 2, 3]
let m = {"a": 1, "b": 2}
let empty = {}`)
	xs := program.Statements[0].(*LetStatement).Value.(*ListLiteral)
	if len(xs.Elements) != 3 {
		t.Errorf("list has %d elements", len(xs.Elements))
	}
	m := program.Statements[1].(*LetStatement).Value.(*MapLiteral)
	if len(m.Keys) != 2 {
		t.Errorf("map has %d pairs", len(m.Keys))
	}
	empty := program.Statements[2].(*LetStatement).Value.(*MapLiteral)
	if len(empty.Keys) != 0 {
		t.Errorf("empty map has %d pairs", len(empty.Keys))
	}
}

func TestStringInterpolation(t *testing.T) {
	program := parse(t, `let s = "Hello, {name}!"`)
	sl := program.Statements[0].(*LetStatement).Value.(*StringLiteral)
	if !sl.Interpolated() {
		t.Fatal("literal not marked interpolated")
	}
	if len(sl.Parts) != 2 || sl.Parts[0] != "Hello, " || sl.Parts[1] != "!" {
		t.Errorf("parts = %q", sl.Parts)
	}
	if len(sl.Exprs) != 1 || sl.Exprs[0].String() != "name" {
		t.Errorf("exprs = %v", sl.Exprs)
	}
}

func TestStringInterpolationExpr(t *testing.T) {
	program := parse(t, `let s = "sum={a + b * 2}"`)
	sl := program.Statements[0].(*LetStatement).Value.(*StringLiteral)
	if sl.Exprs[0].String() != "(a + (b * 2))" {
		t.Errorf("interpolated expr = %q", sl.Exprs[0].String())
	}
}

func TestStringInterpolationSpan(t *testing.T) {
	// The interpolated identifier's span must point into the original source.
	input := `let s = "x={value}"`
	program := parse(t, input)
	sl := program.Statements[0].(*LetStatement).Value.(*StringLiteral)
	span := sl.Exprs[0].Span()
	if input[span.Start:span.End] != "value" {
		t.Errorf("span [%d,%d) covers %q", span.Start, span.End, input[span.Start:span.End])
	}
}

func TestEscapedBraceNotInterpolated(t *testing.T) {
	program := parse(t, `let s = "literal \{brace\}"`)
	sl := program.Statements[0].(*LetStatement).Value.(*StringLiteral)
	if sl.Interpolated() {
		t.Fatal("escaped braces must not interpolate")
	}
	if sl.Text() != "literal {brace}" {
		t.Errorf("text = %q", sl.Text())
	}
}

func TestClassDeclaration(t *testing.T) {
	program := parse(t, `
class Dog ext Animal {
  fn init(self, name) {
    self.name = name
  }
  fn speak(self) {
    ret "{self.name} says woof"
  }
}`)
	cd := program.Statements[0].(*ClassDeclaration)
	if cd.Name.Value != "Dog" || cd.Parent.Value != "Animal" {
		t.Errorf("class header = %s ext %v", cd.Name.Value, cd.Parent)
	}
	if len(cd.Methods) != 2 {
		t.Fatalf("methods = %d, want 2", len(cd.Methods))
	}
	if cd.Methods[1].Name.Value != "speak" {
		t.Errorf("second method = %q", cd.Methods[1].Name.Value)
	}
}

func TestEnumDeclaration(t *testing.T) {
	program := parse(t, `
enum Shape {
  Circle(radius)
  Rect(w, h)
  Point
}`)
	ed := program.Statements[0].(*EnumDeclaration)
	if len(ed.Variants) != 3 {
		t.Fatalf("variants = %d, want 3", len(ed.Variants))
	}
	if ed.Variants[0].Name.Value != "Circle" || len(ed.Variants[0].Params) != 1 {
		t.Errorf("variant 0 = %v", ed.Variants[0])
	}
	if len(ed.Variants[1].Params) != 2 {
		t.Errorf("Rect params = %d", len(ed.Variants[1].Params))
	}
	if len(ed.Variants[2].Params) != 0 {
		t.Errorf("Point should be a unit variant")
	}
}

func TestMatchExpression(t *testing.T) {
	program := parse(t, `
let area = match s {
  Shape.Circle(r) => 3 * r * r
  Rect(w, h) => w * h
  n if n == 0 => "zero"
  1 => "one"
  other => { ret other }
  _ => nil
}`)
	me := program.Statements[0].(*LetStatement).Value.(*MatchExpression)
	if len(me.Arms) != 6 {
		t.Fatalf("arms = %d, want 6", len(me.Arms))
	}
	qualified := me.Arms[0].Pattern.(*VariantPattern)
	if qualified.Enum.Value != "Shape" || qualified.Variant.Value != "Circle" ||
		len(qualified.Bindings) != 1 {
		t.Errorf("arm 0 pattern = %s", qualified.String())
	}
	bare := me.Arms[1].Pattern.(*VariantPattern)
	if bare.Enum != nil || bare.Variant.Value != "Rect" || len(bare.Bindings) != 2 {
		t.Errorf("arm 1 pattern = %s", bare.String())
	}
	if me.Arms[2].Guard == nil {
		t.Error("arm 2 should carry a guard")
	}
	if _, ok := me.Arms[3].Pattern.(*LiteralPattern); !ok {
		t.Errorf("arm 3 pattern is %T", me.Arms[3].Pattern)
	}
	if _, ok := me.Arms[4].Pattern.(*BindingPattern); !ok {
		t.Errorf("arm 4 pattern is %T", me.Arms[4].Pattern)
	}
	if _, ok := me.Arms[5].Pattern.(*WildcardPattern); !ok {
		t.Errorf("arm 5 pattern is %T", me.Arms[5].Pattern)
	}
}

func TestMatchCatchallAndImplicitVariant(t *testing.T) {
	program := parse(t, `
match s {
  .Circle(r) => r
  els => nil
}`)
	me := program.Statements[0].(*ExpressionStatement).Expression.(*MatchExpression)
	implicit := me.Arms[0].Pattern.(*VariantPattern)
	if implicit.Enum != nil || implicit.Variant.Value != "Circle" || len(implicit.Bindings) != 1 {
		t.Errorf("arm 0 pattern = %s", implicit.String())
	}
	catchall, ok := me.Arms[1].Pattern.(*WildcardPattern)
	if !ok || catchall.TokenLiteral() != "els" {
		t.Errorf("arm 1 pattern = %#v", me.Arms[1].Pattern)
	}
}

func TestImportAndGo(t *testing.T) {
	program := parse(t, "import mth\nload \"util.ax\"\ngo worker(1)")
	if len(program.Statements) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(program.Statements))
	}
	imp := program.Statements[0].(*ImportStatement)
	if imp.Name.Literal != "mth" {
		t.Errorf("import name = %q", imp.Name.Literal)
	}
	gs := program.Statements[2].(*GoStatement)
	if gs.Call.Callee.String() != "worker" {
		t.Errorf("go call = %q", gs.Call.String())
	}
}

func TestSpansSurviveParsing(t *testing.T) {
	input := "let x = 10 / 0"
	program := parse(t, input)
	div := program.Statements[0].(*LetStatement).Value.(*InfixExpression)
	span := div.Right.Span()
	if input[span.Start:span.End] != "0" {
		t.Errorf("divisor span [%d,%d) covers %q", span.Start, span.End,
			input[span.Start:span.End])
	}
}

func TestParseErrorsCarryCodes(t *testing.T) {
	tests := []struct {
		input string
		code  diagnostics.Code
	}{
		{"let = 5", diagnostics.UnexpectedToken},
		{"fn broken(", diagnostics.UnexpectedEof},
		{`let s = "open`, diagnostics.UnterminatedString},
	}
	for _, tt := range tests {
		errs := parseErrors(t, tt.input)
		if len(errs) == 0 {
			t.Errorf("%q: expected errors", tt.input)
			continue
		}
		found := false
		for _, e := range errs {
			if e.Code == tt.code {
				found = true
			}
		}
		if !found {
			t.Errorf("%q: no %s among %d errors (first: %s)",
				tt.input, tt.code, len(errs), errs[0].Error())
		}
	}
}

func TestMultilineExpressions(t *testing.T) {
	program := parse(t, "let total = 1 +\n  2 +\n  3")
	ls := program.Statements[0].(*LetStatement)
	if ls.Value.String() != "((1 + 2) + 3)" {
		t.Errorf("parsed as %q", ls.Value.String())
	}
}
