package checker

import (
	"strings"
	"testing"

	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/parser"
	"github.com/pro-grammer-SD/axiom/pkg/source"
)

func check(t *testing.T, src string, predefined ...string) []*diagnostics.Diagnostic {
	t.Helper()
	file := source.NewEvalSource(src)
	p := parser.New(file)
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parse error: %s", p.Errors()[0].Error())
	}
	return Check(file, prog, predefined)
}

func wantClean(t *testing.T, src string, predefined ...string) {
	t.Helper()
	if errs := check(t, src, predefined...); len(errs) != 0 {
		t.Fatalf("unexpected diagnostics: %s", errs[0].Error())
	}
}

func wantCode(t *testing.T, src string, code diagnostics.Code, predefined ...string) *diagnostics.Diagnostic {
	t.Helper()
	errs := check(t, src, predefined...)
	if len(errs) == 0 {
		t.Fatalf("expected %s, got no diagnostics", code)
	}
	if errs[0].Code != code {
		t.Fatalf("got %s, want %s", errs[0].Code, code)
	}
	return errs[0]
}

func TestCleanProgram(t *testing.T) {
	wantClean(t, `
let total = 0
fn add(a, b) {
    ret a + b
}
total = add(1, 2)
print(total)`, "print")
}

func TestUndefinedIdentifier(t *testing.T) {
	d := wantCode(t, "let count = 1\ncout", diagnostics.UndefinedIdentifier)
	if !strings.Contains(d.Help, "count") {
		t.Errorf("help = %q, want a 'count' suggestion", d.Help)
	}
}

func TestAssignmentToUndefined(t *testing.T) {
	wantCode(t, "missing = 5", diagnostics.UndefinedVariable)
}

func TestStaticArityMismatch(t *testing.T) {
	d := wantCode(t, `
fn add(a, b) {
    ret a + b
}
add(1)`, diagnostics.ArityMismatch)
	if !strings.Contains(d.Message(), "2 argument(s), got 1") {
		t.Errorf("message = %q", d.Message())
	}
}

func TestArityNotCheckedAfterReassignment(t *testing.T) {
	wantClean(t, `
fn add(a, b) {
    ret a + b
}
add = 5
add(1)`)
}

func TestForwardReferenceBetweenFunctions(t *testing.T) {
	wantClean(t, `
fn even(n) {
    ret odd(n - 1)
}
fn odd(n) {
    ret even(n - 1)
}
even(4)`)
}

func TestLetFunctionGetsArityChecked(t *testing.T) {
	wantCode(t, `
let double = fn(x) { ret x * 2 }
double(1, 2)`, diagnostics.ArityMismatch)
}

func TestBreakOutsideLoop(t *testing.T) {
	wantCode(t, "break", diagnostics.UnexpectedToken)
}

func TestBreakInsideLoopIsFine(t *testing.T) {
	wantClean(t, `
for i in 0..10 {
    if i > 5 {
        break
    }
}`)
}

func TestLoopDepthDoesNotLeakIntoFunctions(t *testing.T) {
	wantCode(t, `
while true {
    let f = fn() {
        break
    }
}`, diagnostics.UnexpectedToken)
}

func TestSelfOutsideMethod(t *testing.T) {
	wantCode(t, "self.x", diagnostics.UndefinedIdentifier)
}

func TestSelfInsideMethod(t *testing.T) {
	wantClean(t, `
class Box {
    fn init(v) {
        self.v = v
    }
}`)
}

func TestBlockScopeDoesNotLeak(t *testing.T) {
	wantCode(t, `
if true {
    let inner = 1
}
inner`, diagnostics.UndefinedIdentifier)
}

func TestMatchBindingsScopedToArm(t *testing.T) {
	wantClean(t, `
enum Shape {
    Circle(r)
}
match Shape.Circle(1) {
    Circle(r) => r * 2
    _ => 0
}`)
	wantCode(t, `
enum Shape {
    Circle(r)
}
match Shape.Circle(1) {
    Circle(r) => 0
}
r`, diagnostics.UndefinedIdentifier)
}

func TestPredefinedNamesResolve(t *testing.T) {
	wantClean(t, "print(1)", "print")
	wantCode(t, "print(1)", diagnostics.UndefinedIdentifier)
}

func TestInterpolatedStringsAreChecked(t *testing.T) {
	wantCode(t, "\"value: {missing}\"", diagnostics.UndefinedIdentifier)
}

func TestGoStatementIsChecked(t *testing.T) {
	wantCode(t, "go missing()", diagnostics.UndefinedIdentifier)
}
