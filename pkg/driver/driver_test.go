package driver

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pro-grammer-SD/axiom/pkg/config"
	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

func newSession(t *testing.T) *Axiom {
	t.Helper()
	t.Setenv("AXIOM_LIBS", filepath.Join(t.TempDir(), "libs"))
	return NewWith(config.Defaults(), t.TempDir())
}

func eval(t *testing.T, a *Axiom, src string) vm.Value {
	t.Helper()
	v, errs := a.Eval(src)
	if len(errs) != 0 {
		t.Fatalf("eval %q: %s", src, errs[0].Error())
	}
	return v
}

func evalFail(t *testing.T, a *Axiom, src string, code diagnostics.Code) *diagnostics.Diagnostic {
	t.Helper()
	_, errs := a.Eval(src)
	if len(errs) == 0 {
		t.Fatalf("eval %q: expected %s, got success", src, code)
	}
	if errs[0].Code != code {
		t.Fatalf("eval %q: got %s, want %s", src, errs[0].Code, code)
	}
	return errs[0]
}

func TestArithmetic(t *testing.T) {
	v := eval(t, newSession(t), "1 + 2 * 3")
	if !v.IsInt() || v.AsInt() != 7 {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestExponentiation(t *testing.T) {
	a := newSession(t)
	v := eval(t, a, "2 ** 10")
	if !v.IsFloat() || v.AsFloat() != 1024 {
		t.Errorf("2 ** 10 = %s, want Float 1024", v.Inspect())
	}
	if v := eval(t, a, "2 ** 3 ** 2"); v.AsFloat() != 512 {
		t.Errorf("2 ** 3 ** 2 = %s, want 512", v.Inspect())
	}
	if v := eval(t, a, "-2 ** 2"); v.AsFloat() != -4 {
		t.Errorf("-2 ** 2 = %s, want -4", v.Inspect())
	}
	evalFail(t, a, "\"a\" ** 2", diagnostics.BadOperandType)
}

func TestFalsyValues(t *testing.T) {
	a := newSession(t)
	eval(t, a, `
fn tag(x) {
    if x {
        ret "truthy"
    }
    ret "falsy"
}`)
	tests := []struct {
		expr string
		want string
	}{
		{"tag(nil)", "falsy"},
		{"tag(false)", "falsy"},
		{"tag(0)", "falsy"},
		{"tag(0.0)", "falsy"},
		{"tag(\"\")", "falsy"},
		{"tag([])", "falsy"},
		{"tag({})", "falsy"},
		{"tag(1)", "truthy"},
		{"tag(-1)", "truthy"},
		{"tag(\"0\")", "truthy"},
		{"tag([0])", "truthy"},
		{"tag(tag)", "truthy"},
	}
	for _, tt := range tests {
		if v := eval(t, a, tt.expr); v.AsString() != tt.want {
			t.Errorf("%s = %s, want %q", tt.expr, v.Inspect(), tt.want)
		}
	}
	// Literal conditions go through the same rule.
	v := eval(t, a, "let branch = 0\nif 0 { branch = 1 } else { branch = 2 }\nbranch")
	if v.AsInt() != 2 {
		t.Errorf("if 0 took the then branch: %s", v.Inspect())
	}
}

func TestStringPlusZeroIsTypeError(t *testing.T) {
	// Stays an error with the optimizer at defaults: x + 0 is never
	// rewritten away, so the operand check always runs.
	a := newSession(t)
	evalFail(t, a, "let s = \"a\"\ns + 0", diagnostics.BadOperandType)
}

func TestSessionKeepsState(t *testing.T) {
	a := newSession(t)
	eval(t, a, "let x = 42")
	eval(t, a, "fn twice(n) {\n    ret n * 2\n}")
	if v := eval(t, a, "twice(x) + 1"); v.AsInt() != 85 {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestClosuresAccumulate(t *testing.T) {
	a := newSession(t)
	v := eval(t, a, `
fn make_acc() {
    let total = 0
    ret fn(n) {
        total = total + n
        ret total
    }
}
let acc = make_acc()
acc(5)
acc(4)
acc(6)`)
	if v.AsInt() != 15 {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestTailRecursionRunsDeep(t *testing.T) {
	v := eval(t, newSession(t), `
fn loop(n, sum) {
    if n == 0 {
        ret sum
    }
    ret loop(n - 1, sum + n)
}
loop(100000, 0)`)
	if v.AsInt() != 5000050000 {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestStringInterpolation(t *testing.T) {
	a := newSession(t)
	v := eval(t, a, "let name = \"World\"\n\"Hello, {name}!\"")
	if !v.IsString() || v.AsString() != "Hello, World!" {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestPrintGoesToOutput(t *testing.T) {
	a := newSession(t)
	var buf bytes.Buffer
	a.SetOutput(&buf)
	eval(t, a, "print(\"hi\", 42)")
	if buf.String() != "hi 42\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestDivisionByZeroIsRuntime(t *testing.T) {
	d := evalFail(t, newSession(t), "10 / 0", diagnostics.DivisionByZero)
	if !d.Runtime || d.ExitCode() != 2 {
		t.Errorf("Runtime = %v, ExitCode = %d", d.Runtime, d.ExitCode())
	}
}

func TestUndefinedIdentifierSuggests(t *testing.T) {
	d := evalFail(t, newSession(t), "let count = 1\ncout", diagnostics.UndefinedIdentifier)
	if !strings.Contains(d.Help, "count") {
		t.Errorf("help = %q", d.Help)
	}
	if d.ExitCode() != 1 {
		t.Errorf("ExitCode = %d", d.ExitCode())
	}
}

func TestArityCheckedBeforeRun(t *testing.T) {
	evalFail(t, newSession(t), `
fn add(a, b) {
    ret a + b
}
add(1)`, diagnostics.ArityMismatch)
}

func TestBuiltinModules(t *testing.T) {
	a := newSession(t)
	if v := eval(t, a, "import mth\nmth.abs(0 - 5)"); v.AsInt() != 5 {
		t.Errorf("mth.abs = %s", v.Inspect())
	}
	if v := eval(t, a, "import str\nstr.upper(\"abc\")"); v.AsString() != "ABC" {
		t.Errorf("str.upper = %s", v.Inspect())
	}
	if v := eval(t, a, "import set\nset.len(set.add(set.new([1, 2, 2]), 3))"); v.AsInt() != 3 {
		t.Errorf("set pipeline = %s", v.Inspect())
	}
}

func TestLoadLocalFile(t *testing.T) {
	a := newSession(t)
	writeSource(t, a.baseDir, "lib.ax", `
fn double(x) {
    ret x * 2
}
let answer = 21`)
	v := eval(t, a, "load \"lib.ax\"\nlib.double(lib.answer)")
	if v.AsInt() != 42 {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestImportFindsLocalModule(t *testing.T) {
	a := newSession(t)
	writeSource(t, a.baseDir, "geom.ax", `
fn area(s) {
    ret s * s
}`)
	if v := eval(t, a, "import geom\ngeom.area(3)"); v.AsInt() != 9 {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestImportInstalledPackage(t *testing.T) {
	a := newSession(t)
	libs := os.Getenv("AXIOM_LIBS")
	writeSource(t, filepath.Join(libs, "shapes"), "Axiomite.toml",
		"[package]\nname = \"shapes\"\nversion = \"1.0.0\"\n")
	writeSource(t, filepath.Join(libs, "shapes"), "main.ax", `
fn perimeter(s) {
    ret s * 4
}`)
	// The store is consulted at import time, so installing after the
	// session opened is fine.
	if v := eval(t, a, "import shapes\nshapes.perimeter(5)"); v.AsInt() != 20 {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestModuleLoadedOnce(t *testing.T) {
	a := newSession(t)
	writeSource(t, a.baseDir, "counter.ax", "let loads = 1")
	eval(t, a, "load \"counter.ax\"")
	eval(t, a, "load \"counter.ax\"")
	if len(a.modules) != 1 {
		t.Errorf("modules cached = %d", len(a.modules))
	}
}

func TestModuleNotFound(t *testing.T) {
	d := evalFail(t, newSession(t), "import nope", diagnostics.ModuleNotFound)
	if d.ExitCode() != 2 {
		t.Errorf("ExitCode = %d", d.ExitCode())
	}
}

func TestCircularImport(t *testing.T) {
	a := newSession(t)
	writeSource(t, a.baseDir, "a.ax", "load \"b.ax\"")
	writeSource(t, a.baseDir, "b.ax", "load \"a.ax\"")
	evalFail(t, a, "load \"a.ax\"", diagnostics.CircularImport)
}

func TestModuleWithErrors(t *testing.T) {
	a := newSession(t)
	writeSource(t, a.baseDir, "broken.ax", "definitely_undefined")
	d := evalFail(t, a, "load \"broken.ax\"", diagnostics.ModuleHasErrors)
	if !strings.Contains(d.Help, "AXM_200") {
		t.Errorf("help = %q", d.Help)
	}
}

func TestGoStatementSharesGlobals(t *testing.T) {
	a := newSession(t)
	eval(t, a, `
let done = 0
fn work() {
    done = 1
}
go work()`)
	if v := eval(t, a, "done"); v.AsInt() != 1 {
		t.Errorf("done = %s", v.Inspect())
	}
}

func TestOptimizerTogglesStillCompute(t *testing.T) {
	conf := config.Defaults()
	for _, key := range []string{
		"peephole_optimizer", "constant_folding", "dead_code",
		"jump_threading", "superinstructions", "quickening", "ic_enabled",
	} {
		if err := conf.Set(key, "off"); err != nil {
			t.Fatal(err)
		}
	}
	a := NewWith(conf, t.TempDir())
	v := eval(t, a, `
let sum = 0
let i = 0
while i < 100 {
    sum = sum + i
    i = i + 1
}
sum`)
	if v.AsInt() != 4950 {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestProfilingEnabledBuildsProfiler(t *testing.T) {
	conf := config.Defaults()
	if err := conf.Set("profiling_enabled", "on"); err != nil {
		t.Fatal(err)
	}
	a := NewWith(conf, t.TempDir())
	if a.Profiler() == nil {
		t.Fatal("no profiler")
	}
	eval(t, a, "1 + 1")
}

func TestRunFile(t *testing.T) {
	a := newSession(t)
	dir := t.TempDir()
	writeSource(t, dir, "lib.ax", "let three = 3")
	path := filepath.Join(dir, "main.ax")
	writeSource(t, dir, "main.ax", "load \"lib.ax\"\nlib.three * 7")
	v, errs := a.RunFile(path)
	if len(errs) != 0 {
		t.Fatalf("run: %s", errs[0].Error())
	}
	if v.AsInt() != 21 {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestRunFileMissing(t *testing.T) {
	a := newSession(t)
	_, errs := a.RunFile(filepath.Join(t.TempDir(), "absent.ax"))
	if len(errs) == 0 || errs[0].Code != diagnostics.IoError {
		t.Fatalf("errs = %v", errs)
	}
}

func TestCheckFileDoesNotRun(t *testing.T) {
	a := newSession(t)
	dir := t.TempDir()
	writeSource(t, dir, "main.ax", "print(1 / 0)")
	// Division by zero is a runtime condition; chk accepts the file.
	if errs := a.CheckFile(filepath.Join(dir, "main.ax")); len(errs) != 0 {
		t.Fatalf("chk: %s", errs[0].Error())
	}
	writeSource(t, dir, "bad.ax", "missing_fn()")
	if errs := a.CheckFile(filepath.Join(dir, "bad.ax")); len(errs) == 0 {
		t.Fatal("chk accepted an undefined identifier")
	}
}

func TestHostBuiltinRegistration(t *testing.T) {
	a := newSession(t)
	a.Register("answer", 0, func(in *vm.Interp, args []vm.Value) (vm.Value, error) {
		return vm.Int(42), nil
	})
	if v := eval(t, a, "answer()"); v.AsInt() != 42 {
		t.Errorf("got %s", v.Inspect())
	}
}

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
