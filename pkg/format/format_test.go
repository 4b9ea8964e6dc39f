package format

import (
	"strings"
	"testing"

	"github.com/pro-grammer-SD/axiom/pkg/parser"
	"github.com/pro-grammer-SD/axiom/pkg/source"
)

func formatSrc(t *testing.T, src string) string {
	t.Helper()
	out, errs := Source(source.NewEvalSource(src))
	if len(errs) != 0 {
		t.Fatalf("format error: %s", errs[0].Error())
	}
	return out
}

func astRepr(t *testing.T, src string) string {
	t.Helper()
	p := parser.New(source.NewEvalSource(src))
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parse error: %s", p.Errors()[0].Error())
	}
	return prog.String()
}

var samples = []string{
	"let x=1+2*3\nx",
	"fn add(a,b){ret a+b}\nadd(1,2)",
	"if x>5 {print(1)} else if x>2 {print(2)} else {print(3)}",
	"while i<10 {i=i+1\nif i==5 {break}}",
	"for k,v in {\"a\":1} {print(k,v)}",
	"class Dog ext Animal {fn speak(){ret \"woof\"}\nfn init(n){self.name=n}}",
	"enum Shape {Circle(r)\nSquare(s)\nPoint}",
	"match s {Circle(r)=>r*r\n_=>0}",
	"let f=fn(x){ret x*2}\nf(21)",
	"let msg=\"Hello, {name}! {1+2}\"",
	"let esc=\"tab\\there\\nand \\{brace\\}\"",
	"go worker(1)\nimport mth",
	"let r=1..10\nlet neg = -x\nlet t = not done",
	"let p=2**3**2\nlet q=(2**3)**2",
	"xs[0]=m.field+xs[i*2]",
}

func TestFormatIsIdempotent(t *testing.T) {
	for _, src := range samples {
		once := formatSrc(t, src)
		twice := formatSrc(t, once)
		if once != twice {
			t.Errorf("not idempotent for %q:\nfirst:\n%s\nsecond:\n%s", src, once, twice)
		}
	}
}

func TestFormatPreservesAST(t *testing.T) {
	for _, src := range samples {
		formatted := formatSrc(t, src)
		if got, want := astRepr(t, formatted), astRepr(t, src); got != want {
			t.Errorf("AST changed for %q:\nbefore: %s\nafter:  %s", src, want, got)
		}
	}
}

func TestFourSpaceIndentation(t *testing.T) {
	out := formatSrc(t, "fn f(){if true {ret 1}}")
	want := strings.Join([]string{
		"fn f() {",
		"    if true {",
		"        ret 1",
		"    }",
		"}",
		"",
	}, "\n")
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestReturnKeywordNormalizedToRet(t *testing.T) {
	out := formatSrc(t, "fn f(){return 5}")
	if !strings.Contains(out, "ret 5") || strings.Contains(out, "return") {
		t.Errorf("return not normalized:\n%s", out)
	}
}

func TestElseIfChainStaysFlat(t *testing.T) {
	out := formatSrc(t, "if a {1} else if b {2} else {3}")
	if !strings.Contains(out, "} else if b {") {
		t.Errorf("else-if not flattened:\n%s", out)
	}
	if strings.Contains(out, "        ") {
		t.Errorf("chain nested too deep:\n%s", out)
	}
}

func TestMinimalParentheses(t *testing.T) {
	out := formatSrc(t, "let a = (1+2)*3\nlet b = 1+(2*3)")
	if !strings.Contains(out, "(1 + 2) * 3") {
		t.Errorf("needed parens dropped:\n%s", out)
	}
	if !strings.Contains(out, "b = 1 + 2 * 3") {
		t.Errorf("redundant parens kept:\n%s", out)
	}
}

func TestPowParentheses(t *testing.T) {
	// ** is right-associative, so only the left grouping needs parens.
	out := formatSrc(t, "let p = 2**(3**2)\nlet q = (2**3)**2")
	if !strings.Contains(out, "p = 2 ** 3 ** 2") {
		t.Errorf("redundant right parens kept:\n%s", out)
	}
	if !strings.Contains(out, "q = (2 ** 3) ** 2") {
		t.Errorf("needed left parens dropped:\n%s", out)
	}
}

func TestParseErrorAbortsFormatting(t *testing.T) {
	_, errs := Source(source.NewEvalSource("fn f( {"))
	if len(errs) == 0 {
		t.Fatal("expected parse diagnostics")
	}
}

func TestMatchFormatting(t *testing.T) {
	out := formatSrc(t, "match n {0=>\"zero\"\nx if x<0=>\"neg\"\n_=>{let d=1\nd}}")
	for _, want := range []string{
		"match n {",
		"    0 => \"zero\"",
		"    x if x < 0 => \"neg\"",
		"    _ => {",
		"        let d = 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if formatSrc(t, out) != out {
		t.Error("match formatting not idempotent")
	}
}
