package diagnostics

import (
	"fmt"

	"github.com/pro-grammer-SD/axiom/pkg/source"
)

// Span is a half-open byte range [Start, End) into a source file.
type Span struct {
	Start int
	End   int
}

// Merge returns the smallest span covering both s and other.
func (s Span) Merge(other Span) Span {
	out := s
	if other.Start < out.Start {
		out.Start = other.Start
	}
	if other.End > out.End {
		out.End = other.End
	}
	return out
}

// Label is a secondary span with an explanatory note.
type Label struct {
	Span Span
	Text string
}

// Diagnostic is a coded, spanned, renderable error. It implements the
// standard error interface so it can flow through ordinary Go error paths.
type Diagnostic struct {
	Code      Code
	Msg       string // primary message; Code.Summary() when empty
	File      *source.SourceFile
	Span      Span
	Secondary []Label
	Help      string // help note; Code.Hint() when empty
	Runtime   bool   // raised during execution, regardless of code family
}

// New builds a diagnostic against a source file.
func New(code Code, file *source.SourceFile, span Span, msg string) *Diagnostic {
	return &Diagnostic{Code: code, File: file, Span: span, Msg: msg}
}

// NoSource builds a diagnostic without source context (I/O failures and
// similar pre-parse conditions).
func NoSource(code Code, msg string) *Diagnostic {
	return &Diagnostic{Code: code, Msg: msg}
}

// WithHelp attaches a help note and returns the diagnostic for chaining.
func (d *Diagnostic) WithHelp(help string) *Diagnostic {
	d.Help = help
	return d
}

// WithLabel attaches a secondary labeled span.
func (d *Diagnostic) WithLabel(span Span, text string) *Diagnostic {
	d.Secondary = append(d.Secondary, Label{Span: span, Text: text})
	return d
}

// Message returns the primary message, falling back to the code summary.
func (d *Diagnostic) Message() string {
	if d.Msg != "" {
		return d.Msg
	}
	return d.Code.Summary()
}

// HelpNote returns the help note, falling back to the code's generic hint.
func (d *Diagnostic) HelpNote() string {
	if d.Help != "" {
		return d.Help
	}
	return d.Code.Hint()
}

// Kind names the diagnostic family ("Lex", "Semantic", "Runtime", ...).
func (d *Diagnostic) Kind() string { return d.Code.Kind() }

// Error implements the error interface with the header line only.
func (d *Diagnostic) Error() string {
	return fmt.Sprintf("error[%s]: %s", d.Code, d.Message())
}

// Pos returns the 1-based line and column of the primary span start, or
// (0, 0) when there is no source context.
func (d *Diagnostic) Pos() (line, col int) {
	if d.File == nil {
		return 0, 0
	}
	return d.File.LineCol(d.Span.Start)
}

// AtRuntime marks the diagnostic as raised during execution. Some codes,
// arity mismatches for one, surface both at check time and at runtime; the
// flag decides the exit code.
func (d *Diagnostic) AtRuntime() *Diagnostic {
	d.Runtime = true
	return d
}

// ExitCode maps the diagnostic to the process exit code contract:
// 1 for compile-time diagnostics, 2 for runtime ones.
func (d *Diagnostic) ExitCode() int {
	if !d.Runtime && d.Code.CompileTime() {
		return 1
	}
	return 2
}
