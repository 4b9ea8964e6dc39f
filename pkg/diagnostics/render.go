package diagnostics

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ANSI fragments used by the renderer. Kept as constants so golden tests
// can assemble expected colored output without duplicating escape codes.
const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiRed   = "\x1b[31;1m"
	ansiBlue  = "\x1b[34;1m"
)

// ColorEnabled reports whether diagnostics written to f should use ANSI
// color: the stream must be a terminal and AXIOM_NO_COLOR must be unset.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("AXIOM_NO_COLOR") != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Render produces the rustc-style plain-text rendering of a diagnostic.
// It is a pure function of the diagnostic and its source buffer:
//
//	error[AXM_403]: Division by zero
//	 --> script.ax:1:14
//	  |
//	1 | let x = 10 / 0
//	  |              ^
//	  |
//	  = help: Check the divisor before dividing
func Render(d *Diagnostic) string {
	return render(d, false)
}

// RenderColor renders with ANSI color.
func RenderColor(d *Diagnostic) string {
	return render(d, true)
}

// Emit writes the diagnostic to stderr, coloring when the terminal allows.
func Emit(d *Diagnostic) {
	if ColorEnabled(os.Stderr) {
		fmt.Fprintln(os.Stderr, RenderColor(d))
	} else {
		fmt.Fprintln(os.Stderr, Render(d))
	}
}

func render(d *Diagnostic, color bool) string {
	var b strings.Builder

	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + ansiReset
	}

	// Header: error[AXM_NNN]: message
	b.WriteString(paint(ansiRed, fmt.Sprintf("error[%s]", d.Code)))
	b.WriteString(paint(ansiBold, ": "+d.Message()))

	if d.File == nil {
		if help := d.HelpNote(); help != "" {
			b.WriteString("\n  = ")
			b.WriteString(paint(ansiBold, "help"))
			b.WriteString(": " + help)
		}
		return b.String()
	}

	line, col := d.File.LineCol(d.Span.Start)
	width := len(fmt.Sprintf("%d", line))
	gutter := strings.Repeat(" ", width)

	// Origin:  --> file:line:col
	b.WriteString("\n")
	b.WriteString(gutter)
	b.WriteString(paint(ansiBlue, "--> "))
	b.WriteString(fmt.Sprintf("%s:%d:%d", d.File.DisplayPath(), line, col))

	// Source line with caret underneath.
	lines := d.File.Lines()
	if line-1 < len(lines) {
		src := strings.TrimRight(lines[line-1], "\r")

		b.WriteString("\n")
		b.WriteString(paint(ansiBlue, gutter+" |"))

		b.WriteString("\n")
		b.WriteString(paint(ansiBlue, fmt.Sprintf("%d | ", line)))
		b.WriteString(src)

		carets := d.Span.End - d.Span.Start
		if carets < 1 {
			carets = 1
		}
		if col-1+carets > len(src) {
			carets = len(src) - (col - 1)
			if carets < 1 {
				carets = 1
			}
		}
		b.WriteString("\n")
		b.WriteString(paint(ansiBlue, gutter+" | "))
		b.WriteString(strings.Repeat(" ", col-1))
		b.WriteString(paint(ansiRed, strings.Repeat("^", carets)))

		b.WriteString("\n")
		b.WriteString(paint(ansiBlue, gutter+" |"))
	}

	for _, lab := range d.Secondary {
		l, c := d.File.LineCol(lab.Span.Start)
		b.WriteString("\n")
		b.WriteString(gutter)
		b.WriteString(paint(ansiBlue, " = "))
		b.WriteString(fmt.Sprintf("note: %s (%s:%d:%d)", lab.Text, d.File.DisplayPath(), l, c))
	}

	if help := d.HelpNote(); help != "" {
		b.WriteString("\n")
		b.WriteString(gutter)
		b.WriteString(" = ")
		b.WriteString(paint(ansiBold, "help"))
		b.WriteString(": " + help)
	}

	return b.String()
}
