package source

import (
	"path/filepath"
	"strings"
)

// SourceFile represents a source file with its content and metadata.
type SourceFile struct {
	Name    string   // Display name (e.g., "script.ax", "<stdin>", "<repl>")
	Path    string   // Full file path (empty for REPL/eval)
	Content string   // The source code content
	lines   []string // Cached split lines (lazy initialization)
}

// NewSourceFile creates a new source file.
func NewSourceFile(name, path, content string) *SourceFile {
	return &SourceFile{
		Name:    name,
		Path:    path,
		Content: content,
	}
}

// NewEvalSource creates a source file for eval input.
func NewEvalSource(content string) *SourceFile {
	return &SourceFile{
		Name:    "<eval>",
		Path:    "",
		Content: content,
	}
}

// NewReplSource creates a source file for REPL input.
func NewReplSource(content string) *SourceFile {
	return &SourceFile{
		Name:    "<repl>",
		Path:    "",
		Content: content,
	}
}

// FromFile creates a SourceFile from a file path and content.
func FromFile(filePath, content string) *SourceFile {
	name := filepath.Base(filePath)
	return NewSourceFile(name, filePath, content)
}

// Lines returns the source split into lines (cached).
func (sf *SourceFile) Lines() []string {
	if sf.lines == nil {
		sf.lines = strings.Split(sf.Content, "\n")
	}
	return sf.lines
}

// DisplayPath returns the best path for display (prefers Path, falls back to Name).
func (sf *SourceFile) DisplayPath() string {
	if sf.Path != "" {
		return sf.Path
	}
	return sf.Name
}

// IsFile returns true if this represents an actual file (has a path).
func (sf *SourceFile) IsFile() bool {
	return sf.Path != ""
}

// LineCol converts a 0-based byte offset into 1-based line and column numbers.
// Columns count bytes within the line, matching diagnostic rendering.
func (sf *SourceFile) LineCol(offset int) (line, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(sf.Content) {
		offset = len(sf.Content)
	}
	line, col = 1, 1
	for i := 0; i < offset; i++ {
		if sf.Content[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
