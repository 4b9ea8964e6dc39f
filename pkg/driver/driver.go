// Package driver runs the full pipeline: parse, check, compile,
// optimize, execute. An Axiom value is a persistent session, so the
// REPL keeps definitions between lines and scripts share one global
// table with the modules they load.
package driver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/pro-grammer-SD/axiom/pkg/builtins"
	"github.com/pro-grammer-SD/axiom/pkg/checker"
	"github.com/pro-grammer-SD/axiom/pkg/compiler"
	"github.com/pro-grammer-SD/axiom/pkg/config"
	"github.com/pro-grammer-SD/axiom/pkg/diagnostics"
	"github.com/pro-grammer-SD/axiom/pkg/lexer"
	"github.com/pro-grammer-SD/axiom/pkg/parser"
	"github.com/pro-grammer-SD/axiom/pkg/pkgmgr"
	"github.com/pro-grammer-SD/axiom/pkg/profiler"
	"github.com/pro-grammer-SD/axiom/pkg/source"
	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

var log = commonlog.GetLogger("axiom.driver")

// Axiom is one interpreter session. Evaluations share the global table,
// so a binding made in one Eval is visible to the next.
type Axiom struct {
	conf     *config.Store
	registry *builtins.Registry
	pkgs     *pkgmgr.Store
	prof     *profiler.Profiler
	baseDir  string

	globals      *vm.Globals
	table        *compiler.GlobalTable
	builtinCount int

	// Module state is shared with child sessions so that a cycle
	// anywhere in the load graph is caught.
	modules map[string]vm.Value
	loading map[string]bool
}

// New opens a session using the on-disk configuration.
func New() *Axiom {
	conf, err := config.Load()
	if err != nil {
		log.Warningf("config: %s", err.Error())
		conf = config.Defaults()
	}
	return NewWith(conf, ".")
}

// NewWith opens a session with explicit settings and a base directory
// for relative loads.
func NewWith(conf *config.Store, baseDir string) *Axiom {
	a := &Axiom{
		conf:     conf,
		registry: builtins.New(),
		pkgs:     pkgmgr.Open(),
		baseDir:  baseDir,
		globals:  vm.NewGlobals(),
		table:    compiler.NewGlobalTable(),
		modules:  make(map[string]vm.Value),
		loading:  make(map[string]bool),
	}
	if conf.Bool("profiling_enabled") {
		a.prof = profiler.New(vm.OpNames(), uint64(conf.Int("hot_threshold")))
	}
	a.defineBuiltins()
	return a
}

// child opens a session for a loaded module: fresh globals, shared
// configuration, builtins, and module state.
func (a *Axiom) child(baseDir string) *Axiom {
	c := &Axiom{
		conf:     a.conf,
		registry: a.registry,
		pkgs:     a.pkgs,
		prof:     a.prof,
		baseDir:  baseDir,
		globals:  vm.NewGlobals(),
		table:    compiler.NewGlobalTable(),
		modules:  a.modules,
		loading:  a.loading,
	}
	c.defineBuiltins()
	return c
}

func (a *Axiom) defineBuiltins() {
	for _, b := range a.registry.Globals() {
		idx := a.table.Define(b.Name)
		a.globals.Define(b.Name)
		a.globals.Set(idx, vm.Object(b))
	}
	a.builtinCount = a.globals.Len()
}

// SetOutput redirects print and friends, for tests and embedding.
func (a *Axiom) SetOutput(w io.Writer) { a.registry.Out = w }

// Register adds a host builtin to the session's globals.
func (a *Axiom) Register(name string, arity int, fn vm.BuiltinFn) {
	a.registry.Register(name, arity, fn)
	bs := a.registry.Globals()
	b := bs[len(bs)-1]
	idx := a.table.Define(b.Name)
	a.globals.Define(b.Name)
	a.globals.Set(idx, vm.Object(b))
	a.builtinCount = a.globals.Len()
}

// Profiler returns the session profiler, nil unless profiling_enabled.
func (a *Axiom) Profiler() *profiler.Profiler { return a.prof }

// GlobalNames lists every bound global, for REPL completion.
func (a *Axiom) GlobalNames() []string { return a.table.Names() }

// Eval runs a snippet, keeping its definitions for later calls.
func (a *Axiom) Eval(src string) (vm.Value, []*diagnostics.Diagnostic) {
	return a.EvalSource(source.NewReplSource(lexer.Normalize(src)))
}

// RunFile executes a script. The script's directory becomes the base
// for relative loads.
func (a *Axiom) RunFile(path string) (vm.Value, []*diagnostics.Diagnostic) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vm.Nil(), []*diagnostics.Diagnostic{
			diagnostics.NoSource(diagnostics.IoError, err.Error())}
	}
	a.baseDir = filepath.Dir(path)
	return a.EvalSource(source.FromFile(path, lexer.Normalize(string(data))))
}

// EvalSource runs one source unit inside the session.
func (a *Axiom) EvalSource(file *source.SourceFile) (vm.Value, []*diagnostics.Diagnostic) {
	p := parser.New(file)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) != 0 {
		return vm.Nil(), errs
	}
	if errs := checker.Check(file, prog, a.table.Names()); len(errs) != 0 {
		return vm.Nil(), errs
	}
	proto, errs := compiler.New(file, a.table).Compile(prog)
	if len(errs) != 0 {
		return vm.Nil(), errs
	}
	compiler.Optimize(proto, a.optimizeOptions())
	a.syncGlobals()
	in := a.newInterp()
	v, d := in.Run(proto)
	in.Wait()
	if d != nil {
		return vm.Nil(), []*diagnostics.Diagnostic{d}
	}
	return v, nil
}

// CheckFile parses, checks, and compiles a script without running it.
func (a *Axiom) CheckFile(path string) []*diagnostics.Diagnostic {
	data, err := os.ReadFile(path)
	if err != nil {
		return []*diagnostics.Diagnostic{
			diagnostics.NoSource(diagnostics.IoError, err.Error())}
	}
	a.baseDir = filepath.Dir(path)
	return a.CheckSource(source.FromFile(path, lexer.Normalize(string(data))))
}

// CheckSource is CheckFile for in-memory sources.
func (a *Axiom) CheckSource(file *source.SourceFile) []*diagnostics.Diagnostic {
	p := parser.New(file)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) != 0 {
		return errs
	}
	if errs := checker.Check(file, prog, a.table.Names()); len(errs) != 0 {
		return errs
	}
	_, errs := compiler.New(file, a.table).Compile(prog)
	return errs
}

// syncGlobals grows the runtime table to cover names the compiler
// defined. Slot order matches because both tables only ever append.
func (a *Axiom) syncGlobals() {
	for _, name := range a.table.Names()[a.globals.Len():] {
		a.globals.Define(name)
	}
}

// newInterp builds an interpreter over the session globals. Each run
// gets a fresh frame stack; the globals carry all persistent state.
func (a *Axiom) newInterp() *vm.Interp {
	opts := vm.DefaultOptions()
	opts.NanBoxing = a.conf.Bool("nan_boxing")
	opts.ICEnabled = a.conf.Bool("ic_enabled")
	opts.Quickening = a.conf.Bool("quickening")
	opts.MaxCallDepth = int(a.conf.Int("max_call_depth"))
	opts.HotThreshold = uint64(a.conf.Int("hot_threshold"))
	opts.Profiler = a.prof
	in := vm.New(opts, a.globals)
	in.SetImporter(a.importModule)
	return in
}

func (a *Axiom) optimizeOptions() compiler.OptimizeOptions {
	return compiler.OptimizeOptions{
		ConstantFolding:   a.conf.Bool("constant_folding"),
		Peephole:          a.conf.Bool("peephole_optimizer"),
		JumpThreading:     a.conf.Bool("jump_threading"),
		DeadCode:          a.conf.Bool("dead_code"),
		Superinstructions: a.conf.Bool("superinstructions"),
	}
}

// importModule resolves `import name` and `load "path"`. Built-in
// modules win, then installed packages, then local .ax files.
func (a *Axiom) importModule(name string) (vm.Value, *diagnostics.Diagnostic) {
	if m, ok := a.registry.Module(name); ok {
		return vm.Object(m), nil
	}
	path, key, d := a.resolveModule(name)
	if d != nil {
		return vm.Nil(), d
	}
	if mod, ok := a.modules[key]; ok {
		return mod, nil
	}
	if a.loading[key] {
		return vm.Nil(), diagnostics.NoSource(diagnostics.CircularImport,
			fmt.Sprintf("circular import of '%s'", name)).AtRuntime()
	}
	a.loading[key] = true
	defer delete(a.loading, key)
	mod, d := a.loadFileModule(name, path)
	if d != nil {
		return vm.Nil(), d
	}
	a.modules[key] = mod
	return mod, nil
}

func (a *Axiom) resolveModule(name string) (path, key string, d *diagnostics.Diagnostic) {
	if strings.HasSuffix(name, ".ax") {
		p := filepath.FromSlash(name)
		if !filepath.IsAbs(p) {
			p = filepath.Join(a.baseDir, p)
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if _, err := os.Stat(p); err != nil {
			return "", "", diagnostics.NoSource(diagnostics.ModuleNotFound,
				fmt.Sprintf("no source file '%s'", name)).AtRuntime()
		}
		return p, p, nil
	}
	if entry, ok := a.pkgs.Resolve(name); ok {
		return entry, "pkg:" + name, nil
	}
	local := filepath.Join(a.baseDir, name+".ax")
	if abs, err := filepath.Abs(local); err == nil {
		local = abs
	}
	if _, err := os.Stat(local); err == nil {
		return local, local, nil
	}
	return "", "", diagnostics.NoSource(diagnostics.ModuleNotFound,
		fmt.Sprintf("module '%s' is not built in, installed, or a local file", name)).
		WithHelp("built-in modules are mth and str; install packages with 'axiom pkg add'").
		AtRuntime()
}

// loadFileModule runs a module in a child session and wraps its
// top-level bindings as exports.
func (a *Axiom) loadFileModule(name, path string) (vm.Value, *diagnostics.Diagnostic) {
	log.Debugf("loading module '%s' from %s", name, path)
	data, err := os.ReadFile(path)
	if err != nil {
		return vm.Nil(), diagnostics.NoSource(diagnostics.IoError,
			fmt.Sprintf("reading module '%s': %v", name, err)).AtRuntime()
	}
	child := a.child(filepath.Dir(path))
	_, errs := child.EvalSource(source.FromFile(path, lexer.Normalize(string(data))))
	if len(errs) != 0 {
		first := errs[0]
		if first.Runtime {
			return vm.Nil(), first
		}
		return vm.Nil(), diagnostics.NoSource(diagnostics.ModuleHasErrors,
			fmt.Sprintf("module '%s' contains errors", name)).
			WithHelp(first.Error()).AtRuntime()
	}
	exports := make(map[string]vm.Value)
	names := child.table.Names()
	for i := child.builtinCount; i < len(names); i++ {
		exports[names[i]] = child.globals.Get(i)
	}
	short := strings.TrimSuffix(filepath.Base(path), ".ax")
	return vm.Object(&vm.ModuleObj{Name: short, Exports: exports}), nil
}
