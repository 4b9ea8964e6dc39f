// Package builtins provides the host interface: native functions and
// module namespaces exposed to Axiom programs.
package builtins

import (
	"io"
	"os"

	"github.com/pro-grammer-SD/axiom/pkg/vm"
)

// Registry collects the globals and module namespaces a session exposes.
type Registry struct {
	Out     io.Writer
	globals []*vm.BuiltinObj
	modules map[string]*vm.ModuleObj
}

// New creates a registry with the core globals. Output defaults to
// stdout; tests point it elsewhere.
func New() *Registry {
	r := &Registry{
		Out:     os.Stdout,
		modules: make(map[string]*vm.ModuleObj),
	}
	r.registerCore()
	r.RegisterModule(mathModule())
	r.RegisterModule(stringsModule())
	r.RegisterModule(setsModule())
	return r
}

// Register adds a global native function. Arity -1 means variadic.
func (r *Registry) Register(name string, arity int, fn vm.BuiltinFn) {
	r.globals = append(r.globals, &vm.BuiltinObj{Name: name, Arity: arity, Fn: fn})
}

// RegisterModule adds an importable namespace.
func (r *Registry) RegisterModule(m *vm.ModuleObj) {
	r.modules[m.Name] = m
}

// Globals returns the registered global functions in definition order.
func (r *Registry) Globals() []*vm.BuiltinObj { return r.globals }

// Module looks up an importable namespace by name.
func (r *Registry) Module(name string) (*vm.ModuleObj, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// module builds a ModuleObj from builtin definitions.
type export struct {
	name  string
	arity int
	fn    vm.BuiltinFn
}

func module(name string, consts map[string]vm.Value, exports []export) *vm.ModuleObj {
	m := &vm.ModuleObj{Name: name, Exports: make(map[string]vm.Value)}
	for k, v := range consts {
		m.Exports[k] = v
	}
	for _, e := range exports {
		m.Exports[e.name] = vm.Object(&vm.BuiltinObj{
			Name:  name + "." + e.name,
			Arity: e.arity,
			Fn:    e.fn,
		})
	}
	return m
}
