package compiler

// Symbol is one named binding visible to the compiler.
type Symbol struct {
	Name        string
	Register    Register // valid for locals
	IsGlobal    bool
	GlobalIndex uint16
	Captured    bool // a nested closure reads this local through an upvalue
}

// SymbolTable manages the bindings of a single block scope. Tables chain
// through Outer within one function; resolution across function
// boundaries goes through the compiler's upvalue machinery instead.
type SymbolTable struct {
	Outer *SymbolTable
	store map[string]*Symbol
	order []string
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{store: make(map[string]*Symbol)}
}

func NewEnclosedSymbolTable(outer *SymbolTable) *SymbolTable {
	return &SymbolTable{Outer: outer, store: make(map[string]*Symbol)}
}

// Define adds a local bound to a register in this scope.
func (st *SymbolTable) Define(name string, reg Register) *Symbol {
	sym := &Symbol{Name: name, Register: reg}
	st.store[name] = sym
	st.order = append(st.order, name)
	return sym
}

// DefineGlobal adds a binding that lives in the global table.
func (st *SymbolTable) DefineGlobal(name string, index uint16) *Symbol {
	sym := &Symbol{Name: name, IsGlobal: true, GlobalIndex: index}
	st.store[name] = sym
	st.order = append(st.order, name)
	return sym
}

// Resolve walks from this scope outward through the enclosing block
// scopes of the same function.
func (st *SymbolTable) Resolve(name string) (*Symbol, bool) {
	for t := st; t != nil; t = t.Outer {
		if sym, ok := t.store[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// Locals returns the symbols defined in this scope, in declaration order.
func (st *SymbolTable) Locals() []*Symbol {
	out := make([]*Symbol, 0, len(st.order))
	for _, name := range st.order {
		out = append(out, st.store[name])
	}
	return out
}

// VisibleNames collects every name reachable from this scope, for
// "did you mean" suggestions.
func (st *SymbolTable) VisibleNames() []string {
	var out []string
	for t := st; t != nil; t = t.Outer {
		out = append(out, t.order...)
	}
	return out
}

// GlobalTable assigns stable indices to global bindings. It is shared
// across compilations of one session so the REPL keeps earlier
// definitions visible.
type GlobalTable struct {
	indices map[string]int
	names   []string
}

func NewGlobalTable() *GlobalTable {
	return &GlobalTable{indices: make(map[string]int)}
}

// Define returns the index for a name, assigning the next slot on first
// definition.
func (g *GlobalTable) Define(name string) int {
	if idx, ok := g.indices[name]; ok {
		return idx
	}
	idx := len(g.names)
	g.indices[name] = idx
	g.names = append(g.names, name)
	return idx
}

func (g *GlobalTable) Resolve(name string) (int, bool) {
	idx, ok := g.indices[name]
	return idx, ok
}

func (g *GlobalTable) Names() []string { return g.names }
func (g *GlobalTable) Count() int      { return len(g.names) }
