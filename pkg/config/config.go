// Package config manages the persistent engine settings stored in
// ~/.axiom/conf.txt. The file is plain key=value lines with # comments.
// Unknown keys are ignored when loading, so configs written by newer
// versions still load, but Set rejects them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// PropKind is the value type of a property.
type PropKind int

const (
	KindBool PropKind = iota
	KindInt
)

// Property describes one tunable setting.
type Property struct {
	Name     string
	Kind     PropKind
	Default  string
	Min, Max int64 // int range, inclusive
	Desc     string
}

var properties = []Property{
	{Name: "nan_boxing", Kind: KindBool, Default: "off",
		Desc: "represent values as NaN-boxed 64-bit words"},
	{Name: "ic_enabled", Kind: KindBool, Default: "on",
		Desc: "enable inline caches for property and call sites"},
	{Name: "gc_enabled", Kind: KindBool, Default: "on",
		Desc: "enable garbage collection (off is a benchmark-only mode)"},
	{Name: "peephole_optimizer", Kind: KindBool, Default: "on",
		Desc: "enable the bytecode optimizer"},
	{Name: "profiling_enabled", Kind: KindBool, Default: "off",
		Desc: "collect opcode, call and allocation profiles"},
	{Name: "quickening", Kind: KindBool, Default: "on",
		Desc: "rewrite stable arithmetic sites to typed opcodes"},
	{Name: "quicken_threshold", Kind: KindInt, Default: "16", Min: 1, Max: 10000,
		Desc: "stable executions before a site is quickened"},
	{Name: "poly_ic_size", Kind: KindInt, Default: "4", Min: 1, Max: 16,
		Desc: "shapes a property cache holds before going megamorphic"},
	{Name: "hot_threshold", Kind: KindInt, Default: "100", Min: 1, Max: 1000000000,
		Desc: "back-edge count that marks a loop hot"},
	{Name: "max_call_depth", Kind: KindInt, Default: "500", Min: 16, Max: 65536,
		Desc: "call frames before AXM_408 stack overflow"},
	{Name: "register_count", Kind: KindInt, Default: "256", Min: 64, Max: 256,
		Desc: "registers available per call frame"},
	{Name: "constant_folding", Kind: KindBool, Default: "on",
		Desc: "fold compile-time-known arithmetic"},
	{Name: "dead_code", Kind: KindBool, Default: "on",
		Desc: "remove unreachable bytecode"},
	{Name: "jump_threading", Kind: KindBool, Default: "on",
		Desc: "retarget jumps that land on other jumps"},
	{Name: "superinstructions", Kind: KindBool, Default: "on",
		Desc: "fuse common instruction pairs"},
	{Name: "flame_graph", Kind: KindBool, Default: "off",
		Desc: "export folded-stacks profile data on exit"},
}

var propIndex = func() map[string]*Property {
	m := make(map[string]*Property, len(properties))
	for i := range properties {
		m[properties[i].Name] = &properties[i]
	}
	return m
}()

// Properties returns all known properties sorted by name.
func Properties() []Property {
	out := make([]Property, len(properties))
	copy(out, properties)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Describe returns the property definition for a name.
func Describe(name string) (Property, bool) {
	p, ok := propIndex[name]
	if !ok {
		return Property{}, false
	}
	return *p, true
}

// ParseBool accepts the on|off|true|false|yes|no|1|0 forms.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1":
		return true, true
	case "off", "false", "no", "0":
		return false, true
	}
	return false, false
}

// Dir returns the settings directory, honoring AXIOM_HOME.
func Dir() string {
	if home := os.Getenv("AXIOM_HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".axiom"
	}
	return filepath.Join(home, ".axiom")
}

// Path returns the settings file path.
func Path() string { return filepath.Join(Dir(), "conf.txt") }

// Store holds the loaded settings. Only values differing from their
// defaults are written back to disk.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	path   string
}

// Defaults returns a store with every property at its default value.
func Defaults() *Store {
	return &Store{values: make(map[string]string), path: Path()}
}

// Load reads the settings file. A missing file yields a store of
// defaults. Unknown keys and malformed values are skipped.
func Load() (*Store, error) {
	return LoadFrom(Path())
}

// LoadFrom reads settings from an explicit path.
func LoadFrom(path string) (*Store, error) {
	s := &Store{values: make(map[string]string), path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		prop, known := propIndex[key]
		if !known || validate(prop, value) != nil {
			continue
		}
		s.values[key] = canonical(prop, value)
	}
	return s, nil
}

func validate(p *Property, value string) error {
	switch p.Kind {
	case KindBool:
		if _, ok := ParseBool(value); !ok {
			return fmt.Errorf("'%s' expects on or off, got '%s'", p.Name, value)
		}
	case KindInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("'%s' expects an integer, got '%s'", p.Name, value)
		}
		if n < p.Min || n > p.Max {
			return fmt.Errorf("'%s' must be between %d and %d, got %d", p.Name, p.Min, p.Max, n)
		}
	}
	return nil
}

// canonical normalizes a valid value to its stored form: on/off for
// bools, the decimal digits for ints.
func canonical(p *Property, value string) string {
	if p.Kind == KindBool {
		b, _ := ParseBool(value)
		if b {
			return "on"
		}
		return "off"
	}
	return strings.TrimSpace(value)
}

// Get returns the effective value for a name, falling back to the
// default. The second return is false for unknown names.
func (s *Store) Get(name string) (string, bool) {
	prop, ok := propIndex[name]
	if !ok {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, set := s.values[name]; set {
		return v, true
	}
	return prop.Default, true
}

// Set validates and stores a value. Unknown names and out-of-range
// values are rejected.
func (s *Store) Set(name, value string) error {
	prop, ok := propIndex[name]
	if !ok {
		return fmt.Errorf("unknown property '%s'", name)
	}
	if err := validate(prop, value); err != nil {
		return err
	}
	s.mu.Lock()
	s.values[name] = canonical(prop, value)
	s.mu.Unlock()
	return nil
}

// Reset drops a stored value, reverting the property to its default.
func (s *Store) Reset(name string) error {
	if _, ok := propIndex[name]; !ok {
		return fmt.Errorf("unknown property '%s'", name)
	}
	s.mu.Lock()
	delete(s.values, name)
	s.mu.Unlock()
	return nil
}

// ResetAll reverts every property to its default.
func (s *Store) ResetAll() {
	s.mu.Lock()
	s.values = make(map[string]string)
	s.mu.Unlock()
}

// Bool returns the effective boolean value of a property. Calling it
// for an unknown or non-bool property returns false.
func (s *Store) Bool(name string) bool {
	v, ok := s.Get(name)
	if !ok {
		return false
	}
	b, _ := ParseBool(v)
	return b
}

// Int returns the effective integer value of a property.
func (s *Store) Int(name string) int64 {
	v, ok := s.Get(name)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

// Save writes the non-default settings back to the store's file,
// creating the directory if needed.
func (s *Store) Save() error {
	s.mu.RLock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("# axiom engine settings\n")
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%s\n", name, s.values[name])
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(b.String()), 0o644)
}
