package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := LoadFrom(filepath.Join(t.TempDir(), "conf.txt"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDefaultsWithoutFile(t *testing.T) {
	s := tempStore(t)
	if !s.Bool("ic_enabled") {
		t.Error("ic_enabled should default on")
	}
	if s.Bool("nan_boxing") {
		t.Error("nan_boxing should default off")
	}
	if got := s.Int("max_call_depth"); got != 500 {
		t.Errorf("max_call_depth = %d, want 500", got)
	}
	if got := s.Int("quicken_threshold"); got != 16 {
		t.Errorf("quicken_threshold = %d, want 16", got)
	}
}

func TestBoolForms(t *testing.T) {
	for _, v := range []string{"on", "true", "yes", "1", "On", "TRUE"} {
		if b, ok := ParseBool(v); !ok || !b {
			t.Errorf("ParseBool(%q) = %v, %v", v, b, ok)
		}
	}
	for _, v := range []string{"off", "false", "no", "0"} {
		if b, ok := ParseBool(v); !ok || b {
			t.Errorf("ParseBool(%q) = %v, %v", v, b, ok)
		}
	}
	if _, ok := ParseBool("maybe"); ok {
		t.Error("ParseBool accepted garbage")
	}
}

func TestSetValidation(t *testing.T) {
	s := tempStore(t)

	if err := s.Set("nan_boxing", "on"); err != nil {
		t.Fatal(err)
	}
	if !s.Bool("nan_boxing") {
		t.Error("set value not visible")
	}

	if err := s.Set("no_such_key", "1"); err == nil {
		t.Error("unknown key accepted")
	}
	if err := s.Set("max_call_depth", "8"); err == nil {
		t.Error("below-range value accepted")
	}
	if err := s.Set("max_call_depth", "70000"); err == nil {
		t.Error("above-range value accepted")
	}
	if err := s.Set("ic_enabled", "sideways"); err == nil {
		t.Error("bad bool accepted")
	}
}

func TestCanonicalStorage(t *testing.T) {
	s := tempStore(t)
	if err := s.Set("quickening", "YES"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get("quickening"); v != "on" {
		t.Errorf("stored form = %q, want on", v)
	}
}

func TestResetRevertsToDefault(t *testing.T) {
	s := tempStore(t)
	if err := s.Set("hot_threshold", "250"); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset("hot_threshold"); err != nil {
		t.Fatal(err)
	}
	if got := s.Int("hot_threshold"); got != 100 {
		t.Errorf("after reset = %d, want 100", got)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.txt")
	s, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("nan_boxing", "on"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("max_call_depth", "1000"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.Bool("nan_boxing") {
		t.Error("nan_boxing lost across save/load")
	}
	if got := reloaded.Int("max_call_depth"); got != 1000 {
		t.Errorf("max_call_depth = %d, want 1000", got)
	}
	// Defaults are not persisted.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "ic_enabled") {
		t.Error("default value written to disk")
	}
}

func TestLoadSkipsJunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.txt")
	content := strings.Join([]string{
		"# comment",
		"",
		"future_knob=banana",
		"max_call_depth=notanumber",
		"hot_threshold=0",
		"quickening = off ",
		"no equals sign here",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Bool("quickening") {
		t.Error("quickening=off not honored")
	}
	if got := s.Int("max_call_depth"); got != 500 {
		t.Errorf("bad value should fall back to default, got %d", got)
	}
	if got := s.Int("hot_threshold"); got != 100 {
		t.Errorf("out-of-range value should fall back to default, got %d", got)
	}
}

func TestDirHonorsAxiomHome(t *testing.T) {
	t.Setenv("AXIOM_HOME", "/tmp/axiom-test-home")
	if got := Dir(); got != "/tmp/axiom-test-home" {
		t.Errorf("Dir() = %q", got)
	}
	if got := Path(); got != filepath.Join("/tmp/axiom-test-home", "conf.txt") {
		t.Errorf("Path() = %q", got)
	}
}

func TestDescribe(t *testing.T) {
	p, ok := Describe("poly_ic_size")
	if !ok {
		t.Fatal("poly_ic_size unknown")
	}
	if p.Kind != KindInt || p.Min != 1 || p.Max != 16 || p.Default != "4" {
		t.Errorf("unexpected definition: %+v", p)
	}
	if _, ok := Describe("bogus"); ok {
		t.Error("Describe accepted unknown name")
	}
}
