package pkgmgr

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func makePackage(t *testing.T, name, version string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	writeFile(t, filepath.Join(dir, ManifestName),
		"[package]\nname = \""+name+"\"\nversion = \""+version+"\"\ndescription = \"test pkg\"\n")
	writeFile(t, filepath.Join(dir, "main.ax"), "fn hello() {\n    ret \"hi\"\n}\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "should not be copied")
	return dir
}

func TestAddListInfoRemove(t *testing.T) {
	store := OpenAt(t.TempDir())
	dir := makePackage(t, "geometry", "1.2.0")

	m, err := store.Add(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.Package.Name != "geometry" {
		t.Errorf("name = %q", m.Package.Name)
	}

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Package.Version != "1.2.0" {
		t.Fatalf("list = %+v", list)
	}

	info, err := store.Info("geometry")
	if err != nil {
		t.Fatal(err)
	}
	if info.Package.Description != "test pkg" {
		t.Errorf("description = %q", info.Package.Description)
	}

	if err := store.Remove("geometry"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Info("geometry"); err == nil {
		t.Error("info succeeded after remove")
	}
}

func TestAddCopiesOnlySourcesAndManifest(t *testing.T) {
	root := t.TempDir()
	store := OpenAt(root)
	if _, err := store.Add(makePackage(t, "demo", "0.1.0")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "demo", "main.ax")); err != nil {
		t.Error("main.ax not installed")
	}
	if _, err := os.Stat(filepath.Join(root, "demo", "notes.txt")); err == nil {
		t.Error("non-source file installed")
	}
}

func TestVersionConflict(t *testing.T) {
	store := OpenAt(t.TempDir())
	if _, err := store.Add(makePackage(t, "dup", "1.0.0")); err != nil {
		t.Fatal(err)
	}
	// Same version reinstalls quietly.
	if _, err := store.Add(makePackage(t, "dup", "1.0.0")); err != nil {
		t.Errorf("reinstall of same version failed: %v", err)
	}
	// Different version conflicts.
	if _, err := store.Add(makePackage(t, "dup", "2.0.0")); err == nil {
		t.Error("conflicting version accepted")
	}
}

func TestManifestValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing name", "[package]\nversion = \"1.0.0\"\n"},
		{"missing version", "[package]\nname = \"x\"\n"},
		{"bad version", "[package]\nname = \"x\"\nversion = \"one\"\n"},
		{"bad name", "[package]\nname = \"Not-Valid\"\nversion = \"1.0.0\"\n"},
		{"not toml", "{\"name\": \"x\"}"},
	}
	for _, tc := range cases {
		path := filepath.Join(t.TempDir(), ManifestName)
		writeFile(t, path, tc.content)
		if _, err := LoadManifest(path); err == nil {
			t.Errorf("%s: accepted", tc.name)
		}
	}
}

func TestManifestDependencies(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestName)
	writeFile(t, path, `
[package]
name = "app"
version = "0.2.1"

[dependencies]
geometry = "1.2.0"
strings_extra = "0.3.0"
`)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Dependencies["geometry"] != "1.2.0" {
		t.Errorf("deps = %+v", m.Dependencies)
	}
}

func TestResolveEntry(t *testing.T) {
	store := OpenAt(t.TempDir())
	if _, err := store.Add(makePackage(t, "geometry", "1.0.0")); err != nil {
		t.Fatal(err)
	}
	entry, ok := store.Resolve("geometry")
	if !ok {
		t.Fatal("entry not resolved")
	}
	if filepath.Base(entry) != "main.ax" {
		t.Errorf("entry = %q", entry)
	}
	if _, ok := store.Resolve("nope"); ok {
		t.Error("resolved a missing package")
	}
}

func TestRootHonorsAxiomLibs(t *testing.T) {
	t.Setenv("AXIOM_LIBS", "/tmp/axiom-libs-test")
	if got := Root(); got != "/tmp/axiom-libs-test" {
		t.Errorf("Root() = %q", got)
	}
}
