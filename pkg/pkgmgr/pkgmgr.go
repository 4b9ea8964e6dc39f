// Package pkgmgr implements the library store behind `axiom pkg`.
// Packages are directories of .ax sources described by an Axiomite.toml
// manifest, installed under $AXIOM_LIBS (default ~/.axiom/libs).
package pkgmgr

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/pro-grammer-SD/axiom/pkg/config"
)

// ManifestName is the manifest file every package carries.
const ManifestName = "Axiomite.toml"

// Manifest mirrors Axiomite.toml.
type Manifest struct {
	Package struct {
		Name        string `toml:"name"`
		Version     string `toml:"version"`
		Description string `toml:"description"`
		Author      string `toml:"author"`
		Entry       string `toml:"entry"`
	} `toml:"package"`
	Dependencies map[string]string `toml:"dependencies"`
}

var (
	nameRe    = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	versionRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// Validate checks the fields a manifest must carry.
func (m *Manifest) Validate() error {
	if m.Package.Name == "" {
		return fmt.Errorf("%s: package.name is required", ManifestName)
	}
	if !nameRe.MatchString(m.Package.Name) {
		return fmt.Errorf("%s: invalid package name '%s'", ManifestName, m.Package.Name)
	}
	if m.Package.Version == "" {
		return fmt.Errorf("%s: package.version is required", ManifestName)
	}
	if !versionRe.MatchString(m.Package.Version) {
		return fmt.Errorf("%s: version '%s' is not MAJOR.MINOR.PATCH", ManifestName, m.Package.Version)
	}
	return nil
}

// Entry returns the package's entry source file, default main.ax.
func (m *Manifest) Entry() string {
	if m.Package.Entry != "" {
		return m.Package.Entry
	}
	return "main.ax"
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Store is an installed-package directory.
type Store struct {
	root string
}

// Root returns the store directory, honoring AXIOM_LIBS.
func Root() string {
	if libs := os.Getenv("AXIOM_LIBS"); libs != "" {
		return libs
	}
	return filepath.Join(config.Dir(), "libs")
}

// Open opens the default store.
func Open() *Store { return OpenAt(Root()) }

// OpenAt opens a store rooted at an explicit directory.
func OpenAt(root string) *Store { return &Store{root: root} }

func (s *Store) dirFor(name string) string { return filepath.Join(s.root, name) }

// Add installs the package found in dir. Installing a different version
// of an already-installed package is a conflict; reinstalling the same
// version replaces it.
func (s *Store) Add(dir string) (*Manifest, error) {
	m, err := LoadManifest(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	if installed, err := s.Info(m.Package.Name); err == nil {
		if installed.Package.Version != m.Package.Version {
			return nil, fmt.Errorf("version conflict: %s %s is installed, refusing %s",
				m.Package.Name, installed.Package.Version, m.Package.Version)
		}
		if err := s.Remove(m.Package.Name); err != nil {
			return nil, err
		}
	}
	dst := s.dirFor(m.Package.Name)
	if err := copyPackage(dir, dst); err != nil {
		os.RemoveAll(dst)
		return nil, err
	}
	return m, nil
}

// Remove uninstalls a package.
func (s *Store) Remove(name string) error {
	dir := s.dirFor(name)
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
		return fmt.Errorf("package '%s' is not installed", name)
	}
	return os.RemoveAll(dir)
}

// List returns the manifests of all installed packages, sorted by name.
func (s *Store) List() ([]*Manifest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := LoadManifest(filepath.Join(s.root, e.Name(), ManifestName))
		if err != nil {
			continue // not a package dir
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Package.Name < out[j].Package.Name })
	return out, nil
}

// Info returns the manifest of one installed package.
func (s *Store) Info(name string) (*Manifest, error) {
	m, err := LoadManifest(filepath.Join(s.dirFor(name), ManifestName))
	if err != nil {
		return nil, fmt.Errorf("package '%s' is not installed", name)
	}
	return m, nil
}

// Resolve returns the entry source path of an installed package, for
// the module loader.
func (s *Store) Resolve(name string) (string, bool) {
	m, err := s.Info(name)
	if err != nil {
		return "", false
	}
	entry := filepath.Join(s.dirFor(name), m.Entry())
	if _, err := os.Stat(entry); err != nil {
		return "", false
	}
	return entry, true
}

// copyPackage copies the manifest and .ax sources, preserving the
// directory layout.
func copyPackage(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if rel != ManifestName && !strings.HasSuffix(rel, ".ax") {
			return nil
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}
