// Package manifest handles luma.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project manifest.
const FileName = "luma.toml"

// SourceExt is the extension of source files collected from the source dirs.
const SourceExt = ".luma"

// Manifest represents a luma.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Source  Source  `toml:"source"`
	Build   Build   `toml:"build"`

	// Dir is the directory containing the luma.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs []string `toml:"dirs"`
}

// Build configures compilation output.
type Build struct {
	Output     string `toml:"output"`
	StripDebug bool   `toml:"strip-debug"`
	Listing    bool   `toml:"listing"`
}

// Load parses a luma.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Build.Output == "" {
		m.Build.Output = "build"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a luma.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// OutputDir returns the absolute path of the build output directory.
func (m *Manifest) OutputDir() string {
	if filepath.IsAbs(m.Build.Output) {
		return m.Build.Output
	}
	return filepath.Join(m.Dir, m.Build.Output)
}

// SourceFiles returns every source file under the source directories,
// sorted. A missing source directory is an error.
func (m *Manifest) SourceFiles() ([]string, error) {
	var files []string
	for _, dir := range m.SourceDirPaths() {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == SourceExt {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// ImagePath returns where the compiled image of src is written: the path
// of src relative to its source directory, under the output directory,
// with the ".luac" extension.
func (m *Manifest) ImagePath(src string) string {
	rel := filepath.Base(src)
	for _, dir := range m.SourceDirPaths() {
		if r, err := filepath.Rel(dir, src); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
			break
		}
	}
	return filepath.Join(m.OutputDir(), strings.TrimSuffix(rel, filepath.Ext(rel))+".luac")
}
