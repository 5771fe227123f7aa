package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), `
[project]
name = "test-app"
version = "0.1.0"

[source]
dirs = ["src", "lib"]

[build]
output = "out"
strip-debug = true
listing = true
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Build.Output != "out" {
		t.Errorf("build output = %q, want out", m.Build.Output)
	}
	if !m.Build.StripDebug {
		t.Error("build strip-debug = false, want true")
	}
	if !m.Build.Listing {
		t.Error("build listing = false, want true")
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Build.Output != "build" {
		t.Errorf("default output = %q, want build", m.Build.Output)
	}
	if m.Build.StripDebug || m.Build.Listing {
		t.Errorf("default build = %+v, want no strip and no listing", m.Build)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[project\nname = 1", "parse error"},
		{"type", "[project]\nname = 1", "parse error"},
		{"unknown key", "[build]\noptimize = true", "unknown keys"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, FileName), tc.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want it to contain %q", err, tc.want)
			}
		})
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of a directory without a manifest succeeded")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, FileName), `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no luma.toml exists")
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"src", "lib"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/src" {
		t.Errorf("paths[0] = %q, want /app/src", paths[0])
	}
	if paths[1] != "/app/lib" {
		t.Errorf("paths[1] = %q, want /app/lib", paths[1])
	}
}

func TestSourceFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "main.luma"), "return 1")
	writeFile(t, filepath.Join(dir, "src", "util", "str.luma"), "return 2")
	writeFile(t, filepath.Join(dir, "src", "README.md"), "docs")
	writeFile(t, filepath.Join(dir, "lib", "a.luma"), "return 3")

	m := &Manifest{Dir: dir, Source: Source{Dirs: []string{"src", "lib"}}}
	files, err := m.SourceFiles()
	if err != nil {
		t.Fatalf("SourceFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "lib", "a.luma"),
		filepath.Join(dir, "src", "main.luma"),
		filepath.Join(dir, "src", "util", "str.luma"),
	}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}

	m.Source.Dirs = []string{"missing"}
	if _, err := m.SourceFiles(); err == nil {
		t.Error("SourceFiles with a missing directory succeeded")
	}
}

func TestImagePath(t *testing.T) {
	m := &Manifest{
		Dir:    "/app",
		Source: Source{Dirs: []string{"src"}},
		Build:  Build{Output: "build"},
	}

	tests := []struct {
		src  string
		want string
	}{
		{"/app/src/main.luma", "/app/build/main.luac"},
		{"/app/src/util/str.luma", "/app/build/util/str.luac"},
		{"/elsewhere/x.luma", "/app/build/x.luac"},
	}
	for _, tc := range tests {
		if got := m.ImagePath(tc.src); got != tc.want {
			t.Errorf("ImagePath(%q) = %q, want %q", tc.src, got, tc.want)
		}
	}

	m.Build.Output = "/tmp/out"
	if got := m.OutputDir(); got != "/tmp/out" {
		t.Errorf("OutputDir() = %q, want /tmp/out", got)
	}
}

func TestBuildRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build", RecordFileName)

	r := &BuildRecord{
		StripDebug: true,
		Images: []ImageRecord{
			{Source: "/app/src/main.luma", Image: "/app/build/main.luac", SourceHash: "aa", ImageHash: "bb"},
			{Source: "/app/src/b.luma", Image: "/app/build/b.luac", SourceHash: "cc", ImageHash: "dd"},
		},
	}
	if err := WriteRecord(path, r); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	loaded, err := ReadRecord(path)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if !loaded.StripDebug {
		t.Error("StripDebug = false, want true")
	}
	if len(loaded.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(loaded.Images))
	}

	found := loaded.Find("/app/src/b.luma")
	if found == nil || found.ImageHash != "dd" {
		t.Errorf("Find(b.luma) = %v, want image hash dd", found)
	}
	if loaded.Find("/app/src/none.luma") != nil {
		t.Error("Find of an unknown source returned a record")
	}
}

func TestReadRecordNotFound(t *testing.T) {
	r, err := ReadRecord(filepath.Join(t.TempDir(), RecordFileName))
	if err != nil {
		t.Errorf("ReadRecord should return nil,nil for missing file, got err: %v", err)
	}
	if r != nil {
		t.Errorf("ReadRecord should return nil for missing file, got %v", r)
	}
	if r.Find("x") != nil {
		t.Error("Find on a nil record returned a record")
	}
}
