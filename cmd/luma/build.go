package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/luma/compiler"
	"github.com/chazu/luma/manifest"
	"github.com/chazu/luma/vm"
)

var log = commonlog.GetLogger("luma.build")

// compileFile compiles one source file in file mode.
var compileFile = compiler.CompileFile

// buildOptions are the command line switches shared by file and project
// builds. Manifest settings are or-ed in for project builds.
type buildOptions struct {
	strip     bool
	listing   bool
	parseOnly bool
	verbose   bool
}

// imagePath returns the default image path for a source file.
func imagePath(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + ".luac"
}

// compileFiles compiles each path and writes its image next to it, or to
// output when exactly one path is given. All failures are reported.
func compileFiles(paths []string, output string, opts buildOptions, w io.Writer) error {
	if output != "" && len(paths) > 1 {
		return errors.New("-o requires a single input file")
	}

	var errs []error
	for _, path := range paths {
		out := output
		if out == "" {
			out = imagePath(path)
		}

		proto, err := guard(path, func() (*vm.Prototype, error) {
			return compileFile(path, compiler.Options{StripDebug: opts.strip})
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := emit(proto, out, opts, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildProject compiles the sources of m into its output directory,
// skipping sources unchanged since the last build, and rewrites the build
// record.
func buildProject(m *manifest.Manifest, opts buildOptions, w io.Writer) error {
	opts.strip = opts.strip || m.Build.StripDebug
	opts.listing = opts.listing || m.Build.Listing

	files, err := m.SourceFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no %s files in %s", manifest.SourceExt, strings.Join(m.Source.Dirs, ", "))
	}

	prev, err := manifest.ReadRecord(m.RecordPath())
	if err != nil {
		log.Warningf("ignoring build record: %s", err)
		prev = nil
	}
	if prev != nil && prev.StripDebug != opts.strip {
		prev = nil
	}

	record := &manifest.BuildRecord{StripDebug: opts.strip}
	var errs []error
	compiled := 0
	for _, src := range files {
		data, err := os.ReadFile(src)
		if err != nil {
			errs = append(errs, fmt.Errorf("cannot read %s: %w", src, err))
			continue
		}
		sum := sha256.Sum256(data)
		srcHash := hex.EncodeToString(sum[:])
		out := m.ImagePath(src)

		if old := prev.Find(src); old != nil && !opts.listing && !opts.parseOnly && old.SourceHash == srcHash && old.Image == out && exists(out) {
			log.Debugf("%s is up to date", src)
			record.Images = append(record.Images, *old)
			continue
		}

		proto, err := guard(src, func() (*vm.Prototype, error) {
			return compiler.Compile(string(data), "@"+relativeTo(m.Dir, src), compiler.Options{StripDebug: opts.strip})
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := emit(proto, out, opts, w); err != nil {
			errs = append(errs, err)
			continue
		}
		compiled++

		imgHash, err := vm.Hash(proto)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		record.Images = append(record.Images, manifest.ImageRecord{
			Source:     src,
			Image:      out,
			SourceHash: srcHash,
			ImageHash:  hex.EncodeToString(imgHash[:]),
		})
	}

	if opts.verbose {
		name := m.Project.Name
		if name == "" {
			name = filepath.Base(m.Dir)
		}
		fmt.Fprintf(w, "%s: %d compiled, %d up to date, %d failed\n",
			name, compiled, len(record.Images)-compiled, len(errs))
	}

	if !opts.parseOnly {
		if err := manifest.WriteRecord(m.RecordPath(), record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// guard runs compile and turns a code generator failure into an error, so
// that only the unit being compiled is abandoned.
func guard(name string, compile func() (*vm.Prototype, error)) (proto *vm.Prototype, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*compiler.InternalError)
			if !ok {
				panic(r)
			}
			log.Errorf("%s: %s", name, ie.Msg)
			proto, err = nil, fmt.Errorf("%s: %w", name, ie)
		}
	}()
	return compile()
}

// emit prints the listing of proto if requested and writes its image to
// out unless only parsing.
func emit(proto *vm.Prototype, out string, opts buildOptions, w io.Writer) error {
	if opts.listing {
		fmt.Fprint(w, vm.Disassemble(proto))
	}
	if opts.parseOnly {
		return nil
	}

	data, err := vm.MarshalImage(proto)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", out, err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(out), err)
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", out, err)
	}
	log.Infof("wrote %s (%d bytes)", out, len(data))
	if opts.verbose {
		fmt.Fprintf(w, "%s -> %s\n", vm.ChunkID(proto.Source), out)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// relativeTo returns path relative to dir when it lies inside it.
func relativeTo(dir, path string) string {
	if r, err := filepath.Rel(dir, path); err == nil && !strings.HasPrefix(r, "..") {
		return r
	}
	return path
}
