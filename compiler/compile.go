package compiler

import (
	"fmt"
	"os"
	"strings"

	"github.com/chazu/luma/vm"
)

// ---------------------------------------------------------------------------
// Compile helpers for external use
// ---------------------------------------------------------------------------

// Options controls a compilation.
type Options struct {
	// StripDebug drops line info, local variable records and upvalue
	// names from the result.
	StripDebug bool
}

// Compile compiles a chunk of source into the prototype of its main
// function. chunkName names the chunk in messages; when empty the source
// itself is used.
func Compile(source, chunkName string, opts Options) (*vm.Prototype, error) {
	if chunkName == "" {
		chunkName = source
	}
	proto, err := NewParser(source, chunkName).Parse()
	if err != nil {
		return nil, err
	}
	if opts.StripDebug {
		proto = proto.Strip()
	}
	return proto, nil
}

// CompileFile compiles the file at path. The chunk is named "@path".
func CompileFile(path string, opts Options) (*vm.Prototype, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	return Compile(string(data), "@"+path, opts)
}

// MustCompile is like Compile but panics on error. It is meant for
// sources known to be valid, such as test fixtures.
func MustCompile(source string) *vm.Prototype {
	proto, err := Compile(source, "="+firstLine(source), Options{})
	if err != nil {
		panic(err)
	}
	return proto
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
