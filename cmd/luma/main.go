// Luma CLI - compiles Luma source files into bytecode images
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/luma/manifest"
	"github.com/chazu/luma/server"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	listing := flag.Bool("l", false, "Print a bytecode listing")
	output := flag.String("o", "", "Output image path (single input only)")
	parseOnly := flag.Bool("p", false, "Parse only, do not write images")
	strip := flag.Bool("s", false, "Strip debug information")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: luma [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles .luma files into .luac images. Without files, builds the\n")
		fmt.Fprintf(os.Stderr, "project described by the nearest luma.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  luma hello.luma            # Write hello.luac\n")
		fmt.Fprintf(os.Stderr, "  luma -l -p hello.luma      # Print the listing only\n")
		fmt.Fprintf(os.Stderr, "  luma -s -o out.luac a.luma # Stripped image at out.luac\n")
		fmt.Fprintf(os.Stderr, "  luma                       # Build the project in luma.toml\n")
		fmt.Fprintf(os.Stderr, "  luma -lsp                  # Language server for editors\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if *lspMode {
		if err := server.NewLSP(version).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Language server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	opts := buildOptions{
		strip:     *strip,
		listing:   *listing,
		parseOnly: *parseOnly,
		verbose:   *verbose,
	}

	var err error
	if paths := flag.Args(); len(paths) > 0 {
		err = compileFiles(paths, *output, opts, os.Stdout)
	} else {
		if *output != "" {
			fmt.Fprintln(os.Stderr, "Error: -o requires an input file")
			os.Exit(2)
		}
		var m *manifest.Manifest
		m, err = manifest.FindAndLoad(".")
		if err == nil && m == nil {
			fmt.Fprintln(os.Stderr, "Error: no input files and no luma.toml found")
			flag.Usage()
			os.Exit(2)
		}
		if err == nil {
			err = buildProject(m, opts, os.Stdout)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
