package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/razorforge-lang/irgen/internal/ast"
	"github.com/razorforge-lang/irgen/internal/codegen/llvm"
	"github.com/razorforge-lang/irgen/internal/diag"
	"github.com/razorforge-lang/irgen/internal/platform"
)

var version = "dev"

func debugLog(format string, a ...interface{}) {
	if os.Getenv("IRGEN_DEBUG") != "" {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format, a...)
	}
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: irgen [flags] <command> [arguments]\n")
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		fmt.Fprintf(os.Stderr, "  emit <file>    Lower a serialized AST module into LLVM IR\n")
		fmt.Fprintf(os.Stderr, "  version        Show version information\n")
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "emit":
		runEmit(args)
	case "version", "-v", "--version":
		runVersion()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runVersion() {
	fmt.Printf("irgen %s\n", version)
}

func runEmit(args []string) {
	fs := flag.NewFlagSet("emit", flag.ExitOnError)
	platformPath := fs.String("platform", "", "path to a platform descriptor YAML file")
	outPath := fs.String("o", "", "write IR to this file instead of stdout")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: irgen emit [flags] <module.json>\n")
		os.Exit(1)
	}
	inputPath := fs.Arg(0)

	debugLog("reading module from %s\n", inputPath)
	data, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "irgen: %v\n", err)
		os.Exit(1)
	}

	mod, err := ast.DecodeModule(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "irgen: %v\n", err)
		os.Exit(1)
	}

	p := platform.Default64
	if *platformPath != "" {
		debugLog("loading platform descriptor from %s\n", *platformPath)
		p, err = platform.Load(*platformPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "irgen: %v\n", err)
			os.Exit(1)
		}
	}

	debugLog("lowering module %q for target %s\n", mod.Name, p.Triple)
	e := llvm.NewEmitter(p)
	ir, err := e.EmitModule(mod)
	if len(e.Errors) > 0 {
		diag.NewFormatter().FormatAll(e.Errors)
	}
	if err != nil {
		os.Exit(1)
	}

	if *outPath == "" {
		fmt.Print(ir)
		return
	}
	debugLog("writing IR to %s\n", *outPath)
	if err := os.WriteFile(*outPath, []byte(ir), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "irgen: %v\n", err)
		os.Exit(1)
	}
}
