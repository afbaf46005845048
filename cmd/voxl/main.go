// Command voxl is the driver for the voxl scripting language: it
// wires a Config, an Allocator, a Reporter, and a module resolver
// together into a VM, installs pkg/builtins, and exposes run/repl/
// compile/disassemble/version subcommands on top of urfave/cli/v2.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/urfave/cli/v2"
	"github.com/xlab/treeprint"

	"github.com/kristofer/voxl/internal/config"
	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/ast"
	"github.com/kristofer/voxl/pkg/builtins"
	"github.com/kristofer/voxl/pkg/bytecode"
	"github.com/kristofer/voxl/pkg/compiler"
	"github.com/kristofer/voxl/pkg/lexer"
	"github.com/kristofer/voxl/pkg/parser"
	"github.com/kristofer/voxl/pkg/srcmap"
	"github.com/kristofer/voxl/pkg/value"
	"github.com/kristofer/voxl/pkg/vm"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "voxl",
		Usage:   "the voxl scripting language",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "voxl.yaml", Usage: "path to a voxl.yaml config file"},
		},
		Commands: []*cli.Command{
			runCommand,
			replCommand,
			compileCommand,
			disassembleCommand,
			versionCommand,
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() > 0 {
				return runFile(c, c.Args().First())
			}
			return repl(c)
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "run a voxl source file",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return cli.Exit("run requires exactly one file argument", 2)
		}
		return runFile(c, c.Args().First())
	},
}

var replCommand = &cli.Command{
	Name:  "repl",
	Usage: "start an interactive read-eval-print loop",
	Action: func(c *cli.Context) error {
		return repl(c)
	},
}

var compileCommand = &cli.Command{
	Name:      "compile",
	Usage:     "compile a source file and print its bytecode listing",
	ArgsUsage: "<file>",
	Flags:     []cli.Flag{verboseFlag, modulesFlag},
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return cli.Exit("compile requires exactly one file argument", 2)
		}
		return disassembleFile(c, c.Args().First())
	},
}

var disassembleCommand = &cli.Command{
	Name:      "disassemble",
	Aliases:   []string{"disasm"},
	Usage:     "compile a source file and print its bytecode listing",
	ArgsUsage: "<file>",
	Flags:     []cli.Flag{verboseFlag, modulesFlag},
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return cli.Exit("disassemble requires exactly one file argument", 2)
		}
		return disassembleFile(c, c.Args().First())
	},
}

var verboseFlag = &cli.BoolFlag{
	Name:    "verbose",
	Aliases: []string{"v"},
	Usage:   "also dump each function's constant pool with github.com/davecgh/go-spew",
}

var modulesFlag = &cli.BoolFlag{
	Name:  "modules",
	Usage: "print the file's `use` dependency tree with github.com/xlab/treeprint instead of disassembling",
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "print the voxl version",
	Action: func(c *cli.Context) error {
		fmt.Println("voxl " + version)
		return nil
	},
}

// newVM builds a fully wired VM (Allocator, Reporter, filesystem
// resolver, builtins) from the process's config flag and working
// directory — the one path every subcommand that executes code shares.
func newVM(c *cli.Context, out io.Writer) (*vm.VM, *terminalReporter, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	a := alloc.New(cfg.ToAllocConfig())
	rep := &terminalReporter{}
	resolver := &fsResolver{SearchPath: cfg.Path}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	v := vm.New(a, rep, resolver, workDir, cfg.ToVMConfig())
	builtins.Install(v, out)
	return v, rep, nil
}

func runFile(c *cli.Context, filename string) error {
	src, err := os.ReadFile(filename)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	v, rep, err := newVM(c, os.Stdout)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	_, err = v.Run(string(src), filename)
	if err != nil {
		if rep.HadError() {
			return cli.Exit("", 1)
		}
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// repl drives an interactive session on github.com/peterh/liner,
// falling back to a bare bufio.Scanner when stdin isn't a terminal
// (piped scripts, CI) per github.com/mattn/go-isatty's detection —
// each line is run as its own top-level module against one shared VM.
// Every line gets a fresh module, so a top-level name declared on one
// line is not visible on later lines; the builtins and the module
// cache are shared.
func repl(c *cli.Context) error {
	v, rep, err := newVM(c, os.Stdout)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Printf("voxl %s — interactive session (Ctrl-D to exit)\n", version)

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return replPlain(v, rep, os.Stdin)
	}
	return replInteractive(v, rep)
}

func replPlain(v *vm.VM, rep *terminalReporter, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		evalLine(v, rep, scanner.Text(), lineNo)
	}
	return nil
}

func replInteractive(v *vm.VM, rep *terminalReporter) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	lineNo := 0
	for {
		text, err := line.Prompt("voxl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		line.AppendHistory(text)
		lineNo++
		evalLine(v, rep, text, lineNo)
	}
}

func evalLine(v *vm.VM, rep *terminalReporter, text string, lineNo int) {
	result, err := v.Run(text, fmt.Sprintf("<repl:%d>", lineNo))
	if err != nil {
		return
	}
	if result.Kind != value.Null {
		fmt.Println(result.String())
	}
}

// disassembleFile compiles filename without executing it and prints
// every function's instruction listing, recursing into nested
// Function constants the same way pkg/vm's module loader stamps
// ownership over them.
func disassembleFile(c *cli.Context, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	rep := &terminalReporter{}
	sm := srcmap.New(filename, ".", string(data))
	l := lexer.New(sm, rep)
	p := parser.New(sm, l, rep)
	prog := p.ParseProgram()
	if p.HadError() {
		return cli.Exit("", 1)
	}

	if c.Bool("modules") {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		workDir, err := os.Getwd()
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		printModuleTree(prog, filename, &fsResolver{SearchPath: cfg.Path}, workDir)
		return nil
	}

	a := alloc.New(alloc.DefaultConfig())
	comp := compiler.New(a, sm, rep)
	fn, err := comp.CompileModule(prog, filename)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	printChunks(fn, map[*value.Obj]bool{}, c.Bool("verbose"))
	return nil
}

// printModuleTree renders prog's `use` imports as a tree rooted at
// name, recursively resolving and parsing each import path through
// resolver — a read-only preview of what pkg/vm's module loader would
// load, with cycles collapsed to a single "(already shown)" leaf.
func printModuleTree(prog *ast.Program, name string, resolver *fsResolver, workDir string) {
	tree := treeprint.New()
	tree.SetValue(name)
	buildModuleTree(tree, prog, resolver, workDir, map[string]bool{name: true})
	fmt.Println(tree.String())
}

func buildModuleTree(branch treeprint.Tree, prog *ast.Program, resolver *fsResolver, workDir string, seen map[string]bool) {
	for _, stmt := range prog.Statements {
		if stmt.Kind != ast.UseStmt {
			continue
		}
		path := stmt.UsePath
		if seen[path] {
			branch.AddNode(path + " (already shown)")
			continue
		}
		seen[path] = true
		src, _, ok := resolver.Resolve(path, workDir)
		if !ok {
			branch.AddNode(path + " (unresolved)")
			continue
		}
		child := branch.AddBranch(path)
		sm := srcmap.New(path, workDir, src)
		rep := &terminalReporter{}
		l := lexer.New(sm, rep)
		p := parser.New(sm, l, rep)
		childProg := p.ParseProgram()
		if !p.HadError() {
			buildModuleTree(child, childProg, resolver, workDir, seen)
		}
	}
}

func printChunks(fn *value.Obj, seen map[*value.Obj]bool, verbose bool) {
	if fn == nil || seen[fn] {
		return
	}
	seen[fn] = true
	name := "<module>"
	if fn.Name != nil && fn.Name.Chars != "" {
		name = fn.Name.Chars
	}
	fmt.Print(bytecode.Disassemble(fn.Chunk, name, false))
	if verbose {
		fmt.Println("-- constants --")
		spew.Dump(fn.Chunk.Constants)
	}
	for _, c := range fn.Chunk.Constants {
		if v, ok := c.(value.Value); ok && v.IsObj(value.FunctionObj) {
			printChunks(v.AsObj(), seen, verbose)
		}
	}
}
