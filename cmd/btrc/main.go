// Command btrc compiles a single .btrc source file to C, following the CLI
// surface the vadimistar-wall compiler front-end exposes (a go-flags struct
// bound to Parse, one required source positional plus optional dump/output
// flags) generalized to this pipeline's four dump stages.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"

	"github.com/btrc-lang/btrc/internal/ir"
	"github.com/btrc-lang/btrc/internal/pipeline"
)

type options struct {
	Output           string `short:"o" long:"output" description:"write generated C to this path instead of stdout"`
	EmitTokens       bool   `long:"emit-tokens" description:"dump the token stream and exit"`
	EmitAST          bool   `long:"emit-ast" description:"dump the canonical AST and exit"`
	EmitIR           bool   `long:"emit-ir" description:"dump the IR before optimization and exit"`
	EmitOptimizedIR  bool   `long:"emit-optimized-ir" description:"dump the IR after optimization and exit"`
	Positional       struct {
		Source string `positional-arg-name:"source" required:"true"`
	} `positional-args:"yes"`
}

const (
	exitOK = iota
	exitUsage
	exitCompile
	exitInternal
)

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return exitOK
		}
		return exitUsage
	}

	src, err := os.ReadFile(opts.Positional.Source)
	if err != nil {
		fmt.Fprintln(os.Stderr, "btrc:", err)
		return exitUsage
	}

	dir := filepath.Dir(opts.Positional.Source)
	res, err := pipeline.Run(string(src), opts.Positional.Source, pipeline.Options{
		SearchPaths:  []string{dir},
		SkipOptimize: opts.EmitIR,
	})
	if err != nil {
		if stageErr, ok := err.(*pipeline.StageError); ok {
			switch stageErr.Stage {
			case pipeline.StageUserError:
				fmt.Fprintln(os.Stderr, "btrc:", stageErr.Err)
				return exitUsage
			case pipeline.StageDiagnostics:
				printDiagnostics(res)
				return exitCompile
			default:
				fmt.Fprintln(os.Stderr, "btrc: internal error:", stageErr.Err)
				return exitInternal
			}
		}
		fmt.Fprintln(os.Stderr, "btrc: internal error:", err)
		return exitInternal
	}

	switch {
	case opts.EmitTokens:
		for _, t := range res.Tokens {
			fmt.Println(t.String())
		}
		return exitOK
	case opts.EmitAST:
		fmt.Printf("%+v\n", res.AST)
		return exitOK
	case opts.EmitIR:
		dumpModule(res.IR)
		return exitOK
	case opts.EmitOptimizedIR:
		dumpModule(res.OptimizedIR)
		return exitOK
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(res.C), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "btrc:", err)
			return exitInternal
		}
		return exitOK
	}
	fmt.Print(res.C)
	return exitOK
}

func printDiagnostics(res *pipeline.Result) {
	if res == nil || res.Bag == nil {
		return
	}
	for _, d := range res.Bag.Sorted() {
		fmt.Fprintln(os.Stderr, d.String())
	}
}

func dumpModule(m *ir.Module) {
	if m == nil {
		return
	}
	for _, s := range m.Structs {
		fmt.Printf("struct %s (vtable=%q)\n", s.Name, s.VTableName)
		for _, f := range s.Fields {
			fmt.Printf("  %s %s\n", f.Type.String(), f.Name)
		}
	}
	for _, g := range m.Globals {
		fmt.Printf("global %s %s\n", g.Type.String(), g.Name)
	}
	for _, fn := range m.Functions {
		fmt.Printf("func %s(%d params) -> %s\n", fn.Name, len(fn.Params), fn.Ret.String())
		for _, b := range fn.Blocks {
			fmt.Printf("  %s:\n", b.Label)
			for _, instr := range b.Instrs {
				fmt.Printf("    %#v\n", instr)
			}
		}
	}
}
