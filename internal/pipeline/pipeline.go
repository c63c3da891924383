// Package pipeline wires the compilation stages spec section 5 lists —
// Preprocess, Lex, Parse, Analyze, IRGen, Optimize, Emit — into the single
// sequential Run the CLI drives, generalizing the teacher compiler's
// Compile (pkg/compiler/compile.go) from its fixed lex/parse/codegen/asm
// chain to this front-end's checked-AST-to-C pipeline.
package pipeline

import (
	"github.com/pkg/errors"

	"github.com/btrc-lang/btrc/internal/ast"
	"github.com/btrc-lang/btrc/internal/diag"
	"github.com/btrc-lang/btrc/internal/emit"
	"github.com/btrc-lang/btrc/internal/grammar"
	"github.com/btrc-lang/btrc/internal/ir"
	"github.com/btrc-lang/btrc/internal/irgen"
	"github.com/btrc-lang/btrc/internal/lexer"
	"github.com/btrc-lang/btrc/internal/parser"
	"github.com/btrc-lang/btrc/internal/preprocess"
	"github.com/btrc-lang/btrc/internal/sema"
	"github.com/btrc-lang/btrc/internal/token"
)

// Options configures one compilation run.
type Options struct {
	// GrammarPath overrides the embedded default grammar file.
	GrammarPath string
	// SearchPaths are extra #include search directories.
	SearchPaths []string
	// SkipOptimize runs the Emitter directly on the unoptimized IR,
	// matching --emit-ir dumps that must show the pre-optimization form.
	SkipOptimize bool
}

// Result carries every intermediate artifact a CLI dump flag might need,
// alongside the final diagnostics bag.
type Result struct {
	Tokens       []token.Token
	AST          *ast.File
	Sema         *sema.Result
	IR           *ir.Module
	OptimizedIR  *ir.Module
	C            string
	Bag          *diag.Bag
}

// Stage identifies which pipeline phase a StageError came from, so the CLI
// can map it to the right exit code (spec section 6.1).
type Stage int

const (
	StageUserError Stage = iota
	StageDiagnostics
	StageInternal
)

// StageError wraps an error with the Stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Run compiles src (whose path is file, used for diagnostics and relative
// #include resolution) through every stage. The returned Result is
// populated as far as compilation progressed, even on error, so the CLI's
// --emit-* flags can dump whatever stage completed.
func Run(src, file string, opts Options) (*Result, error) {
	res := &Result{Bag: diag.NewBag()}

	gpath := opts.GrammarPath
	if gpath == "" {
		gpath = grammar.DefaultGrammarPath
	}
	g, err := grammar.Load(gpath)
	if err != nil {
		return res, &StageError{Stage: StageUserError, Err: errors.Wrap(err, "pipeline: loading grammar")}
	}

	pre, err := preprocess.Run(src, file, preprocess.Options{SearchPaths: opts.SearchPaths})
	if err != nil {
		return res, &StageError{Stage: StageUserError, Err: errors.Wrap(err, "pipeline: preprocessing")}
	}

	res.Tokens = lexer.Lex(pre, g, res.Bag, file)
	if res.Bag.HasErrors() {
		return res, &StageError{Stage: StageDiagnostics, Err: errors.New(res.Bag.Summary())}
	}

	res.AST = parser.ParseFile(res.Tokens, res.Bag, file, g)
	if res.Bag.HasErrors() {
		return res, &StageError{Stage: StageDiagnostics, Err: errors.New(res.Bag.Summary())}
	}

	analyzer := sema.New(res.Bag)
	semaResult, err := analyzer.Analyze(res.AST)
	if err != nil || res.Bag.HasErrors() {
		if err == nil {
			err = errors.New(res.Bag.Summary())
		}
		return res, &StageError{Stage: StageDiagnostics, Err: err}
	}
	res.Sema = semaResult

	res.IR = irgen.Generate(res.AST, res.Sema)

	optimized := res.IR
	if !opts.SkipOptimize {
		optimized = ir.Optimize(res.IR)
	}
	res.OptimizedIR = optimized

	out, err := emit.Emit(optimized, emit.Options{})
	if err != nil {
		return res, &StageError{Stage: StageInternal, Err: errors.Wrap(err, "pipeline: emitting C")}
	}
	res.C = out

	return res, nil
}
