// Command asdlgen parses an ASDL module description (testdata/ast.asdl by
// default) and prints each type's constructor count and the module totals.
// It does not compare the module with internal/ast and writes no Go code.
// It is run by hand and is never invoked by the compiler pipeline itself.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/btrc-lang/btrc/tools/asdlgen"
)

type options struct {
	ASDLPath string `short:"i" long:"input" description:"path to the .asdl module description" default:"testdata/ast.asdl"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "asdlgen:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	src, err := os.ReadFile(opts.ASDLPath)
	if err != nil {
		return errors.Wrapf(err, "reading %q", opts.ASDLPath)
	}
	mod, err := asdlgen.Parse(string(src))
	if err != nil {
		return errors.Wrap(err, "parsing ASDL module")
	}
	total := 0
	for _, ty := range mod.Types {
		total += len(ty.Constructors)
		fmt.Printf("%-6s %2d constructor(s)\n", ty.Name, len(ty.Constructors))
	}
	fmt.Printf("module %s: %d type(s), %d constructor(s) total\n", mod.Name, len(mod.Types), total)
	return nil
}
