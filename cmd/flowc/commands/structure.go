package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flowc/internal/config"
	"github.com/l3aro/go-flowc/pkg/pipeline"
	"github.com/l3aro/go-flowc/pkg/structure"
)

func newStructureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "structure <file> [function]",
		Short: "Print the structured form of a file",
		Long: `Compiles a C source file and rebuilds nested block, loop and if
constructs from each function's control flow graph. Branches only
target enclosing constructs.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.compiler(config.BackendStructured)
			if err != nil {
				return err
			}
			res, err := compileFile(cmd, c, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fns := res.Functions
			if len(args) == 2 {
				fn, err := lookupFunction(res, args[1])
				if err != nil {
					return err
				}
				if !a.jsonOutput() {
					fmt.Fprint(out, structure.Format(fn.Structured))
					return nil
				}
				fns = []pipeline.Function{*fn}
			}

			if a.jsonOutput() {
				return writeJSON(out, structuredOutput(fns))
			}
			fmt.Fprint(out, res.Format())
			return nil
		},
	}
}
