package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flowc/internal/config"
	"github.com/l3aro/go-flowc/pkg/ir"
)

func newFlattenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flatten <file> [function]",
		Short: "Print the flat basic blocks of a file",
		Long: `Compiles a C source file to labeled basic blocks. Every block ends in
exactly one goto, cbranch or return. With a function name only that
function is printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.compiler(config.BackendFlat)
			if err != nil {
				return err
			}
			res, err := compileFile(cmd, c, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 2 {
				fn, err := lookupFunction(res, args[1])
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, ir.EncodeFunction(fn.Name, fn.Params, fn.Blocks))
				}
				fmt.Fprint(out, ir.FormatBlocks(fn.Blocks))
				return nil
			}

			if a.jsonOutput() {
				return writeJSON(out, FlatOutput{
					File:      res.File,
					Globals:   globalsOutput(res.Globals),
					Functions: res.Wire(),
				})
			}
			fmt.Fprint(out, res.Format())
			return nil
		},
	}
}
