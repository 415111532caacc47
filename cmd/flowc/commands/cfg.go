package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-flowc/internal/config"
	"github.com/l3aro/go-flowc/pkg/cfg"
	"github.com/l3aro/go-flowc/pkg/dfg"
)

func newCFGCmd(a *app) *cobra.Command {
	var dataflow bool

	cmd := &cobra.Command{
		Use:   "cfg <file> <function>",
		Short: "Print the control flow graph of a function",
		Long: `Flattens a function and prints its Control Flow Graph (CFG): blocks,
typed edges, loop headers and cyclomatic complexity.

With --dataflow it prints the def-use chains of the function's locals
instead, and lists loads that may see an uninitialized local.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.compiler(config.BackendFlat)
			if err != nil {
				return err
			}
			res, err := compileFile(cmd, c, args[0])
			if err != nil {
				return err
			}
			fn, err := lookupFunction(res, args[1])
			if err != nil {
				return err
			}

			if dataflow {
				info := dfg.Analyze(fn.Name, fn.Params, fn.Graph)
				if a.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), info)
				}
				printDFGInfo(cmd.OutOrStdout(), info)
				return nil
			}

			info := fn.Graph.Info(fn.Name)
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			printCFGInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dataflow, "dataflow", false, "print def-use chains instead of the graph")
	return cmd
}

// printCFGInfo prints CFG information in human-readable format.
func printCFGInfo(w io.Writer, info *cfg.CFGInfo) {
	fmt.Fprintf(w, "=== CFG for function: %s ===\n", info.FunctionName)
	fmt.Fprintf(w, "Cyclomatic Complexity: %d\n", info.CyclomaticComplexity)
	fmt.Fprintf(w, "Entry Block: %s\n", info.EntryBlockID)
	fmt.Fprintf(w, "Exit Blocks: %s\n", strings.Join(info.ExitBlockIDs, ", "))
	if len(info.LoopHeaders) > 0 {
		fmt.Fprintf(w, "Loop Headers: %s\n", strings.Join(info.LoopHeaders, ", "))
	}

	fmt.Fprintf(w, "\nBlocks (%d):\n", len(info.Blocks))
	for _, id := range info.BlockOrder {
		block := info.Blocks[id]
		suffix := ""
		if !block.Reachable {
			suffix = ", unreachable"
		}
		fmt.Fprintf(w, "  %s (%s%s)\n", id, block.Type, suffix)
		for _, stmt := range block.Statements {
			fmt.Fprintf(w, "    %s\n", stmt)
		}
	}

	fmt.Fprintf(w, "\nEdges (%d):\n", len(info.Edges))
	for _, edge := range info.Edges {
		fmt.Fprintf(w, "  %s --%s--> %s\n", edge.SourceID, edge.EdgeType, edge.TargetID)
	}
}

func refString(ref dfg.VarRef) string {
	if ref.RefType == dfg.RefTypeParameter {
		return "param " + ref.Name
	}
	return fmt.Sprintf("%s@%s:%d", ref.Name, ref.Block, ref.Index)
}

// printDFGInfo prints def-use chains in human-readable format.
func printDFGInfo(w io.Writer, info *dfg.DFGInfo) {
	fmt.Fprintf(w, "=== DFG for function: %s ===\n", info.FunctionName)
	fmt.Fprintf(w, "Variables: %d\n", len(info.Variables))

	fmt.Fprintf(w, "\nDef-use chains (%d):\n", len(info.DataflowEdges))
	for _, e := range info.DataflowEdges {
		fmt.Fprintf(w, "  %s -> %s\n", refString(e.DefRef), refString(e.UseRef))
	}

	if len(info.Uninitialized) > 0 {
		fmt.Fprintf(w, "\nPossibly uninitialized (%d):\n", len(info.Uninitialized))
		for _, ref := range info.Uninitialized {
			fmt.Fprintf(w, "  %s\n", refString(ref))
		}
	}
}
