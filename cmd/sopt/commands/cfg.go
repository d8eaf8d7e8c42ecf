// Package commands provides the CLI commands for the sopt tool.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calder-lang/ssaopt/pkg/extract"
	"github.com/calder-lang/ssaopt/pkg/graphio"
	"github.com/calder-lang/ssaopt/pkg/ir"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file> <function>",
	Short: "Extract control flow graph for a function",
	Long: `Extracts the control flow graph for a function in a Go source file
and emits it in the YAML graph format accepted by "sopt thread".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]
		functionName := args[1]

		info, err := os.Stat(filePath)
		if err != nil {
			return fmt.Errorf("stat file: %w", err)
		}

		if info.IsDir() {
			return fmt.Errorf("path is a directory, expected a file: %s", filePath)
		}

		if !isGoFile(filePath) {
			return fmt.Errorf("unsupported file type: %s (only .go files supported)", filePath)
		}

		fn, err := extract.GoFile(filePath, functionName)
		if err != nil {
			return fmt.Errorf("extracting CFG: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		dotOutput, _ := cmd.Flags().GetBool("dot")
		summary, _ := cmd.Flags().GetBool("summary")

		switch {
		case jsonOutput:
			data, err := json.MarshalIndent(graphio.Dump(fn), "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
		case dotOutput:
			fmt.Print(graphio.Dot(fn))
		case summary:
			printGraphSummary(fn)
		default:
			if err := graphio.Save(os.Stdout, fn); err != nil {
				return fmt.Errorf("dumping graph: %w", err)
			}
		}

		return nil
	},
}

// isGoFile checks if the file has a .go extension.
func isGoFile(filePath string) bool {
	return strings.HasSuffix(filePath, ".go")
}

// printGraphSummary prints graph information in human-readable format.
func printGraphSummary(fn *ir.Func) {
	fmt.Printf("=== CFG for function: %s ===\n", fn.Name)
	fmt.Printf("Entry Block: %d\n", fn.Entry.Index)

	fmt.Printf("\nBlocks (%d):\n", len(fn.Blocks))
	for _, b := range fn.Blocks {
		loop := ""
		if b.Loop != nil && b.Loop != fn.Root {
			loop = fmt.Sprintf(" (loop depth %d)", b.Loop.Depth())
		}
		fmt.Printf("  bb %d%s\n", b.Index, loop)
		for _, s := range b.Stmts {
			fmt.Printf("    %s\n", s.Text)
		}
	}

	fmt.Printf("\nEdges:\n")
	for _, b := range fn.Blocks {
		for _, e := range b.Succs {
			label := ""
			switch {
			case e.Flags&ir.EdgeTrue != 0:
				label = "T"
			case e.Flags&ir.EdgeFalse != 0:
				label = "F"
			}
			fmt.Printf("  %d --%s--> %d\n", e.Src.Index, label, e.Dest.Index)
		}
	}

	if loops := fn.LoopsInnermostFirst(); len(loops) > 0 {
		fmt.Printf("\nLoops (%d):\n", len(loops))
		for _, l := range loops {
			latch := -1
			if l.Latch != nil {
				latch = l.Latch.Index
			}
			fmt.Printf("  header bb %d, latch bb %d, depth %d\n", l.Header.Index, latch, l.Depth())
		}
	}
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cfgCmd.Flags().Bool("dot", false, "Output as Graphviz dot")
	cfgCmd.Flags().Bool("summary", false, "Print a human-readable summary")
	RootCmd.AddCommand(cfgCmd)
}
