package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "sopt",
	Short: "sopt - SSA graph jump threading",
	Long: `sopt rewrites control flow graphs by threading jumps whose outcome
is known along an incoming path, keeping phi nodes and loop structure
consistent while it does so.

Commands:
  thread      Apply registered jump threads to a graph
  cfg         Extract a control flow graph from a Go source file
  init        Initialize sopt configuration interactively

Use "sopt [command] --help" for more information about a command.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}
