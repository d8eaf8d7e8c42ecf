// Package main implements the sopt CLI.
// It provides commands for extracting control flow graphs, threading
// jumps through them, and managing configuration.
package main

import (
	"os"

	"github.com/calder-lang/ssaopt/cmd/sopt/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	commands.RootCmd.SetVersionTemplate(`sopt version {{.Version}}
`)

	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
