package main

import (
	"os"

	"wavedec/cmd/wavedec/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are printed by the command itself; cobra's own reporting is
	// silenced.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
