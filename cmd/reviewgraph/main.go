package main

import (
	"fmt"
	"os"

	"github.com/kushal45/reviewgraph/cmd/reviewgraph/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "reviewgraph:", err)
		os.Exit(commands.ExitCode(err))
	}
}
