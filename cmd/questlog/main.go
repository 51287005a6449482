// Command questlog logs in to QuestLog from a terminal.
package main

import (
	"os"

	"github.com/sakif/questlog/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
