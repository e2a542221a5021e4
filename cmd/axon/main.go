// Command axon is the entry point for the Axon memory and tool routing
// engine. It provides a CLI interface (via Cobra) and an optional HTTP
// server exposing the same engine over a REST API.
package main

import (
	"fmt"
	"os"

	"github.com/axon-agent/axon/cmd/axon/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
