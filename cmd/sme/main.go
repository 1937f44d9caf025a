// Command sme is the entry point for the signal memory engine.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// signal routing, trust scoring, and memory query API.
package main

import (
	"fmt"
	"os"

	"github.com/sme-labs/sme-go/cmd/sme/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
