// Command botcore is the entry point for the botcore chatbot engine.
// It provides a CLI interface (via Cobra) for training, catalog management,
// and one-shot questions, plus an HTTP server for production use.
package main

import (
	"fmt"
	"os"

	"github.com/botforge/botcore/cmd/botcore/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
