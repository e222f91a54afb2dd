// Package main is the entry point for the cadenza CLI.
package main

import (
	"fmt"
	"os"

	"github.com/cadenza-ai/cadenza/cmd/cadenza/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
