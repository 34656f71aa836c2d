// Package main provides the entry point for the docpull CLI.
package main

import (
	"os"

	"github.com/docpull/docpull/cmd/docpull/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
