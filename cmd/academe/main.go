// Package main provides the entry point for the academe CLI.
package main

import (
	"os"

	"github.com/academe-ai/academe/cmd/academe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
