// Package main is the entry point for the contentctl CLI.
// The CLI is the operator terminal tool for the contentplane API.
package main

import (
	"contentplane/cmd/cli/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
