// Package main is the entry point for the vlquery CLI tool.
package main

import (
	"os"

	"github.com/syssam/vlquery/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
