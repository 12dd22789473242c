// Package main provides the entry point for the wtsync CLI.
package main

import (
	"os"

	"github.com/randalmurphal/wtsync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
