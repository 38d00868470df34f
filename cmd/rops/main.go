package main

import (
	"os"

	"github.com/quantmind/rops/internal/cli"
	"github.com/quantmind/rops/internal/logging"
)

// main is the entry point for the rops CLI binary.
func main() {
	logger := logging.NewLogger(os.Stderr, logging.LevelInfo)
	if err := cli.Execute(os.Args[1:], logger); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
