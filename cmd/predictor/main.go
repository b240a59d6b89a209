package main

import (
	"os"

	"github.com/dansontsui/taiwan-stock-system-sub002/cmd/predictor/commands"
)

// main is the entry point for the predictor CLI: go run ./cmd/predictor [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
