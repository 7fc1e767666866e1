package main

import (
	"os"

	"github.com/logflow-dev/logflow/internal/cli"

	// Register the built-in plugins.
	_ "github.com/logflow-dev/logflow/internal/processor"
	_ "github.com/logflow-dev/logflow/internal/sink"
	_ "github.com/logflow-dev/logflow/internal/source"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
