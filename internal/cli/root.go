// Package cli wires the cobra command tree for the logflow binary.
package cli

import (
	"github.com/spf13/cobra"
)

// Execute builds and runs the CLI.
func Execute() error {
	var (
		cfgFile  string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "logflow",
		Short: "A configurable ETL engine for log streams",
		Long: `logflow runs declaratively-configured pipelines that ingest events from
sources (file, stdin, syslog, kafka, s3), transform them through a processor
chain (json, filter, regex, grok, mutate, enrich) and deliver them to sinks
(stdout, file, elasticsearch, opensearch, redis, s3) in batches.

Multiple independently-configured pipelines run side by side in one process;
each is an isolated failure domain with its own backpressure and metrics.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "app config file (default: ./logflow.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		NewRunCmd(&cfgFile, &logLevel),
		NewValidateCmd(),
		NewVersionCmd(),
	)

	return rootCmd.Execute()
}
