package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/logflow-dev/logflow/internal/config"
	"github.com/logflow-dev/logflow/internal/pipeline"
)

// NewValidateCmd creates the validate command. It constructs every pipeline
// against the plugin registry so plugin config errors surface without
// starting anything.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yaml> [...]",
		Short: "Validate pipeline configuration files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := SetupLogging("error")

			paths, err := expandPipelinePaths(args)
			if err != nil {
				return err
			}

			failed := 0
			for _, path := range paths {
				cfg, err := config.LoadPipelineFile(path)
				if err == nil {
					_, err = pipeline.New(cfg, log)
				}
				if err != nil {
					failed++
					fmt.Printf("FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Printf("OK   %s (pipeline %q: %d sources, %d processors, %d sinks)\n",
					path, cfg.Name, len(cfg.Sources), len(cfg.Processors), len(cfg.Sinks))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d configs invalid", failed, len(paths))
			}
			return nil
		},
	}
}
