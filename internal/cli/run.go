package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/logflow-dev/logflow/internal/api"
	"github.com/logflow-dev/logflow/internal/config"
	"github.com/logflow-dev/logflow/internal/engine"
)

// shutdownDeadline bounds the parallel stop of all pipelines on exit.
const shutdownDeadline = 60 * time.Second

// NewRunCmd creates the run command.
func NewRunCmd(cfgFile, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [pipeline.yaml ...]",
		Short: "Run the engine with the given pipeline configs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd, args, cfgFile, logLevel)
		},
	}

	cmd.Flags().String("api-addr", "", "serve the management API on this address")
	cmd.Flags().Bool("watch", true, "hot-reload pipeline files on change")

	return cmd
}

func runEngine(cmd *cobra.Command, args []string, cfgFile, logLevel *string) error {
	log := SetupLogging(*logLevel)

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if addr, _ := cmd.Flags().GetString("api-addr"); addr != "" {
		cfg.API.Enabled = true
		cfg.API.Addr = addr
	}
	if watch, _ := cmd.Flags().GetBool("watch"); !watch {
		cfg.Watch = false
	}

	paths, err := expandPipelinePaths(append(cfg.Pipelines, args...))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no pipeline configs given; pass files as arguments or set pipelines in the app config")
	}

	eng := engine.New(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, path := range paths {
		pcfg, err := config.LoadPipelineFile(path)
		if err != nil {
			return fmt.Errorf("loading pipeline %s: %w", path, err)
		}
		name, err := eng.LoadPipeline(ctx, pcfg, false)
		if err != nil {
			return fmt.Errorf("loading pipeline %s: %w", path, err)
		}
		if err := eng.StartPipeline(ctx, name); err != nil {
			log.Errorf("starting pipeline %q: %v", name, err)
		}
	}

	log.Infof("logflow running: pipelines=%d", len(eng.ListPipelines()))

	var server *api.Server
	if cfg.API.Enabled {
		server = api.New(eng, cfg.API.Addr, log)
		go func() {
			if err := server.Start(); err != nil {
				log.Errorf("management API failed: %v", err)
			}
		}()
	}

	if cfg.Watch {
		startPipelineWatcher(ctx, paths, eng, log)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("received shutdown signal: %v", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warningf("API shutdown: %v", err)
		}
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Warningf("engine shutdown: %v", err)
	}

	log.Info("logflow stopped")
	return nil
}

// startPipelineWatcher reloads and restarts pipelines when their documents
// change on disk.
func startPipelineWatcher(ctx context.Context, paths []string, eng *engine.Engine, log logger.ILogger) {
	watcher := config.NewPipelineWatcher(paths, log)
	if err := watcher.Start(ctx); err != nil {
		log.Warningf("failed to start pipeline watcher: %v", err)
		return
	}

	log.Infof("hot-reload enabled for %d pipeline files", len(paths))

	go func() {
		for {
			select {
			case change := <-watcher.Changes():
				name, err := eng.LoadPipeline(ctx, change.Pipeline, true)
				if err != nil {
					log.Errorf("reload of %s failed: %v", change.Path, err)
					continue
				}
				if err := eng.StartPipeline(ctx, name); err != nil {
					log.Errorf("restart of %q failed: %v", name, err)
				}
			case err := <-watcher.Errors():
				log.Errorf("pipeline watcher error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// expandPipelinePaths resolves directories into their .yaml/.yml entries.
func expandPipelinePaths(entries []string) ([]string, error) {
	var paths []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if _, dup := seen[p]; !dup {
			seen[p] = struct{}{}
			paths = append(paths, p)
		}
	}

	for _, entry := range entries {
		info, err := os.Stat(entry)
		if err != nil {
			return nil, fmt.Errorf("pipeline config %s: %w", entry, err)
		}
		if !info.IsDir() {
			add(entry)
			continue
		}

		matches, err := filepath.Glob(filepath.Join(entry, "*.y*ml"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			add(m)
		}
	}
	return paths, nil
}
