package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/biko2/static-suite-data-server/internal/cache"
	"github.com/biko2/static-suite-data-server/internal/config"
	"github.com/biko2/static-suite-data-server/internal/ingest"
	"github.com/biko2/static-suite-data-server/internal/modules"
	"github.com/biko2/static-suite-data-server/internal/resolver"
	"github.com/biko2/static-suite-data-server/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the store from the data dir and apply incremental updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := buildLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		fs := osfs.New("/")
		dataDir, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return err
		}

		// one shared cache instance for the process: file contents and
		// module handles live in separate namespaces
		sharedCache := cache.New()

		reg := modules.NewRegistry(modules.Config{
			FS:            fs,
			QueryDir:      cfg.Query.Dir,
			QueryGlob:     cfg.Query.Glob,
			PostProcessor: cfg.PostProcessor,
			Cache:         sharedCache,
			Logger:        logger,
		})
		if err := reg.Init(); err != nil {
			return err
		}

		var post store.PostProcessor
		if cfg.PostProcessor != "" {
			post = modules.NewPostProcessor(reg, cfg.PostProcessor)
		}

		st := store.New(store.Config{
			Reader:        ingest.NewReader(fs),
			Cache:         sharedCache,
			PostProcessor: post,
			Logger:        logger,
		})
		runner := modules.NewRunner(reg, st, cfg.Query.Dir, logger)
		res := resolver.New(st, runner, logger)

		loader := ingest.NewLoader(fs, st, res, logger)
		if err := loader.LoadAll(dataDir, cfg.Glob); err != nil {
			return err
		}

		if !cfg.Watch.Enabled {
			logger.Info("load complete, watch disabled")
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := ingest.NewWatcher(dataDir, ingest.WatchConfig{
			Glob:     cfg.Glob,
			Debounce: cfg.Watch.GetDebounceDelay(),
		}, st, res, logger)
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
