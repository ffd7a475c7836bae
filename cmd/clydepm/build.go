package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"clydepm/internal/exec"
	"clydepm/internal/plan"
)

func newBuildCmd(logLevel *string, workers *int) *cobra.Command {
	var stepTimeout time.Duration
	var failFast bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolve dependencies, plan, and build the package in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*logLevel, *workers)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			rootName, rootManifest, err := loadRootManifest(cfg)
			if err != nil {
				return err
			}

			resolver := newResolver(cfg, logger)
			graph, manifests, err := resolver.Resolve(cmd.Context(), rootName, rootManifest)
			if err != nil {
				return err
			}

			driver := newDriver()
			probe, err := driver.Probe(cmd.Context())
			if err != nil {
				return err
			}

			rootID := rootName + "@" + rootManifest.Version.String()
			roots := packageRoots(cfg.WorkDir, rootID, graph, manifests)
			byID := manifestsByID(graph, manifests)

			bp, err := plan.Plan(graph, byID, probe, plan.Options{
				LayoutRoot:   cfg.CacheDir + "/build",
				PackageRoots: roots,
			})
			if err != nil {
				return err
			}
			for _, w := range bp.Warnings {
				logger.Warn(w)
			}

			objects, artifacts, idx, err := newCacheTier(cfg)
			if err != nil {
				return err
			}
			defer idx.Close()

			bus := newBus(logger)
			registerLoggingHooks(bus, logger)

			executor, err := exec.New(cmd.Context(), driver, objects, artifacts, bus, exec.Options{
				Workers:     cfg.Workers,
				StepTimeout: stepTimeout,
				FailFast:    failFast,
			})
			if err != nil {
				return err
			}

			summary, err := executor.Run(cmd.Context(), graph, bp)
			if err != nil {
				return err
			}
			printSummary(logger, summary)
			if summary.Failed() {
				return fmt.Errorf("build failed")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&stepTimeout, "step-timeout", 0, "kill a single compile/link step that exceeds this duration (0 = no timeout)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop scheduling new steps after the first failure")
	return cmd
}

func printSummary(logger *log.Logger, summary *exec.Summary) {
	for _, id := range summary.Order {
		outcome := summary.Packages[id]
		if outcome == nil {
			continue
		}
		if outcome.Skipped {
			logger.Info("skipped", "package", id)
			continue
		}
		for _, c := range outcome.Compiles {
			if c.Err != nil {
				logger.Error("compile failed", "package", id, "source", c.Source, "err", c.Err)
			}
		}
		if outcome.Link.Err != nil {
			logger.Error("link failed", "package", id, "err", outcome.Link.Err)
			continue
		}
		logger.Info("built", "package", id)
	}
}
