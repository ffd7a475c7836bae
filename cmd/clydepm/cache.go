package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clydepm/internal/cache"
)

func newCacheCmd(logLevel *string, workers *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the build cache",
	}
	cmd.AddCommand(
		newCacheStatsCmd(logLevel, workers),
		newCacheCleanCmd(logLevel, workers),
	)
	return cmd
}

func newCacheStatsCmd(logLevel *string, workers *int) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print total cache size and per-tier entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*logLevel, *workers)
			if err != nil {
				return err
			}
			idx, err := cache.OpenIndex(cfg.CacheDir)
			if err != nil {
				return err
			}
			defer idx.Close()

			total, err := idx.TotalSize()
			if err != nil {
				return err
			}
			objectCount, err := idx.Count("object")
			if err != nil {
				return err
			}
			artifactCount, err := idx.Count("artifact")
			if err != nil {
				return err
			}

			fmt.Printf("cache root:    %s\n", cfg.CacheDir)
			fmt.Printf("total size:    %d bytes\n", total)
			fmt.Printf("objects:       %d\n", objectCount)
			fmt.Printf("artifacts:     %d\n", artifactCount)

			return cache.WriteManifest(cfg.CacheDir, idx)
		},
	}
}

func newCacheCleanCmd(logLevel *string, workers *int) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the entire build cache directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*logLevel, *workers)
			if err != nil {
				return err
			}
			if err := os.RemoveAll(cfg.CacheDir); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", cfg.CacheDir)
			return nil
		},
	}
}
