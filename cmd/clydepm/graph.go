package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGraphCmd(logLevel *string, workers *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Resolve dependencies and print the build order",
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
			graph, _, err := resolver.Resolve(cmd.Context(), rootName, rootManifest)
			if err != nil {
				return err
			}

			fmt.Println("build order (dependencies before dependents):")
			for _, id := range graph.TopologicalOrder() {
				depth, _ := graph.Depth(id)
				fmt.Printf("  [%d] %s\n", depth, id)
			}

			fmt.Println("edges:")
			for _, e := range graph.Edges() {
				fmt.Printf("  %s -> %s\n", e.From, e.To)
			}
			return nil
		},
	}
	return cmd
}
