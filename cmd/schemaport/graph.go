package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemaport/schemaport/internal/schemaport/graph"
	"github.com/schemaport/schemaport/internal/schemaport/refs"
	"github.com/schemaport/schemaport/internal/schemaport/source"
)

var (
	graphItemTypes []string
	graphSelected  []string
	graphOut       string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build the dependency graph of a schema selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		src, _, err := openSource()
		if err != nil {
			return err
		}

		g, err := buildProjectGraph(cmd.Context(), src, graphItemTypes, graphSelected)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding graph: %w", err)
		}
		if err := writeOutput(graphOut, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Graph: %d nodes, %d edges\n", len(g.Nodes), len(g.Edges))
		return nil
	},
}

func init() {
	graphCmd.Flags().StringSliceVar(&graphItemTypes, "item-types", nil, "seed item type ids")
	graphCmd.Flags().StringSliceVar(&graphSelected, "selected", nil, "restrict expansion to these item type ids")
	graphCmd.Flags().StringVarP(&graphOut, "out", "o", "-", "output file (- for stdout)")
	graphCmd.MarkFlagRequired("item-types")
	rootCmd.AddCommand(graphCmd)
}

// buildProjectGraph assembles the dependency graph of the given seeds against
// a live project, with the installed plugin set resolved up front.
func buildProjectGraph(ctx context.Context, src source.Source, seeds, selected []string) (*graph.Graph, error) {
	installedIDs, err := source.InstalledPluginIDs(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("loading installed plugins: %w", err)
	}

	var selectedSet map[string]bool
	if len(selected) > 0 {
		selectedSet = make(map[string]bool, len(selected)+len(seeds))
		for _, id := range seeds {
			selectedSet[id] = true
		}
		for _, id := range selected {
			selectedSet[id] = true
		}
	}

	return graph.Build(ctx, src, seeds, graph.BuildOptions{
		Selected:   selectedSet,
		Installed:  refs.NewPluginSet(installedIDs),
		OnProgress: printProgress,
	})
}
