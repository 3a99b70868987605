package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemaport/schemaport/internal/schemaport/document"
	"github.com/schemaport/schemaport/internal/schemaport/graph"
)

var (
	exportRoot      string
	exportItemTypes []string
	exportPlugins   []string
	exportOut       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an item type and its dependencies to a portable document",
	RunE: func(cmd *cobra.Command, args []string) error {
		src, _, err := openSource()
		if err != nil {
			return err
		}
		cancel, stop := interruptCanceller()
		defer stop()

		// The selection is the root's dependency closure, optionally narrowed
		// to --item-types (plus whatever those still pull in transitively).
		g, err := buildProjectGraph(cmd.Context(), src, []string{exportRoot}, exportItemTypes)
		if err != nil {
			return err
		}

		var itemTypeIDs, pluginIDs []string
		keepPlugin := make(map[string]bool, len(exportPlugins))
		for _, id := range exportPlugins {
			keepPlugin[id] = true
		}
		for _, n := range g.Nodes {
			if n.Excluded {
				continue
			}
			switch n.Kind {
			case graph.NodeItemType:
				itemTypeIDs = append(itemTypeIDs, n.ItemType.ID)
			case graph.NodePlugin:
				if len(exportPlugins) == 0 || keepPlugin[n.Plugin.ID] {
					pluginIDs = append(pluginIDs, n.Plugin.ID)
				}
			}
		}

		file, err := document.BuildExportDocument(cmd.Context(), src, exportRoot, itemTypeIDs, pluginIDs, document.ExportOptions{
			OnProgress: printProgress,
			Cancel:     cancel,
		})
		if err != nil {
			return err
		}

		data, err := file.MarshalIndent()
		if err != nil {
			return err
		}
		if err := writeOutput(exportOut, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entities to %s\n", len(file.Entities), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRoot, "root", "", "traversal root item type id")
	exportCmd.Flags().StringSliceVar(&exportItemTypes, "item-types", nil, "restrict the selection to these item type ids")
	exportCmd.Flags().StringSliceVar(&exportPlugins, "plugins", nil, "restrict exported plugins to these ids")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "schema-export.json", "output file (- for stdout)")
	exportCmd.MarkFlagRequired("root")
	rootCmd.AddCommand(exportCmd)
}
