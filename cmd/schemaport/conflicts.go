package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schemaport/schemaport/internal/schemaport/conflicts"
	"github.com/schemaport/schemaport/internal/schemaport/core"
	"github.com/schemaport/schemaport/internal/schemaport/document"
	"github.com/schemaport/schemaport/internal/schemaport/source"
)

var (
	conflictsDocument string
	conflictsOut      string
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect conflicts between an export document and the target project",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, export, err := loadDocument(conflictsDocument)
		if err != nil {
			return err
		}
		target, _, err := openSource()
		if err != nil {
			return err
		}

		m, err := conflicts.Detect(cmd.Context(), export, target, printProgress)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding conflicts: %w", err)
		}
		if err := writeOutput(conflictsOut, data); err != nil {
			return err
		}
		if m.Empty() {
			fmt.Fprintln(cmd.ErrOrStderr(), "No conflicts detected")
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Detected %d item type and %d plugin conflicts\n",
				len(m.ItemTypes), len(m.Plugins))
		}
		return nil
	},
}

func init() {
	conflictsCmd.Flags().StringVarP(&conflictsDocument, "document", "d", "", "export document file")
	conflictsCmd.Flags().StringVarP(&conflictsOut, "out", "o", "-", "output file (- for stdout)")
	conflictsCmd.MarkFlagRequired("document")
	rootCmd.AddCommand(conflictsCmd)
}

// loadDocument reads and validates an export document from disk.
func loadDocument(path string) (*core.ExportFile, *source.DocumentSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	file, err := document.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	src, err := source.NewDocumentSource(file)
	if err != nil {
		return nil, nil, err
	}
	return file, src, nil
}
