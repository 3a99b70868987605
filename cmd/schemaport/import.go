package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schemaport/schemaport/internal/schemaport/conflicts"
	"github.com/schemaport/schemaport/internal/schemaport/document"
	"github.com/schemaport/schemaport/internal/schemaport/importer"
	"github.com/schemaport/schemaport/internal/schemaport/progress"
	"github.com/schemaport/schemaport/internal/schemaport/source"
)

var (
	importDocument    string
	importResolutions string
	importReuseAll    bool
	importRenameAll   bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an export document into the target project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importReuseAll && importRenameAll {
			return fmt.Errorf("--reuse-all and --rename-all are mutually exclusive")
		}

		file, export, err := loadDocument(importDocument)
		if err != nil {
			return err
		}
		target, client, err := openSource()
		if err != nil {
			return err
		}

		res := conflicts.NewSet()
		if importResolutions != "" {
			data, err := os.ReadFile(importResolutions)
			if err != nil {
				return fmt.Errorf("reading %s: %w", importResolutions, err)
			}
			if err := json.Unmarshal(data, res); err != nil {
				return fmt.Errorf("parsing %s: %w", importResolutions, err)
			}
		}

		m, err := conflicts.Detect(cmd.Context(), export, target, printProgress)
		if err != nil {
			return err
		}
		if err := applyMassDefaults(cmd.Context(), export, target, m, res); err != nil {
			return err
		}
		if err := conflicts.Validate(cmd.Context(), export, target, m, res); err != nil {
			if errors.Is(err, conflicts.ErrUnresolvedConflict) {
				return fmt.Errorf("%w (use --resolutions, --reuse-all or --rename-all)", err)
			}
			return err
		}

		doc, err := document.BuildImportDocument(cmd.Context(), export, []string{file.RootItemTypeID}, m, res)
		if err != nil {
			return err
		}

		cancel, stop := interruptCanceller()
		defer stop()

		result, err := importer.New(client).Run(cmd.Context(), doc, importer.Options{
			OnProgress: printProgress,
			Cancel:     cancel,
		})
		if err != nil && !errors.Is(err, progress.ErrCancelled) {
			return err
		}

		out := cmd.ErrOrStderr()
		if result.Cancelled {
			fmt.Fprintln(out, "Import cancelled; entities created so far were kept")
		}
		fmt.Fprintf(out, "Created %d plugins, %d item types, %d fieldsets, %d fields\n",
			result.Created.Plugins, result.Created.ItemTypes, result.Created.Fieldsets, result.Created.Fields)
		for _, f := range result.Failed {
			fmt.Fprintf(out, "Failed %s %s: %s\n", f.Kind, f.Label, f.Reason)
		}
		if len(result.Failed) > 0 || result.Cancelled {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVarP(&importDocument, "document", "d", "", "export document file")
	importCmd.Flags().StringVarP(&importResolutions, "resolutions", "r", "", "conflict resolutions file (JSON)")
	importCmd.Flags().BoolVar(&importReuseAll, "reuse-all", false, "resolve every conflict by reusing the target entity")
	importCmd.Flags().BoolVar(&importRenameAll, "rename-all", false, "resolve item type conflicts by renaming the imported copy")
	importCmd.MarkFlagRequired("document")
	rootCmd.AddCommand(importCmd)
}

// applyMassDefaults fills in a resolution for every detected conflict that has
// no per-entity override. Per-entity resolutions from the file always win.
func applyMassDefaults(ctx context.Context, export, target source.Source, m *conflicts.Map, res *conflicts.Set) error {
	if !importReuseAll && !importRenameAll {
		return nil
	}

	takenKeys := make(map[string]bool)
	takenNames := make(map[string]bool)
	if importRenameAll {
		existing, err := target.ItemTypes(ctx)
		if err != nil {
			return fmt.Errorf("loading target item types: %w", err)
		}
		for _, it := range existing {
			takenKeys[it.APIKey] = true
			takenNames[it.Name] = true
		}
	}

	for exportID := range m.ItemTypes {
		if _, ok := res.ItemTypes[exportID]; ok {
			continue
		}
		if importReuseAll {
			res.ItemTypes[exportID] = conflicts.ItemTypeResolution{Strategy: conflicts.ReuseExisting}
			continue
		}
		it, err := export.ItemType(ctx, exportID)
		if err != nil {
			return err
		}
		res.ItemTypes[exportID] = conflicts.ItemTypeResolution{
			Strategy: conflicts.Rename,
			Name:     uniqueName(it.Name, takenNames),
			APIKey:   conflicts.UniqueAPIKey(it.APIKey, takenKeys),
		}
	}

	// Plugins cannot be renamed; under either mass default a conflicting
	// plugin maps onto its target counterpart.
	for exportID := range m.Plugins {
		if _, ok := res.Plugins[exportID]; ok {
			continue
		}
		res.Plugins[exportID] = conflicts.PluginResolution{Strategy: conflicts.ReuseExisting}
	}
	return nil
}

func uniqueName(base string, taken map[string]bool) string {
	name := base
	for n := 2; taken[name]; n++ {
		name = fmt.Sprintf("%s %d", base, n)
	}
	taken[name] = true
	return name
}
