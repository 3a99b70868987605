package document

import (
	"context"
	"fmt"
	"sort"

	"github.com/schemaport/schemaport/internal/schemaport/core"
	"github.com/schemaport/schemaport/internal/schemaport/progress"
	"github.com/schemaport/schemaport/internal/schemaport/source"
)

// ExportOptions tunes the export document builder.
type ExportOptions struct {
	OnProgress progress.Func
	Cancel     *progress.Canceller
}

// BuildExportDocument assembles a self-contained version 2 document from the
// selected item types and plugins. Referential closure is mandatory: link and
// block validators are intersected against the selected item type set, and
// appearances pointing at editors or addons outside the selected plugin set are
// rewritten to portable built-ins, so the document never references anything it
// does not itself contain.
func BuildExportDocument(ctx context.Context, src source.Source, rootItemTypeID string, itemTypeIDs, pluginIDs []string, opts ExportOptions) (*core.ExportFile, error) {
	selectedItemTypes := make(map[string]bool, len(itemTypeIDs))
	for _, id := range itemTypeIDs {
		selectedItemTypes[id] = true
	}
	selectedPlugins := make(map[string]bool, len(pluginIDs))
	for _, id := range pluginIDs {
		selectedPlugins[id] = true
	}
	if !selectedItemTypes[rootItemTypeID] {
		return nil, fmt.Errorf("root item type %s is not part of the selection", rootItemTypeID)
	}

	// Deterministic output: sorted copies, root item type first.
	sortedItemTypes := append([]string(nil), itemTypeIDs...)
	sort.Strings(sortedItemTypes)
	sortedPlugins := append([]string(nil), pluginIDs...)
	sort.Strings(sortedPlugins)

	file := &core.ExportFile{
		Version:        core.ExportVersion2,
		RootItemTypeID: rootItemTypeID,
	}

	counter := progress.NewCounter(len(itemTypeIDs)+len(pluginIDs), "", opts.OnProgress)

	for _, id := range sortedItemTypes {
		if opts.Cancel.IsCancelRequested() {
			return nil, progress.ErrCancelled
		}
		it, err := src.ItemType(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolving item type %s: %w", id, err)
		}
		fieldsets, err := src.Fieldsets(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading fieldsets of %s: %w", it.APIKey, err)
		}
		fields, err := src.Fields(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading fields of %s: %w", it.APIKey, err)
		}

		file.Entities = append(file.Entities, core.Entity{Kind: core.KindItemType, ItemType: it.Clone()})
		for _, fs := range fieldsets {
			file.Entities = append(file.Entities, core.Entity{Kind: core.KindFieldset, Fieldset: fs.Clone()})
		}
		for _, f := range fields {
			portable := portableField(f, selectedItemTypes, selectedPlugins)
			file.Entities = append(file.Entities, core.Entity{Kind: core.KindField, Field: portable})
		}
		counter.Advance(it.Name)
	}

	for _, id := range sortedPlugins {
		if opts.Cancel.IsCancelRequested() {
			return nil, progress.ErrCancelled
		}
		p, err := src.Plugin(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolving plugin %s: %w", id, err)
		}
		// Plugins are included verbatim.
		file.Entities = append(file.Entities, core.Entity{Kind: core.KindPlugin, Plugin: p.Clone()})
		counter.Advance(p.Name)
	}

	return file, nil
}

// portableField clones a field and strips everything the selection does not
// cover: out-of-selection ids in link and block validators, and editors or
// addons supplied by unselected plugins. A field must never point at an editor
// that does not exist in the destination.
func portableField(f *core.Field, selectedItemTypes, selectedPlugins map[string]bool) *core.Field {
	out := f.Clone()

	for _, name := range core.LinkValidatorNames(out.FieldType) {
		cfg, ok := out.Validators[name]
		if !ok {
			continue
		}
		var kept []string
		for _, id := range validatorItemTypeIDs(cfg) {
			if selectedItemTypes[id] {
				kept = append(kept, id)
			}
		}
		cfg[core.ItemTypeValidatorKey] = kept
	}

	if e := out.Appearance.Editor; e != "" && !core.IsBuiltinEditor(e) && !selectedPlugins[e] {
		out.Appearance.Editor = core.DefaultEditor(out.FieldType)
		out.Appearance.Parameters = nil
	}
	if len(out.Appearance.Addons) > 0 {
		kept := out.Appearance.Addons[:0]
		for _, addon := range out.Appearance.Addons {
			if selectedPlugins[addon.PluginID] {
				kept = append(kept, addon)
			}
		}
		out.Appearance.Addons = kept
	}

	return out
}

// validatorItemTypeIDs reads the item type id list out of a validator
// configuration, tolerating both in-process and JSON-decoded payload shapes.
func validatorItemTypeIDs(cfg map[string]any) []string {
	switch list := cfg[core.ItemTypeValidatorKey].(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
