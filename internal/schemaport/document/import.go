package document

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/schemaport/schemaport/internal/schemaport/conflicts"
	"github.com/schemaport/schemaport/internal/schemaport/core"
	"github.com/schemaport/schemaport/internal/schemaport/refs"
	"github.com/schemaport/schemaport/internal/schemaport/source"
)

// RenameTarget is the resolved name and apiKey an item type is created under
// when its conflict was resolved by renaming.
type RenameTarget struct {
	Name   string `json:"name"`
	APIKey string `json:"apiKey"`
}

// ItemTypePlan is one item type queued for creation, together with everything
// the executor needs to recreate it.
type ItemTypePlan struct {
	ItemType  *core.ItemType   `json:"itemType"`
	Fields    []*core.Field    `json:"fields"`
	Fieldsets []*core.Fieldset `json:"fieldsets"`
	Rename    *RenameTarget    `json:"rename,omitempty"`
}

// ImportDocument is the import executor's sole input, built once per import
// attempt. For both item types and plugins, the entities to create and the ids
// to reuse are disjoint and together cover exactly the import's selection.
type ImportDocument struct {
	ItemTypesToCreate  []*ItemTypePlan   `json:"itemTypesToCreate"`
	ItemTypeIDsToReuse map[string]string `json:"itemTypeIdsToReuse"`
	PluginsToCreate    []*core.Plugin    `json:"pluginsToCreate"`
	PluginIDsToReuse   map[string]string `json:"pluginIdsToReuse"`
}

// BuildImportDocument walks the export's dependency graph from its root item
// types, applying the user's resolutions: reused item types contribute an id
// mapping and are not traversed further; reused plugins contribute a mapping;
// skipped plugins disappear entirely. A plugin with a detected conflict and no
// resolution is an invalid state and is rejected.
func BuildImportDocument(ctx context.Context, export source.Source, rootItemTypeIDs []string, m *conflicts.Map, res *conflicts.Set) (*ImportDocument, error) {
	installedIDs, err := source.InstalledPluginIDs(ctx, export)
	if err != nil {
		return nil, err
	}
	installed := refs.NewPluginSet(installedIDs)

	doc := &ImportDocument{
		ItemTypeIDsToReuse: make(map[string]string),
		PluginIDsToReuse:   make(map[string]string),
	}

	visited := make(map[string]bool)
	queue := append([]string(nil), rootItemTypeIDs...)
	for _, id := range queue {
		visited["item_type:"+id] = true
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		it, err := export.ItemType(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolving export item type %s: %w", id, err)
		}

		if _, conflicting := m.ItemTypes[id]; conflicting {
			if r, ok := res.ItemTypes[id]; ok && r.Strategy == conflicts.ReuseExisting {
				// Dependents still need the mapping, but the definition is not
				// recreated and its own references are not followed.
				doc.ItemTypeIDsToReuse[id] = m.ItemTypes[id].ID
				continue
			}
		}

		fields, err := export.Fields(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading fields of %s: %w", it.APIKey, err)
		}
		fieldsets, err := export.Fieldsets(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading fieldsets of %s: %w", it.APIKey, err)
		}

		plan := &ItemTypePlan{ItemType: it, Fields: fields, Fieldsets: fieldsets}
		if r, ok := res.ItemTypes[id]; ok && r.Strategy == conflicts.Rename {
			plan.Rename = &RenameTarget{Name: r.Name, APIKey: r.APIKey}
		}
		doc.ItemTypesToCreate = append(doc.ItemTypesToCreate, plan)

		for _, f := range fields {
			for _, targetID := range refs.LinkedItemTypeIDs(f) {
				key := "item_type:" + targetID
				if !visited[key] {
					visited[key] = true
					queue = append(queue, targetID)
				}
			}
			for _, pluginID := range refs.LinkedPluginIDs(f, installed) {
				key := "plugin:" + pluginID
				if visited[key] {
					continue
				}
				visited[key] = true
				if err := planPlugin(ctx, export, pluginID, m, res, doc); err != nil {
					return nil, err
				}
			}
		}
	}

	// Deterministic plan order: creation happens concurrently anyway, and a
	// stable document makes imports reproducible.
	sort.Slice(doc.ItemTypesToCreate, func(i, j int) bool {
		a, b := doc.ItemTypesToCreate[i].ItemType, doc.ItemTypesToCreate[j].ItemType
		if an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name); an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
	sort.Slice(doc.PluginsToCreate, func(i, j int) bool {
		return doc.PluginsToCreate[i].ID < doc.PluginsToCreate[j].ID
	})

	return doc, nil
}

func planPlugin(ctx context.Context, export source.Source, pluginID string, m *conflicts.Map, res *conflicts.Set, doc *ImportDocument) error {
	target, conflicting := m.Plugins[pluginID]
	if !conflicting {
		p, err := export.Plugin(ctx, pluginID)
		if err != nil {
			return fmt.Errorf("resolving export plugin %s: %w", pluginID, err)
		}
		doc.PluginsToCreate = append(doc.PluginsToCreate, p)
		return nil
	}

	r, ok := res.Plugins[pluginID]
	if !ok {
		return fmt.Errorf("plugin %s: %w", pluginID, conflicts.ErrUnresolvedConflict)
	}
	switch r.Strategy {
	case conflicts.ReuseExisting:
		doc.PluginIDsToReuse[pluginID] = target.ID
	case conflicts.Skip:
		// Dropped from the import; fields referencing it lose the dependency.
	default:
		return fmt.Errorf("plugin %s: invalid strategy %q: %w", pluginID, r.Strategy, conflicts.ErrUnresolvedConflict)
	}
	return nil
}
