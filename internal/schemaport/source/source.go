// Package source provides read-through access to a project's schema, whether it
// lives behind the remote management API or inside a previously produced export
// document.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/schemaport/schemaport/internal/schemaport/core"
)

// ErrNotFound is returned when a lookup by id has no match in the source.
var ErrNotFound = errors.New("entity not found")

// Source exposes a project's item types, fields, fieldsets and plugins. Both
// the remote project and a parsed export document implement it.
type Source interface {
	// ItemTypes returns every item type in the project.
	ItemTypes(ctx context.Context) ([]*core.ItemType, error)
	// ItemType returns one item type by id.
	ItemType(ctx context.Context, id string) (*core.ItemType, error)
	// Fields returns an item type's fields ordered by position.
	Fields(ctx context.Context, itemTypeID string) ([]*core.Field, error)
	// Fieldsets returns an item type's fieldsets ordered by position.
	Fieldsets(ctx context.Context, itemTypeID string) ([]*core.Fieldset, error)
	// Plugins returns every installed plugin.
	Plugins(ctx context.Context) ([]*core.Plugin, error)
	// Plugin returns one plugin by id.
	Plugin(ctx context.Context, id string) (*core.Plugin, error)
}

// InstalledPluginIDs loads the source's plugins and returns their ids. Helper
// for building a refs.PluginSet.
func InstalledPluginIDs(ctx context.Context, src Source) ([]string, error) {
	plugins, err := src.Plugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing plugins: %w", err)
	}
	ids := make([]string, 0, len(plugins))
	for _, p := range plugins {
		ids = append(ids, p.ID)
	}
	return ids, nil
}
