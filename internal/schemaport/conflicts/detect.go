// Package conflicts compares an export document against a target project's
// schema and models the user decisions that resolve the collisions it finds.
package conflicts

import (
	"context"
	"fmt"

	"github.com/schemaport/schemaport/internal/schemaport/core"
	"github.com/schemaport/schemaport/internal/schemaport/progress"
	"github.com/schemaport/schemaport/internal/schemaport/source"
)

// Map holds every detected collision, keyed by export entity id and carrying
// the conflicting target entity. Only entities with a collision appear.
type Map struct {
	ItemTypes map[string]*core.ItemType `json:"itemTypes"`
	Plugins   map[string]*core.Plugin   `json:"plugins"`
}

// Empty reports whether no conflicts were found.
func (m *Map) Empty() bool {
	return len(m.ItemTypes) == 0 && len(m.Plugins) == 0
}

// Detect loads the target project's item types and plugins (one round trip
// each), indexes them, and looks up every export entity first by stable
// identifier, then by display name. Identifier matches take precedence: they
// are the authoritative collision signal, names are advisory. Every apiKey or
// URL collision is guaranteed to be reported; name-only collisions are
// surfaced so a human can decide.
func Detect(ctx context.Context, export, target source.Source, onProgress progress.Func) (*Map, error) {
	targetItemTypes, err := target.ItemTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading target item types: %w", err)
	}
	targetPlugins, err := target.Plugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading target plugins: %w", err)
	}

	byAPIKey := make(map[string]*core.ItemType, len(targetItemTypes))
	byName := make(map[string]*core.ItemType, len(targetItemTypes))
	for _, it := range targetItemTypes {
		if _, ok := byAPIKey[it.APIKey]; !ok {
			byAPIKey[it.APIKey] = it
		}
		if _, ok := byName[it.Name]; !ok {
			byName[it.Name] = it
		}
	}

	byIdentity := make(map[string]*core.Plugin, len(targetPlugins))
	byPluginName := make(map[string]*core.Plugin, len(targetPlugins))
	for _, p := range targetPlugins {
		if id := p.StableIdentity(); id != "" {
			if _, ok := byIdentity[id]; !ok {
				byIdentity[id] = p
			}
		}
		if _, ok := byPluginName[p.Name]; !ok {
			byPluginName[p.Name] = p
		}
	}

	exportItemTypes, err := export.ItemTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading export item types: %w", err)
	}
	exportPlugins, err := export.Plugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading export plugins: %w", err)
	}

	m := &Map{
		ItemTypes: make(map[string]*core.ItemType),
		Plugins:   make(map[string]*core.Plugin),
	}

	total := len(exportItemTypes) + len(exportPlugins)
	done := 0

	for _, it := range exportItemTypes {
		if match, ok := byAPIKey[it.APIKey]; ok {
			m.ItemTypes[it.ID] = match
		} else if match, ok := byName[it.Name]; ok {
			m.ItemTypes[it.ID] = match
		}
		done++
		onProgress.Emit(progress.Event{Done: done, Total: total, Label: it.Name})
	}

	for _, p := range exportPlugins {
		if match, ok := byIdentity[p.StableIdentity()]; ok && p.StableIdentity() != "" {
			m.Plugins[p.ID] = match
		} else if match, ok := byPluginName[p.Name]; ok {
			m.Plugins[p.ID] = match
		}
		done++
		onProgress.Emit(progress.Event{Done: done, Total: total, Label: p.Name})
	}

	return m, nil
}
