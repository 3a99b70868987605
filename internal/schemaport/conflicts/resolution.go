package conflicts

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/schemaport/schemaport/internal/schemaport/source"
)

// Strategy is the user's chosen way of resolving one conflict.
type Strategy string

const (
	// ReuseExisting maps the export entity onto the conflicting target entity
	// instead of recreating it.
	ReuseExisting Strategy = "reuseExisting"
	// Rename creates the export item type under a new name and apiKey.
	Rename Strategy = "rename"
	// Skip drops a conflicting plugin from the import entirely.
	Skip Strategy = "skip"
)

// ItemTypeResolution resolves one conflicting item type.
type ItemTypeResolution struct {
	Strategy Strategy `json:"strategy"`
	// Name and APIKey are the rename targets; only read when Strategy is Rename.
	Name   string `json:"name,omitempty"`
	APIKey string `json:"apiKey,omitempty"`
}

// PluginResolution resolves one conflicting plugin.
type PluginResolution struct {
	Strategy Strategy `json:"strategy"`
}

// Set carries the user's resolutions for a whole import, keyed by export
// entity id.
type Set struct {
	ItemTypes map[string]ItemTypeResolution `json:"itemTypes"`
	Plugins   map[string]PluginResolution   `json:"plugins"`
}

// NewSet returns an empty resolution set.
func NewSet() *Set {
	return &Set{
		ItemTypes: make(map[string]ItemTypeResolution),
		Plugins:   make(map[string]PluginResolution),
	}
}

// ResolveItemType applies the precedence rule for item type resolutions: a
// per-entity override wins over the mass default.
func ResolveItemType(massDefault *ItemTypeResolution, override *ItemTypeResolution) *ItemTypeResolution {
	if override != nil {
		return override
	}
	return massDefault
}

// ResolvePlugin applies the precedence rule for plugin resolutions: a
// per-entity override wins over the mass default.
func ResolvePlugin(massDefault *PluginResolution, override *PluginResolution) *PluginResolution {
	if override != nil {
		return override
	}
	return massDefault
}

// ErrUnresolvedConflict marks a detected conflict with no valid resolution.
// Import must not start while any conflict is in this state.
var ErrUnresolvedConflict = errors.New("unresolved conflict")

// apiKeyPattern is the identifier grammar for item type api keys: lowercase
// alphanumeric segments joined by single underscores, starting with a letter.
var apiKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

// ValidAPIKey reports whether the candidate satisfies the identifier grammar.
func ValidAPIKey(key string) bool {
	return apiKeyPattern.MatchString(key)
}

// UniqueAPIKey returns base if it is not taken, otherwise the first suffixed
// variant (base_2, base_3, ...) that is free. Used to force uniqueness during
// mass rename. The returned key is recorded in taken.
func UniqueAPIKey(base string, taken map[string]bool) string {
	key := base
	for n := 2; taken[key]; n++ {
		key = fmt.Sprintf("%s_%d", base, n)
	}
	taken[key] = true
	return key
}

// Validate checks that every detected conflict has a legal resolution before an
// import document is built:
//
//   - every conflicting item type is resolved;
//   - reuseExisting only maps blocks onto blocks and models onto models;
//   - rename targets satisfy the apiKey grammar and collide neither with the
//     target project's existing item types nor with other pending renames;
//   - every conflicting plugin is resolved as reuseExisting or skip.
func Validate(ctx context.Context, export, target source.Source, m *Map, res *Set) error {
	targetItemTypes, err := target.ItemTypes(ctx)
	if err != nil {
		return fmt.Errorf("loading target item types: %w", err)
	}
	takenAPIKeys := make(map[string]bool, len(targetItemTypes))
	takenNames := make(map[string]bool, len(targetItemTypes))
	for _, it := range targetItemTypes {
		takenAPIKeys[it.APIKey] = true
		takenNames[it.Name] = true
	}

	for exportID, targetIT := range m.ItemTypes {
		r, ok := res.ItemTypes[exportID]
		if !ok {
			return fmt.Errorf("item type %s: %w", exportID, ErrUnresolvedConflict)
		}
		switch r.Strategy {
		case ReuseExisting:
			exportIT, err := export.ItemType(ctx, exportID)
			if err != nil {
				return fmt.Errorf("resolving export item type %s: %w", exportID, err)
			}
			if exportIT.IsBlock != targetIT.IsBlock {
				return fmt.Errorf("item type %s: cannot reuse %s: %w",
					exportIT.APIKey, targetIT.APIKey, errBlockModelMismatch)
			}
		case Rename:
			if !ValidAPIKey(r.APIKey) {
				return fmt.Errorf("item type %s: rename api key %q is not a valid identifier: %w",
					exportID, r.APIKey, ErrUnresolvedConflict)
			}
			if r.Name == "" {
				return fmt.Errorf("item type %s: rename name must not be empty: %w",
					exportID, ErrUnresolvedConflict)
			}
			if takenAPIKeys[r.APIKey] {
				return fmt.Errorf("item type %s: rename api key %q already taken: %w",
					exportID, r.APIKey, ErrUnresolvedConflict)
			}
			if takenNames[r.Name] {
				return fmt.Errorf("item type %s: rename name %q already taken: %w",
					exportID, r.Name, ErrUnresolvedConflict)
			}
			// Later renames must not collide with this one either.
			takenAPIKeys[r.APIKey] = true
			takenNames[r.Name] = true
		default:
			return fmt.Errorf("item type %s: invalid strategy %q: %w", exportID, r.Strategy, ErrUnresolvedConflict)
		}
	}

	for exportID := range m.Plugins {
		r, ok := res.Plugins[exportID]
		if !ok {
			return fmt.Errorf("plugin %s: %w", exportID, ErrUnresolvedConflict)
		}
		if r.Strategy != ReuseExisting && r.Strategy != Skip {
			return fmt.Errorf("plugin %s: invalid strategy %q: %w", exportID, r.Strategy, ErrUnresolvedConflict)
		}
	}

	return nil
}

var errBlockModelMismatch = errors.New("blocks can only reuse blocks and models can only reuse models")
