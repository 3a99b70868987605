package source

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/schemaport/schemaport/internal/cma"
	"github.com/schemaport/schemaport/internal/schemaport/core"
)

// fieldCacheSize bounds how many item types' fields and fieldsets stay cached
// during one graph build.
const fieldCacheSize = 256

// RemoteSource serves schema reads from a live project through the management
// API. Per-item-type field and fieldset loads are cached since graph traversal
// revisits item types through multiple edges.
type RemoteSource struct {
	client *cma.Client

	itemTypes     []*core.ItemType
	itemTypesByID map[string]*core.ItemType
	plugins       []*core.Plugin
	pluginsByID   map[string]*core.Plugin

	fieldCache *lru.Cache[string, []*core.Field]
	setCache   *lru.Cache[string, []*core.Fieldset]
}

// NewRemoteSource creates a source over the given API client.
func NewRemoteSource(client *cma.Client) (*RemoteSource, error) {
	fieldCache, err := lru.New[string, []*core.Field](fieldCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating field cache: %w", err)
	}
	setCache, err := lru.New[string, []*core.Fieldset](fieldCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating fieldset cache: %w", err)
	}
	return &RemoteSource{
		client:     client,
		fieldCache: fieldCache,
		setCache:   setCache,
	}, nil
}

// ItemTypes lists the project's item types, fetching them once per source.
func (s *RemoteSource) ItemTypes(ctx context.Context) ([]*core.ItemType, error) {
	if err := s.loadItemTypes(ctx); err != nil {
		return nil, err
	}
	return s.itemTypes, nil
}

// ItemType returns one item type by id.
func (s *RemoteSource) ItemType(ctx context.Context, id string) (*core.ItemType, error) {
	if err := s.loadItemTypes(ctx); err != nil {
		return nil, err
	}
	it, ok := s.itemTypesByID[id]
	if !ok {
		return nil, fmt.Errorf("item type %q: %w", id, ErrNotFound)
	}
	return it, nil
}

// Fields returns an item type's fields, cached per item type.
func (s *RemoteSource) Fields(ctx context.Context, itemTypeID string) ([]*core.Field, error) {
	if fields, ok := s.fieldCache.Get(itemTypeID); ok {
		return fields, nil
	}
	fields, err := s.client.ListFields(ctx, itemTypeID)
	if err != nil {
		return nil, fmt.Errorf("listing fields of %s: %w", itemTypeID, err)
	}
	s.fieldCache.Add(itemTypeID, fields)
	return fields, nil
}

// Fieldsets returns an item type's fieldsets, cached per item type.
func (s *RemoteSource) Fieldsets(ctx context.Context, itemTypeID string) ([]*core.Fieldset, error) {
	if sets, ok := s.setCache.Get(itemTypeID); ok {
		return sets, nil
	}
	sets, err := s.client.ListFieldsets(ctx, itemTypeID)
	if err != nil {
		return nil, fmt.Errorf("listing fieldsets of %s: %w", itemTypeID, err)
	}
	s.setCache.Add(itemTypeID, sets)
	return sets, nil
}

// Plugins lists the project's plugins, fetching them once per source.
func (s *RemoteSource) Plugins(ctx context.Context) ([]*core.Plugin, error) {
	if err := s.loadPlugins(ctx); err != nil {
		return nil, err
	}
	return s.plugins, nil
}

// Plugin returns one plugin by id.
func (s *RemoteSource) Plugin(ctx context.Context, id string) (*core.Plugin, error) {
	if err := s.loadPlugins(ctx); err != nil {
		return nil, err
	}
	p, ok := s.pluginsByID[id]
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *RemoteSource) loadItemTypes(ctx context.Context) error {
	if s.itemTypesByID != nil {
		return nil
	}
	itemTypes, err := s.client.ListItemTypes(ctx)
	if err != nil {
		return fmt.Errorf("listing item types: %w", err)
	}
	s.itemTypes = itemTypes
	s.itemTypesByID = make(map[string]*core.ItemType, len(itemTypes))
	for _, it := range itemTypes {
		s.itemTypesByID[it.ID] = it
	}
	return nil
}

func (s *RemoteSource) loadPlugins(ctx context.Context) error {
	if s.pluginsByID != nil {
		return nil
	}
	plugins, err := s.client.ListPlugins(ctx)
	if err != nil {
		return fmt.Errorf("listing plugins: %w", err)
	}
	s.plugins = plugins
	s.pluginsByID = make(map[string]*core.Plugin, len(plugins))
	for _, p := range plugins {
		s.pluginsByID[p.ID] = p
	}
	return nil
}
