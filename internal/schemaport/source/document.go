package source

import (
	"context"
	"fmt"
	"sort"

	"github.com/schemaport/schemaport/internal/schemaport/core"
)

// DocumentSource serves schema reads from a parsed export file. Everything is
// indexed up front; lookups never fail transiently.
type DocumentSource struct {
	itemTypes     []*core.ItemType
	itemTypesByID map[string]*core.ItemType
	plugins       []*core.Plugin
	pluginsByID   map[string]*core.Plugin
	fieldsByOwner map[string][]*core.Field
	setsByOwner   map[string][]*core.Fieldset
}

// NewDocumentSource indexes an export file. Fields whose owning item type is not
// part of the document violate the format and are rejected.
func NewDocumentSource(file *core.ExportFile) (*DocumentSource, error) {
	s := &DocumentSource{
		itemTypesByID: make(map[string]*core.ItemType),
		pluginsByID:   make(map[string]*core.Plugin),
		fieldsByOwner: make(map[string][]*core.Field),
		setsByOwner:   make(map[string][]*core.Fieldset),
	}

	for i := range file.Entities {
		e := &file.Entities[i]
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		switch e.Kind {
		case core.KindItemType:
			s.itemTypes = append(s.itemTypes, e.ItemType)
			s.itemTypesByID[e.ItemType.ID] = e.ItemType
		case core.KindField:
			s.fieldsByOwner[e.Field.ItemTypeID] = append(s.fieldsByOwner[e.Field.ItemTypeID], e.Field)
		case core.KindFieldset:
			s.setsByOwner[e.Fieldset.ItemTypeID] = append(s.setsByOwner[e.Fieldset.ItemTypeID], e.Fieldset)
		case core.KindPlugin:
			s.plugins = append(s.plugins, e.Plugin)
			s.pluginsByID[e.Plugin.ID] = e.Plugin
		}
	}

	// Every field and fieldset must belong to an item type in the same document.
	for owner := range s.fieldsByOwner {
		if _, ok := s.itemTypesByID[owner]; !ok {
			return nil, fmt.Errorf("field owner %q is not part of the document", owner)
		}
	}
	for owner := range s.setsByOwner {
		if _, ok := s.itemTypesByID[owner]; !ok {
			return nil, fmt.Errorf("fieldset owner %q is not part of the document", owner)
		}
	}

	for _, fields := range s.fieldsByOwner {
		sort.Slice(fields, func(i, j int) bool { return fields[i].Position < fields[j].Position })
	}
	for _, sets := range s.setsByOwner {
		sort.Slice(sets, func(i, j int) bool { return sets[i].Position < sets[j].Position })
	}

	return s, nil
}

// ItemTypes returns every item type in the document.
func (s *DocumentSource) ItemTypes(ctx context.Context) ([]*core.ItemType, error) {
	return s.itemTypes, nil
}

// ItemType returns one item type by id.
func (s *DocumentSource) ItemType(ctx context.Context, id string) (*core.ItemType, error) {
	it, ok := s.itemTypesByID[id]
	if !ok {
		return nil, fmt.Errorf("item type %q: %w", id, ErrNotFound)
	}
	return it, nil
}

// Fields returns an item type's fields ordered by position.
func (s *DocumentSource) Fields(ctx context.Context, itemTypeID string) ([]*core.Field, error) {
	if _, ok := s.itemTypesByID[itemTypeID]; !ok {
		return nil, fmt.Errorf("item type %q: %w", itemTypeID, ErrNotFound)
	}
	return s.fieldsByOwner[itemTypeID], nil
}

// Fieldsets returns an item type's fieldsets ordered by position.
func (s *DocumentSource) Fieldsets(ctx context.Context, itemTypeID string) ([]*core.Fieldset, error) {
	if _, ok := s.itemTypesByID[itemTypeID]; !ok {
		return nil, fmt.Errorf("item type %q: %w", itemTypeID, ErrNotFound)
	}
	return s.setsByOwner[itemTypeID], nil
}

// Plugins returns every plugin in the document.
func (s *DocumentSource) Plugins(ctx context.Context) ([]*core.Plugin, error) {
	return s.plugins, nil
}

// Plugin returns one plugin by id.
func (s *DocumentSource) Plugin(ctx context.Context, id string) (*core.Plugin, error) {
	p, ok := s.pluginsByID[id]
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", id, ErrNotFound)
	}
	return p, nil
}
