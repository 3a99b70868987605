package core

import (
	"encoding/json"
	"fmt"
)

// EntityKind discriminates the records in an export file.
type EntityKind string

const (
	KindItemType EntityKind = "item_type"
	KindField    EntityKind = "field"
	KindFieldset EntityKind = "fieldset"
	KindPlugin   EntityKind = "plugin"
)

// Entity is one record of an export file: exactly one of the payload pointers is
// set, matching Kind. Consumers switch on Kind exhaustively.
type Entity struct {
	Kind     EntityKind `json:"kind"`
	ItemType *ItemType  `json:"item_type,omitempty"`
	Field    *Field     `json:"field,omitempty"`
	Fieldset *Fieldset  `json:"fieldset,omitempty"`
	Plugin   *Plugin    `json:"plugin,omitempty"`
}

// Validate checks that the entity's payload matches its kind.
func (e *Entity) Validate() error {
	switch e.Kind {
	case KindItemType:
		if e.ItemType == nil {
			return fmt.Errorf("item_type entity missing payload")
		}
	case KindField:
		if e.Field == nil {
			return fmt.Errorf("field entity missing payload")
		}
	case KindFieldset:
		if e.Fieldset == nil {
			return fmt.Errorf("fieldset entity missing payload")
		}
	case KindPlugin:
		if e.Plugin == nil {
			return fmt.Errorf("plugin entity missing payload")
		}
	default:
		return fmt.Errorf("unknown entity kind %q", e.Kind)
	}
	return nil
}

// Export file format versions. Version 2 carries the traversal root; version 1
// documents must re-derive it.
const (
	ExportVersion1 = "1"
	ExportVersion2 = "2"
)

// ExportFile is the portable document produced by an export and consumed by an
// import. Entities are self-contained: every id referenced by a link or block
// validator resolves within the same document.
type ExportFile struct {
	Version        string   `json:"version"`
	RootItemTypeID string   `json:"rootItemTypeId,omitempty"`
	Entities       []Entity `json:"entities"`
}

// MarshalIndent renders the document the way export files are written to disk.
func (f *ExportFile) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export file: %w", err)
	}
	return data, nil
}
