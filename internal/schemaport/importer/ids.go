package importer

import (
	"github.com/google/uuid"

	"github.com/schemaport/schemaport/internal/schemaport/document"
)

// IDMappings maps export-side ids to target-side ids for every entity the
// import touches, whether created or reused. Fully populated before any
// concurrent phase begins, so phases 2-6 read it without locking.
type IDMappings struct {
	ItemTypes map[string]string `json:"itemTypes"`
	Fields    map[string]string `json:"fields"`
	Fieldsets map[string]string `json:"fieldsets"`
	Plugins   map[string]string `json:"plugins"`
}

// allocateIDs mints a fresh target-side id for every entity queued for
// creation and folds in the reuse mappings, so forward references (a field
// linking to an item type created later in the same batch) resolve without a
// second pass.
func allocateIDs(doc *document.ImportDocument) *IDMappings {
	m := &IDMappings{
		ItemTypes: make(map[string]string),
		Fields:    make(map[string]string),
		Fieldsets: make(map[string]string),
		Plugins:   make(map[string]string),
	}

	for exportID, targetID := range doc.ItemTypeIDsToReuse {
		m.ItemTypes[exportID] = targetID
	}
	for exportID, targetID := range doc.PluginIDsToReuse {
		m.Plugins[exportID] = targetID
	}

	for _, plan := range doc.ItemTypesToCreate {
		m.ItemTypes[plan.ItemType.ID] = uuid.NewString()
		for _, f := range plan.Fields {
			m.Fields[f.ID] = uuid.NewString()
		}
		for _, fs := range plan.Fieldsets {
			m.Fieldsets[fs.ID] = uuid.NewString()
		}
	}
	for _, p := range doc.PluginsToCreate {
		m.Plugins[p.ID] = uuid.NewString()
	}

	return m
}
