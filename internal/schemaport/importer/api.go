// Package importer executes an import document against a target project's
// schema-management API: id allocation, then plugins, item types, fieldsets and
// fields, then finalization and reordering, in strictly ordered phases.
package importer

import (
	"context"

	"github.com/schemaport/schemaport/internal/schemaport/core"
)

// API is the slice of the schema-management API the executor writes through.
// *cma.Client implements it.
type API interface {
	Locales(ctx context.Context) ([]string, error)
	CreatePlugin(ctx context.Context, p *core.Plugin) (*core.Plugin, error)
	CreateItemType(ctx context.Context, it *core.ItemType) (*core.ItemType, error)
	UpdateItemType(ctx context.Context, it *core.ItemType) (*core.ItemType, error)
	CreateFieldset(ctx context.Context, fs *core.Fieldset) (*core.Fieldset, error)
	UpdateFieldset(ctx context.Context, fs *core.Fieldset) (*core.Fieldset, error)
	CreateField(ctx context.Context, f *core.Field) (*core.Field, error)
	UpdateField(ctx context.Context, f *core.Field) (*core.Field, error)
}
