package document

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/schemaport/schemaport/internal/schemaport/core"
	"github.com/schemaport/schemaport/internal/schemaport/source"
)

func itemTypeEntity(it *core.ItemType) core.Entity {
	return core.Entity{Kind: core.KindItemType, ItemType: it}
}

func fieldEntity(f *core.Field) core.Entity {
	return core.Entity{Kind: core.KindField, Field: f}
}

func fieldsetEntity(fs *core.Fieldset) core.Entity {
	return core.Entity{Kind: core.KindFieldset, Fieldset: fs}
}

func pluginEntity(p *core.Plugin) core.Entity {
	return core.Entity{Kind: core.KindPlugin, Plugin: p}
}

func linkField(id, apiKey, owner string, position int, targets ...string) *core.Field {
	return &core.Field{
		ID:         id,
		APIKey:     apiKey,
		Label:      apiKey,
		FieldType:  "link",
		ItemTypeID: owner,
		Position:   position,
		Appearance: core.Appearance{Editor: "link_select"},
		Validators: map[string]map[string]any{
			"item_item_type": {core.ItemTypeValidatorKey: targets},
		},
	}
}

func docSource(t *testing.T, entities ...core.Entity) *source.DocumentSource {
	t.Helper()
	src, err := source.NewDocumentSource(&core.ExportFile{
		Version:  core.ExportVersion2,
		Entities: entities,
	})
	if err != nil {
		t.Fatalf("building fixture source: %v", err)
	}
	return src
}

func marshalFile(t *testing.T, file *core.ExportFile) []byte {
	t.Helper()
	data, err := json.Marshal(file)
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return data
}

func TestParseVersion2(t *testing.T) {
	data := marshalFile(t, &core.ExportFile{
		Version:        core.ExportVersion2,
		RootItemTypeID: "post",
		Entities: []core.Entity{
			itemTypeEntity(&core.ItemType{ID: "post", Name: "Post", APIKey: "post"}),
		},
	})

	file, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if file.RootItemTypeID != "post" {
		t.Errorf("RootItemTypeID = %q, want post", file.RootItemTypeID)
	}
}

func TestParseVersion2MissingRoot(t *testing.T) {
	tests := []struct {
		name string
		file *core.ExportFile
	}{
		{
			name: "empty root",
			file: &core.ExportFile{
				Version:  core.ExportVersion2,
				Entities: []core.Entity{itemTypeEntity(&core.ItemType{ID: "post", Name: "Post", APIKey: "post"})},
			},
		},
		{
			name: "root not in document",
			file: &core.ExportFile{
				Version:        core.ExportVersion2,
				RootItemTypeID: "ghost",
				Entities:       []core.Entity{itemTypeEntity(&core.ItemType{ID: "post", Name: "Post", APIKey: "post"})},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(marshalFile(t, tt.file)); err == nil {
				t.Error("Parse() should reject the document")
			}
		})
	}
}

// A version 1 document re-derives its root: the one item type no other item
// type points at. Post links to Person, so Post is the root.
func TestParseVersion1DerivesRoot(t *testing.T) {
	data := marshalFile(t, &core.ExportFile{
		Version: core.ExportVersion1,
		Entities: []core.Entity{
			itemTypeEntity(&core.ItemType{ID: "person", Name: "Person", APIKey: "person"}),
			itemTypeEntity(&core.ItemType{ID: "post", Name: "Post", APIKey: "post"}),
			fieldEntity(linkField("f-author", "author", "post", 1, "person")),
		},
	})

	file, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if file.RootItemTypeID != "post" {
		t.Errorf("derived root = %q, want post", file.RootItemTypeID)
	}
}

// Self-references do not disqualify an item type from being the root.
func TestDeriveRootIgnoresSelfReference(t *testing.T) {
	src := docSource(t,
		itemTypeEntity(&core.ItemType{ID: "page", Name: "Page", APIKey: "page"}),
		itemTypeEntity(&core.ItemType{ID: "footnote", Name: "Footnote", APIKey: "footnote"}),
		fieldEntity(linkField("f-parent", "parent", "page", 1, "page")),
		fieldEntity(linkField("f-notes", "notes", "page", 2, "footnote")),
	)

	root, err := DeriveRoot(src)
	if err != nil {
		t.Fatalf("DeriveRoot() error: %v", err)
	}
	if root != "page" {
		t.Errorf("root = %q, want page", root)
	}
}

func TestDeriveRootAmbiguous(t *testing.T) {
	src := docSource(t,
		itemTypeEntity(&core.ItemType{ID: "a", Name: "A", APIKey: "a"}),
		itemTypeEntity(&core.ItemType{ID: "b", Name: "B", APIKey: "b"}),
	)

	if _, err := DeriveRoot(src); !errors.Is(err, ErrAmbiguousRoot) {
		t.Fatalf("DeriveRoot() error = %v, want %v", err, ErrAmbiguousRoot)
	}
}

// A pure cycle has no unreferenced item type, so no root can be derived.
func TestDeriveRootCycle(t *testing.T) {
	src := docSource(t,
		itemTypeEntity(&core.ItemType{ID: "a", Name: "A", APIKey: "a"}),
		itemTypeEntity(&core.ItemType{ID: "b", Name: "B", APIKey: "b"}),
		fieldEntity(linkField("f-ab", "to_b", "a", 1, "b")),
		fieldEntity(linkField("f-ba", "to_a", "b", 1, "a")),
	)

	if _, err := DeriveRoot(src); !errors.Is(err, ErrNoRoot) {
		t.Fatalf("DeriveRoot() error = %v, want %v", err, ErrNoRoot)
	}
}

func TestParseUnsupportedVersion(t *testing.T) {
	data := marshalFile(t, &core.ExportFile{Version: "99"})
	if _, err := Parse(data); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("Parse() error = %v, want %v", err, ErrUnsupportedVersion)
	}
}

func TestParseRejectsDanglingFieldOwner(t *testing.T) {
	data := marshalFile(t, &core.ExportFile{
		Version:        core.ExportVersion2,
		RootItemTypeID: "post",
		Entities: []core.Entity{
			itemTypeEntity(&core.ItemType{ID: "post", Name: "Post", APIKey: "post"}),
			fieldEntity(linkField("f-x", "x", "ghost", 1, "post")),
		},
	})
	if _, err := Parse(data); err == nil {
		t.Error("Parse() should reject a field whose owner is missing")
	}
}
