package document

import (
	"context"
	"errors"
	"testing"

	"github.com/schemaport/schemaport/internal/schemaport/conflicts"
	"github.com/schemaport/schemaport/internal/schemaport/core"
)

func emptyConflicts() *conflicts.Map {
	return &conflicts.Map{
		ItemTypes: make(map[string]*core.ItemType),
		Plugins:   make(map[string]*core.Plugin),
	}
}

func TestBuildImportDocumentCreatesEverythingWithoutConflicts(t *testing.T) {
	export := docSource(t,
		itemTypeEntity(&core.ItemType{ID: "post", Name: "Post", APIKey: "post"}),
		itemTypeEntity(&core.ItemType{ID: "person", Name: "Person", APIKey: "person"}),
		fieldEntity(linkField("f-author", "author", "post", 1, "person")),
		fieldEntity(&core.Field{
			ID: "f-rating", APIKey: "rating", FieldType: "integer", ItemTypeID: "post", Position: 2,
			Appearance: core.Appearance{Editor: "star-rating"},
		}),
		fieldsetEntity(&core.Fieldset{ID: "fs-meta", Title: "Meta", Position: 1, ItemTypeID: "post"}),
		pluginEntity(&core.Plugin{ID: "star-rating", Name: "Star Rating", URL: "https://plugins.test/rating"}),
	)

	doc, err := BuildImportDocument(context.Background(), export, []string{"post"}, emptyConflicts(), conflicts.NewSet())
	if err != nil {
		t.Fatalf("BuildImportDocument() error: %v", err)
	}

	if len(doc.ItemTypesToCreate) != 2 {
		t.Fatalf("got %d item type plans, want 2", len(doc.ItemTypesToCreate))
	}
	// Deterministic plan order by name.
	if doc.ItemTypesToCreate[0].ItemType.ID != "person" || doc.ItemTypesToCreate[1].ItemType.ID != "post" {
		t.Errorf("plans out of order: %s, %s",
			doc.ItemTypesToCreate[0].ItemType.ID, doc.ItemTypesToCreate[1].ItemType.ID)
	}
	post := doc.ItemTypesToCreate[1]
	if len(post.Fields) != 2 || len(post.Fieldsets) != 1 {
		t.Errorf("post plan has %d fields and %d fieldsets, want 2 and 1", len(post.Fields), len(post.Fieldsets))
	}
	if len(doc.PluginsToCreate) != 1 || doc.PluginsToCreate[0].ID != "star-rating" {
		t.Errorf("PluginsToCreate = %+v, want star-rating", doc.PluginsToCreate)
	}
	if len(doc.ItemTypeIDsToReuse) != 0 || len(doc.PluginIDsToReuse) != 0 {
		t.Error("nothing should be reused without conflicts")
	}
}

// A reused item type contributes an id mapping, is not recreated, and its own
// references are not followed.
func TestBuildImportDocumentReuseStopsTraversal(t *testing.T) {
	export := docSource(t,
		itemTypeEntity(&core.ItemType{ID: "post", Name: "Post", APIKey: "post"}),
		itemTypeEntity(&core.ItemType{ID: "person", Name: "Person", APIKey: "person"}),
		itemTypeEntity(&core.ItemType{ID: "address", Name: "Address", APIKey: "address"}),
		fieldEntity(linkField("f-author", "author", "post", 1, "person")),
		fieldEntity(linkField("f-home", "home", "person", 1, "address")),
	)

	m := emptyConflicts()
	m.ItemTypes["person"] = &core.ItemType{ID: "target-person", Name: "Person", APIKey: "person"}
	res := conflicts.NewSet()
	res.ItemTypes["person"] = conflicts.ItemTypeResolution{Strategy: conflicts.ReuseExisting}

	doc, err := BuildImportDocument(context.Background(), export, []string{"post"}, m, res)
	if err != nil {
		t.Fatalf("BuildImportDocument() error: %v", err)
	}

	if len(doc.ItemTypesToCreate) != 1 || doc.ItemTypesToCreate[0].ItemType.ID != "post" {
		t.Fatalf("only post should be created, got %+v", doc.ItemTypesToCreate)
	}
	if got := doc.ItemTypeIDsToReuse["person"]; got != "target-person" {
		t.Errorf("reuse mapping = %q, want target-person", got)
	}
	// address is only reachable through the reused person: it must not appear.
	for _, plan := range doc.ItemTypesToCreate {
		if plan.ItemType.ID == "address" {
			t.Error("address should not have been traversed")
		}
	}
	if _, ok := doc.ItemTypeIDsToReuse["address"]; ok {
		t.Error("address should not have been traversed")
	}
}

func TestBuildImportDocumentRenameCarried(t *testing.T) {
	export := docSource(t,
		itemTypeEntity(&core.ItemType{ID: "post", Name: "Post", APIKey: "post"}),
	)

	m := emptyConflicts()
	m.ItemTypes["post"] = &core.ItemType{ID: "target-post", Name: "Post", APIKey: "post"}
	res := conflicts.NewSet()
	res.ItemTypes["post"] = conflicts.ItemTypeResolution{Strategy: conflicts.Rename, Name: "Post 2", APIKey: "post_2"}

	doc, err := BuildImportDocument(context.Background(), export, []string{"post"}, m, res)
	if err != nil {
		t.Fatalf("BuildImportDocument() error: %v", err)
	}
	if len(doc.ItemTypesToCreate) != 1 {
		t.Fatalf("got %d plans, want 1", len(doc.ItemTypesToCreate))
	}
	rename := doc.ItemTypesToCreate[0].Rename
	if rename == nil || rename.Name != "Post 2" || rename.APIKey != "post_2" {
		t.Errorf("rename = %+v, want Post 2 / post_2", rename)
	}
}

func TestBuildImportDocumentPluginResolutions(t *testing.T) {
	export := docSource(t,
		itemTypeEntity(&core.ItemType{ID: "post", Name: "Post", APIKey: "post"}),
		fieldEntity(&core.Field{
			ID: "f-a", APIKey: "a", FieldType: "string", ItemTypeID: "post", Position: 1,
			Appearance: core.Appearance{Editor: "plug-reuse"},
		}),
		fieldEntity(&core.Field{
			ID: "f-b", APIKey: "b", FieldType: "string", ItemTypeID: "post", Position: 2,
			Appearance: core.Appearance{Editor: "plug-skip"},
		}),
		fieldEntity(&core.Field{
			ID: "f-c", APIKey: "c", FieldType: "string", ItemTypeID: "post", Position: 3,
			Appearance: core.Appearance{Editor: "plug-new"},
		}),
		pluginEntity(&core.Plugin{ID: "plug-reuse", Name: "Reused", URL: "https://plugins.test/reuse"}),
		pluginEntity(&core.Plugin{ID: "plug-skip", Name: "Skipped", URL: "https://plugins.test/skip"}),
		pluginEntity(&core.Plugin{ID: "plug-new", Name: "New", URL: "https://plugins.test/new"}),
	)

	m := emptyConflicts()
	m.Plugins["plug-reuse"] = &core.Plugin{ID: "target-reuse", Name: "Reused", URL: "https://plugins.test/reuse"}
	m.Plugins["plug-skip"] = &core.Plugin{ID: "target-skip", Name: "Skipped", URL: "https://plugins.test/skip"}
	res := conflicts.NewSet()
	res.Plugins["plug-reuse"] = conflicts.PluginResolution{Strategy: conflicts.ReuseExisting}
	res.Plugins["plug-skip"] = conflicts.PluginResolution{Strategy: conflicts.Skip}

	doc, err := BuildImportDocument(context.Background(), export, []string{"post"}, m, res)
	if err != nil {
		t.Fatalf("BuildImportDocument() error: %v", err)
	}

	if len(doc.PluginsToCreate) != 1 || doc.PluginsToCreate[0].ID != "plug-new" {
		t.Errorf("PluginsToCreate = %+v, want only plug-new", doc.PluginsToCreate)
	}
	if got := doc.PluginIDsToReuse["plug-reuse"]; got != "target-reuse" {
		t.Errorf("reuse mapping = %q, want target-reuse", got)
	}
	if _, ok := doc.PluginIDsToReuse["plug-skip"]; ok {
		t.Error("skipped plugin must not be mapped")
	}
}

func TestBuildImportDocumentUnresolvedPluginFails(t *testing.T) {
	export := docSource(t,
		itemTypeEntity(&core.ItemType{ID: "post", Name: "Post", APIKey: "post"}),
		fieldEntity(&core.Field{
			ID: "f-a", APIKey: "a", FieldType: "string", ItemTypeID: "post", Position: 1,
			Appearance: core.Appearance{Editor: "plug"},
		}),
		pluginEntity(&core.Plugin{ID: "plug", Name: "Plug", URL: "https://plugins.test/plug"}),
	)

	m := emptyConflicts()
	m.Plugins["plug"] = &core.Plugin{ID: "target-plug", Name: "Plug", URL: "https://plugins.test/plug"}

	_, err := BuildImportDocument(context.Background(), export, []string{"post"}, m, conflicts.NewSet())
	if !errors.Is(err, conflicts.ErrUnresolvedConflict) {
		t.Fatalf("BuildImportDocument() error = %v, want %v", err, conflicts.ErrUnresolvedConflict)
	}
}

// Create and reuse sets are disjoint and cover exactly the reachable selection.
func TestBuildImportDocumentDisjointness(t *testing.T) {
	export := docSource(t,
		itemTypeEntity(&core.ItemType{ID: "a", Name: "A", APIKey: "a"}),
		itemTypeEntity(&core.ItemType{ID: "b", Name: "B", APIKey: "b"}),
		itemTypeEntity(&core.ItemType{ID: "c", Name: "C", APIKey: "c"}),
		fieldEntity(linkField("f-ab", "to_b", "a", 1, "b")),
		fieldEntity(linkField("f-ac", "to_c", "a", 2, "c")),
	)

	m := emptyConflicts()
	m.ItemTypes["b"] = &core.ItemType{ID: "target-b", Name: "B", APIKey: "b"}
	res := conflicts.NewSet()
	res.ItemTypes["b"] = conflicts.ItemTypeResolution{Strategy: conflicts.ReuseExisting}

	doc, err := BuildImportDocument(context.Background(), export, []string{"a"}, m, res)
	if err != nil {
		t.Fatalf("BuildImportDocument() error: %v", err)
	}

	created := make(map[string]bool)
	for _, plan := range doc.ItemTypesToCreate {
		created[plan.ItemType.ID] = true
	}
	for id := range doc.ItemTypeIDsToReuse {
		if created[id] {
			t.Errorf("item type %s is both created and reused", id)
		}
	}
	covered := len(created) + len(doc.ItemTypeIDsToReuse)
	if covered != 3 {
		t.Errorf("create+reuse cover %d item types, want 3", covered)
	}
}
