package importer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/schemaport/schemaport/internal/schemaport/core"
	"github.com/schemaport/schemaport/internal/schemaport/document"
	"github.com/schemaport/schemaport/internal/schemaport/progress"
)

// fakeAPI records every write and echoes payloads back, the way the real API
// returns the created record. Failures are injected per entity identifier.
type fakeAPI struct {
	locales []string

	failItemTypes map[string]bool // by api key
	failFields    map[string]bool // by api key
	failPlugins   map[string]bool // by name

	mu               sync.Mutex
	createdPlugins   []*core.Plugin
	createdItemTypes []*core.ItemType
	updatedItemTypes []*core.ItemType
	createdFieldsets []*core.Fieldset
	updatedFieldsets []*core.Fieldset
	createdFields    []*core.Field
	updatedFields    []*core.Field
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		locales:       []string{"en"},
		failItemTypes: make(map[string]bool),
		failFields:    make(map[string]bool),
		failPlugins:   make(map[string]bool),
	}
}

func (a *fakeAPI) Locales(ctx context.Context) ([]string, error) {
	return a.locales, nil
}

func (a *fakeAPI) CreatePlugin(ctx context.Context, p *core.Plugin) (*core.Plugin, error) {
	if a.failPlugins[p.Name] {
		return nil, errors.New("plugin rejected")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.createdPlugins = append(a.createdPlugins, p.Clone())
	return p.Clone(), nil
}

func (a *fakeAPI) CreateItemType(ctx context.Context, it *core.ItemType) (*core.ItemType, error) {
	if a.failItemTypes[it.APIKey] {
		return nil, errors.New("item type rejected")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.createdItemTypes = append(a.createdItemTypes, it.Clone())
	return it.Clone(), nil
}

func (a *fakeAPI) UpdateItemType(ctx context.Context, it *core.ItemType) (*core.ItemType, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updatedItemTypes = append(a.updatedItemTypes, it.Clone())
	return it.Clone(), nil
}

func (a *fakeAPI) CreateFieldset(ctx context.Context, fs *core.Fieldset) (*core.Fieldset, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.createdFieldsets = append(a.createdFieldsets, fs.Clone())
	return fs.Clone(), nil
}

func (a *fakeAPI) UpdateFieldset(ctx context.Context, fs *core.Fieldset) (*core.Fieldset, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updatedFieldsets = append(a.updatedFieldsets, fs.Clone())
	return fs.Clone(), nil
}

func (a *fakeAPI) CreateField(ctx context.Context, f *core.Field) (*core.Field, error) {
	if a.failFields[f.APIKey] {
		return nil, errors.New("field rejected")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.createdFields = append(a.createdFields, f.Clone())
	return f.Clone(), nil
}

func (a *fakeAPI) UpdateField(ctx context.Context, f *core.Field) (*core.Field, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updatedFields = append(a.updatedFields, f.Clone())
	return f.Clone(), nil
}

func (a *fakeAPI) createdField(t *testing.T, apiKey string) *core.Field {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, f := range a.createdFields {
		if f.APIKey == apiKey {
			return f
		}
	}
	t.Fatalf("field %q was not created", apiKey)
	return nil
}

func emptyImportDocument() *document.ImportDocument {
	return &document.ImportDocument{
		ItemTypeIDsToReuse: make(map[string]string),
		PluginIDsToReuse:   make(map[string]string),
	}
}

func TestRunCreatesEverything(t *testing.T) {
	post := &core.ItemType{
		ID: "it-post", Name: "Post", APIKey: "post",
		FieldIDs:     []string{"f-title", "f-rating"},
		FieldsetIDs:  []string{"fs-meta"},
		TitleFieldID: "f-title",
	}
	title := &core.Field{
		ID: "f-title", APIKey: "title", FieldType: "string", Position: 1,
		ItemTypeID: "it-post",
		Appearance: core.Appearance{Editor: "single_line"},
	}
	rating := &core.Field{
		ID: "f-rating", APIKey: "rating", FieldType: "integer", Position: 3,
		ItemTypeID: "it-post", FieldsetID: "fs-meta",
		Appearance: core.Appearance{Editor: "plug-star"},
	}
	meta := &core.Fieldset{ID: "fs-meta", Title: "Meta", Position: 2, ItemTypeID: "it-post"}
	star := &core.Plugin{ID: "plug-star", Name: "Star Rating", URL: "https://plugins.test/star"}

	doc := emptyImportDocument()
	doc.ItemTypesToCreate = []*document.ItemTypePlan{{
		ItemType:  post,
		Fields:    []*core.Field{title, rating},
		Fieldsets: []*core.Fieldset{meta},
	}}
	doc.PluginsToCreate = []*core.Plugin{star}

	api := newFakeAPI()
	res, err := New(api).Run(context.Background(), doc, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := Tally{Plugins: 1, ItemTypes: 1, Fieldsets: 1, Fields: 2}
	if res.Created != want {
		t.Fatalf("created tally = %+v, want %+v", res.Created, want)
	}
	if len(res.Failed) != 0 || res.Cancelled {
		t.Fatalf("unexpected failures %v or cancellation", res.Failed)
	}

	// The shell must carry no relationships and the minted id.
	shell := api.createdItemTypes[0]
	if shell.ID != res.Mappings.ItemTypes["it-post"] {
		t.Errorf("shell id = %q, want mapped id %q", shell.ID, res.Mappings.ItemTypes["it-post"])
	}
	if shell.FieldIDs != nil || shell.FieldsetIDs != nil || shell.TitleFieldID != "" {
		t.Errorf("shell carries relationships: %+v", shell)
	}

	fs := api.createdFieldsets[0]
	if fs.ID != res.Mappings.Fieldsets["fs-meta"] || fs.ItemTypeID != res.Mappings.ItemTypes["it-post"] {
		t.Errorf("fieldset not remapped: %+v", fs)
	}

	created := api.createdField(t, "rating")
	if created.ItemTypeID != res.Mappings.ItemTypes["it-post"] {
		t.Errorf("field owner = %q, want mapped item type id", created.ItemTypeID)
	}
	if created.FieldsetID != res.Mappings.Fieldsets["fs-meta"] {
		t.Errorf("field fieldset = %q, want mapped fieldset id", created.FieldsetID)
	}
	if created.Appearance.Editor != res.Mappings.Plugins["plug-star"] {
		t.Errorf("field editor = %q, want mapped plugin id", created.Appearance.Editor)
	}

	if len(api.updatedItemTypes) != 1 {
		t.Fatalf("got %d item type updates, want the finalization write", len(api.updatedItemTypes))
	}
	if got := api.updatedItemTypes[0].TitleFieldID; got != res.Mappings.Fields["f-title"] {
		t.Errorf("finalized title field = %q, want mapped field id", got)
	}
}

func TestRunProgressAccounting(t *testing.T) {
	post := &core.ItemType{ID: "it-post", Name: "Post", APIKey: "post", FieldIDs: []string{"f-a", "f-b", "f-c"}}
	var fields []*core.Field
	for _, id := range []string{"f-a", "f-b", "f-c"} {
		fields = append(fields, &core.Field{
			ID: id, APIKey: strings.TrimPrefix(id, "f-"), FieldType: "string",
			ItemTypeID: "it-post", Appearance: core.Appearance{Editor: "single_line"},
		})
	}
	doc := emptyImportDocument()
	doc.ItemTypesToCreate = []*document.ItemTypePlan{{ItemType: post, Fields: fields}}

	var mu sync.Mutex
	var events []progress.Event
	api := newFakeAPI()
	_, err := New(api).Run(context.Background(), doc, Options{
		OnProgress: func(ev progress.Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// One reserved plugin unit plus the item type, its three fields and the
	// finalization. Nothing needs reordering, so the done count stops one
	// short of the total. Concurrent field workers may deliver events out of
	// order, so assert the set of done values rather than their arrival order.
	if len(events) != 5 {
		t.Fatalf("got %d progress events, want 5", len(events))
	}
	seen := make(map[int]bool)
	for _, ev := range events {
		if ev.Total != 6 {
			t.Fatalf("event total = %d, want 6", ev.Total)
		}
		if seen[ev.Done] {
			t.Fatalf("done value %d reported twice", ev.Done)
		}
		seen[ev.Done] = true
	}
	for d := 1; d <= 5; d++ {
		if !seen[d] {
			t.Fatalf("done value %d never reported", d)
		}
	}

	if len(api.updatedItemTypes) != 0 {
		t.Errorf("finalization wrote %d updates for an item type with no designated fields", len(api.updatedItemTypes))
	}
	if len(api.updatedFields) != 0 || len(api.updatedFieldsets) != 0 {
		t.Errorf("reorder ran for a flat item type")
	}
}

func TestRunReorderReplaysPositions(t *testing.T) {
	post := &core.ItemType{ID: "it-post", Name: "Post", APIKey: "post"}
	meta := &core.Fieldset{ID: "fs-meta", Title: "Meta", Position: 2, ItemTypeID: "it-post"}
	title := &core.Field{
		ID: "f-title", APIKey: "title", FieldType: "string", Position: 1,
		ItemTypeID: "it-post", Appearance: core.Appearance{Editor: "single_line"},
	}
	body := &core.Field{
		ID: "f-body", APIKey: "body", FieldType: "text", Position: 3,
		ItemTypeID: "it-post", FieldsetID: "fs-meta",
		Appearance: core.Appearance{Editor: "textarea"},
	}
	doc := emptyImportDocument()
	doc.ItemTypesToCreate = []*document.ItemTypePlan{{
		ItemType:  post,
		Fields:    []*core.Field{title, body},
		Fieldsets: []*core.Fieldset{meta},
	}}

	api := newFakeAPI()
	res, err := New(api).Run(context.Background(), doc, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(api.updatedFieldsets) != 1 {
		t.Fatalf("got %d fieldset reorder writes, want 1", len(api.updatedFieldsets))
	}
	if got := api.updatedFieldsets[0]; got.Position != 2 || got.ID != res.Mappings.Fieldsets["fs-meta"] {
		t.Errorf("fieldset reorder wrote %+v", got)
	}
	if len(api.updatedFields) != 2 {
		t.Fatalf("got %d field reorder writes, want 2", len(api.updatedFields))
	}
	positions := map[string]int{}
	for _, f := range api.updatedFields {
		positions[f.APIKey] = f.Position
	}
	if positions["title"] != 1 || positions["body"] != 3 {
		t.Errorf("replayed positions = %v, want title=1 body=3", positions)
	}
}

func TestRunShellFailureSkipsChildren(t *testing.T) {
	post := &core.ItemType{ID: "it-post", Name: "Post", APIKey: "post"}
	person := &core.ItemType{ID: "it-person", Name: "Person", APIKey: "person"}
	doc := emptyImportDocument()
	doc.ItemTypesToCreate = []*document.ItemTypePlan{
		{ItemType: post, Fields: []*core.Field{
			{ID: "f-title", APIKey: "title", FieldType: "string", ItemTypeID: "it-post", Appearance: core.Appearance{Editor: "single_line"}},
			{ID: "f-body", APIKey: "body", FieldType: "text", ItemTypeID: "it-post", Appearance: core.Appearance{Editor: "textarea"}},
		}},
		{ItemType: person, Fields: []*core.Field{
			{ID: "f-name", APIKey: "name", FieldType: "string", ItemTypeID: "it-person", Appearance: core.Appearance{Editor: "single_line"}},
		}},
	}

	api := newFakeAPI()
	api.failItemTypes["post"] = true

	var mu sync.Mutex
	var last progress.Event
	res, err := New(api).Run(context.Background(), doc, Options{
		OnProgress: func(ev progress.Event) {
			mu.Lock()
			last = ev
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Created.ItemTypes != 1 || res.Created.Fields != 1 {
		t.Fatalf("created tally = %+v, want only Person and its field", res.Created)
	}
	if len(res.Failed) != 3 {
		t.Fatalf("got %d failures, want shell plus its two fields: %v", len(res.Failed), res.Failed)
	}
	for _, f := range api.createdFields {
		if f.APIKey != "name" {
			t.Errorf("field %q created under a failed shell", f.APIKey)
		}
	}
	// Skipped children still advance the count, so the run completes its
	// planned units apart from the reserved plugin one.
	if last.Done != 7 || last.Total != 8 {
		t.Errorf("final progress = %d/%d, want 7/8", last.Done, last.Total)
	}
}

func TestRunFieldFailureDropsDesignatedRef(t *testing.T) {
	post := &core.ItemType{
		ID: "it-post", Name: "Post", APIKey: "post",
		TitleFieldID:   "f-title",
		ExcerptFieldID: "f-body",
	}
	doc := emptyImportDocument()
	doc.ItemTypesToCreate = []*document.ItemTypePlan{{ItemType: post, Fields: []*core.Field{
		{ID: "f-title", APIKey: "title", FieldType: "string", ItemTypeID: "it-post", Appearance: core.Appearance{Editor: "single_line"}},
		{ID: "f-body", APIKey: "body", FieldType: "text", ItemTypeID: "it-post", Appearance: core.Appearance{Editor: "textarea"}},
	}}}

	api := newFakeAPI()
	api.failFields["title"] = true

	res, err := New(api).Run(context.Background(), doc, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Failed) != 1 || res.Failed[0].Kind != core.KindField {
		t.Fatalf("failures = %v, want the one field", res.Failed)
	}
	if len(api.updatedItemTypes) != 1 {
		t.Fatalf("got %d finalization writes, want 1", len(api.updatedItemTypes))
	}
	got := api.updatedItemTypes[0]
	if got.TitleFieldID != "" {
		t.Errorf("title ref = %q, want dropped reference to the failed field", got.TitleFieldID)
	}
	if got.ExcerptFieldID != res.Mappings.Fields["f-body"] {
		t.Errorf("excerpt ref = %q, want mapped field id", got.ExcerptFieldID)
	}
}

func TestRunPluginFailureIsBestEffort(t *testing.T) {
	doc := emptyImportDocument()
	doc.PluginsToCreate = []*core.Plugin{
		{ID: "plug-a", Name: "Alpha", URL: "https://plugins.test/alpha"},
		{ID: "plug-b", Name: "Beta", URL: "https://plugins.test/beta"},
	}
	doc.ItemTypesToCreate = []*document.ItemTypePlan{{
		ItemType: &core.ItemType{ID: "it-post", Name: "Post", APIKey: "post"},
	}}

	api := newFakeAPI()
	api.failPlugins["Alpha"] = true

	res, err := New(api).Run(context.Background(), doc, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Created.Plugins != 1 || res.Created.ItemTypes != 1 {
		t.Fatalf("created tally = %+v, want the surviving plugin and the item type", res.Created)
	}
	if len(res.Failed) != 1 || res.Failed[0].Kind != core.KindPlugin {
		t.Fatalf("failures = %v, want the one plugin", res.Failed)
	}
}

func TestRunCancellationStopsLaterPhases(t *testing.T) {
	post := &core.ItemType{ID: "it-post", Name: "Post", APIKey: "post"}
	doc := emptyImportDocument()
	doc.ItemTypesToCreate = []*document.ItemTypePlan{{ItemType: post, Fields: []*core.Field{
		{ID: "f-title", APIKey: "title", FieldType: "string", ItemTypeID: "it-post", Appearance: core.Appearance{Editor: "single_line"}},
		{ID: "f-body", APIKey: "body", FieldType: "text", ItemTypeID: "it-post", Appearance: core.Appearance{Editor: "textarea"}},
	}}}

	cancel := progress.NewCanceller()
	api := newFakeAPI()
	res, err := New(api).Run(context.Background(), doc, Options{
		Cancel: cancel,
		OnProgress: func(ev progress.Event) {
			if strings.HasPrefix(ev.Label, "item type ") {
				cancel.RequestCancel()
			}
		},
	})
	if !errors.Is(err, progress.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if res == nil || !res.Cancelled {
		t.Fatalf("result = %+v, want the partial outcome marked cancelled", res)
	}
	if res.Created.ItemTypes != 1 {
		t.Errorf("created item types = %d, want the unit completed before cancellation", res.Created.ItemTypes)
	}
	if len(api.createdFields) != 0 {
		t.Errorf("%d fields created after cancellation", len(api.createdFields))
	}
}

func TestRunLocalizedDefaultBroadcast(t *testing.T) {
	post := &core.ItemType{ID: "it-post", Name: "Post", APIKey: "post"}
	doc := emptyImportDocument()
	doc.ItemTypesToCreate = []*document.ItemTypePlan{{ItemType: post, Fields: []*core.Field{{
		ID: "f-title", APIKey: "title", FieldType: "string", ItemTypeID: "it-post",
		Localized: true, DefaultValue: "untitled",
		Appearance: core.Appearance{Editor: "single_line"},
	}}}}

	api := newFakeAPI()
	api.locales = []string{"en", "it"}
	if _, err := New(api).Run(context.Background(), doc, Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	created := api.createdField(t, "title")
	defaults, ok := created.DefaultValue.(map[string]any)
	if !ok {
		t.Fatalf("default value = %T, want per-locale map", created.DefaultValue)
	}
	if defaults["en"] != "untitled" || defaults["it"] != "untitled" {
		t.Errorf("defaults = %v, want the scalar broadcast to both locales", defaults)
	}
}

func TestRunRewritesValidatorsThroughReuse(t *testing.T) {
	post := &core.ItemType{ID: "it-post", Name: "Post", APIKey: "post"}
	author := &core.Field{
		ID: "f-author", APIKey: "author", FieldType: "link", ItemTypeID: "it-post",
		Validators: map[string]map[string]any{
			"item_item_type": {core.ItemTypeValidatorKey: []string{"it-person"}},
		},
		Appearance: core.Appearance{Editor: "link_select"},
	}
	doc := emptyImportDocument()
	doc.ItemTypesToCreate = []*document.ItemTypePlan{{ItemType: post, Fields: []*core.Field{author}}}
	doc.ItemTypeIDsToReuse["it-person"] = "t-person"

	api := newFakeAPI()
	if _, err := New(api).Run(context.Background(), doc, Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	created := api.createdField(t, "author")
	got, _ := created.Validators["item_item_type"][core.ItemTypeValidatorKey].([]string)
	if len(got) != 1 || got[0] != "t-person" {
		t.Errorf("validator targets = %v, want the reused target id", got)
	}
}

func TestRunAppliesRename(t *testing.T) {
	post := &core.ItemType{ID: "it-post", Name: "Post", APIKey: "post"}
	doc := emptyImportDocument()
	doc.ItemTypesToCreate = []*document.ItemTypePlan{{
		ItemType: post,
		Rename:   &document.RenameTarget{Name: "Post 2", APIKey: "post_2"},
	}}

	api := newFakeAPI()
	if _, err := New(api).Run(context.Background(), doc, Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	shell := api.createdItemTypes[0]
	if shell.Name != "Post 2" || shell.APIKey != "post_2" {
		t.Errorf("shell = %s/%s, want the rename applied", shell.Name, shell.APIKey)
	}
}
