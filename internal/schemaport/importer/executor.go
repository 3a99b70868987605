package importer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/schemaport/schemaport/internal/schemaport/core"
	"github.com/schemaport/schemaport/internal/schemaport/document"
	"github.com/schemaport/schemaport/internal/schemaport/logger"
	"github.com/schemaport/schemaport/internal/schemaport/progress"
)

// Per-phase concurrency limits. Workers pull from the phase's work list; no
// pool is shared across phases or operations.
const (
	pluginConcurrency   = 4
	itemTypeConcurrency = 3
	fieldsetConcurrency = 2
	fieldConcurrency    = 4
	reorderConcurrency  = 2
)

// Failure is one per-entity creation error. Failures do not abort the batch;
// the import is best-effort with visibility, and this record is what makes the
// outcome auditable.
type Failure struct {
	Kind   core.EntityKind `json:"kind"`
	Label  string          `json:"label"`
	Reason string          `json:"reason"`
}

// Tally counts successful creations per entity kind.
type Tally struct {
	Plugins   int `json:"plugins"`
	ItemTypes int `json:"itemTypes"`
	Fieldsets int `json:"fieldsets"`
	Fields    int `json:"fields"`
}

// Result is the outcome of one import run. Pre-existing target entities are
// never mutated or deleted; Cancelled imports keep whatever the completed units
// already created.
type Result struct {
	Mappings  *IDMappings `json:"mappings"`
	Created   Tally       `json:"created"`
	Failed    []Failure   `json:"failed,omitempty"`
	Cancelled bool        `json:"cancelled,omitempty"`
}

// Options carries the progress and cancellation hooks for one run.
type Options struct {
	OnProgress progress.Func
	Cancel     *progress.Canceller
}

// Executor creates the entities of an import document against a target API.
type Executor struct {
	api API
}

// New creates an executor over the given API handle.
func New(api API) *Executor {
	return &Executor{api: api}
}

// Run executes the import document. Phases run strictly in order — id
// allocation, plugins, item type shells, fieldsets and fields, finalization,
// reordering — because each depends on identifiers or records the previous one
// produced. Within a phase, units of work run concurrently and unordered.
// Cancellation is polled at every unit-of-work start: the in-flight unit
// completes, no new unit begins, no later phase runs, and the result reports a
// cancelled outcome. Completed creations are not rolled back.
func (e *Executor) Run(ctx context.Context, doc *document.ImportDocument, opts Options) (*Result, error) {
	locales, err := e.api.Locales(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading target locales: %w", err)
	}

	r := &run{
		api:              e.api,
		doc:              doc,
		mappings:         allocateIDs(doc),
		locales:          locales,
		cancel:           opts.Cancel,
		createdItemTypes: make(map[string]*core.ItemType),
		createdFieldsets: make(map[string]bool),
		createdFields:    make(map[string]*core.Field),
	}
	r.counter = progress.NewCounter(plannedUnits(doc), "", opts.OnProgress)
	r.result = &Result{Mappings: r.mappings}

	phases := []func(context.Context){
		r.createPlugins,
		r.createItemTypes,
		r.createFieldsetsAndFields,
		r.finalizeItemTypes,
		r.restorePositions,
	}
	for _, phase := range phases {
		if r.cancel.IsCancelRequested() {
			break
		}
		phase(ctx)
	}

	if r.cancel.IsCancelRequested() {
		r.result.Cancelled = true
		return r.result, progress.ErrCancelled
	}
	return r.result, nil
}

// plannedUnits sums the writes across all phases. The plugin phase reserves at
// least one unit even when it has nothing to create; reordering is planned
// only for item types that need it.
func plannedUnits(doc *document.ImportDocument) int {
	total := len(doc.PluginsToCreate)
	if total == 0 {
		total = 1
	}
	total += len(doc.ItemTypesToCreate)
	for _, plan := range doc.ItemTypesToCreate {
		total += len(plan.Fieldsets) + len(plan.Fields)
		total++ // finalization
		if needsReorder(plan) {
			total += len(plan.Fieldsets) + len(plan.Fields)
		}
	}
	return total
}

// needsReorder reports whether an item type's children must have their
// positions replayed after creation. Creation payloads already carry explicit
// positions, so replay is only needed when children interleave across
// fieldsets; item types with at most one child never need it.
func needsReorder(plan *document.ItemTypePlan) bool {
	if len(plan.Fieldsets) == 0 {
		return false
	}
	return len(plan.Fieldsets)+len(plan.Fields) > 1
}

type run struct {
	api      API
	doc      *document.ImportDocument
	mappings *IDMappings
	locales  []string
	counter  *progress.Counter
	cancel   *progress.Canceller

	mu               sync.Mutex
	result           *Result
	createdItemTypes map[string]*core.ItemType // export id -> created record
	createdFieldsets map[string]bool           // export id -> created
	createdFields    map[string]*core.Field    // export id -> created record
}

func (r *run) fail(kind core.EntityKind, label string, err error) {
	logger.Log("import: %s %s: %v", kind, label, err)
	r.mu.Lock()
	r.result.Failed = append(r.result.Failed, Failure{Kind: kind, Label: label, Reason: err.Error()})
	r.mu.Unlock()
}

// createPlugins is phase 2. Best-effort: a failed plugin does not abort the
// import.
func (r *run) createPlugins(ctx context.Context) {
	g := new(errgroup.Group)
	g.SetLimit(pluginConcurrency)
	for _, p := range r.doc.PluginsToCreate {
		g.Go(func() error {
			if r.cancel.IsCancelRequested() {
				return nil
			}
			payload := p.Clone()
			payload.ID = r.mappings.Plugins[p.ID]
			if _, err := r.api.CreatePlugin(ctx, payload); err != nil {
				r.fail(core.KindPlugin, p.Name, err)
			} else {
				r.mu.Lock()
				r.result.Created.Plugins++
				r.mu.Unlock()
			}
			r.counter.Advance("plugin " + p.Name)
			return nil
		})
	}
	g.Wait()
}

// createItemTypes is phase 3: shells only, attributes without relationships.
// Field references and ordering metadata wait for phase 5, once field ids
// exist. Created records are retained for the later phases.
func (r *run) createItemTypes(ctx context.Context) {
	g := new(errgroup.Group)
	g.SetLimit(itemTypeConcurrency)
	for _, plan := range r.doc.ItemTypesToCreate {
		g.Go(func() error {
			if r.cancel.IsCancelRequested() {
				return nil
			}
			shell := plan.ItemType.Clone()
			shell.ID = r.mappings.ItemTypes[plan.ItemType.ID]
			shell.FieldIDs = nil
			shell.FieldsetIDs = nil
			shell.TitleFieldID = ""
			shell.ImagePreviewFieldID = ""
			shell.ExcerptFieldID = ""
			shell.OrderingFieldID = ""
			shell.OrderingDirection = ""
			if plan.Rename != nil {
				shell.Name = plan.Rename.Name
				shell.APIKey = plan.Rename.APIKey
			}
			created, err := r.api.CreateItemType(ctx, shell)
			if err != nil {
				r.fail(core.KindItemType, shell.Name, err)
			} else {
				r.mu.Lock()
				r.result.Created.ItemTypes++
				r.createdItemTypes[plan.ItemType.ID] = created
				r.mu.Unlock()
			}
			r.counter.Advance("item type " + shell.Name)
			return nil
		})
	}
	g.Wait()
}

// createFieldsetsAndFields is phase 4: item type by item type, fieldsets before
// fields so fields can land inside them, slug fields last since they may name
// another field as their title source.
func (r *run) createFieldsetsAndFields(ctx context.Context) {
	for _, plan := range r.doc.ItemTypesToCreate {
		if r.cancel.IsCancelRequested() {
			return
		}
		if _, ok := r.createdItemTypes[plan.ItemType.ID]; !ok {
			// The shell failed; its children cannot be created.
			r.skipChildren(plan)
			continue
		}

		g := new(errgroup.Group)
		g.SetLimit(fieldsetConcurrency)
		for _, fs := range plan.Fieldsets {
			g.Go(func() error {
				r.createFieldset(ctx, plan, fs)
				return nil
			})
		}
		g.Wait()

		var plain, slugs []*core.Field
		for _, f := range plan.Fields {
			if f.FieldType == "slug" {
				slugs = append(slugs, f)
			} else {
				plain = append(plain, f)
			}
		}
		for _, batch := range [][]*core.Field{plain, slugs} {
			g := new(errgroup.Group)
			g.SetLimit(fieldConcurrency)
			for _, f := range batch {
				g.Go(func() error {
					r.createField(ctx, plan, f)
					return nil
				})
			}
			g.Wait()
		}
	}
}

func (r *run) createFieldset(ctx context.Context, plan *document.ItemTypePlan, fs *core.Fieldset) {
	if r.cancel.IsCancelRequested() {
		return
	}
	payload := fs.Clone()
	payload.ID = r.mappings.Fieldsets[fs.ID]
	payload.ItemTypeID = r.mappings.ItemTypes[fs.ItemTypeID]
	if _, err := r.api.CreateFieldset(ctx, payload); err != nil {
		r.fail(core.KindFieldset, fs.Title, err)
	} else {
		r.mu.Lock()
		r.result.Created.Fieldsets++
		r.createdFieldsets[fs.ID] = true
		r.mu.Unlock()
	}
	r.counter.Advance("fieldset " + fs.Title)
}

func (r *run) createField(ctx context.Context, plan *document.ItemTypePlan, f *core.Field) {
	if r.cancel.IsCancelRequested() {
		return
	}
	label := plan.ItemType.APIKey + "." + f.APIKey
	payload := rewriteField(f, r.mappings, r.locales)
	created, err := r.api.CreateField(ctx, payload)
	if err != nil {
		r.fail(core.KindField, label, err)
	} else {
		r.mu.Lock()
		r.result.Created.Fields++
		r.createdFields[f.ID] = created
		r.mu.Unlock()
	}
	r.counter.Advance("field " + label)
}

// skipChildren advances the counter for children that can never be created so
// the running count still accounts for every planned unit of their phase.
func (r *run) skipChildren(plan *document.ItemTypePlan) {
	reason := fmt.Errorf("item type %s was not created", plan.ItemType.Name)
	for _, fs := range plan.Fieldsets {
		r.fail(core.KindFieldset, fs.Title, reason)
		r.counter.Advance("fieldset " + fs.Title)
	}
	for _, f := range plan.Fields {
		r.fail(core.KindField, plan.ItemType.APIKey+"."+f.APIKey, reason)
		r.counter.Advance("field " + plan.ItemType.APIKey + "." + f.APIKey)
	}
}

// finalizeItemTypes is phase 5: designated-field relationships and ordering
// metadata, now that field ids exist. The write is skipped when it would be a
// no-op against the just-created state.
func (r *run) finalizeItemTypes(ctx context.Context) {
	for _, plan := range r.doc.ItemTypesToCreate {
		if r.cancel.IsCancelRequested() {
			return
		}
		created, ok := r.createdItemTypes[plan.ItemType.ID]
		if !ok {
			r.counter.Advance("finalizing " + plan.ItemType.Name)
			continue
		}

		updated := created.Clone()
		updated.TitleFieldID = r.mappedCreatedField(plan.ItemType.TitleFieldID)
		updated.ImagePreviewFieldID = r.mappedCreatedField(plan.ItemType.ImagePreviewFieldID)
		updated.ExcerptFieldID = r.mappedCreatedField(plan.ItemType.ExcerptFieldID)
		updated.OrderingFieldID = r.mappedCreatedField(plan.ItemType.OrderingFieldID)
		if updated.OrderingFieldID != "" {
			updated.OrderingDirection = plan.ItemType.OrderingDirection
		}

		if designatedEqual(created, updated) {
			r.counter.Advance("finalizing " + created.Name)
			continue
		}
		if _, err := r.api.UpdateItemType(ctx, updated); err != nil {
			r.fail(core.KindItemType, created.Name, err)
		}
		r.counter.Advance("finalizing " + created.Name)
	}
}

// mappedCreatedField translates a designated-field reference, but only onto a
// field that was actually created.
func (r *run) mappedCreatedField(exportFieldID string) string {
	if exportFieldID == "" {
		return ""
	}
	if _, ok := r.createdFields[exportFieldID]; !ok {
		return ""
	}
	return r.mappings.Fields[exportFieldID]
}

func designatedEqual(a, b *core.ItemType) bool {
	return a.TitleFieldID == b.TitleFieldID &&
		a.ImagePreviewFieldID == b.ImagePreviewFieldID &&
		a.ExcerptFieldID == b.ExcerptFieldID &&
		a.OrderingFieldID == b.OrderingFieldID &&
		a.OrderingDirection == b.OrderingDirection
}

// restorePositions is phase 6: replay each child entity's original position,
// since concurrent creation across fieldsets scrambles relative order.
func (r *run) restorePositions(ctx context.Context) {
	for _, plan := range r.doc.ItemTypesToCreate {
		if r.cancel.IsCancelRequested() {
			return
		}
		if !needsReorder(plan) {
			continue
		}

		g := new(errgroup.Group)
		g.SetLimit(reorderConcurrency)
		for _, fs := range plan.Fieldsets {
			g.Go(func() error {
				r.reorderFieldset(ctx, plan, fs)
				return nil
			})
		}
		for _, f := range plan.Fields {
			g.Go(func() error {
				r.reorderField(ctx, plan, f)
				return nil
			})
		}
		g.Wait()
	}
}

func (r *run) reorderFieldset(ctx context.Context, plan *document.ItemTypePlan, fs *core.Fieldset) {
	if r.cancel.IsCancelRequested() {
		return
	}
	label := "reordering fieldset " + fs.Title
	if !r.createdFieldsets[fs.ID] {
		r.counter.Advance(label)
		return
	}
	payload := fs.Clone()
	payload.ID = r.mappings.Fieldsets[fs.ID]
	payload.ItemTypeID = r.mappings.ItemTypes[fs.ItemTypeID]
	if _, err := r.api.UpdateFieldset(ctx, payload); err != nil {
		r.fail(core.KindFieldset, fs.Title, err)
	}
	r.counter.Advance(label)
}

func (r *run) reorderField(ctx context.Context, plan *document.ItemTypePlan, f *core.Field) {
	if r.cancel.IsCancelRequested() {
		return
	}
	label := "reordering field " + plan.ItemType.APIKey + "." + f.APIKey
	created, ok := r.createdFields[f.ID]
	if !ok {
		r.counter.Advance(label)
		return
	}
	payload := created.Clone()
	payload.Position = f.Position
	if _, err := r.api.UpdateField(ctx, payload); err != nil {
		r.fail(core.KindField, plan.ItemType.APIKey+"."+f.APIKey, err)
	}
	r.counter.Advance(label)
}
