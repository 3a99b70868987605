package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/schemaport/schemaport/internal/schemaport/core"
	"github.com/schemaport/schemaport/internal/schemaport/logger"
	"github.com/schemaport/schemaport/internal/schemaport/progress"
	"github.com/schemaport/schemaport/internal/schemaport/refs"
	"github.com/schemaport/schemaport/internal/schemaport/source"
)

// BuildOptions tunes a graph build.
type BuildOptions struct {
	// Selected restricts edge expansion: item types outside the set become
	// terminal excluded leaves. A nil map means everything reached is selected.
	Selected map[string]bool

	// Installed is the target project's installed plugin set, when known.
	Installed *refs.PluginSet

	// OnProgress receives scan and build phase events.
	OnProgress progress.Func
}

// Build performs a breadth-first traversal from the seed item types, following
// every item type and plugin reference discovered through field configuration.
// The visited set guarantees termination on cyclic schemas. Any source error
// aborts the build; no partial graph is returned.
func Build(ctx context.Context, src source.Source, seedItemTypeIDs []string, opts BuildOptions) (*Graph, error) {
	b := &builder{
		src:         src,
		opts:        opts,
		visited:     make(map[string]bool),
		edgesByPair: make(map[string]*Edge),
	}
	if !opts.Installed.Known() {
		logger.Log("installed plugin set unknown; plugin dependency detection may be incomplete")
	}
	return b.run(ctx, seedItemTypeIDs)
}

type builder struct {
	src     source.Source
	opts    BuildOptions
	graph   Graph
	visited map[string]bool

	// edgesByPair deduplicates edges per (source, target), accumulating the
	// triggering fields instead.
	edgesByPair map[string]*Edge

	scanned int
}

func (b *builder) run(ctx context.Context, seeds []string) (*Graph, error) {
	// Scan phase: level-by-level BFS. The frontier holds node ids discovered in
	// the previous level.
	frontier := make([]string, 0, len(seeds))
	for _, id := range seeds {
		nodeID := ItemTypeNodeID(id)
		if !b.visited[nodeID] {
			b.visited[nodeID] = true
			frontier = append(frontier, nodeID)
		}
	}

	for len(frontier) > 0 {
		var next []string
		for i, nodeID := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			discovered, err := b.scanNode(ctx, nodeID)
			if err != nil {
				return nil, err
			}
			for _, d := range discovered {
				if !b.visited[d] {
					b.visited[d] = true
					next = append(next, d)
				}
			}
			b.scanned++
			b.emitScanProgress(len(frontier) - i - 1 + len(next))
		}
		frontier = next
	}

	// Build phase: deterministic ordering, one event per node.
	b.graph.sortDeterministic()
	b.graph.reindex()
	for i, n := range b.graph.Nodes {
		b.opts.OnProgress.Emit(progress.Event{
			Done:  i + 1,
			Total: len(b.graph.Nodes),
			Label: n.DisplayName(),
			Phase: progress.PhaseBuild,
		})
	}

	return &b.graph, nil
}

// scanNode resolves one frontier entry into a node, records its edges, and
// returns the node ids it discovered.
func (b *builder) scanNode(ctx context.Context, nodeID string) ([]string, error) {
	kind, entityID, _ := strings.Cut(nodeID, ":")
	if kind == string(NodePlugin) {
		return nil, b.scanPlugin(ctx, entityID)
	}
	return b.scanItemType(ctx, entityID)
}

func (b *builder) scanItemType(ctx context.Context, id string) ([]string, error) {
	it, err := b.src.ItemType(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolving item type %s: %w", id, err)
	}
	fields, err := b.src.Fields(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading fields of %s: %w", it.APIKey, err)
	}
	fieldsets, err := b.src.Fieldsets(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading fieldsets of %s: %w", it.APIKey, err)
	}

	excluded := b.opts.Selected != nil && !b.opts.Selected[id]
	node := &Node{
		ID:        ItemTypeNodeID(id),
		Kind:      NodeItemType,
		Excluded:  excluded,
		ItemType:  it,
		Fields:    fields,
		Fieldsets: fieldsets,
	}
	b.graph.Nodes = append(b.graph.Nodes, node)

	// Excluded item types stay visible but are terminal: their own references
	// are not followed.
	if excluded {
		return nil, nil
	}

	var discovered []string
	for _, f := range fields {
		for _, targetID := range refs.LinkedItemTypeIDs(f) {
			target := ItemTypeNodeID(targetID)
			b.recordEdge(node.ID, target, f)
			discovered = append(discovered, target)
		}
		for _, pluginID := range refs.LinkedPluginIDs(f, b.opts.Installed) {
			target := PluginNodeID(pluginID)
			if !b.pluginResolvable(ctx, pluginID) {
				// The appearance names a plugin the source does not have;
				// emitting the edge would dangle.
				logger.Log("field %s.%s references unknown plugin %s; skipping", it.APIKey, f.APIKey, pluginID)
				continue
			}
			b.recordEdge(node.ID, target, f)
			discovered = append(discovered, target)
		}
	}
	return discovered, nil
}

func (b *builder) scanPlugin(ctx context.Context, id string) error {
	p, err := b.src.Plugin(ctx, id)
	if err != nil {
		return fmt.Errorf("resolving plugin %s: %w", id, err)
	}
	// Plugins have no outbound edges.
	b.graph.Nodes = append(b.graph.Nodes, &Node{
		ID:     PluginNodeID(id),
		Kind:   NodePlugin,
		Plugin: p,
	})
	return nil
}

// pluginResolvable checks the plugin exists in the source before an edge to it
// is recorded. Already-visited plugins resolved once.
func (b *builder) pluginResolvable(ctx context.Context, id string) bool {
	if b.visited[PluginNodeID(id)] {
		return true
	}
	_, err := b.src.Plugin(ctx, id)
	return !errors.Is(err, source.ErrNotFound)
}

func (b *builder) recordEdge(sourceID, targetID string, f *core.Field) {
	key := sourceID + "\x00" + targetID
	if e, ok := b.edgesByPair[key]; ok {
		for _, existing := range e.Fields {
			if existing.ID == f.ID {
				return
			}
		}
		e.Fields = append(e.Fields, f)
		return
	}
	e := &Edge{Source: sourceID, Target: targetID, Fields: []*core.Field{f}}
	b.edgesByPair[key] = e
	b.graph.Edges = append(b.graph.Edges, e)
}

// emitScanProgress reports traversal progress. Total grows as discovery widens
// the frontier, but done only ever advances.
func (b *builder) emitScanProgress(remaining int) {
	var label string
	if n := len(b.graph.Nodes); n > 0 {
		label = b.graph.Nodes[n-1].DisplayName()
	}
	b.opts.OnProgress.Emit(progress.Event{
		Done:  b.scanned,
		Total: b.scanned + remaining,
		Label: label,
		Phase: progress.PhaseScan,
	})
}
