// Package graph builds and queries the dependency graph of a schema selection:
// item type and plugin nodes, edges carrying the fields that caused them.
package graph

import (
	"sort"
	"strings"

	"github.com/schemaport/schemaport/internal/schemaport/core"
)

// NodeKind discriminates the two node flavors. Consumers switch on it
// exhaustively; plugins never have outbound edges.
type NodeKind string

const (
	NodeItemType NodeKind = "item_type"
	NodePlugin   NodeKind = "plugin"
)

// ItemTypeNodeID returns the graph node id for an item type.
func ItemTypeNodeID(itemTypeID string) string {
	return "item_type:" + itemTypeID
}

// PluginNodeID returns the graph node id for a plugin.
func PluginNodeID(pluginID string) string {
	return "plugin:" + pluginID
}

// Node is one vertex of the dependency graph. Exactly one of the entity
// payloads is set, matching Kind. ItemType nodes carry their resolved fields
// and fieldsets; Excluded marks item types outside the current selection, which
// stay visible as terminal leaves but are not expanded.
type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Excluded bool     `json:"excluded,omitempty"`

	ItemType  *core.ItemType   `json:"item_type,omitempty"`
	Fields    []*core.Field    `json:"fields,omitempty"`
	Fieldsets []*core.Fieldset `json:"fieldsets,omitempty"`
	Plugin    *core.Plugin     `json:"plugin,omitempty"`
}

// EntityID returns the underlying entity's id.
func (n *Node) EntityID() string {
	if n.Kind == NodePlugin {
		return n.Plugin.ID
	}
	return n.ItemType.ID
}

// DisplayName returns the human-readable name used for sorting and labels.
func (n *Node) DisplayName() string {
	if n.Kind == NodePlugin {
		return n.Plugin.Name
	}
	return n.ItemType.Name
}

// Edge records that the source node references the target node, along with the
// fields that caused the reference ("included because model X references it via
// fields F1, F2").
type Edge struct {
	Source string        `json:"source"`
	Target string        `json:"target"`
	Fields []*core.Field `json:"fields"`
}

// Graph is the result of one build: nodes and edges in deterministic order, so
// repeated builds over the same input are byte-identical.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`

	nodesByID map[string]*Node
	outgoing  map[string][]*Edge
}

// Node returns a node by graph node id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodesByID[id]
	return n, ok
}

// Outgoing returns the edges leaving a node.
func (g *Graph) Outgoing(id string) []*Edge {
	return g.outgoing[id]
}

// reindex rebuilds the lookup maps after Nodes/Edges change. Also used after
// decoding a graph from JSON.
func (g *Graph) reindex() {
	g.nodesByID = make(map[string]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		g.nodesByID[n.ID] = n
	}
	g.outgoing = make(map[string][]*Edge, len(g.Nodes))
	for _, e := range g.Edges {
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
	}
}

// Reindex makes a graph decoded from JSON queryable again.
func (g *Graph) Reindex() {
	g.reindex()
}

// sortDeterministic orders nodes by kind, display name, then id, and edges by
// source then target. Required for stable visual layout and reproducible tests.
func (g *Graph) sortDeterministic() {
	sort.Slice(g.Nodes, func(i, j int) bool {
		a, b := g.Nodes[i], g.Nodes[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if an, bn := strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName()); an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})
	for _, e := range g.Edges {
		fields := e.Fields
		sort.Slice(fields, func(i, j int) bool {
			if fields[i].Position != fields[j].Position {
				return fields[i].Position < fields[j].Position
			}
			return fields[i].ID < fields[j].ID
		})
	}
}
