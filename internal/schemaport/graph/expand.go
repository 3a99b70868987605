package graph

import "sort"

// Expansion is the result of computing a selection's transitive closure over an
// already-built graph. The Added slices hold exactly what the closure
// contributed beyond the input, so a caller can apply the delta ("select all
// dependencies") and later remove precisely it ("undo"), never more.
type Expansion struct {
	ItemTypeIDs      []string `json:"itemTypeIds"`
	PluginIDs        []string `json:"pluginIds"`
	AddedItemTypeIDs []string `json:"addedItemTypeIds"`
	AddedPluginIDs   []string `json:"addedPluginIds"`
}

// Expand computes the transitive closure of the current selection over the
// graph's edges. No fetches happen; only edges already present in the graph are
// followed, so excluded leaves stay unexpanded. Expand is idempotent: running
// it on its own output yields empty deltas.
func Expand(g *Graph, itemTypeIDs, pluginIDs []string) Expansion {
	visited := make(map[string]bool)
	queue := make([]string, 0, len(itemTypeIDs)+len(pluginIDs))

	enqueue := func(nodeID string) {
		if !visited[nodeID] {
			visited[nodeID] = true
			queue = append(queue, nodeID)
		}
	}
	for _, id := range itemTypeIDs {
		enqueue(ItemTypeNodeID(id))
	}
	for _, id := range pluginIDs {
		enqueue(PluginNodeID(id))
	}

	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]
		for _, e := range g.Outgoing(nodeID) {
			enqueue(e.Target)
		}
	}

	inputItemTypes := toSet(itemTypeIDs)
	inputPlugins := toSet(pluginIDs)

	var exp Expansion
	for nodeID := range visited {
		n, ok := g.Node(nodeID)
		if !ok {
			// Selection ids with no node in this graph pass through untouched.
			continue
		}
		switch n.Kind {
		case NodeItemType:
			id := n.ItemType.ID
			exp.ItemTypeIDs = append(exp.ItemTypeIDs, id)
			if !inputItemTypes[id] {
				exp.AddedItemTypeIDs = append(exp.AddedItemTypeIDs, id)
			}
		case NodePlugin:
			id := n.Plugin.ID
			exp.PluginIDs = append(exp.PluginIDs, id)
			if !inputPlugins[id] {
				exp.AddedPluginIDs = append(exp.AddedPluginIDs, id)
			}
		}
	}

	// Ids outside the graph still belong to the closure: the caller selected
	// them, and dropping them here would shrink the selection.
	for _, id := range itemTypeIDs {
		if _, ok := g.Node(ItemTypeNodeID(id)); !ok {
			exp.ItemTypeIDs = append(exp.ItemTypeIDs, id)
		}
	}
	for _, id := range pluginIDs {
		if _, ok := g.Node(PluginNodeID(id)); !ok {
			exp.PluginIDs = append(exp.PluginIDs, id)
		}
	}

	sort.Strings(exp.ItemTypeIDs)
	sort.Strings(exp.PluginIDs)
	sort.Strings(exp.AddedItemTypeIDs)
	sort.Strings(exp.AddedPluginIDs)
	return exp
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
