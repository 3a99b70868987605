// Package refs extracts, from a field's configuration, the item types and
// plugins the field references. Pure functions, no I/O.
package refs

import (
	"sort"

	"github.com/schemaport/schemaport/internal/schemaport/core"
)

// PluginSet is the set of plugins known to be installed in a project. A nil
// *PluginSet means the installed set is unknown: extraction then includes every
// plugin id it sees rather than guessing an empty set (degraded mode — the
// caller is expected to surface an advisory).
type PluginSet struct {
	ids map[string]bool
}

// NewPluginSet builds a known set from plugin ids.
func NewPluginSet(ids []string) *PluginSet {
	s := &PluginSet{ids: make(map[string]bool, len(ids))}
	for _, id := range ids {
		s.ids[id] = true
	}
	return s
}

// Has reports whether the plugin is installed. On a nil (unknown) set every id
// passes.
func (s *PluginSet) Has(id string) bool {
	if s == nil {
		return true
	}
	return s.ids[id]
}

// Known reports whether the installed set is actually known.
func (s *PluginSet) Known() bool {
	return s != nil
}

// LinkedItemTypeIDs returns the item type ids referenced by the field's link and
// block validators, sorted and deduplicated.
func LinkedItemTypeIDs(f *core.Field) []string {
	seen := make(map[string]bool)
	for _, name := range core.LinkValidatorNames(f.FieldType) {
		cfg, ok := f.Validators[name]
		if !ok {
			continue
		}
		for _, id := range stringList(cfg[core.ItemTypeValidatorKey]) {
			seen[id] = true
		}
	}
	return sorted(seen)
}

// LinkedPluginIDs returns the plugin ids the field's appearance depends on: the
// editor when it is not a built-in, plus every addon. When installed is known,
// ids outside it are dropped; when unknown, all ids are included.
func LinkedPluginIDs(f *core.Field, installed *PluginSet) []string {
	seen := make(map[string]bool)
	if e := f.Appearance.Editor; e != "" && !core.IsBuiltinEditor(e) && installed.Has(e) {
		seen[e] = true
	}
	for _, addon := range f.Appearance.Addons {
		if addon.PluginID != "" && installed.Has(addon.PluginID) {
			seen[addon.PluginID] = true
		}
	}
	return sorted(seen)
}

// stringList coerces a validator payload value into a string slice. Payloads
// arrive either as []string (in-process) or []any (decoded from JSON).
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func sorted(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
