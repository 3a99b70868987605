package importer

import (
	"github.com/schemaport/schemaport/internal/schemaport/core"
)

// rewriteField clones an export-side field into its target-side creation
// payload: the pre-minted id, the mapped owner and fieldset, validator item
// type lists and editor/addon plugin ids translated through the id mappings,
// and localized default values expanded across the target locales.
func rewriteField(f *core.Field, m *IDMappings, locales []string) *core.Field {
	out := f.Clone()
	out.ID = m.Fields[f.ID]
	out.ItemTypeID = m.ItemTypes[f.ItemTypeID]

	if f.FieldsetID != "" {
		if mapped, ok := m.Fieldsets[f.FieldsetID]; ok {
			out.FieldsetID = mapped
		} else {
			out.FieldsetID = ""
		}
	}

	for _, name := range core.LinkValidatorNames(out.FieldType) {
		cfg, ok := out.Validators[name]
		if !ok {
			continue
		}
		ids, _ := cfg[core.ItemTypeValidatorKey].([]string)
		if ids == nil {
			ids = anyToStrings(cfg[core.ItemTypeValidatorKey])
		}
		mapped := make([]string, 0, len(ids))
		for _, id := range ids {
			if target, ok := m.ItemTypes[id]; ok {
				mapped = append(mapped, target)
			}
		}
		cfg[core.ItemTypeValidatorKey] = mapped
	}

	if e := out.Appearance.Editor; e != "" && !core.IsBuiltinEditor(e) {
		if target, ok := m.Plugins[e]; ok {
			out.Appearance.Editor = target
		} else {
			// The supplying plugin was skipped; fall back to a portable editor.
			out.Appearance.Editor = core.DefaultEditor(out.FieldType)
			out.Appearance.Parameters = nil
		}
	}
	if len(out.Appearance.Addons) > 0 {
		kept := out.Appearance.Addons[:0]
		for _, addon := range out.Appearance.Addons {
			if target, ok := m.Plugins[addon.PluginID]; ok {
				addon.PluginID = target
				kept = append(kept, addon)
			}
		}
		out.Appearance.Addons = kept
	}

	if out.Localized && out.DefaultValue != nil {
		out.DefaultValue = localizeDefault(out.DefaultValue, locales)
	}

	return out
}

// localizeDefault spreads a field's default value across the target project's
// locale list. A scalar default is broadcast to every locale; a per-locale map
// keeps the entries the target knows and fills the rest with nil.
func localizeDefault(value any, locales []string) map[string]any {
	out := make(map[string]any, len(locales))
	if perLocale, ok := value.(map[string]any); ok {
		for _, locale := range locales {
			out[locale] = perLocale[locale]
		}
		return out
	}
	for _, locale := range locales {
		out[locale] = value
	}
	return out
}

func anyToStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
