package core

// Clone returns a copy safe to mutate independently of the original. Validator
// configurations and appearance parameters are copied one level deep, which is
// as deep as the engine ever rewrites them.
func (f *Field) Clone() *Field {
	out := *f
	if f.Validators != nil {
		out.Validators = make(map[string]map[string]any, len(f.Validators))
		for name, cfg := range f.Validators {
			copied := make(map[string]any, len(cfg))
			for k, v := range cfg {
				copied[k] = v
			}
			out.Validators[name] = copied
		}
	}
	out.Appearance = f.Appearance.clone()
	return &out
}

func (a Appearance) clone() Appearance {
	out := a
	out.Parameters = cloneParams(a.Parameters)
	if a.Addons != nil {
		out.Addons = make([]Addon, len(a.Addons))
		for i, addon := range a.Addons {
			out.Addons[i] = Addon{PluginID: addon.PluginID, Parameters: cloneParams(addon.Parameters)}
		}
	}
	return out
}

// Clone returns a copy safe to mutate independently of the original.
func (it *ItemType) Clone() *ItemType {
	out := *it
	out.FieldIDs = append([]string(nil), it.FieldIDs...)
	out.FieldsetIDs = append([]string(nil), it.FieldsetIDs...)
	return &out
}

// Clone returns a copy safe to mutate independently of the original.
func (fs *Fieldset) Clone() *Fieldset {
	out := *fs
	return &out
}

// Clone returns a copy safe to mutate independently of the original.
func (p *Plugin) Clone() *Plugin {
	out := *p
	out.Parameters = cloneParams(p.Parameters)
	return &out
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
