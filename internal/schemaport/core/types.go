package core

// ItemType is a content model or a reusable block. Models and blocks share the
// same schema machinery; IsBlock tells them apart.
type ItemType struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	APIKey      string   `json:"api_key"`
	IsBlock     bool     `json:"is_block"`
	FieldIDs    []string `json:"field_ids"`    // ordered
	FieldsetIDs []string `json:"fieldset_ids"` // ordered

	// Designated fields, each referencing one of the item type's own fields.
	TitleFieldID        string `json:"title_field_id,omitempty"`
	ImagePreviewFieldID string `json:"image_preview_field_id,omitempty"`
	ExcerptFieldID      string `json:"excerpt_field_id,omitempty"`
	OrderingFieldID     string `json:"ordering_field_id,omitempty"`
	OrderingDirection   string `json:"ordering_direction,omitempty"`
}

// Field is a single typed attribute of an item type.
type Field struct {
	ID        string `json:"id"`
	APIKey    string `json:"api_key"`
	Label     string `json:"label"`
	FieldType string `json:"field_type"`
	Localized bool   `json:"localized"`

	// Validators maps validator name to its configuration. Link and block
	// validators carry item type id lists under the "item_types" key.
	Validators map[string]map[string]any `json:"validators,omitempty"`

	Appearance   Appearance `json:"appearance"`
	DefaultValue any        `json:"default_value,omitempty"`

	ItemTypeID string `json:"item_type_id"`
	FieldsetID string `json:"fieldset_id,omitempty"`
	Position   int    `json:"position"`
	Hint       string `json:"hint,omitempty"`
}

// Appearance is a field's editor assignment plus any addon extensions. Editor is
// either a built-in editor identifier or a plugin id.
type Appearance struct {
	Editor     string         `json:"editor"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Addons     []Addon        `json:"addons,omitempty"`
}

// Addon is a plugin-supplied extension attached to a field's appearance.
type Addon struct {
	PluginID   string         `json:"plugin_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Fieldset is a named grouping of fields within one item type. Organizational
// only; fields keep working if their fieldset disappears.
type Fieldset struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Position   int    `json:"position"`
	ItemTypeID string `json:"item_type_id"`
}

// Plugin is an installable extension supplying custom field editors and addons.
// URL or PackageName is its stable identity across projects.
type Plugin struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	URL         string         `json:"url,omitempty"`
	PackageName string         `json:"package_name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// StableIdentity returns the plugin's cross-project identity: its URL when set,
// otherwise its package name.
func (p *Plugin) StableIdentity() string {
	if p.URL != "" {
		return p.URL
	}
	return p.PackageName
}

// ItemTypeValidatorKey is the configuration key under which link and block
// validators carry their item type id lists.
const ItemTypeValidatorKey = "item_types"

// LinkValidatorNames returns, for a field type, the validator names whose
// configuration carries item type references. Field types without link or block
// semantics return nil.
func LinkValidatorNames(fieldType string) []string {
	return linkValidatorsByFieldType[fieldType]
}

var linkValidatorsByFieldType = map[string][]string{
	"link":            {"item_item_type"},
	"links":           {"items_item_type"},
	"rich_text":       {"rich_text_blocks"},
	"structured_text": {"structured_text_blocks", "structured_text_links"},
	"single_block":    {"single_block_blocks"},
}

// builtinEditors is the set of editor identifiers shipped with the platform.
// Anything else in Appearance.Editor is a plugin id.
var builtinEditors = map[string]bool{
	"boolean":             true,
	"boolean_radio_group": true,
	"color_picker":        true,
	"date_picker":         true,
	"date_time_picker":    true,
	"file":                true,
	"float":               true,
	"framed_single_block": true,
	"gallery":             true,
	"integer":             true,
	"json":                true,
	"link_embed":          true,
	"link_select":         true,
	"links_embed":         true,
	"links_select":        true,
	"map":                 true,
	"markdown":            true,
	"rich_text":           true,
	"seo":                 true,
	"single_block":        true,
	"single_line":         true,
	"slug":                true,
	"string_radio_group":  true,
	"string_select":       true,
	"structured_text":     true,
	"textarea":            true,
	"video":               true,
	"wysiwyg":             true,
}

// IsBuiltinEditor reports whether the identifier names a built-in editor rather
// than a plugin.
func IsBuiltinEditor(editor string) bool {
	return builtinEditors[editor]
}

// defaultEditors maps each field type to the built-in editor a field falls back
// to when its original editor is not portable to the destination project.
var defaultEditors = map[string]string{
	"boolean":         "boolean",
	"color":           "color_picker",
	"date":            "date_picker",
	"date_time":       "date_time_picker",
	"file":            "file",
	"float":           "float",
	"gallery":         "gallery",
	"integer":         "integer",
	"json":            "json",
	"lat_lon":         "map",
	"link":            "link_select",
	"links":           "links_select",
	"rich_text":       "rich_text",
	"seo":             "seo",
	"single_block":    "framed_single_block",
	"slug":            "slug",
	"string":          "single_line",
	"structured_text": "structured_text",
	"text":            "textarea",
	"video":           "video",
}

// DefaultEditor returns the safe built-in editor for a field type. Unknown field
// types fall back to the JSON editor, which can render anything.
func DefaultEditor(fieldType string) string {
	if e, ok := defaultEditors[fieldType]; ok {
		return e
	}
	return "json"
}
