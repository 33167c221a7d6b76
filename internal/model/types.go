// Package model holds the data types shared across the pipeline: chart
// templates and their structural requirements, dataset descriptors,
// palettes and the final layout placement record.
package model

import (
	"encoding/json"
	"fmt"
)

// Engine identifies which rendering backend owns a template. It is a
// closed enum; templates never carry free-form engine strings.
type Engine int

const (
	EngineProcedural Engine = iota // native Go option builders
	EngineScriptA                  // HTML + echarts, rendered headless
	EngineScriptB                  // HTML + vega-embed, rendered headless
	EngineVectorSpec               // d2 script compiled in-process
)

var engineNames = map[Engine]string{
	EngineProcedural: "procedural",
	EngineScriptA:    "script_a",
	EngineScriptB:    "script_b",
	EngineVectorSpec: "vector_spec",
}

func (e Engine) String() string {
	if s, ok := engineNames[e]; ok {
		return s
	}
	return fmt.Sprintf("engine(%d)", int(e))
}

// ParseEngine maps a template directory name back to its engine.
func ParseEngine(s string) (Engine, error) {
	for e, name := range engineNames {
		if name == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown engine %q", s)
}

// DataType is the semantic type of one dataset column.
type DataType string

const (
	Categorical DataType = "categorical"
	Numerical   DataType = "numerical"
	Temporal    DataType = "temporal"
)

// ColorTheme selects which palette variant a template renders against.
type ColorTheme string

const (
	ThemeLight ColorTheme = "light"
	ThemeDark  ColorTheme = "dark"
)

// RenderFunc maps dataset + palette + dimensions to an SVG fragment.
// Procedural templates register one of these statically; script-based
// templates carry a file path instead and leave it nil.
type RenderFunc func(ds *DatasetDescriptor, pal *Palette, width, height int) (string, error)

// TemplateDescriptor describes one chart template known to the registry.
type TemplateDescriptor struct {
	Engine       Engine       `json:"engine"`
	ChartType    string       `json:"chart_type"`
	ChartName    string       `json:"chart_name"`
	Requirements Requirements `json:"requirements"`

	// Path is set for script/vector-spec templates and loaded lazily at
	// render time. Render is set for procedural templates.
	Path   string     `json:"path,omitempty"`
	Render RenderFunc `json:"-"`
}

// Key uniquely identifies a template across the registry.
func (t *TemplateDescriptor) Key() string {
	return t.Engine.String() + "/" + t.ChartType + "/" + t.ChartName
}

// Requirements is the structured constraint block embedded in each
// template between REQUIREMENTS_BEGIN and REQUIREMENTS_END markers.
type Requirements struct {
	RequiredFields      FieldGroups          `json:"required_fields"`
	RequiredFieldsType  map[string]TypeList  `json:"required_fields_type"`
	RequiredFieldsRange map[string][]float64 `json:"required_fields_range"`
	RequiredColors      []string             `json:"required_fields_colors,omitempty"`
	RequiredIcons       []string             `json:"required_fields_icons,omitempty"`
	RequiredOtherColors []string             `json:"required_other_colors,omitempty"`
	Hierarchy           []string             `json:"hierarchy,omitempty"`
	Background          ColorTheme           `json:"background,omitempty"`
	MinWidth            int                  `json:"min_width,omitempty"`
	MinHeight           int                  `json:"min_height,omitempty"`
	Width               int                  `json:"width,omitempty"`
	Height              int                  `json:"height,omitempty"`
}

// Theme returns the declared background theme, defaulting to light.
func (r *Requirements) Theme() ColorTheme {
	if r.Background == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// FieldGroups accepts either a flat list of role names or a list of
// alternative groupings, e.g. ["x","y"] or [["x","y"],["x","y","group"]].
type FieldGroups [][]string

func (fg *FieldGroups) UnmarshalJSON(data []byte) error {
	var groups [][]string
	if err := json.Unmarshal(data, &groups); err == nil {
		*fg = groups
		return nil
	}
	var flat []string
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("required_fields: want list or list of lists: %w", err)
	}
	*fg = FieldGroups{flat}
	return nil
}

func (fg FieldGroups) MarshalJSON() ([]byte, error) {
	if len(fg) == 1 {
		return json.Marshal(fg[0])
	}
	return json.Marshal([][]string(fg))
}

// TypeList accepts either a single type string or a list of them.
type TypeList []DataType

func (tl *TypeList) UnmarshalJSON(data []byte) error {
	var one DataType
	if err := json.Unmarshal(data, &one); err == nil {
		*tl = TypeList{one}
		return nil
	}
	var many []DataType
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("required_fields_type: want string or list: %w", err)
	}
	*tl = many
	return nil
}

// RoleSpec is one resolved role slot: name, allowed types, declared range.
// For categorical/temporal roles the range bounds distinct-value counts;
// for numerical roles it bounds the data values themselves.
type RoleSpec struct {
	Name     string
	Types    []DataType
	Range    [2]float64
	HasRange bool
}

// ResolveRoles flattens the requirement groups into an ordered role list,
// keeping the first occurrence per field name, and attaches each role's
// allowed types and range.
func (r *Requirements) ResolveRoles() ([]RoleSpec, error) {
	if len(r.RequiredFields) == 0 {
		return nil, fmt.Errorf("requirements declare no fields")
	}
	seen := make(map[string]bool)
	var roles []RoleSpec
	for _, group := range r.RequiredFields {
		for _, name := range group {
			if seen[name] {
				continue
			}
			seen[name] = true
			spec := RoleSpec{Name: name}
			if types, ok := r.RequiredFieldsType[name]; ok {
				spec.Types = types
			}
			if rng, ok := r.RequiredFieldsRange[name]; ok {
				if len(rng) != 2 {
					return nil, fmt.Errorf("field %q: range must have two bounds, got %d", name, len(rng))
				}
				spec.Range = [2]float64{rng[0], rng[1]}
				spec.HasRange = true
			}
			roles = append(roles, spec)
		}
	}
	return roles, nil
}

// Palette is the color assignment for one dataset, for one theme.
type Palette struct {
	BackgroundColor string            `json:"background_color"`
	TextColor       string            `json:"text_color"`
	Field           map[string]string `json:"field"`
	Other           map[string]string `json:"other"`
}

// PalettePair carries the light- and dark-adapted variants side by side;
// the selected template's background requirement picks one.
type PalettePair struct {
	Light Palette `json:"light"`
	Dark  Palette `json:"dark"`
}

// ForTheme returns the palette variant matching the theme.
func (pp *PalettePair) ForTheme(theme ColorTheme) *Palette {
	if theme == ThemeDark {
		return &pp.Dark
	}
	return &pp.Light
}

// ImageMode describes how the decorative image relates to chart content.
type ImageMode string

const (
	ImageSide       ImageMode = "side"
	ImageBackground ImageMode = "background"
	ImageOverlay    ImageMode = "overlay"
	ImageNone       ImageMode = "none"
)

// TitlePlacement is the chosen title geometry.
type TitlePlacement struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	TextAlign string `json:"text_align"`
	Relation  string `json:"relation"` // one of the nine canonical tags
}

// ImagePlacement is the chosen decorative image geometry.
type ImagePlacement struct {
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Size     int       `json:"size"`
	Mode     ImageMode `json:"mode"`
	Resolved bool      `json:"resolved"` // false: rendered at reduced opacity
	Region   string    `json:"region,omitempty"`
}

// LayoutPlacement is the full layout decision for one infographic,
// persisted as the info.json sidecar. Never mutated after creation.
type LayoutPlacement struct {
	Title        TitlePlacement `json:"title"`
	Image        ImagePlacement `json:"image"`
	ChartDX      int            `json:"chart_dx"`
	ChartDY      int            `json:"chart_dy"`
	CanvasWidth  int            `json:"canvas_width"`
	CanvasHeight int            `json:"canvas_height"`
	Engine       string         `json:"engine"`
	ChartType    string         `json:"chart_type"`
	ChartName    string         `json:"chart_name"`
	Source       string         `json:"source,omitempty"`
}
