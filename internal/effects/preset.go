package effects

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/democlip/internal/model"
)

// StylePreset bundles every visual parameter of a render.
type StylePreset struct {
	Name               string  `yaml:"name" json:"name"`
	CursorSize         int     `yaml:"cursorSize" json:"cursorSize"`
	CursorColor        string  `yaml:"cursorColor" json:"cursorColor"`
	CursorTrailEnabled bool    `yaml:"cursorTrailEnabled" json:"cursorTrailEnabled"`
	TrailLength        int     `yaml:"trailLength" json:"trailLength"`
	ZoomScale          float64 `yaml:"zoomScale" json:"zoomScale"` // peak scale of a click pulse
	ZoomDurationMs     int     `yaml:"zoomDurationMs" json:"zoomDurationMs"`
	ZoomEasing         string  `yaml:"zoomEasing" json:"zoomEasing"` // ease-out | linear
	MotionSmoothing    float64 `yaml:"motionSmoothing" json:"motionSmoothing"`
	BackgroundColor    string  `yaml:"backgroundColor" json:"backgroundColor"`
	BorderRadius       int     `yaml:"borderRadius" json:"borderRadius"`
	ShadowEnabled      bool    `yaml:"shadowEnabled" json:"shadowEnabled"`
	PadX               int     `yaml:"padX" json:"padX"`
	PadY               int     `yaml:"padY" json:"padY"`
}

// DefaultPreset is used when a render names no preset.
const DefaultPreset = "default"

var builtinPresets = map[string]StylePreset{
	"minimal": {
		Name:            "minimal",
		CursorSize:      24,
		CursorColor:     "#FFFFFF",
		ZoomScale:       1.25,
		ZoomDurationMs:  1400,
		ZoomEasing:      "ease-out",
		MotionSmoothing: 0.3,
		BackgroundColor: "#F4F4F5",
		BorderRadius:    8,
		PadX:            32,
		PadY:            32,
	},
	"default": {
		Name:            "default",
		CursorSize:      32,
		CursorColor:     "#FFFFFF",
		ZoomScale:       1.6,
		ZoomDurationMs:  1800,
		ZoomEasing:      "ease-out",
		MotionSmoothing: 0.5,
		BackgroundColor: "#1E293B",
		BorderRadius:    12,
		ShadowEnabled:   true,
		PadX:            64,
		PadY:            64,
	},
	"dramatic": {
		Name:               "dramatic",
		CursorSize:         40,
		CursorColor:        "#FACC15",
		CursorTrailEnabled: true,
		TrailLength:        4,
		ZoomScale:          2.0,
		ZoomDurationMs:     2200,
		ZoomEasing:         "ease-out",
		MotionSmoothing:    0.8,
		BackgroundColor:    "#0F172A",
		BorderRadius:       20,
		ShadowEnabled:      true,
		PadX:               96,
		PadY:               96,
	},
}

// Presets returns a copy of the built-in presets keyed by name.
func Presets() map[string]StylePreset {
	out := make(map[string]StylePreset, len(builtinPresets))
	for k, v := range builtinPresets {
		out[k] = v
	}
	return out
}

// PresetByName looks a preset up in set; an empty name means the default.
func PresetByName(set map[string]StylePreset, name string) (StylePreset, error) {
	if name == "" {
		name = DefaultPreset
	}
	p, ok := set[name]
	if !ok {
		return StylePreset{}, fmt.Errorf("unknown style preset %q", name)
	}
	return p, nil
}

// LoadPresets reads preset definitions from a YAML file keyed by name and
// layers them over the built-ins. Fields a definition omits keep the
// built-in value of the same name, or of the default preset for new names.
func LoadPresets(path string) (map[string]StylePreset, error) {
	set := Presets()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		base, ok := set[name]
		if !ok {
			base = set[DefaultPreset]
		}
		node := nodes[name]
		if err := node.Decode(&base); err != nil {
			return nil, fmt.Errorf("preset %s: %w", name, err)
		}
		base.Name = name
		set[name] = base
	}
	if err := checkOrdering(set); err != nil {
		return nil, fmt.Errorf("presets %s: %w", path, err)
	}
	return set, nil
}

// checkOrdering keeps the canonical presets strictly ordered by intensity.
func checkOrdering(set map[string]StylePreset) error {
	minimal, def, dramatic := set["minimal"], set["default"], set["dramatic"]
	if !(dramatic.ZoomScale > def.ZoomScale && def.ZoomScale > minimal.ZoomScale) {
		return fmt.Errorf("zoom scales must satisfy dramatic > default > minimal, got %.2f/%.2f/%.2f",
			dramatic.ZoomScale, def.ZoomScale, minimal.ZoomScale)
	}
	for name, p := range set {
		if p.ZoomScale < 1 {
			return fmt.Errorf("preset %s: zoom scale %.2f below 1", name, p.ZoomScale)
		}
		if p.MotionSmoothing < 0 || p.MotionSmoothing > 1 {
			return fmt.Errorf("preset %s: motion smoothing %.2f outside [0,1]", name, p.MotionSmoothing)
		}
	}
	return nil
}

// ApplyOverrides returns p with every non-nil override applied.
func ApplyOverrides(p StylePreset, o *model.StyleOverrides) StylePreset {
	if o == nil {
		return p
	}
	if o.CursorSize != nil {
		p.CursorSize = *o.CursorSize
	}
	if o.CursorColor != nil {
		p.CursorColor = *o.CursorColor
	}
	if o.CursorTrailEnabled != nil {
		p.CursorTrailEnabled = *o.CursorTrailEnabled
	}
	if o.ZoomScale != nil {
		p.ZoomScale = *o.ZoomScale
	}
	if o.ZoomDurationMs != nil {
		p.ZoomDurationMs = *o.ZoomDurationMs
	}
	if o.ZoomEasing != nil {
		p.ZoomEasing = *o.ZoomEasing
	}
	if o.MotionSmoothing != nil {
		p.MotionSmoothing = *o.MotionSmoothing
	}
	if o.BackgroundColor != nil {
		p.BackgroundColor = *o.BackgroundColor
	}
	if o.BorderRadius != nil {
		p.BorderRadius = *o.BorderRadius
	}
	if o.ShadowEnabled != nil {
		p.ShadowEnabled = *o.ShadowEnabled
	}
	if o.PadX != nil {
		p.PadX = *o.PadX
	}
	if o.PadY != nil {
		p.PadY = *o.PadY
	}
	return p
}
