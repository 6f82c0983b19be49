package director

// Director derives camera and cursor keyframes from canonical sections.
type Director struct {
	ViewportWidth  int
	ViewportHeight int
	ZoomScale      float64 // peak scale of an interaction pulse
	ZoomDurationMs int     // full pulse length: ease-in, hold, ease-out
	LeadMs         int     // how far ahead of a click the pulse starts
	Easing         string  // ease-out (default) or linear
}

// DefaultLeadMs lets the camera start moving before the click lands.
const DefaultLeadMs = 300

// NewDirector creates a Director with default pulse timing.
func NewDirector(viewportWidth, viewportHeight int) *Director {
	return &Director{
		ViewportWidth:  viewportWidth,
		ViewportHeight: viewportHeight,
		ZoomScale:      1.6,
		ZoomDurationMs: 1800,
		LeadMs:         DefaultLeadMs,
	}
}

// GenerateScenario normalizes raw sections and derives every keyframe list.
func (d *Director) GenerateScenario(raw []AnnotationSection, durationMs int) *Scenario {
	sections := Normalize(raw, d.ViewportWidth, d.ViewportHeight, durationMs)
	return d.ScenarioFor(sections, durationMs)
}

// ScenarioFor derives keyframes from already canonical sections.
func (d *Director) ScenarioFor(sections []Section, durationMs int) *Scenario {
	events := Events(sections)
	return &Scenario{
		Version:         "1.0",
		Width:           d.ViewportWidth,
		Height:          d.ViewportHeight,
		DurationMs:      durationMs,
		Sections:        sections,
		Events:          events,
		ZoomKeyframes:   d.ZoomKeyframes(events),
		CursorKeyframes: d.CursorKeyframes(sections),
	}
}

// ZoomKeyframes emits one pulse per click, starting LeadMs before it.
func (d *Director) ZoomKeyframes(events []InteractionEvent) []ZoomKeyframe {
	scale := d.ZoomScale
	if scale < 1 {
		scale = 1
	}

	var keyframes []ZoomKeyframe
	for _, e := range events {
		if e.Kind != Click {
			continue
		}
		keyframes = append(keyframes, ZoomKeyframe{
			Center:     Point{X: e.X, Y: e.Y},
			Scale:      scale,
			Timestamp:  max(0, e.AtMs-d.LeadMs),
			DurationMs: d.ZoomDurationMs,
			Easing:     d.Easing,
		})
	}
	return keyframes
}

// CursorKeyframes anchors the cursor on each section's click position.
func (d *Director) CursorKeyframes(sections []Section) []CursorKeyframe {
	keyframes := make([]CursorKeyframe, 0, len(sections))
	for _, s := range sections {
		keyframes = append(keyframes, CursorKeyframe{
			Position:  Point{X: s.X, Y: s.Y},
			Timestamp: s.StartMs,
			Action:    string(Click),
		})
	}
	return keyframes
}
