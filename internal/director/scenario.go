package director

// EventKind distinguishes the interactions a recording is annotated with.
type EventKind string

const (
	Click EventKind = "click"
	Hover EventKind = "hover"
)

// InteractionEvent is a single timed interaction derived from a Section.
type InteractionEvent struct {
	Kind EventKind `yaml:"kind" json:"kind"`
	AtMs int       `yaml:"atMs" json:"atMs"`
	X    int       `yaml:"x" json:"x"`
	Y    int       `yaml:"y" json:"y"`
	Note string    `yaml:"note" json:"note"`
}

// AnnotationSection is the raw, partially specified annotation supplied by
// the recording agent or a user. Every field is optional.
type AnnotationSection struct {
	Task        *string  `yaml:"task,omitempty" json:"task,omitempty"`
	Description *string  `yaml:"description,omitempty" json:"description,omitempty"`
	Path        *string  `yaml:"path,omitempty" json:"path,omitempty"`
	RoutePath   *string  `yaml:"routePath,omitempty" json:"routePath,omitempty"`
	StartMs     *int     `yaml:"startMs,omitempty" json:"startMs,omitempty"`
	EndMs       *int     `yaml:"endMs,omitempty" json:"endMs,omitempty"`
	TimestampMs *int     `yaml:"timestampMs,omitempty" json:"timestampMs,omitempty"`
	X           *int     `yaml:"x,omitempty" json:"x,omitempty"`
	Y           *int     `yaml:"y,omitempty" json:"y,omitempty"`
	XNorm       *float64 `yaml:"xNorm,omitempty" json:"xNorm,omitempty"`
	YNorm       *float64 `yaml:"yNorm,omitempty" json:"yNorm,omitempty"`
}

// Section is the canonical form of an AnnotationSection.
type Section struct {
	Task    string `yaml:"task" json:"task"`
	Path    string `yaml:"path" json:"path"`
	StartMs int    `yaml:"startMs" json:"startMs"`
	EndMs   int    `yaml:"endMs" json:"endMs"`
	X       int    `yaml:"x" json:"x"`
	Y       int    `yaml:"y" json:"y"`
}

// Label is the text shown for a section in notes and subtitle cues.
func (s Section) Label() string {
	return s.Task + " (" + s.Path + ")"
}

// Point is a pixel position in source-frame coordinates.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// ZoomKeyframe requests one camera zoom pulse. Timestamp is the moment the
// pulse starts easing in; pulses are independent and may overlap.
type ZoomKeyframe struct {
	Center     Point   `yaml:"center" json:"center"`
	Scale      float64 `yaml:"scale" json:"scale"`
	Timestamp  int     `yaml:"timestamp" json:"timestamp"`
	DurationMs int     `yaml:"durationMs" json:"durationMs"`
	Easing     string  `yaml:"easing,omitempty" json:"easing,omitempty"` // empty means ease-out
}

// CursorKeyframe anchors the cursor path at the moment of an action.
type CursorKeyframe struct {
	Position  Point  `yaml:"position" json:"position"`
	Timestamp int    `yaml:"timestamp" json:"timestamp"`
	Action    string `yaml:"action" json:"action"`
}

// Scenario is the debug dump of everything derived for one render.
type Scenario struct {
	Version         string             `yaml:"version"`
	Width           int                `yaml:"width"`
	Height          int                `yaml:"height"`
	DurationMs      int                `yaml:"durationMs"`
	Sections        []Section          `yaml:"sections"`
	Events          []InteractionEvent `yaml:"events"`
	ZoomKeyframes   []ZoomKeyframe     `yaml:"zoomKeyframes"`
	CursorKeyframes []CursorKeyframe   `yaml:"cursorKeyframes"`
}
