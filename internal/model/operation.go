package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OpType discriminates the Operation union.
type OpType string

const (
	OpCrop           OpType = "crop"
	OpTrim           OpType = "trim"
	OpSplit          OpType = "split"
	OpZoom           OpType = "zoom"
	OpCursorEmphasis OpType = "cursor_emphasis"
	OpStylePreset    OpType = "style_preset"
)

// ErrInvalidOperation wraps every operation validation failure.
var ErrInvalidOperation = errors.New("invalid operation")

type Crop struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Trim struct {
	StartMs int `json:"startMs"`
	EndMs   int `json:"endMs"`
}

// Split cuts the video at AtMs and drops one side.
type Split struct {
	AtMs          int    `json:"atMs"`
	RemoveSegment string `json:"removeSegment"` // before | after
}

// Zoom adds a zoom pulse on top of the automatic ones. Intensity is the
// scale increase, so the peak scale is 1+Intensity.
type Zoom struct {
	Intensity  float64 `json:"intensity"`
	CenterX    int     `json:"centerX"`
	CenterY    int     `json:"centerY"`
	StartMs    int     `json:"startMs"`
	DurationMs int     `json:"durationMs"`
}

type CursorEmphasis struct {
	TrailLength int     `json:"trailLength"`
	Size        int     `json:"size"`
	Smoothing   float64 `json:"smoothing"`
}

// StyleOverrides replaces individual preset fields. Nil fields keep the
// preset value.
type StyleOverrides struct {
	CursorSize         *int     `json:"cursorSize,omitempty" yaml:"cursorSize,omitempty"`
	CursorColor        *string  `json:"cursorColor,omitempty" yaml:"cursorColor,omitempty"`
	CursorTrailEnabled *bool    `json:"cursorTrailEnabled,omitempty" yaml:"cursorTrailEnabled,omitempty"`
	ZoomScale          *float64 `json:"zoomScale,omitempty" yaml:"zoomScale,omitempty"`
	ZoomDurationMs     *int     `json:"zoomDurationMs,omitempty" yaml:"zoomDurationMs,omitempty"`
	ZoomEasing         *string  `json:"zoomEasing,omitempty" yaml:"zoomEasing,omitempty"`
	MotionSmoothing    *float64 `json:"motionSmoothing,omitempty" yaml:"motionSmoothing,omitempty"`
	BackgroundColor    *string  `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
	BorderRadius       *int     `json:"borderRadius,omitempty" yaml:"borderRadius,omitempty"`
	ShadowEnabled      *bool    `json:"shadowEnabled,omitempty" yaml:"shadowEnabled,omitempty"`
	PadX               *int     `json:"padX,omitempty" yaml:"padX,omitempty"`
	PadY               *int     `json:"padY,omitempty" yaml:"padY,omitempty"`
}

type StylePreset struct {
	Preset    string          `json:"preset"`
	Overrides *StyleOverrides `json:"overrides,omitempty"`
}

// Operation is one immutable edit. Exactly the payload matching Type is set.
// On the wire it is a flat object: {"type":"trim","startMs":0,"endMs":900}.
type Operation struct {
	Type           OpType
	Crop           *Crop
	Trim           *Trim
	Split          *Split
	Zoom           *Zoom
	CursorEmphasis *CursorEmphasis
	StylePreset    *StylePreset
}

func (o Operation) payload() any {
	switch o.Type {
	case OpCrop:
		return o.Crop
	case OpTrim:
		return o.Trim
	case OpSplit:
		return o.Split
	case OpZoom:
		return o.Zoom
	case OpCursorEmphasis:
		return o.CursorEmphasis
	case OpStylePreset:
		return o.StylePreset
	}
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	if isNilPayload(o) {
		return nil, fmt.Errorf("%w: missing %q payload", ErrInvalidOperation, o.Type)
	}
	body, err := json.Marshal(o.payload())
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typ, _ := json.Marshal(o.Type)
	fields["type"] = typ
	return json.Marshal(fields)
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var head struct {
		Type OpType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	*o = Operation{Type: head.Type}
	var target any
	switch head.Type {
	case OpCrop:
		o.Crop = &Crop{}
		target = o.Crop
	case OpTrim:
		o.Trim = &Trim{}
		target = o.Trim
	case OpSplit:
		o.Split = &Split{}
		target = o.Split
	case OpZoom:
		o.Zoom = &Zoom{}
		target = o.Zoom
	case OpCursorEmphasis:
		o.CursorEmphasis = &CursorEmphasis{}
		target = o.CursorEmphasis
	case OpStylePreset:
		o.StylePreset = &StylePreset{}
		target = o.StylePreset
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, head.Type)
	}
	return json.Unmarshal(data, target)
}

// Validate checks the semantic constraints a schema cannot express.
func (o Operation) Validate() error {
	if isNilPayload(o) {
		return fmt.Errorf("%w: missing %q payload", ErrInvalidOperation, o.Type)
	}
	switch o.Type {
	case OpCrop:
		if o.Crop.Width <= 0 || o.Crop.Height <= 0 || o.Crop.X < 0 || o.Crop.Y < 0 {
			return fmt.Errorf("%w: crop needs a non-negative origin and positive size", ErrInvalidOperation)
		}
	case OpTrim:
		if o.Trim.StartMs < 0 || o.Trim.EndMs <= o.Trim.StartMs {
			return fmt.Errorf("%w: trim end must be after start", ErrInvalidOperation)
		}
	case OpSplit:
		if o.Split.AtMs <= 0 {
			return fmt.Errorf("%w: split point must be positive", ErrInvalidOperation)
		}
		if o.Split.RemoveSegment != "before" && o.Split.RemoveSegment != "after" {
			return fmt.Errorf("%w: removeSegment must be before or after", ErrInvalidOperation)
		}
	case OpZoom:
		if o.Zoom.Intensity <= 0 || o.Zoom.DurationMs <= 0 || o.Zoom.StartMs < 0 {
			return fmt.Errorf("%w: zoom needs positive intensity and duration", ErrInvalidOperation)
		}
	case OpCursorEmphasis:
		if o.CursorEmphasis.Smoothing < 0 || o.CursorEmphasis.Smoothing > 1 {
			return fmt.Errorf("%w: smoothing must be within [0,1]", ErrInvalidOperation)
		}
		if o.CursorEmphasis.TrailLength < 0 || o.CursorEmphasis.Size < 0 {
			return fmt.Errorf("%w: trail length and size must be non-negative", ErrInvalidOperation)
		}
	case OpStylePreset:
		if o.StylePreset.Preset == "" {
			return fmt.Errorf("%w: preset name is required", ErrInvalidOperation)
		}
	}
	return nil
}

func isNilPayload(o Operation) bool {
	switch o.Type {
	case OpCrop:
		return o.Crop == nil
	case OpTrim:
		return o.Trim == nil
	case OpSplit:
		return o.Split == nil
	case OpZoom:
		return o.Zoom == nil
	case OpCursorEmphasis:
		return o.CursorEmphasis == nil
	case OpStylePreset:
		return o.StylePreset == nil
	}
	return true
}
