package effects

import (
	"errors"
	"fmt"
	"image"

	"github.com/ivlev/democlip/internal/director"
	"github.com/ivlev/democlip/internal/model"
)

// ErrEmptyKeepRange is returned when trims and splits leave nothing.
var ErrEmptyKeepRange = errors.New("edits leave no footage")

// Window is a kept time range in milliseconds. EndMs < 0 means open-ended.
type Window struct {
	StartMs int `json:"startMs" yaml:"startMs"`
	EndMs   int `json:"endMs" yaml:"endMs"`
}

// Open reports whether the window runs to the end of the video.
func (w Window) Open() bool { return w.EndMs < 0 }

// Plan is an operation list folded into concrete render parameters.
type Plan struct {
	Preset StylePreset
	// Crop is a source-space rectangle; nil keeps the full frame.
	Crop *image.Rectangle
	// Keep is nil when no trim or split applies.
	Keep  *Window
	Zooms []director.ZoomKeyframe
}

// Fold applies ops in order on top of base. Later crops and presets replace
// earlier ones; trims and splits intersect; zooms accumulate.
func Fold(ops []model.Operation, base StylePreset, presets map[string]StylePreset) (Plan, error) {
	plan := Plan{Preset: base}
	keep := Window{StartMs: 0, EndMs: -1}
	cut := false

	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return Plan{}, fmt.Errorf("operation %d: %w", i, err)
		}
		switch op.Type {
		case model.OpCrop:
			r := image.Rect(op.Crop.X, op.Crop.Y, op.Crop.X+op.Crop.Width, op.Crop.Y+op.Crop.Height)
			plan.Crop = &r
		case model.OpTrim:
			keep = intersect(keep, Window{StartMs: op.Trim.StartMs, EndMs: op.Trim.EndMs})
			cut = true
		case model.OpSplit:
			if op.Split.RemoveSegment == "before" {
				keep = intersect(keep, Window{StartMs: op.Split.AtMs, EndMs: -1})
			} else {
				keep = intersect(keep, Window{StartMs: 0, EndMs: op.Split.AtMs})
			}
			cut = true
		case model.OpZoom:
			plan.Zooms = append(plan.Zooms, director.ZoomKeyframe{
				Center:     director.Point{X: op.Zoom.CenterX, Y: op.Zoom.CenterY},
				Scale:      1 + op.Zoom.Intensity,
				Timestamp:  op.Zoom.StartMs,
				DurationMs: op.Zoom.DurationMs,
				Easing:     plan.Preset.ZoomEasing,
			})
		case model.OpCursorEmphasis:
			ce := op.CursorEmphasis
			if ce.Size > 0 {
				plan.Preset.CursorSize = ce.Size
			}
			plan.Preset.MotionSmoothing = ce.Smoothing
			plan.Preset.TrailLength = ce.TrailLength
			plan.Preset.CursorTrailEnabled = ce.TrailLength > 0
		case model.OpStylePreset:
			p, err := PresetByName(presets, op.StylePreset.Preset)
			if err != nil {
				return Plan{}, fmt.Errorf("operation %d: %w: %v", i, model.ErrInvalidOperation, err)
			}
			plan.Preset = ApplyOverrides(p, op.StylePreset.Overrides)
		}
	}

	if cut {
		if !keep.Open() && keep.EndMs <= keep.StartMs {
			return Plan{}, ErrEmptyKeepRange
		}
		plan.Keep = &keep
	}
	return plan, nil
}

func intersect(a, b Window) Window {
	out := Window{StartMs: max(a.StartMs, b.StartMs), EndMs: -1}
	switch {
	case a.Open():
		out.EndMs = b.EndMs
	case b.Open():
		out.EndMs = a.EndMs
	default:
		out.EndMs = min(a.EndMs, b.EndMs)
	}
	return out
}

// Frame returns the source rectangle the camera films: the crop intersected
// with the frame, both rounded down to even dimensions for yuv420p. A crop that
// misses the frame falls back to the full frame.
func (p Plan) Frame(width, height int) image.Rectangle {
	full := even(image.Rect(0, 0, width, height))
	if p.Crop == nil {
		return full
	}
	r := even(p.Crop.Intersect(full))
	if r.Dx() < 2 || r.Dy() < 2 {
		return full
	}
	return r
}

func even(r image.Rectangle) image.Rectangle {
	r.Max.X = r.Min.X + r.Dx()&^1
	r.Max.Y = r.Min.Y + r.Dy()&^1
	return r
}

// KeepSeconds clips the keep window to the video length. It returns ok=false
// when no selection is needed.
func (p Plan) KeepSeconds(totalMs int) (start, end float64, ok bool) {
	if p.Keep == nil {
		return 0, 0, false
	}
	endMs := totalMs
	if !p.Keep.Open() {
		endMs = min(endMs, p.Keep.EndMs)
	}
	return float64(p.Keep.StartMs) / 1000, float64(endMs) / 1000, true
}

// TranslateSections moves sections into the coordinate space of frame,
// clamping positions that fall outside it.
func TranslateSections(sections []director.Section, frame image.Rectangle) []director.Section {
	out := make([]director.Section, len(sections))
	for i, s := range sections {
		s.X = max(0, min(frame.Dx(), s.X-frame.Min.X))
		s.Y = max(0, min(frame.Dy(), s.Y-frame.Min.Y))
		out[i] = s
	}
	return out
}

// TranslateZooms does the same for explicit zoom requests.
func TranslateZooms(zooms []director.ZoomKeyframe, frame image.Rectangle) []director.ZoomKeyframe {
	out := make([]director.ZoomKeyframe, len(zooms))
	for i, z := range zooms {
		z.Center.X = max(0, min(frame.Dx(), z.Center.X-frame.Min.X))
		z.Center.Y = max(0, min(frame.Dy(), z.Center.Y-frame.Min.Y))
		out[i] = z
	}
	return out
}
