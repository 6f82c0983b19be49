package renderer

import (
	"github.com/ivlev/democlip/internal/director"
)

// CameraState is the camera and cursor at one instant. Crop and cursor
// coordinates are in output space; the focal point is in source space.
type CameraState struct {
	Zoom        float64
	FocalX      float64
	FocalY      float64
	CropX       float64
	CropY       float64
	CursorX     float64
	CursorY     float64
	CursorScale float64
}

// Camera holds every time-varying track for one render.
type Camera struct {
	Width, Height int

	Zoom           Func
	FocalX, FocalY Func
	CropX, CropY   Func

	// Cursor position in source space and on screen.
	CursorX, CursorY Func
	ScreenX, ScreenY Func
	CursorScale      Func
}

// NewCamera builds all tracks from zoom and cursor keyframes.
func NewCamera(width, height int, zooms []director.ZoomKeyframe, cursor []director.CursorKeyframe, smoothing float64) *Camera {
	c := &Camera{Width: width, Height: height}
	c.Zoom = ZoomTrack(zooms)
	c.FocalX = FocalTrack(zooms, true, width)
	c.FocalY = FocalTrack(zooms, false, height)
	c.CropX = CropOrigin(c.FocalX, c.Zoom, width)
	c.CropY = CropOrigin(c.FocalY, c.Zoom, height)
	c.CursorX = CursorTrack(cursor, true, smoothing, width)
	c.CursorY = CursorTrack(cursor, false, smoothing, height)
	c.ScreenX = OnScreen(c.CursorX, c.Zoom, c.CropX)
	c.ScreenY = OnScreen(c.CursorY, c.Zoom, c.CropY)
	c.CursorScale = CursorScale(cursor)
	return c
}

// Sample evaluates the camera at t seconds.
func (c *Camera) Sample(t float64) CameraState {
	return CameraState{
		Zoom:        c.Zoom.Eval(t),
		FocalX:      c.FocalX.Eval(t),
		FocalY:      c.FocalY.Eval(t),
		CropX:       c.CropX.Eval(t),
		CropY:       c.CropY.Eval(t),
		CursorX:     c.ScreenX.Eval(t),
		CursorY:     c.ScreenY.Eval(t),
		CursorScale: c.CursorScale.Eval(t),
	}
}

// Path samples the camera every step seconds over [0, duration].
func (c *Camera) Path(duration, step float64) []CameraState {
	if step <= 0 || duration < 0 {
		return nil
	}
	var out []CameraState
	for t := 0.0; t <= duration+1e-9; t += step {
		out = append(out, c.Sample(t))
	}
	return out
}
