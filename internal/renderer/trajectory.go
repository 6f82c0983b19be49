package renderer

import (
	"sort"

	"github.com/ivlev/democlip/internal/director"
)

// Cursor timing defaults, in milliseconds.
const (
	CursorLeadMs    = 120
	CursorMoveMs    = 600
	PressShrinkMs   = 80
	PressExpandMs   = 150
	PressScale      = 0.5
	zoomAnimShare   = 0.25
	zoomHoldShare   = 0.5
	millisPerSecond = 1000.0

	EasingLinear = "linear"
)

func seconds(ms int) float64 { return float64(ms) / millisPerSecond }

// ZoomPulse eases from 1 to kf.Scale, holds, and eases back to 1. The ease-in
// and ease-out each take a quarter of the pulse and the hold takes half.
// Linear easing swaps the quadratic ease for a ramp.
func ZoomPulse(kf director.ZoomKeyframe) Func {
	peak := kf.Scale
	if peak < 1 {
		peak = 1
	}
	start := seconds(kf.Timestamp)
	dur := seconds(kf.DurationMs)
	anim := dur * zoomAnimShare
	hold := dur * zoomHoldShare

	inEnd := start + anim
	holdEnd := inEnd + hold
	outEnd := holdEnd + anim

	var in, out Func = Ease{T0: start, T1: inEnd, From: 1, To: peak}, Ease{T0: holdEnd, T1: outEnd, From: peak, To: 1}
	if kf.Easing == EasingLinear {
		in, out = Ramp{T0: start, T1: inEnd, From: 1, To: peak}, Ramp{T0: holdEnd, T1: outEnd, From: peak, To: 1}
	}
	return Piecewise{
		Breaks: []float64{start, inEnd, holdEnd, outEnd},
		Pieces: []Func{Const(1), in, Const(peak), out, Const(1)},
	}
}

// ZoomTrack combines every pulse with a pointwise maximum, so overlapping
// requests never compound and the larger one wins.
func ZoomTrack(keyframes []director.ZoomKeyframe) Func {
	if len(keyframes) == 0 {
		return Const(1)
	}
	track := Max{Const(1)}
	for _, kf := range keyframes {
		track = append(track, ZoomPulse(kf))
	}
	return track
}

// FocalTrack jumps to each keyframe's centre at its start time and holds it
// until the next one. Before the first keyframe the focus is the frame centre.
func FocalTrack(keyframes []director.ZoomKeyframe, horizontal bool, length int) Func {
	sorted := make([]director.ZoomKeyframe, len(keyframes))
	copy(sorted, keyframes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	step := Step{Default: float64(length) / 2}
	for _, kf := range sorted {
		v := kf.Center.Y
		if horizontal {
			v = kf.Center.X
		}
		step.Times = append(step.Times, seconds(kf.Timestamp))
		step.Values = append(step.Values, float64(v))
	}
	return step
}

// CropOrigin keeps an L-wide window centred on the focal point inside the
// frame scaled by zoom: clamp(f*z - L/2, 0, L*(z-1)).
func CropOrigin(focal, zoom Func, length int) Func {
	l := float64(length)
	return Clamp{
		X:  Sub{Mul{focal, zoom}, Const(l / 2)},
		Lo: Const(0),
		Hi: Mul{Const(l), Sub{zoom, Const(1)}},
	}
}

// OnScreen maps a source-space coordinate into the zoomed, cropped output.
func OnScreen(world, zoom, crop Func) Func {
	return Sub{Mul{world, zoom}, crop}
}

// CursorTrack is the cursor path on one axis. Between consecutive keyframes
// the cursor moves during a fixed window that ends CursorLeadMs before the
// next action, following a cubic Bezier whose control points sit
// smoothing*0.5 of the horizontal delta away from the endpoints.
func CursorTrack(keyframes []director.CursorKeyframe, horizontal bool, smoothing float64, length int) Func {
	if len(keyframes) == 0 {
		return Const(float64(length) / 2)
	}
	sorted := make([]director.CursorKeyframe, len(keyframes))
	copy(sorted, keyframes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	coord := func(kf director.CursorKeyframe) float64 {
		if horizontal {
			return float64(kf.Position.X)
		}
		return float64(kf.Position.Y)
	}

	pw := Piecewise{Pieces: []Func{Const(coord(sorted[0]))}}
	for i := 0; i+1 < len(sorted); i++ {
		from, to := sorted[i], sorted[i+1]
		t0, t1 := moveWindow(from.Timestamp, to.Timestamp)

		p0, p3 := coord(from), coord(to)
		p1, p2 := p0, p3
		if horizontal {
			off := smoothing * 0.5 * (p3 - p0)
			p1, p2 = p0+off, p3-off
		}

		pw.Breaks = append(pw.Breaks, t0, t1)
		pw.Pieces = append(pw.Pieces,
			Bezier{T0: t0, T1: t1, P0: p0, P1: p1, P2: p2, P3: p3},
			Const(p3),
		)
	}
	if len(pw.Breaks) == 0 {
		return pw.Pieces[0]
	}
	return pw
}

// moveWindow returns the movement window in seconds for travelling from the
// keyframe at prevMs to the one at nextMs. It never starts before prevMs.
func moveWindow(prevMs, nextMs int) (float64, float64) {
	end := nextMs - CursorLeadMs
	start := end - CursorMoveMs
	if start < prevMs {
		start = prevMs
	}
	if end < start {
		end = start
	}
	return seconds(start), seconds(end)
}

// CursorScale shrinks the cursor to PressScale over PressShrinkMs at every
// click and restores it over PressExpandMs.
func CursorScale(keyframes []director.CursorKeyframe) Func {
	scale := Min{Const(1)}
	for _, kf := range keyframes {
		if kf.Action != string(director.Click) {
			continue
		}
		t0 := seconds(kf.Timestamp)
		t1 := t0 + seconds(PressShrinkMs)
		t2 := t1 + seconds(PressExpandMs)
		scale = append(scale, Piecewise{
			Breaks: []float64{t0, t1, t2},
			Pieces: []Func{
				Const(1),
				Ramp{T0: t0, T1: t1, From: 1, To: PressScale},
				Ramp{T0: t1, T1: t2, From: PressScale, To: 1},
				Const(1),
			},
		})
	}
	if len(scale) == 1 {
		return Const(1)
	}
	return scale
}
