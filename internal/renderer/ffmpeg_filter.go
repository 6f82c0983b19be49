package renderer

import (
	"fmt"
	"strings"
)

// TimeVar is the per-frame timestamp variable of overlay and scale.
const TimeVar = "t"

// Supersample is the upscale applied before zoompan to hide its integer
// rounding jitter.
const Supersample = 2

// Quote wraps an expression for use as a filter option value. Commas inside
// quotes do not split the filter chain.
func Quote(expr string) string {
	return "'" + strings.ReplaceAll(expr, "'", `\'`) + "'"
}

// frameTime is the output time variable inside zoompan, which has no t.
func frameTime(fps int) string {
	return fmt.Sprintf("(on/%d)", fps)
}

// ZoomPanFilter renders the camera as a supersampled zoompan. zoompan takes
// the window origin in input pixels, so the crop origin (zoomed output
// space) is divided by the zoom and multiplied by the supersample factor.
func ZoomPanFilter(cam *Camera, fps int) string {
	v := frameTime(fps)
	ss := Const(Supersample)
	x := Div{Mul{cam.CropX, ss}, cam.Zoom}
	y := Div{Mul{cam.CropY, ss}, cam.Zoom}

	return fmt.Sprintf("scale=%d:%d,zoompan=z=%s:x=%s:y=%s:d=1:s=%dx%d:fps=%d",
		cam.Width*Supersample, cam.Height*Supersample,
		Quote(cam.Zoom.Expr(v)), Quote(x.Expr(v)), Quote(y.Expr(v)),
		cam.Width, cam.Height, fps)
}

// SpriteScaleFilter resizes an overlay sprite by a scale track.
func SpriteScaleFilter(scale Func) string {
	s := scale.Expr(TimeVar)
	return fmt.Sprintf("scale=w=%s:h=%s:eval=frame",
		Quote(fmt.Sprintf("max(2,iw*%s)", s)),
		Quote(fmt.Sprintf("max(2,ih*%s)", s)))
}

// OverlayFilter places the second input at per-frame positions. The output
// ends with the shorter input so looped still inputs never extend it.
func OverlayFilter(x, y Func) string {
	return fmt.Sprintf("overlay=x=%s:y=%s:eval=frame:shortest=1", Quote(x.Expr(TimeVar)), Quote(y.Expr(TimeVar)))
}
