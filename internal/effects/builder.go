package effects

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/ivlev/democlip/internal/analyzer"
	"github.com/ivlev/democlip/internal/director"
	"github.com/ivlev/democlip/internal/renderer"
)

const (
	shadowOffset = 12
	shadowAlpha  = 0.35
	badgeMargin  = 24
	trailSpacing = 0.05 // seconds between trail ghosts
	trailAlpha   = 0.45
	maxTrail     = 8
)

// Composition is everything one annotated render needs.
type Composition struct {
	Input  string
	Output string
	FPS    int

	// Frame is the filmed source region; zoom and cursor keyframes are in
	// its coordinate space.
	Frame        image.Rectangle
	SourceWidth  int
	SourceHeight int

	Preset StylePreset
	Zooms  []director.ZoomKeyframe
	Cursor []director.CursorKeyframe
	Keep   *Window
	Assets Assets
}

// Command is a rendered ffmpeg invocation without the binary or global flags.
type Command struct {
	Args   []string
	Graph  string
	Width  int
	Height int
}

// Builder turns compositions into ffmpeg commands.
type Builder struct {
	Encoder string
	Quality int
}

// Canvas returns the padded output size.
func (c Composition) Canvas() (int, int) {
	return c.Frame.Dx() + 2*c.Preset.PadX, c.Frame.Dy() + 2*c.Preset.PadY
}

// Camera builds the trajectory tracks for the composition.
func (c Composition) Camera() *renderer.Camera {
	return renderer.NewCamera(c.Frame.Dx(), c.Frame.Dy(), c.Zooms, c.Cursor, c.Preset.MotionSmoothing)
}

// Build emits a single-pass render: camera layer, cursor, optional rounded
// corners, padded background with shadow, optional link badge and keep
// selection.
func (b Builder) Build(c Composition) (Command, error) {
	if c.Input == "" || c.Output == "" {
		return Command{}, fmt.Errorf("composition needs input and output")
	}
	if c.Frame.Dx() < 2 || c.Frame.Dy() < 2 {
		return Command{}, fmt.Errorf("invalid frame %v", c.Frame)
	}
	if c.FPS <= 0 {
		return Command{}, fmt.Errorf("invalid fps %d", c.FPS)
	}
	if c.Assets.Cursor == "" {
		return Command{}, fmt.Errorf("composition has no cursor sprite")
	}

	fps := strconv.Itoa(c.FPS)
	args := []string{"-i", c.Input, "-loop", "1", "-framerate", fps, "-i", c.Assets.Cursor}
	next := 2
	maskIdx, badgeIdx := -1, -1
	if c.Assets.Mask != "" {
		maskIdx = next
		next++
		args = append(args, "-loop", "1", "-framerate", fps, "-i", c.Assets.Mask)
	}
	if c.Assets.Badge != "" {
		badgeIdx = next
		args = append(args, "-loop", "1", "-framerate", fps, "-i", c.Assets.Badge)
	}

	cam := c.Camera()
	w, h := c.Frame.Dx(), c.Frame.Dy()
	cw, ch := c.Canvas()
	var g graph

	// Camera layer.
	var camera []string
	full := image.Rect(0, 0, c.SourceWidth, c.SourceHeight)
	if c.SourceWidth > 0 && c.Frame != full {
		camera = append(camera, fmt.Sprintf("crop=%d:%d:%d:%d", w, h, c.Frame.Min.X, c.Frame.Min.Y))
	}
	camera = append(camera, "fps="+fps, renderer.ZoomPanFilter(cam, c.FPS), "format=rgba")
	g.chain([]string{"0:v"}, camera, "cam")
	layer := "cam"

	// Cursor, with fading ghosts trailing behind it.
	trail := 0
	if c.Preset.CursorTrailEnabled {
		trail = min(max(c.Preset.TrailLength, 1), maxTrail)
	}
	if trail > 0 {
		labels := []string{"cur"}
		for i := 1; i <= trail; i++ {
			labels = append(labels, fmt.Sprintf("ghost%d", i))
		}
		g.add(fmt.Sprintf("[1:v]format=rgba,split=%d%s", trail+1, brackets(labels)))
		for i := trail; i >= 1; i-- {
			alpha := trailAlpha * float64(trail+1-i) / float64(trail)
			delay := float64(i) * trailSpacing
			faded := fmt.Sprintf("ghostf%d", i)
			g.chain([]string{fmt.Sprintf("ghost%d", i)}, []string{"colorchannelmixer=aa=" + ftoa(alpha)}, faded)
			out := fmt.Sprintf("camg%d", i)
			g.chain([]string{layer, faded}, []string{renderer.OverlayFilter(
				renderer.Shift{F: cam.ScreenX, D: delay},
				renderer.Shift{F: cam.ScreenY, D: delay},
			)}, out)
			layer = out
		}
	} else {
		g.chain([]string{"1:v"}, []string{"format=rgba"}, "cur")
	}
	g.chain([]string{"cur"}, []string{renderer.SpriteScaleFilter(cam.CursorScale)}, "curs")
	g.chain([]string{layer, "curs"}, []string{renderer.OverlayFilter(cam.ScreenX, cam.ScreenY)}, "camc")
	layer = "camc"

	if maskIdx >= 0 {
		g.chain([]string{fmt.Sprintf("%d:v", maskIdx)}, []string{"format=gray", fmt.Sprintf("scale=%d:%d", w, h)}, "mask")
		g.chain([]string{layer, "mask"}, []string{"alphamerge"}, "camm")
		layer = "camm"
	}

	// Padded background with an optional drop shadow.
	bg := []string{fmt.Sprintf("color=c=%s:s=%dx%d:r=%s", FFmpegColor(c.Preset.BackgroundColor), cw, ch, fps), "format=rgba"}
	if c.Preset.ShadowEnabled {
		bg = append(bg,
			fmt.Sprintf("drawbox=x=%d:y=%d:w=%d:h=%d:color=black@%s:t=fill",
				c.Preset.PadX+shadowOffset, c.Preset.PadY+shadowOffset, w, h, ftoa(shadowAlpha)),
			"boxblur=8:2")
	}
	g.chain(nil, bg, "bg")
	g.chain([]string{"bg", layer}, []string{fmt.Sprintf("overlay=x=%d:y=%d:shortest=1", c.Preset.PadX, c.Preset.PadY)}, "comp")
	layer = "comp"

	if badgeIdx >= 0 {
		g.chain([]string{fmt.Sprintf("%d:v", badgeIdx)}, []string{"format=rgba"}, "badge")
		g.chain([]string{layer, "badge"}, []string{fmt.Sprintf("overlay=x=main_w-overlay_w-%d:y=main_h-overlay_h-%d:shortest=1", badgeMargin, badgeMargin)}, "compb")
		layer = "compb"
	}

	final := []string{}
	if c.Keep != nil {
		final = append(final, "select='"+windowExpr(*c.Keep)+"'", "setpts=N/FRAME_RATE/TB")
	}
	final = append(final, "format=yuv420p")
	g.chain([]string{layer}, final, "out")

	graphText := g.String()
	args = append(args, "-filter_complex", graphText, "-map", "[out]")
	args = append(args, EncoderArgs(b.Encoder, b.Quality)...)
	args = append(args, "-r", fps, "-movflags", "+faststart", "-an", c.Output)

	return Command{Args: args, Graph: graphText, Width: cw, Height: ch}, nil
}

// Excise re-encodes only the keep segments of input, rebasing timestamps.
// total is the length of input in seconds.
func (b Builder) Excise(input, output string, keep []analyzer.Segment, total float64) Command {
	vf := analyzer.SelectFilter(keep, total) + ",format=yuv420p"
	args := []string{"-i", input, "-vf", vf, "-map", "0:v"}
	args = append(args, EncoderArgs(b.Encoder, b.Quality)...)
	args = append(args, "-movflags", "+faststart", "-an", output)
	return Command{Args: args, Graph: vf}
}

func windowExpr(w Window) string {
	start := ftoa(float64(w.StartMs) / 1000)
	if w.Open() {
		return "gte(t," + start + ")"
	}
	return "gte(t," + start + ")*lt(t," + ftoa(float64(w.EndMs)/1000) + ")"
}

// graph accumulates filter_complex chains.
type graph struct {
	chains []string
}

func (g *graph) add(chain string) { g.chains = append(g.chains, chain) }

func (g *graph) chain(inputs []string, filters []string, output string) {
	g.add(brackets(inputs) + strings.Join(filters, ",") + "[" + output + "]")
}

func (g *graph) String() string { return strings.Join(g.chains, ";") }

func brackets(labels []string) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString("[" + l + "]")
	}
	return b.String()
}

func ftoa(f float64) string {
	s := strconv.FormatFloat(f, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
