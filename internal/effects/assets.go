package effects

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/vector"
)

// Assets are the still inputs a render composites over the recording.
type Assets struct {
	Cursor string // cursor sprite PNG
	Mask   string // rounded-corner alpha mask, empty without corner radius
	Badge  string // QR code linking the pull request, empty without a link
}

// BadgeSize is the side of the QR badge in pixels.
const BadgeSize = 160

// cursorArrow is the classic pointer outline in unit coordinates, tip at the
// origin so the hotspot is the sprite's top-left corner.
var cursorArrow = [][2]float32{
	{0, 0}, {0, 0.86}, {0.22, 0.67}, {0.37, 1.0}, {0.51, 0.94}, {0.37, 0.62}, {0.64, 0.62},
}

// CursorSprite rasterises the pointer at size pixels tall: a dark outline
// with the fill colour inset.
func CursorSprite(size int, fill color.Color) *image.RGBA {
	if size < 4 {
		size = 4
	}
	w := int(float32(size)*0.7) + 2
	img := image.NewRGBA(image.Rect(0, 0, w, size+2))

	s := float32(size)
	drawPolygon(img, cursorArrow, s, 0, 0, color.RGBA{A: 0xff})
	inset := s * 0.09
	drawPolygon(img, cursorArrow, s*0.78, inset*0.6, inset*1.5, fill)
	return img
}

func drawPolygon(dst draw.Image, pts [][2]float32, scale, dx, dy float32, c color.Color) {
	b := dst.Bounds()
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.MoveTo(pts[0][0]*scale+dx, pts[0][1]*scale+dy)
	for _, p := range pts[1:] {
		r.LineTo(p[0]*scale+dx, p[1]*scale+dy)
	}
	r.ClosePath()
	r.Draw(dst, b, image.NewUniform(c), image.Point{})
}

// RoundedMask is an opaque-white rounded rectangle on black, used as an
// alpha matte for the camera layer.
func RoundedMask(width, height, radius int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	rad := float32(min(radius, width/2, height/2))
	w, h := float32(width), float32(height)

	r := vector.NewRasterizer(width, height)
	r.MoveTo(rad, 0)
	r.LineTo(w-rad, 0)
	r.QuadTo(w, 0, w, rad)
	r.LineTo(w, h-rad)
	r.QuadTo(w, h, w-rad, h)
	r.LineTo(rad, h)
	r.QuadTo(0, h, 0, h-rad)
	r.LineTo(0, rad)
	r.QuadTo(0, 0, rad, 0)
	r.ClosePath()
	r.Draw(img, img.Bounds(), image.White, image.Point{})
	return img
}

// ParseHexColor reads #RRGGBB.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// FFmpegColor converts #RRGGBB to the 0xRRGGBB form filters accept.
func FFmpegColor(s string) string {
	c, err := ParseHexColor(s)
	if err != nil {
		return "black"
	}
	return fmt.Sprintf("0x%02X%02X%02X", c.R, c.G, c.B)
}

// WriteAssets renders every still input for one composition into dir.
func WriteAssets(dir string, preset StylePreset, width, height int, linkURL string) (Assets, error) {
	var a Assets

	fill, err := ParseHexColor(preset.CursorColor)
	if err != nil {
		fill = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	}
	a.Cursor = filepath.Join(dir, "cursor.png")
	if err := writePNG(a.Cursor, CursorSprite(preset.CursorSize, fill)); err != nil {
		return Assets{}, err
	}

	if preset.BorderRadius > 0 {
		a.Mask = filepath.Join(dir, "mask.png")
		if err := writePNG(a.Mask, RoundedMask(width, height, preset.BorderRadius)); err != nil {
			return Assets{}, err
		}
	}

	if linkURL != "" {
		a.Badge = filepath.Join(dir, "badge.png")
		if err := qrcode.WriteFile(linkURL, qrcode.Medium, BadgeSize, a.Badge); err != nil {
			return Assets{}, fmt.Errorf("encode link badge: %w", err)
		}
	}
	return a, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
