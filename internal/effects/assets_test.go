package effects

import (
	"image/color"
	"os"
	"testing"
)

func TestCursorSprite(t *testing.T) {
	img := CursorSprite(32, color.RGBA{R: 0xff, A: 0xff})
	b := img.Bounds()
	if b.Dy() != 34 {
		t.Errorf("height = %d, want 34", b.Dy())
	}
	// Tip sits at the origin.
	if _, _, _, a := img.At(1, 2).RGBA(); a == 0 {
		t.Error("tip pixel is transparent")
	}
	// Right edge of the top row is outside the arrow.
	if _, _, _, a := img.At(b.Dx()-1, 0).RGBA(); a != 0 {
		t.Error("top-right corner should be transparent")
	}
	if CursorSprite(1, color.White).Bounds().Dy() < 4 {
		t.Error("tiny sizes should be floored")
	}
}

func TestRoundedMask(t *testing.T) {
	m := RoundedMask(200, 100, 20)
	if m.GrayAt(0, 0).Y != 0 || m.GrayAt(199, 99).Y != 0 {
		t.Error("corners should be masked out")
	}
	if m.GrayAt(100, 50).Y != 0xff {
		t.Errorf("centre = %d, want opaque", m.GrayAt(100, 50).Y)
	}
	if m.GrayAt(100, 1).Y == 0 {
		t.Error("top edge away from corners should be visible")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#1E293B", color.RGBA{0x1e, 0x29, 0x3b, 0xff}, false},
		{"facc15", color.RGBA{0xfa, 0xcc, 0x15, 0xff}, false},
		{" #FFFFFF ", color.RGBA{0xff, 0xff, 0xff, 0xff}, false},
		{"#FFF", color.RGBA{}, true},
		{"#GGGGGG", color.RGBA{}, true},
	}
	for _, tt := range tests {
		got, err := ParseHexColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHexColor(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if FFmpegColor("#1e293b") != "0x1E293B" {
		t.Errorf("FFmpegColor = %s", FFmpegColor("#1e293b"))
	}
	if FFmpegColor("nope") != "black" {
		t.Error("invalid colour should fall back to black")
	}
}

func TestWriteAssets(t *testing.T) {
	dir := t.TempDir()
	p := Presets()["default"]

	a, err := WriteAssets(dir, p, 320, 180, "https://example.com/pr/42")
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{a.Cursor, a.Mask, a.Badge} {
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if fi.Size() == 0 {
			t.Errorf("%s is empty", path)
		}
	}

	p.BorderRadius = 0
	a, err = WriteAssets(t.TempDir(), p, 320, 180, "")
	if err != nil {
		t.Fatal(err)
	}
	if a.Mask != "" || a.Badge != "" {
		t.Errorf("unexpected optional assets: %+v", a)
	}
}
