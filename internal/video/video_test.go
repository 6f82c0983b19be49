package video

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const sampleProbe = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "60/1", "avg_frame_rate": "30000/1001", "duration": "12.500000"},
    {"codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {"duration": "12.512000"}
}`

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(sampleProbe))
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 1920 || info.Height != 1080 || info.Codec != "h264" || !info.HasAudio {
		t.Errorf("info = %+v", info)
	}
	if info.DurationMs() != 12512 {
		t.Errorf("duration = %d ms", info.DurationMs())
	}
	if info.FPS < 29.97 || info.FPS > 29.98 {
		t.Errorf("fps = %v", info.FPS)
	}
}

func TestParseProbeStreamDuration(t *testing.T) {
	doc := `{"streams":[{"codec_type":"video","width":640,"height":480,"r_frame_rate":"25/1","duration":"3.0"}],"format":{}}`
	info, err := parseProbe([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if info.Duration != 3*time.Second || info.FPS != 25 {
		t.Errorf("info = %+v", info)
	}
}

func TestParseProbeErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":   "oops",
		"no video":   `{"streams":[{"codec_type":"audio"}],"format":{"duration":"1"}}`,
		"zero sized": `{"streams":[{"codec_type":"video"}],"format":{"duration":"1"}}`,
	} {
		if _, err := parseProbe([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := map[string]float64{
		"30/1":  30,
		"25":    25,
		"0/0":   0,
		"":      0,
		"abc/1": 0,
		"60/2":  30,
	}
	for in, want := range tests {
		if got := ParseFrameRate(in); got != want {
			t.Errorf("ParseFrameRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStreamOutput(t *testing.T) {
	log := strings.Join([]string{
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':",
		"frame=30",
		"fps=29.5",
		"bitrate=1200.0kbits/s",
		"out_time=00:00:01.000000",
		"speed=1.02x",
		"progress=continue",
		"frame=60",
		"progress=end",
	}, "\n")

	var blocks []Progress
	var lines int
	streamOutput(strings.NewReader(log), func(p *Progress) { blocks = append(blocks, *p) }, func(string) { lines++ })

	if lines != 9 {
		t.Errorf("log lines = %d, want 9", lines)
	}
	if len(blocks) != 2 {
		t.Fatalf("progress blocks = %d, want 2", len(blocks))
	}
	first := blocks[0]
	if first.Frame != 30 || first.FPS != 29.5 || first.Time != "00:00:01.000000" || first.Speed != "1.02x" {
		t.Errorf("first block = %+v", first)
	}
	if blocks[1].Frame != 60 || blocks[1].Speed != "" {
		t.Errorf("second block should start fresh: %+v", blocks[1])
	}
}

func TestTail(t *testing.T) {
	tl := newTail(2)
	for _, l := range []string{"a", "", "frame=1", "b", "progress=end", "c"} {
		tl.add(l)
	}
	if got := tl.String(); got != "b | c" {
		t.Errorf("tail = %q", got)
	}
}

func TestNewMissingBinary(t *testing.T) {
	_, err := New(zerolog.Nop(), "/nonexistent/ffmpeg", "", 0)
	if err == nil || !strings.Contains(err.Error(), "ffmpeg not found") {
		t.Errorf("err = %v", err)
	}
}

func TestRunRequiresArgs(t *testing.T) {
	e := &Executor{logger: zerolog.Nop(), ffmpegPath: "ffmpeg"}
	if err := e.Run(context.Background(), RunOptions{}); err == nil {
		t.Error("expected error without args")
	}
}

func TestRunFailureCarriesOutput(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	e, err := New(zerolog.Nop(), "", "", 1)
	if err != nil {
		t.Skip(err)
	}
	err = e.Run(context.Background(), RunOptions{Args: []string{"-i", "/nonexistent/input.mp4", "-f", "null", "-"}})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "nonexistent") {
		t.Errorf("error should quote ffmpeg output: %v", err)
	}
}
