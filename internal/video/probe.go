package video

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Info is what a render needs to know about its source.
type Info struct {
	Path     string
	Width    int
	Height   int
	FPS      float64
	Duration time.Duration
	Codec    string
	HasAudio bool
}

// DurationMs is the duration in whole milliseconds.
func (i *Info) DurationMs() int { return int(i.Duration / time.Millisecond) }

// Probe reads stream metadata with ffprobe.
func (e *Executor) Probe(ctx context.Context, path string) (*Info, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	out, err := e.output(ctx, e.ffprobePath,
		"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	if err != nil {
		return nil, err
	}
	info, err := parseProbe([]byte(out))
	if err != nil {
		return nil, err
	}
	info.Path = path
	return info, nil
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

func parseProbe(data []byte) (*Info, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &Info{}
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(d * float64(time.Second))
	}

	found := false
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if found {
				continue
			}
			found = true
			info.Width, info.Height = s.Width, s.Height
			info.Codec = s.CodecName
			info.FPS = ParseFrameRate(s.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = ParseFrameRate(s.RFrameRate)
			}
			if info.Duration == 0 {
				if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
					info.Duration = time.Duration(d * float64(time.Second))
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !found {
		return nil, fmt.Errorf("no video stream")
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid video dimensions %dx%d", info.Width, info.Height)
	}
	return info, nil
}

// ParseFrameRate reads ffprobe rates like "30000/1001" or "25".
func ParseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
