package analyzer

import (
	"context"
	"fmt"
)

// Freeze is a span of near-identical frames, in seconds.
type Freeze struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Duration returns the length of the freeze.
func (f Freeze) Duration() float64 { return f.End - f.Start }

// Segment is a half-open time range [Start, End) in seconds.
type Segment struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Duration returns the length of the segment.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Options tune freeze detection and excision.
type Options struct {
	Noise        float64 // pixel-difference threshold, 0..1
	MinDuration  float64 // seconds a freeze must last to be reported
	KeepDuration float64 // seconds of every freeze kept as a deliberate pause
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{Noise: 0.003, MinDuration: 1.5, KeepDuration: 1.5}
}

// Filter is the freezedetect filter for these options.
func (o Options) Filter() string {
	return fmt.Sprintf("freezedetect=n=%s:d=%s", num(o.Noise), num(o.MinDuration))
}

// Prober runs a freeze probe over a video and returns the tool's log output.
type Prober interface {
	FreezeProbe(ctx context.Context, path string, filter string) (string, error)
}

// Detector is the interface for freeze detection strategies
type Detector interface {
	Detect(ctx context.Context, path string, totalDuration float64) ([]Freeze, error)
}

// FreezeDetector reports freezes using the freezedetect filter.
type FreezeDetector struct {
	prober Prober
	opts   Options
}

func NewFreezeDetector(prober Prober, opts Options) *FreezeDetector {
	return &FreezeDetector{prober: prober, opts: opts}
}

func (d *FreezeDetector) Detect(ctx context.Context, path string, totalDuration float64) ([]Freeze, error) {
	out, err := d.prober.FreezeProbe(ctx, path, d.opts.Filter())
	if err != nil {
		return nil, fmt.Errorf("freeze probe: %w", err)
	}
	return ParseFreezeOutput(out, totalDuration), nil
}

// NoopDetector never reports a freeze, which turns excision off.
type NoopDetector struct{}

func (NoopDetector) Detect(context.Context, string, float64) ([]Freeze, error) { return nil, nil }
