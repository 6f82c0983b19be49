package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ivlev/democlip/internal/analyzer"
	"github.com/ivlev/democlip/internal/director"
	"github.com/ivlev/democlip/internal/effects"
	"github.com/ivlev/democlip/internal/model"
	"github.com/ivlev/democlip/internal/system"
	"github.com/ivlev/democlip/internal/video"
)

const (
	artifactName = "demo.mp4"
	manifestName = "manifest.yaml"
	scenarioName = "scenario.yaml"
)

// job is one pass through the pipeline.
type job struct {
	runID     string
	versionID string
	source    string
	// raw is normalized unless sections already holds canonical ones.
	raw      []director.AnnotationSection
	sections []director.Section
	ops      []model.Operation
	preset   string
	linkURL  string
	key      func(name string) string
}

// run executes fetch, probe, normalize, render, freeze analysis, optional
// excision and upload inside a private workspace that is always removed.
func (c *Compositor) run(ctx context.Context, j job, logger zerolog.Logger) (*Result, error) {
	started := time.Now()
	dir, err := os.MkdirTemp("", "democlip_")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	var src string
	if err := c.step(ctx, "fetch", func(ctx context.Context) (err error) {
		src, err = c.fetcher.Fetch(ctx, j.source, dir)
		return err
	}); err != nil {
		return nil, err
	}

	var info *video.Info
	if err := c.step(ctx, "probe", func(ctx context.Context) (err error) {
		info, err = c.backend.Probe(ctx, src)
		if err == nil && info.DurationMs() <= 0 {
			err = fmt.Errorf("source %s has no duration", j.source)
		}
		return err
	}); err != nil {
		return nil, err
	}
	durationMs := info.DurationMs()
	logger.Debug().Int("width", info.Width).Int("height", info.Height).Int("duration_ms", durationMs).Msg("source probed")

	sections := j.sections
	if sections == nil {
		sections = director.Normalize(j.raw, info.Width, info.Height, durationMs)
	}

	presetName := j.preset
	if presetName == "" {
		presetName = c.opts.DefaultPreset
	}
	base, err := effects.PresetByName(c.opts.Presets, presetName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidOperation, err)
	}
	plan, err := effects.Fold(j.ops, base, c.opts.Presets)
	if err != nil {
		return nil, err
	}
	renderedSeconds := float64(durationMs) / 1000
	if start, end, ok := plan.KeepSeconds(durationMs); ok {
		if end <= start {
			return nil, fmt.Errorf("keep range %.3fs-%.3fs is outside the %.3fs source: %w", start, end, renderedSeconds, effects.ErrEmptyKeepRange)
		}
		renderedSeconds = end - start
	}

	frame := plan.Frame(info.Width, info.Height)
	d := director.NewDirector(frame.Dx(), frame.Dy())
	d.ZoomScale = plan.Preset.ZoomScale
	d.ZoomDurationMs = plan.Preset.ZoomDurationMs
	d.Easing = plan.Preset.ZoomEasing
	scenario := d.ScenarioFor(effects.TranslateSections(sections, frame), durationMs)
	zooms := append(scenario.ZoomKeyframes, effects.TranslateZooms(plan.Zooms, frame)...)
	scenario.ZoomKeyframes = zooms
	scenarioPath := director.ScenarioPath(dir, j.runID)
	if err := director.WriteScenario(scenario, scenarioPath); err != nil {
		logger.Warn().Err(err).Msg("scenario dump failed")
		scenarioPath = ""
	}

	var assets effects.Assets
	if err := c.step(ctx, "assets", func(context.Context) (err error) {
		assets, err = effects.WriteAssets(dir, plan.Preset, frame.Dx(), frame.Dy(), j.linkURL)
		return err
	}); err != nil {
		return nil, err
	}

	comp := effects.Composition{
		Input:        src,
		Output:       filepath.Join(dir, "annotated.mp4"),
		FPS:          c.opts.FPS,
		Frame:        frame,
		SourceWidth:  info.Width,
		SourceHeight: info.Height,
		Preset:       plan.Preset,
		Zooms:        zooms,
		Cursor:       scenario.CursorKeyframes,
		Keep:         plan.Keep,
		Assets:       assets,
	}
	cmd, err := c.builder.Build(comp)
	if err != nil {
		return nil, err
	}
	if err := c.step(ctx, "render", func(ctx context.Context) error {
		return c.backend.Run(ctx, video.RunOptions{Args: cmd.Args, ProgressHandler: progressLogger(logger)})
	}); err != nil {
		return nil, err
	}

	var ex analyzer.Excision
	if err := c.step(ctx, "freeze", func(ctx context.Context) error {
		freezes, err := c.detector.Detect(ctx, comp.Output, renderedSeconds)
		if err != nil {
			return err
		}
		ex = analyzer.Plan(freezes, renderedSeconds, c.opts.Freeze.KeepDuration)
		return nil
	}); err != nil {
		return nil, err
	}
	c.metrics.ObserveFreezes(len(ex.Freezes), ex.Removed)

	final := comp.Output
	if ex.NeedsCut() {
		excised := filepath.Join(dir, "final.mp4")
		pass := c.builder.Excise(comp.Output, excised, ex.Keep, renderedSeconds)
		if err := c.step(ctx, "excise", func(ctx context.Context) error {
			return c.backend.Run(ctx, video.RunOptions{Args: pass.Args, ProgressHandler: progressLogger(logger)})
		}); err != nil {
			return nil, err
		}
		final = excised
		logger.Info().Int("freezes", len(ex.Freezes)).Float64("removed_s", ex.Removed).Msg("frozen footage removed")
	}

	manifest := effects.NewManifest(j.runID, c.builder, comp, cmd)
	manifest.VersionID = j.versionID
	manifest.Removed = ex.Removed
	manifest.Host = system.HostStats(ctx)
	manifest.RenderTime = time.Since(started)
	manifestPath := filepath.Join(dir, manifestName)
	if err := effects.WriteManifest(manifestPath, manifest); err != nil {
		return nil, err
	}

	var ref string
	if err := c.step(ctx, "upload", func(ctx context.Context) (err error) {
		if ref, err = c.uploader.Upload(ctx, j.key(artifactName), final); err != nil {
			return err
		}
		_, err = c.uploader.Upload(ctx, j.key(manifestName), manifestPath)
		return err
	}); err != nil {
		return nil, err
	}
	if scenarioPath != "" {
		if _, err := c.uploader.Upload(ctx, j.key(scenarioName), scenarioPath); err != nil {
			logger.Warn().Err(err).Msg("scenario upload failed")
		}
	}

	return &Result{
		ArtifactRef: ref,
		Sections:    sections,
		VTT:         director.BuildVTT(sections),
		Excision:    ex,
		Manifest:    manifest,
	}, nil
}

// step runs fn as a traced, timed pipeline stage. Errors are prefixed with
// the stage name.
func (c *Compositor) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "democlip."+name, trace.WithAttributes(attribute.String("step", name)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	c.metrics.ObserveStep(name, start)
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	c.logger.Debug().Str("step", name).Dur("elapsed", time.Since(start)).Msg("step done")
	return nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func progressLogger(logger zerolog.Logger) func(*video.Progress) {
	return func(p *video.Progress) {
		logger.Debug().Int("frame", p.Frame).Float64("fps", p.FPS).Str("time", p.Time).Str("speed", p.Speed).Msg("ffmpeg progress")
	}
}
