// Package engine runs the render pipeline for runs and edit versions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ivlev/democlip/internal/analyzer"
	"github.com/ivlev/democlip/internal/director"
	"github.com/ivlev/democlip/internal/edits"
	"github.com/ivlev/democlip/internal/effects"
	"github.com/ivlev/democlip/internal/logging"
	"github.com/ivlev/democlip/internal/media"
	"github.com/ivlev/democlip/internal/metrics"
	"github.com/ivlev/democlip/internal/model"
	"github.com/ivlev/democlip/internal/status"
	"github.com/ivlev/democlip/internal/storage"
	"github.com/ivlev/democlip/internal/telemetry"
	"github.com/ivlev/democlip/internal/video"
)

// Backend executes ffmpeg and ffprobe. *video.Executor implements it.
type Backend interface {
	Probe(ctx context.Context, path string) (*video.Info, error)
	Run(ctx context.Context, opts video.RunOptions) error
	FreezeProbe(ctx context.Context, path, filter string) (string, error)
}

// Fetcher makes a source URL available as a local file.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, dir string) (string, error)
}

// Deps are the collaborators a Compositor drives.
type Deps struct {
	Backend  Backend
	Fetcher  Fetcher
	Uploader media.Uploader
	Store    storage.Store
	Sink     *status.Sink
	Chain    *edits.Chain
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Options are the render settings shared by every request.
type Options struct {
	FPS           int
	Encoder       string
	Quality       int
	Presets       map[string]effects.StylePreset
	DefaultPreset string

	FreezeDetector string
	Freeze         analyzer.Options
}

// RenderRequest asks for the annotated clip of one run.
type RenderRequest struct {
	RunID         string                       `json:"runId"`
	InputVideoURL string                       `json:"inputVideoUrl"`
	Sections      []director.AnnotationSection `json:"sections"`
	Operations    []model.Operation            `json:"operations,omitempty"`
	Preset        string                       `json:"preset,omitempty"`
	LinkURL       string                       `json:"linkUrl,omitempty"`
}

// Result describes a finished render.
type Result struct {
	ArtifactRef string
	Sections    []director.Section
	VTT         string
	Excision    analyzer.Excision
	Manifest    *effects.Manifest
}

// Compositor turns recordings into finished clips.
type Compositor struct {
	backend  Backend
	fetcher  Fetcher
	uploader media.Uploader
	store    storage.Store
	sink     *status.Sink
	chain    *edits.Chain
	detector analyzer.Detector
	builder  effects.Builder
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   zerolog.Logger
	opts     Options
}

func New(d Deps, opts Options) (*Compositor, error) {
	if d.Backend == nil || d.Fetcher == nil || d.Uploader == nil || d.Store == nil || d.Sink == nil || d.Chain == nil {
		return nil, errors.New("compositor: missing dependency")
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Presets == nil {
		opts.Presets = effects.Presets()
	}
	if opts.DefaultPreset == "" {
		opts.DefaultPreset = effects.DefaultPreset
	}
	if _, err := effects.PresetByName(opts.Presets, opts.DefaultPreset); err != nil {
		return nil, err
	}
	if opts.Freeze == (analyzer.Options{}) {
		opts.Freeze = analyzer.DefaultOptions()
	}
	detector, err := analyzer.NewDetector(opts.FreezeDetector, d.Backend, opts.Freeze)
	if err != nil {
		return nil, err
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics()
	}

	return &Compositor{
		backend:  d.Backend,
		fetcher:  d.Fetcher,
		uploader: d.Uploader,
		store:    d.Store,
		sink:     d.Sink,
		chain:    d.Chain,
		detector: detector,
		builder:  effects.Builder{Encoder: opts.Encoder, Quality: opts.Quality},
		metrics:  d.Metrics,
		tracer:   telemetry.Tracer("github.com/ivlev/democlip/internal/engine"),
		logger:   logging.WithComponent(d.Logger, "compositor"),
		opts:     opts,
	}, nil
}

// Render runs the full pipeline for a run. The run is marked uploading
// first; any later failure is written to the run before it is returned.
func (c *Compositor) Render(ctx context.Context, req RenderRequest) (*Result, error) {
	start := time.Now()
	c.metrics.RendersInFlight.Inc()
	defer c.metrics.RendersInFlight.Dec()

	ctx, span := c.tracer.Start(ctx, "democlip.render")
	defer span.End()

	logger := c.logger.With().Str("run_id", req.RunID).Logger()
	if err := c.sink.SetStatus(ctx, req.RunID, model.RunUploading); err != nil {
		return nil, fmt.Errorf("start run %s: %w", req.RunID, err)
	}

	res, err := c.run(ctx, job{
		runID:   req.RunID,
		source:  req.InputVideoURL,
		raw:     req.Sections,
		ops:     req.Operations,
		preset:  req.Preset,
		linkURL: req.LinkURL,
		key:     func(name string) string { return media.RunKey(req.RunID, name) },
	}, logger)
	if err == nil {
		err = c.finalize(ctx, req.RunID, res)
	}
	c.metrics.ObserveRender("run", start, err)
	if err != nil {
		recordError(span, err)
		if serr := c.sink.AttachError(ctx, req.RunID, err.Error()); serr != nil {
			logger.Error().Err(serr).Msg("could not record failure")
		}
		logger.Error().Err(err).Msg("render failed")
		return nil, err
	}

	logger.Info().
		Str("artifact", res.ArtifactRef).
		Int("sections", len(res.Sections)).
		Float64("removed_s", res.Excision.Removed).
		Dur("elapsed", time.Since(start)).
		Msg("render completed")
	return res, nil
}

func (c *Compositor) finalize(ctx context.Context, runID string, res *Result) error {
	if err := c.sink.AttachArtifact(ctx, runID, res.ArtifactRef); err != nil {
		return err
	}
	if err := c.sink.AttachAnnotations(ctx, runID, res.Sections, res.VTT); err != nil {
		return err
	}
	return c.sink.SetStatus(ctx, runID, model.RunCompleted)
}

// RenderVersion renders an edit version from its run's source and canonical
// sections with the version's effective operations. The version, not the
// run, records the outcome.
func (c *Compositor) RenderVersion(ctx context.Context, versionID string) (*Result, error) {
	start := time.Now()
	c.metrics.RendersInFlight.Inc()
	defer c.metrics.RendersInFlight.Dec()

	ctx, span := c.tracer.Start(ctx, "democlip.render_version")
	defer span.End()

	v, err := c.chain.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	run, err := c.store.GetRun(ctx, v.RunID)
	if err != nil {
		c.failVersion(ctx, versionID, err, c.logger.With().Str("version_id", versionID).Logger())
		return nil, err
	}
	ops, err := c.chain.Resolve(ctx, versionID)
	if err != nil {
		c.failVersion(ctx, versionID, err, c.logger.With().Str("version_id", versionID).Logger())
		return nil, err
	}
	if v, err = c.chain.MarkProcessing(ctx, versionID); err != nil {
		return nil, err
	}
	c.sink.VersionChanged(ctx, v)

	logger := c.logger.With().Str("run_id", run.ID).Str("version_id", versionID).Int("version", v.Version).Logger()
	j := job{
		runID:     run.ID,
		versionID: versionID,
		source:    run.SourceURL,
		ops:       ops,
		key:       func(name string) string { return media.VersionKey(run.ID, versionID, name) },
	}
	if len(run.Sections) > 0 {
		j.sections = run.Sections
	}

	res, err := c.run(ctx, j, logger)
	c.metrics.ObserveRender("version", start, err)
	if err != nil {
		recordError(span, err)
		c.failVersion(ctx, versionID, err, logger)
		return nil, err
	}

	done, err := c.chain.MarkCompleted(ctx, versionID, res.ArtifactRef)
	if err != nil {
		return nil, err
	}
	c.sink.VersionChanged(ctx, done)
	logger.Info().Str("artifact", res.ArtifactRef).Int("operations", len(ops)).Msg("version render completed")
	return res, nil
}

func (c *Compositor) failVersion(ctx context.Context, versionID string, cause error, logger zerolog.Logger) {
	if fv, err := c.chain.MarkFailed(ctx, versionID, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("could not record failure")
	} else {
		c.sink.VersionChanged(ctx, fv)
	}
	logger.Error().Err(cause).Msg("version render failed")
}
