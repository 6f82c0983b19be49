// Command democlip renders annotated demo clips from screen recordings,
// either once from the command line or as an HTTP service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/democlip/internal/config"
	"github.com/ivlev/democlip/internal/director"
	"github.com/ivlev/democlip/internal/edits"
	"github.com/ivlev/democlip/internal/effects"
	"github.com/ivlev/democlip/internal/engine"
	"github.com/ivlev/democlip/internal/logging"
	"github.com/ivlev/democlip/internal/media"
	"github.com/ivlev/democlip/internal/metrics"
	"github.com/ivlev/democlip/internal/model"
	"github.com/ivlev/democlip/internal/server"
	"github.com/ivlev/democlip/internal/status"
	"github.com/ivlev/democlip/internal/storage"
	"github.com/ivlev/democlip/internal/system"
	"github.com/ivlev/democlip/internal/telemetry"
	"github.com/ivlev/democlip/internal/video"
)

const usage = `usage: democlip <command> [flags]

commands:
  render     render one or more recordings to the output directory
  scenario   dump the keyframes a render would use, without ffmpeg
  serve      run the HTTP API
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "render":
		err = runRender(ctx, cfg, os.Args[2:])
	case "scenario":
		err = runScenario(cfg, os.Args[2:])
	case "serve":
		err = runServe(ctx, cfg, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "democlip: %v\n", err)
		os.Exit(1)
	}
}

// renderFlags are shared by both commands and override the environment.
func renderFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "ffmpeg binary (default: PATH lookup)")
	fs.StringVar(&cfg.FFprobePath, "ffprobe", cfg.FFprobePath, "ffprobe binary (default: PATH lookup)")
	fs.StringVar(&cfg.VideoEncoder, "encoder", cfg.VideoEncoder, "h264 encoder (default: best available)")
	fs.IntVar(&cfg.Quality, "quality", cfg.Quality, "quality (0 = encoder default; x264 CRF, VideoToolbox Q*100 kbit/s)")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "output frame rate")
	fs.IntVar(&cfg.Threads, "threads", cfg.Threads, "ffmpeg threads (0 = auto)")
	fs.StringVar(&cfg.PresetsFile, "presets", cfg.PresetsFile, "YAML file overriding style presets")
	fs.StringVar(&cfg.DefaultPreset, "preset", cfg.DefaultPreset, "style preset")
	fs.StringVar(&cfg.FreezeDetector, "freeze-detector", cfg.FreezeDetector, "freeze detector: freezedetect or none")
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "local artifact directory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.Tracing, "trace", cfg.Tracing, "print trace spans to stdout")
}

type stack struct {
	logger   zerolog.Logger
	backend  *video.Executor
	options  engine.Options
	metrics  *metrics.Metrics
	shutdown func()
}

// setup builds what both commands share: logging, tracing, host limits,
// the ffmpeg executor and the render options.
func setup(ctx context.Context, cfg config.Config) (*stack, error) {
	logger := logging.Init(cfg.LogLevel, cfg.LogConsole)
	system.InitResourceLimits(logger)

	shutdown := func() {}
	if cfg.Tracing {
		if _, err := telemetry.InitTracer(cfg.BuildVersion, nil); err != nil {
			return nil, err
		}
		shutdown = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			telemetry.ShutdownTracer(ctx, logger)
		}
	}

	backend, err := video.New(logger, cfg.FFmpegPath, cfg.FFprobePath, cfg.Threads)
	if err != nil {
		return nil, err
	}

	encoder := cfg.VideoEncoder
	if encoder == "" {
		encoder = system.GetBestH264Encoder(ctx, backend.FFmpegPath())
		if encoder != "libx264" {
			logger.Info().Str("encoder", encoder).Msg("hardware encoder detected")
		}
	}

	presets := effects.Presets()
	if cfg.PresetsFile != "" {
		if presets, err = effects.LoadPresets(cfg.PresetsFile); err != nil {
			return nil, err
		}
	}

	return &stack{
		logger:  logger,
		backend: backend,
		metrics: metrics.NewMetrics(),
		options: engine.Options{
			FPS:            cfg.FPS,
			Encoder:        encoder,
			Quality:        cfg.Quality,
			Presets:        presets,
			DefaultPreset:  cfg.DefaultPreset,
			FreezeDetector: cfg.FreezeDetector,
			Freeze:         cfg.FreezeOptions(),
		},
		shutdown: shutdown,
	}, nil
}

func runRender(ctx context.Context, cfg config.Config, args []string) error {
	cfg.LogConsole = true
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	renderFlags(fs, &cfg)
	sectionsPath := fs.String("sections", "", "JSON file with annotation sections")
	opsPath := fs.String("ops", "", "JSON file with edit operations")
	linkURL := fs.String("link", "", "pull request URL for the QR badge")
	jobs := fs.Int("jobs", 1, "recordings rendered in parallel")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: democlip render [flags] <recording>...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no recordings given")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var sections []director.AnnotationSection
	if err := readJSON(*sectionsPath, &sections); err != nil {
		return err
	}
	var ops []model.Operation
	if err := readJSON(*opsPath, &ops); err != nil {
		return err
	}
	validator, err := edits.NewValidator()
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := validator.Check(op); err != nil {
			return err
		}
	}

	st, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.shutdown()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	store := storage.NewMemory()
	sink := status.NewSink(store, status.Noop(), st.logger)
	comp, err := engine.New(engine.Deps{
		Backend:  st.backend,
		Fetcher:  media.NewFetcher(nil),
		Uploader: media.LocalStore{Dir: cfg.OutputDir},
		Store:    store,
		Sink:     sink,
		Chain:    edits.NewChain(store, st.logger),
		Metrics:  st.metrics,
		Logger:   st.logger,
	}, st.options)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, *jobs))
	for _, input := range fs.Args() {
		g.Go(func() error {
			abs, err := filepath.Abs(input)
			if err != nil {
				return err
			}
			runID := runName(abs)
			now := time.Now().UTC()
			if err := store.CreateRun(gctx, &model.Run{ID: runID, SourceURL: abs, Status: model.RunQueued, CreatedAt: now, UpdatedAt: now}); err != nil {
				return err
			}
			res, err := comp.Render(gctx, engine.RenderRequest{
				RunID:         runID,
				InputVideoURL: abs,
				Sections:      sections,
				Operations:    ops,
				Preset:        cfg.DefaultPreset,
				LinkURL:       *linkURL,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			vtt := filepath.Join(cfg.OutputDir, "runs", runID, "demo.vtt")
			if err := os.WriteFile(vtt, []byte(res.VTT), 0o644); err != nil {
				return err
			}
			st.logger.Info().Str("input", input).Str("artifact", res.ArtifactRef).Str("subtitles", vtt).Msg("done")
			return nil
		})
	}
	return g.Wait()
}

// runName derives a readable, unique run id from the recording file name.
func runName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.ReplaceAll(base, " ", "_")
	return base + "_" + strings.ToLower(ulid.Make().String()[:10])
}

func readJSON(path string, dst any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// runScenario writes the scenario and subtitle track for a set of sections
// so camera timing can be inspected before anything is rendered.
func runScenario(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("scenario", flag.ExitOnError)
	sectionsPath := fs.String("sections", "", "JSON file with annotation sections")
	width := fs.Int("width", 1280, "viewport width")
	height := fs.Int("height", 720, "viewport height")
	duration := fs.Int("duration", 15000, "recording length in milliseconds")
	presetName := fs.String("preset", cfg.DefaultPreset, "style preset")
	presetsFile := fs.String("presets", cfg.PresetsFile, "YAML file overriding style presets")
	out := fs.String("out", "", "scenario path (default: output dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var sections []director.AnnotationSection
	if err := readJSON(*sectionsPath, &sections); err != nil {
		return err
	}
	presets := effects.Presets()
	if *presetsFile != "" {
		var err error
		if presets, err = effects.LoadPresets(*presetsFile); err != nil {
			return err
		}
	}
	preset, err := effects.PresetByName(presets, *presetName)
	if err != nil {
		return err
	}

	d := director.NewDirector(*width, *height)
	d.ZoomScale = preset.ZoomScale
	d.ZoomDurationMs = preset.ZoomDurationMs
	d.Easing = preset.ZoomEasing
	scenario := d.GenerateScenario(sections, *duration)

	path := *out
	if path == "" {
		path = director.ScenarioPath(cfg.OutputDir, time.Now().Format("2006-01-02_15-04-05"))
	}
	if err := director.WriteScenario(scenario, path); err != nil {
		return err
	}
	vtt := strings.TrimSuffix(path, filepath.Ext(path)) + ".vtt"
	if err := os.WriteFile(vtt, []byte(director.BuildVTT(scenario.Sections)), 0o644); err != nil {
		return err
	}
	fmt.Printf("%d sections, %d zoom pulses\nscenario: %s\nsubtitles: %s\n",
		len(scenario.Sections), len(scenario.ZoomKeyframes), path, vtt)
	return nil
}

func runServe(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	renderFlags(fs, &cfg)
	fs.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "listen address")
	fs.StringVar(&cfg.DBDriver, "db", cfg.DBDriver, "storage driver: memory, sqlite or postgres")
	fs.StringVar(&cfg.DBDSN, "dsn", cfg.DBDSN, "storage DSN or SQLite path")
	fs.IntVar(&cfg.MaxConcurrentRenders, "max-renders", cfg.MaxConcurrentRenders, "renders executing at once")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.shutdown()
	logger := st.logger

	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	var s3 *media.S3Store
	var uploader media.Uploader = media.LocalStore{Dir: cfg.OutputDir}
	if cfg.S3Bucket != "" {
		s3, err = media.NewS3Store(ctx, media.S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return err
		}
		uploader = s3
	}

	sink := status.NewSink(store, status.NewPublisher(cfg.NATSURL, logger), logger)
	defer sink.Close()

	chain := edits.NewChain(store, logger)
	comp, err := engine.New(engine.Deps{
		Backend:  st.backend,
		Fetcher:  media.NewFetcher(s3),
		Uploader: uploader,
		Store:    store,
		Sink:     sink,
		Chain:    chain,
		Metrics:  st.metrics,
		Logger:   logger,
	}, st.options)
	if err != nil {
		return err
	}

	api, err := server.New(store, chain, comp, st.metrics, cfg.MaxConcurrentRenders, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("db", cfg.DBDriver).Str("encoder", st.options.Encoder).Msg("democlip listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := api.Wait(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("renders still running at exit")
	}
	return nil
}
