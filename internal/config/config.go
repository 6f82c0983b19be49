package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ivlev/democlip/internal/analyzer"
)

// EnvPrefix namespaces every environment variable.
const EnvPrefix = "DEMOCLIP_"

type Config struct {
	Env        string
	ListenAddr string
	LogLevel   string
	LogConsole bool

	DBDriver string // memory | sqlite | postgres
	DBDSN    string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool
	OutputDir   string // local artifact directory when no bucket is set

	NATSURL string

	FFmpegPath   string
	FFprobePath  string
	VideoEncoder string // empty means detect
	Quality      int    // 0 means encoder default
	FPS          int
	Threads      int

	PresetsFile   string
	DefaultPreset string

	FreezeDetector     string
	FreezeNoise        float64
	FreezeMinDuration  float64
	FreezeKeepDuration float64

	MaxConcurrentRenders int
	Tracing              bool
	BuildVersion         string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	freeze := analyzer.DefaultOptions()
	return Config{
		Env:                  "dev",
		ListenAddr:           ":8080",
		LogLevel:             "info",
		DBDriver:             "memory",
		S3Region:             "us-east-1",
		OutputDir:            "output",
		FPS:                  30,
		DefaultPreset:        "default",
		FreezeDetector:       "freezedetect",
		FreezeNoise:          freeze.Noise,
		FreezeMinDuration:    freeze.MinDuration,
		FreezeKeepDuration:   freeze.KeepDuration,
		MaxConcurrentRenders: 2,
		BuildVersion:         "dev",
	}
}

// Load reads .env and .env.local when present, then the DEMOCLIP_*
// environment on top of the defaults. Variables already set in the process
// environment win over the files.
func Load() (Config, error) {
	for _, f := range []string{".env", ".env.local"} {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv applies the environment to Default without touching dotenv files.
func FromEnv() (Config, error) {
	cfg := Default()
	var errs []error

	str := func(dst *string, key string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(dst *int, key string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(dst *float64, key string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	flag := func(dst *bool, key string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str(&cfg.Env, "ENV")
	str(&cfg.ListenAddr, "LISTEN_ADDR")
	str(&cfg.LogLevel, "LOG_LEVEL")
	flag(&cfg.LogConsole, "LOG_CONSOLE")
	str(&cfg.DBDriver, "DB_DRIVER")
	str(&cfg.DBDSN, "DB_DSN")
	str(&cfg.S3Endpoint, "S3_ENDPOINT")
	str(&cfg.S3Region, "S3_REGION")
	str(&cfg.S3Bucket, "S3_BUCKET")
	str(&cfg.S3AccessKey, "S3_ACCESS_KEY")
	str(&cfg.S3SecretKey, "S3_SECRET_KEY")
	flag(&cfg.S3PathStyle, "S3_PATH_STYLE")
	str(&cfg.OutputDir, "OUTPUT_DIR")
	str(&cfg.NATSURL, "NATS_URL")
	str(&cfg.FFmpegPath, "FFMPEG_PATH")
	str(&cfg.FFprobePath, "FFPROBE_PATH")
	str(&cfg.VideoEncoder, "VIDEO_ENCODER")
	num(&cfg.Quality, "QUALITY")
	num(&cfg.FPS, "FPS")
	num(&cfg.Threads, "THREADS")
	str(&cfg.PresetsFile, "PRESETS_FILE")
	str(&cfg.DefaultPreset, "DEFAULT_PRESET")
	str(&cfg.FreezeDetector, "FREEZE_DETECTOR")
	float(&cfg.FreezeNoise, "FREEZE_NOISE")
	float(&cfg.FreezeMinDuration, "FREEZE_MIN_DURATION")
	float(&cfg.FreezeKeepDuration, "FREEZE_KEEP_DURATION")
	num(&cfg.MaxConcurrentRenders, "MAX_CONCURRENT_RENDERS")
	flag(&cfg.Tracing, "TRACING")

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no render could use.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown db driver %q", c.DBDriver)
	}
	if c.DBDriver != "memory" && c.DBDSN == "" {
		return fmt.Errorf("db driver %s needs %sDB_DSN", c.DBDriver, EnvPrefix)
	}
	if c.FPS <= 0 || c.FPS > 120 {
		return fmt.Errorf("fps %d out of range", c.FPS)
	}
	if c.Quality < 0 {
		return fmt.Errorf("quality must not be negative")
	}
	if c.MaxConcurrentRenders < 1 {
		return fmt.Errorf("max concurrent renders must be at least 1")
	}
	if c.FreezeNoise <= 0 || c.FreezeMinDuration <= 0 || c.FreezeKeepDuration < 0 {
		return fmt.Errorf("invalid freeze parameters")
	}
	return nil
}

// FreezeOptions are the freeze analyzer parameters.
func (c Config) FreezeOptions() analyzer.Options {
	return analyzer.Options{
		Noise:        c.FreezeNoise,
		MinDuration:  c.FreezeMinDuration,
		KeepDuration: c.FreezeKeepDuration,
	}
}
