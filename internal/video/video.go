package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ivlev/democlip/internal/logging"
)

// tailLines is how much ffmpeg output an error carries.
const tailLines = 12

// Progress is one -progress block reported by ffmpeg.
type Progress struct {
	Frame   int
	FPS     float64
	Time    string
	Speed   string
	Bitrate string
}

// RunOptions configures a single ffmpeg invocation.
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(string)
}

// Executor runs ffmpeg and ffprobe.
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New resolves both binaries, either from the given paths or from PATH.
func New(logger zerolog.Logger, ffmpegPath, ffprobePath string, threads int) (*Executor, error) {
	ffmpeg, err := lookPath(ffmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobe, err := lookPath(ffprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	return &Executor{
		logger:      logging.WithComponent(logger, "ffmpeg"),
		ffmpegPath:  ffmpeg,
		ffprobePath: ffprobe,
		threads:     threads,
	}, nil
}

func lookPath(configured, name string) (string, error) {
	if configured == "" {
		configured = name
	}
	p, err := exec.LookPath(configured)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", name, err)
	}
	return p, nil
}

// FFmpegPath is the resolved ffmpeg binary.
func (e *Executor) FFmpegPath() string { return e.ffmpegPath }

// Run executes ffmpeg with opts.Args, streaming progress. A failed run
// returns the last lines ffmpeg printed.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return errors.New("no arguments provided")
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "info", "-nostdin"}
	if e.threads > 0 {
		args = append(args, "-threads", fmt.Sprintf("%d", e.threads))
	}
	args = append(args, "-progress", "pipe:2")
	args = append(args, opts.Args...)

	e.logger.Debug().Strs("args", args).Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	tail := newTail(tailLines)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		streamOutput(stderr, opts.ProgressHandler, func(line string) {
			tail.add(line)
			if opts.LogHandler != nil {
				opts.LogHandler(line)
			}
		})
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail.String())
	}
	return nil
}

// output runs a binary to completion and returns its combined output.
func (e *Executor) output(ctx context.Context, bin string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		t := newTail(tailLines)
		for _, l := range strings.Split(string(out), "\n") {
			t.add(l)
		}
		return "", fmt.Errorf("%s failed: %w: %s", bin, err, t.String())
	}
	return string(out), nil
}

// FreezeProbe decodes path through filter and returns ffmpeg's log, which
// carries freezedetect's lavfi.freezedetect lines.
func (e *Executor) FreezeProbe(ctx context.Context, path, filter string) (string, error) {
	return e.output(ctx, e.ffmpegPath, "-hide_banner", "-nostdin", "-i", path, "-vf", filter, "-an", "-f", "null", "-")
}

// streamOutput hands every line to logHandler and assembles -progress
// blocks for progressHandler.
func streamOutput(r io.Reader, progressHandler func(*Progress), logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	p := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()
		if logHandler != nil {
			logHandler(line)
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "frame":
			fmt.Sscanf(value, "%d", &p.Frame)
		case "fps":
			fmt.Sscanf(value, "%f", &p.FPS)
		case "bitrate":
			p.Bitrate = value
		case "out_time":
			p.Time = value
		case "speed":
			p.Speed = value
		case "progress":
			if progressHandler != nil && p.Frame > 0 {
				progressHandler(p)
			}
			p = &Progress{}
		}
	}
}

// tail keeps the last n non-empty lines.
type tail struct {
	mu    sync.Mutex
	lines []string
	n     int
}

func newTail(n int) *tail { return &tail{n: n} }

func (t *tail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" || isProgressLine(line) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}

var progressKeys = []string{
	"frame=", "fps=", "stream_", "bitrate=", "total_size=", "out_time", "dup_frames=", "drop_frames=", "speed=", "progress=",
}

func isProgressLine(line string) bool {
	for _, k := range progressKeys {
		if strings.HasPrefix(line, k) {
			return true
		}
	}
	return false
}
