package system

import (
	"context"
	"os/exec"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// OpenFileLimit is the soft RLIMIT_NOFILE requested at startup. Concurrent
// renders each hold several ffmpeg pipes and temp files open.
const OpenFileLimit = 4096

// InitResourceLimits raises the open file limit up to OpenFileLimit.
func InitResourceLimits(logger zerolog.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn().Err(err).Msg("cannot read open file limit")
		return
	}
	if rLimit.Cur >= OpenFileLimit {
		return
	}

	rLimit.Cur = OpenFileLimit
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn().Err(err).Msg("cannot raise open file limit")
		return
	}
	logger.Debug().Uint64("limit", uint64(rLimit.Cur)).Msg("open file limit raised")
}

// hardwareEncoders in order of preference. libx264 is the fallback.
var hardwareEncoders = []string{"h264_videotoolbox", "h264_nvenc"}

// GetBestH264Encoder asks ffmpeg which encoders it was built with and picks
// the first hardware one, falling back to libx264.
func GetBestH264Encoder(ctx context.Context, ffmpegPath string) string {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	return PickEncoder(string(out))
}

// PickEncoder chooses from an `ffmpeg -encoders` listing.
func PickEncoder(listing string) string {
	for _, enc := range hardwareEncoders {
		if strings.Contains(listing, enc) {
			return enc
		}
	}
	return "libx264"
}

// Host is a snapshot of the machine a render ran on.
type Host struct {
	CPUs          int     `json:"cpus" yaml:"cpus"`
	CPUPercent    float64 `json:"cpuPercent" yaml:"cpuPercent"`
	MemoryTotalMB uint64  `json:"memoryTotalMb" yaml:"memoryTotalMb"`
	MemoryUsedPct float64 `json:"memoryUsedPercent" yaml:"memoryUsedPercent"`
}

// HostStats samples CPU and memory usage. Fields it cannot read stay zero.
func HostStats(ctx context.Context) Host {
	var h Host
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		h.CPUs = n
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		h.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.MemoryTotalMB = vm.Total / (1 << 20)
		h.MemoryUsedPct = vm.UsedPercent
	}
	return h
}
