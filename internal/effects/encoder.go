package effects

import "fmt"

// DefaultQuality picks a quality value per encoder when none is configured.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 60 // 6000k
	case "h264_nvenc":
		return 23
	default:
		return 20
	}
}

// EncoderArgs maps one quality knob onto each encoder's own rate control.
func EncoderArgs(encoder string, quality int) []string {
	if encoder == "" {
		encoder = "libx264"
	}
	if quality <= 0 {
		quality = DefaultQuality(encoder)
	}

	args := []string{"-c:v", encoder}
	switch encoder {
	case "h264_videotoolbox":
		args = append(args, "-b:v", fmt.Sprintf("%dk", quality*100))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", quality))
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", quality), "-preset", "medium")
	}
	return args
}
