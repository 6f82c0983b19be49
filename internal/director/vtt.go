package director

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Cue is one parsed WebVTT cue.
type Cue struct {
	StartMs int
	EndMs   int
	Text    string
}

// BuildVTT renders one cue per section with the section label as text.
func BuildVTT(sections []Section) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, s := range sections {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, FormatTimestamp(s.StartMs), FormatTimestamp(s.EndMs), s.Label())
	}
	return b.String()
}

// ParseVTT reads cues back from WebVTT text. Cue identifiers are optional.
func ParseVTT(text string) ([]Cue, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	if !scanner.Scan() || !strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF")), "WEBVTT") {
		return nil, fmt.Errorf("missing WEBVTT header")
	}

	var cues []Cue
	var current *Cue
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			if current != nil {
				cues = append(cues, *current)
				current = nil
			}
		case strings.Contains(line, "-->"):
			parts := strings.SplitN(line, "-->", 2)
			start, err := ParseTimestamp(strings.TrimSpace(parts[0]))
			if err != nil {
				return nil, err
			}
			end, err := ParseTimestamp(strings.Fields(strings.TrimSpace(parts[1]))[0])
			if err != nil {
				return nil, err
			}
			current = &Cue{StartMs: start, EndMs: end}
		case current != nil:
			if current.Text != "" {
				current.Text += "\n"
			}
			current.Text += line
		}
	}
	if current != nil {
		cues = append(cues, *current)
	}
	return cues, scanner.Err()
}

// FormatTimestamp renders milliseconds as HH:MM:SS.mmm.
func FormatTimestamp(ms int) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := ms / 60000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// ParseTimestamp accepts HH:MM:SS.mmm and the shorter MM:SS.mmm form.
func ParseTimestamp(ts string) (int, error) {
	clock, frac, ok := strings.Cut(ts, ".")
	if !ok || len(frac) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	millis, err := strconv.Atoi(frac)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}

	fields := strings.Split(clock, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	total := 0
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		total = total*60 + n
	}
	return total*1000 + millis, nil
}
